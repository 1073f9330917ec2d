package commitgraph

import (
	"bytes"
	"context"
	"fmt"
	"slices"

	"tensorvault/pkg/core"
	"tensorvault/pkg/storage"
	"tensorvault/pkg/types"
)

// 预分配：约为对象总数的 15%，至少 1024
const minCollectCapacity = 1024

func collectCapacity(approx int) int {
	return max(approx*15/100, minCollectCapacity)
}

// Collect 枚举全部对象，只保留 Commit 的原始 Hash
// 结果未排序，可能包含重复项
func Collect(ctx context.Context, src Enumerator, algo HashAlgo) ([][]byte, error) {
	approx := 0
	if e, ok := src.(storage.Estimator); ok {
		// 估算只影响预分配，失败不影响结果
		approx, _ = e.ApproxObjectCount(ctx)
	}

	oids := make([][]byte, 0, collectCapacity(approx))
	err := src.ForEachObject(ctx, func(hash types.Hash, typ core.ObjectType) error {
		if typ != core.TypeCommit {
			return nil
		}
		raw, err := rawOID(hash, algo)
		if err != nil {
			return err
		}
		oids = append(oids, raw)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate objects: %w", err)
	}
	return oids, nil
}

func rawOID(hash types.Hash, algo HashAlgo) ([]byte, error) {
	raw, err := hash.Raw()
	if err != nil {
		return nil, err
	}
	if len(raw) != algo.Size() {
		return nil, fmt.Errorf("%w: %s is %d bytes, %s wants %d", ErrHashWidth, hash, len(raw), algo, algo.Size())
	}
	return raw, nil
}

// Commit 是规范列表中的一项，下标即稠密 ID
type Commit struct {
	OID       []byte
	Tree      []byte
	Parents   [][]byte // 无法解码的父节点 Hash 为 nil，编码时记为 missing
	Timestamp int64
}

// CommitList 是按 Hash 升序、去重后的 Commit 列表
type CommitList struct {
	algo          HashAlgo
	commits       []Commit
	fanout        Fanout
	overflowEdges int
}

// Build 对 oids 排序去重，并通过 resolver 解析每个 Commit
// 任何一个 Commit 解析失败都会让整次构建失败
func Build(ctx context.Context, algo HashAlgo, oids [][]byte, resolver Resolver) (*CommitList, error) {
	slices.SortFunc(oids, bytes.Compare)

	// 先数出去重后的数量，一次分配到位
	distinct := 0
	for i := range oids {
		if i == 0 || !bytes.Equal(oids[i-1], oids[i]) {
			distinct++
		}
	}
	if distinct > maxCommits {
		return nil, fmt.Errorf("%w: %d", ErrTooManyCommits, distinct)
	}

	list := &CommitList{
		algo:    algo,
		commits: make([]Commit, 0, distinct),
	}

	for i, oid := range oids {
		if i > 0 && bytes.Equal(oids[i-1], oid) {
			continue
		}

		c, err := resolve(ctx, algo, oid, resolver)
		if err != nil {
			return nil, err
		}
		if n := len(c.Parents); n > 2 {
			list.overflowEdges += n - 1
		}
		list.commits = append(list.commits, c)
	}

	if list.overflowEdges > int(edgeMask) {
		return nil, fmt.Errorf("%w: %d overflow edges", ErrTooManyCommits, list.overflowEdges)
	}

	list.fanout = newFanout(list.commits)
	return list, nil
}

func resolve(ctx context.Context, algo HashAlgo, oid []byte, resolver Resolver) (Commit, error) {
	hash := types.HashFromRaw(oid)
	info, err := resolver.ResolveCommit(ctx, hash)
	if err != nil {
		return Commit{}, fmt.Errorf("%w %s: %w", ErrCommitParse, hash, err)
	}

	tree, err := rawOID(info.Tree, algo)
	if err != nil {
		return Commit{}, fmt.Errorf("%w %s: tree: %w", ErrCommitParse, hash, err)
	}

	parents := make([][]byte, len(info.Parents))
	for i, p := range info.Parents {
		// 格式错误的父节点不可能出现在列表里，当作缺失处理
		if raw, err := rawOID(p, algo); err == nil {
			parents[i] = raw
		}
	}

	return Commit{
		OID:       oid,
		Tree:      tree,
		Parents:   parents,
		Timestamp: info.Timestamp,
	}, nil
}

func (l *CommitList) Len() int           { return len(l.commits) }
func (l *CommitList) At(i int) Commit    { return l.commits[i] }
func (l *CommitList) Algo() HashAlgo     { return l.algo }
func (l *CommitList) Fanout() Fanout     { return l.fanout }
func (l *CommitList) OverflowEdges() int { return l.overflowEdges }

// Position 返回 oid 的稠密 ID
// 先用 fanout 表把范围缩小到首字节相同的区间，再做二分查找
func (l *CommitList) Position(oid []byte) (uint32, bool) {
	if len(oid) == 0 {
		return 0, false
	}
	lo, hi := l.fanout.bounds(oid[0])
	i, found := searchCommits(l.commits[lo:hi], oid)
	return uint32(lo + i), found
}

// positionPlain 不使用 fanout 表，在整个列表上二分
func (l *CommitList) positionPlain(oid []byte) (uint32, bool) {
	i, found := searchCommits(l.commits, oid)
	return uint32(i), found
}

func searchCommits(commits []Commit, oid []byte) (int, bool) {
	return slices.BinarySearchFunc(commits, oid, func(c Commit, target []byte) int {
		return bytes.Compare(c.OID, target)
	})
}

// Fanout 第 i 项 = 首字节 <= i 的 Commit 数量
type Fanout [256]uint32

func newFanout(commits []Commit) Fanout {
	var f Fanout
	next := 0
	for i := range f {
		for next < len(commits) && int(commits[next].OID[0]) == i {
			next++
		}
		f[i] = uint32(next)
	}
	return f
}

// bounds 返回首字节为 b 的 Commit 所在区间 [lo, hi)
func (f *Fanout) bounds(b byte) (int, int) {
	lo := 0
	if b > 0 {
		lo = int(f[b-1])
	}
	return lo, int(f[b])
}
