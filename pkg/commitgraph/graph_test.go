package commitgraph

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"tensorvault/pkg/core"
	"tensorvault/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 创建顺序 A, B, C, D 与 Hash 顺序 D, B, C, A 不同
var (
	commitA = oid(0xd0)
	commitB = oid(0x20)
	commitC = oid(0x90)
	commitD = oid(0x10)
	treeT   = oid(0x55, 0xaa)
)

func octopusRepo() *memRepo {
	repo := newMemRepo()
	repo.addCommit(commitA, treeT, 100)
	repo.addCommit(commitB, treeT, 200, commitA)
	repo.addCommit(commitC, treeT, 300, commitA, commitB)
	repo.addCommit(commitD, treeT, 400, commitA, commitB, commitC)
	repo.addObject(treeT, core.TypeTree)
	repo.addObject(oid(0x01), core.TypeChunk)
	return repo
}

func TestGenerate_OctopusMerge(t *testing.T) {
	res, g := mustGenerate(t, octopusRepo(), SHA256)

	assert.Equal(t, 4, res.Commits)
	assert.Equal(t, 2, res.OverflowEdges)
	require.Equal(t, 4, g.count())

	// 按 Hash 排序：D=0, B=1, C=2, A=3
	for i, h := range []types.Hash{commitD, commitB, commitC, commitA} {
		assert.Equal(t, raw(t, h), g.oid(i), "dense id %d", i)
	}

	tree, p1, p2, _, lo := g.record(3) // A
	assert.Equal(t, raw(t, treeT), tree)
	assert.Equal(t, parentNone, p1)
	assert.Equal(t, parentNone, p2)
	assert.Equal(t, uint32(100), lo)

	_, p1, p2, _, _ = g.record(1) // B
	assert.Equal(t, uint32(3), p1)
	assert.Equal(t, parentNone, p2)

	_, p1, p2, _, _ = g.record(2) // C
	assert.Equal(t, uint32(3), p1)
	assert.Equal(t, uint32(1), p2)

	_, p1, p2, _, _ = g.record(0) // D
	assert.Equal(t, uint32(3), p1, "first listed parent is A")
	assert.Equal(t, overflowNeeded|0, p2)

	// D 的其余两个父节点按原始顺序写入 EDGE，最后一项带结束标记
	require.Equal(t, 2, g.edgeCount())
	assert.Equal(t, uint32(1), g.edge(0))
	assert.Equal(t, lastEdge|2, g.edge(1))
}

func TestGenerate_MultipleOctopusMerges(t *testing.T) {
	a, b, c, d := oid(0x10), oid(0x20), oid(0x30), oid(0x40)
	m1, m2 := oid(0x80), oid(0x90)

	repo := newMemRepo()
	for _, h := range []types.Hash{a, b, c, d} {
		repo.addCommit(h, treeT, 1)
	}
	repo.addCommit(m1, treeT, 2, a, b, c, d)
	repo.addCommit(m2, treeT, 3, d, c, b)

	res, g := mustGenerate(t, repo, SHA256)
	assert.Equal(t, 6, res.Commits)
	assert.Equal(t, 5, res.OverflowEdges)

	// a=0 b=1 c=2 d=3 m1=4 m2=5
	_, p1, p2, _, _ := g.record(4)
	assert.Equal(t, uint32(0), p1)
	assert.Equal(t, overflowNeeded|0, p2)

	// m2 的溢出列表紧跟在 m1 的 3 项之后
	_, p1, p2, _, _ = g.record(5)
	assert.Equal(t, uint32(3), p1)
	assert.Equal(t, overflowNeeded|3, p2)

	want := []uint32{1, 2, lastEdge | 3, 2, lastEdge | 1}
	require.Equal(t, len(want), g.edgeCount())
	for i, v := range want {
		assert.Equal(t, v, g.edge(i), "edge %d", i)
	}
}

func TestGenerate_MissingParent(t *testing.T) {
	repo := newMemRepo()
	ghost := oid(0x77)
	commitE := oid(0x40)
	repo.addCommit(commitE, treeT, 1, ghost)

	res, g := mustGenerate(t, repo, SHA256)
	assert.Equal(t, 1, res.Commits)

	_, p1, p2, _, _ := g.record(0)
	assert.Equal(t, parentMissing, p1)
	assert.Equal(t, parentNone, p2)

	report, err := VerifyFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, res.Checksum, report.Checksum)
}

func TestGenerate_MissingParentInOverflow(t *testing.T) {
	repo := newMemRepo()
	repo.addCommit(commitA, treeT, 1)
	repo.addCommit(commitD, treeT, 2, commitA, oid(0x66), oid(0x67))

	_, g := mustGenerate(t, repo, SHA256)
	require.Equal(t, 2, g.edgeCount())
	assert.Equal(t, parentMissing, g.edge(0))
	assert.Equal(t, lastEdge|parentMissing, g.edge(1))
}

func TestGenerate_Deterministic(t *testing.T) {
	first := octopusRepo()

	// 同一组 Commit，不同的枚举顺序，外加重复项
	second := octopusRepo()
	for i, j := 0, len(second.objects)-1; i < j; i, j = i+1, j-1 {
		second.objects[i], second.objects[j] = second.objects[j], second.objects[i]
	}
	second.addObject(commitC, core.TypeCommit)
	second.addObject(commitA, core.TypeCommit)

	res1, _ := mustGenerate(t, first, SHA256)
	res2, _ := mustGenerate(t, second, SHA256)

	assert.Equal(t, res1.Name, res2.Name)
	assert.Equal(t, res1.Checksum, res2.Checksum)

	b1, err := os.ReadFile(res1.Path)
	require.NoError(t, err)
	b2, err := os.ReadFile(res2.Path)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(b1, b2))

	// 重复项只解析一次
	assert.Equal(t, 4, second.resolved)
}

func TestGenerate_ContentAddressedName(t *testing.T) {
	res, g := mustGenerate(t, octopusRepo(), SHA256)

	assert.Equal(t, FileName(g.checksum), res.Name)
	assert.Equal(t, "graph-"+res.Checksum+".graph", filepath.Base(res.Path))

	info, err := os.Stat(res.Path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o444), info.Mode().Perm())

	assert.Empty(t, tempFiles(t, filepath.Dir(res.Path)))
}

func TestGenerate_ChunkTable(t *testing.T) {
	t.Run("Without Overflow", func(t *testing.T) {
		repo := newMemRepo()
		repo.addCommit(commitA, treeT, 1)
		repo.addCommit(commitB, treeT, 2, commitA)

		res, g := mustGenerate(t, repo, SHA256)
		buf, err := os.ReadFile(res.Path)
		require.NoError(t, err)

		assert.Equal(t, []byte("CGPH"), buf[:4])
		assert.Equal(t, []byte{1, byte(SHA256), 3, 0}, buf[4:8])
		assert.Equal(t, []uint32{chunkOIDFanout, chunkOIDLookup, chunkCommitData}, g.chunkIDs)

		// 第一个 chunk 紧跟在 (3+1) 项 chunk 表之后
		first := uint64(8 + 12*4)
		assert.Equal(t, first, be64(buf[12:]))
		assert.Equal(t, first+1024, be64(buf[24:]))
		assert.Equal(t, first+1024+2*32, be64(buf[36:]))
		// 结束项 tag 为 0
		assert.Equal(t, []byte{0, 0, 0, 0}, buf[44:48])
		assert.Equal(t, uint64(len(buf)-32), be64(buf[48:]))
	})

	t.Run("With Overflow", func(t *testing.T) {
		res, g := mustGenerate(t, octopusRepo(), SHA256)
		buf, err := os.ReadFile(res.Path)
		require.NoError(t, err)

		assert.Equal(t, byte(4), buf[6])
		assert.Equal(t, []uint32{chunkOIDFanout, chunkOIDLookup, chunkCommitData, chunkLargeEdges}, g.chunkIDs)
		assert.Equal(t, uint64(8+12*5), be64(buf[12:]))

		// 文件总长 = header + 表 + fanout + N*hash + N*(hash+16) + edges + trailer
		want := 8 + 12*5 + 1024 + 4*32 + 4*(32+16) + 2*4 + 32
		assert.Len(t, buf, want)
	})
}

func TestGenerate_TimestampPacking(t *testing.T) {
	repo := newMemRepo()
	big := oid(0x01)
	huge := oid(0x02)
	repo.addCommit(big, treeT, 1<<33+42)
	// 超过 34 位的部分被截断
	repo.addCommit(huge, treeT, 1<<34|1<<32|5)

	_, g := mustGenerate(t, repo, SHA256)

	_, _, _, hi, lo := g.record(0)
	assert.Equal(t, uint32(2), hi)
	assert.Equal(t, uint32(42), lo)

	_, _, _, hi, lo = g.record(1)
	assert.Equal(t, uint32(1), hi)
	assert.Equal(t, uint32(5), lo)
}

func TestGenerate_SHA1(t *testing.T) {
	repo := newMemRepo()
	a, b := sha1oid(0x30), sha1oid(0x10)
	tree := sha1oid(0xee)
	repo.addCommit(a, tree, 10)
	repo.addCommit(b, tree, 20, a)

	res, g := mustGenerate(t, repo, SHA1)
	assert.Equal(t, SHA1, g.algo)
	assert.Len(t, g.checksum, 20)
	assert.Len(t, res.Checksum, 40)

	_, p1, _, _, _ := g.record(0)
	assert.Equal(t, uint32(1), p1)
}

func TestGenerate_HashWidthMismatch(t *testing.T) {
	repo := octopusRepo()
	gen := NewGenerator(repo, repo, Config{Dir: t.TempDir(), Algo: SHA1})

	_, err := gen.Generate(context.Background())
	assert.ErrorIs(t, err, ErrHashWidth)
}

func TestGenerate_ResolveFailureIsFatal(t *testing.T) {
	repo := octopusRepo()
	repo.resolveErr[commitC] = errors.New("corrupt object")
	dir := filepath.Join(t.TempDir(), "info")

	gen := NewGenerator(repo, repo, Config{Dir: dir})
	_, err := gen.Generate(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCommitParse)
	assert.Contains(t, err.Error(), "corrupt object")

	// 没有任何产物
	assert.Empty(t, graphFiles(t, dir))
	assert.Empty(t, tempFiles(t, dir))
}

func TestGenerate_DirIsFile(t *testing.T) {
	parent := t.TempDir()
	dir := filepath.Join(parent, "info")
	require.NoError(t, os.WriteFile(dir, []byte("not a dir"), 0o644))

	repo := octopusRepo()
	gen := NewGenerator(repo, repo, Config{Dir: dir})
	_, err := gen.Generate(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create commit-graph dir")
	assert.Empty(t, graphFiles(t, parent))
	assert.Empty(t, tempFiles(t, parent))
}

func TestGenerate_PublishFailureLeavesNoTemp(t *testing.T) {
	// 先算出内容寻址的文件名
	res, _ := mustGenerate(t, octopusRepo(), SHA256)

	// 目标名被一个非空目录占住，Rename 必然失败
	dir := t.TempDir()
	target := filepath.Join(dir, res.Name)
	require.NoError(t, os.Mkdir(target, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(target, "keep"), []byte("x"), 0o644))

	repo := octopusRepo()
	gen := NewGenerator(repo, repo, Config{Dir: dir})
	_, err := gen.Generate(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to publish commit-graph")
	assert.Empty(t, tempFiles(t, dir))

	info, err := os.Stat(target)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestGenerate_EmptyRepository(t *testing.T) {
	repo := newMemRepo()
	repo.addObject(oid(0x01), core.TypeChunk)

	res, g := mustGenerate(t, repo, SHA256)
	assert.Equal(t, 0, res.Commits)
	assert.Equal(t, 0, g.count())
	assert.Equal(t, uint32(0), g.fanoutAt(255))
}

func TestGenerate_OverwritesSameContent(t *testing.T) {
	dir := t.TempDir()
	repo := octopusRepo()
	gen := NewGenerator(repo, repo, Config{Dir: dir})

	res1, err := gen.Generate(context.Background())
	require.NoError(t, err)
	res2, err := gen.Generate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, res1.Path, res2.Path)
	assert.Len(t, graphFiles(t, dir), 1)
}

func TestVerifyFile_DetectsCorruption(t *testing.T) {
	res, _ := mustGenerate(t, octopusRepo(), SHA256)
	buf, err := os.ReadFile(res.Path)
	require.NoError(t, err)

	corrupt := filepath.Join(t.TempDir(), "corrupt.graph")

	t.Run("Flipped Byte", func(t *testing.T) {
		b := bytes.Clone(buf)
		b[200] ^= 0xff
		require.NoError(t, os.WriteFile(corrupt, b, 0o644))

		_, err := VerifyFile(corrupt)
		assert.ErrorIs(t, err, ErrChecksumMismatch)
	})

	t.Run("Bad Signature", func(t *testing.T) {
		b := bytes.Clone(buf)
		copy(b, "XXXX")
		require.NoError(t, os.WriteFile(corrupt, b, 0o644))

		_, err := VerifyFile(corrupt)
		assert.ErrorIs(t, err, ErrMalformedGraph)
	})

	t.Run("Truncated", func(t *testing.T) {
		require.NoError(t, os.WriteFile(corrupt, buf[:6], 0o644))

		_, err := VerifyFile(corrupt)
		assert.ErrorIs(t, err, ErrMalformedGraph)
	})

	t.Run("Valid", func(t *testing.T) {
		report, err := VerifyFile(res.Path)
		require.NoError(t, err)
		assert.Equal(t, SHA256, report.Algo)
		assert.Equal(t, 4, report.Commits)
		assert.Equal(t, 2, report.OverflowEdges)
		assert.Equal(t, []string{"OIDF", "OIDL", "CDAT", "EDGE"}, report.Chunks)
	})
}

func be64(b []byte) uint64 {
	var v uint64
	for _, x := range b[:8] {
		v = v<<8 | uint64(x)
	}
	return v
}
