package commitgraph

import (
	"context"
	"fmt"

	"tensorvault/pkg/core"
	"tensorvault/pkg/storage"
	"tensorvault/pkg/types"
)

// Enumerator 枚举对象存储中的每个对象及其类型
type Enumerator interface {
	ForEachObject(ctx context.Context, visit func(hash types.Hash, typ core.ObjectType) error) error
}

// CommitInfo 是写 commit-graph 需要的 Commit 字段子集
type CommitInfo struct {
	Tree      types.Hash
	Parents   []types.Hash // 保持原始顺序
	Timestamp int64
}

// Resolver 根据 Hash 解析 Commit 元数据
type Resolver interface {
	ResolveCommit(ctx context.Context, hash types.Hash) (*CommitInfo, error)
}

// StoreSource 把 storage.Store 适配为 Enumerator
// 类型判断走 storage.TypeOf，带类型缓存的 Store 可以跳过下载对象内容
type StoreSource struct {
	Store storage.Store
}

func (s StoreSource) ForEachObject(ctx context.Context, visit func(types.Hash, core.ObjectType) error) error {
	return s.Store.ForEach(ctx, func(hash types.Hash) error {
		typ, err := storage.TypeOf(ctx, s.Store, hash)
		if err != nil {
			return fmt.Errorf("failed to classify object %s: %w", hash, err)
		}
		return visit(hash, typ)
	})
}

// ApproxObjectCount 透传给底层存储 (如果支持)
func (s StoreSource) ApproxObjectCount(ctx context.Context) (int, error) {
	if e, ok := s.Store.(storage.Estimator); ok {
		return e.ApproxObjectCount(ctx)
	}
	return 0, nil
}

// StoreResolver 从对象存储读取并解码 Commit
type StoreResolver struct {
	Store storage.Store
}

func (r StoreResolver) ResolveCommit(ctx context.Context, hash types.Hash) (*CommitInfo, error) {
	data, err := storage.ReadAll(ctx, r.Store, hash)
	if err != nil {
		return nil, err
	}
	c, err := core.DecodeCommit(hash, data)
	if err != nil {
		return nil, err
	}
	return &CommitInfo{
		Tree:      c.TreeCid.Hash,
		Parents:   c.ParentHashes(),
		Timestamp: c.Timestamp,
	}, nil
}
