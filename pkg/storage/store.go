package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"tensorvault/pkg/core"
	"tensorvault/pkg/types"
)

var (
	ErrNotFound      = errors.New("object not found")
	ErrAmbiguousHash = errors.New("ambiguous hash prefix")
)

// Store defines the interface for a storage backend.
// Implementations can be local disk, cloud storage, or in-memory storage.
type Store interface {
	// Put 将一个核心对象持久化 (幂等)
	Put(ctx context.Context, obj core.Object) error

	// Get 根据 Hash 读取原始数据
	// 返回 io.ReadCloser 以支持大对象的流式读取
	Get(ctx context.Context, hash types.Hash) (io.ReadCloser, error)

	// Has 检查对象是否存在 (用于去重逻辑)
	Has(ctx context.Context, hash types.Hash) (bool, error)

	// ExpandHash 把短哈希扩展为完整 Hash
	ExpandHash(ctx context.Context, short types.HashPrefix) (types.Hash, error)

	// ForEach 枚举存储中的每一个对象
	// fn 返回错误时立即停止枚举并原样返回该错误
	ForEach(ctx context.Context, fn func(hash types.Hash) error) error
}

// Estimator 是可选接口：快速估算对象总数，仅用于预分配
// 返回 0 表示无法估算
type Estimator interface {
	ApproxObjectCount(ctx context.Context) (int, error)
}

// Classifier 判断对象类型
type Classifier interface {
	TypeOf(ctx context.Context, hash types.Hash) (core.ObjectType, error)
}

// TypeOf 读取对象内容并识别其类型
// 如果 store 自带分类能力 (例如带类型缓存的 CachedStore)，优先使用
func TypeOf(ctx context.Context, store Store, hash types.Hash) (core.ObjectType, error) {
	if c, ok := store.(Classifier); ok {
		return c.TypeOf(ctx, hash)
	}
	return ReadType(ctx, store, hash)
}

// ReadType 总是从 store 读取原始数据来识别类型
func ReadType(ctx context.Context, store Store, hash types.Hash) (core.ObjectType, error) {
	data, err := ReadAll(ctx, store, hash)
	if err != nil {
		return "", err
	}
	return core.PeekType(data), nil
}

// ReadAll 读取完整对象
func ReadAll(ctx context.Context, store Store, hash types.Hash) ([]byte, error) {
	reader, err := store.Get(ctx, hash)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", hash, err)
	}
	return data, nil
}
