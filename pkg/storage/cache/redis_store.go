package cache

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"tensorvault/pkg/core"
	"tensorvault/pkg/storage"
	"tensorvault/pkg/types"

	"github.com/redis/go-redis/v9"
)

// CachedStore 是一个装饰器，它为底层的 storage.Store 添加 Redis 缓存层
// 缓存两类元数据：对象是否存在、对象类型
// 对象不可变，缓存内容不会变成脏数据；但两类 Key 都带 TTL，到期后由 Redis 淘汰，下次访问再回填
type CachedStore struct {
	backend storage.Store // 被装饰的底层存储 (如 S3)
	client  *redis.Client // Redis 客户端
	ttl     time.Duration // 缓存过期时间 (例如 24h)
}

type Config struct {
	RedisURL string        // 标准连接字符串: redis://<user>:<password>@<host>:<port>/<db>
	TTL      time.Duration // 过期时间
}

func NewCachedStore(backend storage.Store, cfg Config) (*CachedStore, error) {
	// 解析 URL
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	// Fail-fast 连接检查
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &CachedStore{
		backend: backend,
		client:  client,
		ttl:     cfg.TTL,
	}, nil
}

// cacheKey 生成 Redis Key，添加前缀防止冲突
func (s *CachedStore) cacheKey(hash types.Hash) string {
	return "tv:obj:" + string(hash)
}

// typeKey 记录对象类型，与 cacheKey 使用不同前缀
func (s *CachedStore) typeKey(hash types.Hash) string {
	return "tv:type:" + string(hash)
}

// Has 优先查 Redis，实现毫秒级去重
func (s *CachedStore) Has(ctx context.Context, hash types.Hash) (bool, error) {
	key := s.cacheKey(hash)

	// 1. 查 Redis
	// Exists 返回 1 表示存在，0 表示不存在
	val, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		// 架构决策：缓存故障降级 (Cache Failure Fallback)
		// Redis 挂了时不让整个程序崩溃，退化为无缓存模式，直接查底层存储
		slog.Warn("redis exists failed", slog.String("key", key), slog.Any("err", err))
	} else if val > 0 {
		// Cache Hit! 无需访问底层存储
		return true, nil
	}

	// 2. 缓存未命中 (Cache Miss)，查底层存储
	found, err := s.backend.Has(ctx, hash)
	if err != nil {
		return false, err
	}

	// 3. 缓存回填 (Cache Fill)
	if found {
		// 异步写入 Redis，不阻塞主流程
		// 使用 context.Background() 确保即使上层 ctx 取消，回填也能完成
		go func() {
			fillCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			s.client.Set(fillCtx, key, "1", s.ttl)
		}()
	}

	return found, nil
}

// Put 上传对象。利用 Has 的缓存能力进行预检。
func (s *CachedStore) Put(ctx context.Context, obj core.Object) error {
	// 1. 利用上面的 Has 方法检查存在性
	// 如果 Redis 里有，这一步耗时 < 1ms，直接跳过上传
	exists, err := s.Has(ctx, obj.ID())
	if err != nil {
		return err
	}
	if exists {
		return nil // 幂等性：已存在
	}

	// 2. 穿透到底层存储 (上传 S3)
	if err := s.backend.Put(ctx, obj); err != nil {
		return err
	}

	// 3. 写入缓存
	// 只有底层写入成功了，才写 Redis；这里的错误不影响主流程
	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.cacheKey(obj.ID()), "1", s.ttl)
	pipe.Set(ctx, s.typeKey(obj.ID()), string(obj.Type()), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		slog.Warn("redis fill failed", slog.String("hash", obj.ID().String()), slog.Any("err", err))
	}
	return nil
}

// TypeOf 实现 storage.Classifier
// commit-graph 枚举时需要对每个对象做类型判断，命中缓存就不必下载对象内容
func (s *CachedStore) TypeOf(ctx context.Context, hash types.Hash) (core.ObjectType, error) {
	key := s.typeKey(hash)

	// 1. 查 Redis
	val, err := s.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		return core.ObjectType(val), nil
	case err != redis.Nil:
		slog.Warn("redis get failed", slog.String("key", key), slog.Any("err", err))
	}

	// 2. 未命中，读对象头部判断类型
	typ, err := storage.ReadType(ctx, s.backend, hash)
	if err != nil {
		return "", err
	}

	// 3. 回填类型缓存
	if err := s.client.Set(ctx, key, string(typ), s.ttl).Err(); err != nil {
		slog.Warn("redis set failed", slog.String("key", key), slog.Any("err", err))
	}
	return typ, nil
}

// Get 透传 - 我们不缓存 Blob 数据
// 原因：AI Chunk 可能很大，Redis 内存极其宝贵，只存元数据 (Existence / Type)
func (s *CachedStore) Get(ctx context.Context, hash types.Hash) (io.ReadCloser, error) {
	return s.backend.Get(ctx, hash)
}

// ExpandHash 透传
func (s *CachedStore) ExpandHash(ctx context.Context, short types.HashPrefix) (types.Hash, error) {
	return s.backend.ExpandHash(ctx, short)
}

// ForEach 透传
func (s *CachedStore) ForEach(ctx context.Context, fn func(hash types.Hash) error) error {
	return s.backend.ForEach(ctx, fn)
}

// ApproxObjectCount 透传给支持估算的底层存储
func (s *CachedStore) ApproxObjectCount(ctx context.Context) (int, error) {
	if e, ok := s.backend.(storage.Estimator); ok {
		return e.ApproxObjectCount(ctx)
	}
	return 0, nil
}

// Backend 返回被装饰的底层存储
func (s *CachedStore) Backend() storage.Store { return s.backend }

// Close 关闭 Redis 连接
func (s *CachedStore) Close() error {
	return s.client.Close()
}
