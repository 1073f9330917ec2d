// pkg/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"tensorvault/pkg/commitgraph"
	"tensorvault/pkg/core"
	"tensorvault/pkg/meta"
	"tensorvault/pkg/refs"
	"tensorvault/pkg/storage"
	"tensorvault/pkg/storage/cache"
	"tensorvault/pkg/storage/disk"
	"tensorvault/pkg/storage/s3"
	"tensorvault/pkg/types"

	"github.com/spf13/viper"
)

// commit-graph 的数据源
const (
	SourceStore = "store" // 扫描对象存储
	SourceMeta  = "meta"  // 读取元数据库中的 commits 投影
)

// App 是整个应用程序的依赖容器 (Dependency Container)
// 它持有所有“单例”服务
type App struct {
	Store    storage.Store
	Meta     *meta.Repository
	Refs     *refs.Manager
	Logger   *slog.Logger
	RepoPath string

	closers []io.Closer
}

// NewApp 是工厂函数，负责组装这一台机器
// 它遵循 Viper 的配置，但不知道具体的 CLI 命令
func NewApp(ctx context.Context) (*App, error) {
	// 1. 获取仓库根路径 (Single Source of Truth)
	storePath := viper.GetString("storage.path")
	if storePath == "" {
		return nil, fmt.Errorf("storage path not set")
	}
	// storePath: .../.tv/objects
	// repoPath:  .../.tv
	repoPath := filepath.Dir(storePath)

	a := &App{
		Logger:   slog.Default(),
		RepoPath: repoPath,
	}

	// 2. 初始化存储层 (Dependency Injection)
	store, err := initStore(ctx, repoPath)
	if err != nil {
		return nil, fmt.Errorf("failed to init storage: %w", err)
	}
	a.Store = store
	if c, ok := store.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	// 3. 元数据库 + 引用
	db, err := initMeta(ctx, repoPath)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to init metadata: %w", err)
	}
	a.closers = append(a.closers, db)
	a.Meta = meta.NewRepository(db)
	a.Refs = refs.NewManager(a.Meta)

	return a, nil
}

// Close 释放 Redis、数据库等连接
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// initStore 根据 storage.type 选择后端，配置了 cache.redis_url 时再包一层缓存
func initStore(ctx context.Context, repoPath string) (storage.Store, error) {
	var backend storage.Store

	switch storeType := viper.GetString("storage.type"); storeType {
	case "", "disk":
		path := viper.GetString("storage.path")
		if path == "" {
			path = filepath.Join(repoPath, "objects")
		}
		adapter, err := disk.NewAdapter(path)
		if err != nil {
			return nil, err
		}
		backend = adapter

	case "s3":
		cfg := s3.Config{
			Endpoint:        viper.GetString("storage.s3.endpoint"),
			Region:          viper.GetString("storage.s3.region"),
			Bucket:          viper.GetString("storage.s3.bucket"),
			AccessKeyID:     viper.GetString("storage.s3.access_key"),
			SecretAccessKey: viper.GetString("storage.s3.secret_key"),
		}
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("s3 bucket is required")
		}
		adapter, err := s3.NewAdapter(ctx, cfg)
		if err != nil {
			return nil, err
		}
		backend = adapter

	default:
		return nil, fmt.Errorf("unsupported storage type: %s", storeType)
	}

	redisURL := viper.GetString("cache.redis_url")
	if redisURL == "" {
		return backend, nil
	}
	cached, err := cache.NewCachedStore(backend, cache.Config{
		RedisURL: redisURL,
		TTL:      viper.GetDuration("cache.ttl"),
	})
	if err != nil {
		return nil, err
	}
	return cached, nil
}

func initMeta(ctx context.Context, repoPath string) (*meta.DB, error) {
	cfg := meta.Config{
		Type:     viper.GetString("database.type"),
		Path:     viper.GetString("database.path"),
		Host:     viper.GetString("database.host"),
		Port:     viper.GetInt("database.port"),
		User:     viper.GetString("database.user"),
		Password: viper.GetString("database.password"),
		DBName:   viper.GetString("database.dbname"),
		SSLMode:  viper.GetString("database.sslmode"),
	}
	if cfg.Path == "" {
		cfg.Path = filepath.Join(repoPath, "meta.db")
	}
	return meta.NewDB(ctx, cfg)
}

// CreateCommit 写入 Commit 对象、建立索引并移动 HEAD
// parents 为 nil 时以当前 HEAD 作为唯一父节点 (空仓库则为根提交)
func (a *App) CreateCommit(ctx context.Context, tree types.Hash, parents []types.Hash, author, msg string) (*core.Commit, error) {
	if !tree.IsValid() {
		return nil, fmt.Errorf("invalid tree hash: %q", tree)
	}
	for _, p := range parents {
		if !p.IsValid() {
			return nil, fmt.Errorf("invalid parent hash: %q", p)
		}
	}

	head, ver, err := a.Refs.GetHead(ctx)
	if err != nil && !errors.Is(err, refs.ErrNoHead) {
		return nil, err
	}
	if parents == nil && !head.IsZero() {
		parents = []types.Hash{head}
	}

	c, err := core.NewCommit(tree, parents, author, msg)
	if err != nil {
		return nil, fmt.Errorf("failed to create commit object: %w", err)
	}

	// 1. 持久化对象
	if err := a.Store.Put(ctx, c); err != nil {
		return nil, fmt.Errorf("storage backend failed: %w", err)
	}
	// 2. 索引元数据
	if err := a.Meta.IndexCommit(ctx, c); err != nil {
		return nil, fmt.Errorf("metadata indexing failed: %w", err)
	}
	// 3. 更新引用 (CAS)
	if err := a.Refs.UpdateHead(ctx, c.ID(), ver); err != nil {
		return nil, err
	}

	a.Logger.Debug("commit created", "hash", c.ID(), "parents", len(parents))
	return c, nil
}

// CommitGraphDir 返回 commit-graph 的输出目录
// 磁盘存储时是 <storage.path>/info；对象存储在 S3 上时退回到本地仓库目录下
func (a *App) CommitGraphDir() string {
	store := a.Store
	if c, ok := store.(*cache.CachedStore); ok {
		store = c.Backend()
	}
	if d, ok := store.(*disk.Adapter); ok {
		return filepath.Join(d.Root(), "info")
	}
	return filepath.Join(a.RepoPath, "objects", "info")
}

// CommitGraphOptions 是一次写入的可选参数，零值表示使用配置文件
type CommitGraphOptions struct {
	Source string
	Hash   string
}

// WriteCommitGraph 按配置选择数据源，生成 commit-graph 并记录到元数据库
func (a *App) WriteCommitGraph(ctx context.Context, opts CommitGraphOptions) (*commitgraph.Result, error) {
	source := opts.Source
	if source == "" {
		source = viper.GetString("commitgraph.source")
	}
	hashName := opts.Hash
	if hashName == "" {
		hashName = viper.GetString("commitgraph.hash")
	}
	algo, err := commitgraph.ParseHashAlgo(hashName)
	if err != nil {
		return nil, err
	}

	var enum commitgraph.Enumerator
	var resolver commitgraph.Resolver
	switch source {
	case "", SourceStore:
		source = SourceStore
		enum = commitgraph.StoreSource{Store: a.Store}
		resolver = commitgraph.StoreResolver{Store: a.Store}
	case SourceMeta:
		enum, resolver = a.Meta, a.Meta
	default:
		return nil, fmt.Errorf("unsupported commit-graph source: %s", source)
	}

	gen := commitgraph.NewGenerator(enum, resolver, commitgraph.Config{
		Dir:    a.CommitGraphDir(),
		Algo:   algo,
		Logger: a.Logger.With("source", source),
	})
	res, err := gen.Generate(ctx)
	if err != nil {
		return nil, err
	}

	// 文件已经发布，记录失败只影响审计，不影响结果
	if err := a.Meta.RecordGraph(ctx, res, algo, source); err != nil {
		a.Logger.Warn("failed to record commit-graph", "err", err)
	}
	return res, nil
}
