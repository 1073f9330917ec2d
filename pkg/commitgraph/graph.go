package commitgraph

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Config 控制一次 commit-graph 写入
type Config struct {
	Dir    string   // 输出目录，通常是 <objects>/info
	Algo   HashAlgo // 为 0 时使用 SHA256
	Logger *slog.Logger
}

// Generator 串起 枚举 -> 排序去重 -> 解析 -> 编码发布 四个阶段
type Generator struct {
	source   Enumerator
	resolver Resolver
	algo     HashAlgo
	writer   *Writer
	logger   *slog.Logger
}

func NewGenerator(source Enumerator, resolver Resolver, cfg Config) *Generator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	algo := cfg.Algo
	if algo == 0 {
		algo = SHA256
	}
	return &Generator{
		source:   source,
		resolver: resolver,
		algo:     algo,
		writer:   NewWriter(cfg.Dir, logger),
		logger:   logger,
	}
}

// Generate 生成一个完整快照的 commit-graph 文件
// 每次调用都从头枚举，不读取也不合并已有的 graph 文件
func (g *Generator) Generate(ctx context.Context) (*Result, error) {
	if !g.algo.Valid() {
		return nil, fmt.Errorf("unsupported hash algorithm %s", g.algo)
	}
	start := time.Now()

	oids, err := Collect(ctx, g.source, g.algo)
	if err != nil {
		return nil, err
	}
	g.logger.Debug("commit objects collected", "count", len(oids))

	list, err := Build(ctx, g.algo, oids, g.resolver)
	if err != nil {
		return nil, err
	}

	res, err := g.writer.Write(list)
	if err != nil {
		return nil, err
	}

	g.logger.Info("commit-graph generated",
		"commits", res.Commits,
		"checksum", res.Checksum,
		"duration", time.Since(start),
	)
	return res, nil
}
