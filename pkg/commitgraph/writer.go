package commitgraph

import (
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

const (
	tempPattern = "tmp_graph_*"
	fileMode    = 0o444
)

// Result 描述一次成功发布的 commit-graph 文件
type Result struct {
	Name          string // graph-<checksum>.graph
	Path          string
	Checksum      string
	Commits       int
	OverflowEdges int
}

// Writer 把 CommitList 编码并原子地发布到 Dir 下
type Writer struct {
	dir    string
	logger *slog.Logger
}

func NewWriter(dir string, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{dir: dir, logger: logger}
}

// FileName 返回校验和对应的发布文件名
func FileName(checksum []byte) string {
	return "graph-" + hex.EncodeToString(checksum) + ".graph"
}

// Write 先写临时文件，fsync 后 Rename 成以校验和命名的最终文件
// 任何一步失败都不会在最终路径上留下文件
func (w *Writer) Write(l *CommitList) (res *Result, err error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create commit-graph dir: %w", err)
	}

	f, err := os.CreateTemp(w.dir, tempPattern)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmp)
		}
	}()

	hasher := l.algo.New()
	if err = encode(io.MultiWriter(f, hasher), l); err != nil {
		return nil, fmt.Errorf("failed to write commit-graph: %w", err)
	}

	// trailer 本身不参与校验和计算
	sum := hasher.Sum(nil)
	if _, err = f.Write(sum); err != nil {
		return nil, fmt.Errorf("failed to write trailer: %w", err)
	}

	if err = f.Sync(); err != nil {
		return nil, fmt.Errorf("fsync temp file: %w", err)
	}
	if err = f.Chmod(fileMode); err != nil {
		return nil, fmt.Errorf("chmod temp file: %w", err)
	}
	if err = f.Close(); err != nil {
		return nil, fmt.Errorf("close temp file: %w", err)
	}

	name := FileName(sum)
	final := filepath.Join(w.dir, name)
	if err = os.Rename(tmp, final); err != nil {
		return nil, fmt.Errorf("failed to publish commit-graph: %w", err)
	}

	w.logger.Debug("commit-graph published",
		"path", final,
		"commits", l.Len(),
		"overflow_edges", l.overflowEdges,
	)

	return &Result{
		Name:          name,
		Path:          final,
		Checksum:      hex.EncodeToString(sum),
		Commits:       l.Len(),
		OverflowEdges: l.overflowEdges,
	}, nil
}
