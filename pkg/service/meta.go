package service

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	tvrpc "tensorvault/pkg/api/tvrpc/v1"
	"tensorvault/pkg/app"
	"tensorvault/pkg/commitgraph"
	"tensorvault/pkg/meta"
	"tensorvault/pkg/refs"
	"tensorvault/pkg/types"

	"golang.org/x/sync/singleflight"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type MetaService struct {
	tvrpc.UnimplementedMetaServiceServer
	app *app.App

	// 同一时刻的多个 WriteCommitGraph 请求合并成一次写入
	graphs singleflight.Group
}

func NewMetaService(application *app.App) *MetaService {
	return &MetaService{app: application}
}

// GetHead 处理获取当前分支 HEAD 的请求
func (s *MetaService) GetHead(ctx context.Context, req *tvrpc.GetHeadRequest) (*tvrpc.GetHeadResponse, error) {
	hash, ver, err := s.app.Refs.GetHead(ctx)
	if err != nil {
		if errors.Is(err, refs.ErrNoHead) {
			return &tvrpc.GetHeadResponse{Exists: false}, nil
		}
		return nil, status.Errorf(codes.Internal, "failed to read HEAD: %v", err)
	}

	return &tvrpc.GetHeadResponse{
		Exists:  true,
		Hash:    hash.String(),
		Version: ver,
	}, nil
}

// Commit 处理提交请求
func (s *MetaService) Commit(ctx context.Context, req *tvrpc.CommitRequest) (*tvrpc.CommitResponse, error) {
	// A. 校验
	if err := validateHash("tree_hash", req.TreeHash); err != nil {
		return nil, err
	}
	// 显式传空列表表示根提交，nil 表示接在 HEAD 之后
	var parents []types.Hash
	if req.ParentHashes != nil {
		parents = make([]types.Hash, 0, len(req.ParentHashes))
	}
	for _, p := range req.ParentHashes {
		if err := validateHash("parent_hashes", p); err != nil {
			return nil, err
		}
		parents = append(parents, types.Hash(p))
	}
	if strings.TrimSpace(req.Author) == "" {
		return nil, status.Error(codes.InvalidArgument, "author: value is required")
	}

	// B. 编排
	c, err := s.app.CreateCommit(ctx, types.Hash(req.TreeHash), parents, req.Author, req.Message)
	if errors.Is(err, refs.ErrStaleHead) {
		return nil, status.Errorf(codes.Aborted, "concurrent update detected (CAS failed): %v", err)
	}
	if err != nil {
		return nil, status.Errorf(codes.Internal, "commit failed: %v", err)
	}

	slog.Info("new commit", "hash", c.ID(), "author", req.Author)
	return &tvrpc.CommitResponse{CommitHash: c.ID().String()}, nil
}

// WriteCommitGraph 生成一个完整快照的 commit-graph 文件
func (s *MetaService) WriteCommitGraph(ctx context.Context, req *tvrpc.WriteCommitGraphRequest) (*tvrpc.WriteCommitGraphResponse, error) {
	switch req.Source {
	case "", app.SourceStore, app.SourceMeta:
	default:
		return nil, status.Errorf(codes.InvalidArgument, "source: unsupported value %q", req.Source)
	}
	if _, err := commitgraph.ParseHashAlgo(req.Hash); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "hash: %v", err)
	}

	opts := app.CommitGraphOptions{Source: req.Source, Hash: req.Hash}
	key := opts.Source + "/" + opts.Hash

	v, err, shared := s.graphs.Do(key, func() (any, error) {
		// 不跟随单个请求取消，其他等待者还需要这个结果
		return s.app.WriteCommitGraph(context.WithoutCancel(ctx), opts)
	})
	if err != nil {
		return nil, graphError(err)
	}
	if shared {
		slog.Debug("commit-graph write shared", "key", key)
	}

	res := v.(*commitgraph.Result)
	return &tvrpc.WriteCommitGraphResponse{
		Name:          res.Name,
		Checksum:      res.Checksum,
		Commits:       int64(res.Commits),
		OverflowEdges: int64(res.OverflowEdges),
	}, nil
}

// VerifyCommitGraph 校验指定的或最近一次发布的 commit-graph 文件
func (s *MetaService) VerifyCommitGraph(ctx context.Context, req *tvrpc.VerifyCommitGraphRequest) (*tvrpc.VerifyCommitGraphResponse, error) {
	name := req.Name
	if name == "" {
		latest, err := s.app.Meta.LatestGraph(ctx)
		if errors.Is(err, meta.ErrGraphNotFound) {
			return nil, status.Error(codes.NotFound, err.Error())
		}
		if err != nil {
			return nil, status.Errorf(codes.Internal, "failed to look up commit-graph: %v", err)
		}
		name = latest.Name
	}
	// 只允许访问 info 目录下的文件
	if name != filepath.Base(name) {
		return nil, status.Errorf(codes.InvalidArgument, "name: %q is not a file name", name)
	}

	report, err := commitgraph.VerifyFile(filepath.Join(s.app.CommitGraphDir(), name))
	if err != nil {
		return nil, graphError(err)
	}

	return &tvrpc.VerifyCommitGraphResponse{
		Name:          name,
		Algo:          report.Algo.String(),
		Checksum:      report.Checksum,
		Commits:       int64(report.Commits),
		OverflowEdges: int64(report.OverflowEdges),
		Chunks:        report.Chunks,
	}, nil
}

func validateHash(field, h string) error {
	if !types.Hash(h).IsValid() {
		return status.Errorf(codes.InvalidArgument, "%s: %q is not a valid hash", field, h)
	}
	return nil
}

// graphError 把 commit-graph 错误映射成 gRPC 状态码
func graphError(err error) error {
	switch {
	case errors.Is(err, commitgraph.ErrMalformedGraph),
		errors.Is(err, commitgraph.ErrChecksumMismatch):
		return status.Errorf(codes.DataLoss, "%v", err)
	case errors.Is(err, commitgraph.ErrCommitParse),
		errors.Is(err, commitgraph.ErrHashWidth),
		errors.Is(err, commitgraph.ErrTooManyCommits):
		return status.Errorf(codes.FailedPrecondition, "%v", err)
	case errors.Is(err, fs.ErrNotExist):
		return status.Errorf(codes.NotFound, "%v", err)
	default:
		return status.Errorf(codes.Internal, "commit-graph: %v", err)
	}
}
