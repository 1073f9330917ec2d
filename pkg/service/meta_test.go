package service

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	tvrpc "tensorvault/pkg/api/tvrpc/v1"
	"tensorvault/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestMetaService_GetHead(t *testing.T) {
	a := setupTestApp(t)
	svc := NewMetaService(a)
	ctx := context.Background()

	// Case 1: 空仓库
	resp, err := svc.GetHead(ctx, &tvrpc.GetHeadRequest{})
	require.NoError(t, err)
	assert.False(t, resp.Exists)
	assert.Equal(t, int64(0), resp.Version)

	// Case 2: 有数据 (直接操作底层 Ref Manager)
	fakeHash := types.Hash(mockHash("init"))
	require.NoError(t, a.Refs.UpdateHead(ctx, fakeHash, 0))

	resp, err = svc.GetHead(ctx, &tvrpc.GetHeadRequest{})
	require.NoError(t, err)
	assert.True(t, resp.Exists)
	assert.Equal(t, fakeHash.String(), resp.Hash)
	assert.Equal(t, int64(1), resp.Version)
}

func TestMetaService_Commit_HappyPath(t *testing.T) {
	a := setupTestApp(t)
	client := setupTestClient(t, NewMetaService(a))
	ctx := context.Background()

	req := &tvrpc.CommitRequest{
		Message:  "First Commit",
		Author:   "Tester",
		TreeHash: mustTree(t, a).String(),
	}

	resp, err := client.Commit(ctx, req)
	require.NoError(t, err)
	assert.NotEmpty(t, resp.CommitHash)

	// 1. 检查 HEAD 是否更新
	head, ver, err := a.Refs.GetHead(ctx)
	require.NoError(t, err)
	assert.Equal(t, resp.CommitHash, head.String())
	assert.Equal(t, int64(1), ver)

	// 2. 检查 DB 是否有记录
	commitModel, err := a.Meta.GetCommit(ctx, types.Hash(resp.CommitHash))
	require.NoError(t, err)
	assert.Equal(t, "First Commit", commitModel.Message)

	// 3. 经过网络往返后 HEAD 读取一致
	headResp, err := client.GetHead(ctx, &tvrpc.GetHeadRequest{})
	require.NoError(t, err)
	assert.Equal(t, resp.CommitHash, headResp.Hash)
}

func TestMetaService_Commit_Validation(t *testing.T) {
	svc := NewMetaService(setupTestApp(t))
	ctx := context.Background()

	tests := []struct {
		name string
		req  *tvrpc.CommitRequest
	}{
		{"Short Tree Hash", &tvrpc.CommitRequest{Author: "a", TreeHash: "short_hash"}},
		{"Bad Parent", &tvrpc.CommitRequest{Author: "a", TreeHash: mockHash("t"), ParentHashes: []string{"x"}}},
		{"No Author", &tvrpc.CommitRequest{TreeHash: mockHash("t")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Commit(ctx, tt.req)
			require.Error(t, err)
			assert.Equal(t, codes.InvalidArgument, status.Code(err))
		})
	}
}

// commitChain 通过 RPC 建一个带章鱼合并的历史，返回合并提交
func commitChain(t *testing.T, client tvrpc.MetaServiceClient, tree string) string {
	t.Helper()
	ctx := context.Background()
	commit := func(msg string, parents ...string) string {
		if parents == nil {
			parents = []string{}
		}
		resp, err := client.Commit(ctx, &tvrpc.CommitRequest{
			TreeHash: tree, ParentHashes: parents, Author: "ci", Message: msg,
		})
		require.NoError(t, err)
		return resp.CommitHash
	}
	root := commit("root")
	a := commit("a", root)
	b := commit("b", root)
	return commit("merge", root, a, b)
}

func TestMetaService_WriteAndVerifyCommitGraph(t *testing.T) {
	a := setupTestApp(t)
	client := setupTestClient(t, NewMetaService(a))
	ctx := context.Background()

	commitChain(t, client, mustTree(t, a).String())

	// 还没有任何 graph
	_, err := client.VerifyCommitGraph(ctx, &tvrpc.VerifyCommitGraphRequest{})
	assert.Equal(t, codes.NotFound, status.Code(err))

	written, err := client.WriteCommitGraph(ctx, &tvrpc.WriteCommitGraphRequest{Source: "meta"})
	require.NoError(t, err)
	assert.Equal(t, int64(4), written.Commits)
	assert.Equal(t, int64(2), written.OverflowEdges)
	assert.FileExists(t, filepath.Join(a.CommitGraphDir(), written.Name))

	verified, err := client.VerifyCommitGraph(ctx, &tvrpc.VerifyCommitGraphRequest{})
	require.NoError(t, err)
	assert.Equal(t, written.Name, verified.Name)
	assert.Equal(t, written.Checksum, verified.Checksum)
	assert.Equal(t, "sha256", verified.Algo)
	assert.Equal(t, []string{"OIDF", "OIDL", "CDAT", "EDGE"}, verified.Chunks)

	// 对象存储作为数据源得到同一个文件
	fromStore, err := client.WriteCommitGraph(ctx, &tvrpc.WriteCommitGraphRequest{Source: "store"})
	require.NoError(t, err)
	assert.Equal(t, written.Checksum, fromStore.Checksum)
}

func TestMetaService_WriteCommitGraph_Concurrent(t *testing.T) {
	a := setupTestApp(t)
	client := setupTestClient(t, NewMetaService(a))
	ctx := context.Background()
	commitChain(t, client, mustTree(t, a).String())

	var wg sync.WaitGroup
	results := make([]*tvrpc.WriteCommitGraphResponse, 8)
	errs := make([]error, len(results))
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = client.WriteCommitGraph(ctx, &tvrpc.WriteCommitGraphRequest{})
		}(i)
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].Checksum, results[i].Checksum)
	}

	// 只发布了一个文件，没有残留的临时文件
	entries, err := os.ReadDir(a.CommitGraphDir())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestMetaService_CommitGraph_BadRequests(t *testing.T) {
	svc := NewMetaService(setupTestApp(t))
	ctx := context.Background()

	_, err := svc.WriteCommitGraph(ctx, &tvrpc.WriteCommitGraphRequest{Source: "pack"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = svc.WriteCommitGraph(ctx, &tvrpc.WriteCommitGraphRequest{Hash: "md5"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = svc.VerifyCommitGraph(ctx, &tvrpc.VerifyCommitGraphRequest{Name: "../meta.db"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = svc.VerifyCommitGraph(ctx, &tvrpc.VerifyCommitGraphRequest{Name: "graph-00.graph"})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestMetaService_VerifyCommitGraph_Corrupt(t *testing.T) {
	a := setupTestApp(t)
	client := setupTestClient(t, NewMetaService(a))
	ctx := context.Background()
	commitChain(t, client, mustTree(t, a).String())

	written, err := client.WriteCommitGraph(ctx, &tvrpc.WriteCommitGraphRequest{})
	require.NoError(t, err)

	path := filepath.Join(a.CommitGraphDir(), written.Name)
	buf, err := os.ReadFile(path)
	require.NoError(t, err)
	buf[100] ^= 0x01
	require.NoError(t, os.Chmod(path, 0o644))
	require.NoError(t, os.WriteFile(path, buf, 0o644))

	_, err = client.VerifyCommitGraph(ctx, &tvrpc.VerifyCommitGraphRequest{Name: written.Name})
	assert.Equal(t, codes.DataLoss, status.Code(err))
}
