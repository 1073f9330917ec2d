package service

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"path/filepath"
	"testing"

	tvrpc "tensorvault/pkg/api/tvrpc/v1"
	"tensorvault/pkg/app"
	"tensorvault/pkg/core"
	"tensorvault/pkg/meta"
	"tensorvault/pkg/refs"
	"tensorvault/pkg/storage/disk"
	"tensorvault/pkg/types"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestApp 是所有 Service 测试共享的基础设施初始化逻辑
// 它返回构建好的 App 实例
func setupTestApp(t *testing.T) *app.App {
	tmpDir := t.TempDir()

	// 1. Store
	store, err := disk.NewAdapter(filepath.Join(tmpDir, "objects"))
	require.NoError(t, err)

	// 2. DB & Meta
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	metaDB := meta.NewWithConn(db)
	require.NoError(t, metaDB.AutoMigrate(meta.Models()...))

	repo := meta.NewRepository(metaDB)

	return &app.App{
		Store:    store,
		Meta:     repo,
		Refs:     refs.NewManager(repo),
		Logger:   slog.Default(),
		RepoPath: tmpDir,
	}
}

// setupTestClient 通过 bufconn 在内存里起一个真实的 gRPC 服务端
func setupTestClient(t *testing.T, svc *MetaService) tvrpc.MetaServiceClient {
	t.Helper()
	lis := bufconn.Listen(1024 * 1024)

	srv := grpc.NewServer()
	tvrpc.RegisterMetaServiceServer(srv, svc)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return tvrpc.NewMetaServiceClient(conn)
}

// mustTree 写入一个空 Tree，返回它的 Hash
func mustTree(t *testing.T, a *app.App) types.Hash {
	t.Helper()
	tree, err := core.NewTree(nil)
	require.NoError(t, err)
	require.NoError(t, a.Store.Put(context.Background(), tree))
	return tree.ID()
}

// 辅助函数：生成合法 Hash
func mockHash(input string) string {
	return core.CalculateBlobHash([]byte(input)).String()
}
