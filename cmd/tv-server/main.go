package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	tvrpc "tensorvault/pkg/api/tvrpc/v1"
	"tensorvault/pkg/app"
	"tensorvault/pkg/config"
	"tensorvault/pkg/server"
	"tensorvault/pkg/service"

	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"
)

func main() {
	// 1. Load Config
	cfgFile := flag.String("config", "", "config file (default is $HOME/.tv/config.yaml)")
	flag.Parse()

	if err := config.Load(*cfgFile); err != nil {
		log.Fatalf("❌ Config error: %v", err)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, viper.GetString("server.addr")); err != nil {
		log.Fatalf("❌ %v", err)
	}
	slog.Info("👋 Server stopped.")
}

func run(ctx context.Context, addr string) error {
	// 2. Init Core Application
	application, err := app.NewApp(ctx)
	if err != nil {
		return err
	}
	defer application.Close()
	slog.Info("✅ TensorVault Core initialized.", "repo", application.RepoPath)

	// 3. Setup Network
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	// 4. Setup gRPC Server
	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			server.UnaryRecoveryInterceptor,
			server.UnaryLoggingInterceptor,
		),
		grpc.ChainStreamInterceptor(
			server.StreamRecoveryInterceptor,
			server.StreamLoggingInterceptor,
		),
	)
	tvrpc.RegisterMetaServiceServer(grpcServer, service.NewMetaService(application))

	// Reflection 只能列出服务和方法名 (grpcurl list)
	// MetaService 走 CBOR 编码，没有 proto 文件描述符，describe 不可用
	reflection.Register(grpcServer)

	// 5. Serve + Graceful Shutdown
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("🚀 gRPC Server listening", "addr", lis.Addr().String())
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		slog.Warn("⚠️  Shutting down server...")
		grpcServer.GracefulStop()
		return nil
	})
	return g.Wait()
}
