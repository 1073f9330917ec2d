package server

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var testInfo = &grpc.UnaryServerInfo{FullMethod: "/tensorvault.v1.MetaService/WriteCommitGraph"}

func TestUnaryRecoveryInterceptor(t *testing.T) {
	handler := func(ctx context.Context, req any) (any, error) {
		panic("boom")
	}

	resp, err := UnaryRecoveryInterceptor(context.Background(), nil, testInfo, handler)
	assert.Nil(t, resp)
	require.Error(t, err)
	assert.Equal(t, codes.Internal, status.Code(err))
}

func TestUnaryLoggingInterceptor_PassesThrough(t *testing.T) {
	want := status.Error(codes.DataLoss, "checksum mismatch")
	handler := func(ctx context.Context, req any) (any, error) {
		return "resp", want
	}

	resp, err := UnaryLoggingInterceptor(context.Background(), "req", testInfo, handler)
	assert.Equal(t, "resp", resp)
	assert.Equal(t, want, err)
}

func TestStreamRecoveryInterceptor(t *testing.T) {
	handler := func(srv any, ss grpc.ServerStream) error {
		panic("boom")
	}

	err := StreamRecoveryInterceptor(nil, nil, &grpc.StreamServerInfo{FullMethod: "/x/y"}, handler)
	assert.Equal(t, codes.Internal, status.Code(err))
}
