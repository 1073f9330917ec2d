// Package tvrpc 定义 TensorVault 的 gRPC 接口
// 消息使用 CBOR 编码 (见 codec.go)，服务描述手写而非由 protoc 生成
package tvrpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	MetaServiceName = "tensorvault.v1.MetaService"

	MetaService_GetHead_FullMethodName           = "/tensorvault.v1.MetaService/GetHead"
	MetaService_Commit_FullMethodName            = "/tensorvault.v1.MetaService/Commit"
	MetaService_WriteCommitGraph_FullMethodName  = "/tensorvault.v1.MetaService/WriteCommitGraph"
	MetaService_VerifyCommitGraph_FullMethodName = "/tensorvault.v1.MetaService/VerifyCommitGraph"
)

// -----------------------------------------------------------------------------
// Messages
// -----------------------------------------------------------------------------

type GetHeadRequest struct{}

type GetHeadResponse struct {
	Exists  bool   `cbor:"1,keyasint"`
	Hash    string `cbor:"2,keyasint"`
	Version int64  `cbor:"3,keyasint"`
}

type CommitRequest struct {
	TreeHash     string   `cbor:"1,keyasint"`
	ParentHashes []string `cbor:"2,keyasint"`
	Author       string   `cbor:"3,keyasint"`
	Message      string   `cbor:"4,keyasint"`
}

type CommitResponse struct {
	CommitHash string `cbor:"1,keyasint"`
}

type WriteCommitGraphRequest struct {
	Source string `cbor:"1,keyasint,omitempty"` // "store" | "meta"，为空时使用服务端配置
	Hash   string `cbor:"2,keyasint,omitempty"` // "sha256" | "sha1"
}

type WriteCommitGraphResponse struct {
	Name          string `cbor:"1,keyasint"`
	Checksum      string `cbor:"2,keyasint"`
	Commits       int64  `cbor:"3,keyasint"`
	OverflowEdges int64  `cbor:"4,keyasint"`
}

type VerifyCommitGraphRequest struct {
	Name string `cbor:"1,keyasint,omitempty"` // 为空时校验最近一次发布的文件
}

type VerifyCommitGraphResponse struct {
	Name          string   `cbor:"1,keyasint"`
	Algo          string   `cbor:"2,keyasint"`
	Checksum      string   `cbor:"3,keyasint"`
	Commits       int64    `cbor:"4,keyasint"`
	OverflowEdges int64    `cbor:"5,keyasint"`
	Chunks        []string `cbor:"6,keyasint"`
}

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

type MetaServiceServer interface {
	GetHead(context.Context, *GetHeadRequest) (*GetHeadResponse, error)
	Commit(context.Context, *CommitRequest) (*CommitResponse, error)
	WriteCommitGraph(context.Context, *WriteCommitGraphRequest) (*WriteCommitGraphResponse, error)
	VerifyCommitGraph(context.Context, *VerifyCommitGraphRequest) (*VerifyCommitGraphResponse, error)
}

// UnimplementedMetaServiceServer 嵌入后可以只实现部分方法
type UnimplementedMetaServiceServer struct{}

func (UnimplementedMetaServiceServer) GetHead(context.Context, *GetHeadRequest) (*GetHeadResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetHead not implemented")
}
func (UnimplementedMetaServiceServer) Commit(context.Context, *CommitRequest) (*CommitResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Commit not implemented")
}
func (UnimplementedMetaServiceServer) WriteCommitGraph(context.Context, *WriteCommitGraphRequest) (*WriteCommitGraphResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method WriteCommitGraph not implemented")
}
func (UnimplementedMetaServiceServer) VerifyCommitGraph(context.Context, *VerifyCommitGraphRequest) (*VerifyCommitGraphResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method VerifyCommitGraph not implemented")
}

func RegisterMetaServiceServer(s grpc.ServiceRegistrar, srv MetaServiceServer) {
	s.RegisterService(&MetaService_ServiceDesc, srv)
}

// unaryHandler 把一个强类型方法适配成 grpc.MethodHandler
func unaryHandler[Req, Resp any](method string, call func(MetaServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(MetaServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(MetaServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var MetaService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: MetaServiceName,
	HandlerType: (*MetaServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetHead",
			Handler:    unaryHandler(MetaService_GetHead_FullMethodName, MetaServiceServer.GetHead),
		},
		{
			MethodName: "Commit",
			Handler:    unaryHandler(MetaService_Commit_FullMethodName, MetaServiceServer.Commit),
		},
		{
			MethodName: "WriteCommitGraph",
			Handler:    unaryHandler(MetaService_WriteCommitGraph_FullMethodName, MetaServiceServer.WriteCommitGraph),
		},
		{
			MethodName: "VerifyCommitGraph",
			Handler:    unaryHandler(MetaService_VerifyCommitGraph_FullMethodName, MetaServiceServer.VerifyCommitGraph),
		},
	},
	Streams:  []grpc.StreamDesc{},
	// 不是 proto 文件，reflection 无法据此返回描述符
	Metadata: "tensorvault/v1/meta.cbor",
}

// -----------------------------------------------------------------------------
// Client
// -----------------------------------------------------------------------------

type MetaServiceClient interface {
	GetHead(ctx context.Context, in *GetHeadRequest, opts ...grpc.CallOption) (*GetHeadResponse, error)
	Commit(ctx context.Context, in *CommitRequest, opts ...grpc.CallOption) (*CommitResponse, error)
	WriteCommitGraph(ctx context.Context, in *WriteCommitGraphRequest, opts ...grpc.CallOption) (*WriteCommitGraphResponse, error)
	VerifyCommitGraph(ctx context.Context, in *VerifyCommitGraphRequest, opts ...grpc.CallOption) (*VerifyCommitGraphResponse, error)
}

type metaServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewMetaServiceClient(cc grpc.ClientConnInterface) MetaServiceClient {
	return &metaServiceClient{cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *metaServiceClient) GetHead(ctx context.Context, in *GetHeadRequest, opts ...grpc.CallOption) (*GetHeadResponse, error) {
	return invoke[GetHeadResponse](ctx, c.cc, MetaService_GetHead_FullMethodName, in, opts)
}

func (c *metaServiceClient) Commit(ctx context.Context, in *CommitRequest, opts ...grpc.CallOption) (*CommitResponse, error) {
	return invoke[CommitResponse](ctx, c.cc, MetaService_Commit_FullMethodName, in, opts)
}

func (c *metaServiceClient) WriteCommitGraph(ctx context.Context, in *WriteCommitGraphRequest, opts ...grpc.CallOption) (*WriteCommitGraphResponse, error) {
	return invoke[WriteCommitGraphResponse](ctx, c.cc, MetaService_WriteCommitGraph_FullMethodName, in, opts)
}

func (c *metaServiceClient) VerifyCommitGraph(ctx context.Context, in *VerifyCommitGraphRequest, opts ...grpc.CallOption) (*VerifyCommitGraphResponse, error) {
	return invoke[VerifyCommitGraphResponse](ctx, c.cc, MetaService_VerifyCommitGraph_FullMethodName, in, opts)
}
