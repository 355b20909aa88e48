package rpc

import (
	"context"

	"google.golang.org/grpc"
)

const ServiceName = "catchkeeper.sync.v1.CatchSync"

const (
	MethodRegister   = "/" + ServiceName + "/Register"
	MethodLogin      = "/" + ServiceName + "/Login"
	MethodCommit     = "/" + ServiceName + "/Commit"
	MethodListRecent = "/" + ServiceName + "/ListRecent"
	MethodPing       = "/" + ServiceName + "/Ping"
)

// CatchSyncServer is implemented by the remote store.
type CatchSyncServer interface {
	Register(context.Context, *RegisterRequest) (*RegisterResponse, error)
	Login(context.Context, *LoginRequest) (*LoginResponse, error)
	Commit(context.Context, *CommitRequest) (*CommitResponse, error)
	ListRecent(context.Context, *ListRecentRequest) (*ListRecentResponse, error)
	Ping(context.Context, *PingRequest) (*PingResponse, error)
}

// CatchSyncClient is the client side of CatchSyncServer.
type CatchSyncClient interface {
	Register(ctx context.Context, in *RegisterRequest, opts ...grpc.CallOption) (*RegisterResponse, error)
	Login(ctx context.Context, in *LoginRequest, opts ...grpc.CallOption) (*LoginResponse, error)
	Commit(ctx context.Context, in *CommitRequest, opts ...grpc.CallOption) (*CommitResponse, error)
	ListRecent(ctx context.Context, in *ListRecentRequest, opts ...grpc.CallOption) (*ListRecentResponse, error)
	Ping(ctx context.Context, in *PingRequest, opts ...grpc.CallOption) (*PingResponse, error)
}

type catchSyncClient struct {
	cc grpc.ClientConnInterface
}

func NewCatchSyncClient(cc grpc.ClientConnInterface) CatchSyncClient {
	return &catchSyncClient{cc: cc}
}

func invoke[Req, Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in *Req, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{CallOption()}, opts...)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *catchSyncClient) Register(ctx context.Context, in *RegisterRequest, opts ...grpc.CallOption) (*RegisterResponse, error) {
	return invoke[RegisterRequest, RegisterResponse](ctx, c.cc, MethodRegister, in, opts)
}

func (c *catchSyncClient) Login(ctx context.Context, in *LoginRequest, opts ...grpc.CallOption) (*LoginResponse, error) {
	return invoke[LoginRequest, LoginResponse](ctx, c.cc, MethodLogin, in, opts)
}

func (c *catchSyncClient) Commit(ctx context.Context, in *CommitRequest, opts ...grpc.CallOption) (*CommitResponse, error) {
	return invoke[CommitRequest, CommitResponse](ctx, c.cc, MethodCommit, in, opts)
}

func (c *catchSyncClient) ListRecent(ctx context.Context, in *ListRecentRequest, opts ...grpc.CallOption) (*ListRecentResponse, error) {
	return invoke[ListRecentRequest, ListRecentResponse](ctx, c.cc, MethodListRecent, in, opts)
}

func (c *catchSyncClient) Ping(ctx context.Context, in *PingRequest, opts ...grpc.CallOption) (*PingResponse, error) {
	return invoke[PingRequest, PingResponse](ctx, c.cc, MethodPing, in, opts)
}

// RegisterCatchSyncServer attaches srv to s.
func RegisterCatchSyncServer(s grpc.ServiceRegistrar, srv CatchSyncServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func unaryHandler[Req, Resp any](method string, call func(CatchSyncServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(CatchSyncServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(CatchSyncServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ServiceDesc describes CatchSync for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CatchSyncServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Register", Handler: unaryHandler(MethodRegister, CatchSyncServer.Register)},
		{MethodName: "Login", Handler: unaryHandler(MethodLogin, CatchSyncServer.Login)},
		{MethodName: "Commit", Handler: unaryHandler(MethodCommit, CatchSyncServer.Commit)},
		{MethodName: "ListRecent", Handler: unaryHandler(MethodListRecent, CatchSyncServer.ListRecent)},
		{MethodName: "Ping", Handler: unaryHandler(MethodPing, CatchSyncServer.Ping)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "catchkeeper/sync/v1",
}
