package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// InternalServer is implemented by the Interface dispatch core to serve
// Actuator node sessions.
type InternalServer interface {
	Register(context.Context, *NodeIDRequest) (*SystemIDResponse, error)
	Controller(*NodeIDRequest, Internal_ControllerServer) error
	LaunchResult(context.Context, *LaunchResult) (*SystemIDResponse, error)
	ShutdownResult(context.Context, *ShutdownResult) (*SystemIDResponse, error)
	Delist(context.Context, *NodeIDRequest) (*SystemIDResponse, error)
}

// Internal_ControllerServer is the server-side handle for the streaming
// Controller RPC: one Task at a time, pushed to a single Actuator.
type Internal_ControllerServer interface {
	Send(*Task) error
	grpc.ServerStream
}

type internalControllerServer struct {
	grpc.ServerStream
}

func (x *internalControllerServer) Send(t *Task) error {
	return x.ServerStream.SendMsg(t)
}

// InternalClient is the stub used by the Actuator to talk to the Interface.
type InternalClient interface {
	Register(ctx context.Context, in *NodeIDRequest, opts ...grpc.CallOption) (*SystemIDResponse, error)
	Controller(ctx context.Context, in *NodeIDRequest, opts ...grpc.CallOption) (Internal_ControllerClient, error)
	LaunchResult(ctx context.Context, in *LaunchResult, opts ...grpc.CallOption) (*SystemIDResponse, error)
	ShutdownResult(ctx context.Context, in *ShutdownResult, opts ...grpc.CallOption) (*SystemIDResponse, error)
	Delist(ctx context.Context, in *NodeIDRequest, opts ...grpc.CallOption) (*SystemIDResponse, error)
}

// Internal_ControllerClient is the client-side handle for the streaming
// Controller RPC.
type Internal_ControllerClient interface {
	Recv() (*Task, error)
	grpc.ClientStream
}

type internalControllerClient struct {
	grpc.ClientStream
}

func (x *internalControllerClient) Recv() (*Task, error) {
	m := new(Task)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

type internalClient struct {
	cc grpc.ClientConnInterface
}

// NewInternalClient wraps a ClientConn in the Internal service stub.
func NewInternalClient(cc grpc.ClientConnInterface) InternalClient {
	return &internalClient{cc}
}

func (c *internalClient) Register(ctx context.Context, in *NodeIDRequest, opts ...grpc.CallOption) (*SystemIDResponse, error) {
	out := new(SystemIDResponse)
	if err := c.cc.Invoke(ctx, "/impulse.Internal/Register", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *internalClient) Controller(ctx context.Context, in *NodeIDRequest, opts ...grpc.CallOption) (Internal_ControllerClient, error) {
	stream, err := c.cc.NewStream(ctx, &internalServiceDesc.Streams[0], "/impulse.Internal/Controller", opts...)
	if err != nil {
		return nil, err
	}
	x := &internalControllerClient{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

func (c *internalClient) LaunchResult(ctx context.Context, in *LaunchResult, opts ...grpc.CallOption) (*SystemIDResponse, error) {
	out := new(SystemIDResponse)
	if err := c.cc.Invoke(ctx, "/impulse.Internal/LaunchResult", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *internalClient) ShutdownResult(ctx context.Context, in *ShutdownResult, opts ...grpc.CallOption) (*SystemIDResponse, error) {
	out := new(SystemIDResponse)
	if err := c.cc.Invoke(ctx, "/impulse.Internal/ShutdownResult", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *internalClient) Delist(ctx context.Context, in *NodeIDRequest, opts ...grpc.CallOption) (*SystemIDResponse, error) {
	out := new(SystemIDResponse)
	if err := c.cc.Invoke(ctx, "/impulse.Internal/Delist", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// RegisterInternalServer attaches an InternalServer implementation to a
// gRPC server instance.
func RegisterInternalServer(s grpc.ServiceRegistrar, srv InternalServer) {
	s.RegisterService(&internalServiceDesc, srv)
}

func internalRegisterHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(NodeIDRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(InternalServer).Register(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/impulse.Internal/Register"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(InternalServer).Register(ctx, req.(*NodeIDRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func internalControllerHandler(srv interface{}, stream grpc.ServerStream) error {
	m := new(NodeIDRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(InternalServer).Controller(m, &internalControllerServer{stream})
}

func internalLaunchResultHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(LaunchResult)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(InternalServer).LaunchResult(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/impulse.Internal/LaunchResult"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(InternalServer).LaunchResult(ctx, req.(*LaunchResult))
	}
	return interceptor(ctx, in, info, handler)
}

func internalShutdownResultHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ShutdownResult)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(InternalServer).ShutdownResult(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/impulse.Internal/ShutdownResult"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(InternalServer).ShutdownResult(ctx, req.(*ShutdownResult))
	}
	return interceptor(ctx, in, info, handler)
}

func internalDelistHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(NodeIDRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(InternalServer).Delist(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/impulse.Internal/Delist"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(InternalServer).Delist(ctx, req.(*NodeIDRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var internalServiceDesc = grpc.ServiceDesc{
	ServiceName: "impulse.Internal",
	HandlerType: (*InternalServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Register", Handler: internalRegisterHandler},
		{MethodName: "LaunchResult", Handler: internalLaunchResultHandler},
		{MethodName: "ShutdownResult", Handler: internalShutdownResultHandler},
		{MethodName: "Delist", Handler: internalDelistHandler},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Controller",
			Handler:       internalControllerHandler,
			ServerStreams: true,
		},
	},
	Metadata: "impulse/internal.proto",
}

// DialOptions returns the CallOptions that select the JSON codec as the
// default for every call on a ClientConn created for these services.
func DialOptions() []grpc.CallOption {
	return []grpc.CallOption{grpc.CallContentSubtype(Name())}
}
