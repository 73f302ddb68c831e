package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// ExternalServer is implemented by the Interface dispatch core to serve
// end-user launch/shutdown requests.
type ExternalServer interface {
	SystemStatus(context.Context, *Empty) (*StatusResponse, error)
	SystemVersion(context.Context, *Empty) (*VersionResponse, error)
	LaunchVM(context.Context, *Empty) (*LaunchResult, error)
	ShutdownVM(context.Context, *ShutdownVMRequest) (*ShutdownResult, error)
}

// ExternalClient is the stub used by impulsectl (and tests) to call the
// External service.
type ExternalClient interface {
	SystemStatus(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*StatusResponse, error)
	SystemVersion(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*VersionResponse, error)
	LaunchVM(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*LaunchResult, error)
	ShutdownVM(ctx context.Context, in *ShutdownVMRequest, opts ...grpc.CallOption) (*ShutdownResult, error)
}

type externalClient struct {
	cc grpc.ClientConnInterface
}

// NewExternalClient wraps a ClientConn (dialed with the json codec set as
// the default call content-subtype) in the External service stub.
func NewExternalClient(cc grpc.ClientConnInterface) ExternalClient {
	return &externalClient{cc}
}

func (c *externalClient) SystemStatus(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*StatusResponse, error) {
	out := new(StatusResponse)
	if err := c.cc.Invoke(ctx, "/impulse.External/SystemStatus", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *externalClient) SystemVersion(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*VersionResponse, error) {
	out := new(VersionResponse)
	if err := c.cc.Invoke(ctx, "/impulse.External/SystemVersion", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *externalClient) LaunchVM(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*LaunchResult, error) {
	out := new(LaunchResult)
	if err := c.cc.Invoke(ctx, "/impulse.External/LaunchVm", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *externalClient) ShutdownVM(ctx context.Context, in *ShutdownVMRequest, opts ...grpc.CallOption) (*ShutdownResult, error) {
	out := new(ShutdownResult)
	if err := c.cc.Invoke(ctx, "/impulse.External/ShutdownVm", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// RegisterExternalServer attaches an ExternalServer implementation to a
// gRPC server instance.
func RegisterExternalServer(s grpc.ServiceRegistrar, srv ExternalServer) {
	s.RegisterService(&externalServiceDesc, srv)
}

func externalSystemStatusHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ExternalServer).SystemStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/impulse.External/SystemStatus"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ExternalServer).SystemStatus(ctx, req.(*Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func externalSystemVersionHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ExternalServer).SystemVersion(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/impulse.External/SystemVersion"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ExternalServer).SystemVersion(ctx, req.(*Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func externalLaunchVMHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ExternalServer).LaunchVM(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/impulse.External/LaunchVm"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ExternalServer).LaunchVM(ctx, req.(*Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func externalShutdownVMHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ShutdownVMRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ExternalServer).ShutdownVM(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/impulse.External/ShutdownVm"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ExternalServer).ShutdownVM(ctx, req.(*ShutdownVMRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var externalServiceDesc = grpc.ServiceDesc{
	ServiceName: "impulse.External",
	HandlerType: (*ExternalServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SystemStatus", Handler: externalSystemStatusHandler},
		{MethodName: "SystemVersion", Handler: externalSystemVersionHandler},
		{MethodName: "LaunchVm", Handler: externalLaunchVMHandler},
		{MethodName: "ShutdownVm", Handler: externalShutdownVMHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "impulse/external.proto",
}
