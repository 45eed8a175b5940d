package server

import (
	"github.com/fixkme/fastgrpc/mlog"
	"github.com/fixkme/fastgrpc/rpc"
	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpc_recovery "github.com/grpc-ecosystem/go-grpc-middleware/recovery"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/reflection"
	reflectionv1 "google.golang.org/grpc/reflection/grpc_reflection_v1"
	reflectionv1alpha "google.golang.org/grpc/reflection/grpc_reflection_v1alpha"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/reflect/protoregistry"
)

func (a *App) newGRPCServer(services []*rpc.Service) *grpc.Server {
	opts := []grpc_recovery.Option{
		grpc_recovery.WithRecoveryHandler(func(p any) (err error) {
			mlog.Errorf("gRPC调用出错 panic: %v", p)
			return status.Errorf(codes.Internal, "服务器内部错误")
		}),
	}
	serverOpts := []grpc.ServerOption{
		grpc_middleware.WithUnaryServerChain(
			grpc_recovery.UnaryServerInterceptor(opts...),
		),
		grpc_middleware.WithStreamServerChain(
			grpc_recovery.StreamServerInterceptor(opts...),
		),
		grpc.MaxRecvMsgSize(MaxCommuBuff),
		grpc.MaxSendMsgSize(MaxCommuBuff),
	}
	s := grpc.NewServer(append(serverOpts, a.grpcOpts...)...)
	for _, svc := range services {
		s.RegisterService(a.serviceDesc(svc), a)
	}
	if a.reflection {
		ro := reflection.ServerOptions{
			Services:           s,
			DescriptorResolver: a.bundle.Resolver(),
			ExtensionResolver:  protoregistry.GlobalTypes,
		}
		reflectionv1.RegisterServerReflectionServer(s, reflection.NewServerV1(ro))
		reflectionv1alpha.RegisterServerReflectionServer(s, reflection.NewServer(ro))
	}
	return s
}

// serviceDesc 由调度表生成, HandlerType 不约束实现
func (a *App) serviceDesc(svc *rpc.Service) *grpc.ServiceDesc {
	desc := &grpc.ServiceDesc{
		ServiceName: svc.FullName(),
		HandlerType: (*any)(nil),
		Metadata:    svc.Proto(),
	}
	for _, md := range svc.Methods() {
		v, _ := a.routes.Get(md.FullMethod())
		r := v.(*Route)
		if md.Cardinality == rpc.Cardinality_UnaryUnary {
			desc.Methods = append(desc.Methods, grpc.MethodDesc{
				MethodName: md.Name,
				Handler:    r.grpcUnary,
			})
			continue
		}
		desc.Streams = append(desc.Streams, grpc.StreamDesc{
			StreamName:    md.Name,
			Handler:       r.grpcStream,
			ServerStreams: md.Cardinality.ServerStreaming(),
			ClientStreams: md.Cardinality.ClientStreaming(),
		})
	}
	return desc
}
