package server

import (
	"context"
	"io"

	"github.com/fixkme/fastgrpc/errs"
	"github.com/fixkme/fastgrpc/mlog"
	"github.com/fixkme/fastgrpc/protogen"
	"github.com/fixkme/fastgrpc/rpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
)

// Route 调度表中的一项, 中间件已组合好
// 回应为单条时Unary非空, 否则Stream非空
type Route struct {
	FullMethod string
	Method     *rpc.MethodDesc
	Binding    *protogen.MethodBinding
	Unary      rpc.UnaryHandler
	Stream     rpc.StreamHandler
}

func (r *Route) newRequest() proto.Message {
	return r.Binding.Request.New().Interface()
}

func (r *Route) encode(resp any) (proto.Message, error) {
	out, err := r.Binding.Response.Encode(resp)
	if err != nil {
		mlog.Errorf("GRPC invoke %s encode response -> %v", r.FullMethod, err)
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out.Interface(), nil
}

// recvError 请求消息无法解析时返回 InvalidArgument
func (r *Route) recvError(err error) error {
	if err == io.EOF {
		return err
	}
	if st, ok := status.FromError(err); ok && st.Code() != codes.Internal {
		return err
	}
	return errs.ToStatus(errs.Unmarshal.Printf("%s: decode request: %s", r.FullMethod, status.Convert(err).Message()))
}

// grpcUnary 实现 grpc.MethodHandler
func (r *Route) grpcUnary(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := r.newRequest()
	if err := dec(in); err != nil {
		return nil, r.recvError(err)
	}
	if interceptor == nil {
		return r.serveUnary(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: r.FullMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return r.serveUnary(ctx, req.(proto.Message))
	})
}

// 解码与校验在中间件之外, 校验失败直接返回 InvalidArgument
func (r *Route) serveUnary(ctx context.Context, in proto.Message) (any, error) {
	req, err := r.Binding.Request.Decode(in.ProtoReflect())
	if err != nil {
		return nil, errs.ToStatus(err)
	}
	resp, err := r.Unary(rpc.NewContext(ctx, r.FullMethod), req)
	if err != nil {
		return nil, errs.ToStatus(err)
	}
	return r.encode(resp)
}

// grpcStream 实现 grpc.StreamHandler
func (r *Route) grpcStream(srv any, ss grpc.ServerStream) error {
	rc := rpc.NewContext(ss.Context(), r.FullMethod)
	var req any
	if r.Method.Cardinality.ClientStreaming() {
		req = rpc.NewAnyStream(func() (any, error) {
			in := r.newRequest()
			if err := ss.RecvMsg(in); err != nil {
				return nil, r.recvError(err)
			}
			return r.Binding.Request.Decode(in.ProtoReflect())
		})
	} else {
		in := r.newRequest()
		if err := ss.RecvMsg(in); err != nil {
			if err == io.EOF {
				return status.Error(codes.InvalidArgument, "missing request message")
			}
			return r.recvError(err)
		}
		v, err := r.Binding.Request.Decode(in.ProtoReflect())
		if err != nil {
			return errs.ToStatus(err)
		}
		req = v
	}

	if r.Unary != nil {
		resp, err := r.Unary(rc, req)
		if err != nil {
			return errs.ToStatus(err)
		}
		out, err := r.encode(resp)
		if err != nil {
			return err
		}
		return ss.SendMsg(out)
	}

	for resp, err := range r.Stream(rc, req) {
		if err != nil {
			return errs.ToStatus(err)
		}
		// 客户端已取消时不再拉取
		if err := rc.Err(); err != nil {
			return errs.ToStatus(err)
		}
		out, err := r.encode(resp)
		if err != nil {
			return err
		}
		if err := ss.SendMsg(out); err != nil {
			return err
		}
	}
	return nil
}
