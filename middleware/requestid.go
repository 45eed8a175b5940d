package middleware

import (
	"iter"

	"github.com/fixkme/fastgrpc/rpc"
)

const RequestIDKey = "x-request-id"

// RequestID 使用请求头中的 x-request-id 作为调用id, 没有时沿用生成的id, 并回写到回应头
func RequestID() []rpc.Middleware {
	bind := func(ctx *rpc.Context) {
		ctx.SetCallID(ctx.GetStr(RequestIDKey))
		// 非grpc传输(如进程内调用)时没有回应头
		_ = ctx.SetHeader(RequestIDKey, ctx.CallID())
	}
	return []rpc.Middleware{
		rpc.NewUnaryMiddleware("request_id", func(ctx *rpc.Context, req any, next rpc.UnaryHandler) (any, error) {
			bind(ctx)
			return next(ctx, req)
		}),
		rpc.NewStreamMiddleware("request_id", func(ctx *rpc.Context, req any, next rpc.StreamHandler) iter.Seq2[any, error] {
			bind(ctx)
			return next(ctx, req)
		}),
	}
}
