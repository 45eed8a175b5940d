// Package middleware 内置的中间件, 每个构造函数同时返回单条与流式两种形状
package middleware

import (
	"iter"

	"github.com/fixkme/fastgrpc/mlog"
	"github.com/fixkme/fastgrpc/rpc"
)

// ErrorLog 记录处理函数返回的错误, 错误原样向外传递
func ErrorLog() []rpc.Middleware {
	return []rpc.Middleware{
		rpc.NewUnaryMiddleware("error_log", func(ctx *rpc.Context, req any, next rpc.UnaryHandler) (any, error) {
			resp, err := next(ctx, req)
			if err != nil {
				logError(ctx, req, err)
			}
			return resp, err
		}),
		rpc.NewStreamMiddleware("error_log", func(ctx *rpc.Context, req any, next rpc.StreamHandler) iter.Seq2[any, error] {
			return func(yield func(any, error) bool) {
				for resp, err := range next(ctx, req) {
					if err != nil {
						logError(ctx, req, err)
					}
					if !yield(resp, err) {
						return
					}
				}
			}
		}),
	}
}

// AccessLog 每次调用结束记录耗时
func AccessLog() []rpc.Middleware {
	return []rpc.Middleware{
		rpc.NewUnaryMiddleware("access_log", func(ctx *rpc.Context, req any, next rpc.UnaryHandler) (any, error) {
			resp, err := next(ctx, req)
			logAccess(ctx, req, err)
			return resp, err
		}),
		rpc.NewStreamMiddleware("access_log", func(ctx *rpc.Context, req any, next rpc.StreamHandler) iter.Seq2[any, error] {
			return func(yield func(any, error) bool) {
				var last error
				defer func() { logAccess(ctx, req, last) }()
				for resp, err := range next(ctx, req) {
					last = err
					if !yield(resp, err) {
						return
					}
				}
			}
		}),
	}
}

func logError(ctx *rpc.Context, req any, err error) {
	mlog.Errorf("GRPC invoke %s(%s) [Err] -> %v", ctx.Method(), describe(req), err)
}

func logAccess(ctx *rpc.Context, req any, err error) {
	if err != nil {
		mlog.Warnf("GRPC invoke %s(%s) [Err] %.3f seconds -> %v", ctx.Method(), describe(req), ctx.Elapsed().Seconds(), err)
		return
	}
	mlog.Infof("GRPC invoke %s(%s) [OK] %.3f seconds", ctx.Method(), describe(req), ctx.Elapsed().Seconds())
}

func describe(req any) string {
	if _, ok := req.(*rpc.AnyStream); ok {
		return "stream"
	}
	return sprintModel(req)
}
