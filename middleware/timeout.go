package middleware

import (
	"context"
	"iter"
	"time"

	"github.com/fixkme/fastgrpc/rpc"
)

// Timeout 调用没有更短的deadline时, 加上d的超时
func Timeout(d time.Duration) []rpc.Middleware {
	derive := func(ctx *rpc.Context) (*rpc.Context, context.CancelFunc) {
		if left, ok := ctx.TimeRemaining(); ok && left <= d {
			return ctx, func() {}
		}
		c, cancel := context.WithTimeout(ctx.Context, d)
		return ctx.WithContext(c), cancel
	}
	return []rpc.Middleware{
		rpc.NewUnaryMiddleware("timeout", func(ctx *rpc.Context, req any, next rpc.UnaryHandler) (any, error) {
			c, cancel := derive(ctx)
			defer cancel()
			return next(c, req)
		}),
		rpc.NewStreamMiddleware("timeout", func(ctx *rpc.Context, req any, next rpc.StreamHandler) iter.Seq2[any, error] {
			return func(yield func(any, error) bool) {
				c, cancel := derive(ctx)
				defer cancel()
				for resp, err := range next(c, req) {
					if !yield(resp, err) {
						return
					}
				}
			}
		}),
	}
}
