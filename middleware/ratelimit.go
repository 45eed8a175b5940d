package middleware

import (
	"iter"
	"sync"

	"github.com/fixkme/fastgrpc/rpc"
	"golang.org/x/time/rate"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// 每个方法一个令牌桶
type limiters struct {
	limit rate.Limit
	burst int
	m     sync.Map // full method -> *rate.Limiter
}

func (l *limiters) allow(ctx *rpc.Context) error {
	v, ok := l.m.Load(ctx.Method())
	if !ok {
		v, _ = l.m.LoadOrStore(ctx.Method(), rate.NewLimiter(l.limit, l.burst))
	}
	if !v.(*rate.Limiter).Allow() {
		return status.Errorf(codes.ResourceExhausted, "%s: rate limit exceeded", ctx.Method())
	}
	return nil
}

// RateLimit 作用于全部方法, 超出时返回 ResourceExhausted
func RateLimit(limit rate.Limit, burst int) []rpc.Middleware {
	return []rpc.Middleware{UnaryRateLimit(limit, burst), StreamRateLimit(limit, burst)}
}

// UnaryRateLimit methods 须是单条回应的方法
func UnaryRateLimit(limit rate.Limit, burst int, methods ...string) rpc.Middleware {
	l := &limiters{limit: limit, burst: burst}
	return rpc.NewUnaryMiddleware("rate_limit", func(ctx *rpc.Context, req any, next rpc.UnaryHandler) (any, error) {
		if err := l.allow(ctx); err != nil {
			return nil, err
		}
		return next(ctx, req)
	}, methods...)
}

// StreamRateLimit methods 须是流式回应的方法
func StreamRateLimit(limit rate.Limit, burst int, methods ...string) rpc.Middleware {
	l := &limiters{limit: limit, burst: burst}
	return rpc.NewStreamMiddleware("rate_limit", func(ctx *rpc.Context, req any, next rpc.StreamHandler) iter.Seq2[any, error] {
		if err := l.allow(ctx); err != nil {
			return func(yield func(any, error) bool) { yield(nil, err) }
		}
		return next(ctx, req)
	}, methods...)
}
