package rpc

import (
	"iter"
	"runtime/debug"

	"github.com/fixkme/fastgrpc/errs"
	"github.com/fixkme/fastgrpc/mlog"
)

// UnaryMiddleware 包装单条回应的调用, next 为内层
type UnaryMiddleware func(ctx *Context, req any, next UnaryHandler) (any, error)

// StreamMiddleware 包装流式回应的调用
type StreamMiddleware func(ctx *Context, req any, next StreamHandler) iter.Seq2[any, error]

// Middleware 按回应是否为流分为两种形状, 形状由 ServerStreaming 声明
// Methods 为空时作用于同形状的所有方法, 否则只作用于列出的方法
// 列出的方法形状不符时绑定失败
type Middleware struct {
	Name            string
	ServerStreaming bool
	Unary           UnaryMiddleware
	Stream          StreamMiddleware
	Methods         []string
}

func NewUnaryMiddleware(name string, fn UnaryMiddleware, methods ...string) Middleware {
	return Middleware{Name: name, Unary: fn, Methods: methods}
}

func NewStreamMiddleware(name string, fn StreamMiddleware, methods ...string) Middleware {
	return Middleware{Name: name, ServerStreaming: true, Stream: fn, Methods: methods}
}

func (mw Middleware) String() string {
	if mw.Name != "" {
		return mw.Name
	}
	return "<anonymous>"
}

func (mw Middleware) shape() string {
	if mw.ServerStreaming {
		return "stream"
	}
	return "unary"
}

func (mw Middleware) validate() error {
	if mw.ServerStreaming {
		if mw.Stream == nil || mw.Unary != nil {
			return errs.Configuration.Printf("middleware %s: stream middleware needs exactly a Stream func", mw)
		}
		return nil
	}
	if mw.Unary == nil || mw.Stream != nil {
		return errs.Configuration.Printf("middleware %s: unary middleware needs exactly a Unary func", mw)
	}
	return nil
}

// 方法可用 Name, Service.Name 或 pkg.Service/Name 指定
func (mw Middleware) targets(md *MethodDesc) bool {
	for _, m := range mw.Methods {
		switch m {
		case md.Name, md.service.Name() + "." + md.Name, md.service.FullName() + "/" + md.Name, md.FullMethod():
			return true
		}
	}
	return false
}

// Chain 为方法组合中间件, 先声明的在外层
// 回应为单条的方法返回 UnaryHandler, 流式的返回 StreamHandler
func Chain(mws []Middleware, md *MethodDesc) (UnaryHandler, StreamHandler, error) {
	streaming := md.Cardinality.ServerStreaming()
	selected := make([]Middleware, 0, len(mws))
	for _, mw := range mws {
		if err := mw.validate(); err != nil {
			return nil, nil, err
		}
		targeted := len(mw.Methods) > 0
		if targeted && !mw.targets(md) {
			continue
		}
		if mw.ServerStreaming != streaming {
			if targeted {
				return nil, nil, errs.Configuration.Printf("middleware %s is %s, cannot wrap %s (%s)",
					mw, mw.shape(), md.FullMethod(), md.Cardinality)
			}
			continue
		}
		selected = append(selected, mw)
	}

	if streaming {
		h := recoverStream(md.handler.stream)
		for i := len(selected) - 1; i >= 0; i-- {
			h = wrapStream(selected[i].Stream, h)
		}
		return nil, h, nil
	}
	h := recoverUnary(md.handler.unary)
	for i := len(selected) - 1; i >= 0; i-- {
		h = wrapUnary(selected[i].Unary, h)
	}
	return h, nil, nil
}

func wrapUnary(mw UnaryMiddleware, next UnaryHandler) UnaryHandler {
	return func(ctx *Context, req any) (any, error) {
		return mw(ctx, req, next)
	}
}

func wrapStream(mw StreamMiddleware, next StreamHandler) StreamHandler {
	return func(ctx *Context, req any) iter.Seq2[any, error] {
		return mw(ctx, req, next)
	}
}

// 处理函数的panic转为Internal错误, 外层中间件可以看到
func handlerPanic(ctx *Context, r any) error {
	mlog.Errorf("GRPC invoke %s panic: %v\n%s", ctx.Method(), r, debug.Stack())
	return errs.Internal.Printf("%s: handler panic", ctx.Method())
}

func recoverUnary(h UnaryHandler) UnaryHandler {
	return func(ctx *Context, req any) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				resp, err = nil, handlerPanic(ctx, r)
			}
		}()
		return h(ctx, req)
	}
}

// yield中(即外层中间件)的panic继续向上抛
func recoverStream(h StreamHandler) StreamHandler {
	return func(ctx *Context, req any) iter.Seq2[any, error] {
		return func(yield func(any, error) bool) {
			inYield := false
			defer func() {
				if r := recover(); r != nil {
					if inYield {
						panic(r)
					}
					yield(nil, handlerPanic(ctx, r))
				}
			}()
			for resp, err := range h(ctx, req) {
				inYield = true
				if !yield(resp, err) {
					return
				}
				inYield = false
			}
		}
	}
}
