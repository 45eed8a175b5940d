package rpc

import (
	"iter"
	"reflect"

	"github.com/fixkme/fastgrpc/errs"
)

// UnaryHandler 单条回应的处理函数, 请求为解码后的模型指针
// 客户端流时请求为 *AnyStream
type UnaryHandler func(ctx *Context, req any) (any, error)

// StreamHandler 流式回应的处理函数, 迭代器惰性产出回应
type StreamHandler func(ctx *Context, req any) iter.Seq2[any, error]

// Handler 一个有类型的处理函数, 由 Unary/ServerStream/ClientStream/BidiStream 构造
type Handler struct {
	card   Cardinality
	req    reflect.Type
	resp   reflect.Type
	fn     any
	unary  UnaryHandler
	stream StreamHandler
}

func (h Handler) Cardinality() Cardinality { return h.card }

// RequestType 请求模型类型(非指针)
func (h Handler) RequestType() reflect.Type { return h.req }

// ResponseType 回应模型类型(非指针)
func (h Handler) ResponseType() reflect.Type { return h.resp }

func (h Handler) empty() bool {
	if h.fn == nil {
		return true
	}
	v := reflect.ValueOf(h.fn)
	return v.Kind() == reflect.Func && v.IsNil()
}

func unexpected(v any) error {
	return errs.Internal.Printf("unexpected message type %T", v)
}

// Unary 一问一答
func Unary[Req, Resp any](fn func(*Context, *Req) (*Resp, error)) Handler {
	return Handler{
		card: Cardinality_UnaryUnary,
		req:  reflect.TypeFor[Req](),
		resp: reflect.TypeFor[Resp](),
		fn:   fn,
		unary: func(ctx *Context, req any) (any, error) {
			r, ok := req.(*Req)
			if !ok {
				return nil, unexpected(req)
			}
			resp, err := fn(ctx, r)
			if err != nil {
				return nil, err
			}
			return resp, nil
		},
	}
}

// ServerStream 单条请求, 流式回应
func ServerStream[Req, Resp any](fn func(*Context, *Req) iter.Seq2[*Resp, error]) Handler {
	return Handler{
		card: Cardinality_UnaryStream,
		req:  reflect.TypeFor[Req](),
		resp: reflect.TypeFor[Resp](),
		fn:   fn,
		stream: func(ctx *Context, req any) iter.Seq2[any, error] {
			return func(yield func(any, error) bool) {
				r, ok := req.(*Req)
				if !ok {
					yield(nil, unexpected(req))
					return
				}
				forward(fn(ctx, r), yield)
			}
		},
	}
}

// ClientStream 流式请求, 单条回应
func ClientStream[Req, Resp any](fn func(*Context, *Stream[Req]) (*Resp, error)) Handler {
	return Handler{
		card: Cardinality_StreamUnary,
		req:  reflect.TypeFor[Req](),
		resp: reflect.TypeFor[Resp](),
		fn:   fn,
		unary: func(ctx *Context, req any) (any, error) {
			src, ok := req.(*AnyStream)
			if !ok {
				return nil, unexpected(req)
			}
			resp, err := fn(ctx, NewStream[Req](src))
			if err != nil {
				return nil, err
			}
			return resp, nil
		},
	}
}

// BidiStream 双向流
func BidiStream[Req, Resp any](fn func(*Context, *Stream[Req]) iter.Seq2[*Resp, error]) Handler {
	return Handler{
		card: Cardinality_StreamStream,
		req:  reflect.TypeFor[Req](),
		resp: reflect.TypeFor[Resp](),
		fn:   fn,
		stream: func(ctx *Context, req any) iter.Seq2[any, error] {
			return func(yield func(any, error) bool) {
				src, ok := req.(*AnyStream)
				if !ok {
					yield(nil, unexpected(req))
					return
				}
				forward(fn(ctx, NewStream[Req](src)), yield)
			}
		},
	}
}

// 第一个错误之后停止
func forward[T any](seq iter.Seq2[*T, error], yield func(any, error) bool) {
	if seq == nil {
		return
	}
	for v, err := range seq {
		if err != nil {
			yield(nil, err)
			return
		}
		if !yield(v, nil) {
			return
		}
	}
}
