// Package client 使用与服务端相同的服务定义发起调用
package client

import (
	"context"
	"io"
	"iter"
	"reflect"

	"github.com/fixkme/fastgrpc/errs"
	"github.com/fixkme/fastgrpc/protogen"
	"github.com/fixkme/fastgrpc/rpc"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type Client struct {
	cc     grpc.ClientConnInterface
	bundle *protogen.Bundle
}

// New services 只用于生成描述符, 处理函数不会被调用
func New(cc grpc.ClientConnInterface, services ...*rpc.Service) (*Client, error) {
	bundle, err := protogen.Build(services)
	if err != nil {
		return nil, err
	}
	return &Client{cc: cc, bundle: bundle}, nil
}

func (c *Client) Bundle() *protogen.Bundle { return c.bundle }

func (c *Client) binding(fullMethod string, card rpc.Cardinality, req, resp reflect.Type) (*protogen.MethodBinding, error) {
	b := c.bundle.Method(fullMethod)
	if b == nil {
		return nil, errs.Configuration.Printf("unknown method %s", fullMethod)
	}
	if b.Method.Cardinality != card {
		return nil, errs.Configuration.Printf("%s is %s, called as %s", fullMethod, b.Method.Cardinality, card)
	}
	if got := b.Request.Schema().GoType; got != req {
		return nil, errs.Configuration.Printf("%s request is %v, not %v", fullMethod, got, req)
	}
	if got := b.Response.Schema().GoType; got != resp {
		return nil, errs.Configuration.Printf("%s response is %v, not %v", fullMethod, got, resp)
	}
	return b, nil
}

func streamDesc(b *protogen.MethodBinding) *grpc.StreamDesc {
	return &grpc.StreamDesc{
		StreamName:    b.Method.Name,
		ServerStreams: b.Method.Cardinality.ServerStreaming(),
		ClientStreams: b.Method.Cardinality.ClientStreaming(),
	}
}

func encode(b *protogen.MethodBinding, req any) (any, error) {
	m, err := b.Request.Encode(req)
	if err != nil {
		return nil, err
	}
	return m.Interface(), nil
}

func recv[Resp any](cs grpc.ClientStream, b *protogen.MethodBinding) (*Resp, error) {
	out := b.Response.New().Interface()
	if err := cs.RecvMsg(out); err != nil {
		return nil, err
	}
	v, err := b.Response.Decode(out.ProtoReflect())
	if err != nil {
		return nil, err
	}
	return v.(*Resp), nil
}

// Invoke 一问一答
func Invoke[Req, Resp any](ctx context.Context, c *Client, fullMethod string, req *Req, opts ...grpc.CallOption) (*Resp, error) {
	b, err := c.binding(fullMethod, rpc.Cardinality_UnaryUnary, reflect.TypeFor[Req](), reflect.TypeFor[Resp]())
	if err != nil {
		return nil, err
	}
	in, err := encode(b, req)
	if err != nil {
		return nil, err
	}
	out := b.Response.New().Interface()
	if err := c.cc.Invoke(ctx, fullMethod, in, out, opts...); err != nil {
		return nil, err
	}
	v, err := b.Response.Decode(out.ProtoReflect())
	if err != nil {
		return nil, err
	}
	return v.(*Resp), nil
}

// ServerStream 迭代结束或中途退出时关闭流
func ServerStream[Req, Resp any](ctx context.Context, c *Client, fullMethod string, req *Req, opts ...grpc.CallOption) iter.Seq2[*Resp, error] {
	return func(yield func(*Resp, error) bool) {
		b, err := c.binding(fullMethod, rpc.Cardinality_UnaryStream, reflect.TypeFor[Req](), reflect.TypeFor[Resp]())
		if err != nil {
			yield(nil, err)
			return
		}
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		cs, err := c.cc.NewStream(ctx, streamDesc(b), fullMethod, opts...)
		if err != nil {
			yield(nil, err)
			return
		}
		in, err := encode(b, req)
		if err != nil {
			yield(nil, err)
			return
		}
		if err := cs.SendMsg(in); err != nil && err != io.EOF {
			yield(nil, err)
			return
		}
		if err := cs.CloseSend(); err != nil {
			yield(nil, err)
			return
		}
		for {
			resp, err := recv[Resp](cs, b)
			if err == io.EOF {
				return
			}
			if !yield(resp, err) || err != nil {
				return
			}
		}
	}
}

// ClientStream 发送完reqs后等待回应
func ClientStream[Req, Resp any](ctx context.Context, c *Client, fullMethod string, reqs iter.Seq[*Req], opts ...grpc.CallOption) (*Resp, error) {
	b, err := c.binding(fullMethod, rpc.Cardinality_StreamUnary, reflect.TypeFor[Req](), reflect.TypeFor[Resp]())
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	cs, err := c.cc.NewStream(ctx, streamDesc(b), fullMethod, opts...)
	if err != nil {
		return nil, err
	}
	if err := sendAll(cs, b, reqs); err != nil {
		return nil, err
	}
	return recv[Resp](cs, b)
}

// io.EOF 表示服务端已结束, 真正的状态由RecvMsg返回
func sendAll[Req any](cs grpc.ClientStream, b *protogen.MethodBinding, reqs iter.Seq[*Req]) error {
	for req := range reqs {
		in, err := encode(b, req)
		if err != nil {
			return err
		}
		if err := cs.SendMsg(in); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
	return cs.CloseSend()
}

// Bidi 发送在独立的goroutine中进行, 迭代接收回应
func Bidi[Req, Resp any](ctx context.Context, c *Client, fullMethod string, reqs iter.Seq[*Req], opts ...grpc.CallOption) iter.Seq2[*Resp, error] {
	return func(yield func(*Resp, error) bool) {
		b, err := c.binding(fullMethod, rpc.Cardinality_StreamStream, reflect.TypeFor[Req](), reflect.TypeFor[Resp]())
		if err != nil {
			yield(nil, err)
			return
		}
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		cs, err := c.cc.NewStream(ctx, streamDesc(b), fullMethod, opts...)
		if err != nil {
			yield(nil, err)
			return
		}
		var g errgroup.Group
		g.Go(func() error {
			err := sendAll(cs, b, reqs)
			if err != nil {
				cancel()
			}
			return err
		})
		for {
			resp, err := recv[Resp](cs, b)
			if err == io.EOF {
				if serr := g.Wait(); serr != nil {
					yield(nil, serr)
				}
				return
			}
			if err != nil {
				cancel()
				// 发送端出错时接收端只会看到Canceled
				if serr := g.Wait(); serr != nil && status.Code(err) == codes.Canceled {
					err = serr
				}
				yield(nil, err)
				return
			}
			if !yield(resp, nil) {
				cancel()
				_ = g.Wait()
				return
			}
		}
	}
}
