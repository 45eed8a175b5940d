package main

import (
	"fmt"
	"iter"
	"time"

	"github.com/fixkme/fastgrpc/middleware"
	"github.com/fixkme/fastgrpc/rpc"
	"github.com/fixkme/fastgrpc/server"
	"google.golang.org/grpc/codes"
)

type HelloRequest struct {
	Name string  `validate:"required,max=64"`
	Lang *string `validate:"omitempty,oneof=en zh"`
}

type HelloReply struct {
	Message string
	At      time.Time
}

type GreetRequest struct {
	Name     string        `validate:"required"`
	Count    int32         `validate:"min=1,max=100"`
	Interval time.Duration `validate:"max=5s"`
}

func greeting(req *HelloRequest) string {
	if req.Lang != nil && *req.Lang == "zh" {
		return "你好 " + req.Name
	}
	return "Hello " + req.Name
}

func SayHello(ctx *rpc.Context, req *HelloRequest) (*HelloReply, error) {
	if req.Name == "nobody" {
		return nil, ctx.Abort(codes.NotFound, "unknown user %s", req.Name)
	}
	return &HelloReply{Message: greeting(req), At: time.Now()}, nil
}

func StreamGreetings(ctx *rpc.Context, req *GreetRequest) iter.Seq2[*HelloReply, error] {
	return func(yield func(*HelloReply, error) bool) {
		for i := int32(1); i <= req.Count; i++ {
			if !ctx.IsActive() {
				return
			}
			reply := &HelloReply{Message: fmt.Sprintf("Hello %s #%d", req.Name, i), At: time.Now()}
			if !yield(reply, nil) {
				return
			}
			if req.Interval > 0 && i < req.Count {
				time.Sleep(req.Interval)
			}
		}
	}
}

func Chat(ctx *rpc.Context, in *rpc.Stream[HelloRequest]) iter.Seq2[*HelloReply, error] {
	return func(yield func(*HelloReply, error) bool) {
		for req, err := range in.All() {
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(&HelloReply{Message: greeting(req), At: time.Now()}, nil) {
				return
			}
		}
	}
}

// build 注册greeter的全部方法
func build(app *server.App) error {
	svc := app.Service()
	if _, err := rpc.UnaryUnary(svc, SayHello, rpc.WithDescription("Greet a single user")); err != nil {
		return err
	}
	if _, err := rpc.UnaryStream(svc, StreamGreetings, rpc.WithDescription("Greet a user Count times")); err != nil {
		return err
	}
	if _, err := rpc.StreamStream(svc, Chat); err != nil {
		return err
	}
	return svc.Use(middleware.Timeout(30 * time.Second)...)
}
