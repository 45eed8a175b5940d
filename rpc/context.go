package rpc

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/xid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// Context 一次调用的上下文, 贯穿中间件与处理函数
type Context struct {
	context.Context
	method string
	callID string
	start  time.Time
	md     metadata.MD
}

// NewContext fullMethod 形如 /pkg.Service/Method
func NewContext(ctx context.Context, fullMethod string) *Context {
	md, _ := metadata.FromIncomingContext(ctx)
	return &Context{
		Context: ctx,
		method:  fullMethod,
		callID:  xid.New().String(),
		start:   time.Now(),
		md:      md,
	}
}

// WithContext 替换底层context, 其余不变
func (c *Context) WithContext(ctx context.Context) *Context {
	cc := *c
	cc.Context = ctx
	return &cc
}

func (c *Context) Method() string { return c.method }

func (c *Context) CallID() string { return c.callID }

func (c *Context) SetCallID(id string) {
	if id != "" {
		c.callID = id
	}
}

func (c *Context) Elapsed() time.Duration { return time.Since(c.start) }

// Metadata 请求头, 只读
func (c *Context) Metadata() metadata.MD { return c.md }

func (c *Context) StrValues(key string) []string {
	return c.md.Get(key)
}

func (c *Context) GetStr(key string) string {
	if vals := c.md.Get(key); len(vals) > 0 {
		return vals[0]
	}
	return ""
}

func (c *Context) GetInt(key string) int64 {
	v, err := strconv.ParseInt(c.GetStr(key), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func (c *Context) SetHeader(kv ...string) error {
	return grpc.SetHeader(c.Context, metadata.Pairs(kv...))
}

func (c *Context) SendHeader(kv ...string) error {
	return grpc.SendHeader(c.Context, metadata.Pairs(kv...))
}

func (c *Context) SetTrailer(kv ...string) error {
	return grpc.SetTrailer(c.Context, metadata.Pairs(kv...))
}

// Peer 对端地址, 未知时为空
func (c *Context) Peer() string {
	if p, ok := peer.FromContext(c.Context); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return ""
}

// TimeRemaining 没有deadline时ok为false
func (c *Context) TimeRemaining() (time.Duration, bool) {
	dl, ok := c.Deadline()
	if !ok {
		return 0, false
	}
	return time.Until(dl), true
}

func (c *Context) IsActive() bool {
	return c.Err() == nil
}

// Abort 以指定状态码结束调用, 处理函数直接返回该错误即可
func (c *Context) Abort(code codes.Code, format string, args ...any) error {
	return status.Errorf(code, format, args...)
}
