package middleware

import (
	"context"
	"errors"
	"iter"
	"strings"
	"testing"
	"time"

	"github.com/fixkme/fastgrpc/errs"
	"github.com/fixkme/fastgrpc/mlog"
	"github.com/fixkme/fastgrpc/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/time/rate"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type Ping struct {
	Seq int32
}

type Pong struct {
	Seq int32
}

var errBoom = errors.New("boom")

func Echo(ctx *rpc.Context, req *Ping) (*Pong, error) {
	if req.Seq == -2 {
		panic("echo crashed")
	}
	if req.Seq < 0 {
		return nil, errBoom
	}
	return &Pong{Seq: req.Seq}, nil
}

func Count(ctx *rpc.Context, req *Ping) iter.Seq2[*Pong, error] {
	return func(yield func(*Pong, error) bool) {
		if req.Seq < 0 {
			yield(&Pong{Seq: 1}, nil)
			panic("count crashed")
		}
		for i := int32(1); i <= req.Seq; i++ {
			if !yield(&Pong{Seq: i}, nil) {
				return
			}
		}
		if req.Seq == 0 {
			yield(nil, errBoom)
		}
	}
}

type fixture struct {
	echo  *rpc.MethodDesc
	count *rpc.MethodDesc
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	svc := rpc.NewService("Pinger", rpc.WithProto("ping.proto"))
	echo, err := rpc.UnaryUnary(svc, Echo)
	if err != nil {
		t.Fatal(err)
	}
	count, err := rpc.UnaryStream(svc, Count)
	if err != nil {
		t.Fatal(err)
	}
	return fixture{echo: echo, count: count}
}

func unary(t *testing.T, mws []rpc.Middleware, md *rpc.MethodDesc) rpc.UnaryHandler {
	t.Helper()
	h, _, err := rpc.Chain(mws, md)
	if err != nil {
		t.Fatal(err)
	}
	return h
}

func stream(t *testing.T, mws []rpc.Middleware, md *rpc.MethodDesc) rpc.StreamHandler {
	t.Helper()
	_, h, err := rpc.Chain(mws, md)
	if err != nil {
		t.Fatal(err)
	}
	return h
}

func callCtx(md *rpc.MethodDesc) *rpc.Context {
	return rpc.NewContext(context.Background(), md.FullMethod())
}

func drain(seq iter.Seq2[any, error]) (n int, last error) {
	for _, err := range seq {
		if err != nil {
			last = err
			continue
		}
		n++
	}
	return
}

func observe(t *testing.T) *observer.ObservedLogs {
	core, logs := observer.New(zapcore.DebugLevel)
	mlog.UseZapLogger(zap.New(core), mlog.DebugLevel)
	t.Cleanup(func() { mlog.SetLogger(nil) })
	return logs
}

func TestErrorLog(t *testing.T) {
	logs := observe(t)
	fx := newFixture(t)

	h := unary(t, ErrorLog(), fx.echo)
	if _, err := h(callCtx(fx.echo), &Ping{Seq: 1}); err != nil {
		t.Fatal(err)
	}
	if logs.Len() != 0 {
		t.Fatalf("success logged: %v", logs.All())
	}
	if _, err := h(callCtx(fx.echo), &Ping{Seq: -1}); err != errBoom {
		t.Fatalf("err = %v, want passthrough", err)
	}
	entries := logs.All()
	if len(entries) != 1 || entries[0].Level != zapcore.ErrorLevel {
		t.Fatalf("entries = %+v", entries)
	}
	want := "GRPC invoke /ping.Pinger/Echo({Seq:-1}) [Err] -> boom"
	if entries[0].Message != want {
		t.Errorf("message = %q, want %q", entries[0].Message, want)
	}

	sh := stream(t, ErrorLog(), fx.count)
	if n, err := drain(sh(callCtx(fx.count), &Ping{Seq: 0})); n != 0 || err != errBoom {
		t.Errorf("stream = %d, %v", n, err)
	}
	if logs.Len() != 2 {
		t.Errorf("stream error not logged")
	}
}

func TestAccessLog(t *testing.T) {
	logs := observe(t)
	fx := newFixture(t)
	h := unary(t, AccessLog(), fx.echo)
	_, _ = h(callCtx(fx.echo), &Ping{Seq: 3})
	_, _ = h(callCtx(fx.echo), &Ping{Seq: -3})
	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("entries = %d", len(entries))
	}
	if entries[0].Level != zapcore.InfoLevel || !strings.Contains(entries[0].Message, "[OK]") {
		t.Errorf("ok entry = %+v", entries[0])
	}
	if entries[1].Level != zapcore.WarnLevel || !strings.Contains(entries[1].Message, "[Err]") {
		t.Errorf("err entry = %+v", entries[1])
	}

	sh := stream(t, AccessLog(), fx.count)
	if n, _ := drain(sh(callCtx(fx.count), &Ping{Seq: 2})); n != 2 {
		t.Errorf("stream items = %d", n)
	}
	if logs.Len() != 3 {
		t.Errorf("stream completion not logged")
	}
}

func TestRequestID(t *testing.T) {
	fx := newFixture(t)
	var seen string
	capture := rpc.NewUnaryMiddleware("capture", func(ctx *rpc.Context, req any, next rpc.UnaryHandler) (any, error) {
		seen = ctx.CallID()
		return next(ctx, req)
	})
	h := unary(t, append(RequestID(), capture), fx.echo)

	in := metadata.NewIncomingContext(context.Background(), metadata.Pairs(RequestIDKey, "req-42"))
	if _, err := h(rpc.NewContext(in, fx.echo.FullMethod()), &Ping{}); err != nil {
		t.Fatal(err)
	}
	if seen != "req-42" {
		t.Errorf("call id = %q", seen)
	}

	ctx := callCtx(fx.echo)
	generated := ctx.CallID()
	if _, err := h(ctx, &Ping{}); err != nil {
		t.Fatal(err)
	}
	if seen != generated {
		t.Errorf("call id = %q, want generated %q", seen, generated)
	}
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "fastgrpc")
	fx := newFixture(t)

	h := unary(t, m.Middlewares(), fx.echo)
	_, _ = h(callCtx(fx.echo), &Ping{Seq: 1})
	_, _ = h(callCtx(fx.echo), &Ping{Seq: 2})
	_, _ = h(callCtx(fx.echo), &Ping{Seq: -1})

	echo := fx.echo.FullMethod()
	if got := testutil.ToFloat64(m.Handled.WithLabelValues(echo, codes.OK.String())); got != 2 {
		t.Errorf("ok = %v", got)
	}
	if got := testutil.ToFloat64(m.Handled.WithLabelValues(echo, codes.Internal.String())); got != 1 {
		t.Errorf("internal = %v", got)
	}
	if got := testutil.ToFloat64(m.InFlight.WithLabelValues(echo)); got != 0 {
		t.Errorf("in flight = %v", got)
	}

	sh := stream(t, m.Middlewares(), fx.count)
	if n, _ := drain(sh(callCtx(fx.count), &Ping{Seq: 3})); n != 3 {
		t.Fatalf("items = %d", n)
	}
	count := fx.count.FullMethod()
	if got := testutil.ToFloat64(m.Sent.WithLabelValues(count)); got != 3 {
		t.Errorf("sent = %v", got)
	}
	if got := testutil.ToFloat64(m.Handled.WithLabelValues(count, codes.OK.String())); got != 1 {
		t.Errorf("stream handled = %v", got)
	}
	if n := testutil.CollectAndCount(m.Duration); n != 2 {
		t.Errorf("duration series = %d", n)
	}

	// handler panic
	if _, err := h(callCtx(fx.echo), &Ping{Seq: -2}); !errors.Is(err, errs.Internal) {
		t.Errorf("panic err = %v", err)
	}
	if got := testutil.ToFloat64(m.Handled.WithLabelValues(echo, codes.Internal.String())); got != 2 {
		t.Errorf("internal after panic = %v", got)
	}
	if got := testutil.ToFloat64(m.InFlight.WithLabelValues(echo)); got != 0 {
		t.Errorf("in flight after panic = %v", got)
	}
	if n, err := drain(sh(callCtx(fx.count), &Ping{Seq: -1})); n != 1 || !errors.Is(err, errs.Internal) {
		t.Errorf("stream panic = %d, %v", n, err)
	}
	if got := testutil.ToFloat64(m.Handled.WithLabelValues(count, codes.Internal.String())); got != 1 {
		t.Errorf("stream internal = %v", got)
	}
	if got := testutil.ToFloat64(m.InFlight.WithLabelValues(count)); got != 0 {
		t.Errorf("stream in flight after panic = %v", got)
	}
}

func TestPanicLogged(t *testing.T) {
	logs := observe(t)
	fx := newFixture(t)
	h := unary(t, ErrorLog(), fx.echo)
	if _, err := h(callCtx(fx.echo), &Ping{Seq: -2}); !errors.Is(err, errs.Internal) {
		t.Fatalf("err = %v", err)
	}
	var sawPanic, sawErr bool
	for _, e := range logs.All() {
		if strings.Contains(e.Message, "echo crashed") {
			sawPanic = true
		}
		if strings.HasPrefix(e.Message, "GRPC invoke /ping.Pinger/Echo({Seq:-2}) [Err]") {
			sawErr = true
		}
	}
	if !sawPanic || !sawErr {
		t.Errorf("panic not logged: %+v", logs.All())
	}

	// 外层中断流时的panic不被吞掉
	sh := stream(t, nil, fx.count)
	defer func() {
		if r := recover(); r == nil {
			t.Error("panic raised by the consumer was swallowed")
		}
	}()
	for range sh(callCtx(fx.count), &Ping{Seq: 2}) {
		panic("consumer crashed")
	}
}

func TestRateLimit(t *testing.T) {
	fx := newFixture(t)
	h := unary(t, RateLimit(rate.Every(time.Hour), 2), fx.echo)
	var exhausted int
	for i := 0; i < 5; i++ {
		if _, err := h(callCtx(fx.echo), &Ping{}); status.Code(err) == codes.ResourceExhausted {
			exhausted++
		}
	}
	if exhausted != 3 {
		t.Errorf("exhausted = %d, want 3", exhausted)
	}

	sh := stream(t, []rpc.Middleware{StreamRateLimit(rate.Every(time.Hour), 1, "Count")}, fx.count)
	if n, err := drain(sh(callCtx(fx.count), &Ping{Seq: 1})); n != 1 || err != nil {
		t.Errorf("first stream = %d, %v", n, err)
	}
	if _, err := drain(sh(callCtx(fx.count), &Ping{Seq: 1})); status.Code(err) != codes.ResourceExhausted {
		t.Errorf("second stream = %v", err)
	}
	if _, _, err := rpc.Chain([]rpc.Middleware{UnaryRateLimit(rate.Every(time.Hour), 1, "Count")}, fx.count); err == nil {
		t.Error("unary rate limit targeted at a streaming method should be rejected")
	}
}

func TestTimeout(t *testing.T) {
	svc := rpc.NewService("Slow", rpc.WithProto("slow.proto"))
	md, err := rpc.UnaryUnary(svc, func(ctx *rpc.Context, req *Ping) (*Pong, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, rpc.WithName("Wait"))
	if err != nil {
		t.Fatal(err)
	}
	h := unary(t, Timeout(10*time.Millisecond), md)
	if _, err := h(callCtx(md), &Ping{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v", err)
	}
}
