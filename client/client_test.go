package client

import (
	"context"
	"errors"
	"iter"
	"net"
	"slices"
	"testing"

	"github.com/fixkme/fastgrpc/errs"
	"github.com/fixkme/fastgrpc/rpc"
	"github.com/fixkme/fastgrpc/server"
	"github.com/google/go-cmp/cmp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type Item struct {
	ID    int32
	Label string
}

type Ack struct {
	Count int32
}

// Relay 收到ID为0的条目时以错误结束
func Relay(ctx *rpc.Context, in *rpc.Stream[Item]) iter.Seq2[*Item, error] {
	return func(yield func(*Item, error) bool) {
		for item, err := range in.All() {
			if err != nil {
				yield(nil, err)
				return
			}
			if item.ID == 0 {
				yield(nil, status.Error(codes.FailedPrecondition, "item without id"))
				return
			}
			if !yield(&Item{ID: item.ID, Label: "relayed " + item.Label}, nil) {
				return
			}
		}
	}
}

func Collect(ctx *rpc.Context, in *rpc.Stream[Item]) (*Ack, error) {
	var n int32
	for _, err := range in.All() {
		if err != nil {
			return nil, err
		}
		n++
	}
	return &Ack{Count: n}, nil
}

func Get(ctx *rpc.Context, req *Item) (*Item, error) {
	return req, nil
}

func itemService(t *testing.T) *rpc.Service {
	t.Helper()
	svc := rpc.NewService("Items", rpc.WithProto("items.proto"))
	if _, err := rpc.StreamStream(svc, Relay); err != nil {
		t.Fatal(err)
	}
	if _, err := rpc.StreamUnary(svc, Collect); err != nil {
		t.Fatal(err)
	}
	if _, err := rpc.UnaryUnary(svc, Get); err != nil {
		t.Fatal(err)
	}
	return svc
}

func dial(t *testing.T, svc *rpc.Service) *Client {
	t.Helper()
	app := server.New(server.WithReflection(false))
	if err := app.AddService(svc); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := app.Setup(ctx); err != nil {
		cancel()
		t.Fatal(err)
	}
	lis := bufconn.Listen(1 << 20)
	done := make(chan error, 1)
	go func() { done <- app.Serve(ctx, lis) }()
	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		cancel()
		t.Fatal(err)
	}
	t.Cleanup(func() {
		conn.Close()
		cancel()
		<-done
	})
	cli, err := New(conn, svc)
	if err != nil {
		t.Fatal(err)
	}
	return cli
}

func TestBidi(t *testing.T) {
	cli := dial(t, itemService(t))
	ctx := context.Background()
	items := []*Item{{ID: 1, Label: "a"}, {ID: 2, Label: "b"}}
	var got []*Item
	for item, err := range Bidi[Item, Item](ctx, cli, "/items.Items/Relay", slices.Values(items)) {
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, item)
	}
	want := []*Item{{ID: 1, Label: "relayed a"}, {ID: 2, Label: "relayed b"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("relay (-want +got):\n%s", diff)
	}

	// 服务端中途出错
	bad := []*Item{{ID: 1}, {ID: 0}, {ID: 3}}
	var n int
	var last error
	for _, err := range Bidi[Item, Item](ctx, cli, "/items.Items/Relay", slices.Values(bad)) {
		if err != nil {
			last = err
			continue
		}
		n++
	}
	if n != 1 || status.Code(last) != codes.FailedPrecondition {
		t.Errorf("n = %d, last = %v", n, last)
	}
}

func TestClientStream(t *testing.T) {
	cli := dial(t, itemService(t))
	items := slices.Values([]*Item{{ID: 1}, {ID: 2}, {ID: 3}})
	ack, err := ClientStream[Item, Ack](context.Background(), cli, "/items.Items/Collect", items)
	if err != nil || ack.Count != 3 {
		t.Errorf("ack = %v, %v", ack, err)
	}
	empty := slices.Values([]*Item(nil))
	if ack, err := ClientStream[Item, Ack](context.Background(), cli, "/items.Items/Collect", empty); err != nil || ack.Count != 0 {
		t.Errorf("empty ack = %v, %v", ack, err)
	}
}

func TestBindingErrors(t *testing.T) {
	cli, err := New(nil, itemService(t))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if _, err := Invoke[Item, Item](ctx, cli, "/items.Items/Relay", &Item{}); !errors.Is(err, errs.Configuration) {
		t.Errorf("cardinality: %v", err)
	}
	if _, err := Invoke[Item, Ack](ctx, cli, "/items.Items/Get", &Item{}); !errors.Is(err, errs.Configuration) {
		t.Errorf("response type: %v", err)
	}
	for _, err := range ServerStream[Item, Item](ctx, cli, "/items.Items/Get", &Item{}) {
		if !errors.Is(err, errs.Configuration) {
			t.Errorf("server stream on unary: %v", err)
		}
	}
	if _, err := New(nil, rpc.NewService("bad name", rpc.WithProto("x.proto"))); !errors.Is(err, errs.Configuration) {
		t.Errorf("invalid service: %v", err)
	}
}
