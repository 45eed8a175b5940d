package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fixkme/fastgrpc/errs"
	"github.com/fixkme/fastgrpc/protogen"
	"github.com/google/go-cmp/cmp"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisImpl) {
	t.Helper()
	mr := miniredis.RunT(t)
	db, err := NewRedisFromConf(context.Background(), &RedisConf{Addrs: []string{mr.Addr()}})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(db.Stop)
	return mr, db
}

func TestRedisConf(t *testing.T) {
	if _, _, err := (&RedisConf{}).Options(); err == nil {
		t.Fatal("expected error for empty addrs")
	}
	mode, opts, err := (&RedisConf{Mode: RedisMode_Cluster, Addrs: []string{"a:1", "b:2"}}).Options()
	if err != nil || mode != RedisMode_Cluster {
		t.Fatal(mode, err)
	}
	if _, ok := opts.(*redis.ClusterOptions); !ok {
		t.Fatalf("opts %T", opts)
	}
	mode, opts, _ = (&RedisConf{Mode: "xx", Addrs: []string{"a:1"}, DB: 3}).Options()
	if mode != RedisMode_Single || opts.(*redis.Options).DB != 3 {
		t.Fatal(mode, opts)
	}
}

func TestNewRedisFailed(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := NewRedis(ctx, RedisMode_Single, &redis.Options{Addr: addr, MaxRetries: -1}); err == nil {
		t.Fatal("expected ping error")
	}
}

func TestSchemaStorePublish(t *testing.T) {
	mr, db := newTestRedis(t)
	ctx := context.Background()
	store := NewSchemaStore(db, "")
	doc := protogen.NewDocument("fast_grpc.proto", "fast_grpc", []string{"Greeter"}, "syntax = \"proto3\";\n")

	if _, err := store.Fetch(ctx, doc.Path); !errors.Is(err, redis.Nil) {
		t.Fatalf("fetch before publish: %v", err)
	}
	if err := store.Publish(ctx, doc); err != nil {
		t.Fatal(err)
	}
	if got := mr.HGet("fastgrpc:proto:fast_grpc.proto", "digest"); got != doc.Digest {
		t.Fatalf("digest %q", got)
	}
	got, err := store.Fetch(ctx, doc.Path)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(doc, got); diff != "" {
		t.Fatalf("fetch mismatch (-want +got):\n%s", diff)
	}

	// 内容不变时不重写
	mr.HSet("fastgrpc:proto:fast_grpc.proto", "package", "changed")
	if err := store.Publish(ctx, doc); err != nil {
		t.Fatal(err)
	}
	if got := mr.HGet("fastgrpc:proto:fast_grpc.proto", "package"); got != "changed" {
		t.Fatalf("unchanged document rewritten: %q", got)
	}
}

func TestSchemaStoreNotConnected(t *testing.T) {
	store := NewSchemaStore(&RedisImpl{}, "x")
	err := store.Publish(context.Background(), protogen.NewDocument("a.proto", "a", nil, ""))
	if !errors.Is(err, errs.Configuration) {
		t.Fatalf("got %v", err)
	}
}

func TestSchemaStoreWatch(t *testing.T) {
	_, db := newTestRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := NewSchemaStore(db, "app")

	first := protogen.NewDocument("a.proto", "a", []string{"A"}, "v1")
	if err := store.Publish(ctx, first); err != nil {
		t.Fatal(err)
	}

	docs := make(chan *protogen.Document, 4)
	if err := store.Watch(ctx, []string{"a.proto", "missing.proto"}, func(d *protogen.Document) { docs <- d }); err != nil {
		t.Fatal(err)
	}
	wait := func() *protogen.Document {
		t.Helper()
		select {
		case d := <-docs:
			return d
		case <-time.After(3 * time.Second):
			t.Fatal("timeout waiting for document")
		}
		return nil
	}
	if d := wait(); d.Content != "v1" {
		t.Fatalf("initial load %q", d.Content)
	}

	second := protogen.NewDocument("a.proto", "a", []string{"A"}, "v2")
	if err := store.Publish(ctx, second); err != nil {
		t.Fatal(err)
	}
	if d := wait(); d.Digest != second.Digest {
		t.Fatalf("changed digest %q", d.Digest)
	}
}

func TestRedLock(t *testing.T) {
	mr, db := newTestRedis(t)
	ctx := context.Background()
	a, b := NewRedLock(db.GetCmdable()), NewRedLock(db.GetCmdable())
	if a.Owner() == b.Owner() {
		t.Fatal("owners must differ")
	}
	if err := a.Lock(ctx, "k", time.Second, 10*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if b.TryLock(ctx, "k", time.Second) {
		t.Fatal("lock acquired twice")
	}
	if err := b.Lock(ctx, "k", 30*time.Millisecond, 10*time.Millisecond); !errors.Is(err, ErrFailedLock) {
		t.Fatalf("got %v", err)
	}
	// 别人的锁释放不了
	if ok, err := b.UnLock(ctx, "k"); err != nil || ok {
		t.Fatal(ok, err)
	}
	if ok, err := a.UnLock(ctx, "k"); err != nil || !ok {
		t.Fatal(ok, err)
	}
	if mr.Exists("k") {
		t.Fatal("lock key not deleted")
	}
	if !b.TryLock(ctx, "k", time.Second) {
		t.Fatal("lock not free after unlock")
	}
}

func TestSchemaStorePublishLocked(t *testing.T) {
	mr, db := newTestRedis(t)
	store := NewSchemaStore(db, "")
	mr.Set("fastgrpc:proto:a.proto:lock", "other")
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := store.Publish(ctx, protogen.NewDocument("a.proto", "a", nil, "v1"))
	if err == nil {
		t.Fatal("expected publish to wait for the lock")
	}
	if mr.Exists("fastgrpc:proto:a.proto") {
		t.Fatal("document written without the lock")
	}
}
