package mongo

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/fixkme/fastgrpc/protogen"
	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.mongodb.org/mongo-driver/event"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestPoolMonitor(t *testing.T) {
	m := &MongoPoolMonitor{}
	for _, typ := range []string{
		event.ConnectionCreated, event.ConnectionCreated, event.ConnectionReady, event.ConnectionClosed,
		event.GetSucceeded, event.GetSucceeded, event.ConnectionReturned, event.PoolCleared,
	} {
		m.Event(&event.PoolEvent{Type: typ})
	}
	if got := m.GetActiveConnections(); got != 1 {
		t.Fatalf("active connections %d", got)
	}
	if got := m.GetInUseConnections(); got != 1 {
		t.Fatalf("in use connections %d", got)
	}
	if m.PoolCleared() != 1 {
		t.Fatalf("pool cleared %d", m.PoolCleared())
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(m.Collectors("test")...)
	if got := testutil.ToFloat64(m.Collectors("x")[0]); got != 1 {
		t.Fatalf("active gauge %v", got)
	}
	if n := testutil.CollectAndCount(reg); n != 2 {
		t.Fatalf("collected %d", n)
	}
}

func TestClientOptions(t *testing.T) {
	conf := &MongoConf{Uri: "mongodb://127.0.0.1:27017", MinPoolSize: 2}
	opts := conf.ClientOptions(&MongoPoolMonitor{})
	if err := opts.Validate(); err != nil {
		t.Fatal(err)
	}
	if *opts.MaxPoolSize != 100 || *opts.MinPoolSize != 2 || *opts.MaxConnIdleTime != 30*time.Second {
		t.Fatalf("pool options %d %d %s", *opts.MaxPoolSize, *opts.MinPoolSize, *opts.MaxConnIdleTime)
	}
	if opts.PoolMonitor == nil {
		t.Fatal("pool monitor not set")
	}
	if _, err := NewMongo(context.Background(), &MongoConf{}); err == nil {
		t.Fatal("expected error for empty uri")
	}
}

// 需要 MONGO_URI, 例如 mongodb://127.0.0.1:27017
func TestSchemaStore(t *testing.T) {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	m, err := NewMongo(ctx, &MongoConf{Uri: uri})
	if err != nil {
		t.Fatal(err)
	}
	defer m.Stop(context.Background())

	db := m.Client().Database("fastgrpc_test")
	defer db.Drop(context.Background())
	store := NewSchemaStore(db, "")

	doc := protogen.NewDocument("fast_grpc.proto", "fast_grpc", []string{"Greeter"}, "v1")
	if _, err := store.Fetch(ctx, doc.Path); !errors.Is(err, mongo.ErrNoDocuments) {
		t.Fatalf("fetch before publish: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := store.Publish(ctx, doc); err != nil {
			t.Fatal(err)
		}
	}
	got, err := store.Fetch(ctx, doc.Path)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(doc, got); diff != "" {
		t.Fatalf("fetch mismatch (-want +got):\n%s", diff)
	}

	next := protogen.NewDocument("fast_grpc.proto", "fast_grpc", []string{"Greeter"}, "v2")
	if err := store.Publish(ctx, next); err != nil {
		t.Fatal(err)
	}
	docs, err := store.List(ctx, "fast_grpc")
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 || docs[0].Digest != next.Digest {
		t.Fatalf("list %+v", docs)
	}
}
