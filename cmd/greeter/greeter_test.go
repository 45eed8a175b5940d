package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fixkme/fastgrpc/framework/config"
	"github.com/fixkme/fastgrpc/rpc"
)

func TestGenerate(t *testing.T) {
	conf := &config.AppConfig{}
	conf.Server.Name = "Greeter"
	conf.Proto.Path = "greeter.proto"
	docs, err := generate(conf)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 || docs[0].Path != "greeter.proto" {
		t.Fatalf("docs %+v", docs)
	}
	content := docs[0].Content
	for _, want := range []string{
		"package greeter;",
		`import "google/protobuf/timestamp.proto";`,
		"    // Greet a single user\n    rpc SayHello(HelloRequest) returns (HelloReply) {}",
		"rpc StreamGreetings(GreetRequest) returns (stream HelloReply) {}",
		"rpc Chat(stream HelloRequest) returns (stream HelloReply) {}",
		"optional string lang = 2;",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("missing %q in\n%s", want, content)
		}
	}
}

func TestStreamGreetingsStopsEarly(t *testing.T) {
	ctx := rpc.NewContext(context.Background(), "/greeter.Greeter/StreamGreetings")
	n := 0
	for reply, err := range StreamGreetings(ctx, &GreetRequest{Name: "a", Count: 10}) {
		if err != nil {
			t.Fatal(err)
		}
		n++
		if reply.Message != "Hello a #1" {
			t.Fatalf("message %q", reply.Message)
		}
		break
	}
	if n != 1 {
		t.Fatalf("produced %d", n)
	}
}

func TestProtoCommand(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"proto", "--out", dir, "--env", filepath.Join(dir, "none.env")})
	if err := os.WriteFile(filepath.Join(dir, "none.env"), []byte("FASTGRPC_PROTO_PATH=hello.proto\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("FASTGRPC_PROTO_PATH") })
	if err := rootCmd.Execute(); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "hello.proto written=true") {
		t.Fatalf("output %q", out.String())
	}
	if _, err := os.Stat(filepath.Join(dir, "hello.proto")); err != nil {
		t.Fatal(err)
	}
}
