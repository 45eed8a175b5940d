package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(wd) })
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	conf, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if conf.Server.Name != "FastGRPC" || conf.Server.ListenAddr != ":50051" || !conf.Server.Reflection {
		t.Fatalf("server defaults %+v", conf.Server)
	}
	if conf.Proto.Path != "fast_grpc.proto" || conf.Log.LogLevel != "info" {
		t.Fatalf("defaults %+v %+v", conf.Proto, conf.Log)
	}
	if conf.Discovery.LeaseTTL != 5 || conf.Redis.Prefix != "fastgrpc" {
		t.Fatalf("defaults %+v %+v", conf.Discovery, conf.Redis)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "app.yaml")
	yaml := `
server:
  name: Greeter
  listen_addr: ":9000"
proto:
  path: greeter.proto
  auto_gen: true
  include_dir: [proto, third_party]
redis:
  addrs: ["127.0.0.1:6379"]
rate_limit:
  limit: 100
  burst: 10
`
	if err := os.WriteFile(file, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}
	envFile := filepath.Join(dir, "test.env")
	if err := os.WriteFile(envFile, []byte("FASTGRPC_LOG_LOG_LEVEL=debug\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FASTGRPC_SERVER_LISTEN_ADDR", ":9100")
	t.Setenv("FASTGRPC_DISCOVERY_ENDPOINTS", "10.0.0.1:2379")
	t.Cleanup(func() { os.Unsetenv("FASTGRPC_LOG_LOG_LEVEL") })

	if err := LoadConfig(file, envFile); err != nil {
		t.Fatal(err)
	}
	conf := Config
	if conf.Server.Name != "Greeter" {
		t.Fatalf("name %q", conf.Server.Name)
	}
	// 环境变量覆盖配置文件
	if conf.Server.ListenAddr != ":9100" {
		t.Fatalf("listen addr %q", conf.Server.ListenAddr)
	}
	if conf.Log.LogLevel != "debug" {
		t.Fatalf("log level %q", conf.Log.LogLevel)
	}
	if diff := cmp.Diff([]string{"proto", "third_party"}, conf.Proto.IncludeDir); diff != "" {
		t.Fatal(diff)
	}
	if diff := cmp.Diff([]string{"10.0.0.1:2379"}, conf.Discovery.Endpoints); diff != "" {
		t.Fatal(diff)
	}
	if !conf.Proto.AutoGen || conf.RateLimit.Limit != 100 || conf.RateLimit.Burst != 10 {
		t.Fatalf("proto %+v rate %+v", conf.Proto, conf.RateLimit)
	}
	if conf.JsonFormat() == "{}" {
		t.Fatal("empty json")
	}
}

func TestLoadMissingFile(t *testing.T) {
	chdir(t, t.TempDir())
	if _, err := Load("does-not-exist.yaml"); err == nil {
		t.Fatal("expected error")
	}
	if _, err := Load("", "missing.env"); err == nil {
		t.Fatal("expected error for explicit env file")
	}
}
