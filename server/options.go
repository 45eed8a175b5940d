package server

import (
	"time"

	"github.com/fixkme/fastgrpc/protogen"
	"github.com/fixkme/fastgrpc/rpc"
	sd "github.com/fixkme/fastgrpc/servicediscovery/discovery"
	"google.golang.org/grpc"
)

const (
	DefaultName  = "FastGRPC"
	DefaultProto = "fast_grpc.proto"

	// MaxCommuBuff 最大通讯缓存
	MaxCommuBuff = 10 * 1024 * 1024

	defaultShutdownTimeout = 10 * time.Second
)

type Option func(*App)

// WithName 默认服务的名字
func WithName(name string) Option {
	return func(a *App) { a.name = name }
}

// WithProto 默认proto路径, 未指定proto的服务都放在这里
func WithProto(path string) Option {
	return func(a *App) { a.proto = path }
}

// WithAutoGenProto 启动时把proto写到dir
func WithAutoGenProto(dir string) Option {
	return func(a *App) {
		a.autoGen = true
		a.protoDir = dir
	}
}

// WithCompiler 写出的proto有变化时调用protoc
func WithCompiler(c *protogen.Compiler) Option {
	return func(a *App) { a.compiler = c }
}

func WithPublisher(ps ...protogen.Publisher) Option {
	return func(a *App) { a.publishers = append(a.publishers, ps...) }
}

// WithMiddleware 作用于所有服务, 在服务级中间件外层
func WithMiddleware(mws ...rpc.Middleware) Option {
	return func(a *App) { a.mws = append(a.mws, mws...) }
}

func WithGRPCOptions(opts ...grpc.ServerOption) Option {
	return func(a *App) { a.grpcOpts = append(a.grpcOpts, opts...) }
}

func WithReflection(enable bool) Option {
	return func(a *App) { a.reflection = enable }
}

// WithDiscovery 启动后把每个服务注册到d, advertise为空时使用监听地址
func WithDiscovery(d sd.Discovery, advertise string) Option {
	return func(a *App) {
		a.discovery = d
		a.advertise = advertise
	}
}

func WithShutdownTimeout(d time.Duration) Option {
	return func(a *App) { a.shutdownTimeout = d }
}
