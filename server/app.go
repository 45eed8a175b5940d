// Package server 汇集服务, 生成proto, 构建调度表并在grpc上提供服务
package server

import (
	"context"
	"sync"
	"time"

	"github.com/armon/go-radix"
	"github.com/fixkme/fastgrpc/errs"
	"github.com/fixkme/fastgrpc/middleware"
	"github.com/fixkme/fastgrpc/mlog"
	"github.com/fixkme/fastgrpc/protogen"
	"github.com/fixkme/fastgrpc/rpc"
	sd "github.com/fixkme/fastgrpc/servicediscovery/discovery"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/reflect/protoregistry"
)

type App struct {
	name            string
	proto           string
	autoGen         bool
	protoDir        string
	compiler        *protogen.Compiler
	publishers      []protogen.Publisher
	grpcOpts        []grpc.ServerOption
	reflection      bool
	discovery       sd.Discovery
	advertise       string
	shutdownTimeout time.Duration

	mu         sync.Mutex
	def        *rpc.Service
	services   []*rpc.Service
	index      map[string]*rpc.Service
	mws        []rpc.Middleware
	onStartup  []func(context.Context) error
	onShutdown []func(context.Context)

	ready  bool
	bundle *protogen.Bundle
	routes *radix.Tree // full method -> *Route
	server *grpc.Server
	nodes  []string // 已注册到服务发现的节点
}

func New(opts ...Option) *App {
	a := &App{
		name:            DefaultName,
		proto:           DefaultProto,
		reflection:      true,
		shutdownTimeout: defaultShutdownTimeout,
		index:           make(map[string]*rpc.Service),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.def = rpc.NewService(a.name, rpc.WithProto(a.proto))
	return a
}

// Service 默认服务, 直接在其上注册的方法属于它
func (a *App) Service() *rpc.Service { return a.def }

// AddService 同一个服务重复加入无影响, 不同服务全名相同时报错
func (a *App) AddService(svc *rpc.Service) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ready {
		return errs.Configuration.Printf("app already set up, cannot add service %s", svc.Name())
	}
	key := svc.FullNameFor(a.proto)
	if old, ok := a.index[key]; ok {
		if old == svc {
			return nil
		}
		return errs.Configuration.Printf("duplicate service %s", key)
	}
	if svc != a.def && key == a.def.FullName() {
		return errs.Configuration.Printf("service %s conflicts with the default service", key)
	}
	svc.DefaultProto(a.proto)
	a.index[key] = svc
	a.services = append(a.services, svc)
	return nil
}

// Use 追加应用级中间件
func (a *App) Use(mws ...rpc.Middleware) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ready {
		return errs.Configuration.Printf("app already set up, cannot add middleware")
	}
	a.mws = append(a.mws, mws...)
	return nil
}

// OnStartup 在开始监听前按注册顺序执行, 出错则不启动
func (a *App) OnStartup(fn func(context.Context) error) {
	a.mu.Lock()
	a.onStartup = append(a.onStartup, fn)
	a.mu.Unlock()
}

// OnShutdown 服务停止后逆序执行
func (a *App) OnShutdown(fn func(context.Context)) {
	a.mu.Lock()
	a.onShutdown = append(a.onShutdown, fn)
	a.mu.Unlock()
}

// Services 默认服务(有方法时)在前, 其余按加入顺序
func (a *App) Services() []*rpc.Service {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.collect()
}

func (a *App) collect() []*rpc.Service {
	var out []*rpc.Service
	if _, added := a.index[a.def.FullName()]; !added && len(a.def.Methods()) > 0 {
		out = append(out, a.def)
	}
	return append(out, a.services...)
}

// Setup 生成proto与描述符, 构建调度表和grpc.Server; 只执行一次
func (a *App) Setup(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ready {
		return nil
	}
	services := a.collect()
	if len(services) == 0 {
		return errs.Configuration.Printf("no services to serve")
	}
	for _, svc := range services {
		svc.Freeze()
	}
	bundle, err := protogen.Build(services)
	if err != nil {
		return err
	}
	if err := a.emit(ctx, bundle); err != nil {
		return err
	}
	routes, err := a.buildRoutes(bundle)
	if err != nil {
		return err
	}
	a.bundle = bundle
	a.routes = routes
	a.server = a.newGRPCServer(services)
	a.ready = true
	return nil
}

// emit 写出proto, 有变化时编译, 然后发布
func (a *App) emit(ctx context.Context, bundle *protogen.Bundle) error {
	for _, doc := range bundle.Documents {
		if a.autoGen {
			wrote, err := protogen.WriteFile(a.protoDir, doc)
			if err != nil {
				return errs.Configuration.Printf("write %s: %w", doc.Path, err)
			}
			if wrote {
				mlog.Infof("proto written: %s", doc.Path)
				if a.compiler != nil {
					c := *a.compiler
					if len(c.IncludePaths) == 0 {
						c.IncludePaths = []string{a.protoDir}
					}
					if err := c.Compile(ctx, doc.Path); err != nil {
						return err
					}
				}
			}
		}
		for _, p := range a.publishers {
			if err := p.Publish(ctx, doc); err != nil {
				return errs.Configuration.Printf("publish %s: %w", doc.Path, err)
			}
		}
	}
	return nil
}

// 错误日志在最外层, 然后是应用级、服务级中间件
func (a *App) buildRoutes(bundle *protogen.Bundle) (*radix.Tree, error) {
	tree := radix.New()
	base := append(middleware.ErrorLog(), a.mws...)
	for _, b := range bundle.Bindings() {
		svc := b.Method.Service()
		mws := append(append([]rpc.Middleware(nil), base...), svc.Middlewares()...)
		unary, stream, err := rpc.Chain(mws, b.Method)
		if err != nil {
			return nil, err
		}
		tree.Insert(b.FullMethod, &Route{
			FullMethod: b.FullMethod,
			Method:     b.Method,
			Binding:    b,
			Unary:      unary,
			Stream:     stream,
		})
	}
	return tree, nil
}

// Handler 按 /pkg.Service/Method 查找调度表
func (a *App) Handler(fullMethod string) (*Route, bool) {
	a.mu.Lock()
	routes := a.routes
	a.mu.Unlock()
	if routes == nil {
		return nil, false
	}
	v, ok := routes.Get(fullMethod)
	if !ok {
		return nil, false
	}
	return v.(*Route), true
}

// Routes 前缀匹配, 如 "/greeter.Greeter/" 列出一个服务的全部方法
func (a *App) Routes(prefix string) []*Route {
	a.mu.Lock()
	routes := a.routes
	a.mu.Unlock()
	if routes == nil {
		return nil
	}
	var out []*Route
	routes.WalkPrefix(prefix, func(_ string, v any) bool {
		out = append(out, v.(*Route))
		return false
	})
	return out
}

// Files Setup之后的描述符注册表
func (a *App) Files() *protoregistry.Files {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.bundle == nil {
		return nil
	}
	return a.bundle.Files
}

func (a *App) Bundle() *protogen.Bundle {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bundle
}

// GRPCServer Setup之后可用, 用于注册其他grpc服务
func (a *App) GRPCServer() *grpc.Server {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.server
}
