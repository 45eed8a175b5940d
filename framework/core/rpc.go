package core

import (
	"context"
	"time"

	mdb "github.com/fixkme/fastgrpc/db/mongo"
	rdb "github.com/fixkme/fastgrpc/db/redis"
	"github.com/fixkme/fastgrpc/framework/config"
	"github.com/fixkme/fastgrpc/middleware"
	"github.com/fixkme/fastgrpc/mlog"
	"github.com/fixkme/fastgrpc/protogen"
	"github.com/fixkme/fastgrpc/server"
	sd "github.com/fixkme/fastgrpc/servicediscovery/discovery"
	"github.com/fixkme/fastgrpc/servicediscovery/impl/etcd"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

var (
	Rpc *RpcModule
)

// BuildFunc 在服务启动前注册服务与中间件
type BuildFunc func(app *server.App) error

type RpcModule struct {
	conf      *config.AppConfig
	build     BuildFunc
	opts      []server.Option
	app       *server.App
	discovery sd.Discovery
	name      string
}

func InitRpcModule(name string, conf *config.AppConfig, build BuildFunc, opts ...server.Option) error {
	Rpc = &RpcModule{
		conf:  conf,
		build: build,
		opts:  opts,
		name:  name,
	}
	return nil
}

// ServerOptions 由配置生成 server.App 的参数, reg为空时不统计
func ServerOptions(conf *config.AppConfig, reg prometheus.Registerer) []server.Option {
	opts := []server.Option{server.WithReflection(conf.Server.Reflection)}
	if conf.Server.Name != "" {
		opts = append(opts, server.WithName(conf.Server.Name))
	}
	if conf.Proto.Path != "" {
		opts = append(opts, server.WithProto(conf.Proto.Path))
	}
	if conf.Server.ShutdownTimeout > 0 {
		opts = append(opts, server.WithShutdownTimeout(time.Duration(conf.Server.ShutdownTimeout)*time.Second))
	}
	if conf.Proto.AutoGen {
		opts = append(opts, server.WithAutoGenProto(conf.Proto.OutDir))
		if conf.Proto.Protoc != "" {
			opts = append(opts, server.WithCompiler(&protogen.Compiler{
				Protoc:       conf.Proto.Protoc,
				IncludePaths: append([]string{conf.Proto.OutDir}, conf.Proto.IncludeDir...),
				GoOut:        conf.Proto.GoOut,
				GoGRPCOut:    conf.Proto.GoGRPCOut,
			}))
		}
	}
	if conf.IsDebug {
		opts = append(opts, server.WithMiddleware(middleware.AccessLog()...))
	}
	opts = append(opts, server.WithMiddleware(middleware.RequestID()...))
	if conf.Metrics.Enable && reg != nil {
		opts = append(opts, server.WithMiddleware(middleware.NewMetrics(reg, conf.Metrics.Namespace).Middlewares()...))
	}
	if conf.RateLimit.Limit > 0 {
		burst := max(conf.RateLimit.Burst, 1)
		opts = append(opts, server.WithMiddleware(middleware.RateLimit(rate.Limit(conf.RateLimit.Limit), burst)...))
	}
	return opts
}

// publishers 已初始化的redis/mongo模块作为proto的发布目标
func publishers(conf *config.AppConfig) []protogen.Publisher {
	var ps []protogen.Publisher
	if Redis != nil {
		ps = append(ps, rdb.NewSchemaStore(Redis, conf.Redis.Prefix))
	}
	if Mongo != nil && conf.Mongo.Database != "" {
		ps = append(ps, mdb.NewSchemaStore(Mongo.Client().Database(conf.Mongo.Database), conf.Mongo.Collection))
	}
	return ps
}

func (m *RpcModule) OnInit(ctx context.Context) error {
	var reg prometheus.Registerer
	if Metrics != nil {
		reg = Metrics.Registry()
		if Mongo != nil {
			if err := registerAll(reg, Mongo.Monitor().Collectors(m.conf.Metrics.Namespace)); err != nil {
				return err
			}
		}
	}
	opts := ServerOptions(m.conf, reg)
	if ps := publishers(m.conf); len(ps) > 0 {
		opts = append(opts, server.WithPublisher(ps...))
	}
	if len(m.conf.Discovery.Endpoints) > 0 {
		d, err := etcd.NewEtcdDiscovery(ctx, &m.conf.Discovery)
		if err != nil {
			return err
		}
		errCh := d.Start()
		go func() {
			if err := <-errCh; err != nil {
				mlog.Errorf("%s discovery stopped: %v", m.name, err)
			}
		}()
		m.discovery = d
		opts = append(opts, server.WithDiscovery(d, m.conf.Server.AdvertiseAddr))
	}
	opts = append(opts, m.opts...)
	m.app = server.New(opts...)
	if m.build != nil {
		if err := m.build(m.app); err != nil {
			return err
		}
	}
	// 提前生成proto与调度表, 配置错误在这里暴露
	return m.app.Setup(ctx)
}

func registerAll(reg prometheus.Registerer, cs []prometheus.Collector) error {
	for _, c := range cs {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *RpcModule) Run(ctx context.Context) error {
	return m.app.Run(ctx, m.conf.Server.ListenAddr)
}

func (m *RpcModule) Destroy() {
	if m.discovery != nil {
		m.discovery.Stop()
	}
}

func (m *RpcModule) Name() string {
	return m.name
}

func (m *RpcModule) App() *server.App {
	return m.app
}
