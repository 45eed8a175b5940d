package server

import (
	"context"
	"net"

	"github.com/fixkme/fastgrpc/mlog"
)

// Run 监听addr并提供服务, ctx结束时优雅停止
func (a *App) Run(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return a.Serve(ctx, lis)
}

// Serve 阻塞直到ctx结束或lis出错
func (a *App) Serve(ctx context.Context, lis net.Listener) error {
	if err := a.Setup(ctx); err != nil {
		lis.Close()
		return err
	}
	a.mu.Lock()
	startup := append([]func(context.Context) error(nil), a.onStartup...)
	a.mu.Unlock()
	for _, fn := range startup {
		if err := fn(ctx); err != nil {
			lis.Close()
			return err
		}
	}
	if err := a.register(lis.Addr().String()); err != nil {
		lis.Close()
		a.shutdown()
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- a.server.Serve(lis) }()
	mlog.Infof("gRPC listen: %s", lis.Addr())
	for _, svc := range a.Services() {
		mlog.Infof("gRPC service %s (%d methods)", svc.FullName(), len(svc.Methods()))
	}

	var err error
	select {
	case err = <-errCh:
	case <-ctx.Done():
		stopCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		a.Stop(stopCtx)
		cancel()
		err = <-errCh
	}
	a.shutdown()
	return err
}

// Stop 优雅停止, ctx结束时强制关闭
func (a *App) Stop(ctx context.Context) {
	s := a.GRPCServer()
	if s == nil {
		return
	}
	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		mlog.Warnf("gRPC graceful stop timeout, force stop")
		s.Stop()
		<-done
	}
}

func (a *App) register(listenAddr string) error {
	if a.discovery == nil {
		return nil
	}
	addr := a.advertise
	if addr == "" {
		addr = listenAddr
	}
	for _, svc := range a.Services() {
		node, err := a.discovery.RegisterService(svc.FullName(), addr)
		if err != nil {
			return err
		}
		mlog.Infof("service registered: %s -> %s", node, addr)
		a.mu.Lock()
		a.nodes = append(a.nodes, node)
		a.mu.Unlock()
	}
	return nil
}

func (a *App) shutdown() {
	a.mu.Lock()
	nodes := a.nodes
	a.nodes = nil
	hooks := append(([]func(context.Context))(nil), a.onShutdown...)
	a.mu.Unlock()
	for _, node := range nodes {
		if err := a.discovery.UnregisterService(node); err != nil {
			mlog.Warnf("unregister %s: %v", node, err)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()
	for i := len(hooks) - 1; i >= 0; i-- {
		hooks[i](ctx)
	}
}
