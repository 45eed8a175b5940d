package core

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/fixkme/fastgrpc/mlog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var Metrics *MetricsModule

// MetricsModule 在addr上提供 /metrics
type MetricsModule struct {
	addr string
	reg  *prometheus.Registry
	srv  *http.Server
}

func InitMetricsModule(addr string) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	Metrics = &MetricsModule{addr: addr, reg: reg}
	return nil
}

func (m *MetricsModule) Registry() *prometheus.Registry {
	return m.reg
}

func (m *MetricsModule) OnInit(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg}))
	m.srv = &http.Server{Addr: m.addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	return nil
}

func (m *MetricsModule) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- m.srv.ListenAndServe() }()
	mlog.Infof("metrics listen: %s", m.addr)
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		m.srv.Shutdown(sctx)
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (m *MetricsModule) Destroy() {}

func (m *MetricsModule) Name() string {
	return "metrics"
}
