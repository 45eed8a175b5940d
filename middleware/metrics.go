package middleware

import (
	"iter"
	"time"

	"github.com/fixkme/fastgrpc/errs"
	"github.com/fixkme/fastgrpc/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Metrics 按方法统计调用次数、耗时、进行中的调用与流消息数
type Metrics struct {
	Handled  *prometheus.CounterVec
	Duration *prometheus.HistogramVec
	InFlight *prometheus.GaugeVec
	Sent     *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Handled: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_handled_total",
			Help:      "Total number of RPCs completed, by method and status code",
		}, []string{"method", "code"}),
		Duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rpc_duration_seconds",
			Help:      "RPC handling duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"method"}),
		InFlight: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rpc_in_flight",
			Help:      "Number of RPCs currently being handled",
		}, []string{"method"}),
		Sent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_stream_sent_total",
			Help:      "Total number of streamed response messages",
		}, []string{"method"}),
	}
}

func (m *Metrics) begin(ctx *rpc.Context) func(error) {
	method := ctx.Method()
	m.InFlight.WithLabelValues(method).Inc()
	start := time.Now()
	return func(err error) {
		m.InFlight.WithLabelValues(method).Dec()
		m.Duration.WithLabelValues(method).Observe(time.Since(start).Seconds())
		m.Handled.WithLabelValues(method, codeOf(err).String()).Inc()
	}
}

func codeOf(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	return status.Code(errs.ToStatus(err))
}

func (m *Metrics) Middlewares() []rpc.Middleware {
	return []rpc.Middleware{
		rpc.NewUnaryMiddleware("metrics", func(ctx *rpc.Context, req any, next rpc.UnaryHandler) (resp any, err error) {
			done := m.begin(ctx)
			defer func() {
				if r := recover(); r != nil {
					done(errs.Internal.Printf("panic: %v", r))
					panic(r)
				}
				done(err)
			}()
			return next(ctx, req)
		}),
		rpc.NewStreamMiddleware("metrics", func(ctx *rpc.Context, req any, next rpc.StreamHandler) iter.Seq2[any, error] {
			return func(yield func(any, error) bool) {
				done := m.begin(ctx)
				var last error
				defer func() {
					if r := recover(); r != nil {
						done(errs.Internal.Printf("panic: %v", r))
						panic(r)
					}
					done(last)
				}()
				for resp, err := range next(ctx, req) {
					last = err
					if err == nil {
						m.Sent.WithLabelValues(ctx.Method()).Inc()
					}
					if !yield(resp, err) {
						if last == nil {
							last = ctx.Err()
						}
						return
					}
				}
			}
		}),
	}
}
