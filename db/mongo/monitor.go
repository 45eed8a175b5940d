package mongo

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"go.mongodb.org/mongo-driver/event"
)

// MongoPoolMonitor 统计连接池: 打开的连接与借出的连接
type MongoPoolMonitor struct {
	active  atomic.Int32
	inUse   atomic.Int32
	cleared atomic.Int64
}

func (p *MongoPoolMonitor) Event(evt *event.PoolEvent) {
	switch evt.Type {
	case event.ConnectionCreated:
		p.active.Add(1)
	case event.ConnectionClosed:
		p.active.Add(-1)
	case event.GetSucceeded:
		p.inUse.Add(1)
	case event.ConnectionReturned:
		p.inUse.Add(-1)
	case event.PoolCleared:
		p.cleared.Add(1)
	}
}

func (p *MongoPoolMonitor) GetActiveConnections() int {
	return int(p.active.Load())
}

func (p *MongoPoolMonitor) GetInUseConnections() int {
	return int(p.inUse.Load())
}

func (p *MongoPoolMonitor) PoolCleared() int64 {
	return p.cleared.Load()
}

// Collectors 以gauge导出, 注册到metrics模块的registry
func (p *MongoPoolMonitor) Collectors(namespace string) []prometheus.Collector {
	return []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mongo_pool_active_connections",
			Help:      "Open connections in the mongo pool",
		}, func() float64 { return float64(p.active.Load()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mongo_pool_in_use_connections",
			Help:      "Connections checked out of the mongo pool",
		}, func() float64 { return float64(p.inUse.Load()) }),
	}
}
