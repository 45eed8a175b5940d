package mongo

import (
	"context"
	"errors"
	"time"

	"github.com/fixkme/fastgrpc/mlog"
	"go.mongodb.org/mongo-driver/event"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoConf 配置文件中的mongo段
type MongoConf struct {
	Uri          string `mapstructure:"uri" json:"uri"`
	Database     string `mapstructure:"database" json:"database"`
	Collection   string `mapstructure:"collection" json:"collection"`
	MinPoolSize  uint64 `mapstructure:"min_pool_size" json:"minPoolSize"`
	MaxPoolSize  uint64 `mapstructure:"max_pool_size" json:"maxPoolSize"`
	ConnIdleTime int64  `mapstructure:"conn_idle_time" json:"connIdleTime"` // 秒
}

type MongoImpl struct {
	client  *mongo.Client
	monitor *MongoPoolMonitor
}

// ClientOptions 由配置生成连接参数, 连接池事件记到monitor
func (c *MongoConf) ClientOptions(monitor *MongoPoolMonitor) *options.ClientOptions {
	opts := options.Client()
	opts.ApplyURI(c.Uri).
		SetReadPreference(readpref.Primary()).
		SetBSONOptions(&options.BSONOptions{
			UseJSONStructTags: false,
			NilMapAsEmpty:     true,
			NilSliceAsEmpty:   true,
		})
	maxPool := c.MaxPoolSize
	if maxPool == 0 {
		maxPool = 100
	}
	opts.SetMaxPoolSize(maxPool)
	if c.MinPoolSize > 0 {
		opts.SetMinPoolSize(c.MinPoolSize)
	}
	idle := time.Duration(c.ConnIdleTime) * time.Second
	if idle <= 0 {
		idle = 30 * time.Second
	}
	opts.SetMaxConnIdleTime(idle)
	if monitor != nil {
		opts.SetPoolMonitor(&event.PoolMonitor{Event: monitor.Event})
	}
	return opts
}

func NewMongo(ctx context.Context, conf *MongoConf) (*MongoImpl, error) {
	if conf == nil || conf.Uri == "" {
		return nil, errors.New("mongo: no uri")
	}
	monitor := &MongoPoolMonitor{}
	client, err := mongo.Connect(ctx, conf.ClientOptions(monitor))
	if err != nil {
		mlog.Errorf("mongo connect failed: %v, uri: %s", err, conf.Uri)
		return nil, err
	}
	if err = client.Ping(ctx, nil); err != nil {
		mlog.Errorf("mongo ping failed: %v, uri: %s", err, conf.Uri)
		client.Disconnect(context.Background())
		return nil, err
	}
	mlog.Infof("mongo connect success, uri: %s", conf.Uri)
	return &MongoImpl{client: client, monitor: monitor}, nil
}

func (m *MongoImpl) Client() *mongo.Client {
	return m.client
}

func (m *MongoImpl) GetActiveConnections() int {
	return m.monitor.GetActiveConnections()
}

func (m *MongoImpl) Monitor() *MongoPoolMonitor {
	return m.monitor
}

func (m *MongoImpl) Stop(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
