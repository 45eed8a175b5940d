package redis

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

const (
	RedisMode_Single   = "single"
	RedisMode_Sentinel = "sentinel"
	RedisMode_Cluster  = "cluster"
)

// RedisConf 配置文件中的redis段
type RedisConf struct {
	Mode       string   `mapstructure:"mode" json:"mode"`
	Addrs      []string `mapstructure:"addrs" json:"addrs"`
	MasterName string   `mapstructure:"master_name" json:"masterName"`
	Username   string   `mapstructure:"username" json:"username"`
	Password   string   `mapstructure:"password" json:"password"`
	DB         int      `mapstructure:"db" json:"db"`
	Prefix     string   `mapstructure:"prefix" json:"prefix"`
}

// Options 按模式返回 NewRedis 需要的参数
func (c *RedisConf) Options() (string, any, error) {
	if len(c.Addrs) == 0 {
		return "", nil, errors.New("redis: no addrs")
	}
	switch c.Mode {
	case RedisMode_Cluster:
		return c.Mode, &redis.ClusterOptions{Addrs: c.Addrs, Username: c.Username, Password: c.Password}, nil
	case RedisMode_Sentinel:
		return c.Mode, &redis.FailoverOptions{
			MasterName:    c.MasterName,
			SentinelAddrs: c.Addrs,
			Username:      c.Username,
			Password:      c.Password,
			DB:            c.DB,
		}, nil
	}
	return RedisMode_Single, &redis.Options{Addr: c.Addrs[0], Username: c.Username, Password: c.Password, DB: c.DB}, nil
}

type RedisImpl struct {
	client  *redis.Client
	cluster *redis.ClusterClient
}

func NewRedis(ctx context.Context, mode string, opts any) (*RedisImpl, error) {
	var err error
	db := &RedisImpl{}
	switch mode {
	case RedisMode_Cluster:
		db.cluster = redis.NewClusterClient(opts.(*redis.ClusterOptions))
		err = db.cluster.Ping(ctx).Err()
	case RedisMode_Sentinel:
		db.client = redis.NewFailoverClient(opts.(*redis.FailoverOptions))
		err = db.client.Ping(ctx).Err()
	default: // 默认single模式
		db.client = redis.NewClient(opts.(*redis.Options))
		err = db.client.Ping(ctx).Err()
	}
	if err != nil {
		db.Stop()
		return nil, err
	}
	return db, nil
}

// NewRedisFromConf 由配置创建
func NewRedisFromConf(ctx context.Context, conf *RedisConf) (*RedisImpl, error) {
	mode, opts, err := conf.Options()
	if err != nil {
		return nil, err
	}
	return NewRedis(ctx, mode, opts)
}

func (db *RedisImpl) Client() *redis.Client {
	return db.client
}

func (db *RedisImpl) ClusterClient() *redis.ClusterClient {
	return db.cluster
}

func (db *RedisImpl) Stop() {
	if db.client != nil {
		db.client.Close()
	}
	if db.cluster != nil {
		db.cluster.Close()
	}
}

func (db *RedisImpl) GetCmdable() redis.Cmdable {
	if db.client != nil {
		return db.client
	}
	if db.cluster != nil {
		return db.cluster
	}
	return nil
}
