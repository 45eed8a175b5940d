package core

import (
	"context"
	"errors"

	rdb "github.com/fixkme/fastgrpc/db/redis"
)

var Redis *rdb.RedisImpl

func InitRedis(ctx context.Context, conf *rdb.RedisConf) (err error) {
	if conf == nil {
		return errors.New("redis config is nil")
	}
	Redis, err = rdb.NewRedisFromConf(ctx, conf)
	return
}
