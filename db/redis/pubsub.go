package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/fixkme/fastgrpc/mlog"
	"github.com/redis/go-redis/v9"
)

// PubsubCB 收到订阅消息的回调
type PubsubCB func(ctx context.Context, message *redis.Message, db *RedisImpl) error

// LoadCacheCB 订阅(重新)建立时的回调, 用于全量加载
type LoadCacheCB func(ctx context.Context, db *RedisImpl) error

// Pubsub 订阅pattern, 在新的goroutine中不断接收消息并执行cb
// 接收出错时短暂休眠后继续, ctx结束时退出
func Pubsub(ctx context.Context, pattern string, db *RedisImpl, cb PubsubCB, loadCB LoadCacheCB) (*redis.PubSub, error) {
	pubsub, err := subscribe(ctx, pattern, db)
	if err != nil {
		return nil, err
	}

	retryDur := 5 * time.Second
	go func() {
		defer func() {
			if r := recover(); r != nil {
				mlog.Errorf("redis Pubsub goroutine recover error %v", r)
			}
			mlog.Info("redis pubsub goroutine quited")
		}()
		for {
			received, err := pubsub.Receive(ctx)
			if err != nil {
				if ctx.Err() != nil {
					mlog.Infof("redis pubsub stopped on error %s, quit now", err)
					return
				}
				mlog.Infof("redis pubsub error %s, retry after %s", err, retryDur)
				select {
				case <-ctx.Done():
					return
				case <-time.After(retryDur):
				}
				continue
			}
			switch v := received.(type) {
			case *redis.Message:
				if err := cb(ctx, v, db); err != nil {
					mlog.Warnf("redis pubsub %s error %s", v.Channel, err)
				}
			case *redis.Subscription:
				if loadCB == nil {
					continue
				}
				if err := loadCB(ctx, db); err != nil {
					mlog.Warnf("redis pubsub loadCB error %s", err)
				}
			case *redis.Pong:
				mlog.Debug("redis pubsub recv Pong")
			default:
				mlog.Debugf("redis pubsub recv %#v", v)
			}
		}
	}()
	context.AfterFunc(ctx, func() { pubsub.Close() })
	return pubsub, nil
}

func subscribe(ctx context.Context, pattern string, db *RedisImpl) (*redis.PubSub, error) {
	var pubsub *redis.PubSub
	if db.client != nil {
		pubsub = db.client.PSubscribe(ctx, pattern)
	} else if db.cluster != nil {
		pubsub = db.cluster.PSubscribe(ctx, pattern)
	}
	if pubsub == nil {
		return nil, fmt.Errorf("redis subscribe %s failed, nil pubsub", pattern)
	}
	return pubsub, nil
}
