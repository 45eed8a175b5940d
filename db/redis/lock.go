package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/xid"
)

var ErrFailedLock = errors.New("failed to acquire lock")

// 只删除自己持有的锁
var unlockScript = redis.NewScript(`
	if redis.call("get",KEYS[1]) == ARGV[1] then
		return redis.call("del",KEYS[1])
	else
		return 0
	end
`)

// RedLock 基于 SET NX 的分布式锁, owner 区分持有者
type RedLock struct {
	rdb   redis.Cmdable
	owner string
}

func NewRedLock(rdb redis.Cmdable) *RedLock {
	return &RedLock{rdb: rdb, owner: xid.New().String()}
}

func (l *RedLock) Owner() string {
	return l.owner
}

// Lock 每隔interval尝试一次, 直到expiry用尽或ctx结束
func (l *RedLock) Lock(ctx context.Context, key string, expiry, interval time.Duration) error {
	tries := int(expiry/interval) + 1
	for i := 0; i < tries; i++ {
		if i != 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(interval):
			}
		}
		ok, err := l.rdb.SetNX(ctx, key, l.owner, expiry).Result()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return ErrFailedLock
}

func (l *RedLock) TryLock(ctx context.Context, key string, expiry time.Duration) bool {
	ok, err := l.rdb.SetNX(ctx, key, l.owner, expiry).Result()
	return err == nil && ok
}

// UnLock 返回是否确实释放了自己的锁
func (l *RedLock) UnLock(ctx context.Context, key string) (bool, error) {
	n, err := unlockScript.Run(ctx, l.rdb, []string{key}, l.owner).Int64()
	if err != nil {
		return false, err
	}
	return n != 0, nil
}
