package redis

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/fixkme/fastgrpc/errs"
	"github.com/fixkme/fastgrpc/mlog"
	"github.com/fixkme/fastgrpc/protogen"
	"github.com/redis/go-redis/v9"
)

const DefaultSchemaPrefix = "fastgrpc"

const (
	publishLockExpiry   = 5 * time.Second
	publishLockInterval = 50 * time.Millisecond
)

// SchemaStore 把生成的proto存到redis hash并通过频道通知
//
//	{prefix}:proto:{path} -> hash{package, services, content, digest}
//	{prefix}:proto:changed  发布变更的path
type SchemaStore struct {
	db     *RedisImpl
	prefix string
	lock   *RedLock
}

func NewSchemaStore(db *RedisImpl, prefix string) *SchemaStore {
	if prefix == "" {
		prefix = DefaultSchemaPrefix
	}
	s := &SchemaStore{db: db, prefix: prefix}
	if cmd := db.GetCmdable(); cmd != nil {
		s.lock = NewRedLock(cmd)
	}
	return s
}

func (s *SchemaStore) key(path string) string {
	return s.prefix + ":proto:" + path
}

func (s *SchemaStore) Channel() string {
	return s.prefix + ":proto:changed"
}

// Publish 实现 protogen.Publisher, digest未变时不写也不通知
func (s *SchemaStore) Publish(ctx context.Context, doc *protogen.Document) error {
	cmd := s.db.GetCmdable()
	if cmd == nil {
		return errs.Configuration.Printf("redis not connected")
	}
	key := s.key(doc.Path)
	// 多个副本同时启动时只有一个写入并通知
	lockKey := key + ":lock"
	if err := s.lock.Lock(ctx, lockKey, publishLockExpiry, publishLockInterval); err != nil {
		return err
	}
	defer s.lock.UnLock(context.WithoutCancel(ctx), lockKey)
	old, err := cmd.HGet(ctx, key, "digest").Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	if old == doc.Digest {
		return nil
	}
	_, err = cmd.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key,
			"package", doc.Package,
			"services", strings.Join(doc.Services, ","),
			"content", doc.Content,
			"digest", doc.Digest,
		)
		p.Publish(ctx, s.Channel(), doc.Path)
		return nil
	})
	if err != nil {
		return err
	}
	mlog.Infof("proto %s published to redis, digest %s", doc.Path, doc.Digest)
	return nil
}

// Fetch 读取path对应的proto, 不存在时返回 redis.Nil
func (s *SchemaStore) Fetch(ctx context.Context, path string) (*protogen.Document, error) {
	cmd := s.db.GetCmdable()
	if cmd == nil {
		return nil, errs.Configuration.Printf("redis not connected")
	}
	m, err := cmd.HGetAll(ctx, s.key(path)).Result()
	if err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, redis.Nil
	}
	doc := &protogen.Document{
		Path:    path,
		Package: m["package"],
		Content: m["content"],
		Digest:  m["digest"],
	}
	if v := m["services"]; v != "" {
		doc.Services = strings.Split(v, ",")
	}
	return doc, nil
}

// Watch 订阅变更, 订阅建立时先回调一次已有的文件
func (s *SchemaStore) Watch(ctx context.Context, paths []string, onDoc func(*protogen.Document)) error {
	load := func(ctx context.Context, _ *RedisImpl) error {
		for _, p := range paths {
			doc, err := s.Fetch(ctx, p)
			if errors.Is(err, redis.Nil) {
				continue
			}
			if err != nil {
				return err
			}
			onDoc(doc)
		}
		return nil
	}
	cb := func(ctx context.Context, msg *redis.Message, _ *RedisImpl) error {
		doc, err := s.Fetch(ctx, msg.Payload)
		if err != nil {
			return err
		}
		onDoc(doc)
		return nil
	}
	_, err := Pubsub(ctx, s.Channel(), s.db, cb, load)
	return err
}
