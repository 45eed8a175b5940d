package etcd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fixkme/fastgrpc/mlog"
	sd "github.com/fixkme/fastgrpc/servicediscovery/discovery"
	"github.com/google/uuid"
	clientv3 "go.etcd.io/etcd/client/v3"
)

const (
	// 租约有效期, 期间没有收到keepAlive包租约失效, 相关的key被删除
	defaultTimeToLiveSeconds = 5
)

type EtcdOpt struct {
	Endpoints            []string `json:"endpoints" mapstructure:"endpoints"`
	DialTimeout          int64    `json:"dialTimeout" mapstructure:"dial_timeout"`
	DialKeepAliveTime    int64    `json:"dialKeepAliveTime" mapstructure:"dial_keep_alive_time"`
	DialKeepAliveTimeout int64    `json:"dialKeepAliveTimeout" mapstructure:"dial_keep_alive_timeout"`
	AutoSyncInterval     int64    `json:"autoSyncInterval" mapstructure:"auto_sync_interval"`
	LeaseTTL             int64    `json:"leaseTTL" mapstructure:"lease_ttl"`
	ServiceGroup         string   `json:"serviceGroup" mapstructure:"service_group"`
}

// NewEtcdDiscovery 创建一个etcd实例
func NewEtcdDiscovery(ctx context.Context, opt *EtcdOpt) (sd.Discovery, error) {
	if len(opt.Endpoints) == 0 {
		return nil, errors.New("etcd: no endpoints")
	}
	cli, err := clientv3.New(clientv3.Config{
		Endpoints: opt.Endpoints,
		// 设置了DialTimeout时clientv3.New是阻塞调用
		// 详见 https://github.com/etcd-io/etcd/issues/9829#issuecomment-438434795
		DialTimeout:          time.Duration(opt.DialTimeout) * time.Second,
		DialKeepAliveTime:    time.Duration(opt.DialKeepAliveTime) * time.Second,
		DialKeepAliveTimeout: time.Duration(opt.DialKeepAliveTimeout) * time.Second,
		AutoSyncInterval:     time.Duration(opt.AutoSyncInterval) * time.Second,
	})
	if err != nil {
		return nil, err
	}
	e := newEtcdImp(ctx, opt)
	e.cli = cli
	// 前缀下的key变动时通知到rch
	e.rch = cli.Watch(ctx, e.prefix, clientv3.WithPrefix())
	if e.rch == nil {
		cli.Close()
		return nil, fmt.Errorf("watch etcd %v error", opt.Endpoints)
	}
	return e, nil
}

func newEtcdImp(ctx context.Context, opt *EtcdOpt) *etcdImp {
	ttl := opt.LeaseTTL
	if ttl == 0 {
		ttl = defaultTimeToLiveSeconds
	}
	return &etcdImp{
		prefix:   servicePrefix(opt.ServiceGroup),
		services: newRegistry(),
		regServs: make(map[string]string),
		ctx:      ctx,
		leaseTTL: ttl,
	}
}

// fastgrpc:service:
func servicePrefix(group string) string {
	return fmt.Sprintf("%s:service:", group)
}

type etcdImp struct {
	cli *clientv3.Client

	// 格式: group:service:
	prefix string
	// 集群内所有服务节点
	services *registry

	// 本节点注册的key -> rpc地址
	regMx    sync.Mutex
	regServs map[string]string

	ctx context.Context
	rch clientv3.WatchChan

	leaseTTL int64
}

func (e *etcdImp) Start() <-chan error {
	errChan := make(chan error, 1)
	go e.cacheExistedServices()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				mlog.Errorf("etcd run recover error %v", r)
			}
		}()
		for {
			select {
			case <-e.ctx.Done():
				errChan <- nil
				return
			case watchRsp, ok := <-e.rch:
				if !ok {
					mlog.Info("etcd watch channel closed")
					errChan <- nil
					return
				}
				if err := watchRsp.Err(); err != nil {
					mlog.Warnf("etcd watch response error: %v", err)
					errChan <- err
					return
				}
				for _, evt := range watchRsp.Events {
					if evt != nil {
						e.onWatchEvent(evt)
					}
				}
			}
		}
	}()
	return errChan
}

// Stop 删除本节点注册的key并关闭连接
func (e *etcdImp) Stop() {
	if e.cli == nil {
		return
	}
	e.regMx.Lock()
	keys := make([]string, 0, len(e.regServs))
	for k := range e.regServs {
		keys = append(keys, k)
	}
	e.regServs = make(map[string]string)
	e.regMx.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	for _, k := range keys {
		if _, err := e.cli.Delete(ctx, k); err != nil {
			mlog.Warnf("etcd stop, delete %s error %v", k, err)
		}
	}
	if err := e.cli.Close(); err != nil {
		mlog.Warnf("etcd stop, Close error %v", err)
	}
}

// RegisterService 以 name:uuid 发布到etcd
func (e *etcdImp) RegisterService(serviceName string, rpcAddr string) (string, error) {
	serviceName = strings.ToLower(serviceName)
	if strings.ContainsRune(serviceName, ':') {
		return "", fmt.Errorf("etcd: service name %q must not contain ':'", serviceName)
	}
	nodeName := fmt.Sprintf("%s:%s", serviceName, uuid.New().String())
	if err := e.putServiceKey(e.prefix+nodeName, rpcAddr); err != nil {
		return nodeName, err
	}
	return nodeName, nil
}

func (e *etcdImp) UnregisterService(nodeName string) error {
	key := e.prefix + strings.ToLower(nodeName)
	e.regMx.Lock()
	_, ok := e.regServs[key]
	delete(e.regServs, key)
	e.regMx.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s not registered by this node", sd.ErrServiceNotFound, nodeName)
	}
	if e.cli == nil {
		return nil
	}
	_, err := e.cli.Delete(e.ctx, key)
	return err
}

// 租约过期被删除的key会用同样的key再次注册
func (e *etcdImp) putServiceKey(key string, rpcAddr string) error {
	resp, err := e.cli.Grant(e.ctx, e.leaseTTL)
	if err != nil {
		return err
	}
	mlog.Infof("etcd Grant lease ID: %X, TTL %d", resp.ID, e.leaseTTL)
	if _, err = e.cli.Put(e.ctx, key, rpcAddr, clientv3.WithLease(resp.ID)); err != nil {
		return err
	}
	mlog.Infof("etcd PUT %s %s", key, rpcAddr)
	e.regMx.Lock()
	e.regServs[key] = rpcAddr
	e.regMx.Unlock()
	ch, err := e.cli.KeepAlive(e.ctx, resp.ID)
	if err != nil {
		return err
	}
	go func() {
		for range ch {
		}
		mlog.Infof("etcd key: %s KeepAlive channel closed", key)
	}()
	return nil
}

func (e *etcdImp) GetService(serviceName string) (string, error) {
	return e.services.get(serviceName)
}

func (e *etcdImp) GetAllService(serviceName string) (map[string]string, error) {
	return e.services.all(serviceName)
}

func (e *etcdImp) onWatchEvent(evt *clientv3.Event) {
	key := string(evt.Kv.Key)
	value := string(evt.Kv.Value)
	mlog.Debugf("etcd onWatchEvent type %s, key %s, value %s", evt.Type, key, value)

	name, id, err := e.parseKey(key)
	if err != nil {
		mlog.Errorf("etcd onWatchEvent parseKey fail, key:%s, err:%v", key, err)
		return
	}

	switch evt.Type {
	case clientv3.EventTypeDelete:
		if e.services.del(name, id) {
			mlog.Infof("etcd onWatchEvent delete (%s,%s)", name, id)
		}
		// 本节点的key被删除(可能是keepalive超时), 重新注册
		e.regMx.Lock()
		rpcAddr, ok := e.regServs[key]
		e.regMx.Unlock()
		if ok && e.cli != nil {
			mlog.Infof("etcd onWatchEvent register again, key:%s, rpcAddr:%s", key, rpcAddr)
			if err := e.putServiceKey(key, rpcAddr); err != nil {
				mlog.Errorf("etcd onWatchEvent putServiceKey err:%v", err)
			}
		}
	case clientv3.EventTypePut:
		if e.services.add(name, id, value) {
			mlog.Infof("etcd onWatchEvent addService, %s -> %s", key, value)
		}
	}
}

// 解析key(fastgrpc:service:greeter.greeter:b748593c-ec50-4b4c-8b4a-21705dd1789f)为 [greeter.greeter, UUID]
func (e *etcdImp) parseKey(key string) (name, id string, err error) {
	if !strings.HasPrefix(key, e.prefix) {
		err = errors.New("key not match prefix")
		return
	}
	keys := strings.Split(key[len(e.prefix):], ":")
	if len(keys) != 2 || keys[0] == "" || keys[1] == "" {
		err = errors.New("key not match format")
		return
	}
	name, id = keys[0], keys[1]
	return
}

// 缓存watch之前已经存在的服务
func (e *etcdImp) cacheExistedServices() {
	rsp, err := e.cli.Get(e.ctx, e.prefix, clientv3.WithPrefix())
	if err != nil {
		mlog.Warnf("cacheExistedServices Get error %v", err)
		return
	}
	for _, kv := range rsp.Kvs {
		if kv == nil {
			continue
		}
		key, value := string(kv.Key), string(kv.Value)
		if name, id, err := e.parseKey(key); err == nil {
			if e.services.add(name, id, value) {
				mlog.Infof("cacheExistedServices addService, %s -> %s", key, value)
			}
		}
	}
}
