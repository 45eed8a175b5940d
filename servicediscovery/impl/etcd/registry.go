package etcd

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"

	sd "github.com/fixkme/fastgrpc/servicediscovery/discovery"
)

// serviceSet 一类服务的全部节点
type serviceSet struct {
	id2addr map[string]string // UUID -> rpc地址
	ids     []string          // 用于随机选择
}

// registry 集群内服务的本地缓存
type registry struct {
	mu       sync.RWMutex
	services map[string]*serviceSet
}

func newRegistry() *registry {
	return &registry{services: make(map[string]*serviceSet)}
}

func (r *registry) add(name, id, addr string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.services[name]
	if !ok {
		set = &serviceSet{id2addr: make(map[string]string)}
		r.services[name] = set
	}
	if _, ok := set.id2addr[id]; ok {
		set.id2addr[id] = addr
		return false
	}
	set.id2addr[id] = addr
	set.ids = append(set.ids, id)
	return true
}

func (r *registry) del(name, id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.services[name]
	if !ok {
		return false
	}
	delete(set.id2addr, id)
	for i, v := range set.ids {
		if v == id {
			last := len(set.ids) - 1
			set.ids[i] = set.ids[last]
			set.ids = set.ids[:last]
			if last == 0 {
				delete(r.services, name)
			}
			return true
		}
	}
	return false
}

// splitNode name:uuid -> name, uuid
func splitNode(node string) (name, id string) {
	node = strings.ToLower(node)
	if i := strings.IndexByte(node, ':'); i != -1 {
		return node[:i], node[i+1:]
	}
	return node, ""
}

func (r *registry) get(node string) (string, error) {
	name, id := splitNode(node)
	r.mu.RLock()
	defer r.mu.RUnlock()
	set, ok := r.services[name]
	if !ok || len(set.ids) == 0 {
		return "", fmt.Errorf("%w: %s", sd.ErrServiceNotFound, name)
	}
	if id == "" {
		id = set.ids[rand.Intn(len(set.ids))]
	}
	addr, ok := set.id2addr[id]
	if !ok {
		return "", fmt.Errorf("%w: %s:%s", sd.ErrServiceNotFound, name, id)
	}
	return addr, nil
}

func (r *registry) all(node string) (map[string]string, error) {
	name, _ := splitNode(node)
	r.mu.RLock()
	defer r.mu.RUnlock()
	set, ok := r.services[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", sd.ErrServiceNotFound, name)
	}
	out := make(map[string]string, len(set.id2addr))
	for id, addr := range set.id2addr {
		out[id] = addr
	}
	return out, nil
}
