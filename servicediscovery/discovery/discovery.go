// Package discovery 服务注册与发现
package discovery

import "errors"

var ErrServiceNotFound = errors.New("service not found")

// Discovery 服务节点以 name:uuid 标识, name 不区分大小写
type Discovery interface {
	Start() <-chan error

	Stop()

	// RegisterService 返回节点名 name:uuid
	RegisterService(serviceName string, rpcAddr string) (string, error)

	UnregisterService(nodeName string) error

	// GetService serviceName 可以是 name 或 name:uuid, 只给name时随机选一个节点
	GetService(serviceName string) (rpcAddr string, err error)

	GetAllService(serviceName string) (rpcAddrs map[string]string, err error)
}
