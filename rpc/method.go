package rpc

import (
	"reflect"
	"regexp"
	"runtime"
	"strings"

	"github.com/fixkme/fastgrpc/errs"
	"github.com/fixkme/fastgrpc/schema"
	"github.com/fixkme/fastgrpc/util/strs"
)

var (
	anonFuncRe = regexp.MustCompile(`^func\d+$`)
	identRe    = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// MethodDesc 已注册的方法
type MethodDesc struct {
	Name        string
	Cardinality Cardinality
	Request     *schema.Schema
	Response    *schema.Schema
	Description string

	service *Service
	handler Handler
}

// Service 所属服务
func (m *MethodDesc) Service() *Service { return m.service }

// FullMethod /pkg.Service/Method
func (m *MethodDesc) FullMethod() string {
	return "/" + m.service.FullName() + "/" + m.Name
}

func (m *MethodDesc) Handler() Handler { return m.handler }

type methodOptions struct {
	name        string
	description string
	request     *schema.Schema
	response    *schema.Schema
}

type MethodOption func(*methodOptions)

// WithName 指定方法名, 匿名函数必须指定
func WithName(name string) MethodOption {
	return func(o *methodOptions) { o.name = name }
}

func WithDescription(desc string) MethodOption {
	return func(o *methodOptions) { o.description = desc }
}

// WithRequestSchema 覆盖请求Schema, 必须对应同一个Go类型
func WithRequestSchema(s *schema.Schema) MethodOption {
	return func(o *methodOptions) { o.request = s }
}

func WithResponseSchema(s *schema.Schema) MethodOption {
	return func(o *methodOptions) { o.response = s }
}

// funcName 由函数名推导方法名
// pkg.SayHello / pkg.(*T).SayHello-fm / pkg.handler[...] 都可以, pkg.Foo.func1 不行
func funcName(fn any) (string, error) {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return "", errs.Configuration.Printf("handler is not a function")
	}
	rf := runtime.FuncForPC(v.Pointer())
	if rf == nil {
		return "", errs.Configuration.Printf("cannot resolve handler name")
	}
	full := strings.ReplaceAll(rf.Name(), "[...]", "")
	name := full[strings.LastIndexByte(full, '.')+1:]
	name = strings.TrimSuffix(name, "-fm")
	if anonFuncRe.MatchString(name) || name == "" {
		return "", errs.Configuration.Printf("anonymous handler %s needs an explicit name", rf.Name())
	}
	return name, nil
}

func methodName(o *methodOptions, h Handler) (string, error) {
	name := o.name
	if name == "" {
		n, err := funcName(h.fn)
		if err != nil {
			return "", err
		}
		name = strs.SnakeToCamel(n)
	}
	if !identRe.MatchString(name) {
		return "", errs.Configuration.Printf("invalid method name %q", name)
	}
	return name, nil
}
