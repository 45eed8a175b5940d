package rpc

import (
	"iter"
	"reflect"
	"sync"

	"github.com/fixkme/fastgrpc/errs"
	"github.com/fixkme/fastgrpc/schema"
	"github.com/fixkme/fastgrpc/util/strs"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// Service 一组方法, 对应proto中的一个service
type Service struct {
	name  string
	proto string
	pkg   string
	tr    *schema.Translator

	mu      sync.RWMutex
	methods []*MethodDesc
	index   map[string]*MethodDesc
	mws     []Middleware
	frozen  bool

	// 来自已有的proto定义
	file protoreflect.FileDescriptor
	desc protoreflect.ServiceDescriptor
}

type ServiceOption func(*Service)

// WithProto 生成的proto文件路径
func WithProto(path string) ServiceOption {
	return func(s *Service) { s.proto = path }
}

// WithPackage 默认为proto文件名
func WithPackage(pkg string) ServiceOption {
	return func(s *Service) { s.pkg = pkg }
}

// WithServiceMiddleware 只作用于本服务的中间件
func WithServiceMiddleware(mws ...Middleware) ServiceOption {
	return func(s *Service) { s.mws = append(s.mws, mws...) }
}

// WithTranslator 使用独立的类型缓存, 默认共享schema.Default
func WithTranslator(tr *schema.Translator) ServiceOption {
	return func(s *Service) { s.tr = tr }
}

func NewService(name string, opts ...ServiceOption) *Service {
	s := &Service{
		name:  name,
		tr:    schema.Default,
		index: make(map[string]*MethodDesc),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewPb2Service 使用已有proto文件中的service定义, 方法须与定义一致
func NewPb2Service(fd protoreflect.FileDescriptor, name string, opts ...ServiceOption) (*Service, error) {
	if fd == nil {
		return nil, errs.Configuration.Printf("nil file descriptor")
	}
	sd := fd.Services().ByName(protoreflect.Name(name))
	if sd == nil {
		return nil, errs.Configuration.Printf("service %s not found in %s", name, fd.Path())
	}
	s := NewService(name, append([]ServiceOption{WithProto(fd.Path())}, opts...)...)
	s.file = fd
	s.desc = sd
	return s, nil
}

func (s *Service) Name() string { return s.name }

func (s *Service) Proto() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.proto
}

// DefaultProto 未指定proto路径时使用path
func (s *Service) DefaultProto(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proto == "" {
		s.proto = path
	}
}

// Package Pb2服务以描述符为准, 可以为空
func (s *Service) Package() string {
	return s.packageIn(s.Proto())
}

func (s *Service) packageIn(proto string) string {
	if s.desc != nil {
		return string(s.file.Package())
	}
	if s.pkg != "" {
		return s.pkg
	}
	return strs.FileStem(proto)
}

func (s *Service) FullName() string {
	return s.FullNameFor("")
}

// FullNameFor 未指定proto路径时按defaultProto计算全名, 不修改服务
func (s *Service) FullNameFor(defaultProto string) string {
	if s.desc != nil {
		return string(s.desc.FullName())
	}
	proto := s.Proto()
	if proto == "" {
		proto = defaultProto
	}
	if pkg := s.packageIn(proto); pkg != "" {
		return pkg + "." + s.name
	}
	return s.name
}

func (s *Service) IsPb2() bool { return s.desc != nil }

func (s *Service) File() protoreflect.FileDescriptor { return s.file }

func (s *Service) Descriptor() protoreflect.ServiceDescriptor { return s.desc }

// Validate 检查服务名与包名
func (s *Service) Validate() error {
	if !identRe.MatchString(s.name) {
		return errs.Configuration.Printf("invalid service name %q", s.name)
	}
	if s.proto == "" {
		return errs.Configuration.Printf("service %s has no proto path", s.name)
	}
	if s.desc != nil {
		return nil
	}
	if !validPackage(s.Package()) {
		return errs.Configuration.Printf("service %s: invalid package %q", s.name, s.Package())
	}
	return nil
}

func validPackage(pkg string) bool {
	if pkg == "" {
		return false
	}
	start := 0
	for i := 0; i <= len(pkg); i++ {
		if i == len(pkg) || pkg[i] == '.' {
			if !identRe.MatchString(pkg[start:i]) {
				return false
			}
			start = i + 1
		}
	}
	return true
}

// Methods 按注册顺序
func (s *Service) Methods() []*MethodDesc {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*MethodDesc, len(s.methods))
	copy(out, s.methods)
	return out
}

func (s *Service) Method(name string) *MethodDesc {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index[name]
}

func (s *Service) Middlewares() []Middleware {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Middleware, len(s.mws))
	copy(out, s.mws)
	return out
}

// Use 追加服务级中间件
func (s *Service) Use(mws ...Middleware) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frozen {
		return errs.Configuration.Printf("service %s already serving, cannot add middleware", s.name)
	}
	s.mws = append(s.mws, mws...)
	return nil
}

// Freeze 服务开始提供后不再接受注册
func (s *Service) Freeze() {
	s.mu.Lock()
	s.frozen = true
	s.mu.Unlock()
}

func (s *Service) Frozen() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frozen
}

// Register 注册一个方法, card 必须与处理函数的形状一致
func (s *Service) Register(card Cardinality, h Handler, opts ...MethodOption) (*MethodDesc, error) {
	var o methodOptions
	for _, opt := range opts {
		opt(&o)
	}
	if !card.Valid() {
		return nil, errs.Configuration.Printf("service %s: invalid cardinality %d", s.name, card)
	}
	if h.empty() {
		return nil, errs.Configuration.Printf("service %s: nil handler", s.name)
	}
	name, err := methodName(&o, h)
	if err != nil {
		return nil, err
	}
	if h.card != card {
		return nil, errs.Configuration.Printf("%s.%s: handler is %s, registered as %s", s.name, name, h.card, card)
	}
	req, err := s.schemaFor(name, h.req, o.request)
	if err != nil {
		return nil, err
	}
	resp, err := s.schemaFor(name, h.resp, o.response)
	if err != nil {
		return nil, err
	}
	md := &MethodDesc{
		Name:        name,
		Cardinality: card,
		Request:     req,
		Response:    resp,
		Description: o.description,
		service:     s,
		handler:     h,
	}
	if s.desc != nil {
		if err := s.checkPb2(md); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frozen {
		return nil, errs.Configuration.Printf("service %s already serving, cannot register %s", s.name, name)
	}
	if _, ok := s.index[name]; ok {
		return nil, errs.Configuration.Printf("duplicate method %s in service %s", name, s.name)
	}
	s.methods = append(s.methods, md)
	s.index[name] = md
	return md, nil
}

func (s *Service) schemaFor(method string, t reflect.Type, override *schema.Schema) (*schema.Schema, error) {
	if override != nil {
		if override.GoType != t {
			return nil, errs.Configuration.Printf("%s.%s: schema %s describes %v, handler uses %v", s.name, method, override.Name, override.GoType, t)
		}
		return override, nil
	}
	return s.tr.Translate(t)
}

func (s *Service) checkPb2(md *MethodDesc) error {
	pm := s.desc.Methods().ByName(protoreflect.Name(md.Name))
	if pm == nil {
		return errs.Configuration.Printf("method %s not defined in %s", md.Name, s.desc.FullName())
	}
	if pm.IsStreamingClient() != md.Cardinality.ClientStreaming() || pm.IsStreamingServer() != md.Cardinality.ServerStreaming() {
		want := CardinalityOf(pm.IsStreamingClient(), pm.IsStreamingServer())
		return errs.Configuration.Printf("%s.%s: defined as %s, registered as %s", s.name, md.Name, want, md.Cardinality)
	}
	if _, err := schema.NewCodec(md.Request, pm.Input()); err != nil {
		return err
	}
	if _, err := schema.NewCodec(md.Response, pm.Output()); err != nil {
		return err
	}
	return nil
}

// UnaryUnary 注册一问一答方法
func UnaryUnary[Req, Resp any](s *Service, fn func(*Context, *Req) (*Resp, error), opts ...MethodOption) (*MethodDesc, error) {
	return s.Register(Cardinality_UnaryUnary, Unary(fn), opts...)
}

// UnaryStream 注册服务端流方法
func UnaryStream[Req, Resp any](s *Service, fn func(*Context, *Req) iter.Seq2[*Resp, error], opts ...MethodOption) (*MethodDesc, error) {
	return s.Register(Cardinality_UnaryStream, ServerStream(fn), opts...)
}

// StreamUnary 注册客户端流方法
func StreamUnary[Req, Resp any](s *Service, fn func(*Context, *Stream[Req]) (*Resp, error), opts ...MethodOption) (*MethodDesc, error) {
	return s.Register(Cardinality_StreamUnary, ClientStream(fn), opts...)
}

// StreamStream 注册双向流方法
func StreamStream[Req, Resp any](s *Service, fn func(*Context, *Stream[Req]) iter.Seq2[*Resp, error], opts ...MethodOption) (*MethodDesc, error) {
	return s.Register(Cardinality_StreamStream, BidiStream(fn), opts...)
}
