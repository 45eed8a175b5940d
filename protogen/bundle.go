package protogen

import (
	"github.com/fixkme/fastgrpc/errs"
	"github.com/fixkme/fastgrpc/rpc"
	"github.com/fixkme/fastgrpc/schema"
	"github.com/fixkme/fastgrpc/util"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
)

// MethodBinding 一个方法与其线上消息的绑定
type MethodBinding struct {
	FullMethod string
	Method     *rpc.MethodDesc
	Desc       protoreflect.MethodDescriptor
	Request    schema.Codec
	Response   schema.Codec
}

// Bundle 一组服务构建出的描述符与编解码器, 构建后只读
type Bundle struct {
	Files     *protoregistry.Files
	Documents []*Document

	services []*rpc.Service
	bindings []*MethodBinding
	index    map[string]*MethodBinding
}

// Build 按proto文件分组生成描述符, Pb2服务直接使用其自带的描述符
func Build(services []*rpc.Service) (*Bundle, error) {
	bd := &Bundle{
		Files:    new(protoregistry.Files),
		services: services,
		index:    make(map[string]*MethodBinding),
	}
	var order []string
	builders := make(map[string]*Builder)
	pb2Files := make(map[string]protoreflect.FileDescriptor)
	for _, svc := range services {
		if err := svc.Validate(); err != nil {
			return nil, err
		}
		path := svc.Proto()
		if svc.IsPb2() {
			if _, ok := builders[path]; ok {
				return nil, errs.Configuration.Printf("%s is both generated and supplied (service %s)", path, svc.Name())
			}
			if fd, ok := pb2Files[path]; ok && fd != svc.File() {
				return nil, errs.Configuration.Printf("two different descriptors for %s", path)
			}
			pb2Files[path] = svc.File()
			continue
		}
		if _, ok := pb2Files[path]; ok {
			return nil, errs.Configuration.Printf("%s is both generated and supplied (service %s)", path, svc.Name())
		}
		b, ok := builders[path]
		if !ok {
			b = NewBuilder(path, svc.Package())
			builders[path] = b
			order = append(order, path)
		}
		if err := b.AddService(svc); err != nil {
			return nil, err
		}
	}

	files := make(map[string]protoreflect.FileDescriptor, len(order)+len(pb2Files))
	for _, path := range order {
		b := builders[path]
		content, err := b.Render()
		if err != nil {
			return nil, err
		}
		fd, err := b.Build()
		if err != nil {
			return nil, err
		}
		files[path] = fd
		names := make([]string, 0, len(b.services))
		for _, svc := range b.services {
			names = append(names, svc.Name())
		}
		bd.Documents = append(bd.Documents, NewDocument(path, b.pkg, names, content))
	}
	for path, fd := range pb2Files {
		files[path] = fd
	}
	for _, fd := range files {
		if err := util.RegisterFileWithDeps(bd.Files, fd); err != nil {
			return nil, errs.Configuration.Printf("register %s: %v", fd.Path(), err)
		}
	}

	for _, svc := range services {
		sd := files[svc.Proto()].Services().ByName(protoreflect.Name(svc.Name()))
		if sd == nil {
			return nil, errs.Configuration.Printf("service %s missing from %s", svc.Name(), svc.Proto())
		}
		for _, md := range svc.Methods() {
			pm := sd.Methods().ByName(protoreflect.Name(md.Name))
			if pm == nil {
				return nil, errs.Configuration.Printf("method %s missing from %s", md.Name, sd.FullName())
			}
			req, err := schema.NewCodec(md.Request, pm.Input())
			if err != nil {
				return nil, err
			}
			resp, err := schema.NewCodec(md.Response, pm.Output())
			if err != nil {
				return nil, err
			}
			mb := &MethodBinding{
				FullMethod: md.FullMethod(),
				Method:     md,
				Desc:       pm,
				Request:    req,
				Response:   resp,
			}
			if _, ok := bd.index[mb.FullMethod]; ok {
				return nil, errs.Configuration.Printf("duplicate method %s", mb.FullMethod)
			}
			bd.index[mb.FullMethod] = mb
			bd.bindings = append(bd.bindings, mb)
		}
	}
	return bd, nil
}

// Method 按 /pkg.Service/Method 查找
func (bd *Bundle) Method(fullMethod string) *MethodBinding {
	return bd.index[fullMethod]
}

// Bindings 按服务、方法的注册顺序
func (bd *Bundle) Bindings() []*MethodBinding {
	return bd.bindings
}

func (bd *Bundle) Services() []*rpc.Service {
	return bd.services
}

// Document 按路径查找生成的proto文本
func (bd *Bundle) Document(path string) *Document {
	for _, doc := range bd.Documents {
		if doc.Path == path {
			return doc
		}
	}
	return nil
}

// Resolver 先查本组描述符, 再查全局注册表, 供反射服务使用
func (bd *Bundle) Resolver() protodesc.Resolver {
	return resolver{bd.Files, protoregistry.GlobalFiles}
}
