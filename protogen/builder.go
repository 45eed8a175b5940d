// Package protogen 由服务定义生成proto文本与描述符
package protogen

import (
	"sort"
	"strconv"
	"strings"

	"github.com/fixkme/fastgrpc/errs"
	"github.com/fixkme/fastgrpc/rpc"
	"github.com/fixkme/fastgrpc/schema"
	"github.com/fixkme/fastgrpc/util"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
)

const indent = "    "

// Builder 一个proto文件, 可包含多个服务
type Builder struct {
	path     string
	pkg      string
	services []*rpc.Service
	messages []*schema.Schema
	enums    []*schema.EnumSchema
	byName   map[string]*schema.Schema
	enumName map[string]*schema.EnumSchema
	imports  map[string]struct{}
	deps     *protoregistry.Files // 外部消息所在文件
}

func NewBuilder(path, pkg string) *Builder {
	return &Builder{
		path:    path,
		pkg:     pkg,
		byName:   make(map[string]*schema.Schema),
		enumName: make(map[string]*schema.EnumSchema),
		imports:  make(map[string]struct{}),
		deps:     new(protoregistry.Files),
	}
}

func (b *Builder) Path() string { return b.path }

func (b *Builder) Package() string { return b.pkg }

func (b *Builder) Services() []*rpc.Service { return b.services }

// Messages 本文件定义的消息, 按首次引用顺序
func (b *Builder) Messages() []*schema.Schema { return b.messages }

// Enums 本文件定义的枚举, 按首次引用顺序
func (b *Builder) Enums() []*schema.EnumSchema { return b.enums }

// AddService 收集服务及其引用的所有消息, 广度优先
func (b *Builder) AddService(svc *rpc.Service) error {
	if err := svc.Validate(); err != nil {
		return err
	}
	if svc.IsPb2() {
		return errs.Configuration.Printf("service %s is defined by %s, nothing to emit", svc.Name(), svc.Proto())
	}
	if svc.Proto() != b.path || svc.Package() != b.pkg {
		return errs.Configuration.Printf("service %s belongs to %s (package %s), builder is %s (package %s)",
			svc.Name(), svc.Proto(), svc.Package(), b.path, b.pkg)
	}
	for _, s := range b.services {
		if s == svc {
			return nil
		}
		if s.Name() == svc.Name() {
			return errs.Configuration.Printf("duplicate service %s in %s", svc.Name(), b.path)
		}
	}

	var queue []*schema.Schema
	for _, md := range svc.Methods() {
		queue = append(queue, md.Request, md.Response)
	}
	// 出错时不留下半个服务
	added, addedEnums := len(b.messages), len(b.enums)
	for len(queue) > 0 {
		s := queue[0]
		queue = queue[1:]
		next, err := b.addMessage(s)
		if err != nil {
			b.rollback(added, addedEnums)
			return err
		}
		queue = append(queue, next...)
	}
	b.services = append(b.services, svc)
	return nil
}

func (b *Builder) addMessage(s *schema.Schema) ([]*schema.Schema, error) {
	if s.External() {
		if s.Import != "" && s.Import != b.path {
			b.imports[s.Import] = struct{}{}
		}
		if d := s.Descriptor(); d != nil {
			if err := util.RegisterFileWithDeps(b.deps, d.ParentFile()); err != nil {
				return nil, errs.Configuration.Printf("register %s: %v", s.Import, err)
			}
		}
		return nil, nil
	}
	if old, ok := b.byName[s.Name]; ok {
		if old == s || old.Equal(s) {
			return nil, nil
		}
		return nil, errs.Configuration.Printf("message %s in %s: two different types share this name (%v, %v)",
			s.Name, b.path, old.GoType, s.GoType)
	}
	if e, ok := b.enumName[s.Name]; ok {
		return nil, errs.Configuration.Printf("message %s in %s: name already used by enum %v", s.Name, b.path, e.GoType)
	}
	for _, e := range s.Enums() {
		if err := b.addEnum(e); err != nil {
			return nil, err
		}
	}
	b.byName[s.Name] = s
	b.messages = append(b.messages, s)
	return s.Nested(), nil
}

func (b *Builder) addEnum(e *schema.EnumSchema) error {
	if old, ok := b.enumName[e.Name]; ok {
		if old == e || old.Equal(e) {
			return nil
		}
		return errs.Configuration.Printf("enum %s in %s: two different types share this name (%v, %v)",
			e.Name, b.path, old.GoType, e.GoType)
	}
	if m, ok := b.byName[e.Name]; ok {
		return errs.Configuration.Printf("enum %s in %s: name already used by message %v", e.Name, b.path, m.GoType)
	}
	b.enumName[e.Name] = e
	b.enums = append(b.enums, e)
	return nil
}

func (b *Builder) rollback(n, ne int) {
	for _, s := range b.messages[n:] {
		delete(b.byName, s.Name)
	}
	b.messages = b.messages[:n]
	for _, e := range b.enums[ne:] {
		delete(b.enumName, e.Name)
	}
	b.enums = b.enums[:ne]
}

func (b *Builder) sortedImports() []string {
	out := make([]string, 0, len(b.imports))
	for imp := range b.imports {
		out = append(out, imp)
	}
	sort.Strings(out)
	return out
}

// Render proto文本, 相同输入顺序下输出逐字节一致
func (b *Builder) Render() (string, error) {
	if len(b.services) == 0 {
		return "", errs.Configuration.Printf("%s: no services", b.path)
	}
	var sb strings.Builder
	sb.WriteString("syntax = \"proto3\";\n\n")
	sb.WriteString("package " + b.pkg + ";\n")
	if imps := b.sortedImports(); len(imps) > 0 {
		sb.WriteString("\n")
		for _, imp := range imps {
			sb.WriteString("import \"" + imp + "\";\n")
		}
	}
	for _, svc := range b.services {
		sb.WriteString("\nservice " + svc.Name() + " {\n")
		for _, md := range svc.Methods() {
			if md.Description != "" {
				for _, line := range strings.Split(md.Description, "\n") {
					sb.WriteString(indent + "// " + line + "\n")
				}
			}
			sb.WriteString(indent + "rpc " + md.Name + "(")
			if md.Cardinality.ClientStreaming() {
				sb.WriteString("stream ")
			}
			sb.WriteString(md.Request.QualifiedName(b.pkg) + ") returns (")
			if md.Cardinality.ServerStreaming() {
				sb.WriteString("stream ")
			}
			sb.WriteString(md.Response.QualifiedName(b.pkg) + ") {}\n")
		}
		sb.WriteString("}\n")
	}
	for _, s := range b.messages {
		sb.WriteString("\nmessage " + s.Name + " {\n")
		for _, f := range s.Fields {
			sb.WriteString(indent)
			if f.Repeated {
				sb.WriteString("repeated ")
			} else if f.Optional {
				sb.WriteString("optional ")
			}
			sb.WriteString(f.TypeName(b.pkg) + " " + f.Name + " = " + strconv.Itoa(int(f.Number)) + ";\n")
		}
		sb.WriteString("}\n")
	}
	for _, e := range b.enums {
		sb.WriteString("\nenum " + e.Name + " {\n")
		for _, v := range e.Values {
			sb.WriteString(indent + v.Name + " = " + strconv.Itoa(int(v.Number)) + ";\n")
		}
		sb.WriteString("}\n")
	}
	return sb.String(), nil
}

// FileDescriptorProto 与Render输出等价的描述
func (b *Builder) FileDescriptorProto() *descriptorpb.FileDescriptorProto {
	fdp := &descriptorpb.FileDescriptorProto{
		Name:       proto.String(b.path),
		Package:    proto.String(b.pkg),
		Syntax:     proto.String("proto3"),
		Dependency: b.sortedImports(),
	}
	for _, s := range b.messages {
		fdp.MessageType = append(fdp.MessageType, s.DescriptorProto(b.pkg))
	}
	for _, e := range b.enums {
		fdp.EnumType = append(fdp.EnumType, e.DescriptorProto())
	}
	for _, svc := range b.services {
		sdp := &descriptorpb.ServiceDescriptorProto{Name: proto.String(svc.Name())}
		for _, md := range svc.Methods() {
			sdp.Method = append(sdp.Method, &descriptorpb.MethodDescriptorProto{
				Name:            proto.String(md.Name),
				InputType:       proto.String("." + string(md.Request.FullNameIn(b.pkg))),
				OutputType:      proto.String("." + string(md.Response.FullNameIn(b.pkg))),
				ClientStreaming: proto.Bool(md.Cardinality.ClientStreaming()),
				ServerStreaming: proto.Bool(md.Cardinality.ServerStreaming()),
			})
		}
		fdp.Service = append(fdp.Service, sdp)
	}
	return fdp
}

// Build 构建描述符, 依赖先在外部消息自带的文件中查找, 再查全局注册表
func (b *Builder) Build() (protoreflect.FileDescriptor, error) {
	fd, err := protodesc.NewFile(b.FileDescriptorProto(), resolver{b.deps, protoregistry.GlobalFiles})
	if err != nil {
		return nil, errs.Configuration.Printf("build %s: %v", b.path, err)
	}
	return fd, nil
}

type resolver []*protoregistry.Files

func (r resolver) FindFileByPath(path string) (protoreflect.FileDescriptor, error) {
	for _, files := range r {
		if fd, err := files.FindFileByPath(path); err == nil {
			return fd, nil
		}
	}
	return nil, protoregistry.NotFound
}

func (r resolver) FindDescriptorByName(name protoreflect.FullName) (protoreflect.Descriptor, error) {
	for _, files := range r {
		if d, err := files.FindDescriptorByName(name); err == nil {
			return d, nil
		}
	}
	return nil, protoregistry.NotFound
}
