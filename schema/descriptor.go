package schema

import (
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
)

// FromDescriptor 从已生成(或已构建)的消息描述符得到Schema, 结果为外部消息
func FromDescriptor(md protoreflect.MessageDescriptor) *Schema {
	return fromDescriptor(md, make(map[protoreflect.FullName]*Schema))
}

func fromDescriptor(md protoreflect.MessageDescriptor, seen map[protoreflect.FullName]*Schema) *Schema {
	if s, ok := seen[md.FullName()]; ok {
		return s
	}
	s := &Schema{
		Name:     string(md.Name()),
		FullName: md.FullName(),
		Import:   md.ParentFile().Path(),
		desc:     md,
	}
	seen[md.FullName()] = s
	fields := md.Fields()
	for i := 0; i < fields.Len(); i++ {
		fd := fields.Get(i)
		f := &Field{
			Name:     string(fd.Name()),
			Number:   fd.Number(),
			Kind:     fd.Kind(),
			Repeated: fd.Cardinality() == protoreflect.Repeated,
			Optional: fd.HasOptionalKeyword(),
		}
		if fd.Message() != nil {
			f.Message = fromDescriptor(fd.Message(), seen)
		}
		s.Fields = append(s.Fields, f)
	}
	return s
}

// DescriptorProto 本地消息的描述, pkg为所在文件包名
func (s *Schema) DescriptorProto(pkg string) *descriptorpb.DescriptorProto {
	dp := &descriptorpb.DescriptorProto{Name: proto.String(s.Name)}
	for _, f := range s.Fields {
		fdp := &descriptorpb.FieldDescriptorProto{
			Name:     proto.String(f.Name),
			Number:   proto.Int32(int32(f.Number)),
			Label:    descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
			Type:     descriptorpb.FieldDescriptorProto_Type(f.Kind).Enum(),
			JsonName: proto.String(jsonName(f.Name)),
		}
		if f.Repeated {
			fdp.Label = descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum()
		}
		if f.Message != nil {
			fdp.TypeName = proto.String("." + string(f.Message.FullNameIn(pkg)))
		}
		if f.Enum != nil {
			fdp.TypeName = proto.String("." + string(f.Enum.FullNameIn(pkg)))
		}
		if f.Optional {
			// proto3 optional 需要合成oneof
			fdp.Proto3Optional = proto.Bool(true)
			fdp.OneofIndex = proto.Int32(int32(len(dp.OneofDecl)))
			dp.OneofDecl = append(dp.OneofDecl, &descriptorpb.OneofDescriptorProto{Name: proto.String("_" + f.Name)})
		}
		dp.Field = append(dp.Field, fdp)
	}
	return dp
}

// jsonName 与protoc一致: 去掉'_'并将其后字母大写
func jsonName(name string) string {
	out := make([]byte, 0, len(name))
	upper := false
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c == '_' {
			upper = true
			continue
		}
		if upper && 'a' <= c && c <= 'z' {
			c -= 'a' - 'A'
		}
		upper = false
		out = append(out, c)
	}
	return string(out)
}
