// Package schema 把Go结构体翻译为protobuf消息结构, 并负责模型与线上消息之间的编解码
package schema

import (
	"reflect"

	"google.golang.org/protobuf/reflect/protoreflect"
)

// Field 消息中的一个字段
type Field struct {
	Name     string                   // proto字段名
	Number   protoreflect.FieldNumber // 按声明顺序从1开始, 不跳号
	Kind     protoreflect.Kind
	Message  *Schema     // Kind为MessageKind时非空
	Enum     *EnumSchema // 本地枚举, 来自描述符的字段为nil
	Repeated bool
	Optional bool // proto3 optional, 对应Go的标量指针

	GoName string
	index  []int
	goType reflect.Type
}

// TypeName proto文本中字段的类型名, pkg为所在文件的包名
func (f *Field) TypeName(pkg string) string {
	if f.Kind == protoreflect.MessageKind || f.Kind == protoreflect.GroupKind {
		return f.Message.QualifiedName(pkg)
	}
	if f.Kind == protoreflect.EnumKind {
		if f.Enum != nil {
			return f.Enum.Name
		}
		return "int32"
	}
	return f.Kind.String()
}

// Schema 一个消息的结构, 创建后不可修改
type Schema struct {
	Name   string
	Fields []*Field
	GoType reflect.Type // 来自描述符的WKT为nil

	// 外部定义的消息(WKT或已生成的pb类型), 不在本文件中输出
	FullName protoreflect.FullName
	Import   string
	desc     protoreflect.MessageDescriptor
}

func (s *Schema) External() bool {
	return s.FullName != ""
}

// Descriptor 外部消息的描述符, 本地消息返回nil
func (s *Schema) Descriptor() protoreflect.MessageDescriptor {
	return s.desc
}

// QualifiedName 在包pkg内引用本消息使用的名字
func (s *Schema) QualifiedName(pkg string) string {
	if s.External() {
		return string(s.FullName)
	}
	return s.Name
}

// FullNameIn 本地消息在包pkg中的全名
func (s *Schema) FullNameIn(pkg string) protoreflect.FullName {
	if s.External() {
		return s.FullName
	}
	if pkg == "" {
		return protoreflect.FullName(s.Name)
	}
	return protoreflect.FullName(pkg + "." + s.Name)
}

func (s *Schema) Field(name string) *Field {
	for _, f := range s.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Rename 返回改名后的副本, 用于同一Go类型以不同消息名输出
func (s *Schema) Rename(name string) *Schema {
	c := *s
	c.Name = name
	return &c
}

// Nested 直接引用的消息, 按字段顺序, 去重
func (s *Schema) Nested() []*Schema {
	var out []*Schema
	seen := map[*Schema]bool{}
	for _, f := range s.Fields {
		if f.Message != nil && !seen[f.Message] {
			seen[f.Message] = true
			out = append(out, f.Message)
		}
	}
	return out
}

// Enums 字段直接引用的枚举, 按字段顺序, 去重
func (s *Schema) Enums() []*EnumSchema {
	var out []*EnumSchema
	seen := map[*EnumSchema]bool{}
	for _, f := range s.Fields {
		if f.Enum != nil && !seen[f.Enum] {
			seen[f.Enum] = true
			out = append(out, f.Enum)
		}
	}
	return out
}

// Equal 结构相等: 名字, 字段名/编号/类型/修饰, 嵌套消息递归比较
func (s *Schema) Equal(o *Schema) bool {
	return equalSchema(s, o, map[[2]*Schema]bool{})
}

func equalSchema(a, b *Schema, seen map[[2]*Schema]bool) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	key := [2]*Schema{a, b}
	if seen[key] {
		return true
	}
	seen[key] = true
	if a.Name != b.Name || a.FullName != b.FullName || len(a.Fields) != len(b.Fields) {
		return false
	}
	for i, fa := range a.Fields {
		fb := b.Fields[i]
		if fa.Name != fb.Name || fa.Number != fb.Number || fa.Kind != fb.Kind ||
			fa.Repeated != fb.Repeated || fa.Optional != fb.Optional {
			return false
		}
		if !fa.Enum.Equal(fb.Enum) || !equalSchema(fa.Message, fb.Message, seen) {
			return false
		}
	}
	return true
}
