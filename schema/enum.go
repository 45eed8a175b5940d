package schema

import (
	"reflect"
	"slices"
	"strings"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
)

// EnumValue 枚举的一个成员
type EnumValue struct {
	Name   string
	Number int32
}

// Enum 具名有符号整数类型实现它时翻译为proto enum, 第一个成员的值必须为0
//
//	type Color int32
//
//	func (Color) EnumValues() []schema.EnumValue {
//		return []schema.EnumValue{{"COLOR_UNSPECIFIED", 0}, {"COLOR_RED", 1}}
//	}
type Enum interface {
	EnumValues() []EnumValue
}

var enumType = reflect.TypeOf((*Enum)(nil)).Elem()

// EnumSchema 一个枚举的结构, 创建后不可修改
type EnumSchema struct {
	Name   string
	Values []EnumValue
	GoType reflect.Type
}

// Equal 名字与成员(顺序一致)相同
func (e *EnumSchema) Equal(o *EnumSchema) bool {
	if e == o {
		return true
	}
	if e == nil || o == nil {
		return false
	}
	return e.Name == o.Name && slices.Equal(e.Values, o.Values)
}

// FullNameIn 在包pkg中的全名
func (e *EnumSchema) FullNameIn(pkg string) protoreflect.FullName {
	if pkg == "" {
		return protoreflect.FullName(e.Name)
	}
	return protoreflect.FullName(pkg + "." + e.Name)
}

func (e *EnumSchema) DescriptorProto() *descriptorpb.EnumDescriptorProto {
	edp := &descriptorpb.EnumDescriptorProto{Name: proto.String(e.Name)}
	for _, v := range e.Values {
		edp.Value = append(edp.Value, &descriptorpb.EnumValueDescriptorProto{
			Name:   proto.String(v.Name),
			Number: proto.Int32(v.Number),
		})
	}
	return edp
}

// enum 同一类型只翻译一次, 调用方持有tr.mu
func (tr *Translator) enum(et reflect.Type, fail func(string, ...any) error) (*EnumSchema, error) {
	if e, ok := tr.enums.Load(et); ok {
		return e.(*EnumSchema), nil
	}
	if strings.ContainsAny(et.Name(), "[],") {
		return nil, fail("enum %s must be a non-generic type", et)
	}
	switch et.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
	default:
		return nil, fail("enum %s must be a signed integer type", et)
	}
	values := reflect.Zero(et).Interface().(Enum).EnumValues()
	if len(values) == 0 || values[0].Number != 0 {
		return nil, fail("enum %s: first value must be 0", et)
	}
	names := make(map[string]bool, len(values))
	numbers := make(map[int32]string, len(values))
	for _, v := range values {
		if !identRe.MatchString(v.Name) {
			return nil, fail("enum %s: invalid value name %q", et, v.Name)
		}
		if names[v.Name] {
			return nil, fail("enum %s: duplicate value name %s", et, v.Name)
		}
		if prev, ok := numbers[v.Number]; ok {
			return nil, fail("enum %s: %s and %s share number %d", et, prev, v.Name, v.Number)
		}
		names[v.Name] = true
		numbers[v.Number] = v.Name
	}
	e := &EnumSchema{Name: et.Name(), Values: slices.Clone(values), GoType: et}
	tr.enums.Store(et, e)
	return e, nil
}
