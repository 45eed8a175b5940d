package schema

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/fixkme/fastgrpc/errs"
	"github.com/fixkme/fastgrpc/util/strs"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/timestamppb"
)

var (
	timeType         = reflect.TypeOf(time.Time{})
	durationType     = reflect.TypeOf(time.Duration(0))
	protoMessageType = reflect.TypeOf((*proto.Message)(nil)).Elem()

	timestampSchema = FromDescriptor((&timestamppb.Timestamp{}).ProtoReflect().Descriptor())
	durationSchema  = FromDescriptor((&durationpb.Duration{}).ProtoReflect().Descriptor())

	identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// 整数类型的 pb tag 覆盖
var kindOverrides = map[string]protoreflect.Kind{
	"int32":    protoreflect.Int32Kind,
	"int64":    protoreflect.Int64Kind,
	"sint32":   protoreflect.Sint32Kind,
	"sint64":   protoreflect.Sint64Kind,
	"sfixed32": protoreflect.Sfixed32Kind,
	"sfixed64": protoreflect.Sfixed64Kind,
	"uint32":   protoreflect.Uint32Kind,
	"uint64":   protoreflect.Uint64Kind,
	"fixed32":  protoreflect.Fixed32Kind,
	"fixed64":  protoreflect.Fixed64Kind,
	"float":    protoreflect.FloatKind,
	"double":   protoreflect.DoubleKind,
}

// Translator Go类型 -> Schema, 结果按类型缓存, 同一类型多次翻译返回同一个Schema
type Translator struct {
	cache sync.Map // reflect.Type -> *Schema
	enums sync.Map // reflect.Type -> *EnumSchema
	mu    sync.Mutex
}

func NewTranslator() *Translator {
	return &Translator{}
}

// Default 进程内共享的翻译缓存
var Default = NewTranslator()

// Of 使用Default翻译T
func Of[T any]() (*Schema, error) {
	return Default.Translate(reflect.TypeFor[T]())
}

// Translate t必须是结构体或结构体指针
func (tr *Translator) Translate(t reflect.Type) (*Schema, error) {
	if t == nil {
		return nil, errs.Schema.Printf("nil type")
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if s, ok := tr.cache.Load(t); ok {
		return s.(*Schema), nil
	}
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if s, ok := tr.cache.Load(t); ok {
		return s.(*Schema), nil
	}
	pending := make(map[reflect.Type]*Schema)
	s, err := tr.translate(t, pending)
	if err != nil {
		return nil, err
	}
	for k, v := range pending {
		tr.cache.Store(k, v)
	}
	return s, nil
}

func (tr *Translator) translate(t reflect.Type, pending map[reflect.Type]*Schema) (*Schema, error) {
	if s, ok := tr.cache.Load(t); ok {
		return s.(*Schema), nil
	}
	if s, ok := pending[t]; ok {
		return s, nil
	}
	if t == timeType {
		return timestampSchema, nil
	}
	if reflect.PointerTo(t).Implements(protoMessageType) {
		md := reflect.New(t).Interface().(proto.Message).ProtoReflect().Descriptor()
		s := FromDescriptor(md)
		s.GoType = t
		pending[t] = s
		return s, nil
	}
	if t.Kind() != reflect.Struct {
		return nil, errs.Schema.Printf("%s: not a struct type", t)
	}
	if t.Name() == "" || strings.ContainsAny(t.Name(), "[],") {
		return nil, errs.Schema.Printf("%s: message type must be a named non-generic struct", t)
	}

	s := &Schema{Name: t.Name(), GoType: t}
	pending[t] = s
	names := make(map[string]string)
	for _, sf := range reflect.VisibleFields(t) {
		if sf.Anonymous {
			if sf.Type.Kind() == reflect.Struct {
				// 提升字段紧随其后
				continue
			}
			if sf.Type.Kind() == reflect.Pointer && sf.Type.Elem().Kind() == reflect.Struct {
				return nil, errs.Schema.Printf("%s.%s: embedded struct pointer not supported", t.Name(), sf.Name)
			}
		}
		if !sf.IsExported() {
			continue
		}
		tag := sf.Tag.Get("pb")
		if tag == "-" {
			continue
		}
		name, override := parseTag(tag)
		if name == "" {
			name = strs.CamelToSnake(sf.Name)
		}
		if !identRe.MatchString(name) {
			return nil, errs.Schema.Printf("%s.%s: invalid field name %q", t.Name(), sf.Name, name)
		}
		if prev, ok := names[name]; ok {
			return nil, errs.Schema.Printf("%s.%s: field name %q already used by %s", t.Name(), sf.Name, name, prev)
		}
		names[name] = sf.Name

		f, err := tr.field(t, sf, pending)
		if err != nil {
			return nil, err
		}
		f.Name = name
		f.Number = protoreflect.FieldNumber(len(s.Fields) + 1)
		if override != "" {
			if err := applyOverride(f, override); err != nil {
				return nil, errs.Schema.Printf("%s.%s: %v", t.Name(), sf.Name, err)
			}
		}
		s.Fields = append(s.Fields, f)
	}
	return s, nil
}

func (tr *Translator) field(owner reflect.Type, sf reflect.StructField, pending map[reflect.Type]*Schema) (*Field, error) {
	f := &Field{GoName: sf.Name, index: sf.Index, goType: sf.Type}
	fail := func(format string, args ...any) error {
		return errs.Schema.Printf("%s.%s: %s", owner.Name(), sf.Name, fmt.Sprintf(format, args...))
	}
	ft := sf.Type
	var err error
	switch {
	case isBytes(ft):
		f.Kind = protoreflect.BytesKind
	case ft.Kind() == reflect.Slice || ft.Kind() == reflect.Array:
		if ft.Kind() == reflect.Array {
			return nil, fail("array type %s not supported, use a slice", ft)
		}
		et := ft.Elem()
		if (et.Kind() == reflect.Slice && !isBytes(et)) || et.Kind() == reflect.Array {
			return nil, fail("nested repeated type %s not supported", ft)
		}
		f.Repeated = true
		err = tr.elem(f, et, pending, fail)
	case ft.Kind() == reflect.Pointer:
		et := ft.Elem()
		if et.Kind() == reflect.Slice || et.Kind() == reflect.Pointer || et.Kind() == reflect.Map {
			return nil, fail("pointer to %s not supported", et)
		}
		err = tr.elem(f, et, pending, fail)
		// 消息本身有presence, 只有标量需要optional
		f.Optional = f.Kind != protoreflect.MessageKind
	default:
		err = tr.elem(f, ft, pending, fail)
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (tr *Translator) elem(f *Field, et reflect.Type, pending map[reflect.Type]*Schema, fail func(string, ...any) error) error {
	switch et {
	case timeType:
		f.Kind, f.Message = protoreflect.MessageKind, timestampSchema
		return nil
	case durationType:
		f.Kind, f.Message = protoreflect.MessageKind, durationSchema
		return nil
	}
	if isBytes(et) {
		f.Kind = protoreflect.BytesKind
		return nil
	}
	if et.Kind() != reflect.Pointer && et.Kind() != reflect.Struct && et.Implements(enumType) {
		e, err := tr.enum(et, fail)
		if err != nil {
			return err
		}
		f.Kind, f.Enum = protoreflect.EnumKind, e
		return nil
	}
	switch et.Kind() {
	case reflect.Bool:
		f.Kind = protoreflect.BoolKind
	case reflect.String:
		f.Kind = protoreflect.StringKind
	case reflect.Int, reflect.Int64:
		f.Kind = protoreflect.Int64Kind
	case reflect.Int32, reflect.Int16, reflect.Int8:
		f.Kind = protoreflect.Int32Kind
	case reflect.Uint, reflect.Uint64:
		f.Kind = protoreflect.Uint64Kind
	case reflect.Uint32, reflect.Uint16, reflect.Uint8:
		f.Kind = protoreflect.Uint32Kind
	case reflect.Float64:
		f.Kind = protoreflect.DoubleKind
	case reflect.Float32:
		f.Kind = protoreflect.FloatKind
	case reflect.Pointer:
		if et.Elem().Kind() != reflect.Struct {
			return fail("pointer element %s not supported", et)
		}
		return tr.elem(f, et.Elem(), pending, fail)
	case reflect.Struct:
		if et.Name() == "" {
			return fail("anonymous struct type not supported")
		}
		s, err := tr.translate(et, pending)
		if err != nil {
			return err
		}
		f.Kind, f.Message = protoreflect.MessageKind, s
	default:
		return fail("type %s has no protobuf equivalent", et)
	}
	return nil
}

func isBytes(t reflect.Type) bool {
	return t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8
}

func applyOverride(f *Field, typ string) error {
	if f.Enum != nil {
		return fmt.Errorf("type override %q not allowed on enum %s", typ, f.Enum.Name)
	}
	k, ok := kindOverrides[typ]
	if !ok {
		return fmt.Errorf("unknown type override %q", typ)
	}
	if kindClass(k) != kindClass(f.Kind) {
		return fmt.Errorf("type override %q incompatible with %s", typ, f.Kind)
	}
	f.Kind = k
	return nil
}

func parseTag(tag string) (name, typ string) {
	if tag == "" {
		return "", ""
	}
	name, typ, _ = strings.Cut(tag, ",")
	return strings.TrimSpace(name), strings.TrimSpace(typ)
}

type class int

const (
	classOther class = iota
	classSigned
	classUnsigned
	classFloat
	classBool
	classString
	classBytes
	classMessage
)

func kindClass(k protoreflect.Kind) class {
	switch k {
	case protoreflect.Int32Kind, protoreflect.Int64Kind, protoreflect.Sint32Kind, protoreflect.Sint64Kind,
		protoreflect.Sfixed32Kind, protoreflect.Sfixed64Kind, protoreflect.EnumKind:
		return classSigned
	case protoreflect.Uint32Kind, protoreflect.Uint64Kind, protoreflect.Fixed32Kind, protoreflect.Fixed64Kind:
		return classUnsigned
	case protoreflect.FloatKind, protoreflect.DoubleKind:
		return classFloat
	case protoreflect.BoolKind:
		return classBool
	case protoreflect.StringKind:
		return classString
	case protoreflect.BytesKind:
		return classBytes
	case protoreflect.MessageKind, protoreflect.GroupKind:
		return classMessage
	}
	return classOther
}
