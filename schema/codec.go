package schema

import (
	"bytes"
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/fixkme/fastgrpc/errs"
	"github.com/fixkme/fastgrpc/util"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// Codec 模型与线上消息之间的转换, 构建后只读, 可并发使用
// 空切片与nil切片在线上相同, 解码后均为nil; 列表中的nil元素编码时报校验错误
type Codec interface {
	Schema() *Schema
	Descriptor() protoreflect.MessageDescriptor
	// New 创建一个空的线上消息, 用于接收数据
	New() protoreflect.Message
	// Decode 线上消息 -> *T, 执行模型校验
	Decode(m protoreflect.Message) (any, error)
	// Encode T或*T -> 线上消息, 编码前执行模型校验
	Encode(v any) (protoreflect.Message, error)
}

// NewCodec 按字段名将s绑定到md; 字段缺失或类型不兼容返回ConfigurationError
func NewCodec(s *Schema, md protoreflect.MessageDescriptor) (Codec, error) {
	if s.GoType != nil && reflect.PointerTo(s.GoType).Implements(protoMessageType) {
		return newMessageCodec(s, md)
	}
	if s.GoType == nil {
		return nil, errs.Configuration.Printf("schema %s has no Go type", s.Name)
	}
	return newModelCodec(s, md, make(map[*Schema]*modelCodec))
}

// messageCodec 已生成的pb类型, 不经过模型转换
type messageCodec struct {
	schema *Schema
	md     protoreflect.MessageDescriptor
}

func newMessageCodec(s *Schema, md protoreflect.MessageDescriptor) (*messageCodec, error) {
	own := reflect.New(s.GoType).Interface().(proto.Message).ProtoReflect().Descriptor()
	if own.FullName() != md.FullName() {
		return nil, errs.Configuration.Printf("%s is %s, method expects %s", s.GoType, own.FullName(), md.FullName())
	}
	return &messageCodec{schema: s, md: md}, nil
}

func (c *messageCodec) Schema() *Schema                            { return c.schema }
func (c *messageCodec) Descriptor() protoreflect.MessageDescriptor { return c.md }

func (c *messageCodec) New() protoreflect.Message {
	return reflect.New(c.schema.GoType).Interface().(proto.Message).ProtoReflect()
}

func (c *messageCodec) Decode(m protoreflect.Message) (any, error) {
	msg := m.Interface()
	if reflect.TypeOf(msg) == reflect.PointerTo(c.schema.GoType) {
		return msg, nil
	}
	out := c.New().Interface()
	proto.Merge(out, msg)
	return out, nil
}

func (c *messageCodec) Encode(v any) (protoreflect.Message, error) {
	pm, ok := v.(proto.Message)
	if !ok {
		return nil, errs.Marshal.Printf("%T is not %s", v, c.md.FullName())
	}
	if rv := reflect.ValueOf(pm); rv.Kind() == reflect.Pointer && rv.IsNil() {
		return c.New(), nil
	}
	return pm.ProtoReflect(), nil
}

type wkt int

const (
	wktNone wkt = iota
	wktTimestamp
	wktDuration
	wktProto // 模型中嵌入的已生成pb类型
)

type binding struct {
	f   *Field
	fd  protoreflect.FieldDescriptor
	sub *modelCodec
	wkt wkt
}

type modelCodec struct {
	schema *Schema
	md     protoreflect.MessageDescriptor
	fields []binding
}

func newModelCodec(s *Schema, md protoreflect.MessageDescriptor, seen map[*Schema]*modelCodec) (*modelCodec, error) {
	if c, ok := seen[s]; ok {
		return c, nil
	}
	c := &modelCodec{schema: s, md: md}
	seen[s] = c
	for _, f := range s.Fields {
		fd := md.Fields().ByName(protoreflect.Name(f.Name))
		if fd == nil {
			return nil, errs.Configuration.Printf("field %s.%s not found in %s", s.Name, f.Name, md.FullName())
		}
		if fd.IsMap() || fd.IsList() != f.Repeated {
			return nil, errs.Configuration.Printf("field %s.%s: repeated mismatch with %s", s.Name, f.Name, fd.FullName())
		}
		b := binding{f: f, fd: fd}
		if f.Enum != nil && fd.Kind() == protoreflect.EnumKind && string(fd.Enum().Name()) != f.Enum.Name {
			return nil, errs.Configuration.Printf("field %s.%s: enum %s bound to %s", s.Name, f.Name, f.Enum.Name, fd.Enum().FullName())
		}
		if kindClass(f.Kind) != kindClass(fd.Kind()) {
			return nil, errs.Configuration.Printf("field %s.%s: %s incompatible with %s %s", s.Name, f.Name, f.Kind, fd.FullName(), fd.Kind())
		}
		if f.Message != nil {
			switch et := elemType(f.goType); {
			case et == timeType:
				b.wkt = wktTimestamp
			case et == durationType:
				b.wkt = wktDuration
			case reflect.PointerTo(et).Implements(protoMessageType):
				b.wkt = wktProto
			default:
				sub, err := newModelCodec(f.Message, fd.Message(), seen)
				if err != nil {
					return nil, err
				}
				b.sub = sub
			}
			if b.wkt != wktNone && fd.Message().FullName() != f.Message.FullName {
				return nil, errs.Configuration.Printf("field %s.%s: expects %s, got %s", s.Name, f.Name, f.Message.FullName, fd.Message().FullName())
			}
		}
		c.fields = append(c.fields, b)
	}
	return c, nil
}

func elemType(t reflect.Type) reflect.Type {
	if t.Kind() == reflect.Slice && t.Elem().Kind() != reflect.Uint8 {
		t = t.Elem()
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

func (c *modelCodec) Schema() *Schema                            { return c.schema }
func (c *modelCodec) Descriptor() protoreflect.MessageDescriptor { return c.md }

func (c *modelCodec) New() protoreflect.Message {
	return util.NewMessage(c.md)
}

func (c *modelCodec) Decode(m protoreflect.Message) (any, error) {
	ptr := reflect.New(c.schema.GoType)
	var vs []errs.Violation
	c.decode(m, ptr.Elem(), "", &vs)
	out := ptr.Interface()
	if len(vs) == 0 {
		vs = validateModel(out)
	}
	if len(vs) > 0 {
		return nil, &errs.ValidationError{Message: c.schema.Name, Violations: vs}
	}
	return out, nil
}

func (c *modelCodec) Encode(v any) (protoreflect.Message, error) {
	m := c.New()
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || (rv.Kind() == reflect.Pointer && rv.IsNil()) {
		return m, nil
	}
	if rv.Kind() != reflect.Pointer {
		p := reflect.New(rv.Type())
		p.Elem().Set(rv)
		rv = p
	}
	if rv.Elem().Type() != c.schema.GoType {
		return nil, errs.Marshal.Printf("cannot encode %s as %s", rv.Type(), c.md.FullName())
	}
	if vs := validateModel(rv.Interface()); len(vs) > 0 {
		return nil, &errs.ValidationError{Message: c.schema.Name, Violations: vs}
	}
	var vs []errs.Violation
	c.encode(m, rv.Elem(), "", &vs)
	if len(vs) > 0 {
		return nil, &errs.ValidationError{Message: c.schema.Name, Violations: vs}
	}
	return m, nil
}

func (c *modelCodec) decode(m protoreflect.Message, v reflect.Value, prefix string, vs *[]errs.Violation) {
	for i := range c.fields {
		b := &c.fields[i]
		fv := v.FieldByIndex(b.f.index)
		path := prefix + b.f.Name
		if b.f.Repeated {
			list := m.Get(b.fd).List()
			n := list.Len()
			if n == 0 {
				continue
			}
			slice := reflect.MakeSlice(fv.Type(), n, n)
			for j := 0; j < n; j++ {
				b.decodeValue(list.Get(j), slice.Index(j), fmt.Sprintf("%s[%d]", path, j), vs)
			}
			fv.Set(slice)
			continue
		}
		if !m.Has(b.fd) {
			continue
		}
		b.decodeValue(m.Get(b.fd), fv, path, vs)
	}
}

func (b *binding) decodeValue(val protoreflect.Value, dst reflect.Value, path string, vs *[]errs.Violation) {
	if dst.Kind() == reflect.Pointer {
		p := reflect.New(dst.Type().Elem())
		b.decodeValue(val, p.Elem(), path, vs)
		dst.Set(p)
		return
	}
	if b.f.Message != nil {
		sm := val.Message()
		switch b.wkt {
		case wktTimestamp:
			secs, nanos := secondsNanos(sm)
			dst.Set(reflect.ValueOf(time.Unix(secs, nanos).UTC()))
		case wktDuration:
			secs, nanos := secondsNanos(sm)
			dst.SetInt(secs*int64(time.Second) + nanos)
		case wktProto:
			proto.Merge(dst.Addr().Interface().(proto.Message), sm.Interface())
		default:
			b.sub.decode(sm, dst, path+".", vs)
		}
		return
	}
	switch dst.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		var x int64
		if b.fd.Kind() == protoreflect.EnumKind {
			x = int64(val.Enum())
		} else {
			x = val.Int()
		}
		if dst.OverflowInt(x) {
			*vs = append(*vs, overflow(path, x, dst.Type()))
			return
		}
		dst.SetInt(x)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		x := val.Uint()
		if dst.OverflowUint(x) {
			*vs = append(*vs, overflow(path, x, dst.Type()))
			return
		}
		dst.SetUint(x)
	case reflect.Float32, reflect.Float64:
		x := val.Float()
		if dst.OverflowFloat(x) {
			*vs = append(*vs, overflow(path, x, dst.Type()))
			return
		}
		dst.SetFloat(x)
	case reflect.Bool:
		dst.SetBool(val.Bool())
	case reflect.String:
		dst.SetString(val.String())
	case reflect.Slice:
		dst.SetBytes(bytes.Clone(val.Bytes()))
	}
}

func secondsNanos(m protoreflect.Message) (int64, int64) {
	fields := m.Descriptor().Fields()
	return m.Get(fields.ByName("seconds")).Int(), m.Get(fields.ByName("nanos")).Int()
}

func setSecondsNanos(m protoreflect.Message, secs int64, nanos int32) {
	fields := m.Descriptor().Fields()
	m.Set(fields.ByName("seconds"), protoreflect.ValueOfInt64(secs))
	m.Set(fields.ByName("nanos"), protoreflect.ValueOfInt32(nanos))
}

func (c *modelCodec) encode(m protoreflect.Message, v reflect.Value, prefix string, vs *[]errs.Violation) {
	for i := range c.fields {
		b := &c.fields[i]
		fv := v.FieldByIndex(b.f.index)
		path := prefix + b.f.Name
		if b.f.Repeated {
			n := fv.Len()
			if n == 0 {
				continue
			}
			list := m.Mutable(b.fd).List()
			for j := 0; j < n; j++ {
				if val, ok := b.encodeValue(list.NewElement(), fv.Index(j), fmt.Sprintf("%s[%d]", path, j), vs); ok {
					list.Append(val)
				}
			}
			continue
		}
		if fv.Kind() == reflect.Pointer {
			if fv.IsNil() {
				continue
			}
		} else if fv.IsZero() {
			// 隐式presence, 零值不写
			continue
		}
		if val, ok := b.encodeValue(m.NewField(b.fd), fv, path, vs); ok {
			m.Set(b.fd, val)
		}
	}
}

func (b *binding) encodeValue(zero protoreflect.Value, src reflect.Value, path string, vs *[]errs.Violation) (protoreflect.Value, bool) {
	if src.Kind() == reflect.Pointer {
		if src.IsNil() {
			// 只有列表元素会到这里, 线上无法表示nil
			*vs = append(*vs, errs.Violation{Field: path, Rule: "nil", Reason: "nil list element"})
			return zero, false
		}
		src = src.Elem()
	}
	if b.f.Message != nil {
		sm := zero.Message()
		switch b.wkt {
		case wktTimestamp:
			t := src.Interface().(time.Time)
			setSecondsNanos(sm, t.Unix(), int32(t.Nanosecond()))
		case wktDuration:
			d := time.Duration(src.Int())
			setSecondsNanos(sm, int64(d/time.Second), int32(d%time.Second))
		case wktProto:
			if !src.CanAddr() {
				p := reflect.New(src.Type())
				p.Elem().Set(src)
				src = p.Elem()
			}
			proto.Merge(sm.Interface(), src.Addr().Interface().(proto.Message))
		default:
			b.sub.encode(sm, src, path+".", vs)
		}
		return protoreflect.ValueOfMessage(sm), true
	}
	switch b.fd.Kind() {
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind:
		x := src.Int()
		if x < math.MinInt32 || x > math.MaxInt32 {
			*vs = append(*vs, overflow(path, x, b.fd.Kind()))
			return zero, false
		}
		return protoreflect.ValueOfInt32(int32(x)), true
	case protoreflect.EnumKind:
		x := src.Int()
		if x < math.MinInt32 || x > math.MaxInt32 {
			*vs = append(*vs, overflow(path, x, b.fd.Kind()))
			return zero, false
		}
		return protoreflect.ValueOfEnum(protoreflect.EnumNumber(x)), true
	case protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		return protoreflect.ValueOfInt64(src.Int()), true
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind:
		x := src.Uint()
		if x > math.MaxUint32 {
			*vs = append(*vs, overflow(path, x, b.fd.Kind()))
			return zero, false
		}
		return protoreflect.ValueOfUint32(uint32(x)), true
	case protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		return protoreflect.ValueOfUint64(src.Uint()), true
	case protoreflect.FloatKind:
		x := src.Float()
		if !math.IsInf(x, 0) && !math.IsNaN(x) && math.Abs(x) > math.MaxFloat32 {
			*vs = append(*vs, overflow(path, x, b.fd.Kind()))
			return zero, false
		}
		return protoreflect.ValueOfFloat32(float32(x)), true
	case protoreflect.DoubleKind:
		return protoreflect.ValueOfFloat64(src.Float()), true
	case protoreflect.BoolKind:
		return protoreflect.ValueOfBool(src.Bool()), true
	case protoreflect.StringKind:
		return protoreflect.ValueOfString(src.String()), true
	case protoreflect.BytesKind:
		return protoreflect.ValueOfBytes(src.Bytes()), true
	}
	*vs = append(*vs, errs.Violation{Field: path, Rule: "type", Reason: fmt.Sprintf("unsupported kind %s", b.fd.Kind())})
	return zero, false
}

func overflow(path string, v any, target any) errs.Violation {
	return errs.Violation{
		Field:  path,
		Rule:   "overflow",
		Reason: fmt.Sprintf("value %v overflows %v", v, target),
	}
}
