package payload

import (
	"fmt"
	"math"

	"github.com/gogo/protobuf/proto"
)

// 编码格式：值的总数(varint)，之后每个值是 tag=(字段序号+1)<<3|wireType 加上值本身。
// 整数和bool用zigzag varint，double用fixed64，字符串用带长度的bytes
const (
	wireVarint  = 0
	wireFixed64 = 1
	wireBytes   = 2
)

// Encode 把Payload编码成正排索引里保存的二进制
func Encode(p *Payload) ([]byte, error) {
	count := 0
	for _, values := range p.values {
		count += len(values)
	}
	buf := proto.NewBuffer(make([]byte, 0, 16+count*8))
	if err := buf.EncodeVarint(uint64(count)); err != nil {
		return nil, err
	}
	for field, values := range p.values {
		for _, v := range values {
			if err := encodeValue(buf, field, v); err != nil {
				return nil, fmt.Errorf("encode field %q: %w", p.t.Field(field).Name, err)
			}
		}
	}
	return buf.Bytes(), nil
}

func encodeValue(buf *proto.Buffer, field int, v Value) error {
	tag := uint64(field+1) << 3
	switch v.kind {
	case KindDouble:
		if err := buf.EncodeVarint(tag | wireFixed64); err != nil {
			return err
		}
		return buf.EncodeFixed64(math.Float64bits(v.f))
	case KindString:
		if err := buf.EncodeVarint(tag | wireBytes); err != nil {
			return err
		}
		return buf.EncodeStringBytes(v.s)
	default:
		if err := buf.EncodeVarint(tag | wireVarint); err != nil {
			return err
		}
		return buf.EncodeZigzag64(uint64(v.i))
	}
}

// Decode 按字段布局t解码Encode的结果
func Decode(t *Type, data []byte) (*Payload, error) {
	p := New(t)
	buf := proto.NewBuffer(data)
	count, err := buf.DecodeVarint()
	if err != nil {
		return nil, fmt.Errorf("decode value count: %w", err)
	}
	for n := uint64(0); n < count; n++ {
		tag, err := buf.DecodeVarint()
		if err != nil {
			return nil, fmt.Errorf("decode tag of value %d: %w", n, err)
		}
		field := int(tag>>3) - 1
		if field < 0 || field >= t.NumFields() {
			return nil, fmt.Errorf("%w: field ordinal %d out of range", ErrFieldMismatch, field)
		}
		def := t.Field(field)
		var v Value
		switch tag & 7 {
		case wireVarint:
			x, err := buf.DecodeZigzag64()
			if err != nil {
				return nil, err
			}
			v = Value{kind: def.Kind, i: int64(x)}
		case wireFixed64:
			x, err := buf.DecodeFixed64()
			if err != nil {
				return nil, err
			}
			v = Value{kind: KindDouble, f: math.Float64frombits(x)}
		case wireBytes:
			s, err := buf.DecodeStringBytes()
			if err != nil {
				return nil, err
			}
			v = Value{kind: KindString, s: s}
		default:
			return nil, fmt.Errorf("%w: unknown wire type %d", ErrFieldMismatch, tag&7)
		}
		if v.kind != def.Kind {
			return nil, fmt.Errorf("%w: field %q wants %s, stored %s", ErrFieldMismatch, def.Name, def.Kind, v.kind)
		}
		p.values[field] = append(p.values[field], v)
	}
	return p, nil
}
