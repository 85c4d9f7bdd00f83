// Package payload describes the field layout of a namespace's documents and
// carries the per-field values the indexes read. It also owns the binary form
// documents take in the forward store.
package payload

import (
	"errors"
	"fmt"
	"slices"
)

var ErrFieldMismatch = errors.New("payload field mismatch")

// FieldDef 一个字段的定义
type FieldDef struct {
	Name  string
	Kind  Kind
	Array bool
}

// Type 文档的字段布局，字段用序号访问
type Type struct {
	name   string
	fields []FieldDef
	byName map[string]int
}

func NewType(name string, fields ...FieldDef) *Type {
	t := &Type{
		name:   name,
		fields: slices.Clone(fields),
		byName: make(map[string]int, len(fields)),
	}
	for i, f := range t.fields {
		t.byName[f.Name] = i
	}
	return t
}

func (t *Type) Name() string         { return t.name }
func (t *Type) NumFields() int       { return len(t.fields) }
func (t *Type) Field(i int) FieldDef { return t.fields[i] }

func (t *Type) FieldByName(name string) (int, bool) {
	i, ok := t.byName[name]
	return i, ok
}

// FieldsSet 参与索引的字段序号
type FieldsSet []int

func (fs FieldsSet) Contains(field int) bool {
	return slices.Contains(fs, field)
}

// Resolve 按字段名得到字段序号
func (t *Type) Resolve(names ...string) (FieldsSet, error) {
	fs := make(FieldsSet, 0, len(names))
	for _, name := range names {
		i, ok := t.FieldByName(name)
		if !ok {
			return nil, fmt.Errorf("%w: no field %q in %s", ErrFieldMismatch, name, t.name)
		}
		fs = append(fs, i)
	}
	return fs, nil
}

// Payload 一篇文档按字段序号保存的值
type Payload struct {
	t      *Type
	values [][]Value
}

func New(t *Type) *Payload {
	return &Payload{t: t, values: make([][]Value, t.NumFields())}
}

// FromFields 用字段名到值的映射构造Payload，未知字段和类型不符都会报错
func FromFields(t *Type, fields map[string][]Value) (*Payload, error) {
	p := New(t)
	for name, values := range fields {
		i, ok := t.FieldByName(name)
		if !ok {
			return nil, fmt.Errorf("%w: no field %q in %s", ErrFieldMismatch, name, t.name)
		}
		if err := p.Set(i, values...); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Payload) Type() *Type { return p.t }

// Get 按字段序号读取值，是索引读取文档的唯一入口
func (p *Payload) Get(field int) []Value {
	return p.values[field]
}

func (p *Payload) Set(field int, values ...Value) error {
	def := p.t.Field(field)
	if !def.Array && len(values) > 1 {
		return fmt.Errorf("%w: field %q is not an array", ErrFieldMismatch, def.Name)
	}
	converted := make([]Value, 0, len(values))
	for _, v := range values {
		c, ok := v.convert(def.Kind)
		if !ok {
			return fmt.Errorf("%w: field %q wants %s, got %s", ErrFieldMismatch, def.Name, def.Kind, v.Kind())
		}
		converted = append(converted, c)
	}
	p.values[field] = converted
	return nil
}

// Fields 转回字段名到值的映射
func (p *Payload) Fields() map[string][]Value {
	fields := make(map[string][]Value, len(p.values))
	for i, values := range p.values {
		if len(values) > 0 {
			fields[p.t.Field(i).Name] = values
		}
	}
	return fields
}

// Keys 计算一篇文档在某个索引上的key：
// 单字段索引每个数组元素一个key，复合索引取每个字段的第一个值组成一个元组
func (p *Payload) Keys(fields FieldsSet) []Key {
	if len(fields) == 1 {
		values := p.Get(fields[0])
		keys := make([]Key, 0, len(values))
		for _, v := range values {
			keys = append(keys, Key{v})
		}
		return keys
	}
	tuple := make(Key, 0, len(fields))
	for _, f := range fields {
		values := p.Get(f)
		if len(values) == 0 {
			return nil
		}
		tuple = append(tuple, values[0])
	}
	return []Key{tuple}
}
