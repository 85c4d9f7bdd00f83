package payload

import (
	"cmp"
	"fmt"
	"strconv"
	"strings"
)

// Kind 字段/值的类型
type Kind int

const (
	KindInt Kind = iota + 1
	KindInt64
	KindDouble
	KindString
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindInt64:
		return "int64"
	case KindDouble:
		return "double"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind 把索引定义里的字段类型名转成Kind
func ParseKind(name string) (Kind, bool) {
	switch name {
	case "int":
		return KindInt, true
	case "int64":
		return KindInt64, true
	case "double":
		return KindDouble, true
	case "string":
		return KindString, true
	case "bool":
		return KindBool, true
	}
	return 0, false
}

func (k Kind) numeric() bool {
	return k == KindInt || k == KindInt64 || k == KindDouble || k == KindBool
}

// Value 一个标量值，整数和bool存在i里
type Value struct {
	kind Kind
	i    int64
	f    float64
	s    string
}

func Int(v int) Value        { return Value{kind: KindInt, i: int64(v)} }
func Int64(v int64) Value    { return Value{kind: KindInt64, i: v} }
func Double(v float64) Value { return Value{kind: KindDouble, f: v} }
func String(v string) Value  { return Value{kind: KindString, s: v} }

func Bool(v bool) Value {
	if v {
		return Value{kind: KindBool, i: 1}
	}
	return Value{kind: KindBool}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) AsInt64() int64 {
	if v.kind == KindDouble {
		return int64(v.f)
	}
	return v.i
}

func (v Value) AsDouble() float64 {
	if v.kind == KindDouble {
		return v.f
	}
	return float64(v.i)
}

func (v Value) AsString() string {
	if v.kind == KindString {
		return v.s
	}
	return v.String()
}

func (v Value) AsBool() bool {
	return v.i != 0
}

// Compare 数值之间按数值比较，字符串按字典序，数值排在字符串前面
func (v Value) Compare(o Value) int {
	switch {
	case v.kind.numeric() && o.kind.numeric():
		if v.kind != KindDouble && o.kind != KindDouble {
			return cmp.Compare(v.i, o.i)
		}
		return cmp.Compare(v.AsDouble(), o.AsDouble())
	case v.kind == KindString && o.kind == KindString:
		return strings.Compare(v.s, o.s)
	case v.kind.numeric():
		return -1
	case o.kind.numeric():
		return 1
	}
	return cmp.Compare(v.kind, o.kind)
}

// Key 用作哈希表key的字符串，相等的值得到相同的key
func (v Value) Key() string {
	switch v.kind {
	case KindDouble:
		if v.f == float64(int64(v.f)) {
			return "i:" + strconv.FormatInt(int64(v.f), 10)
		}
		return "f:" + strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindString:
		return "s:" + v.s
	default:
		return "i:" + strconv.FormatInt(v.i, 10)
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindDouble:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindString:
		return v.s
	case KindBool:
		return strconv.FormatBool(v.i != 0)
	case 0:
		return "<nil>"
	default:
		return strconv.FormatInt(v.i, 10)
	}
}

// convert 把值转换成字段要求的类型
func (v Value) convert(to Kind) (Value, bool) {
	if v.kind == to {
		return v, true
	}
	switch to {
	case KindInt, KindInt64:
		if v.kind == KindInt || v.kind == KindInt64 {
			return Value{kind: to, i: v.i}, true
		}
	case KindDouble:
		if v.kind == KindInt || v.kind == KindInt64 {
			return Value{kind: to, f: float64(v.i)}, true
		}
	}
	return Value{}, false
}

// Key 索引key，标量索引是1元组，复合索引是n元组，逐项比较
type Key []Value

func (k Key) Compare(o Key) int {
	for i := 0; i < len(k) && i < len(o); i++ {
		if c := k[i].Compare(o[i]); c != 0 {
			return c
		}
	}
	return cmp.Compare(len(k), len(o))
}

// Hash 多个值时每一项前面加上长度，字符串里出现分隔符也不会和别的key混淆
func (k Key) Hash() string {
	if len(k) == 1 {
		return k[0].Key()
	}
	var b strings.Builder
	for _, v := range k {
		part := v.Key()
		b.WriteString(strconv.Itoa(len(part)))
		b.WriteByte(':')
		b.WriteString(part)
	}
	return b.String()
}

func (k Key) String() string {
	if len(k) == 1 {
		return k[0].String()
	}
	parts := make([]string, len(k))
	for i, v := range k {
		parts[i] = v.String()
	}
	return "(" + strings.Join(parts, ",") + ")"
}
