package types

import "IDXCORE/internal/payload"

// CondType 查询条件
type CondType int

const (
	CondAny   CondType = iota // 字段有任意值
	CondEq                    // 等于Values中的任意一个
	CondLt
	CondLe
	CondGt
	CondGe
	CondRange // Values[0] <= key <= Values[1]
	CondSet   // 同CondEq，复合索引时每个元组是一个Value组
)

// Condition 叶子条件。标量索引每个Key是1元组，复合索引每个Key是n元组
type Condition struct {
	Index string
	Cond  CondType
	Keys  []payload.Key
}

// TermQuery 搜索表达式，builder模式
type TermQuery struct {
	Must   []*TermQuery
	Should []*TermQuery
	Cond   *Condition
}

// Where 单个字段的条件，每个value是一个key
func Where(index string, cond CondType, values ...payload.Value) *TermQuery {
	keys := make([]payload.Key, 0, len(values))
	for _, v := range values {
		keys = append(keys, payload.Key{v})
	}
	return &TermQuery{Cond: &Condition{Index: index, Cond: cond, Keys: keys}}
}

// WhereComposite 复合索引的条件，每个key是一个元组
func WhereComposite(index string, cond CondType, keys ...payload.Key) *TermQuery {
	return &TermQuery{Cond: &Condition{Index: index, Cond: cond, Keys: keys}}
}

func (q *TermQuery) Empty() bool {
	return q == nil || (q.Cond == nil && len(q.Must) == 0 && len(q.Should) == 0)
}

// And 实现 AND 逻辑，纯Must容器会被打平
func (q *TermQuery) And(queries ...*TermQuery) *TermQuery {
	if len(queries) == 0 {
		return q
	}
	merged := make([]*TermQuery, 0, 1+len(queries))
	for _, ele := range append([]*TermQuery{q}, queries...) {
		switch {
		case ele.Empty():
		case ele.Cond == nil && len(ele.Should) == 0:
			merged = append(merged, ele.Must...)
		default:
			merged = append(merged, ele)
		}
	}
	return &TermQuery{Must: merged}
}

// Or 实现 OR 逻辑，纯Should容器会被打平
func (q *TermQuery) Or(queries ...*TermQuery) *TermQuery {
	if len(queries) == 0 {
		return q
	}
	merged := make([]*TermQuery, 0, 1+len(queries))
	for _, ele := range append([]*TermQuery{q}, queries...) {
		switch {
		case ele.Empty():
		case ele.Cond == nil && len(ele.Must) == 0:
			merged = append(merged, ele.Should...)
		default:
			merged = append(merged, ele)
		}
	}
	return &TermQuery{Should: merged}
}

// Query 一次查询：条件树、可选的排序索引和条数限制。Limit<=0表示不限
type Query struct {
	Filter *TermQuery
	SortBy string
	Desc   bool
	Limit  int
}
