package index

import (
	"github.com/RoaringBitmap/roaring/v2"
	"github.com/huandu/skiplist"

	"IDXCORE/internal/errs"
	"IDXCORE/internal/idset"
	"IDXCORE/internal/payload"
	"IDXCORE/types"
)

// keyOrder 跳表里key的顺序：元组逐项比较
var keyOrder = skiplist.GreaterThanFunc(func(lhs, rhs interface{}) int {
	return lhs.(payload.Key).Compare(rhs.(payload.Key))
})

// orderedIndex 有序索引：跳表的key是索引key，value是这个key对应的idset
type orderedIndex struct {
	base
	keys *skiplist.SkipList

	sortId        int
	sortOrder     []idset.IdType
	sortOrderDone bool
}

func newOrdered(def types.IndexDef, pt *payload.Type, fields payload.FieldsSet) *orderedIndex {
	return &orderedIndex{
		base: newBase(def, pt, fields),
		keys: skiplist.New(keyOrder),
	}
}

// Upsert 把文档id加到key对应的idset上，key第一次出现时创建idset
func (o *orderedIndex) Upsert(id idset.IdType, key payload.Key) error {
	o.countWrite()
	o.sortOrderDone = false
	var set *idset.IdSet
	if elem := o.keys.Get(key); elem != nil {
		set = elem.Value.(*idset.IdSet)
	} else {
		set = idset.New()
		o.keys.Set(key, set)
	}
	return addId(set, id, idset.Auto)
}

// Delete 从key对应的idset上删除文档id。空的idset留到提交时再清理
func (o *orderedIndex) Delete(id idset.IdType, key payload.Key) (int, error) {
	o.countWrite()
	elem := o.keys.Get(key)
	if elem == nil {
		return 0, nil
	}
	n, err := eraseId(elem.Value.(*idset.IdSet), id)
	if n > 0 {
		o.sortOrderDone = false
	}
	return n, err
}

func (o *orderedIndex) Commit(ctx idset.CommitContext) error {
	if err := checkContext(o.Name(), ctx); err != nil {
		return err
	}
	phases := ctx.Phases()
	if phases.Has(idset.MakeIdsets) {
		for elem := o.keys.Front(); elem != nil; {
			next := elem.Next()
			set := elem.Value.(*idset.IdSet)
			if set.IsEmpty() {
				o.keys.Remove(elem.Key())
			} else {
				set.Commit(ctx)
			}
			elem = next
		}
	}
	if phases.Has(idset.MakeSortOrders) {
		if err := o.buildSortOrder(ctx); err != nil {
			return err
		}
	}
	o.finishCommit(phases)
	return nil
}

// buildSortOrder 按key升序拼接所有idset，得到文档的排序表
func (o *orderedIndex) buildSortOrder(ctx idset.CommitContext) error {
	if o.sortId >= ctx.SortedIndexCount() {
		return errs.Newf(errs.ErrInvalidState, "index '%s' has sort id %d, namespace has %d sorted indexes",
			o.Name(), o.sortId, ctx.SortedIndexCount())
	}
	if o.sortOrderDone {
		return nil
	}
	o.sortOrder = o.appendOrder(o.sortOrder[:0])
	o.sortOrderDone = true
	return nil
}

func (o *orderedIndex) appendOrder(order []idset.IdType) []idset.IdType {
	for elem := o.keys.Front(); elem != nil; elem = elem.Next() {
		order = append(order, elem.Value.(*idset.IdSet).Sorted()...)
	}
	return order
}

func (o *orderedIndex) SetSortId(id int) {
	o.sortId = id
}

func (o *orderedIndex) SortId() int {
	return o.sortId
}

func (o *orderedIndex) CurrentOrder() []idset.IdType {
	return o.appendOrder(nil)
}

// SortOrder 最近一次 MakeSortOrders 得到的排序表；之后有写入时第二个返回值为false
func (o *orderedIndex) SortOrder() ([]idset.IdType, bool) {
	return o.sortOrder, o.sortOrderDone
}

func (o *orderedIndex) Select(cond types.CondType, keys []payload.Key) (*roaring.Bitmap, error) {
	result := roaring.New()
	collect := func(elem *skiplist.Element) {
		result.AddMany(elem.Value.(*idset.IdSet).Sorted())
	}
	switch cond {
	case types.CondAny:
		for elem := o.keys.Front(); elem != nil; elem = elem.Next() {
			collect(elem)
		}
	case types.CondEq, types.CondSet:
		for _, key := range keys {
			if elem := o.keys.Get(key); elem != nil {
				collect(elem)
			}
		}
	case types.CondLt, types.CondLe:
		if err := keyArgs(o.Name(), cond, keys, 1); err != nil {
			return nil, err
		}
		for elem := o.keys.Front(); elem != nil; elem = elem.Next() {
			c := elem.Key().(payload.Key).Compare(keys[0])
			if c > 0 || (c == 0 && cond == types.CondLt) {
				break
			}
			collect(elem)
		}
	case types.CondGt, types.CondGe:
		if err := keyArgs(o.Name(), cond, keys, 1); err != nil {
			return nil, err
		}
		elem := o.keys.Find(keys[0])
		if elem != nil && cond == types.CondGt && elem.Key().(payload.Key).Compare(keys[0]) == 0 {
			elem = elem.Next()
		}
		for ; elem != nil; elem = elem.Next() {
			collect(elem)
		}
	case types.CondRange:
		if err := keyArgs(o.Name(), cond, keys, 2); err != nil {
			return nil, err
		}
		for elem := o.keys.Find(keys[0]); elem != nil; elem = elem.Next() {
			if elem.Key().(payload.Key).Compare(keys[1]) > 0 {
				break
			}
			collect(elem)
		}
	default:
		return nil, unsupportedCond(o.Name(), cond)
	}
	return result, nil
}

func (o *orderedIndex) KeysCount() int {
	return o.keys.Len()
}

func (o *orderedIndex) MemStat() MemStat {
	var stat MemStat
	for elem := o.keys.Front(); elem != nil; elem = elem.Next() {
		stat.add(elem.Value.(*idset.IdSet))
	}
	return stat
}
