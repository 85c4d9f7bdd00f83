package index

import (
	"slices"

	"github.com/RoaringBitmap/roaring/v2"

	"IDXCORE/internal/idset"
	"IDXCORE/internal/payload"
	"IDXCORE/types"
)

// storeIndex 只保存文档的值，不建idset，查询时全量扫描
type storeIndex struct {
	base
	values map[idset.IdType][]payload.Key
}

func newStore(def types.IndexDef, pt *payload.Type, fields payload.FieldsSet) *storeIndex {
	return &storeIndex{
		base:   newBase(def, pt, fields),
		values: make(map[idset.IdType][]payload.Key),
	}
}

func (s *storeIndex) Upsert(id idset.IdType, key payload.Key) error {
	s.countWrite()
	s.values[id] = append(s.values[id], key)
	return nil
}

func (s *storeIndex) Delete(id idset.IdType, key payload.Key) (int, error) {
	s.countWrite()
	keys := s.values[id]
	i := slices.IndexFunc(keys, func(k payload.Key) bool { return k.Compare(key) == 0 })
	if i < 0 {
		return 0, nil
	}
	keys = slices.Delete(keys, i, i+1)
	if len(keys) == 0 {
		delete(s.values, id)
	} else {
		s.values[id] = keys
	}
	return 1, nil
}

// Commit 没有idset需要整理，只做收尾
func (s *storeIndex) Commit(ctx idset.CommitContext) error {
	if err := checkContext(s.Name(), ctx); err != nil {
		return err
	}
	s.finishCommit(ctx.Phases())
	return nil
}

func (s *storeIndex) Select(cond types.CondType, keys []payload.Key) (*roaring.Bitmap, error) {
	var match func(k payload.Key) bool
	switch cond {
	case types.CondAny:
		match = func(payload.Key) bool { return true }
	case types.CondEq, types.CondSet:
		match = func(k payload.Key) bool {
			return slices.ContainsFunc(keys, func(q payload.Key) bool { return k.Compare(q) == 0 })
		}
	case types.CondLt, types.CondLe, types.CondGt, types.CondGe:
		if err := keyArgs(s.Name(), cond, keys, 1); err != nil {
			return nil, err
		}
		match = func(k payload.Key) bool {
			c := k.Compare(keys[0])
			switch cond {
			case types.CondLt:
				return c < 0
			case types.CondLe:
				return c <= 0
			case types.CondGt:
				return c > 0
			}
			return c >= 0
		}
	case types.CondRange:
		if err := keyArgs(s.Name(), cond, keys, 2); err != nil {
			return nil, err
		}
		match = func(k payload.Key) bool {
			return k.Compare(keys[0]) >= 0 && k.Compare(keys[1]) <= 0
		}
	default:
		return nil, unsupportedCond(s.Name(), cond)
	}

	result := roaring.New()
	for id, docKeys := range s.values {
		if slices.ContainsFunc(docKeys, match) {
			result.Add(id)
		}
	}
	return result, nil
}

func (s *storeIndex) KeysCount() int {
	return len(s.values)
}

func (s *storeIndex) MemStat() MemStat {
	return MemStat{Keys: len(s.values), Ids: len(s.values)}
}
