package index

import (
	"runtime"

	"github.com/RoaringBitmap/roaring/v2"

	"IDXCORE/internal/idset"
	"IDXCORE/internal/payload"
	"IDXCORE/types"
	"IDXCORE/util"
)

const hashIndexCapacity = 1024

// unorderedIndex 哈希索引：分段map的key是索引key的哈希串
type unorderedIndex struct {
	base
	table *util.SegmentedMap[*idset.IdSet]
}

func newUnordered(def types.IndexDef, pt *payload.Type, fields payload.FieldsSet) *unorderedIndex {
	return &unorderedIndex{
		base:  newBase(def, pt, fields),
		table: util.NewSegmentedMap[*idset.IdSet](runtime.NumCPU(), hashIndexCapacity),
	}
}

func (u *unorderedIndex) Upsert(id idset.IdType, key payload.Key) error {
	u.countWrite()
	hash := key.Hash()
	set, exists := u.table.Get(hash)
	if !exists {
		set = idset.New()
		u.table.Set(hash, set)
	}
	return addId(set, id, u.editMode())
}

func (u *unorderedIndex) Delete(id idset.IdType, key payload.Key) (int, error) {
	u.countWrite()
	set, exists := u.table.Get(key.Hash())
	if !exists {
		return 0, nil
	}
	return eraseId(set, id)
}

func (u *unorderedIndex) Commit(ctx idset.CommitContext) error {
	if err := checkContext(u.Name(), ctx); err != nil {
		return err
	}
	phases := ctx.Phases()
	if phases.Has(idset.MakeIdsets) {
		u.table.Range(func(hash string, set *idset.IdSet) bool {
			if set.IsEmpty() {
				u.table.Delete(hash)
			} else {
				set.Commit(ctx)
			}
			return true
		})
	}
	u.finishCommit(phases)
	return nil
}

func (u *unorderedIndex) Select(cond types.CondType, keys []payload.Key) (*roaring.Bitmap, error) {
	result := roaring.New()
	switch cond {
	case types.CondAny:
		u.table.Range(func(_ string, set *idset.IdSet) bool {
			result.AddMany(set.Sorted())
			return true
		})
	case types.CondEq, types.CondSet:
		for _, key := range keys {
			if set, exists := u.table.Get(key.Hash()); exists {
				result.AddMany(set.Sorted())
			}
		}
	default:
		return nil, unsupportedCond(u.Name(), cond)
	}
	return result, nil
}

func (u *unorderedIndex) KeysCount() int {
	return u.table.Len()
}

func (u *unorderedIndex) MemStat() MemStat {
	var stat MemStat
	u.table.Range(func(_ string, set *idset.IdSet) bool {
		stat.add(set)
		return true
	})
	return stat
}
