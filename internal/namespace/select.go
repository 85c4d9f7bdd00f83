package namespace

import (
	"log/slog"
	"slices"

	"github.com/RoaringBitmap/roaring/v2"

	"IDXCORE/internal/errs"
	"IDXCORE/internal/idset"
	"IDXCORE/internal/index"
	"IDXCORE/internal/payload"
	"IDXCORE/types"
)

// selectPhases 查询需要的提交阶段，需要排序时额外要求排序表
func selectPhases(q *types.Query) idset.Phase {
	phases := idset.MakeIdsets | idset.PrepareForSelect
	if q.SortBy != "" {
		phases |= idset.MakeSortOrders
	}
	return phases
}

// Select 检索，返回文档列表。写入较多的索引会先被提交
func (ns *Namespace) Select(q *types.Query) ([]*types.Document, error) {
	if q == nil {
		q = &types.Query{}
	}
	phases := selectPhases(q)

	ns.mu.RLock()
	dirty := ns.needsCommit(phases)
	ns.mu.RUnlock()
	if dirty {
		ns.mu.Lock()
		// 等写锁期间别的查询可能已经提交过了
		var err error
		if ns.needsCommit(phases) {
			err = ns.commitLocked(phases, triggerSelect)
		}
		ns.mu.Unlock()
		if err != nil {
			return nil, err
		}
	}

	ns.mu.RLock()
	defer ns.mu.RUnlock()
	ids, err := ns.selectIds(q)
	if err != nil {
		return nil, err
	}
	return ns.fetch(ids)
}

func (ns *Namespace) selectIds(q *types.Query) ([]idset.IdType, error) {
	bm, err := ns.eval(q.Filter)
	if err != nil {
		return nil, err
	}
	var ids []idset.IdType
	if q.SortBy == "" {
		ids = bm.ToArray()
		if q.Desc {
			slices.Reverse(ids)
		}
	} else if ids, err = ns.orderBy(bm, q.SortBy, q.Desc); err != nil {
		return nil, err
	}
	if q.Limit > 0 && len(ids) > q.Limit {
		ids = ids[:q.Limit]
	}
	return ids, nil
}

// eval 条件树求值：Must和Cond求交，Should先求并再参与求交。空条件匹配所有文档
func (ns *Namespace) eval(tq *types.TermQuery) (*roaring.Bitmap, error) {
	if tq.Empty() {
		return ns.allIds(), nil
	}
	var parts []*roaring.Bitmap
	if tq.Cond != nil {
		bm, err := ns.evalCond(tq.Cond)
		if err != nil {
			return nil, err
		}
		parts = append(parts, bm)
	}
	for _, sub := range tq.Must {
		bm, err := ns.eval(sub)
		if err != nil {
			return nil, err
		}
		parts = append(parts, bm)
	}
	if len(tq.Should) > 0 {
		ors := make([]*roaring.Bitmap, 0, len(tq.Should))
		for _, sub := range tq.Should {
			bm, err := ns.eval(sub)
			if err != nil {
				return nil, err
			}
			ors = append(ors, bm)
		}
		parts = append(parts, roaring.FastOr(ors...))
	}
	return roaring.FastAnd(parts...), nil
}

func (ns *Namespace) evalCond(c *types.Condition) (*roaring.Bitmap, error) {
	pos, exists := ns.byName[c.Index]
	if !exists {
		return nil, errs.Newf(errs.ErrInvalidQuery, "unknown index '%s' in namespace %s", c.Index, ns.name)
	}
	return ns.indexes[pos].Select(c.Cond, c.Keys)
}

func (ns *Namespace) allIds() *roaring.Bitmap {
	bm := roaring.New()
	for id := range ns.idDocs {
		bm.Add(id)
	}
	return bm
}

// orderBy 按有序索引的排序表输出bm里的文档。数组字段可能让一个文档出现多次，只保留第一次；
// 排序字段没有值的文档按id排在最后
func (ns *Namespace) orderBy(bm *roaring.Bitmap, name string, desc bool) ([]idset.IdType, error) {
	pos, exists := ns.byName[name]
	if !exists {
		return nil, errs.Newf(errs.ErrInvalidQuery, "unknown sort index '%s' in namespace %s", name, ns.name)
	}
	sorter, ok := ns.indexes[pos].(index.Sorter)
	if !ok {
		return nil, errs.Newf(errs.ErrInvalidQuery, "index '%s' is not ordered, can not sort by it", name)
	}
	order, done := sorter.SortOrder()
	if !done {
		order = sorter.CurrentOrder()
	}

	ids := make([]idset.IdType, 0, bm.GetCardinality())
	seen := roaring.New()
	visit := func(id idset.IdType) {
		if bm.Contains(id) && seen.CheckedAdd(id) {
			ids = append(ids, id)
		}
	}
	if desc {
		for i := len(order) - 1; i >= 0; i-- {
			visit(order[i])
		}
	} else {
		for _, id := range order {
			visit(id)
		}
	}
	it := bm.Iterator()
	for it.HasNext() {
		if id := it.Next(); !seen.Contains(id) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// fetch 从正排读出文档，保持ids的顺序
func (ns *Namespace) fetch(ids []idset.IdType) ([]*types.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([][]byte, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, []byte(ns.idDocs[id]))
	}
	data, err := ns.forward.BatchGet(keys)
	if err != nil {
		slog.Warn("read kvdb failed", slog.Any("err", err))
		return nil, err
	}
	result := make([]*types.Document, 0, len(data))
	for i, docBs := range data {
		if len(docBs) == 0 {
			continue
		}
		p, err := payload.Decode(ns.pt, docBs)
		if err != nil {
			slog.Warn("decode document failed", slog.String("doc", string(keys[i])), slog.Any("err", err))
			continue
		}
		result = append(result, &types.Document{Id: string(keys[i]), Fields: p.Fields()})
	}
	return result, nil
}
