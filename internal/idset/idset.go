// Package idset holds the posting list of one index key: the set of document
// ids currently matching that key.
//
// A set starts as a flat sorted slice. Under the Auto edit mode it migrates to
// a skiplist once it reaches MaxPlainIdsetSize ids and never migrates back.
// Readers only see the canonical form: ascending, without duplicates.
package idset

import (
	"fmt"
	"iter"
	"slices"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/huandu/skiplist"

	"IDXCORE/internal/errs"
)

type IdType = uint32

// EditMode 单次写入idset的方式
type EditMode int

const (
	Ordered   EditMode = iota // 保持有序，可以直接查询，插入 O(logN)+O(N)
	Auto                      // 达到阈值后转成跳表，插入 O(logN)
	Unordered                 // 只追加，提交之前不能删除
)

func (m EditMode) String() string {
	switch m {
	case Ordered:
		return "ordered"
	case Auto:
		return "auto"
	case Unordered:
		return "unordered"
	default:
		return fmt.Sprintf("EditMode(%d)", int(m))
	}
}

// MaxPlainIdsetSize 不建跳表的idset最大长度
const MaxPlainIdsetSize = 16

// 跳表内存的估算值
const (
	treeHeaderBytes  = 128
	treeElementBytes = 96
)

// flatIds 有序数组；pending 表示有未排序、未去重的追加
type flatIds struct {
	ids     []IdType
	pending bool
}

// treeIds 跳表是唯一的数据来源，view 是上次提交物化出来的只读快照
type treeIds struct {
	set  *skiplist.SkipList
	view []IdType
}

func newTreeIds(ids []IdType) *treeIds {
	t := &treeIds{set: skiplist.New(skiplist.Uint32)}
	for _, id := range ids {
		t.set.Set(id, nil)
	}
	return t
}

func (t *treeIds) collect() []IdType {
	ids := make([]IdType, 0, t.set.Len())
	for elem := t.set.Front(); elem != nil; elem = elem.Next() {
		ids = append(ids, elem.Key().(IdType))
	}
	return ids
}

// IdSet 一个索引key对应的文档id集合。rep 只能是 *flatIds 或 *treeIds，零值等价于空的有序数组
type IdSet struct {
	rep any
}

func New() *IdSet {
	return &IdSet{rep: &flatIds{}}
}

// FromSorted 用已经有序、去重的id构造idset，ids的所有权转移给idset
func FromSorted(ids []IdType) *IdSet {
	return &IdSet{rep: &flatIds{ids: ids}}
}

func (s *IdSet) writable() {
	if s.rep == nil {
		s.rep = &flatIds{}
	}
}

// Add 按mode把id加入集合。树形集合只接受 Auto
func (s *IdSet) Add(id IdType, mode EditMode) error {
	s.writable()
	switch r := s.rep.(type) {
	case *treeIds:
		if mode != Auto {
			return errs.Newf(errs.ErrInvariantViolation, "%s add of id %d to tree-backed idset", mode, id)
		}
		r.set.Set(id, nil)
		r.view = nil
	case *flatIds:
		if mode == Unordered {
			r.ids = append(r.ids, id)
			r.pending = true
			return nil
		}
		if r.pending {
			return errs.Newf(errs.ErrInvariantViolation, "%s add of id %d to idset with pending unordered writes", mode, id)
		}
		pos, found := slices.BinarySearch(r.ids, id)
		if !found {
			r.ids = slices.Insert(r.ids, pos, id)
		}
		if mode == Auto && len(r.ids) >= MaxPlainIdsetSize {
			s.rep = newTreeIds(r.ids)
		}
	}
	return nil
}

// Append 批量合并一组有序id
func (s *IdSet) Append(ids []IdType, mode EditMode) error {
	s.writable()
	switch mode {
	case Unordered:
		r, ok := s.rep.(*flatIds)
		if !ok {
			return errs.New(errs.ErrInvariantViolation, "unordered append to tree-backed idset")
		}
		if len(ids) > 0 {
			r.ids = append(r.ids, ids...)
			r.pending = true
		}
		return nil
	case Auto:
		if r, ok := s.rep.(*flatIds); ok {
			if len(r.ids) > 0 {
				return errs.Newf(errs.ErrInvalidState, "auto append with %d ids left in flat buffer", len(r.ids))
			}
			s.rep = newTreeIds(nil)
		}
		t := s.rep.(*treeIds)
		for _, id := range ids {
			t.set.Set(id, nil)
		}
		t.view = nil
		return nil
	default:
		return errs.Newf(errs.ErrUnsupportedOperation, "%s append", mode)
	}
}

// Erase 删除id的所有出现，返回删除的个数
func (s *IdSet) Erase(id IdType) (int, error) {
	switch r := s.rep.(type) {
	case *treeIds:
		if r.set.Remove(id) == nil {
			return 0, nil
		}
		r.view = nil
		return 1, nil
	case *flatIds:
		if r.pending {
			return 0, errs.Newf(errs.ErrInvariantViolation, "erase of id %d from idset with pending unordered writes", id)
		}
		lo, found := slices.BinarySearch(r.ids, id)
		if !found {
			return 0, nil
		}
		hi := lo + 1
		for hi < len(r.ids) && r.ids[hi] == id {
			hi++
		}
		r.ids = slices.Delete(r.ids, lo, hi)
		return hi - lo, nil
	}
	return 0, nil
}

// Commit 把集合整理成可查询的形式；ctx 不含 MakeIdsets 时什么也不做
func (s *IdSet) Commit(ctx CommitContext) {
	if ctx != nil && !ctx.Phases().Has(MakeIdsets) {
		return
	}
	switch r := s.rep.(type) {
	case *flatIds:
		if !r.pending {
			return
		}
		slices.Sort(r.ids)
		r.ids = slices.Compact(r.ids)
		r.pending = false
	case *treeIds:
		if r.view == nil {
			r.view = r.collect()
		}
	}
}

func (s *IdSet) IsCommitted() bool {
	switch r := s.rep.(type) {
	case *flatIds:
		return !r.pending
	case *treeIds:
		return r.view != nil
	}
	return true
}

func (s *IdSet) IsTreeBacked() bool {
	_, ok := s.rep.(*treeIds)
	return ok
}

func (s *IdSet) IsEmpty() bool {
	return s.Size() == 0
}

// Size 当前表示中的id个数；有未提交的无序追加时可能包含重复
func (s *IdSet) Size() int {
	switch r := s.rep.(type) {
	case *flatIds:
		return len(r.ids)
	case *treeIds:
		return r.set.Len()
	}
	return 0
}

// MemoryFootprintTree 跳表占用的额外内存，有序数组时为0
func (s *IdSet) MemoryFootprintTree() int {
	r, ok := s.rep.(*treeIds)
	if !ok {
		return 0
	}
	return treeHeaderBytes + r.set.Len()*treeElementBytes + cap(r.view)*4
}

// Ids 返回提交后的只读视图，调用方不能修改
func (s *IdSet) Ids() ([]IdType, error) {
	switch r := s.rep.(type) {
	case *flatIds:
		if r.pending {
			return nil, errs.New(errs.ErrInvariantViolation, "idset has uncommitted unordered writes")
		}
		return r.ids, nil
	case *treeIds:
		if r.view == nil {
			return nil, errs.New(errs.ErrInvariantViolation, "tree-backed idset changed since last commit")
		}
		return r.view, nil
	}
	return nil, nil
}

// Sorted 返回有序去重的id，不修改集合。已提交时直接返回视图，否则返回副本
func (s *IdSet) Sorted() []IdType {
	switch r := s.rep.(type) {
	case *flatIds:
		if !r.pending {
			return r.ids
		}
		ids := slices.Clone(r.ids)
		slices.Sort(ids)
		return slices.Compact(ids)
	case *treeIds:
		if r.view != nil {
			return r.view
		}
		return r.collect()
	}
	return nil
}

// All 按升序遍历集合
func (s *IdSet) All() iter.Seq[IdType] {
	return func(yield func(IdType) bool) {
		if r, ok := s.rep.(*treeIds); ok {
			for elem := r.set.Front(); elem != nil; elem = elem.Next() {
				if !yield(elem.Key().(IdType)) {
					return
				}
			}
			return
		}
		for _, id := range s.Sorted() {
			if !yield(id) {
				return
			}
		}
	}
}

func (s *IdSet) Contains(id IdType) bool {
	switch r := s.rep.(type) {
	case *flatIds:
		if r.pending {
			return slices.Contains(r.ids, id)
		}
		_, found := slices.BinarySearch(r.ids, id)
		return found
	case *treeIds:
		return r.set.Get(id) != nil
	}
	return false
}

// Bitmap 导出为roaring bitmap，用于查询时求交并
func (s *IdSet) Bitmap() *roaring.Bitmap {
	bm := roaring.New()
	if r, ok := s.rep.(*treeIds); ok && r.view == nil {
		for id := range s.All() {
			bm.Add(id)
		}
		return bm
	}
	bm.AddMany(s.Sorted())
	return bm
}

func (s *IdSet) String() string {
	return fmt.Sprint(s.Sorted())
}
