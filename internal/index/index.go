// Package index maps the keys of one document field (or a tuple of fields)
// to their posting lists and decides when committing those lists is worth it.
package index

import (
	"log/slog"

	"github.com/RoaringBitmap/roaring/v2"

	"IDXCORE/internal/errs"
	"IDXCORE/internal/idset"
	"IDXCORE/internal/payload"
	"IDXCORE/types"
)

// MaxWritesBeforeCommit 两次提交之间累计这么多次写入后，排序去重的代价才值得付出
const MaxWritesBeforeCommit = 5

// Index 统一接口，方便索引的数据结构替换
type Index interface {
	Name() string
	Type() types.IndexType
	Fields() payload.FieldsSet
	Opts() types.IndexOpts
	IsOrdered() bool

	Upsert(id idset.IdType, key payload.Key) error
	Delete(id idset.IdType, key payload.Key) (int, error)
	Commit(ctx idset.CommitContext) error
	ShouldCommitNow(phases idset.Phase) bool
	ResetWriteCounter()
	WritesSinceCommit() int
	Prepared() bool
	SetBulkLoad(on bool)

	Select(cond types.CondType, keys []payload.Key) (*roaring.Bitmap, error)
	KeysCount() int
	MemStat() MemStat
}

// Sorter 有序索引提供的排序表：按key升序排列的文档id
type Sorter interface {
	SetSortId(id int)
	SortId() int
	SortOrder() ([]idset.IdType, bool)
	// CurrentOrder 不修改索引，现场遍历key得到排序表
	CurrentOrder() []idset.IdType
}

// MemStat 内存统计
type MemStat struct {
	Keys       int
	Ids        int
	TreeBacked int
	TreeBytes  int
}

func (m *MemStat) add(set *idset.IdSet) {
	m.Keys++
	m.Ids += set.Size()
	if set.IsTreeBacked() {
		m.TreeBacked++
		m.TreeBytes += set.MemoryFootprintTree()
	}
}

// base 各种索引共有的部分：定义、写计数和写入方式
type base struct {
	def      types.IndexDef
	typ      types.IndexType
	pt       *payload.Type
	fields   payload.FieldsSet
	writes   int
	bulk     bool
	prepared bool
}

func newBase(def types.IndexDef, pt *payload.Type, fields payload.FieldsSet) base {
	slog.Debug("new index",
		slog.String("name", def.Name),
		slog.String("type", def.Type().String()),
		slog.Bool("pk", def.Opts.PK),
		slog.Bool("array", def.Opts.Array))
	return base{def: def, typ: def.Type(), pt: pt, fields: fields}
}

func (b *base) Name() string              { return b.def.Name }
func (b *base) Type() types.IndexType     { return b.typ }
func (b *base) Fields() payload.FieldsSet { return b.fields }
func (b *base) Opts() types.IndexOpts     { return b.def.Opts }
func (b *base) IsOrdered() bool           { return b.typ.IsOrdered() }
func (b *base) WritesSinceCommit() int    { return b.writes }
func (b *base) Prepared() bool            { return b.prepared }
func (b *base) SetBulkLoad(on bool)       { b.bulk = on }

// countWrite 每次写入都要计数，写入后索引不再处于可查询状态
func (b *base) countWrite() {
	b.writes++
	b.prepared = false
}

func (b *base) ResetWriteCounter() {
	b.writes = 0
}

// ShouldCommitNow 明确要求 MakeSortOrders 时必须提交，否则累计写入达到阈值才提交
func (b *base) ShouldCommitNow(phases idset.Phase) bool {
	return phases&idset.MakeSortOrders != 0 || b.writes >= MaxWritesBeforeCommit
}

// finishCommit 提交成功后的收尾
func (b *base) finishCommit(phases idset.Phase) {
	if phases.Has(idset.MakeIdsets) {
		b.ResetWriteCounter()
	}
	if phases.Has(idset.PrepareForSelect) {
		b.prepared = true
	}
}

func checkContext(name string, ctx idset.CommitContext) error {
	if ctx == nil {
		return errs.Newf(errs.ErrInvalidState, "commit of index '%s' without commit context", name)
	}
	return nil
}

// editMode 批量导入时只追加，其余情况交给idset自己决定是否转成跳表
func (b *base) editMode() idset.EditMode {
	if b.bulk {
		return idset.Unordered
	}
	return idset.Auto
}

var normalizeCtx = idset.NewCommitContext(0, idset.MakeIdsets)

// addId 把id加入idset。跳表不能无序追加；有序写入前先整理掉无序追加
func addId(set *idset.IdSet, id idset.IdType, mode idset.EditMode) error {
	if mode == idset.Unordered && set.IsTreeBacked() {
		mode = idset.Auto
	}
	if mode != idset.Unordered && !set.IsTreeBacked() && !set.IsCommitted() {
		set.Commit(normalizeCtx)
	}
	return set.Add(id, mode)
}

func eraseId(set *idset.IdSet, id idset.IdType) (int, error) {
	if !set.IsTreeBacked() && !set.IsCommitted() {
		set.Commit(normalizeCtx)
	}
	return set.Erase(id)
}

func keyArgs(name string, cond types.CondType, keys []payload.Key, want int) error {
	if len(keys) < want {
		return errs.Newf(errs.ErrInvalidQuery, "index '%s': condition %d needs %d keys, got %d", name, cond, want, len(keys))
	}
	return nil
}

func unsupportedCond(name string, cond types.CondType) error {
	return errs.Newf(errs.ErrUnsupportedOperation, "index '%s' does not support condition %d", name, cond)
}
