package index

import (
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"IDXCORE/internal/errs"
	"IDXCORE/internal/idset"
	"IDXCORE/internal/payload"
	"IDXCORE/types"
)

var (
	idsetsOnly = idset.NewCommitContext(1, idset.MakeIdsets|idset.PrepareForSelect)
	fullCommit = idset.NewCommitContext(1, idset.AllPhases)
)

func bookType() *payload.Type {
	return payload.NewType("books",
		payload.FieldDef{Name: "id", Kind: payload.KindInt},
		payload.FieldDef{Name: "title", Kind: payload.KindString},
		payload.FieldDef{Name: "price", Kind: payload.KindInt},
		payload.FieldDef{Name: "body", Kind: payload.KindString},
	)
}

func newIndex(t *testing.T, def types.IndexDef) Index {
	t.Helper()
	pt := bookType()
	fields, err := pt.Resolve(def.Fields...)
	require.NoError(t, err)
	idx, err := New(def, pt, fields)
	require.NoError(t, err)
	return idx
}

func intKey(v int) payload.Key { return payload.Key{payload.Int(v)} }

func ids(bm *roaring.Bitmap) []idset.IdType {
	return bm.ToArray()
}

func TestFactoryDispatch(t *testing.T) {
	tests := []struct {
		def  types.IndexDef
		want any
	}{
		{types.IndexDef{Name: "id", Fields: []string{"id"}, IndexType: "tree", FieldType: "int"}, &orderedIndex{}},
		{types.IndexDef{Name: "title+price", Fields: []string{"title", "price"}, IndexType: "tree"}, &orderedIndex{}},
		{types.IndexDef{Name: "id", Fields: []string{"id"}, IndexType: "hash", FieldType: "int"}, &unorderedIndex{}},
		{types.IndexDef{Name: "title+price", Fields: []string{"title", "price"}, IndexType: "hash"}, &unorderedIndex{}},
		{types.IndexDef{Name: "price", Fields: []string{"price"}, IndexType: "-", FieldType: "int"}, &storeIndex{}},
		{types.IndexDef{Name: "body", Fields: []string{"body"}, IndexType: "text", FieldType: "string"}, &textIndex{}},
		{types.IndexDef{Name: "body", Fields: []string{"body"}, IndexType: "fuzzytext", FieldType: "string"}, &textIndex{}},
	}
	for _, tc := range tests {
		t.Run(tc.def.Type().String(), func(t *testing.T) {
			idx := newIndex(t, tc.def)
			assert.IsType(t, tc.want, idx)
			assert.Equal(t, tc.def.Type(), idx.Type())
			assert.Equal(t, tc.def.Name, idx.Name())
		})
	}
}

func TestFactoryRejectsUnknownTag(t *testing.T) {
	pt := bookType()
	idx, err := New(types.IndexDef{Name: "weird", Fields: []string{"id"}, Tag: 99}, pt, payload.FieldsSet{0})
	require.ErrorIs(t, err, errs.ErrInvalidConfiguration)
	assert.Contains(t, err.Error(), "'weird'")
	assert.Nil(t, idx)

	_, err = New(types.IndexDef{Name: "nofields", IndexType: "tree", FieldType: "int"}, pt, nil)
	assert.ErrorIs(t, err, errs.ErrInvalidConfiguration)
}

func TestShouldCommitNow(t *testing.T) {
	idx := newIndex(t, types.IndexDef{Name: "id", Fields: []string{"id"}, IndexType: "hash", FieldType: "int"})
	for w := 0; w < MaxWritesBeforeCommit; w++ {
		assert.Equal(t, w, idx.WritesSinceCommit())
		assert.False(t, idx.ShouldCommitNow(0), "writes %d", w)
		assert.False(t, idx.ShouldCommitNow(idset.MakeIdsets|idset.PrepareForSelect), "writes %d", w)
		assert.True(t, idx.ShouldCommitNow(idset.MakeSortOrders), "writes %d", w)
		require.NoError(t, idx.Upsert(idset.IdType(w), intKey(w)))
	}
	assert.True(t, idx.ShouldCommitNow(0))
	require.NoError(t, idx.Upsert(99, intKey(1)))
	assert.True(t, idx.ShouldCommitNow(0))

	idx.ResetWriteCounter()
	assert.Zero(t, idx.WritesSinceCommit())
	assert.False(t, idx.ShouldCommitNow(0))
}

// 4次写入后来了一个只要求 MakeIdsets 的查询，不提交；第5次写入后才应该提交
func TestCommitHeuristicScenarioC(t *testing.T) {
	idx := newIndex(t, types.IndexDef{Name: "price", Fields: []string{"price"}, IndexType: "tree", FieldType: "int"})
	for i := 0; i < 4; i++ {
		require.NoError(t, idx.Upsert(idset.IdType(i), intKey(i*10)))
	}
	assert.False(t, idx.ShouldCommitNow(idset.MakeIdsets))
	assert.Equal(t, 4, idx.WritesSinceCommit())

	require.NoError(t, idx.Upsert(4, intKey(40)))
	assert.True(t, idx.ShouldCommitNow(idset.MakeIdsets))
	require.NoError(t, idx.Commit(idsetsOnly))
	assert.Zero(t, idx.WritesSinceCommit())
	assert.True(t, idx.Prepared())
}

func TestCommitRequiresContext(t *testing.T) {
	idx := newIndex(t, types.IndexDef{Name: "id", Fields: []string{"id"}, IndexType: "tree", FieldType: "int"})
	assert.ErrorIs(t, idx.Commit(nil), errs.ErrInvalidState)
}

func TestOrderedSelect(t *testing.T) {
	idx := newIndex(t, types.IndexDef{Name: "price", Fields: []string{"price"}, IndexType: "tree", FieldType: "int"})
	// 文档i的价格是 (i%5)*10
	for i := 0; i < 40; i++ {
		require.NoError(t, idx.Upsert(idset.IdType(i), intKey((i%5)*10)))
	}
	require.NoError(t, idx.Commit(idsetsOnly))
	assert.Equal(t, 5, idx.KeysCount())

	tests := []struct {
		name  string
		cond  types.CondType
		keys  []payload.Key
		count uint64
	}{
		{"any", types.CondAny, nil, 40},
		{"eq", types.CondEq, []payload.Key{intKey(20)}, 8},
		{"set", types.CondSet, []payload.Key{intKey(0), intKey(40), intKey(45)}, 16},
		{"lt", types.CondLt, []payload.Key{intKey(20)}, 16},
		{"le", types.CondLe, []payload.Key{intKey(20)}, 24},
		{"gt", types.CondGt, []payload.Key{intKey(20)}, 16},
		{"ge", types.CondGe, []payload.Key{intKey(15)}, 24},
		{"range", types.CondRange, []payload.Key{intKey(10), intKey(30)}, 24},
		{"empty range", types.CondRange, []payload.Key{intKey(31), intKey(39)}, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			bm, err := idx.Select(tc.cond, tc.keys)
			require.NoError(t, err)
			assert.Equal(t, tc.count, bm.GetCardinality())
		})
	}

	_, err := idx.Select(types.CondRange, []payload.Key{intKey(1)})
	assert.ErrorIs(t, err, errs.ErrInvalidQuery)
	_, err = idx.Select(types.CondType(42), nil)
	assert.ErrorIs(t, err, errs.ErrUnsupportedOperation)

	stat := idx.MemStat()
	assert.Equal(t, 5, stat.Keys)
	assert.Zero(t, stat.TreeBacked, "8 ids per key stay flat")
}

func TestOrderedDeleteDropsEmptyKeysOnCommit(t *testing.T) {
	idx := newIndex(t, types.IndexDef{Name: "id", Fields: []string{"id"}, IndexType: "tree", FieldType: "int"})
	require.NoError(t, idx.Upsert(1, intKey(100)))
	require.NoError(t, idx.Upsert(2, intKey(200)))

	n, err := idx.Delete(1, intKey(100))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = idx.Delete(1, intKey(300))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 2, idx.KeysCount(), "empty posting lists wait for the commit")

	require.NoError(t, idx.Commit(idsetsOnly))
	assert.Equal(t, 1, idx.KeysCount())
}

func TestOrderedSortOrder(t *testing.T) {
	idx := newIndex(t, types.IndexDef{Name: "price", Fields: []string{"price"}, IndexType: "tree", FieldType: "int"})
	prices := map[idset.IdType]int{1: 30, 2: 10, 3: 20, 4: 10}
	for id, price := range prices {
		require.NoError(t, idx.Upsert(id, intKey(price)))
	}
	sorter, ok := idx.(Sorter)
	require.True(t, ok)

	require.NoError(t, idx.Commit(idsetsOnly))
	_, done := sorter.SortOrder()
	assert.False(t, done, "sort orders are only built on MakeSortOrders")

	require.NoError(t, idx.Commit(fullCommit))
	order, done := sorter.SortOrder()
	require.True(t, done)
	assert.Equal(t, []idset.IdType{2, 4, 3, 1}, order)

	require.NoError(t, idx.Upsert(5, intKey(5)))
	_, done = sorter.SortOrder()
	assert.False(t, done)
	assert.Equal(t, []idset.IdType{5, 2, 4, 3, 1}, sorter.CurrentOrder())

	sorter.SetSortId(3)
	assert.ErrorIs(t, idx.Commit(fullCommit), errs.ErrInvalidState)
}

func TestOrderedPostingListMigrates(t *testing.T) {
	idx := newIndex(t, types.IndexDef{Name: "price", Fields: []string{"price"}, IndexType: "tree", FieldType: "int"})
	for i := 0; i < 3*idset.MaxPlainIdsetSize; i++ {
		require.NoError(t, idx.Upsert(idset.IdType(i), intKey(7)))
	}
	stat := idx.MemStat()
	assert.Equal(t, 1, stat.TreeBacked)
	assert.Positive(t, stat.TreeBytes)

	bm, err := idx.Select(types.CondEq, []payload.Key{intKey(7)})
	require.NoError(t, err)
	assert.Equal(t, uint64(3*idset.MaxPlainIdsetSize), bm.GetCardinality())
}

func TestCompositeOrdered(t *testing.T) {
	idx := newIndex(t, types.IndexDef{Name: "title+price", Fields: []string{"title", "price"}, IndexType: "tree"})
	key := func(title string, price int) payload.Key {
		return payload.Key{payload.String(title), payload.Int(price)}
	}
	require.NoError(t, idx.Upsert(1, key("a", 10)))
	require.NoError(t, idx.Upsert(2, key("a", 20)))
	require.NoError(t, idx.Upsert(3, key("b", 5)))
	require.NoError(t, idx.Commit(idsetsOnly))

	bm, err := idx.Select(types.CondEq, []payload.Key{key("a", 20)})
	require.NoError(t, err)
	assert.Equal(t, []idset.IdType{2}, ids(bm))

	bm, err = idx.Select(types.CondGe, []payload.Key{key("a", 15)})
	require.NoError(t, err)
	assert.Equal(t, []idset.IdType{2, 3}, ids(bm))
}

func TestCompositeHashKeepsKeysApart(t *testing.T) {
	idx := newIndex(t, types.IndexDef{Name: "title+body", Fields: []string{"title", "body"}, IndexType: "hash"})
	k1 := payload.Key{payload.String("x\001s:y"), payload.String("z")}
	k2 := payload.Key{payload.String("x"), payload.String("y\001s:z")}
	require.NoError(t, idx.Upsert(1, k1))
	require.NoError(t, idx.Upsert(2, k2))
	require.NoError(t, idx.Commit(idsetsOnly))

	assert.Equal(t, 2, idx.MemStat().Keys)
	bm, err := idx.Select(types.CondEq, []payload.Key{k1})
	require.NoError(t, err)
	assert.Equal(t, []idset.IdType{1}, ids(bm))
	bm, err = idx.Select(types.CondEq, []payload.Key{k2})
	require.NoError(t, err)
	assert.Equal(t, []idset.IdType{2}, ids(bm))
}

func TestUnorderedBulkLoad(t *testing.T) {
	idx := newIndex(t, types.IndexDef{Name: "price", Fields: []string{"price"}, IndexType: "hash", FieldType: "int"})
	idx.SetBulkLoad(true)
	for i := 100; i > 0; i-- {
		require.NoError(t, idx.Upsert(idset.IdType(i), intKey(i%2)))
	}
	// 重复写入在提交时去重
	require.NoError(t, idx.Upsert(50, intKey(0)))
	idx.SetBulkLoad(false)

	bm, err := idx.Select(types.CondEq, []payload.Key{intKey(0)})
	require.NoError(t, err)
	assert.Equal(t, uint64(50), bm.GetCardinality(), "reads see the deduplicated view before commit")

	require.NoError(t, idx.Commit(idsetsOnly))
	stat := idx.MemStat()
	assert.Equal(t, 2, stat.Keys)
	assert.Equal(t, 100, stat.Ids)

	n, err := idx.Delete(50, intKey(0))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = idx.Select(types.CondLt, []payload.Key{intKey(1)})
	assert.ErrorIs(t, err, errs.ErrUnsupportedOperation)
}

func TestUnorderedDeleteDuringBulk(t *testing.T) {
	idx := newIndex(t, types.IndexDef{Name: "id", Fields: []string{"id"}, IndexType: "hash", FieldType: "int"})
	idx.SetBulkLoad(true)
	require.NoError(t, idx.Upsert(3, intKey(1)))
	require.NoError(t, idx.Upsert(1, intKey(1)))
	n, err := idx.Delete(3, intKey(1))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.NoError(t, idx.Upsert(2, intKey(1)))
	require.NoError(t, idx.Commit(idsetsOnly))

	bm, err := idx.Select(types.CondAny, nil)
	require.NoError(t, err)
	assert.Equal(t, []idset.IdType{1, 2}, ids(bm))
}

func TestStoreIndex(t *testing.T) {
	idx := newIndex(t, types.IndexDef{Name: "price", Fields: []string{"price"}, IndexType: "-", FieldType: "int"})
	for i := 0; i < 10; i++ {
		require.NoError(t, idx.Upsert(idset.IdType(i), intKey(i)))
	}
	n, err := idx.Delete(9, intKey(9))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = idx.Delete(8, intKey(1))
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, idx.Commit(idsetsOnly))
	assert.Zero(t, idx.WritesSinceCommit())

	bm, err := idx.Select(types.CondRange, []payload.Key{intKey(3), intKey(5)})
	require.NoError(t, err)
	assert.Equal(t, []idset.IdType{3, 4, 5}, ids(bm))

	bm, err = idx.Select(types.CondGt, []payload.Key{intKey(6)})
	require.NoError(t, err)
	assert.Equal(t, []idset.IdType{7, 8}, ids(bm))

	bm, err = idx.Select(types.CondSet, []payload.Key{intKey(0), intKey(9)})
	require.NoError(t, err)
	assert.Equal(t, []idset.IdType{0}, ids(bm))
}

func TestTextIndex(t *testing.T) {
	idx := newIndex(t, types.IndexDef{Name: "body", Fields: []string{"body"}, IndexType: "text", FieldType: "string"})
	docs := map[idset.IdType]string{
		1: "The Go programming language",
		2: "Programming in C",
		3: "go, go, GO!",
	}
	for id, body := range docs {
		require.NoError(t, idx.Upsert(id, payload.Key{payload.String(body)}))
	}
	require.NoError(t, idx.Commit(idsetsOnly))

	match := func(q string) []idset.IdType {
		bm, err := idx.Select(types.CondEq, []payload.Key{{payload.String(q)}})
		require.NoError(t, err)
		return ids(bm)
	}
	assert.Equal(t, []idset.IdType{1, 3}, match("go"))
	assert.Equal(t, []idset.IdType{1, 2}, match("Programming"))
	assert.Equal(t, []idset.IdType{1}, match("go programming"))
	assert.Empty(t, match("rust"))
	assert.Empty(t, match("progr"), "exact index does not match prefixes")

	n, err := idx.Delete(3, payload.Key{payload.String(docs[3])})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []idset.IdType{1}, match("go"))

	_, err = idx.Select(types.CondLt, nil)
	assert.ErrorIs(t, err, errs.ErrUnsupportedOperation)
}

func TestFuzzyTextIndex(t *testing.T) {
	idx := newIndex(t, types.IndexDef{Name: "body", Fields: []string{"body"}, IndexType: "fuzzytext", FieldType: "string"})
	require.NoError(t, idx.Upsert(1, payload.Key{payload.String("reindexing")}))
	require.NoError(t, idx.Upsert(2, payload.Key{payload.String("index")}))
	require.NoError(t, idx.Commit(idsetsOnly))

	bm, err := idx.Select(types.CondEq, []payload.Key{{payload.String("index")}})
	require.NoError(t, err)
	assert.Equal(t, []idset.IdType{2}, ids(bm))

	// 三元组 $re rei ein ind nde dex 在 reindexing 里都出现了，但 ex$ 没有
	bm, err = idx.Select(types.CondEq, []payload.Key{{payload.String("reindex")}})
	require.NoError(t, err)
	assert.Empty(t, ids(bm))

	bm, err = idx.Select(types.CondEq, []payload.Key{{payload.String("reindexing")}})
	require.NoError(t, err)
	assert.Equal(t, []idset.IdType{1}, ids(bm))
	assert.Positive(t, idx.MemStat().Keys)
}

func TestCompositeTextIndex(t *testing.T) {
	idx := newIndex(t, types.IndexDef{Name: "title+body", Fields: []string{"title", "body"}, IndexType: "text"})
	require.NoError(t, idx.Upsert(1, payload.Key{payload.String("go"), payload.String("c")}))
	require.NoError(t, idx.Upsert(2, payload.Key{payload.String("c"), payload.String("go")}))

	bm, err := idx.Select(types.CondEq, []payload.Key{{payload.String("go")}})
	require.NoError(t, err)
	assert.Equal(t, []idset.IdType{1, 2}, ids(bm))

	bm, err = idx.Select(types.CondEq, []payload.Key{{payload.String("title:go")}})
	require.NoError(t, err)
	assert.Equal(t, []idset.IdType{1}, ids(bm))
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"hello", "wörld", "42"}, Tokenize("Hello, WÖRLD! 42"))
	assert.Equal(t, []string{"$go", "go$"}, trigrams("go"))
	assert.Equal(t, []string{"$a$"}, trigrams("a"))
}
