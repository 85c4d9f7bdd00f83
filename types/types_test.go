package types

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"IDXCORE/internal/payload"
)

func TestIndexDefType(t *testing.T) {
	tests := []struct {
		def  IndexDef
		want IndexType
	}{
		{IndexDef{Name: "id", Fields: []string{"id"}, IndexType: "hash", FieldType: "int"}, IndexIntHash},
		{IndexDef{Name: "name", Fields: []string{"name"}, IndexType: "tree", FieldType: "string"}, IndexStrBTree},
		{IndexDef{Name: "price", Fields: []string{"price"}, IndexType: "tree", FieldType: "double"}, IndexDoubleBTree},
		{IndexDef{Name: "flag", Fields: []string{"flag"}, IndexType: "-", FieldType: "bool"}, IndexBool},
		{IndexDef{Name: "body", Fields: []string{"body"}, IndexType: "fuzzytext", FieldType: "string"}, IndexFuzzyFT},
		{IndexDef{Name: "a+b", Fields: []string{"a", "b"}, IndexType: "tree"}, IndexCompositeBTree},
		{IndexDef{Name: "a+b", Fields: []string{"a", "b"}, IndexType: "text", FieldType: "composite"}, IndexCompositeFastFT},
		{IndexDef{Name: "bad", Fields: []string{"x"}, IndexType: "hash", FieldType: "double"}, 0},
		{IndexDef{Name: "bad", Fields: []string{"x"}, IndexType: "tree", FieldType: "int", Tag: 99}, IndexType(99)},
	}
	for _, tc := range tests {
		t.Run(tc.def.Name+"/"+tc.want.String(), func(t *testing.T) {
			assert.Equal(t, tc.want, tc.def.Type())
		})
	}
	assert.True(t, IndexCompositeBTree.IsOrdered())
	assert.True(t, IndexCompositeBTree.IsComposite())
	assert.False(t, IndexStrHash.IsOrdered())
	assert.True(t, IndexFuzzyFT.IsFullText())
	assert.Equal(t, "IndexType(99)", IndexType(99).String())
}

func TestTermQueryFlatten(t *testing.T) {
	a := Where("a", CondEq, payload.Int(1))
	b := Where("b", CondEq, payload.Int(2))
	c := Where("c", CondGt, payload.Int(3))

	and := a.And(b).And(c, &TermQuery{})
	assert.Len(t, and.Must, 3)
	assert.Nil(t, and.Cond)

	or := a.Or(b).Or(and)
	assert.Len(t, or.Should, 3)
	assert.Same(t, and, or.Should[2])

	assert.Same(t, a, a.And())
	assert.True(t, (*TermQuery)(nil).Empty())
}

func TestKeywordToString(t *testing.T) {
	assert.Equal(t, "", (&Keyword{Field: "title"}).ToString())
	assert.Equal(t, "go", (&Keyword{Word: "go"}).ToString())
	assert.Equal(t, "title\001go", (&Keyword{Field: "title", Word: "go"}).ToString())
}
