package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"IDXCORE/internal/payload"
)

const docsYAML = `
- id: book-1
  fields:
    title: Learning Go
    price: 30
    rating: 4.5
    tags: [go, programming]
    available: true
- id: book-2
  fields:
    title: Go in Action
`

func TestReadDocuments(t *testing.T) {
	docs, err := readDocuments(strings.NewReader(docsYAML))
	require.NoError(t, err)
	require.Len(t, docs, 2)

	assert.Equal(t, "book-1", docs[0].Id)
	fields := docs[0].Fields
	assert.Equal(t, []payload.Value{payload.String("Learning Go")}, fields["title"])
	assert.Equal(t, []payload.Value{payload.Int64(30)}, fields["price"])
	assert.Equal(t, []payload.Value{payload.Double(4.5)}, fields["rating"])
	assert.Equal(t, []payload.Value{payload.String("go"), payload.String("programming")}, fields["tags"])
	assert.Equal(t, []payload.Value{payload.Bool(true)}, fields["available"])
	assert.Len(t, docs[1].Fields, 1)
}

func TestReadDocumentsErrors(t *testing.T) {
	docs, err := readDocuments(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, docs)

	_, err = readDocuments(strings.NewReader("- id: x\n  fields:\n    nested: {a: 1}\n"))
	assert.ErrorIs(t, err, payload.ErrFieldMismatch)

	_, err = readDocuments(strings.NewReader("not: [a list"))
	assert.Error(t, err)
}
