package types

import "fmt"

// IndexType 索引类型标签，工厂按它选择具体的索引实现。0表示无法识别
type IndexType int

const (
	IndexStrBTree IndexType = iota + 1
	IndexIntBTree
	IndexDoubleBTree
	IndexInt64BTree
	IndexCompositeBTree
	IndexStrHash
	IndexIntHash
	IndexInt64Hash
	IndexCompositeHash
	IndexIntStore
	IndexStrStore
	IndexInt64Store
	IndexDoubleStore
	IndexBool
	IndexFastFT
	IndexCompositeFastFT
	IndexFuzzyFT
	IndexCompositeFuzzyFT
)

var indexTypeNames = map[IndexType]string{
	IndexStrBTree:         "string-tree",
	IndexIntBTree:         "int-tree",
	IndexDoubleBTree:      "double-tree",
	IndexInt64BTree:       "int64-tree",
	IndexCompositeBTree:   "composite-tree",
	IndexStrHash:          "string-hash",
	IndexIntHash:          "int-hash",
	IndexInt64Hash:        "int64-hash",
	IndexCompositeHash:    "composite-hash",
	IndexIntStore:         "int-store",
	IndexStrStore:         "string-store",
	IndexInt64Store:       "int64-store",
	IndexDoubleStore:      "double-store",
	IndexBool:             "bool-store",
	IndexFastFT:           "string-text",
	IndexCompositeFastFT:  "composite-text",
	IndexFuzzyFT:          "string-fuzzytext",
	IndexCompositeFuzzyFT: "composite-fuzzytext",
}

func (t IndexType) String() string {
	if name, ok := indexTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("IndexType(%d)", int(t))
}

func (t IndexType) IsOrdered() bool {
	switch t {
	case IndexStrBTree, IndexIntBTree, IndexDoubleBTree, IndexInt64BTree, IndexCompositeBTree:
		return true
	}
	return false
}

func (t IndexType) IsComposite() bool {
	switch t {
	case IndexCompositeBTree, IndexCompositeHash, IndexCompositeFastFT, IndexCompositeFuzzyFT:
		return true
	}
	return false
}

func (t IndexType) IsFullText() bool {
	switch t {
	case IndexFastFT, IndexCompositeFastFT, IndexFuzzyFT, IndexCompositeFuzzyFT:
		return true
	}
	return false
}

// IndexOpts 索引选项
type IndexOpts struct {
	PK    bool
	Array bool
	Dense bool
}

// IndexDef 索引定义。IndexType取值 tree/hash/-/text/fuzzytext，
// FieldType取值 int/int64/double/string/bool/composite。Tag非0时直接使用Tag
type IndexDef struct {
	Name      string
	Fields    []string
	IndexType string
	FieldType string
	Opts      IndexOpts
	Tag       IndexType
}

func (d IndexDef) IsComposite() bool {
	return d.FieldType == "composite" || len(d.Fields) > 1
}

// Type 由IndexType和FieldType推导出类型标签
func (d IndexDef) Type() IndexType {
	if d.Tag != 0 {
		return d.Tag
	}
	if d.IsComposite() {
		switch d.IndexType {
		case "tree":
			return IndexCompositeBTree
		case "hash":
			return IndexCompositeHash
		case "text":
			return IndexCompositeFastFT
		case "fuzzytext":
			return IndexCompositeFuzzyFT
		}
		return 0
	}
	switch d.IndexType + "/" + d.FieldType {
	case "tree/string":
		return IndexStrBTree
	case "tree/int":
		return IndexIntBTree
	case "tree/int64":
		return IndexInt64BTree
	case "tree/double":
		return IndexDoubleBTree
	case "hash/string":
		return IndexStrHash
	case "hash/int":
		return IndexIntHash
	case "hash/int64":
		return IndexInt64Hash
	case "-/int":
		return IndexIntStore
	case "-/string":
		return IndexStrStore
	case "-/int64":
		return IndexInt64Store
	case "-/double":
		return IndexDoubleStore
	case "-/bool":
		return IndexBool
	case "text/string":
		return IndexFastFT
	case "fuzzytext/string":
		return IndexFuzzyFT
	}
	return 0
}
