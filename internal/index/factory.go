package index

import (
	"IDXCORE/internal/errs"
	"IDXCORE/internal/payload"
	"IDXCORE/types"
)

// New 按索引类型标签构造具体的索引。无法识别的标签返回 ErrInvalidConfiguration
func New(def types.IndexDef, pt *payload.Type, fields payload.FieldsSet) (Index, error) {
	typ := def.Type()
	if len(fields) == 0 {
		return nil, errs.Newf(errs.ErrInvalidConfiguration, "index '%s' has no fields", def.Name)
	}
	switch typ {
	case types.IndexStrBTree, types.IndexIntBTree, types.IndexDoubleBTree, types.IndexInt64BTree,
		types.IndexCompositeBTree:
		return newOrdered(def, pt, fields), nil
	case types.IndexStrHash, types.IndexIntHash, types.IndexInt64Hash, types.IndexCompositeHash:
		return newUnordered(def, pt, fields), nil
	case types.IndexIntStore, types.IndexStrStore, types.IndexInt64Store, types.IndexDoubleStore,
		types.IndexBool:
		return newStore(def, pt, fields), nil
	case types.IndexFastFT, types.IndexCompositeFastFT:
		return newText(def, pt, fields, false), nil
	case types.IndexFuzzyFT, types.IndexCompositeFuzzyFT:
		return newText(def, pt, fields, true), nil
	default:
		return nil, errs.Newf(errs.ErrInvalidConfiguration, "invalid index type %d for index '%s'", int(typ), def.Name)
	}
}
