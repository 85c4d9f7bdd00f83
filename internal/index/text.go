package index

import (
	"runtime"
	"strings"
	"unicode"

	"github.com/RoaringBitmap/roaring/v2"

	"IDXCORE/internal/idset"
	"IDXCORE/internal/payload"
	"IDXCORE/types"
	"IDXCORE/util"
)

const textIndexCapacity = 4096

// textIndex 全文索引：每个词一个idset。模糊索引额外给每个三元组建idset，
// 查询词的所有三元组都命中的文档算作模糊命中。复合索引还会建 字段\001词 形式的key
type textIndex struct {
	base
	fuzzy bool
	words *util.SegmentedMap[*idset.IdSet]
	grams *util.SegmentedMap[*idset.IdSet]
}

func newText(def types.IndexDef, pt *payload.Type, fields payload.FieldsSet, fuzzy bool) *textIndex {
	t := &textIndex{
		base:  newBase(def, pt, fields),
		fuzzy: fuzzy,
		words: util.NewSegmentedMap[*idset.IdSet](runtime.NumCPU(), textIndexCapacity),
	}
	if fuzzy {
		t.grams = util.NewSegmentedMap[*idset.IdSet](runtime.NumCPU(), textIndexCapacity)
	}
	return t
}

// Tokenize 转小写，按非字母数字切分
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// trigrams 词首尾加上$后切出的三元组
func trigrams(word string) []string {
	runes := []rune("$" + word + "$")
	grams := make([]string, 0, len(runes))
	for i := 0; i+3 <= len(runes); i++ {
		grams = append(grams, string(runes[i:i+3]))
	}
	return grams
}

// terms 一个key产生的所有词和三元组，已去重
func (t *textIndex) terms(key payload.Key) (words []string, grams []string) {
	seenWords := make(map[string]struct{})
	seenGrams := make(map[string]struct{})
	for i, v := range key {
		field := ""
		if t.typ.IsComposite() && i < len(t.fields) {
			field = t.pt.Field(t.fields[i]).Name
		}
		for _, word := range Tokenize(v.AsString()) {
			candidates := []string{word}
			if field != "" {
				candidates = append(candidates, (&types.Keyword{Field: field, Word: word}).ToString())
			}
			for _, w := range candidates {
				if _, ok := seenWords[w]; !ok {
					seenWords[w] = struct{}{}
					words = append(words, w)
				}
			}
			if !t.fuzzy {
				continue
			}
			for _, g := range trigrams(word) {
				if _, ok := seenGrams[g]; !ok {
					seenGrams[g] = struct{}{}
					grams = append(grams, g)
				}
			}
		}
	}
	return words, grams
}

func (t *textIndex) Upsert(id idset.IdType, key payload.Key) error {
	t.countWrite()
	words, grams := t.terms(key)
	for _, w := range words {
		if err := t.add(t.words, w, id); err != nil {
			return err
		}
	}
	for _, g := range grams {
		if err := t.add(t.grams, g, id); err != nil {
			return err
		}
	}
	return nil
}

func (t *textIndex) add(table *util.SegmentedMap[*idset.IdSet], term string, id idset.IdType) error {
	set, exists := table.Get(term)
	if !exists {
		set = idset.New()
		table.Set(term, set)
	}
	return addId(set, id, idset.Auto)
}

func (t *textIndex) Delete(id idset.IdType, key payload.Key) (int, error) {
	t.countWrite()
	words, grams := t.terms(key)
	removed := 0
	for _, w := range words {
		if set, exists := t.words.Get(w); exists {
			n, err := eraseId(set, id)
			if err != nil {
				return removed, err
			}
			removed += n
		}
	}
	for _, g := range grams {
		if set, exists := t.grams.Get(g); exists {
			if _, err := eraseId(set, id); err != nil {
				return removed, err
			}
		}
	}
	return removed, nil
}

func (t *textIndex) Commit(ctx idset.CommitContext) error {
	if err := checkContext(t.Name(), ctx); err != nil {
		return err
	}
	phases := ctx.Phases()
	if phases.Has(idset.MakeIdsets) {
		commitTable(t.words, ctx)
		if t.fuzzy {
			commitTable(t.grams, ctx)
		}
	}
	t.finishCommit(phases)
	return nil
}

func commitTable(table *util.SegmentedMap[*idset.IdSet], ctx idset.CommitContext) {
	table.Range(func(term string, set *idset.IdSet) bool {
		if set.IsEmpty() {
			table.Delete(term)
		} else {
			set.Commit(ctx)
		}
		return true
	})
}

// Select 每个key的文本被切成词，所有词都命中的文档才算命中；多个key之间是或的关系
func (t *textIndex) Select(cond types.CondType, keys []payload.Key) (*roaring.Bitmap, error) {
	if cond != types.CondEq && cond != types.CondSet {
		return nil, unsupportedCond(t.Name(), cond)
	}
	result := roaring.New()
	for _, key := range keys {
		for _, v := range key {
			result.Or(t.matchPhrase(v.AsString()))
		}
	}
	return result, nil
}

func (t *textIndex) matchPhrase(text string) *roaring.Bitmap {
	var matched []*roaring.Bitmap
	for _, term := range strings.Fields(text) {
		field, word, qualified := strings.Cut(term, ":")
		if !qualified {
			word, field = field, ""
		}
		for _, w := range Tokenize(word) {
			m := t.matchWord(field, w)
			if m.IsEmpty() {
				return m
			}
			matched = append(matched, m)
		}
	}
	if len(matched) == 0 {
		return roaring.New()
	}
	return roaring.FastAnd(matched...)
}

func (t *textIndex) matchWord(field, word string) *roaring.Bitmap {
	term := (&types.Keyword{Field: field, Word: word}).ToString()
	result := roaring.New()
	if set, exists := t.words.Get(term); exists {
		result.AddMany(set.Sorted())
	}
	if !t.fuzzy || field != "" {
		return result
	}
	grams := trigrams(word)
	sets := make([]*roaring.Bitmap, 0, len(grams))
	for _, g := range grams {
		set, exists := t.grams.Get(g)
		if !exists {
			return result
		}
		sets = append(sets, set.Bitmap())
	}
	result.Or(roaring.FastAnd(sets...))
	return result
}

func (t *textIndex) KeysCount() int {
	return t.words.Len()
}

func (t *textIndex) MemStat() MemStat {
	var stat MemStat
	t.words.Range(func(_ string, set *idset.IdSet) bool {
		stat.add(set)
		return true
	})
	if t.fuzzy {
		t.grams.Range(func(_ string, set *idset.IdSet) bool {
			stat.add(set)
			return true
		})
	}
	return stat
}
