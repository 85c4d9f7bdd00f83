package idset

import "strings"

// Phase 提交阶段，按位组合，调用方在一次提交前设置好
type Phase int

const (
	// MakeIdsets 各索引把idset整理成有序、去重的形式
	MakeIdsets Phase = 1 << 0
	// MakeSortOrders 有序索引重建排序表
	MakeSortOrders Phase = 1 << 2
	// PrepareForSelect 索引准备好响应查询
	PrepareForSelect Phase = 1 << 3

	AllPhases = MakeIdsets | MakeSortOrders | PrepareForSelect
)

// Has 判断p是否包含q的所有位
func (p Phase) Has(q Phase) bool {
	return p&q == q
}

func (p Phase) String() string {
	if p == 0 {
		return "none"
	}
	names := make([]string, 0, 3)
	if p&MakeIdsets != 0 {
		names = append(names, "MakeIdsets")
	}
	if p&MakeSortOrders != 0 {
		names = append(names, "MakeSortOrders")
	}
	if p&PrepareForSelect != 0 {
		names = append(names, "PrepareForSelect")
	}
	return strings.Join(names, "|")
}

// CommitContext 一次提交过程中只读的全局信息，索引和idset只能读取，不能保存
type CommitContext interface {
	SortedIndexCount() int
	Phases() Phase
}

type commitContext struct {
	sortedIndexCount int
	phases           Phase
}

func NewCommitContext(sortedIndexCount int, phases Phase) CommitContext {
	return commitContext{sortedIndexCount: sortedIndexCount, phases: phases}
}

func (c commitContext) SortedIndexCount() int { return c.sortedIndexCount }

func (c commitContext) Phases() Phase { return c.phases }
