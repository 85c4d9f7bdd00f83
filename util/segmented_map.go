package util

// 基于Segment分段的map：通过 哈希%Segment 将所有kv数据存入Segment个小map中。
// 每个小map单独扩容，避免一个大map扩容时全部bucket重建；热点key也会被哈希打散。
// 自身不加锁，由持有者保证单写者

import (
	farmhash "github.com/leemcloughlin/gofarmhash"
)

// SegmentedMap 分段map
type SegmentedMap[V any] struct {
	mps  []map[string]V
	seg  int
	seed uint32
	size int
}

// NewSegmentedMap seg是小map的个数，cap是整个map的预估容量
func NewSegmentedMap[V any](seg, cap int) *SegmentedMap[V] {
	if seg <= 0 {
		seg = 1
	}
	mps := make([]map[string]V, seg)
	for i := 0; i < seg; i++ {
		mps[i] = make(map[string]V, cap/seg)
	}
	return &SegmentedMap[V]{
		mps:  mps,
		seg:  seg,
		seed: 0,
	}
}

// getSegIndex 调用farmhash获取小map分区号
func (m *SegmentedMap[V]) getSegIndex(key string) int {
	index := farmhash.Hash32WithSeed([]byte(key), m.seed)
	return int(index % uint32(m.seg))
}

func (m *SegmentedMap[V]) Set(key string, value V) {
	mp := m.mps[m.getSegIndex(key)]
	if _, exists := mp[key]; !exists {
		m.size++
	}
	mp[key] = value
}

func (m *SegmentedMap[V]) Get(key string) (V, bool) {
	value, exists := m.mps[m.getSegIndex(key)][key]
	return value, exists
}

func (m *SegmentedMap[V]) Delete(key string) bool {
	mp := m.mps[m.getSegIndex(key)]
	if _, exists := mp[key]; !exists {
		return false
	}
	delete(mp, key)
	m.size--
	return true
}

func (m *SegmentedMap[V]) Len() int {
	return m.size
}

// Range 遍历所有kv，fn返回false时停止。遍历中可以删除当前key
func (m *SegmentedMap[V]) Range(fn func(key string, value V) bool) {
	for _, mp := range m.mps {
		for k, v := range mp {
			if !fn(k, v) {
				return
			}
		}
	}
}

func (m *SegmentedMap[V]) Clear() {
	for i := range m.mps {
		clear(m.mps[i])
	}
	m.size = 0
}
