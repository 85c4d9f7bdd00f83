// Package namespace 把正排和倒排两个子系统封装在一起，对外提供更简单的接口。
// 正排是kvdb里按文档Id保存的编码后的payload，倒排是每个索引的idset。
//
// 所有写入和提交都持有写锁；查询持有读锁，读锁下不修改任何idset。
package namespace

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"IDXCORE/internal/errs"
	"IDXCORE/internal/idset"
	"IDXCORE/internal/index"
	"IDXCORE/internal/kvdb"
	"IDXCORE/internal/metrics"
	"IDXCORE/internal/payload"
	"IDXCORE/types"
)

// 提交的触发方，用作指标标签
const (
	triggerManual    = "manual"
	triggerSelect    = "select"
	triggerBulk      = "bulk"
	triggerOptimizer = "optimizer"
	triggerAddIndex  = "add_index"
)

// Options 打开命名空间需要的参数
type Options struct {
	Name        string
	Fields      []payload.FieldDef
	Engine      int // kvdb.BOLT 或 kvdb.BADGER
	Path        string
	DocEstimate int              // 预估文档数，用于预分配
	Metrics     *metrics.Metrics // 为nil时使用不注册的指标
}

// Namespace 正排索引+倒排索引
type Namespace struct {
	mu sync.RWMutex

	name    string
	pt      *payload.Type
	forward kvdb.IKeyValueDB
	metrics *metrics.Metrics

	indexes     []index.Index
	byName      map[string]int
	sortedCount int

	docIds map[string]idset.IdType
	idDocs map[idset.IdType]string
	nextId idset.IdType
}

// Open 打开正排存储。索引需要随后用 AddIndex 添加，再用 LoadFromIndexFile 恢复倒排
func Open(opts Options) (*Namespace, error) {
	if opts.Name == "" {
		return nil, errs.New(errs.ErrInvalidConfiguration, "namespace name is empty")
	}
	db, err := kvdb.GetKvDb(opts.Engine, opts.Path)
	if err != nil {
		return nil, fmt.Errorf("open forward store for namespace %s: %w", opts.Name, err)
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.New(nil)
	}
	ns := &Namespace{
		name:    opts.Name,
		pt:      payload.NewType(opts.Name, opts.Fields...),
		forward: db,
		metrics: m,
		byName:  make(map[string]int),
		docIds:  make(map[string]idset.IdType, max(opts.DocEstimate, 0)),
		idDocs:  make(map[idset.IdType]string, max(opts.DocEstimate, 0)),
	}
	slog.Info("namespace opened",
		slog.String("name", ns.name),
		slog.Int("fields", ns.pt.NumFields()),
		slog.String("path", db.GetDbPath()))
	return ns, nil
}

func (ns *Namespace) Name() string { return ns.name }

func (ns *Namespace) PayloadType() *payload.Type { return ns.pt }

// Len 文档数
func (ns *Namespace) Len() int {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	return len(ns.docIds)
}

func (ns *Namespace) Close() error {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	return ns.forward.Close()
}

// AddIndex 创建索引，并把已有文档加入新索引
func (ns *Namespace) AddIndex(def types.IndexDef) error {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	if _, exists := ns.byName[def.Name]; exists {
		return errs.Newf(errs.ErrInvalidConfiguration, "index '%s' already exists in namespace %s", def.Name, ns.name)
	}
	fields, err := ns.pt.Resolve(def.Fields...)
	if err != nil {
		return errs.Newf(errs.ErrInvalidConfiguration, "index '%s': %v", def.Name, err)
	}
	idx, err := index.New(def, ns.pt, fields)
	if err != nil {
		return err
	}
	if err := ns.attach(idx); err != nil {
		return err
	}
	slog.Info("index added",
		slog.String("namespace", ns.name),
		slog.String("index", def.Name),
		slog.String("type", idx.Type().String()),
		slog.Int("keys", idx.KeysCount()))
	return nil
}

// attach 注册索引并把已有文档写进去，任何一步失败都把索引撤掉
func (ns *Namespace) attach(idx index.Index) error {
	sortedCount := ns.sortedCount
	if sorter, ok := idx.(index.Sorter); ok {
		sorter.SetSortId(ns.sortedCount)
		ns.sortedCount++
	}
	ns.byName[idx.Name()] = len(ns.indexes)
	ns.indexes = append(ns.indexes, idx)
	if len(ns.docIds) == 0 {
		return nil
	}

	idx.SetBulkLoad(true)
	var fillErr error
	ns.forward.IterDB(func(k, v []byte) error {
		id, ok := ns.docIds[string(k)]
		if !ok {
			return nil
		}
		p, err := payload.Decode(ns.pt, v)
		if err != nil {
			slog.Warn("decode document failed", slog.String("doc", string(k)), slog.Any("err", err))
			return nil
		}
		fillErr = indexKeys(idx, id, p)
		return fillErr
	})
	idx.SetBulkLoad(false)
	if fillErr == nil {
		ctx := idset.NewCommitContext(ns.sortedCount, idset.AllPhases)
		fillErr = idx.Commit(ctx)
	}
	if fillErr != nil {
		ns.indexes = ns.indexes[:len(ns.indexes)-1]
		delete(ns.byName, idx.Name())
		ns.sortedCount = sortedCount
		return fmt.Errorf("fill index %s: %w", idx.Name(), fillErr)
	}
	ns.metrics.CommitSweepsTotal.WithLabelValues(ns.name, triggerAddIndex).Inc()
	return nil
}

// DropIndex 删除索引，之后的有序索引重新编号
func (ns *Namespace) DropIndex(name string) error {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	pos, exists := ns.byName[name]
	if !exists {
		return errs.Newf(errs.ErrNotFound, "index '%s' in namespace %s", name, ns.name)
	}
	ns.indexes = slices.Delete(ns.indexes, pos, pos+1)
	ns.byName = make(map[string]int, len(ns.indexes))
	ns.sortedCount = 0
	for i, idx := range ns.indexes {
		ns.byName[idx.Name()] = i
		if sorter, ok := idx.(index.Sorter); ok {
			sorter.SetSortId(ns.sortedCount)
			ns.sortedCount++
		}
	}
	slog.Info("index dropped", slog.String("namespace", ns.name), slog.String("index", name))
	return nil
}

// Index 按名字取索引
func (ns *Namespace) Index(name string) (index.Index, bool) {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	pos, exists := ns.byName[name]
	if !exists {
		return nil, false
	}
	return ns.indexes[pos], true
}

func indexKeys(idx index.Index, id idset.IdType, p *payload.Payload) error {
	for _, key := range p.Keys(idx.Fields()) {
		if err := idx.Upsert(id, key); err != nil {
			return fmt.Errorf("index %s: %w", idx.Name(), err)
		}
	}
	return nil
}

func unindexKeys(idx index.Index, id idset.IdType, p *payload.Payload) error {
	for _, key := range p.Keys(idx.Fields()) {
		if _, err := idx.Delete(id, key); err != nil {
			return fmt.Errorf("index %s: %w", idx.Name(), err)
		}
	}
	return nil
}

// Upsert 新增文档，如果之前有相同Id的文档，先把旧文档从倒排上删掉
func (ns *Namespace) Upsert(doc types.Document) error {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	docId, p, data, err := ns.prepare(doc)
	if err != nil {
		return err
	}
	old, err := ns.load(docId)
	if err != nil {
		return err
	}
	if err := ns.forward.Set([]byte(docId), data); err != nil {
		return fmt.Errorf("write forward store: %w", err)
	}
	if err := ns.reindex(docId, old, p); err != nil {
		return err
	}
	ns.updateGauges()
	return nil
}

// BulkUpsert 批量导入：哈希索引只追加，正排一次批量写入，最后做一次完整提交
func (ns *Namespace) BulkUpsert(docs []types.Document) (int, error) {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	for _, idx := range ns.indexes {
		idx.SetBulkLoad(true)
	}
	defer func() {
		for _, idx := range ns.indexes {
			idx.SetBulkLoad(false)
		}
	}()

	// 先校验、编码整批文档并读出旧版本，这一步失败时什么都没有改
	entries := make([]bulkEntry, 0, len(docs))
	keys := make([][]byte, 0, len(docs))
	values := make([][]byte, 0, len(docs))
	// 同一批里重复出现的文档，旧版本还没写进正排
	batch := make(map[string]*payload.Payload, len(docs))
	for _, doc := range docs {
		docId, p, data, err := ns.prepare(doc)
		if err != nil {
			return 0, err
		}
		old, inBatch := batch[docId]
		if !inBatch {
			if old, err = ns.load(docId); err != nil {
				return 0, err
			}
		}
		batch[docId] = p
		entries = append(entries, bulkEntry{docId: docId, old: old, p: p})
		keys = append(keys, []byte(docId))
		values = append(values, data)
	}

	for i := range entries {
		e := &entries[i]
		_, known := ns.docIds[e.docId]
		e.created = !known
		if err := ns.reindex(e.docId, e.old, e.p); err != nil {
			ns.rollback(entries[:i+1])
			return 0, err
		}
	}
	if err := ns.forward.BatchSet(keys, values); err != nil {
		ns.rollback(entries)
		return 0, fmt.Errorf("write forward store: %w", err)
	}
	for _, idx := range ns.indexes {
		idx.SetBulkLoad(false)
	}
	if err := ns.commitLocked(idset.AllPhases, triggerBulk); err != nil {
		return 0, err
	}
	slog.Info("bulk upsert done", slog.String("namespace", ns.name), slog.Int("docs", len(docs)))
	return len(docs), nil
}

// Delete 删除指定Id的文档，返回删除的文档数
func (ns *Namespace) Delete(docId string) (int, error) {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	id, exists := ns.docIds[docId]
	if !exists {
		return 0, nil
	}
	old, err := ns.load(docId)
	if err != nil {
		return 0, err
	}
	if old != nil {
		for _, idx := range ns.indexes {
			if err := unindexKeys(idx, id, old); err != nil {
				return 0, err
			}
		}
	}
	if err := ns.forward.Delete([]byte(docId)); err != nil {
		return 0, fmt.Errorf("delete from forward store: %w", err)
	}
	delete(ns.docIds, docId)
	delete(ns.idDocs, id)
	ns.updateGauges()
	return 1, nil
}

// prepare 校验文档并编码成正排存储的格式
func (ns *Namespace) prepare(doc types.Document) (string, *payload.Payload, []byte, error) {
	docId := strings.TrimSpace(doc.Id)
	if docId == "" {
		return "", nil, nil, errs.New(errs.ErrInvalidState, "document id is empty")
	}
	p, err := payload.FromFields(ns.pt, doc.Fields)
	if err != nil {
		return "", nil, nil, fmt.Errorf("document %s: %w", docId, err)
	}
	data, err := payload.Encode(p)
	if err != nil {
		return "", nil, nil, fmt.Errorf("encode document %s: %w", docId, err)
	}
	return docId, p, data, nil
}

// load 从正排读出已有文档，文档不存在时返回nil
func (ns *Namespace) load(docId string) (*payload.Payload, error) {
	if _, exists := ns.docIds[docId]; !exists {
		return nil, nil
	}
	data, err := ns.forward.Get([]byte(docId))
	if err != nil {
		return nil, fmt.Errorf("read document %s: %w", docId, err)
	}
	p, err := payload.Decode(ns.pt, data)
	if err != nil {
		return nil, fmt.Errorf("decode document %s: %w", docId, err)
	}
	return p, nil
}

// bulkEntry 批量导入中的一篇文档，old为导入前的版本
type bulkEntry struct {
	docId   string
	old, p  *payload.Payload
	created bool
}

// rollback 倒序撤销已经写进倒排的文档：去掉新key，恢复旧key，新分配的内部id作废
func (ns *Namespace) rollback(applied []bulkEntry) {
	for i := len(applied) - 1; i >= 0; i-- {
		e := applied[i]
		id, exists := ns.docIds[e.docId]
		if !exists {
			continue
		}
		for _, idx := range ns.indexes {
			if err := unindexKeys(idx, id, e.p); err != nil {
				slog.Error("rollback failed", slog.String("doc", e.docId), slog.Any("err", err))
			}
			if e.old == nil {
				continue
			}
			if err := indexKeys(idx, id, e.old); err != nil {
				slog.Error("rollback failed", slog.String("doc", e.docId), slog.Any("err", err))
			}
		}
		if e.created {
			delete(ns.docIds, e.docId)
			delete(ns.idDocs, id)
		}
	}
}

// reindex 更新倒排。更新已有文档时沿用旧的内部id
func (ns *Namespace) reindex(docId string, old, p *payload.Payload) error {
	id, exists := ns.docIds[docId]
	if !exists {
		id = ns.nextId
		ns.nextId++
		ns.docIds[docId] = id
		ns.idDocs[id] = docId
	}
	for _, idx := range ns.indexes {
		if old != nil {
			if err := unindexKeys(idx, id, old); err != nil {
				return err
			}
		}
		if err := indexKeys(idx, id, p); err != nil {
			return err
		}
	}
	return nil
}

// LoadFromIndexFile 系统重启时，直接从正排存储里恢复倒排
func (ns *Namespace) LoadFromIndexFile() (int, error) {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	for _, idx := range ns.indexes {
		idx.SetBulkLoad(true)
	}
	var loadErr error
	n := ns.forward.IterDB(func(k, v []byte) error {
		p, err := payload.Decode(ns.pt, v)
		if err != nil {
			slog.Warn("decode document failed", slog.String("doc", string(k)), slog.Any("err", err))
			return nil
		}
		docId := string(k)
		if _, known := ns.docIds[docId]; known {
			return nil
		}
		if loadErr = ns.reindex(docId, nil, p); loadErr != nil {
			return loadErr
		}
		return nil
	})
	for _, idx := range ns.indexes {
		idx.SetBulkLoad(false)
	}
	if loadErr != nil {
		return 0, loadErr
	}
	if err := ns.commitLocked(idset.AllPhases, triggerBulk); err != nil {
		return 0, err
	}
	slog.Info("load data from forward index", slog.String("namespace", ns.name), slog.Int64("dataNum", n))
	return int(n), nil
}
