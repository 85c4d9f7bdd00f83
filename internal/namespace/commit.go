package namespace

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"IDXCORE/internal/idset"
	"IDXCORE/internal/index"
)

// Commit 对所有索引做一次提交。每个索引由 ShouldCommitNow 决定是否值得提交
func (ns *Namespace) Commit(phases idset.Phase) error {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	return ns.commitLocked(phases, triggerManual)
}

func (ns *Namespace) commitLocked(phases idset.Phase, trigger string) error {
	start := time.Now()
	ctx := idset.NewCommitContext(ns.sortedCount, phases)
	committed := 0
	for _, idx := range ns.indexes {
		if !idx.ShouldCommitNow(phases) {
			ns.metrics.CommitsSkippedTotal.WithLabelValues(ns.name, idx.Name()).Inc()
			continue
		}
		if err := idx.Commit(ctx); err != nil {
			return fmt.Errorf("commit index %s: %w", idx.Name(), err)
		}
		ns.metrics.IndexCommitsTotal.WithLabelValues(ns.name, idx.Name()).Inc()
		committed++
	}
	ns.metrics.CommitSweepsTotal.WithLabelValues(ns.name, trigger).Inc()
	ns.metrics.CommitDuration.WithLabelValues(ns.name).Observe(time.Since(start).Seconds())
	ns.updateGauges()
	slog.Debug("commit sweep",
		slog.String("namespace", ns.name),
		slog.String("trigger", trigger),
		slog.String("phases", phases.String()),
		slog.Int("committed", committed),
		slog.Int("indexes", len(ns.indexes)))
	return nil
}

// needsCommit 只读检查：是否有索引在phases下应该提交且确实有事可做
func (ns *Namespace) needsCommit(phases idset.Phase) bool {
	for _, idx := range ns.indexes {
		if !idx.ShouldCommitNow(phases) {
			continue
		}
		if idx.WritesSinceCommit() > 0 || !idx.Prepared() {
			return true
		}
		if sorter, ok := idx.(index.Sorter); ok && phases.Has(idset.MakeSortOrders) {
			if _, done := sorter.SortOrder(); !done {
				return true
			}
		}
	}
	return false
}

// pendingWrites 所有索引自上次提交以来的写入次数之和
func (ns *Namespace) pendingWrites() int {
	n := 0
	for _, idx := range ns.indexes {
		n += idx.WritesSinceCommit()
	}
	return n
}

func (ns *Namespace) updateGauges() {
	ns.metrics.Documents.WithLabelValues(ns.name).Set(float64(len(ns.docIds)))
	ns.metrics.PendingWrites.WithLabelValues(ns.name).Set(float64(ns.pendingWrites()))
}

// MemStat 每个索引的内存统计
func (ns *Namespace) MemStat() map[string]index.MemStat {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	stats := make(map[string]index.MemStat, len(ns.indexes))
	treeBacked := 0
	for _, idx := range ns.indexes {
		stat := idx.MemStat()
		stats[idx.Name()] = stat
		treeBacked += stat.TreeBacked
	}
	ns.metrics.TreeBackedIdsets.WithLabelValues(ns.name).Set(float64(treeBacked))
	return stats
}

// RunOptimizer 后台按interval限速做完整提交，直到ctx结束
func (ns *Namespace) RunOptimizer(ctx context.Context, interval time.Duration, burst int) {
	if burst <= 0 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Every(interval), burst)
	slog.Info("optimizer started", slog.String("namespace", ns.name), slog.Duration("interval", interval))
	for {
		if err := limiter.Wait(ctx); err != nil {
			// 下一个令牌在ctx截止之后
			<-ctx.Done()
			slog.Info("optimizer stopped", slog.String("namespace", ns.name))
			return
		}
		if err := ns.optimize(); err != nil {
			slog.Error("optimizer commit failed", slog.String("namespace", ns.name), slog.Any("err", err))
		}
	}
}

// optimize 先在读锁下判断有没有需要提交的索引，避免空闲时抢写锁
func (ns *Namespace) optimize() error {
	ns.mu.RLock()
	dirty := ns.needsCommit(idset.AllPhases)
	ns.mu.RUnlock()
	if !dirty {
		return nil
	}
	ns.mu.Lock()
	err := ns.commitLocked(idset.AllPhases, triggerOptimizer)
	ns.mu.Unlock()
	if err != nil {
		return err
	}
	ns.collectGarbage()
	return nil
}

// valueLogGC 需要定期回收空间的正排，目前只有 *kvdb.Badger
type valueLogGC interface {
	CheckAndGC()
}

// collectGarbage 提交之后顺带回收正排的value log。持有读锁，Close 不会并发执行
func (ns *Namespace) collectGarbage() {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	if gc, ok := ns.forward.(valueLogGC); ok {
		gc.CheckAndGC()
	}
}
