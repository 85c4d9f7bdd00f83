// Package metrics 提交和命名空间规模的 prometheus 指标
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 所有指标都带 namespace 标签
type Metrics struct {
	CommitSweepsTotal   *prometheus.CounterVec
	IndexCommitsTotal   *prometheus.CounterVec
	CommitsSkippedTotal *prometheus.CounterVec
	CommitDuration      *prometheus.HistogramVec
	Documents           *prometheus.GaugeVec
	PendingWrites       *prometheus.GaugeVec
	TreeBackedIdsets    *prometheus.GaugeVec
}

// New 创建指标并注册到reg；reg为nil时不注册，只在进程内计数
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CommitSweepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "idx_commit_sweeps_total",
				Help: "Commit sweeps over all indexes by trigger.",
			},
			[]string{"namespace", "trigger"},
		),
		IndexCommitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "idx_index_commits_total",
				Help: "Index commits performed, by index.",
			},
			[]string{"namespace", "index"},
		),
		CommitsSkippedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "idx_index_commits_skipped_total",
				Help: "Index commits skipped because too few writes accumulated.",
			},
			[]string{"namespace", "index"},
		),
		CommitDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "idx_commit_duration_seconds",
				Help:    "Duration of a commit sweep in seconds.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"namespace"},
		),
		Documents: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "idx_documents",
				Help: "Documents stored in the namespace.",
			},
			[]string{"namespace"},
		),
		PendingWrites: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "idx_pending_writes",
				Help: "Writes accumulated since the last commit, summed over indexes.",
			},
			[]string{"namespace"},
		),
		TreeBackedIdsets: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "idx_tree_backed_idsets",
				Help: "Posting lists that migrated to the tree representation.",
			},
			[]string{"namespace"},
		),
	}
	if reg != nil {
		reg.MustRegister(
			m.CommitSweepsTotal,
			m.IndexCommitsTotal,
			m.CommitsSkippedTotal,
			m.CommitDuration,
			m.Documents,
			m.PendingWrites,
			m.TreeBackedIdsets,
		)
	}
	return m
}

// StartServer 在port上暴露 /metrics，返回关闭函数
func StartServer(port int, gatherer prometheus.Gatherer) (shutdown func(context.Context) error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("metrics server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server error", "error", err)
		}
	}()
	return server.Shutdown
}
