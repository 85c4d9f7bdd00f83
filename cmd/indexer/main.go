package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"IDXCORE/internal/config"
	"IDXCORE/internal/metrics"
	"IDXCORE/internal/namespace"
	"IDXCORE/util"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	importPath := flag.String("import", "", "YAML file with documents to bulk load")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	util.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	if err := run(cfg, *importPath); err != nil {
		slog.Error("indexer failed", "error", err)
		os.Exit(1)
	}
	slog.Info("indexer stopped")
}

func run(cfg *config.Config, importPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	if cfg.Metrics.Enabled {
		shutdown := metrics.StartServer(cfg.Metrics.Port, reg)
		defer shutdown(context.Background())
	}

	fields, err := cfg.Namespace.FieldDefs()
	if err != nil {
		return err
	}
	ns, err := namespace.Open(namespace.Options{
		Name:        cfg.Namespace.Name,
		Fields:      fields,
		Engine:      cfg.EngineType(),
		Path:        cfg.Storage.Path,
		DocEstimate: cfg.Namespace.DocEstimate,
		Metrics:     m,
	})
	if err != nil {
		return err
	}
	defer ns.Close()

	for _, ic := range cfg.Namespace.Indexes {
		if err := ns.AddIndex(ic.IndexDef()); err != nil {
			return err
		}
	}
	if _, err := ns.LoadFromIndexFile(); err != nil {
		return err
	}

	if importPath != "" {
		f, err := os.Open(importPath)
		if err != nil {
			return fmt.Errorf("open import file: %w", err)
		}
		docs, err := readDocuments(f)
		f.Close()
		if err != nil {
			return err
		}
		n, err := ns.BulkUpsert(docs)
		if err != nil {
			return err
		}
		slog.Info("documents imported", "file", importPath, "count", n)
	}

	for name, stat := range ns.MemStat() {
		slog.Info("index stat", "index", name, "keys", stat.Keys, "ids", stat.Ids, "tree_backed", stat.TreeBacked)
	}
	slog.Info("indexer ready", "namespace", ns.Name(), "documents", ns.Len())
	ns.RunOptimizer(ctx, cfg.Optimizer.Interval, cfg.Optimizer.Burst)
	return nil
}
