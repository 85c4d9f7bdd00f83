package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"IDXCORE/internal/errs"
	"IDXCORE/internal/kvdb"
	"IDXCORE/internal/payload"
	"IDXCORE/types"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "badger", cfg.Storage.Engine)
	assert.Equal(t, kvdb.BADGER, cfg.EngineType())
	assert.Equal(t, 2*time.Second, cfg.Optimizer.Interval)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Metrics.Enabled)
}

const sampleYAML = `
storage:
  engine: bolt
  path: /tmp/idx/books.db
namespace:
  name: books
  docEstimate: 500
  fields:
    - {name: id, kind: int}
    - {name: title, kind: string}
    - {name: tags, kind: string, array: true}
  indexes:
    - {name: id, fields: [id], indexType: hash, fieldType: int, pk: true}
    - {name: title, fields: [title], indexType: text, fieldType: string}
optimizer:
  interval: 500ms
logging:
  level: debug
  format: json
`

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, kvdb.BOLT, cfg.EngineType())
	assert.Equal(t, "books", cfg.Namespace.Name)
	assert.Equal(t, 500, cfg.Namespace.DocEstimate)
	require.Len(t, cfg.Namespace.Fields, 3)
	assert.True(t, cfg.Namespace.Fields[2].Array)
	require.Len(t, cfg.Namespace.Indexes, 2)
	assert.True(t, cfg.Namespace.Indexes[0].PK)
	assert.Equal(t, []string{"title"}, cfg.Namespace.Indexes[1].Fields)
	assert.Equal(t, 500*time.Millisecond, cfg.Optimizer.Interval)
	assert.Equal(t, 1, cfg.Optimizer.Burst)
	assert.Equal(t, "json", cfg.Logging.Format)

	defs, err := cfg.Namespace.FieldDefs()
	require.NoError(t, err)
	assert.Equal(t, payload.FieldDef{Name: "tags", Kind: payload.KindString, Array: true}, defs[2])
	def := cfg.Namespace.Indexes[0].IndexDef()
	assert.Equal(t, types.IndexIntHash, def.Type())
	assert.True(t, def.Opts.PK)
}

func TestFieldDefsRejectsUnknownKind(t *testing.T) {
	n := NamespaceConfig{Fields: []FieldConfig{{Name: "x", Kind: "decimal"}}}
	_, err := n.FieldDefs()
	assert.ErrorIs(t, err, errs.ErrInvalidConfiguration)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("IDX_STORAGE_ENGINE", "bolt")
	t.Setenv("IDX_STORAGE_PATH", "/var/lib/idx/forward.db")
	t.Setenv("IDX_OPTIMIZER_INTERVAL", "1m")
	t.Setenv("IDX_METRICS_ENABLED", "true")
	t.Setenv("IDX_METRICS_PORT", "not-a-number")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "bolt", cfg.Storage.Engine)
	assert.Equal(t, "/var/lib/idx/forward.db", cfg.Storage.Path)
	assert.Equal(t, time.Minute, cfg.Optimizer.Interval)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, 9090, cfg.Metrics.Port, "unparsable overrides are ignored")
}

func TestLoadRejectsBadConfig(t *testing.T) {
	t.Setenv("IDX_STORAGE_ENGINE", "leveldb")
	_, err := Load("")
	assert.ErrorIs(t, err, errs.ErrInvalidConfiguration)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
