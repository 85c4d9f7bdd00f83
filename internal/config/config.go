// Package config 从YAML文件加载配置，环境变量 IDX_* 可以覆盖文件里的值
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"IDXCORE/internal/errs"
	"IDXCORE/internal/kvdb"
	"IDXCORE/internal/payload"
	"IDXCORE/types"
)

type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Namespace NamespaceConfig `yaml:"namespace"`
	Optimizer OptimizerConfig `yaml:"optimizer"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// StorageConfig 正排索引的存储引擎和路径
type StorageConfig struct {
	Engine string `yaml:"engine"`
	Path   string `yaml:"path"`
}

// NamespaceConfig 命名空间的字段和索引定义
type NamespaceConfig struct {
	Name        string        `yaml:"name"`
	DocEstimate int           `yaml:"docEstimate"`
	Fields      []FieldConfig `yaml:"fields"`
	Indexes     []IndexConfig `yaml:"indexes"`
}

type FieldConfig struct {
	Name  string `yaml:"name"`
	Kind  string `yaml:"kind"`
	Array bool   `yaml:"array"`
}

type IndexConfig struct {
	Name      string   `yaml:"name"`
	Fields    []string `yaml:"fields"`
	IndexType string   `yaml:"indexType"`
	FieldType string   `yaml:"fieldType"`
	PK        bool     `yaml:"pk"`
	Array     bool     `yaml:"array"`
	Dense     bool     `yaml:"dense"`
}

// OptimizerConfig 后台提交的间隔和限速
type OptimizerConfig struct {
	Interval time.Duration `yaml:"interval"`
	Burst    int           `yaml:"burst"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load 读取path处的YAML（path为空时只用默认值），再用环境变量覆盖
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Engine: "badger",
			Path:   "data/forward",
		},
		Namespace: NamespaceConfig{
			Name:        "default",
			DocEstimate: 10000,
		},
		Optimizer: OptimizerConfig{
			Interval: 2 * time.Second,
			Burst:    1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("IDX_STORAGE_ENGINE"); v != "" {
		cfg.Storage.Engine = v
	}
	if v := os.Getenv("IDX_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("IDX_NAMESPACE_NAME"); v != "" {
		cfg.Namespace.Name = v
	}
	if v := os.Getenv("IDX_NAMESPACE_DOC_ESTIMATE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Namespace.DocEstimate = n
		}
	}
	if v := os.Getenv("IDX_OPTIMIZER_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Optimizer.Interval = d
		}
	}
	if v := os.Getenv("IDX_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("IDX_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("IDX_METRICS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Metrics.Enabled = b
		}
	}
	if v := os.Getenv("IDX_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
}

// Validate 检查引擎名、路径和优化器参数
func (c *Config) Validate() error {
	if _, ok := kvdb.ParseEngine(c.Storage.Engine); !ok {
		return errs.Newf(errs.ErrInvalidConfiguration, "unknown storage engine %q", c.Storage.Engine)
	}
	if c.Storage.Path == "" {
		return errs.New(errs.ErrInvalidConfiguration, "storage path is empty")
	}
	if c.Optimizer.Interval <= 0 {
		return errs.Newf(errs.ErrInvalidConfiguration, "optimizer interval must be positive, got %s", c.Optimizer.Interval)
	}
	if c.Optimizer.Burst <= 0 {
		c.Optimizer.Burst = 1
	}
	return nil
}

// EngineType 存储引擎对应的 kvdb 常量
func (c *Config) EngineType() int {
	engine, _ := kvdb.ParseEngine(c.Storage.Engine)
	return engine
}

// FieldDefs 字段配置转成payload的字段定义
func (n NamespaceConfig) FieldDefs() ([]payload.FieldDef, error) {
	defs := make([]payload.FieldDef, 0, len(n.Fields))
	for _, f := range n.Fields {
		kind, ok := payload.ParseKind(f.Kind)
		if !ok {
			return nil, errs.Newf(errs.ErrInvalidConfiguration, "field %q has unknown kind %q", f.Name, f.Kind)
		}
		defs = append(defs, payload.FieldDef{Name: f.Name, Kind: kind, Array: f.Array})
	}
	return defs, nil
}

func (i IndexConfig) IndexDef() types.IndexDef {
	return types.IndexDef{
		Name:      i.Name,
		Fields:    i.Fields,
		IndexType: i.IndexType,
		FieldType: i.FieldType,
		Opts:      types.IndexOpts{PK: i.PK, Array: i.Array, Dense: i.Dense},
	}
}
