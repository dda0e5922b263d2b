package config

import (
	"time"

	"github.com/gyaneshwarpardhi/ledgerflow/internal/classify"
)

// Config is the top-level YAML structure.
type Config struct {
	Version    string         `yaml:"version" validate:"required"`
	Engine     EngineConf     `yaml:"engine"`
	Pipeline   PipelineConf   `yaml:"pipeline"`
	Dedup      DedupConf      `yaml:"dedup"`
	Store      StoreConf      `yaml:"store"`
	Log        LogConf        `yaml:"log"`
	HTTP       HTTPConf       `yaml:"http"`
	Classifier ClassifierConf `yaml:"classifier"`
}

// EngineConf holds tunable concurrency settings.
type EngineConf struct {
	Workers        int `yaml:"workers" validate:"gte=1"`
	QueueDepth     int `yaml:"queue_depth" validate:"gte=1"`
	EventTimeoutMs int `yaml:"event_timeout_ms" validate:"gte=1"`
}

// PipelineConf holds the read-only snapshot data of the stages.
type PipelineConf struct {
	WorkspaceID  string             `yaml:"workspace_id"`
	BaseCurrency string             `yaml:"base_currency" validate:"required,len=3"`
	Currencies   []string           `yaml:"currencies" validate:"required,min=1,dive,len=3"`
	Rates        map[string]float64 `yaml:"rates"`
	KnownSources []string           `yaml:"known_sources"`
	Rounding     string             `yaml:"rounding" validate:"oneof=half_up half_even"`
}

// DedupConf selects the seen-set backend.
type DedupConf struct {
	Backend string        `yaml:"backend" validate:"oneof=memory redis"`
	TTL     time.Duration `yaml:"ttl" validate:"gte=0"`
	Redis   RedisConf     `yaml:"redis"`
}

type RedisConf struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db" validate:"gte=0"`
	KeyPrefix string `yaml:"key_prefix"`
}

// StoreConf selects the persistence backend.
type StoreConf struct {
	Driver       string `yaml:"driver" validate:"oneof=postgres sqlite"`
	DSN          string `yaml:"dsn" validate:"required"`
	MaxOpenConns int    `yaml:"max_open_conns" validate:"gte=0"`
	AutoMigrate  bool   `yaml:"auto_migrate"`
}

type LogConf struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json console"`
	Output string `yaml:"output"`
}

// HTTPConf configures the ingress adapter.
type HTTPConf struct {
	Addr         string  `yaml:"addr" validate:"required"`
	RateLimitRPS float64 `yaml:"rate_limit_rps" validate:"gte=0"` // 0 disables limiting
	Burst        int     `yaml:"burst" validate:"gte=0"`
	MaxBatchSize int     `yaml:"max_batch_size" validate:"gte=1"`
	MaxBodyBytes int64   `yaml:"max_body_bytes" validate:"gte=1"`
}

// ClassifierConf holds payload hint paths and operator rules.
type ClassifierConf struct {
	Hints classify.HintPaths  `yaml:",inline"`
	Rules []classify.RuleSpec `yaml:"rules"`
}

// EventTimeout returns the per-event timeout as a duration.
func (c EngineConf) EventTimeout() time.Duration {
	return time.Duration(c.EventTimeoutMs) * time.Millisecond
}
