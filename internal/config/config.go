package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/efebarandurmaz/callsight/internal/callgraph"
	"github.com/efebarandurmaz/callsight/internal/llm"
	"github.com/efebarandurmaz/callsight/internal/observability"
	"github.com/efebarandurmaz/callsight/internal/search"
)

// Config holds all application configuration.
type Config struct {
	// Records is the default function record file (JSON, export document or JSONL).
	Records   string          `mapstructure:"records"`
	Graph     GraphConfig     `mapstructure:"graph"`
	Vector    VectorConfig    `mapstructure:"vector"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Search    SearchConfig    `mapstructure:"search"`
	Builder   BuilderConfig   `mapstructure:"builder"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Server    ServerConfig    `mapstructure:"server"`
	Temporal  TemporalConfig  `mapstructure:"temporal"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Log       LogConfig       `mapstructure:"log"`
}

// GraphConfig points at the Neo4j instance the graph is persisted to. An
// empty URI disables persistence.
type GraphConfig struct {
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// VectorConfig points at the Qdrant collection holding function embeddings.
// An empty host disables vector search.
type VectorConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Collection string `mapstructure:"collection"`
	BatchSize  int    `mapstructure:"batch_size"`
}

type EmbeddingConfig struct {
	Provider          string        `mapstructure:"provider"`
	Model             string        `mapstructure:"model"`
	APIKey            string        `mapstructure:"api_key"`
	BaseURL           string        `mapstructure:"base_url"`
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxRetries        int           `mapstructure:"max_retries"`
	RetryDelay        time.Duration `mapstructure:"retry_delay"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
}

// ProviderConfig converts the section for the embedding factory.
func (c EmbeddingConfig) ProviderConfig() llm.ProviderConfig {
	return llm.ProviderConfig{
		Provider:          c.Provider,
		APIKey:            c.APIKey,
		Model:             c.Model,
		BaseURL:           c.BaseURL,
		Timeout:           c.Timeout,
		MaxRetries:        c.MaxRetries,
		RetryDelay:        c.RetryDelay,
		RequestsPerMinute: c.RequestsPerMinute,
	}
}

type SearchConfig struct {
	Weights search.Weights `mapstructure:"weights"`
	Limits  search.Limits  `mapstructure:"limits"`
}

type BuilderConfig struct {
	Workers int `mapstructure:"workers"`
	// ExcludeBuiltins drops calls to language builtins before resolution.
	ExcludeBuiltins bool `mapstructure:"exclude_builtins"`
	// Exclude lists extra callee names that never become edges.
	Exclude []string `mapstructure:"exclude"`
}

// Options converts the section into builder options.
func (c BuilderConfig) Options() []callgraph.BuilderOption {
	var sets [][]string
	if c.ExcludeBuiltins {
		sets = append(sets, callgraph.PythonBuiltins, callgraph.GoBuiltins)
	}
	if len(c.Exclude) > 0 {
		sets = append(sets, c.Exclude)
	}
	exclude := callgraph.ExcludeFunc(callgraph.ExcludeNothing)
	if len(sets) > 0 {
		exclude = callgraph.NameSet(sets...)
	}
	return []callgraph.BuilderOption{
		callgraph.WithExclude(exclude),
		callgraph.WithWorkerCount(c.Workers),
	}
}

// CacheConfig locates the last-good record cache. An empty path disables it.
type CacheConfig struct {
	Path string `mapstructure:"path"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type TemporalConfig struct {
	Host      string `mapstructure:"host"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	ServiceName string  `mapstructure:"service_name"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

// Options converts the section for observability.InitTracing.
func (c TracingConfig) Options() *observability.TracingConfig {
	tc := observability.DefaultTracingConfig()
	tc.OTLPEndpoint = c.Endpoint
	if c.ServiceName != "" {
		tc.ServiceName = c.ServiceName
	}
	if c.Environment != "" {
		tc.Environment = c.Environment
	}
	tc.SampleRate = c.SampleRate
	return tc
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Options converts the section for observability.NewLogger.
func (c LogConfig) Options() observability.LogConfig {
	return observability.LogConfig{Level: c.Level, Format: c.Format}
}

// defaults are registered with viper so every key can also be set through
// the environment.
var defaults = map[string]any{
	"records":                        "",
	"graph.uri":                      "",
	"graph.username":                 "neo4j",
	"graph.password":                 "",
	"graph.database":                 "",
	"vector.host":                    "",
	"vector.port":                    6334,
	"vector.collection":              "callsight_functions",
	"vector.batch_size":              64,
	"embedding.provider":             "none",
	"embedding.model":                "",
	"embedding.api_key":              "",
	"embedding.base_url":             "",
	"embedding.timeout":              30 * time.Second,
	"embedding.max_retries":          3,
	"embedding.retry_delay":          500 * time.Millisecond,
	"embedding.requests_per_minute":  0,
	"search.weights.depth_decay":     search.DefaultWeights().DepthDecay,
	"search.weights.dependent_boost": search.DefaultWeights().DependentBoost,
	"search.weights.max_boost":       search.DefaultWeights().MaxBoost,
	"search.limits.default_limit":    search.DefaultLimits().DefaultLimit,
	"search.limits.max_limit":        search.DefaultLimits().MaxLimit,
	"search.limits.default_depth":    search.DefaultLimits().DefaultDepth,
	"search.limits.max_depth":        search.DefaultLimits().MaxDepth,
	"builder.workers":                0,
	"builder.exclude_builtins":       true,
	"builder.exclude":                []string{},
	"cache.path":                     "",
	"server.addr":                    ":8080",
	"server.read_timeout":            15 * time.Second,
	"server.write_timeout":           30 * time.Second,
	"server.shutdown_timeout":        10 * time.Second,
	"temporal.host":                  "localhost:7233",
	"temporal.namespace":             "default",
	"temporal.task_queue":            "callsight-index",
	"tracing.endpoint":               "",
	"tracing.service_name":           "callsight",
	"tracing.environment":            "development",
	"tracing.sample_rate":            1.0,
	"log.level":                      "info",
	"log.format":                     "text",
}

// Validate checks configuration for issues and returns warnings.
func (c *Config) Validate() []string {
	var warnings []string

	// Check for empty API key with a hosted provider (skip "none" and local ollama)
	switch c.Embedding.Provider {
	case "", "none", "ollama", "custom":
	default:
		if c.Embedding.APIKey == "" {
			warnings = append(warnings, fmt.Sprintf("embedding provider '%s' is configured but api_key is empty", c.Embedding.Provider))
		}
	}

	if c.Vector.Host != "" && (c.Embedding.Provider == "" || c.Embedding.Provider == "none") {
		warnings = append(warnings, "vector.host is set but no embedding provider is configured; search will use keyword matching")
	}

	l := c.Search.Limits
	if l.DefaultLimit > l.MaxLimit && l.MaxLimit > 0 {
		warnings = append(warnings, fmt.Sprintf("search default_limit %d exceeds max_limit %d", l.DefaultLimit, l.MaxLimit))
	}
	if l.DefaultDepth > l.MaxDepth && l.MaxDepth > 0 {
		warnings = append(warnings, fmt.Sprintf("search default_depth %d exceeds max_depth %d", l.DefaultDepth, l.MaxDepth))
	}

	if c.Builder.Workers < 0 {
		warnings = append(warnings, fmt.Sprintf("builder workers %d is negative", c.Builder.Workers))
	}

	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		warnings = append(warnings, fmt.Sprintf("tracing sample_rate %.2f is outside [0.0, 1.0]", c.Tracing.SampleRate))
	}

	if _, err := observability.ParseLevel(c.Log.Level); err != nil {
		warnings = append(warnings, err.Error())
	}

	return warnings
}

// Load reads configuration from an optional file and the environment
// (CALLSIGHT_ prefix, dots replaced by underscores).
func Load(path string) (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix("CALLSIGHT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	// Weights outside their range would reorder fused results, so they are
	// fatal rather than a warning.
	if err := cfg.Search.Weights.Validate(); err != nil {
		return nil, fmt.Errorf("search weights: %w", err)
	}

	// Validate configuration and print warnings
	if warnings := cfg.Validate(); len(warnings) > 0 {
		for _, warning := range warnings {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
		}
	}

	return &cfg, nil
}
