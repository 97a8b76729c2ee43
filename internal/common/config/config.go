// internal/common/config/config.go
package config

import (
	"fmt"

	"medchat-engine/internal/models"
)

// Config is the main application configuration struct.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Knowledge KnowledgeConfig `mapstructure:"knowledge"`
	Dialogue  DialogueConfig  `mapstructure:"dialogue"`
	Catalog   models.Catalog  `mapstructure:"catalog"`
	GenAI     GenAIConfig     `mapstructure:"genai"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Port            int     `mapstructure:"port"`
	ReadTimeout     int     `mapstructure:"read_timeout"`     // milliseconds
	WriteTimeout    int     `mapstructure:"write_timeout"`    // milliseconds
	ShutdownTimeout int     `mapstructure:"shutdown_timeout"` // milliseconds
	RateLimitRPS    float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst  int     `mapstructure:"rate_limit_burst"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

func (p PostgresConfig) Configured() bool {
	return p.Host != ""
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	URL       string   `mapstructure:"url"` // Single URL for backwards compatibility
}

// GetURL returns the first address or the URL field
func (e ElasticsearchConfig) GetURL() string {
	if e.URL != "" {
		return e.URL
	}
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return ""
}

func (e ElasticsearchConfig) GetAddresses() []string {
	if len(e.Addresses) > 0 {
		return e.Addresses
	}
	if e.URL != "" {
		return []string{e.URL}
	}
	return nil
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// --- Dialogue engine ---

const (
	BackendMemory        = "memory"
	BackendElasticsearch = "elasticsearch"

	SourceFile     = "file"
	SourcePostgres = "postgres"
)

// KnowledgeConfig selects where the corpus comes from and how it is queried.
type KnowledgeConfig struct {
	Backend       string `mapstructure:"backend"` // memory | elasticsearch
	Source        string `mapstructure:"source"`  // file | postgres
	CorpusPath    string `mapstructure:"corpus_path"`
	Watch         bool   `mapstructure:"watch"`
	WatchDebounce int    `mapstructure:"watch_debounce"` // milliseconds
	Index         string `mapstructure:"index"`
	Table         string `mapstructure:"table"`
	MaxResults    int    `mapstructure:"max_results"`
	MaxChars      int    `mapstructure:"max_chars"`
	CacheEnabled  bool   `mapstructure:"cache_enabled"`
	CacheTTL      int    `mapstructure:"cache_ttl"` // milliseconds
}

type DialogueConfig struct {
	TurnTimeout       int                 `mapstructure:"turn_timeout"` // milliseconds
	DefaultLanguage   string              `mapstructure:"default_language"`
	Gating            map[string][]string `mapstructure:"gating"`
	TokenizerEncoding string              `mapstructure:"tokenizer_encoding"`
}

// GatingTable converts the configured table to typed form.
func (d DialogueConfig) GatingTable() map[models.AnswerType][]models.Field {
	out := make(map[models.AnswerType][]models.Field, len(d.Gating))
	for k, fields := range d.Gating {
		typed := make([]models.Field, len(fields))
		for i, f := range fields {
			typed[i] = models.Field(f)
		}
		out[models.AnswerType(k)] = typed
	}
	return out
}

// GenAIConfig configures the optional model-backed analysis endpoint.
type GenAIConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	BaseURL    string `mapstructure:"base_url"`
	APIKey     string `mapstructure:"api_key"`
	Timeout    int    `mapstructure:"timeout"` // milliseconds
	MaxRetries int    `mapstructure:"max_retries"`
}

// TelemetryConfig points at the metrics collaborator's ingest endpoint.
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	MetricsURL  string `mapstructure:"metrics_url"`
	Timeout     int    `mapstructure:"timeout"` // milliseconds
	QueueSize   int    `mapstructure:"queue_size"`
	ServiceName string `mapstructure:"service_name"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
