// internal/common/config/loader.go
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"medchat-engine/internal/models"
)

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	// SERVER_PORT overrides server.port, KNOWLEDGE_CORPUS_PATH overrides knowledge.corpus_path
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setViperDefaults(v)
	return v
}

// setViperDefaults registers scalar keys so AutomaticEnv can override them
// even when the yaml file does not mention them.
func setViperDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "chat-service")
	v.SetDefault("app.environment", "development")
	v.SetDefault("server.port", 8000)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("knowledge.backend", BackendMemory)
	v.SetDefault("knowledge.source", SourceFile)
	v.SetDefault("knowledge.corpus_path", "")
	v.SetDefault("knowledge.watch", false)
	v.SetDefault("knowledge.cache_enabled", false)
	v.SetDefault("dialogue.turn_timeout", 20000)
	v.SetDefault("dialogue.default_language", string(models.LanguageHebrew))
	v.SetDefault("genai.enabled", false)
	v.SetDefault("genai.base_url", "")
	v.SetDefault("genai.api_key", "")
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.metrics_url", "http://127.0.0.1:8031")
	v.SetDefault("database.postgres.host", "")
	v.SetDefault("database.postgres.user", "")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.redis.address", "")
	v.SetDefault("database.elasticsearch.url", "")
}

func Load() (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigName("config")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // optional per-environment overlay

	return finish(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return finish(v)
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{".env", "../.env", "../../.env"}
	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			// existing environment variables win over .env
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			if expanded := os.ExpandEnv(strVal); expanded != strVal && expanded != "" {
				v.Set(key, expanded)
			}
		}
	}
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "chat-service"
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 10000
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30000
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15000
	}
	if cfg.Server.RateLimitBurst == 0 && cfg.Server.RateLimitRPS > 0 {
		cfg.Server.RateLimitBurst = int(cfg.Server.RateLimitRPS) + 1
	}

	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 10
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 2
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.Elasticsearch.URL == "" && len(cfg.Database.Elasticsearch.Addresses) > 0 {
		cfg.Database.Elasticsearch.URL = cfg.Database.Elasticsearch.Addresses[0]
	}

	if cfg.Knowledge.Backend == "" {
		cfg.Knowledge.Backend = BackendMemory
	}
	if cfg.Knowledge.Source == "" {
		cfg.Knowledge.Source = SourceFile
	}
	if cfg.Knowledge.Index == "" {
		cfg.Knowledge.Index = "knowledge_chunks"
	}
	if cfg.Knowledge.Table == "" {
		cfg.Knowledge.Table = "knowledge_chunks"
	}
	if cfg.Knowledge.MaxResults == 0 {
		cfg.Knowledge.MaxResults = 3
	}
	if cfg.Knowledge.MaxChars == 0 {
		cfg.Knowledge.MaxChars = 3500
	}
	if cfg.Knowledge.CacheTTL == 0 {
		cfg.Knowledge.CacheTTL = 300000
	}
	if cfg.Knowledge.WatchDebounce == 0 {
		cfg.Knowledge.WatchDebounce = 250
	}

	if cfg.Dialogue.TurnTimeout == 0 {
		cfg.Dialogue.TurnTimeout = 20000
	}
	if cfg.Dialogue.DefaultLanguage == "" {
		cfg.Dialogue.DefaultLanguage = string(models.LanguageHebrew)
	}
	if cfg.Dialogue.TokenizerEncoding == "" {
		cfg.Dialogue.TokenizerEncoding = "cl100k_base"
	}
	if cfg.Dialogue.Gating == nil {
		cfg.Dialogue.Gating = make(map[string][]string)
	}
	// answer types missing from the configured table keep the default rule
	for answerType, fields := range models.DefaultGatingTable() {
		if _, ok := cfg.Dialogue.Gating[string(answerType)]; ok {
			continue
		}
		names := make([]string, len(fields))
		for i, f := range fields {
			names[i] = string(f)
		}
		cfg.Dialogue.Gating[string(answerType)] = names
	}

	if len(cfg.Catalog.Providers) == 0 && len(cfg.Catalog.Tiers) == 0 && len(cfg.Catalog.Categories) == 0 {
		cfg.Catalog = *models.DefaultCatalog()
	}

	if cfg.GenAI.Timeout == 0 {
		cfg.GenAI.Timeout = 8000
	}
	if cfg.GenAI.MaxRetries == 0 {
		cfg.GenAI.MaxRetries = 2
	}

	if cfg.Telemetry.MetricsURL == "" {
		cfg.Telemetry.MetricsURL = "http://127.0.0.1:8031"
	}
	if cfg.Telemetry.Timeout == 0 {
		cfg.Telemetry.Timeout = 2000
	}
	if cfg.Telemetry.QueueSize == 0 {
		cfg.Telemetry.QueueSize = 256
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "chat-service"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	if err := cfg.Catalog.Validate(); err != nil {
		return err
	}

	for answerType, fields := range cfg.Dialogue.Gating {
		if models.ParseAnswerType(answerType) != models.AnswerType(answerType) {
			return fmt.Errorf("dialogue.gating: unknown answer type %q", answerType)
		}
		for _, f := range fields {
			if !models.IsKnownField(models.Field(f)) {
				return fmt.Errorf("dialogue.gating.%s: unknown field %q", answerType, f)
			}
		}
	}

	if lang := models.Language(cfg.Dialogue.DefaultLanguage); !lang.Valid() {
		return fmt.Errorf("dialogue.default_language must be he or en, got %q", cfg.Dialogue.DefaultLanguage)
	}

	switch cfg.Knowledge.Backend {
	case BackendMemory:
		switch cfg.Knowledge.Source {
		case SourceFile:
			if cfg.Knowledge.CorpusPath == "" {
				return fmt.Errorf("knowledge.corpus_path is required for the file source")
			}
		case SourcePostgres:
			if !cfg.Database.Postgres.Configured() {
				return fmt.Errorf("database.postgres.host is required for the postgres source")
			}
		default:
			return fmt.Errorf("knowledge.source must be file or postgres, got %q", cfg.Knowledge.Source)
		}
	case BackendElasticsearch:
		if len(cfg.Database.Elasticsearch.GetAddresses()) == 0 {
			return fmt.Errorf("database.elasticsearch.addresses or url is required for the elasticsearch backend")
		}
	default:
		return fmt.Errorf("knowledge.backend must be memory or elasticsearch, got %q", cfg.Knowledge.Backend)
	}

	if cfg.Knowledge.CacheEnabled && cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required when knowledge.cache_enabled is set")
	}

	if cfg.GenAI.Enabled && cfg.GenAI.BaseURL == "" {
		return fmt.Errorf("genai.base_url is required when genai is enabled")
	}

	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
