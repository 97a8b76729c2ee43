// internal/dialogue/orchestrate-turn/config.go
package orchestrateturn

import (
	"time"

	"medchat-engine/internal/knowledge"
	"medchat-engine/internal/models"
)

type Config struct {
	Catalog         *models.Catalog
	TurnTimeout     time.Duration
	DefaultLanguage models.Language
	Limits          knowledge.Limits
	// Backend labels retrieval failures (memory, elasticsearch).
	Backend string
}

func LoadConfig() *Config {
	return &Config{
		Catalog:         models.DefaultCatalog(),
		TurnTimeout:     20 * time.Second,
		DefaultLanguage: models.LanguageHebrew,
		Limits: knowledge.Limits{
			MaxResults: knowledge.DefaultMaxResults,
			MaxChars:   knowledge.DefaultMaxChars,
		},
		Backend: "memory",
	}
}
