// internal/dialogue/generate-answer/config.go
package generateanswer

import "medchat-engine/internal/models"

type Config struct {
	Catalog *models.Catalog
	// Encoding names the tiktoken encoding used for token usage.
	Encoding string
}

func LoadConfig() *Config {
	return &Config{
		Catalog:  models.DefaultCatalog(),
		Encoding: "cl100k_base",
	}
}
