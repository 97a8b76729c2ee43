// internal/dialogue/classify-intent/config.go
package classifyintent

import "medchat-engine/internal/models"

type Config struct {
	Catalog         *models.Catalog
	DefaultLanguage models.Language
}

func LoadConfig() *Config {
	return &Config{
		Catalog:         models.DefaultCatalog(),
		DefaultLanguage: models.LanguageHebrew,
	}
}
