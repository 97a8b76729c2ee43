// internal/dialogue/evaluate-gating/config.go
package evaluategating

import "medchat-engine/internal/models"

type Config struct {
	// Table maps each answer type to the profile fields it needs, in the
	// order they are asked for.
	Table   map[models.AnswerType][]models.Field
	Catalog *models.Catalog
}

func LoadConfig() *Config {
	return &Config{
		Table:   models.DefaultGatingTable(),
		Catalog: models.DefaultCatalog(),
	}
}
