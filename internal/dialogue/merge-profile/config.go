// internal/dialogue/merge-profile/config.go
package mergeprofile

import "medchat-engine/internal/models"

type Config struct {
	Catalog *models.Catalog
}

func LoadConfig() *Config {
	return &Config{
		Catalog: models.DefaultCatalog(),
	}
}
