package config

import (
	"fmt"

	"go-steam-librarian/internal/models"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"
)

// LoadConfig reads the configuration from the specified path (defaulting to
// "config.toml") and populates the provided models.Config struct.
// It returns the loaded config and any error encountered.
func LoadConfig(configFilePath string) (models.Config, error) {
	if configFilePath == "" {
		configFilePath = "config.toml" // Default path
	}
	var cfg models.Config
	_, err := toml.DecodeFile(configFilePath, &cfg)
	if err != nil {
		return models.Config{}, fmt.Errorf("error loading config file %s: %w", configFilePath, err)
	}

	if cfg.SavePath == "" {
		log.Warn("Warning: SavePath is not set in config file")
	}
	if cfg.DatabasePath == "" {
		log.Warn("Warning: DatabasePath is not set in config file")
	}

	log.Infof("Configuration loaded from %s", configFilePath)
	return cfg, nil
}
