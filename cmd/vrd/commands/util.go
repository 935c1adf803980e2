package commands

import (
	"github.com/vrlabs/vrd/internal/config"
	"github.com/vrlabs/vrd/internal/logger"
)

// InitLogger initializes the package-level structured logger from cfg.
func InitLogger(cfg config.Config) error {
	logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	return nil
}
