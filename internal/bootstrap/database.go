package bootstrap

import (
	"fmt"

	"github.com/promptops/insight-pipeline/internal/config"
	"github.com/promptops/insight-pipeline/internal/logger"
	"github.com/promptops/insight-pipeline/internal/storage"
)

// SetupDatabase creates the Postgres-backed store.
func SetupDatabase(cfg *config.Config, log logger.Logger) (*storage.Store, error) {
	store, err := storage.New(cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("database connection: %w", err)
	}
	return store, nil
}
