package metadata

import (
	"fmt"

	"github.com/fleetvis/markerpipe/internal/config"
)

// NewSource creates a metadata source based on configuration.
func NewSource(cfg config.MetadataConfig) (Source, error) {
	switch cfg.Type {
	case "memory":
		return NewMemorySource(), nil
	case "sqlite":
		return NewSQLite(cfg.Path)
	case "postgres":
		return NewPostgres(cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.Database)
	default:
		return nil, fmt.Errorf("unknown metadata store type: %s", cfg.Type)
	}
}
