package main

import (
	"fmt"

	"github.com/goodtune/ttw/internal/config"
	"github.com/goodtune/ttw/internal/storage"
	"github.com/goodtune/ttw/internal/storage/bolt"
	"github.com/goodtune/ttw/internal/storage/redis"
	"github.com/goodtune/ttw/internal/storage/sqlite"
	"github.com/goodtune/ttw/internal/storage/tsv"
)

// openStorage opens the configured backend. Readers pass readOnly so that
// backends with file locks do not compete with the tracker for write access.
func openStorage(cfg config.StorageConfig, readOnly bool) (storage.Store, error) {
	storageType := cfg.Type
	if storageType == "" {
		storageType = "tsv"
	}

	switch storageType {
	case "tsv":
		return tsv.Open(cfg.Path)
	case "bolt":
		return bolt.Open(cfg.Path, bolt.Options{ReadOnly: readOnly})
	case "sqlite":
		return sqlite.Open(cfg.Path, readOnly)
	case "redis":
		return redis.Open(cfg.Redis)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", storageType)
	}
}
