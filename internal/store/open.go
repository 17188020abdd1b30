package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"StockHistory/internal/config"
)

// Open builds the document store selected by cfg.Store.Driver.
func Open(ctx context.Context, cfg *config.Config) (DocumentStore, error) {
	switch cfg.Store.Driver {
	case config.StoreSQLite:
		if dir := filepath.Dir(cfg.Store.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("create sqlite dir: %w", err)
			}
		}
		return NewSQLiteStore(cfg.Store.SQLitePath)
	case config.StorePostgres:
		return NewPostgresStore(cfg.Store.PostgresDSN)
	case config.StoreFirestore:
		return NewFirestoreStore(ctx, cfg.Store.FirestoreProject, cfg.Store.CredentialsPath)
	case config.StoreMemory:
		return NewMemoryStore(), nil
	default:
		return nil, &config.Error{Field: "store.driver", Err: fmt.Errorf("unknown driver %q", cfg.Store.Driver)}
	}
}
