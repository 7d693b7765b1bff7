// Package bootstrap builds the catalog backend and optional database shared by the commands.
package bootstrap

import (
	"context"
	"fmt"
	"log"

	"github.com/shinyyama/fleamarket-backend/internal/catalog"
	"github.com/shinyyama/fleamarket-backend/internal/config"
	"github.com/shinyyama/fleamarket-backend/internal/db"
	"gorm.io/gorm"
)

// OpenDB connects when DB settings are present. A nil *gorm.DB means no database.
func OpenDB(cfg *config.Config) (*gorm.DB, error) {
	if !cfg.HasDB() {
		return nil, nil
	}
	conn, err := db.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	return conn, nil
}

// OpenStore builds the catalog store selected by STORE_BACKEND.
func OpenStore(ctx context.Context, cfg *config.Config, gdb *gorm.DB) (catalog.Store, error) {
	switch cfg.StoreBackend {
	case config.StoreSheets:
		s, err := catalog.NewSheetsStore(ctx, cfg.GoogleCredentialsFile, cfg.SheetID, cfg.SheetName)
		if err != nil {
			return nil, fmt.Errorf("open sheets store: %w", err)
		}
		log.Printf("[bootstrap] store=sheets sheet=%s", cfg.SheetName)
		return s, nil
	case config.StoreMySQL:
		if gdb == nil {
			return nil, fmt.Errorf("store backend %q needs a database", cfg.StoreBackend)
		}
		s, err := catalog.NewSQLStore(gdb)
		if err != nil {
			return nil, fmt.Errorf("open sql store: %w", err)
		}
		log.Printf("[bootstrap] store=mysql")
		return s, nil
	case config.StoreMemory:
		log.Printf("[bootstrap] store=memory (data is lost on restart)")
		return catalog.NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}
