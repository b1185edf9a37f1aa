package state

import (
	"fmt"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OpenSQLite establishes the local state database and performs schema
// migrations. This file is the browser-storage analogue: it only ever holds
// the current identity record.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("state database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&identityRecord{}); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Debug("state database initialized", zap.String("path", path))
	}

	return db, nil
}
