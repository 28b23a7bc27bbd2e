// Package db opens the database connection used by the whole service
package db

import (
	"errors"
	"fmt"

	"nanohost/storage-api/internal/model"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type Config struct {
	Driver string
	DSN    string
}

func New(cfg Config) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, errors.New("unsupported db driver " + cfg.Driver)
	}

	db, err := gorm.Open(dialector)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database, %w", cfg.Driver, err)
	}

	err = db.AutoMigrate(model.File{}, model.Order{}, model.Advertisement{}, model.DerivationCounter{})
	if err != nil {
		return nil, fmt.Errorf("failed to automigrate tables, %w", err)
	}

	// The counter row must exist before the first invoice comes in
	err = db.FirstOrCreate(&model.DerivationCounter{ID: 1}, model.DerivationCounter{ID: 1}).Error
	if err != nil {
		return nil, fmt.Errorf("failed to seed derivation counter, %w", err)
	}

	return db, nil
}
