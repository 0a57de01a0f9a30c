package db

import (
	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/courier-forge/courier/internal/config"
	"github.com/courier-forge/courier/pkg/database"
	"github.com/courier-forge/courier/pkg/models"
)

// NewDB returns a new migrated database.
// It uses the shared pkg/database connection logic.
func NewDB(cfg config.Postgres, log hclog.Logger) (*gorm.DB, error) {
	dbConfig := database.Config{
		Host:     cfg.Host,
		Port:     cfg.Port,
		User:     cfg.User,
		Password: cfg.Password,
		DBName:   cfg.DBName,
		SSLMode:  cfg.SSLMode,
	}

	db, err := database.Connect(dbConfig, log)
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(models.ModelsToAutoMigrate()...); err != nil {
		return nil, err
	}

	return db, nil
}
