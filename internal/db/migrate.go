package db

import (
	"tradehook/internal/models"
)

// AutoMigrate creates or updates the owners, strategies and executions tables.
func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil {
		return nil
	}
	return db.Gorm.AutoMigrate(
		&models.Owner{},
		&models.Strategy{},
		&models.Execution{},
	)
}
