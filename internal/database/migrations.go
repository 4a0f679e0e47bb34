package database

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/charlesng35/engageflow/internal/models"
)

// Models lists every persistent model in dependency order.
func Models() []any {
	return []any{
		&models.Company{},
		&models.User{},
		&models.Contact{},
		&models.Queue{},
		&models.Ticket{},
		&models.FlowBuilder{},
		&models.FlowNode{},
		&models.FlowBuilderExecution{},
		&models.ExecutionLog{},
		&models.Appointment{},
		&models.Message{},
		&models.Email{},
		&models.CacheEntry{},
		&models.SystemSetting{},
	}
}

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	if db == nil {
		return errors.New("nil database handle")
	}
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
