package database

import (
	"fmt"
	"tokenexecutor/src/database/migrations"
	"tokenexecutor/src/model"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// MainDB is the primary read/write database connection used by the application.
var MainDB *gorm.DB

// InitMainDB initializes the main (read/write) database connection and runs migrations.
// This should be called once at application startup (e.g. in main()).
func InitMainDB() error {
	config := GetConfig()
	db, err := open(config.DatabaseURLMain, config, false)
	if err != nil {
		return err
	}

	// Assign to the global variable only after a successful connection.
	MainDB = db

	logrus.WithField("driver", db.Dialector.Name()).Info("[database] MainDB connection established")

	if err := Migrate(MainDB); err != nil {
		return err
	}

	logrus.Info("[database] MainDB migrations completed")

	return nil
}

// Migrate runs schema and data migrations on db. Tests call it on in-memory sqlite.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.Position{},
		&model.PriceSample{},
		&model.TradeConfig{},
		&model.BlacklistEntry{},
		&model.ExecutionLog{},
		&model.Exception{},
		&migrations.DataMigration{},
	); err != nil {
		return fmt.Errorf("failed to run migrations on MainDB: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		return fmt.Errorf("failed to run data migrations on MainDB: %w", err)
	}
	return nil
}
