// package migrations
package migrations

import (
	"errors"
	"fmt"
	"time"

	"tokenexecutor/src/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DataMigration tracks executed data migrations.
// Table name is fixed to avoid collisions with other models.
type DataMigration struct {
	ID        string    `gorm:"primaryKey;size:200;column:id"`
	AppliedAt time.Time `gorm:"not null;column:applied_at"`
}

func (DataMigration) TableName() string { return "data_migrations" }

func ensureDataMigrationsTable(db *gorm.DB) error {
	return db.AutoMigrate(&DataMigration{})
}

// RunOnce runs fn only if migrationID was not executed before.
// It records the migration as executed only after fn succeeds.
func RunOnce(db *gorm.DB, migrationID string, fn func(*gorm.DB) error) error {
	if db == nil {
		return nil
	}
	if migrationID == "" {
		return fmt.Errorf("migration id is empty")
	}
	if fn == nil {
		return fmt.Errorf("migration %q has nil fn", migrationID)
	}

	if err := ensureDataMigrationsTable(db); err != nil {
		return fmt.Errorf("ensure data migrations table: %w", err)
	}

	return db.Transaction(func(tx *gorm.DB) error {
		var m DataMigration
		err := tx.First(&m, "id = ?", migrationID).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("check migration %q: %w", migrationID, err)
		}

		if err := fn(tx); err != nil {
			return fmt.Errorf("run migration %q: %w", migrationID, err)
		}

		rec := DataMigration{
			ID:        migrationID,
			AppliedAt: time.Now().UTC(),
		}
		if err := tx.Create(&rec).Error; err != nil {
			return fmt.Errorf("record migration %q: %w", migrationID, err)
		}

		return nil
	})
}

// Run executes all data migrations that go beyond schema auto-migrations.
// Append new migrations at the bottom with a stable unique id.
func Run(db *gorm.DB) error {
	if db == nil {
		return nil
	}

	if err := RunOnce(db, "00001_positions_single_open_per_token", uniqueOpenPositionPerToken); err != nil {
		return err
	}

	// Keys added in later releases must reach existing databases too, so this runs every start.
	if err := seedTradeConfig(db); err != nil {
		return err
	}

	return nil
}

// uniqueOpenPositionPerToken backs the Buy Service check with a partial unique index.
// Both postgres and sqlite support partial indexes.
func uniqueOpenPositionPerToken(db *gorm.DB) error {
	return db.Exec(
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_positions_open_token ON positions (token_address) WHERE status = 'OPEN'",
	).Error
}

func seedTradeConfig(db *gorm.DB) error {
	rows := make([]model.TradeConfig, len(model.DefaultTradeConfig))
	copy(rows, model.DefaultTradeConfig)
	now := time.Now().UTC()
	for i := range rows {
		rows[i].UpdatedAt = now
	}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error; err != nil {
		return fmt.Errorf("seed trade_config: %w", err)
	}
	return nil
}
