package repository

import (
	"context"
	"time"

	"tokenexecutor/src/database"
	"tokenexecutor/src/model"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ConfigRepository reads and writes the trade_config key/value table.
type ConfigRepository struct {
	db *gorm.DB
}

func NewConfigRepository() *ConfigRepository {
	return &ConfigRepository{db: database.MainDB}
}

func (r *ConfigRepository) WithDB(db *gorm.DB) *ConfigRepository {
	return &ConfigRepository{db: db}
}

func (r *ConfigRepository) All(ctx context.Context) (map[string]string, error) {
	var rows []model.TradeConfig
	if err := r.db.WithContext(ctx).Find(&rows).Error; err != nil {
		logger.WithFields(logger.Fields{
			"repo": "ConfigRepository",
			"op":   "All",
		}).WithError(err).Error("Failed to load trade config")
		return nil, err
	}
	out := make(map[string]string, len(rows))
	for _, row := range rows {
		out[row.Key] = row.Value
	}
	return out, nil
}

// Set upserts a single key.
func (r *ConfigRepository) Set(ctx context.Context, key, value string) error {
	row := model.TradeConfig{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&row).Error
	if err != nil {
		logger.WithFields(logger.Fields{
			"repo": "ConfigRepository",
			"op":   "Set",
			"key":  key,
		}).WithError(err).Error("Failed to set trade config")
		return err
	}

	logger.WithFields(logger.Fields{
		"repo":  "ConfigRepository",
		"op":    "Set",
		"key":   key,
		"value": value,
	}).Info("Trade config updated")
	return nil
}
