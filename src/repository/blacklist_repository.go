package repository

import (
	"context"
	"errors"

	"tokenexecutor/src/database"
	"tokenexecutor/src/model"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type BlacklistRepository struct {
	db *gorm.DB
}

func NewBlacklistRepository() *BlacklistRepository {
	return &BlacklistRepository{db: database.MainDB}
}

func (r *BlacklistRepository) WithDB(db *gorm.DB) *BlacklistRepository {
	return &BlacklistRepository{db: db}
}

// Add blacklists a token. Re-adding keeps the worst recorded loss.
func (r *BlacklistRepository) Add(ctx context.Context, entry *model.BlacklistEntry) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.BlacklistEntry
		err := tx.Where("token_address = ?", entry.TokenAddress).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(entry).Error
		}
		if err != nil {
			return err
		}

		if existing.LossPercentage.Valid && entry.LossPercentage.Valid &&
			existing.LossPercentage.Decimal.LessThan(entry.LossPercentage.Decimal) {
			entry.LossPercentage = existing.LossPercentage
			entry.PositionID = existing.PositionID
		}
		return tx.Save(entry).Error
	})
	if err != nil {
		logger.WithFields(logger.Fields{
			"repo":  "BlacklistRepository",
			"op":    "Add",
			"token": entry.TokenAddress,
		}).WithError(err).Error("Failed to blacklist token")
		return err
	}

	logger.WithFields(logger.Fields{
		"repo":   "BlacklistRepository",
		"op":     "Add",
		"token":  entry.TokenAddress,
		"reason": entry.Reason,
	}).Info("Token blacklisted")
	return nil
}

// Remove clears a token. It reports whether a row existed.
func (r *BlacklistRepository) Remove(ctx context.Context, tokenAddress string) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("token_address = ?", tokenAddress).
		Delete(&model.BlacklistEntry{})
	if res.Error != nil {
		logger.WithFields(logger.Fields{
			"repo":  "BlacklistRepository",
			"op":    "Remove",
			"token": tokenAddress,
		}).WithError(res.Error).Error("Failed to clear blacklist entry")
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *BlacklistRepository) List(ctx context.Context) ([]model.BlacklistEntry, error) {
	var rows []model.BlacklistEntry
	if err := r.db.WithContext(ctx).Order("blacklisted_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
