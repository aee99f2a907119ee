package repository

import (
	"context"
	"errors"

	"tokenexecutor/src/database"
	"tokenexecutor/src/model"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PriceSampleRepository struct {
	db *gorm.DB
}

func NewPriceSampleRepository() *PriceSampleRepository {
	return &PriceSampleRepository{db: database.MainDB}
}

func (r *PriceSampleRepository) WithDB(db *gorm.DB) *PriceSampleRepository {
	return &PriceSampleRepository{db: db}
}

// Append stores a sample. A second sample for the same position and timestamp is ignored.
func (r *PriceSampleRepository) Append(ctx context.Context, sample *model.PriceSample) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(sample).Error
	if err != nil {
		logger.WithFields(logger.Fields{
			"repo":        "PriceSampleRepository",
			"op":          "Append",
			"position_id": sample.PositionID,
		}).WithError(err).Error("Failed to append price sample")
		return err
	}
	return nil
}

func (r *PriceSampleRepository) ListByPosition(ctx context.Context, positionID uint, limit int) ([]model.PriceSample, error) {
	if limit <= 0 {
		limit = 500
	}
	var rows []model.PriceSample
	err := r.db.WithContext(ctx).
		Where("position_id = ?", positionID).
		Order("sampled_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		logger.WithFields(logger.Fields{
			"repo":        "PriceSampleRepository",
			"op":          "ListByPosition",
			"position_id": positionID,
		}).WithError(err).Error("Failed to list price samples")
		return nil, err
	}
	return rows, nil
}

// LatestForToken returns the newest sample for a token across positions, or (nil, nil).
func (r *PriceSampleRepository) LatestForToken(ctx context.Context, tokenAddress string) (*model.PriceSample, error) {
	var sample model.PriceSample
	err := r.db.WithContext(ctx).
		Where("token_address = ?", tokenAddress).
		Order("sampled_at DESC").
		First(&sample).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sample, nil
}
