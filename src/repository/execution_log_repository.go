package repository

import (
	"context"
	"errors"

	"tokenexecutor/src/database"
	"tokenexecutor/src/model"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ExecutionLogRepository persists swap attempts.
type ExecutionLogRepository struct {
	db *gorm.DB
}

func NewExecutionLogRepository() *ExecutionLogRepository {
	return &ExecutionLogRepository{db: database.MainDB}
}

func (r *ExecutionLogRepository) WithDB(db *gorm.DB) *ExecutionLogRepository {
	return &ExecutionLogRepository{db: db}
}

func (r *ExecutionLogRepository) Create(ctx context.Context, l *model.ExecutionLog) error {
	if err := r.db.WithContext(ctx).Create(l).Error; err != nil {
		logger.WithFields(logger.Fields{
			"repo":  "ExecutionLogRepository",
			"op":    "Create",
			"token": l.TokenAddress,
			"side":  l.Side,
		}).WithError(err).Error("Failed to create execution log")
		return err
	}
	return nil
}

// Save writes every field of an existing log.
func (r *ExecutionLogRepository) Save(ctx context.Context, l *model.ExecutionLog) error {
	if err := r.db.WithContext(ctx).Save(l).Error; err != nil {
		logger.WithFields(logger.Fields{
			"repo":   "ExecutionLogRepository",
			"op":     "Save",
			"id":     l.ID,
			"status": l.Status,
		}).WithError(err).Error("Failed to save execution log")
		return err
	}

	logger.WithFields(logger.Fields{
		"repo":   "ExecutionLogRepository",
		"op":     "Save",
		"id":     l.ID,
		"tx_ref": l.TxRef,
		"status": l.Status,
	}).Debug("Execution log saved")
	return nil
}

// LastBuyAttempt returns the newest buy attempt for a token regardless of its outcome.
func (r *ExecutionLogRepository) LastBuyAttempt(ctx context.Context, tokenAddress string) (*model.ExecutionLog, error) {
	var l model.ExecutionLog
	err := r.db.WithContext(ctx).
		Where("token_address = ? AND side = ?", tokenAddress, model.ExecutionSideBuy).
		Order("requested_at DESC").
		First(&l).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &l, nil
}

// FindUnresolved lists pending or unconfirmed attempts for a token and side.
// positionID narrows sells to a single position when non-nil.
func (r *ExecutionLogRepository) FindUnresolved(ctx context.Context, tokenAddress, side string, positionID *uint) ([]model.ExecutionLog, error) {
	q := r.db.WithContext(ctx).
		Where("token_address = ? AND side = ? AND status IN ?", tokenAddress, side,
			[]string{model.ExecutionStatusPending, model.ExecutionStatusUnconfirmed})
	if positionID != nil {
		q = q.Where("position_id = ?", *positionID)
	}

	var rows []model.ExecutionLog
	if err := q.Order("requested_at ASC").Find(&rows).Error; err != nil {
		logger.WithFields(logger.Fields{
			"repo":  "ExecutionLogRepository",
			"op":    "FindUnresolved",
			"token": tokenAddress,
			"side":  side,
		}).WithError(err).Error("Failed to list unresolved executions")
		return nil, err
	}
	return rows, nil
}
