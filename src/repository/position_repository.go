package repository

import (
	"context"
	"errors"
	"time"

	"tokenexecutor/src/database"
	"tokenexecutor/src/model"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// PositionRepository is the ledger of positions.
type PositionRepository struct {
	db *gorm.DB
}

func NewPositionRepository() *PositionRepository {
	return &PositionRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *PositionRepository) WithDB(db *gorm.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

func (r *PositionRepository) log(op string) *logger.Entry {
	return logger.WithFields(logger.Fields{
		"repo": "PositionRepository",
		"op":   op,
	})
}

// PositionSearchOptions filters List. Zero values are ignored.
type PositionSearchOptions struct {
	Status       model.PositionStatus
	TokenAddress string
	Limit        int
	Offset       int
}

// Create inserts a new position. A second OPEN position for the same token
// is reported as ErrOpenPositionExists.
func (r *PositionRepository) Create(ctx context.Context, pos *model.Position) error {
	if pos.Version == 0 {
		pos.Version = 1
	}
	err := r.db.WithContext(ctx).Create(pos).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			r.log("Create").WithField("token", pos.TokenAddress).Warn("Open position already exists")
			return ErrOpenPositionExists
		}
		r.log("Create").WithField("token", pos.TokenAddress).WithError(err).Error("Failed to create position")
		return err
	}

	r.log("Create").WithFields(logger.Fields{
		"id":     pos.ID,
		"token":  pos.TokenAddress,
		"status": pos.Status,
	}).Info("Position created")
	return nil
}

// FindByID returns (nil, nil) if not found.
func (r *PositionRepository) FindByID(ctx context.Context, id uint) (*model.Position, error) {
	var pos model.Position
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&pos).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.log("FindByID").WithField("id", id).WithError(err).Error("Failed to fetch position")
		return nil, err
	}
	return &pos, nil
}

// FindOpenByToken returns the OPEN position for a token, or (nil, nil).
func (r *PositionRepository) FindOpenByToken(ctx context.Context, tokenAddress string) (*model.Position, error) {
	var pos model.Position
	err := r.db.WithContext(ctx).
		Where("token_address = ? AND status = ?", tokenAddress, model.PositionStatusOpen).
		First(&pos).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.log("FindOpenByToken").WithField("token", tokenAddress).WithError(err).Error("Failed to fetch open position")
		return nil, err
	}
	return &pos, nil
}

func (r *PositionRepository) ListOpen(ctx context.Context) ([]model.Position, error) {
	return r.List(ctx, PositionSearchOptions{Status: model.PositionStatusOpen})
}

func (r *PositionRepository) List(ctx context.Context, opts PositionSearchOptions) ([]model.Position, error) {
	q := r.db.WithContext(ctx)
	if opts.Status != "" {
		q = q.Where("status = ?", opts.Status)
	}
	if opts.TokenAddress != "" {
		q = q.Where("token_address = ?", opts.TokenAddress)
	}
	q = q.Order("id DESC")
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	var rows []model.Position
	if err := q.Find(&rows).Error; err != nil {
		r.log("List").WithError(err).Error("Failed to list positions")
		return nil, err
	}

	r.log("List").WithFields(logger.Fields{
		"status":      opts.Status,
		"rows_return": len(rows),
	}).Debug("Positions listed")
	return rows, nil
}

// Close writes the sell side of pos and moves it to CLOSED. The update only
// applies while the row is still OPEN at pos.Version; otherwise ErrConcurrentUpdate.
func (r *PositionRepository) Close(ctx context.Context, pos *model.Position) error {
	if !pos.SellPrice.Valid || !pos.SellAmount.Valid || pos.SellTxRef == nil || pos.SellTime == nil || pos.SellReason == nil {
		return errors.New("close requires all sell fields")
	}

	res := r.db.WithContext(ctx).
		Model(&model.Position{}).
		Where("id = ? AND status = ? AND version = ?", pos.ID, model.PositionStatusOpen, pos.Version).
		Updates(map[string]interface{}{
			"sell_price":             pos.SellPrice,
			"sell_amount":            pos.SellAmount,
			"sell_tx_ref":            *pos.SellTxRef,
			"sell_time":              *pos.SellTime,
			"sell_reason":            *pos.SellReason,
			"profit_loss_amount":     pos.ProfitLossAmount,
			"profit_loss_percentage": pos.ProfitLossPercentage,
			"status":                 model.PositionStatusClosed,
			"version":                gorm.Expr("version + 1"),
			"updated_at":             time.Now().UTC(),
		})
	if res.Error != nil {
		r.log("Close").WithField("id", pos.ID).WithError(res.Error).Error("Failed to close position")
		return res.Error
	}
	if res.RowsAffected == 0 {
		r.log("Close").WithFields(logger.Fields{"id": pos.ID, "version": pos.Version}).Warn("Close matched no open row")
		return ErrConcurrentUpdate
	}

	pos.Status = model.PositionStatusClosed
	pos.Version++

	r.log("Close").WithFields(logger.Fields{
		"id":     pos.ID,
		"token":  pos.TokenAddress,
		"reason": *pos.SellReason,
	}).Info("Position closed")
	return nil
}

// CountBuysSince counts buys made by this process for a token since the given time.
// Wallet imports are not buys.
func (r *PositionRepository) CountBuysSince(ctx context.Context, tokenAddress string, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Position{}).
		Where("token_address = ? AND imported = ? AND buy_time >= ?", tokenAddress, false, since).
		Count(&count).Error
	if err != nil {
		r.log("CountBuysSince").WithField("token", tokenAddress).WithError(err).Error("Failed to count buys")
		return 0, err
	}
	return count, nil
}

// LastProfitableSellTime returns the sell time of the latest CLOSED position with a
// positive P&L, or nil.
func (r *PositionRepository) LastProfitableSellTime(ctx context.Context, tokenAddress string) (*time.Time, error) {
	var pos model.Position
	err := r.db.WithContext(ctx).
		Where("token_address = ? AND status = ? AND profit_loss_percentage > 0", tokenAddress, model.PositionStatusClosed).
		Order("sell_time DESC").
		First(&pos).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.log("LastProfitableSellTime").WithField("token", tokenAddress).WithError(err).Error("Failed to fetch last profitable sell")
		return nil, err
	}
	return pos.SellTime, nil
}

func (r *PositionRepository) ExistsBySuggestionID(ctx context.Context, suggestionID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Position{}).
		Where("suggestion_id = ?", suggestionID).
		Count(&count).Error
	if err != nil {
		r.log("ExistsBySuggestionID").WithField("suggestion_id", suggestionID).WithError(err).Error("Failed to check suggestion")
		return false, err
	}
	return count > 0, nil
}

// LatestBuy returns the most recent non-imported position for a token.
func (r *PositionRepository) LatestBuy(ctx context.Context, tokenAddress string) (*model.Position, error) {
	var pos model.Position
	err := r.db.WithContext(ctx).
		Where("token_address = ? AND imported = ? AND buy_price > 0", tokenAddress, false).
		Order("buy_time DESC").
		First(&pos).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &pos, nil
}
