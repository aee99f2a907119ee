package trade

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"tokenexecutor/src/model"
	"tokenexecutor/src/notify"
	"tokenexecutor/src/repository"
	"tokenexecutor/src/swap"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type SellService struct {
	*Deps
}

func NewSellService(deps *Deps) *SellService {
	return &SellService{Deps: deps}
}

// ExecuteSell sells what the wallet actually holds of the position, capped at
// BuyAmount, and closes the position only after a confirmed fill.
func (s *SellService) ExecuteSell(ctx context.Context, positionID uint, reason model.SellReason) (*model.Position, error) {
	if !reason.Valid() {
		return nil, fmt.Errorf("invalid sell reason %q", reason)
	}

	pos, err := s.Positions.FindByID(ctx, positionID)
	if err != nil {
		return nil, s.capture(ctx, "FindByID", err, positionID, reason)
	}
	if pos == nil {
		return nil, ErrPositionNotFound
	}

	unlock, err := s.Locks.Lock(ctx, TokenLockKey(pos.TokenAddress))
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", pos.TokenAddress, err)
	}
	defer unlock()

	// ------------------------------------------------------------------
	// 1) Reload under the lock; a concurrent sell may have closed it
	// ------------------------------------------------------------------
	pos, err = s.Positions.FindByID(ctx, positionID)
	if err != nil {
		return nil, s.capture(ctx, "FindByID", err, positionID, reason)
	}
	if pos == nil {
		return nil, ErrPositionNotFound
	}
	log := s.Log.WithFields(logrus.Fields{"position_id": pos.ID, "token": pos.TokenAddress, "reason": reason})
	if !pos.IsOpen() {
		log.WithField("status", pos.Status).Info("Sell skipped, position not open")
		return pos, ErrPositionNotOpen
	}

	order := swap.Order{Side: model.ExecutionSideSell, TokenAddress: pos.TokenAddress, TokenDecimals: pos.TokenDecimals}

	// ------------------------------------------------------------------
	// 2) Resolve an earlier sell whose outcome was unknown
	// ------------------------------------------------------------------
	pending, err := s.Executions.FindUnresolved(ctx, pos.TokenAddress, model.ExecutionSideSell, &pos.ID)
	if err != nil {
		return nil, s.capture(ctx, "FindUnresolved", err, positionID, reason)
	}
	if len(pending) > 0 {
		attempt, fill, err := s.resolveUnresolved(ctx, pending, order)
		if err != nil {
			log.WithError(err).Warn("Sell blocked by unresolved execution")
			return nil, err
		}
		if fill != nil {
			earlier := model.SellReason(attempt.Reason)
			if !earlier.Valid() {
				earlier = reason
			}
			return s.settle(ctx, log, pos, fill, earlier)
		}
	}

	// ------------------------------------------------------------------
	// 3) Size from the wallet, never from the ledger alone
	// ------------------------------------------------------------------
	heldRaw, err := s.Wallet.HeldRaw(ctx, pos.TokenAddress)
	if err != nil {
		s.Metrics.Sell(string(reason), "wallet_error")
		return nil, fmt.Errorf("read wallet balance: %w", err)
	}
	held := decimal.NewFromBigInt(new(big.Int).SetUint64(heldRaw), -pos.TokenDecimals)
	if !held.IsPositive() {
		log.Warn("Wallet holds none of the token, leaving position open for reconciliation")
		s.Metrics.Sell(string(reason), "nothing_held")
		return nil, ErrNothingHeld
	}
	amount := decimal.Min(pos.BuyAmount, held)
	if held.LessThan(pos.BuyAmount) {
		log.WithFields(logrus.Fields{"held": held, "buy_amount": pos.BuyAmount}).Warn("Wallet holds less than bought, selling what is held")
	}
	order.Amount = amount

	// ------------------------------------------------------------------
	// 4) Execute
	// ------------------------------------------------------------------
	attempt := s.newAttempt(model.ExecutionSideSell, string(reason), pos.TokenAddress, &pos.ID, amount)
	log.WithField("amount", amount).Info("Submitting sell")
	fill, err := s.submit(ctx, attempt, order)
	if err != nil {
		outcome := "rejected"
		if errors.Is(err, swap.ErrUnconfirmed) {
			outcome = "unconfirmed"
		}
		log.WithError(err).Error("Sell failed, position stays open")
		s.Metrics.Sell(string(reason), outcome)
		s.Notifier.Notify(ctx, notify.Event{Type: notify.EventSellFailed, Token: pos.TokenAddress, Position: pos, Message: err.Error()})
		return nil, err
	}
	return s.settle(ctx, log, pos, fill, reason)
}

func (s *SellService) settle(ctx context.Context, log *logrus.Entry, pos *model.Position, fill *swap.Fill, reason model.SellReason) (*model.Position, error) {
	pos.Settle(model.Settlement{
		SellPrice:  fill.Price,
		SellAmount: fill.Quantity,
		SellTxRef:  fill.TxRef,
		SellTime:   s.now(),
		Reason:     reason,
	})

	if err := s.Positions.Close(ctx, pos); err != nil {
		// The swap is final on chain; the ledger must be fixed by hand.
		if errors.Is(err, repository.ErrConcurrentUpdate) {
			err = fmt.Errorf("%w: %v", ErrPositionNotOpen, err)
		}
		s.Metrics.Sell(string(reason), "record_failed")
		return nil, s.capture(ctx, "Positions.Close", err, pos.ID, reason)
	}

	log.WithFields(logrus.Fields{
		"sell_price":  pos.SellPrice.Decimal,
		"sell_amount": pos.SellAmount.Decimal,
		"pnl":         pos.ProfitLossAmount.Decimal,
		"pnl_pct":     pos.ProfitLossPercentage.Decimal.StringFixed(2),
		"tx_ref":      fill.TxRef,
	}).Info("Position closed")

	if err := s.Guard.RecordSettlement(ctx, pos); err != nil {
		log.WithError(err).Error("Failed to update guard after settlement")
	}
	s.Metrics.Sell(string(reason), "filled")
	pnl, _ := pos.ProfitLossAmount.Decimal.Float64()
	s.Metrics.Realized(pnl)
	s.Notifier.Notify(ctx, notify.Event{Type: notify.EventPositionClosed, Token: pos.TokenAddress, Position: pos})
	return pos, nil
}

func (s *SellService) capture(ctx context.Context, method string, err error, positionID uint, reason model.SellReason) error {
	Capture(ctx, s.Exceptions, s.Config.ServiceName, "sell_service", method, "error", err,
		map[string]interface{}{"position_id": positionID, "reason": reason})
	return err
}
