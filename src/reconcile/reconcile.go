// Package reconcile keeps the ledger in line with what the wallet actually holds.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"tokenexecutor/src/connectors"
	"tokenexecutor/src/locks"
	"tokenexecutor/src/metrics"
	"tokenexecutor/src/model"
	"tokenexecutor/src/notify"
	"tokenexecutor/src/repository"
	"tokenexecutor/src/trade"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Holdings is the wallet view. HeldRaw re-reads one token right before a force-close.
type Holdings interface {
	ListHoldings(ctx context.Context) ([]connectors.Holding, error)
	HeldRaw(ctx context.Context, mint string) (uint64, error)
}

type PositionStore interface {
	Create(ctx context.Context, pos *model.Position) error
	FindByID(ctx context.Context, id uint) (*model.Position, error)
	FindOpenByToken(ctx context.Context, tokenAddress string) (*model.Position, error)
	ListOpen(ctx context.Context) ([]model.Position, error)
	LatestBuy(ctx context.Context, tokenAddress string) (*model.Position, error)
	Close(ctx context.Context, pos *model.Position) error
}

type PendingExecutions interface {
	FindUnresolved(ctx context.Context, tokenAddress, side string, positionID *uint) ([]model.ExecutionLog, error)
}

type PriceProvider interface {
	GetCurrentPrice(ctx context.Context, tokenAddress string) (decimal.Decimal, error)
}

type Result struct {
	Imported int
	Closed   int
	Skipped  int
}

type Reconciler struct {
	log        *logrus.Entry
	config     Config
	settings   trade.Settings
	holdings   Holdings
	positions  PositionStore
	executions PendingExecutions
	prices     PriceProvider
	decimals   trade.DecimalsResolver
	locks      locks.Locker
	notifier   trade.Notifier
	metrics    *metrics.Metrics
	expiry     time.Duration
	now        func() time.Time
}

type Options struct {
	Config     Config
	Settings   trade.Settings
	Holdings   Holdings
	Positions  PositionStore
	Executions PendingExecutions
	Prices     PriceProvider
	Decimals   trade.DecimalsResolver
	Locks      locks.Locker
	Notifier   trade.Notifier
	Metrics    *metrics.Metrics

	// ExecutionExpiry bounds how long an unresolved swap holds off reconciliation.
	ExecutionExpiry time.Duration
}

func New(log *logrus.Entry, opts Options) *Reconciler {
	m := opts.Metrics
	if m == nil {
		m = metrics.Nop()
	}
	return &Reconciler{
		log:        log.WithField("component", "reconcile"),
		config:     opts.Config,
		settings:   opts.Settings,
		holdings:   opts.Holdings,
		positions:  opts.Positions,
		executions: opts.Executions,
		prices:     opts.Prices,
		decimals:   opts.Decimals,
		locks:      opts.Locks,
		notifier:   opts.Notifier,
		metrics:    m,
		expiry:     opts.ExecutionExpiry,
		now:        time.Now,
	}
}

// Run schedules passes on the configured cron spec until ctx is cancelled.
// A pass still running when the next one is due is skipped.
func (r *Reconciler) Run(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(r.config.Schedule, func() {
		if _, err := r.RunOnce(ctx); err != nil {
			r.log.WithError(err).Error("Reconciliation pass failed")
		}
	})
	if err != nil {
		return fmt.Errorf("reconcile schedule %q: %w", r.config.Schedule, err)
	}

	c.Start()
	r.log.WithField("schedule", r.config.Schedule).Info("Reconciliation scheduled")
	<-ctx.Done()
	<-c.Stop().Done()
	r.log.Info("Reconciliation stopped")
	return nil
}

// RunOnce compares wallet holdings with OPEN positions. Imports untracked holdings
// and force-closes positions whose token is gone. A failed wallet read changes nothing.
func (r *Reconciler) RunOnce(ctx context.Context) (Result, error) {
	var res Result

	holdings, err := r.holdings.ListHoldings(ctx)
	if err != nil {
		return res, fmt.Errorf("list holdings: %w", err)
	}
	open, err := r.positions.ListOpen(ctx)
	if err != nil {
		return res, fmt.Errorf("list open positions: %w", err)
	}

	held := make(map[string]uint64, len(holdings))
	for _, h := range holdings {
		held[h.Mint] = h.Raw
	}
	tracked := make(map[string]bool, len(open))
	for _, pos := range open {
		tracked[pos.TokenAddress] = true
	}
	ignored := make(map[string]bool, len(r.config.IgnoreMints))
	for _, mint := range r.config.IgnoreMints {
		ignored[mint] = true
	}

	for _, h := range holdings {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if tracked[h.Mint] || ignored[h.Mint] || h.Raw == 0 {
			continue
		}
		imported, err := r.importHolding(ctx, h)
		if err != nil {
			r.log.WithField("token", h.Mint).WithError(err).Warn("Holding not imported")
		}
		if imported {
			res.Imported++
		} else {
			res.Skipped++
		}
	}

	for i := range open {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if held[open[i].TokenAddress] > 0 {
			continue
		}
		closed, err := r.closeMissing(ctx, open[i].ID, open[i].TokenAddress)
		if err != nil {
			r.log.WithFields(logrus.Fields{"position_id": open[i].ID, "token": open[i].TokenAddress}).WithError(err).Warn("Missing position not closed")
		}
		if closed {
			res.Closed++
		} else {
			res.Skipped++
		}
	}

	r.log.WithFields(logrus.Fields{
		"holdings": len(holdings),
		"open":     len(open),
		"imported": res.Imported,
		"closed":   res.Closed,
		"skipped":  res.Skipped,
	}).Info("Reconciliation pass done")
	return res, nil
}

func (r *Reconciler) importHolding(ctx context.Context, h connectors.Holding) (bool, error) {
	unlock, err := r.locks.Lock(ctx, trade.TokenLockKey(h.Mint))
	if err != nil {
		return false, err
	}
	defer unlock()

	existing, err := r.positions.FindOpenByToken(ctx, h.Mint)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, nil
	}
	// A buy still waiting for confirmation owns these tokens.
	pending, err := r.hasPending(ctx, h.Mint, model.ExecutionSideBuy, nil)
	if err != nil || pending {
		return false, err
	}

	tokenDecimals, approximated := r.decimals.Resolve(ctx, h.Mint)
	amount := decimal.NewFromBigInt(new(big.Int).SetUint64(h.Raw), -tokenDecimals)

	current, priceErr := r.prices.GetCurrentPrice(ctx, h.Mint)
	minValue := r.settings.Current().ReconcileMinValueQuote
	if minValue.IsPositive() {
		if priceErr != nil {
			return false, fmt.Errorf("value check: %w", priceErr)
		}
		if amount.Mul(current).LessThan(minValue) {
			return false, nil
		}
	}

	buyPrice := current
	if last, err := r.positions.LatestBuy(ctx, h.Mint); err == nil && last != nil {
		buyPrice = last.BuyPrice
	} else if priceErr != nil || !current.IsPositive() {
		return false, fmt.Errorf("no buy price for import: %v", priceErr)
	}

	now := r.now().UTC()
	pos := &model.Position{
		TokenAddress:      h.Mint,
		TokenDecimals:     tokenDecimals,
		BuyPrice:          buyPrice,
		BuyAmount:         amount,
		BuyQuoteAmount:    buyPrice.Mul(amount),
		BuyTxRef:          model.WalletImportTxRef,
		BuyTime:           now,
		Status:            model.PositionStatusOpen,
		Version:           1,
		Imported:          true,
		PriceApproximated: true,
	}
	if err := r.positions.Create(ctx, pos); err != nil {
		return false, err
	}

	r.log.WithFields(logrus.Fields{
		"position_id":          pos.ID,
		"token":                h.Mint,
		"amount":               amount,
		"buy_price":            buyPrice,
		"decimals_approximate": approximated,
	}).Warn("Imported untracked wallet holding")
	r.metrics.Reconciled.WithLabelValues("imported").Inc()
	r.notifier.Notify(ctx, notify.Event{Type: notify.EventPositionImported, Token: h.Mint, Position: pos})
	return true, nil
}

func (r *Reconciler) closeMissing(ctx context.Context, positionID uint, token string) (bool, error) {
	unlock, err := r.locks.Lock(ctx, trade.TokenLockKey(token))
	if err != nil {
		return false, err
	}
	defer unlock()

	pos, err := r.positions.FindByID(ctx, positionID)
	if err != nil {
		return false, err
	}
	if pos == nil || !pos.IsOpen() {
		return false, nil
	}
	// A sell that may have landed is settled by the sell service, not here.
	pending, err := r.hasPending(ctx, token, model.ExecutionSideSell, &pos.ID)
	if err != nil || pending {
		return false, err
	}
	// The holdings snapshot predates ListOpen; a buy confirmed in between is still held.
	raw, err := r.holdings.HeldRaw(ctx, token)
	if err != nil {
		return false, fmt.Errorf("held quantity: %w", err)
	}
	if raw > 0 {
		return false, nil
	}

	pos.Settle(model.Settlement{
		SellPrice:  pos.BuyPrice,
		SellAmount: decimal.Zero,
		SellTxRef:  string(model.SellReasonReconciledMissing),
		SellTime:   r.now().UTC(),
		Reason:     model.SellReasonReconciledMissing,
	})
	if err := r.positions.Close(ctx, pos); err != nil {
		if errors.Is(err, repository.ErrConcurrentUpdate) {
			return false, nil
		}
		return false, err
	}

	r.log.WithFields(logrus.Fields{"position_id": pos.ID, "token": token}).Warn("Closed position whose tokens left the wallet")
	r.metrics.Reconciled.WithLabelValues("closed").Inc()
	r.notifier.Notify(ctx, notify.Event{Type: notify.EventPositionClosed, Token: token, Position: pos, Message: "tokens no longer held"})
	return true, nil
}

// hasPending reports an unresolved attempt younger than the execution expiry.
// Older ones no longer block; whoever resolves them later finds the ledger already fixed.
func (r *Reconciler) hasPending(ctx context.Context, token, side string, positionID *uint) (bool, error) {
	logs, err := r.executions.FindUnresolved(ctx, token, side, positionID)
	if err != nil {
		return false, err
	}
	now := r.now().UTC()
	for _, l := range logs {
		if r.expiry <= 0 || now.Sub(l.RequestedAt) < r.expiry {
			return true, nil
		}
	}
	return false, nil
}
