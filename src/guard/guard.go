// Package guard holds the anti-abuse rules applied before every buy.
package guard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tokenexecutor/src/model"
	"tokenexecutor/src/settings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	ReasonStopLoss = "STOP_LOSS"
)

type Ledger interface {
	CountBuysSince(ctx context.Context, tokenAddress string, since time.Time) (int64, error)
	LastProfitableSellTime(ctx context.Context, tokenAddress string) (*time.Time, error)
}

type Attempts interface {
	LastBuyAttempt(ctx context.Context, tokenAddress string) (*model.ExecutionLog, error)
}

type BlacklistStore interface {
	Add(ctx context.Context, entry *model.BlacklistEntry) error
	Remove(ctx context.Context, tokenAddress string) (bool, error)
	List(ctx context.Context) ([]model.BlacklistEntry, error)
}

// Guard state is derived from the ledger on every check. Only the blacklist is cached.
type Guard struct {
	log       *logrus.Entry
	ledger    Ledger
	attempts  Attempts
	blacklist BlacklistStore
	now       func() time.Time

	mu     sync.RWMutex
	cached map[string]struct{}
	gen    uint64
}

func New(log *logrus.Entry, ledger Ledger, attempts Attempts, blacklist BlacklistStore) *Guard {
	return &Guard{
		log:       log.WithField("component", "guard"),
		ledger:    ledger,
		attempts:  attempts,
		blacklist: blacklist,
		now:       time.Now,
	}
}

// WithClock replaces the time source, for tests and simulations.
func (g *Guard) WithClock(now func() time.Time) *Guard {
	g.now = now
	return g
}

func (g *Guard) loadBlacklist(ctx context.Context) (map[string]struct{}, error) {
	g.mu.RLock()
	cached, gen := g.cached, g.gen
	g.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}

	entries, err := g.blacklist.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("load blacklist: %w", err)
	}
	set := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		set[e.TokenAddress] = struct{}{}
	}

	// A snapshot read before an invalidation must not be installed.
	g.mu.Lock()
	if g.gen == gen {
		g.cached = set
	}
	g.mu.Unlock()
	return set, nil
}

func (g *Guard) invalidate() {
	g.mu.Lock()
	g.gen++
	g.cached = nil
	g.mu.Unlock()
}

func (g *Guard) IsBlacklisted(ctx context.Context, tokenAddress string) (bool, error) {
	set, err := g.loadBlacklist(ctx)
	if err != nil {
		return false, err
	}
	_, ok := set[tokenAddress]
	return ok, nil
}

// CheckBlacklist returns a *Rejection when the token is blacklisted.
func (g *Guard) CheckBlacklist(ctx context.Context, tokenAddress string) error {
	listed, err := g.IsBlacklisted(ctx, tokenAddress)
	if err != nil {
		return err
	}
	if listed {
		return Reject(CodeBlacklisted, tokenAddress, "token is blacklisted")
	}
	return nil
}

// CheckLimits applies the duplicate window, the daily cap (UTC day) and the profit cooldown, in that order.
func (g *Guard) CheckLimits(ctx context.Context, tokenAddress string, cfg settings.TradeSettings) error {
	now := g.now().UTC()

	last, err := g.attempts.LastBuyAttempt(ctx, tokenAddress)
	if err != nil {
		return fmt.Errorf("last buy attempt: %w", err)
	}
	if last != nil && cfg.DuplicateBuyWindow > 0 {
		if elapsed := now.Sub(last.RequestedAt); elapsed < cfg.DuplicateBuyWindow {
			return Reject(CodeDuplicateWindow, tokenAddress, "last attempt %s ago, window %s", elapsed.Truncate(time.Second), cfg.DuplicateBuyWindow)
		}
	}

	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	count, err := g.ledger.CountBuysSince(ctx, tokenAddress, dayStart)
	if err != nil {
		return fmt.Errorf("count buys: %w", err)
	}
	if cfg.MaxDailyTradesPerToken > 0 && count >= int64(cfg.MaxDailyTradesPerToken) {
		return Reject(CodeDailyCap, tokenAddress, "%d of %d buys today", count, cfg.MaxDailyTradesPerToken)
	}

	lastWin, err := g.ledger.LastProfitableSellTime(ctx, tokenAddress)
	if err != nil {
		return fmt.Errorf("last profitable sell: %w", err)
	}
	if lastWin != nil && cfg.CooldownAfterProfit > 0 {
		if until := lastWin.Add(cfg.CooldownAfterProfit); now.Before(until) {
			return Reject(CodeCooldown, tokenAddress, "cooldown until %s", until.Format(time.RFC3339))
		}
	}
	return nil
}

// RecordSettlement updates guard state after a position closes.
// A stop loss blacklists the token; a profitable close starts the cooldown, which is read back from the ledger.
func (g *Guard) RecordSettlement(ctx context.Context, pos *model.Position) error {
	if pos.SellReason == nil {
		return nil
	}
	log := g.log.WithFields(logrus.Fields{"token": pos.TokenAddress, "position_id": pos.ID})

	if *pos.SellReason == model.SellReasonStopLoss {
		id := pos.ID
		return g.Blacklist(ctx, &model.BlacklistEntry{
			TokenAddress:   pos.TokenAddress,
			TokenSymbol:    pos.TokenSymbol,
			Reason:         ReasonStopLoss,
			LossPercentage: pos.ProfitLossPercentage,
			PositionID:     &id,
		})
	}
	if pos.ProfitLossPercentage.Valid && pos.ProfitLossPercentage.Decimal.GreaterThan(decimal.Zero) {
		log.Info("Profitable close, cooldown started")
	}
	return nil
}

func (g *Guard) Blacklist(ctx context.Context, entry *model.BlacklistEntry) error {
	if entry.BlacklistedAt.IsZero() {
		entry.BlacklistedAt = g.now().UTC()
	}
	defer g.invalidate()
	if err := g.blacklist.Add(ctx, entry); err != nil {
		return fmt.Errorf("blacklist %s: %w", entry.TokenAddress, err)
	}
	g.log.WithFields(logrus.Fields{"token": entry.TokenAddress, "reason": entry.Reason}).Warn("Token blacklisted")
	return nil
}

func (g *Guard) ClearBlacklist(ctx context.Context, tokenAddress string) (bool, error) {
	defer g.invalidate()
	removed, err := g.blacklist.Remove(ctx, tokenAddress)
	if err != nil {
		return false, fmt.Errorf("clear blacklist %s: %w", tokenAddress, err)
	}
	if removed {
		g.log.WithField("token", tokenAddress).Info("Token removed from blacklist")
	}
	return removed, nil
}

func (g *Guard) ListBlacklist(ctx context.Context) ([]model.BlacklistEntry, error) {
	return g.blacklist.List(ctx)
}
