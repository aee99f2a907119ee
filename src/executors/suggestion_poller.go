package executors

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"tokenexecutor/src/externalmodel"
	"tokenexecutor/src/guard"
	"tokenexecutor/src/model"
	"tokenexecutor/src/swap"
	"tokenexecutor/src/trade"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type SuggestionSource interface {
	FindAfterID(ctx context.Context, lastID uint, minScore float64, limit int) ([]externalmodel.SuggestedToken, error)
	MaxID(ctx context.Context) (uint, error)
}

type Buyer interface {
	AttemptBuy(ctx context.Context, sg trade.Suggestion) (*model.Position, error)
}

// SuggestionPoller feeds new rows from the scoring service into the buy service, oldest first.
type SuggestionPoller struct {
	log      *logrus.Entry
	source   SuggestionSource
	buyer    Buyer
	settings trade.Settings
	config   Config
	lastID   uint
}

func NewSuggestionPoller(log *logrus.Entry, source SuggestionSource, buyer Buyer, cfg trade.Settings, config Config) *SuggestionPoller {
	return &SuggestionPoller{
		log:      log.WithField("component", "suggestion_poller"),
		source:   source,
		buyer:    buyer,
		settings: cfg,
		config:   config,
	}
}

func SuggestionFromRow(row externalmodel.SuggestedToken) trade.Suggestion {
	metrics := map[string]interface{}{}
	if row.LiquidityUSD != nil {
		metrics["liquidity_usd"] = *row.LiquidityUSD
	}
	if row.MarketCapUSD != nil {
		metrics["market_cap_usd"] = *row.MarketCapUSD
	}
	return trade.Suggestion{
		ID:           "suggested_tokens:" + strconv.FormatUint(uint64(row.ID), 10),
		TokenAddress: row.TokenAddress,
		TokenSymbol:  row.TokenSymbol,
		Score:        decimal.NewFromFloat(row.Score),
		Metrics:      metrics,
	}
}

func (p *SuggestionPoller) Run(ctx context.Context) error {
	if !p.config.SuggestionBacklog {
		maxID, err := p.source.MaxID(ctx)
		if err != nil {
			return fmt.Errorf("suggestion start id: %w", err)
		}
		p.lastID = maxID
	}
	p.log.WithField("after_id", p.lastID).Info("Suggestion poller started")

	ticker := time.NewTicker(p.config.SuggestionPollPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := p.PollOnce(ctx); err != nil {
				p.log.WithError(err).Warn("Suggestion poll failed")
			}
		}
	}
}

// PollOnce processes one batch. The cursor advances past every row handled,
// whatever the buy outcome, except when the context is cancelled mid-batch.
func (p *SuggestionPoller) PollOnce(ctx context.Context) error {
	cfg := p.settings.Current()
	if !cfg.AutoTradingEnabled {
		p.log.Debug("Auto trading disabled, not polling")
		return nil
	}
	minScore, _ := cfg.AnalysisScoreThreshold.Float64()

	rows, err := p.source.FindAfterID(ctx, p.lastID, minScore, p.config.SuggestionBatch)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		sg := SuggestionFromRow(row)
		log := p.log.WithFields(logrus.Fields{"suggestion_id": sg.ID, "token": sg.TokenAddress})

		pos, err := p.buyer.AttemptBuy(ctx, sg)
		switch {
		case err == nil:
			log.WithField("position_id", pos.ID).Info("Suggestion bought")
		case errors.Is(err, context.Canceled):
			return err
		default:
			if r, ok := guard.AsRejection(err); ok {
				log.WithField("code", r.Code).Debug("Suggestion skipped")
			} else if errors.Is(err, swap.ErrRejected) || errors.Is(err, swap.ErrUnconfirmed) {
				log.WithError(err).Warn("Suggestion buy did not fill")
			} else {
				log.WithError(err).Error("Suggestion buy failed")
			}
		}
		p.lastID = row.ID
	}
	return nil
}
