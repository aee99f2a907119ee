package executors

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tokenexecutor/src/metrics"
	"tokenexecutor/src/model"
	"tokenexecutor/src/settings"
	"tokenexecutor/src/tp_sl"
	"tokenexecutor/src/trade"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type PriceProvider interface {
	GetCurrentPrice(ctx context.Context, tokenAddress string) (decimal.Decimal, error)
}

type OpenPositions interface {
	ListOpen(ctx context.Context) ([]model.Position, error)
}

type SampleStore interface {
	Append(ctx context.Context, sample *model.PriceSample) error
}

type Seller interface {
	ExecuteSell(ctx context.Context, positionID uint, reason model.SellReason) (*model.Position, error)
}

// PriceMonitor evaluates every open position on each tick and sells the ones that crossed a threshold.
type PriceMonitor struct {
	log         *logrus.Entry
	positions   OpenPositions
	samples     SampleStore
	prices      PriceProvider
	seller      Seller
	settings    trade.Settings
	metrics     *metrics.Metrics
	concurrency int
	now         func() time.Time
}

func NewPriceMonitor(
	log *logrus.Entry,
	positions OpenPositions,
	samples SampleStore,
	prices PriceProvider,
	seller Seller,
	cfg trade.Settings,
	m *metrics.Metrics,
	concurrency int,
) *PriceMonitor {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &PriceMonitor{
		log:         log.WithField("component", "price_monitor"),
		positions:   positions,
		samples:     samples,
		prices:      prices,
		seller:      seller,
		settings:    cfg,
		metrics:     m,
		concurrency: concurrency,
		now:         time.Now,
	}
}

func (m *PriceMonitor) Run(ctx context.Context) error {
	interval := m.settings.Current().MonitoringInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.log.WithField("interval", interval).Info("Price monitor started")
	for {
		select {
		case <-ctx.Done():
			m.log.Info("Price monitor stopped")
			return nil
		case <-ticker.C:
			if err := m.RunCycle(ctx); err != nil {
				m.log.WithError(err).Error("Monitor cycle failed")
			}
			if next := m.settings.Current().MonitoringInterval; next != interval {
				interval = next
				ticker.Reset(interval)
				m.log.WithField("interval", interval).Info("Monitoring interval changed")
			}
		}
	}
}

// RunCycle checks all open positions once. A failing position never stops the others.
func (m *PriceMonitor) RunCycle(ctx context.Context) error {
	started := time.Now()
	open, err := m.positions.ListOpen(ctx)
	if err != nil {
		return fmt.Errorf("list open positions: %w", err)
	}
	m.metrics.OpenPositions.Set(float64(len(open)))

	cfg := m.settings.Current()
	thresholds := tp_sl.Thresholds{
		ProfitTargetPercentage: cfg.ProfitTargetPercentage,
		StopLossPercentage:     cfg.StopLossPercentage,
		MaxHold:                cfg.MaxHold,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)
	for i := range open {
		pos := open[i]
		g.Go(func() error {
			if err := m.checkPosition(gctx, &pos, thresholds); err != nil {
				m.log.WithFields(logrus.Fields{"position_id": pos.ID, "token": pos.TokenAddress}).WithError(err).Warn("Position check failed")
			}
			return nil
		})
	}
	_ = g.Wait()

	m.metrics.MonitorCycles.Inc()
	m.metrics.MonitorSeconds.Observe(time.Since(started).Seconds())
	m.log.WithFields(logrus.Fields{"open": len(open), "took": time.Since(started).Round(time.Millisecond)}).Debug("Monitor cycle done")
	return nil
}

func (m *PriceMonitor) checkPosition(ctx context.Context, pos *model.Position, thresholds tp_sl.Thresholds) error {
	now := m.now().UTC()
	log := m.log.WithFields(logrus.Fields{"position_id": pos.ID, "token": pos.TokenAddress})

	price, err := m.prices.GetCurrentPrice(ctx, pos.TokenAddress)
	if err != nil {
		m.metrics.PriceErrors.Inc()
		if thresholds.MaxHold <= 0 {
			return fmt.Errorf("price: %w", err)
		}
		log.WithError(err).Debug("No price, checking max hold only")
		price = decimal.Zero
	}

	if price.IsPositive() {
		sample := &model.PriceSample{
			PositionID:            pos.ID,
			TokenAddress:          pos.TokenAddress,
			Price:                 price,
			PriceChangePercentage: tp_sl.ChangePercent(pos.BuyPrice, price),
			SampledAt:             now,
		}
		if err := m.samples.Append(ctx, sample); err != nil {
			log.WithError(err).Warn("Failed to store price sample")
		}
	}

	decision := tp_sl.EvaluateAt(pos, price, thresholds, now)
	if !decision.ShouldSell() {
		return nil
	}

	log.WithFields(logrus.Fields{
		"reason":     decision.Reason,
		"price":      price,
		"change_pct": decision.ChangePercent.StringFixed(2),
	}).Info("Sell condition met")

	if _, err := m.seller.ExecuteSell(ctx, pos.ID, decision.Reason); err != nil {
		if errors.Is(err, trade.ErrPositionNotOpen) {
			return nil
		}
		return fmt.Errorf("sell: %w", err)
	}
	return nil
}

// ReloadSettings refreshes trade settings from the database on a fixed period.
func ReloadSettings(ctx context.Context, holder *settings.Holder, period time.Duration) error {
	if period <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			holder.Reload(ctx)
		}
	}
}
