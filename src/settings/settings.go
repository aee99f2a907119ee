package settings

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"tokenexecutor/src/model"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
)

// TradeSettings is the validated trading configuration.
type TradeSettings struct {
	ProfitTargetPercentage decimal.Decimal
	StopLossPercentage     decimal.Decimal
	MonitoringInterval     time.Duration
	MaxTradeAmountQuote    decimal.Decimal
	MaxDailyTradesPerToken int
	CooldownAfterProfit    time.Duration
	DuplicateBuyWindow     time.Duration
	AnalysisScoreThreshold decimal.Decimal
	AutoTradingEnabled     bool
	MaxHold                time.Duration
	ReconcileMinValueQuote decimal.Decimal
	DefaultTokenDecimals   int32
}

var ErrInvalidSettings = errors.New("invalid trade settings")

// Source reads raw key/value configuration rows.
type Source interface {
	All(ctx context.Context) (map[string]string, error)
}

func defaults() map[string]string {
	out := make(map[string]string, len(model.DefaultTradeConfig))
	for _, row := range model.DefaultTradeConfig {
		out[row.Key] = row.Value
	}
	return out
}

// EnvName maps a config key to its override variable, e.g. stop_loss_percentage -> STOP_LOSS_PERCENTAGE.
func EnvName(key string) string {
	return strings.ToUpper(key)
}

// Load layers defaults, then rows from src, then environment overrides, and validates the result.
func Load(ctx context.Context, src Source) (*TradeSettings, error) {
	raw := defaults()
	if src != nil {
		rows, err := src.All(ctx)
		if err != nil {
			return nil, fmt.Errorf("load trade config: %w", err)
		}
		for k, v := range rows {
			raw[k] = v
		}
	}
	for k := range raw {
		if v, ok := os.LookupEnv(EnvName(k)); ok && v != "" {
			logger.WithFields(logger.Fields{"key": k, "value": v}).Info("Trade config overridden from environment")
			raw[k] = v
		}
	}
	return Parse(raw)
}

// Parse converts raw values and validates them.
func Parse(raw map[string]string) (*TradeSettings, error) {
	p := parser{raw: raw}
	s := &TradeSettings{
		ProfitTargetPercentage: p.decimal(model.ConfigProfitTargetPercentage),
		StopLossPercentage:     p.decimal(model.ConfigStopLossPercentage),
		MonitoringInterval:     time.Duration(p.integer(model.ConfigMonitoringIntervalSecs)) * time.Second,
		MaxTradeAmountQuote:    p.decimal(model.ConfigMaxTradeAmountQuote),
		MaxDailyTradesPerToken: p.integer(model.ConfigMaxDailyTradesPerToken),
		CooldownAfterProfit:    p.hours(model.ConfigCooldownAfterProfitHours),
		DuplicateBuyWindow:     time.Duration(p.integer(model.ConfigDuplicateBuyWindowSecs)) * time.Second,
		AnalysisScoreThreshold: p.decimal(model.ConfigAnalysisScoreThreshold),
		AutoTradingEnabled:     p.boolean(model.ConfigAutoTradingEnabled),
		MaxHold:                p.hours(model.ConfigMaxHoldHours),
		ReconcileMinValueQuote: p.decimal(model.ConfigReconcileMinValueQuote),
		DefaultTokenDecimals:   int32(p.integer(model.ConfigDefaultTokenDecimals)),
	}
	if len(p.errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSettings, errors.Join(p.errs...))
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate enforces positive percentages and intervals. A zero profit target or stop loss
// disables that rule, but not both. Max hold and the reconcile value floor may be zero.
func (s *TradeSettings) Validate() error {
	var errs []error
	if s.ProfitTargetPercentage.IsNegative() {
		errs = append(errs, fmt.Errorf("%s must not be negative", model.ConfigProfitTargetPercentage))
	}
	if s.StopLossPercentage.IsNegative() {
		errs = append(errs, fmt.Errorf("%s is a magnitude and must not be negative", model.ConfigStopLossPercentage))
	}
	if s.ProfitTargetPercentage.IsZero() && s.StopLossPercentage.IsZero() {
		errs = append(errs, errors.New("profit target and stop loss cannot both be zero"))
	}
	if s.MonitoringInterval <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", model.ConfigMonitoringIntervalSecs))
	}
	if !s.MaxTradeAmountQuote.IsPositive() {
		errs = append(errs, fmt.Errorf("%s must be positive", model.ConfigMaxTradeAmountQuote))
	}
	if s.MaxDailyTradesPerToken <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", model.ConfigMaxDailyTradesPerToken))
	}
	if s.CooldownAfterProfit <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", model.ConfigCooldownAfterProfitHours))
	}
	if s.DuplicateBuyWindow <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", model.ConfigDuplicateBuyWindowSecs))
	}
	if s.MaxHold < 0 {
		errs = append(errs, fmt.Errorf("%s must not be negative", model.ConfigMaxHoldHours))
	}
	if s.ReconcileMinValueQuote.IsNegative() {
		errs = append(errs, fmt.Errorf("%s must not be negative", model.ConfigReconcileMinValueQuote))
	}
	if s.DefaultTokenDecimals < 0 || s.DefaultTokenDecimals > 18 {
		errs = append(errs, fmt.Errorf("%s must be between 0 and 18", model.ConfigDefaultTokenDecimals))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidSettings, errors.Join(errs...))
	}
	return nil
}

// Fields renders the settings for logs and the config show command.
func (s *TradeSettings) Fields() logger.Fields {
	return logger.Fields{
		model.ConfigProfitTargetPercentage:   s.ProfitTargetPercentage.String(),
		model.ConfigStopLossPercentage:       s.StopLossPercentage.String(),
		model.ConfigMonitoringIntervalSecs:   s.MonitoringInterval.Seconds(),
		model.ConfigMaxTradeAmountQuote:      s.MaxTradeAmountQuote.String(),
		model.ConfigMaxDailyTradesPerToken:   s.MaxDailyTradesPerToken,
		model.ConfigCooldownAfterProfitHours: s.CooldownAfterProfit.Hours(),
		model.ConfigDuplicateBuyWindowSecs:   s.DuplicateBuyWindow.Seconds(),
		model.ConfigAnalysisScoreThreshold:   s.AnalysisScoreThreshold.String(),
		model.ConfigAutoTradingEnabled:       s.AutoTradingEnabled,
		model.ConfigMaxHoldHours:             s.MaxHold.Hours(),
		model.ConfigReconcileMinValueQuote:   s.ReconcileMinValueQuote.String(),
		model.ConfigDefaultTokenDecimals:     s.DefaultTokenDecimals,
	}
}

type parser struct {
	raw  map[string]string
	errs []error
}

func (p *parser) get(key string) string {
	return strings.TrimSpace(p.raw[key])
}

func (p *parser) decimal(key string) decimal.Decimal {
	v, err := decimal.NewFromString(p.get(key))
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return decimal.Zero
	}
	return v
}

func (p *parser) integer(key string) int {
	v, err := strconv.Atoi(p.get(key))
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return 0
	}
	return v
}

func (p *parser) boolean(key string) bool {
	v, err := strconv.ParseBool(p.get(key))
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return false
	}
	return v
}

// hours accepts fractional hours such as 0.5.
func (p *parser) hours(key string) time.Duration {
	v := p.decimal(key)
	return time.Duration(v.Mul(decimal.NewFromInt(int64(time.Hour))).IntPart())
}
