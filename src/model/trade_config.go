package model

import "time"

// TradeConfig is one key/value row of the runtime trading configuration.
type TradeConfig struct {
	Key         string    `gorm:"primaryKey;size:100;column:key" json:"key"`
	Value       string    `gorm:"size:255;not null" json:"value"`
	Description string    `gorm:"size:255" json:"description"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (TradeConfig) TableName() string {
	return "trade_config"
}

const (
	ConfigProfitTargetPercentage   = "profit_target_percentage"
	ConfigStopLossPercentage       = "stop_loss_percentage"
	ConfigMonitoringIntervalSecs   = "monitoring_interval_seconds"
	ConfigMaxTradeAmountQuote      = "max_trade_amount_quote"
	ConfigMaxDailyTradesPerToken   = "max_daily_trades_per_token"
	ConfigCooldownAfterProfitHours = "cooldown_after_profit_hours"
	ConfigDuplicateBuyWindowSecs   = "duplicate_buy_window_seconds"
	ConfigAnalysisScoreThreshold   = "analysis_score_threshold"
	ConfigAutoTradingEnabled       = "auto_trading_enabled"
	ConfigMaxHoldHours             = "max_hold_hours"
	ConfigReconcileMinValueQuote   = "reconcile_min_value_quote"
	ConfigDefaultTokenDecimals     = "default_token_decimals"
)

// DefaultTradeConfig is seeded into trade_config on first start.
var DefaultTradeConfig = []TradeConfig{
	{Key: ConfigProfitTargetPercentage, Value: "20", Description: "Sell when price rises this percent above buy price"},
	{Key: ConfigStopLossPercentage, Value: "10", Description: "Sell when price falls this percent below buy price"},
	{Key: ConfigMonitoringIntervalSecs, Value: "30", Description: "Seconds between price monitor cycles"},
	{Key: ConfigMaxTradeAmountQuote, Value: "0.01", Description: "Quote amount (SOL) spent per buy"},
	{Key: ConfigMaxDailyTradesPerToken, Value: "3", Description: "Buys allowed per token per UTC day"},
	{Key: ConfigCooldownAfterProfitHours, Value: "2", Description: "Hours a token is locked after a profitable sell"},
	{Key: ConfigDuplicateBuyWindowSecs, Value: "30", Description: "Seconds between buy attempts on the same token"},
	{Key: ConfigAnalysisScoreThreshold, Value: "80", Description: "Minimum suggestion score to buy"},
	{Key: ConfigAutoTradingEnabled, Value: "false", Description: "Kill switch for new buys"},
	{Key: ConfigMaxHoldHours, Value: "0", Description: "Force sell after this many hours, 0 disables"},
	{Key: ConfigReconcileMinValueQuote, Value: "0.005", Description: "Minimum holding value (SOL) imported by reconciliation"},
	{Key: ConfigDefaultTokenDecimals, Value: "9", Description: "Decimals used when no source can resolve them"},
}
