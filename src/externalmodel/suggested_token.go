package externalmodel

import "time"

// SuggestedToken is a purchase candidate written by the external scoring service.
type SuggestedToken struct {
	ID           uint       `gorm:"primaryKey;column:id" json:"id"`
	TokenAddress string     `gorm:"column:token_address" json:"token_address"`
	TokenSymbol  string     `gorm:"column:token_symbol" json:"token_symbol"`
	TokenName    string     `gorm:"column:token_name" json:"token_name"`
	Score        float64    `gorm:"column:analysis_score" json:"analysis_score"`
	LiquidityUSD *float64   `gorm:"column:liquidity_usd" json:"liquidity_usd,omitempty"`
	MarketCapUSD *float64   `gorm:"column:market_cap_usd" json:"market_cap_usd,omitempty"`
	Status       string     `gorm:"column:status" json:"status"`
	CreatedAt    *time.Time `gorm:"column:created_at" json:"created_at,omitempty"`
}

// TableName Ensures that GORM uses the exact table name from the database.
func (SuggestedToken) TableName() string {
	return "suggested_tokens"
}
