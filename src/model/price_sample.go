package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceSample is an append-only price observation for an open position.
type PriceSample struct {
	ID                    uint            `gorm:"primaryKey" json:"id"`
	PositionID            uint            `gorm:"not null;uniqueIndex:ux_price_samples_position_sampled,priority:1" json:"position_id"`
	TokenAddress          string          `gorm:"size:64;not null;index" json:"token_address"`
	Price                 decimal.Decimal `gorm:"type:numeric(38,18);not null" json:"price"`
	PriceChangePercentage decimal.Decimal `gorm:"type:numeric(38,18);not null" json:"price_change_percentage"`
	SampledAt             time.Time       `gorm:"not null;uniqueIndex:ux_price_samples_position_sampled,priority:2" json:"sampled_at"`
}

func (PriceSample) TableName() string {
	return "price_samples"
}
