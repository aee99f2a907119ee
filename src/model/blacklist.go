package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type BlacklistEntry struct {
	TokenAddress   string              `gorm:"primaryKey;size:64" json:"token_address"`
	TokenSymbol    string              `gorm:"size:50" json:"token_symbol"`
	Reason         string              `gorm:"size:100;not null" json:"reason"`
	LossPercentage decimal.NullDecimal `gorm:"type:numeric(38,18)" json:"loss_percentage"`
	PositionID     *uint               `json:"position_id,omitempty"`
	BlacklistedAt  time.Time           `gorm:"not null" json:"blacklisted_at"`
}

func (BlacklistEntry) TableName() string {
	return "token_blacklist"
}
