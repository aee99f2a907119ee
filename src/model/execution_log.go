package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExecutionStatus is the lifecycle of a single swap submission.
const (
	ExecutionStatusPending = "pending"
	// ExecutionStatusUnconfirmed means a tx reference exists but its outcome is unknown.
	ExecutionStatusUnconfirmed = "unconfirmed"
	ExecutionStatusConfirmed   = "confirmed"
	ExecutionStatusFailed      = "failed"
)

const (
	ExecutionSideBuy  = "buy"
	ExecutionSideSell = "sell"
)

// ExecutionLog records every swap attempt against the venue, including the ones
// that never produced a position. Buy attempts drive the duplicate-buy window.
type ExecutionLog struct {
	ID uint `gorm:"primaryKey" json:"id"`

	ClientID     string `gorm:"size:64;uniqueIndex;not null" json:"client_id"`
	PositionID   *uint  `gorm:"index" json:"position_id,omitempty"`
	TokenAddress string `gorm:"size:64;not null;index:idx_execution_logs_token_side,priority:1" json:"token_address"`
	Side         string `gorm:"size:10;not null;index:idx_execution_logs_token_side,priority:2" json:"side"`
	Reason       string `gorm:"size:50" json:"reason"`

	// Requested size: quote amount for buys, token quantity for sells.
	RequestedAmount decimal.Decimal `gorm:"type:numeric(38,18);not null" json:"requested_amount"`

	TxRef             string              `gorm:"size:120;index" json:"tx_ref"`
	FilledQuantity    decimal.NullDecimal `gorm:"type:numeric(38,18)" json:"filled_quantity"`
	FilledQuoteAmount decimal.NullDecimal `gorm:"type:numeric(38,18)" json:"filled_quote_amount"`
	Price             decimal.NullDecimal `gorm:"type:numeric(38,18)" json:"price"`

	Status       string     `gorm:"size:20;not null;index" json:"status"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	RequestedAt  time.Time  `gorm:"not null;index" json:"requested_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (ExecutionLog) TableName() string {
	return "execution_logs"
}

// Unresolved reports whether the attempt may still land on chain.
func (l *ExecutionLog) Unresolved() bool {
	return l.Status == ExecutionStatusPending || l.Status == ExecutionStatusUnconfirmed
}
