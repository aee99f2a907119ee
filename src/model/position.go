package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type PositionStatus string

const (
	PositionStatusOpen   PositionStatus = "OPEN"
	PositionStatusClosed PositionStatus = "CLOSED"
	// PositionStatusFailed marks a buy whose execution was never confirmed.
	PositionStatusFailed PositionStatus = "FAILED"
)

type SellReason string

const (
	SellReasonProfitTarget      SellReason = "PROFIT_TARGET"
	SellReasonStopLoss          SellReason = "STOP_LOSS"
	SellReasonManual            SellReason = "MANUAL"
	SellReasonReconciledMissing SellReason = "RECONCILED_MISSING"
	SellReasonMaxHold           SellReason = "MAX_HOLD"
)

func (r SellReason) Valid() bool {
	switch r {
	case SellReasonProfitTarget, SellReasonStopLoss, SellReasonManual, SellReasonReconciledMissing, SellReasonMaxHold:
		return true
	}
	return false
}

// WalletImportTxRef is stored as BuyTxRef for positions created from untracked wallet holdings.
const WalletImportTxRef = "WALLET_IMPORT"

// Position is one buy of one token and, once closed, the sell that ended it.
// Quantities are token units already scaled by TokenDecimals; prices are quote (SOL) per unit.
type Position struct {
	ID uint `gorm:"primaryKey" json:"id"`

	TokenAddress  string `gorm:"size:64;not null;index:idx_positions_token_status,priority:1" json:"token_address"`
	TokenSymbol   string `gorm:"size:50" json:"token_symbol"`
	TokenDecimals int32  `gorm:"not null" json:"token_decimals"`

	BuyPrice       decimal.Decimal `gorm:"type:numeric(38,18);not null" json:"buy_price"`
	BuyAmount      decimal.Decimal `gorm:"type:numeric(38,18);not null" json:"buy_amount"`
	BuyQuoteAmount decimal.Decimal `gorm:"type:numeric(38,18);not null" json:"buy_quote_amount"`
	BuyTxRef       string          `gorm:"size:120;index" json:"buy_tx_ref"`
	BuyTime        time.Time       `gorm:"not null;index" json:"buy_time"`

	SellPrice  decimal.NullDecimal `gorm:"type:numeric(38,18)" json:"sell_price"`
	SellAmount decimal.NullDecimal `gorm:"type:numeric(38,18)" json:"sell_amount"`
	SellTxRef  *string             `gorm:"size:120" json:"sell_tx_ref,omitempty"`
	SellTime   *time.Time          `gorm:"index" json:"sell_time,omitempty"`
	SellReason *SellReason         `gorm:"size:30" json:"sell_reason,omitempty"`

	ProfitLossAmount     decimal.NullDecimal `gorm:"type:numeric(38,18)" json:"profit_loss_amount"`
	ProfitLossPercentage decimal.NullDecimal `gorm:"type:numeric(38,18)" json:"profit_loss_percentage"`

	Status  PositionStatus `gorm:"size:20;not null;index:idx_positions_token_status,priority:2" json:"status"`
	Version int            `gorm:"not null;default:1" json:"version"`

	SuggestionID      *string `gorm:"size:100;index" json:"suggestion_id,omitempty"`
	Imported          bool    `gorm:"not null;default:false" json:"imported"`
	PriceApproximated bool    `gorm:"not null;default:false" json:"price_approximated"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Position) TableName() string {
	return "positions"
}

func (p *Position) IsOpen() bool { return p.Status == PositionStatusOpen }

// Settlement carries the sell side written when a position closes.
type Settlement struct {
	SellPrice  decimal.Decimal
	SellAmount decimal.Decimal
	SellTxRef  string
	SellTime   time.Time
	Reason     SellReason
}

// Settle fills the sell side and P&L. The amount is capped at BuyAmount and
// P&L is scaled by the amount actually sold. Status is left to the repository.
func (p *Position) Settle(s Settlement) {
	amount := s.SellAmount
	if amount.GreaterThan(p.BuyAmount) {
		amount = p.BuyAmount
	}
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	ref := s.SellTxRef
	at := s.SellTime
	reason := s.Reason

	p.SellPrice = decimal.NewNullDecimal(s.SellPrice)
	p.SellAmount = decimal.NewNullDecimal(amount)
	p.SellTxRef = &ref
	p.SellTime = &at
	p.SellReason = &reason

	diff := s.SellPrice.Sub(p.BuyPrice)
	p.ProfitLossAmount = decimal.NewNullDecimal(diff.Mul(amount))
	pct := decimal.Zero
	if p.BuyPrice.IsPositive() {
		pct = diff.Div(p.BuyPrice).Mul(decimal.NewFromInt(100))
	}
	p.ProfitLossPercentage = decimal.NewNullDecimal(pct)
}
