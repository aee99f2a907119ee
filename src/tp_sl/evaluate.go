package tp_sl

import (
	"time"

	"tokenexecutor/src/model"

	"github.com/shopspring/decimal"
)

type Action string

const (
	ActionHold Action = "HOLD"
	ActionSell Action = "SELL"
)

var hundred = decimal.NewFromInt(100)

// Thresholds are positive magnitudes; zero disables a rule.
type Thresholds struct {
	ProfitTargetPercentage decimal.Decimal
	StopLossPercentage     decimal.Decimal
	MaxHold                time.Duration
}

type Decision struct {
	Action        Action
	Reason        model.SellReason
	ChangePercent decimal.Decimal
}

func (d Decision) ShouldSell() bool { return d.Action == ActionSell }

// ChangePercent is (current - buy) / buy * 100. A non-positive buy price yields zero.
func ChangePercent(buyPrice, current decimal.Decimal) decimal.Decimal {
	if !buyPrice.IsPositive() {
		return decimal.Zero
	}
	return current.Sub(buyPrice).Div(buyPrice).Mul(hundred)
}

// Evaluate compares the price against the profit target first, then the stop loss.
// One crossing sample is enough.
func Evaluate(pos *model.Position, current decimal.Decimal, t Thresholds) Decision {
	pct := ChangePercent(pos.BuyPrice, current)
	hold := Decision{Action: ActionHold, ChangePercent: pct}
	if !pos.BuyPrice.IsPositive() || !current.IsPositive() {
		return hold
	}

	if t.ProfitTargetPercentage.IsPositive() && pct.GreaterThanOrEqual(t.ProfitTargetPercentage) {
		return Decision{Action: ActionSell, Reason: model.SellReasonProfitTarget, ChangePercent: pct}
	}
	if t.StopLossPercentage.IsPositive() && pct.LessThanOrEqual(t.StopLossPercentage.Neg()) {
		return Decision{Action: ActionSell, Reason: model.SellReasonStopLoss, ChangePercent: pct}
	}
	return hold
}

// EvaluateAt is Evaluate plus the max hold rule. A zero price skips the thresholds
// but can still trigger MAX_HOLD.
func EvaluateAt(pos *model.Position, current decimal.Decimal, t Thresholds, now time.Time) Decision {
	decision := Evaluate(pos, current, t)
	if decision.ShouldSell() {
		return decision
	}
	if t.MaxHold > 0 && !pos.BuyTime.IsZero() && now.Sub(pos.BuyTime) >= t.MaxHold {
		decision.Action = ActionSell
		decision.Reason = model.SellReasonMaxHold
	}
	return decision
}
