package guard

import (
	"errors"
	"fmt"
)

// Code names the precondition a buy failed.
type Code string

const (
	CodeTradingDisabled     Code = "TRADING_DISABLED"
	CodeScoreBelowThreshold Code = "SCORE_BELOW_THRESHOLD"
	CodeDuplicateSuggestion Code = "DUPLICATE_SUGGESTION"
	CodeBlacklisted         Code = "BLACKLISTED"
	CodePositionOpen        Code = "POSITION_OPEN"
	CodeUnresolvedExecution Code = "UNRESOLVED_EXECUTION"
	CodeDuplicateWindow     Code = "DUPLICATE_BUY_WINDOW"
	CodeDailyCap            Code = "DAILY_CAP_REACHED"
	CodeCooldown            Code = "COOLDOWN_AFTER_PROFIT"
)

// Rejection is returned when a buy is refused before anything is sent to the venue.
type Rejection struct {
	Code   Code
	Token  string
	Detail string
}

func (r *Rejection) Error() string {
	if r.Detail == "" {
		return fmt.Sprintf("buy rejected for %s: %s", r.Token, r.Code)
	}
	return fmt.Sprintf("buy rejected for %s: %s (%s)", r.Token, r.Code, r.Detail)
}

func Reject(code Code, token, format string, args ...interface{}) *Rejection {
	return &Rejection{Code: code, Token: token, Detail: fmt.Sprintf(format, args...)}
}

// AsRejection unwraps err into a *Rejection.
func AsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}
