package trade

import (
	"context"
	"errors"
	"fmt"

	"tokenexecutor/src/guard"
	"tokenexecutor/src/model"
	"tokenexecutor/src/notify"
	"tokenexecutor/src/swap"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Suggestion is an externally scored buy candidate.
type Suggestion struct {
	ID           string                 `json:"id"`
	TokenAddress string                 `json:"token_address"`
	TokenSymbol  string                 `json:"token_symbol"`
	Score        decimal.Decimal        `json:"score"`
	Metrics      map[string]interface{} `json:"metrics,omitempty"`
}

type BuyService struct {
	*Deps
}

func NewBuyService(deps *Deps) *BuyService {
	return &BuyService{Deps: deps}
}

// AttemptBuy opens a position for the suggestion when every guard passes.
// Refusals are *guard.Rejection; nothing is sent to the venue in that case.
func (s *BuyService) AttemptBuy(ctx context.Context, sg Suggestion) (*model.Position, error) {
	log := s.Log.WithFields(logrus.Fields{"token": sg.TokenAddress, "suggestion_id": sg.ID})
	cfg := s.Settings.Current()

	if sg.TokenAddress == "" {
		return nil, errors.New("suggestion has no token address")
	}

	// ------------------------------------------------------------------
	// 1) Cheap checks that need no lock
	// ------------------------------------------------------------------
	if !cfg.AutoTradingEnabled {
		return nil, s.rejected(log, guard.Reject(guard.CodeTradingDisabled, sg.TokenAddress, "auto trading disabled"))
	}
	if sg.Score.LessThan(cfg.AnalysisScoreThreshold) {
		return nil, s.rejected(log, guard.Reject(guard.CodeScoreBelowThreshold, sg.TokenAddress, "score %s < %s", sg.Score, cfg.AnalysisScoreThreshold))
	}

	unlock, err := s.Locks.Lock(ctx, TokenLockKey(sg.TokenAddress))
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", sg.TokenAddress, err)
	}
	defer unlock()

	// ------------------------------------------------------------------
	// 2) Ledger checks under the token lock
	// ------------------------------------------------------------------
	if sg.ID != "" {
		used, err := s.Positions.ExistsBySuggestionID(ctx, sg.ID)
		if err != nil {
			return nil, s.capture(ctx, "ExistsBySuggestionID", err, sg)
		}
		if used {
			return nil, s.rejected(log, guard.Reject(guard.CodeDuplicateSuggestion, sg.TokenAddress, "suggestion %s already used", sg.ID))
		}
	}

	if err := s.Guard.CheckBlacklist(ctx, sg.TokenAddress); err != nil {
		return nil, s.rejectedOrCaptured(ctx, log, "CheckBlacklist", err, sg)
	}

	open, err := s.Positions.FindOpenByToken(ctx, sg.TokenAddress)
	if err != nil {
		return nil, s.capture(ctx, "FindOpenByToken", err, sg)
	}
	if open != nil {
		return nil, s.rejected(log, guard.Reject(guard.CodePositionOpen, sg.TokenAddress, "position %d is open", open.ID))
	}

	pending, err := s.Executions.FindUnresolved(ctx, sg.TokenAddress, model.ExecutionSideBuy, nil)
	if err != nil {
		return nil, s.capture(ctx, "FindUnresolved", err, sg)
	}
	if len(pending) > 0 {
		tokenDecimals, _ := s.Decimals.Resolve(ctx, sg.TokenAddress)
		order := swap.Order{Side: model.ExecutionSideBuy, TokenAddress: sg.TokenAddress, TokenDecimals: tokenDecimals}
		attempt, fill, err := s.resolveUnresolved(ctx, pending, order)
		if errors.Is(err, ErrExecutionPending) {
			return nil, s.rejected(log, guard.Reject(guard.CodeUnresolvedExecution, sg.TokenAddress, "%v", err))
		}
		if err != nil {
			return nil, err
		}
		if fill != nil {
			// The earlier buy landed after all; adopt it instead of buying again.
			log.WithField("tx_ref", fill.TxRef).Warn("Adopting late confirmed buy")
			return s.openPosition(ctx, log, sg, attempt, fill, tokenDecimals)
		}
	}

	if err := s.Guard.CheckLimits(ctx, sg.TokenAddress, *cfg); err != nil {
		return nil, s.rejectedOrCaptured(ctx, log, "CheckLimits", err, sg)
	}

	// ------------------------------------------------------------------
	// 3) Execute
	// ------------------------------------------------------------------
	tokenDecimals, approximated := s.Decimals.Resolve(ctx, sg.TokenAddress)
	if approximated {
		log.WithField("decimals", tokenDecimals).Warn("Buying with fallback decimals")
	}
	order := swap.Order{
		Side:          model.ExecutionSideBuy,
		TokenAddress:  sg.TokenAddress,
		TokenDecimals: tokenDecimals,
		Amount:        cfg.MaxTradeAmountQuote,
	}
	attempt := s.newAttempt(model.ExecutionSideBuy, "SUGGESTION", sg.TokenAddress, nil, order.Amount)

	log.WithFields(logrus.Fields{"amount_quote": order.Amount, "score": sg.Score}).Info("Submitting buy")
	fill, err := s.submit(ctx, attempt, order)
	if err != nil {
		return nil, s.buyFailed(ctx, log, sg, attempt, tokenDecimals, err)
	}
	return s.openPosition(ctx, log, sg, attempt, fill, tokenDecimals)
}

func (s *BuyService) openPosition(ctx context.Context, log *logrus.Entry, sg Suggestion, attempt *model.ExecutionLog, fill *swap.Fill, tokenDecimals int32) (*model.Position, error) {
	if fill.TokenDecimals != nil && *fill.TokenDecimals != tokenDecimals {
		log.WithFields(logrus.Fields{"resolved": tokenDecimals, "on_chain": *fill.TokenDecimals}).Warn("Correcting token decimals from fill")
		tokenDecimals = *fill.TokenDecimals
	}
	pos := &model.Position{
		TokenAddress:   sg.TokenAddress,
		TokenSymbol:    sg.TokenSymbol,
		TokenDecimals:  tokenDecimals,
		BuyPrice:       fill.Price,
		BuyAmount:      fill.Quantity,
		BuyQuoteAmount: fill.QuoteAmount,
		BuyTxRef:       fill.TxRef,
		BuyTime:        s.now(),
		Status:         model.PositionStatusOpen,
	}
	if sg.ID != "" {
		id := sg.ID
		pos.SuggestionID = &id
	}

	if err := s.Positions.Create(ctx, pos); err != nil {
		// Tokens are in the wallet; reconciliation will import them.
		s.Metrics.Buy("record_failed")
		return nil, s.capture(ctx, "Positions.Create", err, sg)
	}
	attempt.PositionID = &pos.ID
	if err := s.Executions.Save(ctx, attempt); err != nil {
		log.WithError(err).Warn("Failed to link execution log to position")
	}

	log.WithFields(logrus.Fields{
		"position_id": pos.ID,
		"amount":      pos.BuyAmount,
		"price":       pos.BuyPrice,
		"tx_ref":      pos.BuyTxRef,
	}).Info("Position opened")
	s.Metrics.Buy("filled")
	s.Notifier.Notify(ctx, notify.Event{Type: notify.EventPositionOpened, Token: pos.TokenAddress, Position: pos})
	return pos, nil
}

// buyFailed records a FAILED position for unconfirmed buys so the tx reference is visible to operators.
func (s *BuyService) buyFailed(ctx context.Context, log *logrus.Entry, sg Suggestion, attempt *model.ExecutionLog, tokenDecimals int32, cause error) error {
	if !errors.Is(cause, swap.ErrUnconfirmed) {
		log.WithError(cause).Warn("Buy rejected by venue")
		s.Metrics.Buy("rejected")
		s.Notifier.Notify(ctx, notify.Event{Type: notify.EventBuyFailed, Token: sg.TokenAddress, Message: cause.Error()})
		return cause
	}

	log.WithField("tx_ref", attempt.TxRef).WithError(cause).Error("Buy unconfirmed")
	s.Metrics.Buy("unconfirmed")
	failed := &model.Position{
		TokenAddress:   sg.TokenAddress,
		TokenSymbol:    sg.TokenSymbol,
		TokenDecimals:  tokenDecimals,
		BuyPrice:       decimal.Zero,
		BuyAmount:      decimal.Zero,
		BuyQuoteAmount: attempt.RequestedAmount,
		BuyTxRef:       attempt.TxRef,
		BuyTime:        s.now(),
		Status:         model.PositionStatusFailed,
	}
	if err := s.Positions.Create(ctx, failed); err != nil {
		Capture(ctx, s.Exceptions, s.Config.ServiceName, "buy_service", "Positions.Create(FAILED)", "error", err,
			map[string]interface{}{"token": sg.TokenAddress, "tx_ref": attempt.TxRef})
	} else {
		attempt.PositionID = &failed.ID
		if err := s.Executions.Save(ctx, attempt); err != nil {
			log.WithError(err).Warn("Failed to link execution log to failed position")
		}
	}
	s.Notifier.Notify(ctx, notify.Event{Type: notify.EventBuyUnconfirmed, Token: sg.TokenAddress, Position: failed, Message: attempt.TxRef})
	return cause
}

func (s *BuyService) rejected(log *logrus.Entry, r *guard.Rejection) error {
	log.WithField("code", r.Code).Info(r.Error())
	s.Metrics.Buy("guard_" + string(r.Code))
	return r
}

func (s *BuyService) rejectedOrCaptured(ctx context.Context, log *logrus.Entry, method string, err error, sg Suggestion) error {
	if r, ok := guard.AsRejection(err); ok {
		return s.rejected(log, r)
	}
	return s.capture(ctx, method, err, sg)
}

func (s *BuyService) capture(ctx context.Context, method string, err error, sg Suggestion) error {
	Capture(ctx, s.Exceptions, s.Config.ServiceName, "buy_service", method, "error", err,
		map[string]interface{}{"token": sg.TokenAddress, "suggestion_id": sg.ID})
	return err
}
