package trade

import (
	"context"
	"errors"
	"fmt"

	"tokenexecutor/src/model"
	"tokenexecutor/src/swap"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

func (d *Deps) newAttempt(side, reason, token string, positionID *uint, amount decimal.Decimal) *model.ExecutionLog {
	return &model.ExecutionLog{
		ClientID:        uuid.NewString(),
		PositionID:      positionID,
		TokenAddress:    token,
		Side:            side,
		Reason:          reason,
		RequestedAmount: amount,
		Status:          model.ExecutionStatusPending,
		RequestedAt:     d.now(),
	}
}

func (d *Deps) finish(ctx context.Context, l *model.ExecutionLog, status string, fill *swap.Fill, cause error) {
	l.Status = status
	now := d.now()
	if status != model.ExecutionStatusUnconfirmed && status != model.ExecutionStatusPending {
		l.CompletedAt = &now
	}
	if fill != nil {
		l.TxRef = fill.TxRef
		l.FilledQuantity = decimal.NewNullDecimal(fill.Quantity)
		l.FilledQuoteAmount = decimal.NewNullDecimal(fill.QuoteAmount)
		l.Price = decimal.NewNullDecimal(fill.Price)
	}
	if cause != nil {
		msg := cause.Error()
		l.ErrorMessage = &msg
	}
	if err := d.Executions.Save(ctx, l); err != nil {
		d.Log.WithFields(logrus.Fields{"client_id": l.ClientID, "status": status}).WithError(err).Error("Failed to save execution log")
	}
}

// submit runs one swap: prepare, record the tx reference, send, wait.
// The attempt row exists before anything reaches the venue.
func (d *Deps) submit(ctx context.Context, attempt *model.ExecutionLog, order swap.Order) (*swap.Fill, error) {
	if err := d.Executions.Create(ctx, attempt); err != nil {
		return nil, fmt.Errorf("record attempt: %w", err)
	}

	prepared, err := d.Venue.Prepare(ctx, order)
	if err != nil {
		d.finish(ctx, attempt, model.ExecutionStatusFailed, nil, err)
		return nil, err
	}

	attempt.TxRef = prepared.TxRef
	if err := d.Executions.Save(ctx, attempt); err != nil {
		// Without a stored reference a lost outcome could not be resolved later.
		d.finish(ctx, attempt, model.ExecutionStatusFailed, nil, err)
		return nil, fmt.Errorf("record tx reference: %w", err)
	}

	if err := d.Venue.Send(ctx, prepared); err != nil {
		if errors.Is(err, swap.ErrRejected) {
			d.finish(ctx, attempt, model.ExecutionStatusFailed, nil, err)
			return nil, err
		}
		d.Log.WithFields(logrus.Fields{"tx_ref": prepared.TxRef, "token": order.TokenAddress}).WithError(err).Warn("Send outcome unknown, waiting for confirmation")
	}

	fill, err := d.Venue.AwaitFill(ctx, order, prepared.TxRef)
	switch {
	case err == nil:
		d.finish(ctx, attempt, model.ExecutionStatusConfirmed, fill, nil)
		return fill, nil
	case errors.Is(err, swap.ErrRejected):
		d.finish(ctx, attempt, model.ExecutionStatusFailed, nil, err)
	default:
		d.finish(ctx, attempt, model.ExecutionStatusUnconfirmed, nil, err)
		if !errors.Is(err, swap.ErrUnconfirmed) {
			err = fmt.Errorf("%w: %v", swap.ErrUnconfirmed, err)
		}
	}
	return nil, err
}

// resolveUnresolved settles earlier attempts whose outcome was unknown.
// It returns the first attempt that turns out confirmed together with its fill.
// An attempt still unknown and younger than the expiry yields ErrExecutionPending.
func (d *Deps) resolveUnresolved(ctx context.Context, logs []model.ExecutionLog, order swap.Order) (*model.ExecutionLog, *swap.Fill, error) {
	for i := range logs {
		l := &logs[i]
		log := d.Log.WithFields(logrus.Fields{"client_id": l.ClientID, "tx_ref": l.TxRef, "side": l.Side, "token": l.TokenAddress})

		if l.TxRef == "" {
			log.Warn("Attempt never reached the venue, marking failed")
			d.finish(ctx, l, model.ExecutionStatusFailed, nil, errors.New("no transaction reference recorded"))
			continue
		}

		o := order
		o.Amount = l.RequestedAmount
		fill, err := d.Venue.LookupFill(ctx, o, l.TxRef)
		switch {
		case err == nil:
			log.Info("Earlier execution found confirmed")
			d.finish(ctx, l, model.ExecutionStatusConfirmed, fill, nil)
			return l, fill, nil
		case errors.Is(err, swap.ErrRejected):
			log.WithError(err).Info("Earlier execution failed on chain")
			d.finish(ctx, l, model.ExecutionStatusFailed, nil, err)
		case d.now().Sub(l.RequestedAt) >= d.Config.ExecutionExpiry:
			log.Warn("Earlier execution expired without landing")
			d.finish(ctx, l, model.ExecutionStatusFailed, nil, fmt.Errorf("expired after %s: %v", d.Config.ExecutionExpiry, err))
		default:
			return nil, nil, fmt.Errorf("%w: %s", ErrExecutionPending, l.TxRef)
		}
	}
	return nil, nil, nil
}
