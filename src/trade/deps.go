package trade

import (
	"context"
	"time"

	"tokenexecutor/src/locks"
	"tokenexecutor/src/metrics"
	"tokenexecutor/src/model"
	"tokenexecutor/src/notify"
	"tokenexecutor/src/settings"
	"tokenexecutor/src/swap"

	"github.com/sirupsen/logrus"
)

type Venue interface {
	Prepare(ctx context.Context, order swap.Order) (*swap.Prepared, error)
	Send(ctx context.Context, p *swap.Prepared) error
	AwaitFill(ctx context.Context, order swap.Order, txRef string) (*swap.Fill, error)
	LookupFill(ctx context.Context, order swap.Order, txRef string) (*swap.Fill, error)
}

type PositionStore interface {
	Create(ctx context.Context, pos *model.Position) error
	FindByID(ctx context.Context, id uint) (*model.Position, error)
	FindOpenByToken(ctx context.Context, tokenAddress string) (*model.Position, error)
	Close(ctx context.Context, pos *model.Position) error
	ExistsBySuggestionID(ctx context.Context, suggestionID string) (bool, error)
}

type ExecutionStore interface {
	Create(ctx context.Context, l *model.ExecutionLog) error
	Save(ctx context.Context, l *model.ExecutionLog) error
	FindUnresolved(ctx context.Context, tokenAddress, side string, positionID *uint) ([]model.ExecutionLog, error)
}

type Wallet interface {
	HeldRaw(ctx context.Context, mint string) (uint64, error)
}

type DecimalsResolver interface {
	Resolve(ctx context.Context, mint string) (int32, bool)
}

type Settings interface {
	Current() *settings.TradeSettings
}

type Guard interface {
	CheckBlacklist(ctx context.Context, tokenAddress string) error
	CheckLimits(ctx context.Context, tokenAddress string, cfg settings.TradeSettings) error
	RecordSettlement(ctx context.Context, pos *model.Position) error
}

type Notifier interface {
	Notify(ctx context.Context, ev notify.Event)
}

// Deps is shared by the buy and sell services.
type Deps struct {
	Log        *logrus.Entry
	Config     Config
	Settings   Settings
	Positions  PositionStore
	Executions ExecutionStore
	Exceptions ExceptionStore
	Venue      Venue
	Wallet     Wallet
	Decimals   DecimalsResolver
	Guard      Guard
	Locks      locks.Locker
	Notifier   Notifier
	Metrics    *metrics.Metrics
	Now        func() time.Time
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now().UTC()
	}
	return time.Now().UTC()
}

// TokenLockKey serializes every buy, sell and reconciliation step for one token.
func TokenLockKey(tokenAddress string) string {
	return "token:" + tokenAddress
}
