package executor

import (
	"context"
	"fmt"

	"tokenexecutor/src/connectors"
	"tokenexecutor/src/database"
	"tokenexecutor/src/decimals"
	"tokenexecutor/src/guard"
	"tokenexecutor/src/locks"
	"tokenexecutor/src/metrics"
	"tokenexecutor/src/notify"
	"tokenexecutor/src/reconcile"
	"tokenexecutor/src/repository"
	"tokenexecutor/src/security"
	"tokenexecutor/src/settings"
	"tokenexecutor/src/swap"
	"tokenexecutor/src/trade"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
)

// App is the wired set of components shared by the daemon and the one-shot commands.
type App struct {
	Log      *logrus.Entry
	Settings *settings.Holder
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	Positions   *repository.PositionRepository
	Samples     *repository.PriceSampleRepository
	Executions  *repository.ExecutionLogRepository
	Exceptions  *repository.ExceptionRepository
	TradeConfig *repository.ConfigRepository
	Suggestions *repository.SuggestionRepository
	Guard       *guard.Guard

	// Trading members are nil when the app was built without a wallet.
	Jupiter    *connectors.JupiterClient
	Solana     *connectors.SolanaClient
	Swap       *swap.Executor
	Locks      locks.Locker
	Notifier   *notify.Notifier
	Hub        *notify.Hub
	Buy        *trade.BuyService
	Sell       *trade.SellService
	Reconciler *reconcile.Reconciler

	closers []func() error
}

// NewStore opens the main database and builds what needs no wallet: repositories,
// settings and the guard.
func NewStore(ctx context.Context, log *logrus.Entry) (*App, error) {
	if database.MainDB == nil {
		if err := database.InitMainDB(); err != nil {
			return nil, fmt.Errorf("main database: %w", err)
		}
	}
	db := database.MainDB

	a := &App{
		Log:         log,
		Registry:    prometheus.NewRegistry(),
		Positions:   repository.NewPositionRepository().WithDB(db),
		Samples:     repository.NewPriceSampleRepository().WithDB(db),
		Executions:  repository.NewExecutionLogRepository().WithDB(db),
		Exceptions:  repository.NewExceptionRepository().WithDB(db),
		TradeConfig: repository.NewConfigRepository().WithDB(db),
	}
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = metrics.New(a.Registry)
	a.Guard = guard.New(log, a.Positions, a.Executions, repository.NewBlacklistRepository().WithDB(db))

	holder, err := settings.NewHolder(ctx, a.TradeConfig)
	if err != nil {
		return nil, err
	}
	a.Settings = holder
	return a, nil
}

// NewTrading builds the full app: store plus wallet, venue, services and reconciliation.
func NewTrading(ctx context.Context, log *logrus.Entry) (*App, error) {
	a, err := NewStore(ctx, log)
	if err != nil {
		return nil, err
	}

	wallet, err := security.LoadWallet()
	if err != nil {
		return nil, err
	}
	log.WithField("wallet", wallet.PublicKey().String()).Info("Wallet loaded")

	connConfig := connectors.GetConfig()
	a.Jupiter = connectors.NewJupiterClient(connConfig)
	a.Solana = connectors.NewSolanaClient(connConfig, wallet.PublicKey())
	fm := connectors.NewSolanaFMClient(connConfig)

	resolver := decimals.NewResolver(log, a.Settings.Current().DefaultTokenDecimals, fm, decimals.SourceFunc(a.Solana.MintDecimals))
	a.Swap = swap.NewExecutor(log, a.Jupiter, a.Solana, wallet, swap.GetConfig())

	locker, closeLocks, err := locks.New(ctx, locks.GetConfig(), log)
	if err != nil {
		return nil, err
	}
	a.Locks = locker
	a.closers = append(a.closers, closeLocks)

	notifyConfig := notify.GetConfig()
	a.Hub = notify.NewHub(log)
	sinks := []notify.Sink{a.Hub}
	if tg := notify.NewTelegram(notifyConfig); tg != nil {
		sinks = append(sinks, tg)
	}
	a.Notifier = notify.NewNotifier(log, notifyConfig, sinks...)
	a.closers = append(a.closers, func() error { a.Hub.Close(); return nil })

	tradeConfig := trade.GetConfig()
	deps := &trade.Deps{
		Log:        log,
		Config:     tradeConfig,
		Settings:   a.Settings,
		Positions:  a.Positions,
		Executions: a.Executions,
		Exceptions: a.Exceptions,
		Venue:      a.Swap,
		Wallet:     a.Solana,
		Decimals:   resolver,
		Guard:      a.Guard,
		Locks:      a.Locks,
		Notifier:   a.Notifier,
		Metrics:    a.Metrics,
	}
	a.Buy = trade.NewBuyService(deps)
	a.Sell = trade.NewSellService(deps)

	a.Reconciler = reconcile.New(log, reconcile.Options{
		Config:     reconcile.GetConfig(),
		Settings:   a.Settings,
		Holdings:   a.Solana,
		Positions:  a.Positions,
		Executions: a.Executions,
		Prices:     a.Jupiter,
		Decimals:   resolver,
		Locks:      a.Locks,
		Notifier:   a.Notifier,
		Metrics:    a.Metrics,

		ExecutionExpiry: tradeConfig.ExecutionExpiry,
	})

	if database.ReadOnlyDB == nil {
		if err := database.InitReadOnlyDB(); err != nil {
			return nil, err
		}
	}
	if database.ReadOnlyDB != nil {
		a.Suggestions = repository.NewSuggestionRepository().WithDB(database.ReadOnlyDB)
	}
	return a, nil
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Log.WithError(err).Warn("Close failed")
		}
	}
}
