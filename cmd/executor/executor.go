package executor

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"tokenexecutor/src/executors"
	"tokenexecutor/src/server"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type Executor struct{}

// Start runs the daemon until SIGINT or SIGTERM: price monitor, suggestion poller,
// reconciliation, notifications, settings reload and the HTTP API.
func (t *Executor) Start() error {
	config := GetConfig()
	loopConfig := executors.GetConfig()
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	log := logrus.WithField("cmd", "executor")
	app, err := NewTrading(ctx, log)
	if err != nil {
		log.WithError(err).Error("Failed to wire executor")
		return err
	}
	defer app.Close()

	cfg := app.Settings.Current()
	log.WithFields(cfg.Fields()).Info("Trade settings loaded")
	if !cfg.AutoTradingEnabled {
		log.Warn("Auto trading is disabled, only open positions will be managed")
	}

	if config.ReconcileOnStart {
		if _, err := app.Reconciler.RunOnce(ctx); err != nil {
			log.WithError(err).Warn("Startup reconciliation failed")
		}
	}

	monitor := executors.NewPriceMonitor(log, app.Positions, app.Samples, app.Jupiter, app.Sell, app.Settings, app.Metrics, loopConfig.MonitorConcurrency)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return app.Notifier.Run(gctx) })
	g.Go(func() error { return monitor.Run(gctx) })
	g.Go(func() error { return app.Reconciler.Run(gctx) })
	g.Go(func() error { return executors.ReloadSettings(gctx, app.Settings, loopConfig.SettingsReloadPeriod) })

	if app.Suggestions != nil {
		poller := executors.NewSuggestionPoller(log, app.Suggestions, app.Buy, app.Settings, loopConfig)
		g.Go(func() error { return poller.Run(gctx) })
	}

	if config.HTTPEnabled {
		serverConfig := server.GetConfig()
		router := server.NewRouter(serverConfig, server.Routes{
			Positions: app.Positions,
			Samples:   app.Samples,
			Buyer:     app.Buy,
			Seller:    app.Sell,
			Blacklist: app.Guard,
			Gatherer:  app.Registry,
			WS:        app.Hub.HandleWS,
		})
		g.Go(func() error { return server.Serve(gctx, serverConfig, router) })
	}

	err = g.Wait()
	if err != nil {
		log.WithError(err).Error("Executor stopped with error")
		return err
	}
	log.Info("Executor stopped")
	return nil
}
