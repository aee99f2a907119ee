package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"tokenexecutor/src/auth"
	"tokenexecutor/src/handler"
	"tokenexecutor/src/model"
	"tokenexecutor/src/repository"
	"tokenexecutor/src/trade"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	logger "github.com/sirupsen/logrus"
)

// Routes holds what the API exposes. Nil members leave their routes unmounted.
type Routes struct {
	Positions interface {
		List(ctx context.Context, opts repository.PositionSearchOptions) ([]model.Position, error)
	}
	Samples interface {
		ListByPosition(ctx context.Context, positionID uint, limit int) ([]model.PriceSample, error)
	}
	Buyer interface {
		AttemptBuy(ctx context.Context, sg trade.Suggestion) (*model.Position, error)
	}
	Seller interface {
		ExecuteSell(ctx context.Context, positionID uint, reason model.SellReason) (*model.Position, error)
	}
	Blacklist interface {
		ListBlacklist(ctx context.Context) ([]model.BlacklistEntry, error)
		ClearBlacklist(ctx context.Context, tokenAddress string) (bool, error)
	}
	Gatherer prometheus.Gatherer
	WS       http.HandlerFunc
}

func NewRouter(config *Config, routes Routes) chi.Router {
	r := chi.NewRouter()
	// === Global Middleware ===
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	// Public routes
	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error(" \"/health error")
		}
	})
	if routes.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(routes.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireToken(config.APIToken))
		if routes.WS != nil {
			r.Get("/ws", routes.WS)
		}
		r.Route("/api", func(r chi.Router) {
			if routes.Buyer != nil {
				r.Post("/suggestions", handler.SubmitSuggestionHandler(routes.Buyer))
			}
			if routes.Positions != nil {
				r.Get("/positions", handler.ListPositionsHandler(routes.Positions))
			}
			if routes.Samples != nil {
				r.Get("/positions/{id}/samples", handler.PositionSamplesHandler(routes.Samples))
			}
			if routes.Seller != nil {
				r.Post("/positions/{id}/close", handler.ClosePositionHandler(routes.Seller))
			}
			if routes.Blacklist != nil {
				r.Get("/blacklist", handler.ListBlacklistHandler(routes.Blacklist))
				r.Delete("/blacklist/{token}", handler.ClearBlacklistHandler(routes.Blacklist))
			}
		})
	})
	return r
}

// Serve runs the server until ctx is cancelled, then shuts it down gracefully.
func Serve(ctx context.Context, config *Config, h http.Handler) error {
	addr := ":" + config.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Shutdown error")
		return err
	}
	return nil
}
