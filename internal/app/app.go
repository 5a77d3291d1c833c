// Package app initializes and holds long-lived application services, acting
// as the dependency injection container for the service binary.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sitescout/sitescout/internal/answer"
	"github.com/sitescout/sitescout/internal/api"
	"github.com/sitescout/sitescout/internal/bridge"
	"github.com/sitescout/sitescout/internal/config"
	"github.com/sitescout/sitescout/internal/crawler"
	"github.com/sitescout/sitescout/internal/fetcher/headless"
	"github.com/sitescout/sitescout/internal/live"
	"github.com/sitescout/sitescout/internal/search"
	"github.com/sitescout/sitescout/internal/store/postgres"
)

// App holds the shared, long-lived services for the application.
type App struct {
	logger *zap.Logger
	server *api.Server
	store  *postgres.Store
	pool   *bridge.Pool
}

// Server exposes the HTTP surface for the binary to serve.
func (a *App) Server() *api.Server {
	return a.server
}

// Close releases pooled resources.
func (a *App) Close() {
	a.pool.Close()
	if a.store != nil {
		a.store.Close()
	}
}

// New builds the service graph from configuration. An empty db.dsn runs
// without persistence: crawling, search and live sessions still work, while
// history and chat report unavailable.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	factory := headless.NewFactory(headless.Config{
		UserAgent:         cfg.Headless.UserAgent,
		NavigationTimeout: cfg.NavTimeout(),
		SettleDelay:       cfg.SettleDelay(),
		ViewportW:         cfg.Headless.ViewportWidth,
		ViewportH:         cfg.Headless.ViewportHeight,
	})

	orch := crawler.NewOrchestrator(factory, crawler.SystemClock{}, logger.Named("crawler"))
	pool := bridge.NewPool(cfg.Crawler.Workers, logger.Named("bridge"))

	searcher := search.New(search.Config{
		UserAgent:  cfg.Search.UserAgent,
		MaxResults: cfg.Search.MaxResults,
		Timeout:    15 * time.Second,
	}, logger.Named("search"))

	answers := answer.New(answer.Config{
		APIKey:    cfg.Answer.APIKey,
		Model:     cfg.Answer.Model,
		MaxTokens: cfg.Answer.MaxTokens,
	}, logger.Named("answer"))

	var store *postgres.Store
	var apiStore api.Store
	if cfg.DB.DSN != "" {
		var err error
		store, err = postgres.New(ctx, postgres.Config{
			DSN:      cfg.DB.DSN,
			MaxConns: int32(cfg.DB.MaxConns),
		})
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("initialize store: %w", err)
		}
		if err := store.Init(ctx); err != nil {
			store.Close()
			pool.Close()
			return nil, fmt.Errorf("initialize schema: %w", err)
		}
		apiStore = store
		logger.Info("postgres store ready")
	} else {
		logger.Warn("db.dsn is empty, running without persistence")
	}

	ctrl := live.NewController(factory, pool, searcher, answers, live.Config{
		Heartbeat:    cfg.Heartbeat(),
		FramesPerSec: cfg.Live.FramesPerSec,
	}, logger.Named("live"))

	server := api.NewServer(orch, apiStore, answers, searcher, ctrl, cfg, logger.Named("api"))

	return &App{
		logger: logger,
		server: server,
		store:  store,
		pool:   pool,
	}, nil
}
