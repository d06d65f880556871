package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"seedbank/internal/api"
	"seedbank/internal/config"
	"seedbank/internal/db"
	"seedbank/internal/drafts"
	"seedbank/internal/metrics"
	"seedbank/internal/models"
)

const reapInterval = time.Minute

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long:  `Serves the inventory API, autosaves snapshots and expires idle edit sessions until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := cfg.NewLogger(os.Stdout)
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	gin.SetMode(gin.ReleaseMode)

	database := connectDatabase(ctx, cfg, logger)
	defer database.Close()

	inventory := models.NewInventory(cfg.HistoryLimit)
	store := newPersister(inventory, cfg, database, logger)
	if err := store.restore(ctx); err != nil {
		return err
	}

	m := metrics.New()
	sessions := drafts.NewManager(inventory, drafts.Options{
		TTL:          cfg.SessionTTL,
		HistoryLimit: cfg.SessionHistoryLimit,
		Logger:       logger,
		Observer:     m,
	})
	router := api.NewRouter(&api.Server{
		Database:  database,
		Inventory: inventory,
		Sessions:  sessions,
		Metrics:   m,
		Logger:    logger,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
		return nil
	})
	g.Go(func() error {
		return sessions.Run(gctx, reapInterval)
	})
	g.Go(func() error {
		return store.run(gctx, cfg.AutosaveInterval)
	})

	err := g.Wait()
	logger.Info("server stopped")
	return err
}

// connectDatabase returns nil when the database is disabled or unreachable.
// The service then persists to the data directory only.
func connectDatabase(ctx context.Context, cfg config.Config, logger *slog.Logger) *db.Database {
	if !cfg.DatabaseEnabled {
		return nil
	}
	database, err := db.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Warn("database connection warning", "error", err)
		return nil
	}
	return database
}
