package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cozy-crashes/crashlens/internal/server"
	"github.com/cozy-crashes/crashlens/internal/store"
	"github.com/cozy-crashes/crashlens/internal/upload"
)

func serveCMD(cfgPath *string) *cobra.Command {
	var (
		addr        string
		autoMigrate bool
	)
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(*cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := a.bootstrapRemote(ctx); err != nil {
				return err
			}
			if err := a.buildPipeline(ctx); err != nil {
				return err
			}
			if a.cfg.Remote.URL != "" {
				go a.remote.Run(ctx)
			}

			deps := server.Deps{
				Pipeline:       a.pipeline,
				Config:         a.remote,
				Uploader:       upload.NewMclogs(a.client, a.cfg.Mclogs.Endpoint),
				Logger:         a.logger,
				Metrics:        a.metrics,
				RequestTimeout: a.cfg.Server.RequestTimeout,
				MaxBodyBytes:   a.cfg.Server.MaxBodyBytes,
			}
			if a.registry != nil {
				deps.Gatherer = a.registry
			}
			if a.cfg.Server.JWTSecret != "" {
				deps.Secret = []byte(a.cfg.Server.JWTSecret)
			} else {
				a.logger.Warn("server.jwt_secret not set, /api is unauthenticated")
			}

			if pg := a.cfg.Storage.Postgres; pg.Enabled() {
				st, err := openStore(ctx, a, autoMigrate)
				if err != nil {
					return err
				}
				a.closers = append(a.closers, st.Close)
				deps.Store = st
				if pg.Retention > 0 {
					go pruneLoop(ctx, a.logger, st, pg.Retention)
				}
			}

			if addr == "" {
				addr = a.cfg.Server.Address
			}
			return server.New(deps).Run(ctx, addr)
		},
	}
	serve.Flags().StringVar(&addr, "addr", "", "listen address (default server.address)")
	serve.Flags().BoolVar(&autoMigrate, "migrate", true, "apply database migrations on start")
	return serve
}

func openStore(ctx context.Context, a *app, autoMigrate bool) (*store.Store, error) {
	pg := a.cfg.Storage.Postgres
	dsn, err := pg.DSN()
	if err != nil {
		return nil, err
	}
	if autoMigrate {
		if err := store.Migrate(pg.Migrations, dsn, "up", 0); err != nil {
			a.logger.Warn("migrations not applied", zap.Error(err))
		}
	}
	openCtx, cancel := context.WithTimeout(ctx, pg.Timeout)
	defer cancel()
	return store.NewWithDSN(openCtx, dsn)
}

// pruneLoop deletes reports older than retention once an hour.
func pruneLoop(ctx context.Context, logger *zap.Logger, st *store.Store, retention time.Duration) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		n, err := st.PruneReports(ctx, time.Now().Add(-retention))
		if err != nil {
			logger.Warn("prune reports", zap.Error(err))
		} else if n > 0 {
			logger.Info("pruned reports", zap.Int64("count", n))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
