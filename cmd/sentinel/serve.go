package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/sentinel/internal/app"
	"github.com/dropDatabas3/sentinel/internal/observability/logger"
)

func newServeCmd(load loader) *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Levanta la API HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := app.Build(ctx, cfg, app.Options{AutoMigrate: migrate})
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					logger.L().Warn("shutdown cleanup failed", logger.Err(err))
				}
			}()

			srv := &http.Server{
				Addr:         cfg.Server.Addr,
				Handler:      a.Handler,
				ReadTimeout:  cfg.ReadTimeout(),
				WriteTimeout: cfg.WriteTimeout(),
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				logger.L().Info("listening", logger.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout())
				defer cancel()
				logger.L().Info("shutting down")
				return srv.Shutdown(sctx)
			})
			return g.Wait()
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", true, "Aplicar migraciones al iniciar (postgres)")
	return cmd
}
