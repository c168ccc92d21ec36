package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/sentinel/internal/observability/logger"
	"github.com/dropDatabas3/sentinel/internal/store"
)

func newMigrateCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Aplica las migraciones del storage de perfiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			conn, err := store.OpenAdapter(ctx, store.AdapterConfig{
				Name:            cfg.Storage.Driver,
				DSN:             cfg.Storage.DSN,
				MaxOpenConns:    cfg.Storage.Postgres.MaxOpenConns,
				MaxIdleConns:    cfg.Storage.Postgres.MaxIdleConns,
				ConnMaxLifetime: cfg.Storage.Postgres.ConnMaxLifetime,
			})
			if err != nil {
				return err
			}
			defer conn.Close()

			mc, ok := conn.(store.MigratableConnection)
			if !ok {
				return fmt.Errorf("storage driver %q has no migrations", conn.Name())
			}
			applied, err := mc.Migrate(ctx)
			if err != nil {
				return err
			}
			for _, name := range applied {
				fmt.Fprintln(cmd.OutOrStdout(), "applied", name)
			}
			logger.L().Info("migrations done", logger.Int("applied", len(applied)))
			return nil
		},
	}
}
