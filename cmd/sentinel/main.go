package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/sentinel/internal/config"
	"github.com/dropDatabas3/sentinel/internal/observability/logger"

	// registra los adapters de storage vía init()
	_ "github.com/dropDatabas3/sentinel/internal/store/adapters/dal"
)

var version = "dev"

type loader func() (*config.Config, error)

func main() {
	var (
		cfgPath string
		envFile string
	)

	root := &cobra.Command{
		Use:           "sentinel",
		Short:         "Session gate + biometric onboarding client",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// El .env es opcional salvo que se pida uno explícito.
			if err := godotenv.Load(envFile); err != nil && cmd.Flags().Changed("env-file") {
				return fmt.Errorf("load %s: %w", envFile, err)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", envOr("SENTINEL_CONFIG", ""), "Path al YAML de configuración (env SENTINEL_CONFIG)")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Archivo .env a cargar")

	load := func() (*config.Config, error) {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return nil, err
		}
		logger.Init(logger.Config{
			Env:         cfg.App.Env,
			Level:       cfg.App.LogLevel,
			ServiceName: cfg.App.Name,
			Version:     version,
		})
		return cfg, nil
	}

	root.AddCommand(
		newServeCmd(load),
		newMigrateCmd(load),
		newSimulateCmd(load),
		newAccountCmd(load),
	)

	err := root.Execute()
	_ = logger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
