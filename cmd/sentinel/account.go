package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/sentinel/internal/cache"
	"github.com/dropDatabas3/sentinel/internal/identity"
)

// newAccountCmd crea cuentas en el proveedor local. Sólo tiene sentido con
// cache redis: con memory la cuenta muere con el proceso.
func newAccountCmd(load loader) *cobra.Command {
	account := &cobra.Command{Use: "account", Short: "Cuentas del proveedor de identidad local"}

	var email, password string
	create := &cobra.Command{
		Use:   "create",
		Short: "Registra una cuenta sin iniciar sesión",
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" || password == "" {
				return fmt.Errorf("--email y --password son requeridos")
			}
			cfg, err := load()
			if err != nil {
				return err
			}
			if cfg.Cache.Kind != "redis" {
				return fmt.Errorf("account create requires cache.kind=redis (got %q)", cfg.Cache.Kind)
			}
			ctx := cmd.Context()
			cc, err := cache.New(ctx, cache.Config{
				Driver:   cfg.Cache.Kind,
				Addr:     cfg.Cache.Redis.Addr,
				Password: cfg.Cache.Redis.Password,
				DB:       cfg.Cache.Redis.DB,
				Prefix:   cfg.Cache.Redis.Prefix,
			})
			if err != nil {
				return err
			}
			defer cc.Close()

			p, err := identity.New(cc, identity.Config{
				Issuer:            cfg.Identity.Issuer,
				SigningKey:        []byte(cfg.Identity.SigningKey),
				SessionTTL:        cfg.SessionTTL(),
				BcryptCost:        cfg.Identity.BcryptCost,
				MinPasswordLength: cfg.Identity.MinPassword,
			})
			if err != nil {
				return err
			}
			subject, err := p.Register(ctx, email, password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), subject)
			return nil
		},
	}
	create.Flags().StringVar(&email, "email", "", "Email de la cuenta")
	create.Flags().StringVar(&password, "password", "", "Password (mínimo identity.min_password_length)")

	account.AddCommand(create)
	return account
}
