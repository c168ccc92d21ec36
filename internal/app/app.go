// Package app arma la aplicación completa a partir de la configuración:
// storage, cache, identidad, guard, cámara, enrollment, simulador y la API.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dropDatabas3/sentinel/internal/assets"
	"github.com/dropDatabas3/sentinel/internal/cache"
	"github.com/dropDatabas3/sentinel/internal/capture"
	"github.com/dropDatabas3/sentinel/internal/capture/synthetic"
	"github.com/dropDatabas3/sentinel/internal/config"
	"github.com/dropDatabas3/sentinel/internal/email"
	"github.com/dropDatabas3/sentinel/internal/enrollment"
	"github.com/dropDatabas3/sentinel/internal/guard"
	authctrl "github.com/dropDatabas3/sentinel/internal/http/controllers/auth"
	democtrl "github.com/dropDatabas3/sentinel/internal/http/controllers/demo"
	healthctrl "github.com/dropDatabas3/sentinel/internal/http/controllers/health"
	onbctrl "github.com/dropDatabas3/sentinel/internal/http/controllers/onboarding"
	screenctrl "github.com/dropDatabas3/sentinel/internal/http/controllers/screen"
	"github.com/dropDatabas3/sentinel/internal/http/router"
	"github.com/dropDatabas3/sentinel/internal/identity"
	"github.com/dropDatabas3/sentinel/internal/metrics"
	"github.com/dropDatabas3/sentinel/internal/observability/logger"
	"github.com/dropDatabas3/sentinel/internal/onboarding"
	"github.com/dropDatabas3/sentinel/internal/profile"
	"github.com/dropDatabas3/sentinel/internal/rate"
	"github.com/dropDatabas3/sentinel/internal/session"
	"github.com/dropDatabas3/sentinel/internal/simulator"
	"github.com/dropDatabas3/sentinel/internal/store"
	_ "github.com/dropDatabas3/sentinel/internal/store/adapters/dal"
)

// Options ajustes que no vienen del YAML.
type Options struct {
	// Registerer para las métricas; nil = registry propio.
	Registerer prometheus.Registerer
	// AutoMigrate aplica migraciones si el storage las soporta.
	AutoMigrate bool
}

// App es la aplicación cableada.
type App struct {
	Handler  http.Handler
	Identity *identity.Provider
	Sessions *session.Store
	Guard    *guard.Guard
	Flow     *onboarding.Flow
	Runner   *simulator.Runner
	Metrics  *metrics.Metrics
	Device   *synthetic.Device

	closers []func() error
}

// Build crea todos los componentes. ctx vive lo que vive la app: los runs
// del simulador y los ciclos del guard cuelgan de él.
func Build(ctx context.Context, cfg *config.Config, opts Options) (_ *App, err error) {
	log := logger.From(ctx).With(logger.Component("app"), logger.Op("Build"))
	a := &App{}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	// 1. Metrics
	if cfg.Metrics.Enabled {
		reg := opts.Registerer
		if reg == nil {
			reg = prometheus.NewRegistry()
		}
		if a.Metrics, err = metrics.New(reg); err != nil {
			return nil, fmt.Errorf("metrics: %w", err)
		}
	}

	// 2. Cache (sesión + credenciales)
	cc, err := cache.New(ctx, cache.Config{
		Driver:     cfg.Cache.Kind,
		Addr:       cfg.Cache.Redis.Addr,
		Password:   cfg.Cache.Redis.Password,
		DB:         cfg.Cache.Redis.DB,
		Prefix:     cfg.Cache.Redis.Prefix,
		DefaultTTL: cfg.CacheDefaultTTL(),
	})
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	a.closers = append(a.closers, cc.Close)

	// 3. Storage de perfiles
	conn, err := store.OpenAdapter(ctx, store.AdapterConfig{
		Name:            cfg.Storage.Driver,
		DSN:             cfg.Storage.DSN,
		MaxOpenConns:    cfg.Storage.Postgres.MaxOpenConns,
		MaxIdleConns:    cfg.Storage.Postgres.MaxIdleConns,
		ConnMaxLifetime: cfg.Storage.Postgres.ConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	a.closers = append(a.closers, conn.Close)
	if mc, ok := conn.(store.MigratableConnection); ok && opts.AutoMigrate {
		applied, err := mc.Migrate(ctx)
		if err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		log.Info("migrations applied", logger.Int("count", len(applied)))
	}

	// 4. Assets
	assetRepo, err := assets.New(assets.Config{
		Driver:        cfg.Assets.Driver,
		Root:          cfg.Assets.Root,
		Bucket:        cfg.Assets.Bucket,
		PublicBaseURL: cfg.Assets.PublicBaseURL,
	})
	if err != nil {
		return nil, err
	}
	var assetHandler http.Handler
	if fs, ok := assetRepo.(*assets.FS); ok {
		assetHandler = fs.Handler()
	}

	// 5. Identidad + sesión
	a.Identity, err = identity.New(cc, identity.Config{
		Issuer:            cfg.Identity.Issuer,
		SigningKey:        []byte(cfg.Identity.SigningKey),
		SessionTTL:        cfg.SessionTTL(),
		BcryptCost:        cfg.Identity.BcryptCost,
		MinPasswordLength: cfg.Identity.MinPassword,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() error { a.Identity.Close(); return nil })
	if err := seedAccount(ctx, a.Identity, cfg); err != nil {
		return nil, err
	}
	a.Sessions = session.NewStore(ctx, a.Identity)
	a.closers = append(a.closers, func() error { a.Sessions.Close(); return nil })

	// 6. Guard
	resolver := profile.NewResolver(conn.Profiles(), a.Metrics)
	a.Guard = guard.New(a.Sessions, resolver, a.Identity, a.Metrics)
	a.Guard.Start(ctx)
	a.closers = append(a.closers, func() error { a.Guard.Stop(); return nil })

	// 7. Cámara + enrollment + onboarding
	if d := strings.ToLower(cfg.Capture.Device); d != "synthetic" {
		return nil, fmt.Errorf("capture: unsupported device %q", cfg.Capture.Device)
	}
	a.Device = synthetic.New(synthetic.Config{
		Warmup: cfg.SyntheticWarmup(),
		Width:  cfg.Capture.Synthetic.Width,
		Height: cfg.Capture.Synthetic.Height,
		Deny:   cfg.Capture.Synthetic.Deny,
		Absent: cfg.Capture.Synthetic.Absent,
	})
	pipeline := enrollment.New(enrollment.Config{
		Assets:      assetRepo,
		Profiles:    conn.Profiles(),
		JPEGQuality: cfg.Enrollment.JPEGQuality,
		ContentType: cfg.Enrollment.ContentType,
		Timeout:     cfg.EnrollmentTimeout(),
		Metrics:     a.Metrics,
	})
	a.Flow = onboarding.New(onboarding.Config{
		Sessions: a.Sessions,
		Guard:    a.Guard,
		Pipeline: pipeline,
		Device:   a.Device,
		Capture:  capture.Options{FrameTimeout: cfg.FrameTimeout(), Metrics: a.Metrics},
		Notifier: notifier(cfg),
		AppName:  cfg.App.Name,
	})
	a.closers = append(a.closers, func() error { a.Flow.Close(); return nil })

	// 8. Simulador
	a.Runner, err = simulator.New(cfg.Simulator.Stages, cfg.SimulatorDwell(), simulator.Options{Metrics: a.Metrics})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() error { a.Runner.Stop(); return nil })

	// 9. Rate limit de auth
	var authLimiter rate.Limiter
	if !cfg.Rate.Disabled {
		authLimiter, err = rate.New(ctx, rate.Config{
			Driver:   cfg.Cache.Kind,
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
			Prefix:   cfg.Cache.Redis.Prefix,
			Max:      cfg.Rate.Max,
			Window:   cfg.RateWindow(),
		})
		if err != nil {
			return nil, err
		}
		if c, ok := authLimiter.(io.Closer); ok {
			a.closers = append(a.closers, c.Close)
		}
	}

	// 10. HTTP
	a.Handler = router.New(router.Deps{
		Auth:   authctrl.NewController(a.Identity, a.Guard),
		Screen: screenctrl.NewController(a.Guard),
		Onboarding: onbctrl.NewController(a.Flow, func() string {
			return a.Guard.CurrentScreen().String()
		}),
		Demo: democtrl.NewController(ctx, a.Runner),
		Health: healthctrl.NewController(map[string]healthctrl.Check{
			"storage": conn.Ping,
			"cache":   cc.Ping,
		}),
		Metrics:     a.Metrics,
		MetricsPath: cfg.Metrics.Path,
		Assets:      assetHandler,
		AuthLimiter: authLimiter,
		TrustProxy:  cfg.Server.TrustProxy,
	})

	log.Info("app ready",
		logger.String("storage", conn.Name()),
		logger.String("cache", cfg.Cache.Kind),
		logger.String("assets", cfg.Assets.Driver),
		logger.Bool("smtp", cfg.SMTPEnabled()),
		logger.Bool("metrics", a.Metrics != nil),
		logger.Bool("rate_limit", authLimiter != nil),
	)
	return a, nil
}

func seedAccount(ctx context.Context, p *identity.Provider, cfg *config.Config) error {
	if strings.TrimSpace(cfg.Identity.SeedEmail) == "" {
		return nil
	}
	subject, err := p.Register(ctx, cfg.Identity.SeedEmail, cfg.Identity.SeedPassword)
	switch {
	case errors.Is(err, identity.ErrEmailTaken):
		return nil
	case err != nil:
		return fmt.Errorf("seed account: %w", err)
	}
	logger.From(ctx).Info("seed account created", logger.Email(cfg.Identity.SeedEmail), logger.SubjectID(subject))
	return nil
}

func notifier(cfg *config.Config) email.Notifier {
	if !cfg.SMTPEnabled() {
		return email.Noop{}
	}
	return email.NewMailNotifier(email.NewSMTPSender(email.SMTPConfig{
		Host:               cfg.SMTP.Host,
		Port:               cfg.SMTP.Port,
		Username:           cfg.SMTP.Username,
		Password:           cfg.SMTP.Password,
		From:               cfg.SMTP.From,
		TLSMode:            cfg.SMTP.TLS,
		InsecureSkipVerify: cfg.SMTP.InsecureSkipVerify,
	}))
}

// Close libera los componentes en orden inverso al de creación.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
