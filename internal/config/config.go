package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Bloque app (opcional en YAML).
	App struct {
		// dev | staging | prod
		Env      string `yaml:"app_env"`
		LogLevel string `yaml:"log_level"`
		Name     string `yaml:"name"`
	} `yaml:"app"`

	Server struct {
		Addr            string `yaml:"addr"`
		ReadTimeout     string `yaml:"read_timeout"`
		WriteTimeout    string `yaml:"write_timeout"`
		ShutdownTimeout string `yaml:"shutdown_timeout"`
		// TrustProxy: sólo detrás de un proxy que reescribe X-Forwarded-For.
		TrustProxy bool `yaml:"trust_proxy"`
	} `yaml:"server"`

	// Storage del ProfileRecord. driver: memory | postgres
	Storage struct {
		Driver   string `yaml:"driver"`
		DSN      string `yaml:"dsn"`
		Postgres struct {
			MaxOpenConns    int    `yaml:"max_open_conns"`
			MaxIdleConns    int    `yaml:"max_idle_conns"`
			ConnMaxLifetime string `yaml:"conn_max_lifetime"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	// Storage de imágenes. driver: fs | memory
	Assets struct {
		Driver        string `yaml:"driver"`
		Root          string `yaml:"root"`
		Bucket        string `yaml:"bucket"`
		PublicBaseURL string `yaml:"public_base_url"`
	} `yaml:"assets"`

	Cache struct {
		Kind  string `yaml:"kind"` // memory | redis
		Redis struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
		Memory struct {
			DefaultTTL string `yaml:"default_ttl"`
		} `yaml:"memory"`
	} `yaml:"cache"`

	// Proveedor de identidad local.
	Identity struct {
		Issuer       string `yaml:"issuer"`
		SigningKey   string `yaml:"signing_key"`
		SessionTTL   string `yaml:"session_ttl"`
		BcryptCost   int    `yaml:"bcrypt_cost"`
		MinPassword  int    `yaml:"min_password_length"`
		SeedEmail    string `yaml:"seed_email"`
		SeedPassword string `yaml:"seed_password"`
	} `yaml:"identity"`

	Capture struct {
		Device       string `yaml:"device"` // synthetic
		FrameTimeout string `yaml:"frame_timeout"`
		Synthetic    struct {
			Warmup  string `yaml:"warmup"`
			Width   int    `yaml:"width"`
			Height  int    `yaml:"height"`
			Deny    bool   `yaml:"deny"`
			Absent  bool   `yaml:"absent"`
		} `yaml:"synthetic"`
	} `yaml:"capture"`

	Enrollment struct {
		JPEGQuality int    `yaml:"jpeg_quality"`
		ContentType string `yaml:"content_type"`
		Timeout     string `yaml:"timeout"`
	} `yaml:"enrollment"`

	Simulator struct {
		Stages []string `yaml:"stages"`
		Dwell  string   `yaml:"dwell"`
	} `yaml:"simulator"`

	SMTP struct {
		Host               string `yaml:"host"`
		Port               int    `yaml:"port"`
		Username           string `yaml:"username"`
		Password           string `yaml:"password"`
		From               string `yaml:"from"`
		TLS                string `yaml:"tls"`                  // auto | starttls | ssl | none
		InsecureSkipVerify bool   `yaml:"insecure_skip_verify"` // sólo dev
	} `yaml:"smtp"`

	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`

	// Límite de intentos de signin/signup por IP. Usa el mismo backend que cache.kind.
	Rate struct {
		Disabled bool   `yaml:"disabled"`
		Max      int    `yaml:"max"`
		Window   string `yaml:"window"`
	} `yaml:"rate"`
}

// Default retorna una configuración con todos los defaults aplicados.
func Default() *Config {
	var c Config
	c.applyDefaults()
	return &c
}

// Load lee el YAML en path, aplica defaults, overrides por env (SENTINEL_*)
// y valida. path vacío => sólo defaults + env.
func Load(path string) (*Config, error) {
	var c Config
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	c.applyDefaults()
	c.applyEnvOverrides()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.App.Name == "" {
		c.App.Name = "sentinel"
	}

	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ReadTimeout == "" {
		c.Server.ReadTimeout = "15s"
	}
	if c.Server.WriteTimeout == "" {
		c.Server.WriteTimeout = "30s"
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = "10s"
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Storage.Postgres.MaxOpenConns == 0 {
		c.Storage.Postgres.MaxOpenConns = 10
	}
	if c.Storage.Postgres.ConnMaxLifetime == "" {
		c.Storage.Postgres.ConnMaxLifetime = "30m"
	}

	if c.Assets.Driver == "" {
		c.Assets.Driver = "fs"
	}
	if c.Assets.Root == "" {
		c.Assets.Root = "./data/assets"
	}
	if c.Assets.Bucket == "" {
		c.Assets.Bucket = "users"
	}
	if c.Assets.PublicBaseURL == "" {
		c.Assets.PublicBaseURL = "http://localhost:8080/assets"
	}

	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.Redis.Prefix == "" {
		c.Cache.Redis.Prefix = "sentinel"
	}

	if c.Identity.Issuer == "" {
		c.Identity.Issuer = "sentinel-local"
	}
	if c.Identity.SessionTTL == "" {
		c.Identity.SessionTTL = "1h"
	}
	if c.Identity.BcryptCost == 0 {
		c.Identity.BcryptCost = 10
	}
	if c.Identity.MinPassword == 0 {
		c.Identity.MinPassword = 8
	}

	if c.Capture.Device == "" {
		c.Capture.Device = "synthetic"
	}
	if c.Capture.FrameTimeout == "" {
		c.Capture.FrameTimeout = "5s"
	}
	if c.Capture.Synthetic.Warmup == "" {
		c.Capture.Synthetic.Warmup = "300ms"
	}
	if c.Capture.Synthetic.Width == 0 {
		c.Capture.Synthetic.Width = 640
	}
	if c.Capture.Synthetic.Height == 0 {
		c.Capture.Synthetic.Height = 480
	}

	if c.Enrollment.JPEGQuality == 0 {
		c.Enrollment.JPEGQuality = 95
	}
	if c.Enrollment.ContentType == "" {
		c.Enrollment.ContentType = "image/jpeg"
	}
	if c.Enrollment.Timeout == "" {
		c.Enrollment.Timeout = "30s"
	}

	if len(c.Simulator.Stages) == 0 {
		c.Simulator.Stages = []string{"Transaction Data", "Context Analysis", "Smart Decision"}
	}
	if c.Simulator.Dwell == "" {
		c.Simulator.Dwell = "2s"
	}

	if c.SMTP.Port == 0 {
		c.SMTP.Port = 587
	}
	if c.SMTP.TLS == "" {
		c.SMTP.TLS = "auto"
	}

	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}

	if c.Rate.Max == 0 {
		c.Rate.Max = 10
	}
	if c.Rate.Window == "" {
		c.Rate.Window = "1m"
	}
}

// Validate verifica enums, duraciones y rangos.
func (c *Config) Validate() error {
	var errs []error

	durations := map[string]string{
		"server.read_timeout":                c.Server.ReadTimeout,
		"server.write_timeout":               c.Server.WriteTimeout,
		"server.shutdown_timeout":            c.Server.ShutdownTimeout,
		"storage.postgres.conn_max_lifetime": c.Storage.Postgres.ConnMaxLifetime,
		"cache.memory.default_ttl":           c.Cache.Memory.DefaultTTL,
		"identity.session_ttl":               c.Identity.SessionTTL,
		"capture.frame_timeout":              c.Capture.FrameTimeout,
		"capture.synthetic.warmup":           c.Capture.Synthetic.Warmup,
		"enrollment.timeout":                 c.Enrollment.Timeout,
		"simulator.dwell":                    c.Simulator.Dwell,
		"rate.window":                        c.Rate.Window,
	}
	for name, v := range durations {
		if v == "" {
			continue
		}
		if _, err := time.ParseDuration(v); err != nil {
			errs = append(errs, fmt.Errorf("config: %s: %w", name, err))
		}
	}

	switch strings.ToLower(c.Storage.Driver) {
	case "memory":
	case "postgres", "pg":
		if strings.TrimSpace(c.Storage.DSN) == "" {
			errs = append(errs, errors.New("config: storage.dsn is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: unknown storage.driver %q", c.Storage.Driver))
	}

	switch strings.ToLower(c.Assets.Driver) {
	case "fs", "memory":
	default:
		errs = append(errs, fmt.Errorf("config: unknown assets.driver %q", c.Assets.Driver))
	}

	switch strings.ToLower(c.Cache.Kind) {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("config: unknown cache.kind %q", c.Cache.Kind))
	}

	switch strings.ToLower(c.SMTP.TLS) {
	case "auto", "starttls", "ssl", "none":
	default:
		errs = append(errs, fmt.Errorf("config: unknown smtp.tls %q", c.SMTP.TLS))
	}

	if q := c.Enrollment.JPEGQuality; q < 1 || q > 100 {
		errs = append(errs, fmt.Errorf("config: enrollment.jpeg_quality must be in 1..100, got %d", q))
	}
	if c.Capture.Synthetic.Width <= 0 || c.Capture.Synthetic.Height <= 0 {
		errs = append(errs, errors.New("config: capture.synthetic width/height must be positive"))
	}
	for i, s := range c.Simulator.Stages {
		if strings.TrimSpace(s) == "" {
			errs = append(errs, fmt.Errorf("config: simulator.stages[%d] is empty", i))
		}
	}

	if !c.Rate.Disabled && c.Rate.Max < 0 {
		errs = append(errs, fmt.Errorf("config: rate.max must be positive, got %d", c.Rate.Max))
	}

	if strings.EqualFold(c.App.Env, "prod") && strings.TrimSpace(c.Identity.SigningKey) == "" {
		errs = append(errs, errors.New("config: identity.signing_key is required in prod"))
	}

	return errors.Join(errs...)
}

// ---- Accessors de duraciones (ya validadas) ----

func dur(s string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
		return d
	}
	return def
}

func (c *Config) ReadTimeout() time.Duration     { return dur(c.Server.ReadTimeout, 15*time.Second) }
func (c *Config) WriteTimeout() time.Duration    { return dur(c.Server.WriteTimeout, 30*time.Second) }
func (c *Config) ShutdownTimeout() time.Duration { return dur(c.Server.ShutdownTimeout, 10*time.Second) }
func (c *Config) ConnMaxLifetime() time.Duration {
	return dur(c.Storage.Postgres.ConnMaxLifetime, 30*time.Minute)
}
func (c *Config) CacheDefaultTTL() time.Duration { return dur(c.Cache.Memory.DefaultTTL, 0) }
func (c *Config) SessionTTL() time.Duration      { return dur(c.Identity.SessionTTL, time.Hour) }
func (c *Config) FrameTimeout() time.Duration    { return dur(c.Capture.FrameTimeout, 5*time.Second) }
func (c *Config) SyntheticWarmup() time.Duration {
	return dur(c.Capture.Synthetic.Warmup, 300*time.Millisecond)
}
func (c *Config) EnrollmentTimeout() time.Duration { return dur(c.Enrollment.Timeout, 30*time.Second) }
func (c *Config) SimulatorDwell() time.Duration    { return dur(c.Simulator.Dwell, 2*time.Second) }
func (c *Config) RateWindow() time.Duration        { return dur(c.Rate.Window, time.Minute) }

// SMTPEnabled indica si hay un servidor SMTP configurado.
func (c *Config) SMTPEnabled() bool {
	return strings.TrimSpace(c.SMTP.Host) != "" && strings.TrimSpace(c.SMTP.From) != ""
}

// ---- Helpers env ----

const envPrefix = "SENTINEL_"

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(envPrefix + key)
	return v, v != ""
}
func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}
func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}
func getEnvCSV(key string) ([]string, bool) {
	if s, ok := getEnvStr(key); ok {
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out, true
	}
	return nil, false
}

func (c *Config) applyEnvOverrides() {
	// App
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = v
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.App.LogLevel = v
	}

	// Server
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvBool("SERVER_TRUST_PROXY"); ok {
		c.Server.TrustProxy = v
	}

	// Storage
	if v, ok := getEnvStr("STORAGE_DRIVER"); ok {
		c.Storage.Driver = v
	}
	if v, ok := getEnvStr("STORAGE_DSN"); ok {
		c.Storage.DSN = v
	}
	if v, ok := getEnvInt("POSTGRES_MAX_OPEN_CONNS"); ok {
		c.Storage.Postgres.MaxOpenConns = v
	}

	// Assets
	if v, ok := getEnvStr("ASSETS_DRIVER"); ok {
		c.Assets.Driver = v
	}
	if v, ok := getEnvStr("ASSETS_ROOT"); ok {
		c.Assets.Root = v
	}
	if v, ok := getEnvStr("ASSETS_BUCKET"); ok {
		c.Assets.Bucket = v
	}
	if v, ok := getEnvStr("ASSETS_PUBLIC_BASE_URL"); ok {
		c.Assets.PublicBaseURL = v
	}

	// Cache
	if v, ok := getEnvStr("CACHE_KIND"); ok {
		c.Cache.Kind = v
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Cache.Redis.Addr = v
	}
	if v, ok := getEnvStr("REDIS_PASSWORD"); ok {
		c.Cache.Redis.Password = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Cache.Redis.DB = v
	}

	// Identity
	if v, ok := getEnvStr("IDENTITY_SIGNING_KEY"); ok {
		c.Identity.SigningKey = v
	}
	if v, ok := getEnvStr("IDENTITY_SESSION_TTL"); ok {
		c.Identity.SessionTTL = v
	}
	if v, ok := getEnvStr("IDENTITY_SEED_EMAIL"); ok {
		c.Identity.SeedEmail = v
	}
	if v, ok := getEnvStr("IDENTITY_SEED_PASSWORD"); ok {
		c.Identity.SeedPassword = v
	}

	// Capture
	if v, ok := getEnvStr("CAPTURE_FRAME_TIMEOUT"); ok {
		c.Capture.FrameTimeout = v
	}
	if v, ok := getEnvBool("CAPTURE_SYNTHETIC_DENY"); ok {
		c.Capture.Synthetic.Deny = v
	}
	if v, ok := getEnvBool("CAPTURE_SYNTHETIC_ABSENT"); ok {
		c.Capture.Synthetic.Absent = v
	}

	// Enrollment
	if v, ok := getEnvInt("ENROLLMENT_JPEG_QUALITY"); ok {
		c.Enrollment.JPEGQuality = v
	}

	// Simulator
	if v, ok := getEnvCSV("SIMULATOR_STAGES"); ok && len(v) > 0 {
		c.Simulator.Stages = v
	}
	if v, ok := getEnvStr("SIMULATOR_DWELL"); ok {
		c.Simulator.Dwell = v
	}

	// SMTP
	if v, ok := getEnvStr("SMTP_HOST"); ok {
		c.SMTP.Host = v
	}
	if v, ok := getEnvInt("SMTP_PORT"); ok {
		c.SMTP.Port = v
	}
	if v, ok := getEnvStr("SMTP_USERNAME"); ok {
		c.SMTP.Username = v
	}
	if v, ok := getEnvStr("SMTP_PASSWORD"); ok {
		c.SMTP.Password = v
	}
	if v, ok := getEnvStr("SMTP_FROM"); ok {
		c.SMTP.From = v
	}
	if v, ok := getEnvStr("SMTP_TLS"); ok {
		c.SMTP.TLS = v
	}

	// Metrics
	if v, ok := getEnvBool("METRICS_ENABLED"); ok {
		c.Metrics.Enabled = v
	}

	// Rate
	if v, ok := getEnvBool("RATE_DISABLED"); ok {
		c.Rate.Disabled = v
	}
	if v, ok := getEnvInt("RATE_MAX"); ok {
		c.Rate.Max = v
	}
	if v, ok := getEnvStr("RATE_WINDOW"); ok {
		c.Rate.Window = v
	}
}
