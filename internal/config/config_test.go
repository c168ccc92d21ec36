package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoad_Defaults(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", c.Server.Addr)
	assert.Equal(t, "memory", c.Storage.Driver)
	assert.Equal(t, "users", c.Assets.Bucket)
	assert.Equal(t, 95, c.Enrollment.JPEGQuality)
	assert.Equal(t, []string{"Transaction Data", "Context Analysis", "Smart Decision"}, c.Simulator.Stages)
	assert.Equal(t, 2*time.Second, c.SimulatorDwell())
	assert.Equal(t, 5*time.Second, c.FrameTimeout())
	assert.False(t, c.SMTPEnabled())
}

func TestLoad_YAMLAndEnvOverride(t *testing.T) {
	p := writeYAML(t, `
server:
  addr: ":9090"
simulator:
  dwell: "150ms"
assets:
  bucket: faces
`)
	t.Setenv("SENTINEL_SERVER_ADDR", ":7070")
	t.Setenv("SENTINEL_SIMULATOR_STAGES", "One, Two")

	c, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, ":7070", c.Server.Addr)
	assert.Equal(t, "faces", c.Assets.Bucket)
	assert.Equal(t, 150*time.Millisecond, c.SimulatorDwell())
	assert.Equal(t, []string{"One", "Two"}, c.Simulator.Stages)
}

func TestLoad_InvalidDuration(t *testing.T) {
	p := writeYAML(t, "capture:\n  frame_timeout: \"soon\"\n")
	_, err := Load(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "capture.frame_timeout")
}

func TestValidate_PostgresNeedsDSN(t *testing.T) {
	c := Default()
	c.Storage.Driver = "postgres"
	require.Error(t, c.Validate())

	c.Storage.DSN = "postgres://localhost/sentinel"
	require.NoError(t, c.Validate())
}

func TestValidate_ProdRequiresSigningKey(t *testing.T) {
	c := Default()
	c.App.Env = "prod"
	require.Error(t, c.Validate())
	c.Identity.SigningKey = "k"
	require.NoError(t, c.Validate())
}

func TestValidate_JPEGQualityRange(t *testing.T) {
	c := Default()
	c.Enrollment.JPEGQuality = 101
	require.Error(t, c.Validate())
}

func TestLoad_RateDefaultsAndEnv(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.False(t, c.Rate.Disabled)
	assert.Equal(t, 10, c.Rate.Max)
	assert.Equal(t, time.Minute, c.RateWindow())

	t.Setenv("SENTINEL_RATE_MAX", "3")
	t.Setenv("SENTINEL_RATE_WINDOW", "30s")
	c, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, 3, c.Rate.Max)
	assert.Equal(t, 30*time.Second, c.RateWindow())
}

func TestLoad_TrustProxyOptIn(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.False(t, c.Server.TrustProxy)

	t.Setenv("SENTINEL_SERVER_TRUST_PROXY", "true")
	c, err = Load("")
	require.NoError(t, err)
	assert.True(t, c.Server.TrustProxy)
}
