package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/freight-quotes/internal/schedule"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "jobs.xlsx", cfg.Jobs.Path)
	assert.Equal(t, "USD", cfg.FX.Target)
	assert.Equal(t, []string{"Terminal Handling Service - Destination"}, cfg.FX.Exempt)
	require.Len(t, cfg.FX.Fallbacks, 1)
	for cur, rate := range cfg.FX.Fallbacks {
		assert.True(t, strings.EqualFold("COP", cur))
		assert.InDelta(t, 4000.0, rate, 1e-9)
	}
	assert.Equal(t, schedule.OldestFirst, cfg.SuccessOrder())
	assert.Equal(t, 2*time.Second, cfg.Pace())
	assert.Equal(t, []string{"cma", "hapag", "maersk"}, cfg.CarrierNames())
	assert.Equal(t, filepath.Join("data", "maersk_quotes.csv"), cfg.StorePath("maersk"))
	assert.InDelta(t, 0.5, cfg.Monitoring.ErrorRateThreshold, 1e-9)
	assert.Equal(t, 24, cfg.Monitoring.LookbackHours)
	assert.Empty(t, cfg.Monitoring.WebhookURL)

	maersk, err := cfg.Carrier("maersk")
	require.NoError(t, err)
	assert.True(t, maersk.Enabled)
	assert.Equal(t, "20 Dry", maersk.Defaults.ContainerType)
	assert.Equal(t, "I am the price owner", maersk.Defaults.PriceOwner)
	assert.InDelta(t, 26000.0, maersk.Defaults.WeightKg, 1e-9)
	assert.Equal(t, 7, maersk.Defaults.DateOffsetDays)

	cma, err := cfg.Carrier("CMA")
	require.NoError(t, err)
	assert.Equal(t, "FAK", cma.Defaults.Commodity)
	assert.Equal(t, 10, cma.Wait.TimeoutSecs)
}

func TestCarrierConfig_DriverConfig(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)
	maersk, err := cfg.Carrier("maersk")
	require.NoError(t, err)

	dc := maersk.DriverConfig()
	assert.Equal(t, 45*time.Second, dc.Wait.Timeout)
	assert.Equal(t, 10, dc.Wait.MaxRetries)
	assert.Equal(t, 600*time.Millisecond, dc.Wait.Backoff.Initial)
	assert.Equal(t, 2*time.Second, dc.Wait.Backoff.Max)
	assert.InDelta(t, 1.5, dc.Wait.Backoff.Multiplier, 1e-9)
	assert.Equal(t, 250*time.Millisecond, dc.Wait.PollInterval)
	assert.Equal(t, 3, dc.MaxFallbackOpens)

	pc := maersk.PortalConfig()
	assert.Equal(t, 30*time.Second, pc.FormTimeout)
	assert.Equal(t, time.Minute, pc.LoginTimeout)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
log:
  level: debug
  format: console
schedule:
  success_order: newest_first
carriers:
  hapag:
    store: /srv/quotes/hapag.csv
    urls:
      form: https://hapag.test/new-quote
    wait:
      max_retries: 4
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, schedule.NewestFirst, cfg.SuccessOrder())
	assert.Equal(t, "/srv/quotes/hapag.csv", cfg.StorePath("hapag"))

	hapag, err := cfg.Carrier("hapag")
	require.NoError(t, err)
	assert.Equal(t, "https://hapag.test/new-quote", hapag.URLs["form"])
	assert.Equal(t, 4, hapag.Wait.MaxRetries)
	// Defaults still apply for unset values
	assert.Equal(t, 45, hapag.Wait.TimeoutSecs)
	assert.Equal(t, "20' General Purpose", hapag.Defaults.ContainerType)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("log:\n  level: debug\n"), 0o644))
	t.Setenv("FREIGHT_LOG_LEVEL", "warn")
	t.Setenv("FREIGHT_CARRIERS_MAERSK_WAIT_MAX_RETRIES", "2")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Log.Level)
	maersk, err := cfg.Carrier("maersk")
	require.NoError(t, err)
	assert.Equal(t, 2, maersk.Wait.MaxRetries)
}

func TestLoadCredentials(t *testing.T) {
	dir := chdirTemp(t)

	t.Setenv("FREIGHT_CARRIERS_MAERSK_USERNAME", "maersk-ops")
	t.Setenv("CMA_USER", "cma-ops")
	t.Setenv("CMA_PASS", "cma-secret")

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("HL_USER=hapag-ops\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("HL_USER") }) //nolint:errcheck

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "maersk-ops", cfg.Carriers["maersk"].Username)
	assert.Equal(t, "cma-ops", cfg.Carriers["cma"].Username)
	assert.Equal(t, "cma-secret", cfg.Carriers["cma"].Password)
	assert.Equal(t, "hapag-ops", cfg.Carriers["hapag"].Username)
}

func TestLoadRejectsBadSuccessOrder(t *testing.T) {
	chdirTemp(t)
	t.Setenv("FREIGHT_SCHEDULE_SUCCESS_ORDER", "random")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "success_order")
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		FX:       FXConfig{Target: "USD"},
		Daily:    DailyConfig{Carriers: []string{"maersk"}},
		Carriers: map[string]CarrierConfig{"maersk": {}},
	}
	require.NoError(t, cfg.Validate())

	cfg.FX.Target = "DOLLAR"
	assert.Error(t, cfg.Validate())

	cfg.FX.Target = "USD"
	cfg.Daily.Carriers = append(cfg.Daily.Carriers, "msc")
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"msc"`)
}

func TestCarrierUnknown(t *testing.T) {
	cfg := &Config{Carriers: map[string]CarrierConfig{"cma": {}}}
	_, err := cfg.Carrier("msc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "have cma")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}
