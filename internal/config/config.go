package config

import (
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/freight-quotes/internal/carrier"
	"github.com/sells-group/freight-quotes/internal/quote"
	"github.com/sells-group/freight-quotes/internal/resilience"
	"github.com/sells-group/freight-quotes/internal/schedule"
)

// Config holds the full application configuration.
type Config struct {
	Log        LogConfig                `yaml:"log" mapstructure:"log"`
	Jobs       JobsConfig               `yaml:"jobs" mapstructure:"jobs"`
	Store      StoreConfig              `yaml:"store" mapstructure:"store"`
	RunLog     RunLogConfig             `yaml:"runlog" mapstructure:"runlog"`
	Diag       DiagConfig               `yaml:"diag" mapstructure:"diag"`
	FX         FXConfig                 `yaml:"fx" mapstructure:"fx"`
	Browser    BrowserConfig            `yaml:"browser" mapstructure:"browser"`
	Schedule   ScheduleConfig           `yaml:"schedule" mapstructure:"schedule"`
	Daily      DailyConfig              `yaml:"daily" mapstructure:"daily"`
	Monitoring MonitoringConfig         `yaml:"monitoring" mapstructure:"monitoring"`
	Carriers   map[string]CarrierConfig `yaml:"carriers" mapstructure:"carriers"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// JobsConfig locates the route job list.
type JobsConfig struct {
	Path  string `yaml:"path" mapstructure:"path"`
	Sheet string `yaml:"sheet" mapstructure:"sheet"`
}

// StoreConfig locates the per-carrier result store files.
type StoreConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// RunLogConfig configures the SQLite attempt log.
type RunLogConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// DiagConfig configures diagnostic captures.
type DiagConfig struct {
	Enabled       bool   `yaml:"enabled" mapstructure:"enabled"`
	Dir           string `yaml:"dir" mapstructure:"dir"`
	RetentionDays int    `yaml:"retention_days" mapstructure:"retention_days"`
}

// FXConfig configures currency normalization.
type FXConfig struct {
	BaseURL          string             `yaml:"base_url" mapstructure:"base_url"`
	Target           string             `yaml:"target" mapstructure:"target"`
	TimeoutSecs      int                `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	CacheTTLMins     int                `yaml:"cache_ttl_mins" mapstructure:"cache_ttl_mins"`
	CacheSize        int                `yaml:"cache_size" mapstructure:"cache_size"`
	Exempt           []string           `yaml:"exempt" mapstructure:"exempt"`
	Fallbacks        map[string]float64 `yaml:"fallbacks" mapstructure:"fallbacks"`
	RetryAttempts    int                `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	BreakerThreshold int                `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerResetSecs int                `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// BrowserConfig configures the automation sidecar.
type BrowserConfig struct {
	SidecarURL  string `yaml:"sidecar_url" mapstructure:"sidecar_url"`
	Headless    bool   `yaml:"headless" mapstructure:"headless"`
	ProfileDir  string `yaml:"profile_dir" mapstructure:"profile_dir"`
	Locale      string `yaml:"locale" mapstructure:"locale"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// ScheduleConfig configures route ordering and pacing.
type ScheduleConfig struct {
	// SuccessOrder is oldest_first or newest_first.
	SuccessOrder string `yaml:"success_order" mapstructure:"success_order"`
	PaceSecs     int    `yaml:"pace_secs" mapstructure:"pace_secs"`
}

// DailyConfig configures the daily multi-carrier run.
type DailyConfig struct {
	Carriers      []string `yaml:"carriers" mapstructure:"carriers"`
	MaxConcurrent int      `yaml:"max_concurrent" mapstructure:"max_concurrent"`
}

// MonitoringConfig configures carrier health alerts sent after daily runs.
type MonitoringConfig struct {
	WebhookURL         string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	ErrorRateThreshold float64 `yaml:"error_rate_threshold" mapstructure:"error_rate_threshold"`
	MinAttempts        int     `yaml:"min_attempts" mapstructure:"min_attempts"`
	LookbackHours      int     `yaml:"lookback_hours" mapstructure:"lookback_hours"`
}

// WaitConfig is the results-wait policy of one carrier.
type WaitConfig struct {
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries        int     `yaml:"max_retries" mapstructure:"max_retries"`
	BackoffBaseMs     int     `yaml:"backoff_base_ms" mapstructure:"backoff_base_ms"`
	BackoffMultiplier float64 `yaml:"backoff_multiplier" mapstructure:"backoff_multiplier"`
	BackoffCapMs      int     `yaml:"backoff_cap_ms" mapstructure:"backoff_cap_ms"`
	PollMs            int     `yaml:"poll_ms" mapstructure:"poll_ms"`
}

// CarrierConfig configures one carrier pipeline.
type CarrierConfig struct {
	Enabled            bool              `yaml:"enabled" mapstructure:"enabled"`
	Username           string            `yaml:"username" mapstructure:"username"`
	Password           string            `yaml:"password" mapstructure:"password"`
	URLs               map[string]string `yaml:"urls" mapstructure:"urls"`
	Store              string            `yaml:"store" mapstructure:"store"`
	Defaults           quote.Defaults    `yaml:"defaults" mapstructure:"defaults"`
	Wait               WaitConfig        `yaml:"wait" mapstructure:"wait"`
	FormTimeoutSecs    int               `yaml:"form_timeout_secs" mapstructure:"form_timeout_secs"`
	SuggestTimeoutSecs int               `yaml:"suggest_timeout_secs" mapstructure:"suggest_timeout_secs"`
	PanelTimeoutSecs   int               `yaml:"panel_timeout_secs" mapstructure:"panel_timeout_secs"`
	LoginTimeoutSecs   int               `yaml:"login_timeout_secs" mapstructure:"login_timeout_secs"`
	MaxFallbackOpens   int               `yaml:"max_fallback_opens" mapstructure:"max_fallback_opens"`
}

// legacyEnv maps credential keys to the variable names the old scripts read.
var legacyEnv = map[string]string{
	"carriers.cma.username":    "CMA_USER",
	"carriers.cma.password":    "CMA_PASS",
	"carriers.hapag.username":  "HL_USER",
	"carriers.hapag.password":  "HL_PASS",
	"carriers.maersk.username": "MAERSK_USER",
	"carriers.maersk.password": "MAERSK_PASS",
}

// Load reads configuration from .env, config.yaml and the environment.
func Load() (*Config, error) {
	// Credentials usually live in .env next to the job list.
	_ = godotenv.Load()

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("FREIGHT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	for key, legacy := range legacyEnv {
		envKey := "FREIGHT_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envKey, legacy); err != nil {
			return nil, eris.Wrapf(err, "config: bind env %s", key)
		}
	}

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("jobs.path", "jobs.xlsx")
	v.SetDefault("store.dir", "data")
	v.SetDefault("runlog.enabled", true)
	v.SetDefault("runlog.path", "data/runs.db")
	v.SetDefault("diag.enabled", true)
	v.SetDefault("diag.dir", "diagnostics")
	v.SetDefault("diag.retention_days", 14)
	v.SetDefault("fx.base_url", "https://api.frankfurter.app")
	v.SetDefault("fx.target", "USD")
	v.SetDefault("fx.timeout_secs", 10)
	v.SetDefault("fx.cache_ttl_mins", 60)
	v.SetDefault("fx.cache_size", 64)
	v.SetDefault("fx.exempt", []string{"Terminal Handling Service - Destination"})
	// 1 USD is roughly 4000 COP; used only when the rate API is down.
	v.SetDefault("fx.fallbacks", map[string]float64{"COP": 4000})
	v.SetDefault("fx.retry_attempts", 3)
	v.SetDefault("fx.breaker_threshold", 5)
	v.SetDefault("fx.breaker_reset_secs", 30)
	v.SetDefault("browser.sidecar_url", "http://127.0.0.1:9222")
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.profile_dir", "browser-profiles")
	v.SetDefault("browser.locale", "en-US")
	v.SetDefault("browser.timeout_secs", 30)
	v.SetDefault("schedule.success_order", string(schedule.OldestFirst))
	v.SetDefault("schedule.pace_secs", 2)
	v.SetDefault("daily.carriers", []string{"cma", "hapag", "maersk"})
	v.SetDefault("daily.max_concurrent", 3)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.error_rate_threshold", 0.5)
	v.SetDefault("monitoring.min_attempts", 5)
	v.SetDefault("monitoring.lookback_hours", 24)

	for name, c := range carrierDefaults {
		p := "carriers." + name + "."
		v.SetDefault(p+"enabled", true)
		v.SetDefault(p+"username", "")
		v.SetDefault(p+"password", "")
		v.SetDefault(p+"store", "")
		v.SetDefault(p+"defaults.commodity", c.Defaults.Commodity)
		v.SetDefault(p+"defaults.container_type", c.Defaults.ContainerType)
		v.SetDefault(p+"defaults.weight_kg", c.Defaults.WeightKg)
		v.SetDefault(p+"defaults.price_owner", c.Defaults.PriceOwner)
		v.SetDefault(p+"defaults.date_offset_days", c.Defaults.DateOffsetDays)
		v.SetDefault(p+"wait.timeout_secs", c.Wait.TimeoutSecs)
		v.SetDefault(p+"wait.max_retries", c.Wait.MaxRetries)
		v.SetDefault(p+"wait.backoff_base_ms", c.Wait.BackoffBaseMs)
		v.SetDefault(p+"wait.backoff_multiplier", c.Wait.BackoffMultiplier)
		v.SetDefault(p+"wait.backoff_cap_ms", c.Wait.BackoffCapMs)
		v.SetDefault(p+"wait.poll_ms", c.Wait.PollMs)
		v.SetDefault(p+"form_timeout_secs", 30)
		v.SetDefault(p+"suggest_timeout_secs", 10)
		v.SetDefault(p+"panel_timeout_secs", 15)
		v.SetDefault(p+"login_timeout_secs", 60)
		v.SetDefault(p+"max_fallback_opens", 3)
	}
}

var standardWait = WaitConfig{
	TimeoutSecs:       45,
	MaxRetries:        10,
	BackoffBaseMs:     600,
	BackoffMultiplier: 1.5,
	BackoffCapMs:      2000,
	PollMs:            250,
}

var carrierDefaults = map[string]CarrierConfig{
	"cma": {
		Defaults: quote.Defaults{Commodity: "FAK", ContainerType: "20ST", WeightKg: 26000, DateOffsetDays: 7},
		Wait: WaitConfig{
			TimeoutSecs: 10, MaxRetries: 3, BackoffBaseMs: 600, BackoffMultiplier: 1.5, BackoffCapMs: 2000, PollMs: 250,
		},
	},
	"hapag": {
		Defaults: quote.Defaults{ContainerType: "20' General Purpose", WeightKg: 26000, DateOffsetDays: 7},
		Wait:     standardWait,
	},
	"maersk": {
		Defaults: quote.Defaults{
			Commodity:      "Ceramics/stoneware",
			ContainerType:  "20 Dry",
			WeightKg:       26000,
			PriceOwner:     "I am the price owner",
			DateOffsetDays: 7,
		},
		Wait: standardWait,
	},
}

// Validate checks settings that would otherwise fail mid-run.
func (c *Config) Validate() error {
	if _, err := schedule.ParseSuccessOrder(c.Schedule.SuccessOrder); err != nil {
		return eris.Wrap(err, "config: schedule.success_order")
	}
	if len(strings.TrimSpace(c.FX.Target)) != 3 {
		return eris.Errorf("config: fx.target must be a 3-letter currency code, got %q", c.FX.Target)
	}
	for _, name := range c.Daily.Carriers {
		if _, ok := c.Carriers[name]; !ok {
			return eris.Errorf("config: daily carrier %q is not configured", name)
		}
	}
	return nil
}

// Carrier returns the named carrier's settings.
func (c *Config) Carrier(name string) (CarrierConfig, error) {
	cc, ok := c.Carriers[strings.ToLower(name)]
	if !ok {
		return CarrierConfig{}, eris.Errorf("config: carrier %q not configured (have %s)", name, strings.Join(c.CarrierNames(), ", "))
	}
	return cc, nil
}

// CarrierNames lists the configured carriers in sorted order.
func (c *Config) CarrierNames() []string {
	names := make([]string, 0, len(c.Carriers))
	for name := range c.Carriers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StorePath is the result store file of a carrier.
func (c *Config) StorePath(name string) string {
	if cc, ok := c.Carriers[name]; ok && cc.Store != "" {
		return cc.Store
	}
	return filepath.Join(c.Store.Dir, name+"_quotes.csv")
}

// SuccessOrder returns the validated success order.
func (c *Config) SuccessOrder() schedule.SuccessOrder {
	order, err := schedule.ParseSuccessOrder(c.Schedule.SuccessOrder)
	if err != nil {
		return schedule.OldestFirst
	}
	return order
}

// Pace is the gap between route starts.
func (c *Config) Pace() time.Duration {
	return time.Duration(c.Schedule.PaceSecs) * time.Second
}

// DriverConfig converts the carrier settings into the attempt driver's.
func (cc CarrierConfig) DriverConfig() quote.Config {
	w := cc.Wait
	return quote.Config{
		Wait: quote.WaitConfig{
			Timeout:    time.Duration(w.TimeoutSecs) * time.Second,
			MaxRetries: w.MaxRetries,
			Backoff: resilience.Backoff{
				Initial:    time.Duration(w.BackoffBaseMs) * time.Millisecond,
				Max:        time.Duration(w.BackoffCapMs) * time.Millisecond,
				Multiplier: w.BackoffMultiplier,
			},
			PollInterval: time.Duration(w.PollMs) * time.Millisecond,
		},
		MaxFallbackOpens: cc.MaxFallbackOpens,
		Defaults:         cc.Defaults,
	}
}

// PortalConfig converts the carrier settings into the adapter's.
func (cc CarrierConfig) PortalConfig() carrier.Config {
	return carrier.Config{
		Username:       cc.Username,
		Password:       cc.Password,
		URLs:           cc.URLs,
		FormTimeout:    time.Duration(cc.FormTimeoutSecs) * time.Second,
		SuggestTimeout: time.Duration(cc.SuggestTimeoutSecs) * time.Second,
		PanelTimeout:   time.Duration(cc.PanelTimeoutSecs) * time.Second,
		LoginTimeout:   time.Duration(cc.LoginTimeoutSecs) * time.Second,
	}
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
