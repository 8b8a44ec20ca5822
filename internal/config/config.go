// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// Components depend on it rather than on *Config so tests can substitute values.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Interaction() InteractionConfig
	Readiness() ReadinessConfig
	Dialogs() DialogsConfig
	Visual() VisualConfig

	SetBrowserHeadless(bool)
	SetBrowserDriver(string)
	SetVisualUpdateBaselines(bool)
}

// Config holds the entire application configuration. It is built once at
// process start and handed to every component that needs it.
type Config struct {
	LoggerCfg      LoggerConfig      `mapstructure:"logger" yaml:"logger"`
	BrowserCfg     BrowserConfig     `mapstructure:"browser" yaml:"browser"`
	InteractionCfg InteractionConfig `mapstructure:"interaction" yaml:"interaction"`
	ReadinessCfg   ReadinessConfig   `mapstructure:"readiness" yaml:"readiness"`
	DialogsCfg     DialogsConfig     `mapstructure:"dialogs" yaml:"dialogs"`
	VisualCfg      VisualConfig      `mapstructure:"visual" yaml:"visual"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig           { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig         { return c.BrowserCfg }
func (c *Config) Interaction() InteractionConfig { return c.InteractionCfg }
func (c *Config) Readiness() ReadinessConfig     { return c.ReadinessCfg }
func (c *Config) Dialogs() DialogsConfig         { return c.DialogsCfg }
func (c *Config) Visual() VisualConfig           { return c.VisualCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetBrowserHeadless(b bool)       { c.BrowserCfg.Headless = b }
func (c *Config) SetBrowserDriver(d string)       { c.BrowserCfg.Driver = d }
func (c *Config) SetVisualUpdateBaselines(b bool) { c.VisualCfg.UpdateBaselines = b }

// LoggerConfig controls the zap logger and its optional rotating file sink.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color names for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// Supported browser drivers.
const (
	DriverPlaywright = "playwright"
	DriverCDP        = "cdp"
)

// BrowserConfig selects the automation driver and how the browser is launched.
type BrowserConfig struct {
	Driver        string         `mapstructure:"driver" yaml:"driver"`
	Headless      bool           `mapstructure:"headless" yaml:"headless"`
	Install       bool           `mapstructure:"install" yaml:"install"`
	Args          []string       `mapstructure:"args" yaml:"args"`
	Viewport      map[string]int `mapstructure:"viewport" yaml:"viewport"`
	StorageState  string         `mapstructure:"storage_state" yaml:"storage_state"`
	LaunchTimeout time.Duration  `mapstructure:"launch_timeout" yaml:"launch_timeout"`
	// NavigationTimeout bounds a single Goto call.
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
}

// InteractionConfig holds the retry defaults for click, double-click and fill.
type InteractionConfig struct {
	Retries              int           `mapstructure:"retries" yaml:"retries"`
	ClickTimeout         time.Duration `mapstructure:"click_timeout" yaml:"click_timeout"`
	SelectorClickTimeout time.Duration `mapstructure:"selector_click_timeout" yaml:"selector_click_timeout"`
	FillTimeout          time.Duration `mapstructure:"fill_timeout" yaml:"fill_timeout"`
	ClickSettle          time.Duration `mapstructure:"click_settle" yaml:"click_settle"`
	DoubleClickSettle    time.Duration `mapstructure:"double_click_settle" yaml:"double_click_settle"`
	PressDelay           time.Duration `mapstructure:"press_delay" yaml:"press_delay"`
	FillRetryDelay       time.Duration `mapstructure:"fill_retry_delay" yaml:"fill_retry_delay"`
	SelectorTimeout      time.Duration `mapstructure:"selector_timeout" yaml:"selector_timeout"`
	ElementTimeout       time.Duration `mapstructure:"element_timeout" yaml:"element_timeout"`
}

// ReadinessConfig holds the deadlines and poll cadence of the readiness waiters.
type ReadinessConfig struct {
	NetworkIdleTimeout time.Duration `mapstructure:"network_idle_timeout" yaml:"network_idle_timeout"`
	MediaTimeout       time.Duration `mapstructure:"media_timeout" yaml:"media_timeout"`
	ResourceTimeout    time.Duration `mapstructure:"resource_timeout" yaml:"resource_timeout"`
	ResourceKinds      []string      `mapstructure:"resource_kinds" yaml:"resource_kinds"`
	URLSetTimeout      time.Duration `mapstructure:"url_set_timeout" yaml:"url_set_timeout"`
	URLSetNetworkIdle  bool          `mapstructure:"url_set_network_idle" yaml:"url_set_network_idle"`
	EnabledTimeout     time.Duration `mapstructure:"enabled_timeout" yaml:"enabled_timeout"`
	PollInterval       time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
}

// Dialog handler policies.
const (
	DialogPolicyReplace = "replace"
	DialogPolicyQueue   = "queue"
)

// DialogsConfig decides what happens when a second intention is registered
// while one is still armed.
type DialogsConfig struct {
	Policy        string        `mapstructure:"policy" yaml:"policy"`
	UploadTimeout time.Duration `mapstructure:"upload_timeout" yaml:"upload_timeout"`
}

// VisualConfig controls screenshot capture and baseline comparison.
type VisualConfig struct {
	BaselineDir          string `mapstructure:"baseline_dir" yaml:"baseline_dir"`
	OutputDir            string `mapstructure:"output_dir" yaml:"output_dir"`
	UpdateBaselines      bool   `mapstructure:"update_baselines" yaml:"update_baselines"`
	MaxDiffPixels        int    `mapstructure:"max_diff_pixels" yaml:"max_diff_pixels"`
	ElementMaxDiffPixels int    `mapstructure:"element_max_diff_pixels" yaml:"element_max_diff_pixels"`
	// Threshold is the pixelmatch color-distance tolerance, from 0 (exact) to 1.
	Threshold float64 `mapstructure:"threshold" yaml:"threshold"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "pagewright")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.driver", DriverPlaywright)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.install", true)
	v.SetDefault("browser.args", []string{})
	v.SetDefault("browser.viewport", map[string]int{"width": 1280, "height": 720})
	v.SetDefault("browser.storage_state", "")
	v.SetDefault("browser.launch_timeout", "60s")
	v.SetDefault("browser.navigation_timeout", "30s")

	// -- Interaction --
	v.SetDefault("interaction.retries", 3)
	v.SetDefault("interaction.click_timeout", "5s")
	v.SetDefault("interaction.selector_click_timeout", "3s")
	v.SetDefault("interaction.fill_timeout", "3s")
	v.SetDefault("interaction.click_settle", "700ms")
	v.SetDefault("interaction.double_click_settle", "400ms")
	v.SetDefault("interaction.press_delay", "100ms")
	v.SetDefault("interaction.fill_retry_delay", "500ms")
	v.SetDefault("interaction.selector_timeout", "5s")
	v.SetDefault("interaction.element_timeout", "10s")

	// -- Readiness --
	v.SetDefault("readiness.network_idle_timeout", "10s")
	v.SetDefault("readiness.media_timeout", "10s")
	v.SetDefault("readiness.resource_timeout", "10s")
	v.SetDefault("readiness.resource_kinds", []string{"xhr", "fetch", "image", "media", "stylesheet", "font"})
	v.SetDefault("readiness.url_set_timeout", "30s")
	v.SetDefault("readiness.url_set_network_idle", true)
	v.SetDefault("readiness.enabled_timeout", "30s")
	v.SetDefault("readiness.poll_interval", "100ms")

	// -- Dialogs --
	v.SetDefault("dialogs.policy", DialogPolicyReplace)
	v.SetDefault("dialogs.upload_timeout", "10s")

	// -- Visual --
	v.SetDefault("visual.baseline_dir", "testdata/baselines")
	v.SetDefault("visual.output_dir", "test-results")
	v.SetDefault("visual.update_baselines", false)
	v.SetDefault("visual.max_diff_pixels", 100)
	v.SetDefault("visual.element_max_diff_pixels", 500)
	v.SetDefault("visual.threshold", 0.1)
}

// NewConfigFromViper creates a new Config instance from a viper instance.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.BrowserCfg.Driver = strings.ToLower(strings.TrimSpace(cfg.BrowserCfg.Driver))

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// expandPaths resolves a leading "~" in every filesystem path.
func (c *Config) expandPaths() error {
	paths := []*string{
		&c.LoggerCfg.LogFile,
		&c.BrowserCfg.StorageState,
		&c.VisualCfg.BaselineDir,
		&c.VisualCfg.OutputDir,
	}
	for _, p := range paths {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("failed to expand path %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	switch strings.ToLower(c.BrowserCfg.Driver) {
	case DriverPlaywright, DriverCDP:
	default:
		return fmt.Errorf("browser.driver must be one of %q or %q, got %q", DriverPlaywright, DriverCDP, c.BrowserCfg.Driver)
	}
	if err := c.InteractionCfg.Validate(); err != nil {
		return fmt.Errorf("interaction configuration invalid: %w", err)
	}
	if err := c.ReadinessCfg.Validate(); err != nil {
		return fmt.Errorf("readiness configuration invalid: %w", err)
	}
	switch c.DialogsCfg.Policy {
	case DialogPolicyReplace, DialogPolicyQueue:
	default:
		return fmt.Errorf("dialogs.policy must be one of %q or %q, got %q", DialogPolicyReplace, DialogPolicyQueue, c.DialogsCfg.Policy)
	}
	if c.VisualCfg.MaxDiffPixels < 0 || c.VisualCfg.ElementMaxDiffPixels < 0 {
		return fmt.Errorf("visual max diff pixels must not be negative")
	}
	if c.VisualCfg.Threshold < 0 || c.VisualCfg.Threshold > 1 {
		return fmt.Errorf("visual.threshold must be between 0 and 1, got %v", c.VisualCfg.Threshold)
	}
	return nil
}

// Validate checks the interaction retry settings.
func (i *InteractionConfig) Validate() error {
	if i.Retries < 1 {
		return fmt.Errorf("retries must be at least 1")
	}
	if i.ClickTimeout <= 0 || i.FillTimeout <= 0 || i.SelectorClickTimeout <= 0 {
		return fmt.Errorf("per-attempt timeouts must be positive")
	}
	if i.ClickSettle < 0 || i.DoubleClickSettle < 0 || i.FillRetryDelay < 0 || i.PressDelay < 0 {
		return fmt.Errorf("settle and retry delays must not be negative")
	}
	return nil
}

// Validate checks the readiness deadlines.
func (r *ReadinessConfig) Validate() error {
	if r.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	if r.NetworkIdleTimeout <= 0 || r.MediaTimeout <= 0 || r.ResourceTimeout <= 0 || r.URLSetTimeout <= 0 {
		return fmt.Errorf("readiness timeouts must be positive")
	}
	if len(r.ResourceKinds) == 0 {
		return fmt.Errorf("resource_kinds must list at least one kind")
	}
	return nil
}
