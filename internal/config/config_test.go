// File: internal/config/config_test.go
package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger().Level)
	assert.Equal(t, DriverPlaywright, cfg.Browser().Driver)
	assert.True(t, cfg.Browser().Headless)
	assert.Equal(t, 3, cfg.Interaction().Retries)
	assert.Equal(t, 5*time.Second, cfg.Interaction().ClickTimeout)
	assert.Equal(t, 3*time.Second, cfg.Interaction().FillTimeout)
	assert.Equal(t, 700*time.Millisecond, cfg.Interaction().ClickSettle)
	assert.Equal(t, 400*time.Millisecond, cfg.Interaction().DoubleClickSettle)
	assert.Equal(t, 500*time.Millisecond, cfg.Interaction().FillRetryDelay)
	assert.Equal(t, 100*time.Millisecond, cfg.Readiness().PollInterval)
	assert.Equal(t, 10*time.Second, cfg.Readiness().NetworkIdleTimeout)
	assert.Equal(t, 30*time.Second, cfg.Readiness().URLSetTimeout)
	assert.ElementsMatch(t, []string{"xhr", "fetch", "image", "media", "stylesheet", "font"}, cfg.Readiness().ResourceKinds)
	assert.Equal(t, DialogPolicyReplace, cfg.Dialogs().Policy)
	assert.Equal(t, 100, cfg.Visual().MaxDiffPixels)
	assert.Equal(t, 500, cfg.Visual().ElementMaxDiffPixels)
	assert.Equal(t, 0.1, cfg.Visual().Threshold)
	assert.NoError(t, cfg.Validate())
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	t.Run("Unknown Driver", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.BrowserCfg.Driver = "selenium"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "browser.driver")
	})

	t.Run("Zero Retries", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.InteractionCfg.Retries = 0
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "retries must be at least 1")
	})

	t.Run("Negative Settle", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.InteractionCfg.ClickSettle = -time.Millisecond
		assert.Error(t, cfg.Validate())
	})

	t.Run("Zero Poll Interval", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.ReadinessCfg.PollInterval = 0
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "poll_interval")
	})

	t.Run("Empty Resource Kinds", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.ReadinessCfg.ResourceKinds = nil
		assert.Error(t, cfg.Validate())
	})

	t.Run("Unknown Dialog Policy", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.DialogsCfg.Policy = "fire-all"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "dialogs.policy")
	})

	t.Run("Threshold Out Of Range", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.VisualCfg.Threshold = 1.5
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "visual.threshold")
	})

	t.Run("Queue Policy Accepted", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.DialogsCfg.Policy = DialogPolicyQueue
		assert.NoError(t, cfg.Validate())
	})
}

// -- Viper Integration Tests --

func TestNewConfigFromViper(t *testing.T) {
	yamlConfig := []byte(`
browser:
  driver: cdp
  headless: false
  storage_state: "~/state.json"
interaction:
  retries: 5
  click_timeout: 2s
readiness:
  poll_interval: 50ms
dialogs:
  policy: queue
`)
	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlConfig)))

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)

	assert.Equal(t, DriverCDP, cfg.Browser().Driver)
	assert.False(t, cfg.Browser().Headless)
	assert.Equal(t, 5, cfg.Interaction().Retries)
	assert.Equal(t, 2*time.Second, cfg.Interaction().ClickTimeout)
	// Untouched keys keep their defaults.
	assert.Equal(t, 3*time.Second, cfg.Interaction().FillTimeout)
	assert.Equal(t, 50*time.Millisecond, cfg.Readiness().PollInterval)
	assert.Equal(t, DialogPolicyQueue, cfg.Dialogs().Policy)

	home, err := homedir.Dir()
	require.NoError(t, err)
	assert.Equal(t, home+"/state.json", cfg.Browser().StorageState)
}

func TestNewConfigFromViper_NormalizesDriver(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("browser.driver", " CDP ")

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)
	assert.Equal(t, DriverCDP, cfg.Browser().Driver)
}

func TestNewConfigFromViper_Invalid(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("interaction.retries", 0)

	_, err := NewConfigFromViper(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestSetters(t *testing.T) {
	var cfg Interface = NewDefaultConfig()

	cfg.SetBrowserHeadless(false)
	cfg.SetBrowserDriver(DriverCDP)
	cfg.SetVisualUpdateBaselines(true)

	assert.False(t, cfg.Browser().Headless)
	assert.Equal(t, DriverCDP, cfg.Browser().Driver)
	assert.True(t, cfg.Visual().UpdateBaselines)
}
