package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/kosty-cloud/kosty/internal/models"
)

// Config is the top-level application configuration, loaded from
// kosty.yaml (working directory or home) with KOSTY_* environment overrides.
type Config struct {
	AWS        AWSConfig        `mapstructure:"aws"`
	Audit      AuditConfig      `mapstructure:"audit"`
	Server     ServerConfig     `mapstructure:"server"`
	Thresholds ThresholdsConfig `mapstructure:"thresholds"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// AWSConfig holds credential and scope defaults used when flags are absent.
type AWSConfig struct {
	// Profile is the default AWS configuration profile.
	Profile string `mapstructure:"profile"`

	// Regions is the default region list to scan.
	Regions []string `mapstructure:"regions"`

	// OrgRole is the role name assumed in organization member accounts.
	OrgRole string `mapstructure:"org_role"`

	// ExternalID is passed on cross-account role assumption.
	ExternalID string `mapstructure:"external_id"`

	// MFASerial enables MFA-gated assumption when set.
	MFASerial string `mapstructure:"mfa_serial"`
}

// AuditConfig tunes the scan engine.
type AuditConfig struct {
	// MaxWorkers bounds concurrent scan tasks.
	MaxWorkers int `mapstructure:"max_workers"`

	// CheckTimeout bounds each individual check invocation.
	CheckTimeout time.Duration `mapstructure:"check_timeout"`

	// MockPricing forces synthetic cost figures for every finding.
	MockPricing bool `mapstructure:"mock_pricing"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// Debug exposes internal error detail in API responses.
	Debug bool `mapstructure:"debug"`
}

// ThresholdsConfig overrides the default alert limits. Zero values fall back
// to the documented defaults.
type ThresholdsConfig struct {
	BudgetPct        float64 `mapstructure:"budget_threshold_percentage"`
	ForecastPct      float64 `mapstructure:"forecast_threshold_percentage"`
	CostSpikeUSD     float64 `mapstructure:"cost_spike_threshold"`
	AnomalyMinUSD    float64 `mapstructure:"anomaly_min_impact"`
	IdleDays         int     `mapstructure:"idle_days_threshold"`
	SecurityScoreMin float64 `mapstructure:"security_score_min"`
}

// LoggingConfig controls the zerolog output.
type LoggingConfig struct {
	// Level is one of trace, debug, info, warn, error.
	Level string `mapstructure:"level"`

	// Pretty switches from JSON to the human console writer.
	Pretty bool `mapstructure:"pretty"`
}

// ActiveThresholds merges the configured overrides onto the defaults. Zero
// or negative values in the file keep the default.
func (c *Config) ActiveThresholds() models.Thresholds {
	t := models.DefaultThresholds()
	if c.Thresholds.BudgetPct > 0 {
		t.BudgetPct = c.Thresholds.BudgetPct
	}
	if c.Thresholds.ForecastPct > 0 {
		t.ForecastPct = c.Thresholds.ForecastPct
	}
	if c.Thresholds.CostSpikeUSD > 0 {
		t.CostSpikeUSD = c.Thresholds.CostSpikeUSD
	}
	if c.Thresholds.AnomalyMinUSD > 0 {
		t.AnomalyMinUSD = c.Thresholds.AnomalyMinUSD
	}
	if c.Thresholds.IdleDays > 0 {
		t.IdleDays = c.Thresholds.IdleDays
	}
	if c.Thresholds.SecurityScoreMin > 0 {
		t.SecurityScoreMin = c.Thresholds.SecurityScoreMin
	}
	return t
}

// Load reads the configuration. An absent file is fine; defaults and
// environment variables still apply. An explicit path that cannot be read is
// an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("kosty")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/kosty")
		v.AddConfigPath("$HOME")
	}

	v.SetEnvPrefix("KOSTY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("aws.regions", []string{"us-east-1"})
	v.SetDefault("aws.org_role", "OrganizationAccountAccessRole")
	v.SetDefault("audit.max_workers", 8)
	v.SetDefault("audit.check_timeout", 2*time.Minute)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("logging.level", "info")

	defaults := models.DefaultThresholds()
	v.SetDefault("thresholds.budget_threshold_percentage", defaults.BudgetPct)
	v.SetDefault("thresholds.forecast_threshold_percentage", defaults.ForecastPct)
	v.SetDefault("thresholds.cost_spike_threshold", defaults.CostSpikeUSD)
	v.SetDefault("thresholds.anomaly_min_impact", defaults.AnomalyMinUSD)
	v.SetDefault("thresholds.idle_days_threshold", defaults.IdleDays)
	v.SetDefault("thresholds.security_score_min", defaults.SecurityScoreMin)
}
