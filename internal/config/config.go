package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/cradleeye/internal/models"
)

// AlertTypeConfig controls creation of one alert type.
type AlertTypeConfig struct {
	Enabled         bool                 `mapstructure:"enabled"`
	Priority        models.AlertPriority `mapstructure:"priority"`
	Channels        []models.Channel     `mapstructure:"channels"`
	CooldownMinutes int                  `mapstructure:"cooldown_minutes"`
}

// QualityConfig is the adaptive-streaming tuning surface.
type QualityConfig struct {
	IntervalMS            int                                             `mapstructure:"interval_ms"`
	StabilizationWindow   int                                             `mapstructure:"stabilization_window"`
	RampUpDelayMS         int                                             `mapstructure:"ramp_up_delay_ms"`
	RampDownDelayMS       int                                             `mapstructure:"ramp_down_delay_ms"`
	BandwidthSafetyMargin float64                                         `mapstructure:"bandwidth_safety_margin"`
	Thresholds            map[models.QualityLevel]models.QualityThreshold `mapstructure:"thresholds"`
}

func (q QualityConfig) Interval() time.Duration {
	return time.Duration(q.IntervalMS) * time.Millisecond
}

func (q QualityConfig) RampUpDelay() time.Duration {
	return time.Duration(q.RampUpDelayMS) * time.Millisecond
}

func (q QualityConfig) RampDownDelay() time.Duration {
	return time.Duration(q.RampDownDelayMS) * time.Millisecond
}

// SlackConfig addresses the workspace the push channel delivers to.
type SlackConfig struct {
	Token   string `mapstructure:"token"`
	Channel string `mapstructure:"channel"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	From     string `mapstructure:"from"`
	Password string `mapstructure:"password"`
}

// SMSConfig addresses an HTTP SMS gateway.
type SMSConfig struct {
	GatewayURL string `mapstructure:"gateway_url"`
	APIKey     string `mapstructure:"api_key"`
	From       string `mapstructure:"from"`
}

// MonitorConfig tunes the appliance self-health watcher.
type MonitorConfig struct {
	IntervalSeconds    int     `mapstructure:"interval_seconds"`
	StoragePath        string  `mapstructure:"storage_path"`
	StorageWarnBytes   int64   `mapstructure:"storage_warn_bytes"`
	FailureRateWarning float64 `mapstructure:"failure_rate_warning"`
}

type Config struct {
	Server struct {
		Port      int    `mapstructure:"port"`
		JWTSecret string `mapstructure:"jwt_secret"`
	} `mapstructure:"server"`
	Database struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"database"`
	Log struct {
		Level string `mapstructure:"level"`
		Dir   string `mapstructure:"dir"`
	} `mapstructure:"log"`
	History struct {
		RetentionDays int `mapstructure:"retention_days"`
	} `mapstructure:"history"`
	AlertTypes  map[models.AlertType]AlertTypeConfig `mapstructure:"alert_types"`
	Preferences models.UserPreferences               `mapstructure:"preferences"`
	Quality     QualityConfig                        `mapstructure:"quality"`
	Slack       SlackConfig                          `mapstructure:"slack"`
	SMTP        SMTPConfig                           `mapstructure:"smtp"`
	SMS         SMSConfig                            `mapstructure:"sms"`
	Monitor     MonitorConfig                        `mapstructure:"monitor"`
}

// TypeConfig returns the configuration for t, falling back to a disabled
// zero config for unknown types.
func (c *Config) TypeConfig(t models.AlertType) AlertTypeConfig {
	if c.AlertTypes == nil {
		return AlertTypeConfig{}
	}
	return c.AlertTypes[t]
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("database.path", "data/cradleeye.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("history.retention_days", 90)

	type typeDefault struct {
		priority models.AlertPriority
		channels []string
		cooldown int
	}
	typeDefaults := map[models.AlertType]typeDefault{
		models.AlertTypeMotion:      {models.PriorityMedium, []string{"push"}, 5},
		models.AlertTypeSound:       {models.PriorityMedium, []string{"push"}, 5},
		models.AlertTypeCryDetected: {models.PriorityCritical, []string{"push", "sms"}, 0},
		models.AlertTypeNoiseLevel:  {models.PriorityLow, []string{"push"}, 10},
		models.AlertTypeSystem:      {models.PriorityHigh, []string{"push", "email"}, 15},
		models.AlertTypeConnection:  {models.PriorityHigh, []string{"push", "email"}, 5},
		models.AlertTypeCamera:      {models.PriorityHigh, []string{"push", "email"}, 5},
		models.AlertTypeStorage:     {models.PriorityMedium, []string{"email"}, 60},
	}
	for t, d := range typeDefaults {
		key := "alert_types." + string(t)
		v.SetDefault(key+".enabled", true)
		v.SetDefault(key+".priority", string(d.priority))
		v.SetDefault(key+".channels", d.channels)
		v.SetDefault(key+".cooldown_minutes", d.cooldown)
	}

	v.SetDefault("preferences.dnd.enabled", false)
	v.SetDefault("preferences.dnd.start", "22:00")
	v.SetDefault("preferences.dnd.end", "07:00")
	v.SetDefault("preferences.dnd.except_critical", true)
	v.SetDefault("preferences.escalation.enabled", true)
	v.SetDefault("preferences.escalation.timeout_minutes", 5)
	v.SetDefault("preferences.escalation.channels", []string{"sms", "email"})
	for _, ch := range []models.Channel{models.ChannelPush, models.ChannelEmail, models.ChannelSMS, models.ChannelWebhook} {
		key := "preferences.channels." + string(ch)
		v.SetDefault(key+".enabled", ch == models.ChannelPush)
		v.SetDefault(key+".max_per_hour", 30)
	}

	v.SetDefault("quality.interval_ms", 5000)
	v.SetDefault("quality.stabilization_window", 3)
	v.SetDefault("quality.ramp_up_delay_ms", 10000)
	v.SetDefault("quality.ramp_down_delay_ms", 3000)
	v.SetDefault("quality.bandwidth_safety_margin", 0.8)
	qualityDefaults := map[models.QualityLevel][3]float64{
		models.QualityUltra:  {8_500_000, 80, 0.01},
		models.QualityHigh:   {4_500_000, 120, 0.02},
		models.QualityMedium: {2_300_000, 200, 0.05},
		models.QualityLow:    {800_000, 400, 0.10},
	}
	for level, t := range qualityDefaults {
		key := "quality.thresholds." + string(level)
		v.SetDefault(key+".min_bandwidth", t[0])
		v.SetDefault(key+".max_latency", t[1])
		v.SetDefault(key+".max_packet_loss", t[2])
	}

	v.SetDefault("monitor.interval_seconds", 60)
	v.SetDefault("monitor.storage_path", "data")
	v.SetDefault("monitor.storage_warn_bytes", int64(10)<<30)
	v.SetDefault("monitor.failure_rate_warning", 0.5)
}

// Load reads config.yaml from path (or the working directory), layered under
// CRADLEEYE_* environment overrides and built-in defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if path != "" {
		v.AddConfigPath(path)
	}
	v.AddConfigPath(".")
	v.SetEnvPrefix("CRADLEEYE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// No file is fine; defaults and env cover everything.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	for t, tc := range c.AlertTypes {
		if !models.IsValidAlertType(t) {
			return fmt.Errorf("unknown alert type %q", t)
		}
		if !models.IsValidPriority(tc.Priority) {
			return fmt.Errorf("alert type %s: invalid priority %q", t, tc.Priority)
		}
		for _, ch := range tc.Channels {
			if !models.IsValidChannel(ch) {
				return fmt.Errorf("alert type %s: invalid channel %q", t, ch)
			}
		}
		if tc.CooldownMinutes < 0 {
			return fmt.Errorf("alert type %s: cooldown must not be negative", t)
		}
	}
	if c.Quality.BandwidthSafetyMargin <= 0 || c.Quality.BandwidthSafetyMargin > 1 {
		return fmt.Errorf("bandwidth safety margin must be in (0,1], got %v", c.Quality.BandwidthSafetyMargin)
	}
	if c.Quality.StabilizationWindow < 1 {
		return fmt.Errorf("stabilization window must be at least 1")
	}
	return nil
}
