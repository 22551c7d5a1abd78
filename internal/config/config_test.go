package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cradleeye/internal/models"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "data/cradleeye.db", cfg.Database.Path)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 90, cfg.History.RetentionDays)

	cry := cfg.TypeConfig(models.AlertTypeCryDetected)
	assert.True(t, cry.Enabled)
	assert.Equal(t, models.PriorityCritical, cry.Priority)
	assert.Equal(t, []models.Channel{models.ChannelPush, models.ChannelSMS}, cry.Channels)
	assert.Zero(t, cry.CooldownMinutes)

	storage := cfg.TypeConfig(models.AlertTypeStorage)
	assert.Equal(t, models.PriorityMedium, storage.Priority)
	assert.Equal(t, 60, storage.CooldownMinutes)

	assert.False(t, cfg.Preferences.DND.Enabled)
	assert.Equal(t, "22:00", cfg.Preferences.DND.Start)
	assert.Equal(t, "07:00", cfg.Preferences.DND.End)
	assert.True(t, cfg.Preferences.DND.ExceptCritical)
	assert.True(t, cfg.Preferences.Escalation.Enabled)
	assert.Equal(t, 5, cfg.Preferences.Escalation.TimeoutMinutes)

	push := cfg.Preferences.ChannelSettingsFor(models.ChannelPush)
	assert.True(t, push.Enabled)
	assert.Equal(t, 30, push.MaxPerHour)
	assert.False(t, cfg.Preferences.ChannelSettingsFor(models.ChannelSMS).Enabled)

	assert.Equal(t, 5*time.Second, cfg.Quality.Interval())
	assert.Equal(t, 10*time.Second, cfg.Quality.RampUpDelay())
	assert.Equal(t, 3*time.Second, cfg.Quality.RampDownDelay())
	assert.Equal(t, 3, cfg.Quality.StabilizationWindow)
	assert.InDelta(t, 0.8, cfg.Quality.BandwidthSafetyMargin, 1e-9)

	ultra := cfg.Quality.Thresholds[models.QualityUltra]
	assert.InDelta(t, 8_500_000, ultra.MinBandwidth, 1e-9)
	assert.InDelta(t, 80, ultra.MaxLatency, 1e-9)
	assert.InDelta(t, 0.01, ultra.MaxPacketLoss, 1e-9)
	low := cfg.Quality.Thresholds[models.QualityLow]
	assert.InDelta(t, 800_000, low.MinBandwidth, 1e-9)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	yaml := `
server:
  port: 9090
alert_types:
  motion:
    enabled: false
    priority: low
    channels: [email]
    cooldown_minutes: 30
quality:
  stabilization_window: 5
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	motion := cfg.TypeConfig(models.AlertTypeMotion)
	assert.False(t, motion.Enabled)
	assert.Equal(t, models.PriorityLow, motion.Priority)
	assert.Equal(t, []models.Channel{models.ChannelEmail}, motion.Channels)
	assert.Equal(t, 30, motion.CooldownMinutes)
	assert.Equal(t, 5, cfg.Quality.StabilizationWindow)

	// Untouched defaults survive the merge.
	assert.Equal(t, "data/cradleeye.db", cfg.Database.Path)
	assert.True(t, cfg.TypeConfig(models.AlertTypeSound).Enabled)
}

func TestLoad_RejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "bad priority",
			yaml: "alert_types:\n  motion:\n    priority: urgent\n",
		},
		{
			name: "bad channel",
			yaml: "alert_types:\n  motion:\n    priority: medium\n    channels: [pager]\n",
		},
		{
			name: "negative cooldown",
			yaml: "alert_types:\n  motion:\n    priority: medium\n    cooldown_minutes: -1\n",
		},
		{
			name: "safety margin above one",
			yaml: "quality:\n  bandwidth_safety_margin: 1.5\n",
		},
		{
			name: "zero stabilization window",
			yaml: "quality:\n  stabilization_window: 0\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(tt.yaml), 0o644))
			_, err := Load(dir)
			assert.Error(t, err)
		})
	}
}

func TestValidate_UnknownAlertType(t *testing.T) {
	cfg := &Config{
		AlertTypes: map[models.AlertType]AlertTypeConfig{
			"earthquake": {Priority: models.PriorityHigh},
		},
	}
	cfg.Quality.BandwidthSafetyMargin = 0.8
	cfg.Quality.StabilizationWindow = 3
	assert.Error(t, cfg.Validate())
}
