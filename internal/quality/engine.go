package quality

import (
	"time"

	"github.com/cradleeye/internal/config"
	"github.com/cradleeye/internal/models"
)

// qualityOrder lists levels highest first, the order Decide evaluates them in.
var qualityOrder = []models.QualityLevel{
	models.QualityUltra,
	models.QualityHigh,
	models.QualityMedium,
	models.QualityLow,
}

// Engine maps a smoothed network estimate to a target quality level and
// gates transitions with asymmetric ramp-up/ramp-down hysteresis.
type Engine struct {
	thresholds          map[models.QualityLevel]models.QualityThreshold
	safetyMargin        float64
	rampUpDelay         time.Duration
	rampDownDelay       time.Duration
	stabilizationWindow int
}

func NewEngine(cfg config.QualityConfig) *Engine {
	return &Engine{
		thresholds:          cfg.Thresholds,
		safetyMargin:        cfg.BandwidthSafetyMargin,
		rampUpDelay:         cfg.RampUpDelay(),
		rampDownDelay:       cfg.RampDownDelay(),
		stabilizationWindow: cfg.StabilizationWindow,
	}
}

// StabilizationWindow is the number of consecutive agreeing evaluation cycles
// required before an upgrade is considered stable.
func (e *Engine) StabilizationWindow() int {
	return e.stabilizationWindow
}

// Decide returns the highest quality level whose thresholds are all satisfied
// by the estimate, falling back to low when none qualify. Measured bandwidth
// only counts with the configured safety headroom, which keeps the decision
// conservative at level boundaries.
func (e *Engine) Decide(stats *models.AggregateStats) models.QualityLevel {
	effectiveBandwidth := stats.Bandwidth * e.safetyMargin
	for _, level := range qualityOrder {
		t, ok := e.thresholds[level]
		if !ok {
			continue
		}
		if effectiveBandwidth >= t.MinBandwidth &&
			stats.Latency <= t.MaxLatency &&
			stats.PacketLoss <= t.MaxPacketLoss {
			return level
		}
	}
	return models.QualityLow
}

// ShouldAdapt reports whether a divergent recommendation may be applied now.
// Downgrades go through after a short cooldown since the last adaptation;
// upgrades additionally require the client to have reported stable conditions
// for a full stabilization window.
func (e *Engine) ShouldAdapt(state *models.ClientQualityState, recommended models.QualityLevel, now time.Time) bool {
	if recommended == state.CurrentQuality {
		return false
	}

	elapsed := now.Sub(state.LastAdaptationAt)
	if recommended.Rank() < state.CurrentQuality.Rank() {
		return elapsed >= e.rampDownDelay
	}
	return elapsed >= e.rampUpDelay &&
		state.IsStable &&
		state.StabilizationCounter >= e.stabilizationWindow
}
