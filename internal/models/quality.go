package models

import (
	"time"
)

type QualityLevel string

const (
	QualityLow    QualityLevel = "low"
	QualityMedium QualityLevel = "medium"
	QualityHigh   QualityLevel = "high"
	QualityUltra  QualityLevel = "ultra"
)

func IsValidQuality(q QualityLevel) bool {
	switch q {
	case QualityLow, QualityMedium, QualityHigh, QualityUltra:
		return true
	}
	return false
}

// Rank orders quality levels: low < medium < high < ultra.
func (q QualityLevel) Rank() int {
	switch q {
	case QualityUltra:
		return 3
	case QualityHigh:
		return 2
	case QualityMedium:
		return 1
	default:
		return 0
	}
}

// QualityThreshold is the network requirement for a quality level. Bandwidth
// in bits per second, latency and jitter in milliseconds, packet loss as a
// fraction in [0,1].
type QualityThreshold struct {
	MinBandwidth  float64 `json:"min_bandwidth" mapstructure:"min_bandwidth"`
	MaxLatency    float64 `json:"max_latency" mapstructure:"max_latency"`
	MaxPacketLoss float64 `json:"max_packet_loss" mapstructure:"max_packet_loss"`
}

// NetworkSample is one raw telemetry report from a streaming client.
type NetworkSample struct {
	Timestamp  time.Time `json:"timestamp"`
	Bandwidth  float64   `json:"bandwidth"`
	Latency    float64   `json:"latency"`
	PacketLoss float64   `json:"packet_loss"`
	Jitter     float64   `json:"jitter"`
}

type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// AggregateStats is the smoothed network estimate for one client.
type AggregateStats struct {
	Bandwidth          float64    `json:"bandwidth"`
	Latency            float64    `json:"latency"`
	PacketLoss         float64    `json:"packet_loss"`
	Jitter             float64    `json:"jitter"`
	SampleCount        int        `json:"sample_count"`
	BandwidthVariation float64    `json:"bandwidth_variation"`
	LatencyVariation   float64    `json:"latency_variation"`
	Confidence         Confidence `json:"confidence"`
}

// QualityChange is one committed quality transition for a client.
type QualityChange struct {
	Timestamp time.Time    `json:"timestamp"`
	From      QualityLevel `json:"from"`
	To        QualityLevel `json:"to"`
	Manual    bool         `json:"manual"`
}

// ClientQualityState is the adaptive state for one streaming client, owned
// exclusively by the quality controller.
type ClientQualityState struct {
	ClientID             string          `json:"client_id"`
	StreamID             string          `json:"stream_id"`
	CurrentQuality       QualityLevel    `json:"current_quality"`
	TargetQuality        QualityLevel    `json:"target_quality"`
	LastAdaptationAt     time.Time       `json:"last_adaptation_at"`
	AdaptationCount      int             `json:"adaptation_count"`
	ManualChanges        int             `json:"manual_changes"`
	StabilizationCounter int             `json:"stabilization_counter"`
	IsStable             bool            `json:"is_stable"`
	QualityHistory       []QualityChange `json:"quality_history,omitempty"`
}
