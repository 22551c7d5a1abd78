package models

import (
	"time"
)

type AlertType string

const (
	AlertTypeMotion      AlertType = "motion"
	AlertTypeSound       AlertType = "sound"
	AlertTypeCryDetected AlertType = "cry_detected"
	AlertTypeNoiseLevel  AlertType = "noise_level"
	AlertTypeSystem      AlertType = "system"
	AlertTypeConnection  AlertType = "connection"
	AlertTypeCamera      AlertType = "camera"
	AlertTypeStorage     AlertType = "storage"
)

func IsValidAlertType(t AlertType) bool {
	switch t {
	case AlertTypeMotion, AlertTypeSound, AlertTypeCryDetected, AlertTypeNoiseLevel,
		AlertTypeSystem, AlertTypeConnection, AlertTypeCamera, AlertTypeStorage:
		return true
	}
	return false
}

type AlertPriority string

const (
	PriorityLow      AlertPriority = "low"
	PriorityMedium   AlertPriority = "medium"
	PriorityHigh     AlertPriority = "high"
	PriorityCritical AlertPriority = "critical"
)

func IsValidPriority(p AlertPriority) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Rank orders priorities for active-alert listing: critical > high > medium > low.
func (p AlertPriority) Rank() int {
	switch p {
	case PriorityCritical:
		return 3
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 1
	default:
		return 0
	}
}

type AlertStatus string

const (
	AlertStatusPending      AlertStatus = "pending"
	AlertStatusProcessing   AlertStatus = "processing"
	AlertStatusDelivered    AlertStatus = "delivered"
	AlertStatusFailed       AlertStatus = "failed"
	AlertStatusAcknowledged AlertStatus = "acknowledged"
	AlertStatusResolved     AlertStatus = "resolved"
)

type Channel string

const (
	ChannelPush    Channel = "push"
	ChannelEmail   Channel = "email"
	ChannelSMS     Channel = "sms"
	ChannelWebhook Channel = "webhook"
)

func IsValidChannel(ch Channel) bool {
	switch ch {
	case ChannelPush, ChannelEmail, ChannelSMS, ChannelWebhook:
		return true
	}
	return false
}

type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySuccess DeliveryStatus = "success"
	DeliveryFailed  DeliveryStatus = "failed"
)

// Alert is a detected condition requiring attention. Owned exclusively by the
// lifecycle manager while active; handed to history for durable storage.
type Alert struct {
	ID               string            `gorm:"primaryKey" json:"id"`
	Type             AlertType         `gorm:"index" json:"type"`
	Priority         AlertPriority     `gorm:"index" json:"priority"`
	Status           AlertStatus       `gorm:"index" json:"status"`
	Title            string            `json:"title"`
	Message          string            `json:"message"`
	Metadata         map[string]string `gorm:"serializer:json" json:"metadata,omitempty"`
	SourceData       map[string]any    `gorm:"serializer:json" json:"source_data,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	AcknowledgedAt   *time.Time        `json:"acknowledged_at,omitempty"`
	AcknowledgedBy   string            `json:"acknowledged_by,omitempty"`
	ResolvedAt       *time.Time        `json:"resolved_at,omitempty"`
	ResolvedBy       string            `json:"resolved_by,omitempty"`
	Escalated        bool              `json:"escalated"`
	EscalatedAt      *time.Time        `json:"escalated_at,omitempty"`
	DeliveryAttempts []DeliveryAttempt `gorm:"foreignKey:AlertID" json:"delivery_attempts,omitempty"`
}

// DeliveryAttempt is one try to notify one channel for one alert. Immutable
// once its status is terminal.
type DeliveryAttempt struct {
	ID           string            `gorm:"primaryKey" json:"id"`
	AlertID      string            `gorm:"index" json:"alert_id"`
	Channel      Channel           `json:"channel"`
	Status       DeliveryStatus    `json:"status"`
	Timestamp    time.Time         `json:"timestamp"`
	Error        string            `json:"error,omitempty"`
	ResponseData map[string]string `gorm:"serializer:json" json:"response_data,omitempty"`
}
