package models

// DNDSettings is a do-not-disturb window. Start and End are "HH:MM" local
// times of day; a window with Start > End wraps past midnight.
type DNDSettings struct {
	Enabled        bool   `json:"enabled" mapstructure:"enabled"`
	Start          string `json:"start" mapstructure:"start"`
	End            string `json:"end" mapstructure:"end"`
	ExceptCritical bool   `json:"except_critical" mapstructure:"except_critical"`
}

// ChannelSettings holds per-channel addressing and limits. Only the fields
// relevant to the channel are used: Addresses for email, PhoneNumbers for
// sms, WebhookURLs for webhook, PushTarget for push.
type ChannelSettings struct {
	Enabled      bool     `json:"enabled" mapstructure:"enabled"`
	MaxPerHour   int      `json:"max_per_hour" mapstructure:"max_per_hour"`
	Addresses    []string `json:"addresses,omitempty" mapstructure:"addresses"`
	PhoneNumbers []string `json:"phone_numbers,omitempty" mapstructure:"phone_numbers"`
	WebhookURLs  []string `json:"webhook_urls,omitempty" mapstructure:"webhook_urls"`
	PushTarget   string   `json:"push_target,omitempty" mapstructure:"push_target"`
}

// EscalationSettings controls secondary dispatch for unacknowledged alerts.
type EscalationSettings struct {
	Enabled        bool      `json:"enabled" mapstructure:"enabled"`
	TimeoutMinutes int       `json:"timeout_minutes" mapstructure:"timeout_minutes"`
	Channels       []Channel `json:"channels" mapstructure:"channels"`
}

// UserPreferences is the durable notification configuration. Storage belongs
// to the config/persistence layer; the core owns the semantics.
type UserPreferences struct {
	DND        DNDSettings                 `json:"dnd" mapstructure:"dnd"`
	Channels   map[Channel]ChannelSettings `json:"channels" mapstructure:"channels"`
	Escalation EscalationSettings          `json:"escalation" mapstructure:"escalation"`
}

// ChannelSettingsFor returns the settings for ch, zero-valued (disabled) when
// the channel has never been configured.
func (p *UserPreferences) ChannelSettingsFor(ch Channel) ChannelSettings {
	if p == nil || p.Channels == nil {
		return ChannelSettings{}
	}
	return p.Channels[ch]
}
