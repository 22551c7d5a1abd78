package alert

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cradleeye/internal/config"
	"github.com/cradleeye/internal/models"
)

// SuppressReason explains why a candidate alert was not created.
type SuppressReason string

const (
	SuppressNone         SuppressReason = ""
	SuppressTypeDisabled SuppressReason = "type_disabled"
	SuppressCooldown     SuppressReason = "cooldown"
	SuppressDND          SuppressReason = "do_not_disturb"
)

type cooldownEntry struct {
	lastAlertAt time.Time
	count       int
}

// CooldownState holds the exported view of one alert type's cooldown tracker.
type CooldownState struct {
	Type        models.AlertType `json:"type"`
	LastAlertAt time.Time        `json:"last_alert_at"`
	Count       int              `json:"count"`
}

// SuppressionPolicy decides whether a candidate alert should be created at
// all. Cardinality of the tracker is bounded by the number of alert types;
// entries are created lazily and never removed.
type SuppressionPolicy struct {
	mu        sync.Mutex
	cooldowns map[models.AlertType]*cooldownEntry
}

func NewSuppressionPolicy() *SuppressionPolicy {
	return &SuppressionPolicy{
		cooldowns: make(map[models.AlertType]*cooldownEntry),
	}
}

// CheckAndCommit evaluates the suppression checks in order: type disabled,
// cooldown window, do-not-disturb. An accepted candidate is recorded in the
// cooldown tracker before the mutex is released, so the check and the update
// are atomic: of two concurrent candidates of the same type racing into a
// cooldown window, exactly one is accepted. A suppressed candidate never
// advances the tracker.
func (p *SuppressionPolicy) CheckAndCommit(alertType models.AlertType, priority models.AlertPriority,
	typeCfg config.AlertTypeConfig, prefs *models.UserPreferences, now time.Time) SuppressReason {

	if !typeCfg.Enabled {
		return SuppressTypeDisabled
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if typeCfg.CooldownMinutes > 0 {
		if entry, ok := p.cooldowns[alertType]; ok {
			cooldown := time.Duration(typeCfg.CooldownMinutes) * time.Minute
			if now.Sub(entry.lastAlertAt) < cooldown {
				return SuppressCooldown
			}
		}
	}

	if prefs != nil && prefs.DND.Enabled && dndActive(prefs.DND, now) {
		if !(prefs.DND.ExceptCritical && priority == models.PriorityCritical) {
			return SuppressDND
		}
	}

	entry, ok := p.cooldowns[alertType]
	if !ok {
		entry = &cooldownEntry{}
		p.cooldowns[alertType] = entry
	}
	entry.lastAlertAt = now
	entry.count++
	return SuppressNone
}

// Cooldowns returns the current tracker state for every type seen so far.
func (p *SuppressionPolicy) Cooldowns() []CooldownState {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]CooldownState, 0, len(p.cooldowns))
	for t, e := range p.cooldowns {
		out = append(out, CooldownState{Type: t, LastAlertAt: e.lastAlertAt, Count: e.count})
	}
	return out
}

// dndActive reports whether now falls inside the do-not-disturb window.
// Windows may wrap past midnight: for start > end the in-range test becomes
// now >= start OR now <= end. Boundary minutes are inclusive on both ends.
func dndActive(dnd models.DNDSettings, now time.Time) bool {
	start, err := parseMinutes(dnd.Start)
	if err != nil {
		return false
	}
	end, err := parseMinutes(dnd.End)
	if err != nil {
		return false
	}

	current := now.Hour()*60 + now.Minute()
	if start <= end {
		return current >= start && current <= end
	}
	return current >= start || current <= end
}

// parseMinutes converts an "HH:MM" time of day to minutes since midnight.
func parseMinutes(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h*60 + m, nil
}
