package alert

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cradleeye/internal/config"
	"github.com/cradleeye/internal/errs"
	"github.com/cradleeye/internal/models"
	"github.com/cradleeye/internal/notify"
)

// Dispatcher is the slice of the notification layer the manager depends on.
type Dispatcher interface {
	Send(channel models.Channel, alert *models.Alert, prefs *models.UserPreferences) (*notify.DeliveryResult, error)
}

// CreateAlertInput is a candidate alert from a detector or the monitor.
// Priority, title, message and channels fall back to the type configuration
// when unset.
type CreateAlertInput struct {
	Type       models.AlertType     `json:"type"`
	Priority   models.AlertPriority `json:"priority,omitempty"`
	Title      string               `json:"title,omitempty"`
	Message    string               `json:"message,omitempty"`
	Channels   []models.Channel     `json:"channels,omitempty"`
	Metadata   map[string]string    `json:"metadata,omitempty"`
	SourceData map[string]any       `json:"source_data,omitempty"`
}

// ManagerStats summarizes lifecycle activity since startup.
type ManagerStats struct {
	Active       int                    `json:"active"`
	Created      int                    `json:"created"`
	Suppressed   map[SuppressReason]int `json:"suppressed"`
	Acknowledged int                    `json:"acknowledged"`
	Resolved     int                    `json:"resolved"`
	Escalated    int                    `json:"escalated"`
}

// entry pairs an active alert with its own mutex and escalation timer, so
// operations on different alerts proceed independently.
type entry struct {
	mu         sync.Mutex
	alert      *models.Alert
	escalation *time.Timer
}

// Manager owns the alert state machines: it creates alerts (or suppresses
// them), orchestrates notification dispatch and escalation timers, and
// publishes lifecycle events.
type Manager struct {
	mu     sync.RWMutex
	active map[string]*entry

	cfgMu      sync.RWMutex
	alertTypes map[models.AlertType]config.AlertTypeConfig
	prefs      models.UserPreferences

	policy     *SuppressionPolicy
	dispatcher Dispatcher
	listeners  []Listener
	logger     *zap.Logger

	statsMu sync.Mutex
	stats   ManagerStats

	now      func() time.Time
	newTimer func(d time.Duration, f func()) *time.Timer
}

func NewManager(cfg *config.Config, policy *SuppressionPolicy, dispatcher Dispatcher, logger *zap.Logger) *Manager {
	types := make(map[models.AlertType]config.AlertTypeConfig, len(cfg.AlertTypes))
	for t, tc := range cfg.AlertTypes {
		types[t] = tc
	}
	return &Manager{
		active:     make(map[string]*entry),
		alertTypes: types,
		prefs:      cfg.Preferences,
		policy:     policy,
		dispatcher: dispatcher,
		logger:     logger,
		stats:      ManagerStats{Suppressed: make(map[SuppressReason]int)},
		now:        time.Now,
		newTimer:   time.AfterFunc,
	}
}

func (m *Manager) AddListener(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// Preferences returns a snapshot of the current notification preferences.
func (m *Manager) Preferences() models.UserPreferences {
	m.cfgMu.RLock()
	defer m.cfgMu.RUnlock()
	return m.prefs
}

// UpdatePreferences replaces the notification preferences.
func (m *Manager) UpdatePreferences(prefs models.UserPreferences) error {
	if prefs.DND.Enabled {
		if _, err := parseMinutes(prefs.DND.Start); err != nil {
			return fmt.Errorf("%w: dnd start: %v", errs.ErrInvalidInput, err)
		}
		if _, err := parseMinutes(prefs.DND.End); err != nil {
			return fmt.Errorf("%w: dnd end: %v", errs.ErrInvalidInput, err)
		}
	}
	for ch := range prefs.Channels {
		if !models.IsValidChannel(ch) {
			return fmt.Errorf("%w: channel %q", errs.ErrInvalidInput, ch)
		}
	}
	for _, ch := range prefs.Escalation.Channels {
		if !models.IsValidChannel(ch) {
			return fmt.Errorf("%w: escalation channel %q", errs.ErrInvalidInput, ch)
		}
	}

	m.cfgMu.Lock()
	m.prefs = prefs
	m.cfgMu.Unlock()
	m.logger.Info("preferences updated")
	return nil
}

// UpdateTypeConfig replaces the configuration of one alert type.
func (m *Manager) UpdateTypeConfig(t models.AlertType, tc config.AlertTypeConfig) error {
	if !models.IsValidAlertType(t) {
		return fmt.Errorf("%w: alert type %q", errs.ErrInvalidInput, t)
	}
	if !models.IsValidPriority(tc.Priority) {
		return fmt.Errorf("%w: priority %q", errs.ErrInvalidInput, tc.Priority)
	}
	for _, ch := range tc.Channels {
		if !models.IsValidChannel(ch) {
			return fmt.Errorf("%w: channel %q", errs.ErrInvalidInput, ch)
		}
	}
	if tc.CooldownMinutes < 0 {
		return fmt.Errorf("%w: negative cooldown", errs.ErrInvalidInput)
	}

	m.cfgMu.Lock()
	m.alertTypes[t] = tc
	m.cfgMu.Unlock()
	return nil
}

func (m *Manager) typeConfig(t models.AlertType) config.AlertTypeConfig {
	m.cfgMu.RLock()
	defer m.cfgMu.RUnlock()
	return m.alertTypes[t]
}

// CreateAlert evaluates suppression and, if the candidate is accepted,
// creates the alert, dispatches it to the configured channels and arms the
// escalation timer. A suppressed candidate returns (nil, nil): a normal
// outcome, not a failure.
func (m *Manager) CreateAlert(input CreateAlertInput) (*models.Alert, error) {
	if !models.IsValidAlertType(input.Type) {
		return nil, fmt.Errorf("%w: alert type %q", errs.ErrInvalidInput, input.Type)
	}
	if input.Priority != "" && !models.IsValidPriority(input.Priority) {
		return nil, fmt.Errorf("%w: priority %q", errs.ErrInvalidInput, input.Priority)
	}
	for _, ch := range input.Channels {
		if !models.IsValidChannel(ch) {
			return nil, fmt.Errorf("%w: channel %q", errs.ErrInvalidInput, ch)
		}
	}

	typeCfg := m.typeConfig(input.Type)
	prefs := m.Preferences()
	now := m.now()

	priority := input.Priority
	if priority == "" {
		priority = typeCfg.Priority
		if priority == "" {
			priority = models.PriorityMedium
		}
	}

	if reason := m.policy.CheckAndCommit(input.Type, priority, typeCfg, &prefs, now); reason != SuppressNone {
		m.statsMu.Lock()
		m.stats.Suppressed[reason]++
		m.statsMu.Unlock()
		m.logger.Debug("alert suppressed",
			zap.String("type", string(input.Type)), zap.String("reason", string(reason)))
		return nil, nil
	}

	a := &models.Alert{
		ID:         uuid.NewString(),
		Type:       input.Type,
		Priority:   priority,
		Status:     models.AlertStatusPending,
		Title:      input.Title,
		Message:    input.Message,
		Metadata:   input.Metadata,
		SourceData: input.SourceData,
		CreatedAt:  now,
	}
	if a.Title == "" {
		a.Title = defaultTitle(input.Type)
	}
	if a.Message == "" {
		a.Message = fmt.Sprintf("%s at %s", a.Title, now.Format("15:04:05"))
	}

	channels := input.Channels
	if len(channels) == 0 {
		channels = typeCfg.Channels
	}

	a.Status = models.AlertStatusProcessing
	e := &entry{alert: a}
	m.mu.Lock()
	m.active[a.ID] = e
	m.mu.Unlock()

	if m.dispatcher == nil {
		e.mu.Lock()
		a.Status = models.AlertStatusFailed
		e.mu.Unlock()
		m.logger.Error("no dispatcher attached, alert not delivered", zap.String("alert_id", a.ID))
	} else {
		m.dispatch(e, channels, &prefs)
		// Channel failures are recorded per attempt; the alert itself is
		// delivered once the dispatch pass completed.
		e.mu.Lock()
		if a.Status == models.AlertStatusProcessing {
			a.Status = models.AlertStatusDelivered
		}
		e.mu.Unlock()
	}

	if prefs.Escalation.Enabled {
		timeout := time.Duration(prefs.Escalation.TimeoutMinutes) * time.Minute
		if timeout <= 0 {
			timeout = 5 * time.Minute
		}
		id := a.ID
		e.mu.Lock()
		e.escalation = m.newTimer(timeout, func() { m.escalate(id) })
		e.mu.Unlock()
	}

	m.statsMu.Lock()
	m.stats.Created++
	m.statsMu.Unlock()

	snapshot := m.snapshot(e)
	m.emit(func(l Listener) { l.OnAlertCreated(snapshot) })
	m.logger.Info("alert created",
		zap.String("alert_id", a.ID),
		zap.String("type", string(a.Type)),
		zap.String("priority", string(a.Priority)))
	return &snapshot, nil
}

// dispatch fans one alert out to each channel independently. A delivery
// attempt is recorded as pending before the external call and finalized
// after it returns; no lock is held while the call is in flight.
func (m *Manager) dispatch(e *entry, channels []models.Channel, prefs *models.UserPreferences) {
	for _, ch := range channels {
		attempt := models.DeliveryAttempt{
			ID:        uuid.NewString(),
			AlertID:   e.alert.ID,
			Channel:   ch,
			Status:    models.DeliveryPending,
			Timestamp: m.now(),
		}
		e.mu.Lock()
		e.alert.DeliveryAttempts = append(e.alert.DeliveryAttempts, attempt)
		payload := *e.alert
		payload.DeliveryAttempts = nil
		e.mu.Unlock()

		result, err := m.dispatcher.Send(ch, &payload, prefs)

		e.mu.Lock()
		for i := range e.alert.DeliveryAttempts {
			if e.alert.DeliveryAttempts[i].ID != attempt.ID {
				continue
			}
			if err != nil {
				e.alert.DeliveryAttempts[i].Status = models.DeliveryFailed
				e.alert.DeliveryAttempts[i].Error = err.Error()
			} else {
				e.alert.DeliveryAttempts[i].Status = models.DeliverySuccess
			}
			if result != nil {
				e.alert.DeliveryAttempts[i].ResponseData = result.ResponseData
			}
			break
		}
		e.mu.Unlock()
	}
}

// AcknowledgeAlert marks an active alert acknowledged and cancels its
// escalation timer. Acknowledging twice is idempotent: the second call
// returns the recorded state without error.
func (m *Manager) AcknowledgeAlert(id, actor string) (*models.Alert, error) {
	e, err := m.lookup(id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	a := e.alert
	if a.Status == models.AlertStatusAcknowledged {
		snapshot := copyAlert(a)
		e.mu.Unlock()
		m.logger.Warn("alert already acknowledged", zap.String("alert_id", id))
		return &snapshot, nil
	}
	now := m.now()
	a.Status = models.AlertStatusAcknowledged
	a.AcknowledgedAt = &now
	a.AcknowledgedBy = actor
	if e.escalation != nil {
		e.escalation.Stop()
		e.escalation = nil
	}
	snapshot := copyAlert(a)
	e.mu.Unlock()

	m.statsMu.Lock()
	m.stats.Acknowledged++
	m.statsMu.Unlock()

	m.emit(func(l Listener) { l.OnAlertAcknowledged(snapshot) })
	m.logger.Info("alert acknowledged", zap.String("alert_id", id), zap.String("by", actor))
	return &snapshot, nil
}

// ResolveAlert transitions an alert to its terminal state and removes it
// from the active set, cancelling any pending timer.
func (m *Manager) ResolveAlert(id, actor string) (*models.Alert, error) {
	m.mu.Lock()
	e, ok := m.active[id]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: alert %s", errs.ErrNotFound, id)
	}
	delete(m.active, id)
	m.mu.Unlock()

	e.mu.Lock()
	a := e.alert
	now := m.now()
	a.Status = models.AlertStatusResolved
	a.ResolvedAt = &now
	a.ResolvedBy = actor
	if e.escalation != nil {
		e.escalation.Stop()
		e.escalation = nil
	}
	snapshot := copyAlert(a)
	e.mu.Unlock()

	m.statsMu.Lock()
	m.stats.Resolved++
	m.statsMu.Unlock()

	m.emit(func(l Listener) { l.OnAlertResolved(snapshot) })
	m.logger.Info("alert resolved", zap.String("alert_id", id), zap.String("by", actor))
	return &snapshot, nil
}

// escalate is the escalation timer callback. It checks the alert state
// under its lock before acting, so an acknowledge racing the timer makes
// escalation a clean no-op.
func (m *Manager) escalate(id string) {
	m.mu.RLock()
	e, ok := m.active[id]
	m.mu.RUnlock()
	if !ok {
		return
	}

	prefs := m.Preferences()

	e.mu.Lock()
	a := e.alert
	if a.Status == models.AlertStatusAcknowledged || a.Status == models.AlertStatusResolved || a.Escalated {
		e.mu.Unlock()
		return
	}
	now := m.now()
	a.Escalated = true
	a.EscalatedAt = &now
	e.mu.Unlock()

	channels := prefs.Escalation.Channels
	if len(channels) == 0 {
		channels = []models.Channel{models.ChannelSMS, models.ChannelEmail}
	}
	// The escalation attempt counts as made even if every channel fails;
	// failures land in the delivery attempts.
	if m.dispatcher != nil {
		m.dispatch(e, channels, &prefs)
	}

	m.statsMu.Lock()
	m.stats.Escalated++
	m.statsMu.Unlock()

	snapshot := m.snapshot(e)
	m.emit(func(l Listener) { l.OnAlertEscalated(snapshot) })
	m.logger.Warn("alert escalated", zap.String("alert_id", id))
}

// GetAlert returns a snapshot of one active alert.
func (m *Manager) GetAlert(id string) (*models.Alert, error) {
	e, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	snapshot := m.snapshot(e)
	return &snapshot, nil
}

// ActiveAlerts lists the active set ordered critical first, ties broken
// newest first.
func (m *Manager) ActiveAlerts() []models.Alert {
	m.mu.RLock()
	entries := make([]*entry, 0, len(m.active))
	for _, e := range m.active {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	alerts := make([]models.Alert, 0, len(entries))
	for _, e := range entries {
		alerts = append(alerts, m.snapshot(e))
	}
	sort.Slice(alerts, func(i, j int) bool {
		if alerts[i].Priority.Rank() != alerts[j].Priority.Rank() {
			return alerts[i].Priority.Rank() > alerts[j].Priority.Rank()
		}
		return alerts[i].CreatedAt.After(alerts[j].CreatedAt)
	})
	return alerts
}

// Stats returns lifecycle counters.
func (m *Manager) Stats() ManagerStats {
	m.mu.RLock()
	active := len(m.active)
	m.mu.RUnlock()

	m.statsMu.Lock()
	defer m.statsMu.Unlock()
	stats := m.stats
	stats.Active = active
	stats.Suppressed = make(map[SuppressReason]int, len(m.stats.Suppressed))
	for r, n := range m.stats.Suppressed {
		stats.Suppressed[r] = n
	}
	return stats
}

// Close cancels all pending escalation timers.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.active {
		e.mu.Lock()
		if e.escalation != nil {
			e.escalation.Stop()
			e.escalation = nil
		}
		e.mu.Unlock()
	}
}

func (m *Manager) lookup(id string) (*entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.active[id]
	if !ok {
		return nil, fmt.Errorf("%w: alert %s", errs.ErrNotFound, id)
	}
	return e, nil
}

func (m *Manager) snapshot(e *entry) models.Alert {
	e.mu.Lock()
	defer e.mu.Unlock()
	return copyAlert(e.alert)
}

func (m *Manager) emit(fn func(Listener)) {
	m.mu.RLock()
	listeners := make([]Listener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.RUnlock()

	for _, l := range listeners {
		fn(l)
	}
}

func copyAlert(a *models.Alert) models.Alert {
	out := *a
	out.DeliveryAttempts = append([]models.DeliveryAttempt(nil), a.DeliveryAttempts...)
	return out
}

func defaultTitle(t models.AlertType) string {
	switch t {
	case models.AlertTypeMotion:
		return "Motion detected"
	case models.AlertTypeSound:
		return "Sound detected"
	case models.AlertTypeCryDetected:
		return "Crying detected"
	case models.AlertTypeNoiseLevel:
		return "Noise level exceeded"
	case models.AlertTypeSystem:
		return "System problem"
	case models.AlertTypeConnection:
		return "Connection problem"
	case models.AlertTypeCamera:
		return "Camera problem"
	case models.AlertTypeStorage:
		return "Storage problem"
	default:
		return "Alert"
	}
}
