package notify

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cradleeye/internal/errs"
	"github.com/cradleeye/internal/models"
)

// Notifier is one channel adapter. Adapters validate their own recipient
// fields and return errs.ErrMisconfigured (wrapped) when they are absent;
// any other failure is treated as transient.
type Notifier interface {
	Channel() models.Channel
	Send(alert *models.Alert, settings models.ChannelSettings) (map[string]string, error)
	Test(settings models.ChannelSettings) (map[string]string, error)
}

// DeliveryResult is the outcome of one dispatch to one channel.
type DeliveryResult struct {
	Channel      models.Channel        `json:"channel"`
	Status       models.DeliveryStatus `json:"status"`
	Timestamp    time.Time             `json:"timestamp"`
	Error        string                `json:"error,omitempty"`
	ResponseData map[string]string     `json:"response_data,omitempty"`
}

// ChannelStats counts dispatch outcomes for one channel.
type ChannelStats struct {
	Total       int     `json:"total"`
	Successful  int     `json:"successful"`
	Failed      int     `json:"failed"`
	SuccessRate float64 `json:"success_rate"`
}

// Stats aggregates dispatch outcomes globally and per channel.
type Stats struct {
	Total       int                             `json:"total"`
	Successful  int                             `json:"successful"`
	Failed      int                             `json:"failed"`
	SuccessRate float64                         `json:"success_rate"`
	Channels    map[models.Channel]ChannelStats `json:"channels"`
}

// rateWindow is a fixed one-hour counting window. The window resets when it
// is older than an hour, so bursts at window boundaries are possible; this
// mirrors the configured provider contracts rather than a sliding window.
type rateWindow struct {
	start time.Time
	count int
}

type counters struct {
	total, successful, failed int
}

// Dispatcher fans alerts out to channel adapters with per-channel rate
// limiting and failure isolation: one channel failing never aborts delivery
// to its siblings, because each channel is dispatched independently.
type Dispatcher struct {
	mu        sync.Mutex
	notifiers map[models.Channel]Notifier
	windows   map[models.Channel]*rateWindow
	global    counters
	perChan   map[models.Channel]*counters
	logger    *zap.Logger

	now func() time.Time
}

func NewDispatcher(logger *zap.Logger, notifiers ...Notifier) *Dispatcher {
	d := &Dispatcher{
		notifiers: make(map[models.Channel]Notifier),
		windows:   make(map[models.Channel]*rateWindow),
		perChan:   make(map[models.Channel]*counters),
		logger:    logger,
		now:       time.Now,
	}
	for _, n := range notifiers {
		d.notifiers[n.Channel()] = n
	}
	return d
}

// Send delivers one alert to one channel. The returned result always carries
// a terminal status; the error classifies the failure for the caller
// (errs.ErrRateLimited, errs.ErrMisconfigured, errs.ErrChannelDeliveryFailed,
// errs.ErrInvalidInput).
func (d *Dispatcher) Send(channel models.Channel, alert *models.Alert, prefs *models.UserPreferences) (*DeliveryResult, error) {
	notifier, ok := d.notifiers[channel]
	if !ok {
		return d.finish(channel, nil, fmt.Errorf("%w: unknown channel %q", errs.ErrInvalidInput, channel))
	}

	settings := prefs.ChannelSettingsFor(channel)
	if !settings.Enabled {
		return d.finish(channel, nil, fmt.Errorf("%w: channel %s disabled", errs.ErrMisconfigured, channel))
	}

	// The rate gate runs before any external call is attempted.
	if err := d.allow(channel, settings.MaxPerHour); err != nil {
		return d.finish(channel, nil, err)
	}

	response, err := notifier.Send(alert, settings)
	if err != nil && !errors.Is(err, errs.ErrMisconfigured) {
		err = fmt.Errorf("%w: %s: %v", errs.ErrChannelDeliveryFailed, channel, err)
	}
	return d.finish(channel, response, err)
}

// TestChannel fires a test delivery, bypassing the rate gate and statistics.
func (d *Dispatcher) TestChannel(channel models.Channel, prefs *models.UserPreferences) (*DeliveryResult, error) {
	notifier, ok := d.notifiers[channel]
	if !ok {
		return failedResult(channel, d.now()), fmt.Errorf("%w: unknown channel %q", errs.ErrInvalidInput, channel)
	}
	settings := prefs.ChannelSettingsFor(channel)
	if !settings.Enabled {
		return failedResult(channel, d.now()), fmt.Errorf("%w: channel %s disabled", errs.ErrMisconfigured, channel)
	}

	response, err := notifier.Test(settings)
	if err != nil {
		if !errors.Is(err, errs.ErrMisconfigured) {
			err = fmt.Errorf("%w: %s: %v", errs.ErrChannelDeliveryFailed, channel, err)
		}
		result := failedResult(channel, d.now())
		result.Error = err.Error()
		return result, err
	}
	return &DeliveryResult{
		Channel:      channel,
		Status:       models.DeliverySuccess,
		Timestamp:    d.now(),
		ResponseData: response,
	}, nil
}

// allow checks and advances the fixed-window counter for a channel.
func (d *Dispatcher) allow(channel models.Channel, maxPerHour int) error {
	if maxPerHour <= 0 {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	w, ok := d.windows[channel]
	if !ok || now.Sub(w.start) > time.Hour {
		w = &rateWindow{start: now}
		d.windows[channel] = w
	}
	if w.count >= maxPerHour {
		return fmt.Errorf("%w: channel %s exceeded %d/hour", errs.ErrRateLimited, channel, maxPerHour)
	}
	w.count++
	return nil
}

func (d *Dispatcher) finish(channel models.Channel, response map[string]string, err error) (*DeliveryResult, error) {
	result := &DeliveryResult{
		Channel:      channel,
		Timestamp:    d.now(),
		ResponseData: response,
	}
	if err != nil {
		result.Status = models.DeliveryFailed
		result.Error = err.Error()
	} else {
		result.Status = models.DeliverySuccess
	}

	d.mu.Lock()
	c, ok := d.perChan[channel]
	if !ok {
		c = &counters{}
		d.perChan[channel] = c
	}
	c.total++
	d.global.total++
	if err != nil {
		c.failed++
		d.global.failed++
	} else {
		c.successful++
		d.global.successful++
	}
	d.mu.Unlock()

	if err != nil {
		d.logger.Warn("notification delivery failed",
			zap.String("channel", string(channel)), zap.Error(err))
	}
	return result, err
}

func failedResult(channel models.Channel, now time.Time) *DeliveryResult {
	return &DeliveryResult{Channel: channel, Status: models.DeliveryFailed, Timestamp: now}
}

// GetStats returns dispatch totals with derived success rates.
func (d *Dispatcher) GetStats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()

	stats := Stats{
		Total:      d.global.total,
		Successful: d.global.successful,
		Failed:     d.global.failed,
		Channels:   make(map[models.Channel]ChannelStats, len(d.perChan)),
	}
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Successful) / float64(stats.Total)
	}
	for ch, c := range d.perChan {
		cs := ChannelStats{Total: c.total, Successful: c.successful, Failed: c.failed}
		if cs.Total > 0 {
			cs.SuccessRate = float64(cs.Successful) / float64(cs.Total)
		}
		stats.Channels[ch] = cs
	}
	return stats
}

// FailureRate is the global failed fraction, used by the health monitor.
func (d *Dispatcher) FailureRate() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.global.total == 0 {
		return 0
	}
	return float64(d.global.failed) / float64(d.global.total)
}
