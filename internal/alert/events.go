package alert

import "github.com/cradleeye/internal/models"

// Listener receives lifecycle events with a snapshot of the alert at the
// time of the event. Implementations must not block; slow work (persistence,
// UI push) belongs on the listener's own goroutine.
type Listener interface {
	OnAlertCreated(alert models.Alert)
	OnAlertAcknowledged(alert models.Alert)
	OnAlertResolved(alert models.Alert)
	OnAlertEscalated(alert models.Alert)
}

// NopListener is a Listener base with empty handlers, for implementations
// that only care about a subset of events.
type NopListener struct{}

func (NopListener) OnAlertCreated(models.Alert)      {}
func (NopListener) OnAlertAcknowledged(models.Alert) {}
func (NopListener) OnAlertResolved(models.Alert)     {}
func (NopListener) OnAlertEscalated(models.Alert)    {}
