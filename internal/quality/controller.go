package quality

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cradleeye/internal/config"
	"github.com/cradleeye/internal/errs"
	"github.com/cradleeye/internal/models"
)

// qualityHistorySize bounds the per-client record of committed changes.
const qualityHistorySize = 20

// Event describes one committed quality transition, consumed by the
// streaming layer to renegotiate bitrate and resolution.
type Event struct {
	ClientID string              `json:"client_id"`
	StreamID string              `json:"stream_id"`
	Old      models.QualityLevel `json:"old"`
	New      models.QualityLevel `json:"new"`
	Manual   bool                `json:"manual"`
}

// Listener receives quality change events. A non-nil error from an automatic
// adaptation aborts the commit; the change is retried on the next tick.
type Listener interface {
	OnQualityAdapted(event Event) error
}

type ListenerFunc func(event Event) error

func (f ListenerFunc) OnQualityAdapted(event Event) error { return f(event) }

type client struct {
	mu    sync.Mutex
	state models.ClientQualityState
	stop  chan struct{}
}

// ControllerStats summarizes the controller across clients.
type ControllerStats struct {
	Clients          int `json:"clients"`
	TotalAdaptations int `json:"total_adaptations"`
	ManualChanges    int `json:"manual_changes"`
}

// Controller owns the per-client quality state machines. Each client has its
// own evaluation schedule and mutex, so clients adapt independently.
type Controller struct {
	mu        sync.RWMutex
	clients   map[string]*client
	agg       *Aggregator
	engine    *Engine
	interval  time.Duration
	listeners []Listener
	logger    *zap.Logger

	now func() time.Time
}

func NewController(cfg config.QualityConfig, agg *Aggregator, engine *Engine, logger *zap.Logger) *Controller {
	return &Controller{
		clients:  make(map[string]*client),
		agg:      agg,
		engine:   engine,
		interval: cfg.Interval(),
		logger:   logger,
		now:      time.Now,
	}
}

func (c *Controller) AddListener(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// Register creates quality state for a newly connected client and starts its
// evaluation schedule. Streams start at medium and adapt from there.
func (c *Controller) Register(clientID, streamID string) error {
	if clientID == "" {
		return fmt.Errorf("%w: empty client id", errs.ErrInvalidInput)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.clients[clientID]; ok {
		return fmt.Errorf("%w: client %s already registered", errs.ErrInvalidInput, clientID)
	}

	cl := &client{
		state: models.ClientQualityState{
			ClientID:       clientID,
			StreamID:       streamID,
			CurrentQuality: models.QualityMedium,
			TargetQuality:  models.QualityMedium,
		},
		stop: make(chan struct{}),
	}
	c.clients[clientID] = cl

	if c.interval > 0 {
		go c.run(clientID, cl.stop)
	}
	c.logger.Info("client registered", zap.String("client_id", clientID), zap.String("stream_id", streamID))
	return nil
}

// Unregister destroys a client's state and deterministically stops its
// evaluation schedule; no tick runs against a removed client.
func (c *Controller) Unregister(clientID string) error {
	c.mu.Lock()
	cl, ok := c.clients[clientID]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: client %s", errs.ErrNotFound, clientID)
	}
	delete(c.clients, clientID)
	c.mu.Unlock()

	close(cl.stop)
	c.agg.Forget(clientID)
	c.logger.Info("client unregistered", zap.String("client_id", clientID))
	return nil
}

// Ingest feeds one network telemetry sample for a registered client.
func (c *Controller) Ingest(clientID string, sample models.NetworkSample) error {
	if _, err := c.lookup(clientID); err != nil {
		return err
	}
	c.agg.Update(clientID, sample)
	return nil
}

func (c *Controller) run(clientID string, stop chan struct{}) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := c.Evaluate(clientID); err != nil {
				c.logger.Warn("quality evaluation failed",
					zap.String("client_id", clientID), zap.Error(err))
			}
		case <-stop:
			return
		}
	}
}

func (c *Controller) lookup(clientID string) (*client, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cl, ok := c.clients[clientID]
	if !ok {
		return nil, fmt.Errorf("%w: client %s", errs.ErrNotFound, clientID)
	}
	return cl, nil
}

// Evaluate runs one adaptation cycle for a client: aggregate, recommend,
// gate, and commit. The stabilization counter tracks consecutive cycles
// agreeing on the same recommendation; a diverging recommendation resets it.
func (c *Controller) Evaluate(clientID string) error {
	cl, err := c.lookup(clientID)
	if err != nil {
		return err
	}

	stats, err := c.agg.Average(clientID)
	if err != nil {
		// Not enough telemetry yet; never decide on thin data.
		return nil
	}
	recommended := c.engine.Decide(stats)
	now := c.now()

	cl.mu.Lock()
	state := &cl.state
	if recommended == state.TargetQuality {
		state.StabilizationCounter++
		if state.StabilizationCounter >= c.engine.StabilizationWindow() {
			state.IsStable = true
		}
	} else {
		state.StabilizationCounter = 0
		state.IsStable = false
	}
	state.TargetQuality = recommended

	if recommended == state.CurrentQuality {
		cl.mu.Unlock()
		return nil
	}
	if !c.engine.ShouldAdapt(state, recommended, now) {
		cl.mu.Unlock()
		return nil
	}
	event := Event{
		ClientID: state.ClientID,
		StreamID: state.StreamID,
		Old:      state.CurrentQuality,
		New:      recommended,
	}
	cl.mu.Unlock()

	// The streaming layer applies the change first, with the client mutex
	// released so listeners may call back into the controller. State is only
	// committed once that succeeded, so a failed renegotiation is retried next
	// tick with current_quality intact.
	if err := c.emit(event); err != nil {
		c.logger.Warn("quality change not applied",
			zap.String("client_id", clientID),
			zap.String("from", string(event.Old)),
			zap.String("to", string(event.New)),
			zap.Error(err))
		return nil
	}

	cl.mu.Lock()
	defer cl.mu.Unlock()
	// Another transition landed while the listener ran; drop this one rather
	// than commit against a stale base.
	if cl.state.CurrentQuality != event.Old {
		return nil
	}
	c.commit(&cl.state, recommended, now, false)
	c.logger.Info("quality adapted",
		zap.String("client_id", clientID),
		zap.String("from", string(event.Old)),
		zap.String("to", string(event.New)),
		zap.String("confidence", string(stats.Confidence)))
	return nil
}

// ForceQuality applies a user-requested quality change, bypassing the
// hysteresis gate. Manual changes update state and history but count
// separately from automatic adaptations.
func (c *Controller) ForceQuality(clientID string, level models.QualityLevel) error {
	if !models.IsValidQuality(level) {
		return fmt.Errorf("%w: quality %q", errs.ErrInvalidInput, level)
	}
	cl, err := c.lookup(clientID)
	if err != nil {
		return err
	}

	cl.mu.Lock()
	if level == cl.state.CurrentQuality {
		cl.mu.Unlock()
		return nil
	}
	event := Event{
		ClientID: cl.state.ClientID,
		StreamID: cl.state.StreamID,
		Old:      cl.state.CurrentQuality,
		New:      level,
		Manual:   true,
	}
	cl.mu.Unlock()

	// Listeners run without the client mutex held. A manual change commits
	// even if the streaming layer refuses it.
	if err := c.emit(event); err != nil {
		c.logger.Warn("manual quality change listener failed",
			zap.String("client_id", clientID), zap.Error(err))
	}

	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.state.CurrentQuality == level {
		return nil
	}
	c.commit(&cl.state, level, c.now(), true)
	return nil
}

// commit applies a quality transition. Callers hold the client mutex.
func (c *Controller) commit(state *models.ClientQualityState, level models.QualityLevel, now time.Time, manual bool) {
	change := models.QualityChange{
		Timestamp: now,
		From:      state.CurrentQuality,
		To:        level,
		Manual:    manual,
	}
	state.CurrentQuality = level
	state.TargetQuality = level
	state.LastAdaptationAt = now
	state.StabilizationCounter = 0
	state.IsStable = false
	if manual {
		state.ManualChanges++
	} else {
		state.AdaptationCount++
	}
	state.QualityHistory = append(state.QualityHistory, change)
	if len(state.QualityHistory) > qualityHistorySize {
		state.QualityHistory = state.QualityHistory[len(state.QualityHistory)-qualityHistorySize:]
	}
}

func (c *Controller) emit(event Event) error {
	c.mu.RLock()
	listeners := make([]Listener, len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.RUnlock()

	for _, l := range listeners {
		if err := l.OnQualityAdapted(event); err != nil {
			return err
		}
	}
	return nil
}

// ClientStats returns a copy of a client's quality state plus its stored
// network history.
func (c *Controller) ClientStats(clientID string) (*models.ClientQualityState, []models.NetworkSample, error) {
	cl, err := c.lookup(clientID)
	if err != nil {
		return nil, nil, err
	}

	cl.mu.Lock()
	state := cl.state
	state.QualityHistory = append([]models.QualityChange(nil), cl.state.QualityHistory...)
	cl.mu.Unlock()

	return &state, c.agg.History(clientID), nil
}

// Stats summarizes all clients.
func (c *Controller) Stats() ControllerStats {
	c.mu.RLock()
	clients := make([]*client, 0, len(c.clients))
	for _, cl := range c.clients {
		clients = append(clients, cl)
	}
	c.mu.RUnlock()

	stats := ControllerStats{Clients: len(clients)}
	for _, cl := range clients {
		cl.mu.Lock()
		stats.TotalAdaptations += cl.state.AdaptationCount
		stats.ManualChanges += cl.state.ManualChanges
		cl.mu.Unlock()
	}
	return stats
}
