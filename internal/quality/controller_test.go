package quality

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cradleeye/internal/errs"
	"github.com/cradleeye/internal/models"
)

// recorder collects emitted quality events and can be told to reject them.
type recorder struct {
	events []Event
	fail   bool
}

func (r *recorder) OnQualityAdapted(event Event) error {
	if r.fail {
		return errors.New("renegotiation refused")
	}
	r.events = append(r.events, event)
	return nil
}

type clock struct {
	t time.Time
}

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestController(t *testing.T) (*Controller, *recorder, *clock) {
	t.Helper()
	cfg := testQualityConfig()
	agg := NewAggregator()
	ctrl := NewController(cfg, agg, NewEngine(cfg), zap.NewNop())

	ck := &clock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	ctrl.now = ck.now

	rec := &recorder{}
	ctrl.AddListener(rec)
	return ctrl, rec, ck
}

// feed ingests enough identical samples to produce a confident estimate.
func feed(t *testing.T, ctrl *Controller, clientID string, bandwidth, latency, loss float64) {
	t.Helper()
	for i := 0; i < 5; i++ {
		require.NoError(t, ctrl.Ingest(clientID, models.NetworkSample{
			Bandwidth:  bandwidth,
			Latency:    latency,
			PacketLoss: loss,
		}))
	}
}

func TestRegister_Duplicate(t *testing.T) {
	ctrl, _, _ := newTestController(t)

	require.NoError(t, ctrl.Register("cam-1", "stream-1"))
	err := ctrl.Register("cam-1", "stream-1")
	assert.ErrorIs(t, err, errs.ErrInvalidInput)

	err = ctrl.Register("", "stream-2")
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestIngest_UnknownClient(t *testing.T) {
	ctrl, _, _ := newTestController(t)
	err := ctrl.Ingest("ghost", models.NetworkSample{Bandwidth: 1_000_000})
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestEvaluate_InsufficientDataIsNotAnError(t *testing.T) {
	ctrl, rec, _ := newTestController(t)
	require.NoError(t, ctrl.Register("cam-1", "stream-1"))

	require.NoError(t, ctrl.Evaluate("cam-1"))
	assert.Empty(t, rec.events)
}

func TestEvaluate_DowngradeAfterRampDown(t *testing.T) {
	ctrl, rec, ck := newTestController(t)
	require.NoError(t, ctrl.Register("cam-1", "stream-1"))
	feed(t, ctrl, "cam-1", 292_000, 250, 0.03)

	// First cycle recommends low but the ramp-down delay has not elapsed
	// since registration state has a zero LastAdaptationAt far in the past,
	// so the downgrade applies immediately.
	require.NoError(t, ctrl.Evaluate("cam-1"))
	require.Len(t, rec.events, 1)
	assert.Equal(t, models.QualityMedium, rec.events[0].Old)
	assert.Equal(t, models.QualityLow, rec.events[0].New)
	assert.False(t, rec.events[0].Manual)

	state, _, err := ctrl.ClientStats("cam-1")
	require.NoError(t, err)
	assert.Equal(t, models.QualityLow, state.CurrentQuality)
	assert.Equal(t, 1, state.AdaptationCount)
	assert.Equal(t, ck.t, state.LastAdaptationAt)
}

func TestEvaluate_DowngradeGatedByRampDownDelay(t *testing.T) {
	ctrl, rec, ck := newTestController(t)
	require.NoError(t, ctrl.Register("cam-1", "stream-1"))

	// Drop to low, then immediately recover enough only for medium to keep
	// recommending downward from a fresh adaptation timestamp.
	feed(t, ctrl, "cam-1", 292_000, 250, 0.03)
	require.NoError(t, ctrl.Evaluate("cam-1"))
	require.Len(t, rec.events, 1)

	// Push the link back up and force to high so the next recommendation is
	// a downgrade again.
	require.NoError(t, ctrl.ForceQuality("cam-1", models.QualityHigh))
	feed(t, ctrl, "cam-1", 292_000, 250, 0.03)

	ck.advance(2 * time.Second)
	require.NoError(t, ctrl.Evaluate("cam-1"))
	assert.Len(t, rec.events, 2, "downgrade held back inside the ramp-down delay")

	ck.advance(2 * time.Second)
	require.NoError(t, ctrl.Evaluate("cam-1"))
	require.Len(t, rec.events, 3)
	assert.Equal(t, models.QualityHigh, rec.events[2].Old)
	assert.Equal(t, models.QualityLow, rec.events[2].New)
}

func TestEvaluate_UpgradeNeedsStabilizationWindow(t *testing.T) {
	ctrl, rec, ck := newTestController(t)
	require.NoError(t, ctrl.Register("cam-1", "stream-1"))
	feed(t, ctrl, "cam-1", 20_000_000, 20, 0)

	// Ramp-up delay elapsed, but the recommendation has to repeat for a full
	// stabilization window before the upgrade goes through.
	ck.advance(time.Minute)
	for i := 0; i < 3; i++ {
		require.NoError(t, ctrl.Evaluate("cam-1"))
		assert.Empty(t, rec.events, "cycle %d must not upgrade yet", i)
		ck.advance(time.Second)
	}

	require.NoError(t, ctrl.Evaluate("cam-1"))
	require.Len(t, rec.events, 1)
	assert.Equal(t, models.QualityMedium, rec.events[0].Old)
	assert.Equal(t, models.QualityUltra, rec.events[0].New)
}

func TestEvaluate_DivergingRecommendationResetsStabilization(t *testing.T) {
	ctrl, rec, ck := newTestController(t)
	require.NoError(t, ctrl.Register("cam-1", "stream-1"))
	ck.advance(time.Minute)

	feed(t, ctrl, "cam-1", 20_000_000, 20, 0)
	require.NoError(t, ctrl.Evaluate("cam-1"))
	require.NoError(t, ctrl.Evaluate("cam-1"))
	require.NoError(t, ctrl.Evaluate("cam-1"))

	// A burst of latency flips the recommendation and wipes the progress.
	for i := 0; i < 10; i++ {
		require.NoError(t, ctrl.Ingest("cam-1", models.NetworkSample{
			Bandwidth: 20_000_000, Latency: 100, PacketLoss: 0,
		}))
	}
	require.NoError(t, ctrl.Evaluate("cam-1"))

	state, _, err := ctrl.ClientStats("cam-1")
	require.NoError(t, err)
	assert.Equal(t, models.QualityMedium, state.CurrentQuality)
	assert.False(t, state.IsStable)
	assert.Empty(t, rec.events)
}

func TestEvaluate_ListenerFailureLeavesStateUnchanged(t *testing.T) {
	ctrl, rec, _ := newTestController(t)
	require.NoError(t, ctrl.Register("cam-1", "stream-1"))
	feed(t, ctrl, "cam-1", 292_000, 250, 0.03)

	rec.fail = true
	require.NoError(t, ctrl.Evaluate("cam-1"))

	state, _, err := ctrl.ClientStats("cam-1")
	require.NoError(t, err)
	assert.Equal(t, models.QualityMedium, state.CurrentQuality,
		"a refused renegotiation must not commit")
	assert.Equal(t, 0, state.AdaptationCount)

	// Next cycle retries and succeeds.
	rec.fail = false
	require.NoError(t, ctrl.Evaluate("cam-1"))
	state, _, err = ctrl.ClientStats("cam-1")
	require.NoError(t, err)
	assert.Equal(t, models.QualityLow, state.CurrentQuality)
}

func TestEvaluate_ListenerMayCallBackIntoController(t *testing.T) {
	ctrl, _, _ := newTestController(t)
	require.NoError(t, ctrl.Register("cam-1", "stream-1"))
	feed(t, ctrl, "cam-1", 292_000, 250, 0.03)

	// The streaming layer reads client state back while applying the change;
	// that must not block against the evaluation in flight.
	var seen []Event
	ctrl.AddListener(ListenerFunc(func(event Event) error {
		state, _, err := ctrl.ClientStats(event.ClientID)
		if err != nil {
			return err
		}
		if state.CurrentQuality != event.Old {
			return errors.New("state committed before the listener ran")
		}
		seen = append(seen, event)
		return nil
	}))

	done := make(chan error, 1)
	go func() { done <- ctrl.Evaluate("cam-1") }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("evaluation blocked on a listener that reads client state")
	}

	require.Len(t, seen, 1)
	state, _, err := ctrl.ClientStats("cam-1")
	require.NoError(t, err)
	assert.Equal(t, models.QualityLow, state.CurrentQuality)
}

func TestForceQuality_ListenerMayCallBackIntoController(t *testing.T) {
	ctrl, _, _ := newTestController(t)
	require.NoError(t, ctrl.Register("cam-1", "stream-1"))

	ctrl.AddListener(ListenerFunc(func(event Event) error {
		_, _, err := ctrl.ClientStats(event.ClientID)
		return err
	}))

	done := make(chan error, 1)
	go func() { done <- ctrl.ForceQuality("cam-1", models.QualityUltra) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("manual change blocked on a listener that reads client state")
	}

	state, _, err := ctrl.ClientStats("cam-1")
	require.NoError(t, err)
	assert.Equal(t, models.QualityUltra, state.CurrentQuality)
}

func TestForceQuality(t *testing.T) {
	ctrl, rec, _ := newTestController(t)
	require.NoError(t, ctrl.Register("cam-1", "stream-1"))

	require.NoError(t, ctrl.ForceQuality("cam-1", models.QualityUltra))
	require.Len(t, rec.events, 1)
	assert.True(t, rec.events[0].Manual)

	state, _, err := ctrl.ClientStats("cam-1")
	require.NoError(t, err)
	assert.Equal(t, models.QualityUltra, state.CurrentQuality)
	assert.Equal(t, 1, state.ManualChanges)
	assert.Equal(t, 0, state.AdaptationCount)

	// Forcing the current level is a no-op.
	require.NoError(t, ctrl.ForceQuality("cam-1", models.QualityUltra))
	assert.Len(t, rec.events, 1)

	err = ctrl.ForceQuality("cam-1", models.QualityLevel("4k"))
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
	err = ctrl.ForceQuality("ghost", models.QualityLow)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestForceQuality_AppliesDespiteListenerFailure(t *testing.T) {
	ctrl, rec, _ := newTestController(t)
	require.NoError(t, ctrl.Register("cam-1", "stream-1"))

	rec.fail = true
	require.NoError(t, ctrl.ForceQuality("cam-1", models.QualityLow))

	state, _, err := ctrl.ClientStats("cam-1")
	require.NoError(t, err)
	assert.Equal(t, models.QualityLow, state.CurrentQuality)
}

func TestUnregister(t *testing.T) {
	ctrl, _, _ := newTestController(t)
	require.NoError(t, ctrl.Register("cam-1", "stream-1"))
	feed(t, ctrl, "cam-1", 1_000_000, 50, 0)

	require.NoError(t, ctrl.Unregister("cam-1"))
	assert.ErrorIs(t, ctrl.Unregister("cam-1"), errs.ErrNotFound)
	assert.ErrorIs(t, ctrl.Evaluate("cam-1"), errs.ErrNotFound)
	_, _, err := ctrl.ClientStats("cam-1")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestStats(t *testing.T) {
	ctrl, _, _ := newTestController(t)
	require.NoError(t, ctrl.Register("cam-1", "stream-1"))
	require.NoError(t, ctrl.Register("cam-2", "stream-2"))
	require.NoError(t, ctrl.ForceQuality("cam-2", models.QualityLow))

	stats := ctrl.Stats()
	assert.Equal(t, 2, stats.Clients)
	assert.Equal(t, 0, stats.TotalAdaptations)
	assert.Equal(t, 1, stats.ManualChanges)
}

func TestQualityHistoryBounded(t *testing.T) {
	ctrl, _, _ := newTestController(t)
	require.NoError(t, ctrl.Register("cam-1", "stream-1"))

	levels := []models.QualityLevel{models.QualityLow, models.QualityHigh}
	for i := 0; i < 25; i++ {
		require.NoError(t, ctrl.ForceQuality("cam-1", levels[i%2]))
	}

	state, _, err := ctrl.ClientStats("cam-1")
	require.NoError(t, err)
	assert.Len(t, state.QualityHistory, 20)
}
