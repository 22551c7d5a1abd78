package notify

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

// fakeNotifier stands in for a channel adapter.
type fakeNotifier struct {
	channel models.Channel
	err     error
	sends   int
	tests   int
}

func (f *fakeNotifier) Channel() models.Channel { return f.channel }

func (f *fakeNotifier) Send(_ *models.Alert, _ models.ChannelSettings) (map[string]string, error) {
	f.sends++
	if f.err != nil {
		return nil, f.err
	}
	return map[string]string{"id": "msg-1"}, nil
}

func (f *fakeNotifier) Test(_ models.ChannelSettings) (map[string]string, error) {
	f.tests++
	if f.err != nil {
		return nil, f.err
	}
	return map[string]string{"id": "test-1"}, nil
}

func testPrefs() *models.UserPreferences {
	return &models.UserPreferences{
		Channels: map[models.Channel]models.ChannelSettings{
			models.ChannelPush:  {Enabled: true, MaxPerHour: 3, PushTarget: "alerts"},
			models.ChannelEmail: {Enabled: true, Addresses: []string{"ops@example.com"}},
			models.ChannelSMS:   {Enabled: false},
		},
	}
}

func testAlert() *models.Alert {
	return &models.Alert{
		ID:       "a-1",
		Type:     models.AlertTypeMotion,
		Priority: models.PriorityHigh,
		Title:    "Motion detected",
		Message:  "Movement in the nursery",
	}
}

func TestSend_Success(t *testing.T) {
	push := &fakeNotifier{channel: models.ChannelPush}
	d := NewDispatcher(zap.NewNop(), push)

	result, err := d.Send(models.ChannelPush, testAlert(), testPrefs())
	require.NoError(t, err)
	assert.Equal(t, models.DeliverySuccess, result.Status)
	assert.Equal(t, "msg-1", result.ResponseData["id"])
	assert.Equal(t, 1, push.sends)
}

func TestSend_UnknownChannel(t *testing.T) {
	d := NewDispatcher(zap.NewNop())

	result, err := d.Send(models.ChannelWebhook, testAlert(), testPrefs())
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
	assert.Equal(t, models.DeliveryFailed, result.Status)
}

func TestSend_DisabledChannel(t *testing.T) {
	sms := &fakeNotifier{channel: models.ChannelSMS}
	d := NewDispatcher(zap.NewNop(), sms)

	result, err := d.Send(models.ChannelSMS, testAlert(), testPrefs())
	assert.ErrorIs(t, err, errs.ErrMisconfigured)
	assert.Equal(t, models.DeliveryFailed, result.Status)
	assert.Zero(t, sms.sends, "disabled channel must not reach the provider")
}

func TestSend_AdapterErrorClassification(t *testing.T) {
	push := &fakeNotifier{channel: models.ChannelPush, err: errors.New("503 from provider")}
	email := &fakeNotifier{channel: models.ChannelEmail, err: errs.ErrMisconfigured}
	d := NewDispatcher(zap.NewNop(), push, email)

	_, err := d.Send(models.ChannelPush, testAlert(), testPrefs())
	assert.ErrorIs(t, err, errs.ErrChannelDeliveryFailed)

	_, err = d.Send(models.ChannelEmail, testAlert(), testPrefs())
	assert.ErrorIs(t, err, errs.ErrMisconfigured)
	assert.NotErrorIs(t, err, errs.ErrChannelDeliveryFailed)
}

func TestSend_RateLimitFixedWindow(t *testing.T) {
	push := &fakeNotifier{channel: models.ChannelPush}
	d := NewDispatcher(zap.NewNop(), push)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	current := base
	d.now = func() time.Time { return current }

	prefs := testPrefs()
	for i := 0; i < 3; i++ {
		_, err := d.Send(models.ChannelPush, testAlert(), prefs)
		require.NoError(t, err)
	}

	result, err := d.Send(models.ChannelPush, testAlert(), prefs)
	assert.ErrorIs(t, err, errs.ErrRateLimited)
	assert.Equal(t, models.DeliveryFailed, result.Status)
	assert.Equal(t, 3, push.sends, "rate gate runs before the provider call")

	// Still inside the window an hour minus a minute later.
	current = base.Add(59 * time.Minute)
	_, err = d.Send(models.ChannelPush, testAlert(), prefs)
	assert.ErrorIs(t, err, errs.ErrRateLimited)

	// A fresh window opens once the old one expires.
	current = base.Add(61 * time.Minute)
	_, err = d.Send(models.ChannelPush, testAlert(), prefs)
	assert.NoError(t, err)
	assert.Equal(t, 4, push.sends)
}

func TestSend_RateLimitPerChannel(t *testing.T) {
	push := &fakeNotifier{channel: models.ChannelPush}
	email := &fakeNotifier{channel: models.ChannelEmail}
	d := NewDispatcher(zap.NewNop(), push, email)

	prefs := testPrefs()
	for i := 0; i < 3; i++ {
		_, err := d.Send(models.ChannelPush, testAlert(), prefs)
		require.NoError(t, err)
	}
	_, err := d.Send(models.ChannelPush, testAlert(), prefs)
	require.ErrorIs(t, err, errs.ErrRateLimited)

	// Email has no cap configured and is unaffected by push's window.
	_, err = d.Send(models.ChannelEmail, testAlert(), prefs)
	assert.NoError(t, err)
}

func TestTestChannel_BypassesRateGateAndStats(t *testing.T) {
	push := &fakeNotifier{channel: models.ChannelPush}
	d := NewDispatcher(zap.NewNop(), push)

	prefs := testPrefs()
	for i := 0; i < 5; i++ {
		result, err := d.TestChannel(models.ChannelPush, prefs)
		require.NoError(t, err)
		assert.Equal(t, models.DeliverySuccess, result.Status)
	}
	assert.Equal(t, 5, push.tests)
	assert.Zero(t, push.sends)
	assert.Zero(t, d.GetStats().Total, "test deliveries never count toward stats")

	// A real send still has the full window available.
	_, err := d.Send(models.ChannelPush, testAlert(), prefs)
	assert.NoError(t, err)
}

func TestTestChannel_Errors(t *testing.T) {
	push := &fakeNotifier{channel: models.ChannelPush, err: errors.New("boom")}
	d := NewDispatcher(zap.NewNop(), push)

	_, err := d.TestChannel(models.ChannelPush, testPrefs())
	assert.ErrorIs(t, err, errs.ErrChannelDeliveryFailed)

	_, err = d.TestChannel(models.ChannelSMS, testPrefs())
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestGetStatsAndFailureRate(t *testing.T) {
	push := &fakeNotifier{channel: models.ChannelPush}
	email := &fakeNotifier{channel: models.ChannelEmail, err: errors.New("smtp down")}
	d := NewDispatcher(zap.NewNop(), push, email)

	prefs := testPrefs()
	for i := 0; i < 3; i++ {
		d.Send(models.ChannelPush, testAlert(), prefs)
	}
	d.Send(models.ChannelEmail, testAlert(), prefs)

	stats := d.GetStats()
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 3, stats.Successful)
	assert.Equal(t, 1, stats.Failed)
	assert.InDelta(t, 0.75, stats.SuccessRate, 1e-9)
	assert.InDelta(t, 1.0, stats.Channels[models.ChannelPush].SuccessRate, 1e-9)
	assert.InDelta(t, 0.0, stats.Channels[models.ChannelEmail].SuccessRate, 1e-9)
	assert.InDelta(t, 0.25, d.FailureRate(), 1e-9)
}
