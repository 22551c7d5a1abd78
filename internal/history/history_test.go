package history

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cradleeye/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Alert{}, &models.DeliveryAttempt{}))
	return NewStore(db, zap.NewNop())
}

func storedAlert(id string, alertType models.AlertType, priority models.AlertPriority, age time.Duration) models.Alert {
	return models.Alert{
		ID:        id,
		Type:      alertType,
		Priority:  priority,
		Title:     "test alert",
		Message:   "something happened",
		Status:    models.AlertStatusDelivered,
		CreatedAt: time.Now().Add(-age),
	}
}

func TestStoreAlert_Upsert(t *testing.T) {
	s := newTestStore(t)

	a := storedAlert("a-1", models.AlertTypeMotion, models.PriorityMedium, 0)
	a.DeliveryAttempts = []models.DeliveryAttempt{
		{ID: "att-1", AlertID: "a-1", Channel: models.ChannelPush, Status: models.DeliverySuccess},
	}
	require.NoError(t, s.StoreAlert(a))

	// A later snapshot of the same alert replaces the stored row.
	a.Status = models.AlertStatusAcknowledged
	a.AcknowledgedBy = "parent"
	require.NoError(t, s.StoreAlert(a))

	alerts, err := s.Recent(10, "", "")
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertStatusAcknowledged, alerts[0].Status)
	assert.Equal(t, "parent", alerts[0].AcknowledgedBy)
	require.Len(t, alerts[0].DeliveryAttempts, 1)
	assert.Equal(t, models.ChannelPush, alerts[0].DeliveryAttempts[0].Channel)
}

func TestRecent_FiltersAndOrder(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.StoreAlert(storedAlert("a-1", models.AlertTypeMotion, models.PriorityMedium, 3*time.Hour)))
	require.NoError(t, s.StoreAlert(storedAlert("a-2", models.AlertTypeCryDetected, models.PriorityCritical, 2*time.Hour)))
	require.NoError(t, s.StoreAlert(storedAlert("a-3", models.AlertTypeMotion, models.PriorityMedium, time.Hour)))

	alerts, err := s.Recent(10, "", "")
	require.NoError(t, err)
	require.Len(t, alerts, 3)
	assert.Equal(t, "a-3", alerts[0].ID, "newest first")
	assert.Equal(t, "a-1", alerts[2].ID)

	motion, err := s.Recent(10, models.AlertTypeMotion, "")
	require.NoError(t, err)
	assert.Len(t, motion, 2)

	limited, err := s.Recent(1, "", "")
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	none, err := s.Recent(10, "", models.AlertStatusResolved)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSummarize(t *testing.T) {
	s := newTestStore(t)

	escalated := storedAlert("a-1", models.AlertTypeCryDetected, models.PriorityCritical, time.Hour)
	escalated.Escalated = true
	require.NoError(t, s.StoreAlert(escalated))

	resolved := storedAlert("a-2", models.AlertTypeMotion, models.PriorityMedium, time.Hour)
	resolved.Status = models.AlertStatusResolved
	require.NoError(t, s.StoreAlert(resolved))

	require.NoError(t, s.StoreAlert(storedAlert("a-3", models.AlertTypeMotion, models.PriorityMedium, time.Hour)))
	// Outside the summary horizon.
	require.NoError(t, s.StoreAlert(storedAlert("a-4", models.AlertTypeSystem, models.PriorityHigh, 48*time.Hour)))

	summary, err := s.Summarize(time.Now().Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(3), summary.Total)
	assert.Equal(t, int64(2), summary.ByType[models.AlertTypeMotion])
	assert.Equal(t, int64(1), summary.ByType[models.AlertTypeCryDetected])
	assert.Equal(t, int64(1), summary.ByPriority[models.PriorityCritical])
	assert.Equal(t, int64(2), summary.ByPriority[models.PriorityMedium])
	assert.Equal(t, int64(1), summary.Escalated)
	assert.Equal(t, int64(1), summary.Resolved)
}

func TestTrim(t *testing.T) {
	s := newTestStore(t)

	old := storedAlert("a-old", models.AlertTypeMotion, models.PriorityMedium, 40*24*time.Hour)
	old.DeliveryAttempts = []models.DeliveryAttempt{
		{ID: "att-old", AlertID: "a-old", Channel: models.ChannelPush, Status: models.DeliverySuccess},
	}
	require.NoError(t, s.StoreAlert(old))
	require.NoError(t, s.StoreAlert(storedAlert("a-new", models.AlertTypeMotion, models.PriorityMedium, time.Hour)))

	removed, err := s.Trim(30 * 24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	alerts, err := s.Recent(10, "", "")
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "a-new", alerts[0].ID)

	var attempts int64
	require.NoError(t, s.db.Model(&models.DeliveryAttempt{}).Count(&attempts).Error)
	assert.Zero(t, attempts, "orphaned delivery attempts are removed with their alert")
}

func TestTrim_NothingExpired(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.StoreAlert(storedAlert("a-1", models.AlertTypeMotion, models.PriorityMedium, time.Hour)))

	removed, err := s.Trim(30 * 24 * time.Hour)
	require.NoError(t, err)
	assert.Zero(t, removed)
}
