package history

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cradleeye/internal/models"
)

// Store is the durable alert history. It receives lifecycle snapshots
// asynchronously; persistence is never on the critical path of alert
// decisions, so write failures are logged and dropped.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewStore(db *gorm.DB, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// StoreAlert upserts one alert snapshot with its delivery attempts.
func (s *Store) StoreAlert(a models.Alert) error {
	err := s.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&a).Error
	if err != nil {
		return fmt.Errorf("failed to store alert %s: %w", a.ID, err)
	}
	return nil
}

func (s *Store) storeAsync(a models.Alert) {
	go func() {
		if err := s.StoreAlert(a); err != nil {
			s.logger.Warn("alert history write failed", zap.Error(err))
		}
	}()
}

// Lifecycle listener hooks: every event persists the latest snapshot,
// fire-and-forget.

func (s *Store) OnAlertCreated(a models.Alert)      { s.storeAsync(a) }
func (s *Store) OnAlertAcknowledged(a models.Alert) { s.storeAsync(a) }
func (s *Store) OnAlertResolved(a models.Alert)     { s.storeAsync(a) }
func (s *Store) OnAlertEscalated(a models.Alert)    { s.storeAsync(a) }

// Recent returns the newest stored alerts, optionally filtered by type
// and/or status.
func (s *Store) Recent(limit int, alertType models.AlertType, status models.AlertStatus) ([]models.Alert, error) {
	if limit <= 0 {
		limit = 50
	}
	query := s.db.Preload("DeliveryAttempts").Order("created_at desc").Limit(limit)
	if alertType != "" {
		query = query.Where("type = ?", alertType)
	}
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var alerts []models.Alert
	if err := query.Find(&alerts).Error; err != nil {
		return nil, fmt.Errorf("failed to query alert history: %w", err)
	}
	return alerts, nil
}

// Summary aggregates stored alerts since a point in time.
type Summary struct {
	Since      time.Time                      `json:"since"`
	Total      int64                          `json:"total"`
	ByType     map[models.AlertType]int64     `json:"by_type"`
	ByPriority map[models.AlertPriority]int64 `json:"by_priority"`
	Escalated  int64                          `json:"escalated"`
	Resolved   int64                          `json:"resolved"`
}

func (s *Store) Summarize(since time.Time) (*Summary, error) {
	summary := &Summary{
		Since:      since,
		ByType:     make(map[models.AlertType]int64),
		ByPriority: make(map[models.AlertPriority]int64),
	}

	base := s.db.Model(&models.Alert{}).Where("created_at >= ?", since)
	if err := base.Count(&summary.Total).Error; err != nil {
		return nil, fmt.Errorf("failed to summarize alerts: %w", err)
	}

	type group struct {
		Key   string
		Count int64
	}
	var byType []group
	if err := s.db.Model(&models.Alert{}).Where("created_at >= ?", since).
		Select("type as key, count(*) as count").Group("type").Scan(&byType).Error; err != nil {
		return nil, fmt.Errorf("failed to group alerts by type: %w", err)
	}
	for _, g := range byType {
		summary.ByType[models.AlertType(g.Key)] = g.Count
	}

	var byPriority []group
	if err := s.db.Model(&models.Alert{}).Where("created_at >= ?", since).
		Select("priority as key, count(*) as count").Group("priority").Scan(&byPriority).Error; err != nil {
		return nil, fmt.Errorf("failed to group alerts by priority: %w", err)
	}
	for _, g := range byPriority {
		summary.ByPriority[models.AlertPriority(g.Key)] = g.Count
	}

	if err := s.db.Model(&models.Alert{}).Where("created_at >= ? AND escalated = ?", since, true).
		Count(&summary.Escalated).Error; err != nil {
		return nil, fmt.Errorf("failed to count escalated alerts: %w", err)
	}
	if err := s.db.Model(&models.Alert{}).Where("created_at >= ? AND status = ?", since, models.AlertStatusResolved).
		Count(&summary.Resolved).Error; err != nil {
		return nil, fmt.Errorf("failed to count resolved alerts: %w", err)
	}
	return summary, nil
}

// Trim removes alerts (and their delivery attempts) older than the retention
// horizon. Retention is a history concern; the lifecycle manager never
// deletes alerts itself.
func (s *Store) Trim(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)

	var ids []string
	if err := s.db.Model(&models.Alert{}).Where("created_at < ?", cutoff).
		Pluck("id", &ids).Error; err != nil {
		return 0, fmt.Errorf("failed to find expired alerts: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	if err := s.db.Where("alert_id IN ?", ids).Delete(&models.DeliveryAttempt{}).Error; err != nil {
		return 0, fmt.Errorf("failed to trim delivery attempts: %w", err)
	}
	result := s.db.Where("id IN ?", ids).Delete(&models.Alert{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to trim alerts: %w", result.Error)
	}
	return result.RowsAffected, nil
}
