package monitor

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cradleeye/internal/alert"
	"github.com/cradleeye/internal/config"
	"github.com/cradleeye/internal/models"
)

// AlertSink is the slice of the lifecycle manager the watcher feeds.
type AlertSink interface {
	CreateAlert(input alert.CreateAlertInput) (*models.Alert, error)
}

// FailureRater exposes the dispatcher's global delivery failure rate.
type FailureRater interface {
	FailureRate() float64
}

// Watcher periodically checks appliance health and raises system and
// storage alerts through the normal alert pipeline; type cooldowns keep it
// from spamming on a persistent condition.
type Watcher struct {
	sink     AlertSink
	rater    FailureRater
	cfg      config.MonitorConfig
	logger   *zap.Logger
	stopOnce sync.Once
	stop     chan struct{}
}

func NewWatcher(cfg config.MonitorConfig, sink AlertSink, rater FailureRater, logger *zap.Logger) *Watcher {
	return &Watcher{
		sink:   sink,
		rater:  rater,
		cfg:    cfg,
		logger: logger,
		stop:   make(chan struct{}),
	}
}

func (w *Watcher) Start() {
	interval := time.Duration(w.cfg.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				w.check()
			case <-w.stop:
				return
			}
		}
	}()
}

func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
}

func (w *Watcher) check() {
	if rate := w.rater.FailureRate(); rate >= w.cfg.FailureRateWarning && w.cfg.FailureRateWarning > 0 {
		w.raise(models.AlertTypeSystem, "Notification delivery degraded",
			fmt.Sprintf("%.0f%% of notification deliveries are failing", rate*100),
			map[string]any{"failure_rate": rate})
	}

	if w.cfg.StoragePath != "" && w.cfg.StorageWarnBytes > 0 {
		used, err := dirSize(w.cfg.StoragePath)
		if err != nil {
			w.logger.Warn("storage check failed", zap.Error(err))
		} else if used >= w.cfg.StorageWarnBytes {
			w.raise(models.AlertTypeStorage, "Recording storage nearly full",
				fmt.Sprintf("storage usage is %d bytes, above the %d byte limit", used, w.cfg.StorageWarnBytes),
				map[string]any{"used_bytes": used, "limit_bytes": w.cfg.StorageWarnBytes})
		}
	}
}

func (w *Watcher) raise(t models.AlertType, title, message string, source map[string]any) {
	created, err := w.sink.CreateAlert(alert.CreateAlertInput{
		Type:       t,
		Title:      title,
		Message:    message,
		SourceData: source,
	})
	if err != nil {
		w.logger.Error("health alert failed", zap.String("type", string(t)), zap.Error(err))
		return
	}
	// A nil alert means suppressed, typically by the type cooldown.
	if created != nil {
		w.logger.Warn("health alert raised",
			zap.String("type", string(t)), zap.String("alert_id", created.ID))
	}
}

func dirSize(path string) (int64, error) {
	var total int64
	err := filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	return total, err
}
