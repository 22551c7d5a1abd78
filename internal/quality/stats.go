package quality

import (
	"math"
	"sync"
	"time"

	"github.com/cradleeye/internal/errs"
	"github.com/cradleeye/internal/models"
)

// historySize bounds the per-client sample buffer; oldest samples are
// evicted first.
const historySize = 10

// recencyBias is the per-step weight growth of the weighted average, giving
// newer samples roughly 20% more weight than their predecessor.
const recencyBias = 1.2

// Aggregator smooths noisy per-client network telemetry into a stable
// estimate. Samples are kept in a bounded FIFO buffer per client.
type Aggregator struct {
	mu      sync.RWMutex
	history map[string][]models.NetworkSample
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		history: make(map[string][]models.NetworkSample),
	}
}

// Update ingests one telemetry sample for a client. A zero timestamp is
// stamped with the current time.
func (a *Aggregator) Update(clientID string, sample models.NetworkSample) {
	if sample.Timestamp.IsZero() {
		sample.Timestamp = time.Now()
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	buf := append(a.history[clientID], sample)
	if len(buf) > historySize {
		buf = buf[len(buf)-historySize:]
	}
	a.history[clientID] = buf
}

// History returns a copy of the stored samples for a client, oldest first.
func (a *Aggregator) History(clientID string) []models.NetworkSample {
	a.mu.RLock()
	defer a.mu.RUnlock()

	buf := a.history[clientID]
	out := make([]models.NetworkSample, len(buf))
	copy(out, buf)
	return out
}

// Forget drops all stored samples for a client.
func (a *Aggregator) Forget(clientID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.history, clientID)
}

// Average returns the exponentially-weighted estimate over the stored
// history. Fewer than 2 samples is insufficient data and the caller must not
// request a quality decision.
func (a *Aggregator) Average(clientID string) (*models.AggregateStats, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	buf := a.history[clientID]
	if len(buf) < 2 {
		return nil, errs.ErrInsufficientData
	}

	var weightSum, bw, lat, loss, jit float64
	for i, s := range buf {
		w := math.Pow(recencyBias, float64(i))
		weightSum += w
		bw += s.Bandwidth * w
		lat += s.Latency * w
		loss += s.PacketLoss * w
		jit += s.Jitter * w
	}

	stats := &models.AggregateStats{
		Bandwidth:   bw / weightSum,
		Latency:     lat / weightSum,
		PacketLoss:  loss / weightSum,
		Jitter:      jit / weightSum,
		SampleCount: len(buf),
	}
	stats.BandwidthVariation = variation(buf, func(s models.NetworkSample) float64 { return s.Bandwidth })
	stats.LatencyVariation = variation(buf, func(s models.NetworkSample) float64 { return s.Latency })
	stats.Confidence = confidence((stats.BandwidthVariation + stats.LatencyVariation) / 2)
	return stats, nil
}

// variation is the coefficient of variation (stddev/mean) of one metric
// across the buffer, unweighted.
func variation(buf []models.NetworkSample, metric func(models.NetworkSample) float64) float64 {
	var sum float64
	for _, s := range buf {
		sum += metric(s)
	}
	mean := sum / float64(len(buf))
	if mean == 0 {
		return 0
	}

	var sq float64
	for _, s := range buf {
		d := metric(s) - mean
		sq += d * d
	}
	return math.Sqrt(sq/float64(len(buf))) / mean
}

func confidence(meanVariation float64) models.Confidence {
	switch {
	case meanVariation < 0.2:
		return models.ConfidenceHigh
	case meanVariation < 0.5:
		return models.ConfidenceMedium
	default:
		return models.ConfidenceLow
	}
}
