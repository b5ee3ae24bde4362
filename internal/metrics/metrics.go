// Package metrics exposes Prometheus instrumentation for the scoring
// pipeline and a point-in-time snapshot for the monitoring API.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TransactionsScored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kestrel_transactions_scored_total",
		Help: "Total number of transactions scored.",
	})

	AlertsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kestrel_alerts_created_total",
		Help: "Total number of alerts created, labelled by severity.",
	}, []string{"severity"})

	ModelFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kestrel_model_fallbacks_total",
		Help: "Total number of scoring calls downgraded to the rule-based path.",
	})

	WindowsComputed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kestrel_velocity_windows_computed_total",
		Help: "Total number of velocity windows computed from account history.",
	})

	ScoringDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "kestrel_scoring_duration_ms",
		Help:    "End-to-end transaction analysis latency in milliseconds.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
	})
)

// VelocitySnapshot is one aggregate counter series for the monitoring view.
type VelocitySnapshot struct {
	Label  string  `json:"label"`
	Value  float64 `json:"value"`
	Trend  []int64 `json:"trend"`
	Normal float64 `json:"normal"`
}

// Tracker accumulates rolling per-minute observations so the monitoring API
// can report real counter trends rather than synthetic values.
type Tracker struct {
	mu sync.Mutex

	scored       atomic.Int64
	amountTotal  uint64 // integer cents accumulated under mu
	failedLogins atomic.Int64

	uniqueIPs map[string]struct{}

	// Last six completed one-minute buckets of scored counts.
	trend       []int64
	bucketStart time.Time
	bucketCount int64
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		uniqueIPs:   make(map[string]struct{}),
		trend:       make([]int64, 0, 6),
		bucketStart: time.Now(),
	}
}

// Observe records one scored transaction.
func (t *Tracker) Observe(amount float64, ip string, failedAttempts int) {
	t.scored.Add(1)
	if failedAttempts > 0 {
		t.failedLogins.Add(int64(failedAttempts))
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.amountTotal += uint64(amount * 100) // cents, avoids float accumulation drift
	if ip != "" {
		t.uniqueIPs[ip] = struct{}{}
	}

	now := time.Now()
	if now.Sub(t.bucketStart) >= time.Minute {
		t.trend = append(t.trend, t.bucketCount)
		if len(t.trend) > 6 {
			t.trend = t.trend[len(t.trend)-6:]
		}
		t.bucketStart = now
		t.bucketCount = 0
	}
	t.bucketCount++
}

// Snapshot returns the current monitoring series.
func (t *Tracker) Snapshot() []VelocitySnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	scored := t.scored.Load()
	trend := make([]int64, len(t.trend))
	copy(trend, t.trend)

	avgAmount := 0.0
	if scored > 0 {
		avgAmount = float64(t.amountTotal) / 100 / float64(scored)
	}

	return []VelocitySnapshot{
		{Label: "Transactions/Hour", Value: float64(scored), Trend: trend, Normal: 10},
		{Label: "Avg Amount", Value: avgAmount, Trend: trend, Normal: 650},
		{Label: "Unique IPs", Value: float64(len(t.uniqueIPs)), Trend: trend, Normal: 3},
		{Label: "Failed Logins", Value: float64(t.failedLogins.Load()), Trend: trend, Normal: 2},
	}
}
