// Package alerts owns the in-memory alert store and the transaction
// analysis pipeline that feeds it.
package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/metrics"
	"github.com/opensource-finance/kestrel/internal/scoring"
	"github.com/opensource-finance/kestrel/internal/velocity"
)

// AlertThreshold is the risk score at and above which an alert is raised.
const AlertThreshold = 50

// blockIPThreshold is the risk score above which an IP-typed alert entity is
// considered blockable.
const blockIPThreshold = 70

// counterStart makes the first generated alert id ALT-101, leaving the
// 1-100 range for the fixed demonstration set.
const counterStart = 100

// Manager owns the alert store. It is the only shared mutable state in the
// engine: all mutations happen under one write lock, and reads hand out
// copied snapshots. Safe for concurrent use.
type Manager struct {
	mu      sync.RWMutex
	alerts  []*domain.Alert // newest first, insertion-ordered
	counter int

	scorer   *scoring.Scorer
	velocity *velocity.Service
	repo     domain.Repository // optional audit copy
	bus      domain.EventBus   // optional alert publication
	tracker  *metrics.Tracker

	startedAt time.Time
}

// NewManager creates an alert manager. repo and bus may be nil.
func NewManager(scorer *scoring.Scorer, velocitySvc *velocity.Service, repo domain.Repository, bus domain.EventBus) *Manager {
	return &Manager{
		counter:   counterStart,
		scorer:    scorer,
		velocity:  velocitySvc,
		repo:      repo,
		bus:       bus,
		tracker:   metrics.NewTracker(),
		startedAt: time.Now().UTC(),
	}
}

// Analyze runs the full scoring pipeline for one transaction: velocity
// enrichment, feature extraction and risk scoring, then alert synthesis when
// the risk score reaches the alert threshold. Callers receive either a
// complete result or a typed error, never a partial one.
func (m *Manager) Analyze(ctx context.Context, tx *domain.Transaction) (*domain.AnalysisResult, error) {
	start := time.Now()

	window := domain.DefaultVelocityWindow()
	if m.velocity != nil {
		w, err := m.velocity.WindowFor(ctx, tx)
		if err != nil {
			// History lookup failures degrade to defaults; velocity is
			// an enrichment, not a gate.
			slog.Warn("velocity window unavailable",
				"tx_id", tx.ID,
				"account_id", tx.AccountID,
				"error", err,
			)
		} else {
			window = w
		}
	}

	assessment, err := m.scorer.Score(ctx, tx, window)
	if err != nil {
		return nil, err
	}

	if m.velocity != nil {
		if err := m.velocity.Record(ctx, tx); err != nil {
			slog.Warn("failed to record transaction history",
				"tx_id", tx.ID,
				"error", err,
			)
		}
	}

	m.tracker.Observe(tx.Amount, tx.IPAddress, tx.FailedAttempts)

	result := &domain.AnalysisResult{
		TransactionID:  tx.ID,
		Amount:         tx.Amount,
		RiskScore:      assessment.RiskScore,
		Severity:       assessment.Severity,
		IsFraud:        assessment.IsFraud,
		Confidence:     assessment.Confidence,
		ModelUsed:      assessment.Model,
		Recommendation: domain.RecommendationForScore(assessment.RiskScore),
		TopFactors:     assessment.TopFactors,
	}

	if assessment.RiskScore >= AlertThreshold {
		alert := m.createAlert(ctx, tx, assessment, window)
		result.AlertID = alert.ID
	}

	metrics.ScoringDuration.Observe(float64(time.Since(start).Milliseconds()))

	return result, nil
}

// createAlert synthesizes an alert, inserts it at the head of the store and
// fans it out to the repository and event bus.
func (m *Manager) createAlert(ctx context.Context, tx *domain.Transaction, assessment *domain.RiskAssessment, w domain.VelocityWindow) *domain.Alert {
	entityType, entityID := pickEntity(tx, w)

	m.mu.Lock()
	m.counter++
	alert := &domain.Alert{
		ID:          fmt.Sprintf("ALT-%03d", m.counter),
		Severity:    assessment.Severity,
		Title:       titleFor(assessment.Severity, entityType),
		Description: descriptionFor(assessment.Severity, tx.Amount, assessment.RiskScore),
		CreatedAt:   time.Now().UTC(),
		RiskScore:   assessment.RiskScore,
		Status:      domain.StatusOpen,
		EntityType:  entityType,
		EntityID:    entityID,
		Transaction: tx,
		Assessment:  assessment,
	}
	// Insert at the head under the same lock that owns the counter, so
	// newest-first reflects true insertion order even under concurrent
	// analysis.
	m.alerts = append([]*domain.Alert{alert}, m.alerts...)
	m.mu.Unlock()

	metrics.AlertsCreated.WithLabelValues(alert.Severity).Inc()

	if m.repo != nil {
		if err := m.repo.SaveAlert(ctx, tx.TenantID, alert); err != nil {
			slog.Warn("failed to persist alert", "alert_id", alert.ID, "error", err)
		}
	}

	if m.bus != nil && tx.TenantID != "" {
		if payload, err := json.Marshal(alert); err == nil {
			if err := m.bus.Publish(ctx, tx.TenantID, domain.TopicAlert, payload); err != nil {
				slog.Warn("failed to publish alert", "alert_id", alert.ID, "error", err)
			}
		}
	}

	slog.Info("alert created",
		"alert_id", alert.ID,
		"severity", alert.Severity,
		"risk_score", alert.RiskScore,
		"entity_type", alert.EntityType,
		"entity_id", alert.EntityID,
	)

	return alert
}

// pickEntity selects the alert's entity from the transaction's
// highest-signal risk factor, with deterministic fallbacks when an
// identifier is absent.
func pickEntity(tx *domain.Transaction, w domain.VelocityWindow) (string, string) {
	switch {
	case tx.FailedAttempts > 2 && tx.IPAddress != "":
		return domain.EntityIP, tx.IPAddress
	case tx.IsNewDevice && tx.DeviceID != "":
		return domain.EntityDevice, tx.DeviceID
	case w.TxCount1h > 5 && tx.AccountID != "":
		return domain.EntityAccount, tx.AccountID
	case tx.Amount > 10000 && tx.ID != "":
		return domain.EntityTransaction, tx.ID
	case tx.UserID != "":
		return domain.EntityUser, tx.UserID
	case tx.AccountID != "":
		return domain.EntityAccount, tx.AccountID
	case tx.ID != "":
		return domain.EntityTransaction, tx.ID
	default:
		return domain.EntityUser, "unknown"
	}
}

// List returns alerts newest first, optionally filtered by exact severity
// match and truncated to limit. Returned alerts are snapshot copies of the
// store's pointers; the slice is owned by the caller.
func (m *Manager) List(severity string, limit int) []*domain.Alert {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}

	out := make([]*domain.Alert, 0, limit)
	for _, a := range m.alerts {
		if severity != "" && severity != "ALL" && a.Severity != severity {
			continue
		}
		out = append(out, a)
		if len(out) == limit {
			break
		}
	}
	return out
}

// Count returns the total number of stored alerts.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.alerts)
}

// UpdateStatus transitions an alert to a new status. Returns
// domain.ErrAlertNotFound for an unknown id without mutating the store.
func (m *Manager) UpdateStatus(ctx context.Context, alertID, status string) (*domain.Alert, error) {
	if !domain.ValidStatus(status) {
		return nil, fmt.Errorf("invalid alert status: %q", status)
	}

	m.mu.Lock()
	var found *domain.Alert
	for _, a := range m.alerts {
		if a.ID == alertID {
			a.Status = status
			found = a
			break
		}
	}
	m.mu.Unlock()

	if found == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrAlertNotFound, alertID)
	}

	if m.repo != nil {
		tenantID := ""
		if found.Transaction != nil {
			tenantID = found.Transaction.TenantID
		}
		if err := m.repo.UpdateAlertStatus(ctx, tenantID, alertID, status); err != nil {
			slog.Warn("failed to persist alert status", "alert_id", alertID, "error", err)
		}
	}

	return found, nil
}

// BulkApproveLowRisk resolves every LOW-severity alert still OPEN and
// returns the number transitioned. Alerts of other severities or statuses
// are untouched.
func (m *Manager) BulkApproveLowRisk() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	approved := 0
	for _, a := range m.alerts {
		if a.Severity == domain.SeverityLow && a.Status == domain.StatusOpen {
			a.Status = domain.StatusResolved
			approved++
		}
	}
	return approved
}

// BlockSuspiciousIPs returns the deduplicated IP entity ids of all IP-typed
// alerts with risk score above the block threshold, preserving first-seen
// order.
func (m *Manager) BlockSuspiciousIPs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]struct{})
	blocked := make([]string, 0)
	for _, a := range m.alerts {
		if a.EntityType != domain.EntityIP || a.RiskScore <= blockIPThreshold {
			continue
		}
		if _, dup := seen[a.EntityID]; dup {
			continue
		}
		seen[a.EntityID] = struct{}{}
		blocked = append(blocked, a.EntityID)
	}
	return blocked
}

// VelocityMetrics returns the aggregate monitoring snapshot. Not tied to any
// single transaction.
func (m *Manager) VelocityMetrics() []metrics.VelocitySnapshot {
	return m.tracker.Snapshot()
}

// EngineStats summarizes the scoring engine's configuration and activity.
type EngineStats struct {
	ModelVersion string  `json:"modelVersion"`
	Mode         string  `json:"mode"`
	Threshold    float64 `json:"threshold"`
	FeatureCount int     `json:"featureCount"`
	AlertsTotal  int     `json:"alertsTotal"`
	AlertsToday  int     `json:"alertsToday"`
	AlertsOpen   int     `json:"alertsOpen"`
	UptimeSecs   int64   `json:"uptimeSecs"`
}

// Stats returns the current engine summary.
func (m *Manager) Stats() EngineStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	dayAgo := time.Now().UTC().Add(-24 * time.Hour)
	today, open := 0, 0
	for _, a := range m.alerts {
		if a.CreatedAt.After(dayAgo) {
			today++
		}
		if a.Status == domain.StatusOpen {
			open++
		}
	}

	return EngineStats{
		ModelVersion: m.scorer.ModelVersion(),
		Mode:         string(m.scorer.Mode()),
		Threshold:    m.scorer.Threshold(),
		FeatureCount: m.scorer.FeatureCount(),
		AlertsTotal:  len(m.alerts),
		AlertsToday:  today,
		AlertsOpen:   open,
		UptimeSecs:   int64(time.Since(m.startedAt).Seconds()),
	}
}
