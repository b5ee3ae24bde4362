package alerts

import (
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// SeedDemo loads the fixed demonstration alert set into an empty store.
// Seeding is an explicit initialization step invoked from service wiring;
// List never seeds as a side effect. Returns the number of alerts added
// (zero when the store already has alerts).
func (m *Manager) SeedDemo() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.alerts) > 0 {
		return 0
	}

	now := time.Now().UTC()
	demo := []*domain.Alert{
		{
			ID:          "ALT-001",
			Severity:    domain.SeverityCritical,
			Title:       "Unusual Login Pattern Detected",
			Description: "Multiple failed login attempts from unrecognized IP address",
			CreatedAt:   now.Add(-2 * time.Minute),
			RiskScore:   95,
			Status:      domain.StatusOpen,
			EntityType:  domain.EntityUser,
			EntityID:    "USR-4521",
		},
		{
			ID:          "ALT-002",
			Severity:    domain.SeverityHigh,
			Title:       "High-Value Transaction Velocity",
			Description: "5 transactions totaling 12,450 within 3 minutes",
			CreatedAt:   now.Add(-8 * time.Minute),
			RiskScore:   82,
			Status:      domain.StatusInvestigating,
			EntityType:  domain.EntityAccount,
			EntityID:    "ACC-8834",
		},
		{
			ID:          "ALT-003",
			Severity:    domain.SeverityMedium,
			Title:       "New Device Authentication",
			Description: "First login from Windows device in Mumbai",
			CreatedAt:   now.Add(-23 * time.Minute),
			RiskScore:   56,
			Status:      domain.StatusOpen,
			EntityType:  domain.EntityDevice,
			EntityID:    "DEV-1192",
		},
		{
			ID:          "ALT-004",
			Severity:    domain.SeverityHigh,
			Title:       "Cross-Border Transfer Pattern",
			Description: "Wire transfer to high-risk jurisdiction flagged",
			CreatedAt:   now.Add(-45 * time.Minute),
			RiskScore:   78,
			Status:      domain.StatusOpen,
			EntityType:  domain.EntityTransaction,
			EntityID:    "TXN-99281",
		},
		{
			ID:          "ALT-005",
			Severity:    domain.SeverityLow,
			Title:       "Password Reset Request",
			Description: "Standard password reset from known device",
			CreatedAt:   now.Add(-time.Hour),
			RiskScore:   22,
			Status:      domain.StatusResolved,
			EntityType:  domain.EntityUser,
			EntityID:    "USR-4521",
		},
	}

	// Demo entries are ordered newest first already.
	m.alerts = append(m.alerts, demo...)
	return len(demo)
}
