package domain

import (
	"time"
)

// Alert statuses. An alert moves OPEN → INVESTIGATING → RESOLVED, or straight
// from OPEN to a terminal state. Alerts are never deleted.
const (
	StatusOpen          = "OPEN"
	StatusInvestigating = "INVESTIGATING"
	StatusResolved      = "RESOLVED"
	StatusDismissed     = "DISMISSED"
)

// ValidStatus reports whether s is one of the defined alert statuses.
func ValidStatus(s string) bool {
	switch s {
	case StatusOpen, StatusInvestigating, StatusResolved, StatusDismissed:
		return true
	}
	return false
}

// Entity types an alert can point at.
const (
	EntityUser        = "user"
	EntityDevice      = "device"
	EntityIP          = "ip"
	EntityAccount     = "account"
	EntityTransaction = "transaction"
)

// Alert is a fraud alert raised for a high-risk transaction. Mutated only via
// the alert manager's status-update operation.
type Alert struct {
	ID          string    `json:"id"`
	Severity    string    `json:"severity"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
	RiskScore   int       `json:"riskScore"`
	Status      string    `json:"status"`

	// Exactly one entity per alert.
	EntityType string `json:"entityType"`
	EntityID   string `json:"entityId"`

	Transaction *Transaction    `json:"transaction,omitempty"`
	Assessment  *RiskAssessment `json:"assessment,omitempty"`
}
