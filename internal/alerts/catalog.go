package alerts

import (
	"fmt"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// alertTitles is the severity-keyed catalog of alert titles, indexed by the
// entity type the alert points at so that selection stays deterministic.
var alertTitles = map[string]map[string]string{
	domain.SeverityCritical: {
		domain.EntityTransaction: "Suspicious High-Value Transaction",
		domain.EntityAccount:     "Unusual Account Activity Detected",
		domain.EntityUser:        "Potential Account Takeover",
		domain.EntityDevice:      "Potential Account Takeover",
		domain.EntityIP:          "Potential Account Takeover",
	},
	domain.SeverityHigh: {
		domain.EntityAccount:     "High-Value Transaction Velocity",
		domain.EntityTransaction: "Cross-Border Transfer Pattern",
		domain.EntityIP:          "Multiple Failed Authentication Attempts",
		domain.EntityUser:        "Cross-Border Transfer Pattern",
		domain.EntityDevice:      "Multiple Failed Authentication Attempts",
	},
	domain.SeverityMedium: {
		domain.EntityDevice:      "New Device Authentication",
		domain.EntityTransaction: "Unusual Transaction Time",
		domain.EntityUser:        "Geographic Anomaly Detected",
		domain.EntityAccount:     "Unusual Transaction Time",
		domain.EntityIP:          "Geographic Anomaly Detected",
	},
	domain.SeverityLow: {
		domain.EntityUser:        "Password Reset Request",
		domain.EntityDevice:      "Profile Update from New Location",
		domain.EntityAccount:     "Minor Velocity Increase",
		domain.EntityTransaction: "Minor Velocity Increase",
		domain.EntityIP:          "Minor Velocity Increase",
	},
}

// titleFor returns the catalog title for a severity and entity type.
func titleFor(severity, entityType string) string {
	if byEntity, ok := alertTitles[severity]; ok {
		if title, ok := byEntity[entityType]; ok {
			return title
		}
	}
	return "Anomaly Detected"
}

// descriptionFor formats the severity-keyed alert description.
func descriptionFor(severity string, amount float64, riskScore int) string {
	switch severity {
	case domain.SeverityCritical:
		return fmt.Sprintf("Transaction of %.2f flagged with %d%% risk score", amount, riskScore)
	case domain.SeverityHigh:
		return fmt.Sprintf("Multiple risk factors detected - %d%% fraud probability", riskScore)
	case domain.SeverityMedium:
		return fmt.Sprintf("Unusual pattern detected, monitoring required - Risk: %d%%", riskScore)
	default:
		return fmt.Sprintf("Minor anomaly flagged for review - Risk: %d%%", riskScore)
	}
}
