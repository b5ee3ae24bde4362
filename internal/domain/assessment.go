package domain

// Severity tiers bucket a risk score into coarse bands.
const (
	SeverityLow      = "LOW"
	SeverityMedium   = "MEDIUM"
	SeverityHigh     = "HIGH"
	SeverityCritical = "CRITICAL"
)

// SeverityForScore maps a 0-100 risk score to a severity tier.
// The breakpoints are shared by the model and rule-based paths.
func SeverityForScore(score int) string {
	switch {
	case score >= 85:
		return SeverityCritical
	case score >= 70:
		return SeverityHigh
	case score >= 50:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// ValidSeverity reports whether s is one of the defined severity tiers.
func ValidSeverity(s string) bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// FeatureContribution is a single signed attribution explaining a model score.
type FeatureContribution struct {
	Feature   string  `json:"feature"`
	Impact    float64 `json:"impact"`
	Direction string  `json:"direction"` // "increases" or "decreases"
}

// RiskAssessment is the result of scoring one transaction. Created per call;
// not persisted except embedded in an Alert.
type RiskAssessment struct {
	RiskScore   int     `json:"riskScore"` // clamped to [0,100]
	Probability float64 `json:"probability,omitempty"`
	IsFraud     bool    `json:"isFraud"`
	Severity    string  `json:"severity"`
	Confidence  int     `json:"confidence"`
	Model       string  `json:"model"`

	// Top contributing features, magnitude-ranked. Only populated in model
	// mode for assessments at or above the alert threshold.
	TopFactors []FeatureContribution `json:"topFactors,omitempty"`
}

// Recommendation values returned with an analysis result.
const (
	RecommendBlock   = "BLOCK"
	RecommendReview  = "REVIEW"
	RecommendApprove = "APPROVE"
)

// RecommendationForScore maps a risk score to an action recommendation.
func RecommendationForScore(score int) string {
	switch {
	case score >= 85:
		return RecommendBlock
	case score >= 50:
		return RecommendReview
	default:
		return RecommendApprove
	}
}

// AnalysisResult is the caller-facing outcome of analyzing one transaction.
type AnalysisResult struct {
	TransactionID  string                `json:"transactionId"`
	Amount         float64               `json:"amount"`
	RiskScore      int                   `json:"riskScore"`
	Severity       string                `json:"severity"`
	IsFraud        bool                  `json:"isFraud"`
	Confidence     int                   `json:"confidence"`
	ModelUsed      string                `json:"modelUsed"`
	Recommendation string                `json:"recommendation"`
	AlertID        string                `json:"alertId,omitempty"`
	TopFactors     []FeatureContribution `json:"topFactors,omitempty"`
}
