package domain

// PointRule is a single additive scoring rule for the rule-based fallback
// path. Expression is a CEL boolean over the transaction and its velocity
// window; when it evaluates true, Points are added to the base score.
type PointRule struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// CEL expression yielding a boolean.
	Expression string `json:"expression"`

	// Points added when the expression matches. Negative points are
	// allowed for mitigating rules.
	Points int `json:"points"`

	// Whether the rule is active.
	Enabled bool `json:"enabled"`
}

// RuleMatch records a rule that fired during a rule-based scoring pass.
type RuleMatch struct {
	RuleID string `json:"ruleId"`
	Name   string `json:"name"`
	Points int    `json:"points"`
}
