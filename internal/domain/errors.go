package domain

import "errors"

// Sentinel errors for the scoring and alerting pipeline. Wrap with
// fmt.Errorf("...: %w", Err...) and test with errors.Is.
var (
	// ErrInvalidTransaction rejects a transaction before scoring. Only a
	// missing or non-positive amount is a hard error; all other fields
	// degrade to defaults.
	ErrInvalidTransaction = errors.New("invalid transaction")

	// ErrModelUnavailable is non-fatal: the scorer downgrades to the
	// rule-based path. Logged, never surfaced to callers.
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrAlertNotFound is returned to callers on an unknown alert id.
	ErrAlertNotFound = errors.New("alert not found")

	// ErrExplainability is swallowed: the assessment proceeds without
	// attributions.
	ErrExplainability = errors.New("explainability failed")
)
