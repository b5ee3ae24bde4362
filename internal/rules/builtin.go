package rules

import "github.com/opensource-finance/kestrel/internal/domain"

// BuiltinRules returns the fixed fallback rule set. Point values are part of
// the scoring contract: a transaction with none of these factors scores the
// base 20, and the increments below stack additively before clamping.
//
// Amount bands are mutually exclusive by construction (each band excludes
// the ones above it), so a single transaction takes at most one amount
// increment. Tenant-specific rules loaded from the repository evaluate
// alongside these.
func BuiltinRules() []*domain.PointRule {
	return []*domain.PointRule{
		{
			ID:          "amount-over-10k",
			Name:        "Very high amount",
			Description: "Transaction amount exceeds 10,000",
			Expression:  "amount > 10000.0",
			Points:      30,
			Enabled:     true,
		},
		{
			ID:          "amount-over-5k",
			Name:        "High amount",
			Description: "Transaction amount in (5,000, 10,000]",
			Expression:  "amount > 5000.0 && amount <= 10000.0",
			Points:      20,
			Enabled:     true,
		},
		{
			ID:          "amount-over-1k",
			Name:        "Elevated amount",
			Description: "Transaction amount in (1,000, 5,000]",
			Expression:  "amount > 1000.0 && amount <= 5000.0",
			Points:      10,
			Enabled:     true,
		},
		{
			ID:          "international",
			Name:        "International transaction",
			Expression:  "is_international",
			Points:      25,
			Enabled:     true,
		},
		{
			ID:          "new-device",
			Name:        "New device",
			Expression:  "is_new_device",
			Points:      15,
			Enabled:     true,
		},
		{
			ID:          "new-location",
			Name:        "Unfamiliar location",
			Expression:  "is_new_location",
			Points:      15,
			Enabled:     true,
		},
		{
			ID:          "night-hours",
			Name:        "Night-hours transaction",
			Description: "Hour of day in [0, 5]",
			Expression:  "hour >= 0 && hour <= 5",
			Points:      15,
			Enabled:     true,
		},
		{
			ID:          "failed-attempts",
			Name:        "Repeated failed authentication",
			Expression:  "failed_attempts > 2",
			Points:      20,
			Enabled:     true,
		},
		{
			ID:          "hourly-velocity",
			Name:        "High 1-hour velocity",
			Expression:  "tx_count_1h > 5",
			Points:      15,
			Enabled:     true,
		},
	}
}
