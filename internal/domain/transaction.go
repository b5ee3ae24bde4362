package domain

import (
	"time"
)

// Transaction represents a single financial transaction submitted for risk
// scoring. Immutable once scored; the engine never mutates it.
type Transaction struct {
	// Core identifiers
	ID        string `json:"id"`
	TenantID  string `json:"tenantId"`
	UserID    string `json:"userId"`
	AccountID string `json:"accountId"`

	// Financial details
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`

	// Channel (e.g., "purchase", "transfer", "withdrawal", "online")
	Type string `json:"type"`

	// Merchant
	MerchantCategory string `json:"merchantCategory"`

	// Temporal
	Timestamp time.Time `json:"timestamp"`
	Hour      int       `json:"hour"`
	DayOfWeek int       `json:"dayOfWeek"`
	IsWeekend bool      `json:"isWeekend"`

	// Device / network
	DeviceID    string `json:"deviceId"`
	IPAddress   string `json:"ipAddress"`
	IsNewDevice bool   `json:"isNewDevice"`

	// Geography
	Latitude         float64 `json:"latitude"`
	Longitude        float64 `json:"longitude"`
	DistanceFromHome float64 `json:"distanceFromHome"`
	IsNewLocation    bool    `json:"isNewLocation"`
	IsInternational  bool    `json:"isInternational"`

	// Authentication context
	FailedAttempts int `json:"failedAttempts"`

	CreatedAt time.Time `json:"createdAt"`
}

// TransactionRequest is the API request payload for transaction analysis.
// Optional fields left unset degrade to documented defaults; only a missing
// or non-positive amount is rejected by the scorer.
type TransactionRequest struct {
	ID               string  `json:"id,omitempty"`
	UserID           string  `json:"userId"`
	AccountID        string  `json:"accountId"`
	Amount           float64 `json:"amount"`
	Currency         string  `json:"currency,omitempty"`
	Type             string  `json:"type,omitempty"`
	MerchantCategory string  `json:"merchantCategory,omitempty"`
	Timestamp        string  `json:"timestamp,omitempty"` // RFC 3339; defaults to now
	Hour             *int    `json:"hour,omitempty"`      // defaults to the timestamp's hour
	DeviceID         string  `json:"deviceId,omitempty"`
	IPAddress        string  `json:"ipAddress,omitempty"`
	Latitude         float64 `json:"latitude,omitempty"`
	Longitude        float64 `json:"longitude,omitempty"`
	DistanceFromHome float64 `json:"distanceFromHome,omitempty"`
	IsNewDevice      bool    `json:"isNewDevice,omitempty"`
	IsNewLocation    bool    `json:"isNewLocation,omitempty"`
	IsInternational  bool    `json:"isInternational,omitempty"`
	FailedAttempts   int     `json:"failedAttempts,omitempty"`
}

// ToTransaction converts a request to a Transaction domain object, deriving
// temporal fields from the timestamp when they were not supplied.
func (r *TransactionRequest) ToTransaction(tenantID string) *Transaction {
	now := time.Now().UTC()

	ts := now
	if r.Timestamp != "" {
		if parsed, err := time.Parse(time.RFC3339, r.Timestamp); err == nil {
			ts = parsed.UTC()
		}
	}

	hour := ts.Hour()
	if r.Hour != nil {
		hour = *r.Hour
	}

	dow := int(ts.Weekday())

	return &Transaction{
		ID:               r.ID,
		TenantID:         tenantID,
		UserID:           r.UserID,
		AccountID:        r.AccountID,
		Amount:           r.Amount,
		Currency:         r.Currency,
		Type:             r.Type,
		MerchantCategory: r.MerchantCategory,
		Timestamp:        ts,
		Hour:             hour,
		DayOfWeek:        dow,
		IsWeekend:        dow == 0 || dow == 6,
		DeviceID:         r.DeviceID,
		IPAddress:        r.IPAddress,
		Latitude:         r.Latitude,
		Longitude:        r.Longitude,
		DistanceFromHome: r.DistanceFromHome,
		IsNewDevice:      r.IsNewDevice,
		IsNewLocation:    r.IsNewLocation,
		IsInternational:  r.IsInternational,
		FailedAttempts:   r.FailedAttempts,
		CreatedAt:        now,
	}
}

// VelocityWindow holds sliding-window aggregates over an account's prior
// transactions, computed fresh per scoring call. The current transaction is
// always included, so counts are at least 1.
type VelocityWindow struct {
	TxCount1h  int `json:"txCount1h"`
	TxCount24h int `json:"txCount24h"`
	TxCount7d  int `json:"txCount7d"`

	AmountSum1h  float64 `json:"amountSum1h"`
	AmountSum24h float64 `json:"amountSum24h"`

	UniqueMerchants24h int `json:"uniqueMerchants24h"`
	UniqueDevices24h   int `json:"uniqueDevices24h"`

	// Seconds since the immediately preceding transaction. Defaults to one
	// day when no prior history exists.
	TimeSinceLastTx float64 `json:"timeSinceLastTx"`
}

// DefaultTimeSinceLastTx is the recency-gap sentinel used when an account has
// no prior transaction history.
const DefaultTimeSinceLastTx = 86400.0

// DefaultVelocityWindow returns the window used when no history is available.
func DefaultVelocityWindow() VelocityWindow {
	return VelocityWindow{
		TxCount1h:          1,
		TxCount24h:         1,
		TxCount7d:          1,
		UniqueMerchants24h: 1,
		UniqueDevices24h:   1,
		TimeSinceLastTx:    DefaultTimeSinceLastTx,
	}
}
