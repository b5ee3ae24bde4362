// Package features turns transactions into fixed-order numeric vectors.
package features

import (
	"fmt"
	"math"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// CanonicalOrder is the feature ordering used when no model metadata is
// loaded. It matches the training pipeline's exported feature_names so that
// rule-mode and model-mode vectors stay interchangeable.
var CanonicalOrder = []string{
	"amount", "log_amount",
	"hour", "day_of_week", "is_weekend",
	"is_night",
	"is_business_hours",
	"tx_count_1h", "tx_count_24h", "tx_count_7d",
	"amount_sum_1h", "amount_sum_24h",
	"unique_merchants_24h", "unique_devices_24h",
	"time_since_last_tx", "log_time_since_last",
	"distance_from_home", "log_distance",
	"is_new_location", "is_international",
	"is_new_device", "failed_attempts",
	"transaction_type_encoded", "merchant_category_encoded",
}

// defaultCategoryCode is the reserved code for categories never seen at
// model-load time.
const defaultCategoryCode = 0

// Extractor builds feature vectors in a configured order. Categorical codes
// are assigned once at construction; the extractor is read-only afterwards
// and safe for concurrent use.
type Extractor struct {
	order         []string
	typeCodes     map[string]float64
	merchantCodes map[string]float64
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithOrder overrides the canonical feature ordering, typically from loaded
// model metadata.
func WithOrder(order []string) Option {
	return func(e *Extractor) {
		if len(order) > 0 {
			e.order = order
		}
	}
}

// WithCategories assigns stable integer codes to known transaction types and
// merchant categories. Codes start at 1; unseen values map to the reserved
// default code.
func WithCategories(txTypes, merchantCategories []string) Option {
	return func(e *Extractor) {
		for i, t := range txTypes {
			e.typeCodes[t] = float64(i + 1)
		}
		for i, m := range merchantCategories {
			e.merchantCodes[m] = float64(i + 1)
		}
	}
}

// NewExtractor creates a feature extractor.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{
		order:         CanonicalOrder,
		typeCodes:     make(map[string]float64),
		merchantCodes: make(map[string]float64),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Order returns the feature ordering in effect.
func (e *Extractor) Order() []string {
	return e.order
}

// Extract produces the ordered numeric feature vector for a transaction and
// its velocity window. Only a missing or non-positive amount is an error;
// every other absent field takes its documented neutral default.
func (e *Extractor) Extract(tx *domain.Transaction, w domain.VelocityWindow) ([]float64, error) {
	if tx == nil {
		return nil, fmt.Errorf("%w: transaction is required", domain.ErrInvalidTransaction)
	}
	if tx.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive, got %.2f", domain.ErrInvalidTransaction, tx.Amount)
	}

	vec := make([]float64, len(e.order))
	for i, name := range e.order {
		vec[i] = e.value(name, tx, w)
	}
	return vec, nil
}

func (e *Extractor) value(name string, tx *domain.Transaction, w domain.VelocityWindow) float64 {
	switch name {
	case "amount":
		return tx.Amount
	case "log_amount":
		return math.Log1p(tx.Amount)

	case "hour":
		return float64(tx.Hour)
	case "day_of_week":
		return float64(tx.DayOfWeek)
	case "is_weekend":
		return boolFeature(tx.IsWeekend)
	case "is_night":
		return boolFeature(tx.Hour >= 1 && tx.Hour <= 5)
	case "is_business_hours":
		return boolFeature(tx.Hour >= 9 && tx.Hour <= 18)

	case "tx_count_1h":
		return float64(w.TxCount1h)
	case "tx_count_24h":
		return float64(w.TxCount24h)
	case "tx_count_7d":
		return float64(w.TxCount7d)
	case "amount_sum_1h":
		return w.AmountSum1h
	case "amount_sum_24h":
		return w.AmountSum24h
	case "unique_merchants_24h":
		return float64(w.UniqueMerchants24h)
	case "unique_devices_24h":
		return float64(w.UniqueDevices24h)
	case "time_since_last_tx":
		return w.TimeSinceLastTx
	case "log_time_since_last":
		return math.Log1p(w.TimeSinceLastTx)

	case "distance_from_home":
		return tx.DistanceFromHome
	case "log_distance":
		return math.Log1p(tx.DistanceFromHome)
	case "is_new_location":
		return boolFeature(tx.IsNewLocation)
	case "is_international":
		return boolFeature(tx.IsInternational)

	case "is_new_device":
		return boolFeature(tx.IsNewDevice)
	case "failed_attempts":
		return float64(tx.FailedAttempts)

	case "transaction_type_encoded":
		if code, ok := e.typeCodes[tx.Type]; ok {
			return code
		}
		return defaultCategoryCode
	case "merchant_category_encoded":
		if code, ok := e.merchantCodes[tx.MerchantCategory]; ok {
			return code
		}
		return defaultCategoryCode

	default:
		// Unknown feature named by model metadata: neutral zero rather
		// than an error, matching the graceful-degradation contract.
		return 0
	}
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
