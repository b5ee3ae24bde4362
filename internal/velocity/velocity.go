// Package velocity computes sliding-window transaction aggregates.
package velocity

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/metrics"
)

// Window boundaries in seconds.
const (
	windowHour = 3600
	windowDay  = 86400
	windowWeek = 604800
)

// ComputeWindows computes sliding-window aggregates for the current
// transaction given the account's prior history, sorted ascending by
// timestamp. Pure function: no side effects, no locking.
//
// The current transaction is always included, so every count is at least 1
// and the 1h/24h sums include the current amount. Unique merchant and device
// counts are taken over the 24h sub-window only.
func ComputeWindows(history []*domain.Transaction, current *domain.Transaction) domain.VelocityWindow {
	w := domain.VelocityWindow{
		TimeSinceLastTx: domain.DefaultTimeSinceLastTx,
	}

	merchants24h := make(map[string]struct{})
	devices24h := make(map[string]struct{})

	// Scan backward from the most recent prior transaction. Anything older
	// than the 7-day boundary terminates the scan; history is ordered, so
	// nothing before it can be in-window either.
	for i := len(history) - 1; i >= 0; i-- {
		prior := history[i]
		elapsed := current.Timestamp.Sub(prior.Timestamp).Seconds()

		if elapsed > windowWeek {
			break
		}
		w.TxCount7d++

		if elapsed <= windowDay {
			w.TxCount24h++
			w.AmountSum24h += prior.Amount
			if prior.MerchantCategory != "" {
				merchants24h[prior.MerchantCategory] = struct{}{}
			}
			if prior.DeviceID != "" {
				devices24h[prior.DeviceID] = struct{}{}
			}
		}

		if elapsed <= windowHour {
			w.TxCount1h++
			w.AmountSum1h += prior.Amount
		}
	}

	// Include the current transaction in every aggregate.
	w.TxCount1h++
	w.TxCount24h++
	w.TxCount7d++
	w.AmountSum1h += current.Amount
	w.AmountSum24h += current.Amount
	if current.MerchantCategory != "" {
		merchants24h[current.MerchantCategory] = struct{}{}
	}
	if current.DeviceID != "" {
		devices24h[current.DeviceID] = struct{}{}
	}
	w.UniqueMerchants24h = max(len(merchants24h), 1)
	w.UniqueDevices24h = max(len(devices24h), 1)

	if n := len(history); n > 0 {
		w.TimeSinceLastTx = current.Timestamp.Sub(history[n-1].Timestamp).Seconds()
	}

	return w
}

// Service computes velocity windows backed by the transaction repository,
// with an optional cache in front for repeated lookups of the same
// transaction.
type Service struct {
	repo  domain.Repository
	cache domain.Cache
}

// NewService creates a new velocity service.
func NewService(repo domain.Repository, cache domain.Cache) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
	}
}

// WindowFor loads the account's 7-day history and computes the velocity
// window for the given transaction.
func (s *Service) WindowFor(ctx context.Context, tx *domain.Transaction) (domain.VelocityWindow, error) {
	if tx.TenantID == "" {
		return domain.VelocityWindow{}, fmt.Errorf("tenantID is required")
	}

	if s.cache != nil && tx.ID != "" {
		if cached, err := s.cache.GetWindow(ctx, tx.TenantID, tx.ID); err == nil && cached != nil {
			return *cached, nil
		}
	}

	if tx.AccountID == "" || s.repo == nil {
		// No history source: every aggregate falls back to its default.
		return domain.DefaultVelocityWindow(), nil
	}

	since := tx.Timestamp.Add(-windowWeek * time.Second)
	history, err := s.repo.GetTransactionsByAccount(ctx, tx.TenantID, tx.AccountID, since)
	if err != nil {
		return domain.VelocityWindow{}, fmt.Errorf("failed to load account history: %w", err)
	}

	// The current transaction may already be persisted; exclude it, it is
	// added back by ComputeWindows.
	prior := history[:0:0]
	for _, h := range history {
		if tx.ID != "" && h.ID == tx.ID {
			continue
		}
		if h.Timestamp.After(tx.Timestamp) {
			continue
		}
		prior = append(prior, h)
	}

	w := ComputeWindows(prior, tx)
	metrics.WindowsComputed.Inc()

	if s.cache != nil && tx.ID != "" {
		_ = s.cache.SetWindow(ctx, tx.TenantID, tx.ID, &w, time.Minute)
	}

	return w, nil
}

// Record persists a transaction so it participates in future window
// computations, and bumps the cheap per-account hourly counter.
func (s *Service) Record(ctx context.Context, tx *domain.Transaction) error {
	if s.repo == nil {
		return nil
	}
	if err := s.repo.SaveTransaction(ctx, tx.TenantID, tx); err != nil {
		return fmt.Errorf("failed to record transaction: %w", err)
	}
	if s.cache != nil && tx.AccountID != "" {
		_, _ = s.cache.IncrementCounter(ctx, tx.TenantID, "account:"+tx.AccountID, time.Hour)
	}
	return nil
}
