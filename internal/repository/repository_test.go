package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func newTestRepo(t *testing.T) domain.Repository {
	t.Helper()

	repo, err := New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "kestrel_test.db"),
	})
	if err != nil {
		t.Fatalf("failed to open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func makeTx(id, accountID string, amount float64, ts time.Time) *domain.Transaction {
	return &domain.Transaction{
		ID:               id,
		TenantID:         "tenant1",
		UserID:           "USR-1",
		AccountID:        accountID,
		Amount:           amount,
		Currency:         "USD",
		Type:             "purchase",
		MerchantCategory: "online",
		Timestamp:        ts,
		Hour:             ts.Hour(),
		DayOfWeek:        int(ts.Weekday()),
		DeviceID:         "DEV-1",
		IPAddress:        "10.0.0.1",
		CreatedAt:        ts,
	}
}

func TestTransactionPersistence(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	t.Run("SaveAndGet", func(t *testing.T) {
		tx := makeTx("tx-1", "ACC-1", 250.75, now)
		tx.IsInternational = true
		tx.FailedAttempts = 2

		if err := repo.SaveTransaction(ctx, "tenant1", tx); err != nil {
			t.Fatalf("SaveTransaction failed: %v", err)
		}

		got, err := repo.GetTransaction(ctx, "tenant1", "tx-1")
		if err != nil {
			t.Fatalf("GetTransaction failed: %v", err)
		}
		if got.Amount != 250.75 || got.AccountID != "ACC-1" {
			t.Errorf("round-trip mismatch: %+v", got)
		}
		if !got.IsInternational || got.FailedAttempts != 2 {
			t.Errorf("flags lost in round-trip: %+v", got)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := repo.GetTransaction(ctx, "tenant1", "tx-missing")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		if _, err := repo.GetTransaction(ctx, "tenant2", "tx-1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("tenant2 should not see tenant1's transaction, got %v", err)
		}
	})

	t.Run("RequiresTenant", func(t *testing.T) {
		if err := repo.SaveTransaction(ctx, "", makeTx("tx-x", "ACC-1", 10, now)); err == nil {
			t.Error("SaveTransaction without tenant should fail")
		}
		if _, err := repo.GetTransaction(ctx, "", "tx-1"); err == nil {
			t.Error("GetTransaction without tenant should fail")
		}
	})
}

func TestGetTransactionsByAccount(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	// Out-of-order inserts; reads must come back timestamp ascending.
	for _, tx := range []*domain.Transaction{
		makeTx("tx-c", "ACC-9", 300, now.Add(-1*time.Hour)),
		makeTx("tx-a", "ACC-9", 100, now.Add(-48*time.Hour)),
		makeTx("tx-b", "ACC-9", 200, now.Add(-24*time.Hour)),
		makeTx("tx-other", "ACC-other", 999, now),
	} {
		if err := repo.SaveTransaction(ctx, "tenant1", tx); err != nil {
			t.Fatalf("SaveTransaction failed: %v", err)
		}
	}

	t.Run("AscendingOrder", func(t *testing.T) {
		txs, err := repo.GetTransactionsByAccount(ctx, "tenant1", "ACC-9", now.Add(-72*time.Hour))
		if err != nil {
			t.Fatalf("GetTransactionsByAccount failed: %v", err)
		}
		if len(txs) != 3 {
			t.Fatalf("expected 3 transactions, got %d", len(txs))
		}
		for i := 1; i < len(txs); i++ {
			if txs[i].Timestamp.Before(txs[i-1].Timestamp) {
				t.Errorf("transactions not ascending at %d", i)
			}
		}
	})

	t.Run("SinceCutoff", func(t *testing.T) {
		txs, err := repo.GetTransactionsByAccount(ctx, "tenant1", "ACC-9", now.Add(-30*time.Hour))
		if err != nil {
			t.Fatalf("GetTransactionsByAccount failed: %v", err)
		}
		if len(txs) != 2 {
			t.Errorf("expected 2 transactions since cutoff, got %d", len(txs))
		}
	})

	t.Run("UnknownAccount", func(t *testing.T) {
		txs, err := repo.GetTransactionsByAccount(ctx, "tenant1", "ACC-none", now.Add(-72*time.Hour))
		if err != nil {
			t.Fatalf("GetTransactionsByAccount failed: %v", err)
		}
		if len(txs) != 0 {
			t.Errorf("expected no transactions, got %d", len(txs))
		}
	})

	t.Run("RequiresAccount", func(t *testing.T) {
		if _, err := repo.GetTransactionsByAccount(ctx, "tenant1", "", now); err == nil {
			t.Error("expected error for empty accountID")
		}
	})
}

func TestAlertPersistence(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	alert := &domain.Alert{
		ID:          "ALT-101",
		Severity:    domain.SeverityHigh,
		Title:       "Suspicious transfer",
		Description: "Large international transfer at night",
		CreatedAt:   now,
		RiskScore:   82,
		Status:      domain.StatusOpen,
		EntityType:  domain.EntityAccount,
		EntityID:    "ACC-9",
		Transaction: makeTx("tx-1", "ACC-9", 15000, now),
		Assessment: &domain.RiskAssessment{
			RiskScore: 82,
			Severity:  domain.SeverityHigh,
			IsFraud:   true,
			Model:     "rule_based",
		},
	}

	t.Run("SaveAndList", func(t *testing.T) {
		if err := repo.SaveAlert(ctx, "tenant1", alert); err != nil {
			t.Fatalf("SaveAlert failed: %v", err)
		}

		older := &domain.Alert{
			ID:        "ALT-102",
			Severity:  domain.SeverityLow,
			Title:     "Routine",
			CreatedAt: now.Add(-time.Hour),
			RiskScore: 20,
			Status:    domain.StatusOpen,
		}
		if err := repo.SaveAlert(ctx, "tenant1", older); err != nil {
			t.Fatalf("SaveAlert failed: %v", err)
		}

		list, err := repo.ListAlerts(ctx, "tenant1", "", 0)
		if err != nil {
			t.Fatalf("ListAlerts failed: %v", err)
		}
		if len(list) != 2 {
			t.Fatalf("expected 2 alerts, got %d", len(list))
		}
		if list[0].ID != "ALT-101" {
			t.Errorf("expected newest first, got %s", list[0].ID)
		}
		if list[0].Transaction == nil || list[0].Transaction.Amount != 15000 {
			t.Errorf("embedded transaction lost: %+v", list[0].Transaction)
		}
		if list[0].Assessment == nil || !list[0].Assessment.IsFraud {
			t.Errorf("embedded assessment lost: %+v", list[0].Assessment)
		}
	})

	t.Run("SeverityFilter", func(t *testing.T) {
		list, err := repo.ListAlerts(ctx, "tenant1", domain.SeverityHigh, 0)
		if err != nil {
			t.Fatalf("ListAlerts failed: %v", err)
		}
		if len(list) != 1 || list[0].ID != "ALT-101" {
			t.Errorf("severity filter mismatch: %v", list)
		}
	})

	t.Run("UpdateStatus", func(t *testing.T) {
		if err := repo.UpdateAlertStatus(ctx, "tenant1", "ALT-101", domain.StatusResolved); err != nil {
			t.Fatalf("UpdateAlertStatus failed: %v", err)
		}

		list, _ := repo.ListAlerts(ctx, "tenant1", domain.SeverityHigh, 0)
		if len(list) != 1 || list[0].Status != domain.StatusResolved {
			t.Errorf("status not persisted: %v", list)
		}
	})

	t.Run("UpdateUnknown", func(t *testing.T) {
		err := repo.UpdateAlertStatus(ctx, "tenant1", "ALT-999", domain.StatusResolved)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		list, err := repo.ListAlerts(ctx, "tenant2", "", 0)
		if err != nil {
			t.Fatalf("ListAlerts failed: %v", err)
		}
		if len(list) != 0 {
			t.Errorf("tenant2 should see no alerts, got %d", len(list))
		}
	})
}

func TestPointRulePersistence(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	rule := &domain.PointRule{
		ID:         "custom-1",
		TenantID:   "tenant1",
		Name:       "Round amount",
		Expression: "amount == 9999.0",
		Points:     10,
		Enabled:    true,
	}

	t.Run("SaveAndList", func(t *testing.T) {
		if err := repo.SavePointRule(ctx, "tenant1", rule); err != nil {
			t.Fatalf("SavePointRule failed: %v", err)
		}

		rules, err := repo.ListPointRules(ctx, "tenant1")
		if err != nil {
			t.Fatalf("ListPointRules failed: %v", err)
		}
		if len(rules) != 1 || rules[0].Expression != "amount == 9999.0" {
			t.Errorf("round-trip mismatch: %v", rules)
		}
		if !rules[0].Enabled {
			t.Error("enabled flag lost")
		}
	})

	t.Run("Upsert", func(t *testing.T) {
		updated := *rule
		updated.Points = 25
		updated.Enabled = false

		if err := repo.SavePointRule(ctx, "tenant1", &updated); err != nil {
			t.Fatalf("SavePointRule failed: %v", err)
		}

		rules, err := repo.ListPointRules(ctx, "tenant1")
		if err != nil {
			t.Fatalf("ListPointRules failed: %v", err)
		}
		if len(rules) != 1 {
			t.Fatalf("upsert duplicated the rule: %d rows", len(rules))
		}
		if rules[0].Points != 25 || rules[0].Enabled {
			t.Errorf("upsert did not replace: %+v", rules[0])
		}
	})

	t.Run("SortedByID", func(t *testing.T) {
		second := &domain.PointRule{ID: "another-1", TenantID: "tenant1", Name: "Second", Expression: "amount > 1.0", Points: 5, Enabled: true}
		if err := repo.SavePointRule(ctx, "tenant1", second); err != nil {
			t.Fatalf("SavePointRule failed: %v", err)
		}

		rules, _ := repo.ListPointRules(ctx, "tenant1")
		if len(rules) != 2 || rules[0].ID != "another-1" {
			t.Errorf("expected id-sorted rules, got %v", rules)
		}
	})
}

func TestRepositoryLifecycle(t *testing.T) {
	t.Run("Ping", func(t *testing.T) {
		repo := newTestRepo(t)
		if err := repo.Ping(context.Background()); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("UnsupportedDriver", func(t *testing.T) {
		if _, err := New(domain.RepositoryConfig{Driver: "oracle"}); err == nil {
			t.Error("expected error for unsupported driver")
		}
	})
}
