// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// rebind converts ?-style placeholders to $N for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

// SaveTransaction stores a transaction with tenant isolation.
func (r *SQLRepository) SaveTransaction(ctx context.Context, tenantID string, tx *domain.Transaction) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO transactions (
			id, tenant_id, user_id, account_id, amount, currency, type,
			merchant_category, timestamp, hour, day_of_week, is_weekend,
			device_id, ip_address, is_new_device, latitude, longitude,
			distance_from_home, is_new_location, is_international,
			failed_attempts, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		tx.ID, tenantID, tx.UserID, tx.AccountID,
		tx.Amount, tx.Currency, tx.Type, tx.MerchantCategory,
		tx.Timestamp, tx.Hour, tx.DayOfWeek, boolToInt(tx.IsWeekend),
		tx.DeviceID, tx.IPAddress, boolToInt(tx.IsNewDevice),
		tx.Latitude, tx.Longitude, tx.DistanceFromHome,
		boolToInt(tx.IsNewLocation), boolToInt(tx.IsInternational),
		tx.FailedAttempts, tx.CreatedAt,
	)
	return err
}

// GetTransaction retrieves a transaction by ID with tenant isolation.
func (r *SQLRepository) GetTransaction(ctx context.Context, tenantID string, txID string) (*domain.Transaction, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := selectTransaction + ` WHERE tenant_id = ? AND id = ?`

	row := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, txID)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: transaction %s", ErrNotFound, txID)
	}
	return tx, err
}

// GetTransactionsByAccount retrieves an account's transactions since a
// cutoff, sorted ascending by timestamp as the velocity aggregator requires.
func (r *SQLRepository) GetTransactionsByAccount(ctx context.Context, tenantID string, accountID string, since time.Time) ([]*domain.Transaction, error) {
	if tenantID == "" || accountID == "" {
		return nil, fmt.Errorf("%w: tenantID and accountID are required", ErrInvalidInput)
	}

	query := selectTransaction + `
		WHERE tenant_id = ? AND account_id = ? AND timestamp >= ?
		ORDER BY timestamp ASC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, accountID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txs []*domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

const selectTransaction = `
	SELECT id, tenant_id, user_id, account_id, amount, currency, type,
		   merchant_category, timestamp, hour, day_of_week, is_weekend,
		   device_id, ip_address, is_new_device, latitude, longitude,
		   distance_from_home, is_new_location, is_international,
		   failed_attempts, created_at
	FROM transactions`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var tx domain.Transaction
	var weekend, newDevice, newLocation, international int

	err := row.Scan(
		&tx.ID, &tx.TenantID, &tx.UserID, &tx.AccountID,
		&tx.Amount, &tx.Currency, &tx.Type, &tx.MerchantCategory,
		&tx.Timestamp, &tx.Hour, &tx.DayOfWeek, &weekend,
		&tx.DeviceID, &tx.IPAddress, &newDevice,
		&tx.Latitude, &tx.Longitude, &tx.DistanceFromHome,
		&newLocation, &international,
		&tx.FailedAttempts, &tx.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	tx.IsWeekend = weekend != 0
	tx.IsNewDevice = newDevice != 0
	tx.IsNewLocation = newLocation != 0
	tx.IsInternational = international != 0
	return &tx, nil
}

// SaveAlert stores an append-only audit copy of an alert.
func (r *SQLRepository) SaveAlert(ctx context.Context, tenantID string, alert *domain.Alert) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	txJSON, _ := json.Marshal(alert.Transaction)
	assessJSON, _ := json.Marshal(alert.Assessment)

	query := `
		INSERT INTO alerts (
			id, tenant_id, severity, title, description, created_at,
			risk_score, status, entity_type, entity_id,
			transaction_json, assessment_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		alert.ID, tenantID, alert.Severity, alert.Title, alert.Description,
		alert.CreatedAt, alert.RiskScore, alert.Status,
		alert.EntityType, alert.EntityID,
		string(txJSON), string(assessJSON),
	)
	return err
}

// UpdateAlertStatus updates the persisted status of an alert.
func (r *SQLRepository) UpdateAlertStatus(ctx context.Context, tenantID string, alertID string, status string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `UPDATE alerts SET status = ? WHERE tenant_id = ? AND id = ?`

	result, err := r.db.ExecContext(ctx, r.rebind(query), status, tenantID, alertID)
	if err != nil {
		return fmt.Errorf("failed to update alert status: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: alert %s", ErrNotFound, alertID)
	}
	return nil
}

// ListAlerts returns persisted alerts newest first, optionally filtered by
// severity, truncated to limit.
func (r *SQLRepository) ListAlerts(ctx context.Context, tenantID string, severity string, limit int) ([]*domain.Alert, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, severity, title, description, created_at, risk_score,
			   status, entity_type, entity_id, transaction_json, assessment_json
		FROM alerts
		WHERE tenant_id = ?`
	args := []any{tenantID}

	if severity != "" && severity != "ALL" {
		query += ` AND severity = ?`
		args = append(args, severity)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*domain.Alert
	for rows.Next() {
		var a domain.Alert
		var txJSON, assessJSON sql.NullString

		err := rows.Scan(
			&a.ID, &a.Severity, &a.Title, &a.Description, &a.CreatedAt,
			&a.RiskScore, &a.Status, &a.EntityType, &a.EntityID,
			&txJSON, &assessJSON,
		)
		if err != nil {
			return nil, err
		}

		if txJSON.Valid && txJSON.String != "null" {
			var tx domain.Transaction
			if json.Unmarshal([]byte(txJSON.String), &tx) == nil {
				a.Transaction = &tx
			}
		}
		if assessJSON.Valid && assessJSON.String != "null" {
			var assessment domain.RiskAssessment
			if json.Unmarshal([]byte(assessJSON.String), &assessment) == nil {
				a.Assessment = &assessment
			}
		}

		alerts = append(alerts, &a)
	}
	return alerts, rows.Err()
}

// SavePointRule upserts a tenant-specific point rule.
func (r *SQLRepository) SavePointRule(ctx context.Context, tenantID string, rule *domain.PointRule) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	now := time.Now().UTC()

	// Delete-then-insert keeps the upsert portable across both drivers.
	del := `DELETE FROM point_rules WHERE tenant_id = ? AND id = ?`
	if _, err := r.db.ExecContext(ctx, r.rebind(del), tenantID, rule.ID); err != nil {
		return fmt.Errorf("failed to upsert point rule: %w", err)
	}

	query := `
		INSERT INTO point_rules (
			id, tenant_id, name, description, expression, points, enabled,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, tenantID, rule.Name, rule.Description,
		rule.Expression, rule.Points, boolToInt(rule.Enabled),
		now, now,
	)
	return err
}

// ListPointRules returns all point rules for a tenant.
func (r *SQLRepository) ListPointRules(ctx context.Context, tenantID string) ([]*domain.PointRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, expression, points, enabled
		FROM point_rules
		WHERE tenant_id = ?
		ORDER BY id ASC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query point rules: %w", err)
	}
	defer rows.Close()

	var rules []*domain.PointRule
	for rows.Next() {
		var rule domain.PointRule
		var enabled int
		if err := rows.Scan(&rule.ID, &rule.TenantID, &rule.Name, &rule.Description, &rule.Expression, &rule.Points, &enabled); err != nil {
			return nil, err
		}
		rule.Enabled = enabled != 0
		rules = append(rules, &rule)
	}
	return rules, rows.Err()
}

// Ping checks database health.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close releases the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
