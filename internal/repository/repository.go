// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mlinzi-tz/mlinzi/internal/domain"
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

	// Run migrations
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

// SaveTransaction stores a transaction.
func (r *SQLRepository) SaveTransaction(ctx context.Context, tx *domain.Transaction) error {
	if tx == nil || tx.ID == "" {
		return fmt.Errorf("%w: transaction id is required", ErrInvalidInput)
	}

	metadata, _ := json.Marshal(tx.Metadata)

	query := `
		INSERT INTO transactions (
			id, amount, platform, type,
			recipient_id, recipient_name, recipient_phone,
			timestamp, status, metadata, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		tx.ID, tx.Amount, tx.Platform, tx.Type,
		tx.RecipientID, tx.RecipientName, tx.RecipientPhone,
		tx.Timestamp, tx.Status,
		string(metadata), tx.CreatedAt,
	)
	return err
}

// GetTransaction retrieves a transaction by ID.
func (r *SQLRepository) GetTransaction(ctx context.Context, txID string) (*domain.Transaction, error) {
	if txID == "" {
		return nil, fmt.Errorf("%w: transaction id is required", ErrInvalidInput)
	}

	query := `
		SELECT id, amount, platform, type,
			   recipient_id, recipient_name, recipient_phone,
			   timestamp, status, metadata, created_at
		FROM transactions
		WHERE id = ?
	`

	var tx domain.Transaction
	var metadata string

	err := r.db.QueryRowContext(ctx, r.rebind(query), txID).Scan(
		&tx.ID, &tx.Amount, &tx.Platform, &tx.Type,
		&tx.RecipientID, &tx.RecipientName, &tx.RecipientPhone,
		&tx.Timestamp, &tx.Status,
		&metadata, &tx.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if metadata != "" {
		json.Unmarshal([]byte(metadata), &tx.Metadata)
	}

	return &tx, nil
}

// ListTransactionsSince retrieves transactions at or after the given time,
// newest first.
func (r *SQLRepository) ListTransactionsSince(ctx context.Context, since time.Time) ([]*domain.Transaction, error) {
	query := `
		SELECT id, amount, platform, type,
			   recipient_id, recipient_name, recipient_phone,
			   timestamp, status, metadata, created_at
		FROM transactions
		WHERE timestamp >= ?
		ORDER BY timestamp DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []*domain.Transaction
	for rows.Next() {
		var tx domain.Transaction
		var metadata string

		if err := rows.Scan(
			&tx.ID, &tx.Amount, &tx.Platform, &tx.Type,
			&tx.RecipientID, &tx.RecipientName, &tx.RecipientPhone,
			&tx.Timestamp, &tx.Status,
			&metadata, &tx.CreatedAt,
		); err != nil {
			return nil, err
		}

		if metadata != "" {
			json.Unmarshal([]byte(metadata), &tx.Metadata)
		}

		transactions = append(transactions, &tx)
	}

	return transactions, rows.Err()
}

// SaveAssessment stores a risk assessment.
func (r *SQLRepository) SaveAssessment(ctx context.Context, a *domain.RiskAssessment) error {
	if a == nil || a.ID == "" {
		return fmt.Errorf("%w: assessment id is required", ErrInvalidInput)
	}

	factors, _ := json.Marshal(a.Factors)
	flags, _ := json.Marshal(a.Flags)
	recommendations, _ := json.Marshal(a.Recommendations)

	query := `
		INSERT INTO assessments (
			id, tx_id, score, level, factors, flags, recommendations, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		a.ID, a.TransactionID, a.Score, a.Level,
		string(factors), string(flags), string(recommendations),
		a.Timestamp,
	)
	return err
}

// GetAssessment retrieves a risk assessment by ID.
func (r *SQLRepository) GetAssessment(ctx context.Context, assessmentID string) (*domain.RiskAssessment, error) {
	if assessmentID == "" {
		return nil, fmt.Errorf("%w: assessment id is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tx_id, score, level, factors, flags, recommendations, timestamp
		FROM assessments
		WHERE id = ?
	`

	var a domain.RiskAssessment
	var factors, flags, recommendations string

	err := r.db.QueryRowContext(ctx, r.rebind(query), assessmentID).Scan(
		&a.ID, &a.TransactionID, &a.Score, &a.Level,
		&factors, &flags, &recommendations, &a.Timestamp,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	json.Unmarshal([]byte(factors), &a.Factors)
	if flags != "" {
		json.Unmarshal([]byte(flags), &a.Flags)
	}
	json.Unmarshal([]byte(recommendations), &a.Recommendations)

	return &a, nil
}

// SaveAlert stores a fraud alert. The transaction and assessment travel
// inside the alert row as JSON so an alert row is self-contained.
func (r *SQLRepository) SaveAlert(ctx context.Context, alert *domain.FraudAlert) error {
	if alert == nil || alert.ID == "" {
		return fmt.Errorf("%w: alert id is required", ErrInvalidInput)
	}

	tx, _ := json.Marshal(alert.Transaction)
	assessment, _ := json.Marshal(alert.Assessment)

	query := `
		INSERT INTO alerts (
			id, tx, assessment, type, message, timestamp,
			read, resolved_by, resolved_at, resolution
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		alert.ID, string(tx), string(assessment),
		alert.Type, alert.Message, alert.Timestamp,
		boolToInt(alert.Read), alert.ResolvedBy,
		nullableTime(alert.ResolvedAt), alert.Resolution,
	)
	return err
}

// UpdateAlert persists the mutable state of an alert: read flag, type and
// resolution fields.
func (r *SQLRepository) UpdateAlert(ctx context.Context, alert *domain.FraudAlert) error {
	if alert == nil || alert.ID == "" {
		return fmt.Errorf("%w: alert id is required", ErrInvalidInput)
	}

	query := `
		UPDATE alerts
		SET type = ?, read = ?, resolved_by = ?, resolved_at = ?, resolution = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query),
		alert.Type, boolToInt(alert.Read),
		alert.ResolvedBy, nullableTime(alert.ResolvedAt), alert.Resolution,
		alert.ID,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// ListAlerts retrieves the most recent alerts, newest first.
func (r *SQLRepository) ListAlerts(ctx context.Context, limit int) ([]*domain.FraudAlert, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, tx, assessment, type, message, timestamp,
			   read, resolved_by, resolved_at, resolution
		FROM alerts
		ORDER BY timestamp DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []*domain.FraudAlert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}

	return alerts, rows.Err()
}

// CountAlerts returns the all-time number of stored alerts and how many
// of them are critical.
func (r *SQLRepository) CountAlerts(ctx context.Context) (int, int, error) {
	query := `
		SELECT COUNT(*),
			   COALESCE(SUM(CASE WHEN type = ? THEN 1 ELSE 0 END), 0)
		FROM alerts
	`

	var total, critical int
	if err := r.db.QueryRowContext(ctx, r.rebind(query), string(domain.AlertCritical)).Scan(&total, &critical); err != nil {
		return 0, 0, err
	}
	return total, critical, nil
}

func scanAlert(rows *sql.Rows) (*domain.FraudAlert, error) {
	var alert domain.FraudAlert
	var tx, assessment string
	var read int
	var resolvedBy, resolution sql.NullString
	var resolvedAt sql.NullTime

	if err := rows.Scan(
		&alert.ID, &tx, &assessment,
		&alert.Type, &alert.Message, &alert.Timestamp,
		&read, &resolvedBy, &resolvedAt, &resolution,
	); err != nil {
		return nil, err
	}

	json.Unmarshal([]byte(tx), &alert.Transaction)
	json.Unmarshal([]byte(assessment), &alert.Assessment)
	alert.Read = read != 0
	alert.ResolvedBy = resolvedBy.String
	alert.Resolution = resolution.String
	if resolvedAt.Valid {
		t := resolvedAt.Time.UTC()
		alert.ResolvedAt = &t
	}

	return &alert, nil
}

// SaveScreeningRule stores or replaces a screening rule.
func (r *SQLRepository) SaveScreeningRule(ctx context.Context, rule *domain.ScreeningRule) error {
	if rule == nil || rule.ID == "" {
		return fmt.Errorf("%w: rule id is required", ErrInvalidInput)
	}

	// Upsert keeps rule edits a single call for both drivers.
	query := `
		INSERT INTO screening_rules (
			id, name, description, expression, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, rule.Name, rule.Description, rule.Expression,
		boolToInt(rule.Enabled), rule.CreatedAt, rule.UpdatedAt,
	)
	return err
}

// GetScreeningRule retrieves a screening rule by ID.
func (r *SQLRepository) GetScreeningRule(ctx context.Context, ruleID string) (*domain.ScreeningRule, error) {
	if ruleID == "" {
		return nil, fmt.Errorf("%w: rule id is required", ErrInvalidInput)
	}

	query := `
		SELECT id, name, description, expression, enabled, created_at, updated_at
		FROM screening_rules
		WHERE id = ?
	`

	var rule domain.ScreeningRule
	var enabled int

	err := r.db.QueryRowContext(ctx, r.rebind(query), ruleID).Scan(
		&rule.ID, &rule.Name, &rule.Description, &rule.Expression,
		&enabled, &rule.CreatedAt, &rule.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rule.Enabled = enabled != 0
	return &rule, nil
}

// ListScreeningRules retrieves all screening rules.
func (r *SQLRepository) ListScreeningRules(ctx context.Context) ([]*domain.ScreeningRule, error) {
	query := `
		SELECT id, name, description, expression, enabled, created_at, updated_at
		FROM screening_rules
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.ScreeningRule
	for rows.Next() {
		var rule domain.ScreeningRule
		var enabled int

		if err := rows.Scan(
			&rule.ID, &rule.Name, &rule.Description, &rule.Expression,
			&enabled, &rule.CreatedAt, &rule.UpdatedAt,
		); err != nil {
			return nil, err
		}

		rule.Enabled = enabled != 0
		rules = append(rules, &rule)
	}

	return rules, rows.Err()
}

// DeleteScreeningRule removes a screening rule.
func (r *SQLRepository) DeleteScreeningRule(ctx context.Context, ruleID string) error {
	if ruleID == "" {
		return fmt.Errorf("%w: rule id is required", ErrInvalidInput)
	}

	query := `DELETE FROM screening_rules WHERE id = ?`

	result, err := r.db.ExecContext(ctx, r.rebind(query), ruleID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// GetDocument retrieves a JSON document by key.
func (r *SQLRepository) GetDocument(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, fmt.Errorf("%w: document key is required", ErrInvalidInput)
	}

	query := `SELECT doc FROM documents WHERE key = ?`

	var doc string
	err := r.db.QueryRowContext(ctx, r.rebind(query), key).Scan(&doc)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return []byte(doc), nil
}

// PutDocument stores or replaces a JSON document under the given key.
func (r *SQLRepository) PutDocument(ctx context.Context, key string, doc []byte) error {
	if key == "" {
		return fmt.Errorf("%w: document key is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO documents (key, doc, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET
			doc = excluded.doc,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query), key, string(doc), time.Now().UTC())
	return err
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
