package ledger

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/ayo6706/gateway-bridge/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

// PostgresStore persists records and webhook audit rows in Postgres.
// Transition takes a row lock so concurrent deliveries for the same
// correlation key serialize at the database as well.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore wraps a pgx connection pool.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the ledger tables when they do not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure ledger schema: %w", err)
	}
	return nil
}

const recordColumns = `correlation_key, kind, tran_id, title, amount, currency, payment_option, state, created_at, expires_at, paid_at, attempts`

func (s *PostgresStore) Create(ctx context.Context, rec *Record) error {
	var expiresAt *time.Time
	if !rec.ExpiresAt.IsZero() {
		expiresAt = &rec.ExpiresAt
	}
	query := `
		INSERT INTO gateway_records (correlation_key, kind, tran_id, title, amount, currency, payment_option, state, created_at, expires_at, attempts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := s.db.Exec(ctx, query,
		rec.CorrelationKey, rec.Kind, rec.TranID, rec.Title, rec.Amount, rec.Currency,
		rec.PaymentOption, rec.State, rec.CreatedAt, expiresAt, rec.Attempts,
	)
	if err != nil {
		return fmt.Errorf("create record %s: %w", rec.CorrelationKey, err)
	}
	return nil
}

func (s *PostgresStore) FindByCorrelationKey(ctx context.Context, key string) (*Record, error) {
	query := fmt.Sprintf(`SELECT %s FROM gateway_records WHERE correlation_key = $1`, recordColumns)
	return s.scanRecord(s.db.QueryRow(ctx, query, key))
}

func (s *PostgresStore) FindByTranID(ctx context.Context, tranID string) (*Record, error) {
	query := fmt.Sprintf(`SELECT %s FROM gateway_records WHERE tran_id = $1`, recordColumns)
	return s.scanRecord(s.db.QueryRow(ctx, query, tranID))
}

func (s *PostgresStore) Transition(ctx context.Context, correlationKey, next string, paidAt *time.Time) (*Record, bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("begin transition: %w", err)
	}
	defer tx.Rollback(ctx)

	var current string
	err = tx.QueryRow(ctx,
		`SELECT state FROM gateway_records WHERE correlation_key = $1 FOR UPDATE`,
		correlationKey,
	).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, ErrNotFound
	}
	if err != nil {
		return nil, false, fmt.Errorf("lock record %s: %w", correlationKey, err)
	}

	changed := domain.CanTransition(current, next)
	if changed {
		_, err = tx.Exec(ctx,
			`UPDATE gateway_records SET state = $1, paid_at = COALESCE($2, paid_at) WHERE correlation_key = $3`,
			domain.NormalizeState(next), paidAt, correlationKey,
		)
		if err != nil {
			return nil, false, fmt.Errorf("update record %s: %w", correlationKey, err)
		}
	}

	query := fmt.Sprintf(`SELECT %s FROM gateway_records WHERE correlation_key = $1`, recordColumns)
	rec, err := s.scanRecord(tx.QueryRow(ctx, query, correlationKey))
	if err != nil {
		return nil, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("commit transition: %w", err)
	}
	return rec, changed, nil
}

func (s *PostgresStore) AppendEvent(ctx context.Context, evt *AuditEvent) error {
	query := `
		INSERT INTO webhook_events (id, correlation_key, tran_id, raw_payload, signature_valid, received_at, applied_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.db.Exec(ctx, query,
		evt.ID, evt.CorrelationKey, evt.TranID, evt.RawPayload, evt.SignatureValid, evt.ReceivedAt, evt.AppliedAt,
	)
	if err != nil {
		return fmt.Errorf("append webhook event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ExpireDue(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		UPDATE gateway_records
		SET state = $1
		WHERE correlation_key IN (
			SELECT correlation_key FROM gateway_records
			WHERE state IN ($2, $3) AND expires_at IS NOT NULL AND expires_at <= $4
			LIMIT $5
			FOR UPDATE SKIP LOCKED
		)
	`
	tag, err := s.db.Exec(ctx, query, domain.StateExpired, domain.StatePending, domain.StateProcessing, now, limit)
	if err != nil {
		return 0, fmt.Errorf("expire due records: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *PostgresStore) scanRecord(row rowScanner) (*Record, error) {
	var rec Record
	var expiresAt *time.Time
	err := row.Scan(
		&rec.CorrelationKey, &rec.Kind, &rec.TranID, &rec.Title, &rec.Amount, &rec.Currency,
		&rec.PaymentOption, &rec.State, &rec.CreatedAt, &expiresAt, &rec.PaidAt, &rec.Attempts,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan record: %w", err)
	}
	if expiresAt != nil {
		rec.ExpiresAt = *expiresAt
	}
	return &rec, nil
}
