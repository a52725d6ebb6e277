// Package ledger applies idempotent state transitions to transaction and
// payment-link records and fires the order-paid signal exactly once per
// record.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when no record exists for a key.
var ErrNotFound = errors.New("ledger: record not found")

// Record is the persisted view of one purchase attempt or payment link.
// Records are never deleted; terminal states supersede them.
type Record struct {
	Kind           string          `json:"kind"`
	CorrelationKey string          `json:"correlation_key"`
	TranID         string          `json:"tran_id"`
	Title          string          `json:"title,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	PaymentOption  string          `json:"payment_option,omitempty"`
	State          string          `json:"state"`
	CreatedAt      time.Time       `json:"created_at"`
	ExpiresAt      time.Time       `json:"expires_at,omitempty"`
	PaidAt         *time.Time      `json:"paid_at,omitempty"`
	Attempts       int             `json:"attempts"`
}

// AuditEvent is a received webhook delivery, stored even when it is not
// applied to any record.
type AuditEvent struct {
	ID             string
	CorrelationKey string
	TranID         string
	RawPayload     []byte
	SignatureValid bool
	ReceivedAt     time.Time
	AppliedAt      *time.Time
}

// Store persists records and webhook audit rows. Transition must be a
// compare-and-set: implementations re-read the current state under a lock
// (or row lock) and refuse moves the domain transition table rejects.
type Store interface {
	Create(ctx context.Context, rec *Record) error
	FindByCorrelationKey(ctx context.Context, key string) (*Record, error)
	FindByTranID(ctx context.Context, tranID string) (*Record, error)

	// Transition moves the record to next when allowed. It returns the
	// resulting record and whether the state actually changed. A rejected
	// move on a terminal record is not an error.
	Transition(ctx context.Context, correlationKey, next string, paidAt *time.Time) (*Record, bool, error)

	AppendEvent(ctx context.Context, evt *AuditEvent) error

	// ExpireDue transitions non-terminal records whose expiry has passed
	// and returns how many moved.
	ExpireDue(ctx context.Context, now time.Time, limit int) (int, error)
}
