package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ayo6706/gateway-bridge/internal/domain"
	"github.com/ayo6706/gateway-bridge/internal/observability"
	"github.com/ayo6706/gateway-bridge/internal/statuscode"
	"github.com/ayo6706/gateway-bridge/internal/webhook"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrUnknownCorrelation marks an event whose merchant_ref_no matches no
// local record. Callers acknowledge these without applying them so the
// provider stops redelivering.
var ErrUnknownCorrelation = errors.New("ledger: unknown correlation key")

// OrderNotifier receives the normalized order-paid signal. Implementations
// must be idempotent; the ledger guards the call with its own state check,
// not an external lock.
type OrderNotifier interface {
	MarkPaid(ctx context.Context, orderRef, tranID string) error
}

// ApplyResult reports what a webhook delivery did to the ledger.
type ApplyResult struct {
	Applied bool
	State   string
}

// Ledger reconciles verified webhook events with persisted records.
// Deliveries for the same correlation key are serialized by a per-key
// mutex on top of the store's compare-and-set, so concurrent duplicate
// "paid" deliveries can never both fire the downstream signal.
type Ledger struct {
	store    Store
	notifier OrderNotifier
	logger   *zap.Logger

	mu   sync.Mutex
	keys map[string]*sync.Mutex
}

// New creates a ledger over the given store. notifier may be nil when no
// downstream signal is wired (detail-only deployments).
func New(store Store, notifier OrderNotifier, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		store:    store,
		notifier: notifier,
		logger:   logger,
		keys:     make(map[string]*sync.Mutex),
	}
}

func (l *Ledger) lockKey(key string) func() {
	l.mu.Lock()
	m, ok := l.keys[key]
	if !ok {
		m = &sync.Mutex{}
		l.keys[key] = m
	}
	l.mu.Unlock()
	m.Lock()
	return m.Unlock
}

// Track persists a freshly signed purchase attempt or payment link in
// pending state.
func (l *Ledger) Track(ctx context.Context, rec *Record) error {
	if rec.State == "" {
		rec.State = domain.StatePending
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	return l.store.Create(ctx, rec)
}

// MarkProcessing moves a record to processing after the gateway accepted
// the request.
func (l *Ledger) MarkProcessing(ctx context.Context, correlationKey string) error {
	unlock := l.lockKey(correlationKey)
	defer unlock()

	rec, changed, err := l.store.Transition(ctx, correlationKey, domain.StateProcessing, nil)
	if err != nil {
		return err
	}
	if changed {
		observability.IncrementLedgerTransition(domain.StatePending, rec.State)
	}
	return nil
}

// MarkFailed moves a record to failed after a synchronous fatal gateway
// response. Terminal records are left alone.
func (l *Ledger) MarkFailed(ctx context.Context, correlationKey string) error {
	unlock := l.lockKey(correlationKey)
	defer unlock()

	rec, err := l.store.FindByCorrelationKey(ctx, correlationKey)
	if err != nil {
		return err
	}
	prev := rec.State
	rec, changed, err := l.store.Transition(ctx, correlationKey, domain.StateFailed, nil)
	if err != nil {
		return err
	}
	if changed {
		observability.IncrementLedgerTransition(prev, rec.State)
	}
	return nil
}

// Cancel applies the explicit operator/user cancellation. It reports
// whether the record actually moved; cancelling a terminal record is a
// no-op, not an error.
func (l *Ledger) Cancel(ctx context.Context, correlationKey string) (bool, error) {
	unlock := l.lockKey(correlationKey)
	defer unlock()

	rec, err := l.store.FindByCorrelationKey(ctx, correlationKey)
	if err != nil {
		return false, err
	}
	prev := rec.State
	rec, changed, err := l.store.Transition(ctx, correlationKey, domain.StateCancelled, nil)
	if err != nil {
		return false, err
	}
	if changed {
		observability.IncrementLedgerTransition(prev, rec.State)
	}
	return changed, nil
}

// Get returns a record, lazily expiring it when its deadline has passed.
func (l *Ledger) Get(ctx context.Context, correlationKey string) (*Record, error) {
	rec, err := l.store.FindByCorrelationKey(ctx, correlationKey)
	if err != nil {
		return nil, err
	}
	return l.lazyExpire(ctx, rec)
}

// GetByTranID returns a record by provider transaction id, with the same
// lazy expiry as Get.
func (l *Ledger) GetByTranID(ctx context.Context, tranID string) (*Record, error) {
	rec, err := l.store.FindByTranID(ctx, tranID)
	if err != nil {
		return nil, err
	}
	return l.lazyExpire(ctx, rec)
}

func (l *Ledger) lazyExpire(ctx context.Context, rec *Record) (*Record, error) {
	if rec.ExpiresAt.IsZero() || rec.ExpiresAt.After(time.Now()) || domain.IsTerminal(rec.State) {
		return rec, nil
	}
	unlock := l.lockKey(rec.CorrelationKey)
	defer unlock()

	prev := rec.State
	rec, changed, err := l.store.Transition(ctx, rec.CorrelationKey, domain.StateExpired, nil)
	if err != nil {
		return nil, err
	}
	if changed {
		observability.IncrementLedgerTransition(prev, rec.State)
	}
	return rec, nil
}

// ExpireDue sweeps records whose expiry deadline has passed. Called by the
// background worker.
func (l *Ledger) ExpireDue(ctx context.Context, limit int) (int, error) {
	return l.store.ExpireDue(ctx, time.Now().UTC(), limit)
}

// Apply reconciles one verified webhook event. The same event applied N
// times produces exactly one paid transition and one downstream signal;
// records in a terminal state acknowledge the delivery without reapplying
// it. Retryable statuses never mutate state.
func (l *Ledger) Apply(ctx context.Context, event *webhook.Event) (ApplyResult, error) {
	unlock := l.lockKey(event.CorrelationKey)
	defer unlock()

	rec, err := l.store.FindByCorrelationKey(ctx, event.CorrelationKey)
	if errors.Is(err, ErrNotFound) {
		l.audit(ctx, event, nil)
		observability.IncrementWebhookEvent("unknown_correlation")
		return ApplyResult{}, ErrUnknownCorrelation
	}
	if err != nil {
		return ApplyResult{}, fmt.Errorf("lookup record: %w", err)
	}

	if domain.IsTerminal(rec.State) {
		l.audit(ctx, event, nil)
		observability.IncrementWebhookEvent("duplicate")
		return ApplyResult{Applied: false, State: rec.State}, nil
	}

	switch event.Status.Category {
	case statuscode.CategorySuccess:
		return l.applyPaid(ctx, event, rec)
	case statuscode.CategoryFatal:
		return l.applyFailed(ctx, event, rec)
	default:
		// Transient provider state: surface for manual or scheduled
		// re-query, never touch terminal-adjacent state.
		l.audit(ctx, event, nil)
		observability.IncrementWebhookEvent("retryable_ignored")
		return ApplyResult{Applied: false, State: rec.State}, nil
	}
}

func (l *Ledger) applyPaid(ctx context.Context, event *webhook.Event, rec *Record) (ApplyResult, error) {
	prev := rec.State
	paidAt := event.ReceivedAt
	rec, changed, err := l.store.Transition(ctx, event.CorrelationKey, domain.StatePaid, &paidAt)
	if err != nil {
		return ApplyResult{}, fmt.Errorf("transition to paid: %w", err)
	}
	if !changed {
		l.audit(ctx, event, nil)
		observability.IncrementWebhookEvent("duplicate")
		return ApplyResult{Applied: false, State: rec.State}, nil
	}

	appliedAt := time.Now().UTC()
	l.audit(ctx, event, &appliedAt)
	observability.IncrementLedgerTransition(prev, rec.State)
	observability.IncrementWebhookEvent("paid")

	// The just-performed state check guards this call: the transition
	// succeeded exactly once, so the signal fires exactly once.
	if l.notifier != nil {
		if err := l.notifier.MarkPaid(ctx, rec.CorrelationKey, rec.TranID); err != nil {
			l.logger.Error("order-paid signal failed",
				zap.String("correlation_key", rec.CorrelationKey),
				zap.String("tran_id", rec.TranID),
				zap.Error(err),
			)
			return ApplyResult{Applied: true, State: rec.State}, fmt.Errorf("notify order paid: %w", err)
		}
	}
	return ApplyResult{Applied: true, State: rec.State}, nil
}

func (l *Ledger) applyFailed(ctx context.Context, event *webhook.Event, rec *Record) (ApplyResult, error) {
	prev := rec.State
	rec, changed, err := l.store.Transition(ctx, event.CorrelationKey, domain.StateFailed, nil)
	if err != nil {
		return ApplyResult{}, fmt.Errorf("transition to failed: %w", err)
	}
	if !changed {
		l.audit(ctx, event, nil)
		return ApplyResult{Applied: false, State: rec.State}, nil
	}

	appliedAt := time.Now().UTC()
	l.audit(ctx, event, &appliedAt)
	observability.IncrementLedgerTransition(prev, rec.State)
	observability.IncrementWebhookEvent("failed")
	return ApplyResult{Applied: true, State: rec.State}, nil
}

// audit persists the delivery for the audit trail. Audit failures are
// logged, never surfaced: losing an audit row must not make the provider
// redeliver.
func (l *Ledger) audit(ctx context.Context, event *webhook.Event, appliedAt *time.Time) {
	evt := &AuditEvent{
		ID:             uuid.NewString(),
		CorrelationKey: event.CorrelationKey,
		TranID:         event.TranID,
		RawPayload:     event.RawPayload,
		SignatureValid: true,
		ReceivedAt:     event.ReceivedAt,
		AppliedAt:      appliedAt,
	}
	if err := l.store.AppendEvent(ctx, evt); err != nil {
		l.logger.Warn("append webhook audit event failed",
			zap.String("correlation_key", event.CorrelationKey),
			zap.Error(err),
		)
	}
}
