package ledger

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ayo6706/gateway-bridge/internal/domain"
	"github.com/ayo6706/gateway-bridge/internal/statuscode"
	"github.com/ayo6706/gateway-bridge/internal/webhook"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingNotifier struct {
	calls atomic.Int64
	fail  bool
}

func (n *countingNotifier) MarkPaid(ctx context.Context, orderRef, tranID string) error {
	n.calls.Add(1)
	if n.fail {
		return errors.New("downstream unavailable")
	}
	return nil
}

func paidEvent(key string) *webhook.Event {
	return &webhook.Event{
		TranID:         "T1",
		CorrelationKey: key,
		RawStatus:      "00",
		Status:         statuscode.Classify("00"),
		RawPayload:     []byte(`{"tran_id":"T1","status":"00","merchant_ref_no":"` + key + `"}`),
		ReceivedAt:     time.Now().UTC(),
	}
}

func eventWithStatus(key, code string) *webhook.Event {
	evt := paidEvent(key)
	evt.RawStatus = code
	evt.Status = statuscode.Classify(code)
	return evt
}

func trackPending(t *testing.T, l *Ledger, key string) {
	t.Helper()
	require.NoError(t, l.Track(context.Background(), &Record{
		Kind:           domain.KindTransaction,
		CorrelationKey: key,
		TranID:         "T1",
		Amount:         decimal.RequireFromString("10.00"),
		Currency:       "USD",
	}))
}

func TestApplyPaidExactlyOnce(t *testing.T) {
	store := NewMemoryStore()
	notifier := &countingNotifier{}
	l := New(store, notifier, nil)
	trackPending(t, l, "ORD1")

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		result, err := l.Apply(ctx, paidEvent("ORD1"))
		require.NoError(t, err)
		if i == 0 {
			assert.True(t, result.Applied)
		} else {
			assert.False(t, result.Applied, "duplicate delivery %d must be acknowledged, not reapplied", i)
		}
		assert.Equal(t, domain.StatePaid, result.State)
	}

	assert.Equal(t, int64(1), notifier.calls.Load(), "downstream signal fires exactly once")
	// Every delivery is kept for audit, applied or not.
	assert.Len(t, store.Events(), 5)
}

func TestApplyConcurrentDuplicatesSingleSignal(t *testing.T) {
	store := NewMemoryStore()
	notifier := &countingNotifier{}
	l := New(store, notifier, nil)
	trackPending(t, l, "ORD1")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = l.Apply(context.Background(), paidEvent("ORD1"))
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), notifier.calls.Load())
	rec, err := l.Get(context.Background(), "ORD1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatePaid, rec.State)
}

func TestApplyFatalTransitionsToFailed(t *testing.T) {
	store := NewMemoryStore()
	notifier := &countingNotifier{}
	l := New(store, notifier, nil)
	trackPending(t, l, "ORD1")

	result, err := l.Apply(context.Background(), eventWithStatus("ORD1", "05"))
	require.NoError(t, err)
	assert.True(t, result.Applied)
	assert.Equal(t, domain.StateFailed, result.State)
	assert.Zero(t, notifier.calls.Load())
}

func TestApplyRetryableNeverMutates(t *testing.T) {
	store := NewMemoryStore()
	l := New(store, &countingNotifier{}, nil)
	trackPending(t, l, "ORD1")

	result, err := l.Apply(context.Background(), eventWithStatus("ORD1", "15"))
	require.NoError(t, err)
	assert.False(t, result.Applied)
	assert.Equal(t, domain.StatePending, result.State)
}

func TestApplyNeverLeavesTerminalState(t *testing.T) {
	store := NewMemoryStore()
	notifier := &countingNotifier{}
	l := New(store, notifier, nil)
	trackPending(t, l, "ORD1")

	_, err := l.Apply(context.Background(), eventWithStatus("ORD1", "05"))
	require.NoError(t, err)

	// No sequence of deliveries moves a failed record anywhere else.
	for _, code := range []string{"00", "05", "15"} {
		result, err := l.Apply(context.Background(), eventWithStatus("ORD1", code))
		require.NoError(t, err)
		assert.False(t, result.Applied)
		assert.Equal(t, domain.StateFailed, result.State)
	}
	assert.Zero(t, notifier.calls.Load())
}

func TestApplyUnknownCorrelationIsAuditedNotApplied(t *testing.T) {
	store := NewMemoryStore()
	l := New(store, &countingNotifier{}, nil)

	_, err := l.Apply(context.Background(), paidEvent("NOPE"))
	require.ErrorIs(t, err, ErrUnknownCorrelation)
	assert.Len(t, store.Events(), 1)
}

func TestApplyPaidSurfacesNotifierFailure(t *testing.T) {
	store := NewMemoryStore()
	notifier := &countingNotifier{fail: true}
	l := New(store, notifier, nil)
	trackPending(t, l, "ORD1")

	result, err := l.Apply(context.Background(), paidEvent("ORD1"))
	require.Error(t, err)
	assert.True(t, result.Applied, "state already moved; redelivery is a safe no-op")

	// Redelivery after the failure does not re-fire the signal.
	result, err = l.Apply(context.Background(), paidEvent("ORD1"))
	require.NoError(t, err)
	assert.False(t, result.Applied)
	assert.Equal(t, int64(1), notifier.calls.Load())
}

func TestCancelOnlyNonTerminal(t *testing.T) {
	store := NewMemoryStore()
	l := New(store, nil, nil)
	trackPending(t, l, "ORD1")

	changed, err := l.Cancel(context.Background(), "ORD1")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = l.Cancel(context.Background(), "ORD1")
	require.NoError(t, err)
	assert.False(t, changed, "cancelling a cancelled record is a no-op")
}

func TestLazyExpiryOnGet(t *testing.T) {
	store := NewMemoryStore()
	l := New(store, nil, nil)
	require.NoError(t, l.Track(context.Background(), &Record{
		Kind:           domain.KindPaymentLink,
		CorrelationKey: "LNK1",
		TranID:         "L1",
		Amount:         decimal.RequireFromString("5.00"),
		Currency:       "USD",
		ExpiresAt:      time.Now().Add(-time.Minute),
	}))

	rec, err := l.Get(context.Background(), "LNK1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateExpired, rec.State)

	// A paid record is never expired afterwards.
	trackPending(t, l, "ORD1")
	_, err = l.Apply(context.Background(), paidEvent("ORD1"))
	require.NoError(t, err)
	rec, err = l.Get(context.Background(), "ORD1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatePaid, rec.State)
}

func TestExpireDueSweep(t *testing.T) {
	store := NewMemoryStore()
	l := New(store, nil, nil)
	ctx := context.Background()

	require.NoError(t, l.Track(ctx, &Record{
		CorrelationKey: "OLD", Kind: domain.KindTransaction,
		Amount: decimal.RequireFromString("1.00"), Currency: "USD",
		ExpiresAt: time.Now().Add(-time.Hour),
	}))
	require.NoError(t, l.Track(ctx, &Record{
		CorrelationKey: "FRESH", Kind: domain.KindTransaction,
		Amount: decimal.RequireFromString("1.00"), Currency: "USD",
		ExpiresAt: time.Now().Add(time.Hour),
	}))

	moved, err := l.ExpireDue(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	rec, err := l.Get(ctx, "FRESH")
	require.NoError(t, err)
	assert.Equal(t, domain.StatePending, rec.State)
}
