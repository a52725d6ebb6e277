package worker

import (
	"context"
	"testing"
	"time"

	"github.com/ayo6706/gateway-bridge/internal/domain"
	"github.com/ayo6706/gateway-bridge/internal/ledger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessOnceExpiresOverdueRecords(t *testing.T) {
	store := ledger.NewMemoryStore()
	l := ledger.New(store, nil, nil)
	ctx := context.Background()

	require.NoError(t, l.Track(ctx, &ledger.Record{
		Kind: domain.KindTransaction, CorrelationKey: "OLD",
		Amount: decimal.RequireFromString("1.00"), Currency: "USD",
		ExpiresAt: time.Now().Add(-time.Hour),
	}))
	require.NoError(t, l.Track(ctx, &ledger.Record{
		Kind: domain.KindTransaction, CorrelationKey: "FRESH",
		Amount: decimal.RequireFromString("1.00"), Currency: "USD",
		ExpiresAt: time.Now().Add(time.Hour),
	}))

	w := NewExpirySweeper(l, nil).WithBatchSize(10)
	moved, err := w.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	rec, err := store.FindByCorrelationKey(ctx, "OLD")
	require.NoError(t, err)
	assert.Equal(t, domain.StateExpired, rec.State)
}

func TestSweeperStops(t *testing.T) {
	store := ledger.NewMemoryStore()
	l := ledger.New(store, nil, nil)

	w := NewExpirySweeper(l, nil).WithPollInterval(10 * time.Millisecond)
	stop := w.Run(context.Background())

	time.Sleep(30 * time.Millisecond)
	stop()
}
