package service_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ayo6706/gateway-bridge/internal/checkout"
	"github.com/ayo6706/gateway-bridge/internal/domain"
	"github.com/ayo6706/gateway-bridge/internal/gateway"
	"github.com/ayo6706/gateway-bridge/internal/ledger"
	"github.com/ayo6706/gateway-bridge/internal/service"
	"github.com/ayo6706/gateway-bridge/internal/signing"
	"go.uber.org/zap"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	svc    *service.PaymentService
	store  *ledger.MemoryStore
	docs   *checkout.MemoryStore
	server *httptest.Server
}

func newFixture(t *testing.T, handler http.Handler, encryptor *signing.Encryptor) *fixture {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	classifier, err := gateway.NewClassifier("https://checkout.provider.example")
	require.NoError(t, err)

	client := gateway.NewClient(gateway.Config{
		BaseURL:    srv.URL,
		MerchantID: "mer001",
	}, signing.NewSigner("integration-test-secret"), encryptor, classifier, gateway.NewFallbackPolicy(), zap.NewNop())

	store := ledger.NewMemoryStore()
	docs := checkout.NewMemoryStore(time.Minute)
	t.Cleanup(docs.Close)

	l := ledger.New(store, nil, nil)
	return &fixture{
		svc:    service.NewPaymentService(client, l, docs, time.Minute, zap.NewNop()),
		store:  store,
		docs:   docs,
		server: srv,
	}
}

func jsonResponse(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(body))
}

func purchaseInput() *service.PurchaseInput {
	return &service.PurchaseInput{
		OrderRef:      "ORD1",
		Amount:        "10.00",
		Currency:      "usd",
		PaymentOption: "qr",
	}
}

func TestPurchaseSuccessMarksProcessing(t *testing.T) {
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		jsonResponse(w, `{"status":{"code":"00","message":"Success"},"qr_string":"000201qr"}`)
	}), nil)

	result, err := f.svc.Purchase(context.Background(), purchaseInput())
	require.NoError(t, err)

	assert.Equal(t, domain.StateProcessing, result.State)
	assert.Equal(t, "00", result.StatusCode)
	assert.Equal(t, "000201qr", result.QRString)
	assert.Len(t, result.TranID, 20)
	assert.Equal(t, "USD", mustGet(t, f, "ORD1").Currency)
}

func TestPurchaseFatalMarksFailed(t *testing.T) {
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		jsonResponse(w, `{"status":{"code":"05","message":"Transaction not found"}}`)
	}), nil)

	result, err := f.svc.Purchase(context.Background(), purchaseInput())
	require.NoError(t, err)

	assert.Equal(t, domain.StateFailed, result.State)
	assert.Equal(t, "05", result.StatusCode)
}

func TestPurchaseRetryableLeavesPending(t *testing.T) {
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		jsonResponse(w, `{"status":{"code":"15","message":"Gateway temporarily unavailable"}}`)
	}), nil)

	result, err := f.svc.Purchase(context.Background(), purchaseInput())
	require.NoError(t, err)

	assert.Equal(t, domain.StatePending, result.State)
}

func TestPurchaseOutageKeepsPendingRecord(t *testing.T) {
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}), nil)

	_, err := f.svc.Purchase(context.Background(), purchaseInput())
	require.Error(t, err)
	assert.True(t, gateway.IsOutage(err))

	// The pending record survives for late webhooks or confirm queries.
	assert.Equal(t, domain.StatePending, mustGet(t, f, "ORD1").State)
}

func TestPurchaseStoresCheckoutDocument(t *testing.T) {
	const page = `<!DOCTYPE html><html><head><title>Checkout</title></head><body>` +
		`<form action="/pay/confirm"><input type="hidden" name="tran_id" value="T42"/></form>` +
		`</body></html>`
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(page))
	}), nil)

	result, err := f.svc.Purchase(context.Background(), purchaseInput())
	require.NoError(t, err)
	require.NotEmpty(t, result.CheckoutToken)

	doc, err := f.svc.CheckoutDocument(context.Background(), result.CheckoutToken)
	require.NoError(t, err)
	assert.Contains(t, string(doc), "https://checkout.provider.example/pay/confirm")
}

func TestPurchaseValidationRejectedBeforeNetwork(t *testing.T) {
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("gateway must not be called for invalid input")
	}), nil)

	cases := []*service.PurchaseInput{
		{OrderRef: "", Amount: "10.00", Currency: "USD", PaymentOption: "qr"},
		{OrderRef: "ORD1", Amount: "0", Currency: "USD", PaymentOption: "qr"},
		{OrderRef: "ORD1", Amount: "10.123", Currency: "USD", PaymentOption: "qr"},
		{OrderRef: "ORD1", Amount: "10.00", Currency: "USDX", PaymentOption: "qr"},
		{OrderRef: "ORD1", Amount: "10.00", Currency: "USD", PaymentOption: ""},
	}
	for _, in := range cases {
		_, err := f.svc.Purchase(context.Background(), in)
		var validation *service.ValidationError
		require.ErrorAs(t, err, &validation)
	}
}

func TestTransactionConfirmReconcilesPaid(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/merchant/purchase", func(w http.ResponseWriter, r *http.Request) {
		jsonResponse(w, `{"status":{"code":"00","message":"Success"},"qr_string":"000201qr"}`)
	})
	mux.HandleFunc("/api/merchant/transaction-detail", func(w http.ResponseWriter, r *http.Request) {
		jsonResponse(w, `{"status":{"code":"00","message":"Success"}}`)
	})
	f := newFixture(t, mux, nil)

	result, err := f.svc.Purchase(context.Background(), purchaseInput())
	require.NoError(t, err)
	require.Equal(t, domain.StateProcessing, result.State)

	rec, err := f.svc.Transaction(context.Background(), result.TranID, true)
	require.NoError(t, err)
	assert.Equal(t, domain.StatePaid, rec.State)
	require.NotNil(t, rec.PaidAt)

	// A second confirm is a no-op on the terminal record.
	rec, err = f.svc.Transaction(context.Background(), result.TranID, true)
	require.NoError(t, err)
	assert.Equal(t, domain.StatePaid, rec.State)
}

func TestTransactionConfirmFailureKeepsLocalView(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/merchant/purchase", func(w http.ResponseWriter, r *http.Request) {
		jsonResponse(w, `{"status":{"code":"00","message":"Success"}}`)
	})
	mux.HandleFunc("/api/merchant/transaction-detail", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	f := newFixture(t, mux, nil)

	result, err := f.svc.Purchase(context.Background(), purchaseInput())
	require.NoError(t, err)

	rec, err := f.svc.Transaction(context.Background(), result.TranID, true)
	require.NoError(t, err)
	assert.Equal(t, domain.StateProcessing, rec.State)
}

func TestCreatePaymentLinkTracksRecord(t *testing.T) {
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		jsonResponse(w, `{"status":{"code":"00","message":"Success"},"tran_id":"LNK123","checkout_url":"https://pay.example/l/LNK123"}`)
	}), newTestEncryptor(t))

	result, err := f.svc.CreatePaymentLink(context.Background(), &service.PaymentLinkInput{
		MerchantRefNo: "REF9",
		Title:         "Invoice 9",
		Amount:        "25.00",
		Currency:      "usd",
		ExpiredDate:   "2026-12-31T23:59:59Z",
	})
	require.NoError(t, err)

	assert.Equal(t, "LNK123", result.LinkID)
	assert.Equal(t, domain.StatePending, result.State)
	assert.Equal(t, "https://pay.example/l/LNK123", result.CheckoutURL)

	rec, err := f.svc.PaymentLink(context.Background(), "LNK123", false)
	require.NoError(t, err)
	assert.Equal(t, domain.KindPaymentLink, rec.Kind)
	assert.Equal(t, "REF9", rec.CorrelationKey)

	rec, changed, err := f.svc.CancelPaymentLink(context.Background(), "LNK123")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, domain.StateCancelled, rec.State)
}

func TestCreatePaymentLinkRejectedByProviderIsNotTracked(t *testing.T) {
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		jsonResponse(w, `{"status":{"code":"21","message":"Payment link limit reached"}}`)
	}), newTestEncryptor(t))

	result, err := f.svc.CreatePaymentLink(context.Background(), &service.PaymentLinkInput{
		MerchantRefNo: "REF9",
		Title:         "Invoice 9",
		Amount:        "25.00",
		Currency:      "USD",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StateFailed, result.State)
	assert.Equal(t, "21", result.StatusCode)

	_, err = f.store.FindByCorrelationKey(context.Background(), "REF9")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestCancelTransaction(t *testing.T) {
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		jsonResponse(w, `{"status":{"code":"00","message":"Success"}}`)
	}), nil)

	result, err := f.svc.Purchase(context.Background(), purchaseInput())
	require.NoError(t, err)

	rec, changed, err := f.svc.CancelTransaction(context.Background(), result.TranID)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, domain.StateCancelled, rec.State)

	rec, changed, err = f.svc.CancelTransaction(context.Background(), result.TranID)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, domain.StateCancelled, rec.State)
}

func mustGet(t *testing.T, f *fixture, key string) *ledger.Record {
	t.Helper()
	rec, err := f.store.FindByCorrelationKey(context.Background(), key)
	require.NoError(t, err)
	return rec
}

func newTestEncryptor(t *testing.T) *signing.Encryptor {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pemData := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
	enc, err := signing.NewEncryptor(pemData)
	require.NoError(t, err)
	return enc
}
