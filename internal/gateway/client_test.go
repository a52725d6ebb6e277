package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ayo6706/gateway-bridge/internal/domain"
	"github.com/ayo6706/gateway-bridge/internal/signing"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedAttempt struct {
	paymentOption string
	hash          string
	amount        string
}

func fixedClock() time.Time {
	return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
}

func testPurchaseRequest() *PurchaseRequest {
	return &PurchaseRequest{
		TranID:        "T-0001",
		OrderRef:      "ORD1",
		Amount:        decimal.RequireFromString("10.00"),
		Currency:      "USD",
		PaymentOption: PaymentOptionQRDeeplink,
		Customer:      domain.Customer{FirstName: "Sok", LastName: "San", Email: "sok@example.com"},
		ReturnURL:     "https://shop.example.com/return",
	}
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	classifier, err := NewClassifier(baseURL)
	require.NoError(t, err)
	client := NewClient(
		Config{BaseURL: baseURL, MerchantID: "mer001", Timeout: 5 * time.Second},
		signing.NewSigner("test-secret"),
		nil,
		classifier,
		NewFallbackPolicy(),
		nil,
	)
	return client.WithClock(fixedClock)
}

func TestPurchaseFallbackRetriesExactlyOnce(t *testing.T) {
	var mu sync.Mutex
	var attempts []recordedAttempt

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(8<<20))
		mu.Lock()
		attempts = append(attempts, recordedAttempt{
			paymentOption: r.FormValue("payment_option"),
			hash:          r.FormValue("hash"),
			amount:        r.FormValue("amount"),
		})
		n := len(attempts)
		mu.Unlock()

		if n == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":{"code":"00","message":"Success"},"tran_id":"T-0001","qr_string":"QR"}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	outcome, err := client.Purchase(context.Background(), testPurchaseRequest())
	require.NoError(t, err)
	assert.True(t, outcome.Success())

	require.Len(t, attempts, 2, "exactly one retry, never a third attempt")
	assert.Equal(t, PaymentOptionQRDeeplink, attempts[0].paymentOption)
	assert.Equal(t, PaymentOptionQR, attempts[1].paymentOption)
	assert.Equal(t, "10.00", attempts[0].amount)
	// The mutated canonical string must be re-signed.
	assert.NotEqual(t, attempts[0].hash, attempts[1].hash)
	assert.NotEmpty(t, attempts[1].hash)
}

func TestPurchaseFallbackBoundOnRepeatedOutage(t *testing.T) {
	var calls int
	var mu sync.Mutex

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.Purchase(context.Background(), testPurchaseRequest())
	require.Error(t, err)
	assert.True(t, IsOutage(err))
	assert.Equal(t, 2, calls, "fallback-eligible flows get at most two attempts")
}

func TestPurchaseNonAcceleratedOptionNeverRetries(t *testing.T) {
	var calls int
	var mu sync.Mutex

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	req := testPurchaseRequest()
	req.PaymentOption = PaymentOptionCards

	_, err := client.Purchase(context.Background(), req)
	require.Error(t, err)
	assert.True(t, IsOutage(err), "outage must surface as retryable for the caller")
	assert.Equal(t, 1, calls)
}

func TestPurchaseCancellationAbortsWithoutRetry(t *testing.T) {
	var calls int
	var mu sync.Mutex

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := newTestClient(t, srv.URL)
	_, err := client.Purchase(ctx, testPurchaseRequest())
	require.Error(t, err)
	assert.Equal(t, 0, calls)
}

func TestPurchaseValidationSkipsNetwork(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for an invalid purchase")
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	req := testPurchaseRequest()
	req.TranID = "THIS-TRAN-ID-IS-FAR-TOO-LONG"
	_, err := client.Purchase(context.Background(), req)
	require.Error(t, err)

	req = testPurchaseRequest()
	req.Amount = decimal.Zero
	_, err = client.Purchase(context.Background(), req)
	require.Error(t, err)
}

func TestTransactionDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string]string
		require.NoError(t, jsonDecode(r, &body))
		assert.Equal(t, "mer001", body["merchant_id"])
		assert.Equal(t, "T-0001", body["tran_id"])
		assert.Equal(t, "20250102030405", body["req_time"])
		assert.NotEmpty(t, body["hash"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":{"code":"00"},"tran_id":"T-0001"}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	outcome, err := client.TransactionDetail(context.Background(), "T-0001")
	require.NoError(t, err)
	assert.True(t, outcome.Success())
	assert.Equal(t, "T-0001", outcome.TranID)
}

func TestCreatePaymentLink(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(8<<20))
		assert.Equal(t, "mer001", r.FormValue("merchant_id"))
		assert.NotEmpty(t, r.FormValue("merchant_auth"))
		assert.NotEmpty(t, r.FormValue("hash"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":{"code":"00"},"tran_id":"L-1"}`))
	}))
	defer srv.Close()

	classifier, err := NewClassifier(srv.URL)
	require.NoError(t, err)
	encryptor := newTestEncryptor(t)
	client := NewClient(
		Config{BaseURL: srv.URL, MerchantID: "mer001"},
		signing.NewSigner("test-secret"),
		encryptor,
		classifier,
		nil,
		nil,
	).WithClock(fixedClock)

	outcome, err := client.CreatePaymentLink(context.Background(), &PaymentLinkRequest{
		MerchantRefNo: "ORD1",
		Title:         "Invoice 42",
		Amount:        decimal.RequireFromString("25.50"),
		Currency:      "USD",
		ExpiredDate:   fixedClock().Add(24 * time.Hour),
		ReturnURL:     "https://shop.example.com/return",
	})
	require.NoError(t, err)
	assert.True(t, outcome.Success())
}

func TestCreatePaymentLinkRequiresPublicKey(t *testing.T) {
	classifier, err := NewClassifier("https://checkout.provider.example")
	require.NoError(t, err)
	client := NewClient(Config{BaseURL: "https://checkout.provider.example", MerchantID: "mer001"},
		signing.NewSigner("test-secret"), nil, classifier, nil, nil)

	_, err = client.CreatePaymentLink(context.Background(), &PaymentLinkRequest{
		MerchantRefNo: "ORD1",
		Title:         "Invoice",
		Amount:        decimal.RequireFromString("1.00"),
		Currency:      "USD",
	})
	require.ErrorIs(t, err, ErrNoPublicKey)
}

func TestCreatePaymentLinkImageValidation(t *testing.T) {
	client := NewClient(Config{BaseURL: "https://x.example", MerchantID: "mer001"},
		signing.NewSigner("test-secret"), newTestEncryptor(t), nil, nil, nil)

	req := &PaymentLinkRequest{
		MerchantRefNo: "ORD1",
		Title:         "Invoice",
		Amount:        decimal.RequireFromString("1.00"),
		Currency:      "USD",
		Image:         []byte{0x1},
		ImageName:     "logo.gif",
	}
	_, err := client.CreatePaymentLink(context.Background(), req)
	require.Error(t, err)
}
