// Package gateway issues signed requests to the payment provider and
// normalizes its heterogeneous responses into a uniform Outcome.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/ayo6706/gateway-bridge/internal/observability"
	"github.com/ayo6706/gateway-bridge/internal/signing"
	"go.uber.org/zap"
)

const (
	defaultTimeout   = 30 * time.Second
	maxResponseBytes = 8 << 20

	purchasePath          = "/api/merchant/purchase"
	paymentLinkPath       = "/api/merchant/payment-link"
	transactionDetailPath = "/api/merchant/transaction-detail"
	paymentLinkDetailPath = "/api/merchant/payment-link-detail"
)

// ErrNoPublicKey is returned when a payment-link call is attempted without
// a configured RSA public key.
var ErrNoPublicKey = errors.New("gateway: payment-link public key is not configured")

// Config carries the client's connection settings.
type Config struct {
	BaseURL    string
	MerchantID string
	Timeout    time.Duration
}

// Client is the outbound integration with the payment provider. It owns
// per-call timeouts and the bounded retry/fallback policy; it never mutates
// ledger state, callers interpret the returned Outcome.
type Client struct {
	httpClient *http.Client
	baseURL    string
	merchantID string
	signer     *signing.Signer
	encryptor  *signing.Encryptor
	classifier *Classifier
	policy     RetryPolicy
	timeout    time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

// NewClient wires a gateway client. encryptor may be nil when payment
// links are not used; policy defaults to the documented fallback policy.
func NewClient(cfg Config, signer *signing.Signer, encryptor *signing.Encryptor, classifier *Classifier, policy RetryPolicy, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if policy == nil {
		policy = NewFallbackPolicy()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		merchantID: cfg.MerchantID,
		signer:     signer,
		encryptor:  encryptor,
		classifier: classifier,
		policy:     policy,
		timeout:    timeout,
		logger:     logger,
		now:        time.Now,
	}
}

// WithClock overrides the request timestamp source. Test hook.
func (c *Client) WithClock(now func() time.Time) *Client {
	c.now = now
	return c
}

// Purchase signs and sends a purchase request. On a transport outage the
// retry policy may substitute the payment option and resign exactly once;
// there is never a third attempt. Context cancellation aborts the in-flight
// call with no retry.
func (c *Client) Purchase(ctx context.Context, req *PurchaseRequest) (*Outcome, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid purchase request: %w", err)
	}

	current := req
	for attempt := 1; ; attempt++ {
		outcome, err := c.sendPurchase(ctx, current)
		if err == nil {
			return outcome, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
		mutated, ok := c.policy.Rewrite(current, attempt, err)
		if !ok {
			return nil, err
		}
		c.logger.Warn("gateway outage, retrying with fallback payment option",
			zap.String("tran_id", current.TranID),
			zap.String("from_option", current.PaymentOption),
			zap.String("to_option", mutated.PaymentOption),
			zap.Int("attempt", attempt),
		)
		observability.IncrementGatewayRetry("purchase")
		current = mutated
	}
}

func (c *Client) sendPurchase(ctx context.Context, req *PurchaseRequest) (*Outcome, error) {
	fields, err := req.fields(c.merchantID, c.now())
	if err != nil {
		return nil, err
	}
	hash, err := c.signer.Sign(signing.OpPurchase, signing.Fields(fields))
	if err != nil {
		return nil, fmt.Errorf("sign purchase: %w", err)
	}
	fields["hash"] = hash
	return c.postMultipart(ctx, "purchase", purchasePath, fields, nil)
}

// CreatePaymentLink encrypts the structured payload into merchant_auth,
// signs over request_time+merchant_id+merchant_auth, and sends the
// multipart request with the optional link image.
func (c *Client) CreatePaymentLink(ctx context.Context, req *PaymentLinkRequest) (*Outcome, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid payment-link request: %w", err)
	}
	if c.encryptor == nil {
		return nil, ErrNoPublicKey
	}

	auth, err := c.encryptor.Encrypt(req.authPayload(c.merchantID))
	if err != nil {
		return nil, fmt.Errorf("encrypt merchant_auth: %w", err)
	}

	fields := map[string]string{
		"request_time":  c.now().UTC().Format(reqTimeLayout),
		"merchant_id":   c.merchantID,
		"merchant_auth": auth,
	}
	hash, err := c.signer.Sign(signing.OpPaymentLinkCreate, signing.Fields(fields))
	if err != nil {
		return nil, fmt.Errorf("sign payment-link create: %w", err)
	}
	fields["hash"] = hash

	var file *filePart
	if len(req.Image) > 0 {
		file = &filePart{field: "image", name: req.ImageName, data: req.Image}
	}
	return c.postMultipart(ctx, "payment_link_create", paymentLinkPath, fields, file)
}

// TransactionDetail queries the authoritative status of a transaction.
// Return-URL flows use this to confirm outcomes independently of webhooks.
func (c *Client) TransactionDetail(ctx context.Context, tranID string) (*Outcome, error) {
	if strings.TrimSpace(tranID) == "" {
		return nil, fmt.Errorf("tran_id is required")
	}

	fields := signing.Fields{
		"req_time":    c.now().UTC().Format(reqTimeLayout),
		"merchant_id": c.merchantID,
		"tran_id":     tranID,
	}
	hash, err := c.signer.Sign(signing.OpTransactionDetail, fields)
	if err != nil {
		return nil, fmt.Errorf("sign transaction detail: %w", err)
	}

	return c.postJSON(ctx, "transaction_detail", transactionDetailPath, map[string]string{
		"req_time":    fields["req_time"],
		"merchant_id": fields["merchant_id"],
		"tran_id":     tranID,
		"hash":        hash,
	})
}

// PaymentLinkDetail queries the current state of a payment link.
func (c *Client) PaymentLinkDetail(ctx context.Context, linkID string) (*Outcome, error) {
	if strings.TrimSpace(linkID) == "" {
		return nil, fmt.Errorf("link_id is required")
	}

	fields := signing.Fields{
		"request_time": c.now().UTC().Format(reqTimeLayout),
		"merchant_id":  c.merchantID,
		"link_id":      linkID,
	}
	hash, err := c.signer.Sign(signing.OpPaymentLinkDetail, fields)
	if err != nil {
		return nil, fmt.Errorf("sign payment-link detail: %w", err)
	}

	return c.postJSON(ctx, "payment_link_detail", paymentLinkDetailPath, map[string]string{
		"request_time": fields["request_time"],
		"merchant_id":  fields["merchant_id"],
		"link_id":      linkID,
		"hash":         hash,
	})
}

type filePart struct {
	field string
	name  string
	data  []byte
}

func (c *Client) postMultipart(ctx context.Context, operation, path string, fields map[string]string, file *filePart) (*Outcome, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := mw.WriteField(name, fields[name]); err != nil {
			return nil, fmt.Errorf("write multipart field %s: %w", name, err)
		}
	}
	if file != nil {
		fw, err := mw.CreateFormFile(file.field, file.name)
		if err != nil {
			return nil, fmt.Errorf("create multipart file: %w", err)
		}
		if _, err := fw.Write(file.data); err != nil {
			return nil, fmt.Errorf("write multipart file: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("finalize multipart body: %w", err)
	}

	return c.send(ctx, operation, path, mw.FormDataContentType(), &body)
}

func (c *Client) postJSON(ctx context.Context, operation, path string, payload any) (*Outcome, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", operation, err)
	}
	return c.send(ctx, operation, path, "application/json", bytes.NewReader(raw))
}

func (c *Client) send(ctx context.Context, operation, path, contentType string, body io.Reader) (*Outcome, error) {
	start := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		observability.ObserveGateway(operation, "transport_error", time.Since(start))
		if ctx.Err() != nil {
			return nil, fmt.Errorf("gateway call canceled: %w", ctx.Err())
		}
		return nil, &OutageError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		observability.ObserveGateway(operation, "transport_error", time.Since(start))
		return nil, &OutageError{Err: fmt.Errorf("read response body: %w", err)}
	}

	if outageStatus(resp.StatusCode) {
		observability.ObserveGateway(operation, "outage", time.Since(start))
		return nil, &OutageError{StatusCode: resp.StatusCode}
	}

	outcome, err := c.classifier.Classify(resp.Header.Get("Content-Type"), raw)
	if err != nil {
		observability.ObserveGateway(operation, "unrecognized", time.Since(start))
		return nil, err
	}

	observability.ObserveGateway(operation, string(outcome.Category), time.Since(start))
	return outcome, nil
}
