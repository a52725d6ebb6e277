// Package service orchestrates the outbound gateway calls against the
// local ledger: records are tracked before the provider sees a request,
// and synchronous outcomes move them through the same transition table
// the webhook path uses.
package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ayo6706/gateway-bridge/internal/checkout"
	"github.com/ayo6706/gateway-bridge/internal/domain"
	"github.com/ayo6706/gateway-bridge/internal/gateway"
	"github.com/ayo6706/gateway-bridge/internal/ledger"
	"github.com/ayo6706/gateway-bridge/internal/statuscode"
	"github.com/ayo6706/gateway-bridge/internal/webhook"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ValidationError marks caller input the provider would refuse. Handlers
// map it to 400.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return e.Err.Error() }
func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(format string, args ...any) error {
	return &ValidationError{Err: fmt.Errorf(format, args...)}
}

// PaymentService drives purchases and payment links end to end.
type PaymentService struct {
	gw          *gateway.Client
	ledger      *ledger.Ledger
	docs        checkout.DocumentStore
	checkoutTTL time.Duration
	logger      *zap.Logger
}

// NewPaymentService wires the service. docs may be nil when hosted
// checkout is not served locally.
func NewPaymentService(gw *gateway.Client, l *ledger.Ledger, docs checkout.DocumentStore, checkoutTTL time.Duration, logger *zap.Logger) *PaymentService {
	if checkoutTTL <= 0 {
		checkoutTTL = checkout.DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentService{gw: gw, ledger: l, docs: docs, checkoutTTL: checkoutTTL, logger: logger}
}

// PurchaseInput is the merchant-facing purchase request.
type PurchaseInput struct {
	OrderRef           string            `json:"order_ref"`
	Amount             string            `json:"amount"`
	Currency           string            `json:"currency"`
	PaymentOption      string            `json:"payment_option"`
	Items              []gateway.Item    `json:"items,omitempty"`
	Shipping           string            `json:"shipping,omitempty"`
	Customer           domain.Customer   `json:"customer,omitempty"`
	ReturnURL          string            `json:"return_url,omitempty"`
	CancelURL          string            `json:"cancel_url,omitempty"`
	ContinueSuccessURL string            `json:"continue_success_url,omitempty"`
	ReturnDeeplink     string            `json:"return_deeplink,omitempty"`
	CustomFields       map[string]string `json:"custom_fields,omitempty"`
	ReturnParams       string            `json:"return_params,omitempty"`
	GooglePayToken     string            `json:"google_pay_token,omitempty"`
	LifetimeMinutes    int               `json:"lifetime_minutes,omitempty"`
	SkipSuccessPage    bool              `json:"skip_success_page,omitempty"`
}

// PurchaseResult is what the merchant gets back from a purchase attempt.
type PurchaseResult struct {
	TranID        string `json:"tran_id"`
	OrderRef      string `json:"order_ref"`
	State         string `json:"state"`
	StatusCode    string `json:"status_code"`
	Message       string `json:"message"`
	QRString      string `json:"qr_string,omitempty"`
	Deeplink      string `json:"deeplink,omitempty"`
	CheckoutURL   string `json:"checkout_url,omitempty"`
	CheckoutToken string `json:"checkout_token,omitempty"`
}

// Purchase tracks a pending record, signs and sends the purchase, and
// applies the synchronous outcome. The record is created before the
// network call so a webhook racing the response still finds it.
func (s *PaymentService) Purchase(ctx context.Context, in *PurchaseInput) (*PurchaseResult, error) {
	if strings.TrimSpace(in.OrderRef) == "" {
		return nil, invalid("order_ref is required")
	}
	amount, err := domain.ParseAmount(in.Amount)
	if err != nil {
		return nil, &ValidationError{Err: err}
	}

	tranID := newTranID()
	var expiresAt time.Time
	if in.LifetimeMinutes > 0 {
		expiresAt = time.Now().UTC().Add(time.Duration(in.LifetimeMinutes) * time.Minute)
	}

	req := &gateway.PurchaseRequest{
		TranID:             tranID,
		OrderRef:           in.OrderRef,
		Amount:             amount,
		Currency:           strings.ToUpper(in.Currency),
		Items:              in.Items,
		Shipping:           in.Shipping,
		Customer:           in.Customer,
		PaymentOption:      in.PaymentOption,
		ReturnURL:          in.ReturnURL,
		CancelURL:          in.CancelURL,
		ContinueSuccessURL: in.ContinueSuccessURL,
		ReturnDeeplink:     in.ReturnDeeplink,
		CustomFields:       in.CustomFields,
		ReturnParams:       in.ReturnParams,
		GooglePayToken:     in.GooglePayToken,
		Lifetime:           in.LifetimeMinutes,
		SkipSuccessPage:    in.SkipSuccessPage,
	}
	if err := req.Validate(); err != nil {
		return nil, &ValidationError{Err: err}
	}

	if err := s.ledger.Track(ctx, &ledger.Record{
		Kind:           domain.KindTransaction,
		CorrelationKey: in.OrderRef,
		TranID:         tranID,
		Amount:         amount,
		Currency:       strings.ToUpper(in.Currency),
		PaymentOption:  in.PaymentOption,
		ExpiresAt:      expiresAt,
	}); err != nil {
		return nil, fmt.Errorf("track purchase: %w", err)
	}

	outcome, err := s.gw.Purchase(ctx, req)
	if err != nil {
		// The pending record stays; a late webhook or a confirm query can
		// still settle it.
		return nil, fmt.Errorf("gateway purchase: %w", err)
	}

	result := &PurchaseResult{
		TranID:      tranID,
		OrderRef:    in.OrderRef,
		StatusCode:  outcome.Code,
		Message:     outcome.Message,
		QRString:    outcome.QRString,
		Deeplink:    outcome.Deeplink,
		CheckoutURL: outcome.CheckoutURL,
	}

	switch outcome.Category {
	case statuscode.CategorySuccess:
		if err := s.ledger.MarkProcessing(ctx, in.OrderRef); err != nil {
			s.logger.Warn("mark processing failed", zap.String("order_ref", in.OrderRef), zap.Error(err))
		}
	case statuscode.CategoryFatal:
		if err := s.ledger.MarkFailed(ctx, in.OrderRef); err != nil {
			s.logger.Warn("mark failed failed", zap.String("order_ref", in.OrderRef), zap.Error(err))
		}
	}

	if outcome.Kind == gateway.KindHTML && len(outcome.CheckoutDoc) > 0 && s.docs != nil {
		token := uuid.NewString()
		if err := s.docs.Put(ctx, token, outcome.CheckoutDoc, s.checkoutTTL); err != nil {
			s.logger.Warn("store checkout document failed", zap.String("tran_id", tranID), zap.Error(err))
		} else {
			result.CheckoutToken = token
		}
	}

	rec, err := s.ledger.Get(ctx, in.OrderRef)
	if err != nil {
		return nil, fmt.Errorf("reload record: %w", err)
	}
	result.State = rec.State
	return result, nil
}

// PaymentLinkInput is the merchant-facing payment-link create request.
type PaymentLinkInput struct {
	MerchantRefNo string `json:"merchant_ref_no"`
	Title         string `json:"title"`
	Description   string `json:"description,omitempty"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	PaymentLimit  int    `json:"payment_limit,omitempty"`
	ExpiredDate   string `json:"expired_date,omitempty"`
	ReturnURL     string `json:"return_url,omitempty"`
	Payout        string `json:"payout,omitempty"`

	Image     []byte `json:"image,omitempty"`
	ImageName string `json:"image_name,omitempty"`
}

// PaymentLinkResult is the created link as seen by the merchant.
type PaymentLinkResult struct {
	LinkID      string `json:"link_id"`
	OrderRef    string `json:"order_ref"`
	State       string `json:"state"`
	StatusCode  string `json:"status_code"`
	Message     string `json:"message"`
	CheckoutURL string `json:"checkout_url,omitempty"`
}

const expiredDateLayout = "2006-01-02T15:04:05Z"

// CreatePaymentLink creates a provider-hosted payment link and tracks it
// under the merchant reference. The link identifier is provider-assigned,
// so the record is persisted once the create call is accepted.
func (s *PaymentService) CreatePaymentLink(ctx context.Context, in *PaymentLinkInput) (*PaymentLinkResult, error) {
	amount, err := domain.ParseAmount(in.Amount)
	if err != nil {
		return nil, &ValidationError{Err: err}
	}
	var expired time.Time
	if in.ExpiredDate != "" {
		expired, err = time.Parse(expiredDateLayout, in.ExpiredDate)
		if err != nil {
			return nil, invalid("invalid expired_date %q, want RFC3339 UTC", in.ExpiredDate)
		}
	}

	req := &gateway.PaymentLinkRequest{
		MerchantRefNo: in.MerchantRefNo,
		Title:         in.Title,
		Description:   in.Description,
		Amount:        amount,
		Currency:      strings.ToUpper(in.Currency),
		PaymentLimit:  in.PaymentLimit,
		ExpiredDate:   expired,
		ReturnURL:     in.ReturnURL,
		Payout:        in.Payout,
		Image:         in.Image,
		ImageName:     in.ImageName,
	}

	if err := req.Validate(); err != nil {
		return nil, &ValidationError{Err: err}
	}

	outcome, err := s.gw.CreatePaymentLink(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("gateway payment-link create: %w", err)
	}

	result := &PaymentLinkResult{
		LinkID:      outcome.TranID,
		OrderRef:    in.MerchantRefNo,
		StatusCode:  outcome.Code,
		Message:     outcome.Message,
		CheckoutURL: outcome.CheckoutURL,
	}
	if !outcome.Success() {
		result.State = domain.StateFailed
		return result, nil
	}

	if err := s.ledger.Track(ctx, &ledger.Record{
		Kind:           domain.KindPaymentLink,
		CorrelationKey: in.MerchantRefNo,
		TranID:         outcome.TranID,
		Title:          in.Title,
		Amount:         amount,
		Currency:       strings.ToUpper(in.Currency),
		ExpiresAt:      expired,
	}); err != nil {
		return nil, fmt.Errorf("track payment link: %w", err)
	}
	result.State = domain.StatePending
	return result, nil
}

// Transaction returns the local view of a transaction. With confirm set,
// the authoritative provider status is queried first and reconciled
// through the same idempotent path webhooks use.
func (s *PaymentService) Transaction(ctx context.Context, tranID string, confirm bool) (*ledger.Record, error) {
	rec, err := s.ledger.GetByTranID(ctx, tranID)
	if err != nil {
		return nil, err
	}
	if !confirm || domain.IsTerminal(rec.State) {
		return rec, nil
	}

	outcome, err := s.gw.TransactionDetail(ctx, tranID)
	if err != nil {
		// The local view is still valid; confirmation is best effort.
		s.logger.Warn("transaction detail query failed", zap.String("tran_id", tranID), zap.Error(err))
		return rec, nil
	}
	if err := s.reconcile(ctx, rec, outcome); err != nil {
		return nil, err
	}
	return s.ledger.GetByTranID(ctx, tranID)
}

// PaymentLink returns the local view of a payment link, optionally
// confirmed against the provider.
func (s *PaymentService) PaymentLink(ctx context.Context, linkID string, confirm bool) (*ledger.Record, error) {
	rec, err := s.ledger.GetByTranID(ctx, linkID)
	if err != nil {
		return nil, err
	}
	if !confirm || domain.IsTerminal(rec.State) {
		return rec, nil
	}

	outcome, err := s.gw.PaymentLinkDetail(ctx, linkID)
	if err != nil {
		s.logger.Warn("payment-link detail query failed", zap.String("link_id", linkID), zap.Error(err))
		return rec, nil
	}
	if err := s.reconcile(ctx, rec, outcome); err != nil {
		return nil, err
	}
	return s.ledger.GetByTranID(ctx, linkID)
}

// reconcile feeds a synchronous detail outcome through the ledger as if it
// were a verified notification, reusing the exactly-once transition logic.
func (s *PaymentService) reconcile(ctx context.Context, rec *ledger.Record, outcome *gateway.Outcome) error {
	payload, _ := json.Marshal(map[string]string{
		"tran_id":         rec.TranID,
		"status":          outcome.Code,
		"merchant_ref_no": rec.CorrelationKey,
		"source":          "detail_query",
	})
	_, err := s.ledger.Apply(ctx, &webhook.Event{
		TranID:         rec.TranID,
		CorrelationKey: rec.CorrelationKey,
		RawStatus:      outcome.Code,
		Status:         statuscode.Classify(outcome.Code),
		RawPayload:     payload,
		ReceivedAt:     time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("reconcile %s: %w", rec.TranID, err)
	}
	return nil
}

// CancelTransaction cancels a pending or processing purchase by its
// transaction identifier. Cancelling a settled record is a no-op.
func (s *PaymentService) CancelTransaction(ctx context.Context, tranID string) (*ledger.Record, bool, error) {
	return s.cancelByTranID(ctx, tranID)
}

// CancelPaymentLink cancels a link by its provider-assigned identifier.
func (s *PaymentService) CancelPaymentLink(ctx context.Context, linkID string) (*ledger.Record, bool, error) {
	return s.cancelByTranID(ctx, linkID)
}

func (s *PaymentService) cancelByTranID(ctx context.Context, tranID string) (*ledger.Record, bool, error) {
	rec, err := s.ledger.GetByTranID(ctx, tranID)
	if err != nil {
		return nil, false, err
	}
	changed, err := s.ledger.Cancel(ctx, rec.CorrelationKey)
	if err != nil {
		return nil, false, err
	}
	rec, err = s.ledger.GetByTranID(ctx, tranID)
	if err != nil {
		return nil, false, err
	}
	return rec, changed, nil
}

// CheckoutDocument loads a stored checkout page by token.
func (s *PaymentService) CheckoutDocument(ctx context.Context, token string) ([]byte, error) {
	if s.docs == nil {
		return nil, checkout.ErrNotFound
	}
	return s.docs.Get(ctx, token)
}

// newTranID generates a provider-safe transaction identifier: 20 upper-hex
// characters, within the provider's length ceiling.
func newTranID() string {
	var buf [10]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand never fails on supported platforms; fall back to a
		// uuid-derived id rather than panic in the request path.
		return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:20]
	}
	return strings.ToUpper(hex.EncodeToString(buf[:]))
}
