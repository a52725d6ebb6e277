package gateway

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ayo6706/gateway-bridge/internal/domain"
	"github.com/shopspring/decimal"
)

// reqTimeLayout is the provider's UTC request timestamp format.
const reqTimeLayout = "20060102150405"

// maxTranIDLen is the provider-imposed ceiling on transaction identifiers.
const maxTranIDLen = 20

// Item is one cart line forwarded to the provider as base64 JSON.
type Item struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Price    string `json:"price"`
}

// PurchaseRequest describes a purchase attempt before signing. TranID is
// generated once per logical attempt and reused verbatim when the retry
// policy substitutes the payment option.
type PurchaseRequest struct {
	TranID             string
	OrderRef           string
	Amount             decimal.Decimal
	Currency           string
	Items              []Item
	Shipping           string
	Customer           domain.Customer
	Type               string
	PaymentOption      string
	ReturnURL          string
	CancelURL          string
	ContinueSuccessURL string
	ReturnDeeplink     string
	CustomFields       map[string]string
	ReturnParams       string
	Payout             string
	Lifetime           int
	AdditionalParams   string
	GooglePayToken     string
	SkipSuccessPage    bool
}

// Clone returns a deep copy safe for the retry policy to mutate.
func (r *PurchaseRequest) Clone() *PurchaseRequest {
	clone := *r
	clone.Items = append([]Item(nil), r.Items...)
	if r.CustomFields != nil {
		clone.CustomFields = make(map[string]string, len(r.CustomFields))
		for k, v := range r.CustomFields {
			clone.CustomFields[k] = v
		}
	}
	return &clone
}

// Validate rejects requests the provider would refuse, before any
// signature is computed or network call made.
func (r *PurchaseRequest) Validate() error {
	if strings.TrimSpace(r.TranID) == "" {
		return fmt.Errorf("tran_id is required")
	}
	if len(r.TranID) > maxTranIDLen {
		return fmt.Errorf("tran_id %q exceeds %d characters", r.TranID, maxTranIDLen)
	}
	if r.Amount.IsNegative() || r.Amount.IsZero() {
		return fmt.Errorf("amount must be positive")
	}
	if len(r.Currency) != 3 {
		return fmt.Errorf("currency must be a three-letter code, got %q", r.Currency)
	}
	if r.PaymentOption == "" {
		return fmt.Errorf("payment_option is required")
	}
	return nil
}

// fields flattens the request into wire field values for the canonical
// string and the multipart form. Every optional field is present with ""
// so its canonical position is preserved.
func (r *PurchaseRequest) fields(merchantID string, now time.Time) (map[string]string, error) {
	items, err := base64JSON(r.Items)
	if err != nil {
		return nil, fmt.Errorf("encode items: %w", err)
	}
	customFields, err := base64JSON(r.CustomFields)
	if err != nil {
		return nil, fmt.Errorf("encode custom_fields: %w", err)
	}

	reqType := r.Type
	if reqType == "" {
		reqType = "purchase"
	}
	lifetime := ""
	if r.Lifetime > 0 {
		lifetime = fmt.Sprintf("%d", r.Lifetime)
	}
	skipSuccess := ""
	if r.SkipSuccessPage {
		skipSuccess = "1"
	}

	return map[string]string{
		"req_time":             now.UTC().Format(reqTimeLayout),
		"merchant_id":          merchantID,
		"tran_id":              r.TranID,
		"amount":               domain.FormatAmount(r.Amount),
		"items":                items,
		"shipping":             r.Shipping,
		"firstname":            r.Customer.FirstName,
		"lastname":             r.Customer.LastName,
		"email":                r.Customer.Email,
		"phone":                r.Customer.Phone,
		"type":                 reqType,
		"payment_option":       r.PaymentOption,
		"return_url":           r.ReturnURL,
		"cancel_url":           r.CancelURL,
		"continue_success_url": r.ContinueSuccessURL,
		"return_deeplink":      r.ReturnDeeplink,
		"currency":             r.Currency,
		"custom_fields":        customFields,
		"return_params":        r.ReturnParams,
		"payout":               r.Payout,
		"lifetime":             lifetime,
		"additional_params":    r.AdditionalParams,
		"google_pay_token":     r.GooglePayToken,
		"skip_success_page":    skipSuccess,
	}, nil
}

// PaymentLinkRequest describes a payment-link create call. The structured
// payload travels RSA-chunk-encrypted inside merchant_auth.
type PaymentLinkRequest struct {
	MerchantRefNo string
	Title         string
	Description   string
	Amount        decimal.Decimal
	Currency      string
	PaymentLimit  int
	ExpiredDate   time.Time
	ReturnURL     string
	Payout        string

	// Optional link image, at most 3MB, jpg/jpeg/png.
	Image     []byte
	ImageName string
}

const maxImageBytes = 3 << 20

// Validate rejects requests before encryption or signing.
func (r *PaymentLinkRequest) Validate() error {
	if strings.TrimSpace(r.MerchantRefNo) == "" {
		return fmt.Errorf("merchant_ref_no is required")
	}
	if strings.TrimSpace(r.Title) == "" {
		return fmt.Errorf("title is required")
	}
	if r.Amount.IsNegative() || r.Amount.IsZero() {
		return fmt.Errorf("amount must be positive")
	}
	if len(r.Currency) != 3 {
		return fmt.Errorf("currency must be a three-letter code, got %q", r.Currency)
	}
	if len(r.Image) > 0 {
		if len(r.Image) > maxImageBytes {
			return fmt.Errorf("image exceeds 3MB")
		}
		ext := strings.ToLower(r.ImageName)
		if !strings.HasSuffix(ext, ".jpg") && !strings.HasSuffix(ext, ".jpeg") && !strings.HasSuffix(ext, ".png") {
			return fmt.Errorf("image must be jpg, jpeg or png")
		}
	}
	return nil
}

// authPayload is the structure the provider decrypts out of merchant_auth.
func (r *PaymentLinkRequest) authPayload(merchantID string) map[string]any {
	expired := ""
	if !r.ExpiredDate.IsZero() {
		expired = r.ExpiredDate.UTC().Format(reqTimeLayout)
	}
	return map[string]any{
		"mc_id":           merchantID,
		"title":           r.Title,
		"amount":          domain.FormatAmount(r.Amount),
		"currency":        r.Currency,
		"description":     r.Description,
		"payment_limit":   r.PaymentLimit,
		"expired_date":    expired,
		"return_url":      base64.StdEncoding.EncodeToString([]byte(r.ReturnURL)),
		"merchant_ref_no": r.MerchantRefNo,
		"payout":          r.Payout,
	}
}

func base64JSON(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	switch val := v.(type) {
	case []Item:
		if len(val) == 0 {
			return "", nil
		}
	case map[string]string:
		if len(val) == 0 {
			return "", nil
		}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
