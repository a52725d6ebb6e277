// Package webhook authenticates inbound asynchronous payment notifications
// before they reach the ledger. Per-IP rate limiting sits in front of the
// handler (httprate middleware); this package owns payload and signature
// verification.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ayo6706/gateway-bridge/internal/statuscode"
)

var (
	// ErrMalformedPayload marks a body that is not valid JSON.
	ErrMalformedPayload = errors.New("webhook: malformed JSON payload")
	// ErrInvalidSignature marks an HMAC mismatch against the shared secret.
	ErrInvalidSignature = errors.New("webhook: signature mismatch")
	// ErrInvalidStructure marks a payload missing a required field.
	ErrInvalidStructure = errors.New("webhook: invalid payload structure")
)

// Event is an authenticated provider notification. CorrelationKey is the
// merchant_ref_no used to deduplicate deliveries for the same logical
// transaction.
type Event struct {
	TranID         string
	CorrelationKey string
	RawStatus      string
	Status         statuscode.Status
	Amount         string
	Currency       string
	RawPayload     []byte
	ReceivedAt     time.Time
}

// Verifier validates webhook deliveries against the configured shared
// secret. With no secret configured the signature step is skipped: the
// provider sandbox does not sign callbacks.
type Verifier struct {
	hmacKey []byte
	now     func() time.Time
}

// NewVerifier returns a verifier for the given shared secret. An empty
// secret enables sandbox mode.
func NewVerifier(hmacKey string) *Verifier {
	return &Verifier{hmacKey: []byte(hmacKey), now: time.Now}
}

// WithClock overrides the receive timestamp source. Test hook.
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	v.now = now
	return v
}

// wireStatus tolerates the provider sending the status as either a
// zero-padded string or a bare number.
type wireStatus string

func (s *wireStatus) UnmarshalJSON(data []byte) error {
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		*s = wireStatus(asString)
		return nil
	}
	var asNumber json.Number
	if err := json.Unmarshal(data, &asNumber); err != nil {
		return fmt.Errorf("status must be a string or number")
	}
	*s = wireStatus(asNumber.String())
	return nil
}

type wirePayload struct {
	TranID        string     `json:"tran_id"`
	Status        wireStatus `json:"status"`
	MerchantRefNo string     `json:"merchant_ref_no"`
	Amount        string     `json:"amount"`
	Currency      string     `json:"currency"`
}

// Verify authenticates a raw delivery and returns the normalized event.
// Rejections carry one of the package sentinel errors; callers map them to
// HTTP status codes.
func (v *Verifier) Verify(body []byte, signature string) (*Event, error) {
	var payload wirePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	if len(v.hmacKey) > 0 {
		if !v.signatureValid(body, signature) {
			return nil, ErrInvalidSignature
		}
	}

	for field, value := range map[string]string{
		"tran_id":         payload.TranID,
		"status":          string(payload.Status),
		"merchant_ref_no": payload.MerchantRefNo,
	} {
		if strings.TrimSpace(value) == "" {
			return nil, fmt.Errorf("%w: missing %s", ErrInvalidStructure, field)
		}
	}

	raw := string(payload.Status)
	return &Event{
		TranID:         payload.TranID,
		CorrelationKey: payload.MerchantRefNo,
		RawStatus:      raw,
		Status:         statuscode.Classify(raw),
		Amount:         payload.Amount,
		Currency:       payload.Currency,
		RawPayload:     append([]byte(nil), body...),
		ReceivedAt:     v.now().UTC(),
	}, nil
}

// signatureValid recomputes the HMAC-SHA256 hex digest over the raw body
// and compares in constant time. A "sha256=" prefix on the header value is
// tolerated.
func (v *Verifier) signatureValid(body []byte, signature string) bool {
	signature = strings.TrimPrefix(strings.TrimSpace(signature), "sha256=")
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, v.hmacKey)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(expected))
}
