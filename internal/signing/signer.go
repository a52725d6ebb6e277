// Package signing builds the canonical strings and credentials attached to
// every outbound gateway request: HMAC-SHA512 request hashes and the RSA
// chunk-encrypted merchant_auth blob for payment-link operations.
package signing

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoSecret is returned when the integration secret is not configured.
	ErrNoSecret = errors.New("signing: integration secret is not configured")
	// ErrUnknownOperation is returned for an operation with no field order.
	ErrUnknownOperation = errors.New("signing: unknown operation")
)

// Operation selects the canonical field order for a request type.
type Operation string

const (
	OpPurchase          Operation = "purchase"
	OpTransactionDetail Operation = "transaction_detail"
	OpPaymentLinkCreate Operation = "payment_link_create"
	OpPaymentLinkDetail Operation = "payment_link_detail"
)

// Fields holds string-formatted request field values keyed by wire name.
// Absent optional fields contribute "" to the canonical string; the field
// position is always occupied.
type Fields map[string]string

// fieldOrders fixes the concatenation order per operation. The order is part
// of the signature contract with the provider and must never be changed.
var fieldOrders = map[Operation][]string{
	OpPurchase: {
		"req_time", "merchant_id", "tran_id", "amount", "items", "shipping",
		"firstname", "lastname", "email", "phone", "type", "payment_option",
		"return_url", "cancel_url", "continue_success_url", "return_deeplink",
		"currency", "custom_fields", "return_params", "payout", "lifetime",
		"additional_params", "google_pay_token", "skip_success_page",
	},
	OpTransactionDetail: {
		"req_time", "merchant_id", "tran_id",
	},
	OpPaymentLinkCreate: {
		"request_time", "merchant_id", "merchant_auth",
	},
	OpPaymentLinkDetail: {
		"request_time", "merchant_id", "link_id",
	},
}

// Signer computes gateway request hashes keyed by the integration secret.
type Signer struct {
	secret []byte
}

// NewSigner returns a Signer for the given integration secret. The secret is
// validated at signing time so construction never fails.
func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Canonical concatenates the operation's field values in their fixed order
// with no separator. Fields not present in the map contribute "".
func Canonical(op Operation, fields Fields) (string, error) {
	order, ok := fieldOrders[op]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownOperation, op)
	}
	var b strings.Builder
	for _, name := range order {
		b.WriteString(fields[name])
	}
	return b.String(), nil
}

// FieldOrder returns the canonical field order for an operation. The slice
// is a copy; callers may not mutate the contract.
func FieldOrder(op Operation) ([]string, error) {
	order, ok := fieldOrders[op]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOperation, op)
	}
	out := make([]string, len(order))
	copy(out, order)
	return out, nil
}

// Sign computes the base64 HMAC-SHA512 digest of the canonical string for
// the operation. Identical fields and secret always produce an identical
// signature. Field content is never validated here.
func (s *Signer) Sign(op Operation, fields Fields) (string, error) {
	if len(s.secret) == 0 {
		return "", ErrNoSecret
	}
	canonical, err := Canonical(op, fields)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha512.New, s.secret)
	mac.Write([]byte(canonical))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}
