package gateway

import (
	"errors"
	"fmt"

	"github.com/ayo6706/gateway-bridge/internal/statuscode"
)

// Outcome kinds produced by the classifier.
const (
	KindJSON  = "json"
	KindHTML  = "html"
	KindError = "error"
)

// ErrUnrecognizedResponse is returned when a provider response matches
// neither JSON nor a plausible checkout/error HTML shape.
var ErrUnrecognizedResponse = errors.New("gateway: unrecognized response shape")

// Outcome is the normalized result of a gateway call. Exactly one of the
// payload fields is meaningful depending on Kind: JSON outcomes carry the
// QR/deeplink/checkout references, HTML outcomes carry the sanitized
// checkout document, error outcomes carry a best-effort message only.
type Outcome struct {
	Kind     string              `json:"kind"`
	Code     string              `json:"code"`
	Message  string              `json:"message"`
	Category statuscode.Category `json:"category"`

	TranID      string `json:"tran_id,omitempty"`
	QRString    string `json:"qr_string,omitempty"`
	Deeplink    string `json:"deeplink,omitempty"`
	CheckoutURL string `json:"checkout_url,omitempty"`

	// CheckoutDoc is the sanitized, embeddable checkout document for HTML
	// outcomes. It is an opaque artifact; the authoritative outcome always
	// comes from a status-code-bearing response.
	CheckoutDoc []byte `json:"-"`

	// Retryable mirrors the status category for callers that only need
	// the retry decision.
	Retryable bool `json:"retryable"`
}

// Success reports whether the outcome carries the approved status code.
func (o *Outcome) Success() bool {
	return o.Category == statuscode.CategorySuccess
}

// OutageError marks a transport-level gateway outage: connection failures,
// timeouts and 502/503/520-class responses. Outages are the only errors the
// retry policy may act on.
type OutageError struct {
	StatusCode int
	Err        error
}

func (e *OutageError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("gateway outage: upstream returned HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("gateway outage: %v", e.Err)
}

func (e *OutageError) Unwrap() error { return e.Err }

// IsOutage reports whether err is a transport-level outage. Callers that
// exhausted the built-in retry budget should treat these as retryable and
// re-invoke explicitly; nothing loops beyond the bound.
func IsOutage(err error) bool {
	var outage *OutageError
	return errors.As(err, &outage)
}

// outageStatus reports whether an HTTP status signals a transient upstream
// outage (bad gateway, unavailable, and the CDN 520-class).
func outageStatus(status int) bool {
	switch status {
	case 502, 503, 504:
		return true
	}
	return status >= 520 && status <= 527
}
