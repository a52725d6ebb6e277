package gateway

// Payment options accepted by the provider. The deeplink option is the
// accelerated app-switch flow; its documented fallback on gateway outage
// is the plain QR flow.
const (
	PaymentOptionQR         = "qr"
	PaymentOptionQRDeeplink = "qr_deeplink"
	PaymentOptionCards      = "cards"
	PaymentOptionGooglePay  = "google_pay"
)

// RetryPolicy decides whether a failed purchase attempt may be retried
// with a mutated request. Keeping the decision behind an interface keeps
// the fallback business rule testable independent of HTTP mechanics.
type RetryPolicy interface {
	// Rewrite returns the request for the next attempt and true when a
	// retry is allowed. Implementations must not mutate the input.
	Rewrite(req *PurchaseRequest, attempt int, cause error) (*PurchaseRequest, bool)
}

// FallbackPolicy retries exactly once: when the first attempt of an
// accelerated payment option hits a transport outage, it substitutes the
// documented fallback option. Every other failure is surfaced unretried.
type FallbackPolicy struct {
	fallbacks map[string]string
}

// NewFallbackPolicy returns the policy with the documented substitutions.
func NewFallbackPolicy() *FallbackPolicy {
	return &FallbackPolicy{
		fallbacks: map[string]string{
			PaymentOptionQRDeeplink: PaymentOptionQR,
		},
	}
}

func (p *FallbackPolicy) Rewrite(req *PurchaseRequest, attempt int, cause error) (*PurchaseRequest, bool) {
	if attempt != 1 || !IsOutage(cause) {
		return nil, false
	}
	fallback, ok := p.fallbacks[req.PaymentOption]
	if !ok {
		return nil, false
	}
	mutated := req.Clone()
	mutated.PaymentOption = fallback
	return mutated, true
}

// NoRetryPolicy never retries. Used for operations with a single-attempt
// budget, such as detail lookups.
type NoRetryPolicy struct{}

func (NoRetryPolicy) Rewrite(*PurchaseRequest, int, error) (*PurchaseRequest, bool) {
	return nil, false
}
