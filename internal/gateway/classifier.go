package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/ayo6706/gateway-bridge/internal/statuscode"
)

// Classifier normalizes heterogeneous provider responses into an Outcome.
// The provider answers purchase calls with either a JSON envelope (QR and
// app-switch flows) or a full HTML checkout document (card flows), and
// serves branded HTML error pages from the same endpoint.
type Classifier struct {
	origin *url.URL
}

// NewClassifier builds a classifier that rewrites checkout asset references
// against the given provider origin.
func NewClassifier(providerOrigin string) (*Classifier, error) {
	origin, err := url.Parse(providerOrigin)
	if err != nil {
		return nil, fmt.Errorf("parse provider origin: %w", err)
	}
	if origin.Scheme == "" || origin.Host == "" {
		return nil, fmt.Errorf("provider origin %q must be absolute", providerOrigin)
	}
	return &Classifier{origin: origin}, nil
}

// jsonEnvelope is the provider's JSON response shape. The status code is
// delivered as a number by some endpoints and a zero-padded string by
// others, so it is decoded as json.Number.
type jsonEnvelope struct {
	Status struct {
		Code    json.Number `json:"code"`
		Message string      `json:"message"`
	} `json:"status"`
	TranID      string `json:"tran_id"`
	QRString    string `json:"qr_string"`
	Deeplink    string `json:"deeplink"`
	CheckoutURL string `json:"checkout_url"`
	Description string `json:"description"`
}

// Classify branches on the declared content type, falling back to shape
// sniffing when the provider mislabels a response. It returns
// ErrUnrecognizedResponse when the body matches neither JSON nor a
// plausible checkout/error HTML document.
func (c *Classifier) Classify(contentType string, body []byte) (*Outcome, error) {
	trimmed := bytes.TrimSpace(body)
	mediaType := strings.ToLower(contentType)

	switch {
	case strings.Contains(mediaType, "json") || looksLikeJSON(trimmed):
		return c.classifyJSON(trimmed)
	case strings.Contains(mediaType, "html") || looksLikeHTML(trimmed):
		return c.classifyHTML(trimmed)
	default:
		return nil, fmt.Errorf("%w: content type %q", ErrUnrecognizedResponse, contentType)
	}
}

func (c *Classifier) classifyJSON(body []byte) (*Outcome, error) {
	var env jsonEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %v", ErrUnrecognizedResponse, err)
	}

	st := statuscode.Classify(env.Status.Code.String())
	message := st.Message
	if env.Status.Message != "" {
		message = env.Status.Message
	}

	return &Outcome{
		Kind:        KindJSON,
		Code:        st.Code,
		Message:     message,
		Category:    st.Category,
		TranID:      env.TranID,
		QRString:    env.QRString,
		Deeplink:    env.Deeplink,
		CheckoutURL: env.CheckoutURL,
		Retryable:   st.Retryable(),
	}, nil
}

func (c *Classifier) classifyHTML(body []byte) (*Outcome, error) {
	doc, err := parseDocument(body)
	if err != nil || !hasStructuralMinimum(doc) {
		return nil, fmt.Errorf("%w: body is not a plausible checkout document", ErrUnrecognizedResponse)
	}

	// Known error phrases distinguish a branded failure page from a real
	// checkout document. This is a best-effort UI signal only; it never
	// feeds the ledger state machine.
	if phrase, found := scanErrorPhrases(doc); found {
		message := extractTitle(doc)
		if message == "" {
			message = phrase
		}
		return &Outcome{
			Kind:     KindError,
			Message:  message,
			Category: statuscode.CategoryFatal,
		}, nil
	}

	sanitized, tranID := sanitizeCheckoutDocument(doc, c.origin)
	st := statuscode.Classify(statuscode.CodeSuccess)
	return &Outcome{
		Kind:        KindHTML,
		Code:        st.Code,
		Message:     st.Message,
		Category:    st.Category,
		TranID:      tranID,
		CheckoutDoc: sanitized,
	}, nil
}

func looksLikeJSON(body []byte) bool {
	return len(body) > 0 && (body[0] == '{' || body[0] == '[')
}

func looksLikeHTML(body []byte) bool {
	head := strings.ToLower(string(body[:min(len(body), 512)]))
	return strings.Contains(head, "<html") || strings.Contains(head, "<!doctype html")
}
