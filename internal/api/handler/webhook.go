package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/ayo6706/gateway-bridge/internal/ledger"
	"github.com/ayo6706/gateway-bridge/internal/observability"
	"github.com/ayo6706/gateway-bridge/internal/webhook"
	"go.uber.org/zap"
)

// maxCallbackBytes bounds provider callback bodies.
const maxCallbackBytes = 1 << 20

// WebhookHandler receives asynchronous payment notifications from the
// provider, verifies them and reconciles them into the ledger.
type WebhookHandler struct {
	verifier *webhook.Verifier
	ledger   *ledger.Ledger
}

func NewWebhookHandler(verifier *webhook.Verifier, l *ledger.Ledger) *WebhookHandler {
	return &WebhookHandler{verifier: verifier, ledger: l}
}

type callbackResponse struct {
	Received  bool   `json:"received"`
	Processed bool   `json:"processed"`
	State     string `json:"state,omitempty"`
	Status    string `json:"status,omitempty"`
	Message   string `json:"message,omitempty"`
}

// HandleGatewayCallback handles POST /v1/callbacks/gateway.
//
// Bad payloads and bad signatures are rejected outright. Everything that
// passes verification is acknowledged with 200, including persistence
// failures: the provider redelivers on anything but 2xx, and redelivery
// against a half-applied event risks duplicate side effects. Unapplied
// deliveries report processed=false so the merchant can reconcile.
func (h *WebhookHandler) HandleGatewayCallback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBytes))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "webhook/unreadable-body", "failed to read request body")
		return
	}

	signature := r.Header.Get("X-Webhook-Signature")
	event, err := h.verifier.Verify(body, signature)
	if err != nil {
		switch {
		case errors.Is(err, webhook.ErrInvalidSignature):
			observability.IncrementWebhookEvent("invalid_signature")
			RespondError(w, r, http.StatusUnauthorized, "webhook/invalid-signature", "signature verification failed")
		case errors.Is(err, webhook.ErrInvalidStructure):
			observability.IncrementWebhookEvent("invalid_structure")
			RespondError(w, r, http.StatusBadRequest, "webhook/invalid-structure", err.Error())
		default:
			observability.IncrementWebhookEvent("malformed")
			RespondError(w, r, http.StatusBadRequest, "webhook/malformed-payload", "payload is not valid JSON")
		}
		return
	}

	result, err := h.ledger.Apply(r.Context(), event)
	switch {
	case errors.Is(err, ledger.ErrUnknownCorrelation):
		// Acknowledge so the provider stops redelivering; the payload is
		// already in the audit trail.
		RespondJSON(w, http.StatusOK, callbackResponse{
			Received: true,
			Status:   event.Status.Code,
			Message:  "no record for merchant_ref_no",
		})
	case err != nil && !result.Applied:
		zap.L().Error("apply webhook event failed",
			zap.String("merchant_ref_no", event.CorrelationKey),
			zap.String("tran_id", event.TranID),
			zap.Error(err),
		)
		RespondJSON(w, http.StatusOK, callbackResponse{
			Received: true,
			Status:   event.Status.Code,
			Message:  "event could not be applied: " + err.Error(),
		})
	case err != nil:
		// The transition persisted but the downstream signal failed; the
		// delivery is acknowledged because redelivery would be a no-op.
		zap.L().Error("order-paid signal failed after transition",
			zap.String("merchant_ref_no", event.CorrelationKey),
			zap.Error(err),
		)
		fallthrough
	default:
		RespondJSON(w, http.StatusOK, callbackResponse{
			Received:  true,
			Processed: result.Applied,
			State:     result.State,
			Status:    event.Status.Code,
			Message:   event.Status.Message,
		})
	}
}
