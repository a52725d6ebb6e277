package handler

import (
	"net/http"

	"github.com/ayo6706/gateway-bridge/internal/service"
)

// TransactionHandler exposes transaction status queries.
type TransactionHandler struct {
	svc *service.PaymentService
}

func NewTransactionHandler(svc *service.PaymentService) *TransactionHandler {
	return &TransactionHandler{svc: svc}
}

// GetTransaction handles GET /v1/transactions/{tranID}. With ?confirm=1
// the provider's transaction-detail endpoint is queried and the outcome
// reconciled before responding; return-URL flows use this instead of
// trusting redirect parameters.
func (h *TransactionHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	tranID := routeParam(r, "tranID")
	confirm := r.URL.Query().Get("confirm") == "1"

	rec, err := h.svc.Transaction(r.Context(), tranID, confirm)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, rec)
}

// CancelTransaction handles POST /v1/transactions/{tranID}/cancel.
func (h *TransactionHandler) CancelTransaction(w http.ResponseWriter, r *http.Request) {
	tranID := routeParam(r, "tranID")
	rec, changed, err := h.svc.CancelTransaction(r.Context(), tranID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{
		"tran_id":   tranID,
		"order_ref": rec.CorrelationKey,
		"state":     rec.State,
		"cancelled": changed,
	})
}
