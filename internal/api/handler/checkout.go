package handler

import (
	"errors"
	"net/http"

	"github.com/ayo6706/gateway-bridge/internal/checkout"
	"github.com/ayo6706/gateway-bridge/internal/service"
)

// CheckoutHandler serves stored checkout documents to shoppers.
type CheckoutHandler struct {
	svc *service.PaymentService
}

func NewCheckoutHandler(svc *service.PaymentService) *CheckoutHandler {
	return &CheckoutHandler{svc: svc}
}

// GetCheckout handles GET /v1/checkout/{token}. Tokens are single-purpose
// and short-lived; an expired or unknown token is a plain 404.
func (h *CheckoutHandler) GetCheckout(w http.ResponseWriter, r *http.Request) {
	token := routeParam(r, "token")
	doc, err := h.svc.CheckoutDocument(r.Context(), token)
	if errors.Is(err, checkout.ErrNotFound) {
		RespondError(w, r, http.StatusNotFound, "checkout/not-found", "checkout page expired or does not exist")
		return
	}
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}
