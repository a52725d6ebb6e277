package handler

import (
	"encoding/json"
	"net/http"

	"github.com/ayo6706/gateway-bridge/internal/service"
	"go.uber.org/zap"
)

// PurchaseHandler exposes the purchase flow to merchant callers.
type PurchaseHandler struct {
	svc *service.PaymentService
}

func NewPurchaseHandler(svc *service.PaymentService) *PurchaseHandler {
	return &PurchaseHandler{svc: svc}
}

// CreatePurchase handles POST /v1/purchases.
func (h *PurchaseHandler) CreatePurchase(w http.ResponseWriter, r *http.Request) {
	var in service.PurchaseInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/malformed-json", "invalid JSON body")
		return
	}

	result, err := h.svc.Purchase(r.Context(), &in)
	if err != nil {
		zap.L().Error("purchase failed",
			zap.String("order_ref", in.OrderRef),
			zap.Error(err),
		)
		respondServiceError(w, r, err)
		return
	}

	if result.CheckoutToken != "" {
		result.CheckoutURL = "/v1/checkout/" + result.CheckoutToken
	}
	RespondJSON(w, http.StatusCreated, result)
}
