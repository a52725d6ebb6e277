package handler

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/ayo6706/gateway-bridge/internal/service"
	"go.uber.org/zap"
)

// PaymentLinkHandler exposes payment-link management to merchant callers.
type PaymentLinkHandler struct {
	svc *service.PaymentService
}

func NewPaymentLinkHandler(svc *service.PaymentService) *PaymentLinkHandler {
	return &PaymentLinkHandler{svc: svc}
}

type paymentLinkRequest struct {
	MerchantRefNo string `json:"merchant_ref_no"`
	Title         string `json:"title"`
	Description   string `json:"description,omitempty"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	PaymentLimit  int    `json:"payment_limit,omitempty"`
	ExpiredDate   string `json:"expired_date,omitempty"`
	ReturnURL     string `json:"return_url,omitempty"`
	Payout        string `json:"payout,omitempty"`

	// ImageBase64 carries the optional link image as standard base64.
	ImageBase64 string `json:"image_base64,omitempty"`
	ImageName   string `json:"image_name,omitempty"`
}

// CreatePaymentLink handles POST /v1/payment-links.
func (h *PaymentLinkHandler) CreatePaymentLink(w http.ResponseWriter, r *http.Request) {
	var req paymentLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/malformed-json", "invalid JSON body")
		return
	}

	var image []byte
	if req.ImageBase64 != "" {
		decoded, err := base64.StdEncoding.DecodeString(req.ImageBase64)
		if err != nil {
			RespondError(w, r, http.StatusBadRequest, "request/invalid", "image_base64 is not valid base64")
			return
		}
		image = decoded
	}

	result, err := h.svc.CreatePaymentLink(r.Context(), &service.PaymentLinkInput{
		MerchantRefNo: req.MerchantRefNo,
		Title:         req.Title,
		Description:   req.Description,
		Amount:        req.Amount,
		Currency:      req.Currency,
		PaymentLimit:  req.PaymentLimit,
		ExpiredDate:   req.ExpiredDate,
		ReturnURL:     req.ReturnURL,
		Payout:        req.Payout,
		Image:         image,
		ImageName:     req.ImageName,
	})
	if err != nil {
		zap.L().Error("payment-link create failed",
			zap.String("merchant_ref_no", req.MerchantRefNo),
			zap.Error(err),
		)
		respondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, result)
}

// GetPaymentLink handles GET /v1/payment-links/{linkID}. With ?confirm=1
// the provider is queried for the authoritative status first.
func (h *PaymentLinkHandler) GetPaymentLink(w http.ResponseWriter, r *http.Request) {
	linkID := routeParam(r, "linkID")
	confirm := r.URL.Query().Get("confirm") == "1"

	rec, err := h.svc.PaymentLink(r.Context(), linkID, confirm)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, rec)
}

// CancelPaymentLink handles POST /v1/payment-links/{linkID}/cancel.
func (h *PaymentLinkHandler) CancelPaymentLink(w http.ResponseWriter, r *http.Request) {
	linkID := routeParam(r, "linkID")
	rec, changed, err := h.svc.CancelPaymentLink(r.Context(), linkID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{
		"link_id":   linkID,
		"state":     rec.State,
		"cancelled": changed,
	})
}
