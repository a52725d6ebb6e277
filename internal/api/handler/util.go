package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ayo6706/gateway-bridge/internal/api/problem"
	"github.com/go-chi/chi/v5"
	"github.com/ayo6706/gateway-bridge/internal/gateway"
	"github.com/ayo6706/gateway-bridge/internal/ledger"
	"github.com/ayo6706/gateway-bridge/internal/service"
)

// RespondJSON writes a JSON response.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// RespondError writes an error response.
func RespondError(w http.ResponseWriter, r *http.Request, status int, problemType, message string) {
	if problemType != "" && problemType != "about:blank" && !strings.HasPrefix(problemType, "http") {
		problemType = problem.Type(problemType)
	}
	problem.Write(w, r, status, problemType, http.StatusText(status), message)
}

func routeParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}

// respondServiceError maps service-layer failures to RFC 7807 responses.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var validation *service.ValidationError
	switch {
	case errors.As(err, &validation):
		RespondError(w, r, http.StatusBadRequest, "request/invalid", validation.Error())
	case errors.Is(err, ledger.ErrNotFound):
		RespondError(w, r, http.StatusNotFound, "record/not-found", "no record for that identifier")
	case gateway.IsOutage(err):
		RespondError(w, r, http.StatusBadGateway, "gateway/unavailable", "payment gateway is unavailable, try again later")
	case errors.Is(err, gateway.ErrUnrecognizedResponse):
		RespondError(w, r, http.StatusBadGateway, "gateway/unrecognized-response", "payment gateway returned an unrecognized response")
	default:
		RespondError(w, r, http.StatusInternalServerError, "internal-server-error", "unexpected server error")
	}
}
