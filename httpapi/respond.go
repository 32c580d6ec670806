package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	praxis "github.com/praxis-id/praxis"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// writeError maps an engine error class onto a status code. Codes stay
// as coarse as the engine's errors: a 401 never says which check
// failed.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, praxis.ErrInvalidInput),
		errors.Is(err, praxis.ErrPasswordPolicy):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})

	case errors.Is(err, praxis.ErrRateLimited):
		w.Header().Set("Retry-After", strconv.Itoa(int(h.cfg.RetryAfter.Seconds())))
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limited"})

	case errors.Is(err, praxis.ErrSessionNotFound),
		errors.Is(err, praxis.ErrRecordNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})

	case errors.Is(err, praxis.ErrSecondFactorNotEnrolled),
		errors.Is(err, praxis.ErrSecondFactorAlreadyEnrolled),
		errors.Is(err, praxis.ErrLastCredential):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})

	case errors.Is(err, praxis.ErrBackendUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "service unavailable"})

	case errors.Is(err, praxis.ErrEngineNotReady):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "service unavailable"})

	default:
		// Authentication and integrity failures are indistinguishable.
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
	}
}
