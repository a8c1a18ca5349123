package api

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
	"github.com/custodia-labs/lectern/internal/logger"
)

var log = logger.With("http")

// StatusFor maps a domain error to an HTTP status code.
func StatusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindUnauthorized:
		return http.StatusForbidden
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindQuotaExceeded:
		return http.StatusTooManyRequests
	case domain.KindProvider:
		return http.StatusBadGateway
	case domain.KindIndex:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// sendJSON writes v as JSON with the given status code.
func sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn("encode response: %v", err)
	}
}

// sendError renders err with the status of its kind. Internal errors are
// logged and their message withheld.
func sendError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	kind := domain.KindOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Error("internal error: %v", err)
		msg = "internal error"
	}
	if rl, ok := driven.IsRateLimited(err); ok && rl.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(rl.RetryAfter.Seconds()))))
	}
	sendJSON(w, status, ErrorResponse{Error: msg, Kind: string(kind)})
}

// badRequest renders a request decoding problem.
func badRequest(w http.ResponseWriter, msg string) {
	sendJSON(w, http.StatusBadRequest, ErrorResponse{Error: msg, Kind: string(domain.KindValidation)})
}
