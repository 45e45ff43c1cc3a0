package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/shareauction/internal/domain"
	"github.com/alanyoungcy/shareauction/internal/server/middleware"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// StatusFor maps an auction error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden),
		errors.Is(err, domain.ErrAuthorizationFailure),
		errors.Is(err, domain.ErrCertificateExpired),
		errors.Is(err, domain.ErrOwnershipMismatch):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrPhaseViolation),
		errors.Is(err, domain.ErrAlreadyDistributed),
		errors.Is(err, domain.ErrNotDistributed),
		errors.Is(err, domain.ErrNotLoaded),
		errors.Is(err, domain.ErrDoubleClaim),
		errors.Is(err, domain.ErrLockHeld):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrPersist):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrCommitmentMismatch),
		errors.Is(err, domain.ErrPaymentMismatch),
		errors.Is(err, domain.ErrLengthMismatch),
		errors.Is(err, domain.ErrOrderViolation),
		errors.Is(err, domain.ErrUnknownInvestor),
		errors.Is(err, domain.ErrIncompleteList),
		errors.Is(err, domain.ErrNoBids),
		errors.Is(err, domain.ErrInsufficientBalance),
		errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError maps err to a status and writes it. Unexpected errors
// are logged and reported without detail.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "handler: request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeError(w, status, strings.ToLower(http.StatusText(status)))
		return
	}
	writeError(w, status, err.Error())
}

// decodeJSON strictly decodes the request body into v.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, middleware.MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	return nil
}

// requireCaller returns the authenticated caller or writes a 401.
func requireCaller(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	caller, ok := middleware.Caller(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "signed request required")
		return common.Address{}, false
	}
	return caller, true
}

// addressParam parses the named path parameter as a hex address.
func addressParam(w http.ResponseWriter, r *http.Request, name string) (common.Address, bool) {
	v := r.PathValue(name)
	if !common.IsHexAddress(v) {
		writeError(w, http.StatusBadRequest, "invalid address: "+v)
		return common.Address{}, false
	}
	return common.HexToAddress(v), true
}

// parseListOpts extracts standard pagination parameters from the query string.
// Defaults: limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return domain.ListOpts{
		Limit:  limit,
		Offset: offset,
	}
}

// badRequest reports a malformed body.
func badRequest(w http.ResponseWriter, err error) {
	msg := "invalid request body"
	if err != nil {
		msg += ": " + strings.TrimPrefix(err.Error(), "json: ")
	}
	writeError(w, http.StatusBadRequest, msg)
}
