// Package handler provides HTTP handlers for the registry API.
package handler

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"devreg/internal/domain"
	"devreg/internal/middleware"
	"devreg/pkg/errors"
	"devreg/pkg/logger"
	"devreg/pkg/validator"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	maxBodyBytes    = 1 << 20
)

// errorResponse is the body of every non-2xx reply.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
	Field string `json:"field,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}

func respondValidationErrors(w http.ResponseWriter, errs map[string]string) {
	respondJSON(w, http.StatusBadRequest, map[string]interface{}{
		"error":             "Validation failed",
		"validation_errors": errs,
	})
}

var notFound = []error{
	errors.ErrUserNotFound,
	errors.ErrAgentNotFound,
	errors.ErrDeviceNotFound,
	errors.ErrTransferNotFound,
	errors.ErrRegistrationMissing,
}

// statusFor maps a service error onto an HTTP status.
func statusFor(err error) int {
	for _, target := range notFound {
		if stderrors.Is(err, target) {
			return http.StatusNotFound
		}
	}
	if stderrors.Is(err, errors.ErrDuplicateRequest) || stderrors.Is(err, errors.ErrUserAlreadyExists) {
		return http.StatusConflict
	}

	switch errors.KindOf(err) {
	case errors.KindValidation:
		return http.StatusBadRequest
	case errors.KindAuthorization:
		return http.StatusForbidden
	case errors.KindState:
		return http.StatusConflict
	case errors.KindQuota:
		return http.StatusPaymentRequired
	}
	return http.StatusInternalServerError
}

// respondServiceError writes err with its mapped status. System faults are
// logged and hidden from the client.
func respondServiceError(w http.ResponseWriter, r *http.Request, log logger.Logger, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error(op+" failed", map[string]interface{}{
			"error":      err.Error(),
			"path":       r.URL.Path,
			"request_id": middleware.RequestIDFromContext(r.Context()),
		})
		respondError(w, status, "Internal server error")
		return
	}

	body := errorResponse{Error: err.Error()}
	var de *errors.DomainError
	if stderrors.As(err, &de) {
		body = errorResponse{Error: de.Message, Code: de.Code, Field: de.Field}
	}
	respondJSON(w, status, body)
}

// decodeJSON reads a bounded JSON body into dst and runs struct validation.
// It writes the error response itself and reports whether decoding succeeded.
func decodeJSON(w http.ResponseWriter, r *http.Request, val *validator.Validator, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			respondError(w, http.StatusBadRequest, "Request body is required")
			return false
		}
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}

	if errs := val.ValidateStructured(dst); len(errs) > 0 {
		respondValidationErrors(w, errs)
		return false
	}
	return true
}

func actorFrom(w http.ResponseWriter, r *http.Request) (domain.Actor, bool) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
	}
	return actor, ok
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// page reads limit and offset query parameters with sane bounds.
func page(r *http.Request) (limit, offset int) {
	limit = defaultPageSize
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
