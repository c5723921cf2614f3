// Package httputil renders the platform's standardized response envelopes.
// Every JSON response the gateway produces goes through here so the envelope
// shape stays consistent across the admin API and the proxy surface.
package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	dErrors "civigate/pkg/domain-errors"
	"civigate/pkg/requestcontext"
)

// Meta carries response metadata common to all envelopes.
type Meta struct {
	Timestamp string `json:"timestamp"`
	RequestID string `json:"requestId"`
}

// ErrorBody is the error payload of the error envelope.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Envelope is the standardized wrapper for all gateway JSON responses.
type Envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data"`
	Error   *ErrorBody `json:"error,omitempty"`
	Meta    Meta       `json:"meta"`
}

func meta(r *http.Request) Meta {
	ctx := r.Context()
	return Meta{
		Timestamp: requestcontext.Now(ctx).UTC().Format(time.RFC3339),
		RequestID: requestcontext.RequestID(ctx),
	}
}

// WriteSuccess renders a success envelope with the given status and payload.
func WriteSuccess(w http.ResponseWriter, r *http.Request, status int, data any) {
	writeJSON(w, status, Envelope{Success: true, Data: data, Meta: meta(r)})
}

// WriteError translates err into the error envelope. Internal errors never
// leak their message to the client.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	code := dErrors.CodeInternal
	message := "an internal error occurred"
	var details any

	var de dErrors.Error
	if asDomainError(err, &de) && de.Code != dErrors.CodeInternal {
		code = de.Code
		message = de.Message
		details = de.Details
	}

	WriteErrorEnvelope(w, r, dErrors.ToHTTPStatus(code), string(code), message, details)
}

// WriteErrorEnvelope renders an error envelope with an explicit status, used
// by the proxy when the backend's own status must be preserved.
func WriteErrorEnvelope(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	writeJSON(w, status, Envelope{
		Success: false,
		Error:   &ErrorBody{Code: code, Message: message, Details: details},
		Meta:    meta(r),
	})
}

// Decode parses the JSON request body into T, writing a bad-request envelope
// and returning false on failure.
func Decode[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger) (T, bool) {
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		logger.WarnContext(r.Context(), "failed to decode request body",
			"request_id", requestcontext.RequestID(r.Context()),
			"error", err,
		)
		WriteError(w, r, dErrors.New(dErrors.CodeBadRequest, "request body is not valid JSON"))
		var zero T
		return zero, false
	}
	return v, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func asDomainError(err error, target *dErrors.Error) bool {
	var de dErrors.Error
	if errors.As(err, &de) {
		*target = de
		return true
	}
	return false
}
