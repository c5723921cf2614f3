// Package domainerrors defines the coded errors the platform exposes on the
// wire. Services return these directly; infrastructure layers return sentinel
// errors that services translate before they cross the HTTP boundary.
package domainerrors

import (
	"errors"
	"net/http"
)

// Code identifies an error class. The string value is the `error.code` field
// of the standardized error envelope.
type Code string

const (
	CodeBadRequest   Code = "BAD_REQUEST"
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeForbidden    Code = "FORBIDDEN"
	CodeNotFound     Code = "NOT_FOUND"
	CodeConflict     Code = "CONFLICT"
	CodeUnavailable  Code = "SERVICE_UNAVAILABLE"
	CodeRateLimited  Code = "RATE_LIMIT_EXCEEDED"
	CodeBadGateway   Code = "BAD_GATEWAY"
	CodeTimeout      Code = "GATEWAY_TIMEOUT"
	CodeInternal     Code = "INTERNAL_ERROR"
)

// Error is a domain error carrying a code, a client-safe message, and
// optional structured details.
type Error struct {
	Code    Code
	Message string
	Details any
}

func (e Error) Error() string {
	return string(e.Code) + ": " + e.Message
}

// New builds a domain error with the given code and message.
func New(code Code, message string) Error {
	return Error{Code: code, Message: message}
}

// WithDetails attaches structured details to an error.
func (e Error) WithDetails(details any) Error {
	e.Details = details
	return e
}

// CodeOf extracts the domain code from err, falling back to CodeInternal for
// anything that is not a domain error.
func CodeOf(err error) Code {
	var de Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a domain code to its HTTP status.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeBadGateway:
		return http.StatusBadGateway
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// FromHTTPStatus maps an upstream HTTP status to the closest domain code.
// Used when translating backend error payloads that carry no code of their
// own.
func FromHTTPStatus(status int) Code {
	switch status {
	case http.StatusBadRequest:
		return CodeBadRequest
	case http.StatusUnauthorized:
		return CodeUnauthorized
	case http.StatusForbidden:
		return CodeForbidden
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusConflict:
		return CodeConflict
	case http.StatusTooManyRequests:
		return CodeRateLimited
	case http.StatusServiceUnavailable:
		return CodeUnavailable
	case http.StatusGatewayTimeout:
		return CodeTimeout
	case http.StatusBadGateway:
		return CodeBadGateway
	default:
		if status >= 500 {
			return CodeInternal
		}
		return CodeBadRequest
	}
}
