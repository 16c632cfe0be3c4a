package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorKind classifies failures so callers can pick a recovery path without
// inspecting status codes.
type ErrorKind string

const (
	KindNotFound     ErrorKind = "not_found"
	KindInvalidCode  ErrorKind = "invalid_code"
	KindValidation   ErrorKind = "validation"
	KindUnauthorized ErrorKind = "unauthorized"
	KindForbidden    ErrorKind = "forbidden"
	KindConflict     ErrorKind = "conflict"
	KindRateLimited  ErrorKind = "rate_limited"
	KindNetwork      ErrorKind = "network"
	KindInternal     ErrorKind = "internal"
)

const invalidShareCode = "INVALID_SHARE_CODE"

// APIError is the single error shape returned by Client methods.
type APIError struct {
	Kind    ErrorKind
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *APIError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (%d)", msg, e.Status)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *APIError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// KindOf returns the kind carried by err, or "" when err is not an *APIError.
func KindOf(err error) ErrorKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ""
}

// IsKind reports whether err is an *APIError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

// ValidationError builds a client side validation failure.
func ValidationError(message string) *APIError {
	return &APIError{Kind: KindValidation, Message: message}
}

func networkError(err error) *APIError {
	return &APIError{Kind: KindNetwork, Message: "network error", Err: err}
}

// errorBody covers every error payload the backends produce:
// {"error":{"code","message"}}, {"detail":{"message"}}, {"detail":"..."} and {"message":"..."}.
type errorBody struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Detail  json.RawMessage `json:"detail"`
	Message string          `json:"message"`
}

// ErrorFromResponse normalises a non-2xx status and body the way Client methods do.
func ErrorFromResponse(status int, body []byte) *APIError {
	return normalizeError(status, body)
}

// normalizeError turns a non-2xx response into an *APIError.
func normalizeError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status}

	var payload errorBody
	if err := json.Unmarshal(body, &payload); err == nil {
		switch {
		case payload.Error != nil:
			apiErr.Code = payload.Error.Code
			apiErr.Message = payload.Error.Message
		case len(payload.Detail) > 0:
			apiErr.Message = detailMessage(payload.Detail)
		}
		if apiErr.Message == "" {
			apiErr.Message = payload.Message
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
		if apiErr.Message == "" || len(apiErr.Message) > 200 || strings.HasPrefix(apiErr.Message, "<") {
			apiErr.Message = http.StatusText(status)
		}
	}
	apiErr.Kind = kindFor(status, apiErr.Code, apiErr.Message)
	return apiErr
}

func detailMessage(raw json.RawMessage) string {
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Message
	}
	return ""
}

func kindFor(status int, code, message string) ErrorKind {
	if code == invalidShareCode {
		return KindInvalidCode
	}
	switch status {
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusUnauthorized:
		return KindUnauthorized
	case http.StatusForbidden:
		// older backends only signal a wrong access code through the message
		if code == "" && strings.Contains(strings.ToLower(message), "share code") {
			return KindInvalidCode
		}
		return KindForbidden
	case http.StatusBadRequest, http.StatusUnprocessableEntity, http.StatusRequestEntityTooLarge:
		return KindValidation
	case http.StatusConflict:
		return KindConflict
	case http.StatusTooManyRequests:
		return KindRateLimited
	default:
		return KindInternal
	}
}
