package domain

import (
	"context"
	"errors"
	"net/http"
)

// Error codes for handler-level errors.
const (
	CodeNotFound    = 1
	CodeValidation  = 3
	CodeInternal    = 4
	CodeUnavailable = 5
)

// AppError represents a request-level error with a code, message, and optional wrapped error.
type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the wrapped error for use with errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Predefined request errors. Use IsNotFound and friends to match them; they
// compare codes, so freshly constructed errors match too.
var (
	ErrNotFound   = &AppError{Code: CodeNotFound, Message: "not found"}
	ErrValidation = &AppError{Code: CodeValidation, Message: "validation error"}
	ErrInternal   = &AppError{Code: CodeInternal, Message: "internal error"}
)

// NewAppError creates a new AppError with the given code, message, and wrapped error.
func NewAppError(code int, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsNotFound reports whether err is or wraps an AppError with CodeNotFound.
func IsNotFound(err error) bool {
	return hasCode(err, CodeNotFound)
}

// IsValidation reports whether err is or wraps an AppError with CodeValidation.
func IsValidation(err error) bool {
	return hasCode(err, CodeValidation)
}

// IsInternal reports whether err is or wraps an AppError with CodeInternal.
func IsInternal(err error) bool {
	return hasCode(err, CodeInternal)
}

func hasCode(err error, code int) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// Machine-readable gateway error codes.
const (
	GatewayCodeNetwork     = "ERR_NETWORK"
	GatewayCodeTimeout     = "ETIMEDOUT"
	GatewayCodeBadRequest  = "ERR_BAD_REQUEST"
	GatewayCodeBadResponse = "ERR_BAD_RESPONSE"
	GatewayCodeDecode      = "ERR_DECODE"
)

// DefaultGatewayMessage is used when neither the server nor the transport
// provides a message.
const DefaultGatewayMessage = "unknown error"

// GatewayError is the uniform failure shape produced at the transport
// boundary. Message is always set; Status is 0 and Code is empty when the
// failure carries no such detail.
type GatewayError struct {
	Message string `json:"message"`
	Status  int    `json:"status,omitempty"`
	Code    string `json:"code,omitempty"`
	Err     error  `json:"-"`
}

// NewGatewayError builds a GatewayError, applying the message fallback chain:
// server message, then the transport error text, then DefaultGatewayMessage.
func NewGatewayError(serverMsg string, status int, code string, err error) *GatewayError {
	msg := serverMsg
	if msg == "" && err != nil {
		msg = err.Error()
	}
	if msg == "" {
		msg = DefaultGatewayMessage
	}
	return &GatewayError{Message: msg, Status: status, Code: code, Err: err}
}

// Error implements the error interface.
func (e *GatewayError) Error() string {
	return e.Message
}

// Unwrap returns the underlying transport error, if any.
func (e *GatewayError) Unwrap() error {
	return e.Err
}

// AsGatewayError returns err as a *GatewayError. Errors that did not come
// from the transport (for example a cancelled context) are normalized with
// the same fallback rules. It returns nil for a nil error.
func AsGatewayError(err error) *GatewayError {
	if err == nil {
		return nil
	}
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr
	}
	code := ""
	if errors.Is(err, context.DeadlineExceeded) {
		code = GatewayCodeTimeout
	}
	return NewGatewayError("", 0, code, err)
}

// HTTPStatusCode maps an error to the status the HTTP layer should answer with.
// Upstream 404s stay 404; any other gateway failure is a 502.
func HTTPStatusCode(err error) int {
	if err == nil {
		return http.StatusInternalServerError
	}
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		if gwErr.Status == http.StatusNotFound {
			return http.StatusNotFound
		}
		return http.StatusBadGateway
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case CodeNotFound:
			return http.StatusNotFound
		case CodeValidation:
			return http.StatusBadRequest
		case CodeInternal:
			return http.StatusInternalServerError
		case CodeUnavailable:
			return http.StatusServiceUnavailable
		}
	}
	return http.StatusInternalServerError
}
