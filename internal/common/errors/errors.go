// Package errors provides the error taxonomy shared by the signup client and proxy.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeClientValidation ErrorCode = "CLIENT_VALIDATION_FAILED"
	ErrCodeUnknownMode      ErrorCode = "UNKNOWN_MODE"
	ErrCodeInvalidJSON      ErrorCode = "INVALID_JSON_BODY"

	ErrCodeUpstreamProtocol ErrorCode = "UPSTREAM_PROTOCOL_ERROR"
	ErrCodeUpstreamHTML     ErrorCode = "UPSTREAM_HTML_ERROR"
	ErrCodeUpstreamBusiness ErrorCode = "UPSTREAM_BUSINESS_ERROR"
	ErrCodeNetwork          ErrorCode = "NETWORK_ERROR"

	ErrCodeSessionComplete ErrorCode = "SESSION_COMPLETE"
	ErrCodeAffiliateReaped ErrorCode = "AFFILIATE_REAPED"
	ErrCodeConfiguration   ErrorCode = "CONFIGURATION_ERROR"
	ErrCodeInternal        ErrorCode = "INTERNAL_ERROR"
)

// User-facing messages.
const (
	MsgGeneric        = "Something went wrong while creating your affiliate account. Please try again later."
	MsgInternal       = "Internal server error"
	MsgInvalidProgram = "Missing or invalid program selection"
	MsgInvalidJSON    = "Invalid JSON body"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code           ErrorCode              `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	HTTPStatus     int                    `json:"httpStatus,omitempty"`
	UpstreamStatus int                    `json:"upstreamStatus,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	Timestamp      time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// StatusCode is the HTTP status a proxy response should carry for this error.
func (e *StandardError) StatusCode() int {
	if e.HTTPStatus > 0 {
		return e.HTTPStatus
	}
	switch e.Code {
	case ErrCodeClientValidation, ErrCodeUnknownMode, ErrCodeInvalidJSON:
		return http.StatusBadRequest
	case ErrCodeSessionComplete, ErrCodeAffiliateReaped:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// ==========================
// 2. Error Constructors
// ==========================

// NewClientValidationError reports input rejected before any upstream call.
func NewClientValidationError(message string) *StandardError {
	return &StandardError{
		Code:       ErrCodeClientValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
		Timestamp:  time.Now().UTC(),
	}
}

// NewMissingFieldsError lists every missing field in one message.
func NewMissingFieldsError(fields []string) *StandardError {
	e := NewClientValidationError("Missing required fields: " + strings.Join(fields, ", "))
	e.Metadata = map[string]interface{}{"missing": fields}
	return e
}

func NewUnknownModeError(mode string) *StandardError {
	return &StandardError{
		Code:       ErrCodeUnknownMode,
		Message:    "Unknown mode: " + mode,
		HTTPStatus: http.StatusBadRequest,
		Timestamp:  time.Now().UTC(),
	}
}

func NewInvalidJSONError(err error) *StandardError {
	return &StandardError{
		Code:       ErrCodeInvalidJSON,
		Message:    MsgInvalidJSON,
		Details:    err.Error(),
		HTTPStatus: http.StatusBadRequest,
		Timestamp:  time.Now().UTC(),
	}
}

// NewUpstreamProtocolError is used when a 2xx response lacks data the protocol requires.
func NewUpstreamProtocolError(message string, upstreamStatus int) *StandardError {
	return &StandardError{
		Code:           ErrCodeUpstreamProtocol,
		Message:        message,
		HTTPStatus:     http.StatusInternalServerError,
		UpstreamStatus: upstreamStatus,
		Timestamp:      time.Now().UTC(),
	}
}

// NewUpstreamHTMLError never carries the HTML body in Message.
func NewUpstreamHTMLError(upstreamStatus int, details string) *StandardError {
	return &StandardError{
		Code:           ErrCodeUpstreamHTML,
		Message:        MsgGeneric,
		Details:        details,
		Retryable:      true,
		HTTPStatus:     http.StatusInternalServerError,
		UpstreamStatus: upstreamStatus,
		Timestamp:      time.Now().UTC(),
	}
}

// NewUpstreamBusinessError mirrors the upstream status.
func NewUpstreamBusinessError(message string, upstreamStatus int) *StandardError {
	status := upstreamStatus
	if status < 400 {
		status = http.StatusInternalServerError
	}
	return &StandardError{
		Code:           ErrCodeUpstreamBusiness,
		Message:        message,
		Retryable:      upstreamStatus >= 500,
		HTTPStatus:     status,
		UpstreamStatus: upstreamStatus,
		Timestamp:      time.Now().UTC(),
	}
}

func NewNetworkError(service string, err error) *StandardError {
	return &StandardError{
		Code:       ErrCodeNetwork,
		Message:    MsgInternal,
		Details:    fmt.Sprintf("service: %s, error: %v", service, err),
		Retryable:  true,
		HTTPStatus: http.StatusInternalServerError,
		Timestamp:  time.Now().UTC(),
	}
}

func NewSessionCompleteError() *StandardError {
	return &StandardError{
		Code:       ErrCodeSessionComplete,
		Message:    "Signup session already completed",
		HTTPStatus: http.StatusConflict,
		Timestamp:  time.Now().UTC(),
	}
}

// NewAffiliateReapedError refuses to finalize an affiliate the orphan reaper has claimed.
func NewAffiliateReapedError(affiliateID, status string) *StandardError {
	return &StandardError{
		Code:       ErrCodeAffiliateReaped,
		Message:    "This signup expired. Please start again.",
		Details:    fmt.Sprintf("affiliate %s is %s", affiliateID, status),
		HTTPStatus: http.StatusConflict,
		Metadata:   map[string]interface{}{"affiliate_id": affiliateID, "status": status},
		Timestamp:  time.Now().UTC(),
	}
}

func NewConfigurationError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeConfiguration,
		Message:   "Service is misconfigured",
		Details:   details,
		Timestamp: time.Now().UTC(),
	}
}

func NewInternalError(err error) *StandardError {
	details := ""
	if err != nil {
		details = err.Error()
	}
	return &StandardError{
		Code:       ErrCodeInternal,
		Message:    MsgInternal,
		Details:    details,
		HTTPStatus: http.StatusInternalServerError,
		Timestamp:  time.Now().UTC(),
	}
}

// ==========================
// 3. Utility Functions
// ==========================

// Normalize ensures we always have a StandardError.
func Normalize(err error) *StandardError {
	if err == nil {
		return nil
	}
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	return NewInternalError(err)
}

// HasCode reports whether err is a StandardError carrying code.
func HasCode(err error, code ErrorCode) bool {
	var stdErr *StandardError
	return stderrors.As(err, &stdErr) && stdErr.Code == code
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	switch code {
	case ErrCodeNetwork, ErrCodeUpstreamHTML:
		return true
	default:
		return false
	}
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.HasPrefix(codeStr, "UPSTREAM"):
		return "UPSTREAM"
	case strings.Contains(codeStr, "NETWORK"):
		return "NETWORK"
	case strings.Contains(codeStr, "VALIDATION") || strings.Contains(codeStr, "MODE") || strings.Contains(codeStr, "JSON"):
		return "VALIDATION"
	case strings.Contains(codeStr, "SESSION"):
		return "SESSION"
	case strings.Contains(codeStr, "CONFIGURATION"):
		return "CONFIGURATION"
	default:
		return "OTHER"
	}
}
