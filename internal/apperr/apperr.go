// Package apperr defines the uniform error envelope returned by every JSON
// error response, the mapping from error kinds to HTTP status codes, and the
// redaction pass applied to messages before they cross a trust boundary.
package apperr

import "net/http"

// Code identifies an error kind.
type Code string

const (
	CodeBadRequest          Code = "bad_request"
	CodeUnauthorized        Code = "unauthorized"
	CodeInsufficientCredits Code = "insufficient_credits"
	CodeBlocked             Code = "blocked"
	CodeNotFound            Code = "not_found"
	CodeNotReady            Code = "not_ready"
	CodePayloadTooLarge     Code = "payload_too_large"
	CodeRateLimitExceeded   Code = "rate_limit_exceeded"
	CodeServerError         Code = "server_error"
	CodeQueueUnavailable    Code = "queue_unavailable"
	CodeProviderUnavailable Code = "provider_unavailable"
)

// statusFor maps error codes to HTTP status codes.
var statusFor = map[Code]int{
	CodeBadRequest:          http.StatusBadRequest,
	CodeUnauthorized:        http.StatusUnauthorized,
	CodeInsufficientCredits: http.StatusPaymentRequired,
	CodeBlocked:             http.StatusForbidden,
	CodeNotFound:            http.StatusNotFound,
	CodeNotReady:            http.StatusConflict,
	CodePayloadTooLarge:     http.StatusRequestEntityTooLarge,
	CodeRateLimitExceeded:   http.StatusTooManyRequests,
	CodeServerError:         http.StatusInternalServerError,
	CodeQueueUnavailable:    http.StatusServiceUnavailable,
	CodeProviderUnavailable: http.StatusServiceUnavailable,
}

// retryableCodes are the codes for which a client retry can succeed.
var retryableCodes = map[Code]bool{
	CodeServerError:         true,
	CodeQueueUnavailable:    true,
	CodeRateLimitExceeded:   true,
	CodeProviderUnavailable: true,
}

// Detail is the inner error object of the envelope.
type Detail struct {
	Code       Code   `json:"code"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
	DocsURL    string `json:"docs_url,omitempty"`
	RequestID  string `json:"requestId,omitempty"`
	Retryable  bool   `json:"retryable"`
	RetryAfter string `json:"retryAfter,omitempty"`
}

// Error is the uniform JSON error envelope. It implements huma.StatusError
// so handlers can return it directly.
type Error struct {
	Success bool   `json:"success"`
	Detail  Detail `json:"error"`
	status  int
}

// New creates an error envelope for the given code. The message is redacted
// before it is stored.
func New(code Code, message string) *Error {
	status, ok := statusFor[code]
	if !ok {
		status = http.StatusInternalServerError
		code = CodeServerError
	}
	return &Error{
		Detail: Detail{
			Code:      code,
			Message:   Redact(message),
			Retryable: retryableCodes[code],
		},
		status: status,
	}
}

// WithRequestID attaches the request id used for log correlation.
func (e *Error) WithRequestID(id string) *Error {
	e.Detail.RequestID = id
	return e
}

// WithSuggestion attaches a short remediation hint.
func (e *Error) WithSuggestion(s string) *Error {
	e.Detail.Suggestion = s
	return e
}

// WithDocsURL attaches a documentation link.
func (e *Error) WithDocsURL(u string) *Error {
	e.Detail.DocsURL = u
	return e
}

// WithRetryAfter attaches the ISO timestamp after which a retry may succeed.
func (e *Error) WithRetryAfter(ts string) *Error {
	e.Detail.RetryAfter = ts
	return e
}

func (e *Error) Error() string {
	return string(e.Detail.Code) + ": " + e.Detail.Message
}

// GetStatus implements huma.StatusError.
func (e *Error) GetStatus() int {
	return e.status
}

// Code returns the error code of e.
func (e *Error) Code() Code {
	return e.Detail.Code
}

// FromStatus maps an HTTP status code back to an error code. Used when
// wrapping framework-generated errors into the envelope.
func FromStatus(status int) Code {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return CodeBadRequest
	case http.StatusUnauthorized:
		return CodeUnauthorized
	case http.StatusPaymentRequired:
		return CodeInsufficientCredits
	case http.StatusForbidden:
		return CodeBlocked
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusConflict:
		return CodeNotReady
	case http.StatusRequestEntityTooLarge:
		return CodePayloadTooLarge
	case http.StatusTooManyRequests:
		return CodeRateLimitExceeded
	case http.StatusServiceUnavailable:
		return CodeQueueUnavailable
	default:
		return CodeServerError
	}
}
