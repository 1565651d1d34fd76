// pkg/errors/errors.go
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Codes rendered in the "error" field of API responses.
const (
	CodeBadJSON          = "bad_json"
	CodeValidation       = "validation_failed"
	CodeUnauthorized     = "unauthorized"
	CodeForbidden        = "forbidden"
	CodeNotFound         = "not_found"
	CodeConflict         = "conflict"
	CodeUnprocessable    = "unprocessable"
	CodeRateLimited      = "rate_limited"
	CodeUpstream         = "upstream_unavailable"
	CodeUnavailable      = "service_unavailable"
	CodeInternal         = "internal_error"
	CodeInvalidPIN       = "invalid_pin"
	CodePINNotSet        = "pin_not_set"
	CodeInsufficientFund = "insufficient_funds"
)

type E struct {
	Code    string
	Message string
	Status  int
	Details any
	Err     error
}

func (e E) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e E) Unwrap() error { return e.Err }

// HTTPStatus falls back to 500 when no status was attached.
func (e E) HTTPStatus() int {
	if e.Status == 0 {
		return http.StatusInternalServerError
	}
	return e.Status
}

func (e E) WithDetails(d any) E {
	e.Details = d
	return e
}

func Wrap(code, msg string, err error) error {
	return E{Code: code, Message: msg, Err: err, Status: statusFor(code)}
}

func New(status int, code, msg string) E {
	return E{Code: code, Message: msg, Status: status}
}

func BadRequest(code, msg string) E    { return New(http.StatusBadRequest, code, msg) }
func Unauthorized(msg string) E        { return New(http.StatusUnauthorized, CodeUnauthorized, msg) }
func Forbidden(msg string) E           { return New(http.StatusForbidden, CodeForbidden, msg) }
func NotFound(msg string) E            { return New(http.StatusNotFound, CodeNotFound, msg) }
func Conflict(msg string) E            { return New(http.StatusConflict, CodeConflict, msg) }
func Unprocessable(code, msg string) E { return New(http.StatusUnprocessableEntity, code, msg) }
func TooManyRequests(msg string) E     { return New(http.StatusTooManyRequests, CodeRateLimited, msg) }
func Unavailable(msg string) E         { return New(http.StatusServiceUnavailable, CodeUnavailable, msg) }

func Upstream(msg string, err error) E {
	return E{Code: CodeUpstream, Message: msg, Status: http.StatusBadGateway, Err: err}
}

func Internal(msg string, err error) E {
	return E{Code: CodeInternal, Message: msg, Status: http.StatusInternalServerError, Err: err}
}

// As reports whether err carries an E anywhere in its chain.
func As(err error) (E, bool) {
	var e E
	if stderrors.As(err, &e) {
		return e, true
	}
	return E{}, false
}

func statusFor(code string) int {
	switch code {
	case CodeBadJSON, CodeValidation:
		return http.StatusBadRequest
	case CodeUnauthorized, CodeInvalidPIN:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeUnprocessable, CodePINNotSet, CodeInsufficientFund:
		return http.StatusUnprocessableEntity
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeUpstream:
		return http.StatusBadGateway
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
