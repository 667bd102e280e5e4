// Package errors provides the service error taxonomy shared by every layer.
// Each error carries an HTTP status and an Arabic message shown to end users.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode identifies a class of failure in API responses.
type ErrorCode string

const (
	CodeBadRequest   ErrorCode = "BAD_REQUEST"
	CodeValidation   ErrorCode = "VALIDATION_FAILED"
	CodeNotFound     ErrorCode = "NOT_FOUND"
	CodeUnauthorized ErrorCode = "UNAUTHORIZED"
	CodeInvalidToken ErrorCode = "INVALID_TOKEN"
	CodeForbidden    ErrorCode = "FORBIDDEN"
	CodeConflict     ErrorCode = "CONFLICT"
	CodeRateLimited  ErrorCode = "RATE_LIMIT_EXCEEDED"
	CodeTooLarge     ErrorCode = "PAYLOAD_TOO_LARGE"
	CodeDatabase     ErrorCode = "DATABASE_ERROR"
	CodeUnavailable  ErrorCode = "SERVICE_UNAVAILABLE"
	CodeInternal     ErrorCode = "INTERNAL_ERROR"
)

// Arabic messages shown by the UI. Details stay in the logs.
var userMessages = map[ErrorCode]string{
	CodeBadRequest:   "الطلب غير صالح",
	CodeValidation:   "يرجى التحقق من البيانات المدخلة",
	CodeNotFound:     "العنصر المطلوب غير موجود",
	CodeUnauthorized: "يجب تسجيل الدخول أولاً",
	CodeInvalidToken: "انتهت صلاحية الجلسة، يرجى تسجيل الدخول مجدداً",
	CodeForbidden:    "ليس لديك صلاحية للقيام بهذا الإجراء",
	CodeConflict:     "العنصر موجود مسبقاً",
	CodeRateLimited:  "طلبات كثيرة، يرجى المحاولة لاحقاً",
	CodeTooLarge:     "حجم الملف كبير جداً",
	CodeDatabase:     "حدث خطأ أثناء الاتصال بقاعدة البيانات",
	CodeUnavailable:  "الخدمة غير متاحة حالياً",
	CodeInternal:     "حدث خطأ غير متوقع",
}

// UserMessage returns the Arabic message for a code.
func UserMessage(code ErrorCode) string {
	if msg, ok := userMessages[code]; ok {
		return msg
	}
	return userMessages[CodeInternal]
}

// ServiceError is an error with enough context to render an API response.
type ServiceError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Details    map[string]interface{}
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// UserMessage returns the Arabic message for this error.
func (e *ServiceError) UserMessage() string {
	return UserMessage(e.Code)
}

// WithDetails returns the error with an extra detail field.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func newError(code ErrorCode, status int, message string, err error) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

func BadRequest(message string) *ServiceError {
	return newError(CodeBadRequest, http.StatusBadRequest, message, nil)
}

// Validation reports a rejected field.
func Validation(field, reason string) *ServiceError {
	return newError(CodeValidation, http.StatusUnprocessableEntity, reason, nil).WithDetails("field", field)
}

func NotFound(resource, id string) *ServiceError {
	e := newError(CodeNotFound, http.StatusNotFound, resource+" not found", nil)
	if id != "" {
		e.WithDetails("id", id)
	}
	return e
}

func Unauthorized(message string) *ServiceError {
	if message == "" {
		message = "authentication required"
	}
	return newError(CodeUnauthorized, http.StatusUnauthorized, message, nil)
}

func InvalidToken(err error) *ServiceError {
	return newError(CodeInvalidToken, http.StatusUnauthorized, "invalid or expired token", err)
}

func Forbidden(message string) *ServiceError {
	if message == "" {
		message = "access denied"
	}
	return newError(CodeForbidden, http.StatusForbidden, message, nil)
}

func Conflict(message string) *ServiceError {
	return newError(CodeConflict, http.StatusConflict, message, nil)
}

func RateLimitExceeded(limit int, window string) *ServiceError {
	return newError(CodeRateLimited, http.StatusTooManyRequests, "rate limit exceeded", nil).
		WithDetails("limit", limit).
		WithDetails("window", window)
}

func TooLarge(limit int64) *ServiceError {
	return newError(CodeTooLarge, http.StatusRequestEntityTooLarge, "payload too large", nil).
		WithDetails("max_bytes", limit)
}

// Database wraps a failure of the remote database.
func Database(op string, err error) *ServiceError {
	return newError(CodeDatabase, http.StatusBadGateway, op+" failed", err)
}

func Unavailable(message string, err error) *ServiceError {
	return newError(CodeUnavailable, http.StatusServiceUnavailable, message, err)
}

func Internal(message string, err error) *ServiceError {
	return newError(CodeInternal, http.StatusInternalServerError, message, err)
}

// GetServiceError extracts a ServiceError from an error chain.
func GetServiceError(err error) *ServiceError {
	var se *ServiceError
	if stderrors.As(err, &se) {
		return se
	}
	return nil
}

// HasCode reports whether err is a ServiceError with the given code.
func HasCode(err error, code ErrorCode) bool {
	se := GetServiceError(err)
	return se != nil && se.Code == code
}

func IsNotFound(err error) bool     { return HasCode(err, CodeNotFound) }
func IsForbidden(err error) bool    { return HasCode(err, CodeForbidden) }
func IsValidation(err error) bool   { return HasCode(err, CodeValidation) }
func IsUnauthorized(err error) bool { return HasCode(err, CodeUnauthorized) || HasCode(err, CodeInvalidToken) }

// Is and As re-export the standard helpers so callers need a single import.
func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target interface{}) bool { return stderrors.As(err, target) }

func New(text string) error { return stderrors.New(text) }
