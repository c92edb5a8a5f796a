package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a category of application error.
type ErrorCode string

const (
	// ErrCodeNotFound indicates a job or run was not found.
	ErrCodeNotFound ErrorCode = "not_found"
	// ErrCodeConflict indicates a conflict with existing data (e.g., duplicate job id).
	ErrCodeConflict ErrorCode = "conflict"
	// ErrCodeValidation indicates invalid input data.
	ErrCodeValidation ErrorCode = "validation"
	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal ErrorCode = "internal"
	// ErrCodeTimeout indicates a timeout occurred.
	ErrCodeTimeout ErrorCode = "timeout"
	// ErrCodeCanceled indicates the operation was canceled.
	ErrCodeCanceled ErrorCode = "canceled"

	// ErrCodePlanner indicates the planner output was not valid JSON.
	ErrCodePlanner ErrorCode = "planner"
	// ErrCodePatchFormat indicates generated output did not contain a usable diff or rewrite.
	ErrCodePatchFormat ErrorCode = "patch_format"
	// ErrCodePatchApply indicates every apply strategy rejected the diff.
	ErrCodePatchApply ErrorCode = "patch_apply"
	// ErrCodeRewriteEmpty indicates full-file rewrite produced no usable files twice.
	ErrCodeRewriteEmpty ErrorCode = "rewrite_empty"
	// ErrCodeVerification indicates the verify command exited non-zero.
	ErrCodeVerification ErrorCode = "verification"
	// ErrCodeCall indicates the generation endpoint failed.
	ErrCodeCall ErrorCode = "call"
	// ErrCodeRateLimit indicates the generation endpoint kept answering 429.
	// It is a subkind of ErrCodeCall.
	ErrCodeRateLimit ErrorCode = "rate_limit"
)

// AppError represents a structured application error with a code, message, and optional cause.
// It supports error wrapping and unwrapping for use with errors.Is and errors.As.
type AppError struct {
	// Code categorizes the error type
	Code ErrorCode
	// Message is a human-readable error message
	Message string
	// Cause is the underlying error that caused this error (optional)
	Cause error
	// Field is the specific field that caused the error (optional, for validation errors)
	Field string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause, enabling errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Cause
}

func newf(code ErrorCode, format string, args ...any) *AppError {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	return &AppError{Code: code, Message: msg}
}

// NotFound creates a new NotFound error.
func NotFound(message string) *AppError { return newf(ErrCodeNotFound, message) }

// NotFoundf creates a new NotFound error with formatted message.
func NotFoundf(format string, args ...any) *AppError {
	return newf(ErrCodeNotFound, format, args...)
}

// Conflict creates a new Conflict error.
func Conflict(message string) *AppError { return newf(ErrCodeConflict, message) }

// Validation creates a new Validation error.
func Validation(message string) *AppError { return newf(ErrCodeValidation, message) }

// Validationf creates a new Validation error with formatted message.
func Validationf(format string, args ...any) *AppError {
	return newf(ErrCodeValidation, format, args...)
}

// ValidationField creates a new Validation error for a specific field.
func ValidationField(field, message string) *AppError {
	return &AppError{
		Code:    ErrCodeValidation,
		Message: message,
		Field:   field,
	}
}

// Internal creates a new Internal error.
func Internal(message string) *AppError { return newf(ErrCodeInternal, message) }

// Internalf creates a new Internal error with formatted message.
func Internalf(format string, args ...any) *AppError {
	return newf(ErrCodeInternal, format, args...)
}

// Planner reports planner output that could not be parsed.
func Planner(message string) *AppError { return newf(ErrCodePlanner, message) }

// PatchFormat reports generated output that did not contain a usable change.
func PatchFormat(message string) *AppError { return newf(ErrCodePatchFormat, message) }

// PatchApply reports a diff that no apply strategy accepted. The message
// carries the last diagnostic and a short preview of the patch.
func PatchApply(message string) *AppError { return newf(ErrCodePatchApply, message) }

// RewriteEmpty reports a full-file rewrite that produced nothing usable.
func RewriteEmpty(message string) *AppError { return newf(ErrCodeRewriteEmpty, message) }

// Verification reports a failed verify command. The message carries its output.
func Verification(message string) *AppError { return newf(ErrCodeVerification, message) }

// Call reports a generation endpoint failure.
func Call(message string) *AppError { return newf(ErrCodeCall, message) }

// Callf creates a new Call error with formatted message.
func Callf(format string, args ...any) *AppError {
	return newf(ErrCodeCall, format, args...)
}

// RateLimit reports retries exhausted on HTTP 429.
func RateLimit(message string) *AppError { return newf(ErrCodeRateLimit, message) }

// Wrap wraps an existing error with an AppError, preserving the cause.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an existing error with an AppError and formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...any) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   err,
	}
}

// isCode checks if an error has a specific error code.
func isCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// IsNotFound checks if an error is a NotFound error.
func IsNotFound(err error) bool { return isCode(err, ErrCodeNotFound) }

// IsConflict checks if an error is a Conflict error.
func IsConflict(err error) bool { return isCode(err, ErrCodeConflict) }

// IsValidation checks if an error is a Validation error.
func IsValidation(err error) bool { return isCode(err, ErrCodeValidation) }

// IsInternal checks if an error is an Internal error.
func IsInternal(err error) bool { return isCode(err, ErrCodeInternal) }

// IsTimeout checks if an error is a Timeout error.
func IsTimeout(err error) bool { return isCode(err, ErrCodeTimeout) }

// IsCanceled checks if an error is a Canceled error.
func IsCanceled(err error) bool { return isCode(err, ErrCodeCanceled) }

// IsPlanner checks if an error is a Planner error.
func IsPlanner(err error) bool { return isCode(err, ErrCodePlanner) }

// IsPatchFormat checks if an error is a PatchFormat error.
func IsPatchFormat(err error) bool { return isCode(err, ErrCodePatchFormat) }

// IsPatchApply checks if an error is a PatchApply error.
func IsPatchApply(err error) bool { return isCode(err, ErrCodePatchApply) }

// IsRewriteEmpty checks if an error is a RewriteEmpty error.
func IsRewriteEmpty(err error) bool { return isCode(err, ErrCodeRewriteEmpty) }

// IsVerification checks if an error is a Verification error.
func IsVerification(err error) bool { return isCode(err, ErrCodeVerification) }

// IsRateLimit checks if an error is a RateLimit error.
func IsRateLimit(err error) bool { return isCode(err, ErrCodeRateLimit) }

// IsCall checks if an error is a Call error. RateLimit errors count as Call errors.
func IsCall(err error) bool {
	return isCode(err, ErrCodeCall) || isCode(err, ErrCodeRateLimit)
}

// GetCode returns the ErrorCode from an error, or empty string if not an AppError.
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// GetField returns the Field from an error, or empty string if not an AppError or no field set.
func GetField(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Field
	}
	return ""
}
