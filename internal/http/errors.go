package httpx

import (
	"net/http"

	apperrors "github.com/target/selfheal/internal/errors"
)

// statusFor maps an application error code to its HTTP status.
func statusFor(err error) int {
	switch apperrors.GetCode(err) {
	case apperrors.ErrCodeValidation:
		return http.StatusBadRequest
	case apperrors.ErrCodeNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeConflict:
		return http.StatusConflict
	case apperrors.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError renders err with a status derived from its AppError code.
// Errors without a code are reported under fallback.
func writeServiceError(w http.ResponseWriter, err error, fallback string) {
	code := string(apperrors.GetCode(err))
	if code == "" {
		code = fallback
	}
	WriteError(w, ErrorParams{Code: statusFor(err), ErrCode: code, Err: err})
}

// badRequest writes a 400 validation error with the given message.
func badRequest(w http.ResponseWriter, field, message string) {
	writeServiceError(w, apperrors.ValidationField(field, message), "")
}
