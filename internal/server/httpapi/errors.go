package httpapi

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/taskmanager/internal/common"
)

type errorMapping struct {
	err     error
	status  int
	code    string
	message string // empty means err.Error() of the returned error
}

// Order matters: the first match wins.
var errorMappings = []errorMapping{
	{common.ErrorValidation, http.StatusBadRequest, "VALIDATION_ERROR", ""},
	{common.ErrorAlreadyExists, http.StatusBadRequest, "CONFLICT", "email already in use"},
	{common.ErrorNoAvatarProvided, http.StatusBadRequest, "VALIDATION_ERROR", ""},
	{common.ErrorUnsupportedFileType, http.StatusBadRequest, "VALIDATION_ERROR", ""},
	{common.ErrorFileTooLarge, http.StatusBadRequest, "VALIDATION_ERROR", "file too large, maximum size is 5MB"},
	{common.ErrInvalidOTP, http.StatusBadRequest, "INVALID_OTP", ""},
	{common.ErrOTPExpired, http.StatusBadRequest, "OTP_EXPIRED", "code expired, request a new one"},
	{common.ErrTokenExpired, http.StatusUnauthorized, "TOKEN_EXPIRED", "Token expired"},
	{common.ErrInvalidToken, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid token"},
	{common.ErrorInvalidCredentials, http.StatusUnauthorized, "UNAUTHORIZED", "incorrect password"},
	{common.ErrorUnauthorized, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized"},
	{common.ErrorUserNotFound, http.StatusNotFound, "NOT_FOUND", "user not found"},
	{common.ErrorNotFound, http.StatusNotFound, "NOT_FOUND", "not found"},
	{common.ErrRateLimited, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests"},
	{common.ErrEmailDelivery, http.StatusInternalServerError, "EMAIL_DELIVERY", "unable to send email, try again later"},
}

// classify maps an error to status, tag and client-facing message. Unknown
// errors become a generic 500 so internals never reach the client.
func classify(err error) (int, string, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			msg := m.message
			if msg == "" {
				msg = err.Error()
			}
			return m.status, m.code, msg
		}
	}
	return http.StatusInternalServerError, "INTERNAL", "internal server error"
}

func (s *HTTPServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := classify(err)
	if status == http.StatusInternalServerError {
		s.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	writeErrorJSON(w, status, code, msg)
}
