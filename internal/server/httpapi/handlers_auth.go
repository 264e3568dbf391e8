package httpapi

import "net/http"

const forgotPasswordMessage = "If an account exists for this email, a reset code has been sent"

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type verifyOTPRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

type resetPasswordRequest struct {
	ResetToken  string `json:"resetToken"`
	NewPassword string `json:"newPassword"`
}

func (s *HTTPServer) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.passwordResets.RequestReset(r.Context(), req.Email); err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, nil, forgotPasswordMessage)
}

func (s *HTTPServer) verifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	token, err := s.passwordResets.VerifyOTP(r.Context(), req.Email, req.OTP)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"resetToken": token}, "Code verified")
}

func (s *HTTPServer) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.passwordResets.ResetPassword(r.Context(), req.ResetToken, req.NewPassword); err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, nil, "Password reset successfully")
}
