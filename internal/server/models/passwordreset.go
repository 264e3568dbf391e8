package models

import "time"

// PasswordReset is a stored one-time reset code. OTPHash is the bcrypt hash
// of the six-digit code; the plain code is only ever sent by email.
type PasswordReset struct {
	ID        int64
	Email     string
	OTPHash   string
	ExpiresAt time.Time
	Used      bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsExpired reports whether the code is past its expiry at now.
func (p *PasswordReset) IsExpired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

// IsValid reports whether the code may still be redeemed at now.
func (p *PasswordReset) IsValid(now time.Time) bool {
	return !p.Used && !p.IsExpired(now)
}
