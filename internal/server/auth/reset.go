package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dmitrijs2005/taskmanager/internal/common"
)

// ResetPurpose tags tokens that authorize a password change.
const ResetPurpose = "password_reset"

// ResetClaims bind an email to the password-reset purpose. They are never
// stored server-side; validity is signature and expiry only.
type ResetClaims struct {
	jwt.RegisteredClaims
	Email   string `json:"email"`
	Purpose string `json:"type"`
}

// GenerateResetToken signs a reset token for email issued at issuedAt.
func GenerateResetToken(email string, secretKey []byte, issuedAt time.Time, validityDuration time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, ResetClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(validityDuration)),
		},
		Email:   email,
		Purpose: ResetPurpose,
	})
	return token.SignedString(secretKey)
}

// ParseResetToken returns the email bound to a valid reset token. Expired,
// forged and wrong-purpose tokens all yield common.ErrInvalidToken.
func ParseResetToken(tokenString string, secretKey []byte) (string, error) {
	claims := &ResetClaims{}
	if err := parse(tokenString, claims, secretKey); err != nil {
		return "", common.ErrInvalidToken
	}
	if claims.Purpose != ResetPurpose || claims.Email == "" {
		return "", common.ErrInvalidToken
	}
	return claims.Email, nil
}
