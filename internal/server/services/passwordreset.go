package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/dmitrijs2005/taskmanager/internal/common"
	"github.com/dmitrijs2005/taskmanager/internal/dbx"
	"github.com/dmitrijs2005/taskmanager/internal/logging"
	"github.com/dmitrijs2005/taskmanager/internal/server/auth"
	"github.com/dmitrijs2005/taskmanager/internal/server/config"
	"github.com/dmitrijs2005/taskmanager/internal/server/mailer"
	"github.com/dmitrijs2005/taskmanager/internal/server/models"
	"github.com/dmitrijs2005/taskmanager/internal/server/otp"
	"github.com/dmitrijs2005/taskmanager/internal/server/repositories/repomanager"
)

// CodeGenerator produces one-time reset codes.
type CodeGenerator interface {
	Generate() string
}

// UserNotifier pushes free-form notifications to a user's live sessions.
type UserNotifier interface {
	SendNotification(userID int64, title, message, kind string)
}

// PasswordResetService runs the forgot-password flow:
// RequestReset emails a code, VerifyOTP trades a code for a reset token and
// ResetPassword trades the token for a new password.
type PasswordResetService struct {
	db                         *sql.DB
	repomanager                repomanager.RepositoryManager
	mailer                     mailer.Sender
	notifier                   UserNotifier
	codes                      CodeGenerator
	logger                     logging.Logger
	resetSecret                []byte
	resetTokenValidityDuration time.Duration
	otpValidityDuration        time.Duration
	bcryptCost                 int
	now                        func() time.Time
}

func NewPasswordResetService(db *sql.DB, m repomanager.RepositoryManager, sender mailer.Sender, notifier UserNotifier,
	codes CodeGenerator, logger logging.Logger, cfg *config.Config) *PasswordResetService {
	return &PasswordResetService{
		db:                         db,
		repomanager:                m,
		mailer:                     sender,
		notifier:                   notifier,
		codes:                      codes,
		logger:                     logger,
		resetSecret:                []byte(cfg.ResetSecret()),
		resetTokenValidityDuration: cfg.ResetTokenValidityDuration,
		otpValidityDuration:        cfg.OTPValidityDuration,
		bcryptCost:                 cfg.BcryptCost,
		now:                        time.Now,
	}
}

// storeCodeAttempts bounds how often RequestReset retries when a concurrent
// request for the same email wins the unique unused-code slot.
const storeCodeAttempts = 2

// RequestReset issues a fresh code for email and mails it. Unknown emails
// succeed silently so callers cannot enumerate accounts. Earlier codes for
// the email are discarded. The code is committed before the mail is sent;
// when the mail cannot be sent the new code is deleted again and
// common.ErrEmailDelivery is returned.
func (s *PasswordResetService) RequestReset(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return err
	}

	if _, err := s.repomanager.Users(s.db).GetByEmail(ctx, email); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.logger.Debug(ctx, "password reset requested for unknown email")
			return nil
		}
		return fmt.Errorf("error loading user: %w", err)
	}

	code := s.codes.Generate()
	hash, err := otp.Hash(code, s.bcryptCost)
	if err != nil {
		return err
	}

	now := s.now()
	reset := &models.PasswordReset{
		Email:     email,
		OTPHash:   hash,
		ExpiresAt: otp.ExpiresAt(now, s.otpValidityDuration),
	}

	if err := s.storeCode(ctx, reset); err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			// A concurrent request keeps issuing its own code for this email.
			s.logger.Info(ctx, "password reset superseded by a concurrent request")
			return nil
		}
		return err
	}

	err = s.mailer.SendResetCode(ctx, mailer.ResetCodeNotification{
		Email:     email,
		Code:      code,
		ExpiresAt: reset.ExpiresAt,
		Validity:  s.otpValidityDuration,
	})
	if err != nil {
		s.logger.Error(ctx, "failed to send reset code", "error", err)
		if derr := s.repomanager.PasswordResets(s.db).Delete(ctx, reset.ID); derr != nil {
			s.logger.Error(ctx, "failed to discard undelivered reset code", "error", derr)
		}
		return common.ErrEmailDelivery
	}
	return nil
}

// storeCode replaces every code for reset.Email with reset. A unique
// violation means another request inserted between our delete and insert;
// the swap is retried and common.ErrorAlreadyExists is returned if it keeps
// losing.
func (s *PasswordResetService) storeCode(ctx context.Context, reset *models.PasswordReset) error {
	var err error
	for attempt := 0; attempt < storeCodeAttempts; attempt++ {
		err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
			repo := s.repomanager.PasswordResets(tx)
			if err := repo.DeleteByEmail(ctx, reset.Email); err != nil {
				return fmt.Errorf("error discarding previous codes: %w", err)
			}
			if _, err := repo.Create(ctx, reset); err != nil {
				return fmt.Errorf("error storing code: %w", err)
			}
			return nil
		})
		if !errors.Is(err, common.ErrorAlreadyExists) {
			return err
		}
	}
	return err
}

// VerifyOTP checks code against the latest unused code for email. On
// success the code is consumed and a reset token is returned. An expired
// code is deleted and yields common.ErrOTPExpired; a wrong code leaves the
// record untouched.
func (s *PasswordResetService) VerifyOTP(ctx context.Context, email, code string) (string, error) {
	email = normalizeEmail(email)
	if email == "" {
		return "", fmt.Errorf("%w: email is required", common.ErrorValidation)
	}
	if !otp.ValidFormat(code) {
		return "", fmt.Errorf("%w: code must be exactly %d digits", common.ErrorValidation, otp.Length)
	}

	repo := s.repomanager.PasswordResets(s.db)

	reset, err := repo.FindLatestUnused(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", common.ErrInvalidOTP
		}
		return "", fmt.Errorf("error loading code: %w", err)
	}

	now := s.now()
	if reset.IsExpired(now) {
		if err := repo.Delete(ctx, reset.ID); err != nil {
			s.logger.Warn(ctx, "failed to delete expired code", "reset_id", reset.ID, "error", err)
		}
		return "", common.ErrOTPExpired
	}

	if !otp.Verify(code, reset.OTPHash) {
		return "", common.ErrInvalidOTP
	}

	if err := repo.MarkUsed(ctx, reset.ID); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			// consumed concurrently
			return "", common.ErrInvalidOTP
		}
		return "", fmt.Errorf("error consuming code: %w", err)
	}

	token, err := auth.GenerateResetToken(email, s.resetSecret, now, s.resetTokenValidityDuration)
	if err != nil {
		return "", fmt.Errorf("error signing reset token: %w", err)
	}
	return token, nil
}

// ResetPassword sets a new password for the email bound to token and
// removes every code for that email. The confirmation email and the live
// notification are best effort.
func (s *PasswordResetService) ResetPassword(ctx context.Context, token, newPassword string) error {
	email, err := auth.ParseResetToken(token, s.resetSecret)
	if err != nil {
		return err
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	user, err := s.repomanager.Users(s.db).GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorUserNotFound
		}
		return fmt.Errorf("error loading user: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("error hashing password: %w", err)
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Users(tx).UpdatePasswordByEmail(ctx, email, string(hash)); err != nil {
			return fmt.Errorf("error updating password: %w", err)
		}
		if err := s.repomanager.PasswordResets(tx).DeleteByEmail(ctx, email); err != nil {
			return fmt.Errorf("error discarding codes: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorUserNotFound
		}
		return err
	}

	if err := s.mailer.SendPasswordChanged(ctx, email); err != nil {
		s.logger.Warn(ctx, "failed to send password change confirmation", "user_id", user.ID, "error", err)
	}
	s.notifier.SendNotification(user.ID, "Password changed", "Your password was changed successfully", "success")

	return nil
}

// CleanupExpired purges codes that are past their expiry.
func (s *PasswordResetService) CleanupExpired(ctx context.Context) (int64, error) {
	n, err := s.repomanager.PasswordResets(s.db).DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("error purging expired codes: %w", err)
	}
	return n, nil
}

// RunCleanup calls CleanupExpired every interval until ctx is done.
// A non-positive interval disables the loop.
func (s *PasswordResetService) RunCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		s.logger.Warn(ctx, "expired code cleanup disabled", "interval", interval)
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.CleanupExpired(ctx)
			if err != nil {
				s.logger.Error(ctx, "expired code cleanup failed", "error", err)
				continue
			}
			if n > 0 {
				s.logger.Info(ctx, "expired codes removed", "count", n)
			}
		}
	}
}
