// Package services contains server-side business logic. This file implements
// UserService: registration, login, session-token checks and avatars.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"github.com/dmitrijs2005/taskmanager/internal/common"
	"github.com/dmitrijs2005/taskmanager/internal/logging"
	"github.com/dmitrijs2005/taskmanager/internal/server/auth"
	"github.com/dmitrijs2005/taskmanager/internal/server/config"
	"github.com/dmitrijs2005/taskmanager/internal/server/models"
	"github.com/dmitrijs2005/taskmanager/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/taskmanager/internal/server/storage"
)

// MinPasswordLength applies to registration and password reset.
const MinPasswordLength = 6

// Upload is an uploaded avatar image.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Content     io.Reader
}

// RegisterInput carries the fields of a registration form.
type RegisterInput struct {
	Username string
	Email    string
	Password string
	Avatar   *Upload
}

// Session is the result of a successful login.
type Session struct {
	Token string
	User  *models.User
}

// UserService provides account operations:
// - Register: create users, optionally with an avatar
// - Login: verify credentials and mint a session token
// - Authenticate: verify a session token
// - Me / UpdateAvatar: read and modify the current user
type UserService struct {
	db                           *sql.DB
	repomanager                  repomanager.RepositoryManager
	avatars                      storage.AvatarStore
	logger                       logging.Logger
	jwtSecret                    []byte
	sessionTokenValidityDuration time.Duration
	bcryptCost                   int
}

// NewUserService constructs a UserService using repositories and server config.
func NewUserService(db *sql.DB, m repomanager.RepositoryManager, avatars storage.AvatarStore, logger logging.Logger, cfg *config.Config) *UserService {
	return &UserService{
		db:                           db,
		repomanager:                  m,
		avatars:                      avatars,
		logger:                       logger,
		jwtSecret:                    []byte(cfg.SecretKey),
		sessionTokenValidityDuration: cfg.SessionTokenValidityDuration,
		bcryptCost:                   cfg.BcryptCost,
	}
}

// Register validates the form, stores the optional avatar and creates the
// user. A duplicate email yields common.ErrorAlreadyExists; the stored
// avatar is removed again when the user could not be created.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	username := strings.TrimSpace(in.Username)
	email := normalizeEmail(in.Email)

	if username == "" {
		return nil, fmt.Errorf("%w: username is required", common.ErrorValidation)
	}
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("error hashing password: %w", err)
	}

	var avatar *string
	if in.Avatar != nil {
		url, err := s.storeAvatar(ctx, in.Avatar)
		if err != nil {
			return nil, err
		}
		avatar = &url
	}

	user := &models.User{Username: username, Email: email, PasswordHash: string(hash), Avatar: avatar}
	u, err := s.repomanager.Users(s.db).Create(ctx, user)
	if err != nil {
		if avatar != nil {
			s.discardAvatar(ctx, *avatar)
		}
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, err
		}
		return nil, fmt.Errorf("error creating user: %w", err)
	}

	return u, nil
}

// Login checks the password of the account registered under email. An
// unknown email yields common.ErrorUserNotFound, a wrong password
// common.ErrorInvalidCredentials.
func (s *UserService) Login(ctx context.Context, email, password string) (*Session, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", common.ErrorValidation)
	}

	user, err := s.repomanager.Users(s.db).GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUserNotFound
		}
		return nil, fmt.Errorf("error loading user: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, common.ErrorInvalidCredentials
	}

	token, err := auth.GenerateToken(user.ID, user.Email, user.Username, s.jwtSecret, s.sessionTokenValidityDuration)
	if err != nil {
		return nil, fmt.Errorf("error signing token: %w", err)
	}

	return &Session{Token: token, User: user}, nil
}

// Authenticate verifies a session token.
func (s *UserService) Authenticate(token string) (*auth.Claims, error) {
	return auth.ParseToken(token, s.jwtSecret)
}

// Me returns the user behind a session.
func (s *UserService) Me(ctx context.Context, userID int64) (*models.User, error) {
	user, err := s.repomanager.Users(s.db).GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUserNotFound
		}
		return nil, fmt.Errorf("error loading user: %w", err)
	}
	return user, nil
}

// UpdateAvatar replaces the user's avatar and returns its new URL. The
// previous image is removed on a best-effort basis.
func (s *UserService) UpdateAvatar(ctx context.Context, userID int64, upload *Upload) (string, error) {
	if upload == nil {
		return "", common.ErrorNoAvatarProvided
	}

	user, err := s.Me(ctx, userID)
	if err != nil {
		return "", err
	}

	url, err := s.storeAvatar(ctx, upload)
	if err != nil {
		return "", err
	}

	if err := s.repomanager.Users(s.db).UpdateAvatar(ctx, userID, url); err != nil {
		s.discardAvatar(ctx, url)
		if errors.Is(err, common.ErrorNotFound) {
			return "", common.ErrorUserNotFound
		}
		return "", fmt.Errorf("error updating avatar: %w", err)
	}

	if user.Avatar != nil && *user.Avatar != "" {
		s.discardAvatar(ctx, *user.Avatar)
	}

	return url, nil
}

func (s *UserService) storeAvatar(ctx context.Context, upload *Upload) (string, error) {
	if err := storage.ValidateImage(upload.Filename, upload.ContentType, upload.Size); err != nil {
		return "", err
	}
	url, err := s.avatars.Save(ctx, upload.Filename, upload.ContentType, upload.Content)
	if err != nil {
		return "", fmt.Errorf("error storing avatar: %w", err)
	}
	return url, nil
}

func (s *UserService) discardAvatar(ctx context.Context, url string) {
	if err := s.avatars.Delete(ctx, url); err != nil {
		s.logger.Warn(ctx, "failed to remove avatar", "avatar", url, "error", err)
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("%w: email is required", common.ErrorValidation)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return fmt.Errorf("%w: email is invalid", common.ErrorValidation)
	}
	return nil
}

func validatePassword(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", common.ErrorValidation, MinPasswordLength)
	}
	return nil
}
