// Package httpapi exposes the REST endpoints and mounts the websocket hub.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/taskmanager/internal/logging"
	"github.com/dmitrijs2005/taskmanager/internal/server/auth"
	"github.com/dmitrijs2005/taskmanager/internal/server/models"
	"github.com/dmitrijs2005/taskmanager/internal/server/services"
)

type UserService interface {
	Register(ctx context.Context, in services.RegisterInput) (*models.User, error)
	Login(ctx context.Context, email, password string) (*services.Session, error)
	Authenticate(token string) (*auth.Claims, error)
	Me(ctx context.Context, userID int64) (*models.User, error)
	UpdateAvatar(ctx context.Context, userID int64, upload *services.Upload) (string, error)
}

type PasswordResetService interface {
	RequestReset(ctx context.Context, email string) error
	VerifyOTP(ctx context.Context, email, code string) (string, error)
	ResetPassword(ctx context.Context, token, newPassword string) error
}

type TaskService interface {
	List(ctx context.Context, userID int64) ([]*models.Task, error)
	Create(ctx context.Context, userID int64, title, status string) (*models.Task, error)
	Get(ctx context.Context, userID, id int64) (*models.Task, error)
	Update(ctx context.Context, userID, id int64, title, status string) (*models.Task, error)
	Delete(ctx context.Context, userID, id int64) error
}

// Pinger reports database reachability.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Options wires the collaborators of an HTTPServer.
type Options struct {
	Address        string
	Users          UserService
	PasswordResets PasswordResetService
	Tasks          TaskService
	// Realtime serves /ws.
	Realtime http.Handler
	// Uploads serves /uploads/*; nil when avatars live in object storage.
	Uploads           http.Handler
	DB                Pinger
	Limiter           Limiter
	RateLimitFailOpen bool
	AllowedOrigins    []string
}

type HTTPServer struct {
	address        string
	users          UserService
	passwordResets PasswordResetService
	tasks          TaskService
	realtime       http.Handler
	uploads        http.Handler
	db             Pinger
	limiter        Limiter
	failOpen       bool
	allowedOrigins []string
	logger         logging.Logger
}

func NewHTTPServer(opts Options, l logging.Logger) *HTTPServer {
	limiter := opts.Limiter
	if limiter == nil {
		limiter = NewLocalLimiter()
	}
	return &HTTPServer{
		address:        opts.Address,
		users:          opts.Users,
		passwordResets: opts.PasswordResets,
		tasks:          opts.Tasks,
		realtime:       opts.Realtime,
		uploads:        opts.Uploads,
		db:             opts.DB,
		limiter:        limiter,
		failOpen:       opts.RateLimitFailOpen,
		allowedOrigins: opts.AllowedOrigins,
		logger:         l.With("module", "http_server"),
	}
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *HTTPServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(shutdownCtx, "HTTP server shutdown failed", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
