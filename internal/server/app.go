// Package server assembles the task manager: it opens the database, applies
// migrations, picks the mail, avatar and rate-limit backends from the config
// and runs the HTTP API, the realtime hub and the code cleanup loop until the
// context is cancelled.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/dmitrijs2005/taskmanager/internal/logging"
	"github.com/dmitrijs2005/taskmanager/internal/server/config"
	"github.com/dmitrijs2005/taskmanager/internal/server/httpapi"
	"github.com/dmitrijs2005/taskmanager/internal/server/mailer"
	"github.com/dmitrijs2005/taskmanager/internal/server/otp"
	"github.com/dmitrijs2005/taskmanager/internal/server/realtime"
	"github.com/dmitrijs2005/taskmanager/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/taskmanager/internal/server/services"
	"github.com/dmitrijs2005/taskmanager/internal/server/storage"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// avatarURLPrefix is where locally stored avatars are served from.
const avatarURLPrefix = "/uploads/images/users"

type App struct {
	config  *config.Config
	logger  logging.Logger
	db      *sql.DB
	hub     *realtime.Hub
	resets  *services.PasswordResetService
	server  *httpapi.HTTPServer
	closers []func() error
}

// newLogger picks the slog JSON handler or the zerolog console writer.
func newLogger(format string) logging.Logger {
	if format == "console" {
		return logging.NewConsoleLogger(os.Stdout, zerolog.InfoLevel)
	}
	return logging.NewJSONSlogLogger(os.Stdout, slog.LevelInfo)
}

// openDB is a seam for tests.
var openDB = func(dsn string) (*sql.DB, error) {
	return sql.Open("pgx", dsn)
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := newLogger(c.LogFormat)
	app := &App{config: c, logger: logger}

	db, err := openDB(c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	app.db = db
	app.closers = append(app.closers, db.Close)

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		app.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	limiter := app.newLimiter()
	sender, err := app.newMailer()
	if err != nil {
		app.Close()
		return nil, err
	}
	avatars, uploads, err := app.newAvatarStore(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}

	app.hub = realtime.NewHub(logger)

	users := services.NewUserService(db, rm, avatars, logger.With("module", "users"), c)
	tasks := services.NewTaskService(db, rm, app.hub, logger.With("module", "tasks"))
	app.resets = services.NewPasswordResetService(db, rm, sender, app.hub, otp.NewGenerator(),
		logger.With("module", "password_reset"), c)

	ws := realtime.NewHandler(app.hub, func(token string) (realtime.Identity, error) {
		claims, err := users.Authenticate(token)
		if err != nil {
			return realtime.Identity{}, err
		}
		return realtime.Identity{UserID: claims.UserID, Email: claims.Email, Username: claims.Username}, nil
	}, c.AllowedOrigins, logger)

	app.server = httpapi.NewHTTPServer(httpapi.Options{
		Address:           c.HTTPAddr,
		Users:             users,
		PasswordResets:    app.resets,
		Tasks:             tasks,
		Realtime:          ws,
		Uploads:           uploads,
		DB:                db,
		Limiter:           limiter,
		RateLimitFailOpen: c.RateLimitFailOpen,
		AllowedOrigins:    c.AllowedOrigins,
	}, logger)

	return app, nil
}

func (app *App) newLimiter() httpapi.Limiter {
	if app.config.RedisAddr == "" {
		return httpapi.NewLocalLimiter()
	}
	client := redis.NewClient(&redis.Options{Addr: app.config.RedisAddr})
	app.closers = append(app.closers, client.Close)
	return httpapi.NewRedisLimiter(client, "taskmanager:rl")
}

func (app *App) newMailer() (mailer.Sender, error) {
	c := app.config
	if c.SMTPHost == "" {
		app.logger.Warn(context.Background(), "SMTP host not set, reset codes will be logged")
		return mailer.NewLogSender(app.logger.With("module", "mailer")), nil
	}
	s, err := mailer.NewSMTPSender(mailer.SMTPConfig{
		Host:     c.SMTPHost,
		Port:     c.SMTPPort,
		Username: c.SMTPUser,
		Password: c.SMTPPassword,
		From:     c.MailFrom,
	})
	if err != nil {
		return nil, fmt.Errorf("mailer init error: %w", err)
	}
	return s, nil
}

// newAvatarStore returns the avatar backend and, for local storage, the
// handler serving /uploads.
func (app *App) newAvatarStore(ctx context.Context) (storage.AvatarStore, http.Handler, error) {
	c := app.config
	if c.S3Bucket != "" {
		s, err := storage.NewS3Store(ctx, storage.S3Config{
			AccessKey:    c.S3RootUser,
			SecretKey:    c.S3RootPassword,
			Region:       c.S3Region,
			Bucket:       c.S3Bucket,
			BaseEndpoint: c.S3BaseEndpoint,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("s3 init error: %w", err)
		}
		return s, nil, nil
	}

	s, err := storage.NewDiskStore(c.AvatarDir, avatarURLPrefix)
	if err != nil {
		return nil, nil, fmt.Errorf("avatar dir error: %w", err)
	}
	// The router strips "/uploads/", leaving "images/users/<file>".
	files := http.StripPrefix("images/users", http.FileServer(http.Dir(c.AvatarDir)))
	return s, files, nil
}

// Run blocks until ctx is cancelled and every component has stopped.
func (app *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	app.logger.Info(ctx, "Starting app...")

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.hub.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.resets.RunCleanup(ctx, app.config.OTPCleanupInterval)
	}()

	err := app.server.Run(ctx)
	if err != nil {
		app.logger.Error(ctx, "HTTP server failed", "error", err)
	}
	cancel()
	wg.Wait()

	app.Close()
	app.logger.Info(context.Background(), "App stopped")
	return err
}

// Close releases the database and cache connections.
func (app *App) Close() {
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i](); err != nil {
			app.logger.Warn(context.Background(), "close failed", "error", err)
		}
	}
	app.closers = nil
}
