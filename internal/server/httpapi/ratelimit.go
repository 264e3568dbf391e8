package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrijs2005/taskmanager/internal/logging"
)

// Limiter counts hits per key in fixed windows.
type Limiter interface {
	// Allow records a hit for key unless the window is exhausted and reports
	// whether the request may proceed and, if not, when to retry.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error)
	// Release takes back one hit recorded for key in the current window.
	Release(ctx context.Context, key string) error
}

// RateLimitPolicy describes one endpoint limit.
type RateLimitPolicy struct {
	Name   string
	Limit  int
	Window time.Duration
	// SkipSuccessful only counts requests answered with a status >= 400.
	SkipSuccessful bool
	// WithEmail keys the limit by client IP and the email in the JSON body.
	WithEmail bool
}

// Endpoint limits.
var (
	LoginPolicy         = RateLimitPolicy{Name: "login", Limit: 10, Window: 15 * time.Minute, SkipSuccessful: true}
	ForgotPolicy        = RateLimitPolicy{Name: "forgot", Limit: 5, Window: time.Hour, SkipSuccessful: true, WithEmail: true}
	VerifyOTPPolicy     = RateLimitPolicy{Name: "verify", Limit: 3, Window: 15 * time.Minute, WithEmail: true}
	ResetPasswordPolicy = RateLimitPolicy{Name: "reset", Limit: 3, Window: 30 * time.Minute}
)

const maxKeyBodyBytes = 64 << 10

// RateLimiter enforces a policy through a Limiter.
type RateLimiter struct {
	limiter  Limiter
	policy   RateLimitPolicy
	failOpen bool
	logger   logging.Logger
}

func NewRateLimiter(limiter Limiter, policy RateLimitPolicy, failOpen bool, logger logging.Logger) *RateLimiter {
	return &RateLimiter{limiter: limiter, policy: policy, failOpen: failOpen, logger: logger}
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := rl.policy.Name + ":" + rl.key(r)

		allowed, retryAfter, err := rl.limiter.Allow(r.Context(), key, rl.policy.Limit, rl.policy.Window)
		if err != nil {
			if rl.failOpen {
				rl.logger.Warn(r.Context(), "rate limiter backend unavailable, allowing request",
					"policy", rl.policy.Name, "error", err)
				next.ServeHTTP(w, r)
				return
			}
			rl.logger.Error(r.Context(), "rate limiter backend unavailable", "policy", rl.policy.Name, "error", err)
			retryAfter = rl.policy.Window
			allowed = false
		}
		if !allowed {
			w.Header().Set("Retry-After", retryAfterHeader(retryAfter))
			writeErrorJSON(w, http.StatusTooManyRequests, "RATE_LIMITED",
				"too many attempts, limit is "+strconv.Itoa(rl.policy.Limit)+" per "+rl.policy.Window.String())
			return
		}

		if !rl.policy.SkipSuccessful {
			next.ServeHTTP(w, r)
			return
		}

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		if status := ww.Status(); status != 0 && status < http.StatusBadRequest {
			if err := rl.limiter.Release(r.Context(), key); err != nil {
				rl.logger.Warn(r.Context(), "rate limiter release failed", "policy", rl.policy.Name, "error", err)
			}
		}
	})
}

func (rl *RateLimiter) key(r *http.Request) string {
	ip := clientIP(r)
	if !rl.policy.WithEmail {
		return ip
	}
	email := emailFromBody(r)
	if email == "" {
		email = "unknown"
	}
	return ip + "-" + email
}

// emailFromBody peeks at the JSON body and restores it for the handler.
func emailFromBody(r *http.Request) string {
	if r.Body == nil {
		return ""
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, maxKeyBodyBytes))
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(data))
	if err != nil {
		return ""
	}

	var body struct {
		Email string `json:"email"`
	}
	if json.Unmarshal(data, &body) != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(body.Email))
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

func retryAfterHeader(d time.Duration) string {
	seconds := int(d.Round(time.Second).Seconds())
	if seconds <= 0 {
		seconds = 1
	}
	return strconv.Itoa(seconds)
}

type fixedWindow struct {
	count       int
	windowStart time.Time
	window      time.Duration
}

// LocalLimiter keeps fixed-window counters in process memory.
type LocalLimiter struct {
	mu      sync.Mutex
	store   map[string]*fixedWindow
	cleanup time.Time
	now     func() time.Time
}

func NewLocalLimiter() *LocalLimiter {
	return &LocalLimiter{
		store:   make(map[string]*fixedWindow),
		cleanup: time.Now().Add(time.Minute),
		now:     time.Now,
	}
}

func (l *LocalLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.After(l.cleanup) {
		for k, v := range l.store {
			if now.Sub(v.windowStart) >= v.window {
				delete(l.store, k)
			}
		}
		l.cleanup = now.Add(time.Minute)
	}

	entry, ok := l.store[key]
	if !ok || now.Sub(entry.windowStart) >= window {
		l.store[key] = &fixedWindow{count: 1, windowStart: now, window: window}
		return true, 0, nil
	}
	if entry.count >= limit {
		return false, window - now.Sub(entry.windowStart), nil
	}
	entry.count++
	return true, 0, nil
}

func (l *LocalLimiter) Release(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if entry, ok := l.store[key]; ok && entry.count > 0 {
		entry.count--
	}
	return nil
}
