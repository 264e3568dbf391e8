package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Router builds the full route tree.
func (s *HTTPServer) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.corsOrigins(),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.health)
	if s.realtime != nil {
		r.Handle("/ws", s.realtime)
	}
	if s.uploads != nil {
		r.Handle("/uploads/*", http.StripPrefix("/uploads/", s.uploads))
	}

	limit := func(p RateLimitPolicy) func(http.Handler) http.Handler {
		return NewRateLimiter(s.limiter, p, s.failOpen, s.logger).Middleware
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/users", func(r chi.Router) {
			r.Post("/register", s.register)
			r.With(limit(LoginPolicy)).Post("/login", s.login)

			r.Group(func(r chi.Router) {
				r.Use(s.authenticate)
				r.Get("/me", s.me)
				r.Put("/avatar", s.updateAvatar)
				r.Put("/updateavatar", s.updateAvatar)
			})
		})

		r.Route("/auth", func(r chi.Router) {
			r.With(limit(ForgotPolicy)).Post("/forgot-password", s.forgotPassword)
			r.With(limit(VerifyOTPPolicy)).Post("/verify-otp", s.verifyOTP)
			r.With(limit(ResetPasswordPolicy)).Post("/reset-password", s.resetPassword)
		})

		r.Route("/tasks", func(r chi.Router) {
			r.Use(s.authenticate)
			r.Get("/", s.listTasks)
			r.Post("/", s.createTask)
			r.Get("/{id}", s.getTask)
			r.Put("/{id}", s.updateTask)
			r.Delete("/{id}", s.deleteTask)
		})
	})

	return r
}

func (s *HTTPServer) corsOrigins() []string {
	if len(s.allowedOrigins) == 0 {
		return []string{"*"}
	}
	return s.allowedOrigins
}
