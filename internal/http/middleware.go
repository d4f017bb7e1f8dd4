package httpx

import (
	"net/http"
	"strings"

	"github.com/rs/cors"

	"github.com/ksurdhar/draft-editor-sub002/internal/app"
	"github.com/ksurdhar/draft-editor-sub002/pkg/auth"
	"github.com/ksurdhar/draft-editor-sub002/pkg/ratelimit"
)

type Middleware struct {
	cors   *cors.Cors
	auth   *auth.JWT
	rlimit *ratelimit.Limiter
}

// NewMiddleware builds the shared middleware stack from config
func NewMiddleware(cfg app.Config) *Middleware {
	return &Middleware{
		cors: cors.New(cors.Options{
			AllowedOrigins:   cfg.CORSAllow,
			AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: true,
		}),
		auth:   auth.New(cfg.JWTSecret),
		rlimit: ratelimit.New(cfg.RateLimitRPS, cfg.RateLimitBurst),
	}
}

// CORS applies the configured allowlist
func (m *Middleware) CORS(h http.Handler) http.Handler { return m.cors.Handler(h) }

// RateLimit applies the per-IP limiter
func (m *Middleware) RateLimit(h http.Handler) http.Handler { return m.rlimit.Middleware(h) }

// Auth enforces JWT auth and adds user ID to the request context
func (m *Middleware) Auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b := r.Header.Get("Authorization")
		if !strings.HasPrefix(b, "Bearer ") {
			http.Error(w, "no token", http.StatusUnauthorized)
			return
		}
		uid, err := m.auth.Verify(strings.TrimPrefix(b, "Bearer "))
		if err != nil {
			http.Error(w, "bad token", http.StatusUnauthorized)
			return
		}
		// Pass along the user ID for downstream handlers
		next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), uid)))
	})
}
