package httpx

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/ksurdhar/draft-editor-sub002/internal/app"
	"github.com/ksurdhar/draft-editor-sub002/internal/relay"
	"github.com/ksurdhar/draft-editor-sub002/internal/store"
	"github.com/ksurdhar/draft-editor-sub002/internal/ws"
	"github.com/ksurdhar/draft-editor-sub002/pkg/auth"
	"github.com/ksurdhar/draft-editor-sub002/pkg/metrics"
)

// NewRouter wires up all HTTP routes, middleware, and handlers
func NewRouter(cfg app.Config, logger *slog.Logger, wsrv *ws.Server, reg *relay.Registry, db *store.Postgres) http.Handler {
	mw := NewMiddleware(cfg)

	j := auth.New(cfg.JWTSecret)
	authAPI := &AuthAPI{DB: db, JWT: j}
	drafts := &DraftsAPI{DB: db}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(mw.CORS)
	r.Use(mw.RateLimit)

	// Health / readiness / metrics
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Handle("/metrics", metrics.Handler())
	r.Get("/stats", func(w http.ResponseWriter, _ *http.Request) {
		rooms, conns := reg.Stats()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]int{"rooms": rooms, "connections": conns})
	})

	// WebSocket endpoint; token rides the query string
	r.Get("/ws", wsrv.HandleWS)

	r.Route("/api", func(api chi.Router) {
		api.Post("/auth/register", authAPI.Register)
		api.Post("/auth/login", authAPI.Login)

		// JWT-protected
		api.Group(func(pr chi.Router) {
			pr.Use(mw.Auth)
			pr.Get("/auth/me", authAPI.Me)
			pr.Route("/drafts", func(dr chi.Router) {
				dr.Post("/", drafts.Create)
				dr.Get("/", drafts.List)
				dr.Get("/{id}", drafts.Get)
			})
		})
	})

	return r
}
