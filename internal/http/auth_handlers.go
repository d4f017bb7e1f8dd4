package httpx

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/ksurdhar/draft-editor-sub002/internal/store"
	"github.com/ksurdhar/draft-editor-sub002/pkg/auth"
)

const tokenTTL = 24 * time.Hour

type AuthAPI struct {
	DB  *store.Postgres
	JWT *auth.JWT
}

type credentialsReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResp struct {
	Token string      `json:"token"`
	User  authUserDTO `json:"user"`
}

type authUserDTO struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Register handles user signup and returns a JWT
func (a *AuthAPI) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}
	req.Email = strings.TrimSpace(req.Email)

	// Basic validation
	if len(req.Password) < 8 || !strings.Contains(req.Email, "@") {
		http.Error(w, "invalid email or weak password", http.StatusBadRequest)
		return
	}

	u, err := a.DB.CreateUser(r.Context(), req.Email, req.Password)
	if err != nil {
		http.Error(w, "email already in use", http.StatusConflict)
		return
	}

	tok, _ := a.JWT.Sign(u.ID, tokenTTL)
	writeJSON(w, tokenResp{Token: tok, User: authUserDTO{ID: u.ID, Email: u.Email}})
}

// Login verifies credentials and returns a JWT
func (a *AuthAPI) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}

	u, err := a.DB.VerifyUser(r.Context(), req.Email, req.Password)
	if err != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	tok, _ := a.JWT.Sign(u.ID, tokenTTL)
	writeJSON(w, tokenResp{Token: tok, User: authUserDTO{ID: u.ID, Email: u.Email}})
}

// Me returns the authenticated user's ID
func (a *AuthAPI) Me(w http.ResponseWriter, r *http.Request) {
	uid := auth.UserID(r.Context())
	if uid == "anon" || uid == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	writeJSON(w, map[string]string{"userId": uid})
}

// send JSON with proper headers
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
