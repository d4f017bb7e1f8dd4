package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ksurdhar/draft-editor-sub002/internal/store"
	"github.com/ksurdhar/draft-editor-sub002/pkg/auth"
)

type DraftsAPI struct{ DB *store.Postgres }

type createDraftReq struct {
	Title string `json:"title"`
}

type draftResponse struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Create handles new draft creation for the authenticated user.
func (a *DraftsAPI) Create(w http.ResponseWriter, r *http.Request) {
	var req createDraftReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Title == "" {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	uid := auth.UserID(r.Context())
	d, err := a.DB.CreateDraft(r.Context(), req.Title, uid)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, draftResponse{
		ID: d.ID, Title: d.Title, Version: d.Version, UpdatedAt: d.UpdatedAt,
	})
}

// List returns up to 100 drafts
func (a *DraftsAPI) List(w http.ResponseWriter, r *http.Request) {
	drafts, err := a.DB.ListDrafts(r.Context(), 100, 0)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	resp := make([]draftResponse, 0, len(drafts))
	for _, d := range drafts {
		resp = append(resp, draftResponse{
			ID: d.ID, Title: d.Title, Version: d.Version, UpdatedAt: d.UpdatedAt,
		})
	}
	writeJSON(w, resp)
}

// Get streams a draft's raw body and version header.
func (a *DraftsAPI) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		http.Error(w, "id required", http.StatusBadRequest)
		return
	}

	d, err := a.DB.GetDraft(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("X-Draft-Version", fmt.Sprintf("%d", d.Version))
	_, _ = w.Write(d.Body)
}
