package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/thep200/gitee-crawler/internal/checkpoint"
	"github.com/thep200/gitee-crawler/internal/model"
	"github.com/thep200/gitee-crawler/internal/paginator"
	"github.com/thep200/gitee-crawler/pkg/log"
)

type ItemLister interface {
	List(ctx context.Context, category, origin string, offset, limit int) ([]model.ItemView, int64, error)
}

// Handler serves the read API
type Handler struct {
	Logger log.Logger
	Store  checkpoint.Store
	Items  ItemLister
}

func NewHandler(logger log.Logger, store checkpoint.Store, items ItemLister) *Handler {
	return &Handler{
		Logger: logger,
		Store:  store,
		Items:  items,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.healthz)
	r.Route("/api", func(r chi.Router) {
		r.Get("/checkpoints", h.getCheckpoints)
		r.Get("/checkpoints/{category}", h.getCheckpoint)
		r.Get("/items", h.getItems)
	})
}

// Checkpoint is the JSON form of a stored checkpoint
type Checkpoint struct {
	Origin        string   `json:"origin"`
	Category      string   `json:"category"`
	LastUpdatedAt string   `json:"lastUpdatedAt"`
	LastSeenIDs   []string `json:"lastSeenIds"`
}

func toCheckpoint(category paginator.Kind, cp paginator.Checkpoint) Checkpoint {
	ids := cp.LastSeenIDs
	if ids == nil {
		ids = []string{}
	}
	return Checkpoint{
		Origin:        cp.Origin,
		Category:      string(category),
		LastUpdatedAt: cp.LastUpdatedAt.UTC().Format(time.RFC3339),
		LastSeenIDs:   ids,
	}
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) getCheckpoints(w http.ResponseWriter, r *http.Request) {
	records, err := h.Store.List(r.Context())
	if err != nil {
		h.Logger.Error(r.Context(), "Failed to list checkpoints: %v", err)
		http.Error(w, "Failed to list checkpoints", http.StatusInternalServerError)
		return
	}

	origin := r.URL.Query().Get("origin")
	checkpoints := make([]Checkpoint, 0, len(records))
	for _, rec := range records {
		if origin != "" && rec.Origin != origin {
			continue
		}
		checkpoints = append(checkpoints, toCheckpoint(rec.Category, rec.Checkpoint))
	}
	h.writeJSON(w, r, http.StatusOK, map[string]interface{}{"checkpoints": checkpoints})
}

// getCheckpoint returns the checkpoint of ?origin= for one category
func (h *Handler) getCheckpoint(w http.ResponseWriter, r *http.Request) {
	category, err := paginator.ParseKind(chi.URLParam(r, "category"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	origin := r.URL.Query().Get("origin")
	if origin == "" {
		http.Error(w, "origin is required", http.StatusBadRequest)
		return
	}

	cp, err := h.Store.Load(r.Context(), origin, category)
	if err != nil {
		h.Logger.Error(r.Context(), "Failed to load checkpoint: %v", err)
		http.Error(w, "Failed to load checkpoint", http.StatusInternalServerError)
		return
	}
	if cp == nil {
		http.Error(w, "checkpoint not found", http.StatusNotFound)
		return
	}
	h.writeJSON(w, r, http.StatusOK, toCheckpoint(category, *cp))
}

func (h *Handler) getItems(w http.ResponseWriter, r *http.Request) {
	if h.Items == nil {
		http.Error(w, "item storage is not configured", http.StatusServiceUnavailable)
		return
	}

	query := r.URL.Query()
	category, err := paginator.ParseKind(query.Get("category"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	page, err := strconv.Atoi(query.Get("page"))
	if err != nil || page < 1 {
		page = 1
	}
	pageSize, err := strconv.Atoi(query.Get("pageSize"))
	if err != nil || pageSize < 1 || pageSize > 100 {
		pageSize = 50
	}
	offset := (page - 1) * pageSize

	items, totalCount, err := h.Items.List(r.Context(), string(category), query.Get("origin"), offset, pageSize)
	if err != nil {
		h.Logger.Error(r.Context(), "Failed to fetch %s items: %v", category, err)
		http.Error(w, "Failed to fetch items", http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []model.ItemView{}
	}

	h.writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"items": items,
		"pagination": map[string]interface{}{
			"page":       page,
			"pageSize":   pageSize,
			"totalCount": totalCount,
			"totalPages": (totalCount + int64(pageSize) - 1) / int64(pageSize),
		},
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.Logger.Error(r.Context(), "Failed to encode JSON response: %v", err)
	}
}
