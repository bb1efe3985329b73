package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func newRouter(store *Store, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/events", func(w http.ResponseWriter, req *http.Request) {
		after := parseUintQuery(req, "after")
		limit := int(parseUintQuery(req, "limit"))
		records, err := store.ListEvents(after, limit)
		if err != nil {
			logger.Error("list events failed", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failed"})
			return
		}
		writeJSON(w, http.StatusOK, records)
	})

	r.Get("/campaigns/{id}/events", func(w http.ResponseWriter, req *http.Request) {
		id := strings.TrimSpace(chi.URLParam(req, "id"))
		if id == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "campaign id required"})
			return
		}
		limit := int(parseUintQuery(req, "limit"))
		records, err := store.CampaignEvents(id, limit)
		if err != nil {
			logger.Error("campaign events query failed", "campaign", id, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failed"})
			return
		}
		writeJSON(w, http.StatusOK, records)
	})

	return r
}

func parseUintQuery(req *http.Request, name string) uint64 {
	raw := strings.TrimSpace(req.URL.Query().Get(name))
	if raw == "" {
		return 0
	}
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
