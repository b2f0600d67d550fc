package web

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/docmine/server/internal/store"
	"github.com/docmine/server/internal/web/middleware"
)

type webhookRequest struct {
	URL       string `json:"url"`
	EventType string `json:"eventType"`
	Enabled   *bool  `json:"enabled"`
	Secret    string `json:"secret"`
}

func (req *webhookRequest) params() (store.WebhookEndpointParams, string) {
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" || (!strings.HasPrefix(req.URL, "http://") && !strings.HasPrefix(req.URL, "https://")) {
		return store.WebhookEndpointParams{}, "a valid http or https url is required"
	}
	if req.EventType == "" {
		req.EventType = store.EventProductCreated
	}
	if !store.ValidEventType(req.EventType) {
		return store.WebhookEndpointParams{}, "unknown event type"
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	return store.WebhookEndpointParams{
		URL:       req.URL,
		EventType: req.EventType,
		Enabled:   enabled,
		Secret:    req.Secret,
	}, ""
}

func (s *Server) handleListWebhooks(w http.ResponseWriter, r *http.Request) {
	endpoints, err := s.webhooks.List(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		respondError(w, r, err)
		return
	}
	if endpoints == nil {
		endpoints = []store.WebhookEndpoint{}
	}
	writeJSON(w, http.StatusOK, endpoints)
}

func (s *Server) handleCreateWebhook(w http.ResponseWriter, r *http.Request) {
	var req webhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	params, msg := req.params()
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	endpoint, err := s.webhooks.Create(r.Context(), middleware.UserID(r.Context()), params)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, endpoint)
}

func (s *Server) handleGetWebhook(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid webhook id")
		return
	}
	endpoint, err := s.webhooks.GetByID(r.Context(), middleware.UserID(r.Context()), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, endpoint)
}

func (s *Server) handleUpdateWebhook(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid webhook id")
		return
	}
	var req webhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	params, msg := req.params()
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	endpoint, err := s.webhooks.Update(r.Context(), middleware.UserID(r.Context()), id, params)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, endpoint)
}

func (s *Server) handleDeleteWebhook(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid webhook id")
		return
	}
	if err := s.webhooks.Delete(r.Context(), middleware.UserID(r.Context()), id); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// handleTestWebhook fires a synthetic event at one endpoint and returns
// the delivery outcome.
func (s *Server) handleTestWebhook(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid webhook id")
		return
	}
	outcome, err := s.events.Test(r.Context(), middleware.UserID(r.Context()), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}
