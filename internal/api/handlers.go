package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"keeper.share/internal/models"
	"keeper.share/internal/sharing"
	"keeper.share/internal/store"
)

type Handler struct {
	service *sharing.Service
	records store.RecordStore
}

func NewHandler(service *sharing.Service, records store.RecordStore) *Handler {
	return &Handler{
		service: service,
		records: records,
	}
}

type RecordRequest struct {
	Name   string `json:"name"`
	Login  string `json:"login"`
	Secret string `json:"secret"`
	URL    string `json:"url"`
}

type ShareRequest struct {
	TTLMillis *int64 `json:"ttl_ms,omitempty"`
}

type ShareResponse struct {
	Token string `json:"token"`
}

type RecordResponse struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Login  string `json:"login"`
	Secret string `json:"secret"`
	URL    string `json:"url"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.json(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) CreateRecord(w http.ResponseWriter, r *http.Request) {
	var req RecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		h.error(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.Secret == "" {
		h.error(w, http.StatusBadRequest, "secret is required")
		return
	}

	record := &models.Record{
		OwnerID: Principal(r.Context()),
		Name:    req.Name,
		Login:   req.Login,
		Secret:  req.Secret,
		URL:     req.URL,
	}
	saved, err := h.records.SaveRecord(r.Context(), record)
	if err != nil {
		h.error(w, http.StatusInternalServerError, "failed to save record")
		return
	}

	h.json(w, http.StatusCreated, recordResponse(saved))
}

func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	record, err := h.records.GetRecord(r.Context(), id)
	if err != nil || record.OwnerID != Principal(r.Context()) {
		// Foreign records look absent; ids must not be probeable.
		h.error(w, http.StatusNotFound, "record not found")
		return
	}

	h.json(w, http.StatusOK, recordResponse(record))
}

func (h *Handler) ShareRecord(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req ShareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var ttl *time.Duration
	if req.TTLMillis != nil {
		if *req.TTLMillis <= 0 {
			h.error(w, http.StatusBadRequest, "ttl_ms must be positive")
			return
		}
		d := time.Duration(*req.TTLMillis) * time.Millisecond
		ttl = &d
	}

	token, err := h.service.Issue(r.Context(), id, Principal(r.Context()), ttl)
	if err != nil {
		if errors.Is(err, sharing.ErrRecordNotFound) {
			h.error(w, http.StatusNotFound, "record not found")
			return
		}
		h.error(w, http.StatusInternalServerError, "failed to share record")
		return
	}

	h.json(w, http.StatusOK, ShareResponse{Token: token})
}

func (h *Handler) RedeemShared(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	record, err := h.service.Redeem(r.Context(), token, Principal(r.Context()))
	if err != nil {
		if errors.Is(err, sharing.ErrNotAvailable) {
			// One outcome for every refusal; the cause stays internal.
			h.error(w, http.StatusNotFound, "not available")
			return
		}
		h.error(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.json(w, http.StatusOK, recordResponse(record))
}

func recordResponse(record *models.Record) RecordResponse {
	return RecordResponse{
		ID:     record.ID,
		Name:   record.Name,
		Login:  record.Login,
		Secret: record.Secret,
		URL:    record.URL,
	}
}

func (h *Handler) json(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) error(w http.ResponseWriter, status int, message string) {
	h.json(w, status, ErrorResponse{Error: message})
}
