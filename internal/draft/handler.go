package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"reviewdraft/internal/draft/service"
	"reviewdraft/pkg/logger"
)

type DraftHandler struct {
	Service *service.DraftService
}

func NewDraftHandler(service *service.DraftService) *DraftHandler {
	return &DraftHandler{Service: service}
}

// Drafts serves GET (load) and DELETE (discard) on /api/drafts?recordId=.
func (h *DraftHandler) Drafts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.GetDraft(w, r)
	case http.MethodDelete:
		h.DiscardDraft(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *DraftHandler) GetDraft(w http.ResponseWriter, r *http.Request) {
	recordID := r.URL.Query().Get("recordId")
	if recordID == "" {
		http.Error(w, "Missing recordId parameter", http.StatusBadRequest)
		return
	}

	draft, err := h.Service.GetDraft(r.Context(), recordID)
	if errors.Is(err, service.ErrNotFound) {
		http.Error(w, "Draft not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logger.Sugar.Errorf("Handler: Failed to load draft for record %s: %v", recordID, err)
		http.Error(w, "Failed to load draft", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(draft)
}

func (h *DraftHandler) DiscardDraft(w http.ResponseWriter, r *http.Request) {
	recordID := r.URL.Query().Get("recordId")
	if recordID == "" {
		http.Error(w, "Missing recordId parameter", http.StatusBadRequest)
		return
	}

	if err := h.Service.DiscardDraft(r.Context(), recordID); err != nil {
		logger.Sugar.Errorf("Handler: Failed to discard draft for record %s: %v", recordID, err)
		http.Error(w, "Failed to discard draft", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Draft discarded"))
}
