// Package alerts serves read access to live alerts and alert history.
package alerts

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/good-yellow-bee/blazewatch/internal/models"
	"github.com/good-yellow-bee/blazewatch/internal/storage"
)

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type dataResponse struct {
	Data any `json:"data"`
}

const (
	errCodeBadRequest    = "BAD_REQUEST"
	errCodeNotFound      = "NOT_FOUND"
	errCodeInternalError = "INTERNAL_ERROR"
)

func jsonError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(errorResponse{Error: errorBody{Code: code, Message: message}}); err != nil {
		log.Printf("json encode error: %v", err)
	}
}

func jsonOK(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(dataResponse{Data: data}); err != nil {
		log.Printf("json encode error: %v", err)
	}
}

// ListResponse is a page of alerts.
type ListResponse struct {
	Items      []*models.Alert `json:"items"`
	Total      int64           `json:"total"`
	Page       int             `json:"page"`
	PerPage    int             `json:"per_page"`
	TotalPages int             `json:"total_pages"`
}

func newListResponse(items []*models.Alert, total int64, page, perPage int) ListResponse {
	if items == nil {
		items = []*models.Alert{}
	}
	pages := int(total) / perPage
	if int(total)%perPage != 0 {
		pages++
	}
	return ListResponse{Items: items, Total: total, Page: page, PerPage: perPage, TotalPages: pages}
}

// Handler handles alert endpoints.
type Handler struct {
	alerts  storage.AlertRepository
	history storage.AlertHistoryRepository
}

// NewHandler creates an alert handler. history may be a ClickHouse or SQLite repository.
func NewHandler(alerts storage.AlertRepository, history storage.AlertHistoryRepository) *Handler {
	return &Handler{alerts: alerts, history: history}
}

// List returns live alerts filtered by monitor_id, state, severity and since.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filter, page, perPage, err := ParseFilter(r.URL.Query())
	if err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, err.Error())
		return
	}

	items, total, err := h.alerts.List(r.Context(), filter)
	if err != nil {
		log.Printf("list alerts error: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}
	jsonOK(w, newListResponse(items, total, page, perPage))
}

// Get returns a live alert by id.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	alert, err := h.alerts.Get(r.Context(), id)
	if err != nil {
		log.Printf("get alert %s error: %v", id, err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}
	if alert == nil {
		jsonError(w, http.StatusNotFound, errCodeNotFound, "alert not found")
		return
	}
	jsonOK(w, alert)
}

// History returns archived alerts with the same filters as List.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	filter, page, perPage, err := ParseFilter(r.URL.Query())
	if err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, err.Error())
		return
	}

	items, total, err := h.history.List(r.Context(), filter)
	if err != nil {
		log.Printf("list alert history error: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}
	jsonOK(w, newListResponse(items, total, page, perPage))
}
