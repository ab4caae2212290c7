package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/bimakw/wallet-activity/internal/application/services"
	apperrors "github.com/bimakw/wallet-activity/internal/domain/errors"
)

const maxClassifyBody = 1 << 20

// ActivityHandler handles HTTP requests for wallet activity feeds
type ActivityHandler struct {
	service *services.WalletActivityService
	logger  *zap.Logger
}

// NewActivityHandler creates a new activity handler
func NewActivityHandler(service *services.WalletActivityService, logger *zap.Logger) *ActivityHandler {
	return &ActivityHandler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers the activity routes
func (h *ActivityHandler) RegisterRoutes(r chi.Router) {
	r.Route("/wallets/{address}/transactions", func(r chi.Router) {
		r.Get("/next", h.NextPage)
		r.Post("/reset", h.Reset)
		r.Get("/stats", h.Stats)
		r.Get("/history", h.History)
	})
	r.Post("/transactions/classify", h.Classify)
}

// NextPage handles GET /wallets/{address}/transactions/next
func (h *ActivityHandler) NextPage(w http.ResponseWriter, r *http.Request) {
	page, err := h.service.NextPage(r.Context(), chi.URLParam(r, "address"))
	if err != nil {
		h.handleError(w, "Failed to get next page", err)
		return
	}

	h.respondJSON(w, http.StatusOK, page)
}

// Reset handles POST /wallets/{address}/transactions/reset
func (h *ActivityHandler) Reset(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	if err := h.service.Reset(r.Context(), address); err != nil {
		h.handleError(w, "Failed to reset feed", err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// Stats handles GET /wallets/{address}/transactions/stats
func (h *ActivityHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(chi.URLParam(r, "address"))
	if err != nil {
		h.handleError(w, "Failed to get feed stats", err)
		return
	}

	h.respondJSON(w, http.StatusOK, stats)
}

// History handles GET /wallets/{address}/transactions/history
func (h *ActivityHandler) History(w http.ResponseWriter, r *http.Request) {
	limit, offset := 0, 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if l, err := strconv.Atoi(v); err == nil && l > 0 {
			limit = l
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if o, err := strconv.Atoi(v); err == nil && o >= 0 {
			offset = o
		}
	}

	response, err := h.service.History(r.Context(), chi.URLParam(r, "address"), limit, offset)
	if err != nil {
		h.handleError(w, "Failed to get history", err)
		return
	}

	h.respondJSON(w, http.StatusOK, response)
}

// Classify handles POST /transactions/classify
func (h *ActivityHandler) Classify(w http.ResponseWriter, r *http.Request) {
	var req services.ClassifyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxClassifyBody)).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	tx, err := h.service.Classify(r.Context(), req)
	if err != nil {
		h.handleError(w, "Failed to classify transaction", err)
		return
	}

	h.respondJSON(w, http.StatusOK, tx)
}

// handleError maps categorized errors to their status and user message.
// Uncategorized errors are logged and reported as internal errors.
func (h *ActivityHandler) handleError(w http.ResponseWriter, msg string, err error) {
	var feedErr *apperrors.FeedError
	if !errors.As(err, &feedErr) {
		h.logger.Error(msg, zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, msg)
		return
	}

	status := feedErr.StatusCode()
	if status >= http.StatusInternalServerError {
		h.logger.Error(msg, zap.String("category", feedErr.Category.String()), zap.Error(err))
	} else {
		h.logger.Debug(msg, zap.String("category", feedErr.Category.String()), zap.Error(err))
	}

	h.respondJSON(w, status, map[string]string{
		"error":    feedErr.Message,
		"category": feedErr.Category.String(),
	})
}

func (h *ActivityHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (h *ActivityHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
