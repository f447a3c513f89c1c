package handlers

import (
	"net/http"

	"trafficsentinel/internal/logger"
	"trafficsentinel/internal/models"
	"trafficsentinel/internal/services"
)

// HistoryAPIHandler returns a page of analyses as JSON. Supports the page,
// limit and type query parameters.
func HistoryAPIHandler(manager *services.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		mediaType := q.Get("type")
		if mediaType != "" && mediaType != models.MediaImage && mediaType != models.MediaVideo {
			writeJSONError(w, http.StatusBadRequest, "type must be image or video", logger)
			return
		}

		page, err := manager.History(mediaType, atoiDefault(q.Get("page"), 1), atoiDefault(q.Get("limit"), historyPageSize))
		if err != nil {
			logger.Error("Error loading history: %v", err)
			writeJSONError(w, http.StatusInternalServerError, "Failed to load history", logger)
			return
		}
		writeJSON(w, http.StatusOK, page, logger)
	}
}

// StatsAPIHandler returns aggregate KPIs over the history.
func StatsAPIHandler(manager *services.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := manager.Stats()
		if err != nil {
			logger.Error("Error loading stats: %v", err)
			writeJSONError(w, http.StatusInternalServerError, "Failed to load stats", logger)
			return
		}
		writeJSON(w, http.StatusOK, stats, logger)
	}
}
