package handlers

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"trafficsentinel/internal/logger"
	"trafficsentinel/internal/middleware"
	"trafficsentinel/internal/models"
	"trafficsentinel/internal/services"
	"trafficsentinel/internal/services/counting"
)

const historyPageSize = 20

type indexView struct {
	ClientToken string
	MaxSizeMB   int64
	Defaults    counting.Thresholds
}

type resultView struct {
	Analysis *models.Analysis
	IsSample bool
}

type historyView struct {
	Page  *services.HistoryPage
	Stats *models.AnalysisStats
}

// IndexHandler renders the upload page. Every page view gets a fresh client
// token for the progress feed.
func IndexHandler(manager *services.Manager, renderer *Renderer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		renderer.Render(w, r, http.StatusOK, "index", "Upload", indexView{
			ClientToken: uuid.NewString(),
			MaxSizeMB:   manager.MaxFileSize() / (1024 * 1024),
			Defaults:    manager.Defaults(),
		})
	}
}

// SampleHandler renders the demo analysis of the generated highway image.
func SampleHandler(manager *services.Manager, renderer *Renderer, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		analysis, err := manager.Sample()
		if err != nil {
			logger.Error("Error showing sample: %v", err)
			setFlash(w, r, FlashDanger, "Error showing sample")
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		renderer.Render(w, r, http.StatusOK, "result", "Sample", resultView{Analysis: analysis, IsSample: true})
	}
}

// AnalysisHandler renders the result page of a stored analysis.
func AnalysisHandler(manager *services.Manager, renderer *Renderer, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		analysis, ok := loadAnalysis(w, r, manager, logger)
		if !ok {
			return
		}
		renderer.Render(w, r, http.StatusOK, "result", analysis.Filename, resultView{Analysis: analysis})
	}
}

// HistoryHandler renders the paginated history, newest first.
func HistoryHandler(manager *services.Manager, renderer *Renderer, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := manager.History("", atoiDefault(r.URL.Query().Get("page"), 1), historyPageSize)
		if err != nil {
			logger.Error("Error loading history: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		stats, err := manager.Stats()
		if err != nil {
			logger.Error("Error loading stats: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		renderer.Render(w, r, http.StatusOK, "history", "History", historyView{Page: page, Stats: stats})
	}
}

// ClearHistoryHandler deletes every analysis and its files.
func ClearHistoryHandler(manager *services.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, err := manager.ClearHistory()
		if err != nil {
			logger.Error("Clear history error: %v", err)
			if middleware.IsXHR(r) {
				writeJSONError(w, http.StatusInternalServerError, "Failed to clear history", logger)
				return
			}
			setFlash(w, r, FlashDanger, "Failed to clear history")
			http.Redirect(w, r, "/history", http.StatusSeeOther)
			return
		}

		if middleware.IsXHR(r) {
			writeJSON(w, http.StatusOK, map[string]bool{"ok": true}, logger)
			return
		}
		setFlash(w, r, FlashSuccess, "History cleared")
		http.Redirect(w, r, "/history", http.StatusSeeOther)
	}
}

// loadAnalysis resolves the {id} path value. It answers 404 itself.
func loadAnalysis(w http.ResponseWriter, r *http.Request, manager *services.Manager, logger *logger.Logger) (*models.Analysis, bool) {
	id, ok := pathID(w, r)
	if !ok {
		return nil, false
	}
	analysis, err := manager.Get(id)
	if errors.Is(err, services.ErrNotFound) {
		http.NotFound(w, r)
		return nil, false
	}
	if err != nil {
		logger.Error("Error loading analysis %d: %v", id, err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return nil, false
	}
	return analysis, true
}
