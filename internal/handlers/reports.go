package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"trafficsentinel/internal/logger"
	"trafficsentinel/internal/services"
	"trafficsentinel/internal/services/report"
)

// ReportCSVHandler serves the CSV report as an attachment.
func ReportCSVHandler(manager *services.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		analysis, ok := loadAnalysis(w, r, manager, logger)
		if !ok {
			return
		}

		var buf bytes.Buffer
		if err := report.WriteCSV(&buf, analysis); err != nil {
			logger.Error("Error writing CSV report %d: %v", analysis.ID, err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, report.CSVFilename(analysis.ID)))
		w.Write(buf.Bytes())
	}
}

// ReportJSONHandler serves the JSON report.
func ReportJSONHandler(manager *services.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		analysis, ok := loadAnalysis(w, r, manager, logger)
		if !ok {
			return
		}

		var buf bytes.Buffer
		if err := report.WriteJSON(&buf, analysis); err != nil {
			logger.Error("Error writing JSON report %d: %v", analysis.ID, err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("download") != "" {
			w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, report.JSONFilename(analysis.ID)))
		}
		w.Write(buf.Bytes())
	}
}

// ChartHandler serves the interactive density chart of an analysis.
func ChartHandler(manager *services.Manager, chartOpts report.ChartOptions, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		analysis, ok := loadAnalysis(w, r, manager, logger)
		if !ok {
			return
		}

		var buf bytes.Buffer
		if err := report.WriteChartHTML(&buf, analysis, chartOpts); err != nil {
			logger.Error("Error rendering chart %d: %v", analysis.ID, err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(buf.Bytes())
	}
}

// ChartPNGHandler serves /report/chart/{file} where file is "<id>.png".
func ChartPNGHandler(manager *services.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name, ok := strings.CutSuffix(r.PathValue("file"), ".png")
		if !ok {
			http.NotFound(w, r)
			return
		}
		r.SetPathValue("id", name)
		analysis, ok := loadAnalysis(w, r, manager, logger)
		if !ok {
			return
		}

		var buf bytes.Buffer
		if err := report.WriteChartPNG(&buf, analysis); err != nil {
			logger.Error("Error rendering PNG chart %d: %v", analysis.ID, err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
		w.Write(buf.Bytes())
	}
}

// SnapshotHandler renders the KPI snapshot and serves it as an attachment.
func SnapshotHandler(manager *services.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		path, err := manager.Snapshot(id)
		if errors.Is(err, services.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		if err != nil {
			logger.Error("Snapshot error: %v", err)
			setFlash(w, r, FlashDanger, "Could not generate snapshot")
			http.Redirect(w, r, fmt.Sprintf("/analysis/%d", id), http.StatusSeeOther)
			return
		}

		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filepath.Base(path)))
		http.ServeFile(w, r, path)
	}
}

// DownloadHandler serves a result file as an attachment.
func DownloadHandler(manager *services.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path, err := manager.ResultFile(r.PathValue("filename"))
		if err != nil {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filepath.Base(path)))
		http.ServeFile(w, r, path)
	}
}
