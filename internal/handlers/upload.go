package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"trafficsentinel/internal/logger"
	"trafficsentinel/internal/middleware"
	"trafficsentinel/internal/services"
	"trafficsentinel/internal/services/counting"
)

// Room for the multipart envelope and threshold fields on top of the file.
const multipartOverhead = 1 << 20

const maxMemory = 32 << 20

// ProcessFileHandler accepts an upload, runs the analysis and redirects to
// the result. XHR callers get JSON instead of redirects and flashes.
func ProcessFileHandler(manager *services.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		xhr := middleware.IsXHR(r)
		fail := func(status int, category, message string) {
			if xhr {
				writeJSONError(w, status, message, logger)
				return
			}
			setFlash(w, r, category, message)
			http.Redirect(w, r, "/", http.StatusSeeOther)
		}
		tooLarge := fmt.Sprintf("The file is too large. Maximum file size is %dMB.", manager.MaxFileSize()/(1024*1024))

		r.Body = http.MaxBytesReader(w, r.Body, manager.MaxFileSize()+multipartOverhead)
		if err := r.ParseMultipartForm(maxMemory); err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large") {
				logger.Warning("Upload rejected - request body over %d bytes", manager.MaxFileSize()+multipartOverhead)
				fail(http.StatusRequestEntityTooLarge, FlashDanger, tooLarge)
				return
			}
			logger.Error("No file part in request: %v", err)
			fail(http.StatusBadRequest, FlashWarning, "No file selected")
			return
		}
		defer r.MultipartForm.RemoveAll()

		req := services.UploadRequest{
			Size:        -1,
			ClientToken: r.FormValue("client_token"),
			Thresholds: counting.Thresholds{
				Global:     parseFloat(r.FormValue("conf_global")),
				Motorcycle: parseFloat(r.FormValue("motorcycle_conf")),
				IoU:        parseFloat(r.FormValue("iou_thresh")),
			},
		}

		file, header, err := r.FormFile("file")
		if err == nil {
			defer file.Close()
			req.Filename = header.Filename
			req.Body = file
			req.Size = header.Size
		} else if !errors.Is(err, http.ErrMissingFile) {
			logger.Error("Error reading upload: %v", err)
		}

		analysis, err := manager.Analyze(r.Context(), req)
		switch {
		case err == nil:
		case errors.Is(err, services.ErrNoFile):
			fail(http.StatusBadRequest, FlashWarning, "No file selected")
			return
		case errors.Is(err, services.ErrInvalidFileType):
			fail(http.StatusBadRequest, FlashDanger, "Invalid file type or corrupted file. Please upload a valid image (.jpg, .jpeg, .png) or video (.mp4, .avi, .mov) file.")
			return
		case errors.Is(err, services.ErrFileTooLarge):
			fail(http.StatusRequestEntityTooLarge, FlashDanger, tooLarge)
			return
		case errors.Is(err, services.ErrProcessing):
			fail(http.StatusInternalServerError, FlashDanger, "Error processing file. Please try another file.")
			return
		default:
			logger.Error("Unexpected upload error: %v", err)
			fail(http.StatusInternalServerError, FlashDanger, "An unexpected error occurred. Please try again.")
			return
		}

		redirect := fmt.Sprintf("/analysis/%d", analysis.ID)
		if xhr {
			writeJSON(w, http.StatusOK, map[string]interface{}{"id": analysis.ID, "redirect": redirect}, logger)
			return
		}
		http.Redirect(w, r, redirect, http.StatusSeeOther)
	}
}
