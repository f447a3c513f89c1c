package routes

import (
	"io/fs"
	"net/http"

	"trafficsentinel/internal/config"
	"trafficsentinel/internal/handlers"
	"trafficsentinel/internal/logger"
	"trafficsentinel/internal/metrics"
	"trafficsentinel/internal/middleware"
	"trafficsentinel/internal/services"
	"trafficsentinel/internal/services/report"
	"trafficsentinel/internal/services/websocket"
)

// Dependencies are the services the routes are bound to.
type Dependencies struct {
	Manager  *services.Manager
	Hub      *websocket.HubService
	Metrics  *metrics.Metrics
	Sessions *middleware.Sessions
	Renderer *handlers.Renderer
	Assets   fs.FS
	Config   *config.Config
	Logger   *logger.Logger
}

// SetupRoutes registers pages, reports, API endpoints and static files and
// wraps the mux with logging and authentication.
func SetupRoutes(d Dependencies) http.Handler {
	mux := http.NewServeMux()
	limiter := middleware.NewRateLimiter(d.Config.UploadRateLimit, d.Config.UploadRateLimit)
	chartOpts := report.ChartOptions{AssetsHost: d.Config.ChartAssetsHost}

	// Static files
	mux.Handle("GET /assets/", http.StripPrefix("/assets/", http.FileServerFS(d.Assets)))
	mux.Handle("GET /static/uploads/", http.StripPrefix("/static/uploads/", http.FileServer(http.Dir(d.Config.UploadDirectory))))
	mux.Handle("GET /static/results/", http.StripPrefix("/static/results/", http.FileServer(http.Dir(d.Config.ResultDirectory))))

	// Pages
	mux.HandleFunc("GET /", handlers.IndexHandler(d.Manager, d.Renderer))
	mux.HandleFunc("GET /sample", handlers.SampleHandler(d.Manager, d.Renderer, d.Logger))
	mux.Handle("POST /process_file", limiter.Limit(handlers.ProcessFileHandler(d.Manager, d.Logger)))
	mux.HandleFunc("GET /history", handlers.HistoryHandler(d.Manager, d.Renderer, d.Logger))
	mux.HandleFunc("POST /history/clear", handlers.ClearHistoryHandler(d.Manager, d.Logger))
	mux.HandleFunc("GET /analysis/{id}", handlers.AnalysisHandler(d.Manager, d.Renderer, d.Logger))
	mux.HandleFunc("GET /analysis/{id}/chart", handlers.ChartHandler(d.Manager, chartOpts, d.Logger))

	// Downloads and reports
	mux.HandleFunc("GET /download/{filename}", handlers.DownloadHandler(d.Manager))
	mux.HandleFunc("GET /report/{id}", handlers.ReportCSVHandler(d.Manager, d.Logger))
	mux.HandleFunc("GET /report/json/{id}", handlers.ReportJSONHandler(d.Manager, d.Logger))
	mux.HandleFunc("GET /report/chart/{file}", handlers.ChartPNGHandler(d.Manager, d.Logger))
	mux.HandleFunc("GET /snapshot/{id}", handlers.SnapshotHandler(d.Manager, d.Logger))

	// API endpoints
	mux.HandleFunc("GET /api/history", handlers.HistoryAPIHandler(d.Manager, d.Logger))
	mux.HandleFunc("GET /api/stats", handlers.StatsAPIHandler(d.Manager, d.Logger))
	mux.HandleFunc("GET /api/progress", handlers.ProgressWebsocketHandler(d.Hub, d.Logger))
	mux.Handle("GET /metrics", d.Metrics.Handler())

	// Log endpoints
	mux.HandleFunc("GET /logs/{level}", handlers.ShowLogsHandler(d.Logger))
	mux.HandleFunc("POST /logs/{level}/clear", handlers.ClearLogsHandler(d.Logger))

	// Auth endpoints
	mux.HandleFunc("GET /login", handlers.LoginPageHandler(d.Sessions, d.Renderer))
	mux.HandleFunc("POST /login", handlers.LoginHandler(d.Sessions, d.Renderer, d.Logger))
	mux.HandleFunc("POST /logout", handlers.LogoutHandler)
	mux.HandleFunc("GET /logout", handlers.LogoutHandler)

	// Apply middleware
	return middleware.Logging(d.Logger)(middleware.AuthMiddleware(d.Sessions)(mux))
}
