package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trafficsentinel/internal/config"
	"trafficsentinel/internal/handlers"
	"trafficsentinel/internal/logger"
	"trafficsentinel/internal/metrics"
	"trafficsentinel/internal/middleware"
	"trafficsentinel/internal/repository/sqlite"
	"trafficsentinel/internal/routes"
	"trafficsentinel/internal/services"
	"trafficsentinel/internal/services/ai"
	"trafficsentinel/internal/services/media"
	"trafficsentinel/internal/services/storage"
	"trafficsentinel/internal/services/websocket"
	"trafficsentinel/web"
)

const shutdownTimeout = 30 * time.Second

type App struct {
	config     *config.Config
	logger     *logger.Logger
	db         *sqlite.DB
	processor  *media.Processor
	hubService *websocket.HubService
	manager    *services.Manager
	handler    http.Handler
}

func NewApp() (*App, error) {
	cfg := config.Load()
	log := logger.NewLogger(cfg)

	db, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	files, err := storage.NewFileStore(cfg.UploadDirectory, cfg.ResultDirectory)
	if err != nil {
		db.Close()
		return nil, err
	}

	detector, err := ai.NewDetector(cfg, log)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create detector: %w", err)
	}
	processor := media.NewProcessor(detector)

	m := metrics.New()
	hub := websocket.NewHubService(log)
	mng := services.NewManager(sqlite.NewAnalysisRepository(db), files, processor, hub, m, cfg, log)

	sessions, err := middleware.NewSessions(cfg)
	if err != nil {
		processor.Close()
		db.Close()
		return nil, fmt.Errorf("failed to set up sessions: %w", err)
	}
	renderer, err := handlers.NewRenderer(web.Templates(), sessions.Enabled(), log)
	if err != nil {
		processor.Close()
		db.Close()
		return nil, err
	}

	router := routes.SetupRoutes(routes.Dependencies{
		Manager:  mng,
		Hub:      hub,
		Metrics:  m,
		Sessions: sessions,
		Renderer: renderer,
		Assets:   web.Assets(),
		Config:   cfg,
		Logger:   log,
	})

	return &App{
		config:     cfg,
		logger:     log,
		db:         db,
		processor:  processor,
		hubService: hub,
		manager:    mng,
		handler:    router,
	}, nil
}

// Run serves HTTP until SIGINT or SIGTERM and then shuts down gracefully.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start background services
	go a.hubService.Run(ctx)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.config.Port),
		Handler:           a.handler,
		ErrorLog:          a.logger.ErrorLog(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	fmt.Printf("🚦 TrafficSentinel\n")
	fmt.Printf("📍 URL: http://localhost:%d\n", a.config.Port)
	fmt.Printf("🗄️  Database: %s\n", a.config.DatabasePath)
	fmt.Printf("📁 Uploads: %s, results: %s\n", a.config.UploadDirectory, a.config.ResultDirectory)
	fmt.Printf("🤖 Detector: %s\n", a.config.DetectorBackend)
	if a.config.AuthEnabled() {
		fmt.Printf("🔑 Login required\n")
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		a.close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := server.Shutdown(shutdownCtx)
	a.close()
	return err
}

func (a *App) close() {
	if err := a.processor.Close(); err != nil {
		a.logger.Error("Error closing detector: %v", err)
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("Error closing database: %v", err)
	}
	a.logger.Close()
}
