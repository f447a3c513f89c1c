package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"trafficsentinel/internal/config"
	"trafficsentinel/internal/logger"
	"trafficsentinel/internal/metrics"
	"trafficsentinel/internal/models"
	"trafficsentinel/internal/repository"
	"trafficsentinel/internal/services/counting"
	"trafficsentinel/internal/services/storage"
	"trafficsentinel/internal/services/websocket"
)

// SampleName is the file name of the generated sample image in the result folder.
const SampleName = "sample_highway_traffic.jpg"

// progressEvery limits how often frame progress is pushed to viewers.
const progressEvery = 10

// Processor runs detection over stored media and renders the outputs.
type Processor interface {
	ProcessVideo(ctx context.Context, in, out string, opts counting.Options, progress counting.ProgressFunc) (counting.Result, error)
	ProcessImage(ctx context.Context, in, out string, opts counting.Options) (counting.Result, error)
	Snapshot(a *models.Analysis, resultPath, outPath string) error
	Sample(out string) error
}

// ProgressPublisher receives processing updates for an upload.
type ProgressPublisher interface {
	Publish(p websocket.Progress)
}

// UploadRequest is a single file submitted for analysis.
type UploadRequest struct {
	Filename string
	Body     io.Reader
	Size     int64 // -1 when unknown

	// ClientToken identifies the browser waiting for progress updates.
	ClientToken string

	// Per-request overrides. Values outside (0, 1] use the configured defaults.
	Thresholds counting.Thresholds
}

// HistoryPage is one page of the analysis history.
type HistoryPage struct {
	Analyses   []models.Analysis `json:"analyses"`
	Total      int               `json:"total"`
	Page       int               `json:"page"`
	Limit      int               `json:"limit"`
	TotalPages int               `json:"total_pages"`
}

type Manager struct {
	repo      repository.AnalysisRepository
	files     *storage.FileStore
	processor Processor
	progress  ProgressPublisher
	metrics   *metrics.Metrics
	config    *config.Config
	logger    *logger.Logger

	defaults counting.Thresholds
	now      func() time.Time
}

func NewManager(repo repository.AnalysisRepository, files *storage.FileStore, processor Processor, progress ProgressPublisher, m *metrics.Metrics, cfg *config.Config, logger *logger.Logger) *Manager {
	defaults := counting.Thresholds{
		Global:     cfg.ConfGlobal,
		Motorcycle: cfg.MotorcycleConf,
		IoU:        cfg.IoUThreshold,
	}.Normalize(counting.DefaultThresholds())

	logger.Info("🚦 Manager ready - conf %.2f, motorcycle %.2f, IoU %.2f, every %d frame(s)",
		defaults.Global, defaults.Motorcycle, defaults.IoU, max(cfg.ProcessingInterval, 1))
	for _, ext := range cfg.AllowedExtensions {
		if !SupportedExtension(ext) {
			logger.Warning("⚠️ Extension %q is allowed but cannot be decoded, uploads will be rejected", ext)
		}
	}

	return &Manager{
		repo:      repo,
		files:     files,
		processor: processor,
		progress:  progress,
		metrics:   m,
		config:    cfg,
		logger:    logger,
		defaults:  defaults,
		now:       time.Now,
	}
}

// Defaults returns the configured detection thresholds.
func (m *Manager) Defaults() counting.Thresholds {
	return m.defaults
}

// MaxFileSize returns the upload size limit in bytes.
func (m *Manager) MaxFileSize() int64 {
	return m.config.MaxFileSize
}

// Analyze validates, stores and processes an upload and persists the result.
func (m *Manager) Analyze(ctx context.Context, req UploadRequest) (*models.Analysis, error) {
	filename := cleanFilename(req.Filename)
	if filename == "" || req.Body == nil {
		return nil, m.reject(ErrNoFile, req.Filename)
	}

	ext := extension(filename)
	if !m.config.IsAllowedExtension(ext) {
		return nil, m.reject(ErrInvalidFileType, filename)
	}
	if req.Size > m.config.MaxFileSize {
		return nil, m.reject(ErrFileTooLarge, filename)
	}

	head, contentType, err := sniff(req.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if len(head) == 0 {
		return nil, m.reject(ErrNoFile, filename)
	}
	if !contentMatches(ext, contentType) {
		m.logger.Warning("Upload %s rejected - content type %s does not match extension", filename, contentType)
		return nil, m.reject(ErrInvalidFileType, filename)
	}

	body := io.LimitReader(io.MultiReader(bytes.NewReader(head), req.Body), m.config.MaxFileSize+1)
	uploadName, written, err := m.files.SaveUpload(body, filename)
	if err != nil {
		return nil, err
	}
	if written > m.config.MaxFileSize {
		m.files.RemoveUpload(uploadName)
		return nil, m.reject(ErrFileTooLarge, filename)
	}

	mediaType := MediaTypeFor(filename)
	resultName := storage.ResultName(uploadName, mediaType == models.MediaVideo)
	opts := counting.Options{
		Thresholds: req.Thresholds.Normalize(m.defaults),
		Interval:   m.config.ProcessingInterval,
	}.Normalize()

	m.logger.Info("📥 Processing %s (%s, %d bytes) as %s", filename, mediaType, written, uploadName)

	start := time.Now()
	result, err := m.process(ctx, req.ClientToken, mediaType, uploadName, resultName, opts)
	elapsed := time.Since(start)
	if err != nil {
		return nil, m.fail(req.ClientToken, filename, uploadName, resultName, err)
	}

	analysis := &models.Analysis{
		Filename:     filename,
		MediaType:    mediaType,
		UploadPath:   uploadName,
		ResultPath:   resultName,
		ProcessingMs: elapsed.Milliseconds(),
		ProcessedAt:  m.now(),
	}
	result.Apply(analysis)

	id, err := m.repo.Insert(analysis)
	if err != nil {
		return nil, m.fail(req.ClientToken, filename, uploadName, resultName, err)
	}
	analysis.ID = id

	m.record(analysis, elapsed)
	m.publish(websocket.Progress{
		Token:      req.ClientToken,
		Stage:      websocket.StageDone,
		Frame:      analysis.Frames,
		Total:      analysis.Frames,
		Percent:    100,
		AnalysisID: id,
	})

	m.logger.Info("✅ Analysis %d: %d vehicles, density %.2f%% in %dms",
		id, analysis.VehicleCount, analysis.Density, analysis.ProcessingMs)
	return analysis, nil
}

func (m *Manager) process(ctx context.Context, token, mediaType, uploadName, resultName string, opts counting.Options) (counting.Result, error) {
	in := m.files.UploadPath(uploadName)
	out := m.files.ResultPath(resultName)

	if mediaType == models.MediaImage {
		return m.processor.ProcessImage(ctx, in, out, opts)
	}

	return m.processor.ProcessVideo(ctx, in, out, opts, func(frame, total int) {
		if frame%progressEvery != 0 && frame != total {
			return
		}
		var percent float64
		if total > 0 {
			percent = float64(frame) / float64(total) * 100
		}
		m.publish(websocket.Progress{
			Token:   token,
			Stage:   websocket.StageProcessing,
			Frame:   frame,
			Total:   total,
			Percent: percent,
		})
	})
}

// fail removes the files of a failed upload and reports the error.
func (m *Manager) fail(token, filename, uploadName, resultName string, cause error) error {
	m.logger.Error("Error processing %s: %v", filename, cause)

	if _, err := m.files.RemoveUpload(uploadName); err != nil {
		m.logger.Warning("Could not remove upload %s: %v", uploadName, err)
	}
	if _, err := m.files.RemoveResult(resultName); err != nil {
		m.logger.Warning("Could not remove result %s: %v", resultName, err)
	}

	m.metrics.AnalysisFailures.Inc()
	m.publish(websocket.Progress{Token: token, Stage: websocket.StageError, Message: ErrProcessing.Error()})
	return fmt.Errorf("%w: %w", ErrProcessing, cause)
}

func (m *Manager) reject(err error, filename string) error {
	m.logger.Warning("Upload %q rejected: %v", filename, err)
	m.metrics.UploadRejections.WithLabelValues(rejectionReason(err)).Inc()
	return err
}

func (m *Manager) record(a *models.Analysis, elapsed time.Duration) {
	m.metrics.AnalysesTotal.WithLabelValues(a.MediaType).Inc()
	m.metrics.ProcessingSeconds.Observe(elapsed.Seconds())
	m.metrics.FramesProcessed.Add(float64(a.Frames))

	counts := map[counting.Class]int{
		counting.Car:        a.Counts.Car,
		counting.Truck:      a.Counts.Truck,
		counting.Bus:        a.Counts.Bus,
		counting.Motorcycle: a.Counts.Motorcycle,
	}
	for class, n := range counts {
		m.metrics.VehiclesCounted.WithLabelValues(string(class)).Add(float64(n))
	}
}

func (m *Manager) publish(p websocket.Progress) {
	if m.progress == nil {
		return
	}
	m.progress.Publish(p)
}

// Get returns a stored analysis or ErrNotFound.
func (m *Manager) Get(id int64) (*models.Analysis, error) {
	analysis, err := m.repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if analysis == nil {
		return nil, ErrNotFound
	}
	return analysis, nil
}

// History returns one page of analyses, newest first. Pages start at 1.
func (m *Manager) History(mediaType string, page, limit int) (*HistoryPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	filter := &models.AnalysisFilter{
		MediaType: mediaType,
		Limit:     limit,
		Offset:    (page - 1) * limit,
	}

	analyses, err := m.repo.GetAll(filter)
	if err != nil {
		return nil, err
	}
	if analyses == nil {
		analyses = []models.Analysis{}
	}
	total, err := m.repo.GetTotalCount(filter)
	if err != nil {
		return nil, err
	}

	return &HistoryPage{
		Analyses:   analyses,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: (total + limit - 1) / limit,
	}, nil
}

// Stats returns aggregate KPIs over the history and the disk usage of the
// stored media.
func (m *Manager) Stats() (*models.AnalysisStats, error) {
	stats, err := m.repo.GetStats()
	if err != nil {
		return nil, err
	}
	uploads, results, err := m.files.Usage()
	if err != nil {
		m.logger.Warning("Could not measure storage usage: %v", err)
	}
	stats.UploadBytes = uploads
	stats.ResultBytes = results
	return stats, nil
}

// ClearHistory removes the files of every analysis and then all records.
// It returns the number of result files removed.
func (m *Manager) ClearHistory() (int, error) {
	analyses, err := m.repo.GetAll(nil)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, a := range analyses {
		if _, err := m.files.RemoveUpload(a.UploadPath); err != nil {
			m.logger.Warning("Could not remove upload %s: %v", a.UploadPath, err)
		}
		ok, err := m.files.RemoveResult(a.ResultPath)
		if err != nil {
			m.logger.Warning("Could not remove result %s: %v", a.ResultPath, err)
		}
		if ok {
			removed++
		}
		if _, err := m.files.RemoveResult(storage.SnapshotName(a.ID)); err != nil {
			m.logger.Warning("Could not remove snapshot for %d: %v", a.ID, err)
		}
	}

	// Snapshoty bez rekordu (np. po ręcznym usunięciu wpisu)
	if _, err := m.files.ClearSnapshots(); err != nil {
		m.logger.Warning("Could not clear snapshots: %v", err)
	}

	if err := m.repo.DeleteAll(); err != nil {
		return removed, err
	}

	m.metrics.HistoryClears.Inc()
	m.logger.Info("🧹 History cleared - %d analyses, %d result files", len(analyses), removed)
	return removed, nil
}

// Snapshot renders the KPI snapshot of an analysis and returns its path.
func (m *Manager) Snapshot(id int64) (string, error) {
	analysis, err := m.Get(id)
	if err != nil {
		return "", err
	}

	resultPath := m.files.ResultPath(analysis.ResultPath)
	if _, err := os.Stat(resultPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", err
	}

	out := m.files.ResultPath(storage.SnapshotName(id))
	if err := m.processor.Snapshot(analysis, resultPath, out); err != nil {
		return "", fmt.Errorf("failed to create snapshot: %w", err)
	}
	return out, nil
}

// ResultFile resolves a result file name for download.
func (m *Manager) ResultFile(name string) (string, error) {
	path, err := m.files.ResolveResult(name)
	if err != nil {
		return "", ErrNotFound
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", ErrNotFound
	}
	return path, nil
}

// Sample returns the demo analysis of the generated highway image. It is
// never persisted and has ID 0.
func (m *Manager) Sample() (*models.Analysis, error) {
	if err := m.processor.Sample(m.files.ResultPath(SampleName)); err != nil {
		return nil, fmt.Errorf("failed to create sample image: %w", err)
	}

	now := m.now()
	analysis := &models.Analysis{
		Filename:      "Sample Traffic Image",
		MediaType:     models.MediaImage,
		UploadPath:    SampleName,
		ResultPath:    SampleName,
		Counts:        models.VehicleCounts{Car: 6, Truck: 1},
		Density:       35,
		AvgConfidence: 0.91,
		Frames:        1,
		PeakCount:     7,
		MeanDensity:   35,
		Timeline:      []models.TimelineSample{{Seq: 0, Time: 0, Count: 7, Density: 35}},
		ProcessedAt:   now,
		CreatedAt:     now,
	}
	analysis.DeriveFlags()
	return analysis, nil
}
