package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trafficsentinel/internal/config"
	"trafficsentinel/internal/logger"
	"trafficsentinel/internal/metrics"
	"trafficsentinel/internal/models"
	"trafficsentinel/internal/repository/sqlite"
	"trafficsentinel/internal/services/counting"
	"trafficsentinel/internal/services/report"
	"trafficsentinel/internal/services/storage"
	"trafficsentinel/internal/services/websocket"
)

var (
	pngHeader  = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01")
	jpegHeader = []byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00\x01\x01\x00\x00\x01\x00\x01\x00\x00")
	mp4Header  = []byte("\x00\x00\x00\x18ftypmp42\x00\x00\x00\x00mp42isom")
)

type fakeProcessor struct {
	result   counting.Result
	err      error
	lastOpts counting.Options
	inputs   []string
}

func (p *fakeProcessor) write(out string) error {
	return os.WriteFile(out, []byte("annotated"), 0644)
}

func (p *fakeProcessor) ProcessVideo(ctx context.Context, in, out string, opts counting.Options, progress counting.ProgressFunc) (counting.Result, error) {
	p.lastOpts = opts
	p.inputs = append(p.inputs, in)
	if err := p.write(out); err != nil {
		return counting.Result{}, err
	}
	if p.err != nil {
		return counting.Result{}, p.err
	}
	progress(10, 20)
	progress(15, 20)
	progress(20, 20)
	return p.result, nil
}

func (p *fakeProcessor) ProcessImage(ctx context.Context, in, out string, opts counting.Options) (counting.Result, error) {
	p.lastOpts = opts
	p.inputs = append(p.inputs, in)
	if err := p.write(out); err != nil {
		return counting.Result{}, err
	}
	if p.err != nil {
		return counting.Result{}, p.err
	}
	return p.result, nil
}

func (p *fakeProcessor) Snapshot(a *models.Analysis, resultPath, outPath string) error {
	return os.WriteFile(outPath, []byte("snapshot"), 0644)
}

func (p *fakeProcessor) Sample(out string) error {
	return os.WriteFile(out, []byte("sample"), 0644)
}

type recordingPublisher struct {
	mu      sync.Mutex
	updates []websocket.Progress
}

func (r *recordingPublisher) Publish(p websocket.Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, p)
}

type testEnv struct {
	manager   *Manager
	processor *fakeProcessor
	progress  *recordingPublisher
	metrics   *metrics.Metrics
	files     *storage.FileStore
	cfg       *config.Config
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	cfg := &config.Config{
		UploadDirectory:    filepath.Join(dir, "uploads"),
		ResultDirectory:    filepath.Join(dir, "results"),
		MaxFileSize:        1024,
		AllowedExtensions:  []string{"jpg", "jpeg", "png", "mp4", "avi", "mov"},
		ConfGlobal:         0.6,
		MotorcycleConf:     0.75,
		IoUThreshold:       0.3,
		ProcessingInterval: 2,
	}

	db, err := sqlite.New(filepath.Join(dir, "traffic.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	files, err := storage.NewFileStore(cfg.UploadDirectory, cfg.ResultDirectory)
	require.NoError(t, err)

	processor := &fakeProcessor{
		result: counting.Result{
			Counts:        models.VehicleCounts{Car: 3, Truck: 1, Motorcycle: 1},
			Density:       11.11,
			AvgConfidence: 0.82,
			Frames:        20,
			Duration:      0.67,
			PeakCount:     4,
			MeanDensity:   7.5,
			Timeline: []models.TimelineSample{
				{Seq: 0, Time: 0, Count: 2, Density: 4.44},
				{Seq: 1, Time: 0.2, Count: 4, Density: 8.89},
			},
		},
	}
	progress := &recordingPublisher{}
	m := metrics.New()

	manager := NewManager(sqlite.NewAnalysisRepository(db), files, processor, progress, m, cfg, logger.NewDiscard())
	manager.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

	return &testEnv{manager: manager, processor: processor, progress: progress, metrics: m, files: files, cfg: cfg}
}

func upload(name string, body []byte) UploadRequest {
	return UploadRequest{Filename: name, Body: bytes.NewReader(body), Size: int64(len(body)), ClientToken: "tok"}
}

func TestManager_AnalyzeImage(t *testing.T) {
	env := newTestEnv(t)

	a, err := env.manager.Analyze(context.Background(), upload("street.PNG", pngHeader))
	require.NoError(t, err)

	assert.NotZero(t, a.ID)
	assert.Equal(t, "street.PNG", a.Filename)
	assert.Equal(t, models.MediaImage, a.MediaType)
	assert.Equal(t, 5, a.VehicleCount)
	assert.Equal(t, a.Counts.Total(), a.VehicleCount)
	assert.False(t, a.NoMotorcycles)
	assert.False(t, a.LowConfidence)
	assert.True(t, strings.HasSuffix(a.UploadPath, ".png"))
	assert.Equal(t, "result_"+a.UploadPath, a.ResultPath)

	stored, err := env.manager.Get(a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.Counts, stored.Counts)
	assert.Equal(t, a.Density, stored.Density)
	assert.Len(t, stored.Timeline, 2)

	assert.FileExists(t, env.files.UploadPath(a.UploadPath))
	assert.FileExists(t, env.files.ResultPath(a.ResultPath))

	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.AnalysesTotal.WithLabelValues(models.MediaImage)))
	assert.Equal(t, 3.0, testutil.ToFloat64(env.metrics.VehiclesCounted.WithLabelValues("car")))
	assert.Equal(t, 2, env.processor.lastOpts.Interval)
}

func TestManager_ExportsMatchStoredAnalysis(t *testing.T) {
	env := newTestEnv(t)
	processedAt := time.Date(2024, 5, 1, 12, 0, 0, 123456789, time.UTC)
	env.manager.now = func() time.Time { return processedAt }
	env.processor.result.AvgConfidence = 0.8237512
	env.processor.result.Timeline = []models.TimelineSample{
		{Seq: 0, Time: 0.033, Count: 2, Density: 4.444},
		{Seq: 1, Time: 0.267, Count: 4, Density: 8.889},
	}

	a, err := env.manager.Analyze(context.Background(), upload("clip.mp4", mp4Header))
	require.NoError(t, err)

	stored, err := env.manager.Get(a.ID)
	require.NoError(t, err)
	assert.True(t, stored.ProcessedAt.Equal(processedAt))

	var buf bytes.Buffer
	require.NoError(t, report.WriteJSON(&buf, stored))
	var exported report.JSONReport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &exported))

	exportedAt, err := time.Parse(time.RFC3339Nano, exported.ProcessedAt)
	require.NoError(t, err)
	assert.True(t, exportedAt.Equal(stored.ProcessedAt), "processed_at %s", exported.ProcessedAt)
	assert.Equal(t, stored.AvgConfidence, exported.AvgConfidence)
	assert.Equal(t, stored.Timeline, exported.Timeline)

	buf.Reset()
	require.NoError(t, report.WriteCSV(&buf, stored))
	assert.Contains(t, buf.String(), "Processed At,2024-05-01 12:00:00.123456789\n")
	assert.Contains(t, buf.String(), "Average Confidence,0.8237512\n")
	assert.Contains(t, buf.String(), "0.033,2,4.444\n")
}

func TestManager_AnalyzeVideoPublishesProgress(t *testing.T) {
	env := newTestEnv(t)

	a, err := env.manager.Analyze(context.Background(), upload("clip.mp4", mp4Header))
	require.NoError(t, err)
	assert.Equal(t, models.MediaVideo, a.MediaType)
	assert.True(t, strings.HasSuffix(a.ResultPath, ".mp4"))

	updates := env.progress.updates
	require.Len(t, updates, 3)
	assert.Equal(t, websocket.StageProcessing, updates[0].Stage)
	assert.Equal(t, 50.0, updates[0].Percent)
	assert.Equal(t, 100.0, updates[1].Percent)
	assert.Equal(t, websocket.StageDone, updates[2].Stage)
	assert.Equal(t, a.ID, updates[2].AnalysisID)
	for _, u := range updates {
		assert.Equal(t, "tok", u.Token)
	}
}

func TestManager_AnalyzeThresholdOverrides(t *testing.T) {
	env := newTestEnv(t)

	req := upload("a.jpg", jpegHeader)
	req.Thresholds = counting.Thresholds{Global: 0.4, Motorcycle: 1.5, IoU: 0}
	_, err := env.manager.Analyze(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, counting.Thresholds{Global: 0.4, Motorcycle: 0.75, IoU: 0.3}, env.processor.lastOpts.Thresholds)
}

func TestManager_AnalyzeRejections(t *testing.T) {
	tests := []struct {
		name   string
		req    UploadRequest
		want   error
		reason string
	}{
		{"no filename", upload("", pngHeader), ErrNoFile, "no_file"},
		{"no body", UploadRequest{Filename: "a.png"}, ErrNoFile, "no_file"},
		{"empty file", upload("a.png", nil), ErrNoFile, "no_file"},
		{"bad extension", upload("a.gif", pngHeader), ErrInvalidFileType, "invalid_type"},
		{"no extension", upload("README", pngHeader), ErrInvalidFileType, "invalid_type"},
		{"content mismatch", upload("a.jpg", pngHeader), ErrInvalidFileType, "invalid_type"},
		{"text as video", upload("a.mp4", []byte("hello world, not a video")), ErrInvalidFileType, "invalid_type"},
		{"declared too large", UploadRequest{Filename: "a.png", Body: bytes.NewReader(pngHeader), Size: 4096}, ErrFileTooLarge, "too_large"},
		{"streamed too large", UploadRequest{Filename: "a.png", Body: bytes.NewReader(append(pngHeader, make([]byte, 2048)...)), Size: -1}, ErrFileTooLarge, "too_large"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)

			a, err := env.manager.Analyze(context.Background(), tt.req)
			assert.Nil(t, a)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.UploadRejections.WithLabelValues(tt.reason)))

			entries, err := os.ReadDir(env.cfg.UploadDirectory)
			require.NoError(t, err)
			assert.Empty(t, entries)
			assert.Empty(t, env.processor.inputs)
		})
	}
}

func TestManager_AnalyzeConfiguredExtensions(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.AllowedExtensions = append(env.cfg.AllowedExtensions, "webp", "mkv", "tiff")

	webp := []byte("RIFF\x24\x00\x00\x00WEBPVP8 \x18\x00\x00\x00")
	a, err := env.manager.Analyze(context.Background(), upload("cam.webp", webp))
	require.NoError(t, err)
	assert.Equal(t, models.MediaImage, a.MediaType)

	mkv := []byte("\x1a\x45\xdf\xa3\x9f\x42\x86\x81\x01")
	a, err = env.manager.Analyze(context.Background(), upload("cam.mkv", mkv))
	require.NoError(t, err)
	assert.Equal(t, models.MediaVideo, a.MediaType)

	// Allowed by config but not decodable.
	_, err = env.manager.Analyze(context.Background(), upload("cam.tiff", []byte("II*\x00\x08\x00\x00\x00")))
	assert.ErrorIs(t, err, ErrInvalidFileType)

	// Decodable but not allowed by config.
	_, err = env.manager.Analyze(context.Background(), upload("cam.bmp", []byte("BM\x00\x00\x00\x00")))
	assert.ErrorIs(t, err, ErrInvalidFileType)
}

func TestSupportedExtension(t *testing.T) {
	for _, ext := range []string{"jpg", "JPEG", "png", "bmp", "webp", "mp4", "avi", "MOV", "m4v", "mkv", "webm", "mpg", "mpeg"} {
		assert.True(t, SupportedExtension(ext), ext)
	}
	for _, ext := range []string{"", "gif", "tiff", "txt", "exe"} {
		assert.False(t, SupportedExtension(ext), ext)
	}
}

func TestManager_AnalyzeFailureCleansUp(t *testing.T) {
	env := newTestEnv(t)
	env.processor.err = errors.New("decoder crashed")

	a, err := env.manager.Analyze(context.Background(), upload("clip.avi", []byte("\x00\x01\x02\x03binary")))
	assert.Nil(t, a)
	assert.ErrorIs(t, err, ErrProcessing)

	for _, dir := range []string{env.cfg.UploadDirectory, env.cfg.ResultDirectory} {
		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Empty(t, entries, dir)
	}

	page, err := env.manager.History("", 1, 10)
	require.NoError(t, err)
	assert.Zero(t, page.Total)

	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.AnalysisFailures))
	last := env.progress.updates[len(env.progress.updates)-1]
	assert.Equal(t, websocket.StageError, last.Stage)
}

func TestManager_GetUnknown(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.manager.Get(999)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = env.manager.Snapshot(999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManager_HistoryPaging(t *testing.T) {
	env := newTestEnv(t)

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		env.manager.now = func() time.Time { return at }
		_, err := env.manager.Analyze(context.Background(), upload("img.jpg", jpegHeader))
		require.NoError(t, err)
	}

	page, err := env.manager.History("", 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	assert.Equal(t, 3, page.TotalPages)
	require.Len(t, page.Analyses, 2)
	assert.True(t, page.Analyses[0].ProcessedAt.After(page.Analyses[1].ProcessedAt))

	page, err = env.manager.History(models.MediaVideo, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 20, page.Limit)
	assert.NotNil(t, page.Analyses)
	assert.Empty(t, page.Analyses)
}

func TestManager_Stats(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.manager.Analyze(context.Background(), upload("a.jpg", jpegHeader))
	require.NoError(t, err)

	stats, err := env.manager.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalAnalyses)
	assert.Equal(t, 5, stats.TotalVehicles)
	assert.Positive(t, stats.UploadBytes)
	assert.Positive(t, stats.ResultBytes)
}

func TestManager_SnapshotAndClearHistory(t *testing.T) {
	env := newTestEnv(t)

	a, err := env.manager.Analyze(context.Background(), upload("a.jpg", jpegHeader))
	require.NoError(t, err)
	b, err := env.manager.Analyze(context.Background(), upload("b.mp4", mp4Header))
	require.NoError(t, err)

	snap, err := env.manager.Snapshot(a.ID)
	require.NoError(t, err)
	assert.Equal(t, env.files.ResultPath(storage.SnapshotName(a.ID)), snap)
	assert.FileExists(t, snap)

	_, err = env.manager.Sample()
	require.NoError(t, err)

	removed, err := env.manager.ClearHistory()
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	for _, name := range []string{a.ResultPath, b.ResultPath, storage.SnapshotName(a.ID)} {
		assert.NoFileExists(t, env.files.ResultPath(name))
	}
	for _, name := range []string{a.UploadPath, b.UploadPath} {
		assert.NoFileExists(t, env.files.UploadPath(name))
	}
	assert.FileExists(t, env.files.ResultPath(SampleName))

	page, err := env.manager.History("", 1, 10)
	require.NoError(t, err)
	assert.Zero(t, page.Total)
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.HistoryClears))
}

func TestManager_Sample(t *testing.T) {
	env := newTestEnv(t)

	a, err := env.manager.Sample()
	require.NoError(t, err)

	assert.Zero(t, a.ID)
	assert.Equal(t, models.VehicleCounts{Car: 6, Truck: 1}, a.Counts)
	assert.Equal(t, 7, a.VehicleCount)
	assert.Equal(t, 35.0, a.Density)
	assert.True(t, a.NoMotorcycles)
	assert.FileExists(t, env.files.ResultPath(SampleName))

	page, err := env.manager.History("", 1, 10)
	require.NoError(t, err)
	assert.Zero(t, page.Total, "sample must not be persisted")
}

func TestManager_ResultFile(t *testing.T) {
	env := newTestEnv(t)

	a, err := env.manager.Analyze(context.Background(), upload("a.jpg", jpegHeader))
	require.NoError(t, err)

	path, err := env.manager.ResultFile(a.ResultPath)
	require.NoError(t, err)
	assert.Equal(t, env.files.ResultPath(a.ResultPath), path)

	for _, name := range []string{"missing.jpg", "../traffic.db", ""} {
		_, err := env.manager.ResultFile(name)
		assert.ErrorIs(t, err, ErrNotFound, name)
	}
}
