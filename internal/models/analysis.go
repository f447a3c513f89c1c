package models

import "time"

// Media types accepted for analysis.
const (
	MediaImage = "image"
	MediaVideo = "video"
)

// LowConfidenceThreshold is the average detection confidence below which an
// analysis is flagged as low-confidence.
const LowConfidenceThreshold = 0.55

// VehicleCounts holds per-class vehicle counts.
type VehicleCounts struct {
	Car        int `json:"car"`
	Truck      int `json:"truck"`
	Bus        int `json:"bus"`
	Motorcycle int `json:"motorcycle"`
}

// Total returns the sum over all classes.
func (c VehicleCounts) Total() int {
	return c.Car + c.Truck + c.Bus + c.Motorcycle
}

// TimelineSample is one point of the density-over-time series.
type TimelineSample struct {
	Seq     int     `json:"seq"`
	Time    float64 `json:"time"` // seconds from the start of the media
	Count   int     `json:"count"`
	Density float64 `json:"density"`
}

// Analysis represents one processed upload.
type Analysis struct {
	ID            int64            `json:"id"`
	Filename      string           `json:"filename"`
	MediaType     string           `json:"file_type"`
	UploadPath    string           `json:"upload_path"`
	ResultPath    string           `json:"result_path"`
	VehicleCount  int              `json:"vehicle_count"`
	Counts        VehicleCounts    `json:"vehicle_counts"`
	Density       float64          `json:"density_percentage"`
	AvgConfidence float64          `json:"avg_confidence"`
	LowConfidence bool             `json:"low_confidence"`
	NoMotorcycles bool             `json:"no_motorcycles"`
	Frames        int              `json:"frames_processed"`
	Duration      float64          `json:"duration_seconds"`
	ProcessingMs  int64            `json:"processing_ms"`
	PeakCount     int              `json:"peak_count"`
	MeanDensity   float64          `json:"mean_density"`
	Timeline      []TimelineSample `json:"timeline"`
	ProcessedAt   time.Time        `json:"processed_at"`
	CreatedAt     time.Time        `json:"created_at"`
}

// IsVideo reports whether the analysis was made from a video.
func (a *Analysis) IsVideo() bool {
	return a.MediaType == MediaVideo
}

// DeriveFlags recomputes the total and the derived flags from the counts and
// the average confidence.
func (a *Analysis) DeriveFlags() {
	a.VehicleCount = a.Counts.Total()
	a.NoMotorcycles = a.Counts.Motorcycle == 0
	a.LowConfidence = a.AvgConfidence < LowConfidenceThreshold
}

// AnalysisFilter contains filtering options for querying analyses.
type AnalysisFilter struct {
	MediaType string
	Limit     int
	Offset    int
}

// AnalysisStats contains aggregate KPIs over the stored history.
type AnalysisStats struct {
	TotalAnalyses int            `json:"total_analyses"`
	PerMediaType  map[string]int `json:"per_media_type"`
	TotalVehicles int            `json:"total_vehicles"`
	Counts        VehicleCounts  `json:"vehicle_counts"`
	AvgDensity    float64        `json:"avg_density"`
	MaxDensity    float64        `json:"max_density"`
	UploadBytes   int64          `json:"upload_bytes"`
	ResultBytes   int64          `json:"result_bytes"`
}
