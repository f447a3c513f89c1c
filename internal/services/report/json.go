package report

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"trafficsentinel/internal/models"
)

// JSONReport is the exported form of an analysis.
type JSONReport struct {
	ID            int64                   `json:"id"`
	Filename      string                  `json:"filename"`
	FileType      string                  `json:"file_type"`
	ResultPath    string                  `json:"result_path"`
	VehicleCount  int                     `json:"vehicle_count"`
	Density       float64                 `json:"density_percentage"`
	ProcessedAt   string                  `json:"processed_at"`
	VehicleCounts models.VehicleCounts    `json:"vehicle_counts"`
	AvgConfidence float64                 `json:"avg_confidence"`
	LowConfidence bool                    `json:"low_confidence"`
	NoMotorcycles bool                    `json:"no_motorcycles"`
	Timeline      []models.TimelineSample `json:"timeline"`
}

// NewJSONReport builds the export of a.
func NewJSONReport(a *models.Analysis) JSONReport {
	timeline := a.Timeline
	if timeline == nil {
		timeline = []models.TimelineSample{}
	}
	return JSONReport{
		ID:            a.ID,
		Filename:      a.Filename,
		FileType:      a.MediaType,
		ResultPath:    a.ResultPath,
		VehicleCount:  a.VehicleCount,
		Density:       a.Density,
		ProcessedAt:   a.ProcessedAt.UTC().Format(time.RFC3339Nano),
		VehicleCounts: a.Counts,
		AvgConfidence: a.AvgConfidence,
		LowConfidence: a.LowConfidence,
		NoMotorcycles: a.NoMotorcycles,
		Timeline:      timeline,
	}
}

// WriteJSON writes the indented JSON report of a.
func WriteJSON(w io.Writer, a *models.Analysis) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(NewJSONReport(a)); err != nil {
		return fmt.Errorf("failed to write json report: %w", err)
	}
	return nil
}
