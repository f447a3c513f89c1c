// Package report renders exports of a stored analysis: the CSV and JSON
// reports and the density-over-time charts.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"trafficsentinel/internal/models"
)

// TimeLayout is the timestamp format used in the CSV report. Fractional
// seconds are kept, trailing zeros dropped.
const TimeLayout = "2006-01-02 15:04:05.999999999"

// CSVFilename is the attachment name of the CSV report.
func CSVFilename(id int64) string {
	return fmt.Sprintf("traffic_analysis_%d.csv", id)
}

// JSONFilename is the attachment name of the JSON report.
func JSONFilename(id int64) string {
	return fmt.Sprintf("traffic_analysis_%d.json", id)
}

// WriteCSV writes the key/value report of an analysis followed by its timeline.
func WriteCSV(w io.Writer, a *models.Analysis) error {
	cw := csv.NewWriter(w)

	rows := [][]string{
		{"Analysis ID", strconv.FormatInt(a.ID, 10)},
		{"Filename", a.Filename},
		{"File Type", a.MediaType},
		{"Processed At", a.ProcessedAt.UTC().Format(TimeLayout)},
		{"Total Vehicles", strconv.Itoa(a.VehicleCount)},
		{"Traffic Density %", fmt.Sprintf("%.2f", a.Density)},
		{},
		{"Vehicle Distribution"},
		{"Cars", strconv.Itoa(a.Counts.Car)},
		{"Trucks", strconv.Itoa(a.Counts.Truck)},
		{"Buses", strconv.Itoa(a.Counts.Bus)},
		{"Motorcycles", strconv.Itoa(a.Counts.Motorcycle)},
		{"Average Confidence", formatFloat(a.AvgConfidence)},
		{"Low Confidence", yesNo(a.LowConfidence)},
		{"No Motorcycles", yesNo(a.NoMotorcycles)},
		{},
		{"Timeline"},
		{"Time (s)", "Vehicles", "Density %"},
	}
	for _, s := range a.Timeline {
		rows = append(rows, []string{
			formatFloat(s.Time),
			strconv.Itoa(s.Count),
			formatFloat(s.Density),
		})
	}

	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write csv report: %w", err)
	}
	return nil
}

// formatFloat writes the shortest form that parses back to v.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}
