package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"trafficsentinel/internal/models"
)

const analysisColumns = `id, filename, file_type, upload_path, result_path,
	vehicle_count, car_count, truck_count, bus_count, motorcycle_count,
	density_percentage, avg_confidence, low_confidence, no_motorcycles,
	frames_processed, duration_seconds, processing_ms, peak_count, mean_density,
	processed_at, created_at`

// AnalysisRepository implements repository.AnalysisRepository for SQLite.
type AnalysisRepository struct {
	db *DB
}

// NewAnalysisRepository creates a new SQLite analysis repository.
func NewAnalysisRepository(db *DB) *AnalysisRepository {
	return &AnalysisRepository{db: db}
}

// Insert stores an analysis together with its timeline and returns the new id.
func (r *AnalysisRepository) Insert(a *models.Analysis) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if a.ProcessedAt.IsZero() {
		a.ProcessedAt = a.CreatedAt
	}

	tx, err := r.db.Conn().Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(`
		INSERT INTO analyses (
			filename, file_type, upload_path, result_path,
			vehicle_count, car_count, truck_count, bus_count, motorcycle_count,
			density_percentage, avg_confidence, low_confidence, no_motorcycles,
			frames_processed, duration_seconds, processing_ms, peak_count, mean_density,
			processed_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		a.Filename, a.MediaType, a.UploadPath, a.ResultPath,
		a.VehicleCount, a.Counts.Car, a.Counts.Truck, a.Counts.Bus, a.Counts.Motorcycle,
		a.Density, a.AvgConfidence, a.LowConfidence, a.NoMotorcycles,
		a.Frames, a.Duration, a.ProcessingMs, a.PeakCount, a.MeanDensity,
		a.ProcessedAt.UTC(), a.CreatedAt.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert analysis: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read analysis id: %w", err)
	}

	if len(a.Timeline) > 0 {
		stmt, err := tx.Prepare(`
			INSERT INTO analysis_samples (analysis_id, seq, time_seconds, vehicle_count, density_percentage)
			VALUES (?, ?, ?, ?, ?)
		`)
		if err != nil {
			return 0, fmt.Errorf("failed to prepare sample insert: %w", err)
		}
		defer stmt.Close()

		for i, s := range a.Timeline {
			if _, err := stmt.Exec(id, i, s.Time, s.Count, s.Density); err != nil {
				return 0, fmt.Errorf("failed to insert timeline sample %d: %w", i, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit analysis: %w", err)
	}
	return id, nil
}

// GetByID retrieves an analysis and its timeline. It returns nil when the id
// does not exist.
func (r *AnalysisRepository) GetByID(id int64) (*models.Analysis, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	row := r.db.Conn().QueryRow(`SELECT `+analysisColumns+` FROM analyses WHERE id = ?`, id)
	a, err := scanAnalysis(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}

	rows, err := r.db.Conn().Query(`
		SELECT seq, time_seconds, vehicle_count, density_percentage
		FROM analysis_samples WHERE analysis_id = ? ORDER BY seq
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query timeline: %w", err)
	}
	defer rows.Close()

	a.Timeline = []models.TimelineSample{}
	for rows.Next() {
		var s models.TimelineSample
		if err := rows.Scan(&s.Seq, &s.Time, &s.Count, &s.Density); err != nil {
			return nil, fmt.Errorf("failed to scan timeline sample: %w", err)
		}
		a.Timeline = append(a.Timeline, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read timeline: %w", err)
	}

	return a, nil
}

// GetAll retrieves analyses newest first, without their timelines.
func (r *AnalysisRepository) GetAll(filter *models.AnalysisFilter) ([]models.Analysis, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	query := `SELECT ` + analysisColumns + ` FROM analyses WHERE 1=1`
	var args []interface{}

	if filter != nil && filter.MediaType != "" {
		query += " AND file_type = ?"
		args = append(args, filter.MediaType)
	}

	query += " ORDER BY processed_at DESC, id DESC"

	if filter != nil && filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)

		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := r.db.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query analyses: %w", err)
	}
	defer rows.Close()

	var analyses []models.Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan analysis: %w", err)
		}
		analyses = append(analyses, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read analyses: %w", err)
	}

	return analyses, nil
}

// GetTotalCount returns the number of analyses matching the filter.
func (r *AnalysisRepository) GetTotalCount(filter *models.AnalysisFilter) (int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	query := `SELECT COUNT(*) FROM analyses WHERE 1=1`
	var args []interface{}

	if filter != nil && filter.MediaType != "" {
		query += " AND file_type = ?"
		args = append(args, filter.MediaType)
	}

	var count int
	if err := r.db.Conn().QueryRow(query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count analyses: %w", err)
	}
	return count, nil
}

// GetStats returns aggregate KPIs over all stored analyses.
func (r *AnalysisRepository) GetStats() (*models.AnalysisStats, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	stats := &models.AnalysisStats{
		PerMediaType: make(map[string]int),
	}

	err := r.db.Conn().QueryRow(`
		SELECT COUNT(*),
			COALESCE(SUM(vehicle_count), 0),
			COALESCE(SUM(car_count), 0),
			COALESCE(SUM(truck_count), 0),
			COALESCE(SUM(bus_count), 0),
			COALESCE(SUM(motorcycle_count), 0),
			COALESCE(AVG(density_percentage), 0),
			COALESCE(MAX(density_percentage), 0)
		FROM analyses
	`).Scan(
		&stats.TotalAnalyses,
		&stats.TotalVehicles,
		&stats.Counts.Car,
		&stats.Counts.Truck,
		&stats.Counts.Bus,
		&stats.Counts.Motorcycle,
		&stats.AvgDensity,
		&stats.MaxDensity,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate analyses: %w", err)
	}

	// Analizy per typ pliku
	rows, err := r.db.Conn().Query(`SELECT file_type, COUNT(*) FROM analyses GROUP BY file_type`)
	if err != nil {
		return nil, fmt.Errorf("failed to query media types: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var mediaType string
		var count int
		if err := rows.Scan(&mediaType, &count); err != nil {
			return nil, fmt.Errorf("failed to scan media type: %w", err)
		}
		stats.PerMediaType[mediaType] = count
	}

	return stats, rows.Err()
}

// DeleteAll removes all analyses. Timeline samples go with them.
func (r *AnalysisRepository) DeleteAll() error {
	r.db.Lock()
	defer r.db.Unlock()

	if _, err := r.db.Conn().Exec(`DELETE FROM analysis_samples`); err != nil {
		return fmt.Errorf("failed to delete timeline samples: %w", err)
	}

	if _, err := r.db.Conn().Exec(`DELETE FROM analyses`); err != nil {
		return fmt.Errorf("failed to delete analyses: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAnalysis(row rowScanner) (*models.Analysis, error) {
	var a models.Analysis
	err := row.Scan(
		&a.ID, &a.Filename, &a.MediaType, &a.UploadPath, &a.ResultPath,
		&a.VehicleCount, &a.Counts.Car, &a.Counts.Truck, &a.Counts.Bus, &a.Counts.Motorcycle,
		&a.Density, &a.AvgConfidence, &a.LowConfidence, &a.NoMotorcycles,
		&a.Frames, &a.Duration, &a.ProcessingMs, &a.PeakCount, &a.MeanDensity,
		&a.ProcessedAt, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
