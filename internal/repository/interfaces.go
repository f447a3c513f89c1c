package repository

import (
	"trafficsentinel/internal/models"
)

// AnalysisRepository defines the interface for analysis data operations.
type AnalysisRepository interface {
	// Create operations
	Insert(a *models.Analysis) (int64, error)

	// Read operations
	GetByID(id int64) (*models.Analysis, error)
	GetAll(filter *models.AnalysisFilter) ([]models.Analysis, error)
	GetTotalCount(filter *models.AnalysisFilter) (int, error)
	GetStats() (*models.AnalysisStats, error)

	// Delete operations
	DeleteAll() error
}
