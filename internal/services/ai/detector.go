package ai

import (
	"fmt"
	"time"

	"gocv.io/x/gocv"

	"trafficsentinel/internal/config"
	"trafficsentinel/internal/logger"
	"trafficsentinel/internal/services/counting"
)

// Backends supported by NewDetector.
const (
	BackendONNX   = "onnx"
	BackendRemote = "remote"
)

// Detector finds objects in a single BGR frame. Implementations return every
// object the model reports above its own floor; vehicle filtering happens in
// the counting package.
type Detector interface {
	Detect(frame gocv.Mat) ([]counting.Detection, error)
	Close() error
}

// NewDetector builds the detector selected by the configuration.
func NewDetector(cfg *config.Config, log *logger.Logger) (Detector, error) {
	thresholds := counting.Thresholds{
		Global:     cfg.ConfGlobal,
		Motorcycle: cfg.MotorcycleConf,
		IoU:        cfg.IoUThreshold,
	}.Normalize(counting.DefaultThresholds())

	switch cfg.DetectorBackend {
	case BackendONNX, "":
		d, err := NewONNXDetector(cfg.ModelPath, thresholds.MinConfidence())
		if err != nil {
			return nil, err
		}
		log.Info("ONNX detector loaded from %s", cfg.ModelPath)
		return d, nil
	case BackendRemote:
		d := NewRemoteDetector(cfg.DetectorEndpoint, thresholds.MinConfidence(), 15*time.Second)
		log.Info("Using remote YOLO service at %s", cfg.DetectorEndpoint)
		return d, nil
	default:
		return nil, fmt.Errorf("unknown detector backend %q", cfg.DetectorBackend)
	}
}
