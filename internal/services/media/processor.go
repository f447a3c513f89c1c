// Package media reads uploaded images and videos with OpenCV, runs the
// detector over their frames and renders annotated results and snapshots.
package media

import (
	"context"

	"trafficsentinel/internal/models"
	"trafficsentinel/internal/services/ai"
	"trafficsentinel/internal/services/counting"
)

// Processor binds a detector to the media functions.
type Processor struct {
	detector ai.Detector
}

// NewProcessor creates a processor using det for every run.
func NewProcessor(det ai.Detector) *Processor {
	return &Processor{detector: det}
}

func (p *Processor) ProcessVideo(ctx context.Context, in, out string, opts counting.Options, progress counting.ProgressFunc) (counting.Result, error) {
	return ProcessVideo(ctx, in, out, p.detector, opts, progress)
}

func (p *Processor) ProcessImage(ctx context.Context, in, out string, opts counting.Options) (counting.Result, error) {
	return ProcessImage(ctx, in, out, p.detector, opts)
}

func (p *Processor) Snapshot(a *models.Analysis, resultPath, outPath string) error {
	return Snapshot(a, resultPath, outPath)
}

func (p *Processor) Sample(out string) error {
	return Sample(out)
}

// Close releases the detector.
func (p *Processor) Close() error {
	return p.detector.Close()
}
