package media

import (
	"fmt"

	"gocv.io/x/gocv"

	"trafficsentinel/internal/models"
)

// Snapshot renders the first frame of an analysis result with its KPIs and
// writes it as JPEG to outPath.
func Snapshot(a *models.Analysis, resultPath, outPath string) error {
	frame, err := firstFrame(a, resultPath)
	if err != nil {
		return err
	}
	defer frame.Close()

	p := &painter{img: &frame}
	drawKPIPanel(p, a.VehicleCount, a.Density)
	if p.err != nil {
		return fmt.Errorf("failed to draw snapshot: %w", p.err)
	}

	if ok := gocv.IMWrite(outPath, frame); !ok {
		return fmt.Errorf("failed to write snapshot %s", outPath)
	}
	return nil
}

func firstFrame(a *models.Analysis, path string) (gocv.Mat, error) {
	if !a.IsVideo() {
		img := gocv.IMRead(path, gocv.IMReadColor)
		if img.Empty() {
			img.Close()
			return gocv.Mat{}, fmt.Errorf("failed to read result image %s", path)
		}
		return img, nil
	}

	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("failed to open result video: %w", err)
	}
	defer vc.Close()

	frame := gocv.NewMat()
	if ok := vc.Read(&frame); !ok || frame.Empty() {
		frame.Close()
		return gocv.Mat{}, ErrNoFrames
	}
	return frame, nil
}
