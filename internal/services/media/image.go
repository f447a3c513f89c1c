package media

import (
	"context"
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"trafficsentinel/internal/services/ai"
	"trafficsentinel/internal/services/counting"
)

// ProcessImage counts vehicles in a still image and writes the annotated
// copy to out.
func ProcessImage(ctx context.Context, in, out string, det ai.Detector, opts counting.Options) (counting.Result, error) {
	opts = opts.Normalize()

	img := gocv.IMRead(in, gocv.IMReadColor)
	if img.Empty() {
		img.Close()
		return counting.Result{}, fmt.Errorf("failed to read image %s", in)
	}
	defer img.Close()

	if err := ctx.Err(); err != nil {
		return counting.Result{}, err
	}

	bounds := image.Rect(0, 0, img.Cols(), img.Rows())
	dets, err := det.Detect(img)
	if err != nil {
		return counting.Result{}, fmt.Errorf("detection failed: %w", err)
	}
	byClass := counting.Filter(dets, opts.Thresholds, bounds.Dx()*bounds.Dy())
	result := counting.SummarizeImage(byClass, bounds)

	p := &painter{img: &img}
	current := byClass.All()
	drawLaneDividers(p, bounds.Size())
	drawDetections(p, current)
	drawLanePanels(p, bounds.Size(), counting.CountLanes(current, bounds.Dy()))
	if p.err != nil {
		return counting.Result{}, fmt.Errorf("failed to annotate image: %w", p.err)
	}

	if ok := gocv.IMWrite(out, img); !ok {
		return counting.Result{}, fmt.Errorf("failed to write image %s", out)
	}
	return result, nil
}
