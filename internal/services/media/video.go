package media

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"

	"gocv.io/x/gocv"

	"trafficsentinel/internal/services/ai"
	"trafficsentinel/internal/services/counting"
)

const (
	defaultFPS = 30.0
	// progressEvery limits how often progress callbacks fire.
	progressEvery = 10
)

// ErrNoFrames is returned for videos without a single readable frame.
var ErrNoFrames = errors.New("video has no readable frames")

// ProcessVideo counts vehicles in the video at in and writes an annotated
// MP4 to out. The detector runs every opts.Interval frames and cancellation
// of ctx is checked between frames.
func ProcessVideo(ctx context.Context, in, out string, det ai.Detector, opts counting.Options, progress counting.ProgressFunc) (counting.Result, error) {
	opts = opts.Normalize()

	vc, err := gocv.VideoCaptureFile(in)
	if err != nil {
		return counting.Result{}, fmt.Errorf("failed to open video: %w", err)
	}
	defer vc.Close()

	fps := vc.Get(gocv.VideoCaptureFPS)
	if fps <= 0 || math.IsNaN(fps) || math.IsInf(fps, 0) {
		fps = defaultFPS
	}
	total := int(vc.Get(gocv.VideoCaptureFrameCount))
	if total < 0 {
		total = 0
	}

	acc := counting.NewAccumulator(opts.Thresholds, fps)
	frame := gocv.NewMat()
	defer frame.Close()

	var (
		writer  *gocv.VideoWriter
		current []counting.Detection
		tracks  []counting.Track
		frames  int
	)
	defer func() {
		if writer != nil {
			writer.Close()
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return counting.Result{}, err
		}
		if ok := vc.Read(&frame); !ok || frame.Empty() {
			break
		}
		size := image.Pt(frame.Cols(), frame.Rows())

		if writer == nil {
			writer, err = openWriter(out, fps, size)
			if err != nil {
				return counting.Result{}, err
			}
		}

		if frames%opts.Interval == 0 {
			dets, err := det.Detect(frame)
			if err != nil {
				return counting.Result{}, fmt.Errorf("detection failed on frame %d: %w", frames, err)
			}
			byClass := counting.Filter(dets, opts.Thresholds, size.X*size.Y)
			acc.Observe(frames, byClass)
			current = byClass.All()
			tracks = acc.Tracks()
		}

		if err := annotateFrame(&frame, current, tracks, frames+1, total); err != nil {
			return counting.Result{}, fmt.Errorf("failed to annotate frame %d: %w", frames, err)
		}
		if err := writer.Write(frame); err != nil {
			return counting.Result{}, fmt.Errorf("failed to write frame %d: %w", frames, err)
		}

		frames++
		if progress != nil && frames%progressEvery == 0 {
			progress(frames, total)
		}
	}

	if frames == 0 {
		return counting.Result{}, ErrNoFrames
	}
	if progress != nil {
		progress(frames, total)
	}
	return acc.Result(frames), nil
}

// openWriter prefers H.264 so browsers can play the result and falls back to
// MPEG-4 Part 2 when the OpenCV build lacks an H.264 encoder.
func openWriter(out string, fps float64, size image.Point) (*gocv.VideoWriter, error) {
	var lastErr error
	for _, codec := range []string{"avc1", "mp4v"} {
		w, err := gocv.VideoWriterFile(out, codec, fps, size.X, size.Y, true)
		if err != nil {
			lastErr = err
			continue
		}
		if w.IsOpened() {
			return w, nil
		}
		w.Close()
		lastErr = fmt.Errorf("codec %s not available", codec)
	}
	return nil, fmt.Errorf("failed to open video writer: %w", lastErr)
}

func annotateFrame(frame *gocv.Mat, dets []counting.Detection, tracks []counting.Track, index, total int) error {
	size := image.Pt(frame.Cols(), frame.Rows())
	p := &painter{img: frame}

	drawLaneDividers(p, size)
	drawDetections(p, dets)
	drawTracks(p, size, tracks)
	drawLanePanels(p, size, counting.CountLanes(dets, size.Y))
	drawFrameCounter(p, size, index, total)
	return p.err
}
