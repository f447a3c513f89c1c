package counting

// Options tune a single processing run.
type Options struct {
	Thresholds Thresholds
	// Interval runs the detector on every Nth frame. Frames in between reuse
	// the last detections for drawing.
	Interval int
}

// Normalize fills invalid values with defaults.
func (o Options) Normalize() Options {
	o.Thresholds = o.Thresholds.Normalize(DefaultThresholds())
	if o.Interval < 1 {
		o.Interval = 1
	}
	return o
}

// ProgressFunc receives the number of frames read so far and the total frame
// count reported by the container, which may be zero when unknown.
type ProgressFunc func(frame, total int)
