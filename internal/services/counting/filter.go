package counting

// Default detection thresholds.
const (
	DefaultConfGlobal     = 0.6
	DefaultMotorcycleConf = 0.75
	DefaultIoUThreshold   = 0.3

	// Motorcycle boxes covering more than this share of the frame are
	// almost always misclassified cars.
	maxMotorcycleAreaRatio = 0.05
)

// Thresholds controls which detections are accepted and how they are matched.
type Thresholds struct {
	Global     float64
	Motorcycle float64
	IoU        float64
}

// DefaultThresholds returns the built-in thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Global:     DefaultConfGlobal,
		Motorcycle: DefaultMotorcycleConf,
		IoU:        DefaultIoUThreshold,
	}
}

// Normalize replaces every value outside (0, 1] with the matching fallback.
func (t Thresholds) Normalize(fallback Thresholds) Thresholds {
	fix := func(v, def float64) float64 {
		if v <= 0 || v > 1 {
			return def
		}
		return v
	}
	return Thresholds{
		Global:     fix(t.Global, fallback.Global),
		Motorcycle: fix(t.Motorcycle, fallback.Motorcycle),
		IoU:        fix(t.IoU, fallback.IoU),
	}
}

// MinConfidence returns the lowest threshold any class can pass with. The
// detector can drop everything below it before the per-class filter runs.
func (t Thresholds) MinConfidence() float64 {
	if t.Motorcycle < t.Global {
		return t.Motorcycle
	}
	return t.Global
}

// Accept reports whether a single detection passes the per-class filter.
func (t Thresholds) Accept(d Detection, frameArea int) bool {
	if d.Class == "" {
		return false
	}
	threshold := t.Global
	if d.Class == Motorcycle {
		threshold = t.Motorcycle
	}
	if d.Confidence < threshold {
		return false
	}
	if d.Class == Motorcycle && frameArea > 0 {
		boxArea := area(d.Box)
		if boxArea < 1 {
			boxArea = 1
		}
		if float64(boxArea) > maxMotorcycleAreaRatio*float64(frameArea) {
			return false
		}
	}
	return true
}

// Filter keeps the vehicle detections that pass the thresholds, grouped by class.
func Filter(dets []Detection, t Thresholds, frameArea int) ByClass {
	out := make(ByClass, len(Classes))
	for _, c := range Classes {
		out[c] = nil
	}
	for _, d := range dets {
		if t.Accept(d, frameArea) {
			out[d.Class] = append(out[d.Class], d)
		}
	}
	return out
}
