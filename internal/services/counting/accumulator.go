package counting

import (
	"image"
	"math"

	"gonum.org/v1/gonum/stat"

	"trafficsentinel/internal/models"
)

const (
	// MaxVehiclesPerLane and NumLanes define the road capacity that video
	// density is measured against.
	MaxVehiclesPerLane = 15
	NumLanes           = 3

	// samplesPerSecond is the target density timeline resolution.
	samplesPerSecond = 5

	// Image density assumes a vehicle covers this many pixels at 640x480.
	referenceVehicleArea = 5000.0
	referenceFrameArea   = 640.0 * 480.0
)

// Capacity is the number of concurrent vehicles that means 100% density.
const Capacity = MaxVehiclesPerLane * NumLanes

// Result is the summary of one processed upload.
type Result struct {
	Counts        models.VehicleCounts
	Density       float64
	Timeline      []models.TimelineSample
	AvgConfidence float64
	Frames        int
	Duration      float64
	PeakCount     int
	MeanDensity   float64
}

// Total returns the total vehicle count.
func (r Result) Total() int {
	return r.Counts.Total()
}

// Apply copies the result into an analysis record and derives its flags.
func (r Result) Apply(a *models.Analysis) {
	a.Counts = r.Counts
	a.Density = r.Density
	a.Timeline = r.Timeline
	a.AvgConfidence = r.AvgConfidence
	a.Frames = r.Frames
	a.Duration = r.Duration
	a.PeakCount = r.PeakCount
	a.MeanDensity = r.MeanDensity
	a.DeriveFlags()
}

// Accumulator collects per-frame detections of a video into a Result.
type Accumulator struct {
	fps         float64
	sampleEvery int
	nextSample  int
	tracker     *Tracker
	lastFrame   int
	peak        int
	confidences []float64
	timeline    []models.TimelineSample
}

// NewAccumulator creates an accumulator for a video running at fps.
func NewAccumulator(t Thresholds, fps float64) *Accumulator {
	sampleEvery := int(fps) / samplesPerSecond
	if sampleEvery < 1 {
		sampleEvery = 1
	}
	return &Accumulator{
		fps:         fps,
		sampleEvery: sampleEvery,
		tracker:     NewTracker(TrackerConfig{IoUThreshold: t.IoU}),
	}
}

// Observe records the accepted detections of one processed frame. Frames must
// be observed in increasing order; skipped frames are allowed.
func (a *Accumulator) Observe(frame int, byClass ByClass) {
	a.tracker.Update(frame, byClass)
	a.lastFrame = frame

	concurrent := byClass.Total()
	if concurrent > a.peak {
		a.peak = concurrent
	}
	for _, c := range Classes {
		for _, d := range byClass[c] {
			a.confidences = append(a.confidences, d.Confidence)
		}
	}

	if frame >= a.nextSample {
		a.timeline = append(a.timeline, models.TimelineSample{
			Seq:     len(a.timeline),
			Time:    a.timeAt(frame),
			Count:   concurrent,
			Density: capacityDensity(concurrent),
		})
		for a.nextSample <= frame {
			a.nextSample += a.sampleEvery
		}
	}
}

// Tracks returns the tracks matched on the most recently observed frame.
// The video overlay tags them with their ids.
func (a *Accumulator) Tracks() []Track {
	var out []Track
	for _, tr := range a.tracker.Tracks() {
		if tr.LastSeen == a.lastFrame {
			out = append(out, tr)
		}
	}
	return out
}

// Result summarises everything observed. frames is the number of frames read
// from the media, including frames the detector skipped.
func (a *Accumulator) Result(frames int) Result {
	r := Result{
		Counts:    a.tracker.Counts(),
		Density:   capacityDensity(a.peak),
		Timeline:  a.timeline,
		Frames:    frames,
		Duration:  a.timeAt(frames),
		PeakCount: a.peak,
	}
	if len(a.confidences) > 0 {
		r.AvgConfidence = stat.Mean(a.confidences, nil)
	}
	r.MeanDensity = meanDensity(a.timeline)
	return r
}

func (a *Accumulator) timeAt(frame int) float64 {
	if a.fps <= 0 {
		return 0
	}
	return round(float64(frame)/a.fps, 3)
}

// SummarizeImage builds the Result of a single still image of the given size.
func SummarizeImage(byClass ByClass, bounds image.Rectangle) Result {
	counts := models.VehicleCounts{
		Car:        len(byClass[Car]),
		Truck:      len(byClass[Truck]),
		Bus:        len(byClass[Bus]),
		Motorcycle: len(byClass[Motorcycle]),
	}
	total := counts.Total()
	density := ImageDensity(total, bounds.Dx()*bounds.Dy())

	var confidences []float64
	for _, c := range Classes {
		for _, d := range byClass[c] {
			confidences = append(confidences, d.Confidence)
		}
	}

	r := Result{
		Counts:    counts,
		Density:   density,
		Timeline:  []models.TimelineSample{{Seq: 0, Time: 0, Count: total, Density: density}},
		Frames:    1,
		PeakCount: total,
	}
	if len(confidences) > 0 {
		r.AvgConfidence = stat.Mean(confidences, nil)
	}
	r.MeanDensity = meanDensity(r.Timeline)
	return r
}

// ImageDensity estimates the share of a still image covered by vehicles,
// scaled so that roughly 30 cars fill a frame.
func ImageDensity(vehicles, imageArea int) float64 {
	if imageArea <= 0 || vehicles <= 0 {
		return 0
	}
	scaledVehicleArea := referenceVehicleArea * (float64(imageArea) / referenceFrameArea)
	density := float64(vehicles) * scaledVehicleArea / float64(imageArea) * 100 * 2
	return math.Min(100, density)
}

func capacityDensity(concurrent int) float64 {
	return math.Min(100, float64(concurrent)/float64(Capacity)*100)
}

func meanDensity(timeline []models.TimelineSample) float64 {
	if len(timeline) == 0 {
		return 0
	}
	values := make([]float64, len(timeline))
	for i, s := range timeline {
		values[i] = s.Density
	}
	return stat.Mean(values, nil)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
