package counting

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trafficsentinel/internal/models"
)

func det(c Class, conf float64, x0, y0, x1, y1 int) Detection {
	return Detection{Class: c, Confidence: conf, Box: image.Rect(x0, y0, x1, y1)}
}

func TestClassForCOCO(t *testing.T) {
	tests := []struct {
		id    int
		class Class
		ok    bool
	}{
		{2, Car, true},
		{3, Motorcycle, true},
		{5, Bus, true},
		{7, Truck, true},
		{0, "", false},
		{1, "", false},
	}
	for _, tt := range tests {
		c, ok := ClassForCOCO(tt.id)
		assert.Equal(t, tt.ok, ok, "id %d", tt.id)
		assert.Equal(t, tt.class, c, "id %d", tt.id)
	}
}

func TestIoU(t *testing.T) {
	a := image.Rect(0, 0, 10, 10)

	assert.InDelta(t, 1.0, IoU(a, a), 1e-9)
	assert.InDelta(t, 0.0, IoU(a, image.Rect(20, 20, 30, 30)), 1e-9)
	// 5x10 overlap, union 150
	assert.InDelta(t, 50.0/150.0, IoU(a, image.Rect(5, 0, 15, 10)), 1e-9)
	assert.InDelta(t, 0.0, IoU(image.Rectangle{}, image.Rectangle{}), 1e-9)
}

func TestThresholds_Normalize(t *testing.T) {
	got := Thresholds{Global: 0, Motorcycle: 1.5, IoU: 0.4}.Normalize(DefaultThresholds())

	assert.Equal(t, Thresholds{Global: DefaultConfGlobal, Motorcycle: DefaultMotorcycleConf, IoU: 0.4}, got)
	assert.InDelta(t, 0.6, DefaultThresholds().MinConfidence(), 1e-9)
	assert.InDelta(t, 0.5, Thresholds{Global: 0.7, Motorcycle: 0.5}.MinConfidence(), 1e-9)
}

func TestFilter(t *testing.T) {
	frameArea := 1000 * 1000
	dets := []Detection{
		det(Car, 0.9, 0, 0, 100, 100),
		det(Car, 0.5, 0, 0, 100, 100),        // below global threshold
		det(Motorcycle, 0.7, 0, 0, 50, 50),   // below motorcycle threshold
		det(Motorcycle, 0.8, 0, 0, 50, 50),   // accepted
		det(Motorcycle, 0.9, 0, 0, 300, 300), // 9% of the frame
		det(Truck, 0.6, 10, 10, 200, 200),    // exactly at threshold
		{ClassID: 0, Confidence: 0.99},       // person
		det(Bus, 0.61, 500, 500, 900, 800),
	}

	byClass := Filter(dets, DefaultThresholds(), frameArea)

	assert.Len(t, byClass[Car], 1)
	assert.Len(t, byClass[Motorcycle], 1)
	assert.Len(t, byClass[Truck], 1)
	assert.Len(t, byClass[Bus], 1)
	assert.Equal(t, 4, byClass.Total())
	require.Len(t, byClass.All(), 4)
	assert.Equal(t, Car, byClass.All()[0].Class)
}

func TestTracker_CountsAfterConfirmHits(t *testing.T) {
	tr := NewTracker(TrackerConfig{IoUThreshold: 0.3})
	box := func(dx int) ByClass {
		return ByClass{Car: {det(Car, 0.9, 100+dx, 100, 200+dx, 160)}}
	}

	tr.Update(0, box(0))
	assert.Equal(t, 0, tr.Counts().Car)
	tr.Update(1, box(5))
	assert.Equal(t, 0, tr.Counts().Car)
	tr.Update(2, box(10))
	assert.Equal(t, 1, tr.Counts().Car)

	// Further hits never count the same track twice.
	tr.Update(3, box(15))
	tr.Update(4, box(20))
	assert.Equal(t, 1, tr.Counts().Car)
	require.Len(t, tr.Tracks(), 1)
	assert.Equal(t, 5, tr.Tracks()[0].Hits)
}

func TestTracker_SeparateClassesDoNotMatch(t *testing.T) {
	tr := NewTracker(TrackerConfig{})
	for f := 0; f < 3; f++ {
		tr.Update(f, ByClass{
			Car:   {det(Car, 0.9, 0, 0, 100, 100)},
			Truck: {det(Truck, 0.9, 0, 0, 100, 100)},
		})
	}

	assert.Equal(t, models.VehicleCounts{Car: 1, Truck: 1}, tr.Counts())
}

func TestTracker_TimeoutOpensNewTrack(t *testing.T) {
	tr := NewTracker(TrackerConfig{Timeout: 5, ConfirmHits: 2})
	b := ByClass{Bus: {det(Bus, 0.9, 0, 0, 100, 100)}}

	tr.Update(0, b)
	tr.Update(1, b)
	assert.Equal(t, 1, tr.Counts().Bus)

	// Unseen for longer than the timeout: the old track expires and the
	// same box is counted as a new vehicle once confirmed.
	tr.Update(10, b)
	tr.Update(11, b)
	assert.Equal(t, 2, tr.Counts().Bus)
	require.Len(t, tr.Tracks(), 1)
	assert.Equal(t, 2, tr.Tracks()[0].ID)
}

func TestTracker_LowOverlapDoesNotMatch(t *testing.T) {
	tr := NewTracker(TrackerConfig{IoUThreshold: 0.5})
	tr.Update(0, ByClass{Car: {det(Car, 0.9, 0, 0, 100, 100)}})
	tr.Update(1, ByClass{Car: {det(Car, 0.9, 60, 0, 160, 100)}}) // IoU 0.25

	assert.Len(t, tr.Tracks(), 2)
}

func TestAccumulator_VideoSummary(t *testing.T) {
	acc := NewAccumulator(DefaultThresholds(), 25) // sample every 5 frames

	for f := 0; f < 20; f++ {
		acc.Observe(f, ByClass{
			Car:   {det(Car, 0.8, 10+f, 10, 110+f, 70)},
			Truck: {det(Truck, 0.6, 300, 300, 500, 450)},
		})
	}
	r := acc.Result(20)

	assert.Equal(t, models.VehicleCounts{Car: 1, Truck: 1}, r.Counts)
	assert.Equal(t, 2, r.Total())
	assert.Equal(t, 2, r.PeakCount)
	assert.InDelta(t, 2.0/45.0*100, r.Density, 1e-9)
	assert.InDelta(t, 0.7, r.AvgConfidence, 1e-9)
	assert.Equal(t, 20, r.Frames)
	assert.InDelta(t, 0.8, r.Duration, 1e-9)

	require.Len(t, r.Timeline, 4)
	for i, s := range r.Timeline {
		assert.Equal(t, i, s.Seq)
		assert.InDelta(t, float64(i*5)/25, s.Time, 1e-9)
		assert.Equal(t, 2, s.Count)
	}
	assert.InDelta(t, r.Timeline[0].Density, r.MeanDensity, 1e-9)
}

func TestAccumulator_TracksOnlyLastFrame(t *testing.T) {
	acc := NewAccumulator(DefaultThresholds(), 25)

	acc.Observe(0, ByClass{
		Car: {det(Car, 0.8, 10, 10, 110, 70)},
		Bus: {det(Bus, 0.9, 400, 300, 600, 450)},
	})
	require.Len(t, acc.Tracks(), 2)

	// The bus is gone but its track is still alive within the timeout.
	acc.Observe(1, ByClass{Car: {det(Car, 0.8, 12, 10, 112, 70)}})
	tracks := acc.Tracks()
	require.Len(t, tracks, 1)
	assert.Equal(t, Car, tracks[0].Class)
	assert.Equal(t, 1, tracks[0].ID)
	assert.Equal(t, image.Rect(12, 10, 112, 70), tracks[0].Box)
	assert.Equal(t, 2, tracks[0].Hits)
}

func TestAccumulator_SkippedFramesStillSample(t *testing.T) {
	acc := NewAccumulator(DefaultThresholds(), 10) // sample every 2 frames

	// Detector runs on every third frame only.
	for f := 0; f < 12; f += 3 {
		acc.Observe(f, ByClass{})
	}
	r := acc.Result(12)

	require.Len(t, r.Timeline, 4)
	assert.InDelta(t, 0.0, r.Timeline[0].Time, 1e-9)
	assert.InDelta(t, 0.3, r.Timeline[1].Time, 1e-9)
	assert.InDelta(t, 0.6, r.Timeline[2].Time, 1e-9)
	assert.InDelta(t, 0.9, r.Timeline[3].Time, 1e-9)
}

func TestAccumulator_DensityIsCapped(t *testing.T) {
	acc := NewAccumulator(DefaultThresholds(), 5)
	var cars []Detection
	for i := 0; i < 60; i++ {
		cars = append(cars, det(Car, 0.9, i*20, 0, i*20+10, 10))
	}
	acc.Observe(0, ByClass{Car: cars})
	r := acc.Result(1)

	assert.InDelta(t, 100.0, r.Density, 1e-9)
	assert.InDelta(t, 100.0, r.Timeline[0].Density, 1e-9)
}

func TestAccumulator_NoDetections(t *testing.T) {
	r := NewAccumulator(DefaultThresholds(), 30).Result(0)

	assert.Equal(t, 0, r.Total())
	assert.Zero(t, r.AvgConfidence)
	assert.Zero(t, r.MeanDensity)

	a := &models.Analysis{}
	r.Apply(a)
	assert.True(t, a.LowConfidence)
	assert.True(t, a.NoMotorcycles)
}

func TestSummarizeImage(t *testing.T) {
	byClass := ByClass{
		Car:        {det(Car, 0.9, 0, 0, 10, 10), det(Car, 0.7, 20, 0, 30, 10)},
		Motorcycle: {det(Motorcycle, 0.8, 40, 0, 45, 5)},
	}

	r := SummarizeImage(byClass, image.Rect(0, 0, 640, 480))

	assert.Equal(t, models.VehicleCounts{Car: 2, Motorcycle: 1}, r.Counts)
	assert.InDelta(t, 3*5000.0/307200.0*200, r.Density, 1e-9)
	assert.InDelta(t, 0.8, r.AvgConfidence, 1e-9)
	require.Len(t, r.Timeline, 1)
	assert.Equal(t, 3, r.Timeline[0].Count)
	assert.Equal(t, 1, r.Frames)

	a := &models.Analysis{}
	r.Apply(a)
	assert.Equal(t, 3, a.VehicleCount)
	assert.Equal(t, a.Counts.Total(), a.VehicleCount)
	assert.False(t, a.NoMotorcycles)
	assert.False(t, a.LowConfidence)
}

func TestImageDensity(t *testing.T) {
	assert.Zero(t, ImageDensity(0, 640*480))
	assert.Zero(t, ImageDensity(5, 0))
	// Independent of resolution.
	assert.InDelta(t, ImageDensity(4, 640*480), ImageDensity(4, 1920*1080), 1e-9)
	assert.InDelta(t, 100.0, ImageDensity(100, 640*480), 1e-9)
}

func TestLanes(t *testing.T) {
	h := 300
	assert.Equal(t, [2]int{99, 198}, LaneDividers(h))
	assert.Equal(t, 0, LaneOf(image.Rect(0, 0, 10, 50), h))
	assert.Equal(t, 1, LaneOf(image.Rect(0, 120, 10, 160), h))
	assert.Equal(t, 2, LaneOf(image.Rect(0, 250, 10, 300), h))

	stats := CountLanes([]Detection{
		det(Car, 0.9, 0, 0, 10, 50),
		det(Truck, 0.9, 0, 10, 10, 60),
		det(Car, 0.9, 0, 250, 10, 300),
	}, h)

	assert.Equal(t, 2, stats[0].Total)
	assert.Equal(t, 1, stats[0].ByClass[Truck])
	assert.Equal(t, 0, stats[1].Total)
	assert.Equal(t, 1, stats[2].ByClass[Car])
	assert.InDelta(t, 2.0/15.0*100, stats[0].Density(), 1e-9)
}

func TestOptions_Normalize(t *testing.T) {
	o := Options{Thresholds: Thresholds{Global: 0.5}, Interval: 0}.Normalize()

	assert.Equal(t, 1, o.Interval)
	assert.InDelta(t, 0.5, o.Thresholds.Global, 1e-9)
	assert.InDelta(t, DefaultMotorcycleConf, o.Thresholds.Motorcycle, 1e-9)
	assert.InDelta(t, DefaultIoUThreshold, o.Thresholds.IoU, 1e-9)
}
