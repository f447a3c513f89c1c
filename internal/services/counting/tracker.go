package counting

import (
	"image"

	"trafficsentinel/internal/models"
)

const (
	// DefaultTrackTimeout is the number of frames a track survives unseen.
	DefaultTrackTimeout = 30
	// DefaultConfirmHits is the number of matches before a track is counted.
	DefaultConfirmHits = 3
)

// Track is a vehicle followed across frames by box overlap.
type Track struct {
	ID       int
	Class    Class
	Box      image.Rectangle
	LastSeen int
	Hits     int
	Counted  bool
}

// TrackerConfig holds the matching parameters.
type TrackerConfig struct {
	IoUThreshold float64
	Timeout      int
	ConfirmHits  int
}

// Tracker counts unique vehicles per class with greedy IoU matching.
// It is a counting heuristic, not a multi-object tracker: tracks carry no
// motion model and are matched within a single class only.
type Tracker struct {
	cfg    TrackerConfig
	tracks map[Class][]*Track
	nextID map[Class]int
	counts map[Class]int
}

// NewTracker creates a tracker. Zero timeout or confirm hits use the defaults.
func NewTracker(cfg TrackerConfig) *Tracker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTrackTimeout
	}
	if cfg.ConfirmHits <= 0 {
		cfg.ConfirmHits = DefaultConfirmHits
	}
	if cfg.IoUThreshold <= 0 {
		cfg.IoUThreshold = DefaultIoUThreshold
	}
	t := &Tracker{
		cfg:    cfg,
		tracks: make(map[Class][]*Track, len(Classes)),
		nextID: make(map[Class]int, len(Classes)),
		counts: make(map[Class]int, len(Classes)),
	}
	for _, c := range Classes {
		t.nextID[c] = 1
	}
	return t
}

// Update ages out stale tracks, matches the frame's detections against the
// live tracks and opens tracks for the detections left over.
func (t *Tracker) Update(frame int, byClass ByClass) {
	for _, c := range Classes {
		dets := byClass[c]

		fresh := t.tracks[c][:0]
		for _, tr := range t.tracks[c] {
			if frame-tr.LastSeen <= t.cfg.Timeout {
				fresh = append(fresh, tr)
			}
		}
		t.tracks[c] = fresh

		used := make([]bool, len(dets))
		for _, tr := range t.tracks[c] {
			bestJ := -1
			bestIoU := 0.0
			for j, d := range dets {
				if used[j] {
					continue
				}
				if iou := IoU(tr.Box, d.Box); iou > bestIoU {
					bestIoU = iou
					bestJ = j
				}
			}
			if bestJ == -1 || bestIoU < t.cfg.IoUThreshold {
				continue
			}
			tr.Box = dets[bestJ].Box
			tr.LastSeen = frame
			tr.Hits++
			if !tr.Counted && tr.Hits >= t.cfg.ConfirmHits {
				t.counts[c]++
				tr.Counted = true
			}
			used[bestJ] = true
		}

		for j, d := range dets {
			if used[j] {
				continue
			}
			t.tracks[c] = append(t.tracks[c], &Track{
				ID:       t.nextID[c],
				Class:    c,
				Box:      d.Box,
				LastSeen: frame,
				Hits:     1,
			})
			t.nextID[c]++
		}
	}
}

// Counts returns the confirmed unique vehicles per class.
func (t *Tracker) Counts() models.VehicleCounts {
	return models.VehicleCounts{
		Car:        t.counts[Car],
		Truck:      t.counts[Truck],
		Bus:        t.counts[Bus],
		Motorcycle: t.counts[Motorcycle],
	}
}

// Tracks returns a copy of the live tracks in class order.
func (t *Tracker) Tracks() []Track {
	var out []Track
	for _, c := range Classes {
		for _, tr := range t.tracks[c] {
			out = append(out, *tr)
		}
	}
	return out
}
