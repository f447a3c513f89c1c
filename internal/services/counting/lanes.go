package counting

import "image"

// LaneNames are the horizontal bands the frame is split into for overlays.
var LaneNames = [NumLanes]string{"Left Lane", "Middle Lane", "Right Lane"}

// LaneDividers returns the y coordinates separating the lanes.
func LaneDividers(height int) [NumLanes - 1]int {
	return [NumLanes - 1]int{int(float64(height) * 0.33), int(float64(height) * 0.66)}
}

// LaneOf returns the lane index of a box by its vertical centre.
func LaneOf(box image.Rectangle, height int) int {
	dividers := LaneDividers(height)
	centerY := (box.Min.Y + box.Max.Y) / 2
	switch {
	case centerY < dividers[0]:
		return 0
	case centerY < dividers[1]:
		return 1
	default:
		return 2
	}
}

// LaneStats counts vehicles per lane and class for one frame.
type LaneStats struct {
	Total   int
	ByClass map[Class]int
}

// Density returns the lane occupancy in percent.
func (s LaneStats) Density() float64 {
	d := float64(s.Total) / MaxVehiclesPerLane * 100
	if d > 100 {
		return 100
	}
	return d
}

// CountLanes groups the detections of one frame into lanes.
func CountLanes(dets []Detection, height int) [NumLanes]LaneStats {
	var stats [NumLanes]LaneStats
	for i := range stats {
		stats[i].ByClass = make(map[Class]int, len(Classes))
	}
	for _, d := range dets {
		lane := LaneOf(d.Box, height)
		stats[lane].Total++
		stats[lane].ByClass[d.Class]++
	}
	return stats
}
