// Package yolo decodes YOLOv8 model output and talks to a remote YOLO
// detection service. It has no OpenCV dependency.
package yolo

import (
	"fmt"
	"image"
	"sort"
)

const (
	// InputSize is the square input resolution of the exported models.
	InputSize = 640
	// NumCOCOClasses is the number of class scores per anchor.
	NumCOCOClasses = 80

	boxChannels = 4
)

// Candidate is a raw detection before non-max suppression.
type Candidate struct {
	ClassID int
	Score   float32
	Box     image.Rectangle
}

// DecodeV8 reads a YOLOv8 output tensor of shape [1, 4+classes, anchors]
// stored row-major in data. Boxes are scaled by scale (original size divided
// by InputSize) and clipped to bounds. Anchors whose best class score is
// below minScore are skipped.
func DecodeV8(data []float32, anchors int, minScore float32, scale float64, bounds image.Rectangle) ([]Candidate, error) {
	if anchors <= 0 {
		return nil, fmt.Errorf("invalid anchor count %d", anchors)
	}
	if len(data)%anchors != 0 {
		return nil, fmt.Errorf("output size %d is not a multiple of %d anchors", len(data), anchors)
	}
	channels := len(data) / anchors
	if channels <= boxChannels {
		return nil, fmt.Errorf("output has %d channels, want more than %d", channels, boxChannels)
	}

	var out []Candidate
	for i := 0; i < anchors; i++ {
		classID := -1
		var best float32
		for c := boxChannels; c < channels; c++ {
			if s := data[c*anchors+i]; s > best {
				best = s
				classID = c - boxChannels
			}
		}
		if classID < 0 || best < minScore {
			continue
		}

		cx := float64(data[0*anchors+i])
		cy := float64(data[1*anchors+i])
		w := float64(data[2*anchors+i])
		h := float64(data[3*anchors+i])

		box := image.Rect(
			int((cx-w/2)*scale),
			int((cy-h/2)*scale),
			int((cx+w/2)*scale),
			int((cy+h/2)*scale),
		).Intersect(bounds)
		if box.Empty() {
			continue
		}

		out = append(out, Candidate{ClassID: classID, Score: best, Box: box})
	}
	return out, nil
}

// SuppressPerClass runs nms over the candidates of each class separately, so
// overlapping boxes of different classes never suppress each other. nms gets
// the boxes and scores of one class and returns the indexes to keep. The
// result is ordered by class id.
func SuppressPerClass(cands []Candidate, nms func(boxes []image.Rectangle, scores []float32) []int) []Candidate {
	byClass := make(map[int][]Candidate)
	for _, c := range cands {
		byClass[c.ClassID] = append(byClass[c.ClassID], c)
	}
	ids := make([]int, 0, len(byClass))
	for id := range byClass {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	var out []Candidate
	for _, id := range ids {
		group := byClass[id]
		boxes := make([]image.Rectangle, len(group))
		scores := make([]float32, len(group))
		for i, c := range group {
			boxes[i] = c.Box
			scores[i] = c.Score
		}
		for _, idx := range nms(boxes, scores) {
			if idx >= 0 && idx < len(group) {
				out = append(out, group[idx])
			}
		}
	}
	return out
}

// LetterboxScale returns the factor mapping model coordinates back to a
// frame that was padded to a square at its top-left corner.
func LetterboxScale(width, height int) float64 {
	return float64(max(width, height)) / InputSize
}
