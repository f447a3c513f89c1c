// Package counting turns raw per-frame detections into vehicle counts, a
// density timeline and the summary KPIs stored with each analysis.
package counting

import (
	"image"
	"sort"
)

// Class is a vehicle class tracked by the counter.
type Class string

const (
	Car        Class = "car"
	Truck      Class = "truck"
	Bus        Class = "bus"
	Motorcycle Class = "motorcycle"
)

// Classes lists the vehicle classes in display order.
var Classes = []Class{Car, Truck, Bus, Motorcycle}

// COCO class ids produced by the pretrained YOLO models.
var cocoVehicles = map[int]Class{
	2: Car,
	3: Motorcycle,
	5: Bus,
	7: Truck,
}

// ClassForCOCO maps a COCO class id to a vehicle class.
func ClassForCOCO(id int) (Class, bool) {
	c, ok := cocoVehicles[id]
	return c, ok
}

// ClassForName maps a model label (COCO name) to a vehicle class.
func ClassForName(name string) (Class, bool) {
	for _, c := range Classes {
		if string(c) == name {
			return c, true
		}
	}
	return "", false
}

// Detection is a single object found by the detector in one frame.
// Class is empty for objects that are not vehicles.
type Detection struct {
	ClassID    int
	Class      Class
	Confidence float64
	Box        image.Rectangle
}

// ByClass groups accepted detections per vehicle class.
type ByClass map[Class][]Detection

// Total returns the number of detections over all classes.
func (b ByClass) Total() int {
	n := 0
	for _, dets := range b {
		n += len(dets)
	}
	return n
}

// All returns the detections in class order, highest confidence first.
func (b ByClass) All() []Detection {
	var out []Detection
	for _, c := range Classes {
		dets := append([]Detection(nil), b[c]...)
		sort.SliceStable(dets, func(i, j int) bool { return dets[i].Confidence > dets[j].Confidence })
		out = append(out, dets...)
	}
	return out
}

// IoU returns the intersection over union of two boxes.
func IoU(a, b image.Rectangle) float64 {
	inter := a.Intersect(b)
	interArea := area(inter)
	union := area(a) + area(b) - interArea
	if union <= 0 {
		return 0
	}
	return float64(interArea) / float64(union)
}

func area(r image.Rectangle) int {
	if r.Empty() {
		return 0
	}
	return r.Dx() * r.Dy()
}
