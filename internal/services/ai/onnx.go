package ai

import (
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"trafficsentinel/internal/services/ai/yolo"
	"trafficsentinel/internal/services/counting"
)

// nmsThreshold is the box overlap above which NMS keeps only the best box.
const nmsThreshold = 0.45

// ONNXDetector runs a YOLOv8 ONNX model through the OpenCV DNN module.
type ONNXDetector struct {
	net      gocv.Net
	minScore float32
	mu       sync.Mutex // gocv.Net nie jest bezpieczny dla wielu wątków
}

// NewONNXDetector loads the model. minScore drops candidates before NMS.
func NewONNXDetector(modelPath string, minScore float64) (*ONNXDetector, error) {
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", modelPath)
	}

	net := gocv.ReadNetFromONNX(modelPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load network from %s", modelPath)
	}

	errBackend := net.SetPreferableBackend(gocv.NetBackendDefault)
	errTarget := net.SetPreferableTarget(gocv.NetTargetCPU)
	if errBackend != nil || errTarget != nil {
		net.Close()
		return nil, fmt.Errorf("failed to set preferable backend or target")
	}

	return &ONNXDetector{net: net, minScore: float32(minScore)}, nil
}

// Detect letterboxes the frame to 640x640, runs the network and applies
// non-max suppression.
func (d *ONNXDetector) Detect(frame gocv.Mat) ([]counting.Detection, error) {
	if frame.Empty() {
		return nil, fmt.Errorf("empty frame")
	}
	width, height := frame.Cols(), frame.Rows()
	side := max(width, height)

	// Wypełnienie szarym jak przy treningu YOLO
	square := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(114, 114, 114, 0), side, side, gocv.MatTypeCV8UC3)
	defer square.Close()
	roi := square.Region(image.Rect(0, 0, width, height))
	frame.CopyTo(&roi)
	roi.Close()

	blob := gocv.BlobFromImage(square, 1.0/255.0, image.Pt(yolo.InputSize, yolo.InputSize), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.mu.Lock()
	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	d.mu.Unlock()
	defer output.Close()

	sizes := output.Size()
	if len(sizes) != 3 {
		return nil, fmt.Errorf("unexpected output shape %v", sizes)
	}
	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("failed to read network output: %w", err)
	}

	bounds := image.Rect(0, 0, width, height)
	candidates, err := yolo.DecodeV8(data, sizes[2], d.minScore, yolo.LetterboxScale(width, height), bounds)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	kept := yolo.SuppressPerClass(candidates, func(boxes []image.Rectangle, scores []float32) []int {
		return gocv.NMSBoxes(boxes, scores, d.minScore, nmsThreshold)
	})

	detections := make([]counting.Detection, 0, len(kept))
	for _, c := range kept {
		class, _ := counting.ClassForCOCO(c.ClassID)
		detections = append(detections, counting.Detection{
			ClassID:    c.ClassID,
			Class:      class,
			Confidence: float64(c.Score),
			Box:        c.Box,
		})
	}
	return detections, nil
}

// Close releases the network.
func (d *ONNXDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}
