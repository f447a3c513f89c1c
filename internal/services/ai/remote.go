package ai

import (
	"context"
	"fmt"
	"image"
	"time"

	"gocv.io/x/gocv"

	"trafficsentinel/internal/services/ai/yolo"
	"trafficsentinel/internal/services/counting"
)

// RemoteDetector sends frames to a YOLO HTTP service.
type RemoteDetector struct {
	client  *yolo.Client
	minConf float64
	timeout time.Duration
}

// NewRemoteDetector creates a detector for the service at endpoint.
func NewRemoteDetector(endpoint string, minConf float64, timeout time.Duration) *RemoteDetector {
	return &RemoteDetector{
		client:  yolo.NewClient(endpoint, timeout),
		minConf: minConf,
		timeout: timeout,
	}
}

// Detect JPEG-encodes the frame and posts it to the service.
func (d *RemoteDetector) Detect(frame gocv.Mat) ([]counting.Detection, error) {
	if frame.Empty() {
		return nil, fmt.Errorf("empty frame")
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, frame)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	defer buf.Close()
	jpeg := make([]byte, len(buf.GetBytes()))
	copy(jpeg, buf.GetBytes())

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	return d.client.Detect(ctx, jpeg, d.minConf, image.Rect(0, 0, frame.Cols(), frame.Rows()))
}

// Close is a no-op; the service owns the model.
func (d *RemoteDetector) Close() error {
	return nil
}
