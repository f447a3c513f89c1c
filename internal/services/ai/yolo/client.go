package yolo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"trafficsentinel/internal/services/counting"
)

// ErrUnavailable is returned when the detection service fails its health check.
var ErrUnavailable = errors.New("YOLO detection service unavailable")

const healthCacheTTL = 30 * time.Second

// RemoteDetection is a single detection in the service response.
type RemoteDetection struct {
	Class      string    `json:"class"`
	ClassID    int       `json:"class_id"`
	Confidence float32   `json:"confidence"`
	BBox       []float32 `json:"bbox"` // [x1, y1, x2, y2]
}

// RemoteResult is the body returned by POST /detect.
type RemoteResult struct {
	Detections      []RemoteDetection `json:"detections"`
	Count           int               `json:"count"`
	InferenceTimeMs float32           `json:"inference_time_ms"`
	Device          string            `json:"device"`
}

// HealthResponse is the body returned by GET /health.
type HealthResponse struct {
	Status       string `json:"status"`
	Device       string `json:"device"`
	GPUAvailable bool   `json:"gpu_available"`
	ModelLoaded  bool   `json:"model_loaded"`
}

// Client calls a YOLO HTTP service.
type Client struct {
	endpoint string
	client   *http.Client

	mu        sync.Mutex
	healthyAt time.Time
}

// NewClient creates a client for the service at endpoint.
func NewClient(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   &http.Client{Timeout: timeout},
	}
}

// Healthy reports whether the service has its model loaded. A positive
// answer is cached for 30 seconds.
func (c *Client) Healthy(ctx context.Context) bool {
	c.mu.Lock()
	if !c.healthyAt.IsZero() && time.Since(c.healthyAt) < healthCacheTTL {
		c.mu.Unlock()
		return true
	}
	c.mu.Unlock()

	health, err := c.Health(ctx)
	if err != nil || !health.ModelLoaded {
		return false
	}

	c.mu.Lock()
	c.healthyAt = time.Now()
	c.mu.Unlock()
	return true
}

// Health fetches the service health report.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/health", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to check YOLO health: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("YOLO health check returned status %d", resp.StatusCode)
	}

	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, fmt.Errorf("failed to decode health response: %w", err)
	}
	return &health, nil
}

// Detect sends one JPEG encoded frame and returns the vehicle detections,
// clipped to bounds.
func (c *Client) Detect(ctx context.Context, jpeg []byte, minConf float64, bounds image.Rectangle) ([]counting.Detection, error) {
	if !c.Healthy(ctx) {
		return nil, ErrUnavailable
	}

	var b bytes.Buffer
	w := multipart.NewWriter(&b)

	fw, err := w.CreateFormFile("file", "frame.jpg")
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(jpeg); err != nil {
		return nil, err
	}
	if err := w.WriteField("conf_threshold", fmt.Sprintf("%.3f", minConf)); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/detect", &b)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		c.invalidate()
		return nil, fmt.Errorf("YOLO request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("YOLO detection failed: %s", strings.TrimSpace(string(body)))
	}

	var result RemoteResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode detection response: %w", err)
	}

	return ToDetections(result.Detections, bounds), nil
}

func (c *Client) invalidate() {
	c.mu.Lock()
	c.healthyAt = time.Time{}
	c.mu.Unlock()
}

// ToDetections converts service detections, resolving the vehicle class by
// COCO id first and by label second. Malformed boxes are dropped.
func ToDetections(in []RemoteDetection, bounds image.Rectangle) []counting.Detection {
	out := make([]counting.Detection, 0, len(in))
	for _, d := range in {
		if len(d.BBox) != 4 {
			continue
		}
		box := image.Rect(int(d.BBox[0]), int(d.BBox[1]), int(d.BBox[2]), int(d.BBox[3])).Intersect(bounds)
		if box.Empty() {
			continue
		}

		class, ok := counting.ClassForCOCO(d.ClassID)
		if !ok {
			class, _ = counting.ClassForName(strings.ToLower(d.Class))
		}
		out = append(out, counting.Detection{
			ClassID:    d.ClassID,
			Class:      class,
			Confidence: float64(d.Confidence),
			Box:        box,
		})
	}
	return out
}
