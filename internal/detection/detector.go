package detection

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"sync"
	"time"
)

// Object is one detected object in a frame, in pixel coordinates of the
// frame that was submitted.
type Object struct {
	Box        image.Rectangle
	ClassID    int
	Label      string
	Confidence float32
}

// Detector runs object detection on a JPEG-encoded frame. Implementations
// must be safe for use from multiple camera loops.
type Detector interface {
	Detect(ctx context.Context, frameJPEG []byte, confThreshold float32) ([]Object, error)
}

// wireObject matches the detection service's JSON response.
type wireObject struct {
	Class      string    `json:"class"`
	ClassID    int       `json:"class_id"`
	Confidence float32   `json:"confidence"`
	BBox       []float32 `json:"bbox"` // [x1, y1, x2, y2]
}

type wireResult struct {
	Detections []wireObject `json:"detections"`
	Count      int          `json:"count"`
}

// HTTPDetector talks to an external YOLO-style detection service over HTTP.
// A failed health check disables the detector until a later check succeeds,
// so a down service costs one request per health interval instead of one
// per frame.
type HTTPDetector struct {
	endpoint string
	client   *http.Client

	mu          sync.Mutex
	enabled     bool
	healthCheck time.Time
}

const healthInterval = 30 * time.Second

// NewHTTPDetector creates a detector client for the given service endpoint.
func NewHTTPDetector(endpoint string) *HTTPDetector {
	return &HTTPDetector{
		endpoint: endpoint,
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
		enabled: true,
	}
}

// IsHealthy checks the detection service, caching a positive result for the
// health interval.
func (d *HTTPDetector) IsHealthy() bool {
	d.mu.Lock()
	if d.enabled && time.Since(d.healthCheck) < healthInterval {
		d.mu.Unlock()
		return true
	}
	d.mu.Unlock()

	resp, err := d.client.Get(d.endpoint + "/health")
	if err != nil {
		fmt.Printf("Warning: detector health check failed: %v\n", err)
		d.setEnabled(false)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		d.mu.Lock()
		d.healthCheck = time.Now()
		d.enabled = true
		d.mu.Unlock()
		return true
	}

	fmt.Printf("Warning: detector health check returned status %d\n", resp.StatusCode)
	d.setEnabled(false)
	return false
}

func (d *HTTPDetector) setEnabled(v bool) {
	d.mu.Lock()
	d.enabled = v
	d.mu.Unlock()
}

// Detect posts the frame to the service and returns the detected objects.
// An unhealthy service returns an error; callers treat that as zero objects.
func (d *HTTPDetector) Detect(ctx context.Context, frameJPEG []byte, confThreshold float32) ([]Object, error) {
	if !d.IsHealthy() {
		return nil, fmt.Errorf("detection service unavailable")
	}

	var b bytes.Buffer
	w := multipart.NewWriter(&b)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="frame.jpg"`)
	h.Set("Content-Type", "image/jpeg")
	fw, err := w.CreatePart(h)
	if err != nil {
		return nil, err
	}
	fw.Write(frameJPEG)

	w.WriteField("conf_threshold", fmt.Sprintf("%.2f", confThreshold))
	w.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint+"/detect", &b)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := d.client.Do(req)
	if err != nil {
		d.setEnabled(false)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("detection failed: %s", string(body))
	}

	var result wireResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	objects := make([]Object, 0, len(result.Detections))
	for _, wo := range result.Detections {
		if len(wo.BBox) != 4 {
			continue
		}
		objects = append(objects, Object{
			Box: image.Rect(
				int(wo.BBox[0]), int(wo.BBox[1]),
				int(wo.BBox[2]), int(wo.BBox[3]),
			),
			ClassID:    wo.ClassID,
			Label:      wo.Class,
			Confidence: wo.Confidence,
		})
	}
	return objects, nil
}
