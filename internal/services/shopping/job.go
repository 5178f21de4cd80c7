// Package shopping implements the shopping thumbnail queue. A job turns a
// product page link or a direct image reference into a finished 1000x1000
// thumbnail through scraping, background removal, Gemini analysis and
// compositing. Without API keys the queue runs a short mock simulation
// instead.
package shopping

import "time"

// Status is the lifecycle state of a thumbnail job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// CreateRequest starts a thumbnail job. URL points at a product page;
// ImageURL skips scraping and may also be a local file path.
type CreateRequest struct {
	URL      string `json:"url"`
	ImageURL string `json:"image_url"`
}

// Job is a queued thumbnail request. Timestamps are Unix milliseconds.
type Job struct {
	ID            string            `json:"id"`
	Status        Status            `json:"status"`
	URL           string            `json:"url"`
	ImageURL      string            `json:"image_url"`
	CreatedAt     int64             `json:"created_at"`
	UpdatedAt     int64             `json:"updated_at"`
	Progress      int               `json:"progress"`
	ResultDataURL string            `json:"result_data_url"`
	Error         string            `json:"error"`
	Meta          map[string]string `json:"meta"`
}

func nowMilli(now func() time.Time) int64 {
	return now().UTC().UnixMilli()
}
