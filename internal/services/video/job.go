// Package video implements the mock video generation queue. Jobs simulate a
// 30-60s Veo render with staged progress until the real integration lands.
package video

import "time"

// Status is the lifecycle state of a video job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// CreateRequest carries the parameters for a new video job.
type CreateRequest struct {
	Prompt              string   `json:"prompt"`
	ModelVersion        string   `json:"model_version"`
	Resolution          string   `json:"resolution"`
	HasModel            bool     `json:"has_model"`
	ModelGender         string   `json:"model_gender"`
	ModelAge            string   `json:"model_age"`
	Rules               []string `json:"rules"`
	ProductRefBase64    string   `json:"product_ref_base64"`
	ProductRefMime      string   `json:"product_ref_mime"`
	BackgroundRefBase64 string   `json:"background_ref_base64"`
	BackgroundRefMime   string   `json:"background_ref_mime"`
}

// Meta records the generation settings a job was created with. Reference
// images are large, so only their presence is kept.
type Meta struct {
	ModelVersion     string   `json:"model_version"`
	Resolution       string   `json:"resolution"`
	HasModel         bool     `json:"has_model"`
	ModelGender      string   `json:"model_gender"`
	ModelAge         string   `json:"model_age"`
	Rules            []string `json:"rules"`
	HasProductRef    bool     `json:"has_product_ref"`
	HasBackgroundRef bool     `json:"has_background_ref"`
}

// Job is a queued video generation request. Timestamps are Unix
// milliseconds.
type Job struct {
	ID         string `json:"id"`
	Status     Status `json:"status"`
	Prompt     string `json:"prompt"`
	CreatedAt  int64  `json:"created_at"`
	UpdatedAt  int64  `json:"updated_at"`
	Progress   int    `json:"progress"`
	ResultURL  string `json:"result_url"`
	ResultText string `json:"result_text"`
	Error      string `json:"error"`
	Meta       Meta   `json:"meta"`
}

func metaFromRequest(req CreateRequest) Meta {
	return Meta{
		ModelVersion:     req.ModelVersion,
		Resolution:       req.Resolution,
		HasModel:         req.HasModel,
		ModelGender:      req.ModelGender,
		ModelAge:         req.ModelAge,
		Rules:            req.Rules,
		HasProductRef:    req.ProductRefBase64 != "",
		HasBackgroundRef: req.BackgroundRefBase64 != "",
	}
}

func nowMilli(now func() time.Time) int64 {
	return now().UTC().UnixMilli()
}
