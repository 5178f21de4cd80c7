package server

import (
	"context"
	"encoding/base64"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/wavalabs/builder/internal/services/shopping"
	"github.com/wavalabs/builder/internal/services/video"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleFrontend serves the bundled index.html. Opening the UI over
// http://localhost avoids the file:// CORS pitfalls.
func (s *Server) handleFrontend(w http.ResponseWriter, r *http.Request) {
	path := filepath.Join(s.cfg.App.FrontendDir, "index.html")
	if _, err := os.Stat(path); err != nil {
		respondDetail(w, http.StatusNotFound, "index.html not found")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	http.ServeFile(w, r, path)
}

func (s *Server) handleVideoCreate(w http.ResponseWriter, r *http.Request) {
	var req video.CreateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondDetail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	// Jobs outlive the request; keep trace context but drop cancellation.
	job, err := s.cfg.VideoQueue.Create(context.WithoutCancel(r.Context()), req)
	if err != nil {
		respondDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"id": job.ID, "status": job.Status})
}

func (s *Server) handleVideoGet(w http.ResponseWriter, r *http.Request) {
	job, ok := s.cfg.VideoQueue.Get(r.PathValue("jobID"))
	if !ok {
		respondDetail(w, http.StatusNotFound, "job_not_found")
		return
	}
	respondJSON(w, http.StatusOK, job)
}

// shoppingCreateRequest carries the job input plus per-request credentials
// that override the environment.
type shoppingCreateRequest struct {
	URL               string `json:"url"`
	ImageURL          string `json:"image_url"`
	GeminiAPIKey      string `json:"gemini_api_key"`
	ReplicateToken    string `json:"replicate_token"`
	NaverClientID     string `json:"naver_client_id"`
	NaverClientSecret string `json:"naver_client_secret"`
}

func (s *Server) handleShoppingCreate(w http.ResponseWriter, r *http.Request) {
	var req shoppingCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondDetail(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var runner shopping.Runner
	if s.cfg.BuildRunner != nil {
		runner = s.cfg.BuildRunner(
			firstNonEmpty(req.GeminiAPIKey, s.cfg.App.GeminiAPIKey),
			firstNonEmpty(req.ReplicateToken, s.cfg.App.ReplicateToken),
			firstNonEmpty(req.NaverClientID, s.cfg.App.NaverClientID),
			firstNonEmpty(req.NaverClientSecret, s.cfg.App.NaverClientSecret),
		)
	}

	job, err := s.cfg.ShoppingQueue.CreateWith(context.WithoutCancel(r.Context()), shopping.CreateRequest{
		URL:      req.URL,
		ImageURL: req.ImageURL,
	}, runner)
	if err != nil {
		respondDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"id": job.ID, "status": job.Status})
}

func (s *Server) handleShoppingGet(w http.ResponseWriter, r *http.Request) {
	job, ok := s.cfg.ShoppingQueue.Get(r.PathValue("jobID"))
	if !ok {
		respondDetail(w, http.StatusNotFound, "job_not_found")
		return
	}
	respondJSON(w, http.StatusOK, job)
}

// handleShoppingResult serves the finished thumbnail as raw bytes. Browsers
// render a plain image URL more reliably than a multi-megabyte data URL in
// JSON.
func (s *Server) handleShoppingResult(w http.ResponseWriter, r *http.Request) {
	job, ok := s.cfg.ShoppingQueue.Get(r.PathValue("jobID"))
	if !ok || job.Status != shopping.StatusCompleted || job.ResultDataURL == "" {
		respondDetail(w, http.StatusNotFound, "result_not_ready")
		return
	}

	dataURL := job.ResultDataURL
	comma := strings.Index(dataURL, ",")
	if comma < 0 {
		respondDetail(w, http.StatusInternalServerError, "invalid_result")
		return
	}
	payload := dataURL[comma+1:]

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		// SVG results are embedded as plain text, not base64.
		raw = []byte(payload)
	}
	media := "image/svg+xml"
	if strings.Contains(dataURL[:comma], "image/png") {
		media = "image/png"
	}
	w.Header().Set("Content-Type", media)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
