// Package cutout removes product image backgrounds through the Replicate
// API and prepares source images for removal.
package cutout

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	predictionsURL = "https://api.replicate.com/v1/predictions"

	// Bria RMBG 2.0 keeps 256-level transparency, which the composite step
	// relies on. The generic rembg model is the fallback.
	briaVersion  = "063d41e5fbec2dcce4fa4ab5657f3ade0bf2c2625c73286a34af51cb181189c5"
	rembgVersion = "fb8af171cfa1616ddcf1242c093f9c46bcada5ad4cf6f2fbe8b81b330ec5c003"

	// Naver CDN rejects fetches without a storefront Referer, so those
	// images are downloaded locally and inlined as data URLs up to this
	// size.
	maxInlineBytes = 5 * 1024 * 1024
)

// Remover calls Replicate to cut the product out of its background.
type Remover struct {
	token  string
	client *http.Client

	pollInterval time.Duration
	pollAttempts int
}

// NewRemover builds a Remover for the given API token.
func NewRemover(token string) *Remover {
	return &Remover{
		token:        token,
		client:       &http.Client{Timeout: 90 * time.Second},
		pollInterval: time.Second,
		pollAttempts: 60,
	}
}

// Remove returns the cutout PNG for the image at imageURL.
func (r *Remover) Remove(ctx context.Context, imageURL string) ([]byte, error) {
	if r == nil || r.token == "" {
		return nil, fmt.Errorf("replicate token is not configured")
	}

	input := imageURL
	if isNaverCDN(imageURL) {
		inlined, err := r.inlineImage(ctx, imageURL)
		if err != nil {
			return nil, fmt.Errorf("download naver image: %w", err)
		}
		if inlined != "" {
			input = inlined
		}
	}

	return r.removeInput(ctx, input)
}

// RemoveData removes the background from in-memory PNG bytes, such as a
// prepared local file.
func (r *Remover) RemoveData(ctx context.Context, png []byte) ([]byte, error) {
	if r == nil || r.token == "" {
		return nil, fmt.Errorf("replicate token is not configured")
	}
	if len(png) == 0 {
		return nil, fmt.Errorf("image bytes are required")
	}
	input := "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
	return r.removeInput(ctx, input)
}

func (r *Remover) removeInput(ctx context.Context, input string) ([]byte, error) {
	result, briaErr := r.predict(ctx, input, briaVersion)
	if briaErr == nil {
		return result, nil
	}
	if result, err := r.predict(ctx, input, rembgVersion); err == nil {
		return result, nil
	}
	return nil, fmt.Errorf("remove background: %w", briaErr)
}

type prediction struct {
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  string          `json:"error"`
	URLs   struct {
		Get string `json:"get"`
	} `json:"urls"`
}

func (r *Remover) predict(ctx context.Context, imageInput, version string) ([]byte, error) {
	payload, err := json.Marshal(map[string]any{
		"version": version,
		"input":   map[string]any{"image": imageInput},
	})
	if err != nil {
		return nil, fmt.Errorf("encode prediction request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, predictionsURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build prediction request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+r.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "wait=60")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("create prediction: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, fmt.Errorf("replicate auth failed (status %d), check the token", resp.StatusCode)
	case http.StatusPaymentRequired:
		return nil, fmt.Errorf("replicate status 402: 크레딧이 부족합니다. 💳 Replicate 크레딧 충전: https://replicate.com/account/billing")
	default:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("replicate status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var pred prediction
	if err := json.NewDecoder(resp.Body).Decode(&pred); err != nil {
		return nil, fmt.Errorf("decode prediction: %w", err)
	}

	outputURL := outputImageURL(pred.Output)
	if outputURL == "" && (pred.Status == "starting" || pred.Status == "processing") {
		outputURL, err = r.poll(ctx, pred.URLs.Get)
		if err != nil {
			return nil, err
		}
	}
	if outputURL == "" {
		return nil, fmt.Errorf("replicate returned no output image")
	}
	return r.download(ctx, outputURL)
}

func (r *Remover) poll(ctx context.Context, getURL string) (string, error) {
	if getURL == "" {
		return "", fmt.Errorf("prediction has no poll url")
	}
	for i := 0; i < r.pollAttempts; i++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(r.pollInterval):
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, getURL, nil)
		if err != nil {
			return "", fmt.Errorf("build poll request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+r.token)

		resp, err := r.client.Do(req)
		if err != nil {
			return "", fmt.Errorf("poll prediction: %w", err)
		}
		var pred prediction
		err = json.NewDecoder(resp.Body).Decode(&pred)
		resp.Body.Close()
		if err != nil {
			return "", fmt.Errorf("decode poll response: %w", err)
		}

		if pred.Status == "failed" {
			return "", fmt.Errorf("replicate prediction failed: %s", pred.Error)
		}
		if out := outputImageURL(pred.Output); out != "" {
			return out, nil
		}
		if pred.Status == "succeeded" {
			break
		}
	}
	return "", fmt.Errorf("prediction did not finish in time")
}

// outputImageURL handles the two shapes Replicate returns: a bare URL string
// or an object with a url field.
func outputImageURL(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && strings.HasPrefix(s, "http") {
		return s
	}
	var obj struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && strings.HasPrefix(obj.URL, "http") {
		return obj.URL
	}
	return ""
}

func (r *Remover) download(ctx context.Context, imageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download output: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download output: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// inlineImage fetches imageURL with storefront headers and returns it as a
// data URL, or "" when the image is too large to inline.
func (r *Remover) inlineImage(ctx context.Context, imageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return "", fmt.Errorf("build image request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/131.0.0.0 Safari/537.36")
	req.Header.Set("Referer", "https://smartstore.naver.com/")
	req.Header.Set("Accept", "image/avif,image/webp,image/apng,image/svg+xml,image/*,*/*;q=0.8")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxInlineBytes+1))
	if err != nil {
		return "", err
	}
	if len(raw) > maxInlineBytes {
		return "", nil
	}

	mime := "image/jpeg"
	ct := resp.Header.Get("Content-Type")
	switch {
	case strings.Contains(ct, "png"):
		mime = "image/png"
	case strings.Contains(ct, "webp"):
		mime = "image/webp"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(raw), nil
}

func isNaverCDN(imageURL string) bool {
	return strings.Contains(imageURL, "pstatic.net") || strings.Contains(strings.ToLower(imageURL), "naver")
}
