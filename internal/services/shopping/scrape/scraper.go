// Package scrape resolves a shopping page URL to its main product image.
// Naver storefronts block plain crawlers, so resolution runs a ladder: fast
// HTTP fetch, headless browser, mobile page variant, then the Naver shop
// search API.
package scrape

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

const desktopUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

var productIDPattern = regexp.MustCompile(`/products/(\d+)`)

// Result is a resolved product image with its page title, when known.
type Result struct {
	ImageURL string
	Title    string
}

// Scraper runs the resolution ladder. Browser and Naver API rungs are
// optional and skipped when unconfigured.
type Scraper struct {
	client            *http.Client
	browser           *Browser
	naverClientID     string
	naverClientSecret string
}

// Option adjusts Scraper construction.
type Option func(*Scraper)

// WithBrowser enables the headless browser rung.
func WithBrowser(b *Browser) Option {
	return func(s *Scraper) { s.browser = b }
}

// WithNaverAPI enables the shop search API rung.
func WithNaverAPI(clientID, clientSecret string) Option {
	return func(s *Scraper) {
		s.naverClientID = clientID
		s.naverClientSecret = clientSecret
	}
}

// WithHTTPClient overrides the HTTP client, mainly for tests.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Scraper) { s.client = client }
}

// New builds a Scraper.
func New(opts ...Option) *Scraper {
	s := &Scraper{
		client: &http.Client{Timeout: 8 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scrape resolves pageURL to a product image, trying each rung in order.
func (s *Scraper) Scrape(ctx context.Context, pageURL string) (Result, error) {
	if s == nil {
		return Result{}, fmt.Errorf("scraper is required")
	}
	if !strings.HasPrefix(pageURL, "http://") && !strings.HasPrefix(pageURL, "https://") {
		return Result{}, fmt.Errorf("scrape %q: not an http url", pageURL)
	}

	// Some pages ship the image in the initial HTML. The mobile smartstore
	// variant is lighter and blocks less often, so it goes first.
	for _, candidate := range fetchCandidates(pageURL) {
		if result, ok := s.fetchAndExtract(ctx, candidate); ok {
			return result, nil
		}
	}

	if s.browser != nil {
		if result, err := s.browser.Scrape(ctx, pageURL); err == nil && result.ImageURL != "" {
			return result, nil
		}
	}

	if s.naverClientID != "" && s.naverClientSecret != "" {
		if m := productIDPattern.FindStringSubmatch(pageURL); m != nil {
			if result, err := s.searchNaverShop(ctx, m[1]); err == nil && result.ImageURL != "" {
				return result, nil
			}
		}
	}

	return Result{}, fmt.Errorf("scrape %q: no product image found", pageURL)
}

// fetchCandidates orders the URLs for the plain HTTP rung.
func fetchCandidates(pageURL string) []string {
	if strings.Contains(pageURL, "smartstore.naver.com") && !strings.Contains(pageURL, "m.smartstore") {
		mobile := strings.Replace(pageURL, "smartstore.naver.com", "m.smartstore.naver.com", 1)
		return []string{mobile, pageURL}
	}
	return []string{pageURL}
}

func (s *Scraper) fetchAndExtract(ctx context.Context, pageURL string) (Result, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return Result{}, false
	}
	req.Header.Set("User-Agent", desktopUserAgent)
	req.Header.Set("Accept-Language", "ko-KR,ko;q=0.9,en-US;q=0.8,en;q=0.7")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := s.client.Do(req)
	if err != nil {
		return Result{}, false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Result{}, false
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return Result{}, false
	}

	imageURL, title := extractFromHTML(string(body))
	if !strings.HasPrefix(imageURL, "http") {
		return Result{}, false
	}
	return Result{ImageURL: imageURL, Title: title}, true
}
