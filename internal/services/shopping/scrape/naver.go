package scrape

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const naverShopSearchURL = "https://openapi.naver.com/v1/search/shop.json"

type naverShopItem struct {
	Title     string `json:"title"`
	Image     string `json:"image"`
	ProductID string `json:"productId"`
}

type naverShopResponse struct {
	Items []naverShopItem `json:"items"`
}

// searchNaverShop queries the shop search API with the product id and picks
// the item whose productId matches, falling back to the first hit.
func (s *Scraper) searchNaverShop(ctx context.Context, productID string) (Result, error) {
	query := url.Values{}
	query.Set("query", productID)
	query.Set("display", "10")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, naverShopSearchURL+"?"+query.Encode(), nil)
	if err != nil {
		return Result{}, fmt.Errorf("build shop search request: %w", err)
	}
	req.Header.Set("X-Naver-Client-Id", s.naverClientID)
	req.Header.Set("X-Naver-Client-Secret", s.naverClientSecret)

	resp, err := s.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("shop search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("shop search: status %d", resp.StatusCode)
	}

	var payload naverShopResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Result{}, fmt.Errorf("decode shop search response: %w", err)
	}

	for _, item := range payload.Items {
		if item.ProductID == productID && strings.HasPrefix(item.Image, "http") {
			return Result{ImageURL: item.Image, Title: stripSearchMarkup(item.Title)}, nil
		}
	}
	if len(payload.Items) > 0 && strings.HasPrefix(payload.Items[0].Image, "http") {
		first := payload.Items[0]
		return Result{ImageURL: first.Image, Title: stripSearchMarkup(first.Title)}, nil
	}
	return Result{}, fmt.Errorf("shop search: no image for product %s", productID)
}

// Search results wrap the matched terms in <b> tags.
func stripSearchMarkup(title string) string {
	title = strings.ReplaceAll(title, "<b>", "")
	return strings.ReplaceAll(title, "</b>", "")
}
