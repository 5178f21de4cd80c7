// Package ai wraps the Gemini API for product analysis, background image
// generation, and short-form text generation.
package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const (
	analyzeModel       = "gemini-2.0-flash"
	imageModel         = "gemini-2.5-flash-image"
	imageFallbackModel = "gemini-3-pro-image-preview"
)

// ProductConcept is the analysis result for a product image.
type ProductConcept struct {
	Category          string   `json:"category"`
	CoreColors        []string `json:"core_colors"`
	BackgroundConcept string   `json:"background_concept"`
}

// Client calls Gemini models. The zero value is not usable; construct with
// New.
type Client struct {
	genai *genai.Client
}

// New builds a Client for the given API key.
func New(ctx context.Context, apiKey string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Client{genai: client}, nil
}

// AnalyzeProduct asks the analysis model to classify the product image and
// propose background colors and a background concept.
func (c *Client) AnalyzeProduct(ctx context.Context, imagePNG []byte, title string) (*ProductConcept, error) {
	if c == nil || c.genai == nil {
		return nil, fmt.Errorf("ai client is not configured")
	}

	parts := []*genai.Part{
		{InlineData: &genai.Blob{MIMEType: "image/png", Data: imagePNG}},
		{Text: analyzePrompt(title)},
	}
	contents := []*genai.Content{{Role: genai.RoleUser, Parts: parts}}

	resp, err := c.genai.Models.GenerateContent(ctx, analyzeModel, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("analyze product: %w", err)
	}

	text := collectText(resp)
	concept, err := parseConcept(text)
	if err != nil {
		return nil, fmt.Errorf("analyze product: %w", err)
	}
	return concept, nil
}

// GenerateBackground produces a 1000x1000 background PNG matching the
// concept. It retries once on a fallback model before giving up.
func (c *Client) GenerateBackground(ctx context.Context, concept *ProductConcept) ([]byte, error) {
	if c == nil || c.genai == nil {
		return nil, fmt.Errorf("ai client is not configured")
	}

	contents := []*genai.Content{{
		Role:  genai.RoleUser,
		Parts: []*genai.Part{{Text: backgroundPrompt(concept)}},
	}}
	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
	}

	for _, model := range []string{imageModel, imageFallbackModel} {
		resp, err := c.genai.Models.GenerateContent(ctx, model, contents, config)
		if err != nil {
			continue
		}
		if data := collectImage(resp); len(data) > 0 {
			return data, nil
		}
	}
	return nil, fmt.Errorf("generate background: no image in response")
}

// GenerateText runs a text-only prompt through the analysis model.
func (c *Client) GenerateText(ctx context.Context, prompt string, temperature float32, maxTokens int32) (string, error) {
	if c == nil || c.genai == nil {
		return "", fmt.Errorf("ai client is not configured")
	}

	contents := []*genai.Content{{
		Role:  genai.RoleUser,
		Parts: []*genai.Part{{Text: prompt}},
	}}
	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(temperature),
		MaxOutputTokens: maxTokens,
	}

	resp, err := c.genai.Models.GenerateContent(ctx, analyzeModel, contents, config)
	if err != nil {
		return "", fmt.Errorf("generate text: %w", err)
	}
	text := strings.TrimSpace(collectText(resp))
	if text == "" {
		return "", fmt.Errorf("generate text: empty response")
	}
	return text, nil
}

func analyzePrompt(title string) string {
	if strings.TrimSpace(title) == "" {
		title = "(없음)"
	}
	return fmt.Sprintf(`다음 상품 이미지와 상품명을 분석해서, 아래 JSON 형식으로만 답변해줘. 다른 텍스트 없이 JSON만.

상품명: %s

JSON 형식:
{
  "category": "상품 카테고리 (예: 화장품, 패션, 식품 등)",
  "core_colors": ["#hex1", "#hex2", "#hex3"],
  "background_concept": "이 상품에 어울리는 배경 (예: 부드러운 그라데이션, 은은한 텍스처. 제품 누끼와 자연스럽게 어울리도록 단순하고 평평한 느낌)"
}
core_colors는 반드시 hex 코드(예: #ffcc00, #e8f4f8)로, 제품의 대표 색상 2~3개를 넣어줘.`, title)
}

func backgroundPrompt(concept *ProductConcept) string {
	bg := "미니멀하고 깔끔한 광고 배경"
	colorStr := "soft neutral"
	if concept != nil {
		if strings.TrimSpace(concept.BackgroundConcept) != "" {
			bg = concept.BackgroundConcept
		}
		colors := concept.CoreColors
		if len(colors) > 3 {
			colors = colors[:3]
		}
		if len(colors) > 0 {
			colorStr = strings.Join(colors, ", ")
		}
	}
	return fmt.Sprintf("Create a 1000x1000 square background for product thumbnail. "+
		"Concept: %s. "+
		"Colors: %s. "+
		"Flat, soft gradient or subtle texture only. No dramatic lighting, no spotlights, no strong shadows. "+
		"No text, no products, no people. "+
		"Must blend naturally with product cutout placed on top - avoid complex scenes that clash with cutouts.", bg, colorStr)
}

// parseConcept tolerates text around the JSON object, including markdown
// fences the model sometimes adds.
func parseConcept(text string) (*ProductConcept, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in model output")
	}
	var concept ProductConcept
	if err := json.Unmarshal([]byte(text[start:end+1]), &concept); err != nil {
		return nil, fmt.Errorf("decode concept JSON: %w", err)
	}
	return &concept, nil
}

func collectText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part != nil && part.Text != "" {
				b.WriteString(part.Text)
			}
		}
	}
	return b.String()
}

func collectImage(resp *genai.GenerateContentResponse) []byte {
	if resp == nil {
		return nil
	}
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return part.InlineData.Data
			}
		}
	}
	return nil
}
