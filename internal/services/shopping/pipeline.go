package shopping

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wavalabs/builder/internal/platform/timeouts"
	"github.com/wavalabs/builder/internal/services/ai"
	"github.com/wavalabs/builder/internal/services/shopping/compose"
	"github.com/wavalabs/builder/internal/services/shopping/cutout"
	"github.com/wavalabs/builder/internal/services/shopping/scrape"
)

// ProgressFunc reports a stage name and overall percentage.
type ProgressFunc func(stage string, percent int)

// Scraper resolves a product page to its main image.
type Scraper interface {
	Scrape(ctx context.Context, pageURL string) (scrape.Result, error)
}

// Remover cuts the product out of its background.
type Remover interface {
	Remove(ctx context.Context, imageURL string) ([]byte, error)
	RemoveData(ctx context.Context, png []byte) ([]byte, error)
}

// Analyzer is the Gemini surface the pipeline needs.
type Analyzer interface {
	AnalyzeProduct(ctx context.Context, imagePNG []byte, title string) (*ai.ProductConcept, error)
	GenerateBackground(ctx context.Context, concept *ai.ProductConcept) ([]byte, error)
}

// Compositor builds the final thumbnail and fallback backgrounds.
type Compositor interface {
	Thumbnail(productPNG, backgroundPNG []byte) ([]byte, error)
	GradientBackground(coreColors []string, productPNG []byte) []byte
}

// Pipeline wires the real thumbnail stages together.
type Pipeline struct {
	scraper    Scraper
	remover    Remover
	analyzer   Analyzer
	compositor Compositor
	quality    string
}

// NewPipeline builds a Pipeline. quality caps the resolution sent for
// background removal.
func NewPipeline(scraper Scraper, remover Remover, analyzer Analyzer, compositor Compositor, quality string) *Pipeline {
	return &Pipeline{
		scraper:    scraper,
		remover:    remover,
		analyzer:   analyzer,
		compositor: compositor,
		quality:    quality,
	}
}

// Run executes the five stages and returns the thumbnail as a PNG data URL.
func (p *Pipeline) Run(ctx context.Context, pageURL, imageURL string, onProgress ProgressFunc) (string, error) {
	if p == nil {
		return "", fmt.Errorf("pipeline is not configured")
	}
	tracer := otel.Tracer("wava/shopping")
	ctx, span := tracer.Start(ctx, "pipeline.run")
	defer span.End()

	var stageSpan trace.Span
	progress := func(stage string, percent int) {
		if stageSpan != nil {
			stageSpan.End()
			stageSpan = nil
		}
		if stage != "done" {
			_, stageSpan = tracer.Start(ctx, "pipeline."+stage,
				trace.WithAttributes(attribute.Int("pipeline.percent", percent)))
		}
		if onProgress != nil {
			onProgress(stage, percent)
		}
	}
	defer func() {
		if stageSpan != nil {
			stageSpan.End()
		}
	}()

	progress("scrape", 5)
	productURL, productBytes, title, err := p.resolveImage(ctx, pageURL, imageURL)
	if err != nil {
		return "", err
	}

	progress("rembg", 20)
	productPNG, err := p.cutOut(ctx, productURL, productBytes)
	if err != nil {
		return "", err
	}

	progress("analyze", 40)
	concept, err := p.analyzer.AnalyzeProduct(ctx, productPNG, title)
	if err != nil || concept == nil {
		concept = &ai.ProductConcept{
			Category:          "상품",
			CoreColors:        []string{"#ffffff"},
			BackgroundConcept: "미니멀 화이트 배경",
		}
	}

	progress("background", 60)
	backgroundPNG, err := p.analyzer.GenerateBackground(ctx, concept)
	if err != nil || len(backgroundPNG) == 0 {
		backgroundPNG = p.compositor.GradientBackground(concept.CoreColors, productPNG)
	}
	if len(backgroundPNG) == 0 {
		return "", fmt.Errorf("background generation failed")
	}

	progress("composite", 85)
	final, err := p.compositor.Thumbnail(productPNG, backgroundPNG)
	if err != nil {
		return "", fmt.Errorf("composite thumbnail: %w", err)
	}

	progress("done", 100)
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(final), nil
}

// resolveImage produces either a remote image URL or raw local bytes, plus
// the product title when scraping found one.
func (p *Pipeline) resolveImage(ctx context.Context, pageURL, imageURL string) (string, []byte, string, error) {
	if raw := strings.Trim(strings.TrimSpace(imageURL), `"'`); raw != "" {
		if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
			return raw, nil, "", nil
		}
		data, err := os.ReadFile(raw)
		if err != nil {
			return "", nil, "", fmt.Errorf("이미지 URL(https://...) 또는 로컬 파일 경로를 입력해주세요")
		}
		return "", data, "", nil
	}

	if !strings.HasPrefix(pageURL, "http://") && !strings.HasPrefix(pageURL, "https://") {
		return "", nil, "", fmt.Errorf("상품 이미지를 찾을 수 없습니다. 이미지 URL을 직접 입력해주세요")
	}

	scrapeCtx, cancel := context.WithTimeout(ctx, timeouts.PageScrape)
	defer cancel()
	result, err := p.scraper.Scrape(scrapeCtx, pageURL)
	if err != nil || result.ImageURL == "" {
		return "", nil, "", fmt.Errorf("상품 이미지를 찾을 수 없습니다. 이미지 URL을 직접 입력해주세요")
	}
	return result.ImageURL, nil, result.Title, nil
}

func (p *Pipeline) cutOut(ctx context.Context, productURL string, productBytes []byte) ([]byte, error) {
	if len(productBytes) > 0 {
		prepared, err := cutout.Prepare(productBytes, p.quality)
		if err != nil {
			return nil, fmt.Errorf("prepare local image: %w", err)
		}
		out, err := p.remover.RemoveData(ctx, prepared)
		if err != nil {
			return nil, fmt.Errorf("누끼 처리 실패: %w", err)
		}
		return out, nil
	}

	out, err := p.remover.Remove(ctx, productURL)
	if err != nil {
		return nil, fmt.Errorf("누끼 처리 실패: %w", err)
	}
	return out, nil
}

// Compose delegates to the compose package, with the neutral gradient as
// the last resort when no usable colors exist.
type Compose struct{}

func (Compose) Thumbnail(productPNG, backgroundPNG []byte) ([]byte, error) {
	return compose.Thumbnail(productPNG, backgroundPNG)
}

func (Compose) GradientBackground(coreColors []string, productPNG []byte) []byte {
	if out := compose.GradientBackground(coreColors, productPNG); len(out) > 0 {
		return out
	}
	return compose.NeutralGradient()
}
