package shopping

import (
	"bytes"
	"context"
	"fmt"
	"image/color"
	"os"
	"strings"
	"testing"

	"github.com/disintegration/imaging"

	"github.com/wavalabs/builder/internal/services/ai"
	"github.com/wavalabs/builder/internal/services/shopping/scrape"
)

func encodePNG(t *testing.T, w, h int, fill color.NRGBA) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, imaging.New(w, h, fill), imaging.PNG); err != nil {
		t.Fatalf("encode test image: %v", err)
	}
	return buf.Bytes()
}

type stubScraper struct {
	result scrape.Result
	err    error
	calls  int
}

func (s *stubScraper) Scrape(ctx context.Context, pageURL string) (scrape.Result, error) {
	s.calls++
	return s.result, s.err
}

type stubRemover struct {
	out []byte
	err error
}

func (s *stubRemover) Remove(ctx context.Context, imageURL string) ([]byte, error) {
	return s.out, s.err
}

func (s *stubRemover) RemoveData(ctx context.Context, png []byte) ([]byte, error) {
	return s.out, s.err
}

type stubAnalyzer struct {
	concept    *ai.ProductConcept
	analyzeErr error
	background []byte
	bgErr      error
}

func (s *stubAnalyzer) AnalyzeProduct(ctx context.Context, imagePNG []byte, title string) (*ai.ProductConcept, error) {
	return s.concept, s.analyzeErr
}

func (s *stubAnalyzer) GenerateBackground(ctx context.Context, concept *ai.ProductConcept) ([]byte, error) {
	return s.background, s.bgErr
}

func TestPipelineRunHappyPath(t *testing.T) {
	product := encodePNG(t, 300, 300, color.NRGBA{R: 180, G: 60, B: 60, A: 255})
	background := encodePNG(t, 1000, 1000, color.NRGBA{R: 240, G: 240, B: 250, A: 255})

	scraper := &stubScraper{result: scrape.Result{ImageURL: "https://shop-phinf.pstatic.net/p.jpg", Title: "선크림"}}
	p := NewPipeline(
		scraper,
		&stubRemover{out: product},
		&stubAnalyzer{concept: &ai.ProductConcept{Category: "화장품"}, background: background},
		Compose{},
		"high",
	)

	var stages []string
	dataURL, err := p.Run(context.Background(), "https://smartstore.naver.com/shop/products/1", "", func(stage string, percent int) {
		stages = append(stages, fmt.Sprintf("%s:%d", stage, percent))
	})
	if err != nil {
		t.Fatalf("run pipeline: %v", err)
	}
	if !strings.HasPrefix(dataURL, "data:image/png;base64,") {
		t.Fatalf("expected png data url, got prefix %q", dataURL[:30])
	}
	want := []string{"scrape:5", "rembg:20", "analyze:40", "background:60", "composite:85", "done:100"}
	if len(stages) != len(want) {
		t.Fatalf("expected %d progress calls, got %v", len(want), stages)
	}
	for i, s := range want {
		if stages[i] != s {
			t.Fatalf("stage %d: expected %s, got %s", i, s, stages[i])
		}
	}
	if scraper.calls != 1 {
		t.Fatalf("expected 1 scrape call, got %d", scraper.calls)
	}
}

func TestPipelineImageURLSkipsScrape(t *testing.T) {
	product := encodePNG(t, 200, 200, color.NRGBA{R: 60, G: 120, B: 60, A: 255})
	scraper := &stubScraper{err: fmt.Errorf("should not be called")}
	p := NewPipeline(
		scraper,
		&stubRemover{out: product},
		&stubAnalyzer{background: encodePNG(t, 100, 100, color.NRGBA{A: 255})},
		Compose{},
		"high",
	)

	_, err := p.Run(context.Background(), "", "https://cdn.example.com/product.jpg", nil)
	if err != nil {
		t.Fatalf("run pipeline: %v", err)
	}
	if scraper.calls != 0 {
		t.Fatal("expected scrape to be skipped")
	}
}

func TestPipelineScrapeFailure(t *testing.T) {
	p := NewPipeline(
		&stubScraper{err: fmt.Errorf("blocked")},
		&stubRemover{},
		&stubAnalyzer{},
		Compose{},
		"high",
	)

	_, err := p.Run(context.Background(), "https://smartstore.naver.com/x", "", nil)
	if err == nil {
		t.Fatal("expected error when scrape fails")
	}
	if !strings.Contains(err.Error(), "상품 이미지") {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestPipelineGradientFallback(t *testing.T) {
	product := encodePNG(t, 200, 200, color.NRGBA{R: 120, G: 80, B: 60, A: 255})
	p := NewPipeline(
		&stubScraper{result: scrape.Result{ImageURL: "https://img/p.jpg"}},
		&stubRemover{out: product},
		&stubAnalyzer{
			concept: &ai.ProductConcept{CoreColors: []string{"#ffcc00", "#336699"}},
			bgErr:   fmt.Errorf("image model unavailable"),
		},
		Compose{},
		"high",
	)

	dataURL, err := p.Run(context.Background(), "https://smartstore.naver.com/x", "", nil)
	if err != nil {
		t.Fatalf("expected gradient fallback to succeed, got %v", err)
	}
	if !strings.HasPrefix(dataURL, "data:image/png;base64,") {
		t.Fatal("expected png data url")
	}
}

func TestPipelineRemoverFailure(t *testing.T) {
	p := NewPipeline(
		&stubScraper{result: scrape.Result{ImageURL: "https://img/p.jpg"}},
		&stubRemover{err: fmt.Errorf("replicate down")},
		&stubAnalyzer{},
		Compose{},
		"high",
	)

	_, err := p.Run(context.Background(), "https://smartstore.naver.com/x", "", nil)
	if err == nil {
		t.Fatal("expected error when removal fails")
	}
	if !strings.Contains(err.Error(), "누끼") {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestPipelineLocalFile(t *testing.T) {
	product := encodePNG(t, 300, 300, color.NRGBA{R: 90, G: 90, B: 150, A: 255})
	path := t.TempDir() + "/product.png"
	if err := os.WriteFile(path, product, 0o644); err != nil {
		t.Fatalf("write temp image: %v", err)
	}

	p := NewPipeline(
		&stubScraper{},
		&stubRemover{out: product},
		&stubAnalyzer{background: encodePNG(t, 100, 100, color.NRGBA{A: 255})},
		Compose{},
		"balanced",
	)

	if _, err := p.Run(context.Background(), "", path, nil); err != nil {
		t.Fatalf("run with local file: %v", err)
	}
}

func TestPipelineRejectsBadImageInput(t *testing.T) {
	p := NewPipeline(&stubScraper{}, &stubRemover{}, &stubAnalyzer{}, Compose{}, "high")
	if _, err := p.Run(context.Background(), "", "/does/not/exist.png", nil); err == nil {
		t.Fatal("expected error for missing local file")
	}
}
