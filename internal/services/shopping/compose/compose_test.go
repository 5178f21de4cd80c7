package compose

import (
	"bytes"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
)

func encodePNG(t *testing.T, w, h int, fill color.NRGBA) []byte {
	t.Helper()
	img := imaging.New(w, h, fill)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func TestRefineAlphaValue(t *testing.T) {
	tests := []struct {
		in   uint8
		want uint8
	}{
		{in: 0, want: 0},
		{in: 94, want: 0},
		{in: 95, want: 0},
		{in: 250, want: 255},
		{in: 255, want: 255},
	}
	for _, tc := range tests {
		if got := refineAlphaValue(tc.in); got != tc.want {
			t.Fatalf("refine(%d): expected %d, got %d", tc.in, tc.want, got)
		}
	}
	// Midrange values scale linearly and stay partially transparent.
	mid := refineAlphaValue(170)
	if mid == 0 || mid == 255 {
		t.Fatalf("expected midrange alpha, got %d", mid)
	}
	if refineAlphaValue(120) >= refineAlphaValue(200) {
		t.Fatal("expected refined alpha to be monotonic")
	}
}

func TestThumbnailSize(t *testing.T) {
	product := encodePNG(t, 500, 700, color.NRGBA{R: 180, G: 40, B: 40, A: 255})
	background := encodePNG(t, 640, 640, color.NRGBA{R: 240, G: 240, B: 250, A: 255})

	out, err := Thumbnail(product, background)
	if err != nil {
		t.Fatalf("thumbnail: %v", err)
	}
	img, err := imaging.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode thumbnail: %v", err)
	}
	if img.Bounds().Dx() != CanvasSize || img.Bounds().Dy() != CanvasSize {
		t.Fatalf("expected %dx%d, got %dx%d", CanvasSize, CanvasSize, img.Bounds().Dx(), img.Bounds().Dy())
	}
}

func TestThumbnailBadInputs(t *testing.T) {
	background := encodePNG(t, 100, 100, color.NRGBA{A: 255})
	if _, err := Thumbnail([]byte("junk"), background); err == nil {
		t.Fatal("expected error for bad product bytes")
	}
	if _, err := Thumbnail(background, []byte("junk")); err == nil {
		t.Fatal("expected error for bad background bytes")
	}
}

func TestParseHex(t *testing.T) {
	c, ok := ParseHex("#ffcc00")
	if !ok {
		t.Fatal("expected parse to succeed")
	}
	if c.R != 0xff || c.G != 0xcc || c.B != 0x00 {
		t.Fatalf("unexpected color %+v", c)
	}

	if _, ok := ParseHex("e8f4f8"); !ok {
		t.Fatal("expected bare hex to parse")
	}
	for _, bad := range []string{"", "#fff", "zzzzzz", "#12345", "not-a-color"} {
		if _, ok := ParseHex(bad); ok {
			t.Fatalf("expected %q to fail", bad)
		}
	}
}

func TestGradientBackgroundFromHex(t *testing.T) {
	out := GradientBackground([]string{"#ff0000", "#000080"}, nil)
	img, err := imaging.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode gradient: %v", err)
	}
	nrgba := imaging.Clone(img)
	topColor := nrgba.NRGBAAt(500, 0)
	bottomColor := nrgba.NRGBAAt(500, CanvasSize-1)
	if topColor.R < 200 {
		t.Fatalf("expected red top, got %+v", topColor)
	}
	if bottomColor.B < 100 {
		t.Fatalf("expected blue bottom, got %+v", bottomColor)
	}
}

func TestGradientBackgroundFallsBackToProduct(t *testing.T) {
	product := encodePNG(t, 100, 100, color.NRGBA{R: 120, G: 80, B: 60, A: 255})
	out := GradientBackground(nil, product)
	if len(out) == 0 {
		t.Fatal("expected gradient bytes")
	}
}

func TestNeutralGradient(t *testing.T) {
	out := NeutralGradient()
	img, err := imaging.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode neutral gradient: %v", err)
	}
	if img.Bounds().Dx() != CanvasSize {
		t.Fatalf("unexpected size %d", img.Bounds().Dx())
	}
}

func TestDominantColorsSkipsExtremes(t *testing.T) {
	white := encodePNG(t, 50, 50, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	if got := DominantColors(white, 2); len(got) != 0 {
		t.Fatalf("expected no colors from white image, got %v", got)
	}

	tone := encodePNG(t, 50, 50, color.NRGBA{R: 120, G: 80, B: 60, A: 255})
	got := DominantColors(tone, 2)
	if len(got) != 1 {
		t.Fatalf("expected 1 bucketed color, got %v", got)
	}
	if got[0].R != 112 {
		t.Fatalf("expected bucketed red 112, got %d", got[0].R)
	}
}
