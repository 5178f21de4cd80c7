// Package compose assembles the final 1000x1000 thumbnail from a product
// cutout and a generated background.
package compose

import (
	"bytes"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// CanvasSize is the thumbnail edge length in pixels.
const CanvasSize = 1000

// Alpha refinement thresholds. Values below the floor are halo pixels left
// by the removal model; values above the ceiling are solid product.
const (
	alphaFloor   = 95
	alphaCeiling = 250
)

// Thumbnail scales the cutout to fit the canvas, refines its alpha edge,
// and centers it over the background. Returns PNG bytes.
func Thumbnail(productPNG, backgroundPNG []byte) ([]byte, error) {
	background, err := imaging.Decode(bytes.NewReader(backgroundPNG))
	if err != nil {
		return nil, fmt.Errorf("decode background: %w", err)
	}
	canvas := imaging.Resize(background, CanvasSize, CanvasSize, imaging.Lanczos)

	product, err := imaging.Decode(bytes.NewReader(productPNG))
	if err != nil {
		return nil, fmt.Errorf("decode product cutout: %w", err)
	}

	pw, ph := product.Bounds().Dx(), product.Bounds().Dy()
	if pw == 0 || ph == 0 {
		return nil, fmt.Errorf("empty product cutout")
	}
	scale := minFloat(float64(CanvasSize)/float64(pw), float64(CanvasSize)/float64(ph), 1.0)
	nw, nh := int(float64(pw)*scale), int(float64(ph)*scale)
	resized := imaging.Resize(product, nw, nh, imaging.Lanczos)

	refined := refineAlpha(resized)

	x := (CanvasSize - nw) / 2
	y := (CanvasSize - nh) / 2
	out := imaging.Overlay(canvas, refined, image.Pt(x, y), 1.0)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

// refineAlpha removes the removal halo while keeping the model's 256-level
// transparency in the midrange.
func refineAlpha(img *image.NRGBA) *image.NRGBA {
	out := imaging.Clone(img)
	for i := 3; i < len(out.Pix); i += 4 {
		out.Pix[i] = refineAlphaValue(out.Pix[i])
	}
	return out
}

func refineAlphaValue(a uint8) uint8 {
	switch {
	case a < alphaFloor:
		return 0
	case a >= alphaCeiling:
		return 255
	default:
		return uint8(int(a-alphaFloor) * 255 / (alphaCeiling - alphaFloor))
	}
}

// GradientBackground renders the vertical gradient used when Gemini image
// generation fails: light product tone on top, deeper tone below. Colors
// come from the concept hex list, then from the product itself, then from a
// neutral default.
func GradientBackground(coreColors []string, productPNG []byte) []byte {
	top := color.NRGBA{R: 255, G: 253, B: 255, A: 255}
	bottom := color.NRGBA{R: 225, G: 220, B: 238, A: 255}

	if parsed := parseHexColors(coreColors); len(parsed) >= 2 {
		top, bottom = parsed[0], parsed[1]
	} else if len(parsed) == 1 {
		top = shiftColor(parsed[0], 60, 55, 60)
		bottom = shiftColor(parsed[0], -30, -30, -20)
	} else if len(productPNG) > 0 {
		dominant := DominantColors(productPNG, 2)
		if len(dominant) >= 2 {
			top = shiftColor(dominant[0], 80, 80, 80)
			bottom = shiftColor(dominant[1], -40, -40, -40)
		} else if len(dominant) == 1 {
			top = shiftColor(dominant[0], 80, 75, 80)
			bottom = shiftColor(dominant[0], -50, -50, -40)
		}
	}

	return renderGradient(top, bottom)
}

// NeutralGradient is the last-resort background.
func NeutralGradient() []byte {
	return renderGradient(
		color.NRGBA{R: 252, G: 250, B: 255, A: 255},
		color.NRGBA{R: 240, G: 242, B: 248, A: 255},
	)
}

func renderGradient(top, bottom color.NRGBA) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, CanvasSize, CanvasSize))
	for y := 0; y < CanvasSize; y++ {
		t := float64(y) / float64(CanvasSize-1)
		row := color.NRGBA{
			R: lerp(top.R, bottom.R, t),
			G: lerp(top.G, bottom.G, t),
			B: lerp(top.B, bottom.B, t),
			A: 255,
		}
		for x := 0; x < CanvasSize; x++ {
			img.SetNRGBA(x, y, row)
		}
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil
	}
	return buf.Bytes()
}

// DominantColors picks the n most frequent midtone colors from the image,
// quantized to 16-value buckets. Near-white and near-black pixels are
// ignored so packaging shadows and studio backdrops do not dominate.
func DominantColors(imageBytes []byte, n int) []color.NRGBA {
	img, err := imaging.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		return nil
	}
	small := imaging.Resize(img, 50, 50, imaging.Lanczos)

	counts := make(map[color.NRGBA]int)
	for i := 0; i+3 < len(small.Pix); i += 4 {
		r, g, b := small.Pix[i], small.Pix[i+1], small.Pix[i+2]
		sum := int(r) + int(g) + int(b)
		if sum <= 30 || sum >= 720 {
			continue
		}
		bucket := color.NRGBA{R: r / 16 * 16, G: g / 16 * 16, B: b / 16 * 16, A: 255}
		counts[bucket]++
	}

	result := make([]color.NRGBA, 0, n)
	for len(result) < n {
		var best color.NRGBA
		bestCount := 0
		for c, count := range counts {
			if count > bestCount {
				best, bestCount = c, count
			}
		}
		if bestCount == 0 {
			break
		}
		result = append(result, best)
		delete(counts, best)
	}
	return result
}

// ParseHex decodes #rrggbb or rrggbb.
func ParseHex(s string) (color.NRGBA, bool) {
	h := s
	if len(h) > 0 && h[0] == '#' {
		h = h[1:]
	}
	if len(h) != 6 {
		return color.NRGBA{}, false
	}
	var r, g, b uint8
	if _, err := fmt.Sscanf(h, "%02x%02x%02x", &r, &g, &b); err != nil {
		return color.NRGBA{}, false
	}
	return color.NRGBA{R: r, G: g, B: b, A: 255}, true
}

func parseHexColors(colors []string) []color.NRGBA {
	if len(colors) > 3 {
		colors = colors[:3]
	}
	parsed := make([]color.NRGBA, 0, len(colors))
	for _, c := range colors {
		if rgb, ok := ParseHex(c); ok {
			parsed = append(parsed, rgb)
		}
	}
	return parsed
}

func shiftColor(c color.NRGBA, dr, dg, db int) color.NRGBA {
	return color.NRGBA{
		R: clampByte(int(c.R) + dr),
		G: clampByte(int(c.G) + dg),
		B: clampByte(int(c.B) + db),
		A: 255,
	}
}

func clampByte(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

func lerp(a, b uint8, t float64) uint8 {
	return uint8(float64(a)*(1-t) + float64(b)*t)
}

func minFloat(values ...float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
