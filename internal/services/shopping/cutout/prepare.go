package cutout

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/muesli/smartcrop"
)

// Removal quality is bound by the source resolution sent to the model.
// Larger sources cost more and gain little past these caps.
func maxSide(quality string) int {
	switch quality {
	case "ultra":
		return 2560
	case "balanced":
		return 1536
	default: // high
		return 2048
	}
}

type lanczosResizer struct{}

func (lanczosResizer) Resize(img image.Image, width, height uint) image.Image {
	return imaging.Resize(img, int(width), int(height), imaging.Lanczos)
}

// Prepare normalizes a downloaded product image before background removal:
// caps the long side per the quality setting, and crops very wide or very
// tall shots to a square around the subject so the product fills the frame.
func Prepare(raw []byte, quality string) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode product image: %w", err)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("empty product image")
	}

	ratio := float64(w) / float64(h)
	if ratio > 1.6 || ratio < 0.625 {
		img = squareCrop(img, w, h)
	}

	limit := maxSide(quality)
	bounds = img.Bounds()
	if bounds.Dx() > limit || bounds.Dy() > limit {
		if bounds.Dx() >= bounds.Dy() {
			img = imaging.Resize(img, limit, 0, imaging.Lanczos)
		} else {
			img = imaging.Resize(img, 0, limit, imaging.Lanczos)
		}
	}

	var out bytes.Buffer
	if err := imaging.Encode(&out, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode prepared image: %w", err)
	}
	return out.Bytes(), nil
}

// squareCrop finds the most interesting square region; banner-shaped shots
// otherwise leave the product tiny after compositing.
func squareCrop(img image.Image, w, h int) image.Image {
	side := w
	if h < side {
		side = h
	}

	analyzer := smartcrop.NewAnalyzer(lanczosResizer{})
	best, err := analyzer.FindBestCrop(img, side, side)
	if err != nil || best.Dx() == 0 || best.Dy() == 0 {
		return imaging.CropCenter(img, side, side)
	}

	type subImager interface {
		SubImage(r image.Rectangle) image.Image
	}
	if si, ok := img.(subImager); ok {
		return si.SubImage(best)
	}
	return imaging.Crop(img, best)
}
