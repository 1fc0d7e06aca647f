package processor

import (
	"fmt"
	"image"
	"math"

	"github.com/anthonynsimon/bild/blur"
	"github.com/anthonynsimon/bild/effect"
	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"

	"github.com/buzzzzx/shanbor/internal/model"
)

const (
	maxDimension    = 16384
	maxSourcePixels = 64 << 20
	maxBlurSigma    = 100
)

var resampleFilters = map[model.SampleFilter]imaging.ResampleFilter{
	model.SampleFilterUndefined:  imaging.Lanczos,
	model.SampleFilterNearest:    imaging.NearestNeighbor,
	model.SampleFilterTriangle:   imaging.Linear,
	model.SampleFilterCatmullRom: imaging.CatmullRom,
	model.SampleFilterGaussian:   imaging.Gaussian,
	model.SampleFilterLanczos3:   imaging.Lanczos,
}

func applyStep(img, overlay image.Image, step model.Step) (image.Image, error) {
	switch s := step.(type) {
	case model.Resize:
		return resize(img, s)
	case model.Crop:
		return crop(img, s)
	case model.FlipV:
		return imaging.FlipV(img), nil
	case model.FlipH:
		return imaging.FlipH(img), nil
	case model.Contrast:
		amount := float64(s.Amount)
		if math.IsNaN(amount) {
			return nil, fmt.Errorf("%w: contrast is NaN", ErrInvalidStep)
		}
		return imaging.AdjustContrast(img, math.Max(-100, math.Min(100, amount))), nil
	case model.Filter:
		return applyPreset(img, s.Kind)
	case model.Watermark:
		return watermark(img, overlay, s), nil
	case model.Blur:
		sigma := float64(s.Sigma)
		if !(sigma > 0 && sigma <= maxBlurSigma) {
			return nil, fmt.Errorf("%w: blur sigma %v outside (0, %d]", ErrInvalidStep, s.Sigma, maxBlurSigma)
		}
		return blur.Gaussian(img, sigma), nil
	case model.Grayscale:
		return effect.Grayscale(img), nil
	default:
		return nil, fmt.Errorf("%w: unsupported step %T", ErrInvalidStep, step)
	}
}

// resize scales to the exact target size; the aspect ratio is not preserved.
func resize(img image.Image, s model.Resize) (image.Image, error) {
	if s.Width == 0 || s.Height == 0 || s.Width > maxDimension || s.Height > maxDimension {
		return nil, fmt.Errorf("%w: resize to %dx%d, each side must be in [1, %d]", ErrInvalidStep, s.Width, s.Height, maxDimension)
	}

	filter, ok := resampleFilters[s.Filter]
	if !ok {
		return nil, fmt.Errorf("%w: unknown sample filter %s", ErrInvalidStep, s.Filter)
	}

	return imaging.Resize(img, int(s.Width), int(s.Height), filter), nil
}

// crop clamps the requested rectangle to the image bounds.
// A rectangle lying entirely outside the image is an error.
func crop(img image.Image, s model.Crop) (image.Image, error) {
	bounds := img.Bounds()

	rect := image.Rect(0, 0, int(s.Width), int(s.Height)).
		Add(image.Pt(int(s.X), int(s.Y))).
		Add(bounds.Min).
		Intersect(bounds)

	if rect.Empty() {
		return nil, fmt.Errorf("%w: crop %dx%d at (%d,%d) does not intersect %dx%d image",
			ErrInvalidStep, s.Width, s.Height, s.X, s.Y, bounds.Dx(), bounds.Dy())
	}

	return imaging.Crop(img, rect), nil
}

// watermark draws overlay with its top-left corner at (X, Y), blending by the
// overlay alpha. Parts falling outside the image are clipped.
func watermark(img, overlay image.Image, s model.Watermark) image.Image {
	dc := gg.NewContextForImage(img)
	dc.DrawImage(overlay, clampOffset(s.X), clampOffset(s.Y))

	return dc.Image()
}

func clampOffset(v uint32) int {
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(v)
}
