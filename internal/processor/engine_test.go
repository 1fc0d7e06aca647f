package processor

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buzzzzx/shanbor/internal/model"
)

var (
	white = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	red   = color.NRGBA{R: 255, A: 255}
	blue  = color.NRGBA{B: 255, A: 255}
)

func solidImage(w, h int, c color.Color) *image.NRGBA {
	return imaging.New(w, h, c)
}

// patternImage has a distinct color per pixel so compression keeps it large.
func patternImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 4), G: uint8(y * 4), B: uint8(x ^ y), A: 255})
		}
	}
	return img
}

func encode(t *testing.T, img image.Image, format imaging.Format) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, format))

	return buf.Bytes()
}

func pixel(img image.Image, x, y int) color.NRGBA {
	return color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
}

func newEngine(t *testing.T, img image.Image, opts ...Option) *Engine {
	t.Helper()

	e, err := NewEngine(encode(t, img, imaging.PNG), opts...)
	require.NoError(t, err)

	return e
}

func TestNewEngine_DecodeErrors(t *testing.T) {
	png := encode(t, patternImage(64, 64), imaging.PNG)
	jpeg := encode(t, patternImage(64, 64), imaging.JPEG)

	tests := []struct {
		name    string
		raw     []byte
		wantErr error
	}{
		{name: "empty", raw: nil, wantErr: ErrUnsupportedFormat},
		{name: "text", raw: []byte("definitely not an image"), wantErr: ErrUnsupportedFormat},
		{name: "html error page", raw: []byte("<html><body>404</body></html>"), wantErr: ErrUnsupportedFormat},
		{name: "truncated png", raw: png[:len(png)/2], wantErr: ErrTruncated},
		{name: "truncated jpeg", raw: jpeg[:len(jpeg)/2], wantErr: ErrTruncated},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e, err := NewEngine(tc.raw)
			require.ErrorIs(t, err, tc.wantErr)
			assert.Nil(t, e)
		})
	}
}

// withDimensions rewrites the IHDR size of a PNG without touching its pixel data.
func withDimensions(raw []byte, w, h uint32) []byte {
	b := bytes.Clone(raw)
	binary.BigEndian.PutUint32(b[16:20], w)
	binary.BigEndian.PutUint32(b[20:24], h)
	binary.BigEndian.PutUint32(b[29:33], crc32.ChecksumIEEE(b[12:29]))
	return b
}

func TestNewEngine_RejectsHugeDimensions(t *testing.T) {
	png := encode(t, patternImage(8, 8), imaging.PNG)

	tests := []struct {
		name string
		w, h uint32
	}{
		{name: "wide", w: 100000, h: 8},
		{name: "tall", w: 8, h: maxDimension + 1},
		{name: "too many pixels", w: 10000, h: 10000},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e, err := NewEngine(withDimensions(png, tc.w, tc.h))
			require.ErrorIs(t, err, ErrSourceTooLarge)
			assert.Nil(t, e)
		})
	}

	_, err := NewEngine(withDimensions(png, 8, 8))
	require.NoError(t, err)
}

func TestNewEngine_Format(t *testing.T) {
	img := patternImage(8, 8)

	e, err := NewEngine(encode(t, img, imaging.JPEG))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", e.Format())

	e, err = NewEngine(encode(t, img, imaging.PNG))
	require.NoError(t, err)
	assert.Equal(t, "png", e.Format())
	assert.Equal(t, image.Rect(0, 0, 8, 8), e.Image().Bounds())
}

func TestApply_EmptyIsIdentity(t *testing.T) {
	src := patternImage(16, 12)
	e := newEngine(t, src)
	before := e.Image()

	require.NoError(t, e.Apply(nil))
	require.NoError(t, e.Apply([]model.Step{}))

	assert.Same(t, before, e.Image())
	for y := 0; y < 12; y++ {
		for x := 0; x < 16; x++ {
			require.Equal(t, src.NRGBAAt(x, y), pixel(e.Image(), x, y))
		}
	}
}

func TestApply_Resize(t *testing.T) {
	filters := []model.SampleFilter{
		model.SampleFilterUndefined,
		model.SampleFilterNearest,
		model.SampleFilterTriangle,
		model.SampleFilterCatmullRom,
		model.SampleFilterGaussian,
		model.SampleFilterLanczos3,
	}

	for _, f := range filters {
		t.Run(f.String(), func(t *testing.T) {
			e := newEngine(t, patternImage(40, 30))

			require.NoError(t, e.Apply([]model.Step{model.Resize{Width: 25, Height: 70, Filter: f}}))
			assert.Equal(t, 25, e.Image().Bounds().Dx())
			assert.Equal(t, 70, e.Image().Bounds().Dy())
		})
	}
}

func TestApply_ResizeInvalid(t *testing.T) {
	tests := []model.Resize{
		{Width: 0, Height: 10},
		{Width: 10, Height: 0},
		{Width: maxDimension + 1, Height: 10},
		{Width: 10, Height: 10, Filter: model.SampleFilter(77)},
	}

	for _, step := range tests {
		e := newEngine(t, patternImage(10, 10))
		err := e.Apply([]model.Step{step})
		require.ErrorIs(t, err, ErrInvalidStep)
	}
}

func TestApply_Crop(t *testing.T) {
	tests := []struct {
		name         string
		step         model.Crop
		wantW, wantH int
		wantErr      bool
	}{
		{name: "inside", step: model.Crop{X: 10, Y: 20, Width: 30, Height: 40}, wantW: 30, wantH: 40},
		{name: "full image", step: model.Crop{Width: 100, Height: 100}, wantW: 100, wantH: 100},
		{name: "clamped right and bottom", step: model.Crop{X: 80, Y: 90, Width: 50, Height: 50}, wantW: 20, wantH: 10},
		{name: "clamped huge size", step: model.Crop{X: 0, Y: 0, Width: math.MaxUint32, Height: math.MaxUint32}, wantW: 100, wantH: 100},
		{name: "origin outside", step: model.Crop{X: 100, Y: 0, Width: 10, Height: 10}, wantErr: true},
		{name: "far outside", step: model.Crop{X: math.MaxUint32, Y: math.MaxUint32, Width: 10, Height: 10}, wantErr: true},
		{name: "zero area", step: model.Crop{X: 10, Y: 10}, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := newEngine(t, patternImage(100, 100))

			err := e.Apply([]model.Step{tc.step})
			if tc.wantErr {
				require.ErrorIs(t, err, ErrInvalidStep)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.wantW, e.Image().Bounds().Dx())
			assert.Equal(t, tc.wantH, e.Image().Bounds().Dy())
		})
	}
}

func TestApply_CropKeepsContent(t *testing.T) {
	src := patternImage(20, 20)
	e := newEngine(t, src)

	require.NoError(t, e.Apply([]model.Step{model.Crop{X: 5, Y: 7, Width: 4, Height: 4}}))
	assert.Equal(t, src.NRGBAAt(5, 7), pixel(e.Image(), 0, 0))
	assert.Equal(t, src.NRGBAAt(8, 10), pixel(e.Image(), 3, 3))
}

func TestApply_OrderMatters(t *testing.T) {
	overlay := solidImage(10, 10, red)

	resizeFirst := newEngine(t, solidImage(100, 100, white), WithOverlay(overlay))
	require.NoError(t, resizeFirst.Apply([]model.Step{
		model.Resize{Width: 50, Height: 50, Filter: model.SampleFilterNearest},
		model.Watermark{X: 0, Y: 0},
	}))

	watermarkFirst := newEngine(t, solidImage(100, 100, white), WithOverlay(overlay))
	require.NoError(t, watermarkFirst.Apply([]model.Step{
		model.Watermark{X: 0, Y: 0},
		model.Resize{Width: 50, Height: 50, Filter: model.SampleFilterNearest},
	}))

	// The overlay keeps its 10x10 size when drawn last and shrinks to 5x5 when drawn first.
	assert.Equal(t, red, pixel(resizeFirst.Image(), 7, 7))
	assert.Equal(t, white, pixel(watermarkFirst.Image(), 7, 7))
	assert.Equal(t, red, pixel(watermarkFirst.Image(), 2, 2))
}

func TestApply_Watermark(t *testing.T) {
	t.Run("clips at the edges", func(t *testing.T) {
		e := newEngine(t, solidImage(100, 100, white), WithOverlay(solidImage(10, 10, red)))

		require.NoError(t, e.Apply([]model.Step{model.Watermark{X: 95, Y: 95}}))
		assert.Equal(t, image.Rect(0, 0, 100, 100), e.Image().Bounds())
		assert.Equal(t, red, pixel(e.Image(), 97, 99))
		assert.Equal(t, white, pixel(e.Image(), 94, 94))
	})

	t.Run("offset beyond the image is a no-op", func(t *testing.T) {
		e := newEngine(t, solidImage(20, 20, white), WithOverlay(solidImage(10, 10, red)))

		require.NoError(t, e.Apply([]model.Step{model.Watermark{X: math.MaxUint32, Y: 3}}))
		for y := 0; y < 20; y++ {
			for x := 0; x < 20; x++ {
				require.Equal(t, white, pixel(e.Image(), x, y))
			}
		}
	})

	t.Run("blends by overlay alpha", func(t *testing.T) {
		translucent := solidImage(4, 4, color.NRGBA{R: 255, A: 128})
		e := newEngine(t, solidImage(8, 8, white), WithOverlay(translucent))

		require.NoError(t, e.Apply([]model.Step{model.Watermark{X: 2, Y: 2}}))

		got := pixel(e.Image(), 3, 3)
		assert.Equal(t, uint8(255), got.R)
		assert.InDelta(t, 127, int(got.G), 2)
		assert.InDelta(t, 127, int(got.B), 2)
		assert.Equal(t, white, pixel(e.Image(), 0, 0))
	})

	t.Run("default overlay", func(t *testing.T) {
		e := newEngine(t, solidImage(200, 100, white))

		require.NoError(t, e.Apply([]model.Step{model.Watermark{X: 20, Y: 20}}))
		assert.NotEqual(t, white, pixel(e.Image(), 30, 26))
		assert.Equal(t, white, pixel(e.Image(), 10, 10))
	})
}

func TestApply_Flip(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	src.SetNRGBA(0, 0, red)
	src.SetNRGBA(1, 0, blue)
	src.SetNRGBA(0, 1, white)
	src.SetNRGBA(1, 1, white)

	e := newEngine(t, src)
	require.NoError(t, e.Apply([]model.Step{model.FlipH{}}))
	assert.Equal(t, blue, pixel(e.Image(), 0, 0))
	assert.Equal(t, red, pixel(e.Image(), 1, 0))

	require.NoError(t, e.Apply([]model.Step{model.FlipV{}}))
	assert.Equal(t, white, pixel(e.Image(), 0, 0))
	assert.Equal(t, blue, pixel(e.Image(), 0, 1))
}

func TestApply_ColorSteps(t *testing.T) {
	gray := color.NRGBA{R: 100, G: 140, B: 180, A: 255}

	t.Run("presets change colors", func(t *testing.T) {
		for _, kind := range []model.FilterKind{model.FilterOceanic, model.FilterIslands, model.FilterMarine} {
			e := newEngine(t, solidImage(4, 4, gray))
			require.NoError(t, e.Apply([]model.Step{model.Filter{Kind: kind}}))

			got := pixel(e.Image(), 1, 1)
			assert.NotEqual(t, gray, got, kind.String())
			assert.Equal(t, uint8(255), got.A)
		}
	})

	t.Run("unspecified preset is a no-op", func(t *testing.T) {
		e := newEngine(t, solidImage(4, 4, gray))
		before := e.Image()

		require.NoError(t, e.Apply([]model.Step{model.Filter{}}))
		assert.Same(t, before, e.Image())
	})

	t.Run("unknown preset", func(t *testing.T) {
		e := newEngine(t, solidImage(4, 4, gray))
		require.ErrorIs(t, e.Apply([]model.Step{model.Filter{Kind: model.FilterKind(9)}}), ErrInvalidStep)
	})

	t.Run("transparent pixels stay transparent", func(t *testing.T) {
		e := newEngine(t, solidImage(4, 4, color.NRGBA{}))
		require.NoError(t, e.Apply([]model.Step{model.Filter{Kind: model.FilterMarine}}))
		assert.Equal(t, uint8(0), pixel(e.Image(), 0, 0).A)
	})

	t.Run("grayscale", func(t *testing.T) {
		e := newEngine(t, solidImage(4, 4, gray))
		require.NoError(t, e.Apply([]model.Step{model.Grayscale{}}))

		got := pixel(e.Image(), 2, 2)
		assert.Equal(t, got.R, got.G)
		assert.Equal(t, got.G, got.B)
	})

	t.Run("contrast", func(t *testing.T) {
		e := newEngine(t, solidImage(4, 4, gray))
		require.NoError(t, e.Apply([]model.Step{model.Contrast{Amount: 250}}))
		assert.NotEqual(t, gray, pixel(e.Image(), 0, 0))

		err := e.Apply([]model.Step{model.Contrast{Amount: float32(math.NaN())}})
		require.ErrorIs(t, err, ErrInvalidStep)
	})

	t.Run("blur", func(t *testing.T) {
		e := newEngine(t, patternImage(16, 16))
		require.NoError(t, e.Apply([]model.Step{model.Blur{Sigma: 1.5}}))
		assert.Equal(t, image.Rect(0, 0, 16, 16), e.Image().Bounds())

		for _, sigma := range []float32{0, -1, maxBlurSigma + 1, float32(math.NaN())} {
			require.ErrorIs(t, e.Apply([]model.Step{model.Blur{Sigma: sigma}}), ErrInvalidStep)
		}
	})
}

func TestApply_StopsAtFailingStep(t *testing.T) {
	e := newEngine(t, patternImage(40, 40))

	err := e.Apply([]model.Step{
		model.Resize{Width: 20, Height: 10},
		model.Crop{X: 500, Y: 500, Width: 1, Height: 1},
		model.Resize{Width: 5, Height: 5},
	})
	require.ErrorIs(t, err, ErrInvalidStep)
	assert.Contains(t, err.Error(), "step 1")
	assert.Equal(t, image.Rect(0, 0, 20, 10), e.Image().Bounds())
}

func TestApply_NilStep(t *testing.T) {
	e := newEngine(t, patternImage(4, 4))
	require.ErrorIs(t, e.Apply([]model.Step{nil}), ErrInvalidStep)
}

func TestGenerate(t *testing.T) {
	e := newEngine(t, patternImage(30, 20))
	require.NoError(t, e.Apply([]model.Step{model.FlipH{}}))

	out, err := ParseOutputFormat("jpeg", 85)
	require.NoError(t, err)

	data, err := e.Generate(out)
	require.NoError(t, err)

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 30, cfg.Width)
	assert.Equal(t, 20, cfg.Height)

	assert.Nil(t, e.Image())
	_, err = e.Generate(out)
	require.ErrorIs(t, err, ErrConsumed)
	require.ErrorIs(t, e.Apply(nil), ErrConsumed)
}

func TestGenerate_JPEGResizeEndToEnd(t *testing.T) {
	e, err := NewEngine(encode(t, patternImage(64, 48), imaging.JPEG))
	require.NoError(t, err)

	require.NoError(t, e.Apply([]model.Step{
		model.Resize{Width: 500, Height: 800, Filter: model.SampleFilterCatmullRom},
	}))

	data, err := e.Generate(OutputFormat{Format: imaging.JPEG, Quality: 85})
	require.NoError(t, err)

	decoded, err := imaging.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 500, decoded.Bounds().Dx())
	assert.Equal(t, 800, decoded.Bounds().Dy())
}
