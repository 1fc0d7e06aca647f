package processor

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"github.com/buzzzzx/shanbor/internal/model"
)

var (
	// ErrUnsupportedFormat is returned when the source is not a known image container.
	ErrUnsupportedFormat = errors.New("unsupported image format")
	// ErrTruncated is returned when the source is a known format but cannot be decoded.
	ErrTruncated = errors.New("truncated or corrupt image")
	// ErrInvalidStep is returned when a step cannot be applied to the current buffer.
	ErrInvalidStep = errors.New("invalid step")
	// ErrEncode is returned when the final image cannot be encoded.
	ErrEncode = errors.New("failed to encode image")
	// ErrSourceTooLarge is returned when the source declares dimensions beyond the decode limits.
	ErrSourceTooLarge = errors.New("source image too large")
	// ErrConsumed is returned when the engine is used after Generate.
	ErrConsumed = errors.New("engine already generated its output")
)

// Engine holds one decoded image while a pipeline runs over it.
// It is not safe for concurrent use.
type Engine struct {
	img     image.Image
	format  string
	overlay image.Image
}

// Option configures an Engine.
type Option func(e *Engine)

// WithOverlay sets the image composited by Watermark steps.
func WithOverlay(img image.Image) Option {
	return func(e *Engine) {
		e.overlay = img
	}
}

// NewEngine decodes raw into a pixel buffer.
func NewEngine(raw []byte, opts ...Option) (*Engine, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, decodeError(err)
	}

	if cfg.Width > maxDimension || cfg.Height > maxDimension || cfg.Width*cfg.Height > maxSourcePixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrSourceTooLarge, cfg.Width, cfg.Height)
	}

	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return nil, decodeError(err)
	}

	e := &Engine{img: img, format: format}
	for _, opt := range opts {
		opt(e)
	}

	if e.overlay == nil {
		e.overlay = DefaultOverlay()
	}

	return e, nil
}

func decodeError(err error) error {
	if errors.Is(err, image.ErrFormat) {
		return fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}

	return fmt.Errorf("%w: %v", ErrTruncated, err)
}

// Format returns the name of the source container, e.g. "jpeg".
func (e *Engine) Format() string {
	return e.format
}

// Image returns the current pixel buffer, or nil after Generate.
func (e *Engine) Image() image.Image {
	return e.img
}

// Apply runs steps in order, each on the output of the previous one.
// On error the buffer keeps the result of the steps before the failing one.
func (e *Engine) Apply(steps []model.Step) error {
	if e.img == nil {
		return ErrConsumed
	}

	for i, step := range steps {
		img, err := applyStep(e.img, e.overlay, step)
		if err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
		e.img = img
	}

	return nil
}

// Generate encodes the buffer and releases it. The engine cannot be used afterwards.
func (e *Engine) Generate(out OutputFormat) ([]byte, error) {
	if e.img == nil {
		return nil, ErrConsumed
	}

	img := e.img
	e.img = nil

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, out.Format, out.encodeOptions()...); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}

	return buf.Bytes(), nil
}
