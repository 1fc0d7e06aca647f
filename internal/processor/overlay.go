package processor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"
)

// overlayStorage defines the interface for loading stored overlay images
// (e.g., local FS or MinIO).
type overlayStorage interface {
	Load(ctx context.Context, path string) (io.ReadCloser, error)
}

// ErrNoAttempts is returned when a retry strategy never ran the operation.
var ErrNoAttempts = errors.New("retry strategy made no attempts")

// DefaultOverlay returns the overlay used when none is configured: a
// translucent dark badge with a light mark.
var DefaultOverlay = sync.OnceValue(func() image.Image {
	const w, h = 96, 32

	dc := gg.NewContext(w, h)
	dc.SetRGBA(0, 0, 0, 0.45)
	dc.DrawRoundedRectangle(0, 0, w, h, 6)
	dc.Fill()

	dc.SetRGBA(1, 1, 1, 0.85)
	dc.DrawCircle(16, h/2, 8)
	dc.Fill()

	dc.SetLineWidth(3)
	dc.DrawLine(32, h/2, w-12, h/2)
	dc.Stroke()

	return dc.Image()
})

// LoadOverlay reads and decodes the overlay at path, retrying with strategy.
func LoadOverlay(ctx context.Context, storage overlayStorage, path string, strategy retry.Strategy) (image.Image, error) {
	var img image.Image

	err := retry.Do(func() error {
		r, err := storage.Load(ctx, path)
		if err != nil {
			return err
		}
		defer r.Close()

		img, err = imaging.Decode(r)
		return err
	}, strategy)
	if err != nil {
		return nil, fmt.Errorf("failed to load overlay %s: %w", path, err)
	}
	if img == nil {
		return nil, fmt.Errorf("failed to load overlay %s: %w", path, ErrNoAttempts)
	}

	zlog.Logger.Info().
		Str("path", path).
		Int("width", img.Bounds().Dx()).
		Int("height", img.Bounds().Dy()).
		Msg("overlay loaded")

	return img, nil
}
