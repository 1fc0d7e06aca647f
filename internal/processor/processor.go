package processor

import (
	"context"
	"fmt"
	"image"
	"runtime"

	"github.com/wb-go/wbf/zlog"
	"golang.org/x/sync/semaphore"

	"github.com/buzzzzx/shanbor/internal/model"
)

// Processor runs transformation pipelines over source images.
// It owns the watermark overlay and the output encoding, and bounds how many
// pipelines run at the same time.
type Processor struct {
	overlay image.Image
	output  OutputFormat
	sem     *semaphore.Weighted
}

// Result is an encoded image produced by Process.
type Result struct {
	Data        []byte
	ContentType string
	Width       int
	Height      int
}

// New creates a new Processor. A nil overlay selects DefaultOverlay and a
// non-positive maxConcurrency selects the number of CPUs.
func New(output OutputFormat, overlay image.Image, maxConcurrency int) *Processor {
	if overlay == nil {
		overlay = DefaultOverlay()
	}
	if maxConcurrency <= 0 {
		maxConcurrency = runtime.NumCPU()
	}

	return &Processor{
		overlay: overlay,
		output:  output,
		sem:     semaphore.NewWeighted(int64(maxConcurrency)),
	}
}

// ContentType returns the MIME type of generated images.
func (p *Processor) ContentType() string {
	return p.output.ContentType()
}

// Process decodes raw, applies steps in order and encodes the result.
func (p *Processor) Process(ctx context.Context, raw []byte, steps []model.Step) (Result, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return Result{}, fmt.Errorf("wait for pipeline slot: %w", err)
	}
	defer p.sem.Release(1)

	engine, err := NewEngine(raw, WithOverlay(p.overlay))
	if err != nil {
		return Result{}, fmt.Errorf("decode source: %w", err)
	}

	if err := engine.Apply(steps); err != nil {
		return Result{}, fmt.Errorf("apply steps: %w", err)
	}

	bounds := engine.Image().Bounds()

	zlog.Logger.Debug().
		Str("source_format", engine.Format()).
		Int("steps", len(steps)).
		Int("width", bounds.Dx()).
		Int("height", bounds.Dy()).
		Msg("pipeline applied")

	data, err := engine.Generate(p.output)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Data:        data,
		ContentType: p.output.ContentType(),
		Width:       bounds.Dx(),
		Height:      bounds.Dy(),
	}, nil
}
