package image

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/wb-go/wbf/zlog"

	"github.com/buzzzzx/shanbor/internal/codec"
	"github.com/buzzzzx/shanbor/internal/model"
	"github.com/buzzzzx/shanbor/internal/processor"
)

// ErrInvalidURL is returned when the source url is not an absolute http(s) url.
var ErrInvalidURL = errors.New("invalid source url")

const publishTimeout = 10 * time.Second

// sourceCache returns source image bytes, fetching them on a miss.
type sourceCache interface {
	Get(ctx context.Context, url string) ([]byte, error)
	Len() int
}

// imageProcessor runs a transformation pipeline over source bytes.
type imageProcessor interface {
	Process(ctx context.Context, raw []byte, steps []model.Step) (processor.Result, error)
}

// publisher defines the interface for sending render events to a message broker (e.g., Kafka).
type publisher interface {
	Publish(ctx context.Context, event model.RenderEvent) error
}

// Service renders images for the HTTP layer.
// It decodes the spec token, loads the source through the cache and runs the
// processor over it.
type Service struct {
	cache     sourceCache
	processor imageProcessor
	publisher publisher

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewService creates a new Service. p may be nil, in which case no render
// events are published.
func NewService(c sourceCache, proc imageProcessor, p publisher) *Service {
	return &Service{cache: c, processor: proc, publisher: p}
}

// Render decodes token, fetches the image behind the escaped rawURL and
// applies the decoded steps to it.
func (s *Service) Render(ctx context.Context, token, rawURL string) (processor.Result, error) {
	start := time.Now()

	spec, err := codec.Decode(token)
	if err != nil {
		return processor.Result{}, fmt.Errorf("render: %w", err)
	}

	src, err := SourceURL(rawURL)
	if err != nil {
		return processor.Result{}, fmt.Errorf("render: %w", err)
	}

	raw, err := s.cache.Get(ctx, src)
	if err != nil {
		return processor.Result{}, fmt.Errorf("render: failed to load source: %w", err)
	}

	res, err := s.processor.Process(ctx, raw, spec.Steps)
	if err != nil {
		return processor.Result{}, fmt.Errorf("render: %w", err)
	}

	zlog.Logger.Debug().
		Str("url", src).
		Int("steps", len(spec.Steps)).
		Int("bytes", len(res.Data)).
		Int("cached_sources", s.cache.Len()).
		Dur("took", time.Since(start)).
		Msg("image rendered")

	s.publish(ctx, model.RenderEvent{
		ID:          uuid.New(),
		Spec:        token,
		SourceURL:   src,
		Steps:       lo.Map(spec.Steps, func(step model.Step, _ int) string { return step.Name() }),
		ContentType: res.ContentType,
		Width:       res.Width,
		Height:      res.Height,
		Bytes:       len(res.Data),
		Duration:    time.Since(start),
		CreatedAt:   time.Now().UTC(),
	})

	return res, nil
}

// publish sends the event in the background. Failures are only logged.
func (s *Service) publish(ctx context.Context, event model.RenderEvent) {
	if s.publisher == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		zlog.Logger.Debug().Str("id", event.ID.String()).Msg("service closed, render event dropped")
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		defer cancel()

		if err := s.publisher.Publish(ctx, event); err != nil {
			zlog.Logger.Warn().Err(err).Str("id", event.ID.String()).Msg("failed to publish render event")
		}
	}()
}

// Close stops publishing new render events and waits for pending ones.
// Renders still running after Close succeed without an event.
func (s *Service) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.wg.Wait()
}

// SourceURL unescapes the url path segment and checks that it is an absolute
// http or https url.
func SourceURL(raw string) (string, error) {
	src, err := url.PathUnescape(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	u, err := url.Parse(src)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: scheme %q is not http or https", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host in %q", ErrInvalidURL, src)
	}

	return src, nil
}
