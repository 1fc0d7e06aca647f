package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/go-resty/resty/v2"
	"github.com/wb-go/wbf/zlog"

	"github.com/buzzzzx/shanbor/internal/config"
)

var (
	// ErrNetwork covers connection, protocol and read failures.
	ErrNetwork = errors.New("network failure")
	// ErrStatus is matched by *StatusError.
	ErrStatus = errors.New("unexpected status code")
	// ErrTimeout is returned when the fetch does not finish within the configured timeout.
	ErrTimeout = errors.New("fetch timed out")
	// ErrTooLarge is returned when the body exceeds the configured limit.
	ErrTooLarge = errors.New("response body too large")
)

// StatusError reports a non-2xx response from the source server.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %d", ErrStatus, e.Code)
}

// Is makes errors.Is(err, ErrStatus) match any StatusError.
func (e *StatusError) Is(target error) bool {
	return target == ErrStatus
}

// Fetcher downloads source images over HTTP.
type Fetcher struct {
	client      *resty.Client
	maxBodySize int64
}

// New creates a Fetcher from the fetch configuration.
func New(cfg *config.Fetch) (*Fetcher, error) {
	limit, err := cfg.MaxBodyBytes()
	if err != nil {
		return nil, err
	}

	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetDoNotParseResponse(true).
		SetHeader("Accept", "image/*")

	if cfg.UserAgent != "" {
		client.SetHeader("User-Agent", cfg.UserAgent)
	}

	return &Fetcher{client: client, maxBodySize: limit}, nil
}

// Fetch returns the body of a successful GET request to url.
// Failed or partial downloads are never returned.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	resp, err := f.client.R().SetContext(ctx).Get(url)
	if err != nil {
		err = classify(err)
		zlog.Logger.Error().Err(err).Str("url", url).Msg("fetch failed")
		return nil, err
	}

	body := resp.RawBody()
	defer func() {
		_ = body.Close()
	}()

	if !resp.IsSuccess() {
		err = &StatusError{Code: resp.StatusCode()}
		zlog.Logger.Warn().Err(err).Str("url", url).Msg("fetch rejected")
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(body, f.maxBodySize+1))
	if err != nil {
		err = classify(err)
		zlog.Logger.Error().Err(err).Str("url", url).Msg("failed to read body")
		return nil, err
	}

	if int64(len(data)) > f.maxBodySize {
		zlog.Logger.Warn().Str("url", url).Int64("limit", f.maxBodySize).Msg("body too large")
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, f.maxBodySize)
	}

	zlog.Logger.Debug().Str("url", url).Int("bytes", len(data)).Msg("fetched source")

	return data, nil
}

func classify(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrNetwork, err)
}
