package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	imagehandler "github.com/buzzzzx/shanbor/internal/api/handlers/image"
	"github.com/buzzzzx/shanbor/internal/api/router"
	"github.com/buzzzzx/shanbor/internal/api/server"
	"github.com/buzzzzx/shanbor/internal/cache"
	"github.com/buzzzzx/shanbor/internal/codec"
	"github.com/buzzzzx/shanbor/internal/config"
	"github.com/buzzzzx/shanbor/internal/fetcher"
	"github.com/buzzzzx/shanbor/internal/infra/kafka/producer"
	"github.com/buzzzzx/shanbor/internal/processor"
	imagesvc "github.com/buzzzzx/shanbor/internal/service/image"
	"github.com/buzzzzx/shanbor/internal/storage/file"
	"github.com/buzzzzx/shanbor/internal/storage/local"
)

func main() {
	configPath := pflag.StringP("config", "c", "./config/config.yml", "path to the config file")
	printURL := pflag.String("print-url", "", "print an example request url for the given image url and exit")
	pflag.Parse()

	// Optional .env with secrets for local runs.
	_ = godotenv.Load()

	// Initialize logger and load application configuration.
	zlog.Init()
	cfg := config.MustLoad(*configPath)

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("invalid log level")
	}
	zerolog.SetGlobalLevel(level)

	if *printURL != "" {
		u, err := codec.ExampleURL(baseURL(cfg.Server.HTTPPort), *printURL)
		if err != nil {
			zlog.Logger.Fatal().Err(err).Msg("failed to build example url")
		}
		fmt.Println(u)
		return
	}

	// Context & signals: used for graceful shutdown on system interrupts.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Retry strategy for storage, Kafka and other external calls.
	strategy := retry.Strategy{
		Attempts: cfg.Retry.Attempts,
		Delay:    cfg.Retry.Delay,
		Backoff:  cfg.Retry.Backoff,
	}

	overlay, err := loadOverlay(ctx, cfg, strategy)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to load watermark overlay")
	}

	output, err := processor.ParseOutputFormat(cfg.Output.Format, cfg.Output.Quality)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("invalid output format")
	}

	// Initialize fetcher, source cache, processor, and service layer.
	f, err := fetcher.New(&cfg.Fetch)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to create fetcher")
	}

	sources, err := cache.New(cfg.Cache.MaxEntries, f)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to create source cache")
	}

	imageProcessor := processor.New(output, overlay, cfg.Processor.MaxConcurrency)
	zlog.Logger.Info().
		Str("content_type", imageProcessor.ContentType()).
		Int("cache_entries", cfg.Cache.MaxEntries).
		Msg("processor ready")

	var (
		p       *producer.Producer
		service *imagesvc.Service
	)
	if cfg.Kafka.Enabled() {
		p = producer.New(&cfg.Kafka, strategy)
		service = imagesvc.NewService(sources, imageProcessor, p)
	} else {
		zlog.Logger.Info().Msg("kafka brokers not configured, render events disabled")
		service = imagesvc.NewService(sources, imageProcessor, nil)
	}

	// Start HTTP server in a separate goroutine.
	r := router.Setup(imagehandler.NewHandler(service))
	s := server.New(&cfg.Server, r)
	go func() {
		zlog.Logger.Info().Str("addr", cfg.Server.HTTPPort).Msg("starting server")
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Block until context is canceled (SIGINT/SIGTERM).
	<-ctx.Done()
	zlog.Logger.Info().Msg("context done")

	// Graceful shutdown with timeout for HTTP server.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	zlog.Logger.Info().Msg("shutting down server")
	if err := s.Shutdown(shutdownCtx); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to shutdown server")
	}
	if errors.Is(shutdownCtx.Err(), context.DeadlineExceeded) {
		zlog.Logger.Info().Msg("timeout exceeded, forcing shutdown")
	}

	// Flush pending render events, then close the Kafka producer.
	service.Close()
	if p != nil {
		if err := p.Close(); err != nil {
			zlog.Logger.Error().Err(err).Msg("failed to close kafka producer client")
		}
	}
}

// loadOverlay returns the configured watermark overlay, or nil for the built-in one.
func loadOverlay(ctx context.Context, cfg *config.Config, strategy retry.Strategy) (image.Image, error) {
	switch cfg.Watermark.Source {
	case "local":
		return processor.LoadOverlay(ctx, local.NewStorage(afero.NewOsFs(), ""), cfg.Watermark.Path, strategy)
	case "minio":
		storage, err := file.NewStorage(ctx, cfg.Storage.Endpoint, cfg.Storage.AccessKey, cfg.Storage.SecretKey, cfg.Storage.BucketName, cfg.Storage.UseSSL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to storage: %w", err)
		}
		return processor.LoadOverlay(ctx, storage, cfg.Watermark.Path, strategy)
	default:
		return nil, nil
	}
}

// baseURL turns a listen address such as ":3000" into a url clients can use.
func baseURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr
}
