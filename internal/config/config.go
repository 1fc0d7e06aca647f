package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/inhies/go-bytesize"
	"github.com/samber/lo"
	"github.com/spf13/viper"
	"github.com/wb-go/wbf/zlog"
)

// Config holds the main configuration for the application.
type Config struct {
	Server    Server    `mapstructure:"server"`
	Cache     Cache     `mapstructure:"cache"`
	Fetch     Fetch     `mapstructure:"fetch"`
	Output    Output    `mapstructure:"output"`
	Processor Processor `mapstructure:"processor"`
	Watermark Watermark `mapstructure:"watermark"`
	Storage   Storage   `mapstructure:"storage"`
	Kafka     Kafka     `mapstructure:"kafka"`
	Retry     Retry     `mapstructure:"retry"`
	Log       Log       `mapstructure:"log"`
}

// Server holds HTTP server-related configuration.
type Server struct {
	HTTPPort     string        `mapstructure:"http_port"` // HTTP address to listen on
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"` // covers a cold fetch plus processing
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// Cache holds the source image cache configuration.
type Cache struct {
	MaxEntries int `mapstructure:"max_entries"` // Maximum number of cached source images
}

// Fetch holds configuration for downloading source images.
type Fetch struct {
	Timeout     time.Duration `mapstructure:"timeout"`       // Whole request timeout, body included
	MaxBodySize string        `mapstructure:"max_body_size"` // Human readable limit, e.g. "20MB"
	UserAgent   string        `mapstructure:"user_agent"`
}

// Output holds the encoding used for generated images.
type Output struct {
	Format  string `mapstructure:"format"`  // jpeg, png or gif
	Quality int    `mapstructure:"quality"` // JPEG quality, 1-100
}

// Processor holds pipeline execution limits.
type Processor struct {
	MaxConcurrency int `mapstructure:"max_concurrency"` // 0 means number of CPUs
}

// Watermark selects where the overlay image comes from.
type Watermark struct {
	Source string `mapstructure:"source"` // "", "local" or "minio"
	Path   string `mapstructure:"path"`   // file path or object name
}

// Storage holds configuration for the S3-compatible storage backend.
type Storage struct {
	Endpoint   string `mapstructure:"endpoint"`
	AccessKey  string `mapstructure:"access_key"`
	SecretKey  string `mapstructure:"secret_key"`
	BucketName string `mapstructure:"bucket_name"`
	UseSSL     bool   `mapstructure:"use_ssl"`
}

// Kafka holds configuration for the render event topic.
type Kafka struct {
	Topic   string   `mapstructure:"topic"`   // Kafka topic name
	Brokers []string `mapstructure:"brokers"` // Empty disables publishing
}

// Retry defines retry policy configuration.
type Retry struct {
	Attempts int           `mapstructure:"attempts"` // Number of retry attempts
	Delay    time.Duration `mapstructure:"delay"`    // Initial delay between retries
	Backoff  float64       `mapstructure:"backoff"`  // Backoff multiplier for delays
}

// Log holds logging configuration.
type Log struct {
	Level string `mapstructure:"level"`
}

var (
	outputFormats    = []string{"jpeg", "jpg", "png", "gif"}
	watermarkSources = []string{"", "local", "minio"}
)

// MaxBodyBytes returns the parsed MaxBodySize.
func (f Fetch) MaxBodyBytes() (int64, error) {
	size, err := bytesize.Parse(f.MaxBodySize)
	if err != nil {
		return 0, fmt.Errorf("invalid max_body_size %q: %w", f.MaxBodySize, err)
	}

	return int64(size), nil
}

// Enabled reports whether render events should be published.
func (k Kafka) Enabled() bool {
	return len(k.Brokers) > 0
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_port", ":3000")
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("cache.max_entries", 1024)
	v.SetDefault("fetch.timeout", 10*time.Second)
	v.SetDefault("fetch.max_body_size", "20MB")
	v.SetDefault("fetch.user_agent", "shanbor/1.0")
	v.SetDefault("output.format", "jpeg")
	v.SetDefault("output.quality", 85)
	v.SetDefault("processor.max_concurrency", 0)
	v.SetDefault("kafka.topic", "image-renders")
	v.SetDefault("retry.attempts", 3)
	v.SetDefault("retry.delay", 500*time.Millisecond)
	v.SetDefault("retry.backoff", 2.0)
	v.SetDefault("log.level", "info")
}

// bindEnv binds secrets and deployment specific values to environment variables.
func bindEnv(v *viper.Viper) error {
	bindings := map[string]string{
		"server.http_port":   "HTTP_PORT",
		"storage.access_key": "STORAGE_ACCESS_KEY",
		"storage.secret_key": "STORAGE_SECRET_KEY",
		"log.level":          "LOG_LEVEL",
	}

	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("failed to bind env %s: %w", env, err)
		}
	}

	return nil
}

// Load reads the configuration file at path. An empty path uses defaults
// and environment variables only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := bindEnv(v); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks values that would otherwise fail deep inside a request.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server read and write timeouts must be positive, got %s and %s", c.Server.ReadTimeout, c.Server.WriteTimeout))
	}
	if c.Cache.MaxEntries <= 0 {
		errs = append(errs, fmt.Errorf("cache.max_entries must be positive, got %d", c.Cache.MaxEntries))
	}
	if c.Fetch.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("fetch.timeout must be positive, got %s", c.Fetch.Timeout))
	}
	if _, err := c.Fetch.MaxBodyBytes(); err != nil {
		errs = append(errs, fmt.Errorf("fetch: %w", err))
	}
	if !lo.Contains(outputFormats, strings.ToLower(c.Output.Format)) {
		errs = append(errs, fmt.Errorf("output.format must be one of %v, got %q", outputFormats, c.Output.Format))
	}
	if c.Output.Quality < 1 || c.Output.Quality > 100 {
		errs = append(errs, fmt.Errorf("output.quality must be in [1, 100], got %d", c.Output.Quality))
	}
	if c.Processor.MaxConcurrency < 0 {
		errs = append(errs, fmt.Errorf("processor.max_concurrency must not be negative, got %d", c.Processor.MaxConcurrency))
	}
	if !lo.Contains(watermarkSources, c.Watermark.Source) {
		errs = append(errs, fmt.Errorf("watermark.source must be one of %q, got %q", watermarkSources, c.Watermark.Source))
	}
	if c.Watermark.Source != "" && c.Watermark.Path == "" {
		errs = append(errs, errors.New("watermark.path is required when watermark.source is set"))
	}
	if c.Retry.Attempts < 1 {
		errs = append(errs, fmt.Errorf("retry.attempts must be at least 1, got %d", c.Retry.Attempts))
	}
	if c.Retry.Delay < 0 {
		errs = append(errs, fmt.Errorf("retry.delay must not be negative, got %s", c.Retry.Delay))
	}
	if c.Retry.Backoff < 0 {
		errs = append(errs, fmt.Errorf("retry.backoff must not be negative, got %v", c.Retry.Backoff))
	}
	if c.Kafka.Enabled() && c.Kafka.Topic == "" {
		errs = append(errs, errors.New("kafka.topic is required when kafka.brokers is set"))
	}

	return errors.Join(errs...)
}

// MustLoad loads the configuration from the specified file path.
// It panics if the configuration file cannot be loaded or is invalid.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		zlog.Logger.Panic().Err(err).Str("path", path).Msg("failed to load config")
	}

	return cfg
}
