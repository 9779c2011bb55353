// Package config loads relay settings from defaults, an optional YAML file
// and FILERELAY_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"filerelay/internal/logging"

	"gopkg.in/yaml.v3"
)

const (
	DefaultFilename      = "filerelay.yaml"
	DefaultListen        = "127.0.0.1:8080"
	DefaultQueueSize     = 256
	DefaultPollTimeout   = 30 * time.Second
	DefaultMaxFrameBytes = 64 << 20
)

// Transport selects the protocol binding for a deployment.
type Transport string

const (
	TransportWebSocket Transport = "websocket"
	TransportHTTP      Transport = "http"
)

type Config struct {
	Root           string        `yaml:"root"`
	Listen         string        `yaml:"listen"`
	Transport      Transport     `yaml:"transport"`
	QueueSize      int           `yaml:"queue_size"`
	PollTimeout    time.Duration `yaml:"poll_timeout"`
	MaxFrameBytes  int64         `yaml:"max_frame_bytes"`
	LogLevel       string        `yaml:"log_level"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	Ignore         []string      `yaml:"ignore"`
}

func Default() Config {
	return Config{
		Listen:        DefaultListen,
		Transport:     TransportWebSocket,
		QueueSize:     DefaultQueueSize,
		PollTimeout:   DefaultPollTimeout,
		MaxFrameBytes: DefaultMaxFrameBytes,
		LogLevel:      string(logging.LevelInfo),
	}
}

// Load returns defaults overlaid with the YAML file at path. A missing file
// is only an error when required is set.
func Load(path string, required bool) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	payload, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := decodeYAML(payload, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func decodeYAML(payload []byte, cfg *Config) error {
	decoder := yaml.NewDecoder(bytes.NewReader(payload))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv overlays FILERELAY_* variables found through lookup.
func (cfg *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	value := func(key string) (string, bool) {
		raw, ok := lookup(key)
		raw = strings.TrimSpace(raw)
		return raw, ok && raw != ""
	}

	if raw, ok := value("FILERELAY_ROOT"); ok {
		cfg.Root = raw
	}
	if raw, ok := value("FILERELAY_LISTEN"); ok {
		cfg.Listen = raw
	}
	if raw, ok := value("FILERELAY_TRANSPORT"); ok {
		cfg.Transport = Transport(strings.ToLower(raw))
	}
	if raw, ok := value("FILERELAY_LOG_LEVEL"); ok {
		cfg.LogLevel = raw
	}
	if raw, ok := value("FILERELAY_QUEUE_SIZE"); ok {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("FILERELAY_QUEUE_SIZE: %w", err)
		}
		cfg.QueueSize = parsed
	}
	if raw, ok := value("FILERELAY_POLL_TIMEOUT"); ok {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("FILERELAY_POLL_TIMEOUT: %w", err)
		}
		cfg.PollTimeout = parsed
	}
	if raw, ok := value("FILERELAY_MAX_FRAME_BYTES"); ok {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("FILERELAY_MAX_FRAME_BYTES: %w", err)
		}
		cfg.MaxFrameBytes = parsed
	}
	if raw, ok := value("FILERELAY_ALLOWED_ORIGINS"); ok {
		cfg.AllowedOrigins = splitList(raw)
	}
	if raw, ok := value("FILERELAY_IGNORE"); ok {
		cfg.Ignore = splitList(raw)
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func (cfg Config) Validate() error {
	var errs []error
	switch cfg.Transport {
	case TransportWebSocket, TransportHTTP:
	default:
		errs = append(errs, fmt.Errorf("transport must be %q or %q, got %q", TransportWebSocket, TransportHTTP, cfg.Transport))
	}
	if _, _, err := net.SplitHostPort(cfg.Listen); err != nil {
		errs = append(errs, fmt.Errorf("listen: %w", err))
	}
	if cfg.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("queue_size must be positive, got %d", cfg.QueueSize))
	}
	if cfg.PollTimeout <= 0 {
		errs = append(errs, fmt.Errorf("poll_timeout must be positive, got %s", cfg.PollTimeout))
	}
	if cfg.MaxFrameBytes <= 0 {
		errs = append(errs, fmt.Errorf("max_frame_bytes must be positive, got %d", cfg.MaxFrameBytes))
	}
	if _, ok := logging.ParseLevel(cfg.LogLevel); !ok {
		errs = append(errs, fmt.Errorf("unknown log_level %q", cfg.LogLevel))
	}
	return errors.Join(errs...)
}

// Level returns the parsed log level, defaulting to info.
func (cfg Config) Level() logging.Level {
	level, ok := logging.ParseLevel(cfg.LogLevel)
	if !ok {
		return logging.LevelInfo
	}
	return level
}
