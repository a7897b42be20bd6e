// Package config loads riptide's process configuration from YAML, TOML or
// JSON files.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"

	"github.com/watt-toolkit/riptide/middleware"
	"github.com/watt-toolkit/riptide/pkg/riptide/http11"
	"github.com/watt-toolkit/riptide/pkg/riptide/server"
)

// Transports accepted in ServerConfig.Transport.
const (
	TransportGoroutine = "goroutine"
	TransportEvloop    = "evloop"
)

var (
	// ErrUnsupportedFormat is returned for a config file extension other
	// than .yaml, .yml, .toml or .json.
	ErrUnsupportedFormat = errors.New("config: unsupported file format")

	// ErrInvalid wraps validation failures.
	ErrInvalid = errors.New("config: invalid configuration")
)

// Config is the complete process configuration.
type Config struct {
	Server     ServerConfig             `json:"server" yaml:"server" toml:"server"`
	Log        LogConfig                `json:"log" yaml:"log" toml:"log"`
	Metrics    MetricsConfig            `json:"metrics" yaml:"metrics" toml:"metrics"`
	Files      FilesConfig              `json:"files" yaml:"files" toml:"files"`
	Middleware middleware.Configuration `json:"middleware" yaml:"middleware" toml:"middleware"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host string `json:"host" yaml:"host" toml:"host"`
	Port int    `json:"port" yaml:"port" toml:"port" validate:"gte=0,lte=65535"`

	// Transport is goroutine (one goroutine per connection) or evloop.
	Transport string `json:"transport" yaml:"transport" toml:"transport" validate:"oneof=goroutine evloop"`

	IdleTimeoutMs      int `json:"idleTimeoutMs" yaml:"idleTimeoutMs" toml:"idleTimeoutMs" validate:"gte=0"`
	ShutdownTimeoutMs  int `json:"shutdownTimeoutMs" yaml:"shutdownTimeoutMs" toml:"shutdownTimeoutMs" validate:"gt=0"`
	ReadBufferSize     int `json:"readBufferSize" yaml:"readBufferSize" toml:"readBufferSize" validate:"gt=0"`
	MaxHeaderBytes     int `json:"maxHeaderBytes" yaml:"maxHeaderBytes" toml:"maxHeaderBytes" validate:"gt=0"`
	MaxBodyBytes       int `json:"maxBodyBytes" yaml:"maxBodyBytes" toml:"maxBodyBytes" validate:"gt=0"`
	MaxRequestsPerConn int `json:"maxRequestsPerConn" yaml:"maxRequestsPerConn" toml:"maxRequestsPerConn" validate:"gte=0"`
	MaxConnections     int `json:"maxConnections" yaml:"maxConnections" toml:"maxConnections" validate:"gte=0"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `json:"level" yaml:"level" toml:"level" validate:"oneof=debug info warn error"`
	Format string `json:"format" yaml:"format" toml:"format" validate:"oneof=json console"`
}

// MetricsConfig configures the Prometheus admin endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled" toml:"enabled"`
	Addr    string `json:"addr" yaml:"addr" toml:"addr" validate:"required_if=Enabled true"`
}

// FilesConfig configures the /files routes.
type FilesConfig struct {
	// Directory is served by /files/{filename}. Empty disables the routes.
	Directory string `json:"directory" yaml:"directory" toml:"directory"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Default returns the configuration used when no file is given.
func Default() Config {
	srv := server.DefaultConfig()
	return Config{
		Server: ServerConfig{
			Host:              "localhost",
			Port:              4221,
			Transport:         TransportGoroutine,
			IdleTimeoutMs:     int(srv.IdleTimeout / time.Millisecond),
			ShutdownTimeoutMs: 30000,
			ReadBufferSize:    srv.ReadBufferSize,
			MaxHeaderBytes:    http11.DefaultMaxHeaderBytes,
			MaxBodyBytes:      http11.DefaultMaxBodyBytes,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Addr: "localhost:9090",
		},
		Middleware: middleware.Configuration{
			Global: middleware.GlobalConfig{
				ErrorHandling:      middleware.PolicyContinue,
				MaxExecutionTimeMs: int(middleware.DefaultMaxExecutionTime / time.Millisecond),
			},
			Middlewares: map[string]middleware.Entry{
				"recovery": {Enabled: true},
				"logger":   {Enabled: true},
			},
		},
	}
}

// Load reads path over Default and validates the result. The format
// follows the extension: .yaml/.yml, .toml or .json.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := Unmarshal(formatOf(path), data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func formatOf(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}

// Unmarshal decodes data in the named format (yaml, yml, toml or json)
// into cfg. Fields absent from data keep their current values.
func Unmarshal(format string, data []byte, cfg *Config) error {
	switch format {
	case "yaml", "yml":
		return yaml.Unmarshal(data, cfg)
	case "toml":
		return toml.Unmarshal(data, cfg)
	case "json":
		return json.Unmarshal(data, cfg)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	for name, entry := range c.Middleware.Middlewares {
		if entry.Group != "" && !entry.Group.Valid() {
			return fmt.Errorf("%w: middleware %s: unknown group %q", ErrInvalid, name, entry.Group)
		}
	}
	return nil
}

// Addr returns the listen address host:port.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// Server translates the listener settings for server.New.
func (s ServerConfig) Server() server.Config {
	cfg := server.DefaultConfig()
	cfg.Addr = s.Addr()
	cfg.IdleTimeout = time.Duration(s.IdleTimeoutMs) * time.Millisecond
	cfg.ReadBufferSize = s.ReadBufferSize
	cfg.MaxHeaderBytes = s.MaxHeaderBytes
	cfg.MaxBodyBytes = s.MaxBodyBytes
	cfg.MaxKeepAliveRequests = s.MaxRequestsPerConn
	cfg.MaxConcurrentConnections = s.MaxConnections
	return cfg
}

// ShutdownTimeout returns the graceful shutdown deadline.
func (s ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(s.ShutdownTimeoutMs) * time.Millisecond
}
