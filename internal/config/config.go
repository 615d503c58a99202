package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"
)

const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// Duration is a time.Duration written as "30s" in config files.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Config represents ~/.wppmcp/config.toml after the environment overlay.
type Config struct {
	StoreLocation   string   `toml:"store_location"`
	DeliveryBaseURL string   `toml:"delivery_base_url"`
	DeliveryToken   string   `toml:"delivery_token,omitempty"`
	DeliveryTimeout Duration `toml:"delivery_timeout"`
	Transport       string   `toml:"transport"`
	HTTPAddr        string   `toml:"http_addr"`
	HTTPPath        string   `toml:"http_path"`
	LogLevel        string   `toml:"log_level"`
	LogPath         string   `toml:"log_path"`
	HealthSocket    string   `toml:"health_socket"`
	ProbeInterval   Duration `toml:"probe_interval"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		StoreLocation:   StorePath(),
		DeliveryBaseURL: "http://127.0.0.1:8080",
		DeliveryTimeout: Duration{30 * time.Second},
		Transport:       TransportStdio,
		HTTPAddr:        "127.0.0.1:8000",
		HTTPPath:        "/mcp",
		LogLevel:        "info",
		LogPath:         LogPath(),
		HealthSocket:    SocketPath(),
		ProbeInterval:   Duration{15 * time.Second},
	}
}

// Load reads config from the given path on top of the defaults. Returns an
// error if the file is missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// Resolve builds the effective config: defaults, then the file at path if it
// exists, then dotenv (never overriding the real environment), then the
// environment. Flags are applied by the caller, which then calls Validate.
func Resolve(path, dotenv string) (*Config, error) {
	cfg := Default()
	if path != "" {
		loaded, err := Load(path)
		switch {
		case err == nil:
			cfg = loaded
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	fromFile := map[string]string{}
	if dotenv != "" {
		m, err := godotenv.Read(dotenv)
		switch {
		case err == nil:
			fromFile = m
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, fmt.Errorf("read %s: %w", dotenv, err)
		}
	}
	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := fromFile[key]
		return v, ok
	}
	if err := cfg.apply(lookup); err != nil {
		return nil, err
	}
	return cfg, nil
}

// apply overlays environment variables. Older WHATSAPP_MCP_* names are
// accepted; the WPPMCP_* name wins when both are set.
func (c *Config) apply(lookup func(string) (string, bool)) error {
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && strings.TrimSpace(v) != "" {
				*dst = strings.TrimSpace(v)
				return
			}
		}
	}
	dur := func(dst *Duration, key string) error {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		if err := dst.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		return nil
	}

	str(&c.StoreLocation, "WPPMCP_STORE")
	str(&c.DeliveryBaseURL, "WHATSAPP_BRIDGE_API_BASE_URL")
	str(&c.DeliveryToken, "WHATSAPP_BRIDGE_TOKEN")
	str(&c.Transport, "WPPMCP_TRANSPORT", "WHATSAPP_MCP_TRANSPORT")
	str(&c.HTTPPath, "WPPMCP_HTTP_PATH", "WHATSAPP_MCP_STREAMABLE_HTTP_PATH")
	str(&c.LogLevel, "WPPMCP_LOG_LEVEL")
	str(&c.LogPath, "WPPMCP_LOG_PATH")
	str(&c.HealthSocket, "WPPMCP_HEALTH_SOCKET")

	if v, ok := lookup("WPPMCP_HTTP_ADDR"); ok && strings.TrimSpace(v) != "" {
		c.HTTPAddr = strings.TrimSpace(v)
	} else {
		host, port := splitAddr(c.HTTPAddr)
		str(&host, "WHATSAPP_MCP_HOST")
		str(&port, "WHATSAPP_MCP_PORT")
		c.HTTPAddr = host + ":" + port
	}

	if err := dur(&c.DeliveryTimeout, "WPPMCP_DELIVERY_TIMEOUT"); err != nil {
		return err
	}
	return dur(&c.ProbeInterval, "WPPMCP_PROBE_INTERVAL")
}

func splitAddr(addr string) (string, string) {
	i := strings.LastIndex(addr, ":")
	if i < 0 {
		return addr, ""
	}
	return addr[:i], addr[i+1:]
}

// Validate checks the effective config.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.StoreLocation) == "" {
		return errors.New("store_location must be set")
	}
	u, err := url.Parse(c.DeliveryBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("delivery_base_url %q must be an http(s) URL", c.DeliveryBaseURL)
	}
	switch c.Transport {
	case TransportStdio, TransportHTTP:
	default:
		return fmt.Errorf("transport %q must be %s or %s", c.Transport, TransportStdio, TransportHTTP)
	}
	if c.Transport == TransportHTTP {
		if !strings.HasPrefix(c.HTTPPath, "/") {
			return fmt.Errorf("http_path %q must start with /", c.HTTPPath)
		}
		if host, port := splitAddr(c.HTTPAddr); host == "" || port == "" {
			return fmt.Errorf("http_addr %q must be host:port", c.HTTPAddr)
		}
	}
	if c.DeliveryTimeout.Duration <= 0 {
		return errors.New("delivery_timeout must be positive")
	}
	if c.ProbeInterval.Duration <= 0 {
		return errors.New("probe_interval must be positive")
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (zapcore.Level, error) {
	lvl, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return zapcore.InfoLevel, fmt.Errorf("log_level: %w", err)
	}
	return lvl, nil
}
