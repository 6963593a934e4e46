package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Log       LogConfig       `koanf:"log"`
	API       APIConfig       `koanf:"api"`
	Directory DirectoryConfig `koanf:"directory"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host       string     `koanf:"host"`
	Port       int        `koanf:"port"`
	Mode       string     `koanf:"mode"`
	CSRFSecret string     `koanf:"csrf_secret"`
	CORS       CORSConfig `koanf:"cors"`
}

// CORSConfig lists the origins allowed to call the JSON API from a browser.
// An empty list disables cross-origin access.
type CORSConfig struct {
	AllowOrigins []string `koanf:"allow_origins"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level           string `koanf:"level"`
	Format          string `koanf:"format"`
	Color           *bool  `koanf:"color"`
	FilePath        string `koanf:"file_path"`
	MaxSizeMB       int    `koanf:"max_size_mb"`
	RetentionDays   int    `koanf:"retention_days"`
	MaxBackups      int    `koanf:"max_backups"`
	CompressRotated *bool  `koanf:"compress_rotated"`
}

// APIConfig describes the remote user API and the avatar pool.
type APIConfig struct {
	BaseURL       string `koanf:"base_url"`
	AvatarBaseURL string `koanf:"avatar_base_url"`
	Timeout       string `koanf:"timeout"`
}

// DirectoryConfig holds the timing policy of directory sessions.
type DirectoryConfig struct {
	LoadDelay  string `koanf:"load_delay"`
	CloseDelay string `koanf:"close_delay"`
	SessionTTL string `koanf:"session_ttl"`
	// MaxSessions caps live sessions; new visitors get 503 past it. Zero
	// disables the limit.
	MaxSessions int `koanf:"max_sessions"`
}

// defaults are loaded before the config file so a partial file is enough.
var defaults = map[string]any{
	"server.host":            "127.0.0.1",
	"server.port":            8080,
	"server.mode":            gin.ReleaseMode,
	"log.level":              "info",
	"log.format":             "text",
	"api.base_url":           "https://jsonplaceholder.typicode.com",
	"api.avatar_base_url":    "https://i.pravatar.cc/150?img=",
	"api.timeout":            "10s",
	"directory.load_delay":   "800ms",
	"directory.close_delay":  "300ms",
	"directory.session_ttl":  "30m",
	"directory.max_sessions": 1000,
}

// Load builds the configuration from built-in defaults, the YAML file at
// configPath (skipped when configPath is empty), and environment variables.
// Environment variables use the prefix "APP__" and double-underscore as the
// hierarchy separator, so APP__API__BASE_URL overrides api.base_url.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("APP__", ".", func(s string) string {
		key := strings.TrimPrefix(s, "APP__")
		key = strings.ToLower(key)
		return strings.ReplaceAll(key, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks supported values and normalizes whitespace.
func (c *Config) Validate() error {
	mode := strings.TrimSpace(c.Server.Mode)
	switch mode {
	case gin.DebugMode, gin.ReleaseMode, gin.TestMode:
		c.Server.Mode = mode
	default:
		return fmt.Errorf("invalid server.mode %q: must be one of %q, %q, %q", c.Server.Mode, gin.DebugMode, gin.ReleaseMode, gin.TestMode)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d: must be between 1 and 65535", c.Server.Port)
	}

	host := strings.TrimSpace(c.Server.Host)
	if host == "" {
		return fmt.Errorf("server.host is required")
	}
	c.Server.Host = host

	origins := make([]string, 0, len(c.Server.CORS.AllowOrigins))
	for _, o := range c.Server.CORS.AllowOrigins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "" {
			continue
		}
		if o == "*" {
			return fmt.Errorf("invalid server.cors.allow_origins entry %q: the API allows credentials, list origins explicitly", o)
		}
		if err := validateHTTPURL(o); err != nil {
			return fmt.Errorf("invalid server.cors.allow_origins entry %q: %w", o, err)
		}
		origins = append(origins, o)
	}
	c.Server.CORS.AllowOrigins = origins

	baseURL := strings.TrimRight(strings.TrimSpace(c.API.BaseURL), "/")
	if err := validateHTTPURL(baseURL); err != nil {
		return fmt.Errorf("invalid api.base_url %q: %w", c.API.BaseURL, err)
	}
	c.API.BaseURL = baseURL

	avatarURL := strings.TrimSpace(c.API.AvatarBaseURL)
	if err := validateHTTPURL(avatarURL); err != nil {
		return fmt.Errorf("invalid api.avatar_base_url %q: %w", c.API.AvatarBaseURL, err)
	}
	c.API.AvatarBaseURL = avatarURL

	durations := []struct {
		name      string
		value     *string
		allowZero bool
	}{
		{"api.timeout", &c.API.Timeout, false},
		{"directory.load_delay", &c.Directory.LoadDelay, true},
		{"directory.close_delay", &c.Directory.CloseDelay, true},
		{"directory.session_ttl", &c.Directory.SessionTTL, false},
	}
	for _, f := range durations {
		v := strings.TrimSpace(*f.value)
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", f.name, *f.value, err)
		}
		if d < 0 {
			return fmt.Errorf("invalid %s %q: must not be negative", f.name, *f.value)
		}
		if d == 0 && !f.allowZero {
			return fmt.Errorf("invalid %s %q: must be greater than 0", f.name, *f.value)
		}
		*f.value = v
	}

	if c.Directory.MaxSessions < 0 {
		return fmt.Errorf("invalid directory.max_sessions %d: must not be negative", c.Directory.MaxSessions)
	}

	level := strings.ToLower(strings.TrimSpace(c.Log.Level))
	switch level {
	case "debug", "info", "warn", "error":
		c.Log.Level = level
	default:
		return fmt.Errorf("invalid log.level %q: must be one of %q, %q, %q, %q", c.Log.Level, "debug", "info", "warn", "error")
	}

	format := strings.ToLower(strings.TrimSpace(c.Log.Format))
	switch format {
	case "text", "json":
		c.Log.Format = format
	default:
		return fmt.Errorf("invalid log.format %q: must be one of %q, %q", c.Log.Format, "text", "json")
	}

	return nil
}

// TimeoutDuration returns the request timeout. Call it on a validated config.
func (c APIConfig) TimeoutDuration() time.Duration {
	return parseValidated(c.Timeout)
}

// LoadDelayDuration returns the artificial pause before each directory load.
func (c DirectoryConfig) LoadDelayDuration() time.Duration {
	return parseValidated(c.LoadDelay)
}

// CloseDelayDuration returns how long a closed modal keeps its selection.
func (c DirectoryConfig) CloseDelayDuration() time.Duration {
	return parseValidated(c.CloseDelay)
}

// SessionTTLDuration returns the idle lifetime of a directory session.
func (c DirectoryConfig) SessionTTLDuration() time.Duration {
	return parseValidated(c.SessionTTL)
}

func parseValidated(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

func validateHTTPURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("must not be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}
