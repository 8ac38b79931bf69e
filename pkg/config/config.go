package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const envPrefix = "TELEMETRY_"

type Config struct {
	BackendURL string `yaml:"backend_url"`
	Mode       string `yaml:"mode"`

	StreamPath            string        `yaml:"stream_path"`
	ReconnectInitialDelay time.Duration `yaml:"reconnect_initial_delay"`
	ReconnectMaxDelay     time.Duration `yaml:"reconnect_max_delay"`

	ConditionsPath     string        `yaml:"conditions_path"`
	ConditionsInterval time.Duration `yaml:"conditions_interval"`

	MetadataPath     string        `yaml:"metadata_path"`
	ImagePath        string        `yaml:"image_path"`
	MetadataInterval time.Duration `yaml:"metadata_interval"`

	TickInterval       time.Duration `yaml:"tick_interval"`
	StalenessTolerance time.Duration `yaml:"staleness_tolerance"`

	SiteTimezone string `yaml:"site_timezone"`
	SiteName     string `yaml:"site_name"`

	ListenAddress   string   `yaml:"listen_address"`
	AllowAllOrigins bool     `yaml:"allow_all_origins"`
	AllowedOrigins  []string `yaml:"allowed_origins"`
	DeniedOrigins   []string `yaml:"denied_origins"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

func Default() Config {
	return Config{
		BackendURL: "http://localhost:8000",
		Mode:       "stream",

		StreamPath:            "/ws/camera-feed",
		ReconnectInitialDelay: time.Second,
		ReconnectMaxDelay:     30 * time.Second,

		ConditionsPath:     "/api/observation-conditions",
		ConditionsInterval: 30 * time.Second,

		MetadataPath:     "/api/latest-shot-metadata",
		ImagePath:        "/api/latest-shot",
		MetadataInterval: time.Second,

		TickInterval:       time.Second,
		StalenessTolerance: 3 * time.Second,

		SiteTimezone: "Asia/Irkutsk",
		SiteName:     "Irkutsk",

		ListenAddress: ":8080",

		LogLevel:  "info",
		LogFormat: "json",
	}
}

// LoadDotEnv reads .env files into the environment. A missing file is not an
// error; with no paths, ".env" is used.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

// Load builds the configuration from defaults, then TELEMETRY_* environment
// variables, then the YAML file at path (if path is non-empty, otherwise
// TELEMETRY_CONFIG). Call LoadDotEnv first to pick up a .env file.
func Load(path string) (Config, error) {
	cfg := Default()
	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}

	if path == "" {
		path = os.Getenv(envPrefix + "CONFIG")
	}
	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	var errs []error

	c.BackendURL = GetEnv(envPrefix+"BACKEND_URL", c.BackendURL)
	c.Mode = GetEnv(envPrefix+"MODE", c.Mode)
	c.StreamPath = GetEnv(envPrefix+"STREAM_PATH", c.StreamPath)
	c.ConditionsPath = GetEnv(envPrefix+"CONDITIONS_PATH", c.ConditionsPath)
	c.MetadataPath = GetEnv(envPrefix+"METADATA_PATH", c.MetadataPath)
	c.ImagePath = GetEnv(envPrefix+"IMAGE_PATH", c.ImagePath)
	c.SiteTimezone = GetEnv(envPrefix+"SITE_TIMEZONE", c.SiteTimezone)
	c.SiteName = GetEnv(envPrefix+"SITE_NAME", c.SiteName)
	c.ListenAddress = GetEnv(envPrefix+"LISTEN_ADDRESS", c.ListenAddress)
	c.AllowedOrigins = GetEnvList(envPrefix+"ALLOWED_ORIGINS", c.AllowedOrigins)
	c.DeniedOrigins = GetEnvList(envPrefix+"DENIED_ORIGINS", c.DeniedOrigins)
	c.LogLevel = GetEnv(envPrefix+"LOG_LEVEL", c.LogLevel)
	c.LogFormat = GetEnv(envPrefix+"LOG_FORMAT", c.LogFormat)

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"RECONNECT_INITIAL_DELAY", &c.ReconnectInitialDelay},
		{"RECONNECT_MAX_DELAY", &c.ReconnectMaxDelay},
		{"CONDITIONS_INTERVAL", &c.ConditionsInterval},
		{"METADATA_INTERVAL", &c.MetadataInterval},
		{"TICK_INTERVAL", &c.TickInterval},
		{"STALENESS_TOLERANCE", &c.StalenessTolerance},
	}
	for _, d := range durations {
		v, err := GetEnvDuration(envPrefix+d.key, *d.dst)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		*d.dst = v
	}

	allowAll, err := GetEnvBool(envPrefix+"ALLOW_ALL_ORIGINS", c.AllowAllOrigins)
	if err != nil {
		errs = append(errs, err)
	}
	c.AllowAllOrigins = allowAll

	return errors.Join(errs...)
}

// Validate reports every problem at once; any of them stops startup.
func (c Config) Validate() error {
	var errs []error

	u, err := url.Parse(c.BackendURL)
	if err != nil {
		errs = append(errs, fmt.Errorf("backend_url: %w", err))
	} else if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("backend_url must be an absolute http(s) URL, got %q", c.BackendURL))
	}

	if c.Mode != "stream" && c.Mode != "poll" {
		errs = append(errs, fmt.Errorf("mode must be \"stream\" or \"poll\", got %q", c.Mode))
	}

	positive := map[string]time.Duration{
		"reconnect_initial_delay": c.ReconnectInitialDelay,
		"reconnect_max_delay":     c.ReconnectMaxDelay,
		"conditions_interval":     c.ConditionsInterval,
		"metadata_interval":       c.MetadataInterval,
		"tick_interval":           c.TickInterval,
	}
	for name, d := range positive {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	if c.StalenessTolerance < 0 {
		errs = append(errs, fmt.Errorf("staleness_tolerance must not be negative, got %s", c.StalenessTolerance))
	}
	if c.ReconnectMaxDelay < c.ReconnectInitialDelay {
		errs = append(errs, errors.New("reconnect_max_delay must not be below reconnect_initial_delay"))
	}

	if _, err := time.LoadLocation(c.SiteTimezone); err != nil {
		errs = append(errs, fmt.Errorf("site_timezone: %w", err))
	}

	if c.ListenAddress == "" {
		errs = append(errs, errors.New("listen_address is required"))
	}

	return errors.Join(errs...)
}

func (c Config) endpoint(path string) string {
	return strings.TrimRight(c.BackendURL, "/") + "/" + strings.TrimLeft(path, "/")
}

// StreamURL is the camera feed websocket URL, derived from the backend URL.
func (c Config) StreamURL() string {
	u := c.endpoint(c.StreamPath)
	switch {
	case strings.HasPrefix(u, "https://"):
		return "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		return "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u
}

func (c Config) ConditionsURL() string { return c.endpoint(c.ConditionsPath) }
func (c Config) MetadataURL() string   { return c.endpoint(c.MetadataPath) }
func (c Config) ImageURL() string      { return c.endpoint(c.ImagePath) }

func (c Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.SiteTimezone)
}

// GetEnv returns the value of the environment variable named by key, or
// fallback if the variable is unset or empty.
func GetEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

func GetEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func GetEnvBool(key string, fallback bool) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

// GetEnvList splits a comma separated variable, dropping empty items.
func GetEnvList(key string, fallback []string) []string {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
