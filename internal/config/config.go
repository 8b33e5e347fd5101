// Package config loads program configuration from YAML or TOML files with
// environment overrides.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rupor-github/gencfg"
	"go.uber.org/multierr"
	yaml "gopkg.in/yaml.v3"

	"respbg/srcset"
)

// Environment overrides, applied after the configuration file.
const (
	EnvListen   = "RESPBG_LISTEN"
	EnvSelector = "RESPBG_SELECTOR"
	EnvInterval = "RESPBG_INTERVAL"
	EnvSitesDir = "RESPBG_SITES_DIR"
	EnvLogLevel = "RESPBG_LOG_LEVEL"
	EnvBrowser  = "RESPBG_BROWSER"
)

type (
	ViewportConfig struct {
		Width      float64 `yaml:"width" toml:"width" validate:"gt=0"`
		PixelRatio float64 `yaml:"pixel_ratio" toml:"pixel_ratio" validate:"gte=0"`
	}

	BrowserConfig struct {
		Enabled         bool   `yaml:"enabled" toml:"enabled"`
		TimeoutMS       int    `yaml:"timeout_ms" toml:"timeout_ms" validate:"gte=0"`
		WaitAfterLoadMS int    `yaml:"wait_after_load_ms" toml:"wait_after_load_ms" validate:"gte=0"`
		WaitSelector    string `yaml:"wait_selector,omitempty" toml:"wait_selector"`
	}

	Config struct {
		Listen string `yaml:"listen" toml:"listen" validate:"required"`
		// Selector is the data attribute suffix of managed elements.
		Selector string `yaml:"selector" toml:"selector" validate:"required"`
		// Interval is the resize debounce wait in milliseconds.
		Interval          int            `yaml:"interval" toml:"interval" validate:"gte=0"`
		SitesDir          string         `yaml:"sites_dir" toml:"sites_dir" sanitize:"path_clean"`
		SessionTTLMinutes int            `yaml:"session_ttl_minutes" toml:"session_ttl_minutes" validate:"gte=0"`
		Viewport          ViewportConfig `yaml:"viewport" toml:"viewport"`
		Browser           BrowserConfig  `yaml:"browser" toml:"browser"`
		Logging           LoggingConfig  `yaml:"logging" toml:"logging"`
	}
)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Listen:            ":8081",
		Selector:          srcset.DefaultSelector,
		Interval:          int(srcset.DefaultInterval / time.Millisecond),
		SitesDir:          "config/sites",
		SessionTTLMinutes: 30,
		Viewport:          ViewportConfig{Width: 1280, PixelRatio: 1},
		Browser:           BrowserConfig{TimeoutMS: 25000},
		Logging:           LoggingConfig{Level: "normal"},
	}
}

// Srcset converts the selection options into a srcset.Config.
func (c *Config) Srcset() srcset.Config {
	return srcset.Config{
		Selector: c.Selector,
		Interval: time.Duration(c.Interval) * time.Millisecond,
	}
}

func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}

// Load reads path (YAML or TOML by extension) on top of the defaults, then
// applies environment overrides and validates the result. An empty path
// yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".toml":
			err = decodeTOML(data, cfg)
		case ".yaml", ".yml", "":
			err = decodeYAML(data, cfg)
		default:
			err = fmt.Errorf("unsupported config format %q", filepath.Ext(path))
		}
		if err != nil {
			return nil, fmt.Errorf("failed to process configuration file: %w", err)
		}
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := gencfg.Sanitize(cfg); err != nil {
		return nil, fmt.Errorf("failed to sanitize configuration: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeYAML(data []byte, cfg *Config) error {
	// Only fields we defined are accepted.
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("failed to decode yaml: %w", err)
	}
	return nil
}

func decodeTOML(data []byte, cfg *Config) error {
	meta, err := toml.Decode(string(data), cfg)
	if err != nil {
		return fmt.Errorf("failed to decode toml: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown toml keys: %s", strings.Join(keys, ", "))
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if v := strings.TrimSpace(os.Getenv(EnvListen)); v != "" {
		cfg.Listen = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvSelector)); v != "" {
		cfg.Selector = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvInterval)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvInterval, err)
		}
		cfg.Interval = n
	}
	if v := strings.TrimSpace(os.Getenv(EnvSitesDir)); v != "" {
		cfg.SitesDir = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvBrowser)); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvBrowser, err)
		}
		cfg.Browser.Enabled = b
	}
	return nil
}

var selectorRe = regexp.MustCompile(`^[a-z_][a-z0-9_.-]*$`)

// Validate checks struct constraints and the selector syntax.
func Validate(cfg *Config) error {
	var err error
	if verr := gencfg.Validate(cfg); verr != nil {
		err = multierr.Append(err, fmt.Errorf("invalid configuration: %w", verr))
	}
	if cfg.Selector != "" && !selectorRe.MatchString(cfg.Selector) {
		err = multierr.Append(err, fmt.Errorf("selector %q is not a valid attribute name suffix", cfg.Selector))
	}
	return err
}

// Dump serializes cfg as YAML.
func Dump(cfg *Config) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("failed to encode configuration: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
