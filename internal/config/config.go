package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/dshills/flsverify/internal/standard"
)

// Config represents the flsverify configuration.
type Config struct {
	Root                string      `json:"root"`
	Standard            string      `json:"standard"`
	Format              string      `json:"format"`
	SystematicThreshold int         `json:"systematicThreshold"`
	DecisionGlob        string      `json:"decisionGlob"`
	LogLevel            string      `json:"logLevel"`
	Cache               CacheConfig `json:"cache"`
}

// CacheConfig controls caching of the FLS index.
type CacheConfig struct {
	Enabled    bool   `json:"enabled"`
	Dir        string `json:"dir,omitempty"`
	TTLSeconds int    `json:"ttlSeconds"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Root:                ".",
		Standard:            "misra-c",
		Format:              "text",
		SystematicThreshold: 2,
		DecisionGlob:        "*.json",
		LogLevel:            "warn",
		Cache: CacheConfig{
			Enabled:    true,
			TTLSeconds: 7 * 86400,
		},
	}
}

// Validate checks values that would otherwise fail deep inside a command.
func (c Config) Validate() error {
	if _, err := standard.Parse(c.Standard); err != nil {
		return err
	}
	switch c.Format {
	case "text", "json", "markdown":
	default:
		return fmt.Errorf("invalid format %q: must be text, json or markdown", c.Format)
	}
	if c.SystematicThreshold < 1 {
		return fmt.Errorf("systematicThreshold must be at least 1, got %d", c.SystematicThreshold)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Layout resolves the artifact layout of the configured standard.
func (c Config) Layout() (standard.Layout, error) {
	std, err := standard.Parse(c.Standard)
	if err != nil {
		return standard.Layout{}, err
	}
	root, err := filepath.Abs(c.Root)
	if err != nil {
		return standard.Layout{}, fmt.Errorf("resolving root %s: %w", c.Root, err)
	}
	return standard.NewLayout(root, std), nil
}

// ParseLevel maps a level name onto a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("invalid log level %q: must be debug, info, warn or error", s)
}

// ConfigDir returns the platform-appropriate config directory for flsverify.
func ConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "flsverify"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "flsverify"), nil
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "flsverify"), nil
		}
		return filepath.Join(home, "AppData", "Roaming", "flsverify"), nil
	default:
		return filepath.Join(home, ".config", "flsverify"), nil
	}
}

// ConfigPath returns the full path to the config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// fileConfig is the on-disk shape. cache.enabled is a pointer so an
// explicit false can be told apart from an absent key.
type fileConfig struct {
	Root                string `json:"root"`
	Standard            string `json:"standard"`
	Format              string `json:"format"`
	SystematicThreshold int    `json:"systematicThreshold"`
	DecisionGlob        string `json:"decisionGlob"`
	LogLevel            string `json:"logLevel"`
	Cache               struct {
		Enabled    *bool  `json:"enabled"`
		Dir        string `json:"dir"`
		TTLSeconds int    `json:"ttlSeconds"`
	} `json:"cache"`
}

// loadFile loads config from the config file. A missing file yields a zero
// fileConfig and nil error.
func loadFile() (fileConfig, error) {
	path, err := ConfigPath()
	if err != nil {
		return fileConfig{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fileConfig{}, nil
		}
		return fileConfig{}, fmt.Errorf("reading config file: %w", err)
	}
	var cfg fileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return fileConfig{}, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// LoadFile returns the defaults overlaid with the config file only. The
// environment is ignored so that editing the file does not persist it.
func LoadFile() (Config, error) {
	cfg := Default()
	f, err := loadFile()
	if err != nil {
		return Config{}, err
	}
	mergeFile(&cfg, f)
	return cfg, nil
}

// Save writes the config to the config file.
func Save(cfg Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// Load builds the effective config by merging: defaults <- file <- env <- overrides.
// The overrides map comes from CLI flags (only non-zero values should be set).
func Load(overrides map[string]string) (Config, error) {
	cfg := Default()

	fileCfg, err := loadFile()
	if err != nil {
		return Config{}, err
	}
	mergeFile(&cfg, fileCfg)
	if err := mergeEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := mergeOverrides(&cfg, overrides); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func mergeFile(dst *Config, src fileConfig) {
	if src.Root != "" {
		dst.Root = src.Root
	}
	if src.Standard != "" {
		dst.Standard = src.Standard
	}
	if src.Format != "" {
		dst.Format = src.Format
	}
	if src.SystematicThreshold > 0 {
		dst.SystematicThreshold = src.SystematicThreshold
	}
	if src.DecisionGlob != "" {
		dst.DecisionGlob = src.DecisionGlob
	}
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}
	if src.Cache.Enabled != nil {
		dst.Cache.Enabled = *src.Cache.Enabled
	}
	if src.Cache.Dir != "" {
		dst.Cache.Dir = src.Cache.Dir
	}
	if src.Cache.TTLSeconds > 0 {
		dst.Cache.TTLSeconds = src.Cache.TTLSeconds
	}
}

func mergeEnv(cfg *Config) error {
	if v := os.Getenv("FLSVERIFY_ROOT"); v != "" {
		cfg.Root = v
	}
	if v := os.Getenv("FLSVERIFY_STANDARD"); v != "" {
		cfg.Standard = v
	}
	if v := os.Getenv("FLSVERIFY_FORMAT"); v != "" {
		cfg.Format = v
	}
	if v := os.Getenv("FLSVERIFY_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("FLSVERIFY_SYSTEMATIC_THRESHOLD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FLSVERIFY_SYSTEMATIC_THRESHOLD must be an integer: %w", err)
		}
		cfg.SystematicThreshold = n
	}
	return nil
}

func mergeOverrides(cfg *Config, overrides map[string]string) error {
	for key, v := range overrides {
		if v == "" {
			continue
		}
		if err := SetField(cfg, key, v); err != nil {
			return err
		}
	}
	return nil
}

// Keys lists every key SetField accepts.
var Keys = []string{"root", "standard", "format", "systematicThreshold", "decisionGlob", "logLevel", "cache.enabled", "cache.dir", "cache.ttlSeconds"}

// SetField sets a single config field by key name. Returns error if key is unknown.
func SetField(cfg *Config, key, value string) error {
	switch key {
	case "root":
		cfg.Root = value
	case "standard":
		if _, err := standard.Parse(value); err != nil {
			return err
		}
		cfg.Standard = value
	case "format":
		cfg.Format = value
	case "systematicThreshold":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("systematicThreshold must be an integer: %w", err)
		}
		cfg.SystematicThreshold = n
	case "decisionGlob":
		cfg.DecisionGlob = value
	case "logLevel":
		cfg.LogLevel = value
	case "cache.enabled":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("cache.enabled must be true or false: %w", err)
		}
		cfg.Cache.Enabled = b
	case "cache.dir":
		cfg.Cache.Dir = value
	case "cache.ttlSeconds":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("cache.ttlSeconds must be an integer: %w", err)
		}
		cfg.Cache.TTLSeconds = n
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	return nil
}
