// Package config loads scanvault settings from TOML, .env, and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/adrg/xdg"
	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"

	"scanvault/internal/capacity"
)

const (
	DefaultLogLevel        = "info"
	LogFormatText          = "text"
	LogFormatJSON          = "json"
	DefaultLogFormat       = LogFormatText
	DefaultJournalFileName = "journal.db"
	appDirName             = "scanvault"
	configFileName         = ".scanvault.toml"

	configDirEnvKey = "SCANVAULT_CONFIG_DIR"
)

// StoreConfig holds the ceiling and overflow policy of one store.
type StoreConfig struct {
	CeilingBytes int64  `toml:"ceiling_bytes"`
	Overflow     string `toml:"overflow"`
}

// Config defines runtime configuration for scanvault.
type Config struct {
	AppDir      string      `toml:"app_dir"`
	LogLevel    string      `toml:"log_level"`
	LogFormat   string      `toml:"log_format"`
	JournalPath string      `toml:"journal_path"`
	Images      StoreConfig `toml:"images"`
	Scans       StoreConfig `toml:"scans"`
	SourcePath  string      `toml:"-"`
}

// envOverrides mirrors the SCANVAULT_* variables. Zero values mean unset.
// SCANVAULT_LOG_LEVEL and SCANVAULT_LOG_FORMAT are read by the CLI logger
// setup so it can report which source supplied an invalid value.
type envOverrides struct {
	AppDir         string `env:"SCANVAULT_APP_DIR"`
	JournalPath    string `env:"SCANVAULT_JOURNAL_PATH"`
	ImagesCeiling  int64  `env:"SCANVAULT_IMAGES_CEILING_BYTES"`
	ScansCeiling   int64  `env:"SCANVAULT_SCANS_CEILING_BYTES"`
	ImagesOverflow string `env:"SCANVAULT_IMAGES_OVERFLOW"`
	ScansOverflow  string `env:"SCANVAULT_SCANS_OVERFLOW"`
}

// Default returns default configuration values.
func Default() Config {
	return Config{
		AppDir:    filepath.Join(xdg.DataHome, appDirName),
		LogLevel:  DefaultLogLevel,
		LogFormat: DefaultLogFormat,
		Images: StoreConfig{
			CeilingBytes: capacity.DefaultCeiling,
			Overflow:     string(capacity.PolicyReject),
		},
		Scans: StoreConfig{
			CeilingBytes: capacity.DefaultCeiling,
			Overflow:     string(capacity.PolicyEvictOldest),
		},
	}
}

func loadFile(path string, cfg *Config) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if info.IsDir() {
		return false, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return false, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return true, nil
}

// Path returns the config file location: $SCANVAULT_CONFIG_DIR/.scanvault.toml
// when set, otherwise ~/.scanvault.toml.
func Path() (string, error) {
	if dir := strings.TrimSpace(os.Getenv(configDirEnvKey)); dir != "" {
		return filepath.Join(dir, configFileName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, configFileName), nil
}

// Load reads .env, the config file, and SCANVAULT_* env overrides, in that
// order of increasing precedence. Real environment variables win over .env.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("ignoring .env file", "error", err)
	}

	cfg := Default()

	path, err := Path()
	if err != nil {
		return nil, err
	}
	loaded, err := loadFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	if loaded {
		cfg.SourcePath = path
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	if o.AppDir != "" {
		c.AppDir = o.AppDir
	}
	if o.JournalPath != "" {
		c.JournalPath = o.JournalPath
	}
	if o.ImagesCeiling > 0 {
		c.Images.CeilingBytes = o.ImagesCeiling
	}
	if o.ScansCeiling > 0 {
		c.Scans.CeilingBytes = o.ScansCeiling
	}
	if o.ImagesOverflow != "" {
		c.Images.Overflow = o.ImagesOverflow
	}
	if o.ScansOverflow != "" {
		c.Scans.Overflow = o.ScansOverflow
	}
	return nil
}

func (c *Config) normalize() {
	defaults := Default()
	c.AppDir = strings.TrimSpace(c.AppDir)
	if c.AppDir == "" {
		c.AppDir = defaults.AppDir
	}
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = DefaultLogLevel
	}
	if strings.TrimSpace(c.LogFormat) == "" {
		c.LogFormat = DefaultLogFormat
	}
	if c.Images.CeilingBytes <= 0 {
		c.Images.CeilingBytes = defaults.Images.CeilingBytes
	}
	if c.Scans.CeilingBytes <= 0 {
		c.Scans.CeilingBytes = defaults.Scans.CeilingBytes
	}
	if strings.TrimSpace(c.Images.Overflow) == "" {
		c.Images.Overflow = defaults.Images.Overflow
	}
	if strings.TrimSpace(c.Scans.Overflow) == "" {
		c.Scans.Overflow = defaults.Scans.Overflow
	}
}

// Validate checks the overflow policies.
func (c *Config) Validate() error {
	if _, err := capacity.ParsePolicy(c.Images.Overflow); err != nil {
		return fmt.Errorf("images.overflow: %w", err)
	}
	if _, err := capacity.ParsePolicy(c.Scans.Overflow); err != nil {
		return fmt.Errorf("scans.overflow: %w", err)
	}
	return nil
}

// ParseLogFormat normalizes a log handler name. Empty means text.
func ParseLogFormat(raw string) (string, error) {
	switch value := strings.ToLower(strings.TrimSpace(raw)); value {
	case "":
		return DefaultLogFormat, nil
	case LogFormatText, LogFormatJSON:
		return value, nil
	default:
		return "", fmt.Errorf("invalid log format %q (expected text or json)", raw)
	}
}

// ImagesPolicy returns the parsed image overflow policy.
func (c *Config) ImagesPolicy() capacity.Policy {
	p, err := capacity.ParsePolicy(c.Images.Overflow)
	if err != nil {
		return capacity.PolicyReject
	}
	return p
}

// ScansPolicy returns the parsed scan overflow policy.
func (c *Config) ScansPolicy() capacity.Policy {
	p, err := capacity.ParsePolicy(c.Scans.Overflow)
	if err != nil {
		return capacity.PolicyEvictOldest
	}
	return p
}

// ResolvedJournalPath returns journal_path, or <app_dir>/journal.db.
func (c *Config) ResolvedJournalPath() string {
	if p := strings.TrimSpace(c.JournalPath); p != "" {
		return p
	}
	return filepath.Join(c.AppDir, DefaultJournalFileName)
}

var allowedKeys = []string{
	"app_dir",
	"log_level",
	"log_format",
	"journal_path",
	"images.ceiling_bytes",
	"images.overflow",
	"scans.ceiling_bytes",
	"scans.overflow",
}

// AllowedKeys returns the set of valid config keys.
func AllowedKeys() []string {
	return allowedKeys
}

// IsAllowedKey checks if a key is a valid config key.
func IsAllowedKey(key string) bool {
	for _, k := range allowedKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Get returns the value of a config key.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "app_dir":
		return c.AppDir, nil
	case "log_level":
		return c.LogLevel, nil
	case "log_format":
		return c.LogFormat, nil
	case "journal_path":
		return c.ResolvedJournalPath(), nil
	case "images.ceiling_bytes":
		return strconv.FormatInt(c.Images.CeilingBytes, 10), nil
	case "images.overflow":
		return c.Images.Overflow, nil
	case "scans.ceiling_bytes":
		return strconv.FormatInt(c.Scans.CeilingBytes, 10), nil
	case "scans.overflow":
		return c.Scans.Overflow, nil
	default:
		return "", fmt.Errorf("unknown key: %s", key)
	}
}

// SetKey reads the TOML file at path, sets key=value, and writes it back.
func SetKey(path, key, value string) error {
	if !IsAllowedKey(key) {
		return fmt.Errorf("unknown key: %s", key)
	}

	data := make(map[string]any)
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &data); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}

	parsedValue, err := parseSetValue(key, value)
	if err != nil {
		return err
	}
	if err := setNestedKey(data, strings.Split(key, "."), parsedValue); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(data)
}

func parseSetValue(key, value string) (any, error) {
	value = strings.TrimSpace(value)
	switch key {
	case "images.ceiling_bytes", "scans.ceiling_bytes":
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return parsed, nil
	case "log_format":
		return ParseLogFormat(value)
	case "images.overflow", "scans.overflow":
		policy, err := capacity.ParsePolicy(value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		return string(policy), nil
	default:
		return value, nil
	}
}

func setNestedKey(data map[string]any, parts []string, value any) error {
	if len(parts) == 0 {
		return fmt.Errorf("invalid config key")
	}
	if len(parts) == 1 {
		data[parts[0]] = value
		return nil
	}
	childRaw, ok := data[parts[0]]
	if !ok {
		child := map[string]any{}
		data[parts[0]] = child
		return setNestedKey(child, parts[1:], value)
	}
	child, ok := childRaw.(map[string]any)
	if !ok {
		return fmt.Errorf("cannot set nested key %q", strings.Join(parts, "."))
	}
	return setNestedKey(child, parts[1:], value)
}
