package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"scanvault/internal/config"
)

const (
	logLevelEnvKey  = "SCANVAULT_LOG_LEVEL"
	logFormatEnvKey = "SCANVAULT_LOG_FORMAT"
)

// stderr receives log output and CLI warnings.
var stderr io.Writer = os.Stderr

// logSetting is one logger option together with where its value came from.
type logSetting struct {
	key    string // config key, also used in warnings
	envKey string
	flag   string
	raw    string
	source string
}

func resolveLogSetting(key, envKey, flagValue, configValue string) logSetting {
	s := logSetting{key: key, envKey: envKey, flag: "--" + strings.ReplaceAll(key, "_", "-"), source: "default"}
	envValue := os.Getenv(envKey)
	switch {
	case strings.TrimSpace(flagValue) != "":
		s.raw, s.source = flagValue, "flag"
	case strings.TrimSpace(envValue) != "":
		s.raw, s.source = envValue, "env"
	case strings.TrimSpace(configValue) != "":
		s.raw, s.source = configValue, "config"
	}
	return s
}

// invalid reports a bad value. A bad flag is an error; a bad env or config
// value falls back to the default with a warning.
func (s logSetting) invalid(fallback string) (string, error) {
	switch s.source {
	case "flag":
		return "", fmt.Errorf("invalid %s %q", s.flag, s.raw)
	case "env":
		return fmt.Sprintf("warning: invalid %s=%q; defaulting to %s", s.envKey, s.raw, fallback), nil
	case "config":
		return fmt.Sprintf("warning: invalid %s=%q; defaulting to %s", s.key, s.raw, fallback), nil
	default:
		return "", nil
	}
}

// configureLoggerForCLI installs the default logger. Level and format are
// each taken from the flag, then the environment, then the config file.
func configureLoggerForCLI(flagLevel, flagFormat string, cfg *config.Config) ([]string, error) {
	var configLevel, configFormat string
	if cfg != nil {
		configLevel, configFormat = cfg.LogLevel, cfg.LogFormat
	}

	var warnings []string
	levelSetting := resolveLogSetting("log_level", logLevelEnvKey, flagLevel, configLevel)
	level, err := parseLogLevel(levelSetting.raw)
	if err != nil {
		warning, err := levelSetting.invalid(config.DefaultLogLevel)
		if err != nil {
			return nil, err
		}
		warnings = append(warnings, warning)
		level = slog.LevelInfo
	}

	formatSetting := resolveLogSetting("log_format", logFormatEnvKey, flagFormat, configFormat)
	logFormat, err := config.ParseLogFormat(formatSetting.raw)
	if err != nil {
		warning, err := formatSetting.invalid(config.DefaultLogFormat)
		if err != nil {
			return nil, err
		}
		warnings = append(warnings, warning)
		logFormat = config.DefaultLogFormat
	}

	slog.SetDefault(newLogger(stderr, level, logFormat))
	return warnings, nil
}

func parseLogLevel(raw string) (slog.Level, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return slog.LevelInfo, nil
	}
	if strings.EqualFold(value, "warning") {
		value = "warn"
	}

	if numeric, err := strconv.Atoi(value); err == nil {
		return slog.Level(numeric), nil
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(value)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", raw)
	}
	return level, nil
}

func newLogger(w io.Writer, level slog.Level, logFormat string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if logFormat == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// vaultLogger is the logger handed to vault.Open. The vault tags each store's
// records with store=images or store=scans.
func vaultLogger() *slog.Logger {
	return slog.Default().With("component", "vault")
}
