// Copyright 2025 Antti Kivi
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logging defines utilities for logging within the core. The program
// uses the [log/slog] package for logging, and this package contains the
// functions for setting up the logger.
//
// At the first phase before parsing the configuration, logging is done using
// the bootstrap logger that is set as the default logger first. After
// the configuration is loaded, the default logger should be replaced with
// the actual logger that is set up according to the configured level, format,
// and output.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/cattackle-hq/cattackle-core/internal/fspath"
	"github.com/cattackle-hq/cattackle-core/internal/iostreams"
	"github.com/cattackle-hq/cattackle-core/internal/logs"
)

// Default values for the logger.
const (
	defaultFilePerm os.FileMode = 0o644
	defaultDirPerm  os.FileMode = 0o755
)

// BootstrapWriter is the writer used by the bootstrap logger. It is global so
// that, on a startup failure, the caller can check whether its type is
// [BufferedFileWriter] and flush its contents for postmortem inspection.
var BootstrapWriter io.Writer //nolint:gochecknoglobals // needed by the panic handler

var errInvalidFormat = errors.New("unsupported log format")

// Config contains the configuration options for logging. It mirrors the
// "logging" section of the environment-driven program configuration.
type Config struct {
	// Format is either "json" or "text".
	Format string `mapstructure:"log_format"`

	// Output is "stderr", "stdout", or a file path.
	Output string `mapstructure:"log_output"`

	// Level is the minimum level that is emitted.
	Level logs.Level `mapstructure:"log_level"`

	// Enabled tells whether logging is enabled at all.
	Enabled bool `mapstructure:"log_enabled"`
}

// InitBootstrap initializes the bootstrap logger and sets it as the default
// logger in [log/slog]. It is used before the configuration has been loaded.
//
// Logs are printed directly to stderr when `CATTACKLE_DEBUG` is "1" or
// "true", buffered in memory and discarded silently by default, and
// explicitly discarded when `CATTACKLE_DEBUG` is "0" or "false".
func InitBootstrap() error {
	debugVar := strings.ToLower(os.Getenv("CATTACKLE_DEBUG"))

	if debugVar == "false" || debugVar == "0" {
		slog.SetDefault(slog.New(slog.DiscardHandler))

		return nil
	}

	if debugVar != "true" && debugVar != "1" {
		path, err := defaultBootstrapLogPath()
		if err != nil {
			return fmt.Errorf("failed to resolve bootstrap log path: %w", err)
		}

		BootstrapWriter = NewBufferedFileWriter(path)

		slog.SetDefault(slog.New(slog.NewJSONHandler(BootstrapWriter, &slog.HandlerOptions{
			AddSource:   true,
			Level:       logs.LevelTrace.Level(),
			ReplaceAttr: replaceAttrFunc(),
		})))

		return nil
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(iostreams.NewLockedWriter(os.Stderr), &slog.HandlerOptions{
		AddSource:   true,
		Level:       logs.LevelTrace.Level(),
		ReplaceAttr: replaceAttrFunc(),
	})))

	return nil
}

// Init initializes the configured logger and sets it as the default logger in
// [log/slog], replacing the bootstrap logger.
func Init(cfg Config) error {
	if !cfg.Enabled {
		slog.SetDefault(slog.New(slog.DiscardHandler))

		return nil
	}

	w, err := resolveOutput(cfg.Output)
	if err != nil {
		return err
	}

	opts := &slog.HandlerOptions{
		AddSource:   true,
		Level:       cfg.Level.Level(),
		ReplaceAttr: replaceAttrFunc(),
	}

	var h slog.Handler

	switch strings.ToLower(cfg.Format) {
	case "json", "":
		h = slog.NewJSONHandler(w, opts)
	case "text":
		h = slog.NewTextHandler(w, opts)
	default:
		return fmt.Errorf("%w: %s", errInvalidFormat, cfg.Format)
	}

	slog.SetDefault(slog.New(h))

	return nil
}

func resolveOutput(output string) (io.Writer, error) {
	switch strings.ToLower(output) {
	case "stderr", "":
		return iostreams.NewLockedWriter(os.Stderr), nil
	case "stdout":
		return iostreams.NewLockedWriter(os.Stdout), nil
	default:
		if err := os.MkdirAll(filepath.Dir(output), defaultDirPerm); err != nil {
			return nil, fmt.Errorf("failed to create directory for log output: %w", err)
		}

		f, err := os.OpenFile(output, os.O_WRONLY|os.O_APPEND|os.O_CREATE, defaultFilePerm)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file at %s: %w", output, err)
		}

		return iostreams.NewLockedWriter(f), nil
	}
}

func defaultBootstrapLogPath() (string, error) {
	p, err := fspath.NewAbs("~", ".cache", "cattackle-core", "bootstrap.log")
	if err != nil {
		return "", fmt.Errorf("%w", err)
	}

	return p.String(), nil
}

func replaceAttrFunc() func([]string, slog.Attr) slog.Attr {
	return func(_ []string, a slog.Attr) slog.Attr {
		if a.Key != slog.LevelKey {
			return a
		}

		level, ok := a.Value.Any().(slog.Level)
		if !ok {
			return a
		}

		return slog.String(slog.LevelKey, logs.Level(level).String())
	}
}

// Trace calls [slog.Log] with the level set to trace on the default logger.
func Trace(ctx context.Context, msg string, args ...any) {
	//nolint:sloglint // logging function cannot have a constant message
	slog.Log(ctx, logs.LevelTrace.Level(), msg, args...)
}
