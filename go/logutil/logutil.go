// Copyright 2025 The Mariaflow Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logutil builds slog loggers from string-valued settings, so
// the CLI and config file can select level, format, and destination.
package logutil

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/pflag"
)

// Options selects how log records are rendered. Unknown values fall
// back to the defaults rather than failing startup.
type Options struct {
	// Level is one of debug, info, warn, error. Default info.
	Level string

	// Format is json or text. Default json.
	Format string

	// Output is stdout, stderr, or a file path. Default stdout.
	Output string
}

// RegisterFlags registers the logging flags on fs, writing parsed
// values into opts.
func (o *Options) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Level, "log-level", "info", "Log level (debug, info, warn, error)")
	fs.StringVar(&o.Format, "log-format", "json", "Log format (json, text)")
	fs.StringVar(&o.Output, "log-output", "stdout", "Log output (stdout, stderr, or file path)")
}

// New builds a logger from the options and returns it together with a
// close function for the output file, if one was opened.
func New(opts Options) (*slog.Logger, func() error) {
	level := parseLevel(opts.Level)

	output, closer := openOutput(opts.Output)

	var handler slog.Handler
	switch strings.ToLower(opts.Format) {
	case "text":
		handler = slog.NewTextHandler(output, &slog.HandlerOptions{Level: level})
	default:
		handler = slog.NewJSONHandler(output, &slog.HandlerOptions{Level: level})
	}
	return slog.New(handler), closer
}

// Setup builds a logger from the options and installs it as the slog
// default.
func Setup(opts Options) (*slog.Logger, func() error) {
	logger, closer := New(opts)
	slog.SetDefault(logger)
	logger.Info("logging initialized",
		"level", opts.Level,
		"format", opts.Format,
		"output", opts.Output,
	)
	return logger, closer
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func openOutput(s string) (io.Writer, func() error) {
	noop := func() error { return nil }
	switch strings.ToLower(s) {
	case "", "stdout":
		return os.Stdout, noop
	case "stderr":
		return os.Stderr, noop
	default:
		file, err := os.OpenFile(s, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			// A broken log destination should not take the process down.
			return os.Stdout, noop
		}
		return file, file.Close
	}
}
