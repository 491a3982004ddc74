// Copyright 2025 Nguyen Nhat Nguyen
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

package config

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

type LoggerConfig struct {
	Level          string      `json:"level"         env:"LEVEL"         envDefault:"info"`   // trace|debug|info|warn|error
	Format         string      `json:"format"        env:"FORMAT"        envDefault:"auto"`   // auto|json|text|pretty
	Output         string      `json:"output"        env:"OUTPUT"        envDefault:"stdout"` // stdout|stderr|file|file:/path, comma separated
	FilePath       string      `json:"file_path"     env:"FILE_PATH"`
	FileMode       os.FileMode `json:"file_mode"     env:"FILE_MODE"     envDefault:"0644"`
	ExtraFieldsRaw string      `json:"fields"        env:"FIELDS"`                      // key1=val1,key2=val2
	OTELExporter   string      `json:"otel_exporter" env:"OTEL_EXPORTER" envDefault:"none"` // none|otlp-http|otlp-grpc
	OTELEndpoint   string      `json:"otel_endpoint" env:"OTEL_ENDPOINT"`

	file    io.Writer
	fileMut sync.Mutex
}

// Writer returns the primary writer (first configured).
func (c *Config) Writer() io.Writer {
	writers := c.Writers()
	if len(writers) == 0 {
		return os.Stdout
	}
	return writers[0]
}

// Writers returns a slice of io.Writer for multi-output support.
// LOG_OUTPUT examples:
//
//	stdout
//	stderr
//	file (uses LOG_FILE_PATH)
//	file:/var/log/app.log
//	stdout,file:/tmp/app.log
//
// Unknown tokens are ignored with a warning.
func (c *Config) Writers() []io.Writer {
	outputs := strings.TrimSpace(c.Logger.Output)
	if outputs == "" {
		return []io.Writer{os.Stdout}
	}
	parts := strings.Split(outputs, ",")
	writers := make([]io.Writer, 0, len(parts))
	seen := make(map[string]struct{})

	addWriter := func(key string, w io.Writer) {
		if w == nil {
			return
		}
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		writers = append(writers, w)
	}

	for _, raw := range parts {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		lower := strings.ToLower(raw)
		if strings.HasPrefix(lower, "file:") {
			path := raw[len("file:"):]
			addWriter("file:"+path, c.openFile(path))
			continue
		}
		switch lower {
		case "stdout":
			addWriter("stdout", os.Stdout)
		case "stderr":
			addWriter("stderr", os.Stderr)
		case "file":
			if c.Logger.FilePath == "" {
				slog.Warn("LOG_OUTPUT includes 'file' but LOG_FILE_PATH not set; skipping")
				continue
			}
			addWriter("file:"+c.Logger.FilePath, c.openFile(c.Logger.FilePath))
		default:
			slog.Warn("unknown log output entry", "entry", raw)
		}
	}

	if len(writers) == 0 {
		return []io.Writer{os.Stdout}
	}
	return writers
}

// openFile opens or reuses a file writer.
func (c *Config) openFile(path string) io.Writer {
	if path == "" {
		return nil
	}
	c.Logger.fileMut.Lock()
	defer c.Logger.fileMut.Unlock()
	if c.Logger.file != nil && c.Logger.FilePath == path {
		return c.Logger.file
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, c.Logger.FileMode)
	if err != nil {
		slog.Warn("cannot open file for log output", "path", path, "error", err)
		return nil
	}
	c.Logger.FilePath = path
	c.Logger.file = f
	return f
}

// ParseExtraFields parses ExtraFieldsRaw into a map.
func (lc *LoggerConfig) ParseExtraFields() map[string]string {
	res := make(map[string]string)
	if lc == nil || lc.ExtraFieldsRaw == "" {
		return res
	}
	for _, p := range strings.Split(lc.ExtraFieldsRaw, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(p), "=")
		if !ok {
			continue
		}
		k = strings.TrimSpace(k)
		if k != "" {
			res[k] = strings.TrimSpace(v)
		}
	}
	return res
}

func (lc *LoggerConfig) ParseLevel() string {
	if lc == nil {
		return "info"
	}
	lvl := strings.ToLower(strings.TrimSpace(lc.Level))
	switch lvl {
	case "trace", "debug", "info", "warn", "error":
		return lvl
	default:
		return "info"
	}
}

// LevelTrace sits below slog.LevelDebug.
const LevelTrace = slog.Level(-8)

func (c *Config) LogLevel() slog.Level {
	switch c.Logger.ParseLevel() {
	case "trace":
		return LevelTrace
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

func (c *Config) LogFormat() string              { return c.Logger.Format }
func (c *Config) OTELExporter() string           { return c.Logger.OTELExporter }
func (c *Config) OTELEndpoint() string           { return c.Logger.OTELEndpoint }
func (c *Config) ExtraFields() map[string]string { return c.Logger.ParseExtraFields() }
func (c *Config) ModeField() Mode                { return c.Mode }
