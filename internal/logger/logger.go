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

package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/ngnhng/durableai/internal/config"
)

const (
	ExporterNone     = "none"
	ExporterOTLPHTTP = "otlp-http"
	ExporterOTLPGRPC = "otlp-grpc"
)

type Logger struct {
	Slogger *slog.Logger
	*sdklog.LoggerProvider
}

type LoggerOptions struct {
	// Mode specifies the application mode (debug/release)
	Mode config.Mode

	// Writer is the writer to write the logs to
	Writer io.Writer

	Level  slog.Level
	Format string // auto|json|text|pretty

	// OTELExporter enables OTLP log export in release mode.
	OTELExporter string
	OTELEndpoint string

	ServiceName    string
	ServiceVersion string
	ExtraFields    map[string]string
}

// OptionsFromConfig maps the LOG_ settings onto LoggerOptions.
func OptionsFromConfig(cfg *config.Config) *LoggerOptions {
	return &LoggerOptions{
		Mode:           cfg.Mode,
		Writer:         io.MultiWriter(cfg.Writers()...),
		Level:          cfg.LogLevel(),
		Format:         cfg.LogFormat(),
		OTELExporter:   cfg.OTELExporter(),
		OTELEndpoint:   cfg.OTELEndpoint(),
		ServiceName:    cfg.ServiceName(),
		ServiceVersion: cfg.GetVersion(),
		ExtraFields:    cfg.ExtraFields(),
	}
}

func NewLogger(ctx context.Context, opts *LoggerOptions) (*Logger, error) {
	if opts.Writer == nil {
		return nil, fmt.Errorf("no log writer")
	}
	handlers := make([]slog.Handler, 0, 2)
	var loggerFactory *sdklog.LoggerProvider

	if opts.Mode == config.ModeDebug && opts.Format != "json" && opts.Format != "text" {
		handlers = append(handlers, &DebugHandler{
			out:   opts.Writer,
			level: min(opts.Level, slog.LevelDebug),
			mut:   &sync.Mutex{},
		})
	} else {
		hopts := &slog.HandlerOptions{Level: opts.Level}
		if opts.Format == "text" {
			handlers = append(handlers, slog.NewTextHandler(opts.Writer, hopts))
		} else {
			handlers = append(handlers, slog.NewJSONHandler(opts.Writer, hopts))
		}

		exporter, err := newExporter(ctx, opts.OTELExporter, opts.OTELEndpoint)
		if err != nil {
			return nil, err
		}
		if exporter != nil {
			res, err := resource.Merge(
				resource.Default(),
				resource.NewWithAttributes(
					semconv.SchemaURL,
					semconv.ServiceName(opts.ServiceName),
					semconv.ServiceVersion(opts.ServiceVersion),
				),
			)
			if err != nil {
				return nil, fmt.Errorf("log resource: %w", err)
			}
			loggerFactory = sdklog.NewLoggerProvider(
				sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
				sdklog.WithResource(res),
			)
			handlers = append(handlers, otelslog.NewHandler(
				opts.ServiceName, otelslog.WithLoggerProvider(loggerFactory)))
		}
	}

	var h slog.Handler = &MultiHandler{handlers}
	if len(opts.ExtraFields) > 0 {
		attrs := make([]slog.Attr, 0, len(opts.ExtraFields))
		for k, v := range opts.ExtraFields {
			attrs = append(attrs, slog.String(k, v))
		}
		h = h.WithAttrs(attrs)
	}

	return &Logger{
		Slogger:        slog.New(h),
		LoggerProvider: loggerFactory,
	}, nil
}

func newExporter(ctx context.Context, kind, endpoint string) (sdklog.Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", ExporterNone:
		return nil, nil
	case ExporterOTLPHTTP:
		var opts []otlploghttp.Option
		if endpoint != "" {
			opts = append(opts, otlploghttp.WithEndpointURL(endpoint))
		}
		return otlploghttp.New(ctx, opts...)
	case ExporterOTLPGRPC:
		var opts []otlploggrpc.Option
		if endpoint != "" {
			opts = append(opts, otlploggrpc.WithEndpointURL(endpoint))
		}
		return otlploggrpc.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unknown log exporter %q", kind)
	}
}

// Shutdown flushes and stops the OTLP provider, if any.
func (l *Logger) Shutdown(ctx context.Context) error {
	if l == nil || l.LoggerProvider == nil {
		return nil
	}
	if err := l.LoggerProvider.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
