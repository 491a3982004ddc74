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

// Package app assembles the process: logging, telemetry, the workflow
// store and client, and the model clients handed to examples.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/ngnhng/durableai/api/serde"
	"github.com/ngnhng/durableai/examples/scenarios"
	"github.com/ngnhng/durableai/internal/chain"
	"github.com/ngnhng/durableai/internal/config"
	httphandler "github.com/ngnhng/durableai/internal/handler/http"
	"github.com/ngnhng/durableai/internal/llm"
	"github.com/ngnhng/durableai/internal/logger"
	"github.com/ngnhng/durableai/internal/telemetry"
	"github.com/ngnhng/durableai/sdk/client"
)

type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Metrics *telemetry.Metrics
	Tracing *telemetry.Tracing
	Client  client.Client

	log   *logger.Logger
	conn  *nats.Conn
	store client.Store
	out   io.Writer

	mu   sync.Mutex
	llms map[config.Provider]*llm.Client
}

type Options struct {
	// Backend replaces ENGINE_BACKEND, e.g. memory for local runs.
	Backend string
	// Out receives the output of examples.
	Out io.Writer
	// Logger replaces the logger built from LOG_ settings.
	Logger *slog.Logger
}

// New validates cfg and builds every process wide dependency. The returned
// App must be closed.
func New(ctx context.Context, cfg *config.Config, opts Options) (_ *App, err error) {
	if opts.Backend != "" {
		cfg.Engine.Backend = opts.Backend
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{Config: cfg, out: opts.Out, llms: map[config.Provider]*llm.Client{}}
	defer func() {
		if err != nil {
			_ = a.Close(context.WithoutCancel(ctx))
		}
	}()

	if opts.Logger != nil {
		a.Logger = opts.Logger
	} else {
		a.log, err = logger.NewLogger(ctx, logger.OptionsFromConfig(cfg))
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
		a.Logger = a.log.Slogger
		slog.SetDefault(a.Logger)
	}

	a.Metrics, err = telemetry.InitMetrics(cfg.Telemetry.MetricsEnabled)
	if err != nil {
		return nil, err
	}
	a.Tracing, err = telemetry.InitGlobalTracer(ctx, telemetry.TracerConfig{
		Enabled:      cfg.Telemetry.TracingEnabled,
		EndpointURL:  cfg.Telemetry.TracingEndpoint,
		SamplingRate: cfg.Telemetry.SamplingRate,
		ServiceName:  cfg.ServiceName(),
	})
	if err != nil {
		return nil, err
	}

	conv, err := NewSerde(cfg.Engine.Serde)
	if err != nil {
		return nil, err
	}

	switch cfg.Engine.Backend {
	case config.BackendMemory:
		a.store = client.NewMemoryStore(conv)
	default:
		a.conn, err = client.Connect(cfg, a.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		a.store, err = client.NewNATSStore(ctx, a.conn, cfg.Engine.Namespace, conv, a.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to ensure NATS streams: %w", err)
		}
	}

	a.Client, err = client.NewClient(&client.Options{
		Namespace: cfg.Engine.Namespace,
		Store:     a.store,
		Logger:    a.Logger,
		Serde:     conv,
	})
	if err != nil {
		return nil, fmt.Errorf("creating workflow client failed: %w", err)
	}

	a.Logger.Debug("app ready",
		"backend", cfg.Engine.Backend,
		"namespace", cfg.Engine.Namespace,
		"serde", cfg.Engine.Serde,
	)
	return a, nil
}

// NewSerde returns the codec named by ENGINE_SERDE.
func NewSerde(name string) (serde.BinarySerde, error) {
	switch name {
	case "", "msgpack":
		return &serde.MsgpackSerde{}, nil
	case "json":
		return &serde.JsonSerde{}, nil
	default:
		return nil, fmt.Errorf("unknown serde %q", name)
	}
}

// LLM returns the completion client for p, built once per provider.
func (a *App) LLM(p config.Provider) (chain.Completer, error) {
	if p == "" {
		p = a.Config.LLM.Provider
	}
	if err := a.Config.ValidateProvider(p); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if c, ok := a.llms[p]; ok {
		return c, nil
	}
	c := llm.NewFromConfig(&a.Config.LLM, p,
		llm.WithLogger(a.Logger),
		llm.WithTracerProvider(a.Tracing.Provider),
		llm.WithMeterProvider(a.Metrics.Provider),
	)
	a.llms[p] = c
	return c, nil
}

// Deps is what examples run with in this process.
func (a *App) Deps() scenarios.Deps {
	return scenarios.Deps{
		Config: a.Config,
		Logger: a.Logger,
		Out:    a.out,
		LLM:    a.LLM,
	}
}

// Checks are the readiness probes of the process.
func (a *App) Checks() map[string]httphandler.Check {
	checks := map[string]httphandler.Check{}
	if a.conn != nil {
		checks["nats"] = func() error {
			if !a.conn.IsConnected() {
				return fmt.Errorf("nats connection is %s", a.conn.Status())
			}
			return nil
		}
	}
	return checks
}

// Close releases everything New acquired, in reverse order.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Client != nil {
		errs = append(errs, a.Client.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.conn != nil {
		a.Logger.Info("closing NATS connection")
		if err := a.conn.Drain(); err != nil {
			a.conn.Close()
		}
	}
	errs = append(errs, a.Tracing.Shutdown(ctx), a.Metrics.Shutdown(ctx))
	if a.log != nil {
		errs = append(errs, a.log.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
