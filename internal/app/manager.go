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

package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ngnhng/durableai/examples/scenarios"
	"github.com/ngnhng/durableai/internal/chain"
	httphandler "github.com/ngnhng/durableai/internal/handler/http"
	"github.com/ngnhng/durableai/sdk/worker"
)

// Role selects which task kinds a worker polls.
type Role string

const (
	RoleWorkflow Role = "workflow"
	RoleActivity Role = "activity"
	RoleBoth     Role = "both"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleWorkflow, RoleActivity, RoleBoth:
		return r, nil
	case "":
		return RoleBoth, nil
	default:
		return "", fmt.Errorf("unknown worker role %q (want workflow, activity or both)", s)
	}
}

func (r Role) workflows() bool  { return r == RoleBoth || r == RoleWorkflow }
func (r Role) activities() bool { return r == RoleBoth || r == RoleActivity }

type component struct {
	name string
	run  func(ctx context.Context) error
}

// Manager runs workers and the HTTP server until one fails or the context
// ends.
type Manager struct {
	app        *App
	components []component
}

func NewManager(a *App) *Manager {
	return &Manager{app: a}
}

func (m *Manager) newWorker(queue string) (worker.Worker, error) {
	w, err := worker.NewWorker(m.app.Client, worker.Options{
		TaskQueue:     queue,
		Logger:        m.app.Logger.With("queue", queue),
		MeterProvider: m.app.Metrics.Provider,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating worker: %w", err)
	}
	return w, nil
}

// AddExample adds a worker serving ex on its task queue.
func (m *Manager) AddExample(ex scenarios.Example, role Role) error {
	w, err := m.newWorker(ex.TaskQueue())
	if err != nil {
		return err
	}
	d := m.app.Deps()
	if role.workflows() {
		if err := ex.RegisterWorkflows(w, d); err != nil {
			return fmt.Errorf("error registering workflows: %w", err)
		}
	}
	if role.activities() {
		if err := ex.RegisterActivities(w, d); err != nil {
			return fmt.Errorf("error registering activities: %w", err)
		}
	}
	m.add(fmt.Sprintf("worker %s (%s)", ex.Name(), role), w.Run)
	return nil
}

// AddChainWorker adds a worker serving the content chain on CHAIN_TASK_QUEUE.
func (m *Manager) AddChainWorker(opts chain.Options) error {
	queue := m.app.Config.Chain.TaskQueue
	w, err := m.newWorker(queue)
	if err != nil {
		return err
	}
	c, err := m.app.LLM("")
	if err != nil {
		return err
	}
	if err := chain.Register(w, &chain.Activities{LLM: c}, opts); err != nil {
		return err
	}
	m.add("chain worker", w.Run)
	return nil
}

// AddHTTPServer serves health, readiness, metrics and the chains API. wait
// bounds how long a chain lookup may block for its result.
func (m *Manager) AddHTTPServer(wait time.Duration) {
	cfg := m.app.Config
	srv := httphandler.NewServer(cfg.Server.Addr(), httphandler.Routes{
		Health:  httphandler.NewHealthHandler(m.app.Checks()),
		Chains:  httphandler.NewChainHandler(m.app.Client, cfg.Chain.TaskQueue, wait, m.app.Logger),
		Metrics: m.app.Metrics.Handler(),
	}, m.app.Logger)
	m.add("HTTP server", func(ctx context.Context) error {
		return srv.Start(ctx, cfg.Timeouts.ShutdownTimeout)
	})
}

func (m *Manager) add(name string, run func(context.Context) error) {
	m.components = append(m.components, component{name: name, run: run})
}

func (m *Manager) Run(ctx context.Context) error {
	if len(m.components) == 0 {
		return errors.New("nothing to run")
	}
	log := m.app.Logger

	g, gCtx := errgroup.WithContext(ctx)
	for _, c := range m.components {
		g.Go(func() error {
			log.Info("starting " + c.name)
			if err := c.run(gCtx); err != nil {
				return fmt.Errorf("%s: %w", c.name, err)
			}
			return nil
		})
	}
	log.Info("manager is running", "components", len(m.components))

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("manager stopped with error", "error", err)
		return err
	}
	log.Info("manager shutdown complete")
	return nil
}
