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

package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ngnhng/durableai/api"
	"github.com/ngnhng/durableai/internal/chain"
	"github.com/ngnhng/durableai/sdk/client"
)

// ChainHandler starts chain runs and reports on them.
type ChainHandler struct {
	client client.Client
	queue  string
	// wait bounds how long GET ?wait=true blocks for a result.
	wait   time.Duration
	logger *slog.Logger
}

func NewChainHandler(c client.Client, queue string, wait time.Duration, logger *slog.Logger) *ChainHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChainHandler{client: c, queue: queue, wait: wait, logger: logger}
}

// StartRequest is the body of POST /v1/chains.
type StartRequest struct {
	ID     string `json:"id,omitempty"`
	Topic  string `json:"topic"`
	Length string `json:"length,omitempty"`
}

type StartResponse struct {
	WorkflowID string `json:"workflow_id"`
	Status     string `json:"status"`
}

// Start queues a chain run and answers 202 with its id.
func (h *ChainHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if strings.TrimSpace(req.Topic) == "" {
		writeError(w, http.StatusBadRequest, errors.New("topic is required"))
		return
	}

	run, err := chain.Start(r.Context(), h.client, req.ID, h.queue, chain.Input{Topic: req.Topic, Length: req.Length})
	switch {
	case errors.Is(err, client.ErrWorkflowAlreadyStarted):
		writeError(w, http.StatusConflict, err)
		return
	case errors.Is(err, client.ErrInvalidWorkflowID):
		writeError(w, http.StatusBadRequest, err)
		return
	case err != nil:
		h.logger.Error("failed to start chain", "topic", req.Topic, "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	h.logger.Info("chain started", "workflow_id", run.ID(), "topic", req.Topic)
	writeJSON(w, http.StatusAccepted, StartResponse{WorkflowID: run.ID(), Status: "started"})
}

// history loads the events of id, answering the request itself when it
// cannot.
func (h *ChainHandler) history(ctx context.Context, w http.ResponseWriter, id string) ([]api.WorkflowEvent, bool) {
	events, err := h.client.GetHistory(ctx, id)
	switch {
	case errors.Is(err, client.ErrWorkflowNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, client.ErrInvalidWorkflowID):
		writeError(w, http.StatusBadRequest, err)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
	default:
		return events, true
	}
	return nil, false
}

// Get describes a run. With ?wait=true it first waits for the run to close.
func (h *ChainHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	events, ok := h.history(r.Context(), w, id)
	if !ok {
		return
	}

	if r.URL.Query().Get("wait") == "true" {
		ctx, cancel := context.WithTimeout(r.Context(), h.wait)
		err := h.client.GetWorkflow(ctx, id).Get(ctx, nil)
		cancel()
		var execErr *client.WorkflowExecutionError
		if err != nil && !errors.As(err, &execErr) {
			writeError(w, http.StatusGatewayTimeout, err)
			return
		}
		if events, ok = h.history(r.Context(), w, id); !ok {
			return
		}
	}

	st, err := chain.Describe(id, events)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
