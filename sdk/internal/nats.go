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

package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/ngnhng/durableai/api"
	"github.com/ngnhng/durableai/api/serde"
)

type (
	// IdentifierManager derives stream, subject, consumer and bucket names
	// for a namespace.
	IdentifierManager interface {
		Namespace() string
		HistoryStreamName() string
		WorkflowTaskStreamName() string
		ActivityTaskStreamName() string
		ResultBucketName() string

		HistorySubject(id api.WorkflowID) string
		HistoryFilterSubject() string
		WorkflowTaskSubject(queue string) string
		ActivityTaskSubject(queue string) string
		WorkflowTaskFilterSubject() string
		ActivityTaskFilterSubject() string

		WorkflowTaskConsumerName(queue string) string
		ActivityTaskConsumerName(queue string) string
	}

	idManager struct {
		ns string
	}
)

func (i *idManager) Namespace() string { return i.ns }

func (i *idManager) streamName(base string) string {
	if i.ns == "" {
		return base
	}
	return i.ns + "_" + base
}

func (i *idManager) subject(pattern string, args ...any) string {
	s := fmt.Sprintf(pattern, args...)
	if i.ns == "" {
		return s
	}
	return i.ns + "." + s
}

func (i *idManager) HistoryStreamName() string      { return i.streamName(api.WorkflowHistoryStream) }
func (i *idManager) WorkflowTaskStreamName() string { return i.streamName(api.WorkflowTasksStream) }
func (i *idManager) ActivityTaskStreamName() string { return i.streamName(api.ActivityTasksStream) }
func (i *idManager) ResultBucketName() string       { return i.streamName(api.WorkflowResultBucket) }

func (i *idManager) HistorySubject(id api.WorkflowID) string {
	return i.subject(api.HistoryPublishSubjectPattern, id)
}

func (i *idManager) HistoryFilterSubject() string {
	return i.subject(api.HistoryFilterSubjectPattern)
}

func (i *idManager) WorkflowTaskSubject(queue string) string {
	return i.subject(api.WorkflowTaskPublishSubjectPattern, queue)
}

func (i *idManager) ActivityTaskSubject(queue string) string {
	return i.subject(api.ActivityTaskPublishSubjectPattern, queue)
}

func (i *idManager) WorkflowTaskFilterSubject() string {
	return i.subject(api.WorkflowTasksFilterSubjectPattern)
}

func (i *idManager) ActivityTaskFilterSubject() string {
	return i.subject(api.ActivityTasksFilterSubjectPattern)
}

func (i *idManager) WorkflowTaskConsumerName(queue string) string {
	return consumerName(api.WorkflowTaskWorkerConsumer, queue)
}

func (i *idManager) ActivityTaskConsumerName(queue string) string {
	return consumerName(api.ActivityTaskWorkerConsumer, queue)
}

// consumerName keeps only characters valid in a durable name.
func consumerName(base, queue string) string {
	var b strings.Builder
	b.WriteString(base)
	b.WriteByte('-')
	for _, r := range queue {
		if isTokenRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

func isTokenRune(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_'
}

// validateToken rejects names that would split or wildcard a subject.
func validateToken(kind, s string) error {
	if s == "" {
		return fmt.Errorf("empty %s", kind)
	}
	for _, r := range s {
		if !isTokenRune(r) && r != '=' {
			return fmt.Errorf("%s %q contains %q", kind, s, r)
		}
	}
	return nil
}

// Conn is a NATS connection with the JetStream helpers the store needs.
type Conn struct {
	nc        *nats.Conn
	js        jetstream.JetStream
	converter serde.BinarySerde

	IdentifierManager
	logger *slog.Logger
}

func wrapExisting(nc *nats.Conn, namespace string, conv serde.BinarySerde) (*Conn, error) {
	if nc == nil {
		return nil, fmt.Errorf("natz: nil connection provided")
	}
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}
	namespace = strings.TrimSpace(namespace)
	if namespace != "" {
		if err := validateToken("namespace", namespace); err != nil {
			return nil, err
		}
	}
	if conv == nil {
		conv = serde.Default()
	}
	return &Conn{
		nc:                nc,
		js:                js,
		converter:         conv,
		IdentifierManager: &idManager{ns: namespace},
	}, nil
}

func (c *Conn) SetLogger(l *slog.Logger) {
	c.logger = defaultLogger(l)
}

func (c *Conn) Logger() *slog.Logger {
	if c == nil {
		return slog.Default()
	}
	return defaultLogger(c.logger)
}

// IsConnected returns whether the NATS connection is currently connected.
func (c *Conn) IsConnected() bool {
	return c.nc != nil && c.nc.IsConnected()
}

// Config is what Connect needs from the application configuration.
type Config interface {
	Endpoint() string
	NATSMaxReconnects() int
	NATSReconnectWait() time.Duration
	NATSDrainTimeout() time.Duration
	NATSPingInterval() time.Duration
	NATSMaxPingsOut() int
	// Optional human readable client name; may return empty.
	NATSClientName() string
}

// Connect dials NATS with the given configuration. Connection events are
// logged through logger.
func Connect(cfg Config, logger *slog.Logger) (*nats.Conn, error) {
	if cfg == nil {
		return nil, fmt.Errorf("natz: nil config provided")
	}
	logger = defaultLogger(logger)

	clientName := cfg.NATSClientName()
	if clientName == "" {
		clientName = "durableai"
	}
	opts := []nats.Option{
		nats.Name(clientName),
		nats.MaxReconnects(cfg.NATSMaxReconnects()),
		nats.ReconnectWait(cfg.NATSReconnectWait()),
		nats.DrainTimeout(cfg.NATSDrainTimeout()),
		nats.PingInterval(cfg.NATSPingInterval()),
		nats.MaxPingsOutstanding(cfg.NATSMaxPingsOut()),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", "error", err)
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Debug("NATS connection closed")
		}),
	}

	nc, err := nats.Connect(cfg.Endpoint(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.Endpoint(), err)
	}
	return nc, nil
}

// EnsureKV ensures that a KeyValue store with the given configuration exists.
func (c *Conn) EnsureKV(ctx context.Context, cfg jetstream.KeyValueConfig) (jetstream.KeyValue, error) {
	kv, err := c.js.KeyValue(ctx, cfg.Bucket)
	if err != nil {
		if errors.Is(err, jetstream.ErrBucketNotFound) {
			kv, err := c.js.CreateKeyValue(ctx, cfg)
			if err != nil {
				return nil, fmt.Errorf("failed to create new KV: %v, %w", cfg.Bucket, err)
			}
			return kv, nil
		}
		return nil, fmt.Errorf("failed to ensure KV: %v, %w", cfg.Bucket, err)
	}
	return kv, nil
}

// EnsureStream creates the stream or updates it in place. The retention of
// an existing stream is kept since it cannot be changed.
func (c *Conn) EnsureStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error) {
	stream, err := c.js.Stream(ctx, cfg.Name)
	if err != nil {
		if errors.Is(err, jetstream.ErrStreamNotFound) {
			stream, err = c.js.CreateStream(ctx, cfg)
			if err != nil {
				return nil, fmt.Errorf("failed to create stream %s: %w", cfg.Name, err)
			}
			return stream, nil
		}
		return nil, fmt.Errorf("failed to get stream %s info: %w", cfg.Name, err)
	}

	streamInfo, err := stream.Info(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get stream info %s: %w", cfg.Name, err)
	}
	cfg.Retention = streamInfo.Config.Retention

	updatedStream, err := c.js.UpdateStream(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to update stream %s: %w", cfg.Name, err)
	}
	return updatedStream, nil
}

// EnsureConsumer ensures that a consumer with the given configuration exists on the specified stream.
func (c *Conn) EnsureConsumer(ctx context.Context, streamName string, cfg jetstream.ConsumerConfig) (jetstream.Consumer, error) {
	stream, err := c.js.Stream(ctx, streamName)
	if err != nil {
		return nil, fmt.Errorf("failed to get stream %s for consumer creation: %w", streamName, err)
	}

	consumer, err := stream.Consumer(ctx, cfg.Name)
	if err != nil {
		consumer, err = stream.CreateOrUpdateConsumer(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create/update consumer %s on stream %s: %w", cfg.Name, streamName, err)
		}
	}
	return consumer, nil
}
