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
	"errors"
	"fmt"
	"io/fs"
	"net"
	"strconv"
	"time"

	env "github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Mode string

const (
	ModeDebug   Mode = "debug"
	ModeRelease Mode = "release"
)

// Config holds the complete application configuration
type Config struct {
	Service   string          `json:"service_name" env:"APP_NAME"    envDefault:"durableai"`
	Version   string          `json:"version"      env:"VERSION"     envDefault:"v0.1.0"`
	Mode      Mode            `json:"mode"         env:"MODE"        envDefault:"debug"`
	NATS      NATSConfig      `json:"nats"         envPrefix:"NATS_"`
	Server    ServerConfig    `json:"server"       envPrefix:"SERVER_"`
	Timeouts  TimeoutConfig   `json:"timeouts"     envPrefix:"TIMEOUTS_"`
	Logger    LoggerConfig    `json:"logger"       envPrefix:"LOG_"`
	LLM       LLMConfig       `json:"llm"          envPrefix:"LLM_"`
	Chain     ChainConfig     `json:"chain"        envPrefix:"CHAIN_"`
	Engine    EngineConfig    `json:"engine"       envPrefix:"ENGINE_"`
	Telemetry TelemetryConfig `json:"telemetry"    envPrefix:"TELEMETRY_"`

	// EnvFile is the dotenv file that was loaded, empty when none was found.
	EnvFile string `json:"-"`
}

type ServerConfig struct {
	Host string `json:"host" env:"HOST" envDefault:"localhost"`
	Port string `json:"port" env:"PORT" envDefault:"8080"`
}

// Addr is the listen address of the HTTP server.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, s.Port)
}

// TimeoutConfig holds timeout-related configuration
type TimeoutConfig struct {
	RequestTimeout  time.Duration `json:"request_timeout"  env:"REQUEST_TIMEOUT"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

const (
	BackendNATS   = "nats"
	BackendMemory = "memory"
)

// EngineConfig selects where workflow histories, tasks and results live.
type EngineConfig struct {
	Backend   string `json:"backend"   env:"BACKEND" envDefault:"nats"` // nats|memory
	Namespace string `json:"namespace" env:"NAMESPACE"`
	Serde     string `json:"serde"     env:"SERDE"   envDefault:"msgpack"` // msgpack|json
}

// ChainConfig holds the execution settings applied to every chain step.
type ChainConfig struct {
	StepTimeout time.Duration `json:"step_timeout" env:"STEP_TIMEOUT" envDefault:"30s"`
	MaxAttempts int32         `json:"max_attempts" env:"MAX_ATTEMPTS" envDefault:"3"`
	TaskQueue   string        `json:"task_queue"   env:"TASK_QUEUE"   envDefault:"multi-step-ai-chain-queue"`
}

// TelemetryConfig controls the Prometheus metrics reader and span export.
type TelemetryConfig struct {
	MetricsEnabled  bool    `json:"metrics_enabled"  env:"METRICS_ENABLED"  envDefault:"true"`
	TracingEnabled  bool    `json:"tracing_enabled"  env:"TRACING_ENABLED"  envDefault:"false"`
	TracingEndpoint string  `json:"tracing_endpoint" env:"TRACING_ENDPOINT" envDefault:"localhost:4317"`
	SamplingRate    float64 `json:"sampling_rate"    env:"SAMPLING_RATE"    envDefault:"1"`
}

// legacyEnv lists variable names kept for existing .env files.
type legacyEnv struct {
	OpenAIAPIKey      string `env:"OPENAI_API_KEY"`
	OpenRouterAPIKey  string `env:"OPENROUTER_API_KEY"`
	TemporalAddress   string `env:"TEMPORAL_ADDRESS"`
	TemporalHost      string `env:"TEMPORAL_HOST"`
	TemporalNamespace string `env:"TEMPORAL_NAMESPACE"`
}

// Load reads envFiles (".env" when none given) into the process environment
// and parses the configuration from it. Missing files are skipped.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	var loaded string
	for _, f := range envFiles {
		err := godotenv.Load(f)
		if err == nil {
			if loaded == "" {
				loaded = f
			}
			continue
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	cfg.EnvFile = loaded
	return cfg, nil
}

// LoadConfig parses the configuration from the process environment.
func LoadConfig() (*Config, error) {
	cfg := Config{
		NATS: NATSConfig{
			Host:          DefaultNATSHost,
			Port:          DefaultNATSPort,
			MaxReconnects: DefaultMaxReconnects,
			ReconnectWait: DefaultReconnectWait,
			DrainTimeout:  DefaultDrainTimeout,
			PingInterval:  DefaultPingInterval,
			MaxPingsOut:   DefaultMaxPingsOut,
			ClientName:    "durableai",
		},
		Timeouts: TimeoutConfig{
			RequestTimeout:  DefaultRequestTimeout,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}

	var legacy legacyEnv
	if err := env.Parse(&legacy); err != nil {
		return nil, err
	}
	cfg.applyLegacy(legacy)

	if cfg.NATS.URL == "" {
		cfg.NATS.URL = fmt.Sprintf("nats://%s", net.JoinHostPort(cfg.NATS.Host, cfg.NATS.Port))
	}
	if cfg.Engine.Namespace == "" {
		cfg.Engine.Namespace = DefaultNamespace
	}

	return &cfg, nil
}

// applyLegacy fills unset native settings from the legacy names.
func (c *Config) applyLegacy(l legacyEnv) {
	if c.LLM.OpenAIAPIKey == "" {
		c.LLM.OpenAIAPIKey = l.OpenAIAPIKey
	}
	if c.LLM.OpenRouterAPIKey == "" {
		c.LLM.OpenRouterAPIKey = l.OpenRouterAPIKey
	}
	if c.NATS.URL == "" {
		addr := l.TemporalAddress
		if addr == "" {
			addr = l.TemporalHost
		}
		if addr != "" {
			c.NATS.URL = "nats://" + addr
		}
	}
	if c.Engine.Namespace == "" {
		c.Engine.Namespace = l.TemporalNamespace
	}
}

func (c *Config) ServiceName() string {
	return c.Service
}

func (c *Config) GetVersion() string {
	return c.Version
}

// Validate checks everything except provider credentials, which are checked
// by ValidateProvider once the caller knows which provider it talks to.
func (c *Config) Validate() error {
	if c.Service == "" {
		return invalid("APP_NAME", "service name is required")
	}
	if c.Version == "" {
		return invalid("VERSION", "version is required")
	}
	switch c.Mode {
	case "", ModeDebug, ModeRelease:
	default:
		return invalid("MODE", fmt.Sprintf("unknown mode %q", c.Mode))
	}

	if err := c.validateNATS(); err != nil {
		return err
	}

	if c.Server.Host == "" {
		return invalid("SERVER_HOST", "server host is required")
	}
	if c.Server.Port == "" {
		return invalid("SERVER_PORT", "server port is required")
	}
	if _, err := strconv.Atoi(c.Server.Port); err != nil {
		return invalid("SERVER_PORT", "invalid server port")
	}

	switch c.Engine.Backend {
	case BackendNATS, BackendMemory:
	default:
		return invalid("ENGINE_BACKEND", fmt.Sprintf("unknown backend %q", c.Engine.Backend))
	}
	switch c.Engine.Serde {
	case "", "msgpack", "json":
	default:
		return invalid("ENGINE_SERDE", fmt.Sprintf("unknown serde %q", c.Engine.Serde))
	}

	if c.Chain.StepTimeout <= 0 {
		return invalid("CHAIN_STEP_TIMEOUT", "chain step timeout must be positive")
	}
	if c.Chain.MaxAttempts < 1 {
		return invalid("CHAIN_MAX_ATTEMPTS", "chain max attempts must be >= 1")
	}

	if r := c.Telemetry.SamplingRate; r < 0 || r > 1 {
		return invalid("TELEMETRY_SAMPLING_RATE", "sampling rate must be within [0, 1]")
	}

	return c.LLM.validate()
}

func (c *Config) validateNATS() error {
	if c.Engine.Backend == BackendMemory {
		return nil
	}
	if c.NATS.Host == "" {
		return invalid("NATS_HOST", "NATS host is required")
	}
	if c.NATS.Port == "" {
		return invalid("NATS_PORT", "NATS port is required")
	}
	if _, err := strconv.Atoi(c.NATS.Port); err != nil {
		return invalid("NATS_PORT", "invalid NATS port")
	}
	if c.NATS.URL == "" {
		return invalid("NATS_URL", "NATS URL is required")
	}
	if c.NATS.MaxReconnects < -1 {
		return invalid("NATS_MAX_RECONNECTS", "NATS max reconnects must be >= -1")
	}
	if c.NATS.ReconnectWait <= 0 {
		return invalid("NATS_RECONNECT_WAIT", "NATS reconnect wait must be positive")
	}
	if c.NATS.DrainTimeout <= 0 {
		return invalid("NATS_DRAIN_TIMEOUT", "NATS drain timeout must be positive")
	}
	return nil
}
