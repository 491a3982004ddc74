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
	"fmt"
	"strings"
	"time"
)

type Provider string

const (
	ProviderOpenAI     Provider = "openai"
	ProviderOpenRouter Provider = "openrouter"
)

const (
	DefaultOpenAIBaseURL     = "https://api.openai.com/v1"
	DefaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"
)

// LLMConfig holds the chat completion endpoint settings. Each provider keeps
// its own key so that examples for both can run from one worker.
type LLMConfig struct {
	Provider          Provider      `json:"provider"           env:"PROVIDER"            envDefault:"openai"` // openai|openrouter
	OpenAIAPIKey      string        `json:"-"                  env:"OPENAI_API_KEY"`
	OpenRouterAPIKey  string        `json:"-"                  env:"OPENROUTER_API_KEY"`
	BaseURL           string        `json:"base_url"           env:"BASE_URL"`
	OpenRouterBaseURL string        `json:"openrouter_base_url" env:"OPENROUTER_BASE_URL"`
	Model             string        `json:"model"              env:"MODEL"               envDefault:"gpt-3.5-turbo"`
	OpenRouterModel   string        `json:"openrouter_model"   env:"OPENROUTER_MODEL"    envDefault:"deepseek/deepseek-r1:free"`
	Timeout           time.Duration `json:"timeout"            env:"TIMEOUT"             envDefault:"60s"`
	MaxRetries        int           `json:"max_retries"        env:"MAX_RETRIES"         envDefault:"0"`
	Referer           string        `json:"referer"            env:"HTTP_REFERER"`
	Title             string        `json:"title"              env:"X_TITLE"             envDefault:"durableai"`
}

// Endpoint describes how to reach one provider.
type Endpoint struct {
	Provider Provider
	BaseURL  string
	APIKey   string
	Model    string
	Headers  map[string]string
}

func ParseProvider(s string) (Provider, error) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(s))); p {
	case ProviderOpenAI, ProviderOpenRouter:
		return p, nil
	case "":
		return ProviderOpenAI, nil
	default:
		return "", fmt.Errorf("unknown provider %q", s)
	}
}

func (l *LLMConfig) validate() error {
	if _, err := ParseProvider(string(l.Provider)); err != nil {
		return invalid("LLM_PROVIDER", err.Error())
	}
	if l.Timeout <= 0 {
		return invalid("LLM_TIMEOUT", "LLM timeout must be positive")
	}
	if l.MaxRetries < 0 {
		return invalid("LLM_MAX_RETRIES", "LLM max retries must be >= 0")
	}
	return nil
}

// EndpointFor resolves base URL, key, default model and extra headers for p.
// An empty p means the configured provider.
func (l *LLMConfig) EndpointFor(p Provider) Endpoint {
	if p == "" {
		p = l.Provider
	}
	if p == ProviderOpenRouter {
		base := l.OpenRouterBaseURL
		if base == "" {
			base = DefaultOpenRouterBaseURL
		}
		headers := map[string]string{}
		if l.Referer != "" {
			headers["HTTP-Referer"] = l.Referer
		}
		if l.Title != "" {
			headers["X-Title"] = l.Title
		}
		return Endpoint{
			Provider: p,
			BaseURL:  base,
			APIKey:   l.OpenRouterAPIKey,
			Model:    l.OpenRouterModel,
			Headers:  headers,
		}
	}
	base := l.BaseURL
	if base == "" {
		base = DefaultOpenAIBaseURL
	}
	return Endpoint{
		Provider: ProviderOpenAI,
		BaseURL:  base,
		APIKey:   l.OpenAIAPIKey,
		Model:    l.Model,
	}
}

// ValidateProvider reports a missing credential for p.
func (c *Config) ValidateProvider(p Provider) error {
	ep := c.LLM.EndpointFor(p)
	if ep.APIKey != "" {
		return nil
	}
	switch ep.Provider {
	case ProviderOpenRouter:
		return invalid("LLM_OPENROUTER_API_KEY", "OPENROUTER_API_KEY is not set (get one at https://openrouter.ai/keys)")
	default:
		return invalid("LLM_OPENAI_API_KEY", "OPENAI_API_KEY is not set")
	}
}
