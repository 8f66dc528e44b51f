// Copyright 2025 Poiesic Systems
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


package ai

import (
	"errors"
	"strings"
)

// Config holds configuration for the embedding service provider.
type Config struct {
	// Host is the base URL for the embedding service API.
	// Example: "https://api.openai.com/v1", or a local OpenAI-compatible
	// server like "http://localhost:11434/v1"
	Host string

	// Model is the model identifier to use for text embeddings.
	// Example: "text-embedding-3-small"
	Model string

	// APIKey authenticates against the embedding service.
	// Use "none" for local services that don't require authentication.
	APIKey string

	// Dimensions is the fixed dimensionality of vectors the model returns.
	// Default: 1536 (text-embedding-3-small)
	Dimensions int

	// CostPerMillionTokens is the metered price of the model in USD,
	// used for cost accounting against the daily ceiling.
	// Default: 0.02 (text-embedding-3-small)
	CostPerMillionTokens float64
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithHost sets the embedding service host URL.
func WithHost(host string) ConfigOption {
	return func(c *Config) {
		c.Host = host
	}
}

// WithModel sets the embedding model identifier.
func WithModel(model string) ConfigOption {
	return func(c *Config) {
		c.Model = model
	}
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) ConfigOption {
	return func(c *Config) {
		c.APIKey = key
	}
}

// WithDimensions sets the expected vector dimensionality.
func WithDimensions(dim int) ConfigOption {
	return func(c *Config) {
		c.Dimensions = dim
	}
}

// WithCostPerMillionTokens sets the model's metered price in USD.
func WithCostPerMillionTokens(cost float64) ConfigOption {
	return func(c *Config) {
		c.CostPerMillionTokens = cost
	}
}

// DefaultConfig returns a Config with defaults for OpenAI's small
// embedding model.
func DefaultConfig() *Config {
	return &Config{
		Host:                 "https://api.openai.com/v1",
		Model:                "text-embedding-3-small",
		APIKey:               "none",
		Dimensions:           1536,
		CostPerMillionTokens: 0.02,
	}
}

// NewConfig creates a Config with default values and applies the provided
// options.
//
// Example:
//
//	cfg := NewConfig(
//	    WithHost("http://localhost:11434/v1"),
//	    WithModel("embeddinggemma"),
//	    WithDimensions(768),
//	)
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize ensures the configuration is in a canonical form.
// It automatically adds the /v1 suffix to the host if missing, which is
// required by most OpenAI-compatible APIs (Ollama, LocalAI, vLLM, etc).
func (c *Config) Normalize() {
	if c.Host != "" && !strings.HasSuffix(c.Host, "/v1") {
		c.Host = strings.TrimSuffix(c.Host, "/")
		c.Host = c.Host + "/v1"
	}
}

// Validate checks that the configuration is valid and complete.
// It automatically normalizes the configuration before validation.
func (c *Config) Validate() error {
	c.Normalize()

	if c.Host == "" {
		return errors.New("ai config: Host is required")
	}
	if c.Model == "" {
		return errors.New("ai config: Model is required")
	}
	if c.Dimensions <= 0 {
		return errors.New("ai config: Dimensions must be positive")
	}
	if c.CostPerMillionTokens < 0 {
		return errors.New("ai config: CostPerMillionTokens cannot be negative")
	}
	return nil
}
