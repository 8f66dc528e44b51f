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


// Package config holds the runtime-tunable settings for the ingestion
// pipeline, persisted as TOML. Settings are re-read at the start of each
// processing cycle, so edits take effect without a restart.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// SourceSettings configures the remote folder being ingested.
type SourceSettings struct {
	FolderID            string `toml:"folder_id"`
	Recursive           bool   `toml:"recursive"`
	CredentialsFile     string `toml:"credentials_file"`
	ListingCacheSeconds int    `toml:"listing_cache_seconds"`
}

// PipelineSettings configures per-cycle processing behavior.
type PipelineSettings struct {
	PollIntervalSeconds int `toml:"poll_interval_seconds"`
	ChunkSize           int `toml:"chunk_size"`
	ChunkOverlap        int `toml:"chunk_overlap"`
	BatchSize           int `toml:"batch_size"`
	MaxRetries          int `toml:"max_retries"`
	RetryBaseDelayMs    int `toml:"retry_base_delay_ms"`
	MaxWaitCycles       int `toml:"max_wait_cycles"`
}

// LimitSettings configures the rate/cost governor ceilings.
type LimitSettings struct {
	RequestsPerMinute int     `toml:"requests_per_minute"`
	RequestsPerHour   int     `toml:"requests_per_hour"`
	RequestsPerDay    int     `toml:"requests_per_day"`
	TokensPerMinute   int     `toml:"tokens_per_minute"`
	DailyCostCeiling  float64 `toml:"daily_cost_ceiling"`
}

// EmbeddingSettings configures the embedding service provider.
type EmbeddingSettings struct {
	Host                 string  `toml:"host"`
	Model                string  `toml:"model"`
	APIKey               string  `toml:"api_key"`
	Dimensions           int     `toml:"dimensions"`
	CostPerMillionTokens float64 `toml:"cost_per_million_tokens"`
}

// StorageSettings configures the local database.
type StorageSettings struct {
	Path string `toml:"path"`
}

// Settings is the full runtime configuration.
type Settings struct {
	Source    SourceSettings    `toml:"source"`
	Pipeline  PipelineSettings  `toml:"pipeline"`
	Limits    LimitSettings     `toml:"limits"`
	Embedding EmbeddingSettings `toml:"embedding"`
	Storage   StorageSettings   `toml:"storage"`
}

// Default returns the standard settings.
func Default() Settings {
	return Settings{
		Source: SourceSettings{
			Recursive:           true,
			ListingCacheSeconds: 120,
		},
		Pipeline: PipelineSettings{
			PollIntervalSeconds: 300,
			ChunkSize:           400,
			ChunkOverlap:        50,
			BatchSize:           100,
			MaxRetries:          3,
			RetryBaseDelayMs:    1000,
			MaxWaitCycles:       5,
		},
		Limits: LimitSettings{
			RequestsPerMinute: 60,
			RequestsPerHour:   1000,
			RequestsPerDay:    10000,
			TokensPerMinute:   150000,
			DailyCostCeiling:  1.0,
		},
		Embedding: EmbeddingSettings{
			Host:                 "https://api.openai.com/v1",
			Model:                "text-embedding-3-small",
			APIKey:               "none",
			Dimensions:           1536,
			CostPerMillionTokens: 0.02,
		},
		Storage: StorageSettings{
			Path: defaultStoragePath(),
		},
	}
}

func defaultStoragePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "docvec.db"
	}
	return filepath.Join(home, ".docvec", "docvec.db")
}

// DefaultPath returns the conventional config file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.toml"
	}
	return filepath.Join(home, ".docvec", "config.toml")
}

// PollInterval returns the polling interval as a duration.
func (s Settings) PollInterval() time.Duration {
	return time.Duration(s.Pipeline.PollIntervalSeconds) * time.Second
}

// RetryBaseDelay returns the backoff base delay as a duration.
func (s Settings) RetryBaseDelay() time.Duration {
	return time.Duration(s.Pipeline.RetryBaseDelayMs) * time.Millisecond
}

// ListingCacheTTL returns the listing cache lifetime as a duration.
func (s Settings) ListingCacheTTL() time.Duration {
	return time.Duration(s.Source.ListingCacheSeconds) * time.Second
}

// Validate checks the settings for values the pipeline cannot run with.
func (s Settings) Validate() error {
	if s.Pipeline.ChunkSize <= 0 {
		return errors.New("config: pipeline.chunk_size must be positive")
	}
	if s.Pipeline.ChunkOverlap < 0 || s.Pipeline.ChunkOverlap >= s.Pipeline.ChunkSize {
		return errors.New("config: pipeline.chunk_overlap must be non-negative and smaller than chunk_size")
	}
	if s.Pipeline.BatchSize <= 0 {
		return errors.New("config: pipeline.batch_size must be positive")
	}
	if s.Pipeline.MaxRetries <= 0 {
		return errors.New("config: pipeline.max_retries must be positive")
	}
	if s.Pipeline.PollIntervalSeconds <= 0 {
		return errors.New("config: pipeline.poll_interval_seconds must be positive")
	}
	if s.Embedding.Dimensions <= 0 {
		return errors.New("config: embedding.dimensions must be positive")
	}
	return nil
}

// Load reads settings from a TOML file. Fields absent from the file keep
// their defaults.
func Load(path string) (Settings, error) {
	settings := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return settings, err
	}
	if err := toml.Unmarshal(data, &settings); err != nil {
		return settings, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := settings.Validate(); err != nil {
		return settings, err
	}
	return settings, nil
}

// Save writes settings to a TOML file, creating parent directories as
// needed.
func Save(path string, settings Settings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := toml.Marshal(settings)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
