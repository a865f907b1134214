// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads and validates the atlas pipeline's configuration
// document, following the enumerated option groups of SPEC_FULL.md §6.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration document.
type Config struct {
	Extraction       ExtractionConfig       `yaml:"extraction" validate:"required"`
	Validation       ValidationConfig       `yaml:"validation" validate:"required"`
	BatchIngestion   BatchIngestionConfig   `yaml:"batch_ingestion" validate:"required"`
	Persistence      PersistenceConfig      `yaml:"persistence" validate:"required"`
	CrossValidation  CrossValidationConfig  `yaml:"cross_validation" validate:"required"`
}

// ExtractionConfig controls download concurrency, retry, and timeouts.
type ExtractionConfig struct {
	Concurrency   int `yaml:"concurrency" validate:"gte=1"`
	RetryAttempts int `yaml:"retry_attempts" validate:"gte=0"`
	RetryDelayMS  int `yaml:"retry_delay_ms" validate:"gte=0"`
	TimeoutMS     int `yaml:"timeout_ms" validate:"gte=0"`
}

// ValidationConfig controls the post-download/layer validator halt gates.
type ValidationConfig struct {
	MinPassRate               float64 `yaml:"min_pass_rate" validate:"gte=0,lte=100"`
	HaltOnTopologyError       bool    `yaml:"halt_on_topology_error"`
	HaltOnCompletenessError   bool    `yaml:"halt_on_completeness_error"`
	HaltOnCoordinateError     bool    `yaml:"halt_on_coordinate_error"`
	HaltOnOverlap             bool    `yaml:"halt_on_overlap"`
	HaltOnCoverage            bool    `yaml:"halt_on_coverage"`
	HaltOnCountMismatch       bool    `yaml:"halt_on_count_mismatch"`
	CountMismatchThresholdPct float64 `yaml:"count_mismatch_threshold_pct" validate:"gte=0,lte=100"`
}

// BatchIngestionConfig controls the orchestrator's batch behavior.
type BatchIngestionConfig struct {
	Enabled                 bool   `yaml:"enabled"`
	CheckpointDir           string `yaml:"checkpoint_dir" validate:"required"`
	MaxConcurrentStates     int    `yaml:"max_concurrent_states" validate:"gte=1"`
	CircuitBreakerThreshold int    `yaml:"circuit_breaker_threshold" validate:"gte=1"`
	ResumeOnRestart         bool   `yaml:"resume_on_restart"`
}

// PersistenceConfig locates persisted build state: DatabasePath is the
// snapshot-store directory, and the DLQ's bbolt file is opened at
// DatabasePath+".dlq". Checkpoints live under BatchIngestion.CheckpointDir
// instead. AutoMigrate is not read by any package.
type PersistenceConfig struct {
	DatabasePath string `yaml:"database_path" validate:"required"`
	AutoMigrate  bool   `yaml:"auto_migrate"`
}

// CrossValidationConfig controls the layer/topology validator pass.
type CrossValidationConfig struct {
	Enabled          bool    `yaml:"enabled"`
	FailOnMismatch   bool    `yaml:"fail_on_mismatch"`
	MinQualityScore  float64 `yaml:"min_quality_score" validate:"gte=0,lte=100"`
	GracefulFallback bool    `yaml:"graceful_fallback"`
}

// Default returns a config with sensible defaults, mirroring the teacher's
// DefaultConfig() shape.
func Default() Config {
	return Config{
		Extraction: ExtractionConfig{
			Concurrency:   4,
			RetryAttempts: 3,
			RetryDelayMS:  500,
			TimeoutMS:     30_000,
		},
		Validation: ValidationConfig{
			MinPassRate:               80,
			HaltOnTopologyError:       true,
			HaltOnCompletenessError:   true,
			HaltOnCoordinateError:     true,
			HaltOnOverlap:             false,
			HaltOnCoverage:            true,
			HaltOnCountMismatch:       true,
			CountMismatchThresholdPct: 10,
		},
		BatchIngestion: BatchIngestionConfig{
			Enabled:                 true,
			CheckpointDir:           "./checkpoints",
			MaxConcurrentStates:     4,
			CircuitBreakerThreshold: 3,
			ResumeOnRestart:         true,
		},
		Persistence: PersistenceConfig{
			DatabasePath: "./atlas.db",
			AutoMigrate:  true,
		},
		CrossValidation: CrossValidationConfig{
			Enabled:          true,
			FailOnMismatch:   false,
			MinQualityScore:  70,
			GracefulFallback: true,
		},
	}
}

// RetryDelay returns the configured retry delay as a time.Duration.
func (c ExtractionConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMS) * time.Millisecond
}

// Timeout returns the configured per-request timeout as a time.Duration.
func (c ExtractionConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// Load reads a YAML config document from path, applying defaults for any
// zero-valued group and validating the result.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path) //nolint:gosec // path supplied by operator, not request input
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks structural invariants on a Config using struct tags.
func Validate(cfg Config) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
