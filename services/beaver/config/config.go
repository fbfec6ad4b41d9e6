// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the beaver harness configuration.
//
// Values are merged with priority env > file > defaults. Files may be YAML or
// JSON. Environment variables use the BEAVER_ prefix, for example
// BEAVER_MAX_STEPS=100000 or BEAVER_DECIDERS=cyclers,bouncers.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/beaver/pkg/logging"
	"github.com/AleutianAI/beaver/services/beaver/decider"
	"github.com/AleutianAI/beaver/services/beaver/telemetry"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// =============================================================================
// Types
// =============================================================================

// Config is the complete harness configuration.
type Config struct {
	// Budget holds the per-decider resource limits.
	Budget decider.Budget `json:"budget" yaml:"budget"`

	// Deciders is the order the runner tries deciders in.
	Deciders []decider.Kind `json:"deciders" yaml:"deciders" validate:"min=1,unique,dive,decider_kind"`

	Runner    RunnerConfig     `json:"runner" yaml:"runner"`
	Store     StoreConfig      `json:"store" yaml:"store"`
	Logging   logging.Config   `json:"logging" yaml:"logging"`
	Telemetry telemetry.Config `json:"telemetry" yaml:"telemetry"`
	Server    ServerConfig     `json:"server" yaml:"server"`
}

// RunnerConfig controls batch execution.
type RunnerConfig struct {
	// Workers bounds concurrently decided machines.
	Workers int `json:"workers" yaml:"workers" validate:"gte=1,lte=1024"`

	// VerifyCertificates re-checks every certificate before it is emitted.
	VerifyCertificates bool `json:"verify_certificates" yaml:"verify_certificates"`
}

// StoreConfig controls the certificate store.
type StoreConfig struct {
	// Path is the badger directory. Empty disables persistence unless
	// InMemory is set.
	Path string `json:"path" yaml:"path"`

	// InMemory keeps the store in memory. Useful for tests and serve mode.
	InMemory bool `json:"in_memory" yaml:"in_memory"`
}

// Enabled reports whether a store should be opened.
func (s StoreConfig) Enabled() bool {
	return s.InMemory || s.Path != ""
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	// Addr is the listen address.
	Addr string `json:"addr" yaml:"addr" validate:"required"`

	// RequestsPerSecond is the sustained rate of decide/verify requests.
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second" validate:"gt=0"`

	// Burst is the rate limiter bucket size.
	Burst int `json:"burst" yaml:"burst" validate:"gte=1"`
}

// =============================================================================
// Defaults and loading
// =============================================================================

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		Budget:   decider.DefaultBudget(),
		Deciders: append([]decider.Kind(nil), decider.DefaultOrder...),
		Runner: RunnerConfig{
			Workers:            4,
			VerifyCertificates: true,
		},
		Logging: logging.Config{
			Level:   logging.LevelInfo,
			Service: "beaver",
		},
		Telemetry: telemetry.DefaultConfig(),
		Server: ServerConfig{
			Addr:              ":8080",
			RequestsPerSecond: 20,
			Burst:             40,
		},
	}
}

// Load loads configuration with priority: env > file > defaults.
//
// Inputs:
//   - path: YAML or JSON file. Empty or missing means defaults only.
//
// Outputs:
//   - Config: Merged configuration.
//   - error: Non-nil if the file is unreadable or invalid, or if the merged
//     configuration fails validation.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := loadEnv(&cfg); err != nil {
		return cfg, fmt.Errorf("load config env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			return fmt.Errorf("parse config (tried YAML and JSON): YAML error: %v, JSON error: %w", err, jsonErr)
		}
	}
	return nil
}

// envInts maps integer budget variables to their fields.
func envInts(cfg *Config) map[string]*int {
	b := &cfg.Budget
	return map[string]*int{
		"BEAVER_MAX_HISTORY":             &b.MaxHistory,
		"BEAVER_MAX_WINDOW_RADIUS":       &b.MaxWindowRadius,
		"BEAVER_MAX_POLYNOMIAL_ORDER":    &b.MaxPolynomialOrder,
		"BEAVER_MAX_RECORDS":             &b.MaxRecords,
		"BEAVER_MAX_PERIOD":              &b.MaxPeriod,
		"BEAVER_MAX_CLASSES":             &b.MaxClasses,
		"BEAVER_MAX_FIXPOINT_ITERATIONS": &b.MaxFixpointIterations,
		"BEAVER_MAX_PATTERN_WIDTH":       &b.MaxPatternWidth,
		"BEAVER_MAX_BACKWARD_DEPTH":      &b.MaxBackwardDepth,
		"BEAVER_MAX_BACKWARD_NODES":      &b.MaxBackwardNodes,
		"BEAVER_WORKERS":                 &cfg.Runner.Workers,
		"BEAVER_SERVER_BURST":            &cfg.Server.Burst,
	}
}

func loadEnv(cfg *Config) error {
	if v := os.Getenv("BEAVER_MAX_STEPS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("BEAVER_MAX_STEPS: %w", err)
		}
		cfg.Budget.MaxSteps = n
	}
	for key, field := range envInts(cfg) {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*field = n
	}
	if v := os.Getenv("BEAVER_DECIDERS"); v != "" {
		var kinds []decider.Kind
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				kinds = append(kinds, decider.Kind(name))
			}
		}
		cfg.Deciders = kinds
	}
	if v := os.Getenv("BEAVER_VERIFY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("BEAVER_VERIFY: %w", err)
		}
		cfg.Runner.VerifyCertificates = b
	}
	if v := os.Getenv("BEAVER_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("BEAVER_LOG_LEVEL"); v != "" {
		if err := cfg.Logging.Level.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("BEAVER_LOG_LEVEL: %w", err)
		}
	}
	if v := os.Getenv("BEAVER_SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("BEAVER_SERVER_RPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("BEAVER_SERVER_RPS: %w", err)
		}
		cfg.Server.RequestsPerSecond = f
	}
	return nil
}

// =============================================================================
// Validation
// =============================================================================

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("decider_kind", validateDeciderKind)
}

// validateDeciderKind accepts the names of the built-in deciders.
func validateDeciderKind(fl validator.FieldLevel) bool {
	return decider.Kind(fl.Field().String()).Valid()
}

// Validator returns the shared validator with the beaver rules registered.
// The API validates request bodies with it.
func Validator() *validator.Validate {
	return validate
}

// Validate checks struct tags and the budget ranges.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := c.Budget.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}
