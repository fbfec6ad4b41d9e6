// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/beaver/pkg/logging"
	"github.com/AleutianAI/beaver/services/beaver/decider"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, decider.DefaultOrder, cfg.Deciders)
	assert.Equal(t, decider.DefaultBudget(), cfg.Budget)
	assert.True(t, cfg.Runner.VerifyCertificates)
	assert.False(t, cfg.Store.Enabled())
}

func TestDefaultConfig_DecidersNotAliased(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Deciders[0] = decider.KindInductive
	assert.Equal(t, decider.KindCyclers, decider.DefaultOrder[0])
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Budget, cfg.Budget)
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "beaver.yaml", `
budget:
  max_steps: 500
  max_period: 2
deciders: [bouncers, cyclers]
runner:
  workers: 8
store:
  in_memory: true
logging:
  level: debug
  json: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, int64(500), cfg.Budget.MaxSteps)
	assert.Equal(t, 2, cfg.Budget.MaxPeriod)
	assert.Equal(t, DefaultConfig().Budget.MaxClasses, cfg.Budget.MaxClasses, "unset fields keep defaults")
	assert.Equal(t, []decider.Kind{decider.KindBouncers, decider.KindCyclers}, cfg.Deciders)
	assert.Equal(t, 8, cfg.Runner.Workers)
	assert.True(t, cfg.Store.Enabled())
	assert.Equal(t, logging.LevelDebug, cfg.Logging.Level)
	assert.True(t, cfg.Logging.JSON)
}

func TestLoad_JSON(t *testing.T) {
	path := writeFile(t, "beaver.json", `{"budget": {"max_steps": 77, "max_period": 3}, "server": {"addr": ":9999", "requests_per_second": 1, "burst": 1}}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, int64(77), cfg.Budget.MaxSteps)
	assert.Equal(t, ":9999", cfg.Server.Addr)
}

func TestLoad_Malformed(t *testing.T) {
	path := writeFile(t, "bad.yaml", "budget: [unterminated")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "beaver.yaml", "budget:\n  max_steps: 500\n")
	t.Setenv("BEAVER_MAX_STEPS", "900")
	t.Setenv("BEAVER_MAX_CLASSES", "12")
	t.Setenv("BEAVER_DECIDERS", "backward, inductive")
	t.Setenv("BEAVER_VERIFY", "false")
	t.Setenv("BEAVER_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, int64(900), cfg.Budget.MaxSteps)
	assert.Equal(t, 12, cfg.Budget.MaxClasses)
	assert.Equal(t, []decider.Kind{decider.KindBackward, decider.KindInductive}, cfg.Deciders)
	assert.False(t, cfg.Runner.VerifyCertificates)
	assert.Equal(t, logging.LevelWarn, cfg.Logging.Level)
}

func TestLoad_BadEnvValue(t *testing.T) {
	t.Setenv("BEAVER_MAX_RECORDS", "lots")
	_, err := Load("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown decider", func(c *Config) { c.Deciders = []decider.Kind{"oracle"} }},
		{"duplicate decider", func(c *Config) { c.Deciders = []decider.Kind{decider.KindCyclers, decider.KindCyclers} }},
		{"no deciders", func(c *Config) { c.Deciders = nil }},
		{"zero workers", func(c *Config) { c.Runner.Workers = 0 }},
		{"negative budget", func(c *Config) { c.Budget.MaxSteps = -1 }},
		{"order too high", func(c *Config) { c.Budget.MaxPolynomialOrder = 3 }},
		{"bad exporter", func(c *Config) { c.Telemetry.TraceExporter = "zipkin" }},
		{"zero rate", func(c *Config) { c.Server.RequestsPerSecond = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestValidate_BudgetErrorIsWrapped(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Budget.MaxPeriod = 0
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}
