// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package config loads and validates the orchestrator's run configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete orchestrator configuration.
type Config struct {
	Project     ProjectConfig     `yaml:"project"`
	Engine      EngineConfig      `yaml:"engine"`
	Scheduling  SchedulingConfig  `yaml:"scheduling"`
	Integration IntegrationConfig `yaml:"integration"`
}

// ProjectConfig names the repository the orchestrator operates on.
type ProjectConfig struct {
	Name            string `yaml:"name"`
	RepoDir         string `yaml:"repoDir"`
	WorktreeBaseDir string `yaml:"worktreeBaseDir"`
	TaskGraphPath   string `yaml:"taskGraphPath"`
}

// EngineConfig selects and configures the agent engine used to run tasks.
type EngineConfig struct {
	Name           string            `yaml:"name"`
	Model          string            `yaml:"model"`
	Options        map[string]string `yaml:"options"`
	TimeoutSeconds int               `yaml:"timeoutSeconds"`
	MaxTurns       int               `yaml:"maxTurns"`
}

// Timeout returns the configured engine timeout, defaulting to 30 minutes.
func (e EngineConfig) Timeout() time.Duration {
	if e.TimeoutSeconds <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(e.TimeoutSeconds) * time.Second
}

// SchedulingConfig controls the DAG scheduler's concurrency.
type SchedulingConfig struct {
	MaxConcurrent int `yaml:"maxConcurrent"`
}

// IntegrationConfig controls the merge pipeline and review gate.
type IntegrationConfig struct {
	TargetBranch   string `yaml:"targetBranch"`
	RunReview      bool   `yaml:"runReview"`
	FailOnBlocker  bool   `yaml:"failOnBlocker"`
	SandboxEnabled bool   `yaml:"sandboxEnabled"`
	SandboxImage   string `yaml:"sandboxImage"`
}

// Load reads and parses a Config from path, filling in defaults for any
// field left unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if cfg.Project.RepoDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("config: resolve working directory: %w", err)
		}
		cfg.Project.RepoDir = cwd
	}
	if cfg.Project.WorktreeBaseDir == "" {
		cfg.Project.WorktreeBaseDir = filepath.Join(cfg.Project.RepoDir, ".conductor", "worktrees")
	}
	if cfg.Scheduling.MaxConcurrent <= 0 {
		cfg.Scheduling.MaxConcurrent = 4
	}
	if cfg.Integration.TargetBranch == "" {
		cfg.Integration.TargetBranch = "main"
	}

	return &cfg, nil
}

// Validate checks that a Config has everything required to start a run.
func (c *Config) Validate() error {
	if c.Project.Name == "" {
		return fmt.Errorf("config: project.name is required")
	}
	if c.Project.TaskGraphPath == "" {
		return fmt.Errorf("config: project.taskGraphPath is required")
	}
	if c.Engine.Name == "" {
		return fmt.Errorf("config: engine.name is required")
	}
	if c.Scheduling.MaxConcurrent < 1 {
		return fmt.Errorf("config: scheduling.maxConcurrent must be at least 1")
	}
	return nil
}
