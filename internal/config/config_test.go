// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "conductor.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadValidConfiguration(t *testing.T) {
	path := writeConfig(t, `
project:
  name: "test-project"
  taskGraphPath: "tasks.yaml"

engine:
  name: "opencode"
  model: "anthropic/claude-3-5-sonnet-20241022"
  timeoutSeconds: 600

scheduling:
  maxConcurrent: 6

integration:
  targetBranch: "develop"
  runReview: true
  failOnBlocker: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "test-project", cfg.Project.Name)
	assert.Equal(t, "opencode", cfg.Engine.Name)
	assert.Equal(t, 6, cfg.Scheduling.MaxConcurrent)
	assert.Equal(t, "develop", cfg.Integration.TargetBranch)
	assert.True(t, cfg.Integration.RunReview)
	assert.Equal(t, 600*time.Second, cfg.Engine.Timeout())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "project:\n  name: [unterminated\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
project:
  name: "minimal"
  taskGraphPath: "tasks.yaml"
engine:
  name: "opencode"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.NotEmpty(t, cfg.Project.RepoDir)
	assert.Contains(t, cfg.Project.WorktreeBaseDir, ".conductor")
	assert.Equal(t, 4, cfg.Scheduling.MaxConcurrent)
	assert.Equal(t, "main", cfg.Integration.TargetBranch)
	assert.Equal(t, 30*time.Minute, cfg.Engine.Timeout())
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name        string
		cfg         Config
		wantErr     bool
		errContains string
	}{
		{
			name: "valid",
			cfg: Config{
				Project:    ProjectConfig{Name: "p", TaskGraphPath: "t.yaml"},
				Engine:     EngineConfig{Name: "opencode"},
				Scheduling: SchedulingConfig{MaxConcurrent: 1},
			},
		},
		{
			name:        "missing project name",
			cfg:         Config{Project: ProjectConfig{TaskGraphPath: "t.yaml"}, Engine: EngineConfig{Name: "opencode"}, Scheduling: SchedulingConfig{MaxConcurrent: 1}},
			wantErr:     true,
			errContains: "project.name",
		},
		{
			name:        "missing task graph path",
			cfg:         Config{Project: ProjectConfig{Name: "p"}, Engine: EngineConfig{Name: "opencode"}, Scheduling: SchedulingConfig{MaxConcurrent: 1}},
			wantErr:     true,
			errContains: "taskGraphPath",
		},
		{
			name:        "missing engine name",
			cfg:         Config{Project: ProjectConfig{Name: "p", TaskGraphPath: "t.yaml"}, Scheduling: SchedulingConfig{MaxConcurrent: 1}},
			wantErr:     true,
			errContains: "engine.name",
		},
		{
			name:        "invalid concurrency",
			cfg:         Config{Project: ProjectConfig{Name: "p", TaskGraphPath: "t.yaml"}, Engine: EngineConfig{Name: "opencode"}, Scheduling: SchedulingConfig{MaxConcurrent: 0}},
			wantErr:     true,
			errContains: "maxConcurrent",
		},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
				return
			}
			assert.NoError(t, err)
		})
	}
}
