// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvAsSliceFormatsKeyValuePairs(t *testing.T) {
	env := envAsSlice(map[string]string{"FOO": "bar"})
	assert.Equal(t, []string{"FOO=bar"}, env)
}

func TestEnvAsSliceEmptyForNoOverrides(t *testing.T) {
	assert.Empty(t, envAsSlice(nil))
}

func TestSandboxEngineCarriesConfiguredFields(t *testing.T) {
	e := &SandboxEngine{
		Image:      "golang:1.22",
		Command:    "claude",
		Args:       []string{"--print"},
		BypassFlag: "--dangerously-skip-permissions",
	}
	assert.Equal(t, "golang:1.22", e.Image)
	assert.Equal(t, "claude", e.Command)
	assert.Contains(t, e.Args, "--print")
}
