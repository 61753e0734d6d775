// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package failure

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyDetectsExternalTokensCaseInsensitively(t *testing.T) {
	cases := []string{
		"Installation Failed: apt-get exited 1",
		"bash: foo: command not found",
		"open config.yaml: no such file or directory",
		"connection reset by peer",
		"x509: certificate signed by unknown authority",
		"operation TIMEOUT after 30s",
		"dial tcp: lookup failed: network is unreachable",
		"could not acquire lock file",
	}
	for _, msg := range cases {
		assert.Equal(t, External, Classify(msg), msg)
	}
}

func TestClassifyTreatsOtherMessagesAsInternal(t *testing.T) {
	assert.Equal(t, Internal, Classify("assertion failed: expected 3 got 4"))
	assert.Equal(t, Internal, Classify("panic: nil pointer dereference"))
}

func TestClassifyEmptyMessageIsUnknown(t *testing.T) {
	assert.Equal(t, Unknown, Classify(""))
	assert.Equal(t, Unknown, Classify("   "))
}

func TestControllerLatchExternalIsIdempotent(t *testing.T) {
	c := NewController()
	assert.True(t, c.LatchExternal("task-1", "network unreachable"))
	assert.False(t, c.LatchExternal("task-2", "timeout"))

	latched, l := c.Latched()
	assert.True(t, latched)
	assert.Equal(t, "task-1", l.TaskID)
}

type fakeProcess struct {
	done    chan struct{}
	stopped bool
	killed  bool
}

func newFakeProcess() *fakeProcess { return &fakeProcess{done: make(chan struct{})} }
func (p *fakeProcess) Stop() error { p.stopped = true; return nil }
func (p *fakeProcess) Kill() error { p.killed = true; close(p.done); return nil }
func (p *fakeProcess) Done() <-chan struct{} { return p.done }

func TestDrainReturnsImmediatelyWhenEverythingExitsWithinDeadline(t *testing.T) {
	p := newFakeProcess()
	close(p.done)

	c := NewController()
	forced := c.Drain(map[string]Process{"a": p}, 50*time.Millisecond, 50*time.Millisecond)
	assert.Empty(t, forced)
	assert.False(t, p.stopped)
}

func TestDrainStopsThenKillsSurvivors(t *testing.T) {
	p := newFakeProcess()

	c := NewController()
	forced := c.Drain(map[string]Process{"a": p}, 10*time.Millisecond, 10*time.Millisecond)
	require.Contains(t, forced, "a")
	assert.True(t, p.stopped)
	assert.True(t, p.killed)
}
