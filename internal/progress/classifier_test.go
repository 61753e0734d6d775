// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyMatchesEachStepInRuleOrder(t *testing.T) {
	cases := []struct {
		tail string
		want Step
	}{
		{`running: git commit -m "add handler"`, StepCommitting},
		{`running: git add internal/handler.go`, StepStaging},
		{`appending to .conductor-progress`, StepLogging},
		{`updating tasks.graph with new dependency`, StepUpdatingPRD},
		{`npx eslint . --fix`, StepLinting},
		{`go test ./... -run TestHandler`, StepTesting},
		{`writing internal/handler_test.go`, StepWritingTests},
		{`{"tool":"write","path":"internal/handler.go"}`, StepImplementing},
		{`{"tool":"grep","pattern":"TODO"}`, StepReadingCode},
		{`{"tool":"bash","command":"ls -la"}`, StepRunningCmd},
		{`{"type":"thinking","text":"considering approach"}`, StepThinking},
		{`some unrecognized narration about the weather`, StepThinking},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Classify(c.tail), c.tail)
	}
}

func TestClassifyPrefersEarlierRuleOnAmbiguousInput(t *testing.T) {
	// Mentions both a commit and a test runner token; commit wins because
	// it is checked first.
	got := Classify(`git commit -m "fix go test failure"`)
	assert.Equal(t, StepCommitting, got)
}

func TestClassifyIsTotal(t *testing.T) {
	assert.Equal(t, StepThinking, Classify(""))
}
