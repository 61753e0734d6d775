// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package progress derives a human-readable "current step" label for a
// live agent from the tail of its streaming output, for display by
// whatever UI the orchestrator drives. The classifier is pure and total:
// the same input always produces the same output, and every input maps
// to exactly one step.
package progress

import "regexp"

// Step is one of the fixed labels a live agent can be reported as.
type Step string

const (
	StepCommitting   Step = "Committing"
	StepStaging      Step = "Staging"
	StepLogging      Step = "Logging"
	StepUpdatingPRD  Step = "Updating PRD"
	StepLinting      Step = "Linting"
	StepTesting      Step = "Testing"
	StepWritingTests Step = "Writing tests"
	StepImplementing Step = "Implementing"
	StepReadingCode  Step = "Reading code"
	StepRunningCmd   Step = "Running cmd"
	StepThinking     Step = "Thinking"
)

// rule pairs a step with the pattern that identifies it in the output
// tail. Rules are tried in order; the first match wins. Keeping this as
// a data table, not a chain of if/else, is what makes it easy to extend
// or to unit-test exhaustively.
type rule struct {
	step    Step
	pattern *regexp.Regexp
}

var rules = []rule{
	{StepCommitting, regexp.MustCompile(`(?i)git\s+commit|"command"\s*:\s*"[^"]*\bcommit\b`)},
	{StepStaging, regexp.MustCompile(`(?i)git\s+add|git\s+stage|"command"\s*:\s*"[^"]*\bstage\b`)},
	{StepLogging, regexp.MustCompile(`(?i)progress\s*file|\.conductor-progress`)},
	{StepUpdatingPRD, regexp.MustCompile(`(?i)tasks\.graph|PRD\.spec|\btask[- ]graph\b`)},
	{StepLinting, regexp.MustCompile(`(?i)\blint\b|\beslint\b|\bbiome\b|\bprettier\b`)},
	{StepTesting, regexp.MustCompile(`(?i)\bvitest\b|\bjest\b|bun\s+test|npm\s+test|\bpytest\b|go\s+test`)},
	{StepWritingTests, regexp.MustCompile(`\.test\.|\.spec\.|__tests__|_test\.`)},
	{StepImplementing, regexp.MustCompile(`(?i)"tool"\s*:\s*"(write|edit)"|\btool_use\b.*\b(write|edit)\b`)},
	{StepReadingCode, regexp.MustCompile(`(?i)"tool"\s*:\s*"(read|glob|grep)"`)},
	{StepRunningCmd, regexp.MustCompile(`(?i)"tool"\s*:\s*"(bash|shell|terminal)"`)},
	{StepThinking, regexp.MustCompile(`(?i)"type"\s*:\s*"thinking"|\bthinking\b`)},
}

// Classify returns the current step for the given tail of an agent's
// streaming output, matching rules in order and defaulting to
// StepThinking when nothing else matches.
func Classify(tail string) Step {
	for _, r := range rules {
		if r.pattern.MatchString(tail) {
			return r.step
		}
	}
	return StepThinking
}
