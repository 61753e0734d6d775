// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package taskgraph

import (
	"path"
	"strings"

	"conductor/internal/patternmatch"
)

// lockRule maps a touched-path glob to the canonical lock name it implies.
// Rules are tried in order; the first match wins, so more specific patterns
// must come before their catch-alls.
type lockRule struct {
	pattern string
	lock    string
}

var inferenceRules = []lockRule{
	{pattern: "package.json", lock: "lockfile"},
	{pattern: "package-lock.json", lock: "lockfile"},
	{pattern: "yarn.lock", lock: "lockfile"},
	{pattern: "pnpm-lock.yaml", lock: "lockfile"},
	{pattern: "go.sum", lock: "lockfile"},
	{pattern: "go.mod", lock: "lockfile"},
	{pattern: "migrations/*", lock: "db-migrations"},
	{pattern: "*/migrations/*", lock: "db-migrations"},
	{pattern: "schema/*", lock: "db-schema"},
	{pattern: "*/schema/*", lock: "db-schema"},
	{pattern: "router/*", lock: "router"},
	{pattern: "*/router/*", lock: "router"},
	{pattern: "routes/*", lock: "router"},
	{pattern: "*/routes/*", lock: "router"},
	{pattern: ".env", lock: "global-config"},
	{pattern: ".env.*", lock: "global-config"},
	{pattern: "config/*", lock: "global-config"},
	{pattern: "*/config/*", lock: "global-config"},
	{pattern: "configs/*", lock: "global-config"},
	{pattern: "*/configs/*", lock: "global-config"},
	{pattern: "settings/*", lock: "global-config"},
	{pattern: "*/settings/*", lock: "global-config"},
}

// InferLocks computes the canonical lock name implied by a single touched
// path. It consults inferenceRules first, then falls back to the path's
// top-level segment, and finally to "root" for a bare filename with no
// directory component.
func InferLocks(touchPath string) string {
	clean := path.Clean(touchPath)
	for _, rule := range inferenceRules {
		if ok, _ := patternmatch.Match(clean, rule.pattern); ok {
			return rule.lock
		}
	}
	if idx := strings.IndexByte(clean, '/'); idx >= 0 {
		return clean[:idx]
	}
	return "root"
}

// EffectiveLocks returns the union of a task's explicit locks and the locks
// inferred from its touches, deduplicated and in deterministic order:
// explicit locks first in their declared order, then newly inferred locks
// in the order their touches appear.
func EffectiveLocks(t Task) []string {
	seen := make(map[string]bool, len(t.Locks)+len(t.Touches))
	out := make([]string, 0, len(t.Locks)+len(t.Touches))

	for _, l := range t.Locks {
		if !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}
	for _, touch := range t.Touches {
		l := InferLocks(touch)
		if !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}
	return out
}
