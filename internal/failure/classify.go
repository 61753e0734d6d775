// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package failure classifies agent failures as external (infrastructure)
// or internal (the task's own code/tests), and latches a process-wide
// stop-admitting signal the first time an external failure occurs.
package failure

import "strings"

// Type is the classification of one failed task.
type Type string

const (
	External Type = "external"
	Internal Type = "internal"
	Unknown  Type = "unknown"
)

// externalTokens is the fixed, ordered list of canonical infrastructure
// substrings. Order doesn't affect the result (any match wins) but is
// kept stable for readability and diffability.
var externalTokens = []string{
	"installation failed",
	"command not found",
	"no such file or directory",
	"permission denied",
	"network",
	"timeout",
	"tls",
	"connection reset",
	"certificate",
	"ssl",
	"lock file",
}

// Classify applies a case-insensitive substring test against
// externalTokens. A match classifies the message as External; no match as
// Internal. An empty message is Unknown, since there is nothing to
// classify.
func Classify(message string) Type {
	if strings.TrimSpace(message) == "" {
		return Unknown
	}
	lower := strings.ToLower(message)
	for _, token := range externalTokens {
		if strings.Contains(lower, token) {
			return External
		}
	}
	return Internal
}
