// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package taskgraph

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads and parses a task-graph document from path, accepting the
// legacy `mutex` field alias for `locks` on any task.
func Load(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("taskgraph: read %s: %w", path, err)
	}

	var raw rawDocument
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Document{}, fmt.Errorf("taskgraph: parse %s: %w", path, err)
	}
	return raw.toDocument(), nil
}

// Save marshals doc and writes it to path in a single write call, always
// using the current `locks` field name.
func Save(path string, doc Document) error {
	raw := fromDocument(doc)
	data, err := yaml.Marshal(raw)
	if err != nil {
		return fmt.Errorf("taskgraph: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("taskgraph: write %s: %w", path, err)
	}
	return nil
}
