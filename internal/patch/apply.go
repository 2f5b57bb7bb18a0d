// Package patch applies approved file-change sets and summarizes diffs.
package patch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Change describes the new state of one file.
type Change struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	// Delete marks the file for removal instead of a content write.
	Delete bool `json:"delete,omitempty"`
}

// Set maps file paths to their pending changes.
type Set map[string]Change

// Paths returns the sorted path list of the set.
func (s Set) Paths() []string {
	paths := make([]string, 0, len(s))
	for p := range s {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Applier writes approved file changes under a root directory.
type Applier struct {
	root string
}

// NewApplier creates an applier rooted at dir. Relative change paths resolve
// against it.
func NewApplier(dir string) *Applier {
	return &Applier{root: dir}
}

// Apply writes every change in the set. It stops at the first failure and
// returns it; earlier writes are not rolled back.
func (a *Applier) Apply(ctx context.Context, changes Set) error {
	for _, path := range changes.Paths() {
		if err := ctx.Err(); err != nil {
			return err
		}

		change := changes[path]
		target := path
		if !filepath.IsAbs(target) {
			target = filepath.Join(a.root, target)
		}

		if change.Delete {
			if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("failed to delete %s: %w", path, err)
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", path, err)
		}
		if err := os.WriteFile(target, []byte(change.Content), 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}

	return nil
}
