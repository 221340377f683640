// SPDX-License-Identifier: AGPL-3.0-or-later

// Package change decides what a single filesystem event means for the test loop:
// whether it should trigger a rerun, and whether the engine has to reload
// before results can be trusted again.
package change

import (
	"path/filepath"
	"strings"

	"github.com/bartekus/testloop/internal/scanner"
)

// Kind is the filesystem operation behind an Event.
type Kind int

const (
	KindOther Kind = iota
	KindModified
	KindCreated
	KindDeleted
)

func (k Kind) String() string {
	switch k {
	case KindModified:
		return "modified"
	case KindCreated:
		return "created"
	case KindDeleted:
		return "deleted"
	default:
		return "other"
	}
}

// Event is one raw change reported by the watcher.
type Event struct {
	Path string
	Kind Kind
}

// Decision is the classifier's verdict on an Event.
type Decision struct {
	// Rerun asks the scheduler for a new run (subject to debouncing).
	Rerun bool
	// Reload asks the engine to reload before the next run.
	Reload bool
	// Module is the changed file's base name without extension.
	// Cached engine state keyed by it must be invalidated before the next run.
	Module string
}

// Relevant reports whether the decision carries any requirement at all.
func (d Decision) Relevant() bool {
	return d.Rerun || d.Reload
}

// Rules configures the classifier.
type Rules struct {
	SourceExtensions []string
	MarkupExtensions []string
	ExcludeDirs      []string

	// Root is the watched directory. Exclusions only apply below it, so a
	// checkout that itself lives under a "build" directory still works.
	Root string

	// A source file is test code when its extension-less base name starts
	// with TestPrefix or ends with TestSuffix. Empty values disable the check.
	TestPrefix string
	TestSuffix string
}

// DefaultRules returns the rules for a Go module.
func DefaultRules() Rules {
	return Rules{
		SourceExtensions: []string{".go"},
		MarkupExtensions: []string{".tmpl", ".html", ".xml", ".sql", ".json", ".yaml", ".yml"},
		ExcludeDirs:      scanner.DefaultExcludeDirs(),
		TestSuffix:       "_test",
	}
}

// Classifier maps Events to Decisions. It is stateless and safe for concurrent use.
type Classifier struct {
	rules Rules
}

// NewClassifier creates a classifier for the given rules.
func NewClassifier(rules Rules) *Classifier {
	return &Classifier{rules: rules}
}

// Classify returns the Decision for ev. Anything it cannot make sense of
// yields the zero Decision.
func (c *Classifier) Classify(ev Event) Decision {
	if ev.Kind != KindModified {
		return Decision{}
	}
	path := strings.TrimSpace(ev.Path)
	if path == "" || scanner.Hidden(path) || scanner.Excluded(c.relative(path), c.rules.ExcludeDirs) {
		return Decision{}
	}

	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		return Decision{}
	}

	switch {
	case len(c.rules.SourceExtensions) > 0 && scanner.HasExtension(path, c.rules.SourceExtensions):
		return Decision{
			Rerun:  true,
			Reload: !c.IsTestFile(stem),
			Module: stem,
		}
	case len(c.rules.MarkupExtensions) > 0 && scanner.HasExtension(path, c.rules.MarkupExtensions):
		// A rerun follows with the next code change; the reload is remembered until then.
		return Decision{Reload: true}
	default:
		return Decision{}
	}
}

func (c *Classifier) relative(path string) string {
	if c.rules.Root == "" {
		return path
	}
	rel, err := filepath.Rel(c.rules.Root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return path
	}
	return rel
}

// IsTestFile reports whether an extension-less base name follows the test naming convention.
func (c *Classifier) IsTestFile(stem string) bool {
	if c.rules.TestPrefix != "" && strings.HasPrefix(stem, c.rules.TestPrefix) {
		return true
	}
	if c.rules.TestSuffix != "" && strings.HasSuffix(stem, c.rules.TestSuffix) {
		return true
	}
	return false
}
