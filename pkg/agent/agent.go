// Package agent proposes and applies append-style documentation updates.
// Suggestions are pure previews; only ApplyUpdate touches the filesystem.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/docfoundry/docfoundry/pkg/docs"
	"github.com/docfoundry/docfoundry/pkg/facts"
	"github.com/docfoundry/docfoundry/pkg/rag"
)

// ConflictError reports that an update asserts facts contradicting the
// corpus and was not forced.
type ConflictError struct {
	Conflicts []facts.Conflict
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("Conflicting facts detected (%d). Use force=true to override.", len(e.Conflicts))
}

// Intent describes a requested documentation update. TargetFile, when set,
// overrides keyword inference; Release defaults to R1.
type Intent struct {
	Intent     string `json:"intent"`
	Context    string `json:"context,omitempty"`
	TargetFile string `json:"targetFile,omitempty"`
	Release    string `json:"targetRelease,omitempty"`
}

// Suggestion is a preview of an append-style update, with fact preflight
// results. Citations point at the corpus facts the preflight matched.
// Blocked suggestions should not be applied without force.
type Suggestion struct {
	TargetFile string            `json:"targetFile"`
	Action     string            `json:"action"`
	Diff       string            `json:"diff"`
	Rationale  string            `json:"rationale"`
	Facts      []facts.Fact      `json:"facts,omitempty"`
	Duplicates []facts.Duplicate `json:"duplicates,omitempty"`
	Conflicts  []facts.Conflict  `json:"conflicts,omitempty"`
	Citations  []rag.Citation    `json:"citations,omitempty"`
	Blocked    bool              `json:"blocked"`
}

// ApplyResult reports a completed update.
type ApplyResult struct {
	Status     string `json:"status"`
	File       string `json:"path"`
	Created    bool   `json:"created"`
	Reindexed  bool   `json:"reindexed"`
	FactsAdded int    `json:"factsAdded"`
}

const (
	// ActionCreate targets a file that does not yet exist.
	ActionCreate = "create"

	// ActionUpdate appends to an existing file.
	ActionUpdate = "update"

	defaultRelease = "R1"
)

// suffixByKeyword maps intent keywords to target doc types, checked in
// order.
var suffixByKeyword = []struct {
	keyword string
	docType string
}{
	{"architecture", "ARCHITECTURE"},
	{"service", "SERVICE_CONTRACTS"},
	{"config", "CONFIGURATION"},
	{"migration", "MIGRATION_NOTES"},
}

// Agent performs update preflight and application against one doc cache and
// fact cache. Events, when set, receives lifecycle notifications; the
// doc_{created|updated} event is always emitted before reindex_triggered.
type Agent struct {
	docCache  *docs.IndexCache
	factCache *facts.Cache
	Events    func(docs.Event)

	// now is swappable for deterministic timestamps.
	now func() time.Time
}

// New creates an update agent.
func New(docCache *docs.IndexCache, factCache *facts.Cache) *Agent {
	return &Agent{
		docCache:  docCache,
		factCache: factCache,
		now:       time.Now,
	}
}

// TargetFile infers the file an intent should land in. The release defaults
// to R1 when empty.
func TargetFile(intent, release string) string {
	if release == "" {
		release = defaultRelease
	}
	docType := "NOTES"
	intentLower := strings.ToLower(intent)
	for _, entry := range suffixByKeyword {
		if strings.Contains(intentLower, entry.keyword) {
			docType = entry.docType
			break
		}
	}
	return fmt.Sprintf("%s-%s.md", release, docType)
}

// SuggestUpdate composes an append-style diff for the intent and runs fact
// preflight against the corpus. Nothing is written.
func (a *Agent) SuggestUpdate(ctx context.Context, root string, in Intent) (*Suggestion, error) {
	intent := strings.TrimSpace(in.Intent)
	if intent == "" {
		return nil, fmt.Errorf("intent must not be empty")
	}

	targetFile := in.TargetFile
	if targetFile == "" {
		targetFile = TargetFile(intent, in.Release)
	}
	if err := validateTarget(targetFile); err != nil {
		return nil, err
	}
	fullPath := filepath.Join(root, targetFile)

	action := ActionUpdate
	if _, err := os.Stat(fullPath); os.IsNotExist(err) {
		action = ActionCreate
	}

	timestamp := a.now().UTC().Format(time.RFC3339)
	var diff string
	if action == ActionCreate {
		diff = fmt.Sprintf("# %s\n\n**Created:** %s\n\n%s\n", intent, timestamp, in.Context)
	} else {
		diff = fmt.Sprintf("\n\n## Update: %s\n\n**Added:** %s\n\n%s\n", intent, timestamp, in.Context)
	}

	suggestion := &Suggestion{
		TargetFile: targetFile,
		Action:     action,
		Diff:       diff,
		Rationale:  rationale(action, targetFile, intent),
	}
	suggestion.Facts = facts.ExtractFromDiff(diff, targetFile)

	idx, err := a.factIndex(root)
	if err != nil {
		// Preflight is advisory; a broken corpus must not block suggesting.
		slog.Warn("Fact preflight unavailable", "root", root, "error", err)
		return suggestion, nil
	}

	suggestion.Duplicates = idx.FindDuplicates(suggestion.Facts)
	suggestion.Conflicts = idx.FindConflicts(suggestion.Facts)
	suggestion.Citations = preflightCitations(suggestion.Duplicates, suggestion.Conflicts)
	suggestion.Blocked = len(suggestion.Conflicts) > 0
	return suggestion, nil
}

// rationale explains why the intent lands where it does.
func rationale(action, targetFile, intent string) string {
	if action == ActionCreate {
		return fmt.Sprintf("No %s exists yet; creating it to record %q.", targetFile, intent)
	}
	return fmt.Sprintf("%s already exists; appending a dated section to record %q.", targetFile, intent)
}

// preflightCitations maps the matched corpus facts into citations, one per
// distinct source location.
func preflightCitations(duplicates []facts.Duplicate, conflicts []facts.Conflict) []rag.Citation {
	seen := make(map[string]bool)
	var out []rag.Citation
	add := func(f facts.Fact) {
		key := fmt.Sprintf("%s:%d", f.File, f.LineStart)
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, rag.Citation{
			File:      f.File,
			Heading:   f.Heading,
			LineStart: f.LineStart,
			LineEnd:   f.LineEnd,
			Snippet:   fmt.Sprintf("%s: %s", f.Subject, f.Object),
			Relevance: 1,
		})
	}
	for _, d := range duplicates {
		add(d.Existing)
	}
	for _, c := range conflicts {
		add(c.Existing)
	}
	return out
}

// ApplyUpdate writes a previously suggested diff. Conflicting facts abort
// with a ConflictError unless force is set. Writes are atomic: the new
// content lands in a temp file that is renamed over the target.
func (a *Agent) ApplyUpdate(ctx context.Context, root, targetFile, diff string, force bool) (*ApplyResult, error) {
	if err := validateTarget(targetFile); err != nil {
		return nil, err
	}
	if strings.TrimSpace(diff) == "" {
		return nil, fmt.Errorf("diff must not be empty")
	}

	extracted := facts.ExtractFromDiff(diff, targetFile)
	if !force {
		if idx, err := a.factIndex(root); err != nil {
			slog.Warn("Fact preflight unavailable", "root", root, "error", err)
		} else if conflicts := idx.FindConflicts(extracted); len(conflicts) > 0 {
			return nil, &ConflictError{Conflicts: conflicts}
		}
	}

	fullPath := filepath.Join(root, targetFile)
	existing, err := os.ReadFile(fullPath)
	created := false
	var content string
	switch {
	case err == nil:
		content = string(existing) + "\n" + diff
	case os.IsNotExist(err):
		created = true
		content = diff
		if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directories for %s: %w", targetFile, err)
		}
	default:
		return nil, fmt.Errorf("failed to read %s: %w", targetFile, err)
	}

	if err := writeAtomic(fullPath, []byte(content)); err != nil {
		return nil, err
	}

	a.docCache.Invalidate(root)
	a.factCache.Invalidate(root)

	kind := docs.EventDocUpdated
	if created {
		kind = docs.EventDocCreated
	}
	a.emit(docs.Event{Kind: kind, Path: targetFile})
	a.emit(docs.Event{Kind: docs.EventReindexTriggered, Path: root})

	slog.Info("Applied documentation update",
		"file", targetFile, "created", created, "facts", len(extracted))

	return &ApplyResult{
		Status:     "success",
		File:       targetFile,
		Created:    created,
		Reindexed:  true,
		FactsAdded: len(extracted),
	}, nil
}

func validateTarget(targetFile string) error {
	if targetFile == "" || strings.Contains(targetFile, "..") || filepath.IsAbs(targetFile) {
		return fmt.Errorf("invalid target file %q", targetFile)
	}
	return nil
}

func (a *Agent) emit(event docs.Event) {
	if a.Events != nil {
		a.Events(event)
	}
}

// factIndex returns the fact index for root, parsing the corpus if needed.
func (a *Agent) factIndex(root string) (*facts.Index, error) {
	idx, err := a.docCache.Get(root, docs.GetOptions{})
	if err != nil {
		return nil, err
	}
	return a.factCache.Get(root, idx.Sections), nil
}

// writeAtomic writes content to a sibling temp file and renames it into
// place so readers never observe a partial file.
func writeAtomic(path string, content []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".docfoundry-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
