// Package docs discovers, parses, and caches Markdown corpora organized by
// release and document type.
//
// A corpus is a directory of files named R<digits>-<DOCTYPE>.md. Each file is
// split into sections at ATX headings; sections carry release and docType
// metadata extracted from the filename.
package docs

import "time"

// Section is a Markdown subtree rooted at one heading, up to but not
// including the next heading. Sections are immutable after parse; callers
// must not mutate them.
type Section struct {
	// File is the path relative to the corpus root, forward slashes.
	File string `json:"file"`

	// Release is the version token from the filename prefix, e.g. "R2".
	Release string `json:"release"`

	// DocType is the uppercase document category, e.g. "ARCHITECTURE".
	DocType string `json:"docType"`

	Heading string `json:"heading"`
	Content string `json:"content"`

	// LineStart is the 1-based line number of the heading line.
	LineStart int `json:"lineStart"`

	// LineEnd is the 1-based line number of the last line before the next
	// heading (or end of file).
	LineEnd int `json:"lineEnd"`
}

// DocIndex is the parsed view of a corpus root at a point in time.
type DocIndex struct {
	Sections    []Section `json:"sections"`
	Fingerprint string    `json:"fingerprint"`
	BuiltAt     time.Time `json:"builtAt"`
	FileCount   int       `json:"fileCount"`
}

// EventKind identifies a corpus lifecycle event.
type EventKind string

const (
	EventDocCreated       EventKind = "doc_created"
	EventDocUpdated       EventKind = "doc_updated"
	EventDocRemoved       EventKind = "doc_removed"
	EventDocIndexed       EventKind = "doc_indexed"
	EventReindexTriggered EventKind = "reindex_triggered"
	EventError            EventKind = "error"
)

// Event is a typed corpus lifecycle notification. Producers always emit
// doc_{created|updated|removed} before the corresponding reindex_triggered.
type Event struct {
	Kind EventKind
	Path string
	Err  error
}
