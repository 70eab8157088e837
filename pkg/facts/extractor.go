// Package facts extracts subject-predicate-object triples from corpus text
// and indexes them for duplicate and conflict detection. Canonicalization
// makes equivalent values hash-equal.
package facts

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"
)

// Fact is one extracted triple with its source location and canonical forms.
type Fact struct {
	Subject   string `json:"subject"`
	Predicate string `json:"predicate"`
	Object    string `json:"object"`

	File      string `json:"file"`
	Heading   string `json:"heading,omitempty"`
	LineStart int    `json:"lineStart,omitempty"`
	LineEnd   int    `json:"lineEnd,omitempty"`

	// NormalizedKey is normalize(subject) + "::" + normalize(predicate).
	NormalizedKey string `json:"normalizedKey"`

	// CanonicalObject is canonicalize(object).
	CanonicalObject string `json:"canonicalObject"`

	// Hash is a stable digest of the canonical triple.
	Hash string `json:"hash"`
}

// factLineRe matches "<subject> <sep> <object>" where sep is :, - or =.
// The subject must not start with or contain a separator character.
var factLineRe = regexp.MustCompile(`^([^:#=\-][^:=\-]{0,198}?)\s*[:=\-]\s*(.+)$`)

var whitespaceRe = regexp.MustCompile(`\s+`)

// Normalize lowercases, normalizes line endings, and collapses whitespace.
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ToLower(s)
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Canonicalize additionally maps numeric strings (allowing thousands
// separators and embedded spaces) to decimal form and true/false to
// lowercase.
func Canonicalize(s string) string {
	n := Normalize(s)

	candidate := strings.ReplaceAll(n, ",", "")
	candidate = strings.ReplaceAll(candidate, " ", "")
	if candidate != "" {
		if i, err := strconv.ParseInt(candidate, 10, 64); err == nil {
			return strconv.FormatInt(i, 10)
		}
		if f, err := strconv.ParseFloat(candidate, 64); err == nil {
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
	}

	// true/false are already lowercased by Normalize.
	return n
}

// HashTriple digests the canonical triple; equivalent facts hash equal.
func HashTriple(subject, predicate, object string) string {
	h := sha256.New()
	h.Write([]byte(Normalize(subject)))
	h.Write([]byte("|"))
	h.Write([]byte(Normalize(predicate)))
	h.Write([]byte("|"))
	h.Write([]byte(Canonicalize(object)))
	return hex.EncodeToString(h.Sum(nil))
}

// KeyFor builds the fact index key for a subject/predicate pair.
func KeyFor(subject, predicate string) string {
	return Normalize(subject) + "::" + Normalize(predicate)
}

// ExtractFromMarkdown scans content line by line for key/value-style facts.
// Headings, comments, blank lines, emphasis, bullets, and quotes are skipped
// so generated metadata like "**Added:** <timestamp>" never becomes a fact.
// lineOffset is the 1-based line number of content's first line in its
// source file.
func ExtractFromMarkdown(content, file, heading string, lineOffset int) []Fact {
	var out []Fact

	for i, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "<!--") ||
			strings.HasPrefix(trimmed, "*") || strings.HasPrefix(trimmed, ">") {
			continue
		}

		m := factLineRe.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}
		subject := strings.TrimSpace(m[1])
		object := strings.TrimSpace(m[2])
		if subject == "" || object == "" {
			continue
		}

		lineNo := lineOffset + i
		out = append(out, NewFact(subject, "is", object, file, heading, lineNo, lineNo))
	}

	return out
}

// ExtractFromDiff strips unified-diff prefixes ("+" and " "; removed lines
// are left untouched so they never parse) and extracts from the remainder.
// Facts are deduplicated by hash within the payload; duplicates against the
// index are the index's concern.
func ExtractFromDiff(diff, file string) []Fact {
	lines := strings.Split(diff, "\n")
	stripped := make([]string, 0, len(lines))
	for _, line := range lines {
		if len(line) > 0 && (line[0] == '+' || line[0] == ' ') {
			line = line[1:]
		}
		stripped = append(stripped, line)
	}

	extracted := ExtractFromMarkdown(strings.Join(stripped, "\n"), file, "", 1)

	seen := make(map[string]bool, len(extracted))
	var out []Fact
	for _, f := range extracted {
		if !seen[f.Hash] {
			seen[f.Hash] = true
			out = append(out, f)
		}
	}
	return out
}

// NewFact builds a fully-canonicalized fact.
func NewFact(subject, predicate, object, file, heading string, lineStart, lineEnd int) Fact {
	return Fact{
		Subject:         subject,
		Predicate:       predicate,
		Object:          object,
		File:            file,
		Heading:         heading,
		LineStart:       lineStart,
		LineEnd:         lineEnd,
		NormalizedKey:   KeyFor(subject, predicate),
		CanonicalObject: Canonicalize(object),
		Hash:            HashTriple(subject, predicate, object),
	}
}
