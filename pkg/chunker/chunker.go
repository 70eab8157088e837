// Package chunker splits parsed sections into token-bounded, overlapping
// chunks suitable for embedding. Chunk content always begins with the section
// heading so each fragment stays self-describing.
package chunker

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/docfoundry/docfoundry/pkg/docs"
)

// Options configures chunking behavior.
type Options struct {
	// MaxTokens is the target chunk size. Default: 512.
	MaxTokens int

	// OverlapTokens seeds each chunk with the tail of the previous one.
	// Default: 50.
	OverlapTokens int

	// RespectHeadings starts a new segment at every Markdown heading.
	RespectHeadings bool

	// RespectCodeFences keeps fenced code blocks within one segment.
	RespectCodeFences bool
}

// DefaultOptions returns the standard chunking configuration.
func DefaultOptions() Options {
	return Options{
		MaxTokens:         512,
		OverlapTokens:     50,
		RespectHeadings:   true,
		RespectCodeFences: true,
	}
}

func (o *Options) setDefaults() {
	if o.MaxTokens <= 0 {
		o.MaxTokens = 512
	}
	if o.OverlapTokens < 0 {
		o.OverlapTokens = 0
	}
}

// Metadata carries the source section fields plus the chunk's position.
type Metadata struct {
	docs.Section
	ChunkIndex  int `json:"chunkIndex"`
	TotalChunks int `json:"totalChunks"`
}

// Chunk is a bounded-size fragment of a Section.
type Chunk struct {
	// ID follows the schema "<file>:<lineStart>-<lineEnd>:<chunkIndex>"
	// and is unique within a corpus root.
	ID       string   `json:"id"`
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`
	Tokens   int      `json:"tokens"`
}

var headingLineRe = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)

// blankFlushLines is the segment size beyond which a blank line splits.
const blankFlushLines = 10

// EstimateTokens approximates the token count as ceil(len/4).
func EstimateTokens(s string) int {
	return (len(s) + 3) / 4
}

// Split chunks a section. The result is never empty: a section whose content
// fits within MaxTokens yields exactly one chunk.
func Split(section docs.Section, opts Options) []Chunk {
	opts.setDefaults()

	prefix := section.Heading + "\n\n"
	prefixTokens := EstimateTokens(prefix)

	if EstimateTokens(section.Content) <= opts.MaxTokens {
		content := prefix + section.Content
		return finalize(section, []string{content})
	}

	segments := splitSegments(section.Content, opts)

	var contents []string
	var current []string
	currentTokens := 0

	emit := func() {
		if len(current) == 0 {
			return
		}
		contents = append(contents, prefix+strings.Join(current, "\n"))

		// Seed the next chunk with whole trailing segments whose combined
		// estimate stays within the overlap budget.
		var overlap []string
		overlapTokens := 0
		for i := len(current) - 1; i >= 0; i-- {
			segTokens := EstimateTokens(current[i])
			if overlapTokens+segTokens > opts.OverlapTokens {
				break
			}
			overlap = append([]string{current[i]}, overlap...)
			overlapTokens += segTokens
		}
		current = overlap
		currentTokens = overlapTokens
	}

	for _, seg := range segments {
		segTokens := EstimateTokens(seg)
		if len(current) > 0 && prefixTokens+currentTokens+segTokens > opts.MaxTokens {
			emit()
		}
		current = append(current, seg)
		currentTokens += segTokens
	}
	emit()

	if len(contents) == 0 {
		contents = []string{prefix + section.Content}
	}
	return finalize(section, contents)
}

// splitSegments divides content into heading- and fence-respecting runs of
// lines. Long prose runs are additionally broken at blank lines.
func splitSegments(content string, opts Options) []string {
	var segments []string
	var current []string
	inFence := false

	flush := func() {
		if len(current) > 0 {
			segments = append(segments, strings.Join(current, "\n"))
			current = nil
		}
	}

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		isFence := strings.HasPrefix(trimmed, "```")

		if opts.RespectCodeFences && isFence {
			if inFence {
				current = append(current, line)
				flush()
				inFence = false
			} else {
				flush()
				current = append(current, line)
				inFence = true
			}
			continue
		}

		if inFence {
			current = append(current, line)
			continue
		}

		if opts.RespectHeadings && headingLineRe.MatchString(line) {
			flush()
			current = append(current, line)
			continue
		}

		if trimmed == "" && len(current) > blankFlushLines {
			flush()
		}
		current = append(current, line)
	}
	flush()

	return segments
}

// finalize assigns ids, indexes, and token counts.
func finalize(section docs.Section, contents []string) []Chunk {
	total := len(contents)
	chunks := make([]Chunk, 0, total)
	for i, content := range contents {
		chunks = append(chunks, Chunk{
			ID: fmt.Sprintf("%s:%d-%d:%d",
				section.File, section.LineStart, section.LineEnd, i),
			Content: content,
			Metadata: Metadata{
				Section:     section,
				ChunkIndex:  i,
				TotalChunks: total,
			},
			Tokens: EstimateTokens(content),
		})
	}
	return chunks
}
