// Package search scores corpus sections against free-text queries and caches
// results keyed by corpus fingerprint.
package search

import (
	"fmt"
	"sort"
	"strings"

	"github.com/docfoundry/docfoundry/pkg/docs"
)

// Filters narrows the candidate sections before scoring.
type Filters struct {
	// Release requires an exact match.
	Release string `json:"release,omitempty"`

	// Service requires a case-insensitive substring match in heading or
	// content.
	Service string `json:"service,omitempty"`

	// DocTypes is a set-membership filter.
	DocTypes []string `json:"docTypes,omitempty"`
}

// Options configures a lexical scoring pass.
type Options struct {
	Filters
	// MaxResults caps the returned hits. Default: 5.
	MaxResults int `json:"maxResults,omitempty"`
}

// Hit is a scored section. Higher score means more relevant; ties preserve
// source order.
type Hit struct {
	Section      docs.Section `json:"section"`
	Score        float64      `json:"score"`
	MatchReasons []string     `json:"matchReasons"`
	Snippet      string       `json:"snippet"`
}

// domainKeywords earn a one-time bonus when shared by query and section.
var domainKeywords = []string{
	"implementation", "architecture", "flow", "diagram",
	"example", "interface", "contract", "specification",
}

const (
	bonusHeadingPhrase = 100
	bonusContentPhrase = 50
	bonusHeadingTerm   = 10
	bonusContentTerm   = 5
	bonusKeyword       = 15
	minTermLength      = 3
)

// Score ranks sections against the query and returns the top MaxResults hits
// with positive scores.
func Score(sections []docs.Section, query string, opts Options) []Hit {
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = 5
	}

	queryLower := strings.ToLower(query)
	terms := queryTerms(queryLower)

	var hits []Hit
	for _, section := range sections {
		if !matchesFilters(section, opts.Filters) {
			continue
		}

		headingLower := strings.ToLower(section.Heading)
		contentLower := strings.ToLower(section.Content)

		score := 0.0
		var reasons []string

		if strings.Contains(headingLower, queryLower) {
			score += bonusHeadingPhrase
			reasons = append(reasons, "Exact match in heading")
		}
		if strings.Contains(contentLower, queryLower) {
			score += bonusContentPhrase
			reasons = append(reasons, "Exact match in content")
		}

		headingTerms, contentTerms := 0, 0
		for _, term := range terms {
			if strings.Contains(headingLower, term) {
				score += bonusHeadingTerm
				headingTerms++
			}
			if strings.Contains(contentLower, term) {
				score += bonusContentTerm
				contentTerms++
			}
		}
		if headingTerms > 0 {
			reasons = append(reasons, fmt.Sprintf("%d terms in heading", headingTerms))
		}
		if contentTerms > 0 {
			reasons = append(reasons, fmt.Sprintf("%d terms in content", contentTerms))
		}

		for _, kw := range domainKeywords {
			if strings.Contains(queryLower, kw) &&
				(strings.Contains(headingLower, kw) || strings.Contains(contentLower, kw)) {
				score += bonusKeyword
				reasons = append(reasons, fmt.Sprintf("Shared keyword: %s", kw))
				break
			}
		}

		if score > 0 {
			hits = append(hits, Hit{
				Section:      section,
				Score:        score,
				MatchReasons: reasons,
				Snippet:      summarize(section.Content),
			})
		}
	}

	// Stable: equal scores keep source order.
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})

	if len(hits) > maxResults {
		hits = hits[:maxResults]
	}
	return hits
}

func queryTerms(queryLower string) []string {
	var terms []string
	for _, t := range strings.Fields(queryLower) {
		if len(t) >= minTermLength {
			terms = append(terms, t)
		}
	}
	return terms
}

func matchesFilters(section docs.Section, f Filters) bool {
	if f.Release != "" && section.Release != f.Release {
		return false
	}
	if f.Service != "" {
		service := strings.ToLower(f.Service)
		if !strings.Contains(strings.ToLower(section.Heading), service) &&
			!strings.Contains(strings.ToLower(section.Content), service) {
			return false
		}
	}
	if len(f.DocTypes) > 0 {
		found := false
		for _, dt := range f.DocTypes {
			if section.DocType == dt {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
