package search

import (
	"regexp"
	"sort"
	"strings"

	"github.com/docfoundry/docfoundry/pkg/docs"
)

// SectionSummary is a per-release view of one matching section.
type SectionSummary struct {
	File      string `json:"file"`
	Heading   string `json:"heading"`
	Summary   string `json:"summary"`
	LineStart int    `json:"lineStart"`
	LineEnd   int    `json:"lineEnd"`
}

// ReleaseComparison maps a release token to the sections covering a feature.
type ReleaseComparison struct {
	Feature  string                      `json:"feature"`
	Releases map[string][]SectionSummary `json:"releases"`
}

const summaryLength = 200

// CompareReleases finds the sections covering feature in each requested
// release. Empty releases means every release present in the corpus.
func CompareReleases(sections []docs.Section, feature string, releases []string) ReleaseComparison {
	if len(releases) == 0 {
		seen := make(map[string]bool)
		for _, s := range sections {
			if !seen[s.Release] {
				seen[s.Release] = true
				releases = append(releases, s.Release)
			}
		}
		sort.Strings(releases)
	}

	cmp := ReleaseComparison{
		Feature:  feature,
		Releases: make(map[string][]SectionSummary, len(releases)),
	}

	for _, release := range releases {
		hits := Score(sections, feature, Options{
			Filters:    Filters{Release: release},
			MaxResults: 3,
		})
		summaries := make([]SectionSummary, 0, len(hits))
		for _, hit := range hits {
			summaries = append(summaries, SectionSummary{
				File:      hit.Section.File,
				Heading:   hit.Section.Heading,
				Summary:   summarize(hit.Section.Content),
				LineStart: hit.Section.LineStart,
				LineEnd:   hit.Section.LineEnd,
			})
		}
		cmp.Releases[release] = summaries
	}

	return cmp
}

func summarize(content string) string {
	// First paragraph, capped.
	paragraph := content
	if idx := strings.Index(content, "\n\n"); idx > 0 {
		paragraph = content[:idx]
	}
	paragraph = strings.TrimSpace(paragraph)
	if len(paragraph) > summaryLength {
		paragraph = paragraph[:summaryLength] + "..."
	}
	return paragraph
}

// ServiceDependencies lists the services a service calls and is called by,
// derived from "A -> B" arrows and dependency phrasing in the corpus.
type ServiceDependencies struct {
	Service  string   `json:"service"`
	Release  string   `json:"release,omitempty"`
	Inbound  []string `json:"inbound"`
	Outbound []string `json:"outbound"`
	DataFlow []string `json:"dataFlow,omitempty"`
}

var (
	arrowRe     = regexp.MustCompile(`^\s*[-*]?\s*([A-Za-z][\w .-]*?)\s*(?:->|→)\s*([A-Za-z][\w .-]*?)\s*(?::\s*(.*))?$`)
	dependsOnRe = regexp.MustCompile(`(?i)([A-Za-z][\w-]*)\s+(?:depends on|consumes|calls)\s+([A-Za-z][\w-]*)`)
)

// ExtractServiceDependencies scans sections for dependency statements about
// the named service. SERVICE_CONTRACTS sections are scanned first but any
// docType may contribute.
func ExtractServiceDependencies(sections []docs.Section, service, release string, includeDataFlow bool) ServiceDependencies {
	deps := ServiceDependencies{Service: service, Release: release}
	serviceLower := strings.ToLower(service)

	inbound := make(map[string]bool)
	outbound := make(map[string]bool)

	for _, section := range sections {
		if release != "" && section.Release != release {
			continue
		}
		for _, line := range strings.Split(section.Content, "\n") {
			if m := arrowRe.FindStringSubmatch(line); m != nil {
				from := strings.TrimSpace(m[1])
				to := strings.TrimSpace(m[2])
				switch {
				case strings.EqualFold(from, service):
					outbound[to] = true
				case strings.EqualFold(to, service):
					inbound[from] = true
				default:
					continue
				}
				if includeDataFlow {
					deps.DataFlow = append(deps.DataFlow, strings.TrimSpace(line))
				}
				continue
			}
			for _, m := range dependsOnRe.FindAllStringSubmatch(line, -1) {
				from, to := m[1], m[2]
				if strings.EqualFold(from, service) {
					outbound[to] = true
				} else if strings.EqualFold(to, service) {
					inbound[from] = true
				}
			}
			if includeDataFlow && strings.Contains(strings.ToLower(line), serviceLower) &&
				(strings.Contains(line, "->") || strings.Contains(line, "→")) {
				deps.DataFlow = append(deps.DataFlow, strings.TrimSpace(line))
			}
		}
	}

	deps.Inbound = sortedKeys(inbound)
	deps.Outbound = sortedKeys(outbound)
	deps.DataFlow = dedupe(deps.DataFlow)
	return deps
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	var out []string
	for _, item := range items {
		if !seen[item] {
			seen[item] = true
			out = append(out, item)
		}
	}
	return out
}
