package docs

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

var (
	headingRe = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)

	// fileSelectRe selects release-prefixed Markdown files anywhere under
	// the root; bare .md files are selected only directly in the root.
	fileSelectRe = regexp.MustCompile(`^R\d+-.+\.md$`)

	// fileMetaRe captures release and docType. Files whose names do not
	// match yield zero sections.
	fileMetaRe = regexp.MustCompile(`^(R\d+)-([A-Z0-9_]+)\.md$`)
)

var skippedDirNames = map[string]bool{
	"node_modules": true,
	"build":        true,
	"dist":         true,
}

// legacyProjectDir is scanned first for backward compatibility; the walk
// falls back to the root only when it yields nothing.
const legacyProjectDir = "mnt/project"

// Parse discovers and parses every selected Markdown file under root.
// Individual unreadable directories are skipped; a non-UTF-8 file fails
// with a ParseError.
func Parse(root string) ([]Section, error) {
	files, err := DiscoverFiles(root)
	if err != nil {
		return nil, err
	}

	ignore := LoadIgnoreFilter(root)

	var sections []Section
	for _, file := range files {
		rel, err := filepath.Rel(root, file)
		if err != nil {
			rel = file
		}
		rel = filepath.ToSlash(rel)
		if ignore.Excluded(rel) {
			continue
		}

		fileSections, err := parseFile(file, rel)
		if err != nil {
			return nil, err
		}
		sections = append(sections, fileSections...)
	}

	return sections, nil
}

// DiscoverFiles returns the absolute paths of every Markdown file the parser
// would select, in walk order. The legacy <root>/mnt/project directory is
// preferred when it holds anything.
func DiscoverFiles(root string) ([]string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	legacy := filepath.Join(absRoot, filepath.FromSlash(legacyProjectDir))
	if info, err := os.Stat(legacy); err == nil && info.IsDir() {
		files := walkMarkdown(legacy)
		if len(files) > 0 {
			return files, nil
		}
	}

	return walkMarkdown(absRoot), nil
}

// walkMarkdown collects selected .md files under base. Directory read errors
// are swallowed so traversal continues past unreadable subtrees.
func walkMarkdown(base string) []string {
	var files []string

	_ = filepath.WalkDir(base, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}

		if d.IsDir() {
			if path == base {
				return nil
			}
			name := d.Name()
			if strings.HasPrefix(name, ".") || skippedDirNames[name] {
				return filepath.SkipDir
			}
			return nil
		}

		name := d.Name()
		if !strings.HasSuffix(name, ".md") {
			return nil
		}
		inRoot := filepath.Dir(path) == base
		if fileSelectRe.MatchString(name) || inRoot {
			files = append(files, path)
		}
		return nil
	})

	sort.Strings(files)
	return files
}

// parseFile splits one file into sections at ATX headings.
func parseFile(absPath, relPath string) ([]Section, error) {
	data, err := os.ReadFile(absPath)
	if err != nil {
		// Unreadable single files are skipped, matching directory errors.
		return nil, nil
	}
	if !utf8.Valid(data) {
		return nil, NewParseError(relPath, "file is not valid UTF-8", nil)
	}

	meta := fileMetaRe.FindStringSubmatch(filepath.Base(absPath))
	if meta == nil {
		return nil, nil
	}
	release, docType := meta[1], meta[2]

	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	lines := strings.Split(text, "\n")

	var sections []Section
	var current *Section
	var body []string

	flush := func(lineEnd int) {
		if current == nil {
			return
		}
		current.Content = strings.TrimSpace(strings.Join(body, "\n"))
		current.LineEnd = lineEnd
		sections = append(sections, *current)
		current = nil
		body = nil
	}

	for i, line := range lines {
		if m := headingRe.FindStringSubmatch(line); m != nil {
			flush(i) // previous section ends on the line before this heading
			current = &Section{
				File:      relPath,
				Release:   release,
				DocType:   docType,
				Heading:   strings.TrimSpace(m[2]),
				LineStart: i + 1,
			}
			continue
		}
		if current != nil {
			body = append(body, line)
		}
	}
	flush(len(lines))

	return sections, nil
}
