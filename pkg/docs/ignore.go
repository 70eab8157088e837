package docs

import (
	"bufio"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// IgnoreFilter matches corpus-relative paths against .docignore patterns.
//
// Patterns use gitignore-style syntax on paths normalized to forward
// slashes. The matcher buckets patterns for fast lookup: directory names,
// extension patterns, and general globs.
type IgnoreFilter struct {
	dirNames map[string]bool
	exts     map[string]bool
	globs    []string
}

// DocIgnoreName is the ignore file honored at the corpus root.
const DocIgnoreName = ".docignore"

// LoadIgnoreFilter reads <root>/.docignore if present. A missing file yields
// an empty filter that excludes nothing.
func LoadIgnoreFilter(root string) *IgnoreFilter {
	f := &IgnoreFilter{
		dirNames: make(map[string]bool),
		exts:     make(map[string]bool),
	}

	file, err := os.Open(filepath.Join(root, DocIgnoreName))
	if err != nil {
		return f
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		f.addPattern(line)
	}

	return f
}

func (f *IgnoreFilter) addPattern(pattern string) {
	p := filepath.ToSlash(pattern)
	p = strings.TrimPrefix(p, "/")
	p = strings.TrimSuffix(p, "/")

	switch {
	case strings.HasPrefix(p, "**/") && strings.HasSuffix(p, "/**"):
		f.dirNames[strings.Trim(p, "*/")] = true
	case strings.HasPrefix(p, "*."):
		f.exts[strings.TrimPrefix(p, "*")] = true
	case !strings.Contains(p, "*") && !strings.Contains(p, "/"):
		f.dirNames[p] = true
	default:
		f.globs = append(f.globs, p)
	}
}

// Excluded reports whether the corpus-relative path matches any pattern.
func (f *IgnoreFilter) Excluded(relPath string) bool {
	p := filepath.ToSlash(relPath)

	if ext := path.Ext(p); ext != "" && f.exts[ext] {
		return true
	}

	for _, part := range strings.Split(p, "/") {
		if f.dirNames[part] {
			return true
		}
	}

	for _, pattern := range f.globs {
		if matched, err := path.Match(pattern, p); err == nil && matched {
			return true
		}
		if strings.HasPrefix(pattern, "**/") {
			suffix := strings.TrimPrefix(pattern, "**/")
			if matched, err := path.Match(suffix, path.Base(p)); err == nil && matched {
				return true
			}
		}
	}

	return false
}
