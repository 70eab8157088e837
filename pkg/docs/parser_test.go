package docs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, name, content string) string {
	t.Helper()
	path := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParse(t *testing.T) {
	t.Run("splits sections at headings with line ranges", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, root, "R1-ARCHITECTURE.md",
			"# Overview\n\nThe gateway fronts everything.\n\n## Payment Flow\n\nOrders call payments.\nPayments call ledger.\n")

		sections, err := Parse(root)
		require.NoError(t, err)
		require.Len(t, sections, 2)

		assert.Equal(t, "Overview", sections[0].Heading)
		assert.Equal(t, "R1", sections[0].Release)
		assert.Equal(t, "ARCHITECTURE", sections[0].DocType)
		assert.Equal(t, "R1-ARCHITECTURE.md", sections[0].File)
		assert.Equal(t, 1, sections[0].LineStart)
		assert.Equal(t, 4, sections[0].LineEnd)
		assert.Equal(t, "The gateway fronts everything.", sections[0].Content)

		assert.Equal(t, "Payment Flow", sections[1].Heading)
		assert.Equal(t, 5, sections[1].LineStart)
		assert.Equal(t, "Orders call payments.\nPayments call ledger.", sections[1].Content)
	})

	t.Run("normalizes CRLF line endings", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, root, "R1-NOTES.md", "# Title\r\n\r\nline one\r\nline two\r\n")

		sections, err := Parse(root)
		require.NoError(t, err)
		require.Len(t, sections, 1)
		assert.Equal(t, "line one\nline two", sections[0].Content)
	})

	t.Run("skips files without release prefix metadata", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, root, "README.md", "# Readme\n\nNot a corpus file.\n")
		writeFile(t, root, "R2-CONFIGURATION.md", "# Flags\n\ntimeout: 30\n")

		sections, err := Parse(root)
		require.NoError(t, err)
		require.Len(t, sections, 1)
		assert.Equal(t, "R2", sections[0].Release)
	})

	t.Run("rejects non-UTF-8 files", func(t *testing.T) {
		root := t.TempDir()
		path := filepath.Join(root, "R1-NOTES.md")
		require.NoError(t, os.WriteFile(path, []byte{0x23, 0x20, 0xff, 0xfe, 0x0a}, 0o644))

		_, err := Parse(root)
		require.Error(t, err)
		var parseErr *ParseError
		require.ErrorAs(t, err, &parseErr)
		assert.Equal(t, "R1-NOTES.md", parseErr.File)
	})

	t.Run("prefers legacy mnt/project directory when populated", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, root, "R1-NOTES.md", "# Root\n\nroot content\n")
		writeFile(t, root, "mnt/project/R9-NOTES.md", "# Legacy\n\nlegacy content\n")

		sections, err := Parse(root)
		require.NoError(t, err)
		require.Len(t, sections, 1)
		assert.Equal(t, "Legacy", sections[0].Heading)
		assert.Equal(t, "R9", sections[0].Release)
	})

	t.Run("skips hidden and dependency directories", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, root, "node_modules/R1-NOTES.md", "# Hidden\n\nx\n")
		writeFile(t, root, ".cache/R1-NOTES.md", "# Hidden\n\nx\n")
		writeFile(t, root, "R1-NOTES.md", "# Visible\n\nx\n")

		sections, err := Parse(root)
		require.NoError(t, err)
		require.Len(t, sections, 1)
		assert.Equal(t, "Visible", sections[0].Heading)
	})

	t.Run("honors docignore patterns", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, root, ".docignore", "R3-*.md\n")
		writeFile(t, root, "R1-NOTES.md", "# Keep\n\nx\n")
		writeFile(t, root, "R3-NOTES.md", "# Drop\n\nx\n")

		sections, err := Parse(root)
		require.NoError(t, err)
		require.Len(t, sections, 1)
		assert.Equal(t, "Keep", sections[0].Heading)
	})
}

func TestFingerprint(t *testing.T) {
	t.Run("is stable for an unchanged corpus", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, root, "R1-NOTES.md", "# A\n\nx\n")

		fp1, count1, err := Fingerprint(root)
		require.NoError(t, err)
		fp2, count2, err := Fingerprint(root)
		require.NoError(t, err)

		assert.Equal(t, fp1, fp2)
		assert.Equal(t, count1, count2)
		assert.Equal(t, 1, count1)
		assert.Len(t, fp1, 64)
	})

	t.Run("changes when a file is added", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, root, "R1-NOTES.md", "# A\n\nx\n")
		fp1, _, err := Fingerprint(root)
		require.NoError(t, err)

		writeFile(t, root, "R2-NOTES.md", "# B\n\ny\n")
		fp2, count, err := Fingerprint(root)
		require.NoError(t, err)

		assert.NotEqual(t, fp1, fp2)
		assert.Equal(t, 2, count)
	})

	t.Run("changes when a file's mtime changes", func(t *testing.T) {
		root := t.TempDir()
		path := writeFile(t, root, "R1-NOTES.md", "# A\n\nx\n")
		fp1, _, err := Fingerprint(root)
		require.NoError(t, err)

		future := time.Now().Add(2 * time.Second)
		require.NoError(t, os.Chtimes(path, future, future))

		fp2, _, err := Fingerprint(root)
		require.NoError(t, err)
		assert.NotEqual(t, fp1, fp2)
	})

	t.Run("differs per root path even for identical content", func(t *testing.T) {
		rootA := t.TempDir()
		rootB := t.TempDir()

		fpA, _, err := Fingerprint(rootA)
		require.NoError(t, err)
		fpB, _, err := Fingerprint(rootB)
		require.NoError(t, err)
		assert.NotEqual(t, fpA, fpB)
	})
}
