package facts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "max retries", Normalize("  Max   Retries "))
	assert.Equal(t, "a b", Normalize("A\r\nB"))
	assert.Equal(t, "", Normalize("   "))
}

func TestCanonicalize(t *testing.T) {
	t.Run("numbers lose separators", func(t *testing.T) {
		assert.Equal(t, "1000", Canonicalize("1,000"))
		assert.Equal(t, "1000", Canonicalize("1 000"))
		assert.Equal(t, "1000", Canonicalize("1000"))
		assert.Equal(t, "3.5", Canonicalize("3.5"))
	})

	t.Run("booleans lowercase", func(t *testing.T) {
		assert.Equal(t, "true", Canonicalize("TRUE"))
		assert.Equal(t, "false", Canonicalize("False"))
	})

	t.Run("plain strings normalize only", func(t *testing.T) {
		assert.Equal(t, "redis cluster", Canonicalize("  Redis   Cluster "))
	})
}

func TestHashTriple(t *testing.T) {
	t.Run("equivalent objects hash equal", func(t *testing.T) {
		assert.Equal(t,
			HashTriple("Max Connections", "is", "1,000"),
			HashTriple("max   connections", "is", "1000"))
	})

	t.Run("different objects hash differently", func(t *testing.T) {
		assert.NotEqual(t,
			HashTriple("timeout", "is", "30"),
			HashTriple("timeout", "is", "60"))
	})
}

func TestExtractFromMarkdown(t *testing.T) {
	t.Run("extracts key-value lines with locations", func(t *testing.T) {
		content := "timeout: 30\nretries = 5\nowner - platform team"
		facts := ExtractFromMarkdown(content, "R1-CONFIGURATION.md", "Limits", 12)

		require.Len(t, facts, 3)
		assert.Equal(t, "timeout", facts[0].Subject)
		assert.Equal(t, "is", facts[0].Predicate)
		assert.Equal(t, "30", facts[0].Object)
		assert.Equal(t, 12, facts[0].LineStart)
		assert.Equal(t, "Limits", facts[0].Heading)

		assert.Equal(t, "retries", facts[1].Subject)
		assert.Equal(t, "5", facts[1].Object)
		assert.Equal(t, 13, facts[1].LineStart)

		assert.Equal(t, "owner", facts[2].Subject)
		assert.Equal(t, "platform team", facts[2].Object)
	})

	t.Run("skips headings comments and blank lines", func(t *testing.T) {
		content := "# timeout: 30\n\n<!-- note: internal -->\nreal: value"
		facts := ExtractFromMarkdown(content, "f.md", "", 1)
		require.Len(t, facts, 1)
		assert.Equal(t, "real", facts[0].Subject)
	})

	t.Run("skips emphasis and quote lines", func(t *testing.T) {
		content := "**Added:** 2026-01-01T00:00:00Z\n> quoted: thing\nreal: value"
		facts := ExtractFromMarkdown(content, "f.md", "", 1)
		require.Len(t, facts, 1)
		assert.Equal(t, "real", facts[0].Subject)
	})

	t.Run("ignores lines without a separator", func(t *testing.T) {
		facts := ExtractFromMarkdown("just prose, no structure here", "f.md", "", 1)
		assert.Empty(t, facts)
	})

	t.Run("list bullets never become subjects", func(t *testing.T) {
		facts := ExtractFromMarkdown("- item one\n- item two", "f.md", "", 1)
		assert.Empty(t, facts)
	})
}

func TestExtractFromDiff(t *testing.T) {
	t.Run("strips added and context prefixes", func(t *testing.T) {
		diff := "+timeout: 30\n context: kept\n-removed: 99"
		facts := ExtractFromDiff(diff, "f.md")

		require.Len(t, facts, 2)
		assert.Equal(t, "timeout", facts[0].Subject)
		assert.Equal(t, "context", facts[1].Subject)
	})

	t.Run("removed lines never parse", func(t *testing.T) {
		facts := ExtractFromDiff("-timeout: 30", "f.md")
		assert.Empty(t, facts)
	})

	t.Run("equivalent added and context lines yield one fact", func(t *testing.T) {
		diff := "+timeout: 30\n timeout: 30"
		facts := ExtractFromDiff(diff, "f.md")
		assert.Len(t, facts, 1)
	})
}
