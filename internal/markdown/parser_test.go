package markdown

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/docforge/internal/docid"
)

func TestParseFrontmatterAndTitle(t *testing.T) {
	src := []byte("---\ntitle: Getting Started\ntags: [intro]\n---\n# Ignored heading\n\nBody.\n")
	parsed, deps, diags, err := NewParser().Parse(src, "guide/start", "guide/start.md")
	require.NoError(t, err)
	assert.Empty(t, diags)
	assert.Empty(t, deps)
	assert.Equal(t, "Getting Started", parsed.Title)
	assert.Equal(t, "intro", parsed.Frontmatter["tags"].([]any)[0])
	assert.NotEmpty(t, parsed.ContentFingerprint)
}

func TestParseTitleFromFirstHeading(t *testing.T) {
	parsed, _, _, err := NewParser().Parse([]byte("# Hello World\n\ntext\n"), "index", "index.md")
	require.NoError(t, err)
	assert.Equal(t, "Hello World", parsed.Title)
}

func TestParseExtractsDependencies(t *testing.T) {
	src := []byte(`# Links

[sibling](other.md)
[up](../intro.md)
[rooted](/reference/API.md#section)
[site](https://example.com/page.md)
[frag](#local)
![diagram](images/arch.png)
[dup](other.md)
`)
	_, deps, _, err := NewParser().Parse(src, "guide/start", "guide/start.md")
	require.NoError(t, err)

	assert.Equal(t, []docid.NodeRef{
		docid.DocNode("guide/other"),
		docid.DocNode("intro"),
		docid.DocNode("reference/api"),
		docid.AssetNode("guide/images/arch.png"),
	}, deps)
}

func TestParseMalformedFrontmatterFails(t *testing.T) {
	_, _, _, err := NewParser().Parse([]byte("---\ntitle: [unclosed\n---\nbody\n"), "a", "a.md")
	assert.Error(t, err)

	_, _, _, err = NewParser().Parse([]byte("---\ntitle: x\nno closing delimiter\n"), "a", "a.md")
	assert.Error(t, err)
}

func TestParseSelfLinkIgnored(t *testing.T) {
	_, deps, _, err := NewParser().Parse([]byte("[me](start.md)\n"), "start", "start.md")
	require.NoError(t, err)
	assert.Empty(t, deps)
}

func TestFingerprintChangesWithContent(t *testing.T) {
	p := NewParser()
	a, _, _, err := p.Parse([]byte("alpha\n"), "a", "a.md")
	require.NoError(t, err)
	b, _, _, err := p.Parse([]byte("beta\n"), "a", "a.md")
	require.NoError(t, err)
	assert.NotEqual(t, a.ContentFingerprint, b.ContentFingerprint)
}
