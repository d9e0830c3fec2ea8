package docid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromPathNormalization(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want DocumentID
	}{
		{"strips markdown extension", "guide/intro.md", "guide/intro"},
		{"strips rst extension", "guide/intro.rst", "guide/intro"},
		{"case folds", "Guide/INTRO.md", "guide/intro"},
		{"normalizes separators", `guide\intro.md`, "guide/intro"},
		{"cleans dot segments", "./guide/../guide/intro.md", "guide/intro"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FromPath(tt.in))
		})
	}
}

func TestFromPathIsDeterministic(t *testing.T) {
	a := FromPath("Docs/Setup.MD")
	b := FromPath("docs/setup.md")
	assert.Equal(t, a, b)
}

func TestAssetFromPathKeepsExtension(t *testing.T) {
	assert.Equal(t, AssetRef("img/logo.png"), AssetFromPath("img/Logo.png"))
}

func TestResolveRelativeToReferrer(t *testing.T) {
	from := FromPath("guide/intro.md")

	ref := Resolve(from, "setup.md")
	assert.True(t, ref.IsDoc())
	assert.Equal(t, DocumentID("guide/setup"), ref.Doc)

	up := Resolve(from, "../reference/api.md")
	assert.Equal(t, DocumentID("reference/api"), up.Doc)

	abs := Resolve(from, "/index.md")
	assert.Equal(t, DocumentID("index"), abs.Doc)
}

func TestResolveAsset(t *testing.T) {
	from := FromPath("guide/intro.md")
	ref := Resolve(from, "images/diagram.png")
	assert.False(t, ref.IsDoc())
	assert.Equal(t, AssetRef("guide/images/diagram.png"), ref.Asset)
}

func TestResolveDropsFragment(t *testing.T) {
	from := FromPath("guide/intro.md")
	ref := Resolve(from, "setup.md#install")
	assert.Equal(t, DocumentID("guide/setup"), ref.Doc)
}

func TestIsExternal(t *testing.T) {
	assert.True(t, IsExternal("https://example.com/page"))
	assert.True(t, IsExternal("mailto:docs@example.com"))
	assert.True(t, IsExternal("#section"))
	assert.True(t, IsExternal(""))
	assert.False(t, IsExternal("guide/intro.md"))
}
