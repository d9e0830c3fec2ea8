package markdown

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/docforge/internal/build"
)

func render(t *testing.T, source string, rctx build.RenderContext) string {
	t.Helper()
	parsed, _, _, err := NewParser().Parse([]byte(source), "guide/start", "guide/start.md")
	require.NoError(t, err)
	out, diags, err := NewRenderer().Render(parsed, rctx)
	require.NoError(t, err)
	assert.Empty(t, diags)
	return string(out)
}

func TestRenderPageShell(t *testing.T) {
	out := render(t, "# Hi\n\nBody text.\n", build.RenderContext{Theme: "slate", SiteTitle: "Docs"})
	assert.Contains(t, out, "<!DOCTYPE html>")
	assert.Contains(t, out, "<title>Hi - Docs</title>")
	assert.Contains(t, out, `class="theme-slate"`)
	assert.Contains(t, out, "<h1>Hi</h1>")
	assert.Contains(t, out, "<p>Body text.</p>")
}

func TestRenderRewritesMarkupLinks(t *testing.T) {
	out := render(t, "[a](other.md)\n[b](spec.rst#part)\n[c](https://example.com/x.md)\n", build.RenderContext{})
	assert.Contains(t, out, `href="other.html"`)
	assert.Contains(t, out, `href="spec.html#part"`)
	assert.Contains(t, out, `href="https://example.com/x.md"`)
}

func TestRenderBaseURL(t *testing.T) {
	out := render(t, "x\n", build.RenderContext{BaseURL: "/docs/"})
	assert.Contains(t, out, `<base href="/docs/">`)
}

func TestRenderDeterministic(t *testing.T) {
	src := "---\ntitle: T\n---\n# H\n\n[x](a.md)\n"
	a := render(t, src, build.RenderContext{Theme: "plain"})
	b := render(t, src, build.RenderContext{Theme: "plain"})
	assert.Equal(t, a, b)
}

func TestRenderFallbackTitleIsDocID(t *testing.T) {
	out := render(t, "just a paragraph\n", build.RenderContext{})
	assert.Contains(t, out, "<title>guide/start</title>")
}
