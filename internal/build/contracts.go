package build

import (
	"git.home.luguber.info/inful/docforge/internal/docid"
)

// ParsedDocument is the parser's output handed to the renderer. The engine
// treats it as opaque apart from the title.
type ParsedDocument struct {
	ID          docid.DocumentID
	SourcePath  string
	Title       string
	Frontmatter map[string]any
	// ContentFingerprint is the frontmatter-aware content fingerprint
	// recorded by the parser, surfaced in diagnostics and stats.
	ContentFingerprint string
	// Body is the markup body with frontmatter stripped.
	Body []byte
}

// Parser turns raw source bytes into a parsed document plus its declared
// dependencies. Must be a pure function of its inputs.
type Parser interface {
	Parse(source []byte, id docid.DocumentID, path string) (*ParsedDocument, []docid.NodeRef, []Diagnostic, error)
}

// RenderContext is the subset of configuration that affects rendered output.
// It participates in the document fingerprint: change a field here and every
// document re-renders.
type RenderContext struct {
	Theme     string `json:"theme" yaml:"theme"`
	SiteTitle string `json:"site_title" yaml:"site_title"`
	BaseURL   string `json:"base_url" yaml:"base_url"`
}

// Renderer produces artifact bytes from a parsed document. Pure given its
// inputs and the render context.
type Renderer interface {
	Render(parsed *ParsedDocument, rctx RenderContext) ([]byte, []Diagnostic, error)
}
