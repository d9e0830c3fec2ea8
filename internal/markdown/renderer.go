package markdown

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/yuin/goldmark"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	xhtml "golang.org/x/net/html"

	"git.home.luguber.info/inful/docforge/internal/build"
)

// Renderer converts a parsed document into a standalone HTML page.
type Renderer struct {
	md goldmark.Markdown
}

func NewRenderer() *Renderer {
	return &Renderer{
		md: goldmark.New(
			goldmark.WithRendererOptions(gmhtml.WithUnsafe()),
		),
	}
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
{{- if .BaseURL}}
<base href="{{.BaseURL}}">
{{- end}}
<title>{{.Title}}</title>
</head>
<body class="theme-{{.Theme}}">
{{.Content}}
</body>
</html>
`))

type pageData struct {
	Title   string
	Theme   string
	BaseURL string
	Content template.HTML
}

// Render converts the Markdown body to HTML and wraps it in the page shell.
// Link destinations pointing at markup sources are rewritten to their .html
// artifacts.
func (r *Renderer) Render(parsed *build.ParsedDocument, rctx build.RenderContext) ([]byte, []build.Diagnostic, error) {
	var content bytes.Buffer
	if err := r.md.Convert(parsed.Body, &content); err != nil {
		return nil, nil, fmt.Errorf("convert markdown: %w", err)
	}

	rewritten := rewriteMarkupLinks(content.Bytes())

	title := parsed.Title
	if title == "" {
		title = firstHeadingText(rewritten)
	}
	if title == "" {
		title = string(parsed.ID)
	}
	if rctx.SiteTitle != "" {
		title = title + " - " + rctx.SiteTitle
	}

	theme := rctx.Theme
	if theme == "" {
		theme = "default"
	}

	var out bytes.Buffer
	err := pageTemplate.Execute(&out, pageData{
		Title:   title,
		Theme:   theme,
		BaseURL: rctx.BaseURL,
		Content: template.HTML(rewritten),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("render page: %w", err)
	}
	return out.Bytes(), nil, nil
}

// rewriteMarkupLinks replaces .md/.markdown/.rst/.txt href targets with their
// rendered .html counterparts, leaving external URLs alone.
func rewriteMarkupLinks(content []byte) []byte {
	doc, err := xhtml.Parse(bytes.NewReader(content))
	if err != nil {
		return content
	}

	changed := false
	var walk func(*xhtml.Node)
	walk = func(n *xhtml.Node) {
		if n.Type == xhtml.ElementNode && n.Data == "a" {
			for i, attr := range n.Attr {
				if attr.Key != "href" || strings.Contains(attr.Val, "://") {
					continue
				}
				dest, frag, _ := strings.Cut(attr.Val, "#")
				ext := strings.ToLower(extOf(dest))
				switch ext {
				case ".md", ".markdown", ".rst", ".txt":
					dest = strings.TrimSuffix(dest, extOf(dest)) + ".html"
					if frag != "" {
						dest += "#" + frag
					}
					n.Attr[i].Val = dest
					changed = true
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if !changed {
		return content
	}
	var buf bytes.Buffer
	if renderBody(&buf, doc) != nil {
		return content
	}
	return buf.Bytes()
}

func extOf(p string) string {
	if i := strings.LastIndexByte(p, '.'); i >= 0 && !strings.ContainsRune(p[i:], '/') {
		return p[i:]
	}
	return ""
}

// renderBody serializes only the children of the implicit <body> element that
// html.Parse wraps a fragment in.
func renderBody(buf *bytes.Buffer, doc *xhtml.Node) error {
	var body *xhtml.Node
	var find func(*xhtml.Node)
	find = func(n *xhtml.Node) {
		if body != nil {
			return
		}
		if n.Type == xhtml.ElementNode && n.Data == "body" {
			body = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			find(c)
		}
	}
	find(doc)
	if body == nil {
		return fmt.Errorf("no body element")
	}
	for c := body.FirstChild; c != nil; c = c.NextSibling {
		if err := xhtml.Render(buf, c); err != nil {
			return err
		}
	}
	return nil
}

// firstHeadingText extracts the text of the first h1 in rendered content.
func firstHeadingText(content []byte) string {
	doc, err := xhtml.Parse(bytes.NewReader(content))
	if err != nil {
		return ""
	}
	var h1 *xhtml.Node
	var find func(*xhtml.Node)
	find = func(n *xhtml.Node) {
		if h1 != nil {
			return
		}
		if n.Type == xhtml.ElementNode && n.Data == "h1" {
			h1 = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			find(c)
		}
	}
	find(doc)
	if h1 == nil {
		return ""
	}
	var sb strings.Builder
	var text func(*xhtml.Node)
	text = func(n *xhtml.Node) {
		if n.Type == xhtml.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			text(c)
		}
	}
	text(h1)
	return strings.TrimSpace(sb.String())
}
