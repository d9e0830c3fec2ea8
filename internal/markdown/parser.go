// Package markdown implements the Markdown parser and HTML renderer plugged
// into the build engine.
package markdown

import (
	"strings"

	"github.com/inful/mdfp"
	"github.com/yuin/goldmark"
	gmast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"git.home.luguber.info/inful/docforge/internal/build"
	"git.home.luguber.info/inful/docforge/internal/docid"
)

// Parser parses Markdown sources: frontmatter, body AST and the declared
// cross-references that become dependency edges.
type Parser struct {
	md goldmark.Markdown
}

func NewParser() *Parser {
	return &Parser{md: goldmark.New()}
}

// Parse splits frontmatter, parses the body and extracts every internal link
// and image as a dependency. External destinations (URLs, mail links, pure
// fragments) are skipped.
func (p *Parser) Parse(source []byte, id docid.DocumentID, path string) (*build.ParsedDocument, []docid.NodeRef, []build.Diagnostic, error) {
	raw, body, _, err := splitFrontmatter(source)
	if err != nil {
		return nil, nil, nil, err
	}
	fields, err := parseFrontmatter(raw)
	if err != nil {
		return nil, nil, nil, err
	}

	root := p.md.Parser().Parse(text.NewReader(body))

	var deps []docid.NodeRef
	seen := map[docid.NodeRef]bool{}
	addDep := func(dest string) {
		if docid.IsExternal(dest) {
			return
		}
		ref := docid.Resolve(id, dest)
		if ref.IsDoc() && ref.Doc == id {
			return
		}
		if !seen[ref] {
			seen[ref] = true
			deps = append(deps, ref)
		}
	}

	var title string
	_ = gmast.Walk(root, func(n gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if !entering {
			return gmast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *gmast.Link:
			addDep(string(node.Destination))
		case *gmast.Image:
			addDep(string(node.Destination))
		case *gmast.Heading:
			if title == "" && node.Level == 1 {
				var sb strings.Builder
				lines := node.Lines()
				for i := 0; i < lines.Len(); i++ {
					seg := lines.At(i)
					sb.Write(seg.Value(body))
				}
				title = sb.String()
			}
		}
		return gmast.WalkContinue, nil
	})

	if t, ok := fields["title"].(string); ok && t != "" {
		title = t
	}
	title = strings.TrimSpace(title)

	return &build.ParsedDocument{
		ID:                 id,
		SourcePath:         path,
		Title:              title,
		Frontmatter:        fields,
		ContentFingerprint: mdfp.CalculateFingerprintFromParts(strings.TrimRight(string(raw), "\n"), string(body)),
		Body:               body,
	}, deps, nil, nil
}
