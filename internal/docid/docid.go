// Package docid defines the stable identifiers used by the dependency graph
// and scheduler: document ids derived from logical source paths, and asset
// references for non-document inputs.
package docid

import (
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// DocumentID is a stable, deterministic identifier for a document, derived
// from its logical source path. Two paths that differ only in case,
// separator style, or markup extension map to the same id.
type DocumentID string

// AssetRef references a non-document dependency (image, include file,
// template). Assets are invalidation sources, never build jobs.
type AssetRef string

// NodeRef is a graph node: either a DocumentID or an AssetRef.
type NodeRef struct {
	Doc   DocumentID `json:"doc,omitempty"`
	Asset AssetRef   `json:"asset,omitempty"`
}

// IsDoc reports whether the ref points at a document.
func (n NodeRef) IsDoc() bool { return n.Doc != "" }

func (n NodeRef) String() string {
	if n.IsDoc() {
		return string(n.Doc)
	}
	return string(n.Asset)
}

// DocNode wraps a DocumentID as a graph node.
func DocNode(id DocumentID) NodeRef { return NodeRef{Doc: id} }

// AssetNode wraps an AssetRef as a graph node.
func AssetNode(ref AssetRef) NodeRef { return NodeRef{Asset: ref} }

var caseFolder = cases.Fold()

// markupExtensions are stripped when deriving a DocumentID. Asset
// extensions are kept so assets with identical stems stay distinct.
var markupExtensions = map[string]bool{
	".md":       true,
	".markdown": true,
	".rst":      true,
	".txt":      true,
}

// FromPath derives a DocumentID from a source path relative to the source
// root. Normalization: forward slashes, NFC, case-folded, markup extension
// stripped.
func FromPath(rel string) DocumentID {
	return DocumentID(normalize(rel, true))
}

// AssetFromPath derives an AssetRef from a source-relative path. The
// extension is preserved.
func AssetFromPath(rel string) AssetRef {
	return AssetRef(normalize(rel, false))
}

// IsMarkupPath reports whether the path carries a markup extension and is
// therefore a document source rather than an asset.
func IsMarkupPath(p string) bool {
	return markupExtensions[strings.ToLower(filepath.Ext(p))]
}

// Resolve maps a link destination found inside a document onto a graph node,
// interpreted relative to the referencing document. Absolute destinations
// (with a leading slash) are rooted at the source root.
func Resolve(fromDoc DocumentID, dest string) NodeRef {
	dest = strings.TrimSpace(dest)
	dest = strings.SplitN(dest, "#", 2)[0]

	var joined string
	if strings.HasPrefix(dest, "/") {
		joined = strings.TrimPrefix(dest, "/")
	} else {
		joined = path.Join(path.Dir(string(fromDoc)), dest)
	}

	if IsMarkupPath(joined) || path.Ext(joined) == "" {
		return DocNode(FromPath(joined))
	}
	return AssetNode(AssetFromPath(joined))
}

// IsExternal reports whether a link destination points outside the source
// tree (URLs, mail links, pure fragments).
func IsExternal(dest string) bool {
	dest = strings.TrimSpace(dest)
	if dest == "" || strings.HasPrefix(dest, "#") {
		return true
	}
	if strings.Contains(dest, "://") || strings.HasPrefix(dest, "mailto:") {
		return true
	}
	return false
}

func normalize(rel string, stripExt bool) string {
	p := strings.ReplaceAll(rel, `\`, "/")
	p = path.Clean(p)
	p = strings.TrimPrefix(p, "./")
	if stripExt {
		if ext := path.Ext(p); markupExtensions[strings.ToLower(ext)] {
			p = strings.TrimSuffix(p, ext)
		}
	}
	p = norm.NFC.String(p)
	return caseFolder.String(p)
}
