// Package source discovers markup files in a source tree and watches it for
// changes.
package source

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/docforge/internal/docid"
)

// File is one discovered markup source file.
type File struct {
	ID   docid.DocumentID
	Path string
	Rel  string
}

// Scan walks root and returns every markup file, skipping hidden entries and
// the output directory. Paths in the result are absolute; Rel is the
// slash-separated path relative to root.
func Scan(root, outputDir string) ([]File, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve source root: %w", err)
	}
	absOut, _ := filepath.Abs(outputDir)

	var files []File
	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		base := filepath.Base(path)
		if d.IsDir() {
			// Hidden and underscore directories (_static, _templates) hold
			// support files, not documents.
			if path != absRoot && (strings.HasPrefix(base, ".") || strings.HasPrefix(base, "_")) {
				return filepath.SkipDir
			}
			if absOut != "" && path == absOut {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(base, ".") {
			return nil
		}
		rel, err := filepath.Rel(absRoot, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if !docid.IsMarkupPath(rel) {
			return nil
		}
		files = append(files, File{
			ID:   docid.FromPath(rel),
			Path: path,
			Rel:  rel,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", absRoot, err)
	}
	return files, nil
}

// CopyStatic mirrors the _static directory of the source tree into the
// output directory. Missing _static is not an error.
func CopyStatic(root, outputDir string) error {
	staticDir := filepath.Join(root, "_static")
	if _, err := os.Stat(staticDir); os.IsNotExist(err) {
		return nil
	}

	return filepath.WalkDir(staticDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(staticDir, path)
		if err != nil {
			return err
		}
		dst := filepath.Join(outputDir, "_static", rel)
		if d.IsDir() {
			return os.MkdirAll(dst, 0o755)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read static asset %s: %w", path, err)
		}
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return err
		}
		return os.WriteFile(dst, data, 0o644)
	})
}

// IgnorePath reports whether a filesystem path should never feed the change
// pipeline: hidden files, editor swap and temp files.
func IgnorePath(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return true
	}
	if strings.HasSuffix(base, "~") ||
		strings.HasSuffix(base, ".swp") ||
		strings.HasSuffix(base, ".swx") ||
		strings.HasPrefix(base, "#") && strings.HasSuffix(base, "#") {
		return true
	}
	return false
}
