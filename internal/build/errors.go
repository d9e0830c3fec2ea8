package build

import (
	"fmt"

	"git.home.luguber.info/inful/docforge/internal/docid"
)

// ParseError is a document-level failure: it becomes a diagnostic on that
// document and never aborts the generation.
type ParseError struct {
	ID  docid.DocumentID
	Err error
}

func (e *ParseError) Error() string { return fmt.Sprintf("parse %s: %v", e.ID, e.Err) }
func (e *ParseError) Unwrap() error { return e.Err }

// RenderError is a document-level failure, handled like ParseError.
type RenderError struct {
	ID  docid.DocumentID
	Err error
}

func (e *RenderError) Error() string { return fmt.Sprintf("render %s: %v", e.ID, e.Err) }
func (e *RenderError) Unwrap() error { return e.Err }
