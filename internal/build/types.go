// Package build contains the incremental build engine: the document
// registry, the generation state machine, and the parallel scheduler that
// walks topological batches, consulting the artifact cache before invoking
// the external parser and renderer.
package build

import (
	"fmt"
	"strings"
	"time"

	"git.home.luguber.info/inful/docforge/internal/docid"
	"git.home.luguber.info/inful/docforge/internal/fingerprint"
)

// Severity classifies a diagnostic.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Diagnostic is attached to a document within one build generation and is
// never mutated after emission.
type Diagnostic struct {
	DocumentID docid.DocumentID `json:"document_id"`
	Severity   Severity         `json:"severity"`
	Message    string           `json:"message"`
	Location   string           `json:"location,omitempty"`
}

func (d Diagnostic) String() string {
	loc := d.Location
	if loc == "" {
		loc = string(d.DocumentID)
	}
	return fmt.Sprintf("%s: %s: %s", loc, strings.ToUpper(string(d.Severity)), d.Message)
}

// Document is the engine's record of one discovered source file. It is
// created on first discovery, updated whenever source bytes or configuration
// change, and removed when the source is deleted.
type Document struct {
	ID                   docid.DocumentID
	SourcePath           string
	SourceFingerprint    fingerprint.Fingerprint
	Deps                 []docid.NodeRef
	LastBuildFingerprint fingerprint.Fingerprint
	ArtifactHash         fingerprint.Fingerprint
	Title                string
	Failed               bool
}

// State is the per-generation scheduler state machine.
type State string

const (
	StateIdle      State = "idle"
	StatePlanning  State = "planning"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Job is the transient unit of work. Jobs carrying a stale generation number
// are dropped rather than allowed to overwrite newer results.
type Job struct {
	DocumentID docid.DocumentID
	Generation uint64
}

// Result aggregates one generation's outcome.
type Result struct {
	Generation  uint64
	State       State
	Built       int
	CacheHits   int
	Skipped     int
	Failed      []docid.DocumentID
	Changed     []docid.DocumentID
	Diagnostics []Diagnostic
	Duration    time.Duration
}

// HasErrors reports whether any error-severity diagnostic was emitted.
func (r *Result) HasErrors() bool {
	for _, d := range r.Diagnostics {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Warnings returns the warning-severity diagnostics.
func (r *Result) Warnings() []Diagnostic {
	var out []Diagnostic
	for _, d := range r.Diagnostics {
		if d.Severity == SeverityWarning {
			out = append(out, d)
		}
	}
	return out
}
