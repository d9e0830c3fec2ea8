package events

import (
	"time"

	"git.home.luguber.info/inful/docforge/internal/build"
	"git.home.luguber.info/inful/docforge/internal/docid"
)

// ChangeDetected carries raw filesystem changes into the debouncer. Removed
// lists nodes whose source files were deleted.
type ChangeDetected struct {
	Nodes      []docid.NodeRef
	Removed    []docid.DocumentID
	DetectedAt time.Time
}

// BuildRequested indicates a build should happen soon. The debouncer
// coalesces bursts of these into a single BuildNow.
type BuildRequested struct {
	JobID       string
	Immediate   bool
	Reason      string
	Nodes       []docid.NodeRef
	Removed     []docid.DocumentID
	RequestedAt time.Time
}

// BuildNow is emitted by the debouncer once it decides to start a build.
// Nodes and Removed are the union over the coalesced requests.
type BuildNow struct {
	JobID         string
	TriggeredAt   time.Time
	RequestCount  int
	Nodes         []docid.NodeRef
	Removed       []docid.DocumentID
	FirstRequest  time.Time
	LastRequest   time.Time
	DebounceCause string // "quiet", "max_delay", "immediate" or "after_running"
}

// BuildFinished is published exactly once per generation, in generation
// order, after the generation reaches a terminal state.
type BuildFinished struct {
	Generation uint64
	State      build.State
	Changed    []docid.DocumentID
	Result     *build.Result
	FinishedAt time.Time
}
