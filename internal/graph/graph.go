// Package graph maintains the directed dependency graph over documents and
// the assets/cross-references they depend on. It answers the two questions
// the scheduler needs: which documents are affected by a set of changed
// inputs, and in what order the affected documents may be rebuilt.
package graph

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"git.home.luguber.info/inful/docforge/internal/docid"
	"git.home.luguber.info/inful/docforge/internal/util/sets"
)

// CycleError is fatal to a build generation: no partial ordering exists for
// the participating documents.
type CycleError struct {
	Participants []docid.DocumentID
}

func (e *CycleError) Error() string {
	ids := make([]string, len(e.Participants))
	for i, id := range e.Participants {
		ids[i] = string(id)
	}
	sort.Strings(ids)
	return fmt.Sprintf("dependency cycle involving: %s", strings.Join(ids, ", "))
}

// EdgeDelta reports the edges replaced by an Upsert. Removed edges surface
// newly-broken cross-references; added edges surface newly-created ones.
type EdgeDelta struct {
	Added   []docid.NodeRef
	Removed []docid.NodeRef
}

// Graph is safe for concurrent use by the scheduler's worker set. Mutations
// are short critical sections; no I/O happens under the lock.
type Graph struct {
	mu       sync.RWMutex
	outgoing map[docid.DocumentID]sets.Set[docid.NodeRef]
	incoming map[docid.NodeRef]sets.Set[docid.DocumentID]
}

func New() *Graph {
	return &Graph{
		outgoing: make(map[docid.DocumentID]sets.Set[docid.NodeRef]),
		incoming: make(map[docid.NodeRef]sets.Set[docid.DocumentID]),
	}
}

// Upsert atomically replaces all outgoing edges of id with deps.
// Dependencies are re-derived from freshly parsed content on every build, so
// edges are replaced wholesale, never accumulated. Edges to targets that do
// not (yet) exist are recorded anyway; later creation of the target then
// invalidates the referrer.
func (g *Graph) Upsert(id docid.DocumentID, deps []docid.NodeRef) EdgeDelta {
	next := sets.New(deps...)
	// A document never depends on itself.
	next.Delete(docid.DocNode(id))

	g.mu.Lock()
	defer g.mu.Unlock()

	prev := g.outgoing[id]
	if prev == nil {
		prev = sets.New[docid.NodeRef]()
	}

	var delta EdgeDelta
	for dep := range next {
		if !prev.Has(dep) {
			delta.Added = append(delta.Added, dep)
			g.addIncoming(dep, id)
		}
	}
	for dep := range prev {
		if !next.Has(dep) {
			delta.Removed = append(delta.Removed, dep)
			g.dropIncoming(dep, id)
		}
	}

	g.outgoing[id] = next
	return delta
}

// Remove deletes a document and all its outgoing edges. Incoming edges from
// other documents are kept: their owners still declare the dependency and
// will re-derive it on their next build.
func (g *Graph) Remove(id docid.DocumentID) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for dep := range g.outgoing[id] {
		g.dropIncoming(dep, id)
	}
	delete(g.outgoing, id)
}

// Dependencies returns the current outgoing edges of id.
func (g *Graph) Dependencies(id docid.DocumentID) []docid.NodeRef {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.outgoing[id].Values()
}

// Dependents returns the documents with a direct edge onto node.
func (g *Graph) Dependents(node docid.NodeRef) []docid.DocumentID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.incoming[node].Values()
}

// Contains reports whether id has been registered via Upsert.
func (g *Graph) Contains(id docid.DocumentID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.outgoing[id]
	return ok
}

// Len returns the number of registered documents.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.outgoing)
}

// AffectedBy returns the transitive closure of documents that depend,
// directly or indirectly, on any changed node, plus the changed documents
// themselves. Traversal follows reverse edges with DFS coloring; a node
// revisited while still in progress signals a cycle, which is reported
// rather than looped on.
func (g *Graph) AffectedBy(changed []docid.NodeRef) (sets.Set[docid.DocumentID], error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	const (
		white = 0
		grey  = 1
		black = 2
	)
	color := make(map[docid.DocumentID]int)
	affected := sets.New[docid.DocumentID]()
	var stack []docid.DocumentID

	var visit func(id docid.DocumentID) error
	visit = func(id docid.DocumentID) error {
		switch color[id] {
		case black:
			return nil
		case grey:
			// Slice the participants out of the active DFS stack.
			for i, s := range stack {
				if s == id {
					return &CycleError{Participants: append([]docid.DocumentID{}, stack[i:]...)}
				}
			}
			return &CycleError{Participants: []docid.DocumentID{id}}
		}

		color[id] = grey
		stack = append(stack, id)
		affected.Add(id)

		for dependent := range g.incoming[docid.DocNode(id)] {
			if err := visit(dependent); err != nil {
				return err
			}
		}

		stack = stack[:len(stack)-1]
		color[id] = black
		return nil
	}

	for _, node := range changed {
		if node.IsDoc() {
			if err := visit(node.Doc); err != nil {
				return nil, err
			}
			continue
		}
		// Asset changes escalate to the documents that declared them.
		for dependent := range g.incoming[node] {
			if err := visit(dependent); err != nil {
				return nil, err
			}
		}
	}

	return affected, nil
}

// TopologicalBatches partitions ids into ordered batches such that every
// dependency of a document in batch k is either outside the given set or in
// an earlier batch. Documents within one batch are mutually independent and
// safe to build concurrently.
func (g *Graph) TopologicalBatches(ids sets.Set[docid.DocumentID]) ([][]docid.DocumentID, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	// Count, per document, its dependencies within the set.
	indegree := make(map[docid.DocumentID]int, ids.Len())
	for id := range ids {
		n := 0
		for dep := range g.outgoing[id] {
			if dep.IsDoc() && ids.Has(dep.Doc) {
				n++
			}
		}
		indegree[id] = n
	}

	remaining := ids.Clone()
	var batches [][]docid.DocumentID
	for remaining.Len() > 0 {
		var batch []docid.DocumentID
		for id := range remaining {
			if indegree[id] == 0 {
				batch = append(batch, id)
			}
		}
		if len(batch) == 0 {
			// No progress possible: everything left participates in a cycle.
			left := remaining.Values()
			sort.Slice(left, func(i, j int) bool { return left[i] < left[j] })
			return nil, &CycleError{Participants: left}
		}

		sort.Slice(batch, func(i, j int) bool { return batch[i] < batch[j] })
		for _, id := range batch {
			remaining.Delete(id)
			for dependent := range g.incoming[docid.DocNode(id)] {
				if remaining.Has(dependent) {
					indegree[dependent]--
				}
			}
		}
		batches = append(batches, batch)
	}

	return batches, nil
}

func (g *Graph) addIncoming(dep docid.NodeRef, from docid.DocumentID) {
	if g.incoming[dep] == nil {
		g.incoming[dep] = sets.New[docid.DocumentID]()
	}
	g.incoming[dep].Add(from)
}

func (g *Graph) dropIncoming(dep docid.NodeRef, from docid.DocumentID) {
	if deps := g.incoming[dep]; deps != nil {
		deps.Delete(from)
		if deps.Len() == 0 {
			delete(g.incoming, dep)
		}
	}
}
