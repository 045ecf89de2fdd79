package uow

import "fmt"

// Ref is a temporary reference id assigned to an unsaved record so later
// records in the same graph can point at it before a real id exists.
type Ref string

// RecordIntent is a single pending create. Field values may be Refs of
// intents registered earlier in the same graph, expressing a relationship.
type RecordIntent struct {
	Ref    Ref
	Type   string
	Fields map[string]any
}

// Graph is an ordered collection of record intents. Insertion order is
// dependency order: a field may only reference an intent that is already in
// the graph, which keeps the structure a DAG committable in one pass.
type Graph struct {
	intents []RecordIntent
	refs    map[Ref]struct{}
}

// NewGraph creates an empty record graph.
func NewGraph() *Graph {
	return &Graph{
		refs: make(map[Ref]struct{}),
	}
}

// RegisterCreate appends a create intent and returns its temporary reference.
// Field values of type Ref are validated against the intents registered so
// far; an unknown reference fails with ReferenceError before any network
// activity can happen.
func (g *Graph) RegisterCreate(recordType string, fields map[string]any) (Ref, error) {
	if recordType == "" {
		return "", &ValidationError{Field: "recordType", Reason: "must not be empty"}
	}
	for _, value := range fields {
		ref, ok := value.(Ref)
		if !ok {
			continue
		}
		if _, known := g.refs[ref]; !known {
			return "", &ReferenceError{Ref: ref}
		}
	}

	ref := Ref(fmt.Sprintf("ref%d", len(g.intents)))
	copied := make(map[string]any, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	g.intents = append(g.intents, RecordIntent{
		Ref:    ref,
		Type:   recordType,
		Fields: copied,
	})
	g.refs[ref] = struct{}{}
	return ref, nil
}

// Intents returns the registered intents in insertion order.
func (g *Graph) Intents() []RecordIntent {
	return g.intents
}

// Len returns the number of registered intents.
func (g *Graph) Len() int {
	return len(g.intents)
}

// Contains reports whether the reference is registered in the graph.
func (g *Graph) Contains(ref Ref) bool {
	_, ok := g.refs[ref]
	return ok
}
