package graph

import "fmt"

// Builder provides a fluent API for defining question graphs in code:
//
//	g, err := graph.NewBuilder("v1").
//	    Node("N0", graph.NodeSpec{Section: "algorithms", SkillID: "S1"}).
//	    Node("N1", graph.NodeSpec{Section: "systems", SkillID: "S2"}).
//	    Edge("N0", "N1").
//	    Start("N0").
//	    End("N1").
//	    Build()
type Builder struct {
	doc Document
}

// NewBuilder creates a new graph builder with the given version label.
func NewBuilder(version string) *Builder {
	return &Builder{
		doc: Document{
			GraphVersion: version,
			Nodes:        make(map[string]NodeSpec),
		},
	}
}

// Node adds a node to the graph. Re-adding an ID panics.
func (b *Builder) Node(id string, spec NodeSpec) *Builder {
	if id == "" {
		panic("graph: node ID must not be empty")
	}
	if _, ok := b.doc.Nodes[id]; ok {
		panic(fmt.Sprintf("graph: node %q already defined", id))
	}
	if spec.Transitions == nil {
		spec.Transitions = make(map[string]Transition)
	}
	b.doc.Nodes[id] = spec
	return b
}

// Edge sets the forward transition from one node to the next.
func (b *Builder) Edge(from, to string) *Builder {
	spec, ok := b.doc.Nodes[from]
	if !ok {
		panic(fmt.Sprintf("graph: edge from undefined node %q", from))
	}
	spec.Transitions[forwardTransition] = Transition{Then: to}
	b.doc.Nodes[from] = spec
	return b
}

// Start marks the entry node.
func (b *Builder) Start(id string) *Builder {
	b.doc.StartNode = id
	return b
}

// End marks the terminal node. Optional: a node without a forward
// transition also ends the interview.
func (b *Builder) End(id string) *Builder {
	b.doc.EndNode = id
	return b
}

// Build validates the graph and returns the Static provider.
func (b *Builder) Build() (*Static, error) {
	return FromDocument(b.doc)
}

// MustBuild is like Build but panics on error.
// Useful for fixed graphs in tests and initialization in main().
func (b *Builder) MustBuild() *Static {
	g, err := b.Build()
	if err != nil {
		panic(err)
	}
	return g
}

// Linear builds a straight-line graph through the given node IDs with
// empty node content. It is primarily useful in tests.
func Linear(version string, nodeIDs ...string) (*Static, error) {
	if len(nodeIDs) == 0 {
		return nil, fmt.Errorf("graph: at least one node is required")
	}
	b := NewBuilder(version)
	for _, id := range nodeIDs {
		b.Node(id, NodeSpec{})
	}
	for i := 0; i+1 < len(nodeIDs); i++ {
		b.Edge(nodeIDs[i], nodeIDs[i+1])
	}
	return b.Start(nodeIDs[0]).End(nodeIDs[len(nodeIDs)-1]).Build()
}
