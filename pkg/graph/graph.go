// Package graph provides question-graph providers for the runtime engine.
//
// The engine only depends on the api.GraphProvider interface; this package
// supplies a Static implementation built either from a JSON document (the
// question-graph authoring format) or programmatically via Builder.
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mkarling/intervu/pkg/api"
)

// Transition is a single outgoing edge rule of a node.
type Transition struct {
	Then string `json:"then"`
}

// NodeSpec is the authoring-format shape of one graph node.
type NodeSpec struct {
	Section     string                `json:"section"`
	SkillID     string                `json:"skill_id"`
	PromptID    string                `json:"prompt_id"`
	Difficulty  string                `json:"difficulty"`
	Transitions map[string]Transition `json:"transitions"`
}

// Document is the JSON question-graph document.
type Document struct {
	GraphVersion string              `json:"graph_version"`
	StartNode    string              `json:"start_node"`
	EndNode      string              `json:"end_node"`
	Nodes        map[string]NodeSpec `json:"nodes"`
}

// forwardTransition is the edge rule the engine follows after a final answer.
const forwardTransition = "move_forward"

// Static is an immutable in-memory api.GraphProvider.
type Static struct {
	version   string
	startNode string
	endNode   string
	nodes     map[string]NodeSpec
}

var _ api.GraphProvider = (*Static)(nil)

// FromDocument validates a Document and returns a Static provider for it.
func FromDocument(doc Document) (*Static, error) {
	if doc.StartNode == "" {
		return nil, fmt.Errorf("graph: start_node is required")
	}
	if _, ok := doc.Nodes[doc.StartNode]; !ok {
		return nil, fmt.Errorf("graph: start_node %q is not a node", doc.StartNode)
	}
	if doc.EndNode != "" {
		if _, ok := doc.Nodes[doc.EndNode]; !ok {
			return nil, fmt.Errorf("graph: end_node %q is not a node", doc.EndNode)
		}
	}
	for id, spec := range doc.Nodes {
		if t, ok := spec.Transitions[forwardTransition]; ok && t.Then != "" {
			if _, ok := doc.Nodes[t.Then]; !ok {
				return nil, fmt.Errorf("graph: node %q transitions to unknown node %q", id, t.Then)
			}
		}
	}

	nodes := make(map[string]NodeSpec, len(doc.Nodes))
	for id, spec := range doc.Nodes {
		nodes[id] = spec
	}

	return &Static{
		version:   doc.GraphVersion,
		startNode: doc.StartNode,
		endNode:   doc.EndNode,
		nodes:     nodes,
	}, nil
}

// FromJSON parses a JSON question-graph document.
func FromJSON(data []byte) (*Static, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("graph: parsing document: %w", err)
	}
	return FromDocument(doc)
}

// LoadFile reads and parses a JSON question-graph document from disk.
func LoadFile(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("graph: reading %s: %w", path, err)
	}
	return FromJSON(data)
}

// Version returns the graph's version identifier.
func (g *Static) Version() string {
	return g.version
}

func (g *Static) StartNodeID(ctx context.Context) (string, error) {
	return g.startNode, nil
}

func (g *Static) GetNode(ctx context.Context, nodeID string) (api.Node, error) {
	spec, ok := g.nodes[nodeID]
	if !ok {
		return api.Node{}, fmt.Errorf("graph: unknown node %q", nodeID)
	}
	return api.Node{
		ID:         nodeID,
		Section:    spec.Section,
		SkillID:    spec.SkillID,
		PromptID:   spec.PromptID,
		Difficulty: spec.Difficulty,
	}, nil
}

func (g *Static) NextNode(ctx context.Context, currentNodeID string) (string, error) {
	spec, ok := g.nodes[currentNodeID]
	if !ok {
		return "", fmt.Errorf("graph: unknown node %q", currentNodeID)
	}
	if currentNodeID == g.endNode {
		return "", nil
	}
	t, ok := spec.Transitions[forwardTransition]
	if !ok || t.Then == "" {
		return "", nil
	}
	return t.Then, nil
}
