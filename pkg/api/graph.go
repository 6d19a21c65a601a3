package api

import "context"

// Node is the content of one question-graph node as the runtime sees it.
// The runtime treats node content as opaque: it presents nodes and follows
// transitions, nothing more.
type Node struct {
	ID         string `json:"id"`
	Section    string `json:"section"`
	SkillID    string `json:"skill_id"`
	PromptID   string `json:"prompt_id"`
	Difficulty string `json:"difficulty"`
}

// GraphProvider resolves question-graph structure for the engine. The
// engine never stores graph content; it only records node IDs in its
// ledger.
//
// Implementations may be remote. Errors are wrapped by the engine in
// ErrGraphProvider and trigger the uniform failure policy like any other
// operation error.
type GraphProvider interface {
	// StartNodeID returns the graph's entry node.
	StartNodeID(ctx context.Context) (string, error)

	// GetNode resolves a node's content by ID.
	GetNode(ctx context.Context, nodeID string) (Node, error)

	// NextNode returns the node following currentNodeID, or "" when the
	// graph ends there.
	NextNode(ctx context.Context, currentNodeID string) (string, error)
}
