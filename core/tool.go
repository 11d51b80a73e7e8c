package core

import "context"

// DatasetRetrievalToolName is the reserved knowledge-retrieval tool name.
// Tool executions under this name are surfaced as EventDatasetRetrieval
// instead of the generic EventAgentAction.
const DatasetRetrievalToolName = "dataset_retrieval"

// Tool is a capability an agent may invoke during the ACT step. The tool
// package provides the standard implementation with argument validation;
// defining the interface here keeps core free of upward dependencies.
//
// Invoke failures are never fatal to a task: the graph converts them into
// observation strings and keeps iterating.
type Tool interface {
	// Name returns the unique tool identifier (snake_case recommended).
	Name() string

	// Description is the natural language summary shown to models.
	Description() string

	// Parameters returns a JSON-Schema-like map describing accepted arguments.
	Parameters() map[string]any

	// Invoke executes the tool with decoded arguments.
	Invoke(ctx context.Context, args map[string]any) (any, error)
}
