package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentstream/core"
)

func noopNode(context.Context, *core.AgentState) (string, error) { return "", nil }

func TestStateGraph_CompileErrors(t *testing.T) {
	var cfgErr *ConfigurationError

	// No entry point.
	g := NewStateGraph()
	g.AddNode("a", noopNode)
	g.AddEdge("a", End)
	_, err := g.Compile()
	require.ErrorAs(t, err, &cfgErr)

	// Entry point is not a node.
	g = NewStateGraph()
	g.AddNode("a", noopNode)
	g.AddEdge("a", End)
	g.SetEntryPoint("missing")
	_, err = g.Compile()
	require.ErrorAs(t, err, &cfgErr)

	// Edge to unknown node.
	g = NewStateGraph()
	g.AddNode("a", noopNode)
	g.AddEdge("a", "ghost")
	g.SetEntryPoint("a")
	_, err = g.Compile()
	require.ErrorAs(t, err, &cfgErr)

	// Node without outgoing edges.
	g = NewStateGraph()
	g.AddNode("a", noopNode)
	g.SetEntryPoint("a")
	_, err = g.Compile()
	require.ErrorAs(t, err, &cfgErr)

	// End unreachable: a and b only reach each other.
	g = NewStateGraph()
	g.AddNode("a", noopNode)
	g.AddNode("b", noopNode)
	g.AddEdge("a", "b")
	g.AddEdge("b", "a")
	g.SetEntryPoint("a")
	_, err = g.Compile()
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Error(), "no path")
}

func TestRunnable_FollowsTransitions(t *testing.T) {
	var visited []string
	record := func(name, next string) NodeFunc {
		return func(context.Context, *core.AgentState) (string, error) {
			visited = append(visited, name)
			return next, nil
		}
	}

	g := NewStateGraph()
	g.AddNode("a", record("a", ""))       // default edge
	g.AddNode("b", record("b", "c"))      // explicit transition
	g.AddNode("c", record("c", End))      // explicit end
	g.SetEntryPoint("a")
	g.AddEdge("a", "b")
	g.AddEdge("b", "c")
	g.AddEdge("b", End)
	g.AddEdge("c", End)

	r, err := g.Compile()
	require.NoError(t, err)

	require.NoError(t, r.Run(context.Background(), &core.AgentState{}))
	assert.Equal(t, []string{"a", "b", "c"}, visited)
}

func TestRunnable_UndeclaredTransition(t *testing.T) {
	g := NewStateGraph()
	g.AddNode("a", func(context.Context, *core.AgentState) (string, error) {
		return "rogue", nil
	})
	g.AddNode("rogue", noopNode)
	g.AddEdge("a", End)
	g.AddEdge("rogue", End)
	g.SetEntryPoint("a")

	r, err := g.Compile()
	require.NoError(t, err)

	err = r.Run(context.Background(), &core.AgentState{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "undeclared transition")
}

func TestRunnable_NodeErrorAborts(t *testing.T) {
	g := NewStateGraph()
	g.AddNode("a", func(context.Context, *core.AgentState) (string, error) {
		return "", assert.AnError
	})
	g.AddEdge("a", End)
	g.SetEntryPoint("a")

	r, err := g.Compile()
	require.NoError(t, err)

	err = r.Run(context.Background(), &core.AgentState{})
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestRunnable_CancelledContext(t *testing.T) {
	g := NewStateGraph()
	g.AddNode("a", noopNode)
	g.AddEdge("a", "a") // would loop forever
	g.AddEdge("a", End)
	g.SetEntryPoint("a")

	r, err := g.Compile()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, r.Run(ctx, &core.AgentState{}))
}
