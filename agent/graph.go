package agent

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentstream/core"
)

// End is the pseudo node name that terminates a graph run.
const End = "__end__"

// ConfigurationError reports a reasoning graph that cannot be compiled into a
// runnable form. It is returned from agent construction, never during a run.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "agent configuration error: " + e.Reason
}

// NodeFunc is one reasoning step. It mutates the task state and names the next
// node to run; an empty return follows the node's default edge. A returned
// error aborts the run.
type NodeFunc func(ctx context.Context, state *core.AgentState) (string, error)

// StateGraph declares the nodes and legal transitions of a reasoning graph.
// Edges are declared up front so Compile can verify the graph statically; a
// node may only return transitions it has declared.
type StateGraph struct {
	nodes map[string]NodeFunc
	edges map[string][]string
	entry string
}

// NewStateGraph creates an empty graph.
func NewStateGraph() *StateGraph {
	return &StateGraph{
		nodes: make(map[string]NodeFunc),
		edges: make(map[string][]string),
	}
}

// AddNode registers a named reasoning step.
func (g *StateGraph) AddNode(name string, fn NodeFunc) *StateGraph {
	g.nodes[name] = fn
	return g
}

// AddEdge declares a legal transition. The first edge declared for a node is
// its default transition.
func (g *StateGraph) AddEdge(from, to string) *StateGraph {
	g.edges[from] = append(g.edges[from], to)
	return g
}

// SetEntryPoint names the node a run starts at.
func (g *StateGraph) SetEntryPoint(name string) *StateGraph {
	g.entry = name
	return g
}

// Compile validates the graph and returns a runnable form. Validation covers:
// an entry point that exists, edges that only reference known nodes, at least
// one outgoing edge per node, and reachability of End from the entry point.
func (g *StateGraph) Compile() (*Runnable, error) {
	if g.entry == "" {
		return nil, &ConfigurationError{Reason: "no entry point set"}
	}
	if _, ok := g.nodes[g.entry]; !ok {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("entry point %q is not a node", g.entry)}
	}
	for from, targets := range g.edges {
		if _, ok := g.nodes[from]; !ok {
			return nil, &ConfigurationError{Reason: fmt.Sprintf("edge from unknown node %q", from)}
		}
		for _, to := range targets {
			if to == End {
				continue
			}
			if _, ok := g.nodes[to]; !ok {
				return nil, &ConfigurationError{Reason: fmt.Sprintf("edge %q -> %q targets unknown node", from, to)}
			}
		}
	}
	for name := range g.nodes {
		if len(g.edges[name]) == 0 {
			return nil, &ConfigurationError{Reason: fmt.Sprintf("node %q has no outgoing edge", name)}
		}
	}
	if !g.endReachable() {
		return nil, &ConfigurationError{Reason: "no path from entry point to end"}
	}

	return &Runnable{graph: g}, nil
}

// endReachable walks declared edges from the entry point looking for End.
func (g *StateGraph) endReachable() bool {
	seen := map[string]bool{g.entry: true}
	frontier := []string{g.entry}
	for len(frontier) > 0 {
		cur := frontier[0]
		frontier = frontier[1:]
		for _, to := range g.edges[cur] {
			if to == End {
				return true
			}
			if !seen[to] {
				seen[to] = true
				frontier = append(frontier, to)
			}
		}
	}
	return false
}

// Runnable is a compiled reasoning graph. Run drives one task's state through
// the nodes until a node transitions to End.
type Runnable struct {
	graph *StateGraph
}

// Run executes the graph against the given state. Node errors and context
// cancellation abort the run; the caller decides how the abort surfaces to
// listeners.
func (r *Runnable) Run(ctx context.Context, state *core.AgentState) error {
	cur := r.graph.entry
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		next, err := r.graph.nodes[cur](ctx, state)
		if err != nil {
			return fmt.Errorf("node %s: %w", cur, err)
		}

		declared := r.graph.edges[cur]
		if next == "" {
			next = declared[0]
		} else if !contains(declared, next) {
			return fmt.Errorf("node %s returned undeclared transition %q", cur, next)
		}

		if next == End {
			return nil
		}
		cur = next
	}
}

func contains(targets []string, name string) bool {
	for _, t := range targets {
		if t == name {
			return true
		}
	}
	return false
}
