package model

import (
	"context"
	"sync"

	"github.com/hupe1980/agentstream/core"
)

// Feature marks a model capability relevant to strategy selection.
type Feature string

const (
	// FeatureToolCall indicates native function/tool calling support.
	FeatureToolCall Feature = "tool_call"
	// FeatureAgentThought indicates the model can sustain multi-step
	// reasoning; without it the ReACT preamble omits tool descriptions.
	FeatureAgentThought Feature = "agent_thought"
	// FeatureImageInput indicates multimodal image input support.
	FeatureImageInput Feature = "image_input"
)

// Info contains metadata about a model implementation.
type Info struct {
	Name     string    `json:"name"`
	Provider string    `json:"provider"` // "openai", "anthropic", "ollama", ...
	Features []Feature `json:"features"`
}

// Supports reports whether the model advertises the given feature.
func (i Info) Supports(f Feature) bool {
	for _, have := range i.Features {
		if have == f {
			return true
		}
	}
	return false
}

// ToolDefinition declaratively exposes a callable function to the model.
// Parameters is a JSON Schema object (minimal subset expected).
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Request captures the normalized model input produced by graph steps.
type Request struct {
	Messages []core.Message   `json:"messages"`
	Tools    []ToolDefinition `json:"tools,omitempty"`
}

// Response is one streamed chunk. Content carries an incremental text delta;
// ToolCalls carries the complete, decoded tool-call intents and is populated
// on the chunk that ends a tool-calling generation. FinishReason is non-empty
// on the final chunk of a stream.
type Response struct {
	Content      string          `json:"content"`
	ToolCalls    []core.ToolCall `json:"tool_calls,omitempty"`
	FinishReason string          `json:"finish_reason,omitempty"`
}

// Model is the minimal interface required by the reasoning graph to drive
// generation. Generate returns a chunk channel and a terminal error channel;
// both are closed when the stream ends. A value on the error channel is fatal
// to the task.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns metadata about the model implementation.
	Info() Info
}

// MockModel is a scripted in-memory Model for tests and examples. Each call
// to Generate replays the next configured turn; the last turn repeats once
// the script is exhausted.
type MockModel struct {
	info  Info
	turns [][]Response
	err   error

	mu       sync.Mutex
	calls    int
	requests []Request
}

// MockOptions configures a MockModel.
type MockOptions struct {
	Features []Feature
	Turns    [][]Response
	Err      error
}

// NewMockModel constructs a MockModel. By default it supports native tool
// calling and answers with a single plain-text chunk.
func NewMockModel(optFns ...func(o *MockOptions)) *MockModel {
	opts := MockOptions{
		Features: []Feature{FeatureToolCall, FeatureAgentThought},
		Turns:    [][]Response{{{Content: "mock response", FinishReason: "stop"}}},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &MockModel{
		info:  Info{Name: "mock", Provider: "mock", Features: opts.Features},
		turns: opts.Turns,
		err:   opts.Err,
	}
}

// Generate implements Model; replays the scripted chunks for the current turn.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	m.mu.Lock()
	m.requests = append(m.requests, req)
	turn := m.calls
	if turn >= len(m.turns) {
		turn = len(m.turns) - 1
	}
	m.calls++
	var chunks []Response
	if turn >= 0 {
		chunks = m.turns[turn]
	}
	err := m.err
	m.mu.Unlock()

	go func() {
		defer close(respCh)
		defer close(errCh)
		if err != nil {
			errCh <- err
			return
		}
		for _, ck := range chunks {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case respCh <- ck:
			}
		}
	}()
	return respCh, errCh
}

// Info implements Model.
func (m *MockModel) Info() Info { return m.info }

// Requests returns a copy of every Request seen, in call order.
func (m *MockModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Calls returns how many times Generate has been invoked.
func (m *MockModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
