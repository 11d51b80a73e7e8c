package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/hupe1980/agentstream/core"
	"github.com/hupe1980/agentstream/model"
)

// reactFencePrefix opens a tool-call candidate in a prompt-engineered reply.
// Classification waits until this many characters have streamed in.
const reactFencePrefix = "```json"

// buildReactGraph wires the reasoning graph for models without native tool
// calling. The shape matches the function-call graph; only the recall and
// generate steps differ: the preamble teaches the fenced-JSON convention and
// the generate step classifies the streamed reply instead of reading
// structured calls.
func (a *Agent) buildReactGraph() (*Runnable, error) {
	g := NewStateGraph()
	g.AddNode("preset", a.presetNode)
	g.AddNode("memory_recall", a.reactMemoryRecallNode)
	g.AddNode("generate", a.reactGenerateNode)
	g.AddNode("act", a.actNode)
	g.SetEntryPoint("preset")
	g.AddEdge("preset", "memory_recall")
	g.AddEdge("preset", End)
	g.AddEdge("memory_recall", "generate")
	g.AddEdge("generate", "act")
	g.AddEdge("generate", End)
	g.AddEdge("act", "generate")
	return g.Compile()
}

// reactMemoryRecallNode assembles the prompt with the prompt-engineered
// preamble, which additionally renders the available tools.
func (a *Agent) reactMemoryRecallNode(ctx context.Context, state *core.AgentState) (string, error) {
	if err := a.recallMemory(ctx, state); err != nil {
		return "", err
	}

	system := core.RenderReactSystemPrompt(a.cfg.PresetPrompt, state.LongTermMemory, renderToolDescription(a.cfg.Tools))
	state.Messages = assemblePrompt(system, state)
	return "", nil
}

// renderToolDescription lists each tool with its argument schema for the
// system preamble.
func renderToolDescription(tools []core.Tool) string {
	if len(tools) == 0 {
		return "No tools are available."
	}
	var sb strings.Builder
	for i, t := range tools {
		if i > 0 {
			sb.WriteString("\n")
		}
		params, err := json.Marshal(t.Parameters())
		if err != nil {
			params = []byte("{}")
		}
		fmt.Fprintf(&sb, "tool name: %s\ntool description: %s\ntool parameters: %s\n", t.Name(), t.Description(), params)
	}
	return sb.String()
}

// reactGenerateNode runs one prompt-engineered generation. The reply is
// buffered until enough characters arrived to classify it: a reply opening
// with the JSON fence is held back as a tool-call candidate, anything else
// streams through as message chunks. A candidate that fails to parse degrades
// to a plain message; the task still ends normally.
func (a *Agent) reactGenerateNode(ctx context.Context, state *core.AgentState) (string, error) {
	if a.checkIterationBudget(ctx, state) {
		return End, nil
	}

	start := time.Now()
	// Tools travel in the preamble, never as structured declarations.
	respCh, errCh := a.model.Generate(ctx, model.Request{Messages: state.Messages})

	messageID := core.NewID()
	classified := false
	isCandidate := false
	var buf strings.Builder
	var streamed strings.Builder

	flush := func(text string) {
		if text == "" {
			return
		}
		chunk := a.maskOutput(text)
		streamed.WriteString(chunk)
		a.publishMessageChunk(ctx, state, messageID, chunk)
	}

	for resp := range respCh {
		if resp.Content == "" {
			continue
		}
		buf.WriteString(resp.Content)

		if classified {
			if !isCandidate {
				flush(resp.Content)
			}
			continue
		}

		trimmed := strings.TrimLeftFunc(buf.String(), unicode.IsSpace)
		if len(trimmed) < len(reactFencePrefix) {
			continue
		}
		classified = true
		isCandidate = strings.HasPrefix(trimmed, reactFencePrefix)
		if !isCandidate {
			flush(buf.String())
		}
	}
	if err := <-errCh; err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}

	latency := time.Since(start).Seconds()
	reply := buf.String()

	if isCandidate {
		if call, ok := parseReactToolCall(reply); ok {
			state.IterationCount++
			a.publishThought(ctx, state, reply, []core.ToolCall{call}, latency)
			state.Messages = append(state.Messages, core.NewToolCallMessage(reply, []core.ToolCall{call}))
			return "act", nil
		}
		// Unparseable candidate: the reply is the answer after all.
		a.logger.Debug("agent.react_parse_failed", "task_id", state.TaskID)
		flush(reply)
	} else if !classified {
		// Stream ended before the classification threshold.
		flush(reply)
	}

	state.Messages = append(state.Messages, core.NewAssistantMessage(streamed.String()))
	end := core.NewEvent(state.TaskID, core.EventAgentEnd)
	end.Latency = latency
	a.publish(ctx, state.TaskID, end)
	return End, nil
}

// parseReactToolCall extracts {"name": ..., "args": {...}} from a fenced
// reply. Decoding goes through the repairing decoder, so trailing commas or
// unquoted keys from weaker models still parse.
func parseReactToolCall(reply string) (core.ToolCall, bool) {
	inner := extractFencedJSON(reply)
	if inner == "" {
		return core.ToolCall{}, false
	}

	decoded := model.DecodeArgs(inner)
	name, _ := decoded["name"].(string)
	if name == "" {
		return core.ToolCall{}, false
	}
	args, _ := decoded["args"].(map[string]any)
	if args == nil {
		args = map[string]any{}
	}

	return core.ToolCall{ID: core.NewID(), Name: name, Args: args}, true
}

// extractFencedJSON returns the text between the opening ```json fence and
// the closing fence, or to the end of the reply when the model forgot to
// close it.
func extractFencedJSON(reply string) string {
	trimmed := strings.TrimLeftFunc(reply, unicode.IsSpace)
	if !strings.HasPrefix(trimmed, reactFencePrefix) {
		return ""
	}
	inner := trimmed[len(reactFencePrefix):]
	if end := strings.Index(inner, "```"); end >= 0 {
		inner = inner[:end]
	}
	return strings.TrimSpace(inner)
}
