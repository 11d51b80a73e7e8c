package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/agentstream/core"
	"github.com/hupe1980/agentstream/model"
)

// buildFunctionCallGraph wires the reasoning graph for models with native
// tool calling: PRESET -> MEMORY_RECALL -> GENERATE <-> ACT -> END. Tool
// intent arrives as structured calls on the model response, so the generate
// step never inspects the answer text for tool syntax.
func (a *Agent) buildFunctionCallGraph() (*Runnable, error) {
	g := NewStateGraph()
	g.AddNode("preset", a.presetNode)
	g.AddNode("memory_recall", a.memoryRecallNode)
	g.AddNode("generate", a.generateNode)
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

// presetNode applies the input moderation gate before anything else. A hit
// streams the preset response back and ends the task without a model call.
func (a *Agent) presetNode(ctx context.Context, state *core.AgentState) (string, error) {
	if reply, tripped := moderateInput(a.cfg.Moderation, state.Query()); tripped {
		a.logger.Info("agent.input_moderation_tripped", "task_id", state.TaskID)
		a.publishAnswer(ctx, state, reply, 0)
		return End, nil
	}
	return "", nil
}

// memoryRecallNode assembles the prompt: system preamble, recalled long-term
// memory, prior turns, current user turn. History must alternate strictly; an
// odd length means a turn went missing and the task fails before generation.
func (a *Agent) memoryRecallNode(ctx context.Context, state *core.AgentState) (string, error) {
	if err := a.recallMemory(ctx, state); err != nil {
		return "", err
	}

	system := core.RenderSystemPrompt(a.cfg.PresetPrompt, state.LongTermMemory)
	state.Messages = assemblePrompt(system, state)
	return "", nil
}

// recallMemory validates short-term history and publishes the long-term
// memory recall event when enabled.
func (a *Agent) recallMemory(ctx context.Context, state *core.AgentState) error {
	if len(state.History)%2 != 0 {
		return fmt.Errorf("conversation history must alternate user/assistant turns, got %d messages", len(state.History))
	}

	if a.cfg.EnableLongTermMemory && state.LongTermMemory != "" {
		ev := core.NewEvent(state.TaskID, core.EventLongTermMemoryRecall)
		ev.Observation = state.LongTermMemory
		a.publish(ctx, state.TaskID, ev)
	}
	return nil
}

// assemblePrompt splices preamble + history + current turn, replacing the raw
// input message list.
func assemblePrompt(system string, state *core.AgentState) []core.Message {
	query := state.Query()
	msgs := make([]core.Message, 0, len(state.History)+2)
	msgs = append(msgs, core.NewSystemMessage(system))
	msgs = append(msgs, state.History...)
	msgs = append(msgs, core.NewUserMessage(query))
	return msgs
}

// checkIterationBudget enforces the generate/act loop cap. The check runs
// before each generation; tripping it ends the task gracefully with the fixed
// cap response, never an error.
func (a *Agent) checkIterationBudget(ctx context.Context, state *core.AgentState) bool {
	if state.IterationCount <= a.cfg.MaxIterationCount() {
		return false
	}
	a.logger.Warn("agent.max_iterations_reached", "task_id", state.TaskID, "iterations", state.IterationCount)
	a.publishAnswer(ctx, state, core.MaxIterationResponse, 0)
	return true
}

// generateNode runs one native tool-calling generation. The first non-empty
// signal classifies the generation: a tool-call delta makes it a thought and
// suppresses message chunks, text makes it a message and any accompanying
// text goes out as chunks sharing one event id. A generation that decided on
// tool calls publishes a thought event and routes to ACT.
func (a *Agent) generateNode(ctx context.Context, state *core.AgentState) (string, error) {
	if a.checkIterationBudget(ctx, state) {
		return End, nil
	}

	start := time.Now()
	respCh, errCh := a.model.Generate(ctx, model.Request{
		Messages: state.Messages,
		Tools:    toolDefinitions(a.cfg.Tools),
	})

	messageID := core.NewID()
	classified := false
	isThought := false
	var answer strings.Builder
	var calls []core.ToolCall

	for resp := range respCh {
		if !classified {
			if len(resp.ToolCalls) > 0 {
				classified, isThought = true, true
			} else if resp.Content != "" {
				classified = true
			}
		}
		if resp.Content != "" {
			chunk := a.maskOutput(resp.Content)
			answer.WriteString(chunk)
			if !isThought {
				a.publishMessageChunk(ctx, state, messageID, chunk)
			}
		}
		if resp.FinishReason != "" && len(resp.ToolCalls) > 0 {
			calls = resp.ToolCalls
		}
	}
	if err := <-errCh; err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}

	latency := time.Since(start).Seconds()

	if len(calls) > 0 {
		state.IterationCount++
		thought := answer.String()
		if !isThought {
			// The text already streamed as message chunks; don't repeat it.
			thought = ""
		}
		a.publishThought(ctx, state, thought, calls, latency)
		state.Messages = append(state.Messages, core.NewToolCallMessage(answer.String(), calls))
		return "act", nil
	}

	if isThought && answer.Len() > 0 {
		// Tool intent never materialized into calls; the text is the answer.
		a.publishMessageChunk(ctx, state, messageID, answer.String())
	}

	state.Messages = append(state.Messages, core.NewAssistantMessage(answer.String()))
	end := core.NewEvent(state.TaskID, core.EventAgentEnd)
	end.Latency = latency
	a.publish(ctx, state.TaskID, end)
	return End, nil
}

// publishMessageChunk streams one answer increment. Chunks of the same
// generation share one event id and each carry the prompt snapshot, so
// consumers that fold by id keep the latest snapshot.
func (a *Agent) publishMessageChunk(ctx context.Context, state *core.AgentState, messageID, chunk string) {
	ev := core.NewEvent(state.TaskID, core.EventAgentMessage)
	ev.ID = messageID
	ev.Answer = chunk
	ev.Message = core.CloneMessages(state.Messages)
	a.publish(ctx, state.TaskID, ev)
}

// publishThought records the tool calls a generation decided on.
func (a *Agent) publishThought(ctx context.Context, state *core.AgentState, thought string, calls []core.ToolCall, latency float64) {
	names := make([]string, len(calls))
	inputs := make(map[string]any, len(calls))
	for i, call := range calls {
		names[i] = call.Name
		inputs[call.Name] = call.Args
	}

	ev := core.NewEvent(state.TaskID, core.EventAgentThought)
	ev.Thought = thought
	ev.Tool = strings.Join(names, ";")
	ev.ToolInput = inputs
	ev.Latency = latency
	a.publish(ctx, state.TaskID, ev)
}

// actNode executes every pending tool call in order. Tool failures become
// observations the model can react to on the next generation, never task
// errors. Each execution is published as an action event; the reserved
// knowledge-retrieval tool gets its own event kind.
func (a *Agent) actNode(ctx context.Context, state *core.AgentState) (string, error) {
	last, ok := state.LastMessage()
	if !ok || len(last.ToolCalls) == 0 {
		return "", fmt.Errorf("act step reached without pending tool calls")
	}

	for _, call := range last.ToolCalls {
		start := time.Now()
		observation := a.executeTool(ctx, call)

		kind := core.EventAgentAction
		if call.Name == core.DatasetRetrievalToolName {
			kind = core.EventDatasetRetrieval
		}
		ev := core.NewEvent(state.TaskID, kind)
		ev.Tool = call.Name
		ev.ToolInput = call.Args
		ev.Observation = observation
		ev.Latency = time.Since(start).Seconds()
		a.publish(ctx, state.TaskID, ev)

		state.Messages = append(state.Messages, core.NewToolMessage(call.ID, call.Name, observation))
	}

	return "generate", nil
}

// executeTool resolves and invokes one call, folding every failure mode into
// an observation string.
func (a *Agent) executeTool(ctx context.Context, call core.ToolCall) string {
	t, found := a.cfg.ToolByName(call.Name)
	if !found {
		return fmt.Sprintf("Tool execution error: tool %q is not available", call.Name)
	}

	result, err := t.Invoke(ctx, call.Args)
	if err != nil {
		a.logger.Warn("agent.tool_failed", "tool", call.Name, "error", err)
		return "Tool execution error: " + err.Error()
	}
	return stringifyToolResult(result)
}

// stringifyToolResult renders a tool result for the prompt. Strings pass
// through; everything else is JSON encoded.
func stringifyToolResult(result any) string {
	switch v := result.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}
