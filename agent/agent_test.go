package agent

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentstream/cache"
	"github.com/hupe1980/agentstream/core"
	"github.com/hupe1980/agentstream/model"
	"github.com/hupe1980/agentstream/queue"
	"github.com/hupe1980/agentstream/tool"
)

// fastQueue compresses the registry polling so tests run at full speed.
func fastQueue(o *Options) {
	o.QueueOptions = append(o.QueueOptions, func(qo *queue.Options) {
		qo.PollInterval = 2 * time.Millisecond
		qo.PingInterval = time.Hour
		qo.ListenTimeout = time.Hour
	})
}

func newTestAgent(t *testing.T, m model.Model, cfg core.AgentConfig) *Agent {
	t.Helper()
	if cfg.OwnerID == "" {
		cfg.OwnerID = "acc-1"
		cfg.InvokeFrom = core.InvokeFromDebugger
	}
	a, err := New(m, cache.NewInMemory(), cfg, fastQueue)
	require.NoError(t, err)
	return a
}

func weatherTool(t *testing.T) core.Tool {
	t.Helper()
	return tool.NewFunctionTool("get_weather", "Get the weather for a city",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"city": map[string]any{"type": "string"},
			},
			"required": []string{"city"},
		},
		func(_ context.Context, args map[string]any) (any, error) {
			return "sunny in " + args["city"].(string), nil
		})
}

func kindsOf(events []core.Event) []core.EventKind {
	out := make([]core.EventKind, len(events))
	for i, ev := range events {
		out[i] = ev.Kind
	}
	return out
}

func TestAgent_Invoke_PlainAnswer(t *testing.T) {
	m := model.NewMockModel(func(o *model.MockOptions) {
		o.Turns = [][]model.Response{{
			{Content: "Hel"},
			{Content: "lo"},
			{FinishReason: "stop"},
		}}
	})
	a := newTestAgent(t, m, core.AgentConfig{})

	result, err := a.Invoke(context.Background(), RunInput{Query: "hi"})
	require.NoError(t, err)

	assert.Equal(t, "Hello", result.Answer)
	assert.Equal(t, core.ResultStatusSucceeded, result.Status)
	assert.Equal(t, "hi", result.Query)
	assert.Equal(t, 1, m.Calls())

	kinds := kindsOf(result.Events)
	assert.Contains(t, kinds, core.EventAgentMessage)
	assert.Contains(t, kinds, core.EventAgentEnd)

	// Both chunks collapse into one message group carrying the prompt snapshot.
	var messages int
	for _, ev := range result.Events {
		if ev.Kind == core.EventAgentMessage {
			messages++
			assert.Equal(t, "Hello", ev.Answer)
			assert.NotEmpty(t, ev.Message)
		}
	}
	assert.Equal(t, 1, messages)
}

func TestAgent_Invoke_ToolLoop(t *testing.T) {
	m := model.NewMockModel(func(o *model.MockOptions) {
		o.Turns = [][]model.Response{
			{{
				ToolCalls: []core.ToolCall{{
					ID:   "call-1",
					Name: "get_weather",
					Args: map[string]any{"city": "Berlin"},
				}},
				FinishReason: "tool_calls",
			}},
			{
				{Content: "It is sunny in Berlin."},
				{FinishReason: "stop"},
			},
		}
	})
	a := newTestAgent(t, m, core.AgentConfig{Tools: []core.Tool{weatherTool(t)}})

	result, err := a.Invoke(context.Background(), RunInput{Query: "weather in berlin?"})
	require.NoError(t, err)

	assert.Equal(t, "It is sunny in Berlin.", result.Answer)
	assert.Equal(t, core.ResultStatusSucceeded, result.Status)
	assert.Equal(t, 2, m.Calls())

	var thought, action *core.Event
	for i := range result.Events {
		switch result.Events[i].Kind {
		case core.EventAgentThought:
			thought = &result.Events[i]
		case core.EventAgentAction:
			action = &result.Events[i]
		}
	}
	require.NotNil(t, thought)
	assert.Equal(t, "get_weather", thought.Tool)
	require.NotNil(t, action)
	assert.Equal(t, "get_weather", action.Tool)
	assert.Equal(t, "sunny in Berlin", action.Observation)

	// The second generation sees the observation as a tool message.
	reqs := m.Requests()
	require.Len(t, reqs, 2)
	last := reqs[1].Messages[len(reqs[1].Messages)-1]
	assert.Equal(t, core.RoleTool, last.Role)
	assert.Equal(t, "sunny in Berlin", last.Content)
	assert.Equal(t, "call-1", last.ToolCallID)
}

func TestAgent_Invoke_ToolIntentSuppressesMessageChunks(t *testing.T) {
	// The first signal is a tool-call delta, so the trailing text belongs to
	// the thought and must not stream as answer chunks.
	m := model.NewMockModel(func(o *model.MockOptions) {
		o.Turns = [][]model.Response{
			{
				{ToolCalls: []core.ToolCall{{ID: "call-1", Name: "get_weather"}}},
				{Content: "Checking the weather."},
				{
					ToolCalls:    []core.ToolCall{{ID: "call-1", Name: "get_weather", Args: map[string]any{"city": "Berlin"}}},
					FinishReason: "tool_calls",
				},
			},
			{{Content: "Sunny."}, {FinishReason: "stop"}},
		}
	})
	a := newTestAgent(t, m, core.AgentConfig{Tools: []core.Tool{weatherTool(t)}})

	result, err := a.Invoke(context.Background(), RunInput{Query: "weather?"})
	require.NoError(t, err)

	assert.Equal(t, "Sunny.", result.Answer)

	var thought *core.Event
	for i := range result.Events {
		if result.Events[i].Kind == core.EventAgentMessage {
			assert.NotContains(t, result.Events[i].Answer, "Checking")
		}
		if result.Events[i].Kind == core.EventAgentThought {
			thought = &result.Events[i]
		}
	}
	require.NotNil(t, thought)
	assert.Equal(t, "Checking the weather.", thought.Thought)
}

func TestAgent_Invoke_TextFirstThenToolCalls(t *testing.T) {
	// Text arrives before any tool intent: the generation streams as answer
	// chunks and the thought does not repeat them.
	m := model.NewMockModel(func(o *model.MockOptions) {
		o.Turns = [][]model.Response{
			{
				{Content: "Let me look that up."},
				{
					ToolCalls:    []core.ToolCall{{ID: "call-1", Name: "get_weather", Args: map[string]any{"city": "Berlin"}}},
					FinishReason: "tool_calls",
				},
			},
			{{Content: "Sunny."}, {FinishReason: "stop"}},
		}
	})
	a := newTestAgent(t, m, core.AgentConfig{Tools: []core.Tool{weatherTool(t)}})

	result, err := a.Invoke(context.Background(), RunInput{Query: "weather?"})
	require.NoError(t, err)

	assert.Equal(t, "Let me look that up.Sunny.", result.Answer)

	var thought *core.Event
	for i := range result.Events {
		if result.Events[i].Kind == core.EventAgentThought {
			thought = &result.Events[i]
		}
	}
	require.NotNil(t, thought)
	assert.Empty(t, thought.Thought)
	assert.Equal(t, "get_weather", thought.Tool)
}

func TestAgent_Invoke_ToolFailureBecomesObservation(t *testing.T) {
	m := model.NewMockModel(func(o *model.MockOptions) {
		o.Turns = [][]model.Response{
			{{
				ToolCalls:    []core.ToolCall{{ID: "call-1", Name: "get_weather", Args: map[string]any{}}},
				FinishReason: "tool_calls",
			}},
			{
				{Content: "I could not look that up."},
				{FinishReason: "stop"},
			},
		}
	})
	a := newTestAgent(t, m, core.AgentConfig{Tools: []core.Tool{weatherTool(t)}})

	result, err := a.Invoke(context.Background(), RunInput{Query: "weather?"})
	require.NoError(t, err)

	// Validation failed (missing city) but the task still succeeds; the model
	// reacts to the observation.
	assert.Equal(t, core.ResultStatusSucceeded, result.Status)
	var action *core.Event
	for i := range result.Events {
		if result.Events[i].Kind == core.EventAgentAction {
			action = &result.Events[i]
		}
	}
	require.NotNil(t, action)
	assert.True(t, strings.HasPrefix(action.Observation, "Tool execution error:"), action.Observation)
}

func TestAgent_Invoke_UnknownToolBecomesObservation(t *testing.T) {
	m := model.NewMockModel(func(o *model.MockOptions) {
		o.Turns = [][]model.Response{
			{{
				ToolCalls:    []core.ToolCall{{ID: "call-1", Name: "nope", Args: map[string]any{}}},
				FinishReason: "tool_calls",
			}},
			{{Content: "done"}, {FinishReason: "stop"}},
		}
	})
	a := newTestAgent(t, m, core.AgentConfig{})

	result, err := a.Invoke(context.Background(), RunInput{Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, core.ResultStatusSucceeded, result.Status)

	reqs := m.Requests()
	require.Len(t, reqs, 2)
	last := reqs[1].Messages[len(reqs[1].Messages)-1]
	assert.Contains(t, last.Content, "Tool execution error:")
	assert.Contains(t, last.Content, "not available")
}

func TestAgent_Invoke_OddHistoryFails(t *testing.T) {
	m := model.NewMockModel()
	a := newTestAgent(t, m, core.AgentConfig{})

	result, err := a.Invoke(context.Background(), RunInput{
		Query:   "hi",
		History: []core.Message{core.NewUserMessage("dangling turn")},
	})
	require.NoError(t, err)

	assert.Equal(t, core.ResultStatusError, result.Status)
	assert.Contains(t, result.Error, "alternate")
	assert.Equal(t, 0, m.Calls(), "generation must not run on invalid history")
}

func TestAgent_Invoke_IterationCap(t *testing.T) {
	// The model insists on calling a tool forever; the cap ends the loop
	// gracefully with the fixed response.
	m := model.NewMockModel(func(o *model.MockOptions) {
		o.Turns = [][]model.Response{{{
			ToolCalls:    []core.ToolCall{{ID: "call-1", Name: "get_weather", Args: map[string]any{"city": "Berlin"}}},
			FinishReason: "tool_calls",
		}}}
	})
	a := newTestAgent(t, m, core.AgentConfig{
		MaxIterations: 2,
		Tools:         []core.Tool{weatherTool(t)},
	})

	result, err := a.Invoke(context.Background(), RunInput{Query: "loop"})
	require.NoError(t, err)

	assert.Equal(t, core.ResultStatusSucceeded, result.Status)
	assert.Equal(t, core.MaxIterationResponse, result.Answer)
	assert.Equal(t, 3, m.Calls())
}

func TestAgent_Invoke_DatasetRetrievalEvent(t *testing.T) {
	retrieval := tool.NewFunctionTool(core.DatasetRetrievalToolName, "Search the knowledge base",
		map[string]any{"type": "object"},
		func(_ context.Context, _ map[string]any) (any, error) {
			return "doc snippet", nil
		})
	m := model.NewMockModel(func(o *model.MockOptions) {
		o.Turns = [][]model.Response{
			{{
				ToolCalls:    []core.ToolCall{{ID: "call-1", Name: core.DatasetRetrievalToolName, Args: map[string]any{}}},
				FinishReason: "tool_calls",
			}},
			{{Content: "answered from docs"}, {FinishReason: "stop"}},
		}
	})
	a := newTestAgent(t, m, core.AgentConfig{Tools: []core.Tool{retrieval}})

	result, err := a.Invoke(context.Background(), RunInput{Query: "q"})
	require.NoError(t, err)

	kinds := kindsOf(result.Events)
	assert.Contains(t, kinds, core.EventDatasetRetrieval)
	assert.NotContains(t, kinds, core.EventAgentAction)
}

func TestAgent_Invoke_InputModeration(t *testing.T) {
	m := model.NewMockModel()
	a := newTestAgent(t, m, core.AgentConfig{
		Moderation: core.ModerationConfig{
			Enable:   true,
			Keywords: []string{"forbidden"},
			Inputs:   core.ModerationGate{Enable: true, PresetResponse: "I cannot help with that."},
		},
	})

	result, err := a.Invoke(context.Background(), RunInput{Query: "tell me the FORBIDDEN thing"})
	require.NoError(t, err)

	assert.Equal(t, "I cannot help with that.", result.Answer)
	assert.Equal(t, core.ResultStatusSucceeded, result.Status)
	assert.Equal(t, 0, m.Calls(), "input gate must short-circuit before generation")
}

func TestAgent_Invoke_OutputMasking(t *testing.T) {
	m := model.NewMockModel(func(o *model.MockOptions) {
		o.Turns = [][]model.Response{{
			{Content: "the Password is 42"},
			{FinishReason: "stop"},
		}}
	})
	a := newTestAgent(t, m, core.AgentConfig{
		Moderation: core.ModerationConfig{
			Enable:   true,
			Keywords: []string{"password"},
			Outputs:  core.ModerationGate{Enable: true},
		},
	})

	result, err := a.Invoke(context.Background(), RunInput{Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, "the ** is 42", result.Answer)
}

func TestAgent_Invoke_ModelErrorPublishesError(t *testing.T) {
	m := model.NewMockModel(func(o *model.MockOptions) {
		o.Err = assert.AnError
	})
	a := newTestAgent(t, m, core.AgentConfig{})

	result, err := a.Invoke(context.Background(), RunInput{Query: "q"})
	require.NoError(t, err)

	assert.Equal(t, core.ResultStatusError, result.Status)
	assert.NotEmpty(t, result.Error)
}

func TestAgent_Invoke_LongTermMemoryRecall(t *testing.T) {
	m := model.NewMockModel(func(o *model.MockOptions) {
		o.Turns = [][]model.Response{{{Content: "ok"}, {FinishReason: "stop"}}}
	})
	a := newTestAgent(t, m, core.AgentConfig{EnableLongTermMemory: true})

	result, err := a.Invoke(context.Background(), RunInput{
		Query:          "q",
		LongTermMemory: "The user prefers short answers.",
	})
	require.NoError(t, err)

	var recall *core.Event
	for i := range result.Events {
		if result.Events[i].Kind == core.EventLongTermMemoryRecall {
			recall = &result.Events[i]
		}
	}
	require.NotNil(t, recall)
	assert.Equal(t, "The user prefers short answers.", recall.Observation)

	// The summary is spliced into the system preamble.
	reqs := m.Requests()
	require.NotEmpty(t, reqs)
	assert.Contains(t, reqs[0].Messages[0].Content, "The user prefers short answers.")
}

func TestAgent_Stream_TerminalLast(t *testing.T) {
	m := model.NewMockModel(func(o *model.MockOptions) {
		o.Turns = [][]model.Response{{{Content: "hey"}, {FinishReason: "stop"}}}
	})
	a := newTestAgent(t, m, core.AgentConfig{})

	events, err := a.Stream(context.Background(), RunInput{TaskID: "task-42", Query: "hi"})
	require.NoError(t, err)

	var got []core.Event
	for ev := range events {
		got = append(got, ev)
	}
	require.NotEmpty(t, got)
	for _, ev := range got {
		assert.Equal(t, "task-42", ev.TaskID)
	}
	last := got[len(got)-1]
	assert.True(t, last.Kind.IsTerminal())
	assert.Equal(t, core.EventAgentEnd, last.Kind)
}

func TestAgent_Stream_EmptyQuery(t *testing.T) {
	a := newTestAgent(t, model.NewMockModel(), core.AgentConfig{})
	_, err := a.Stream(context.Background(), RunInput{Query: "   "})
	assert.Error(t, err)
}

// stallModel holds its generation open so cancellation paths can be observed.
type stallModel struct {
	delay time.Duration
}

func (s stallModel) Info() model.Info {
	return model.Info{Name: "stall", Provider: "mock", Features: []model.Feature{model.FeatureToolCall}}
}

func (s stallModel) Generate(ctx context.Context, _ model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errCh)
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
		}
	}()
	return out, errCh
}

func TestAgent_StopEndsTask(t *testing.T) {
	a := newTestAgent(t, stallModel{delay: 500 * time.Millisecond}, core.AgentConfig{})

	ctx := context.Background()
	events, err := a.Stream(ctx, RunInput{TaskID: "task-stop", Query: "hi"})
	require.NoError(t, err)

	// Give the listener a moment to create the channel and ownership record.
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, a.Stop(ctx, "task-stop"))

	deadline := time.After(5 * time.Second)
	var last core.Event
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				assert.Equal(t, core.EventStop, last.Kind)
				return
			}
			last = ev
		case <-deadline:
			t.Fatal("stop flag did not terminate the stream")
		}
	}
}
