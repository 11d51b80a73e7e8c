package agent

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/hupe1980/agentstream/cache"
	"github.com/hupe1980/agentstream/core"
	"github.com/hupe1980/agentstream/logging"
	"github.com/hupe1980/agentstream/model"
	"github.com/hupe1980/agentstream/queue"
)

// Options configures optional agent behavior.
type Options struct {
	// Logger receives agent diagnostics; defaults to NoOpLogger.
	Logger logging.Logger
	// QueueOptions are forwarded to the event channel registry.
	QueueOptions []func(o *queue.Options)
}

// Agent binds a model and an immutable run configuration to a compiled
// reasoning graph. One agent serves many tasks concurrently; per-task state
// lives in the worker goroutine spawned by Stream, never on the agent.
//
// The generation strategy is selected at construction time from the model's
// advertised features: models with native tool calling run the function-call
// graph, everything else runs the prompt-engineered graph that detects tool
// intent in a fenced JSON block.
type Agent struct {
	model  model.Model
	cfg    core.AgentConfig
	queue  *queue.Manager
	graph  *Runnable
	logger logging.Logger
	maskRe *regexp.Regexp
}

// New constructs an agent. It returns a *ConfigurationError when the
// reasoning graph for the selected strategy cannot be compiled.
func New(m model.Model, c cache.Cache, cfg core.AgentConfig, optFns ...func(o *Options)) (*Agent, error) {
	opts := Options{
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	a := &Agent{
		model:  m,
		cfg:    cfg,
		queue:  queue.NewManager(c, cfg.InvokeFrom, cfg.OwnerID, opts.QueueOptions...),
		logger: opts.Logger,
		maskRe: buildMaskPattern(cfg.Moderation),
	}

	var (
		graph *Runnable
		err   error
	)
	if m.Info().Supports(model.FeatureToolCall) {
		graph, err = a.buildFunctionCallGraph()
	} else {
		graph, err = a.buildReactGraph()
	}
	if err != nil {
		return nil, err
	}
	a.graph = graph

	return a, nil
}

// RunInput is the per-task input to Stream and Invoke.
type RunInput struct {
	// TaskID names the task; generated when empty. Task ids are never reused.
	TaskID string
	// Query is the user input for this turn.
	Query string
	// History holds prior turns in strict user/assistant alternation.
	History []core.Message
	// LongTermMemory is the free-text conversation summary, used when the
	// config enables long-term memory.
	LongTermMemory string
}

// Stream starts the task and returns its event channel. The reasoning graph
// runs on a dedicated worker goroutine; the returned channel is the queue
// listener, closed once the task's terminal event has been delivered or ctx
// is cancelled. A worker failure that did not already publish a terminal
// event surfaces as a terminal ERROR event.
func (a *Agent) Stream(ctx context.Context, input RunInput) (<-chan core.Event, error) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, fmt.Errorf("empty query")
	}

	taskID := input.TaskID
	if taskID == "" {
		taskID = core.NewID()
	}

	state := &core.AgentState{
		TaskID:         taskID,
		Messages:       []core.Message{core.NewUserMessage(input.Query)},
		History:        core.CloneMessages(input.History),
		LongTermMemory: input.LongTermMemory,
	}

	events := a.queue.Listen(ctx, taskID)

	go func() {
		logger := logging.WithTask(a.logger, taskID)
		defer func() {
			if r := recover(); r != nil {
				logger.Error("agent.worker_panic", "panic", r)
				a.queue.PublishError(context.WithoutCancel(ctx), taskID, fmt.Errorf("agent worker panic: %v", r))
			}
		}()

		logger.Debug("agent.task_started", "query_len", len(input.Query))
		if err := a.graph.Run(ctx, state); err != nil {
			logger.Error("agent.task_failed", "error", err)
			// Dropped silently if a terminal event already went out.
			a.queue.PublishError(context.WithoutCancel(ctx), taskID, err)
			return
		}
		logger.Debug("agent.task_finished", "iterations", state.IterationCount)
	}()

	return events, nil
}

// Invoke runs the task to completion and folds the event stream into an
// aggregate result.
func (a *Agent) Invoke(ctx context.Context, input RunInput) (core.AgentResult, error) {
	events, err := a.Stream(ctx, input)
	if err != nil {
		return core.AgentResult{}, err
	}
	return Aggregate(input.Query, events), nil
}

// Stop requests cooperative cancellation of a running task. The agent's
// configured identity must match the task's ownership record; mismatches are
// silent no-ops.
func (a *Agent) Stop(ctx context.Context, taskID string) error {
	return a.queue.RequestStop(ctx, taskID)
}

// publish forwards an event to the task's channel.
func (a *Agent) publish(ctx context.Context, taskID string, event core.Event) {
	a.queue.Publish(ctx, taskID, event)
}

// publishAnswer emits a complete answer as a single message event followed by
// normal completion. Used for short-circuit paths that skip generation.
func (a *Agent) publishAnswer(ctx context.Context, state *core.AgentState, answer string, latency float64) {
	ev := core.NewEvent(state.TaskID, core.EventAgentMessage)
	ev.Answer = answer
	ev.Message = core.CloneMessages(state.Messages)
	a.publish(ctx, state.TaskID, ev)

	end := core.NewEvent(state.TaskID, core.EventAgentEnd)
	end.Latency = latency
	a.publish(ctx, state.TaskID, end)
}

// maskOutput applies the output moderation gate to one streamed chunk.
func (a *Agent) maskOutput(s string) string {
	if a.maskRe == nil {
		return s
	}
	return a.maskRe.ReplaceAllString(s, "**")
}

// buildMaskPattern compiles the case-insensitive keyword mask for the output
// gate, or nil when the gate is off.
func buildMaskPattern(cfg core.ModerationConfig) *regexp.Regexp {
	if !cfg.Enable || !cfg.Outputs.Enable || len(cfg.Keywords) == 0 {
		return nil
	}
	quoted := make([]string, 0, len(cfg.Keywords))
	for _, kw := range cfg.Keywords {
		if kw == "" {
			continue
		}
		quoted = append(quoted, regexp.QuoteMeta(kw))
	}
	if len(quoted) == 0 {
		return nil
	}
	return regexp.MustCompile("(?i)(" + strings.Join(quoted, "|") + ")")
}

// moderateInput applies the input gate. On a keyword hit it returns the
// configured preset response and true; the task then ends without a model
// call.
func moderateInput(cfg core.ModerationConfig, query string) (string, bool) {
	if !cfg.Enable || !cfg.Inputs.Enable {
		return "", false
	}
	lowered := strings.ToLower(query)
	for _, kw := range cfg.Keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lowered, strings.ToLower(kw)) {
			reply := cfg.Inputs.PresetResponse
			if reply == "" {
				reply = "Your input has been blocked by the content moderation policy."
			}
			return reply, true
		}
	}
	return "", false
}

// toolDefinitions converts the configured tools into model-facing
// declarations.
func toolDefinitions(tools []core.Tool) []model.ToolDefinition {
	if len(tools) == 0 {
		return nil
	}
	out := make([]model.ToolDefinition, len(tools))
	for i, t := range tools {
		out[i] = model.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		}
	}
	return out
}
