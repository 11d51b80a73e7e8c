// Package agentstream provides a high-level façade over the streaming agent
// runtime. Most applications interact with this package by:
//  1. Creating an AgentStream via New() with a model and an agent config
//     (optionally overriding the shared cache and logger)
//  2. Streaming tasks (Stream) or running them to completion (Invoke)
//  3. Cancelling running tasks cooperatively (Stop), from any process that
//     shares the cache
//
// The façade delegates to agent.Agent while keeping setup ergonomics concise.
// All defaults are safe for local development and testing; multi-process
// deployments supply the redis-backed cache so stop requests cross process
// boundaries.
package agentstream

import (
	"context"

	"github.com/hupe1980/agentstream/agent"
	"github.com/hupe1980/agentstream/cache"
	"github.com/hupe1980/agentstream/core"
	"github.com/hupe1980/agentstream/logging"
	"github.com/hupe1980/agentstream/model"
	"github.com/hupe1980/agentstream/queue"
)

// Options configures the AgentStream instance.
type Options struct {
	// Cache is the shared store for task ownership records and stop flags.
	// Defaults to the in-memory implementation; use cache/redis to coordinate
	// across processes.
	Cache cache.Cache

	// Logger defaults to the NoOp logger if nil.
	Logger logging.Logger

	// QueueOptions tune the per-task event channel registry (poll interval,
	// heartbeat, listen timeout, buffer size).
	QueueOptions []func(o *queue.Options)
}

// AgentStream is the high-level façade around a single configured agent.
type AgentStream struct {
	agent *agent.Agent
}

// New creates a new AgentStream binding the model to the run configuration.
// It returns an error when the reasoning graph for the model's strategy
// cannot be compiled.
func New(m model.Model, cfg core.AgentConfig, optFns ...func(o *Options)) (*AgentStream, error) {
	opts := Options{
		Cache:  cache.NewInMemory(),
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	a, err := agent.New(m, opts.Cache, cfg, func(o *agent.Options) {
		o.Logger = opts.Logger
		o.QueueOptions = opts.QueueOptions
	})
	if err != nil {
		return nil, err
	}

	return &AgentStream{agent: a}, nil
}

// Stream starts a task and returns its event channel. The channel closes
// after the task's terminal event or when ctx is cancelled.
func (s *AgentStream) Stream(ctx context.Context, input agent.RunInput) (<-chan core.Event, error) {
	return s.agent.Stream(ctx, input)
}

// Invoke runs a task to completion and returns the aggregated result.
func (s *AgentStream) Invoke(ctx context.Context, input agent.RunInput) (core.AgentResult, error) {
	return s.agent.Invoke(ctx, input)
}

// Stop requests cooperative cancellation of a running task.
func (s *AgentStream) Stop(ctx context.Context, taskID string) error {
	return s.agent.Stop(ctx, taskID)
}
