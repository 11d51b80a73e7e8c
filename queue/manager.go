// Package queue implements the per-task event channel registry that decouples
// the background reasoning worker (producer) from the streaming consumer. The
// registry owns channel lifetime; cancellation crosses process boundaries via
// a TTL-bounded stop flag in the shared cache.
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/agentstream/cache"
	"github.com/hupe1980/agentstream/core"
	"github.com/hupe1980/agentstream/logging"
)

const (
	taskBelongKeyPrefix  = "generate_task_belong:"
	taskStoppedKeyPrefix = "generate_task_stopped:"

	stopFlagTTL = 600 * time.Second
)

// taskBelongCacheKey names the ownership record for a task.
func taskBelongCacheKey(taskID string) string { return taskBelongKeyPrefix + taskID }

// taskStoppedCacheKey names the stop flag for a task.
func taskStoppedCacheKey(taskID string) string { return taskStoppedKeyPrefix + taskID }

// ownerValue is the ownership record payload: "{account|end-user}-{owner_id}".
func ownerValue(invokeFrom core.InvokeFrom, ownerID string) string {
	return fmt.Sprintf("%s-%s", invokeFrom.OwnerPrefix(), ownerID)
}

// Options tunes the registry. The defaults are the production values; tests
// compress the intervals to keep wall-clock time down.
type Options struct {
	// PollInterval bounds each blocking pull in Listen.
	PollInterval time.Duration
	// PingInterval is the heartbeat period; a PING is synthesized every full
	// interval crossed since Listen started.
	PingInterval time.Duration
	// ListenTimeout is the hard deadline after which a TIMEOUT event ends the
	// task.
	ListenTimeout time.Duration
	// OwnershipTTL bounds the lifetime of the ownership record.
	OwnershipTTL time.Duration
	// BufferSize is the per-task channel capacity.
	BufferSize int
	// Logger receives registry diagnostics; defaults to NoOpLogger.
	Logger logging.Logger
}

// item wraps a queued event; the sentinel ends the consumer's pull loop.
type item struct {
	event    core.Event
	sentinel bool
}

// taskQueue is one task's channel plus the send lock that keeps a terminal
// event and its sentinel adjacent under concurrent publishers.
type taskQueue struct {
	sendMu sync.Mutex
	ch     chan item
}

// Manager owns one bounded in-memory channel per task id. A Manager is bound
// to the identity that started its tasks: channel creation records
// "{prefix}-{owner_id}" in the shared cache so a later stop request can be
// authorized without re-checking the caller's original credentials.
//
// Per-task event order is preserved exactly as published. Heartbeat, timeout
// and stop checks only ever append; they never reorder queued events.
type Manager struct {
	ownerID    string
	invokeFrom core.InvokeFrom
	cache      cache.Cache
	opts       Options

	mu     sync.Mutex
	queues map[string]*taskQueue
	closed map[string]bool
}

// NewManager constructs a registry for tasks owned by (invokeFrom, ownerID).
func NewManager(c cache.Cache, invokeFrom core.InvokeFrom, ownerID string, optFns ...func(o *Options)) *Manager {
	opts := Options{
		PollInterval:  time.Second,
		PingInterval:  10 * time.Second,
		ListenTimeout: 600 * time.Second,
		OwnershipTTL:  1800 * time.Second,
		BufferSize:    100,
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Manager{
		ownerID:    ownerID,
		invokeFrom: invokeFrom,
		cache:      c,
		opts:       opts,
		queues:     make(map[string]*taskQueue),
		closed:     make(map[string]bool),
	}
}

// queue returns the task's channel, creating it on first access. Creation
// writes the ownership record to the shared cache.
func (m *Manager) queue(ctx context.Context, taskID string) *taskQueue {
	m.mu.Lock()
	q, ok := m.queues[taskID]
	if ok {
		m.mu.Unlock()
		return q
	}
	q = &taskQueue{ch: make(chan item, m.opts.BufferSize)}
	m.queues[taskID] = q
	m.mu.Unlock()

	if err := m.cache.SetWithTTL(ctx, taskBelongCacheKey(taskID), ownerValue(m.invokeFrom, m.ownerID), m.opts.OwnershipTTL); err != nil {
		m.opts.Logger.Warn("queue.ownership_record_failed", "task_id", taskID, "error", err)
	}
	return q
}

// Publish appends an event to the task's channel. Publishing a terminal kind
// additionally enqueues the sentinel that ends the consumer's pull loop; any
// publish after that is silently dropped (best effort, per protocol).
func (m *Manager) Publish(ctx context.Context, taskID string, event core.Event) {
	m.mu.Lock()
	if m.closed[taskID] {
		m.mu.Unlock()
		m.opts.Logger.Debug("queue.publish_after_terminal_dropped", "task_id", taskID, "kind", event.Kind)
		return
	}
	if event.Kind.IsTerminal() {
		m.closed[taskID] = true
	}
	m.mu.Unlock()

	q := m.queue(ctx, taskID)

	// The send lock keeps the terminal event and its sentinel adjacent: a
	// racing publish that passed the closed check lands wholly before or
	// wholly after the pair, never between.
	q.sendMu.Lock()
	defer q.sendMu.Unlock()
	q.ch <- item{event: event}
	if event.Kind.IsTerminal() {
		q.ch <- item{sentinel: true}
	}
}

// PublishError wraps an arbitrary failure value into a terminal ERROR event.
func (m *Manager) PublishError(ctx context.Context, taskID string, err error) {
	m.Publish(ctx, taskID, core.NewErrorEvent(taskID, err))
}

// Listen returns a lazy, single-pass, non-restartable event sequence for the
// task. The returned channel is closed when the sentinel is observed or ctx
// is cancelled. The polling loop:
//
//  1. blocks up to PollInterval pulling the next queued event,
//  2. yields pulled non-sentinel events to the caller,
//  3. synthesizes a PING every full PingInterval boundary crossed,
//  4. synthesizes a TIMEOUT once ListenTimeout has elapsed,
//  5. synthesizes a STOP when the stop flag appears in the shared cache.
//
// Synthesized events go straight to the caller, never through the task
// channel: the listener is the channel's sole drainer and must not block
// sending into its own full buffer while a producer holds it full. Ordering
// stays append-only, and terminal synthesis claims the task's terminal slot
// first, so exactly one terminal event is ever delivered.
func (m *Manager) Listen(ctx context.Context, taskID string) <-chan core.Event {
	out := make(chan core.Event)

	go func() {
		defer close(out)

		m.mu.Lock()
		_, live := m.queues[taskID]
		done := m.closed[taskID] && !live
		m.mu.Unlock()
		if done {
			// Single-pass: a finished task cannot be listened to again.
			return
		}
		defer m.remove(taskID)

		logger := logging.WithTask(m.opts.Logger, taskID)
		q := m.queue(ctx, taskID)
		startedAt := time.Now()
		lastPing := 0
		terminalSeen := false

		emit := func(ev core.Event) bool {
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for {
			poll := time.NewTimer(m.opts.PollInterval)
			select {
			case <-ctx.Done():
				poll.Stop()
				return
			case it := <-q.ch:
				poll.Stop()
				if it.sentinel {
					drainQueue(q.ch)
					return
				}
				if it.event.Kind.IsTerminal() {
					terminalSeen = true
				}
				if !emit(it.event) {
					return
				}
			case <-poll.C:
			}

			if terminalSeen {
				// Only the sentinel is left; never synthesize past a terminal.
				continue
			}

			elapsed := time.Since(startedAt)

			if n := int(elapsed / m.opts.PingInterval); n > lastPing {
				if !emit(core.NewEvent(taskID, core.EventPing)) {
					return
				}
				lastPing = n
			}

			if elapsed >= m.opts.ListenTimeout {
				if m.markTerminal(taskID) {
					logger.Warn("queue.listen_timeout", "elapsed", elapsed)
					emit(core.NewEvent(taskID, core.EventTimeout))
					drainQueue(q.ch)
					return
				}
				// A publisher claimed the terminal slot; its event and
				// sentinel are in flight.
				continue
			}

			if m.isStopped(ctx, taskID) {
				if m.markTerminal(taskID) {
					logger.Info("queue.stop_flag_observed")
					emit(core.NewEvent(taskID, core.EventStop))
					drainQueue(q.ch)
					return
				}
			}
		}
	}()

	return out
}

// RequestStop asks the shared cache to stop one of this manager's tasks. The
// identity baked into the manager must match the task's ownership record.
func (m *Manager) RequestStop(ctx context.Context, taskID string) error {
	return SetStopFlag(ctx, m.cache, taskID, m.invokeFrom, m.ownerID)
}

// isStopped checks the stop flag in the shared cache.
func (m *Manager) isStopped(ctx context.Context, taskID string) bool {
	_, ok, err := m.cache.Get(ctx, taskStoppedCacheKey(taskID))
	if err != nil {
		m.opts.Logger.Warn("queue.stop_flag_check_failed", "task_id", taskID, "error", err)
		return false
	}
	return ok
}

// markTerminal claims the task's single terminal slot for a synthesized
// event. It reports false when a publisher already claimed it.
func (m *Manager) markTerminal(taskID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed[taskID] {
		return false
	}
	m.closed[taskID] = true
	return true
}

// drainQueue empties the task channel once the listener stops pulling,
// freeing producers blocked on a full buffer. New publishes were already cut
// off by the closed mark, so the set of blocked producers is finite.
func drainQueue(ch chan item) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

// remove releases a finished task's channel. The closed marker stays behind
// as a tombstone so a straggling worker publish cannot recreate the channel;
// task ids are never reused.
func (m *Manager) remove(taskID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.queues, taskID)
	m.closed[taskID] = true
}

// SetStopFlag writes the stop flag for a task after verifying the requesting
// identity against the task's ownership record. It needs no live Manager and
// works from any process sharing the cache, as long as the ownership record
// has not expired.
//
// A missing ownership record (task finished or never started) and an identity
// mismatch are both silent no-ops: absence is not leaked and cross-tenant
// cancellation is prevented.
func SetStopFlag(ctx context.Context, c cache.Cache, taskID string, invokeFrom core.InvokeFrom, ownerID string) error {
	owner, ok, err := c.Get(ctx, taskBelongCacheKey(taskID))
	if err != nil {
		return fmt.Errorf("read ownership record: %w", err)
	}
	if !ok {
		return nil
	}
	if owner != ownerValue(invokeFrom, ownerID) {
		return nil
	}

	if err := c.SetWithTTL(ctx, taskStoppedCacheKey(taskID), "1", stopFlagTTL); err != nil {
		return fmt.Errorf("write stop flag: %w", err)
	}
	return nil
}
