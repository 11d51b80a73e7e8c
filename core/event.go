package core

import (
	"time"

	"github.com/google/uuid"
)

// EventKind classifies one unit of streamed agent progress.
type EventKind string

const (
	// EventPing is a synthetic heartbeat emitted by the queue listener so
	// callers and proxies can detect liveness while the worker is silent.
	EventPing EventKind = "ping"
	// EventLongTermMemoryRecall carries the recalled long-term memory summary.
	EventLongTermMemoryRecall EventKind = "long_term_memory_recall"
	// EventAgentThought carries the serialized tool calls the model decided on.
	EventAgentThought EventKind = "agent_thought"
	// EventAgentMessage is one incremental chunk of the assistant answer.
	// Chunks belonging to the same generation share an event ID.
	EventAgentMessage EventKind = "agent_message"
	// EventAgentAction records the execution of a single tool call.
	EventAgentAction EventKind = "agent_action"
	// EventDatasetRetrieval is an AgentAction whose tool is the reserved
	// knowledge-retrieval tool.
	EventDatasetRetrieval EventKind = "dataset_retrieval"
	// EventAgentEnd marks normal completion of the task.
	EventAgentEnd EventKind = "agent_end"
	// EventStop marks cooperative cancellation via the stop flag.
	EventStop EventKind = "stop"
	// EventError marks a fatal task failure.
	EventError EventKind = "error"
	// EventTimeout marks expiry of the listen deadline.
	EventTimeout EventKind = "timeout"
)

// IsTerminal reports whether the kind ends the task. Exactly one terminal
// event is published per task; publishing it closes the task's channel.
func (k EventKind) IsTerminal() bool {
	switch k {
	case EventStop, EventError, EventTimeout, EventAgentEnd:
		return true
	default:
		return false
	}
}

// Event is one increment of agent progress streamed to the caller. After
// publication an Event must be treated as immutable; consumers receive copies
// and never share mutable state with the producing worker.
//
// The field set is the serialization contract any SSE/JSON wire adapter must
// preserve. ID is unique per event, not per task: an accumulating assistant
// message reuses one ID across its partial chunks so consumers can group them.
type Event struct {
	ID          string         `json:"id"`
	TaskID      string         `json:"task_id"`
	Kind        EventKind      `json:"event"`
	Thought     string         `json:"thought,omitempty"`
	Observation string         `json:"observation,omitempty"`
	Tool        string         `json:"tool,omitempty"`
	ToolInput   map[string]any `json:"tool_input,omitempty"`
	Message     []Message      `json:"message,omitempty"`
	Answer      string         `json:"answer,omitempty"`
	Latency     float64        `json:"latency"`
	CreatedAt   time.Time      `json:"created_at"`
}

// NewEvent creates a bare event of the given kind bound to a task.
func NewEvent(taskID string, kind EventKind) Event {
	return Event{
		ID:        NewID(),
		TaskID:    taskID,
		Kind:      kind,
		CreatedAt: time.Now().UTC(),
	}
}

// NewErrorEvent wraps an arbitrary failure value into a terminal error event.
// The error text travels in Observation, mirroring how tool observations are
// carried.
func NewErrorEvent(taskID string, err error) Event {
	e := NewEvent(taskID, EventError)
	if err != nil {
		e.Observation = err.Error()
	}
	return e
}

// NewID generates a unique identifier for events and tasks.
func NewID() string { return uuid.NewString() }
