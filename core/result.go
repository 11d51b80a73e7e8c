package core

// Result statuses mirror the terminal event kind that ended the task.
const (
	ResultStatusSucceeded = "succeeded"
	ResultStatusStopped   = "stopped"
	ResultStatusError     = "error"
	ResultStatusTimeout   = "timeout"
)

// AgentResult is the aggregate view of a completed task for blocking callers.
// It is produced by folding the event stream: AGENT_MESSAGE chunks are grouped
// by event ID with their text concatenated, every other kind overwrites any
// prior event stored under its ID, and PING events are dropped entirely.
type AgentResult struct {
	// Query is the user input the task was started with.
	Query string `json:"query"`
	// Message is the prompt snapshot of the first assistant message group.
	Message []Message `json:"message"`
	// Answer is the concatenation of every streamed answer increment.
	Answer string `json:"answer"`
	// Status mirrors the last terminal kind; defaults to succeeded.
	Status string `json:"status"`
	// Error carries the observation of a terminal error event.
	Error string `json:"error,omitempty"`
	// Events are the grouped events in arrival order of first occurrence.
	Events []Event `json:"agent_thoughts"`
	// Latency is the sum of every group's latency in seconds.
	Latency float64 `json:"latency"`
}
