package core

// AgentState is the mutable state threaded through every graph step for one
// task. The worker goroutine owns it exclusively for the duration of the
// task; nothing else may hold a reference once Stream has been called. The
// only legal cross-boundary communication is the event channel.
type AgentState struct {
	// TaskID identifies the run; generated when the caller leaves it empty.
	TaskID string
	// Messages is the ordered prompt under construction. The memory-recall
	// step replaces the raw input with preamble + history + current turn.
	Messages []Message
	// IterationCount counts completed generate steps.
	IterationCount int
	// History holds prior turns (short-term memory) in strict user/assistant
	// alternation. An odd length is a fatal validation failure.
	History []Message
	// LongTermMemory is the free-text conversation summary.
	LongTermMemory string
}

// Query returns the latest user input, i.e. the content of the last message.
func (s *AgentState) Query() string {
	if len(s.Messages) == 0 {
		return ""
	}
	return s.Messages[len(s.Messages)-1].Content
}

// LastMessage returns the most recently appended message, if any.
func (s *AgentState) LastMessage() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}
