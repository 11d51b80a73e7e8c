package core

// InvokeFrom identifies the surface a task was started from. It selects the
// cache-key prefix used to authorize stop requests without re-checking the
// caller's original credentials.
type InvokeFrom string

const (
	// InvokeFromWebApp marks tasks started from the interactive web app.
	InvokeFromWebApp InvokeFrom = "web_app"
	// InvokeFromDebugger marks tasks started from a debug session.
	InvokeFromDebugger InvokeFrom = "debugger"
	// InvokeFromServiceAPI marks tasks started through the external API.
	InvokeFromServiceAPI InvokeFrom = "service_api"
	// InvokeFromAssistantAgent marks tasks started by the built-in assistant.
	InvokeFromAssistantAgent InvokeFrom = "assistant_agent"
)

// OwnerPrefix maps the invocation source to the two-way ownership prefix
// recorded alongside a task. Interactive and debug surfaces act on behalf of
// an account; the external API acts on behalf of an end user.
func (f InvokeFrom) OwnerPrefix() string {
	switch f {
	case InvokeFromWebApp, InvokeFromDebugger, InvokeFromAssistantAgent:
		return "account"
	default:
		return "end-user"
	}
}

// DefaultMaxIterations bounds the generate/act loop when the config does not
// override it.
const DefaultMaxIterations = 5

// MaxIterationResponse is the fixed answer published when the iteration cap
// trips. Graceful termination, not an error.
const MaxIterationResponse = "The current agent has exceeded the maximum allowed number of iterations. Please try again."

// ModerationGate enables moderation on one direction of the conversation.
// PresetResponse is only meaningful on the input gate.
type ModerationGate struct {
	Enable         bool   `json:"enable"`
	PresetResponse string `json:"preset_response,omitempty"`
}

// ModerationConfig is the keyword review configuration. When the input gate
// trips, the preset response is streamed back and the task ends without a
// model call. When the output gate is enabled, matched keywords are masked in
// every streamed chunk.
type ModerationConfig struct {
	Enable   bool           `json:"enable"`
	Keywords []string       `json:"keywords"`
	Inputs   ModerationGate `json:"inputs_config"`
	Outputs  ModerationGate `json:"outputs_config"`
}

// AgentConfig is the immutable run configuration bound to an agent at
// construction time. One config serves many tasks.
type AgentConfig struct {
	// OwnerID identifies the account or end user the agent runs for.
	OwnerID string
	// InvokeFrom is the surface tasks are started from.
	InvokeFrom InvokeFrom
	// MaxIterations caps generate/act cycles; zero means DefaultMaxIterations.
	MaxIterations int
	// PresetPrompt is injected into the system prompt template.
	PresetPrompt string
	// EnableLongTermMemory switches on memory recall at task start.
	EnableLongTermMemory bool
	// Tools are the capabilities available to the ACT step.
	Tools []Tool
	// Moderation is the keyword review configuration.
	Moderation ModerationConfig
}

// MaxIterationCount returns the effective iteration cap.
func (c AgentConfig) MaxIterationCount() int {
	if c.MaxIterations <= 0 {
		return DefaultMaxIterations
	}
	return c.MaxIterations
}

// ToolByName looks up a configured tool capability.
func (c AgentConfig) ToolByName(name string) (Tool, bool) {
	for _, t := range c.Tools {
		if t.Name() == name {
			return t, true
		}
	}
	return nil, false
}
