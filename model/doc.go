// Package model defines the opaque language-model capability the reasoning
// graph drives: given a message list (optionally with bound tools), produce a
// stream of chunks, each carrying incremental text and/or tool-call intents.
// The advertised feature set decides which generation strategy the agent
// compiles at construction time: native tool calling, or prompt-engineered
// (ReACT) action detection for models that cannot express tool intent.
package model
