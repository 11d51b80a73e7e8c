// Package agent implements the streaming agent runtime: a compiled reasoning
// graph (preset, memory recall, generate, act) driven on a worker goroutine
// per task, with progress streamed through the per-task event channel
// registry.
//
// Two generation strategies exist. Models advertising native tool calling
// receive structured tool declarations and return structured calls; all other
// models are prompted to reply with a fenced JSON block when they need a
// tool, and the generate step classifies the streamed reply. Both strategies
// share the same graph shape, tool execution and termination protocol.
package agent
