// Package core defines the shared entities of the agent execution engine:
// streamed events ("agent thoughts"), chat messages, the per-task mutable
// agent state, immutable run configuration and the aggregated blocking
// result. Higher level packages (queue, model, agent) depend on core; core
// depends on nothing but the standard library and uuid.
package core
