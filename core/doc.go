// Package core provides the foundational domain types and execution contexts
// shared by every agentree package:
//
//   - Messages, tool calls and the append-only Conversation (with Cursor)
//   - Notes and the NoteBoard contract implemented by package blackboard
//   - RunContext / ToolContext (per-agent and per-call execution scope)
//   - ModelLimiter and SpawnLimiter bounding model usage and the agent tree
//   - Sentinel errors classifying fatal vs recoverable failures
//
// Concrete agents, tools, models and transports live in their own packages
// and depend on core, never the other way around.
package core
