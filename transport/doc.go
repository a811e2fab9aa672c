// Package transport connects agents to the outside world while honoring the
// suspend/resume contract of the interrupt channel.
//
// A Session owns the producer end of one interrupt channel. Inbound input
// is routed without ever blocking the caller: while a turn waits for an
// answer the input is delivered to it, otherwise it starts a new turn (or is
// rejected as busy). Outbound text is an ordered stream of Lines.
//
// Two Turn implementations are provided: ChatTurn keeps one conversation
// across turns, OrchestratorTurn runs a planned multi-step task per input.
// The WebSocket server and the console loop are thin adapters over Session.
package transport
