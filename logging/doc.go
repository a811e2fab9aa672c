// Package logging provides a minimal logging interface and adapters for agentree.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that agents, tools and transports use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - StructuredLogger built on log/slog with run / agent attributes
//   - SlogAdapter wrapping an existing *slog.Logger
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewLogger(&logging.LoggerConfig{Level: logging.LogLevelDebug, Format: "text"})
//	orch := orchestrator.New(llm, func(o *orchestrator.Options) { o.Logger = logger })
package logging
