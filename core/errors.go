package core

import "errors"

var (
	// ErrModelUnavailable is returned once model retries are exhausted. Fatal for the run.
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrMaxModelCalls is returned when an agent exceeds its model call budget.
	ErrMaxModelCalls = errors.New("exceeded max model calls")

	// ErrSpawnLimit is returned when a sub-agent spawn would exceed the depth or concurrency bound.
	ErrSpawnLimit = errors.New("spawn limit exceeded")

	// ErrInterruptTimeout is returned when no answer arrives before the interrupt timeout.
	ErrInterruptTimeout = errors.New("timed out waiting for answer")

	// ErrAlreadyWaiting is returned when a question is asked while another one is pending.
	ErrAlreadyWaiting = errors.New("interrupt channel already waiting")

	// ErrToolNotFound is returned when a tool name is absent from the active registry.
	ErrToolNotFound = errors.New("tool not found")
)
