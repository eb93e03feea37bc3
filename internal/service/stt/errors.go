package stt

import "errors"

// Error taxonomy shared by adapters and the orchestrator.
var (
	// ErrInvalidInput marks empty or malformed audio. Fatal; no provider is
	// invoked and the queue does not retry.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotSupported marks an optional capability the provider variant does
	// not implement (streaming, realtime sessions).
	ErrNotSupported = errors.New("not supported by provider")

	// ErrUnconfigured marks a provider with missing credentials. Such
	// providers are excluded from the failover order, never invoked.
	ErrUnconfigured = errors.New("provider not configured")

	// ErrTransient marks a network/rate-limit/remote failure. The
	// orchestrator moves to the next provider; the queue retries with backoff.
	ErrTransient = errors.New("transient provider failure")

	// ErrTimeout marks a realtime latency budget exceeded for one provider.
	// It triggers fallback, not terminal failure, unless every provider
	// exhausts the budget.
	ErrTimeout = errors.New("latency budget exceeded")
)
