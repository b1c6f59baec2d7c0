// Package llm defines the completion-backend contract NACC's planner
// stages call through, plus the deterministic heuristic backend and the
// interchangeable model-backed variants (HTTP-remote, Gemini, local
// subprocess).
package llm

import "context"

// Kind discriminates backend variants for registration and for the
// /backends listing.
type Kind string

const (
	KindHeuristic  Kind = "heuristic"
	KindHTTPRemote Kind = "http-remote"
	KindGemini     Kind = "gemini"
	KindSubprocess Kind = "subprocess"
)

// Backend is the narrow capability every completion provider implements.
// This is deliberately smaller than a chat/tool-calling API: the
// orchestrator only ever needs one free-form string in, one free-form
// string out, per spec.md §4.2.
type Backend interface {
	// Kind identifies the backend variant.
	Kind() Kind
	// Complete turns prompt plus a flat context map into a completion
	// string. Implementations must honor ctx's deadline: either return
	// before it expires or return an *Error of kind ErrTimeout.
	Complete(ctx context.Context, prompt string, context map[string]string) (string, error)
	// Probe performs a small, fixed, cheap call used to validate the
	// backend during switch_backend; it must complete within 10 seconds.
	Probe(ctx context.Context) error
}

// Config identifies one backend variant with its parameters, per
// spec.md §6's "Recognized backend-config options".
type Config struct {
	Kind           Kind              `toml:"kind"`
	TimeoutSeconds int               `toml:"timeout_seconds"`
	EndpointURL    string            `toml:"endpoint_url"`
	ModelName      string            `toml:"model_name"`
	BearerToken    string            `toml:"bearer_token"`
	Command        []string          `toml:"command"`
	Environment    map[string]string `toml:"environment"`
	RateLimitPerHour int             `toml:"rate_limit_per_hour"`
}
