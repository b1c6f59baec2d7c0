package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"
)

// GeminiBackend is a concrete model-backed remote variant: a real
// non-deterministic completion provider satisfying spec.md §4.2's
// "Model-backed (HTTP-remote or local subprocess)" class, built on
// google.golang.org/genai instead of a hand-rolled HTTP client — the
// donor's AnthropicProvider (pkg/llm/anthropic.go) shows the same
// request/response marshaling shape done by hand; here the SDK takes
// that role.
type GeminiBackend struct {
	model   string
	timeout time.Duration
	limiter *RateLimiter

	mu     sync.Mutex
	client *genai.Client
}

func NewGeminiBackend(ctx context.Context, cfg Config) (*GeminiBackend, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.BearerToken,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, NewError(ErrUnavailable, "construct gemini client", err)
	}
	model := cfg.ModelName
	if model == "" {
		model = "gemini-2.0-flash"
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	var limiter *RateLimiter
	if cfg.RateLimitPerHour > 0 {
		limiter = NewRateLimiter(cfg.RateLimitPerHour)
	}
	return &GeminiBackend{model: model, timeout: timeout, limiter: limiter, client: client}, nil
}

func (b *GeminiBackend) Kind() Kind { return KindGemini }

func (b *GeminiBackend) Complete(ctx context.Context, prompt string, cx map[string]string) (string, error) {
	if b.limiter != nil && !b.limiter.Allow() {
		return "", NewError(ErrRateLimited, "gemini backend rate limit exceeded", nil)
	}

	callCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	full := prompt
	if len(cx) > 0 {
		var sb strings.Builder
		sb.WriteString(prompt)
		sb.WriteString("\n\ncontext:\n")
		for k, v := range cx {
			fmt.Fprintf(&sb, "%s: %s\n", k, v)
		}
		full = sb.String()
	}

	b.mu.Lock()
	client := b.client
	b.mu.Unlock()

	result, err := client.Models.GenerateContent(callCtx, b.model, genai.Text(full), nil)
	if err != nil {
		if callCtx.Err() != nil {
			return "", NewError(ErrTimeout, "gemini backend deadline exceeded", err)
		}
		return "", NewError(ErrUnavailable, "gemini backend call failed", err)
	}
	text := result.Text()
	if text == "" {
		return "", NewError(ErrMalformed, "gemini backend returned empty completion", nil)
	}
	return text, nil
}

func (b *GeminiBackend) Probe(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err := b.Complete(probeCtx, "ping", nil)
	return err
}
