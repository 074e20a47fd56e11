// Package model defines the provider-agnostic seam between agents and
// language models. Agents that need a model receive a Client from the
// engine at registration; implementations wrap provider SDKs (OpenAI,
// Anthropic, Bedrock) and translate the normalized request into
// provider-specific calls.
package model

import (
	"context"
	"errors"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type (
	// Client is the contract agents use to invoke a language model.
	// Implementations must be safe for concurrent use: one client is
	// shared by every agent running in a phase.
	Client interface {
		// GenerateJSON sends the chat history and returns the model's
		// completion parsed as a JSON object. Returns an error when the
		// provider is unavailable, the request is rejected, or the
		// completion is not a JSON object.
		GenerateJSON(ctx context.Context, req Request) (*Result, error)
	}

	// Request captures the normalized parameters for a model invocation.
	Request struct {
		// Model is the provider-specific model identifier, e.g.
		// "gpt-4o-mini" or "claude-3-5-haiku-latest".
		Model string

		// Messages is the ordered chat history, system prompt included.
		Messages []Message

		// MaxTokens caps the completion length. Zero uses the provider
		// default.
		MaxTokens int

		// Temperature controls sampling randomness. Zero means the
		// provider default.
		Temperature float64
	}

	// Message is one entry of the chat history.
	Message struct {
		// Role is one of RoleSystem, RoleUser or RoleAssistant.
		Role string
		// Content is the message text.
		Content string
	}

	// Result is a parsed model completion.
	Result struct {
		// Object is the completion parsed as a JSON object.
		Object map[string]any
		// Raw is the unparsed completion text.
		Raw string
		// Usage reports token counts when the provider supplies them.
		Usage TokenUsage
		// StopReason explains why the model stopped generating. Values
		// are provider-specific and may be empty.
		StopReason string
	}

	// TokenUsage records token counts when reported by the provider. All
	// fields are zero when the provider does not report usage.
	TokenUsage struct {
		// InputTokens counts tokens consumed by the prompt and history.
		InputTokens int
		// OutputTokens counts tokens produced by the completion.
		OutputTokens int
		// TotalTokens is the aggregate as reported by the provider;
		// prefer it over summing the other two when available.
		TotalTokens int
	}

	// Factory builds a Client for an API key. The engine holds a Factory
	// so hosts can rotate credentials at runtime without re-registering
	// agents.
	Factory func(apiKey string) Client

	// Consumer is implemented by agents that accept an injected model
	// client. The engine calls SetModel at registration and again
	// whenever the credentials rotate.
	Consumer interface {
		SetModel(Client)
	}
)

// ErrNoContent indicates the provider returned a completion without any
// text to parse.
var ErrNoContent = errors.New("model: response contained no content")

// ErrRateLimited wraps provider throttling failures so middleware can
// detect them without provider-specific inspection.
var ErrRateLimited = errors.New("model: rate limited")
