package llm

import (
	"context"
	"errors"
)

// Chat roles used on the wire.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Sentinel errors callers can branch on with errors.Is.
var (
	ErrInvalidCredentials = errors.New("invalid API credentials")
	ErrRateLimited        = errors.New("rate limited by API")
	ErrNetworkUnavailable = errors.New("network unavailable")
	ErrEmptyResponse      = errors.New("empty completion response")
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Request struct {
	Messages    []Message
	Model       string
	Temperature float32
	MaxTokens   int
}

// Client defines the standard interface for any completion backend.
type Client interface {
	// Complete returns the full completion text for the request.
	Complete(ctx context.Context, req Request) (string, error)

	// Stream delivers the completion incrementally through onChunk and
	// returns the concatenated text.
	Stream(ctx context.Context, req Request, onChunk func(string)) (string, error)

	// Name identifies the backend for logging.
	Name() string
}
