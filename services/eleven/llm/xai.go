package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/awnumar/memguard"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// DefaultEndpoint is the xAI OpenAI-compatible chat completions base URL.
const DefaultEndpoint = "https://api.x.ai/v1"

const (
	maxAttempts    = 3
	backoffBase    = time.Second
	requestsPerSec = 2
)

// XAIClient talks to an OpenAI-compatible chat completion endpoint.
//
// The API key lives in a memguard enclave and is only decrypted at
// construction time, directly into the HTTP client configuration. A
// token-bucket limiter spaces requests to stay under provider limits.
type XAIClient struct {
	client  *openai.Client
	limiter *rate.Limiter
	name    string
}

// NewXAIClient builds a client from a sealed API key.
//
// The endpoint may be empty, in which case DefaultEndpoint is used;
// pointing it elsewhere (a local orchestrator, a proxy) is how offline
// and self-hosted setups plug in.
func NewXAIClient(key *memguard.Enclave, endpoint string) (*XAIClient, error) {
	if key == nil {
		return nil, ErrInvalidCredentials
	}
	buf, err := key.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	defer buf.Destroy()

	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	cfg := openai.DefaultConfig(buf.String())
	cfg.BaseURL = endpoint

	return &XAIClient{
		client:  openai.NewClientWithConfig(cfg),
		limiter: rate.NewLimiter(rate.Limit(requestsPerSec), requestsPerSec),
		name:    "xai",
	}, nil
}

func (c *XAIClient) Name() string { return c.name }

// Complete implements Client with bounded retry on transient failures.
func (c *XAIClient) Complete(ctx context.Context, req Request) (string, error) {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoffBase * time.Duration(attempt)):
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return "", err
		}

		resp, err := c.client.CreateChatCompletion(ctx, c.buildRequest(req, false))
		if err != nil {
			lastErr = classifyAPIError(err)
			if retriable(lastErr) {
				continue
			}
			return "", lastErr
		}
		if len(resp.Choices) == 0 {
			return "", ErrEmptyResponse
		}
		return resp.Choices[0].Message.Content, nil
	}
	return "", fmt.Errorf("completion failed after %d attempts: %w", maxAttempts, lastErr)
}

// Stream implements Client. Chunks are delivered in arrival order;
// the concatenated text is returned once the stream closes.
func (c *XAIClient) Stream(ctx context.Context, req Request, onChunk func(string)) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	stream, err := c.client.CreateChatCompletionStream(ctx, c.buildRequest(req, true))
	if err != nil {
		return "", classifyAPIError(err)
	}
	defer stream.Close()

	var full strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return full.String(), classifyAPIError(err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		content := chunk.Choices[0].Delta.Content
		if content == "" {
			continue
		}
		full.WriteString(content)
		if onChunk != nil {
			onChunk(content)
		}
	}
	return full.String(), nil
}

func (c *XAIClient) buildRequest(req Request, stream bool) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      stream,
	}
}

// classifyAPIError maps transport errors onto the package sentinels so
// callers never have to inspect provider-specific types.
func classifyAPIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 401, 403:
			return fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
		case 429:
			return fmt.Errorf("%w: %v", ErrRateLimited, err)
		}
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", ErrNetworkUnavailable, err)
	}
	return err
}

func retriable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrNetworkUnavailable)
}
