package llm

import (
	"context"
	"sync"
)

// MockClient is a scripted Client for tests. Responses are returned in
// order; the last one repeats once the script runs out.
type MockClient struct {
	Responses []string
	Err       error

	mu    sync.Mutex
	calls []Request
	next  int
}

func (m *MockClient) Name() string { return "mock" }

// Calls returns a copy of every request received so far.
func (m *MockClient) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *MockClient) Complete(ctx context.Context, req Request) (string, error) {
	return m.take(req)
}

func (m *MockClient) Stream(ctx context.Context, req Request, onChunk func(string)) (string, error) {
	text, err := m.take(req)
	if err != nil {
		return "", err
	}
	if onChunk != nil && text != "" {
		onChunk(text)
	}
	return text, nil
}

func (m *MockClient) take(req Request) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req)
	if m.Err != nil {
		return "", m.Err
	}
	if len(m.Responses) == 0 {
		return "", ErrEmptyResponse
	}
	i := m.next
	if i >= len(m.Responses) {
		i = len(m.Responses) - 1
	}
	m.next++
	return m.Responses[i], nil
}
