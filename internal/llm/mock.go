package llm

import (
	"context"
	"sync"
)

// MockClient is a scripted Client for tests. Each call pops the next reply;
// when the script is exhausted the last reply repeats.
type MockClient struct {
	Fn      func(ctx context.Context, req Request) (Response, error)
	name    string
	replies []MockReply
	calls   []Request
	mu      sync.Mutex
}

// MockReply is one scripted answer.
type MockReply struct {
	Err  error
	Text string
}

// NewMockClient creates a mock provider with the given replies.
func NewMockClient(name string, replies ...MockReply) *MockClient {
	return &MockClient{name: name, replies: replies}
}

// Name returns the mock's provider name.
func (m *MockClient) Name() string {
	return m.name
}

// Complete records req and returns the next scripted reply.
func (m *MockClient) Complete(ctx context.Context, req Request) (Response, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	fn := m.Fn
	var reply MockReply
	if len(m.replies) > 0 {
		reply = m.replies[0]
		if len(m.replies) > 1 {
			m.replies = m.replies[1:]
		}
	}
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if reply.Err != nil {
		return Response{}, reply.Err
	}
	return Response{Text: reply.Text, Provider: m.name}, nil
}

// Calls returns the requests seen so far.
func (m *MockClient) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.calls))
	copy(out, m.calls)
	return out
}
