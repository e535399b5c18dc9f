package agent

import (
	"context"
	"fmt"
	"sync"
)

type mockReply struct {
	text string
	err  error
}

// MockClient replays scripted responses per operation. When an operation's
// script runs out, its last reply is repeated, so a short script of scores
// behaves like a critic that has stopped improving.
type MockClient struct {
	mu       sync.Mutex
	scripts  map[string][]mockReply
	last     map[string]mockReply
	requests []Request
}

// NewMockClient creates a mock AI client for testing
func NewMockClient() *MockClient {
	return &MockClient{
		scripts: make(map[string][]mockReply),
		last:    make(map[string]mockReply),
	}
}

// On queues text replies for operation.
func (m *MockClient) On(operation string, replies ...string) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range replies {
		m.scripts[operation] = append(m.scripts[operation], mockReply{text: r})
	}
	return m
}

// Fail queues an error reply for operation.
func (m *MockClient) Fail(operation string, err error) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[operation] = append(m.scripts[operation], mockReply{err: err})
	return m
}

// Generate returns the next scripted reply for req.Operation.
func (m *MockClient) Generate(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)

	queue := m.scripts[req.Operation]
	if len(queue) == 0 {
		reply, ok := m.last[req.Operation]
		if !ok {
			return "", fmt.Errorf("mock: no response scripted for operation %q", req.Operation)
		}
		return reply.text, reply.err
	}

	reply := queue[0]
	m.scripts[req.Operation] = queue[1:]
	m.last[req.Operation] = reply
	return reply.text, reply.err
}

// Calls counts requests for operation, or all requests when operation is "".
func (m *MockClient) Calls(operation string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if operation == "" {
		return len(m.requests)
	}
	n := 0
	for _, r := range m.requests {
		if r.Operation == operation {
			n++
		}
	}
	return n
}

// Requests returns a copy of every request received, in order.
func (m *MockClient) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}
