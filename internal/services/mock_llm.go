package services

import (
	"context"
	"sync"

	"github.com/tavernkeep/gamemaster/pkg/chat"
)

// MockLLM is a scripted LLMService for tests and offline play. Each
// Chat call consumes the next scripted step.
type MockLLM struct {
	mu    sync.Mutex
	steps []mockStep
	calls int

	// LastMessages records the most recent request for assertions.
	LastMessages []chat.ChatMessage
}

type mockStep struct {
	response string
	err      error
}

var _ LLMService = (*MockLLM)(nil)

func NewMockLLM() *MockLLM {
	return &MockLLM{}
}

// Respond scripts a successful response.
func (m *MockLLM) Respond(text string) *MockLLM {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, mockStep{response: text})
	return m
}

// Fail scripts a failure.
func (m *MockLLM) Fail(err error) *MockLLM {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, mockStep{err: err})
	return m
}

// Calls reports how many Chat calls were made.
func (m *MockLLM) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockLLM) InitModel(ctx context.Context, modelName string) error {
	return nil
}

func (m *MockLLM) Chat(ctx context.Context, messages []chat.ChatMessage) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	m.LastMessages = append([]chat.ChatMessage(nil), messages...)

	if len(m.steps) == 0 {
		return "The world waits quietly.", nil
	}
	step := m.steps[0]
	m.steps = m.steps[1:]
	if step.err != nil {
		return "", step.err
	}
	return step.response, nil
}
