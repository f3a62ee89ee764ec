package testing

import (
	"context"
	"sync"

	"github.com/aristath/treasury/internal/notify"
)

// MockNotifier is an in-memory notify.Notifier that records delivered messages
type MockNotifier struct {
	mu       sync.RWMutex
	name     string
	messages []notify.Message
	err      error
}

// NewMockNotifier creates a mock notifier with the given channel name
func NewMockNotifier(name string) *MockNotifier {
	return &MockNotifier{name: name}
}

// SetError makes every following Send fail with err
func (m *MockNotifier) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Send records the message unless an error is set
func (m *MockNotifier) Send(_ context.Context, msg notify.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, msg)
	return nil
}

// Name returns the channel name
func (m *MockNotifier) Name() string {
	return m.name
}

// Messages returns a copy of the delivered messages
func (m *MockNotifier) Messages() []notify.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]notify.Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// MockSource is a source.Source returning a fixed document
type MockSource struct {
	mu    sync.RWMutex
	doc   string
	err   error
	calls int
}

// NewMockSource creates a mock source serving doc
func NewMockSource(doc string) *MockSource {
	return &MockSource{doc: doc}
}

// SetError makes every following Fetch fail with err
func (m *MockSource) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Fetch returns the configured document
func (m *MockSource) Fetch(_ context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	return m.doc, nil
}

// Name returns the source name
func (m *MockSource) Name() string {
	return "mock"
}

// Calls returns how many times Fetch was called
func (m *MockSource) Calls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls
}
