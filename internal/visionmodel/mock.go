package visionmodel

import (
	"context"
	"sync"

	"github.com/flightscout/orchestrator/types"
)

// MockModel is a test double for VisionModel, following the builder style
// of testutil/mocks/provider.go: configure canned responses, then assert on
// recorded calls.
type MockModel struct {
	mu        sync.Mutex
	responses []Completion
	errs      []error
	calls     []([]types.Message)
	failAfter int
}

// NewMockModel creates an empty MockModel.
func NewMockModel() *MockModel {
	return &MockModel{failAfter: -1}
}

// WithResponse queues a successful response to be returned on the next call.
func (m *MockModel) WithResponse(c Completion) *MockModel {
	m.responses = append(m.responses, c)
	m.errs = append(m.errs, nil)
	return m
}

// WithError queues an error to be returned on the next call.
func (m *MockModel) WithError(err error) *MockModel {
	m.responses = append(m.responses, Completion{})
	m.errs = append(m.errs, err)
	return m
}

func (m *MockModel) Complete(ctx context.Context, messages []types.Message, opts CompletionOptions) (Completion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, messages)
	idx := len(m.calls) - 1
	if idx >= len(m.responses) {
		return Completion{}, nil
	}
	return m.responses[idx], m.errs[idx]
}

// CallCount returns how many times Complete has been invoked.
func (m *MockModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
