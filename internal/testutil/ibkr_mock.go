package testutil

import (
	"context"
	"sync"

	"github.com/ndewijer/valuation-engine/internal/ibkr"
)

// MockFlexClient is a mock implementation of ibkr.Client returning fixed statements.
type MockFlexClient struct {
	mu         sync.Mutex
	statements []ibkr.Statement
	err        error
	// Calls counts FetchStatements calls.
	Calls int
}

// NewMockFlexClient creates a mock that returns the given statements.
func NewMockFlexClient(statements ...ibkr.Statement) *MockFlexClient {
	return &MockFlexClient{statements: statements}
}

// FetchStatements returns the configured statements or error.
func (m *MockFlexClient) FetchStatements(_ context.Context, _ string, _ int) ([]ibkr.Statement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.statements, nil
}

// WithError makes every fetch fail.
func (m *MockFlexClient) WithError(err error) *MockFlexClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}
