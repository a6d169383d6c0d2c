package banklink

import (
	"context"
	"sync"
	"time"
)

// MockProvider is a Provider for tests.
type MockProvider struct {
	TransactionsFn func(ctx context.Context, start, end time.Time) ([]Line, error)
	Calls          []TransactionsCall
	mu             sync.Mutex
}

// TransactionsCall records the parameters of a Transactions call.
type TransactionsCall struct {
	Start time.Time
	End   time.Time
}

// Name implements Provider.
func (m *MockProvider) Name() string {
	return "mock"
}

// Transactions implements Provider.
func (m *MockProvider) Transactions(ctx context.Context, start, end time.Time) ([]Line, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, TransactionsCall{Start: start, End: end})
	fn := m.TransactionsFn
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, start, end)
	}
	return nil, nil
}

var (
	_ Provider = (*MockProvider)(nil)
	_ Provider = (*PlaidClient)(nil)
)
