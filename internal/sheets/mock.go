package sheets

import (
	"context"
	"sync"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/ledger"
)

// MockWriter is a ReportWriter for tests.
type MockWriter struct {
	WriteFunc  func(ctx context.Context, report *ledger.Report) error
	LastReport *ledger.Report
	WriteCalls int
	mu         sync.Mutex
}

// Write implements ReportWriter.
func (m *MockWriter) Write(ctx context.Context, report *ledger.Report) error {
	m.mu.Lock()
	m.WriteCalls++
	m.LastReport = report
	fn := m.WriteFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, report)
	}
	return nil
}

var (
	_ ReportWriter = (*MockWriter)(nil)
	_ ReportWriter = (*Writer)(nil)
)
