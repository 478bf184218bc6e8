package journal

import (
	"context"
	"sync"
)

type (
	// Memory is the in-memory journal twin used in tests.
	Memory struct {
		mu   sync.RWMutex
		subs []*Submission
	}
)

// NewMemory initializes an empty in-memory journal.
func NewMemory() *Memory {
	return &Memory{}
}

// Add appends a submission record.
func (m *Memory) Add(_ context.Context, sub *Submission) error {
	m.mu.Lock()
	m.subs = append(m.subs, sub)
	m.mu.Unlock()
	return nil
}

// All returns a paginated slice of recorded submissions in insertion order.
func (m *Memory) All(_ context.Context, offset, limit int) ([]*Submission, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if offset >= len(m.subs) {
		return nil, len(m.subs), nil
	}
	end := offset + limit
	if end > len(m.subs) {
		end = len(m.subs)
	}
	out := make([]*Submission, end-offset)
	copy(out, m.subs[offset:end])
	return out, len(m.subs), nil
}

// BySender returns all submissions recorded for one sender.
func (m *Memory) BySender(_ context.Context, from string) ([]*Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Submission
	for _, sub := range m.subs {
		if sub.FromAddr == from {
			out = append(out, sub)
		}
	}
	return out, nil
}
