// Package lock implements ports.RunLock in process memory and on Redis.
package lock

import (
	"context"
	"fmt"
	"sync"

	"github.com/alejandrodnm/tradeassist/internal/domain"
	"github.com/alejandrodnm/tradeassist/internal/ports"
)

// Memory is a per-profile lock valid within one process.
type Memory struct {
	mu   sync.Mutex
	held map[string]bool
}

// NewMemory returns an empty in-process lock.
func NewMemory() *Memory {
	return &Memory{held: make(map[string]bool)}
}

// Acquire takes the lock of profileID or returns domain.ErrLockHeld.
// The returned unlock function is safe to call more than once.
func (m *Memory) Acquire(_ context.Context, profileID string) (func(context.Context) error, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[profileID] {
		return nil, fmt.Errorf("lock: %s: %w", profileID, domain.ErrLockHeld)
	}
	m.held[profileID] = true

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			m.mu.Lock()
			delete(m.held, profileID)
			m.mu.Unlock()
		})
		return nil
	}, nil
}

var _ ports.RunLock = (*Memory)(nil)
