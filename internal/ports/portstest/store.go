package portstest

import (
	"context"
	"fmt"
	"sync"

	"github.com/alejandrodnm/tradeassist/internal/domain"
)

// Store is an in-memory tracker and ledger store.
type Store struct {
	mu       sync.Mutex
	trackers map[string]map[string]domain.TrackerState
	ledgers  map[string][]domain.LedgerEntry
	cycles   []domain.CycleSummary

	// AppendErr, when set, fails every ledger append.
	AppendErr error
}

// NewStore returns an empty in-memory store.
func NewStore() *Store {
	return &Store{
		trackers: make(map[string]map[string]domain.TrackerState),
		ledgers:  make(map[string][]domain.LedgerEntry),
	}
}

func (s *Store) LoadTrackers(ctx context.Context, profileID string) (map[string]domain.TrackerState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]domain.TrackerState, len(s.trackers[profileID]))
	for k, v := range s.trackers[profileID] {
		out[k] = v
	}
	return out, nil
}

func (s *Store) LoadTracker(ctx context.Context, profileID, symbol string) (domain.TrackerState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trackers[profileID][symbol]
	if !ok {
		return domain.TrackerState{}, fmt.Errorf("%s/%s: %w", profileID, symbol, domain.ErrTrackerNotFound)
	}
	return t, nil
}

func (s *Store) SaveTrackers(ctx context.Context, profileID string, trackers []domain.TrackerState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.trackers[profileID] == nil {
		s.trackers[profileID] = make(map[string]domain.TrackerState)
	}
	for _, t := range trackers {
		s.trackers[profileID][t.Symbol] = t
	}
	return nil
}

func (s *Store) DeleteTracker(ctx context.Context, profileID, symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.trackers[profileID], symbol)
	return nil
}

func (s *Store) AppendLedger(ctx context.Context, profileID string, entry domain.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.AppendErr != nil {
		return s.AppendErr
	}
	s.ledgers[profileID] = append(s.ledgers[profileID], entry)
	return nil
}

func (s *Store) Ledger(ctx context.Context, profileID string) ([]domain.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.LedgerEntry(nil), s.ledgers[profileID]...), nil
}

func (s *Store) SaveCycle(ctx context.Context, summary domain.CycleSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycles = append(s.cycles, summary)
	return nil
}

// RecentCycles returns the newest cycles first.
func (s *Store) RecentCycles(ctx context.Context, profileID string, limit int) ([]domain.CycleSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.CycleSummary
	for i := len(s.cycles) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if s.cycles[i].ProfileID == profileID {
			out = append(out, s.cycles[i])
		}
	}
	return out, nil
}

func (s *Store) Close() error { return nil }
