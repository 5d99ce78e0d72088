package supervisor

import (
	"context"
	"fmt"

	"github.com/alejandrodnm/tradeassist/internal/domain"
)

// GetTrackerStates returns the persisted trackers of a profile keyed by symbol.
func (s *Supervisor) GetTrackerStates(ctx context.Context, profileID string) (map[string]domain.TrackerState, error) {
	p, err := s.profile(profileID)
	if err != nil {
		return nil, fmt.Errorf("supervisor.GetTrackerStates: %w", err)
	}
	return p.engine.Trackers(ctx)
}

func (s *Supervisor) GetPortfolioMetrics(ctx context.Context, profileID string) (domain.PortfolioMetrics, error) {
	p, err := s.profile(profileID)
	if err != nil {
		return domain.PortfolioMetrics{}, fmt.Errorf("supervisor.GetPortfolioMetrics: %w", err)
	}
	return p.engine.Metrics(ctx)
}

func (s *Supervisor) CreateTrackerState(ctx context.Context, profileID, symbol string, initial domain.TrackerPatch) (domain.TrackerState, error) {
	p, err := s.profile(profileID)
	if err != nil {
		return domain.TrackerState{}, fmt.Errorf("supervisor.CreateTrackerState: %w", err)
	}
	return p.engine.CreateTracker(ctx, symbol, initial)
}

func (s *Supervisor) UpdateTrackerState(ctx context.Context, profileID, symbol string, patch domain.TrackerPatch) (domain.TrackerState, error) {
	p, err := s.profile(profileID)
	if err != nil {
		return domain.TrackerState{}, fmt.Errorf("supervisor.UpdateTrackerState: %w", err)
	}
	return p.engine.UpdateTracker(ctx, symbol, patch)
}

// DeleteTracker stops tracking a symbol; open positions stay on the exchange.
func (s *Supervisor) DeleteTracker(ctx context.Context, profileID, symbol string) error {
	p, err := s.profile(profileID)
	if err != nil {
		return fmt.Errorf("supervisor.DeleteTracker: %w", err)
	}
	return p.engine.DeleteTracker(ctx, symbol)
}

func (s *Supervisor) GetLedger(ctx context.Context, profileID string) ([]domain.LedgerEntry, error) {
	p, err := s.profile(profileID)
	if err != nil {
		return nil, fmt.Errorf("supervisor.GetLedger: %w", err)
	}
	return p.engine.Ledger(ctx)
}

// AppendLedgerEntry books a host entry. The running balance is recomputed by
// the bank; only amount, symbol and description are taken from entry.
func (s *Supervisor) AppendLedgerEntry(ctx context.Context, profileID string, entry domain.LedgerEntry) error {
	p, err := s.profile(profileID)
	if err != nil {
		return fmt.Errorf("supervisor.AppendLedgerEntry: %w", err)
	}
	return p.engine.AppendLedger(ctx, entry)
}

// RecentCycles returns the latest cycle summaries of a profile, newest first.
func (s *Supervisor) RecentCycles(ctx context.Context, profileID string, limit int) ([]domain.CycleSummary, error) {
	if _, err := s.profile(profileID); err != nil {
		return nil, fmt.Errorf("supervisor.RecentCycles: %w", err)
	}
	if s.cycles == nil {
		return nil, nil
	}
	return s.cycles.RecentCycles(ctx, profileID, limit)
}
