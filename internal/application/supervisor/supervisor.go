// Package supervisor owns the per-profile decision loops and exposes the host
// control surface: start/stop/isRunning plus tracker, metrics and ledger access.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alejandrodnm/tradeassist/internal/application/engine"
	"github.com/alejandrodnm/tradeassist/internal/domain"
	"github.com/alejandrodnm/tradeassist/internal/ports"
)

const defaultInterval = 10 * time.Second

// Engine is the profile engine driven by the supervisor.
type Engine interface {
	ProfileID() string
	RunOnce(ctx context.Context) (*engine.CycleResult, error)
	Trackers(ctx context.Context) (map[string]domain.TrackerState, error)
	Metrics(ctx context.Context) (domain.PortfolioMetrics, error)
	CreateTracker(ctx context.Context, symbol string, initial domain.TrackerPatch) (domain.TrackerState, error)
	UpdateTracker(ctx context.Context, symbol string, patch domain.TrackerPatch) (domain.TrackerState, error)
	DeleteTracker(ctx context.Context, symbol string) error
	Ledger(ctx context.Context) ([]domain.LedgerEntry, error)
	AppendLedger(ctx context.Context, entry domain.LedgerEntry) error
}

type profile struct {
	engine   Engine
	interval time.Duration
}

// worker es el handle de un loop en marcha.
type worker struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Supervisor es el registro profileID → worker. Start/Stop/StopAll son sus
// únicos mutadores; como mucho hay un loop activo por perfil.
type Supervisor struct {
	cycles   ports.CycleStorage
	notifier ports.Notifier

	mu       sync.Mutex
	profiles map[string]profile
	workers  map[string]*worker
}

// New crea un Supervisor. cycles y notifier son opcionales.
func New(cycles ports.CycleStorage, notifier ports.Notifier) *Supervisor {
	return &Supervisor{
		cycles:   cycles,
		notifier: notifier,
		profiles: make(map[string]profile),
		workers:  make(map[string]*worker),
	}
}

// Register adds a profile. The interval spaces cycle starts; zero means the default.
func (s *Supervisor) Register(eng Engine, interval time.Duration) {
	if interval <= 0 {
		interval = defaultInterval
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[eng.ProfileID()] = profile{engine: eng, interval: interval}
}

// Profiles returns the registered profile ids, sorted.
func (s *Supervisor) Profiles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.profiles))
	for id := range s.profiles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Start lanza el loop del perfil. Si ya está corriendo no hace nada.
// El loop no hereda la cancelación de ctx: solo Stop/StopAll lo paran.
func (s *Supervisor) Start(ctx context.Context, profileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[profileID]
	if !ok {
		return fmt.Errorf("supervisor.Start: %s: %w", profileID, domain.ErrProfileNotFound)
	}
	if _, running := s.workers[profileID]; running {
		slog.Debug("supervisor: already running", "profile", profileID)
		return nil
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	w := &worker{cancel: cancel, done: make(chan struct{})}
	s.workers[profileID] = w

	go func() {
		defer close(w.done)
		s.loop(loopCtx, profileID, p)
	}()
	slog.Info("supervisor: profile started", "profile", profileID, "interval", p.interval)
	return nil
}

// Stop clears the profile's scheduling handle. An in-flight cycle finishes.
func (s *Supervisor) Stop(profileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.profiles[profileID]; !ok {
		return fmt.Errorf("supervisor.Stop: %s: %w", profileID, domain.ErrProfileNotFound)
	}
	w, running := s.workers[profileID]
	if !running {
		return nil
	}
	w.cancel()
	delete(s.workers, profileID)
	slog.Info("supervisor: profile stopped", "profile", profileID)
	return nil
}

// IsRunning reports whether the profile has an active loop.
func (s *Supervisor) IsRunning(profileID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.workers[profileID]
	return ok
}

// StopAll para todos los perfiles y espera a que terminen los ciclos en curso
// o a que venza ctx.
func (s *Supervisor) StopAll(ctx context.Context) error {
	s.mu.Lock()
	workers := make([]*worker, 0, len(s.workers))
	for id, w := range s.workers {
		w.cancel()
		workers = append(workers, w)
		delete(s.workers, id)
	}
	s.mu.Unlock()

	for _, w := range workers {
		select {
		case <-w.done:
		case <-ctx.Done():
			return fmt.Errorf("supervisor.StopAll: %w", ctx.Err())
		}
	}
	return nil
}

// RunOnce ejecuta un único ciclo del perfil fuera del loop, con el mismo
// registro y notificación que un ciclo programado.
func (s *Supervisor) RunOnce(ctx context.Context, profileID string) (*engine.CycleResult, error) {
	p, err := s.profile(profileID)
	if err != nil {
		return nil, fmt.Errorf("supervisor.RunOnce: %w", err)
	}
	return s.runCycle(ctx, profileID, p.engine)
}

func (s *Supervisor) loop(ctx context.Context, profileID string, p profile) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		// el ciclo en curso termina aunque se pare el perfil
		_, _ = s.runCycle(context.WithoutCancel(ctx), profileID, p.engine)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (s *Supervisor) runCycle(ctx context.Context, profileID string, eng Engine) (*engine.CycleResult, error) {
	res, err := eng.RunOnce(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			slog.Warn("supervisor: cycle skipped, another run holds the lock", "profile", profileID)
		} else {
			slog.Error("supervisor: cycle failed", "profile", profileID, "err", err)
		}
		return nil, err
	}

	if s.cycles != nil {
		summary := domain.CycleSummary{
			ProfileID: profileID,
			RanAt:     res.StartedAt.UTC(),
			Duration:  res.Duration,
			Trackers:  len(res.Trackers),
			Trades:    len(res.Trades),
			Failures:  res.Failures,
			Balance:   res.Metrics.BankBalance,
			TotalPL:   res.Metrics.TotalPL,
		}
		if err := s.cycles.SaveCycle(ctx, summary); err != nil {
			slog.Warn("supervisor: storing cycle summary", "profile", profileID, "err", err)
		}
	}
	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, profileID, res.Trackers, res.Metrics); err != nil {
			slog.Warn("supervisor: notifier error", "profile", profileID, "err", err)
		}
	}
	return res, nil
}

func (s *Supervisor) profile(profileID string) (profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[profileID]
	if !ok {
		return profile{}, fmt.Errorf("%s: %w", profileID, domain.ErrProfileNotFound)
	}
	return p, nil
}
