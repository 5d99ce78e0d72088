// Package engine drives the decision cycle of one profile: reconcile the bank,
// refresh the tradable universe, allocate funds, run the position state
// machine for every tracker and persist the result.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/tradeassist/internal/application/execution"
	"github.com/alejandrodnm/tradeassist/internal/domain"
	"github.com/alejandrodnm/tradeassist/internal/domain/strategy"
	"github.com/alejandrodnm/tradeassist/internal/ports"
)

// Bank es la interfaz mínima que el engine necesita del banco del perfil.
type Bank interface {
	Holdings(ctx context.Context) (float64, error)
	Balance(ctx context.Context) (float64, error)
	Ledger(ctx context.Context) ([]domain.LedgerEntry, error)
	Record(ctx context.Context, entry domain.LedgerEntry) error
}

// Executor places orders and books their fills on the bank.
type Executor interface {
	PlaceBuy(ctx context.Context, symbol string, quoteAmount float64, increment string) (*domain.Order, error)
	PlaceSell(ctx context.Context, symbol string, baseAmount float64, increment string) (*domain.Order, error)
}

// Config holds the profile settings the cycle needs.
type Config struct {
	ProfileID         string
	Universe          Universe
	ReservePercentage float64
	MaxAllocation     float64 // dollar cap per tracker; 0 means uncapped
	AutoBuy           bool    // initial auto-buy flag of new trackers
	Parameters        domain.Parameters
}

// Engine runs cycles for a single profile. Cycles and host mutations are
// serialized by a per-profile mutex and, across processes, by the run lock.
type Engine struct {
	cfg      Config
	exchange ports.Exchange
	store    ports.TrackerStorage
	bank     Bank
	exec     Executor
	lock     ports.RunLock
	retry    execution.RetryPolicy
	now      func() time.Time

	mu sync.Mutex
}

// New creates the engine of a profile.
func New(
	cfg Config,
	exchange ports.Exchange,
	store ports.TrackerStorage,
	bank Bank,
	exec Executor,
	lock ports.RunLock,
	retry execution.RetryPolicy,
) *Engine {
	cfg.Parameters = cfg.Parameters.WithDefaults()
	return &Engine{
		cfg:      cfg,
		exchange: exchange,
		store:    store,
		bank:     bank,
		exec:     exec,
		lock:     lock,
		retry:    retry,
		now:      time.Now,
	}
}

// ProfileID returns the profile driven by this engine.
func (e *Engine) ProfileID() string {
	return e.cfg.ProfileID
}

// Trade is one executed order of a cycle.
type Trade struct {
	Symbol  string
	Trigger strategy.Trigger
	Order   domain.Order
}

// CycleResult contains everything produced by one decision cycle.
type CycleResult struct {
	ProfileID     string
	StartedAt     time.Time
	Duration      time.Duration
	Holdings      float64
	Eligible      int
	NewTrackers   []string
	MaxAllocation float64
	Trades        []Trade
	Failures      int
	Trackers      []domain.TrackerState
	Metrics       domain.PortfolioMetrics
}

// RunOnce executes a single decision cycle.
//
// A reconciliation failure aborts the cycle before any order is placed.
// Per-symbol failures are recorded on the tracker and never abort the cycle.
func (e *Engine) RunOnce(ctx context.Context) (*CycleResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	unlock, err := e.lock.Acquire(ctx, e.cfg.ProfileID)
	if err != nil {
		return nil, fmt.Errorf("engine.RunOnce: %w", err)
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			slog.Warn("engine: releasing run lock", "profile", e.cfg.ProfileID, "err", err)
		}
	}()

	start := e.now()
	result := &CycleResult{ProfileID: e.cfg.ProfileID, StartedAt: start}

	holdings, err := e.bank.Holdings(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine.RunOnce: holdings: %w", err)
	}
	result.Holdings = holdings

	stored, err := e.store.LoadTrackers(ctx, e.cfg.ProfileID)
	if err != nil {
		return nil, fmt.Errorf("engine.RunOnce: load trackers: %w", err)
	}
	products, err := e.products(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine.RunOnce: %w", err)
	}
	eligible := e.cfg.Universe.Eligible(products)
	result.Eligible = len(eligible)
	slog.Info("engine: tradable products", "profile", e.cfg.ProfileID,
		"eligible", len(eligible), "listed", len(products), "trackers", len(stored))

	trackers := make([]*domain.TrackerState, 0, len(eligible))
	for _, p := range eligible {
		t, ok := stored[p.ProductID]
		if !ok {
			t = domain.NewTrackerState(p, e.cfg.Parameters)
			t.AutoBuy = e.cfg.AutoBuy
			result.NewTrackers = append(result.NewTrackers, p.ProductID)
			slog.Info("engine: new tracker", "profile", e.cfg.ProfileID, "symbol", p.ProductID, "price", p.Price)
		}
		if !t.OverrideParameters {
			t.Parameters = e.cfg.Parameters
		}
		if t.BaseIncrement == "" {
			t.BaseIncrement = p.BaseIncrement
		}
		if t.QuoteIncrement == "" {
			t.QuoteIncrement = p.QuoteIncrement
		}
		t.ObservePrice(p.Price)
		t.RefreshAggregates()
		trackers = append(trackers, &t)
	}

	result.MaxAllocation = MaxAllocation(holdings, trackers, e.cfg.ReservePercentage, e.cfg.MaxAllocation)
	for _, t := range trackers {
		t.MaxAllocation = result.MaxAllocation
	}

	for _, t := range trackers {
		e.step(ctx, t, result)
	}

	now := e.now().UTC()
	saved := make([]domain.TrackerState, 0, len(trackers))
	for _, t := range trackers {
		t.RefreshAggregates()
		t.Datestamp = &now
		saved = append(saved, *t)
	}
	if err := e.store.SaveTrackers(ctx, e.cfg.ProfileID, saved); err != nil {
		return nil, fmt.Errorf("engine.RunOnce: save trackers: %w", err)
	}
	result.Trackers = saved

	for _, t := range saved {
		stored[t.Symbol] = t
	}
	balance, err := e.bank.Balance(ctx)
	if err != nil {
		slog.Warn("engine: reading bank balance", "profile", e.cfg.ProfileID, "err", err)
	}
	result.Metrics = domain.ComputeMetrics(values(stored), balance)
	result.Duration = e.now().Sub(start)

	slog.Info("engine: cycle complete", "profile", e.cfg.ProfileID,
		"trackers", len(saved), "trades", len(result.Trades), "failures", result.Failures,
		"balance", fmt.Sprintf("$%.2f", balance), "duration", result.Duration.Round(time.Millisecond))
	return result, nil
}

func (e *Engine) products(ctx context.Context) ([]domain.Product, error) {
	var products []domain.Product
	err := e.retry.Do(ctx, "products", func(ctx context.Context) error {
		var err error
		products, err = e.exchange.Products(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("products: %w", err)
	}
	return products, nil
}

// step runs the state machine for one tracker and executes its decisions.
func (e *Engine) step(ctx context.Context, t *domain.TrackerState, result *CycleResult) {
	if t.CurrentPrice <= 0 {
		err := fmt.Errorf("%s has no price: %w", t.Symbol, domain.ErrInvalidAmount)
		slog.Warn("engine: skipping tracker", "profile", e.cfg.ProfileID, "symbol", t.Symbol, "err", err)
		t.RecordError(e.now().UTC(), err)
		t.Recommend(domain.ActionNone, err.Error())
		result.Failures++
		return
	}

	balance, err := e.bank.Balance(ctx)
	if err != nil {
		t.RecordError(e.now().UTC(), err)
		result.Failures++
		return
	}
	t.AvailableFunds = balance

	plan := strategy.Evaluate(t)
	if len(plan.Decisions) == 0 {
		t.Recommend(plan.Recommendation.Action, plan.Recommendation.Reason)
		slog.Debug("engine: no action", "symbol", t.Symbol, "action", plan.Recommendation.Action,
			"reason", plan.Recommendation.Reason)
		return
	}

	for _, d := range plan.Decisions {
		t.Recommend(d.Action, d.Reason)
		var err error
		switch d.Action {
		case domain.ActionBuy:
			err = e.buy(ctx, t, d, result)
		case domain.ActionSell:
			err = e.sell(ctx, t, d, result)
		}
		if err != nil {
			slog.Warn("engine: order failed", "profile", e.cfg.ProfileID, "symbol", t.Symbol,
				"action", d.Action, "trigger", d.Trigger, "err", err)
			t.RecordError(e.now().UTC(), err)
			t.Recommend(d.Action, fmt.Sprintf("%s (failed: %v)", d.Reason, err))
			result.Failures++
		}
	}
}

func (e *Engine) buy(ctx context.Context, t *domain.TrackerState, d strategy.Decision, result *CycleResult) error {
	order, err := e.exec.PlaceBuy(ctx, t.Symbol, d.Amount, t.QuoteIncrement)
	if order == nil {
		return err
	}

	t.Positions = append(t.Positions, domain.NewPosition(*order))
	if errors.Is(err, domain.ErrUnbookedFill) {
		t.UnbookedAmount += order.CurrencyAmount
	}
	t.BuyPrice = order.BasePrice
	t.HighestPrice = order.BasePrice
	t.LowestPrice = order.BasePrice
	t.ExitPrice = nil
	if d.Trigger == strategy.TriggerLimit && d.Position >= 0 {
		t.Positions[d.Position].Limit = nil
	}
	t.RecordAction(e.now().UTC(), order.BasePrice, fmt.Sprintf("Buy executed (%s): %.8f %s for %.2f at %v",
		d.Trigger, order.BaseAmount, t.Symbol, order.CurrencyAmount, order.BasePrice))
	result.Trades = append(result.Trades, Trade{Symbol: t.Symbol, Trigger: d.Trigger, Order: *order})
	e.refreshFunds(ctx, t)
	return err
}

func (e *Engine) sell(ctx context.Context, t *domain.TrackerState, d strategy.Decision, result *CycleResult) error {
	if d.Position < 0 || d.Position >= len(t.Positions) || !t.Positions[d.Position].Open() {
		return fmt.Errorf("%s: no open position %d to sell: %w", t.Symbol, d.Position, domain.ErrInvalidAmount)
	}
	p := &t.Positions[d.Position]
	order, err := e.exec.PlaceSell(ctx, t.Symbol, p.BuyOrder.BaseAmount, t.BaseIncrement)
	if order == nil {
		return err
	}

	p.Close(*order)
	t.HighestPrice = order.BasePrice
	t.LowestPrice = order.BasePrice
	t.RecordAction(e.now().UTC(), order.BasePrice, fmt.Sprintf("Sell executed (%s): %.8f %s for %.2f at %v, P/L %.2f (%.2f%%)",
		d.Trigger, order.BaseAmount, t.Symbol, order.CurrencyAmount, order.BasePrice, p.PLAmount, p.PLPercentage))
	result.Trades = append(result.Trades, Trade{Symbol: t.Symbol, Trigger: d.Trigger, Order: *order})
	e.refreshFunds(ctx, t)
	return err
}

func (e *Engine) refreshFunds(ctx context.Context, t *domain.TrackerState) {
	if balance, err := e.bank.Balance(ctx); err == nil {
		t.AvailableFunds = balance
	}
}

// Trackers returns the persisted tracker states keyed by symbol.
func (e *Engine) Trackers(ctx context.Context) (map[string]domain.TrackerState, error) {
	trackers, err := e.store.LoadTrackers(ctx, e.cfg.ProfileID)
	if err != nil {
		return nil, fmt.Errorf("engine.Trackers: %w", err)
	}
	return trackers, nil
}

// Metrics aggregates the persisted trackers and the bank balance.
func (e *Engine) Metrics(ctx context.Context) (domain.PortfolioMetrics, error) {
	trackers, err := e.Trackers(ctx)
	if err != nil {
		return domain.PortfolioMetrics{}, err
	}
	balance, err := e.bank.Balance(ctx)
	if err != nil {
		return domain.PortfolioMetrics{}, fmt.Errorf("engine.Metrics: %w", err)
	}
	return domain.ComputeMetrics(values(trackers), balance), nil
}

// CreateTracker starts tracking symbol with the default state, then applies
// the initial patch. The symbol must be listed by the exchange.
func (e *Engine) CreateTracker(ctx context.Context, symbol string, initial domain.TrackerPatch) (domain.TrackerState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.store.LoadTracker(ctx, e.cfg.ProfileID, symbol); err == nil {
		return domain.TrackerState{}, fmt.Errorf("engine.CreateTracker: %s: %w", symbol, domain.ErrTrackerExists)
	} else if !errors.Is(err, domain.ErrTrackerNotFound) {
		return domain.TrackerState{}, fmt.Errorf("engine.CreateTracker: %w", err)
	}

	products, err := e.products(ctx)
	if err != nil {
		return domain.TrackerState{}, fmt.Errorf("engine.CreateTracker: %w", err)
	}
	for _, p := range products {
		if p.ProductID != symbol {
			continue
		}
		t := domain.NewTrackerState(p, e.cfg.Parameters)
		t.AutoBuy = e.cfg.AutoBuy
		initial.Apply(&t)
		if err := e.store.SaveTrackers(ctx, e.cfg.ProfileID, []domain.TrackerState{t}); err != nil {
			return domain.TrackerState{}, fmt.Errorf("engine.CreateTracker: %w", err)
		}
		slog.Info("engine: tracker created", "profile", e.cfg.ProfileID, "symbol", symbol)
		return t, nil
	}
	return domain.TrackerState{}, fmt.Errorf("engine.CreateTracker: %s: %w", symbol, domain.ErrProductNotFound)
}

// UpdateTracker applies a host patch to a persisted tracker.
func (e *Engine) UpdateTracker(ctx context.Context, symbol string, patch domain.TrackerPatch) (domain.TrackerState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, err := e.store.LoadTracker(ctx, e.cfg.ProfileID, symbol)
	if err != nil {
		return domain.TrackerState{}, fmt.Errorf("engine.UpdateTracker: %w", err)
	}
	patch.Apply(&t)
	if err := e.store.SaveTrackers(ctx, e.cfg.ProfileID, []domain.TrackerState{t}); err != nil {
		return domain.TrackerState{}, fmt.Errorf("engine.UpdateTracker: %w", err)
	}
	return t, nil
}

// DeleteTracker stops tracking symbol. Open positions are not sold.
func (e *Engine) DeleteTracker(ctx context.Context, symbol string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.store.LoadTracker(ctx, e.cfg.ProfileID, symbol); err != nil {
		return fmt.Errorf("engine.DeleteTracker: %w", err)
	}
	if err := e.store.DeleteTracker(ctx, e.cfg.ProfileID, symbol); err != nil {
		return fmt.Errorf("engine.DeleteTracker: %w", err)
	}
	return nil
}

// Ledger returns the profile ledger.
func (e *Engine) Ledger(ctx context.Context) ([]domain.LedgerEntry, error) {
	return e.bank.Ledger(ctx)
}

// AppendLedger books a host entry, serialized with the cycle.
func (e *Engine) AppendLedger(ctx context.Context, entry domain.LedgerEntry) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bank.Record(ctx, entry)
}

func values(m map[string]domain.TrackerState) []domain.TrackerState {
	out := make([]domain.TrackerState, 0, len(m))
	for _, t := range m {
		out = append(out, t)
	}
	return out
}
