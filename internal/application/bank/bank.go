// Package bank keeps a profile's virtual funds: a running balance backed by an
// append-only ledger, reconciled against the exchange's real balance.
package bank

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/tradeassist/internal/application/execution"
	"github.com/alejandrodnm/tradeassist/internal/domain"
	"github.com/alejandrodnm/tradeassist/internal/ports"
)

// Config describes one profile's bank.
type Config struct {
	ProfileID      string
	QuoteCurrency  string
	InitialDeposit float64
	Reserve        float64 // quote amount left untouched on the exchange

	// SkipReconcile disables the exchange balance check. Meant for
	// simulation profiles running without credentials.
	SkipReconcile bool
}

// Bank is safe for concurrent use; every mutation is persisted before it
// becomes visible.
type Bank struct {
	cfg      Config
	store    ports.LedgerStorage
	exchange ports.Exchange
	retry    execution.RetryPolicy
	now      func() time.Time

	mu      sync.Mutex
	loaded  bool
	balance float64
	entries int
}

// New creates a bank for a profile. The ledger is loaded lazily.
func New(cfg Config, store ports.LedgerStorage, exchange ports.Exchange, retry execution.RetryPolicy) *Bank {
	return &Bank{
		cfg:      cfg,
		store:    store,
		exchange: exchange,
		retry:    retry,
		now:      time.Now,
	}
}

// Configure updates the reserve and quote currency, e.g. after a config reload.
func (b *Bank) Configure(quoteCurrency string, reserve float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if quoteCurrency != "" {
		b.cfg.QuoteCurrency = quoteCurrency
	}
	b.cfg.Reserve = reserve
}

// load restores the balance from the last ledger entry. Caller holds mu.
func (b *Bank) load(ctx context.Context) error {
	if b.loaded {
		return nil
	}
	entries, err := b.store.Ledger(ctx, b.cfg.ProfileID)
	if err != nil {
		return fmt.Errorf("bank.load: %w", err)
	}
	b.entries = len(entries)
	b.balance = 0
	if len(entries) > 0 {
		b.balance = entries[len(entries)-1].Balance
	}
	b.loaded = true
	slog.Debug("ledger loaded", "profile", b.cfg.ProfileID, "entries", b.entries, "balance", b.balance)
	return nil
}

// Balance returns the current virtual balance.
func (b *Bank) Balance(ctx context.Context) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.load(ctx); err != nil {
		return 0, err
	}
	return b.balance, nil
}

// Deposit adds amount to the balance. Non-positive amounts are rejected
// without touching the ledger.
func (b *Bank) Deposit(ctx context.Context, amount float64, symbol, description string) error {
	if amount <= 0 {
		slog.Error("deposit amount must be greater than 0", "profile", b.cfg.ProfileID, "amount", amount)
		return fmt.Errorf("bank.Deposit: %v: %w", amount, domain.ErrInvalidAmount)
	}
	if description == "" {
		description = "Deposit"
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.load(ctx); err != nil {
		return err
	}
	if err := b.append(ctx, amount, symbol, description); err != nil {
		return fmt.Errorf("bank.Deposit: %w", err)
	}
	slog.Info("deposit", "profile", b.cfg.ProfileID, "amount", amount,
		"currency", b.cfg.QuoteCurrency, "balance", b.balance)
	return nil
}

// Withdraw removes amount from the balance. Non-positive amounts and amounts
// above the balance are rejected without touching the ledger.
func (b *Bank) Withdraw(ctx context.Context, amount float64, symbol, description string) error {
	if amount <= 0 {
		slog.Error("withdrawal amount must be greater than 0", "profile", b.cfg.ProfileID, "amount", amount)
		return fmt.Errorf("bank.Withdraw: %v: %w", amount, domain.ErrInvalidAmount)
	}
	if description == "" {
		description = "Withdrawal"
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.load(ctx); err != nil {
		return err
	}
	if amount > b.balance {
		slog.Error("insufficient funds for withdrawal", "profile", b.cfg.ProfileID,
			"amount", amount, "balance", b.balance)
		return fmt.Errorf("bank.Withdraw: %v > balance %v: %w", amount, b.balance, domain.ErrInsufficientFunds)
	}
	if err := b.append(ctx, -amount, symbol, description); err != nil {
		return fmt.Errorf("bank.Withdraw: %w", err)
	}
	slog.Info("withdrawal", "profile", b.cfg.ProfileID, "amount", amount,
		"currency", b.cfg.QuoteCurrency, "balance", b.balance)
	return nil
}

// append persists the entry first and only then moves the in-memory balance.
func (b *Bank) append(ctx context.Context, amount float64, symbol, description string) error {
	if symbol == "" {
		symbol = domain.NoSymbol
	}
	entry := domain.LedgerEntry{
		Timestamp:   b.now().UTC(),
		Amount:      amount,
		Balance:     b.balance + amount,
		Symbol:      symbol,
		Description: description,
	}
	if err := b.store.AppendLedger(ctx, b.cfg.ProfileID, entry); err != nil {
		return fmt.Errorf("persist ledger entry: %w", err)
	}
	b.balance = entry.Balance
	b.entries++
	return nil
}

// Holdings returns the virtual balance after reconciling it with the exchange.
//
// An empty ledger is seeded once with the initial deposit. The call fails with
// a *domain.ReconciliationError when the exchange balance net of the reserve
// is below the ledger balance; the ledger is never adjusted. A missing quote
// currency account counts as a zero exchange balance.
func (b *Bank) Holdings(ctx context.Context) (float64, error) {
	balance, err := b.seed(ctx)
	if err != nil {
		return 0, fmt.Errorf("bank.Holdings: %w", err)
	}
	b.mu.Lock()
	cfg := b.cfg
	b.mu.Unlock()
	if cfg.SkipReconcile {
		return balance, nil
	}

	var accounts []domain.Account
	err = b.retry.Do(ctx, "accounts", func(ctx context.Context) error {
		var err error
		accounts, err = b.exchange.Accounts(ctx)
		return err
	})
	if err != nil {
		slog.Error("fetching holdings", "profile", cfg.ProfileID, "currency", cfg.QuoteCurrency, "err", err)
		return 0, fmt.Errorf("bank.Holdings: %w", err)
	}

	exchangeBalance, found := 0.0, false
	for _, acc := range accounts {
		if acc.Currency == cfg.QuoteCurrency {
			exchangeBalance, found = acc.AvailableBalance, true
			break
		}
	}
	if !found {
		slog.Warn("no exchange account for quote currency", "profile", cfg.ProfileID, "currency", cfg.QuoteCurrency)
		if balance == 0 {
			return 0, nil
		}
	}

	if exchangeBalance-cfg.Reserve < balance {
		rerr := &domain.ReconciliationError{
			LedgerBalance:   balance,
			ExchangeBalance: exchangeBalance,
			Reserve:         cfg.Reserve,
		}
		slog.Error("reconciliation failed", "profile", cfg.ProfileID, "err", rerr)
		return 0, fmt.Errorf("bank.Holdings: %w", rerr)
	}
	slog.Info("current holdings", "profile", cfg.ProfileID, "currency", cfg.QuoteCurrency, "balance", balance)
	return balance, nil
}

// seed deposits the initial amount into an empty ledger, at most once.
func (b *Bank) seed(ctx context.Context) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.load(ctx); err != nil {
		return 0, err
	}
	if b.balance == 0 && b.entries == 0 && b.cfg.InitialDeposit > 0 {
		if err := b.append(ctx, b.cfg.InitialDeposit, domain.NoSymbol, "Initial deposit"); err != nil {
			return 0, fmt.Errorf("initial deposit: %w", err)
		}
		slog.Info("initial deposit", "profile", b.cfg.ProfileID, "amount", b.cfg.InitialDeposit,
			"currency", b.cfg.QuoteCurrency)
	}
	return b.balance, nil
}

// Record books a host-supplied entry through Deposit or Withdraw so the
// running balance stays consistent. Only Amount, Symbol and Description are used.
func (b *Bank) Record(ctx context.Context, entry domain.LedgerEntry) error {
	switch {
	case entry.Amount > 0:
		return b.Deposit(ctx, entry.Amount, entry.Symbol, entry.Description)
	case entry.Amount < 0:
		return b.Withdraw(ctx, -entry.Amount, entry.Symbol, entry.Description)
	default:
		return fmt.Errorf("bank.Record: %w", domain.ErrInvalidAmount)
	}
}

// Ledger returns the persisted entries in order.
func (b *Bank) Ledger(ctx context.Context) ([]domain.LedgerEntry, error) {
	entries, err := b.store.Ledger(ctx, b.cfg.ProfileID)
	if err != nil {
		return nil, fmt.Errorf("bank.Ledger: %w", err)
	}
	return entries, nil
}
