package bank

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/tradeassist/internal/application/execution"
	"github.com/alejandrodnm/tradeassist/internal/domain"
	"github.com/alejandrodnm/tradeassist/internal/ports/portstest"
)

func noSleep(context.Context, time.Duration) error { return nil }

func testRetry() execution.RetryPolicy {
	return execution.RetryPolicy{MaxAttempts: 3, Backoff: execution.Linear(time.Second), Sleep: noSleep}
}

func newTestBank(t *testing.T, cfg Config) (*Bank, *portstest.Store, *portstest.Exchange) {
	t.Helper()
	if cfg.ProfileID == "" {
		cfg.ProfileID = "p1"
	}
	if cfg.QuoteCurrency == "" {
		cfg.QuoteCurrency = "USD"
	}
	store := portstest.NewStore()
	ex := portstest.NewExchange()
	return New(cfg, store, ex, testRetry()), store, ex
}

func TestBank_WithdrawAboveBalanceIsNoop(t *testing.T) {
	ctx := context.Background()
	b, store, _ := newTestBank(t, Config{})
	require.NoError(t, b.Deposit(ctx, 500, "", "Initial deposit"))

	err := b.Withdraw(ctx, 600, "ABC-USD", "")
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	bal, err := b.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, 500.0, bal)
	entries, _ := store.Ledger(ctx, "p1")
	assert.Len(t, entries, 1)
}

func TestBank_RejectsNonPositiveAmounts(t *testing.T) {
	ctx := context.Background()
	b, store, _ := newTestBank(t, Config{})

	assert.ErrorIs(t, b.Deposit(ctx, 0, "", ""), domain.ErrInvalidAmount)
	assert.ErrorIs(t, b.Deposit(ctx, -5, "", ""), domain.ErrInvalidAmount)
	assert.ErrorIs(t, b.Withdraw(ctx, 0, "", ""), domain.ErrInvalidAmount)

	entries, _ := store.Ledger(ctx, "p1")
	assert.Empty(t, entries)
}

func TestBank_HoldingsFailsReconciliation(t *testing.T) {
	ctx := context.Background()
	b, _, ex := newTestBank(t, Config{Reserve: 50})
	ex.SetBalance("USD", 400)
	require.NoError(t, b.Deposit(ctx, 360, "", ""))

	_, err := b.Holdings(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInsufficientExchangeBalance)

	var rerr *domain.ReconciliationError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, 360.0, rerr.LedgerBalance)
	assert.Equal(t, 400.0, rerr.ExchangeBalance)

	// la conciliación nunca corrige el ledger
	bal, _ := b.Balance(ctx)
	assert.Equal(t, 360.0, bal)
}

func TestBank_HoldingsSeedsInitialDepositOnce(t *testing.T) {
	ctx := context.Background()
	b, store, ex := newTestBank(t, Config{InitialDeposit: 500, Reserve: 50})
	ex.SetBalance("USD", 1000)

	first, err := b.Holdings(ctx)
	require.NoError(t, err)
	second, err := b.Holdings(ctx)
	require.NoError(t, err)

	assert.Equal(t, 500.0, first)
	assert.Equal(t, first, second)
	entries, _ := store.Ledger(ctx, "p1")
	require.Len(t, entries, 1)
	assert.Equal(t, 500.0, entries[0].Balance)
	assert.Equal(t, domain.NoSymbol, entries[0].Symbol)
}

func TestBank_HoldingsDoesNotReseedAfterReload(t *testing.T) {
	ctx := context.Background()
	b, store, ex := newTestBank(t, Config{InitialDeposit: 500})
	ex.SetBalance("USD", 1000)
	_, err := b.Holdings(ctx)
	require.NoError(t, err)
	require.NoError(t, b.Withdraw(ctx, 500, "ABC-USD", ""))

	reloaded := New(Config{ProfileID: "p1", QuoteCurrency: "USD", InitialDeposit: 500}, store, ex, testRetry())
	bal, err := reloaded.Holdings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.0, bal)
	entries, _ := store.Ledger(ctx, "p1")
	assert.Len(t, entries, 2)
}

func TestBank_HoldingsRetriesAccounts(t *testing.T) {
	ctx := context.Background()
	b, _, ex := newTestBank(t, Config{InitialDeposit: 100})
	ex.SetBalance("USD", 1000)
	ex.AccountErrs = []error{errors.New("timeout"), errors.New("timeout")}

	bal, err := b.Holdings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 100.0, bal)
}

func TestBank_HoldingsMissingQuoteAccount(t *testing.T) {
	ctx := context.Background()
	b, _, ex := newTestBank(t, Config{InitialDeposit: 100})
	ex.SetBalance("EUR", 1000)

	_, err := b.Holdings(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInsufficientExchangeBalance)

	var rerr *domain.ReconciliationError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, 100.0, rerr.LedgerBalance)
	assert.Equal(t, 0.0, rerr.ExchangeBalance)
}

func TestBank_HoldingsMissingQuoteAccountEmptyLedger(t *testing.T) {
	ctx := context.Background()
	b, _, ex := newTestBank(t, Config{Reserve: 50})
	ex.SetBalance("EUR", 1000)

	bal, err := b.Holdings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.0, bal)
}

func TestBank_HoldingsSkipReconcile(t *testing.T) {
	ctx := context.Background()
	b, _, _ := newTestBank(t, Config{InitialDeposit: 250, SkipReconcile: true})

	bal, err := b.Holdings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 250.0, bal)
}

func TestBank_LedgerStaysConsistent(t *testing.T) {
	ctx := context.Background()
	b, store, _ := newTestBank(t, Config{})

	require.NoError(t, b.Deposit(ctx, 500, "", ""))
	require.NoError(t, b.Withdraw(ctx, 100, "ABC-USD", "Purchase"))
	require.NoError(t, b.Withdraw(ctx, 33.33, "XYZ-USD", "Purchase"))
	require.NoError(t, b.Deposit(ctx, 104.5, "ABC-USD", "Sell"))
	assert.Error(t, b.Withdraw(ctx, 10_000, "ABC-USD", ""))
	require.NoError(t, b.Record(ctx, domain.LedgerEntry{Amount: -20, Description: "manual"}))

	entries, err := store.Ledger(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, entries, 5)
	assert.True(t, domain.LedgerConsistent(entries, 1e-9))
	assert.Equal(t, 500.0, entries[0].Balance)
	assert.InDelta(t, 451.17, entries[4].Balance, 1e-9)
}

func TestBank_PersistFailureLeavesBalance(t *testing.T) {
	ctx := context.Background()
	b, store, _ := newTestBank(t, Config{})
	require.NoError(t, b.Deposit(ctx, 100, "", ""))

	store.AppendErr = errors.New("disk full")
	assert.Error(t, b.Deposit(ctx, 50, "", ""))

	bal, _ := b.Balance(ctx)
	assert.Equal(t, 100.0, bal)
}

func TestBank_LoadRestoresBalance(t *testing.T) {
	ctx := context.Background()
	store := portstest.NewStore()
	require.NoError(t, store.AppendLedger(ctx, "p1", domain.LedgerEntry{Amount: 300, Balance: 300}))
	require.NoError(t, store.AppendLedger(ctx, "p1", domain.LedgerEntry{Amount: -120, Balance: 180}))

	b := New(Config{ProfileID: "p1", QuoteCurrency: "USD"}, store, portstest.NewExchange(), testRetry())
	bal, err := b.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, 180.0, bal)
}

func TestBank_RecordRejectsZero(t *testing.T) {
	b, _, _ := newTestBank(t, Config{})
	assert.ErrorIs(t, b.Record(context.Background(), domain.LedgerEntry{}), domain.ErrInvalidAmount)
}
