package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAmount               = errors.New("invalid amount")
	ErrInsufficientFunds           = errors.New("insufficient funds")
	ErrInsufficientExchangeBalance = errors.New("insufficient exchange balance")
	ErrOrderNotSettled             = errors.New("order not settled")
	ErrOrderRejected               = errors.New("order rejected")
	ErrProductNotFound             = errors.New("product not found")
	ErrTrackerNotFound             = errors.New("tracker not found")
	ErrTrackerExists               = errors.New("tracker already exists")
	ErrProfileNotFound             = errors.New("profile not found")
	ErrLockHeld                    = errors.New("lock already held")
	ErrRateLimited                 = errors.New("rate limited")
	ErrLedgerInconsistent          = errors.New("ledger balance does not chain")
	ErrUnbookedFill                = errors.New("fill not booked in ledger")
)

// ReconciliationError reports a ledger claiming more funds than the exchange
// holds net of the bank reserve.
type ReconciliationError struct {
	LedgerBalance   float64
	ExchangeBalance float64
	Reserve         float64
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("insufficient exchange balance: ledger %.2f, exchange %.2f, reserve %.2f",
		e.LedgerBalance, e.ExchangeBalance, e.Reserve)
}

// Is makes errors.Is(err, ErrInsufficientExchangeBalance) match.
func (e *ReconciliationError) Is(target error) bool {
	return target == ErrInsufficientExchangeBalance
}
