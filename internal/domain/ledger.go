package domain

import "time"

// NoSymbol is recorded on ledger entries not tied to a trade.
const NoSymbol = "N/A"

// LedgerEntry is one append-only transaction of a profile's virtual bank.
// Balance is the running total after the entry.
type LedgerEntry struct {
	Timestamp   time.Time `json:"timestamp"`
	Amount      float64   `json:"amount"`
	Balance     float64   `json:"balance"`
	Symbol      string    `json:"symbol"`
	Description string    `json:"description"`
}

// LedgerConsistent reports whether every entry's balance equals the previous
// balance plus its amount, and the first entry's balance equals its amount.
func LedgerConsistent(entries []LedgerEntry, tolerance float64) bool {
	prev := 0.0
	for _, e := range entries {
		if diff := e.Balance - (prev + e.Amount); diff > tolerance || diff < -tolerance {
			return false
		}
		prev = e.Balance
	}
	return true
}
