package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"github.com/alejandrodnm/tradeassist/internal/domain"
)

// AppendLedger inserta una entrada al final del ledger del perfil.
// Rechaza la entrada si su balance no encadena con la última persistida.
func (s *SQLiteStorage) AppendLedger(ctx context.Context, profileID string, e domain.LedgerEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.AppendLedger: begin tx: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	var prev float64
	err = tx.QueryRowContext(ctx,
		`SELECT seq, balance FROM ledger WHERE profile_id = ? ORDER BY seq DESC LIMIT 1`, profileID,
	).Scan(&seq, &prev)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("storage.AppendLedger: last entry: %w", err)
	}

	if math.Abs(prev+e.Amount-e.Balance) > balanceEpsilon {
		return fmt.Errorf("storage.AppendLedger: %.8f + %.8f != %.8f: %w",
			prev, e.Amount, e.Balance, domain.ErrLedgerInconsistent)
	}

	symbol := e.Symbol
	if symbol == "" {
		symbol = domain.NoSymbol
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO ledger (profile_id, seq, timestamp, amount, balance, symbol, description)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, profileID, seq+1, formatTime(e.Timestamp), e.Amount, e.Balance, symbol, e.Description); err != nil {
		return fmt.Errorf("storage.AppendLedger: insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.AppendLedger: commit: %w", err)
	}
	return nil
}

// Ledger devuelve las entradas del perfil en orden de inserción.
func (s *SQLiteStorage) Ledger(ctx context.Context, profileID string) ([]domain.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, amount, balance, symbol, description
		FROM ledger WHERE profile_id = ? ORDER BY seq ASC
	`, profileID)
	if err != nil {
		return nil, fmt.Errorf("storage.Ledger: query: %w", err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		var ts string
		if err := rows.Scan(&ts, &e.Amount, &e.Balance, &e.Symbol, &e.Description); err != nil {
			return nil, fmt.Errorf("storage.Ledger: scan row: %w", err)
		}
		e.Timestamp = parseTime(ts)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
