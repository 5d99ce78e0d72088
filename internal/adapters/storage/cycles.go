package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/alejandrodnm/tradeassist/internal/domain"
)

// SaveCycle persiste el resumen de un ciclo (~60 bytes por fila).
func (s *SQLiteStorage) SaveCycle(ctx context.Context, c domain.CycleSummary) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO cycles (profile_id, ran_at, duration_ms, trackers, trades, failures, balance, total_pl)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ProfileID, formatTime(c.RanAt), c.Duration.Milliseconds(), c.Trackers, c.Trades, c.Failures,
		c.Balance, c.TotalPL); err != nil {
		return fmt.Errorf("storage.SaveCycle: insert: %w", err)
	}
	return nil
}

// RecentCycles devuelve los últimos ciclos del perfil, el más reciente primero.
func (s *SQLiteStorage) RecentCycles(ctx context.Context, profileID string, limit int) ([]domain.CycleSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT ran_at, duration_ms, trackers, trades, failures, balance, total_pl
		FROM cycles WHERE profile_id = ?
		ORDER BY ran_at DESC, id DESC LIMIT ?
	`, profileID, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.RecentCycles: query: %w", err)
	}
	defer rows.Close()

	var out []domain.CycleSummary
	for rows.Next() {
		c := domain.CycleSummary{ProfileID: profileID}
		var ranAt string
		var ms int64
		if err := rows.Scan(&ranAt, &ms, &c.Trackers, &c.Trades, &c.Failures, &c.Balance, &c.TotalPL); err != nil {
			return nil, fmt.Errorf("storage.RecentCycles: scan row: %w", err)
		}
		c.RanAt = parseTime(ranAt)
		c.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, c)
	}
	return out, rows.Err()
}
