package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alejandrodnm/tradeassist/internal/domain"
)

// LoadTrackers devuelve todos los trackers del perfil indexados por símbolo.
func (s *SQLiteStorage) LoadTrackers(ctx context.Context, profileID string) (map[string]domain.TrackerState, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT symbol, state FROM trackers WHERE profile_id = ? ORDER BY symbol`, profileID)
	if err != nil {
		return nil, fmt.Errorf("storage.LoadTrackers: query: %w", err)
	}
	defer rows.Close()

	trackers := make(map[string]domain.TrackerState)
	for rows.Next() {
		var symbol, state string
		if err := rows.Scan(&symbol, &state); err != nil {
			return nil, fmt.Errorf("storage.LoadTrackers: scan row: %w", err)
		}
		var t domain.TrackerState
		if err := json.Unmarshal([]byte(state), &t); err != nil {
			return nil, fmt.Errorf("storage.LoadTrackers: decode %s: %w", symbol, err)
		}
		trackers[symbol] = t
	}
	return trackers, rows.Err()
}

// LoadTracker devuelve un tracker o domain.ErrTrackerNotFound.
func (s *SQLiteStorage) LoadTracker(ctx context.Context, profileID, symbol string) (domain.TrackerState, error) {
	var state string
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM trackers WHERE profile_id = ? AND symbol = ?`, profileID, symbol,
	).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.TrackerState{}, fmt.Errorf("storage.LoadTracker: %s/%s: %w", profileID, symbol, domain.ErrTrackerNotFound)
	}
	if err != nil {
		return domain.TrackerState{}, fmt.Errorf("storage.LoadTracker: %w", err)
	}

	var t domain.TrackerState
	if err := json.Unmarshal([]byte(state), &t); err != nil {
		return domain.TrackerState{}, fmt.Errorf("storage.LoadTracker: decode %s: %w", symbol, err)
	}
	return t, nil
}

// SaveTrackers hace upsert de los trackers dados en una sola transacción.
func (s *SQLiteStorage) SaveTrackers(ctx context.Context, profileID string, trackers []domain.TrackerState) error {
	if len(trackers) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SaveTrackers: begin tx: %w", err)
	}
	defer tx.Rollback()

	now := formatTime(time.Now())
	for _, t := range trackers {
		state, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("storage.SaveTrackers: encode %s: %w", t.Symbol, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO trackers (profile_id, symbol, state, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(profile_id, symbol) DO UPDATE SET
				state      = excluded.state,
				updated_at = excluded.updated_at
		`, profileID, t.Symbol, string(state), now); err != nil {
			return fmt.Errorf("storage.SaveTrackers: upsert %s: %w", t.Symbol, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SaveTrackers: commit: %w", err)
	}
	return nil
}

// DeleteTracker elimina el tracker del perfil. No falla si no existe.
func (s *SQLiteStorage) DeleteTracker(ctx context.Context, profileID, symbol string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM trackers WHERE profile_id = ? AND symbol = ?`, profileID, symbol,
	); err != nil {
		return fmt.Errorf("storage.DeleteTracker: %w", err)
	}
	return nil
}
