package storage

// sqlite.go — persistencia del motor en un único fichero SQLite.
//
// Estrategia:
//   - `trackers`: UNA fila por (perfil, símbolo) con el estado completo en JSON.
//     Se reescribe entera en cada ciclo dentro de una transacción: quien lee
//     nunca ve un estado a medias.
//   - `ledger`: append-only por perfil. Cada inserción comprueba en la misma
//     transacción que el balance encadena con la entrada anterior.
//   - `cycles`: resumen ligero por ciclo para el histórico.
//   - Prune automático al arrancar: cycles > 30d. El ledger nunca se poda.

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/alejandrodnm/tradeassist/internal/ports"
)

const schema = `
CREATE TABLE IF NOT EXISTS trackers (
    profile_id TEXT NOT NULL,
    symbol     TEXT NOT NULL,
    state      TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    PRIMARY KEY (profile_id, symbol)
);

CREATE TABLE IF NOT EXISTS ledger (
    profile_id  TEXT    NOT NULL,
    seq         INTEGER NOT NULL,
    timestamp   TEXT    NOT NULL,
    amount      REAL    NOT NULL,
    balance     REAL    NOT NULL,
    symbol      TEXT    NOT NULL DEFAULT 'N/A',
    description TEXT    NOT NULL DEFAULT '',
    PRIMARY KEY (profile_id, seq)
);

-- Resumen ligero por ciclo
CREATE TABLE IF NOT EXISTS cycles (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    profile_id  TEXT    NOT NULL,
    ran_at      TEXT    NOT NULL,
    duration_ms INTEGER NOT NULL DEFAULT 0,
    trackers    INTEGER NOT NULL DEFAULT 0,
    trades      INTEGER NOT NULL DEFAULT 0,
    failures    INTEGER NOT NULL DEFAULT 0,
    balance     REAL    NOT NULL DEFAULT 0,
    total_pl    REAL    NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_cycles_profile ON cycles(profile_id, ran_at DESC);
`

const (
	retentionCycles = 30 * 24 * time.Hour // ciclos: 30 días
	balanceEpsilon  = 1e-6
	timeLayout      = time.RFC3339Nano
)

// SQLiteStorage implementa ports.Storage usando SQLite (pure Go, sin CGo).
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada.
// Aplica el schema y limpia ciclos antiguos.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	s := &SQLiteStorage{db: db}
	s.pruneOld(context.Background())
	return s, nil
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// pruneOld elimina ciclos antiguos para mantener la DB ligera.
func (s *SQLiteStorage) pruneOld(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-retentionCycles).Format(timeLayout)
	s.db.ExecContext(ctx, `DELETE FROM cycles WHERE ran_at < ?`, cutoff)
}

var _ ports.Storage = (*SQLiteStorage)(nil)

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}
