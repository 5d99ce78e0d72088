package ports

import (
	"context"

	"github.com/alejandrodnm/tradeassist/internal/domain"
)

// TrackerStorage persiste el estado de cada tracker por (perfil, símbolo).
// Every write replaces the stored state atomically.
type TrackerStorage interface {
	LoadTrackers(ctx context.Context, profileID string) (map[string]domain.TrackerState, error)
	LoadTracker(ctx context.Context, profileID, symbol string) (domain.TrackerState, error)
	SaveTrackers(ctx context.Context, profileID string, trackers []domain.TrackerState) error
	DeleteTracker(ctx context.Context, profileID, symbol string) error
}

// LedgerStorage persiste el ledger append-only de cada perfil.
type LedgerStorage interface {
	// AppendLedger añade una entrada. Falla si el balance no encadena
	// con la última entrada persistida.
	AppendLedger(ctx context.Context, profileID string, entry domain.LedgerEntry) error

	// Ledger devuelve las entradas en orden de inserción.
	Ledger(ctx context.Context, profileID string) ([]domain.LedgerEntry, error)
}

// CycleStorage guarda el resumen de cada ciclo para el histórico.
type CycleStorage interface {
	SaveCycle(ctx context.Context, summary domain.CycleSummary) error
	RecentCycles(ctx context.Context, profileID string, limit int) ([]domain.CycleSummary, error)
}

// Storage agrupa los almacenes y el cierre de la conexión.
type Storage interface {
	TrackerStorage
	LedgerStorage
	CycleStorage

	// Close cierra la conexión a la base de datos limpiamente.
	Close() error
}
