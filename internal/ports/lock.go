package ports

import "context"

// RunLock guarantees a single writer per profile, including across processes
// sharing the same store.
type RunLock interface {
	// Acquire toma el lock del perfil. Devuelve domain.ErrLockHeld si otro
	// ciclo lo tiene; la función devuelta lo libera.
	Acquire(ctx context.Context, profileID string) (func(context.Context) error, error)
}
