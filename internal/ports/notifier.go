package ports

import (
	"context"

	"github.com/alejandrodnm/tradeassist/internal/domain"
)

// Notifier presenta el resultado de cada ciclo al usuario.
type Notifier interface {
	// Notify muestra los trackers y las métricas del perfil.
	// En la implementación de consola, imprime una tabla formateada.
	Notify(ctx context.Context, profileID string, trackers []domain.TrackerState, metrics domain.PortfolioMetrics) error
}
