package ports

import (
	"context"

	"github.com/alejandrodnm/tradeassist/internal/domain"
)

// Exchange es la API de trading del exchange que consume el motor.
// Las implementaciones no reintentan: los reintentos son responsabilidad
// de la política de ejecución.
type Exchange interface {
	// Accounts devuelve los saldos disponibles por moneda.
	Accounts(ctx context.Context) ([]domain.Account, error)

	// Products devuelve el universo completo de pares, sin filtrar.
	Products(ctx context.Context) ([]domain.Product, error)

	// SubmitOrder envía una orden de mercado. Un rechazo del exchange se
	// devuelve como error envolviendo domain.ErrOrderRejected.
	SubmitOrder(ctx context.Context, req domain.OrderRequest) (domain.SubmitResult, error)

	// Order devuelve el estado actual de una orden enviada.
	Order(ctx context.Context, orderID string) (domain.OrderStatus, error)

	// BestBidAsk devuelve el mejor bid/ask para un producto.
	BestBidAsk(ctx context.Context, productID string) (domain.BidAsk, error)
}
