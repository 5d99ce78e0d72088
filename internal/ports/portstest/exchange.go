// Package portstest provides in-memory fakes of the ports for tests.
package portstest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/alejandrodnm/tradeassist/internal/domain"
)

// Exchange is a scriptable in-memory exchange.
//
// Errors queued in SubmitErrs, OrderErrs and AccountErrs are returned one per
// call before the call succeeds. Statuses queued per order id are returned one
// per poll; the last one repeats.
type Exchange struct {
	mu sync.Mutex

	AccountList []domain.Account
	ProductList []domain.Product
	Quotes      map[string]domain.BidAsk
	Statuses    map[string][]domain.OrderStatus

	SubmitErrs  []error
	OrderErrs   []error
	AccountErrs []error
	ProductErrs []error

	NextOrderID string

	Submitted   []domain.OrderRequest
	OrderCalls  int
	SubmitCalls int
}

// NewExchange returns an empty fake exchange.
func NewExchange() *Exchange {
	return &Exchange{
		Quotes:   make(map[string]domain.BidAsk),
		Statuses: make(map[string][]domain.OrderStatus),
	}
}

// SetPrice sets a zero-spread quote for productID.
func (e *Exchange) SetPrice(productID string, price float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Quotes[productID] = domain.BidAsk{ProductID: productID, Bid: price, Ask: price}
	for i := range e.ProductList {
		if e.ProductList[i].ProductID == productID {
			e.ProductList[i].Price = price
		}
	}
}

// SetBalance replaces the available balance of currency.
func (e *Exchange) SetBalance(currency string, amount float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.AccountList {
		if e.AccountList[i].Currency == currency {
			e.AccountList[i].AvailableBalance = amount
			return
		}
	}
	e.AccountList = append(e.AccountList, domain.Account{Currency: currency, AvailableBalance: amount})
}

// AddProduct lists an online spot product with enough volume to be tradable.
func (e *Exchange) AddProduct(productID string, price float64) {
	base, quote, _ := strings.Cut(productID, "-")
	e.mu.Lock()
	e.ProductList = append(e.ProductList, domain.Product{
		ProductID:      productID,
		BaseCurrency:   base,
		QuoteCurrency:  quote,
		Price:          price,
		Status:         "online",
		ProductType:    "SPOT",
		Volume24h:      1_000_000,
		BaseIncrement:  "0.00000001",
		QuoteIncrement: "0.01",
	})
	e.mu.Unlock()
	e.SetPrice(productID, price)
}

func (e *Exchange) Accounts(ctx context.Context) ([]domain.Account, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := pop(&e.AccountErrs); err != nil {
		return nil, err
	}
	return append([]domain.Account(nil), e.AccountList...), nil
}

func (e *Exchange) Products(ctx context.Context) ([]domain.Product, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := pop(&e.ProductErrs); err != nil {
		return nil, err
	}
	return append([]domain.Product(nil), e.ProductList...), nil
}

func (e *Exchange) SubmitOrder(ctx context.Context, req domain.OrderRequest) (domain.SubmitResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.SubmitCalls++
	if err := pop(&e.SubmitErrs); err != nil {
		return domain.SubmitResult{}, err
	}
	e.Submitted = append(e.Submitted, req)
	id := e.NextOrderID
	if id == "" {
		id = fmt.Sprintf("order-%d", len(e.Submitted))
	}
	return domain.SubmitResult{OrderID: id}, nil
}

func (e *Exchange) Order(ctx context.Context, orderID string) (domain.OrderStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.OrderCalls++
	if err := pop(&e.OrderErrs); err != nil {
		return domain.OrderStatus{}, err
	}
	seq := e.Statuses[orderID]
	if len(seq) == 0 {
		return domain.OrderStatus{OrderID: orderID, Status: "PENDING"}, nil
	}
	st := seq[0]
	if len(seq) > 1 {
		e.Statuses[orderID] = seq[1:]
	}
	st.OrderID = orderID
	return st, nil
}

func (e *Exchange) BestBidAsk(ctx context.Context, productID string) (domain.BidAsk, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ba, ok := e.Quotes[productID]
	if !ok {
		return domain.BidAsk{}, fmt.Errorf("best bid/ask %s: %w", productID, domain.ErrProductNotFound)
	}
	return ba, nil
}

func pop(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}
