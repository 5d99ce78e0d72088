package coinbase

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/alejandrodnm/tradeassist/internal/domain"
	"github.com/alejandrodnm/tradeassist/internal/ports"
)

var _ ports.Exchange = (*Client)(nil)

// Accounts devuelve todas las cuentas, paginando con el cursor.
func (c *Client) Accounts(ctx context.Context) ([]domain.Account, error) {
	if !c.Authenticated() {
		return nil, fmt.Errorf("coinbase.Accounts: %w", ErrNoCredentials)
	}

	var all []domain.Account
	cursor := ""
	for {
		q := url.Values{"limit": {strconv.Itoa(accountsPageSize)}}
		if cursor != "" {
			q.Set("cursor", cursor)
		}
		var resp accountsResponse
		if err := c.get(ctx, brokeragePath+"/accounts", q, &resp); err != nil {
			return nil, fmt.Errorf("coinbase.Accounts: %w", err)
		}
		all = append(all, mapAccounts(resp.Accounts)...)
		if !resp.HasNext || resp.Cursor == "" {
			return all, nil
		}
		cursor = resp.Cursor
	}
}

// Products devuelve todos los productos listados.
func (c *Client) Products(ctx context.Context) ([]domain.Product, error) {
	path := brokeragePath + "/market/products"
	if c.Authenticated() {
		path = brokeragePath + "/products"
	}
	var resp productsResponse
	if err := c.get(ctx, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("coinbase.Products: %w", err)
	}
	return mapProducts(resp.Products), nil
}

// SubmitOrder envía una orden market IOC.
func (c *Client) SubmitOrder(ctx context.Context, req domain.OrderRequest) (domain.SubmitResult, error) {
	if !c.Authenticated() {
		return domain.SubmitResult{}, fmt.Errorf("coinbase.SubmitOrder: %w", ErrNoCredentials)
	}

	body := createOrderRequest{
		ClientOrderID: req.ClientOrderID,
		ProductID:     req.ProductID,
		Side:          string(req.Side),
		OrderConfiguration: orderConfiguration{
			MarketMarketIOC: marketIOC{QuoteSize: req.QuoteSize, BaseSize: req.BaseSize},
		},
	}
	var resp createOrderResponse
	if err := c.post(ctx, brokeragePath+"/orders", body, &resp); err != nil {
		return domain.SubmitResult{}, fmt.Errorf("coinbase.SubmitOrder: %w", err)
	}
	if !resp.Success {
		return domain.SubmitResult{}, fmt.Errorf("coinbase.SubmitOrder: %s %s: %s: %w",
			req.Side, req.ProductID, rejectionReason(resp), domain.ErrOrderRejected)
	}
	return domain.SubmitResult{OrderID: resp.SuccessResponse.OrderID}, nil
}

// Order devuelve el estado de una orden enviada.
func (c *Client) Order(ctx context.Context, orderID string) (domain.OrderStatus, error) {
	if !c.Authenticated() {
		return domain.OrderStatus{}, fmt.Errorf("coinbase.Order: %w", ErrNoCredentials)
	}
	var resp orderResponse
	if err := c.get(ctx, brokeragePath+"/orders/historical/"+url.PathEscape(orderID), nil, &resp); err != nil {
		return domain.OrderStatus{}, fmt.Errorf("coinbase.Order: %w", err)
	}
	st := mapOrderStatus(resp.Order)
	if st.OrderID == "" {
		st.OrderID = orderID
	}
	return st, nil
}

// BestBidAsk devuelve el mejor bid/ask. Sin credenciales usa el libro público.
func (c *Client) BestBidAsk(ctx context.Context, productID string) (domain.BidAsk, error) {
	if !c.Authenticated() {
		var resp productBookResponse
		q := url.Values{"product_id": {productID}, "limit": {"1"}}
		if err := c.get(ctx, brokeragePath+"/market/product_book", q, &resp); err != nil {
			return domain.BidAsk{}, fmt.Errorf("coinbase.BestBidAsk: %w", err)
		}
		ba := mapPricebook(resp.Pricebook)
		ba.ProductID = productID
		return ba, nil
	}

	var resp bestBidAskResponse
	q := url.Values{"product_ids": {productID}}
	if err := c.get(ctx, brokeragePath+"/best_bid_ask", q, &resp); err != nil {
		return domain.BidAsk{}, fmt.Errorf("coinbase.BestBidAsk: %w", err)
	}
	for _, pb := range resp.Pricebooks {
		if pb.ProductID == productID {
			return mapPricebook(pb), nil
		}
	}
	return domain.BidAsk{}, fmt.Errorf("coinbase.BestBidAsk: %s: %w", productID, domain.ErrProductNotFound)
}
