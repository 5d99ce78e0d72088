package coinbase

// DTOs raw de la API Advanced Trade de Coinbase. Solo se usan dentro de este paquete.
// La conversión a domain entities se hace en mapping.go.
// Coinbase devuelve los importes como strings decimales.

// accountsResponse es la respuesta paginada de GET /accounts.
type accountsResponse struct {
	Accounts []account `json:"accounts"`
	HasNext  bool      `json:"has_next"`
	Cursor   string    `json:"cursor"`
	Size     int       `json:"size"`
}

type account struct {
	UUID             string `json:"uuid"`
	Currency         string `json:"currency"`
	AvailableBalance amount `json:"available_balance"`
	Active           bool   `json:"active"`
}

type amount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

// productsResponse es la respuesta de GET /products y /market/products.
type productsResponse struct {
	Products    []product `json:"products"`
	NumProducts int       `json:"num_products"`
}

type product struct {
	ProductID                 string `json:"product_id"`
	Price                     string `json:"price"`
	Volume24h                 string `json:"volume_24h"`
	ApproximateQuote24hVolume string `json:"approximate_quote_24h_volume"`
	BaseIncrement             string `json:"base_increment"`
	QuoteIncrement            string `json:"quote_increment"`
	BaseCurrencyID            string `json:"base_currency_id"`
	QuoteCurrencyID           string `json:"quote_currency_id"`
	Status                    string `json:"status"`
	TradingDisabled           bool   `json:"trading_disabled"`
	IsDisabled                bool   `json:"is_disabled"`
	ViewOnly                  bool   `json:"view_only"`
	ProductType               string `json:"product_type"`
	ProductVenue              string `json:"product_venue"`
}

// createOrderRequest es el body de POST /orders.
type createOrderRequest struct {
	ClientOrderID      string             `json:"client_order_id"`
	ProductID          string             `json:"product_id"`
	Side               string             `json:"side"`
	OrderConfiguration orderConfiguration `json:"order_configuration"`
}

type orderConfiguration struct {
	MarketMarketIOC marketIOC `json:"market_market_ioc"`
}

type marketIOC struct {
	QuoteSize string `json:"quote_size,omitempty"`
	BaseSize  string `json:"base_size,omitempty"`
}

// createOrderResponse lleva success=false y error_response cuando el exchange rechaza la orden.
type createOrderResponse struct {
	Success         bool `json:"success"`
	SuccessResponse struct {
		OrderID       string `json:"order_id"`
		ProductID     string `json:"product_id"`
		Side          string `json:"side"`
		ClientOrderID string `json:"client_order_id"`
	} `json:"success_response"`
	ErrorResponse struct {
		Error                string `json:"error"`
		Message              string `json:"message"`
		ErrorDetails         string `json:"error_details"`
		PreviewFailureReason string `json:"preview_failure_reason"`
	} `json:"error_response"`
}

// orderResponse es la respuesta de GET /orders/historical/{order_id}.
type orderResponse struct {
	Order order `json:"order"`
}

type order struct {
	OrderID             string `json:"order_id"`
	ProductID           string `json:"product_id"`
	Side                string `json:"side"`
	Status              string `json:"status"`
	Settled             bool   `json:"settled"`
	FilledSize          string `json:"filled_size"`
	TotalValueAfterFees string `json:"total_value_after_fees"`
	AverageFilledPrice  string `json:"average_filled_price"`
	LastFillTime        string `json:"last_fill_time"`
}

// bestBidAskResponse es la respuesta de GET /best_bid_ask.
type bestBidAskResponse struct {
	Pricebooks []pricebook `json:"pricebooks"`
}

// productBookResponse es la respuesta pública de GET /market/product_book.
type productBookResponse struct {
	Pricebook pricebook `json:"pricebook"`
}

type pricebook struct {
	ProductID string       `json:"product_id"`
	Bids      []priceLevel `json:"bids"`
	Asks      []priceLevel `json:"asks"`
	Time      string       `json:"time"`
}

type priceLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}
