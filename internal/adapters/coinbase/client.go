// Package coinbase implementa ports.Exchange sobre la API REST Advanced Trade.
package coinbase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/alejandrodnm/tradeassist/internal/domain"
)

const (
	defaultBaseURL = "https://api.coinbase.com"
	brokeragePath  = "/api/v3/brokerage"

	// Rate limits al 60% de los límites documentados.
	// Privados: 30/s → 18/s. Públicos: 10/s → 6/s.
	privateRatePerSec = 18
	publicRatePerSec  = 6

	accountsPageSize = 250
)

// ErrNoCredentials is returned by private endpoints on a public client.
var ErrNoCredentials = errors.New("coinbase: endpoint requires API credentials")

// Client es el HTTP client de Coinbase con rate limiting.
// No reintenta: los reintentos los decide la política de ejecución.
type Client struct {
	http    *http.Client
	baseURL string
	host    string
	limiter *rate.Limiter
	signer  *signer
}

// NewClient crea un Client. Si baseURL está vacío usa producción; sin
// credenciales solo quedan disponibles los endpoints públicos de mercado.
func NewClient(baseURL string, creds Credentials) (*Client, error) {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("coinbase.NewClient: base url %q: %w", baseURL, err)
	}

	c := &Client{
		http:    &http.Client{Timeout: 10 * time.Second},
		baseURL: baseURL,
		host:    u.Host,
		limiter: rate.NewLimiter(publicRatePerSec, 3),
	}
	if !creds.Empty() {
		s, err := newSigner(creds)
		if err != nil {
			return nil, fmt.Errorf("coinbase.NewClient: %w", err)
		}
		c.signer = s
		c.limiter = rate.NewLimiter(privateRatePerSec, 10)
	}
	return c, nil
}

// Authenticated reports whether private endpoints are available.
func (c *Client) Authenticated() bool {
	return c.signer != nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, query, nil, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, nil, b, out)
}

// do ejecuta un único request firmado (si hay credenciales) y decodifica la respuesta.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	full := c.baseURL + path
	if len(query) > 0 {
		full += "?" + query.Encode()
	}
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, full, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.signer != nil {
		tok, err := c.signer.token(method, c.host, path)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		slog.Warn("rate limited by API", "path", path)
		return fmt.Errorf("%s %s: %w", method, path, domain.ErrRateLimited)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%s %s: server error %d", method, path, resp.StatusCode)
	case resp.StatusCode >= 400:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s: client error %d: %s", method, path, resp.StatusCode, string(msg))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}
