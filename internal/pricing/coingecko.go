package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"OpenRebalancer/internal/config"
)

const demoAPIKeyHeader = "x-cg-demo-api-key"

// CoinGecko queries the /simple/price endpoint of a CoinGecko compatible API.
type CoinGecko struct {
	baseURL    string
	currency   string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// Option customises a CoinGecko client.
type Option func(*CoinGecko)

// WithHTTPClient overrides the HTTP client used for requests.
func WithHTTPClient(client *http.Client) Option {
	return func(c *CoinGecko) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithLogger sets the logger used for upstream diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(c *CoinGecko) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCoinGecko builds a price feed from configuration.
func NewCoinGecko(cfg config.PricingConfig, opts ...Option) (*CoinGecko, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("price feed base url is not configured")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("parse price feed base url: %w", err)
	}
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	currency := strings.ToLower(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = "usd"
	}

	c := &CoinGecko{
		baseURL:    base,
		currency:   currency,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		httpClient: &http.Client{Timeout: timeout},
		logger:     zap.NewNop(),
	}
	if cfg.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SpotPrices fetches all ids in a single request.
func (c *CoinGecko) SpotPrices(ctx context.Context, ids []string) (map[string]decimal.Decimal, error) {
	if len(ids) == 0 {
		return map[string]decimal.Decimal{}, nil
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("price feed rate limit: %w", err)
		}
	}

	query := url.Values{}
	query.Set("ids", strings.Join(ids, ","))
	query.Set("vs_currencies", c.currency)
	endpoint := c.baseURL + "/simple/price?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build price request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set(demoAPIKeyHeader, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request spot prices: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("price feed returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload map[string]map[string]decimal.Decimal
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode spot prices: %w", err)
	}

	prices := make(map[string]decimal.Decimal, len(ids))
	for _, id := range ids {
		quotes, ok := payload[id]
		if !ok {
			c.logger.Debug("price id missing from feed response", zap.String("id", id))
			continue
		}
		price, ok := quotes[c.currency]
		if !ok {
			continue
		}
		prices[id] = price
	}
	return prices, nil
}

var _ Feed = (*CoinGecko)(nil)
