package rebalancer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client. Step requests quote on-chain, so keep it generous.
const DefaultHTTPTimeout = 30 * time.Second

// Client wraps the HTTP interactions with the rebalancer REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// Target is one entry of a target allocation.
type Target struct {
	Symbol  string
	Percent decimal.Decimal
}

// Allocation is an ordered target allocation. Its order decides action order.
type Allocation []Target

// MarshalJSON encodes the allocation as an object preserving entry order.
func (a Allocation) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, t := range a {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(t.Symbol)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.WriteString(t.Percent.String())
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Holding is one valued position of a portfolio.
type Holding struct {
	Symbol string          `json:"-"`
	Amount decimal.Decimal `json:"amount"`
	Value  decimal.Decimal `json:"value"`
	Price  decimal.Decimal `json:"price"`
}

// Portfolio is the valuation returned by GET /api/portfolio.
type Portfolio struct {
	Holdings   []Holding
	TotalValue decimal.Decimal
}

// UnmarshalJSON decodes the flat `{SYMBOL: {...}, total_value}` object and
// keeps the server's holding order.
func (p *Portfolio) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.New("rebalancer: portfolio is not a JSON object")
	}
	var out Portfolio
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)
		if key == "total_value" {
			if err := dec.Decode(&out.TotalValue); err != nil {
				return fmt.Errorf("decode total_value: %w", err)
			}
			continue
		}
		h := Holding{Symbol: key}
		if err := dec.Decode(&h); err != nil {
			return fmt.Errorf("decode holding %s: %w", key, err)
		}
		out.Holdings = append(out.Holdings, h)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*p = out
	return nil
}

// Action is one rebalancing instruction.
type Action struct {
	Symbol          string          `json:"symbol"`
	Direction       string          `json:"direction"`
	AmountUSD       decimal.Decimal `json:"amount_usd"`
	CurrentValueUSD decimal.Decimal `json:"current_value_usd"`
	TargetValueUSD  decimal.Decimal `json:"target_value_usd"`
}

// Plan is the response of a plan request.
type Plan struct {
	Status       string          `json:"status"`
	Actions      []Action        `json:"actions"`
	TotalActions int             `json:"total_actions"`
	TotalValue   decimal.Decimal `json:"total_value"`
	PlanToken    string          `json:"plan_token,omitempty"`
}

// Transaction is an unsigned transaction skeleton. Big integers are decimal
// strings.
type Transaction struct {
	From        string          `json:"from"`
	To          string          `json:"to"`
	Value       string          `json:"value"`
	ValueUnits  decimal.Decimal `json:"valueUnits"`
	Gas         uint64          `json:"gas"`
	GasPrice    string          `json:"gasPrice"`
	Nonce       uint64          `json:"nonce"`
	ChainID     string          `json:"chainId"`
	SigningHash string          `json:"signingHash"`
}

// Step is the response of a step request.
type Step struct {
	Status          string      `json:"status"`
	Transaction     Transaction `json:"transaction"`
	Action          Action      `json:"action"`
	ActionIndex     int         `json:"action_index"`
	NextActionIndex int         `json:"next_action_index"`
	TotalActions    int         `json:"total_actions"`
	PlanToken       string      `json:"plan_token,omitempty"`
}

// Done reports whether this was the last action of the plan.
func (s Step) Done() bool { return s.NextActionIndex < 0 }

// WalletInfo is the response of POST /api/connect-wallet.
type WalletInfo struct {
	Status        string                     `json:"status"`
	Address       string                     `json:"address"`
	IsContract    bool                       `json:"is_contract"`
	EthBalance    decimal.Decimal            `json:"eth_balance"`
	TokenBalances map[string]decimal.Decimal `json:"token_balances"`
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("rebalancer api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("rebalancer api error (%d): %s", e.StatusCode, e.Message)
}

type rebalanceRequest struct {
	Address     string     `json:"address"`
	Allocations Allocation `json:"allocations,omitempty"`
	ActionIndex *int       `json:"action_index,omitempty"`
	PlanToken   string     `json:"plan_token,omitempty"`
}

// NewClient instantiates a client for the rebalancer API. When httpClient is
// nil, a default client with a sensible timeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// Health checks the liveness endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.get(ctx, "/healthz", nil, nil)
}

// Portfolio values address.
func (c *Client) Portfolio(ctx context.Context, address string) (Portfolio, error) {
	var out Portfolio
	if err := c.get(ctx, "/api/portfolio", url.Values{"address": {address}}, &out); err != nil {
		return Portfolio{}, err
	}
	return out, nil
}

// Plan requests the full rebalance plan.
func (c *Client) Plan(ctx context.Context, address string, allocation Allocation) (Plan, error) {
	var out Plan
	err := c.post(ctx, "/api/rebalance", rebalanceRequest{Address: address, Allocations: allocation}, &out)
	if err != nil {
		return Plan{}, err
	}
	return out, nil
}

// Step requests the transaction for action index. A non-empty planToken
// pins the step to a previously returned plan; allocation may then be nil.
func (c *Client) Step(ctx context.Context, address string, allocation Allocation, index int, planToken string) (Step, error) {
	var out Step
	req := rebalanceRequest{Address: address, Allocations: allocation, ActionIndex: &index, PlanToken: planToken}
	if err := c.post(ctx, "/api/rebalance", req, &out); err != nil {
		return Step{}, err
	}
	return out, nil
}

// Walk plans and then steps through every action, calling fn with each
// prepared transaction. Steps reuse the plan token when the server issues one.
func (c *Client) Walk(ctx context.Context, address string, allocation Allocation, fn func(Step) error) (Plan, error) {
	plan, err := c.Plan(ctx, address, allocation)
	if err != nil {
		return Plan{}, err
	}
	for next := 0; next >= 0 && next < plan.TotalActions; {
		step, err := c.Step(ctx, address, allocation, next, plan.PlanToken)
		if err != nil {
			return plan, err
		}
		if err := fn(step); err != nil {
			return plan, err
		}
		next = step.NextActionIndex
	}
	return plan, nil
}

// ConnectWallet reads the raw balances of address.
func (c *Client) ConnectWallet(ctx context.Context, address string) (WalletInfo, error) {
	var out WalletInfo
	if err := c.post(ctx, "/api/connect-wallet", map[string]string{"address": address}, &out); err != nil {
		return WalletInfo{}, err
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, nil, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, query url.Values, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, query, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, query url.Values, body io.Reader) (*http.Request, error) {
	rel := &url.URL{Path: path.Join(c.baseURL.Path, endpoint), RawQuery: query.Encode()}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			_ = json.Unmarshal(data, &struct {
				Error *APIError `json:"error"`
			}{Error: &apiErr})
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return &apiErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
