// Package tron reads TRC20 token transfers and balances from the public
// TronGrid and TronScan HTTP APIs.
package tron

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/tronledger/tronledger/internal/domain"
	"github.com/tronledger/tronledger/internal/infra/observability"
)

// USDTContract is the USDT TRC20 token contract on TRON mainnet.
const USDTContract = "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"

// apiKeyHeader authenticates TronGrid requests when a key is configured.
const apiKeyHeader = "TRON-PRO-API-KEY"

// Config controls the client.
type Config struct {
	GridURL           string
	ScanURL           string
	Contract          string
	APIKey            string
	RequestsPerSecond float64
	Timeout           time.Duration
}

// DefaultConfig returns mainnet endpoints for USDT.
func DefaultConfig() Config {
	return Config{
		GridURL:           "https://api.trongrid.io",
		ScanURL:           "https://apilist.tronscanapi.com/api",
		Contract:          USDTContract,
		RequestsPerSecond: 5,
		Timeout:           10 * time.Second,
	}
}

// Client implements domain.TransferSource.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	now     func() time.Time
}

var _ domain.TransferSource = (*Client)(nil)

// NewClient creates a client. Zero-valued fields fall back to DefaultConfig.
func NewClient(cfg Config) *Client {
	def := DefaultConfig()
	if cfg.GridURL == "" {
		cfg.GridURL = def.GridURL
	}
	if cfg.ScanURL == "" {
		cfg.ScanURL = def.ScanURL
	}
	if cfg.Contract == "" {
		cfg.Contract = def.Contract
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = def.RequestsPerSecond
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	cfg.GridURL = strings.TrimRight(cfg.GridURL, "/")
	cfg.ScanURL = strings.TrimRight(cfg.ScanURL, "/")

	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		now:     time.Now,
	}
}

// ─── Wire Types ─────────────────────────────────────────────────────────────

type trc20Response struct {
	Data    []trc20Transfer `json:"data"`
	Success bool            `json:"success"`
	Error   string          `json:"error"`
}

type trc20Transfer struct {
	TransactionID  string `json:"transaction_id"`
	From           string `json:"from"`
	To             string `json:"to"`
	Value          string `json:"value"`
	Type           string `json:"type"`
	BlockTimestamp int64  `json:"block_timestamp"`
	Block          int64  `json:"block"`
	TokenInfo      struct {
		Address  string `json:"address"`
		Decimals int32  `json:"decimals"`
	} `json:"token_info"`
}

type accountResponse struct {
	TRC20Balances []tokenBalance `json:"trc20token_balances"`
}

type tokenBalance struct {
	TokenID      string          `json:"tokenId"`
	Balance      json.RawMessage `json:"balance"`
	TokenDecimal int32           `json:"tokenDecimal"`
}

// ─── TransferSource ─────────────────────────────────────────────────────────

// FetchTransfers returns up to limit recent token transfers touching address.
func (c *Client) FetchTransfers(ctx context.Context, address string, limit int) ([]domain.RawTransfer, error) {
	if !domain.IsValidAddress(address) {
		return nil, fmt.Errorf("fetch transfers %q: %w: %w", address, domain.ErrFetch, domain.ErrInvalidAddress)
	}
	if limit <= 0 {
		limit = 50
	}

	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("contract_address", c.cfg.Contract)
	endpoint := fmt.Sprintf("%s/v1/accounts/%s/transactions/trc20?%s", c.cfg.GridURL, url.PathEscape(address), q.Encode())

	var resp trc20Response
	if err := c.getJSON(ctx, "fetch_transfers", endpoint, true, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("fetch transfers %s: %w: %s", address, domain.ErrFetch, resp.Error)
	}

	out := make([]domain.RawTransfer, 0, len(resp.Data))
	for _, t := range resp.Data {
		if t.Type != "" && t.Type != "Transfer" {
			continue // Approval and similar events move no value
		}
		out = append(out, domain.RawTransfer{
			TransactionID:  t.TransactionID,
			From:           t.From,
			To:             t.To,
			Value:          t.Value,
			Decimals:       t.TokenInfo.Decimals,
			BlockTimestamp: t.BlockTimestamp,
			BlockNumber:    t.Block,
		})
	}
	return out, nil
}

// FetchBalance returns the token balance of address. An account that holds
// none of the token has a zero balance.
func (c *Client) FetchBalance(ctx context.Context, address string) (domain.BalanceSnapshot, error) {
	if !domain.IsValidAddress(address) {
		return domain.BalanceSnapshot{}, fmt.Errorf("fetch balance %q: %w: %w", address, domain.ErrFetch, domain.ErrInvalidAddress)
	}

	endpoint := fmt.Sprintf("%s/account?address=%s", c.cfg.ScanURL, url.QueryEscape(address))
	var resp accountResponse
	if err := c.getJSON(ctx, "fetch_balance", endpoint, false, &resp); err != nil {
		return domain.BalanceSnapshot{}, err
	}

	snap := domain.BalanceSnapshot{Address: address, Balance: decimal.Zero, AsOf: c.now().UTC()}
	for _, tb := range resp.TRC20Balances {
		if tb.TokenID != c.cfg.Contract {
			continue
		}
		raw, err := parseBalance(tb.Balance)
		if err != nil {
			return domain.BalanceSnapshot{}, fmt.Errorf("fetch balance %s: %w: %w", address, domain.ErrFetch, err)
		}
		dec := tb.TokenDecimal
		if dec <= 0 {
			dec = domain.DefaultTokenDecimals
		}
		snap.Balance = raw.Shift(-dec)
		break
	}
	return snap, nil
}

// ─── internal ───────────────────────────────────────────────────────────────

func (c *Client) getJSON(ctx context.Context, op, endpoint string, grid bool, v any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrFetch, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrFetch, err)
	}
	req.Header.Set("Accept", "application/json")
	if grid && c.cfg.APIKey != "" {
		req.Header.Set(apiKeyHeader, c.cfg.APIKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	observability.FetchLatency.WithLabelValues(op).Observe(float64(time.Since(start).Milliseconds()))
	if err != nil {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s: %w: status %d: %s", op, domain.ErrFetch, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("%s: decode: %w: %w", op, domain.ErrFetch, err)
	}
	return nil
}

// parseBalance accepts the balance as a JSON string or number.
func parseBalance(raw json.RawMessage) (decimal.Decimal, error) {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" || s == "null" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("balance %q: %w", s, err)
	}
	return d, nil
}
