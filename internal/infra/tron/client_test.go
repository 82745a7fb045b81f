package tron

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tronledger/tronledger/internal/domain"
)

const owner = "THPyFKcHb7NcHdYjbA8PWwrSd1U4w6fEN9"

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := NewClient(Config{
		GridURL:           srv.URL,
		ScanURL:           srv.URL + "/api",
		APIKey:            "secret",
		RequestsPerSecond: 1000,
		Timeout:           2 * time.Second,
	})
	return c, srv
}

// ─── FetchTransfers ─────────────────────────────────────────────────────────

func TestFetchTransfers(t *testing.T) {
	var gotPath, gotKey, gotLimit, gotContract string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("TRON-PRO-API-KEY")
		gotLimit = r.URL.Query().Get("limit")
		gotContract = r.URL.Query().Get("contract_address")
		w.Write([]byte(`{"success":true,"data":[
			{"transaction_id":"h1","from":"TBqAP9nzYBs4VqTnJFQ5WWZtYq2Qb1SSRa","to":"THPyFKcHb7NcHdYjbA8PWwrSd1U4w6fEN9",
			 "value":"2347340000","type":"Transfer","block_timestamp":1754070288000,"block":74210001,
			 "token_info":{"address":"TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t","decimals":6}},
			{"transaction_id":"h2","from":"THPyFKcHb7NcHdYjbA8PWwrSd1U4w6fEN9","to":"TBqAP9nzYBs4VqTnJFQ5WWZtYq2Qb1SSRa",
			 "value":"0","type":"Approval","block_timestamp":1754070000000}
		]}`))
	})

	got, err := c.FetchTransfers(context.Background(), owner, 20)
	if err != nil {
		t.Fatalf("FetchTransfers() error: %v", err)
	}
	if gotPath != "/v1/accounts/"+owner+"/transactions/trc20" {
		t.Errorf("path = %q", gotPath)
	}
	if gotKey != "secret" {
		t.Errorf("api key header = %q, want secret", gotKey)
	}
	if gotLimit != "20" {
		t.Errorf("limit = %q, want 20", gotLimit)
	}
	if gotContract != USDTContract {
		t.Errorf("contract_address = %q, want %q", gotContract, USDTContract)
	}
	if len(got) != 1 {
		t.Fatalf("FetchTransfers() returned %d, want 1 (approval skipped)", len(got))
	}
	want := domain.RawTransfer{
		TransactionID:  "h1",
		From:           "TBqAP9nzYBs4VqTnJFQ5WWZtYq2Qb1SSRa",
		To:             owner,
		Value:          "2347340000",
		Decimals:       6,
		BlockTimestamp: 1754070288000,
		BlockNumber:    74210001,
	}
	if got[0] != want {
		t.Errorf("FetchTransfers()[0] = %+v, want %+v", got[0], want)
	}
}

func TestFetchTransfers_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}},
		{"rate limited", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}},
		{"bad json", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"data": [`))
		}},
		{"api error", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"success":false,"error":"account not found"}`))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, tt.handler)
			_, err := c.FetchTransfers(context.Background(), owner, 10)
			if !errors.Is(err, domain.ErrFetch) {
				t.Errorf("FetchTransfers() error = %v, want ErrFetch", err)
			}
		})
	}
}

func TestFetchTransfers_InvalidAddress(t *testing.T) {
	called := false
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { called = true })

	_, err := c.FetchTransfers(context.Background(), "not-an-address", 10)
	if !errors.Is(err, domain.ErrFetch) || !errors.Is(err, domain.ErrInvalidAddress) {
		t.Errorf("error = %v, want ErrFetch and ErrInvalidAddress", err)
	}
	if called {
		t.Error("no request should be sent for an invalid address")
	}
}

func TestFetchTransfers_EmptyData(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true}`))
	})
	got, err := c.FetchTransfers(context.Background(), owner, 10)
	if err != nil {
		t.Fatalf("FetchTransfers() error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("FetchTransfers() returned %d, want 0", len(got))
	}
}

// ─── FetchBalance ───────────────────────────────────────────────────────────

func TestFetchBalance(t *testing.T) {
	asOf := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	var gotPath, gotAddr, gotKey string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAddr = r.URL.Query().Get("address")
		gotKey = r.Header.Get("TRON-PRO-API-KEY")
		w.Write([]byte(`{"trc20token_balances":[
			{"tokenId":"TXLAQ63Xg1NAzckPwKHvzw7CSEmLMEqcdj","balance":"999","tokenDecimal":6},
			{"tokenId":"TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t","balance":"1234567890","tokenDecimal":6}
		]}`))
	})
	c.now = func() time.Time { return asOf }

	snap, err := c.FetchBalance(context.Background(), owner)
	if err != nil {
		t.Fatalf("FetchBalance() error: %v", err)
	}
	if gotPath != "/api/account" || gotAddr != owner {
		t.Errorf("request = %s?address=%s", gotPath, gotAddr)
	}
	if gotKey != "" {
		t.Errorf("TronScan request should not carry the TronGrid key, got %q", gotKey)
	}
	if !snap.Balance.Equal(decimal.RequireFromString("1234.56789")) {
		t.Errorf("Balance = %s, want 1234.56789", snap.Balance)
	}
	if !snap.AsOf.Equal(asOf) || snap.Address != owner {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestFetchBalance_NumericAndMissing(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"numeric balance default decimals", `{"trc20token_balances":[{"tokenId":"TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t","balance":5000000}]}`, "5"},
		{"token absent", `{"trc20token_balances":[]}`, "0"},
		{"no token list", `{}`, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			})
			snap, err := c.FetchBalance(context.Background(), owner)
			if err != nil {
				t.Fatalf("FetchBalance() error: %v", err)
			}
			if !snap.Balance.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("Balance = %s, want %s", snap.Balance, tt.want)
			}
		})
	}
}

func TestFetchBalance_Errors(t *testing.T) {
	tests := []struct {
		name string
		h    http.HandlerFunc
	}{
		{"unavailable", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadGateway) }},
		{"garbage balance", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"trc20token_balances":[{"tokenId":"TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t","balance":"lots"}]}`))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, tt.h)
			_, err := c.FetchBalance(context.Background(), owner)
			if !errors.Is(err, domain.ErrFetch) {
				t.Errorf("FetchBalance() error = %v, want ErrFetch", err)
			}
		})
	}
}

func TestFetch_ContextCanceled(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.FetchBalance(ctx, owner); !errors.Is(err, domain.ErrFetch) {
		t.Errorf("FetchBalance(canceled) error = %v, want ErrFetch", err)
	}
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient(Config{GridURL: "https://example.test/"})
	if c.cfg.GridURL != "https://example.test" {
		t.Errorf("GridURL = %q, trailing slash should be trimmed", c.cfg.GridURL)
	}
	if c.cfg.Contract != USDTContract {
		t.Errorf("Contract = %q, want %q", c.cfg.Contract, USDTContract)
	}
	if c.http.Timeout != 10*time.Second {
		t.Errorf("Timeout = %v, want 10s", c.http.Timeout)
	}
}
