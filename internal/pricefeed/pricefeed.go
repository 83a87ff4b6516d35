// Package pricefeed supplies display prices. Correctness is not part of the
// engine's contract: every lookup degrades to zero on failure and never
// blocks a pipeline.
package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// SolMint is the wrapped SOL mint, used for the SOL/USD quote.
const SolMint = "So11111111111111111111111111111111111111112"

// Client fetches token prices from a Jupiter-style price API.
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *log.Logger
}

// NewClient creates a price client. endpoint is the API base URL.
func NewClient(endpoint string, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Default()
	}
	return &Client{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		logger: logger,
	}
}

type priceResponse struct {
	Data map[string]struct {
		Price string `json:"price"`
	} `json:"data"`
}

// TokenPriceSol returns the token's price in SOL, or zero when the feed is
// unavailable. Implements ledger.PriceSource.
func (c *Client) TokenPriceSol(ctx context.Context, mint string) float64 {
	prices, err := c.fetch(ctx, mint, SolMint)
	if err != nil {
		c.logger.Printf("pricefeed: %v", err)
		return 0
	}
	tokenUsd := prices[mint]
	solUsd := prices[SolMint]
	if solUsd == 0 {
		return 0
	}
	return tokenUsd / solUsd
}

// SolUsd returns the SOL/USD quote, or zero when the feed is unavailable.
func (c *Client) SolUsd(ctx context.Context) float64 {
	prices, err := c.fetch(ctx, SolMint)
	if err != nil {
		c.logger.Printf("pricefeed: %v", err)
		return 0
	}
	return prices[SolMint]
}

func (c *Client) fetch(ctx context.Context, mints ...string) (map[string]float64, error) {
	q := url.Values{}
	ids := ""
	for i, m := range mints {
		if i > 0 {
			ids += ","
		}
		ids += m
	}
	q.Set("ids", ids)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/price?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build price request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("price request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("price request: status %d", resp.StatusCode)
	}

	var body priceResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode price response: %w", err)
	}

	out := make(map[string]float64, len(body.Data))
	for mint, entry := range body.Data {
		p, err := strconv.ParseFloat(entry.Price, 64)
		if err != nil {
			continue
		}
		out[mint] = p
	}
	return out, nil
}
