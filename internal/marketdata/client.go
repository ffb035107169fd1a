package marketdata

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"paper-trader-go/internal/config"
)

// Client fetches daily close prices from a Yahoo-style chart endpoint.
// It implements the Oracle interface.
type Client struct {
	client  *resty.Client
	logger  *zap.Logger
	limiter *rate.Limiter
}

// ensure Client implements the interface
var _ Oracle = (*Client)(nil)

// NewClient creates a new market-data HTTP client.
func NewClient(cfg *config.MarketData, logger *zap.Logger) *Client {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetHeader("User-Agent", "paper-trader/1.0")

	// rate.Limit is requests per second.
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst)

	return &Client{
		client:  client,
		logger:  logger,
		limiter: limiter,
	}
}

// chartResponse models the subset of the chart endpoint payload we read.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol            string `json:"symbol"`
				RegularMarketTime int64  `json:"regularMarketTime"`
			} `json:"meta"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// LatestClose fetches the most recent daily close for a symbol.
// A symbol the provider does not know, or a day with no close data,
// yields ErrNoQuote.
func (c *Client) LatestClose(ctx context.Context, symbol string) (*Quote, error) {
	symbol = strings.ToUpper(symbol)

	req := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"range":    "1d",
			"interval": "1d",
		}).
		SetResult(&chartResponse{})

	resp, err := c.doRequest(ctx, "GET", "/v8/finance/chart/"+symbol, req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chart for %s: %w", symbol, err)
	}

	result := resp.Result().(*chartResponse)
	if result.Chart.Error != nil {
		c.logger.Warn("Chart endpoint returned an error",
			zap.String("symbol", symbol),
			zap.String("code", result.Chart.Error.Code),
		)
		return nil, ErrNoQuote
	}
	if len(result.Chart.Result) == 0 || len(result.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, ErrNoQuote
	}

	series := result.Chart.Result[0]

	// Walk the close series backwards; the provider pads unfinished
	// candles with nulls.
	closes := series.Indicators.Quote[0].Close
	var latest *float64
	for i := len(closes) - 1; i >= 0; i-- {
		if closes[i] != nil {
			latest = closes[i]
			break
		}
	}
	if latest == nil {
		return nil, ErrNoQuote
	}

	asOf := time.Now()
	if series.Meta.RegularMarketTime > 0 {
		asOf = time.Unix(series.Meta.RegularMarketTime, 0)
	}

	return &Quote{
		Symbol: symbol,
		Price:  decimal.NewFromFloat(*latest),
		AsOf:   asOf,
	}, nil
}

// doRequest handles the actual request execution with rate limiting and retry logic.
func (c *Client) doRequest(ctx context.Context, method, url string, req *resty.Request) (*resty.Response, error) {
	var resp *resty.Response
	var err error
	const maxRetries = 3

	for i := 0; i < maxRetries; i++ {
		// Wait for the rate limiter
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("url", c.client.BaseURL+url))
		resp, err = req.Execute(method, url)

		if err == nil && !resp.IsError() {
			return resp, nil // Success
		}

		// Analyze error and decide whether to retry
		shouldRetry := false
		var retryAfter time.Duration

		if resp != nil {
			statusCode := resp.StatusCode()
			if statusCode == http.StatusTooManyRequests {
				shouldRetry = true
				retryAfterHeader := resp.Header().Get("Retry-After")
				if seconds, err := strconv.Atoi(retryAfterHeader); err == nil {
					retryAfter = time.Duration(seconds) * time.Second
				}
			} else if statusCode >= 500 { // Server errors
				shouldRetry = true
			}
		} else { // Network or other client-side errors
			shouldRetry = true
		}

		if !shouldRetry {
			return nil, fmt.Errorf("request failed with status %s: %s", resp.Status(), resp.String())
		}

		// If we should retry, calculate wait time
		if retryAfter == 0 {
			// Exponential backoff: 1s, 2s, 4s
			retryAfter = time.Duration(math.Pow(2, float64(i))) * time.Second
		}

		c.logger.Warn("Request failed, retrying...",
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(err),
		)

		select {
		case <-time.After(retryAfter):
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", maxRetries, err)
}
