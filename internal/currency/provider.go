package currency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
)

const (
	yahooChartURL = "https://query1.finance.yahoo.com/v8/finance/chart"
	yahooUA       = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7)"
)

// RateProvider fetches a live exchange rate for one currency pair.
type RateProvider interface {
	FetchRate(ctx context.Context, from, to string) (decimal.Decimal, error)
}

// YahooProvider reads forex rates from the Yahoo Finance chart API, which
// quotes pairs as tickers like "EURUSD=X".
type YahooProvider struct {
	httpClient *http.Client
	baseURL    string
}

// NewYahooProvider creates a provider. An empty baseURL selects the public API.
func NewYahooProvider(httpClient *http.Client, baseURL string) *YahooProvider {
	if baseURL == "" {
		baseURL = yahooChartURL
	}
	return &YahooProvider{httpClient: httpClient, baseURL: baseURL}
}

type yahooChartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol             string  `json:"symbol"`
				Currency           string  `json:"currency"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
			} `json:"meta"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// FetchRate returns how many units of to one unit of from buys.
func (p *YahooProvider) FetchRate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	ticker := from + to + "=X"
	url := p.baseURL + "/" + ticker + "?interval=1d&range=1d"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("building forex request: %w", err)
	}
	req.Header.Set("User-Agent", yahooUA)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("forex http request for %s: %w", ticker, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var chartResp yahooChartResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&chartResp)

	if chartResp.Chart.Error != nil {
		return decimal.Zero, fmt.Errorf("%w: %s: %s: %s", ErrRateUnavailable, ticker, chartResp.Chart.Error.Code, chartResp.Chart.Error.Description)
	}
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("forex request for %s: unexpected status %d", ticker, resp.StatusCode)
	}
	if decodeErr != nil {
		return decimal.Zero, fmt.Errorf("decoding forex response for %s: %w", ticker, decodeErr)
	}
	if len(chartResp.Chart.Result) == 0 {
		return decimal.Zero, fmt.Errorf("%w: no forex results for %s", ErrRateUnavailable, ticker)
	}

	price := chartResp.Chart.Result[0].Meta.RegularMarketPrice
	if price <= 0 {
		return decimal.Zero, fmt.Errorf("%w: invalid forex rate for %s: %f", ErrRateUnavailable, ticker, price)
	}
	return decimal.NewFromFloat(price), nil
}

// ErrRateUnavailable reports that no rate exists for a currency pair.
var ErrRateUnavailable = errors.New("exchange rate unavailable")
