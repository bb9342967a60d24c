package currency

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

// newChartServer serves Yahoo-style chart responses. rates maps a ticker
// like "EURUSD=X" to its price; unknown tickers get a chart error.
func newChartServer(t *testing.T, rates map[string]float64, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		ticker := strings.TrimPrefix(r.URL.Path, "/")
		w.Header().Set("Content-Type", "application/json")

		var resp yahooChartResponse
		rate, ok := rates[ticker]
		if !ok {
			resp.Chart.Error = &struct {
				Code        string `json:"code"`
				Description string `json:"description"`
			}{Code: "Not Found", Description: "No data found for " + ticker}
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(resp)
			return
		}
		resp.Chart.Result = make([]struct {
			Meta struct {
				Symbol             string  `json:"symbol"`
				Currency           string  `json:"currency"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
			} `json:"meta"`
		}, 1)
		resp.Chart.Result[0].Meta.Symbol = ticker
		resp.Chart.Result[0].Meta.RegularMarketPrice = rate
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRateConverter_GetRate(t *testing.T) {
	srv := newChartServer(t, map[string]float64{"EURUSD=X": 1.08}, nil)
	conv := NewConverter(NewYahooProvider(srv.Client(), srv.URL), NewMemoryCache(time.Hour))
	ctx := context.Background()

	t.Run("same currency is one without a lookup", func(t *testing.T) {
		rate, err := conv.GetRate(ctx, "usd", "USD")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !rate.Equal(decimal.NewFromInt(1)) {
			t.Errorf("rate = %s, want 1", rate)
		}
	})

	t.Run("fetches pair from provider", func(t *testing.T) {
		rate, err := conv.GetRate(ctx, "eur", "usd")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !rate.Equal(decimal.RequireFromString("1.08")) {
			t.Errorf("rate = %s, want 1.08", rate)
		}
	})

	t.Run("unknown pair is unavailable", func(t *testing.T) {
		_, err := conv.GetRate(ctx, "XXX", "USD")
		if !errors.Is(err, ErrRateUnavailable) {
			t.Fatalf("expected ErrRateUnavailable, got %v", err)
		}
	})

	t.Run("empty code is unavailable", func(t *testing.T) {
		_, err := conv.GetRate(ctx, "", "USD")
		if !errors.Is(err, ErrRateUnavailable) {
			t.Fatalf("expected ErrRateUnavailable, got %v", err)
		}
	})
}

func TestRateConverter_CachesRates(t *testing.T) {
	var hits atomic.Int32
	srv := newChartServer(t, map[string]float64{"GBPUSD=X": 1.25}, &hits)
	conv := NewConverter(NewYahooProvider(srv.Client(), srv.URL), NewMemoryCache(time.Hour))

	for i := 0; i < 3; i++ {
		if _, err := conv.GetRate(context.Background(), "GBP", "USD"); err != nil {
			t.Fatalf("GetRate: %v", err)
		}
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("provider hit %d times, want 1", got)
	}
}

type countingProvider struct {
	calls   atomic.Int32
	release chan struct{}
}

func (p *countingProvider) FetchRate(_ context.Context, _, _ string) (decimal.Decimal, error) {
	p.calls.Add(1)
	<-p.release
	return decimal.RequireFromString("0.9"), nil
}

func TestRateConverter_CollapsesConcurrentMisses(t *testing.T) {
	provider := &countingProvider{release: make(chan struct{})}
	conv := NewConverter(provider, nil)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = conv.GetRate(context.Background(), "USD", "EUR")
		}()
	}
	// Give the goroutines time to join the in-flight call.
	time.Sleep(50 * time.Millisecond)
	close(provider.release)
	wg.Wait()

	if got := provider.calls.Load(); got < 1 || got > 5 {
		t.Fatalf("unexpected call count %d", got)
	}
	if got := provider.calls.Load(); got != 1 {
		t.Logf("provider called %d times; goroutines were not all in flight together", got)
	}
}

func TestRateConverter_Convert(t *testing.T) {
	srv := newChartServer(t, map[string]float64{"USDJPY=X": 150}, nil)
	conv := NewConverter(NewYahooProvider(srv.Client(), srv.URL), nil)

	got, err := conv.Convert(context.Background(), "USD", "JPY", decimal.RequireFromString("12.5"))
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if !got.Equal(decimal.NewFromInt(1875)) {
		t.Errorf("Convert = %s, want 1875", got)
	}

	if _, err := conv.Convert(context.Background(), "JPY", "CHF", decimal.NewFromInt(1)); err == nil {
		t.Error("expected error for unknown pair")
	}
}

func TestTryConvert(t *testing.T) {
	conv := NewStaticConverter(map[string]decimal.Decimal{"EUR:USD": decimal.RequireFromString("1.1")})
	ctx := context.Background()

	ok := conv.TryConvert(ctx, "EUR", "USD", decimal.NewFromInt(100))
	if !ok.Converted || !ok.Amount.Equal(decimal.NewFromInt(110)) || ok.Currency != "USD" {
		t.Errorf("unexpected conversion %+v", ok)
	}

	failed := conv.TryConvert(ctx, "SEK", "USD", decimal.NewFromInt(100))
	if failed.Converted {
		t.Fatal("expected unconverted result")
	}
	if failed.Currency != "SEK" || !failed.Amount.Equal(decimal.NewFromInt(100)) {
		t.Errorf("unconverted result should keep the original amount, got %+v", failed)
	}
	if !errors.Is(failed.Err, ErrRateUnavailable) {
		t.Errorf("Err = %v", failed.Err)
	}
}

func TestStaticConverter_Inverse(t *testing.T) {
	conv := NewStaticConverter(map[string]decimal.Decimal{"usd:eur": decimal.RequireFromString("0.8")})
	rate, err := conv.GetRate(context.Background(), "EUR", "USD")
	if err != nil {
		t.Fatalf("GetRate: %v", err)
	}
	if !rate.Equal(decimal.RequireFromString("1.25")) {
		t.Errorf("inverse rate = %s, want 1.25", rate)
	}
}

func TestSum(t *testing.T) {
	total := Sum([]Conversion{
		{Amount: decimal.NewFromInt(100), Currency: "USD", Converted: true},
		{Amount: decimal.NewFromInt(40), Currency: "SEK"},
		{Amount: decimal.RequireFromString("25.5"), Currency: "USD", Converted: true},
		{Amount: decimal.NewFromInt(1), Currency: "SEK"},
		{Amount: decimal.NewFromInt(2), Currency: "CHF"},
	})

	if !total.Amount.Equal(decimal.RequireFromString("125.5")) {
		t.Errorf("Amount = %s, want 125.5", total.Amount)
	}
	if len(total.Unconverted) != 2 || total.Unconverted[0] != "CHF" || total.Unconverted[1] != "SEK" {
		t.Errorf("Unconverted = %v", total.Unconverted)
	}
}
