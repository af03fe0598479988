package price

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/selivandex/market-pulse/internal/adapters/ratelimit"
	"github.com/selivandex/market-pulse/internal/errs"
	"github.com/selivandex/market-pulse/pkg/logger"
	"github.com/selivandex/market-pulse/pkg/metrics"
	"github.com/selivandex/market-pulse/pkg/models"
)

const (
	alphaVantageAPIURL = "https://www.alphavantage.co"
	providerName       = "alphavantage"
)

// AlphaVantageProvider implements MarketData using the Alpha Vantage REST API
type AlphaVantageProvider struct {
	client  *http.Client
	limiter *ratelimit.Limiter
	baseURL string
	apiKey  string
}

// NewAlphaVantageProvider creates new Alpha Vantage provider
func NewAlphaVantageProvider(apiKey string, requestsPerMinute int) *AlphaVantageProvider {
	return &AlphaVantageProvider{
		client:  &http.Client{Timeout: 15 * time.Second},
		limiter: ratelimit.NewLimiter(providerName, requestsPerMinute),
		baseURL: alphaVantageAPIURL,
		apiKey:  apiKey,
	}
}

// WithBaseURL points the provider at another host (tests, proxies)
func (av *AlphaVantageProvider) WithBaseURL(baseURL string) *AlphaVantageProvider {
	av.baseURL = baseURL
	return av
}

// GetOverview implements MarketData
func (av *AlphaVantageProvider) GetOverview(ctx context.Context, symbol string) (*models.StockOverview, error) {
	var result struct {
		Symbol   string `json:"Symbol"`
		Name     string `json:"Name"`
		Sector   string `json:"Sector"`
		Industry string `json:"Industry"`
		Exchange string `json:"Exchange"`
	}

	if err := av.query(ctx, "OVERVIEW", symbol, nil, &result); err != nil {
		return nil, errs.Wrapf(err, "overview %s", symbol)
	}

	return &models.StockOverview{
		Symbol:   symbol,
		Name:     result.Name,
		Sector:   result.Sector,
		Industry: result.Industry,
		Exchange: result.Exchange,
	}, nil
}

// GetDailyPrices implements MarketData. A symbol without a daily series
// yields an empty slice.
func (av *AlphaVantageProvider) GetDailyPrices(ctx context.Context, symbol string, days int) ([]models.DailyPrice, error) {
	var result struct {
		Series map[string]struct {
			Open   string `json:"1. open"`
			High   string `json:"2. high"`
			Low    string `json:"3. low"`
			Close  string `json:"4. close"`
			Volume string `json:"5. volume"`
		} `json:"Time Series (Daily)"`
	}

	params := url.Values{}
	params.Set("outputsize", "compact")
	if err := av.query(ctx, "TIME_SERIES_DAILY", symbol, params, &result); err != nil {
		return nil, errs.Wrapf(err, "daily prices %s", symbol)
	}

	prices := make([]models.DailyPrice, 0, len(result.Series))
	for day, bar := range result.Series {
		date, err := time.Parse("2006-01-02", day)
		if err != nil {
			logger.Debug("skipping bar with bad date",
				zap.String("symbol", symbol),
				zap.String("date", day),
			)
			continue
		}

		closePrice, err := decimal.NewFromString(bar.Close)
		if err != nil {
			logger.Debug("skipping bar with bad close",
				zap.String("symbol", symbol),
				zap.String("date", day),
				zap.String("close", bar.Close),
			)
			continue
		}

		volume, _ := strconv.ParseInt(bar.Volume, 10, 64)
		prices = append(prices, models.DailyPrice{
			Date:   date,
			Symbol: symbol,
			Open:   parseDecimal(bar.Open),
			High:   parseDecimal(bar.High),
			Low:    parseDecimal(bar.Low),
			Close:  closePrice,
			Volume: volume,
		})
	}

	sort.Slice(prices, func(i, j int) bool {
		return prices[i].Date.After(prices[j].Date)
	})

	if days > 0 && len(prices) > days {
		prices = prices[:days]
	}

	return prices, nil
}

// query performs one API call and decodes the body into out. Alpha Vantage
// reports errors and throttling with HTTP 200 and a message field.
func (av *AlphaVantageProvider) query(ctx context.Context, function, symbol string, params url.Values, out interface{}) (err error) {
	defer func() {
		metrics.RecordUpstreamCall(providerName, err)
		err = errs.Mark(err, errs.ErrUpstreamFetch)
	}()

	if err := av.limiter.Wait(ctx); err != nil {
		return err
	}

	if params == nil {
		params = url.Values{}
	}
	params.Set("function", function)
	params.Set("symbol", symbol)
	params.Set("apikey", av.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, av.baseURL+"/query?"+params.Encode(), http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := av.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API error %d: %s", resp.StatusCode, truncateBody(body))
	}

	var status struct {
		ErrorMessage string `json:"Error Message"`
		Note         string `json:"Note"`
		Information  string `json:"Information"`
	}
	if err := json.Unmarshal(body, &status); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	switch {
	case status.ErrorMessage != "":
		return fmt.Errorf("API error: %s", status.ErrorMessage)
	case status.Note != "":
		return fmt.Errorf("API throttled: %s", status.Note)
	case status.Information != "":
		return fmt.Errorf("API refused: %s", status.Information)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func truncateBody(body []byte) string {
	if len(body) > 256 {
		return string(body[:256])
	}
	return string(body)
}
