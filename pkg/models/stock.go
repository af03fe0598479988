package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Stock is the stored per-symbol row served by /api/stocks
type Stock struct {
	Price     *float64 `json:"price" db:"price"`
	Symbol    string   `json:"symbol" db:"symbol"`
	Name      string   `json:"name" db:"name"`
	Sector    string   `json:"sector" db:"sector"`
	Sentiment float64  `json:"sentiment" db:"sentiment"`
}

// StockOverview is company metadata from the market data provider
type StockOverview struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Sector   string `json:"sector"`
	Industry string `json:"industry"`
	Exchange string `json:"exchange"`
}

// DailyPrice is one daily OHLCV bar
type DailyPrice struct {
	Date   time.Time       `json:"date"`
	Symbol string          `json:"symbol"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume int64           `json:"volume"`
}

// LatestClose returns the close of the most recent bar, or nil when there
// are no bars.
func LatestClose(prices []DailyPrice) *float64 {
	if len(prices) == 0 {
		return nil
	}

	latest := prices[0]
	for _, p := range prices[1:] {
		if p.Date.After(latest.Date) {
			latest = p
		}
	}

	close := ToFloat64(latest.Close)
	return &close
}
