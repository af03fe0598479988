package metrics

import (
	"time"

	"github.com/selivandex/market-pulse/pkg/models"
)

// DailyPriceMetric is one archived daily bar, tagged with the ingest run
// that fetched it.
type DailyPriceMetric struct {
	Date      time.Time
	FetchedAt time.Time
	Symbol    string
	RunID     string
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
}

// NewDailyPriceMetric converts a fetched bar
func NewDailyPriceMetric(p models.DailyPrice, runID string, fetchedAt time.Time) *DailyPriceMetric {
	return &DailyPriceMetric{
		Date:      p.Date,
		FetchedAt: fetchedAt,
		Symbol:    p.Symbol,
		RunID:     runID,
		Open:      models.ToFloat64(p.Open),
		High:      models.ToFloat64(p.High),
		Low:       models.ToFloat64(p.Low),
		Close:     models.ToFloat64(p.Close),
		Volume:    p.Volume,
	}
}

func (m *DailyPriceMetric) TableName() string {
	return "market_daily_prices"
}

func (m *DailyPriceMetric) Columns() []string {
	return []string{"date", "symbol", "open", "high", "low", "close", "volume", "run_id", "fetched_at"}
}

func (m *DailyPriceMetric) Values() []interface{} {
	return []interface{}{
		m.Date,
		m.Symbol,
		m.Open,
		m.High,
		m.Low,
		m.Close,
		m.Volume,
		m.RunID,
		m.FetchedAt,
	}
}
