package stocks

import "github.com/selivandex/market-pulse/pkg/models"

// Defaults for symbols the market data provider knows nothing about
const (
	DefaultSector = "Technology"
	nameSuffix    = " Inc."
)

// FromMarket builds the stock row for symbol. Name and sector fall back to
// defaults when the overview lacks them; price is the latest close or nil.
func FromMarket(symbol string, overview *models.StockOverview, prices []models.DailyPrice, sentiment float64) models.Stock {
	stock := models.Stock{
		Symbol:    symbol,
		Name:      symbol + nameSuffix,
		Sector:    DefaultSector,
		Price:     models.LatestClose(prices),
		Sentiment: sentiment,
	}

	if overview != nil {
		if overview.Name != "" {
			stock.Name = overview.Name
		}
		if overview.Sector != "" {
			stock.Sector = overview.Sector
		}
	}

	return stock
}
