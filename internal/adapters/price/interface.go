package price

import (
	"context"

	"github.com/selivandex/market-pulse/pkg/models"
)

// MarketData provides company metadata and daily prices for equities
type MarketData interface {
	// GetOverview returns company metadata; fields the provider does not know are empty
	GetOverview(ctx context.Context, symbol string) (*models.StockOverview, error)

	// GetDailyPrices returns up to days most recent daily bars, newest first
	GetDailyPrices(ctx context.Context, symbol string, days int) ([]models.DailyPrice, error)
}
