package stocks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/selivandex/market-pulse/internal/errs"
	"github.com/selivandex/market-pulse/pkg/models"
)

const stockColumns = `symbol, COALESCE(name, '') AS name, price, COALESCE(sector, '') AS sector, sentiment`

// Repository handles stock rows
type Repository struct {
	ext sqlx.ExtContext
}

// NewRepository creates new stocks repository
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{ext: db}
}

// WithTx returns a repository bound to tx
func (r *Repository) WithTx(tx *sqlx.Tx) *Repository {
	return &Repository{ext: tx}
}

// Upsert inserts the stock or overwrites name, price, sector and sentiment
// of the row with the same symbol.
func (r *Repository) Upsert(ctx context.Context, stock *models.Stock) error {
	query := `
		INSERT INTO stocks (symbol, name, price, sector, sentiment)
		VALUES (:symbol, :name, :price, :sector, :sentiment)
		ON CONFLICT (symbol) DO UPDATE SET
			name = excluded.name,
			price = excluded.price,
			sector = excluded.sector,
			sentiment = excluded.sentiment
	`

	if _, err := sqlx.NamedExecContext(ctx, r.ext, query, stock); err != nil {
		return fmt.Errorf("failed to upsert stock %s: %w", stock.Symbol, err)
	}
	return nil
}

// ListAll returns every stored stock ordered by symbol
func (r *Repository) ListAll(ctx context.Context) ([]models.Stock, error) {
	query := `
		SELECT ` + stockColumns + `
		FROM stocks
		ORDER BY symbol
	`

	stocks := make([]models.Stock, 0)
	if err := sqlx.SelectContext(ctx, r.ext, &stocks, query); err != nil {
		return nil, fmt.Errorf("failed to list stocks: %w", err)
	}
	return stocks, nil
}

// Get returns the stored row of symbol
func (r *Repository) Get(ctx context.Context, symbol string) (*models.Stock, error) {
	query := r.ext.Rebind(`SELECT ` + stockColumns + ` FROM stocks WHERE symbol = ?`)

	var stock models.Stock
	if err := sqlx.GetContext(ctx, r.ext, &stock, query, symbol); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.Wrapf(errs.ErrNotFound, "stock %s", symbol)
		}
		return nil, fmt.Errorf("failed to get stock %s: %w", symbol, err)
	}
	return &stock, nil
}
