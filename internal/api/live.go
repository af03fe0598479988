package api

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/selivandex/market-pulse/internal/adapters/config"
	"github.com/selivandex/market-pulse/internal/adapters/news"
	"github.com/selivandex/market-pulse/internal/adapters/price"
	"github.com/selivandex/market-pulse/internal/errs"
	"github.com/selivandex/market-pulse/internal/ingest"
	"github.com/selivandex/market-pulse/internal/sentiment"
	"github.com/selivandex/market-pulse/internal/stocks"
	"github.com/selivandex/market-pulse/pkg/logger"
	"github.com/selivandex/market-pulse/pkg/models"
)

// livePostLimit is the listing size of a live /api/posts call
const livePostLimit = 25

// HistorySource returns recent daily sentiment for a symbol
type HistorySource interface {
	History(ctx context.Context, symbol string, days int) ([]models.HistoricalSentiment, error)
}

// Cache stores serialized per-symbol responses
type Cache interface {
	Lookup(ctx context.Context, key string) ([]byte, bool, error)
	Store(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// StockStore returns the last stored row of a symbol
type StockStore interface {
	Get(ctx context.Context, symbol string) (*models.Stock, error)
}

// storedLookupTimeout bounds the stored-row fallback, which may run after
// the request deadline has passed
const storedLookupTimeout = 2 * time.Second

// LiveConfig configures the live strategy
type LiveConfig struct {
	Forum       string
	Window      string
	Order       string
	Symbols     []string
	HistoryDays int
	Concurrency int
	Timeout     time.Duration
	CacheTTL    time.Duration
}

// LiveConfigFrom builds the live configuration from application config
func LiveConfigFrom(cfg *config.Config) LiveConfig {
	return LiveConfig{
		Forum:       cfg.Reddit.Subreddit,
		Window:      cfg.Reddit.TimePeriod,
		Order:       cfg.Reddit.Sort,
		Symbols:     cfg.Market.Symbols,
		HistoryDays: cfg.Market.SentimentHistoryDays,
		Concurrency: cfg.API.LiveConcurrency,
		Timeout:     cfg.API.LiveRequestTimeout,
		CacheTTL:    cfg.API.LiveCacheTTL,
	}
}

// LiveStrategy fetches and scores upstream data on every request
type LiveStrategy struct {
	cfg     LiveConfig
	fetcher news.PostFetcher
	market  price.MarketData
	scorer  sentiment.Scorer
	history HistorySource
	cache   Cache
	stored  StockStore
}

// LiveOption configures optional live collaborators
type LiveOption func(*LiveStrategy)

// WithCache enables the per-symbol response cache
func WithCache(c Cache) LiveOption {
	return func(s *LiveStrategy) {
		s.cache = c
	}
}

// WithHistory sets the sentiment history source; without it stock
// sentiment is 0
func WithHistory(h HistorySource) LiveOption {
	return func(s *LiveStrategy) {
		s.history = h
	}
}

// WithStoredStocks serves the stored row of a symbol whose upstream fetch
// fails, for example when the provider's rate budget is spent
func WithStoredStocks(store StockStore) LiveOption {
	return func(s *LiveStrategy) {
		s.stored = store
	}
}

// NewLiveStrategy creates new live strategy
func NewLiveStrategy(cfg LiveConfig, fetcher news.PostFetcher, market price.MarketData, scorer sentiment.Scorer, opts ...LiveOption) *LiveStrategy {
	if cfg.Forum == "" {
		cfg.Forum = "wallstreetbets"
	}
	if cfg.Window == "" {
		cfg.Window = "day"
	}
	if cfg.Order == "" {
		cfg.Order = "hot"
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 4
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.HistoryDays <= 0 {
		cfg.HistoryDays = 7
	}

	s := &LiveStrategy{
		cfg:     cfg,
		fetcher: fetcher,
		market:  market,
		scorer:  scorer,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *LiveStrategy) Mode() string {
	return config.QueryModeLive
}

// Posts fetches the listing for q and scores it inline. Posts that fail to
// score are left out.
func (s *LiveStrategy) Posts(ctx context.Context, q PostQuery) ([]PostView, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	forum, window, order := s.cfg.Forum, s.cfg.Window, s.cfg.Order
	if q.Subreddit != "" {
		forum = q.Subreddit
	}
	if q.TimePeriod != "" {
		window = q.TimePeriod
	}
	if q.SortBy != "" {
		order = q.SortBy
	}

	records, err := s.fetcher.FetchPosts(ctx, forum, window, order, livePostLimit)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errs.Mark(err, errs.ErrUpstreamFetch)
	}

	views := make([]PostView, 0, len(records))
	for _, rec := range records {
		scores, err := s.scorer.Score(ctx, rec.Title+" "+rec.Selftext)
		if err != nil {
			logger.Warn("failed to score live post", zap.String("post_id", rec.ID), zap.Error(err))
			continue
		}

		views = append(views, PostView{
			Title:       rec.Title,
			Selftext:    rec.Selftext,
			URL:         rec.URL,
			Subreddit:   rec.Subreddit,
			Author:      rec.Author,
			CreatedUTC:  formatTime(ingest.NormalizeCreated(rec.CreatedUTC)),
			Score:       rec.Score,
			NumComments: rec.NumComments,
			Sentiment:   scores,
		})
	}

	return views, nil
}

// Stocks fetches all symbols with bounded parallelism. A symbol whose
// upstream fails or runs past the request deadline is served from the
// stored rows when available and omitted otherwise. If no symbol could be
// served the call fails: with the deadline error once it has passed, with
// an upstream error otherwise.
func (s *LiveStrategy) Stocks(ctx context.Context) ([]models.Stock, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	results := make([]*models.Stock, len(s.cfg.Symbols))
	var (
		mu      sync.Mutex
		failed  int
		lastErr error
	)

	g := new(errgroup.Group)
	g.SetLimit(s.cfg.Concurrency)

	for i, symbol := range s.cfg.Symbols {
		i, symbol := i, symbol
		g.Go(func() error {
			stock, err := s.stock(ctx, symbol)
			if err != nil {
				stock = s.fallback(ctx, symbol, err)
			}
			if stock == nil {
				mu.Lock()
				failed++
				lastErr = err
				mu.Unlock()
				return nil
			}

			results[i] = stock
			return nil
		})
	}
	_ = g.Wait()

	out := make([]models.Stock, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}

	if len(out) == 0 && failed > 0 {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errs.Mark(fmt.Errorf("all %d symbols failed: %w", failed, lastErr), errs.ErrUpstreamFetch)
	}
	return out, nil
}

// fallback returns the stored row of symbol after a failed live fetch
func (s *LiveStrategy) fallback(ctx context.Context, symbol string, fetchErr error) *models.Stock {
	if s.stored == nil {
		logger.Warn("live stock fetch failed, omitting symbol",
			zap.String("symbol", symbol),
			zap.Error(fetchErr),
		)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storedLookupTimeout)
	defer cancel()

	stock, err := s.stored.Get(ctx, symbol)
	if err != nil {
		logger.Warn("live stock fetch failed and no stored row, omitting symbol",
			zap.String("symbol", symbol),
			zap.NamedError("fetch_error", fetchErr),
			zap.Error(err),
		)
		return nil
	}

	logger.Info("live stock fetch failed, serving stored row",
		zap.String("symbol", symbol),
		zap.Error(fetchErr),
	)
	return stock
}

func (s *LiveStrategy) stock(ctx context.Context, symbol string) (*models.Stock, error) {
	key := "stock:" + symbol
	if cached, ok := s.lookup(ctx, key); ok {
		return cached, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	overview, err := s.market.GetOverview(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("overview: %w", err)
	}

	prices, err := s.market.GetDailyPrices(ctx, symbol, 1)
	if err != nil {
		return nil, fmt.Errorf("daily prices: %w", err)
	}

	var avg float64
	if s.history != nil {
		history, err := s.history.History(ctx, symbol, s.cfg.HistoryDays)
		if err != nil {
			logger.Warn("failed to load sentiment history", zap.String("symbol", symbol), zap.Error(err))
		}
		avg = models.MeanSentiment(history)
	}

	stock := stocks.FromMarket(symbol, overview, prices, avg)
	s.store(ctx, key, &stock)
	return &stock, nil
}

func (s *LiveStrategy) lookup(ctx context.Context, key string) (*models.Stock, bool) {
	if s.cache == nil {
		return nil, false
	}

	data, found, err := s.cache.Lookup(ctx, key)
	if err != nil {
		logger.Debug("cache lookup failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if !found {
		return nil, false
	}

	var stock models.Stock
	if err := json.Unmarshal(data, &stock); err != nil {
		return nil, false
	}
	return &stock, true
}

func (s *LiveStrategy) store(ctx context.Context, key string, stock *models.Stock) {
	if s.cache == nil || s.cfg.CacheTTL <= 0 {
		return
	}

	data, err := json.Marshal(stock)
	if err != nil {
		return
	}
	if err := s.cache.Store(ctx, key, data, s.cfg.CacheTTL); err != nil {
		logger.Debug("cache store failed", zap.String("key", key), zap.Error(err))
	}
}
