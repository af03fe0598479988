// Package ingest runs the fetch, score and store batch: posts from a forum and
// per-symbol stock rows are collected in memory and upserted in a single
// transaction.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/selivandex/market-pulse/internal/adapters/config"
	"github.com/selivandex/market-pulse/internal/adapters/database"
	"github.com/selivandex/market-pulse/internal/adapters/news"
	"github.com/selivandex/market-pulse/internal/adapters/price"
	"github.com/selivandex/market-pulse/internal/adapters/redis"
	"github.com/selivandex/market-pulse/internal/errs"
	"github.com/selivandex/market-pulse/internal/posts"
	"github.com/selivandex/market-pulse/internal/sentiment"
	"github.com/selivandex/market-pulse/internal/stocks"
	"github.com/selivandex/market-pulse/pkg/logger"
	"github.com/selivandex/market-pulse/pkg/metrics"
	"github.com/selivandex/market-pulse/pkg/models"
)

// JobName is used for the job lock and logging
const JobName = "ingest"

// priceDays is how many daily bars are requested per symbol
const priceDays = 1

// HistoricalSentimentSource returns recent daily sentiment for a symbol
type HistoricalSentimentSource interface {
	History(ctx context.Context, symbol string, days int) ([]models.HistoricalSentiment, error)
}

// Notifier alerts about failed runs
type Notifier interface {
	NotifyFailure(ctx context.Context, runID string, err error) error
}

// Archiver receives the daily prices of a committed run
type Archiver interface {
	SaveDailyPrices(ctx context.Context, runID string, prices []models.DailyPrice) error
}

// PreCommitStep runs inside the ingest transaction after all rows are
// upserted. Returning an error rolls back the whole run.
type PreCommitStep func(ctx context.Context, tx *sqlx.Tx, posts []models.Post) error

// Config holds the ingest parameters
type Config struct {
	Forum       string
	Window      string
	Order       string
	Limit       int
	Symbols     []string
	HistoryDays int
	Timeout     time.Duration
}

// ConfigFrom builds the job configuration from application config
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		Forum:       cfg.Reddit.Subreddit,
		Window:      cfg.Reddit.TimePeriod,
		Order:       cfg.Reddit.Sort,
		Limit:       cfg.Reddit.Limit,
		Symbols:     cfg.Market.Symbols,
		HistoryDays: cfg.Market.SentimentHistoryDays,
		Timeout:     cfg.Ingest.Timeout,
	}
}

// withDefaults fills empty fields and clamps the post limit
func (c Config) withDefaults() Config {
	if c.Forum == "" {
		c.Forum = "wallstreetbets"
	}
	if c.Window == "" {
		c.Window = "day"
	}
	if c.Order == "" {
		c.Order = "hot"
	}
	if c.Limit < config.MinPostLimit {
		c.Limit = config.MinPostLimit
	}
	if c.Limit > config.MaxPostLimit {
		c.Limit = config.MaxPostLimit
	}
	if c.HistoryDays <= 0 {
		c.HistoryDays = 7
	}
	return c
}

// RunResult summarizes one run
type RunResult struct {
	RunID        uuid.UUID
	PostsStored  int
	StocksStored int
	Skipped      int
	Duration     time.Duration
}

// Option configures optional job collaborators
type Option func(*Job)

// WithPreCommit registers a step executed inside the transaction
func WithPreCommit(step PreCommitStep) Option {
	return func(j *Job) {
		j.preCommit = append(j.preCommit, step)
	}
}

// WithArchive sends daily prices to a after a successful commit
func WithArchive(a Archiver) Option {
	return func(j *Job) {
		j.archive = a
	}
}

// WithNotifier sets the failure notifier
func WithNotifier(n Notifier) Option {
	return func(j *Job) {
		j.notifier = n
	}
}

// WithLock replaces the in-process job lock
func WithLock(l redis.JobLock) Option {
	return func(j *Job) {
		j.lock = l
	}
}

// Job is the ingest batch
type Job struct {
	cfg     Config
	db      *database.DB
	posts   *posts.Repository
	stocks  *stocks.Repository
	fetcher news.PostFetcher
	market  price.MarketData
	scorer  sentiment.Scorer
	history HistoricalSentimentSource

	preCommit []PreCommitStep
	archive   Archiver
	notifier  Notifier
	lock      redis.JobLock
}

// NewJob creates new ingest job
func NewJob(
	cfg Config,
	db *database.DB,
	fetcher news.PostFetcher,
	market price.MarketData,
	scorer sentiment.Scorer,
	history HistoricalSentimentSource,
	opts ...Option,
) *Job {
	j := &Job{
		cfg:     cfg.withDefaults(),
		db:      db,
		posts:   posts.NewRepository(db.DB()),
		stocks:  stocks.NewRepository(db.DB()),
		fetcher: fetcher,
		market:  market,
		scorer:  scorer,
		history: history,
		lock:    redis.NewLocalLock(JobName),
	}

	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Name implements worker.Worker
func (j *Job) Name() string {
	return JobName
}

// batch is the in-memory result of the fetch phase
type batch struct {
	posts  []models.Post
	stocks []models.Stock
	prices []models.DailyPrice
}

// Run implements worker.Worker. A tick that finds another run holding the
// lock is not an error.
func (j *Job) Run(ctx context.Context) error {
	_, err := j.Execute(ctx)
	if IsSkippedRun(err) {
		return nil
	}
	return err
}

// Execute runs the job and returns the run summary. A second concurrent run
// returns errs.ErrJobRunning; a rolled back transaction returns
// errs.ErrStorageCommit.
func (j *Job) Execute(ctx context.Context) (*RunResult, error) {
	acquired, err := j.lock.TryAcquire(ctx)
	if err != nil {
		return nil, errs.Wrap(err, "failed to acquire job lock")
	}
	if !acquired {
		logger.Info("ingest run already in progress, skipping", zap.String("lock", j.lock.Name()))
		metrics.IngestRuns.WithLabelValues("skipped").Inc()
		return nil, errs.ErrJobRunning
	}
	defer func() {
		if err := j.lock.Release(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("failed to release job lock", zap.Error(err))
		}
	}()

	if j.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.cfg.Timeout)
		defer cancel()
	}

	result := &RunResult{RunID: uuid.New()}
	log := logger.With(zap.String("run_id", result.RunID.String()))
	start := time.Now()

	log.Info("ingest run started",
		zap.String("forum", j.cfg.Forum),
		zap.Int("limit", j.cfg.Limit),
		zap.Strings("symbols", j.cfg.Symbols),
	)

	// all reads happen before the transaction opens
	b := &batch{
		posts: j.collectPosts(ctx, log, result),
	}
	j.collectStocks(ctx, log, result, b)

	err = j.db.InTx(ctx, func(tx *sqlx.Tx) error {
		return j.store(ctx, tx, b)
	})
	result.Duration = time.Since(start)

	if err != nil {
		err = errs.Mark(err, errs.ErrStorageCommit)
		log.Error("ingest run rolled back",
			zap.Duration("duration", result.Duration),
			zap.Error(err),
		)
		metrics.RecordIngestRun("failed", result.Duration)
		j.notifyFailure(ctx, log, result.RunID, err)
		return result, err
	}

	result.PostsStored = len(b.posts)
	result.StocksStored = len(b.stocks)
	metrics.IngestRows.WithLabelValues("posts").Add(float64(result.PostsStored))
	metrics.IngestRows.WithLabelValues("stocks").Add(float64(result.StocksStored))
	metrics.RecordIngestRun("success", result.Duration)

	j.archivePrices(ctx, log, result.RunID, b.prices)

	log.Info("ingest run committed",
		zap.Int("posts", result.PostsStored),
		zap.Int("stocks", result.StocksStored),
		zap.Int("skipped", result.Skipped),
		zap.Duration("duration", result.Duration),
	)
	return result, nil
}

// collectPosts fetches and scores posts. A failed listing yields no posts.
func (j *Job) collectPosts(ctx context.Context, log *zap.Logger, result *RunResult) []models.Post {
	records, err := j.fetcher.FetchPosts(ctx, j.cfg.Forum, j.cfg.Window, j.cfg.Order, j.cfg.Limit)
	if err != nil {
		log.Error("failed to fetch posts", zap.String("forum", j.cfg.Forum), zap.Error(err))
		j.skip(result, "posts")
		return nil
	}

	out := make([]models.Post, 0, len(records))
	for _, rec := range records {
		scores, err := j.scorer.Score(ctx, rec.Title+" "+rec.Selftext)
		if err != nil {
			log.Warn("failed to score post, skipping",
				zap.String("post_id", rec.ID),
				zap.Error(err),
			)
			j.skip(result, "score")
			continue
		}

		post := models.Post{
			ID:          rec.ID,
			Title:       rec.Title,
			Selftext:    rec.Selftext,
			URL:         rec.URL,
			Subreddit:   rec.Subreddit,
			Author:      rec.Author,
			CreatedUTC:  NormalizeCreated(rec.CreatedUTC),
			Score:       rec.Score,
			NumComments: rec.NumComments,
		}
		if post.CreatedUTC == nil && rec.CreatedUTC != nil {
			log.Debug("unparseable created_utc stored as null",
				zap.String("post_id", rec.ID),
				zap.Any("value", rec.CreatedUTC),
			)
		}
		post.SetSentiment(scores)
		out = append(out, post)
	}

	return out
}

// collectStocks builds one stock row per symbol. Symbols whose upstream
// fails are skipped.
func (j *Job) collectStocks(ctx context.Context, log *zap.Logger, result *RunResult, b *batch) {
	for _, symbol := range j.cfg.Symbols {
		stock, prices, err := j.buildStock(ctx, symbol)
		if err != nil {
			log.Warn("failed to build stock, skipping",
				zap.String("symbol", symbol),
				zap.Error(err),
			)
			j.skip(result, "stock")
			continue
		}

		b.stocks = append(b.stocks, *stock)
		b.prices = append(b.prices, prices...)
	}
}

func (j *Job) buildStock(ctx context.Context, symbol string) (*models.Stock, []models.DailyPrice, error) {
	overview, err := j.market.GetOverview(ctx, symbol)
	if err != nil {
		return nil, nil, fmt.Errorf("overview: %w", err)
	}

	prices, err := j.market.GetDailyPrices(ctx, symbol, priceDays)
	if err != nil {
		return nil, nil, fmt.Errorf("daily prices: %w", err)
	}

	history, err := j.history.History(ctx, symbol, j.cfg.HistoryDays)
	if err != nil {
		return nil, nil, fmt.Errorf("sentiment history: %w", err)
	}

	stock := stocks.FromMarket(symbol, overview, prices, models.MeanSentiment(history))

	for i := range prices {
		if prices[i].Symbol == "" {
			prices[i].Symbol = symbol
		}
	}

	return &stock, prices, nil
}

// store upserts the batch and runs the pre-commit steps using tx only
func (j *Job) store(ctx context.Context, tx *sqlx.Tx, b *batch) error {
	postRepo := j.posts.WithTx(tx)
	for i := range b.posts {
		if err := postRepo.Upsert(ctx, &b.posts[i]); err != nil {
			return err
		}
	}

	stockRepo := j.stocks.WithTx(tx)
	for i := range b.stocks {
		if err := stockRepo.Upsert(ctx, &b.stocks[i]); err != nil {
			return err
		}
	}

	for _, step := range j.preCommit {
		if err := step(ctx, tx, b.posts); err != nil {
			return errs.Wrap(err, "pre-commit step failed")
		}
	}

	return nil
}

func (j *Job) archivePrices(ctx context.Context, log *zap.Logger, runID uuid.UUID, prices []models.DailyPrice) {
	if j.archive == nil || len(prices) == 0 {
		return
	}

	if err := j.archive.SaveDailyPrices(ctx, runID.String(), prices); err != nil {
		log.Warn("failed to archive daily prices", zap.Error(err))
		return
	}

	metrics.IngestRows.WithLabelValues("daily_prices").Add(float64(len(prices)))
}

func (j *Job) notifyFailure(ctx context.Context, log *zap.Logger, runID uuid.UUID, runErr error) {
	if j.notifier == nil {
		return
	}

	// the run context may already be past its deadline
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := j.notifier.NotifyFailure(notifyCtx, runID.String(), runErr); err != nil {
		log.Warn("failed to send failure notification", zap.Error(err))
	}
}

func (j *Job) skip(result *RunResult, kind string) {
	result.Skipped++
	metrics.IngestSkipped.WithLabelValues(kind).Inc()
}

// IsSkippedRun reports whether err means the run did not start because
// another run holds the lock
func IsSkippedRun(err error) bool {
	return errors.Is(err, errs.ErrJobRunning)
}
