package sentiment

import (
	"context"
	"math"
	"regexp"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/selivandex/market-pulse/pkg/logger"
	"github.com/selivandex/market-pulse/pkg/models"
)

// Aggregator rolls scored posts up into daily per-symbol sentiment rows.
// It runs inside the ingest transaction so the aggregates commit or roll
// back together with the posts they were computed from.
type Aggregator struct {
	repo     *Repository
	matchers map[string]*regexp.Regexp
	symbols  []string
	now      func() time.Time
}

// NewAggregator creates new sentiment aggregator for symbols
func NewAggregator(repo *Repository, symbols []string) *Aggregator {
	matchers := make(map[string]*regexp.Regexp, len(symbols))
	for _, s := range symbols {
		// $SYM or SYM as a whole word, case-sensitive
		matchers[s] = regexp.MustCompile(`(^|[^A-Za-z0-9_$])\$?` + regexp.QuoteMeta(s) + `($|[^A-Za-z0-9_])`)
	}

	return &Aggregator{
		repo:     repo,
		matchers: matchers,
		symbols:  symbols,
		now:      time.Now,
	}
}

// Aggregate recomputes the rows touched by posts using tx. Each touched
// (symbol, day) is rebuilt from every stored post of that day, so a run
// whose listing holds only part of a day does not shrink its aggregate.
// posts must already be written through tx.
func (a *Aggregator) Aggregate(ctx context.Context, tx *sqlx.Tx, posts []models.Post) error {
	runDate := a.now()
	repo := a.repo.WithTx(tx)

	touched := make(map[rowKey]bool)
	days := make(map[time.Time]bool)
	for _, row := range a.Compute(posts, runDate) {
		touched[rowKey{entity: row.Entity, day: row.Date}] = true
		days[row.Date] = true
	}

	var stored []models.Post
	for day := range days {
		dayPosts, err := repo.PostsOnDay(ctx, day, day.Equal(Day(runDate)))
		if err != nil {
			return err
		}
		stored = append(stored, dayPosts...)
	}

	written := 0
	for _, row := range a.Compute(stored, runDate) {
		if !touched[rowKey{entity: row.Entity, day: row.Date}] {
			continue
		}
		if err := repo.UpsertDaily(ctx, &row); err != nil {
			return err
		}
		written++
	}

	logger.Debug("sentiment aggregates computed",
		zap.Int("posts", len(posts)),
		zap.Int("stored_posts", len(stored)),
		zap.Int("rows", written),
	)
	return nil
}

type rowKey struct {
	entity string
	day    time.Time
}

// Compute buckets posts by (symbol, UTC day). Posts without a timestamp
// fall into runDate's day. Symbols with no mentions produce no rows.
func (a *Aggregator) Compute(posts []models.Post, runDate time.Time) []models.SentimentData {
	buckets := make(map[rowKey][]float64)
	for _, p := range posts {
		text := p.Title + " " + p.Selftext

		day := Day(runDate)
		if p.CreatedUTC != nil {
			day = Day(*p.CreatedUTC)
		}

		for _, sym := range a.symbols {
			if a.matchers[sym].MatchString(text) {
				k := rowKey{entity: sym, day: day}
				buckets[k] = append(buckets[k], p.SentimentCompound)
			}
		}
	}

	rows := make([]models.SentimentData, 0, len(buckets))
	for k, scores := range buckets {
		row := models.SentimentData{
			Entity:    k.entity,
			Date:      k.day,
			PostCount: len(scores),
		}
		for _, c := range scores {
			switch models.Label(c) {
			case "positive":
				row.PositiveCount++
			case "negative":
				row.NegativeCount++
			default:
				row.NeutralCount++
			}
		}
		row.SentimentAvg, row.SentimentStddev = meanStddev(scores)
		rows = append(rows, row)
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Entity != rows[j].Entity {
			return rows[i].Entity < rows[j].Entity
		}
		return rows[i].Date.Before(rows[j].Date)
	})

	return rows
}

// meanStddev returns the mean and population standard deviation
func meanStddev(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var sq float64
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(sq / float64(len(values)))
}
