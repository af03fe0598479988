package models

import "time"

// Compound thresholds used to bucket a score into positive/negative/neutral
const (
	PositiveThreshold = 0.05
	NegativeThreshold = -0.05
)

// SentimentData is the daily sentiment aggregate for one entity (ticker)
type SentimentData struct {
	Date            time.Time `json:"date" db:"date"`
	Entity          string    `json:"entity" db:"entity"`
	ID              int64     `json:"id" db:"id"`
	PositiveCount   int       `json:"positive_count" db:"positive_count"`
	NegativeCount   int       `json:"negative_count" db:"negative_count"`
	NeutralCount    int       `json:"neutral_count" db:"neutral_count"`
	PostCount       int       `json:"post_count" db:"post_count"`
	CommentCount    int       `json:"comment_count" db:"comment_count"`
	SentimentAvg    float64   `json:"sentiment_avg" db:"sentiment_avg"`
	SentimentStddev float64   `json:"sentiment_stddev" db:"sentiment_stddev"`
}

// HistoricalSentiment is one day of sentiment history for a symbol
type HistoricalSentiment struct {
	Date         time.Time `json:"date" db:"date"`
	SentimentAvg float64   `json:"sentiment_avg" db:"sentiment_avg"`
	PostCount    int       `json:"post_count" db:"post_count"`
}

// Label classifies a compound score
func Label(compound float64) string {
	switch {
	case compound >= PositiveThreshold:
		return "positive"
	case compound <= NegativeThreshold:
		return "negative"
	default:
		return "neutral"
	}
}

// MeanSentiment averages SentimentAvg over the history; 0 for an empty list.
func MeanSentiment(history []HistoricalSentiment) float64 {
	if len(history) == 0 {
		return 0
	}

	var total float64
	for _, h := range history {
		total += h.SentimentAvg
	}
	return total / float64(len(history))
}
