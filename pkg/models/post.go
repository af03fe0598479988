package models

import "time"

// SentimentScores is the four-valued output of a sentiment scorer.
// Positive, Negative and Neutral are proportions in [0,1] summing to ~1;
// Compound is normalized to [-1,1].
type SentimentScores struct {
	Positive float64 `json:"positive"`
	Negative float64 `json:"negative"`
	Neutral  float64 `json:"neutral"`
	Compound float64 `json:"compound"`
}

// PostRecord is a post as returned by a social-post fetcher, before scoring.
//
// CreatedUTC is left untyped because sources disagree: a time.Time, epoch
// seconds as a number, or a numeric string are all accepted by the ingest job.
type PostRecord struct {
	CreatedUTC  interface{} `json:"created_utc"`
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Selftext    string      `json:"selftext"`
	URL         string      `json:"url"`
	Subreddit   string      `json:"subreddit"`
	Author      string      `json:"author"`
	Score       int         `json:"score"`
	NumComments int         `json:"num_comments"`
}

// Post is a stored, scored social post
type Post struct {
	CreatedUTC        *time.Time `db:"created_utc"`
	ID                string     `db:"id"`
	Title             string     `db:"title"`
	Selftext          string     `db:"selftext"`
	URL               string     `db:"url"`
	Subreddit         string     `db:"subreddit"`
	Author            string     `db:"author"`
	Score             int        `db:"score"`
	NumComments       int        `db:"num_comments"`
	SentimentPositive float64    `db:"sentiment_positive"`
	SentimentNegative float64    `db:"sentiment_negative"`
	SentimentNeutral  float64    `db:"sentiment_neutral"`
	SentimentCompound float64    `db:"sentiment_compound"`
}

// Sentiment returns the post scores as a SentimentScores value
func (p *Post) Sentiment() SentimentScores {
	return SentimentScores{
		Positive: p.SentimentPositive,
		Negative: p.SentimentNegative,
		Neutral:  p.SentimentNeutral,
		Compound: p.SentimentCompound,
	}
}

// SetSentiment copies scores onto the post columns
func (p *Post) SetSentiment(s SentimentScores) {
	p.SentimentPositive = s.Positive
	p.SentimentNegative = s.Negative
	p.SentimentNeutral = s.Neutral
	p.SentimentCompound = s.Compound
}

// Comment is a stored comment. Only the parent link is persisted; children
// are derived on read.
type Comment struct {
	CreatedUTC        *time.Time `db:"created_utc"`
	ParentID          *string    `db:"parent_id"`
	ID                string     `db:"id"`
	Body              string     `db:"body"`
	Author            string     `db:"author"`
	PostID            string     `db:"post_id"`
	Score             int        `db:"score"`
	SentimentPositive float64    `db:"sentiment_positive"`
	SentimentNegative float64    `db:"sentiment_negative"`
	SentimentNeutral  float64    `db:"sentiment_neutral"`
	SentimentCompound float64    `db:"sentiment_compound"`
}

// Sentiment returns the comment scores as a SentimentScores value
func (c *Comment) Sentiment() SentimentScores {
	return SentimentScores{
		Positive: c.SentimentPositive,
		Negative: c.SentimentNegative,
		Neutral:  c.SentimentNeutral,
		Compound: c.SentimentCompound,
	}
}
