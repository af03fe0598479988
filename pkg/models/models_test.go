package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestMeanSentiment(t *testing.T) {
	tests := []struct {
		name     string
		history  []HistoricalSentiment
		expected float64
	}{
		{name: "empty history", history: nil, expected: 0},
		{name: "single day", history: []HistoricalSentiment{{SentimentAvg: 0.4}}, expected: 0.4},
		{
			name: "several days",
			history: []HistoricalSentiment{
				{SentimentAvg: 0.5},
				{SentimentAvg: -0.25},
				{SentimentAvg: 0.5},
				{SentimentAvg: 0.25},
			},
			expected: 0.25,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MeanSentiment(tt.history)
			if got != tt.expected {
				t.Errorf("Expected %.3f, got %.3f", tt.expected, got)
			}
		})
	}
}

func TestLatestClose(t *testing.T) {
	if LatestClose(nil) != nil {
		t.Fatal("Expected nil price for empty bars")
	}

	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	bars := []DailyPrice{
		{Date: day, Close: decimal.RequireFromString("101.5")},
		{Date: day.AddDate(0, 0, 2), Close: decimal.RequireFromString("104.25")},
		{Date: day.AddDate(0, 0, 1), Close: decimal.RequireFromString("99")},
	}

	got := LatestClose(bars)
	if got == nil || *got != 104.25 {
		t.Errorf("Expected latest close 104.25, got %v", got)
	}
}

func TestLabel(t *testing.T) {
	cases := map[float64]string{
		0.05:  "positive",
		0.6:   "positive",
		-0.05: "negative",
		0.0:   "neutral",
		0.049: "neutral",
	}
	for score, expected := range cases {
		if got := Label(score); got != expected {
			t.Errorf("Label(%.3f) = %s, expected %s", score, got, expected)
		}
	}
}
