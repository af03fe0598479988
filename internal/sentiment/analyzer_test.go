package sentiment

import (
	"context"
	"math"
	"testing"

	"github.com/selivandex/market-pulse/pkg/models"
)

func TestAnalyzer_Score(t *testing.T) {
	analyzer := NewAnalyzer()

	tests := []struct {
		name     string
		text     string
		expected string // positive, negative, or neutral
	}{
		{
			name:     "bullish text",
			text:     "NVDA rally continues, bulls are in control, massive gains incoming!",
			expected: "positive",
		},
		{
			name:     "bearish text",
			text:     "Market crash imminent, bears dominating, massive dump expected, panic selling",
			expected: "negative",
		},
		{
			name:     "neutral text",
			text:     "AAPL price remains flat today at current levels",
			expected: "neutral",
		},
		{
			name:     "negated positive",
			text:     "this is not bullish at all",
			expected: "negative",
		},
		{
			name:     "empty text",
			text:     "",
			expected: "neutral",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scores, err := analyzer.Score(context.Background(), tt.text)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}

			if got := models.Label(scores.Compound); got != tt.expected {
				t.Errorf("Expected %s sentiment, got %s (compound: %.3f)",
					tt.expected, got, scores.Compound)
			}
		})
	}
}

func TestAnalyzer_ScoresAreBounded(t *testing.T) {
	analyzer := NewAnalyzer()

	texts := []string{
		"",
		"moon moon moon moon moon moon moon moon moon moon moon moon",
		"crash crash crash fraud scam bankrupt rekt dump",
		"great earnings but terrible guidance",
		"$TSLA to the moon",
	}

	for _, text := range texts {
		s := analyzer.Analyze(text)

		if s.Compound < -1 || s.Compound > 1 {
			t.Errorf("Compound out of range for %q: %f", text, s.Compound)
		}
		for _, p := range []float64{s.Positive, s.Negative, s.Neutral} {
			if p < 0 || p > 1 {
				t.Errorf("Proportion out of range for %q: %+v", text, s)
			}
		}
		if sum := s.Positive + s.Negative + s.Neutral; math.Abs(sum-1) > 0.01 {
			t.Errorf("Proportions should sum to ~1 for %q, got %f", text, sum)
		}
	}
}

func TestAnalyzer_EmptyTextIsNeutral(t *testing.T) {
	s := NewAnalyzer().Analyze("   ")
	if s != (models.SentimentScores{Neutral: 1}) {
		t.Errorf("Expected fully neutral scores, got %+v", s)
	}
}

func TestNormalize(t *testing.T) {
	if got := normalize(0); got != 0 {
		t.Errorf("normalize(0) = %f", got)
	}
	if got := normalize(4); math.Abs(got-4/math.Sqrt(31)) > 1e-9 {
		t.Errorf("normalize(4) = %f", got)
	}
	if got := normalize(-1e9); got < -1 {
		t.Errorf("normalize should clamp, got %f", got)
	}
}
