package sentiment

import (
	"context"
	"math"
	"strings"

	"github.com/selivandex/market-pulse/pkg/models"
)

// Scorer turns free text into sentiment scores
type Scorer interface {
	Score(ctx context.Context, text string) (models.SentimentScores, error)
}

const (
	// compoundAlpha approximates the max expected sum of valences
	compoundAlpha = 15.0

	negationScalar = -0.74
	boosterIncr    = 0.293
	negationWindow = 3

	// lexicon weights are in [0,1]; valences are scaled to [-4,4]
	valenceScale = 4.0
)

var negations = map[string]bool{
	"not": true, "no": true, "never": true, "none": true, "nothing": true,
	"dont": true, "don't": true, "doesnt": true, "doesn't": true,
	"isnt": true, "isn't": true, "wont": true, "won't": true,
	"cant": true, "can't": true, "aint": true, "ain't": true, "without": true,
}

var boosters = map[string]float64{
	"very": boosterIncr, "really": boosterIncr, "extremely": boosterIncr,
	"super": boosterIncr, "hugely": boosterIncr, "massive": boosterIncr,
	"massively": boosterIncr, "totally": boosterIncr, "absolutely": boosterIncr,
	"slightly": -boosterIncr, "somewhat": -boosterIncr, "barely": -boosterIncr,
	"kinda": -boosterIncr,
}

// Analyzer performs keyword-based sentiment analysis. It is safe for
// concurrent use.
type Analyzer struct {
	positiveWords map[string]float64
	negativeWords map[string]float64
}

// NewAnalyzer creates new sentiment analyzer
func NewAnalyzer() *Analyzer {
	return &Analyzer{
		positiveWords: buildPositiveWords(),
		negativeWords: buildNegativeWords(),
	}
}

// Score implements Scorer. Text with no known words scores fully neutral.
func (a *Analyzer) Score(_ context.Context, text string) (models.SentimentScores, error) {
	return a.Analyze(text), nil
}

// Analyze returns positive/negative/neutral proportions and a compound score
// normalized to [-1,1].
func (a *Analyzer) Analyze(text string) models.SentimentScores {
	words := tokenize(text)
	if len(words) == 0 {
		return models.SentimentScores{Neutral: 1}
	}

	valences := make([]float64, len(words))
	for i, word := range words {
		v := a.valence(word)
		if v == 0 {
			continue
		}

		// boosters and negations in the preceding window
		for j := 1; j <= negationWindow && i-j >= 0; j++ {
			prev := words[i-j]
			if b, ok := boosters[prev]; ok && j == 1 {
				if v > 0 {
					v += b
				} else {
					v -= b
				}
			}
			if negations[prev] {
				v *= negationScalar
				break
			}
		}

		valences[i] = v
	}

	var sum, posSum, negSum float64
	neutralCount := 0
	for _, v := range valences {
		sum += v
		switch {
		case v > 0:
			posSum += v + 1
		case v < 0:
			negSum += v - 1
		default:
			neutralCount++
		}
	}

	if posSum == 0 && negSum == 0 {
		return models.SentimentScores{Neutral: 1}
	}

	total := posSum + math.Abs(negSum) + float64(neutralCount)

	return models.SentimentScores{
		Positive: round(posSum/total, 3),
		Negative: round(math.Abs(negSum)/total, 3),
		Neutral:  round(float64(neutralCount)/total, 3),
		Compound: round(normalize(sum), 4),
	}
}

func (a *Analyzer) valence(word string) float64 {
	if w, ok := a.positiveWords[word]; ok {
		return w * valenceScale
	}
	if w, ok := a.negativeWords[word]; ok {
		return -w * valenceScale
	}
	return 0
}

func tokenize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	words := fields[:0]
	for _, f := range fields {
		// Clean punctuation
		f = strings.Trim(f, ".,!?;:\"()[]*_~$")
		if f != "" {
			words = append(words, f)
		}
	}
	return words
}

// normalize maps an unbounded valence sum into [-1,1]
func normalize(score float64) float64 {
	n := score / math.Sqrt(score*score+compoundAlpha)
	if n > 1.0 {
		return 1.0
	} else if n < -1.0 {
		return -1.0
	}
	return n
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// buildPositiveWords returns positive keywords for equities chatter
func buildPositiveWords() map[string]float64 {
	return map[string]float64{
		// General positive
		"bullish":      1.0,
		"bull":         0.9,
		"bulls":        0.9,
		"rally":        0.9,
		"surge":        0.8,
		"soar":         0.8,
		"soaring":      0.8,
		"moon":         0.7,
		"mooning":      0.7,
		"rocket":       0.7,
		"gain":         0.6,
		"gains":        0.6,
		"profit":       0.6,
		"profits":      0.6,
		"win":          0.6,
		"winning":      0.6,
		"green":        0.6,
		"up":           0.3,
		"rise":         0.5,
		"grow":         0.5,
		"growth":       0.5,
		"increase":     0.5,
		"positive":     0.5,
		"optimistic":   0.5,
		"good":         0.5,
		"great":        0.7,
		"strong":       0.5,
		"love":         0.7,
		"breakthrough": 0.6,
		"partnership":  0.5,
		"upgrade":      0.5,
		"innovation":   0.5,

		// Market specific
		"breakout":     0.7,
		"ath":          0.8, // all-time high
		"beat":         0.6,
		"beats":        0.6,
		"outperform":   0.6,
		"buyback":      0.5,
		"dividend":     0.4,
		"tendies":      0.7,
		"calls":        0.3,
		"undervalued":  0.6,
		"accumulation": 0.5,
	}
}

// buildNegativeWords returns negative keywords for equities chatter
func buildNegativeWords() map[string]float64 {
	return map[string]float64{
		// General negative
		"bearish":     1.0,
		"bear":        0.9,
		"bears":       0.9,
		"crash":       1.0,
		"dump":        0.9,
		"plunge":      0.8,
		"fall":        0.6,
		"drop":        0.6,
		"decline":     0.6,
		"loss":        0.7,
		"losses":      0.7,
		"red":         0.6,
		"down":        0.3,
		"negative":    0.5,
		"pessimistic": 0.5,
		"bad":         0.5,
		"terrible":    0.8,
		"weak":        0.5,
		"hate":        0.7,
		"fear":        0.6,
		"panic":       0.8,
		"sell":        0.4,
		"selloff":     0.7,
		"correction":  0.6,

		// Market specific
		"miss":         0.6,
		"missed":       0.6,
		"downgrade":    0.6,
		"bagholder":    0.7,
		"bagholding":   0.7,
		"puts":         0.3,
		"recession":    0.7,
		"layoffs":      0.6,
		"bankrupt":     1.0,
		"bankruptcy":   1.0,
		"fraud":        1.0,
		"scam":         1.0,
		"lawsuit":      0.7,
		"liquidation":  0.8,
		"capitulation": 0.8,
		"fud":          0.7, // fear, uncertainty, doubt
		"bubble":       0.6,
		"overvalued":   0.6,
		"rekt":         0.9,
	}
}
