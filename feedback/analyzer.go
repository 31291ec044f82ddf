package feedback

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/feedmesh/model"
)

// Analyzer assigns a sentiment to a feedback item.
type Analyzer interface {
	Analyze(ctx context.Context, item Item) (Sentiment, error)
}

// KeywordAnalyzer is a deterministic Analyzer scoring by keyword hits. It
// serves tests and offline runs where no model is configured.
type KeywordAnalyzer struct {
	positive []string
	negative []string
}

// Compile-time check that KeywordAnalyzer satisfies Analyzer.
var _ Analyzer = (*KeywordAnalyzer)(nil)

// NewKeywordAnalyzer returns an Analyzer with a small built-in lexicon.
func NewKeywordAnalyzer() *KeywordAnalyzer {
	return &KeywordAnalyzer{
		positive: []string{"good", "great", "love", "excellent", "helpful", "fast", "easy"},
		negative: []string{"bad", "poor", "hate", "terrible", "broken", "slow", "confusing", "bug"},
	}
}

// Analyze implements Analyzer. Rating dominates when present; otherwise the
// keyword balance decides.
func (a *KeywordAnalyzer) Analyze(_ context.Context, item Item) (Sentiment, error) {
	if item.Rating >= 4 {
		return SentimentPositive, nil
	}
	if item.Rating != 0 && item.Rating <= 2 {
		return SentimentNegative, nil
	}

	text := strings.ToLower(item.Text)
	var score int
	for _, w := range a.positive {
		if strings.Contains(text, w) {
			score++
		}
	}
	for _, w := range a.negative {
		if strings.Contains(text, w) {
			score--
		}
	}
	switch {
	case score > 0:
		return SentimentPositive, nil
	case score < 0:
		return SentimentNegative, nil
	default:
		return SentimentNeutral, nil
	}
}

const sentimentPrompt = `Classify the sentiment of the following user feedback.
Answer with exactly one word: positive, negative or neutral.

Feedback: %s`

// ModelAnalyzer delegates sentiment classification to an LLM.
type ModelAnalyzer struct {
	model model.Model
}

// Compile-time check that ModelAnalyzer satisfies Analyzer.
var _ Analyzer = (*ModelAnalyzer)(nil)

// NewModelAnalyzer returns an Analyzer backed by the given model.
func NewModelAnalyzer(m model.Model) *ModelAnalyzer {
	return &ModelAnalyzer{model: m}
}

// Analyze implements Analyzer. Unparseable model output is an error so the
// pipeline can report it instead of guessing.
func (a *ModelAnalyzer) Analyze(ctx context.Context, item Item) (Sentiment, error) {
	out, err := a.model.Complete(ctx, fmt.Sprintf(sentimentPrompt, item.Text))
	if err != nil {
		return "", fmt.Errorf("sentiment completion: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(out)) {
	case "positive":
		return SentimentPositive, nil
	case "negative":
		return SentimentNegative, nil
	case "neutral":
		return SentimentNeutral, nil
	}
	return "", fmt.Errorf("unexpected sentiment answer %q", strings.TrimSpace(out))
}
