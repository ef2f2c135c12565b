package news

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"options-trading-bot/internal/logger"
	"options-trading-bot/internal/trace"
	"options-trading-bot/internal/types"
)

// Completer produces a text completion for a system and user prompt. The
// advisory service's client satisfies it; a nil completer drops the analyzer
// down to keyword scoring.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Analyzer scores scraped headlines into a per-symbol sentiment. One
// completion covers all headlines for a symbol; when the completion fails or
// no completer is wired, keyword scoring takes over so a sentiment always
// comes back.
type Analyzer struct {
	completer Completer
}

func NewAnalyzer(completer Completer) *Analyzer {
	return &Analyzer{completer: completer}
}

// Analyze aggregates the articles into one sentiment for the symbol.
func (a *Analyzer) Analyze(ctx context.Context, symbol string, articles []types.NewsArticle) types.NewsSentiment {
	if len(articles) == 0 {
		return types.NewsSentiment{
			Symbol:           symbol,
			OverallSentiment: "neutral",
			Summary:          "no recent headlines",
			Timestamp:        time.Now().Unix(),
		}
	}

	if a.completer != nil {
		if sentiment, err := a.analyzeWithCompleter(ctx, symbol, articles); err == nil {
			return sentiment
		} else {
			logger.Warn(ctx, "Headline analysis completion failed, using keyword scoring",
				"symbol", symbol, "error", err.Error())
		}
	}
	return a.analyzeWithKeywords(symbol, articles)
}

const analyzerSystem = `You are a financial news analyst. You score recent headlines about a stock for options trading. Respond ONLY with valid JSON, no prose.`

func (a *Analyzer) analyzeWithCompleter(ctx context.Context, symbol string, articles []types.NewsArticle) (types.NewsSentiment, error) {
	ctx, span := trace.StartSpan(ctx, "analyze-headlines")
	defer span.End()

	var b strings.Builder
	fmt.Fprintf(&b, "Score the overall sentiment of these recent headlines about %s:\n\n", symbol)
	for i, art := range articles {
		fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, art.Source, art.Title)
		if art.Content != "" {
			summary := art.Content
			if len(summary) > 300 {
				summary = summary[:300]
			}
			fmt.Fprintf(&b, "   %s\n", summary)
		}
	}
	b.WriteString(`
Respond with JSON matching this schema:
{
  "sentiment": "positive|negative|neutral|mixed",
  "score": -1.0 to 1.0,
  "confidence": 0.0 to 1.0,
  "summary": "one sentence"
}`)

	raw, err := a.completer.Complete(ctx, analyzerSystem, b.String())
	if err != nil {
		return types.NewsSentiment{}, err
	}

	var parsed struct {
		Sentiment  string  `json:"sentiment"`
		Score      float64 `json:"score"`
		Confidence float64 `json:"confidence"`
		Summary    string  `json:"summary"`
	}
	if err := json.Unmarshal([]byte(stripFences(raw)), &parsed); err != nil {
		return types.NewsSentiment{}, fmt.Errorf("parse sentiment response: %w", err)
	}
	label := strings.ToLower(strings.TrimSpace(parsed.Sentiment))
	switch label {
	case "positive", "negative", "neutral", "mixed":
	default:
		return types.NewsSentiment{}, fmt.Errorf("unknown sentiment label %q", parsed.Sentiment)
	}

	return types.NewsSentiment{
		Symbol:           symbol,
		OverallSentiment: label,
		OverallScore:     clampScore(parsed.Score),
		Confidence:       clampUnit(parsed.Confidence),
		Summary:          parsed.Summary,
		Headlines:        len(articles),
		Timestamp:        time.Now().Unix(),
	}, nil
}

var positiveWords = []string{
	"beat", "beats", "surge", "surges", "rally", "record", "upgrade",
	"growth", "profit", "strong", "bullish", "soars", "jumps", "gains",
	"raises", "outperform", "buyback", "dividend",
}

var negativeWords = []string{
	"miss", "misses", "falls", "drops", "plunge", "plunges", "downgrade",
	"lawsuit", "recall", "cuts", "weak", "bearish", "slump", "decline",
	"loss", "warns", "probe", "layoffs", "bankruptcy",
}

// analyzeWithKeywords scores each headline by keyword hits. Crude, but it
// never needs the network and never fails.
func (a *Analyzer) analyzeWithKeywords(symbol string, articles []types.NewsArticle) types.NewsSentiment {
	positive, negative := 0, 0
	total := 0.0
	for _, art := range articles {
		text := strings.ToLower(art.Title + " " + art.Content)
		pos, neg := 0, 0
		for _, w := range positiveWords {
			if strings.Contains(text, w) {
				pos++
			}
		}
		for _, w := range negativeWords {
			if strings.Contains(text, w) {
				neg++
			}
		}
		switch {
		case pos > neg:
			positive++
		case neg > pos:
			negative++
		}
		if pos+neg > 0 {
			total += float64(pos-neg) / float64(pos+neg)
		}
	}

	score := total / float64(len(articles))
	label := "neutral"
	switch {
	case positive > 0 && negative > 0 && absInt(positive-negative) <= 1:
		label = "mixed"
	case score > 0.15:
		label = "positive"
	case score < -0.15:
		label = "negative"
	}

	return types.NewsSentiment{
		Symbol:           symbol,
		OverallSentiment: label,
		OverallScore:     clampScore(score),
		Confidence:       keywordConfidence(len(articles), positive, negative),
		Summary: fmt.Sprintf("%d headlines scored by keywords: %d positive, %d negative",
			len(articles), positive, negative),
		Headlines: len(articles),
		Timestamp: time.Now().Unix(),
	}
}

// keywordConfidence scales with headline count and drops when the signals
// disagree.
func keywordConfidence(count, positive, negative int) float64 {
	var base float64
	switch {
	case count >= 10:
		base = 0.6
	case count >= 5:
		base = 0.45
	case count >= 3:
		base = 0.3
	default:
		base = 0.2
	}
	signals := positive + negative
	if signals > 0 {
		dominant := positive
		if negative > dominant {
			dominant = negative
		}
		base *= float64(dominant) / float64(signals)
	}
	return base
}

// stripFences removes a markdown code fence wrapper if the model added one.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func clampScore(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
