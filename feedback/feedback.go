package feedback

import (
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/feedmesh/core"
)

// Sentiment classifies the tone of a feedback item.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

// Item is a single piece of feedback flowing through the pipeline.
type Item struct {
	ID          string
	Source      string
	Text        string
	Rating      int // 0 when the source supplies none
	SourceAgent string
	Sentiment   Sentiment
	Tags        []string
	ReceivedAt  time.Time
}

// FromMessage extracts a feedback Item from a json message carrying a
// "feedback" object. Returns ok=false for json messages without a feedback
// payload, which the pipeline silently skips.
func FromMessage(msg core.Message) (Item, bool) {
	jc, ok := msg.Content.(core.JSONContent)
	if !ok {
		return Item{}, false
	}
	raw, ok := jc.Data["feedback"].(map[string]any)
	if !ok {
		return Item{}, false
	}

	item := Item{SourceAgent: msg.FromAgent}
	item.ID, _ = raw["id"].(string)
	item.Source, _ = raw["source"].(string)
	item.Text, _ = raw["text"].(string)
	if rating, ok := raw["rating"].(float64); ok {
		item.Rating = int(rating)
	}
	if tags, ok := raw["tags"].([]any); ok {
		for _, t := range tags {
			if s, ok := t.(string); ok {
				item.Tags = append(item.Tags, s)
			}
		}
	}
	return item, true
}

// validate is the first pipeline stage: required fields must be present.
func validate(item Item) error {
	if strings.TrimSpace(item.Text) == "" {
		return fmt.Errorf("feedback text is required")
	}
	if item.Source == "" {
		return fmt.Errorf("feedback source is required")
	}
	if item.Rating < 0 || item.Rating > 5 {
		return fmt.Errorf("feedback rating %d out of range [0,5]", item.Rating)
	}
	return nil
}

// enrich normalizes the item and fills derived fields.
func enrich(item Item) Item {
	item.Text = strings.Join(strings.Fields(item.Text), " ")
	if item.ID == "" {
		item.ID = core.NewID()
	}
	if item.ReceivedAt.IsZero() {
		item.ReceivedAt = time.Now().UTC()
	}
	if item.SourceAgent != "" {
		item.Tags = appendUnique(item.Tags, "agent:"+item.SourceAgent)
	}
	return item
}

func appendUnique(tags []string, tag string) []string {
	for _, t := range tags {
		if t == tag {
			return tags
		}
	}
	return append(tags, tag)
}
