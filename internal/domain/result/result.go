// Package result defines the retrieved item value object.
package result

import (
	"github.com/tuexperto/taxsearch/internal/domain/channel"
)

// DefaultMaxTextLen is the display text truncation limit in runes.
const DefaultMaxTextLen = 1200

// Item is one retrieved unit from a single channel.
type Item struct {
	text     string
	metadata map[string]any
	score    float64
	channel  channel.Channel
}

// New creates a result item. Score is expected to be normalized to [0,1].
func New(text string, metadata map[string]any, score float64, ch channel.Channel) Item {
	if metadata == nil {
		metadata = map[string]any{}
	}
	return Item{text: text, metadata: metadata, score: score, channel: ch}
}

// Text returns the display text.
func (i *Item) Text() string { return i.text }

// Metadata returns the channel-specific metadata map.
func (i *Item) Metadata() map[string]any { return i.metadata }

// Score returns the normalized relevance score.
func (i *Item) Score() float64 { return i.score }

// Channel returns the originating channel.
func (i *Item) Channel() channel.Channel { return i.channel }

// Truncate returns s cut to at most maxLen runes.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultMaxTextLen
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen])
}
