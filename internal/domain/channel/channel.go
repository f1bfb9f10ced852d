// Package channel defines the closed set of content channels and their
// per-channel search schema descriptors.
package channel

import (
	"fmt"

	"github.com/tuexperto/taxsearch/internal/domain"
)

// Channel identifies one content source.
type Channel string

// Known channels.
const (
	Forum      Channel = "forum"      // scraped forum/chat threads
	Regulatory Channel = "regulatory" // regulatory PDF documents
	Calendar   Channel = "calendar"   // tax calendar deadlines
	News       Channel = "news"       // news articles
	Official   Channel = "official"   // official agency resources
)

// All returns every known channel in priority order.
func All() []Channel {
	return []Channel{Calendar, Regulatory, Official, News, Forum}
}

// Parse validates a channel identifier.
func Parse(s string) (Channel, error) {
	switch Channel(s) {
	case Forum, Regulatory, Calendar, News, Official:
		return Channel(s), nil
	}
	return "", fmt.Errorf("%w: %q", domain.ErrUnknownChannel, s)
}

// String implements fmt.Stringer.
func (c Channel) String() string { return string(c) }

// BoostedField is a lexical search field with its boost weight.
type BoostedField struct {
	Name  string
	Boost float64
}

// Descriptor is the static search schema of one channel. Loaded at startup,
// read-only afterwards.
type Descriptor struct {
	Channel Channel

	// Index is the backing search index name.
	Index string

	// TextFields are the lexical match fields. The first entry is the primary
	// content field and must carry the highest boost.
	TextFields []BoostedField

	// FallbackField supplies display text when the primary field is empty.
	FallbackField string

	// MetadataFields is the fixed list of source fields copied into item metadata.
	MetadataFields []string

	// VectorField names the dense vector field. Empty means lexical-only.
	VectorField string

	// Space names the embedding space the vector field was indexed with.
	// Vectors from any other space must never be used against this channel.
	Space string

	// Dimensions is the vector dimensionality of the space.
	Dimensions int

	// Candidates is the KNN candidate pool size.
	Candidates int

	// Priority breaks score ties during fusion; lower wins.
	Priority int
}

// HasVector reports whether the channel supports semantic search.
func (d *Descriptor) HasVector() bool {
	return d.VectorField != "" && d.Space != ""
}

// PrimaryField returns the primary content field name.
func (d *Descriptor) PrimaryField() string {
	if len(d.TextFields) == 0 {
		return ""
	}
	return d.TextFields[0].Name
}

// SourceFields returns every field the executor needs back from the backend.
func (d *Descriptor) SourceFields() []string {
	fields := make([]string, 0, len(d.MetadataFields)+2)
	if p := d.PrimaryField(); p != "" {
		fields = append(fields, p)
	}
	if d.FallbackField != "" {
		fields = append(fields, d.FallbackField)
	}
	fields = append(fields, d.MetadataFields...)
	return fields
}

// Table is the read-only descriptor registry keyed by channel.
type Table map[Channel]Descriptor

// Get looks up a channel's descriptor.
func (t Table) Get(c Channel) (Descriptor, error) {
	d, ok := t[c]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %q has no descriptor", domain.ErrUnknownChannel, c)
	}
	return d, nil
}

// Spaces returns the distinct embedding spaces used by the given channels,
// preserving first-seen order.
func (t Table) Spaces(channels []Channel) []string {
	seen := make(map[string]bool)
	var spaces []string
	for _, c := range channels {
		d, ok := t[c]
		if !ok || !d.HasVector() {
			continue
		}
		if !seen[d.Space] {
			seen[d.Space] = true
			spaces = append(spaces, d.Space)
		}
	}
	return spaces
}

// Defaults returns the production descriptor table. Field names and boosts
// mirror the live indices; config may override them.
func Defaults() Table {
	return Table{
		Forum: {
			Channel: Forum,
			Index:   "telegram_threads",
			TextFields: []BoostedField{
				{Name: "content", Boost: 2.0},
				{Name: "first_message", Boost: 1.0},
				{Name: "last_message", Boost: 1.0},
				{Name: "topics", Boost: 0.75},
				{Name: "keywords", Boost: 0.75},
			},
			FallbackField:  "first_message",
			MetadataFields: []string{"thread_id", "topics", "keywords", "quality_score", "message_count", "date"},
			VectorField:    "content_embedding",
			Space:          "e5",
			Dimensions:     384,
			Candidates:     50,
			Priority:       5,
		},
		Regulatory: {
			Channel: Regulatory,
			Index:   "pdf_documents",
			TextFields: []BoostedField{
				{Name: "content", Boost: 2.0},
				{Name: "document_title", Boost: 1.5},
				{Name: "categories", Boost: 0.75},
			},
			FallbackField:  "summary",
			MetadataFields: []string{"document_id", "document_title", "categories", "source_url", "last_updated"},
			VectorField:    "content_embedding",
			Space:          "e5",
			Dimensions:     384,
			Candidates:     50,
			Priority:       2,
		},
		Calendar: {
			Channel: Calendar,
			Index:   "calendar_deadlines",
			TextFields: []BoostedField{
				{Name: "description", Boost: 2.0},
				{Name: "tax_model", Boost: 1.5},
				{Name: "tax_type", Boost: 1.0},
			},
			MetadataFields: []string{"deadline_id", "deadline_date", "tax_type", "tax_model", "quarter", "region", "source_url"},
			VectorField:    "description_embedding",
			Space:          "e5",
			Dimensions:     384,
			Candidates:     50,
			Priority:       1,
		},
		News: {
			Channel: News,
			Index:   "news_articles",
			TextFields: []BoostedField{
				{Name: "content", Boost: 2.0},
				{Name: "article_title", Boost: 1.5},
			},
			FallbackField:  "summary",
			MetadataFields: []string{"article_url", "article_title", "published_at", "category"},
			VectorField:    "content_embedding",
			Space:          "openai",
			Dimensions:     1536,
			Candidates:     50,
			Priority:       4,
		},
		Official: {
			Channel: Official,
			Index:   "aeat_resources",
			TextFields: []BoostedField{
				{Name: "content", Boost: 2.0},
				{Name: "resource_title", Boost: 1.5},
				{Name: "summary", Boost: 1.0},
			},
			FallbackField:  "summary",
			MetadataFields: []string{"resource_url", "resource_title", "section"},
			Priority:       3,
		},
	}
}
