package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/tuexperto/taxsearch/internal/db/elastic"
	"github.com/tuexperto/taxsearch/internal/domain"
	"github.com/tuexperto/taxsearch/internal/domain/channel"
)

// mockSearcher implements the consumer interface for tests.
type mockSearcher struct {
	searchFn func(ctx context.Context, index string, body map[string]any) (*elastic.SearchResponse, error)
	lastBody map[string]any
}

func (m *mockSearcher) Search(ctx context.Context, index string, body map[string]any) (*elastic.SearchResponse, error) {
	m.lastBody = body
	if m.searchFn != nil {
		return m.searchFn(ctx, index, body)
	}
	return &elastic.SearchResponse{}, nil
}

func calendarDescriptor() *channel.Descriptor {
	d := channel.Defaults()[channel.Calendar]
	return &d
}

func officialDescriptor() *channel.Descriptor {
	d := channel.Defaults()[channel.Official]
	return &d
}

func testVector(dims int) []float32 {
	vec := make([]float32, dims)
	for i := range vec {
		vec[i] = 0.1
	}
	return vec
}

func TestSearch_HybridBody(t *testing.T) {
	ms := &mockSearcher{}
	repo := New(ms, time.Second, 1200, zap.NewNop())

	d := calendarDescriptor()
	if _, err := repo.Search(context.Background(), d, "modelo 303", testVector(384), 5); err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	knn, ok := ms.lastBody["knn"].(map[string]any)
	if !ok {
		t.Fatal("expected knn clause in body")
	}
	if knn["field"] != "description_embedding" {
		t.Errorf("knn field = %v", knn["field"])
	}
	if knn["k"] != 5 {
		t.Errorf("knn k = %v, want 5", knn["k"])
	}
	if knn["num_candidates"] != 50 {
		t.Errorf("num_candidates = %v, want 50", knn["num_candidates"])
	}
	if _, ok := ms.lastBody["query"]; !ok {
		t.Error("lexical clause must always be present")
	}
	if ms.lastBody["size"] != 5 {
		t.Errorf("size = %v, want 5", ms.lastBody["size"])
	}
}

func TestSearch_LexicalOnlyWithoutVector(t *testing.T) {
	ms := &mockSearcher{}
	repo := New(ms, time.Second, 1200, zap.NewNop())

	if _, err := repo.Search(context.Background(), calendarDescriptor(), "modelo 303", nil, 5); err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if _, ok := ms.lastBody["knn"]; ok {
		t.Error("knn clause must be absent without a vector")
	}
	if _, ok := ms.lastBody["query"]; !ok {
		t.Error("lexical clause must be present")
	}
}

func TestSearch_LexicalOnlyChannelIgnoresVector(t *testing.T) {
	ms := &mockSearcher{}
	repo := New(ms, time.Second, 1200, zap.NewNop())

	// official has no vector field, the vector must not leak into the body
	if _, err := repo.Search(context.Background(), officialDescriptor(), "certificado digital", testVector(384), 5); err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if _, ok := ms.lastBody["knn"]; ok {
		t.Error("knn clause must be absent for lexical-only channels")
	}
}

func TestSearch_BoostedFields(t *testing.T) {
	ms := &mockSearcher{}
	repo := New(ms, time.Second, 1200, zap.NewNop())

	if _, err := repo.Search(context.Background(), calendarDescriptor(), "iva", nil, 5); err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	query := ms.lastBody["query"].(map[string]any)
	boolQ := query["bool"].(map[string]any)
	should := boolQ["should"].([]any)
	mm := should[0].(map[string]any)["multi_match"].(map[string]any)
	fields := mm["fields"].([]string)

	want := []string{"description^2", "tax_model^1.5", "tax_type"}
	if len(fields) != len(want) {
		t.Fatalf("fields = %v, want %v", fields, want)
	}
	for i := range want {
		if fields[i] != want[i] {
			t.Errorf("fields[%d] = %q, want %q", i, fields[i], want[i])
		}
	}
}

func TestSearch_MapsHits(t *testing.T) {
	ms := &mockSearcher{
		searchFn: func(_ context.Context, _ string, _ map[string]any) (*elastic.SearchResponse, error) {
			return &elastic.SearchResponse{
				MaxScore: 8.0,
				Hits: []elastic.Hit{
					{ID: "1", Score: 8.0, Source: map[string]any{
						"description":   "Modelo 303 primer trimestre",
						"deadline_date": "2026-04-20",
						"tax_model":     "303",
					}},
					{ID: "2", Score: 4.0, Source: map[string]any{
						"description": "Modelo 130 pago fraccionado",
					}},
				},
			}, nil
		},
	}
	repo := New(ms, time.Second, 1200, zap.NewNop())

	items, err := repo.Search(context.Background(), calendarDescriptor(), "modelo 303", nil, 5)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}

	if items[0].Text() != "Modelo 303 primer trimestre" {
		t.Errorf("text = %q", items[0].Text())
	}
	if items[0].Score() != 1.0 {
		t.Errorf("top score = %f, want 1.0", items[0].Score())
	}
	if items[1].Score() != 0.5 {
		t.Errorf("second score = %f, want 0.5", items[1].Score())
	}
	if items[0].Metadata()["deadline_date"] != "2026-04-20" {
		t.Errorf("metadata = %v", items[0].Metadata())
	}
	if items[0].Channel() != channel.Calendar {
		t.Errorf("channel = %v", items[0].Channel())
	}
}

func TestSearch_FallbackTextAndDropEmpty(t *testing.T) {
	ms := &mockSearcher{
		searchFn: func(_ context.Context, _ string, _ map[string]any) (*elastic.SearchResponse, error) {
			return &elastic.SearchResponse{
				MaxScore: 2.0,
				Hits: []elastic.Hit{
					{ID: "1", Score: 2.0, Source: map[string]any{
						"summary":      "Resumen de la resolución",
						"resource_url": "https://sede.agenciatributaria.gob.es/r/1",
					}},
					{ID: "2", Score: 1.0, Source: map[string]any{}},
				},
			}, nil
		},
	}
	repo := New(ms, time.Second, 1200, zap.NewNop())

	items, err := repo.Search(context.Background(), officialDescriptor(), "resolución", nil, 5)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item (textless hit dropped), got %d", len(items))
	}
	if items[0].Text() != "Resumen de la resolución" {
		t.Errorf("fallback text = %q", items[0].Text())
	}
}

func TestSearch_TruncatesText(t *testing.T) {
	long := make([]rune, 100)
	for i := range long {
		long[i] = 'á'
	}
	ms := &mockSearcher{
		searchFn: func(_ context.Context, _ string, _ map[string]any) (*elastic.SearchResponse, error) {
			return &elastic.SearchResponse{
				MaxScore: 1.0,
				Hits: []elastic.Hit{
					{ID: "1", Score: 1.0, Source: map[string]any{"description": string(long)}},
				},
			}, nil
		},
	}
	repo := New(ms, time.Second, 40, zap.NewNop())

	items, err := repo.Search(context.Background(), calendarDescriptor(), "q", nil, 5)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if got := len([]rune(items[0].Text())); got != 40 {
		t.Errorf("truncated length = %d runes, want 40", got)
	}
}

func TestSearch_BackendError(t *testing.T) {
	ms := &mockSearcher{
		searchFn: func(_ context.Context, _ string, _ map[string]any) (*elastic.SearchResponse, error) {
			return nil, errors.New("connection refused")
		},
	}
	repo := New(ms, time.Second, 1200, zap.NewNop())

	_, err := repo.Search(context.Background(), calendarDescriptor(), "q", nil, 5)
	if !errors.Is(err, domain.ErrChannelUnavailable) {
		t.Errorf("expected ErrChannelUnavailable, got %v", err)
	}
}
