// Package elastic wraps the Elasticsearch client behind the search-backend boundary.
package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8"
)

// Config holds connection parameters for the search backend.
type Config struct {
	Addrs    []string
	CloudID  string
	APIKey   string
	Username string
	Password string
}

// Client is a thin wrapper over the Elasticsearch client exposing the two
// operations the retrieval path needs: Ping and Search.
type Client struct {
	es *elasticsearch.Client
}

// NewClient creates an Elasticsearch client.
func NewClient(cfg Config) (*Client, error) {
	if len(cfg.Addrs) == 0 && cfg.CloudID == "" {
		return nil, fmt.Errorf("addrs or cloud_id is required")
	}

	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addrs,
		CloudID:   cfg.CloudID,
		APIKey:    cfg.APIKey,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return &Client{es: es}, nil
}

// Ping checks cluster connectivity.
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("ping: %s", res.Status())
	}
	return nil
}

// Hit is one raw search hit.
type Hit struct {
	ID     string
	Score  float64
	Source map[string]any
}

// SearchResponse is the parsed hit list of one query.
type SearchResponse struct {
	MaxScore float64
	Hits     []Hit
}

// Search executes one query body against an index and returns the ranked hits.
func (c *Client) Search(ctx context.Context, index string, body map[string]any) (*SearchResponse, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(index),
		c.es.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("search %s: %s", index, res.Status())
	}

	var parsed struct {
		Hits struct {
			MaxScore *float64 `json:"max_score"`
			Hits     []struct {
				ID     string         `json:"_id"`
				Score  *float64       `json:"_score"`
				Source map[string]any `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode response %s: %w", index, err)
	}

	out := &SearchResponse{Hits: make([]Hit, 0, len(parsed.Hits.Hits))}
	if parsed.Hits.MaxScore != nil {
		out.MaxScore = *parsed.Hits.MaxScore
	}
	for _, h := range parsed.Hits.Hits {
		score := 0.0
		if h.Score != nil {
			score = *h.Score
		}
		out.Hits = append(out.Hits, Hit{ID: h.ID, Score: score, Source: h.Source})
	}
	return out, nil
}
