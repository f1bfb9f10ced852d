package config

import (
	"strings"
	"testing"
)

func validConfig() Config {
	return Config{
		HTTP:     HTTPConfig{Port: 8080},
		Search:   SearchConfig{Addrs: []string{"http://localhost:9200"}},
		Identity: IdentityConfig{Addrs: []string{"localhost:6379"}},
		Embedding: EmbeddingConfig{
			Providers: map[string]ProviderConfig{"nebius": {APIKey: "k"}},
			Spaces: map[string]SpaceConfig{
				"e5": {Provider: "nebius", Model: "intfloat/multilingual-e5-small", Dimensions: 384},
			},
		},
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := validConfig()
	cfg.ApplyDefaults()

	if cfg.Retrieval.MaxTopK != 20 {
		t.Errorf("MaxTopK = %d", cfg.Retrieval.MaxTopK)
	}
	if cfg.Retrieval.DeadlineSec != 30 {
		t.Errorf("DeadlineSec = %d", cfg.Retrieval.DeadlineSec)
	}
	if cfg.Identity.SessionIdleHours != 24 {
		t.Errorf("SessionIdleHours = %d", cfg.Identity.SessionIdleHours)
	}
	if cfg.Identity.KeyPrefix != "taxsearch:" {
		t.Errorf("KeyPrefix = %q", cfg.Identity.KeyPrefix)
	}
	if cfg.Delivery.MaxAttempts != 3 || cfg.Delivery.BackoffMS != 500 {
		t.Errorf("delivery defaults = %+v", cfg.Delivery)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"bad port", func(c *Config) { c.HTTP.Port = 0 }, "http.port"},
		{"no search backend", func(c *Config) { c.Search.Addrs = nil }, "search.addrs"},
		{"cloud id alone is enough", func(c *Config) {
			c.Search.Addrs = nil
			c.Search.CloudID = "deployment:abc"
		}, ""},
		{"no identity store", func(c *Config) { c.Identity.Addrs = nil }, "identity.addrs"},
		{"space without provider", func(c *Config) {
			c.Embedding.Spaces["e5"] = SpaceConfig{Model: "m", Dimensions: 384}
		}, "provider is required"},
		{"space with unknown provider", func(c *Config) {
			c.Embedding.Spaces["e5"] = SpaceConfig{Provider: "ghost", Model: "m", Dimensions: 384}
		}, "unknown provider"},
		{"space without dimensions", func(c *Config) {
			c.Embedding.Spaces["e5"] = SpaceConfig{Provider: "nebius", Model: "m"}
		}, "dimensions"},
		{"unknown channel override", func(c *Config) {
			c.Channels = map[string]ChannelConfig{"reddit": {Index: "x"}}
		}, "channels.reddit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestChannelTable_Overrides(t *testing.T) {
	cfg := validConfig()
	cfg.Channels = map[string]ChannelConfig{
		"news": {
			Index:      "news_articles_v2",
			Candidates: 100,
		},
	}

	table := cfg.ChannelTable()

	news := table["news"]
	if news.Index != "news_articles_v2" {
		t.Errorf("index = %q", news.Index)
	}
	if news.Candidates != 100 {
		t.Errorf("candidates = %d", news.Candidates)
	}
	if news.Space != "openai" || news.Dimensions != 1536 {
		t.Errorf("untouched fields lost: %+v", news)
	}

	forum := table["forum"]
	if forum.Index != "telegram_threads" {
		t.Errorf("unrelated channel changed: %+v", forum)
	}
}

func TestChannelTable_TextFieldBoostDefault(t *testing.T) {
	cfg := validConfig()
	cfg.Channels = map[string]ChannelConfig{
		"official": {
			TextFields: []BoostedFieldEntry{
				{Name: "content", Boost: 3.0},
				{Name: "summary"},
			},
		},
	}

	d := cfg.ChannelTable()["official"]
	if len(d.TextFields) != 2 {
		t.Fatalf("fields = %+v", d.TextFields)
	}
	if d.TextFields[0].Boost != 3.0 {
		t.Errorf("boost = %f", d.TextFields[0].Boost)
	}
	if d.TextFields[1].Boost != 1.0 {
		t.Errorf("missing boost must default to 1.0, got %f", d.TextFields[1].Boost)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TAXSEARCH_TEST_SET", "from-env")

	in := []byte("a: ${TAXSEARCH_TEST_SET}\nb: ${TAXSEARCH_TEST_UNSET:-fallback}\nc: ${TAXSEARCH_TEST_UNSET}\n")
	got := string(expandEnvVars(in))
	want := "a: from-env\nb: fallback\nc: \n"
	if got != want {
		t.Errorf("expanded = %q, want %q", got, want)
	}
}
