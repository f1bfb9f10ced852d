package request

import (
	"errors"
	"strings"
	"testing"

	"github.com/tuexperto/taxsearch/internal/domain"
	"github.com/tuexperto/taxsearch/internal/domain/channel"
)

func validCaller() Caller {
	return Caller{ChannelType: "telegram", ExternalID: "42"}
}

func TestNew_Valid(t *testing.T) {
	req, err := New("  modelo 303  ", []string{"calendar", "news"}, 7, 20, validCaller(), "s-1", "https://example.com/hook")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if req.Query() != "modelo 303" {
		t.Errorf("query not trimmed: %q", req.Query())
	}
	if req.TopK() != 7 {
		t.Errorf("topK = %d", req.TopK())
	}
	if len(req.Channels()) != 2 {
		t.Errorf("channels = %v", req.Channels())
	}
	if req.SessionID() != "s-1" {
		t.Errorf("session = %q", req.SessionID())
	}
}

func TestNew_EmptyQuery(t *testing.T) {
	_, err := New("   ", []string{"calendar"}, 5, 20, validCaller(), "", "")
	if !errors.Is(err, domain.ErrEmptyQuery) {
		t.Errorf("expected ErrEmptyQuery, got %v", err)
	}
}

func TestNew_QueryTooLong(t *testing.T) {
	_, err := New(strings.Repeat("a", MaxQueryLength+1), []string{"calendar"}, 5, 20, validCaller(), "", "")
	if !errors.Is(err, domain.ErrQueryTooLong) {
		t.Errorf("expected ErrQueryTooLong, got %v", err)
	}
}

func TestNew_Channels(t *testing.T) {
	_, err := New("q", nil, 5, 20, validCaller(), "", "")
	if !errors.Is(err, domain.ErrNoChannels) {
		t.Errorf("expected ErrNoChannels, got %v", err)
	}

	_, err = New("q", []string{"reddit"}, 5, 20, validCaller(), "", "")
	if !errors.Is(err, domain.ErrUnknownChannel) {
		t.Errorf("expected ErrUnknownChannel, got %v", err)
	}
}

func TestNew_DedupsChannelsFirstWins(t *testing.T) {
	req, err := New("q", []string{"news", "calendar", "news"}, 5, 20, validCaller(), "", "")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	want := []channel.Channel{channel.News, channel.Calendar}
	got := req.Channels()
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("channels = %v, want %v", got, want)
	}
}

func TestNew_TopKClamping(t *testing.T) {
	tests := []struct {
		name string
		topK int
		max  int
		want int
	}{
		{"default", 0, 20, DefaultTopK},
		{"negative", -3, 20, DefaultTopK},
		{"clamped to max", 100, 20, 20},
		{"zero max falls back", 100, 0, MaxTopK},
		{"in range", 10, 20, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := New("q", []string{"calendar"}, tt.topK, tt.max, validCaller(), "", "")
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			if req.TopK() != tt.want {
				t.Errorf("topK = %d, want %d", req.TopK(), tt.want)
			}
		})
	}
}

func TestNew_MissingCaller(t *testing.T) {
	_, err := New("q", []string{"calendar"}, 5, 20, Caller{ChannelType: "telegram"}, "", "")
	if !errors.Is(err, domain.ErrMissingCaller) {
		t.Errorf("expected ErrMissingCaller, got %v", err)
	}
}

func TestNew_InvalidCallback(t *testing.T) {
	for _, url := range []string{"not a url", "/relative/path", "example.com/hook"} {
		if _, err := New("q", []string{"calendar"}, 5, 20, validCaller(), "", url); !errors.Is(err, domain.ErrInvalidCallback) {
			t.Errorf("callback %q: expected ErrInvalidCallback, got %v", url, err)
		}
	}

	if _, err := New("q", []string{"calendar"}, 5, 20, validCaller(), "", ""); err != nil {
		t.Errorf("empty callback must be allowed: %v", err)
	}
}
