package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/search" || r.Method != http.MethodPost {
			t.Errorf("unexpected call: %s %s", r.Method, r.URL.Path)
		}

		var req SearchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.Query != "modelo 303" || req.User.ExternalID != "42" {
			t.Errorf("request = %+v", req)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(Ack{
			Status:    "accepted",
			Query:     req.Query,
			Channels:  req.Channels,
			UserID:    "user-1",
			SessionID: "session-1",
		})
	}))
	defer server.Close()

	c := New(server.URL)
	ack, err := c.Search(context.Background(), &SearchRequest{
		Query:    "modelo 303",
		Channels: []string{"calendar"},
		User:     Caller{ChannelType: "telegram", ExternalID: "42"},
	})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if ack.Status != "accepted" || ack.SessionID != "session-1" {
		t.Errorf("ack = %+v", ack)
	}
}

func TestSearch_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"code":    "unknown_channel",
			"message": "unknown channel",
		})
	}))
	defer server.Close()

	c := New(server.URL)
	_, err := c.Search(context.Background(), &SearchRequest{
		Query:    "q",
		Channels: []string{"reddit"},
		User:     Caller{ChannelType: "telegram", ExternalID: "42"},
	})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || apiErr.Code != "unknown_channel" {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(HealthStatus{
			Status: "degraded",
			Checks: map[string]string{"search": "ok", "identity_store": "error"},
		})
	}))
	defer server.Close()

	c := New(server.URL)
	status, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if status.Status != "degraded" {
		t.Errorf("status = %q", status.Status)
	}
	if status.Checks["identity_store"] != "error" {
		t.Errorf("checks = %v", status.Checks)
	}
}
