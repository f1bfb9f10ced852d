// Package identity defines durable user and session records.
package identity

import "time"

// User is a durable identity keyed by (caller-channel type, external id).
// Created on first sighting, metadata refreshed on every request, never deleted.
type User struct {
	ID          string
	ChannelType string
	ExternalID  string
	Metadata    map[string]string
	CreatedAt   time.Time
	LastSeenAt  time.Time
}

// Session groups a user's consecutive exchanges for conversational continuity.
type Session struct {
	ID        string
	UserID    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Interaction is one append-only log entry per completed request.
type Interaction struct {
	Query      string         `json:"query"`
	Success    bool           `json:"success"`
	HitCounts  map[string]int `json:"hit_counts"`
	DurationMS int64          `json:"duration_ms"`
	Timestamp  time.Time      `json:"timestamp"`
}
