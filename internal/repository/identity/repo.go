// Package identity persists users, sessions and the interaction log on the
// key-value store.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tuexperto/taxsearch/internal/db"
	"github.com/tuexperto/taxsearch/internal/domain"
	"github.com/tuexperto/taxsearch/internal/domain/identity"
)

// store is the consumer interface for identity persistence (ISP).
type store interface {
	db.KVStore
	db.HashStore
	db.ListStore
}

// Repo implements usecase/identity.Repository.
type Repo struct {
	store      store
	keyPrefix  string
	sessionTTL time.Duration
}

// New creates an identity repository. sessionTTL is the idle expiry applied to
// session keys on every touch.
func New(s store, keyPrefix string, sessionTTL time.Duration) *Repo {
	if keyPrefix == "" {
		keyPrefix = "taxsearch:"
	}
	if sessionTTL <= 0 {
		sessionTTL = 24 * time.Hour
	}
	return &Repo{store: s, keyPrefix: keyPrefix, sessionTTL: sessionTTL}
}

func (r *Repo) externalKey(channelType, externalID string) string {
	return fmt.Sprintf("%suser:ext:%s:%s", r.keyPrefix, channelType, externalID)
}

func (r *Repo) userKey(id string) string {
	return fmt.Sprintf("%suser:%s", r.keyPrefix, id)
}

func (r *Repo) sessionKey(id string) string {
	return fmt.Sprintf("%ssession:%s", r.keyPrefix, id)
}

func (r *Repo) sessionLogKey(id string) string {
	return fmt.Sprintf("%ssession:%s:log", r.keyPrefix, id)
}

// ClaimExternalID maps (channelType, externalID) to userID atomically. When
// another writer got there first, the winner's user id is returned with
// created=false. This makes first-sighting user creation idempotent under
// concurrency.
func (r *Repo) ClaimExternalID(
	ctx context.Context, channelType, externalID, userID string,
) (ownerID string, created bool, err error) {
	key := r.externalKey(channelType, externalID)

	ok, err := r.store.SetNX(ctx, key, []byte(userID))
	if err != nil {
		return "", false, fmt.Errorf("claim external id: %w", err)
	}
	if ok {
		return userID, true, nil
	}

	existing, err := r.store.Get(ctx, key)
	if err != nil {
		return "", false, fmt.Errorf("read external id mapping: %w", err)
	}
	return string(existing), false, nil
}

// SaveUser writes the full user record.
func (r *Repo) SaveUser(ctx context.Context, u *identity.User) error {
	meta, err := json.Marshal(u.Metadata)
	if err != nil {
		return fmt.Errorf("marshal user metadata: %w", err)
	}

	fields := map[string]string{
		"channel_type": u.ChannelType,
		"external_id":  u.ExternalID,
		"metadata":     string(meta),
		"created_at":   u.CreatedAt.UTC().Format(time.RFC3339Nano),
		"last_seen_at": u.LastSeenAt.UTC().Format(time.RFC3339Nano),
	}
	if err := r.store.HSet(ctx, r.userKey(u.ID), fields); err != nil {
		return fmt.Errorf("save user %s: %w", u.ID, err)
	}
	return nil
}

// TouchUser refreshes display metadata and the last-seen timestamp.
func (r *Repo) TouchUser(ctx context.Context, id string, metadata map[string]string, seenAt time.Time) error {
	fields := map[string]string{
		"last_seen_at": seenAt.UTC().Format(time.RFC3339Nano),
	}
	if len(metadata) > 0 {
		meta, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("marshal user metadata: %w", err)
		}
		fields["metadata"] = string(meta)
	}
	if err := r.store.HSet(ctx, r.userKey(id), fields); err != nil {
		return fmt.Errorf("touch user %s: %w", id, err)
	}
	return nil
}

// GetUser loads a user record by id.
func (r *Repo) GetUser(ctx context.Context, id string) (*identity.User, error) {
	fields, err := r.store.HGetAll(ctx, r.userKey(id))
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrUserNotFound, id)
	}

	u := &identity.User{
		ID:          id,
		ChannelType: fields["channel_type"],
		ExternalID:  fields["external_id"],
	}
	if meta := fields["metadata"]; meta != "" {
		if err := json.Unmarshal([]byte(meta), &u.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal user metadata: %w", err)
		}
	}
	u.CreatedAt, _ = time.Parse(time.RFC3339Nano, fields["created_at"])
	u.LastSeenAt, _ = time.Parse(time.RFC3339Nano, fields["last_seen_at"])
	return u, nil
}

// SaveSession writes a session record and arms its idle TTL.
func (r *Repo) SaveSession(ctx context.Context, s *identity.Session) error {
	key := r.sessionKey(s.ID)
	fields := map[string]string{
		"user_id":    s.UserID,
		"created_at": s.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at": s.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if err := r.store.HSet(ctx, key, fields); err != nil {
		return fmt.Errorf("save session %s: %w", s.ID, err)
	}
	if err := r.store.Expire(ctx, key, r.sessionTTL); err != nil {
		return fmt.Errorf("expire session %s: %w", s.ID, err)
	}
	return nil
}

// GetSession loads a session by id. Expired sessions are gone from the store
// and surface as ErrSessionNotFound.
func (r *Repo) GetSession(ctx context.Context, id string) (*identity.Session, error) {
	fields, err := r.store.HGetAll(ctx, r.sessionKey(id))
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, id)
	}

	s := &identity.Session{ID: id, UserID: fields["user_id"]}
	s.CreatedAt, _ = time.Parse(time.RFC3339Nano, fields["created_at"])
	s.UpdatedAt, _ = time.Parse(time.RFC3339Nano, fields["updated_at"])
	return s, nil
}

// TouchSession bumps the updated timestamp and re-arms the idle TTL.
func (r *Repo) TouchSession(ctx context.Context, id string, at time.Time) error {
	key := r.sessionKey(id)
	fields := map[string]string{
		"updated_at": at.UTC().Format(time.RFC3339Nano),
	}
	if err := r.store.HSet(ctx, key, fields); err != nil {
		return fmt.Errorf("touch session %s: %w", id, err)
	}
	if err := r.store.Expire(ctx, key, r.sessionTTL); err != nil {
		return fmt.Errorf("expire session %s: %w", id, err)
	}
	return nil
}

// AppendInteraction appends one log entry to the session's interaction log.
// The log shares the session's lifetime.
func (r *Repo) AppendInteraction(ctx context.Context, sessionID string, in *identity.Interaction) error {
	entry, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal interaction: %w", err)
	}

	key := r.sessionLogKey(sessionID)
	if err := r.store.RPush(ctx, key, string(entry)); err != nil {
		return fmt.Errorf("append interaction: %w", err)
	}
	if err := r.store.Expire(ctx, key, r.sessionTTL); err != nil {
		return fmt.Errorf("expire interaction log: %w", err)
	}
	return nil
}

// Interactions loads the session's interaction log, oldest first.
func (r *Repo) Interactions(ctx context.Context, sessionID string) ([]identity.Interaction, error) {
	raw, err := r.store.LRange(ctx, r.sessionLogKey(sessionID), 0, -1)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("read interaction log: %w", err)
	}

	out := make([]identity.Interaction, 0, len(raw))
	for _, entry := range raw {
		var in identity.Interaction
		if err := json.Unmarshal([]byte(entry), &in); err != nil {
			return nil, fmt.Errorf("unmarshal interaction: %w", err)
		}
		out = append(out, in)
	}
	return out, nil
}
