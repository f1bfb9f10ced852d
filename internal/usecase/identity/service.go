// Package identity resolves callers into durable users and live sessions.
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tuexperto/taxsearch/internal/domain"
	domident "github.com/tuexperto/taxsearch/internal/domain/identity"
	"github.com/tuexperto/taxsearch/internal/domain/request"
)

// Service implements user and session resolution.
type Service struct {
	repo   Repository
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates the identity service.
func NewService(repo Repository, logger *zap.Logger) *Service {
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// Resolve maps a caller to its durable user and a live session. A user is
// created on first sighting; concurrent first sightings converge on one id.
// An unknown, expired or foreign session id is replaced with a fresh session
// rather than rejected.
func (s *Service) Resolve(
	ctx context.Context, caller request.Caller, sessionID string,
) (userID, sid string, err error) {
	now := s.now().UTC()

	candidate := uuid.NewString()
	ownerID, created, err := s.repo.ClaimExternalID(ctx, caller.ChannelType, caller.ExternalID, candidate)
	if err != nil {
		return "", "", fmt.Errorf("resolve user: %w", err)
	}

	if created {
		u := &domident.User{
			ID:          ownerID,
			ChannelType: caller.ChannelType,
			ExternalID:  caller.ExternalID,
			Metadata:    caller.Metadata,
			CreatedAt:   now,
			LastSeenAt:  now,
		}
		if err := s.repo.SaveUser(ctx, u); err != nil {
			return "", "", fmt.Errorf("save user: %w", err)
		}
		s.logger.Info("User created",
			zap.String("user_id", ownerID),
			zap.String("channel_type", caller.ChannelType),
		)
	} else {
		if err := s.repo.TouchUser(ctx, ownerID, caller.Metadata, now); err != nil {
			return "", "", fmt.Errorf("touch user: %w", err)
		}
	}

	sid, err = s.resolveSession(ctx, ownerID, sessionID, now)
	if err != nil {
		return "", "", err
	}
	return ownerID, sid, nil
}

// resolveSession reuses a valid session owned by the user or rotates in a new one.
func (s *Service) resolveSession(
	ctx context.Context, userID, sessionID string, now time.Time,
) (string, error) {
	if sessionID != "" {
		sess, err := s.repo.GetSession(ctx, sessionID)
		switch {
		case err == nil && sess.UserID == userID:
			if err := s.repo.TouchSession(ctx, sessionID, now); err != nil {
				return "", fmt.Errorf("touch session: %w", err)
			}
			return sessionID, nil
		case err == nil:
			// Session belongs to another user; never adopt it.
			s.logger.Warn("Session owner mismatch, rotating",
				zap.String("session_id", sessionID),
				zap.String("user_id", userID),
			)
		case errors.Is(err, domain.ErrSessionNotFound):
			s.logger.Debug("Session expired or unknown, rotating",
				zap.String("session_id", sessionID),
			)
		default:
			return "", fmt.Errorf("get session: %w", err)
		}
	}

	sess := &domident.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.SaveSession(ctx, sess); err != nil {
		return "", fmt.Errorf("save session: %w", err)
	}
	return sess.ID, nil
}

// AppendInteraction records one completed request in the session's log.
func (s *Service) AppendInteraction(
	ctx context.Context, sessionID, query string, success bool, hitCounts map[string]int, duration time.Duration,
) error {
	in := &domident.Interaction{
		Query:      query,
		Success:    success,
		HitCounts:  hitCounts,
		DurationMS: duration.Milliseconds(),
		Timestamp:  s.now().UTC(),
	}
	if err := s.repo.AppendInteraction(ctx, sessionID, in); err != nil {
		return fmt.Errorf("append interaction: %w", err)
	}
	return nil
}
