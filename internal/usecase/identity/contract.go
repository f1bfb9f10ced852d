package identity

import (
	"context"
	"time"

	"github.com/tuexperto/taxsearch/internal/domain/identity"
)

// Repository is the persistence contract for users, sessions and the
// interaction log.
type Repository interface {
	// ClaimExternalID atomically maps an external identity to a user id.
	// Returns the owning user id; created=false means another writer won.
	ClaimExternalID(ctx context.Context, channelType, externalID, userID string) (ownerID string, created bool, err error)
	SaveUser(ctx context.Context, u *identity.User) error
	TouchUser(ctx context.Context, id string, metadata map[string]string, seenAt time.Time) error
	GetSession(ctx context.Context, id string) (*identity.Session, error)
	SaveSession(ctx context.Context, s *identity.Session) error
	TouchSession(ctx context.Context, id string, at time.Time) error
	AppendInteraction(ctx context.Context, sessionID string, in *identity.Interaction) error
}
