package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/winningsales/contenthub/internal/models"
)

// ErrTokenUnavailable is reported by a TokenProvider when no valid credential
// can be obtained for the owning user. The engine treats it as a retryable
// authentication failure.
var ErrTokenUnavailable = errors.New("no valid linkedin credential available")

// Credential is a ready-to-use bearer token for the LinkedIn API together
// with the author URN posts are published under.
type Credential struct {
	AccessToken string
	AuthorURN   string
}

// TokenProvider resolves a currently valid credential for a user, refreshing
// it when possible.
type TokenProvider interface {
	GetValidCredential(ctx context.Context, userID int64) (*Credential, error)
}

// PublishClient creates a remote post and returns its remote id. Failures
// should be *PublishError values so the engine can classify them; any other
// error is treated as transient.
type PublishClient interface {
	Publish(ctx context.Context, cred *Credential, text string) (string, error)
}

// Store is the slice of the scheduled post repository the engine needs.
type Store interface {
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]*models.ScheduledPost, error)
	MarkPublished(ctx context.Context, id int64, remotePostID string) error
	MarkRetryLater(ctx context.Context, id int64, retryCount int, nextAttempt time.Time, errMsg string) error
	MarkFailed(ctx context.Context, id int64, retryCount int, errMsg string) error
	ReleaseStuck(ctx context.Context, cutoff, now time.Time) (int64, int64, error)
}

// PublishError classifies a failed publish attempt. Permanent failures
// (content rejected, account revoked) are never retried; everything else
// (network, 5xx, rate limit) is.
type PublishError struct {
	Permanent  bool
	StatusCode int
	Message    string
}

func (e *PublishError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("linkedin api error (status %d): %s", e.StatusCode, e.Message)
	}
	return e.Message
}
