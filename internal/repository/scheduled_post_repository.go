// repository/scheduled_post_repository.go
package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/winningsales/contenthub/internal/models"
)

type ScheduledPostRepository interface {
	Create(ctx context.Context, post *models.ScheduledPost) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.ScheduledPost, error)
	GetByUserID(ctx context.Context, userID int64) ([]*models.ScheduledPost, error)
	CancelPending(ctx context.Context, id, userID int64) (int64, error)
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]*models.ScheduledPost, error)
	MarkPublished(ctx context.Context, id int64, remotePostID string) error
	MarkRetryLater(ctx context.Context, id int64, retryCount int, nextAttempt time.Time, errMsg string) error
	MarkFailed(ctx context.Context, id int64, retryCount int, errMsg string) error
	ReleaseStuck(ctx context.Context, cutoff, now time.Time) (int64, int64, error)
}

type scheduledPostRepository struct {
	db *sql.DB
}

func NewScheduledPostRepository(db *sql.DB) ScheduledPostRepository {
	return &scheduledPostRepository{db: db}
}

const scheduledPostColumns = `id, user_id, content_text, scheduled_at, status, retry_count,
		       max_retries, linkedin_post_id, error_message, created_at, updated_at`

func (r *scheduledPostRepository) Create(ctx context.Context, post *models.ScheduledPost) (int64, error) {
	query := `
		INSERT INTO scheduled_posts (user_id, content_text, scheduled_at, status, max_retries)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowContext(ctx, query,
		post.UserID,
		post.ContentText,
		post.ScheduledAt,
		models.PostStatusPending,
		post.MaxRetries,
	).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

func (r *scheduledPostRepository) GetByID(ctx context.Context, id int64) (*models.ScheduledPost, error) {
	query := `SELECT ` + scheduledPostColumns + ` FROM scheduled_posts WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, id)

	post, err := scanScheduledPost(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	return post, nil
}

func (r *scheduledPostRepository) GetByUserID(ctx context.Context, userID int64) ([]*models.ScheduledPost, error) {
	query := `SELECT ` + scheduledPostColumns + ` FROM scheduled_posts WHERE user_id = $1 ORDER BY scheduled_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var posts []*models.ScheduledPost
	for rows.Next() {
		post, err := scanScheduledPost(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, nil
}

// CancelPending deletes the row only while it is still pending. The returned
// count lets the caller tell "already claimed" apart from "not found".
func (r *scheduledPostRepository) CancelPending(ctx context.Context, id, userID int64) (int64, error) {
	query := `DELETE FROM scheduled_posts WHERE id = $1 AND user_id = $2 AND status = $3`

	result, err := r.db.ExecContext(ctx, query, id, userID, models.PostStatusPending)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return affected, nil
}

// ClaimDue moves up to limit due pending posts to publishing in one atomic
// statement and returns the claimed rows. The SKIP LOCKED subselect guarantees
// two concurrent callers never claim the same row, so the engine can run as
// multiple replicas without a separate lock service.
func (r *scheduledPostRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*models.ScheduledPost, error) {
	query := `
		UPDATE scheduled_posts
		SET status = $1,
		    updated_at = NOW()
		WHERE id IN (
			SELECT id FROM scheduled_posts
			WHERE status = $2 AND scheduled_at <= $3
			ORDER BY scheduled_at ASC
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + scheduledPostColumns

	rows, err := r.db.QueryContext(ctx, query, models.PostStatusPublishing, models.PostStatusPending, now, limit)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var posts []*models.ScheduledPost
	for rows.Next() {
		post, err := scanScheduledPost(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, nil
}

func (r *scheduledPostRepository) MarkPublished(ctx context.Context, id int64, remotePostID string) error {
	query := `
		UPDATE scheduled_posts
		SET status = $1,
		    linkedin_post_id = $2,
		    error_message = NULL,
		    updated_at = NOW()
		WHERE id = $3 AND status = $4
	`
	return r.recordOutcome(ctx, id, query, models.PostStatusPublished, remotePostID, id, models.PostStatusPublishing)
}

func (r *scheduledPostRepository) MarkRetryLater(ctx context.Context, id int64, retryCount int, nextAttempt time.Time, errMsg string) error {
	query := `
		UPDATE scheduled_posts
		SET status = $1,
		    retry_count = $2,
		    scheduled_at = $3,
		    error_message = $4,
		    updated_at = NOW()
		WHERE id = $5 AND status = $6
	`
	return r.recordOutcome(ctx, id, query, models.PostStatusPending, retryCount, nextAttempt, errMsg, id, models.PostStatusPublishing)
}

func (r *scheduledPostRepository) MarkFailed(ctx context.Context, id int64, retryCount int, errMsg string) error {
	query := `
		UPDATE scheduled_posts
		SET status = $1,
		    retry_count = $2,
		    error_message = $3,
		    updated_at = NOW()
		WHERE id = $4 AND status = $5
	`
	return r.recordOutcome(ctx, id, query, models.PostStatusFailed, retryCount, errMsg, id, models.PostStatusPublishing)
}

// recordOutcome applies a terminal or retry transition. A row that is no
// longer publishing is logged and skipped rather than overwritten; given the
// claim discipline that only happens after a stuck-claim recovery raced the
// original holder.
func (r *scheduledPostRepository) recordOutcome(ctx context.Context, id int64, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	if affected == 0 {
		slog.Warn("outcome ignored, post no longer publishing", slog.Int64("post_id", id))
	}
	return nil
}

// ReleaseStuck recovers claims orphaned by a crash: publishing rows untouched
// since cutoff go back to pending with one extra retry charged, or to failed
// when retries are exhausted. Returns (requeued, failed) counts.
func (r *scheduledPostRepository) ReleaseStuck(ctx context.Context, cutoff, now time.Time) (int64, int64, error) {
	failQuery := `
		UPDATE scheduled_posts
		SET status = $1,
		    error_message = $2,
		    updated_at = NOW()
		WHERE status = $3 AND updated_at <= $4 AND retry_count >= max_retries
	`
	failRes, err := r.db.ExecContext(ctx, failQuery,
		models.PostStatusFailed,
		"publish attempt interrupted, retries exhausted",
		models.PostStatusPublishing,
		cutoff,
	)
	if err != nil {
		slog.Info(err.Error())
		return 0, 0, err
	}
	failed, _ := failRes.RowsAffected()

	requeueQuery := `
		UPDATE scheduled_posts
		SET status = $1,
		    retry_count = retry_count + 1,
		    scheduled_at = $2,
		    error_message = $3,
		    updated_at = NOW()
		WHERE status = $4 AND updated_at <= $5 AND retry_count < max_retries
	`
	requeueRes, err := r.db.ExecContext(ctx, requeueQuery,
		models.PostStatusPending,
		now,
		"publish attempt interrupted, requeued",
		models.PostStatusPublishing,
		cutoff,
	)
	if err != nil {
		slog.Info(err.Error())
		return 0, failed, err
	}
	requeued, _ := requeueRes.RowsAffected()

	return requeued, failed, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanScheduledPost(row rowScanner) (*models.ScheduledPost, error) {
	var post models.ScheduledPost
	err := row.Scan(
		&post.ID,
		&post.UserID,
		&post.ContentText,
		&post.ScheduledAt,
		&post.Status,
		&post.RetryCount,
		&post.MaxRetries,
		&post.LinkedinPostID,
		&post.ErrorMessage,
		&post.CreatedAt,
		&post.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &post, nil
}
