package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	config "github.com/winningsales/contenthub/configs"
	"github.com/winningsales/contenthub/internal/models"
	"github.com/winningsales/contenthub/internal/repository"
	"github.com/winningsales/contenthub/internal/transfer"
)

type PostService interface {
	Schedule(ctx context.Context, userID int64, pc *transfer.PostCreation) (*models.ScheduledPost, error)
	List(ctx context.Context, userID int64) ([]*models.ScheduledPost, error)
	Cancel(ctx context.Context, userID, postID int64) error
}

type postService struct {
	cfg config.Config
	pr  repository.ScheduledPostRepository
	la  repository.LinkedinAccountRepository
	now func() time.Time
}

func NewPostService(cfg config.Config, pr repository.ScheduledPostRepository, la repository.LinkedinAccountRepository) PostService {
	return &postService{
		cfg: cfg,
		pr:  pr,
		la:  la,
		now: time.Now,
	}
}

func (s *postService) Schedule(ctx context.Context, userID int64, pc *transfer.PostCreation) (*models.ScheduledPost, error) {
	if pc == nil || pc.ContentText == "" {
		err := fmt.Errorf("%w: content text cannot be empty", ErrValidation)
		slog.Info(err.Error())
		return nil, err
	}

	scheduledAt, err := time.Parse(time.RFC3339, pc.ScheduledAt)
	if err != nil {
		err = fmt.Errorf("%w: invalid scheduled time format: %v", ErrValidation, err)
		slog.Info(err.Error())
		return nil, err
	}

	if !scheduledAt.After(s.now()) {
		err = fmt.Errorf("%w: scheduled time must be in the future", ErrValidation)
		slog.Info(err.Error())
		return nil, err
	}

	_, connected, err := s.la.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error checking linkedin connection: %w", err)
	}
	if !connected {
		err = fmt.Errorf("%w: linkedin account not connected", ErrValidation)
		slog.Info(err.Error())
		return nil, err
	}

	post := &models.ScheduledPost{
		UserID:      userID,
		ContentText: pc.ContentText,
		ScheduledAt: scheduledAt.UTC(),
		Status:      models.PostStatusPending,
		MaxRetries:  s.cfg.Scheduler.MaxRetries,
	}

	postID, err := s.pr.Create(ctx, post)
	if err != nil {
		return nil, fmt.Errorf("error creating scheduled post: %w", err)
	}
	post.ID = postID

	return post, nil
}

func (s *postService) List(ctx context.Context, userID int64) ([]*models.ScheduledPost, error) {
	posts, err := s.pr.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error listing scheduled posts: %w", err)
	}
	return posts, nil
}

// Cancel removes a post that has not been claimed yet. A post already
// publishing or done is rejected; in-flight publishes are intentionally not
// cancellable.
func (s *postService) Cancel(ctx context.Context, userID, postID int64) error {
	affected, err := s.pr.CancelPending(ctx, postID, userID)
	if err != nil {
		return fmt.Errorf("error cancelling post: %w", err)
	}
	if affected > 0 {
		return nil
	}

	post, err := s.pr.GetByID(ctx, postID)
	if err != nil {
		return fmt.Errorf("error cancelling post: %w", err)
	}
	if post == nil || post.UserID != userID {
		err = fmt.Errorf("%w: scheduled post %d", ErrNotFound, postID)
		slog.Info(err.Error())
		return err
	}

	err = fmt.Errorf("%w: post is %s and can no longer be cancelled", ErrInvalidState, post.Status)
	slog.Info(err.Error())
	return err
}
