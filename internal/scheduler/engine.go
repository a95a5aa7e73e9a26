package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	config "github.com/winningsales/contenthub/configs"
	"github.com/winningsales/contenthub/internal/models"
)

// Engine is the scheduled-post publisher. Each Tick claims due posts through
// the store's atomic claim, publishes them with a bounded worker fan-out and
// records the outcome of every post independently. All cross-replica
// coordination happens in the store; the engine itself keeps no shared state
// between ticks.
type Engine struct {
	cfg       config.Scheduler
	store     Store
	tokens    TokenProvider
	publisher PublishClient
	now       func() time.Time

	tickMu sync.Mutex
}

func New(cfg config.Scheduler, store Store, tokens TokenProvider, publisher PublishClient) *Engine {
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = 20
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 10
	}
	return &Engine{
		cfg:       cfg,
		store:     store,
		tokens:    tokens,
		publisher: publisher,
		now:       time.Now,
	}
}

// Tick runs one scan-and-publish cycle. A tick still running when the next
// cron fire arrives makes the new fire a no-op, so two ticks of the same
// process never race each other.
func (e *Engine) Tick(ctx context.Context) {
	if !e.tickMu.TryLock() {
		slog.Warn("previous scheduler tick still running, skipping")
		return
	}
	defer e.tickMu.Unlock()

	now := e.now()

	requeued, failed, err := e.store.ReleaseStuck(ctx, now.Add(-e.cfg.StuckAfter), now)
	if err != nil {
		slog.Info(err.Error())
	} else if requeued > 0 || failed > 0 {
		slog.Warn("recovered stuck posts",
			slog.Int64("requeued", requeued),
			slog.Int64("failed", failed))
	}

	posts, err := e.store.ClaimDue(ctx, now, e.cfg.BatchLimit)
	if err != nil {
		slog.Info(err.Error())
		return
	}
	if len(posts) == 0 {
		return
	}

	slog.Info("claimed due posts", slog.Int("count", len(posts)))

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, e.cfg.MaxConcurrency)

	for _, post := range posts {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(post *models.ScheduledPost) {
			defer wg.Done()
			defer func() { <-semaphore }()

			e.processPost(ctx, post, now)
		}(post)
	}

	wg.Wait()
}

func (e *Engine) processPost(ctx context.Context, post *models.ScheduledPost, now time.Time) {
	cred, err := e.tokens.GetValidCredential(ctx, post.UserID)
	if err != nil {
		slog.Warn("credential unavailable",
			slog.Int64("post_id", post.ID),
			slog.Int64("user_id", post.UserID),
			slog.String("error", err.Error()))
		e.recordFailure(ctx, post, now, false, "authentication: "+err.Error())
		return
	}

	remoteID, err := e.publisher.Publish(ctx, cred, post.ContentText)
	if err != nil {
		permanent := false
		var pubErr *PublishError
		if errors.As(err, &pubErr) {
			permanent = pubErr.Permanent
		}
		slog.Warn("publish attempt failed",
			slog.Int64("post_id", post.ID),
			slog.Bool("permanent", permanent),
			slog.String("error", err.Error()))
		e.recordFailure(ctx, post, now, permanent, err.Error())
		return
	}

	if err := e.store.MarkPublished(ctx, post.ID, remoteID); err != nil {
		slog.Info(err.Error())
		return
	}
	slog.Info("post published",
		slog.Int64("post_id", post.ID),
		slog.String("linkedin_post_id", remoteID))
}

func (e *Engine) recordFailure(ctx context.Context, post *models.ScheduledPost, now time.Time, permanent bool, msg string) {
	if permanent {
		attempts := post.RetryCount + 1
		if post.MaxRetries > 0 && attempts > post.MaxRetries {
			attempts = post.MaxRetries
		}
		if err := e.store.MarkFailed(ctx, post.ID, attempts, msg); err != nil {
			slog.Info(err.Error())
		}
		return
	}

	if post.RetryCount >= post.MaxRetries {
		if err := e.store.MarkFailed(ctx, post.ID, post.RetryCount, "retries exhausted: "+msg); err != nil {
			slog.Info(err.Error())
		}
		return
	}

	attempts := post.RetryCount + 1
	nextAttempt := now.Add(Backoff(e.cfg.BackoffBase, e.cfg.BackoffCap, attempts))
	if err := e.store.MarkRetryLater(ctx, post.ID, attempts, nextAttempt, msg); err != nil {
		slog.Info(err.Error())
	}
}
