package scheduler

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/winningsales/contenthub/configs"
	"github.com/winningsales/contenthub/internal/models"
)

// fakeStore mirrors the repository's claim semantics in memory: claiming is
// exclusive under the lock and outcome writes only apply to posts that are
// still publishing.
type fakeStore struct {
	mu      sync.Mutex
	seq     int64
	posts   map[int64]*models.ScheduledPost
	ignored int
}

func newFakeStore() *fakeStore {
	return &fakeStore{posts: make(map[int64]*models.ScheduledPost)}
}

func (s *fakeStore) add(post models.ScheduledPost) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	post.ID = s.seq
	if post.Status == "" {
		post.Status = models.PostStatusPending
	}
	s.posts[post.ID] = &post
	return post.ID
}

func (s *fakeStore) get(t *testing.T, id int64) models.ScheduledPost {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()

	post, ok := s.posts[id]
	require.True(t, ok, "post %d not found", id)
	return *post
}

func (s *fakeStore) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*models.ScheduledPost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*models.ScheduledPost
	for _, post := range s.posts {
		if post.Status == models.PostStatusPending && !post.ScheduledAt.After(now) {
			due = append(due, post)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ScheduledAt.Before(due[j].ScheduledAt) })
	if len(due) > limit {
		due = due[:limit]
	}

	claimed := make([]*models.ScheduledPost, 0, len(due))
	for _, post := range due {
		post.Status = models.PostStatusPublishing
		post.UpdatedAt = now
		copied := *post
		claimed = append(claimed, &copied)
	}
	return claimed, nil
}

func (s *fakeStore) MarkPublished(ctx context.Context, id int64, remotePostID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	post, ok := s.posts[id]
	if !ok || post.Status != models.PostStatusPublishing {
		s.ignored++
		return nil
	}
	post.Status = models.PostStatusPublished
	post.LinkedinPostID = sql.NullString{String: remotePostID, Valid: true}
	post.ErrorMessage = sql.NullString{}
	return nil
}

func (s *fakeStore) MarkRetryLater(ctx context.Context, id int64, retryCount int, nextAttempt time.Time, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	post, ok := s.posts[id]
	if !ok || post.Status != models.PostStatusPublishing {
		s.ignored++
		return nil
	}
	post.Status = models.PostStatusPending
	post.RetryCount = retryCount
	post.ScheduledAt = nextAttempt
	post.ErrorMessage = sql.NullString{String: errMsg, Valid: true}
	return nil
}

func (s *fakeStore) MarkFailed(ctx context.Context, id int64, retryCount int, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	post, ok := s.posts[id]
	if !ok || post.Status != models.PostStatusPublishing {
		s.ignored++
		return nil
	}
	post.Status = models.PostStatusFailed
	post.RetryCount = retryCount
	post.ErrorMessage = sql.NullString{String: errMsg, Valid: true}
	return nil
}

func (s *fakeStore) ReleaseStuck(ctx context.Context, cutoff, now time.Time) (int64, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var requeued, failed int64
	for _, post := range s.posts {
		if post.Status != models.PostStatusPublishing || post.UpdatedAt.After(cutoff) {
			continue
		}
		if post.RetryCount >= post.MaxRetries {
			post.Status = models.PostStatusFailed
			post.ErrorMessage = sql.NullString{String: "publish attempt interrupted, retries exhausted", Valid: true}
			failed++
			continue
		}
		post.Status = models.PostStatusPending
		post.RetryCount++
		post.ScheduledAt = now
		post.ErrorMessage = sql.NullString{String: "publish attempt interrupted, requeued", Valid: true}
		requeued++
	}
	return requeued, failed, nil
}

type fakeTokens struct {
	cred  *Credential
	err   error
	calls int32
}

func (f *fakeTokens) GetValidCredential(ctx context.Context, userID int64) (*Credential, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	return f.cred, nil
}

type fakePublisher struct {
	fn    func(text string) (string, error)
	calls int32
}

func (f *fakePublisher) Publish(ctx context.Context, cred *Credential, text string) (string, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.fn != nil {
		return f.fn(text)
	}
	return "urn:li:share:1", nil
}

func testConfig() config.Scheduler {
	return config.Scheduler{
		BatchLimit:     20,
		MaxConcurrency: 4,
		MaxRetries:     3,
		BackoffBase:    time.Minute,
		BackoffCap:     30 * time.Minute,
		StuckAfter:     10 * time.Minute,
	}
}

func newTestEngine(cfg config.Scheduler, store *fakeStore, tokens *fakeTokens, pub *fakePublisher, now time.Time) *Engine {
	e := New(cfg, store, tokens, pub)
	e.now = func() time.Time { return now }
	return e
}

func validTokens() *fakeTokens {
	return &fakeTokens{cred: &Credential{AccessToken: "token", AuthorURN: "urn:li:person:m1"}}
}

var baseTime = time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

func TestTickPublishesDuePost(t *testing.T) {
	store := newFakeStore()
	id := store.add(models.ScheduledPost{
		UserID:      7,
		ContentText: "hello",
		ScheduledAt: baseTime,
		MaxRetries:  3,
	})

	pub := &fakePublisher{fn: func(string) (string, error) { return "abc123", nil }}
	engine := newTestEngine(testConfig(), store, validTokens(), pub, baseTime.Add(time.Second))

	engine.Tick(context.Background())

	post := store.get(t, id)
	assert.Equal(t, models.PostStatusPublished, post.Status)
	assert.Equal(t, "abc123", post.LinkedinPostID.String)
	assert.Equal(t, 0, post.RetryCount)
	assert.False(t, post.ErrorMessage.Valid)
	assert.EqualValues(t, 1, pub.calls)
}

func TestTickSkipsFuturePosts(t *testing.T) {
	store := newFakeStore()
	id := store.add(models.ScheduledPost{
		UserID:      7,
		ContentText: "later",
		ScheduledAt: baseTime.Add(time.Hour),
		MaxRetries:  3,
	})

	pub := &fakePublisher{}
	engine := newTestEngine(testConfig(), store, validTokens(), pub, baseTime)

	engine.Tick(context.Background())

	assert.Equal(t, models.PostStatusPending, store.get(t, id).Status)
	assert.EqualValues(t, 0, pub.calls)
}

func TestConcurrentTicksPublishOnce(t *testing.T) {
	store := newFakeStore()
	id := store.add(models.ScheduledPost{
		UserID:      7,
		ContentText: "once",
		ScheduledAt: baseTime,
		MaxRetries:  3,
	})

	pub := &fakePublisher{}
	now := baseTime.Add(time.Second)

	// Two engines over the same store model two replicas racing on the claim.
	a := newTestEngine(testConfig(), store, validTokens(), pub, now)
	b := newTestEngine(testConfig(), store, validTokens(), pub, now)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); a.Tick(context.Background()) }()
	go func() { defer wg.Done(); b.Tick(context.Background()) }()
	wg.Wait()

	assert.EqualValues(t, 1, pub.calls)
	assert.Equal(t, models.PostStatusPublished, store.get(t, id).Status)
}

func TestTickHonorsBatchLimit(t *testing.T) {
	store := newFakeStore()
	for i := 0; i < 5; i++ {
		store.add(models.ScheduledPost{
			UserID:      7,
			ContentText: "batch",
			ScheduledAt: baseTime.Add(time.Duration(i) * time.Second),
			MaxRetries:  3,
		})
	}

	cfg := testConfig()
	cfg.BatchLimit = 2

	pub := &fakePublisher{}
	engine := newTestEngine(cfg, store, validTokens(), pub, baseTime.Add(time.Minute))

	engine.Tick(context.Background())

	assert.EqualValues(t, 2, pub.calls)

	store.mu.Lock()
	var pending, published int
	for _, post := range store.posts {
		switch post.Status {
		case models.PostStatusPending:
			pending++
		case models.PostStatusPublished:
			published++
		}
	}
	store.mu.Unlock()
	assert.Equal(t, 3, pending)
	assert.Equal(t, 2, published)
}

func TestTransientFailureSchedulesRetry(t *testing.T) {
	store := newFakeStore()
	id := store.add(models.ScheduledPost{
		UserID:      7,
		ContentText: "flaky",
		ScheduledAt: baseTime,
		MaxRetries:  3,
	})

	pub := &fakePublisher{fn: func(string) (string, error) {
		return "", &PublishError{StatusCode: 503, Message: "service unavailable"}
	}}
	now := baseTime.Add(time.Second)
	engine := newTestEngine(testConfig(), store, validTokens(), pub, now)

	engine.Tick(context.Background())

	post := store.get(t, id)
	assert.Equal(t, models.PostStatusPending, post.Status)
	assert.Equal(t, 1, post.RetryCount)
	assert.Equal(t, now.Add(time.Minute), post.ScheduledAt)
	assert.Contains(t, post.ErrorMessage.String, "service unavailable")
}

func TestTransientFailuresExhaustRetries(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 2

	store := newFakeStore()
	id := store.add(models.ScheduledPost{
		UserID:      7,
		ContentText: "doomed",
		ScheduledAt: baseTime,
		MaxRetries:  cfg.MaxRetries,
	})

	pub := &fakePublisher{fn: func(string) (string, error) {
		return "", &PublishError{StatusCode: 500, Message: "boom"}
	}}

	// Advance the clock past each rescheduled attempt until the post settles.
	now := baseTime.Add(time.Second)
	for i := 0; i < cfg.MaxRetries+1; i++ {
		engine := newTestEngine(cfg, store, validTokens(), pub, now)
		engine.Tick(context.Background())
		now = store.get(t, id).ScheduledAt.Add(time.Second)
	}

	post := store.get(t, id)
	assert.Equal(t, models.PostStatusFailed, post.Status)
	assert.Equal(t, cfg.MaxRetries, post.RetryCount)
	assert.Contains(t, post.ErrorMessage.String, "retries exhausted")
	assert.EqualValues(t, cfg.MaxRetries+1, pub.calls)

	// Terminal posts are never claimed again.
	engine := newTestEngine(cfg, store, validTokens(), pub, now.Add(time.Hour))
	engine.Tick(context.Background())
	assert.EqualValues(t, cfg.MaxRetries+1, pub.calls)
}

func TestPermanentFailureFailsImmediately(t *testing.T) {
	store := newFakeStore()
	id := store.add(models.ScheduledPost{
		UserID:      7,
		ContentText: "rejected",
		ScheduledAt: baseTime,
		MaxRetries:  3,
	})

	pub := &fakePublisher{fn: func(string) (string, error) {
		return "", &PublishError{Permanent: true, StatusCode: 422, Message: "content rejected"}
	}}
	engine := newTestEngine(testConfig(), store, validTokens(), pub, baseTime.Add(time.Second))

	engine.Tick(context.Background())

	post := store.get(t, id)
	assert.Equal(t, models.PostStatusFailed, post.Status)
	assert.Equal(t, 1, post.RetryCount)
	assert.Contains(t, post.ErrorMessage.String, "content rejected")
	assert.EqualValues(t, 1, pub.calls)
}

func TestCredentialFailureIsRetried(t *testing.T) {
	store := newFakeStore()
	id := store.add(models.ScheduledPost{
		UserID:      7,
		ContentText: "no token",
		ScheduledAt: baseTime,
		MaxRetries:  3,
	})

	tokens := &fakeTokens{err: ErrTokenUnavailable}
	pub := &fakePublisher{}
	engine := newTestEngine(testConfig(), store, tokens, pub, baseTime.Add(time.Second))

	engine.Tick(context.Background())

	post := store.get(t, id)
	assert.Equal(t, models.PostStatusPending, post.Status)
	assert.Equal(t, 1, post.RetryCount)
	assert.Contains(t, post.ErrorMessage.String, "authentication")
	assert.EqualValues(t, 0, pub.calls, "publish must not run without a credential")
}

func TestStuckPostRequeuedAndPublished(t *testing.T) {
	store := newFakeStore()
	now := baseTime
	id := store.add(models.ScheduledPost{
		UserID:      7,
		ContentText: "interrupted",
		ScheduledAt: now.Add(-time.Hour),
		Status:      models.PostStatusPublishing,
		MaxRetries:  3,
		UpdatedAt:   now.Add(-11 * time.Minute),
	})

	pub := &fakePublisher{fn: func(string) (string, error) { return "recovered1", nil }}
	engine := newTestEngine(testConfig(), store, validTokens(), pub, now)

	engine.Tick(context.Background())

	// The recovery pass requeues it and the same tick claims and publishes it.
	post := store.get(t, id)
	assert.Equal(t, models.PostStatusPublished, post.Status)
	assert.Equal(t, 1, post.RetryCount)
	assert.Equal(t, "recovered1", post.LinkedinPostID.String)
}

func TestStuckPostNotRecoveredBeforeThreshold(t *testing.T) {
	store := newFakeStore()
	now := baseTime
	id := store.add(models.ScheduledPost{
		UserID:      7,
		ContentText: "in flight",
		ScheduledAt: now.Add(-time.Minute),
		Status:      models.PostStatusPublishing,
		MaxRetries:  3,
		UpdatedAt:   now.Add(-5 * time.Minute),
	})

	pub := &fakePublisher{}
	engine := newTestEngine(testConfig(), store, validTokens(), pub, now)

	engine.Tick(context.Background())

	post := store.get(t, id)
	assert.Equal(t, models.PostStatusPublishing, post.Status)
	assert.Equal(t, 0, post.RetryCount)
	assert.EqualValues(t, 0, pub.calls)
}

func TestStuckPostWithExhaustedRetriesFails(t *testing.T) {
	store := newFakeStore()
	now := baseTime
	id := store.add(models.ScheduledPost{
		UserID:      7,
		ContentText: "interrupted for good",
		ScheduledAt: now.Add(-time.Hour),
		Status:      models.PostStatusPublishing,
		RetryCount:  3,
		MaxRetries:  3,
		UpdatedAt:   now.Add(-time.Hour),
	})

	pub := &fakePublisher{}
	engine := newTestEngine(testConfig(), store, validTokens(), pub, now)

	engine.Tick(context.Background())

	post := store.get(t, id)
	assert.Equal(t, models.PostStatusFailed, post.Status)
	assert.Equal(t, 3, post.RetryCount)
	assert.Contains(t, post.ErrorMessage.String, "retries exhausted")
	assert.EqualValues(t, 0, pub.calls)
}

func TestUnclassifiedErrorIsTransient(t *testing.T) {
	store := newFakeStore()
	id := store.add(models.ScheduledPost{
		UserID:      7,
		ContentText: "weird error",
		ScheduledAt: baseTime,
		MaxRetries:  3,
	})

	pub := &fakePublisher{fn: func(string) (string, error) {
		return "", context.DeadlineExceeded
	}}
	engine := newTestEngine(testConfig(), store, validTokens(), pub, baseTime.Add(time.Second))

	engine.Tick(context.Background())

	post := store.get(t, id)
	assert.Equal(t, models.PostStatusPending, post.Status)
	assert.Equal(t, 1, post.RetryCount)
}
