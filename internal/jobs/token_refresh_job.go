package job

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/winningsales/contenthub/internal/models"
	"github.com/winningsales/contenthub/internal/repository"
	"github.com/winningsales/contenthub/internal/service"
)

// TokenRefreshJob proactively refreshes LinkedIn tokens that are about to
// expire so the publisher rarely has to refresh inline during a tick.
type TokenRefreshJob struct {
	la repository.LinkedinAccountRepository
	ls service.LinkedinService
}

func NewTokenRefreshJob(la repository.LinkedinAccountRepository, ls service.LinkedinService) *TokenRefreshJob {
	return &TokenRefreshJob{
		la: la,
		ls: ls,
	}
}

func (c *TokenRefreshJob) RefreshTokens() {
	ctx := context.Background()

	currentTime := time.Now()
	timeIn30Minutes := currentTime.Add(30 * time.Minute)

	accounts, err := c.la.ListExpiring(ctx, currentTime, timeIn30Minutes)
	if err != nil {
		slog.Info(err.Error())
		return
	}

	var wg sync.WaitGroup

	concurrencyLimit := 10
	semaphore := make(chan struct{}, concurrencyLimit)

	for _, acc := range accounts {
		if acc.RefreshToken == "" {
			continue
		}

		wg.Add(1)
		semaphore <- struct{}{}

		go func(acc *models.LinkedinAccount) {
			defer wg.Done()
			defer func() { <-semaphore }()

			if err := c.ls.RefreshToken(ctx, acc); err != nil {
				slog.Info("unable to refresh linkedin token",
					slog.Int64("user_id", acc.UserID),
					slog.String("error", err.Error()))
			}
		}(acc)
	}

	wg.Wait()
}
