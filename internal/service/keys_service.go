package service

import (
	"context"
	"fmt"
	"log/slog"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/winningsales/contenthub/internal/models"
	"github.com/winningsales/contenthub/internal/repository"
)

type ApiKeyService interface {
	Create(ctx context.Context, userID int64) error
	List(ctx context.Context, userID int64) ([]*models.ApiKey, error)
	GetUserID(ctx context.Context, apiKey string) (int64, error)
	RemoveAPIKey(ctx context.Context, userID, keyID int64) error
}

type apiKeyService struct {
	k repository.ApiKeyRepository
}

func NewApiKeyService(k repository.ApiKeyRepository) ApiKeyService {
	return &apiKeyService{
		k: k,
	}
}

func (s *apiKeyService) Create(ctx context.Context, userID int64) error {
	keys, err := s.k.GetByUserID(ctx, userID)
	if err != nil {
		return err
	}

	if len(keys) > 4 {
		err = fmt.Errorf("%w: only 5 API keys can be created", ErrValidation)
		slog.Info(err.Error())
		return err
	}

	key, err := gonanoid.New(32)
	if err != nil {
		slog.Info(err.Error())
		return fmt.Errorf("error generating API key")
	}

	apiKey := &models.ApiKey{
		UserID: userID,
		ApiKey: key,
	}

	if _, err := s.k.Create(ctx, apiKey); err != nil {
		return fmt.Errorf("error saving API key")
	}

	return nil
}

func (s *apiKeyService) List(ctx context.Context, userID int64) ([]*models.ApiKey, error) {
	keys, err := s.k.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error getting API keys")
	}
	return keys, nil
}

func (s *apiKeyService) GetUserID(ctx context.Context, apiKey string) (int64, error) {
	userID, isExist, err := s.k.GetByKey(ctx, apiKey)
	if err != nil {
		return 0, fmt.Errorf("error validating API key")
	}
	if !isExist {
		err = fmt.Errorf("%w: unknown API key", ErrNotFound)
		slog.Info(err.Error())
		return 0, err
	}
	return *userID, nil
}

func (s *apiKeyService) RemoveAPIKey(ctx context.Context, userID, keyID int64) error {
	isValid, err := s.k.CheckByUserID(ctx, keyID, userID)
	if err != nil {
		return err
	}
	if !isValid {
		err = fmt.Errorf("%w: API key %d", ErrNotFound, keyID)
		slog.Info(err.Error())
		return err
	}

	if err := s.k.Remove(ctx, keyID); err != nil {
		return fmt.Errorf("error removing API key")
	}
	return nil
}
