package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/linkedin"

	config "github.com/winningsales/contenthub/configs"
	"github.com/winningsales/contenthub/internal/models"
	"github.com/winningsales/contenthub/internal/repository"
	"github.com/winningsales/contenthub/internal/scheduler"
	"github.com/winningsales/contenthub/internal/transfer"
	"github.com/winningsales/contenthub/pkg/utils"
)

const (
	linkedinUserInfoURL = "https://api.linkedin.com/v2/userinfo"
	linkedinUGCPostsURL = "https://api.linkedin.com/v2/ugcPosts"

	// Scope required to publish on a member's behalf.
	linkedinPublishScope = "w_member_social"
)

type LinkedinService interface {
	GetAuthURL(ctx context.Context, state string) string
	Callback(ctx context.Context, code string, userID int64) error
	RefreshToken(ctx context.Context, acc *models.LinkedinAccount) error
	AccountInfo(ctx context.Context, userID int64) (*models.LinkedinAccount, bool, error)
	Disconnect(ctx context.Context, userID int64) error

	// Adapters the publisher engine consumes.
	GetValidCredential(ctx context.Context, userID int64) (*scheduler.Credential, error)
	Publish(ctx context.Context, cred *scheduler.Credential, text string) (string, error)
}

type linkedinService struct {
	cfg         config.Config
	la          repository.LinkedinAccountRepository
	httpClient  *http.Client
	userInfoURL string
	ugcPostsURL string
	now         func() time.Time
}

func NewLinkedinService(cfg config.Config, la repository.LinkedinAccountRepository) LinkedinService {
	return &linkedinService{
		cfg: cfg,
		la:  la,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		userInfoURL: linkedinUserInfoURL,
		ugcPostsURL: linkedinUGCPostsURL,
		now:         time.Now,
	}
}

func (s *linkedinService) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     s.cfg.LinkedinClientID,
		ClientSecret: s.cfg.LinkedinClientSecret,
		RedirectURL:  s.cfg.LinkedinRedirectURI,
		Scopes:       []string{"openid", "profile", "email", linkedinPublishScope},
		Endpoint:     linkedin.Endpoint,
	}
}

func (s *linkedinService) GetAuthURL(ctx context.Context, state string) string {
	return s.oauthConfig().AuthCodeURL(state)
}

func (s *linkedinService) Callback(ctx context.Context, code string, userID int64) error {
	if code == "" {
		err := errors.New("code is empty")
		slog.Info(err.Error())
		return err
	}

	oauthCfg := s.oauthConfig()
	token, err := oauthCfg.Exchange(ctx, code)
	if err != nil {
		slog.Info(err.Error())
		return fmt.Errorf("failed to exchange linkedin code: %w", err)
	}

	userInfo, err := s.fetchUserInfo(ctx, token.AccessToken)
	if err != nil {
		return err
	}

	encryptedAccessToken, err := utils.Encrypt([]byte(token.AccessToken), []byte(s.cfg.SecretKey))
	if err != nil {
		return err
	}

	encryptedRefreshToken := ""
	if token.RefreshToken != "" {
		encryptedRefreshToken, err = utils.Encrypt([]byte(token.RefreshToken), []byte(s.cfg.SecretKey))
		if err != nil {
			return err
		}
	}

	account := &models.LinkedinAccount{
		UserID:         userID,
		MemberID:       userInfo.Sub,
		MemberName:     userInfo.Name,
		AccessToken:    encryptedAccessToken,
		RefreshToken:   encryptedRefreshToken,
		TokenExpiresAt: token.Expiry,
		Scopes:         strings.Join(oauthCfg.Scopes, " "),
	}

	if _, err := s.la.Upsert(ctx, account); err != nil {
		return err
	}

	return nil
}

func (s *linkedinService) fetchUserInfo(ctx context.Context, accessToken string) (*transfer.LinkedinUserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.userInfoURL, nil)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		slog.Info("linkedin userinfo endpoint returned non-200 status")
		return nil, fmt.Errorf("linkedin userinfo returned status %d", resp.StatusCode)
	}

	var userInfo transfer.LinkedinUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&userInfo); err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("failed to decode userinfo response: %w", err)
	}

	return &userInfo, nil
}

func (s *linkedinService) RefreshToken(ctx context.Context, acc *models.LinkedinAccount) error {
	if acc.RefreshToken == "" {
		return errors.New("no refresh token stored")
	}

	decryptedRefreshToken, err := utils.Decrypt(acc.RefreshToken, []byte(s.cfg.SecretKey))
	if err != nil {
		return err
	}

	source := s.oauthConfig().TokenSource(ctx, &oauth2.Token{RefreshToken: decryptedRefreshToken})
	token, err := source.Token()
	if err != nil {
		slog.Info(err.Error())
		return fmt.Errorf("failed to refresh linkedin token: %w", err)
	}

	encryptedAccessToken, err := utils.Encrypt([]byte(token.AccessToken), []byte(s.cfg.SecretKey))
	if err != nil {
		return err
	}

	encryptedRefreshToken := acc.RefreshToken
	if token.RefreshToken != "" && token.RefreshToken != decryptedRefreshToken {
		encryptedRefreshToken, err = utils.Encrypt([]byte(token.RefreshToken), []byte(s.cfg.SecretKey))
		if err != nil {
			return err
		}
	}

	if err := s.la.SetToken(ctx, acc.ID, encryptedAccessToken, encryptedRefreshToken, token.Expiry); err != nil {
		return err
	}

	acc.AccessToken = encryptedAccessToken
	acc.RefreshToken = encryptedRefreshToken
	acc.TokenExpiresAt = token.Expiry

	return nil
}

func (s *linkedinService) AccountInfo(ctx context.Context, userID int64) (*models.LinkedinAccount, bool, error) {
	return s.la.GetByUserID(ctx, userID)
}

func (s *linkedinService) Disconnect(ctx context.Context, userID int64) error {
	return s.la.Remove(ctx, userID)
}

// GetValidCredential implements scheduler.TokenProvider. An account that is
// missing, expired without a refresh token, or lacking the publish scope
// reports scheduler.ErrTokenUnavailable.
func (s *linkedinService) GetValidCredential(ctx context.Context, userID int64) (*scheduler.Credential, error) {
	acc, exists, err := s.la.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: account not connected", scheduler.ErrTokenUnavailable)
	}

	if !hasScope(acc.Scopes, linkedinPublishScope) {
		return nil, fmt.Errorf("%w: missing %q scope", scheduler.ErrTokenUnavailable, linkedinPublishScope)
	}

	if !acc.TokenExpiresAt.After(s.now()) {
		if err := s.RefreshToken(ctx, acc); err != nil {
			slog.Info(err.Error())
			return nil, fmt.Errorf("%w: token expired and refresh failed", scheduler.ErrTokenUnavailable)
		}
	}

	accessToken, err := utils.Decrypt(acc.AccessToken, []byte(s.cfg.SecretKey))
	if err != nil {
		return nil, fmt.Errorf("%w: token decryption failed", scheduler.ErrTokenUnavailable)
	}

	return &scheduler.Credential{
		AccessToken: accessToken,
		AuthorURN:   "urn:li:person:" + acc.MemberID,
	}, nil
}

// hasScope tolerates both comma and space separated scope strings.
func hasScope(scopes, want string) bool {
	for _, s := range strings.Fields(strings.ReplaceAll(scopes, ",", " ")) {
		if s == want {
			return true
		}
	}
	return false
}

// Publish implements scheduler.PublishClient: creates a text-only UGC share
// and returns the remote post id from the X-RestLi-Id response header.
func (s *linkedinService) Publish(ctx context.Context, cred *scheduler.Credential, text string) (string, error) {
	payload := transfer.UGCPostRequest{
		Author:         cred.AuthorURN,
		LifecycleState: "PUBLISHED",
		SpecificContent: transfer.UGCSpecificContent{
			ShareContent: transfer.UGCShareContent{
				ShareCommentary:    transfer.UGCText{Text: text},
				ShareMediaCategory: "NONE",
			},
		},
		Visibility: transfer.UGCVisibility{
			MemberNetworkVisibility: "PUBLIC",
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", &scheduler.PublishError{Permanent: true, Message: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.ugcPostsURL, bytes.NewReader(body))
	if err != nil {
		return "", &scheduler.PublishError{Permanent: true, Message: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Restli-Protocol-Version", "2.0.0")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		// Network errors and client timeouts are retryable.
		return "", &scheduler.PublishError{Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
		remoteID := resp.Header.Get("X-RestLi-Id")
		if remoteID == "" {
			var created struct {
				ID string `json:"id"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&created); err == nil {
				remoteID = created.ID
			}
		}
		if remoteID == "" {
			// The share was created; retrying would post it twice.
			return "", &scheduler.PublishError{Permanent: true, Message: "publish succeeded but no post id returned"}
		}
		return remoteID, nil
	}

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	pubErr := &scheduler.PublishError{
		StatusCode: resp.StatusCode,
		Message:    strings.TrimSpace(string(respBody)),
	}
	// 429 and 5xx are retryable; any other 4xx is a content or account
	// rejection that retrying cannot fix.
	if resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode < http.StatusInternalServerError {
		pubErr.Permanent = true
	}
	return "", pubErr
}
