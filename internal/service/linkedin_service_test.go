package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/winningsales/contenthub/configs"
	"github.com/winningsales/contenthub/internal/models"
	"github.com/winningsales/contenthub/internal/scheduler"
	"github.com/winningsales/contenthub/internal/transfer"
	"github.com/winningsales/contenthub/pkg/utils"
)

const testSecretKey = "0123456789abcdef0123456789abcdef"

func newTestLinkedinService(la *fakeAccountRepo) *linkedinService {
	return &linkedinService{
		cfg:         config.Config{SecretKey: testSecretKey},
		la:          la,
		httpClient:  &http.Client{Timeout: 5 * time.Second},
		userInfoURL: linkedinUserInfoURL,
		ugcPostsURL: linkedinUGCPostsURL,
		now:         func() time.Time { return serviceTime },
	}
}

func encryptToken(t *testing.T, token string) string {
	t.Helper()
	encrypted, err := utils.Encrypt([]byte(token), []byte(testSecretKey))
	require.NoError(t, err)
	return encrypted
}

func TestHasScope(t *testing.T) {
	assert.True(t, hasScope("openid profile email w_member_social", "w_member_social"))
	assert.True(t, hasScope("openid,profile,w_member_social", "w_member_social"))
	assert.False(t, hasScope("openid profile email", "w_member_social"))
	assert.False(t, hasScope("", "w_member_social"))
	assert.False(t, hasScope("w_member_social_extra", "w_member_social"))
}

func TestGetValidCredential(t *testing.T) {
	la := newFakeAccountRepo()
	la.accounts[7] = &models.LinkedinAccount{
		ID:             1,
		UserID:         7,
		MemberID:       "AbC123",
		AccessToken:    encryptToken(t, "live-token"),
		TokenExpiresAt: serviceTime.Add(time.Hour),
		Scopes:         "openid profile email w_member_social",
	}
	s := newTestLinkedinService(la)

	cred, err := s.GetValidCredential(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "live-token", cred.AccessToken)
	assert.Equal(t, "urn:li:person:AbC123", cred.AuthorURN)
}

func TestGetValidCredentialNotConnected(t *testing.T) {
	s := newTestLinkedinService(newFakeAccountRepo())

	_, err := s.GetValidCredential(context.Background(), 7)
	assert.ErrorIs(t, err, scheduler.ErrTokenUnavailable)
}

func TestGetValidCredentialMissingScope(t *testing.T) {
	la := newFakeAccountRepo()
	la.accounts[7] = &models.LinkedinAccount{
		ID:             1,
		UserID:         7,
		MemberID:       "AbC123",
		AccessToken:    encryptToken(t, "live-token"),
		TokenExpiresAt: serviceTime.Add(time.Hour),
		Scopes:         "openid profile email",
	}
	s := newTestLinkedinService(la)

	_, err := s.GetValidCredential(context.Background(), 7)
	assert.ErrorIs(t, err, scheduler.ErrTokenUnavailable)
}

func TestGetValidCredentialExpiredWithoutRefreshToken(t *testing.T) {
	la := newFakeAccountRepo()
	la.accounts[7] = &models.LinkedinAccount{
		ID:             1,
		UserID:         7,
		MemberID:       "AbC123",
		AccessToken:    encryptToken(t, "stale-token"),
		TokenExpiresAt: serviceTime.Add(-time.Minute),
		Scopes:         "openid profile email w_member_social",
	}
	s := newTestLinkedinService(la)

	_, err := s.GetValidCredential(context.Background(), 7)
	assert.ErrorIs(t, err, scheduler.ErrTokenUnavailable)
}

func publishTestService(t *testing.T, handler http.HandlerFunc) *linkedinService {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	s := newTestLinkedinService(newFakeAccountRepo())
	s.ugcPostsURL = server.URL
	return s
}

func testCredential() *scheduler.Credential {
	return &scheduler.Credential{AccessToken: "live-token", AuthorURN: "urn:li:person:AbC123"}
}

func TestPublishReturnsHeaderID(t *testing.T) {
	s := publishTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer live-token", r.Header.Get("Authorization"))
		assert.Equal(t, "2.0.0", r.Header.Get("X-Restli-Protocol-Version"))

		var payload transfer.UGCPostRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "urn:li:person:AbC123", payload.Author)
		assert.Equal(t, "PUBLISHED", payload.LifecycleState)
		assert.Equal(t, "hello linkedin", payload.SpecificContent.ShareContent.ShareCommentary.Text)

		w.Header().Set("X-RestLi-Id", "urn:li:share:42")
		w.WriteHeader(http.StatusCreated)
	})

	id, err := s.Publish(context.Background(), testCredential(), "hello linkedin")
	require.NoError(t, err)
	assert.Equal(t, "urn:li:share:42", id)
}

func TestPublishFallsBackToBodyID(t *testing.T) {
	s := publishTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"id": "urn:li:share:43"})
	})

	id, err := s.Publish(context.Background(), testCredential(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "urn:li:share:43", id)
}

func TestPublishClassifiesClientErrorAsPermanent(t *testing.T) {
	s := publishTestService(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "duplicate post", http.StatusUnprocessableEntity)
	})

	_, err := s.Publish(context.Background(), testCredential(), "hello")
	var pubErr *scheduler.PublishError
	require.ErrorAs(t, err, &pubErr)
	assert.True(t, pubErr.Permanent)
	assert.Equal(t, http.StatusUnprocessableEntity, pubErr.StatusCode)
	assert.Contains(t, pubErr.Message, "duplicate post")
}

func TestPublishClassifiesServerErrorAsTransient(t *testing.T) {
	for _, status := range []int{http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway} {
		s := publishTestService(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "try again", status)
		})

		_, err := s.Publish(context.Background(), testCredential(), "hello")
		var pubErr *scheduler.PublishError
		require.ErrorAs(t, err, &pubErr, "status=%d", status)
		assert.False(t, pubErr.Permanent, "status=%d", status)
		assert.Equal(t, status, pubErr.StatusCode)
	}
}

func TestPublishClassifiesNetworkErrorAsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	s := newTestLinkedinService(newFakeAccountRepo())
	s.ugcPostsURL = server.URL
	server.Close()

	_, err := s.Publish(context.Background(), testCredential(), "hello")
	var pubErr *scheduler.PublishError
	require.ErrorAs(t, err, &pubErr)
	assert.False(t, pubErr.Permanent)
}
