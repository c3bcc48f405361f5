package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// authServer issues tokens "a1", "a2"... to user/secret. idToken, when set,
// returns the id token to attach.
func authServer(t *testing.T, logins *atomic.Int32, idToken func() string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		w.Header().Set("Content-Type", "application/json")
		if r.PostForm.Get("grant_type") != "password" || r.PostForm.Get("username") != "user" || r.PostForm.Get("password") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]any{"error": "invalid_grant"})
			return
		}
		n := logins.Add(1)
		body := map[string]any{
			"access_token": fmt.Sprintf("a%d", n),
			"token_type":   "Bearer",
			"expires_in":   3600,
		}
		if idToken != nil {
			body["id_token"] = idToken()
		}
		json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newSession(srv *httptest.Server, password string, clock func() time.Time) *Session {
	return New(Config{
		TokenURL: srv.URL,
		ClientID: "tradebook",
		Username: "user",
		Password: password,
	}, WithHTTPClient(srv.Client()), WithClock(clock))
}

func TestSession_Lifecycle(t *testing.T) {
	var logins atomic.Int32
	srv := authServer(t, &logins, nil)
	now := time.Now()
	s := newSession(srv, "secret", func() time.Time { return now })

	_, err := s.Token()
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	require.NoError(t, s.Init(context.Background()))
	tok, err := s.Token()
	require.NoError(t, err)
	assert.Equal(t, "a1", tok.AccessToken)
	_, err = s.Token()
	require.NoError(t, err)
	assert.EqualValues(t, 1, logins.Load(), "a fresh token is reused")

	now = now.Add(DefaultRefreshPeriod)
	tok, err = s.Token()
	require.NoError(t, err)
	assert.Equal(t, "a2", tok.AccessToken)

	require.NoError(t, s.Refresh())
	tok, err = s.Token()
	require.NoError(t, err)
	assert.Equal(t, "a3", tok.AccessToken)

	s.Teardown()
	_, err = s.Token()
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.ErrorIs(t, s.Refresh(), ErrNotAuthenticated)
	assert.True(t, s.Expiry().IsZero())
}

func TestSession_LoginFailure(t *testing.T) {
	var logins atomic.Int32
	srv := authServer(t, &logins, nil)
	s := newSession(srv, "wrong", time.Now)

	err := s.Init(context.Background())
	var retrieve *oauth2.RetrieveError
	require.ErrorAs(t, err, &retrieve)
	assert.Equal(t, http.StatusUnauthorized, retrieve.Response.StatusCode)
	assert.Zero(t, logins.Load())

	_, err = s.Token()
	assert.Error(t, err, "a failed login is retried and fails again")
}

func TestSession_IDTokenExpiry(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	idExp := now.Add(10 * time.Minute)
	idToken := func() string {
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub": "user",
			"exp": idExp.Unix(),
		}).SignedString([]byte("issuer-key"))
		require.NoError(t, err)
		return signed
	}
	var logins atomic.Int32
	srv := authServer(t, &logins, idToken)
	s := newSession(srv, "secret", func() time.Time { return now })

	require.NoError(t, s.Init(context.Background()))
	assert.True(t, s.Expiry().Equal(idExp), "the id token expires before the access token")

	now = now.Add(9 * time.Minute)
	_, err := s.Token()
	require.NoError(t, err)
	assert.EqualValues(t, 1, logins.Load())

	now = now.Add(time.Minute)
	idExp = now.Add(10 * time.Minute)
	tok, err := s.Token()
	require.NoError(t, err)
	assert.Equal(t, "a2", tok.AccessToken)
	assert.EqualValues(t, 2, logins.Load())
}

func TestSession_HTTPClient(t *testing.T) {
	var logins atomic.Int32
	auth := authServer(t, &logins, nil)
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer a1" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer api.Close()

	s := newSession(auth, "secret", time.Now)
	require.NoError(t, s.Init(context.Background()))
	resp, err := s.HTTPClient().Get(api.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	s.Teardown()
	_, err = s.HTTPClient().Get(api.URL)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}
