package google

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/teemow/sbginvoice/internal/clock"
	"github.com/teemow/sbginvoice/internal/logging"
)

var testNow = time.Date(2024, 10, 5, 9, 0, 0, 0, time.UTC)

func TestClassifyToken(t *testing.T) {
	tests := []struct {
		name string
		tok  *oauth2.Token
		want CredentialState
	}{
		{"nil token", nil, StateInteractive},
		{"empty token", &oauth2.Token{}, StateInteractive},
		{"valid", &oauth2.Token{AccessToken: "a", Expiry: testNow.Add(time.Hour)}, StateValid},
		{"no expiry", &oauth2.Token{AccessToken: "a"}, StateValid},
		{"expired with refresh", &oauth2.Token{AccessToken: "a", RefreshToken: "r", Expiry: testNow.Add(-time.Hour)}, StateRefreshable},
		{"about to expire", &oauth2.Token{AccessToken: "a", RefreshToken: "r", Expiry: testNow.Add(time.Minute)}, StateRefreshable},
		{"refresh token only", &oauth2.Token{RefreshToken: "r"}, StateRefreshable},
		{"expired without refresh", &oauth2.Token{AccessToken: "a", Expiry: testNow.Add(-time.Hour)}, StateInteractive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyToken(tt.tok, testNow))
		})
	}
}

func TestCredentialState_String(t *testing.T) {
	assert.Equal(t, "valid", StateValid.String())
	assert.Equal(t, "refreshable", StateRefreshable.String())
	assert.Equal(t, "interactive", StateInteractive.String())
	assert.Equal(t, "CredentialState(7)", CredentialState(7).String())
}

// tokenEndpoint fakes Google's token endpoint.
type tokenEndpoint struct {
	refreshes atomic.Int32
	exchanges atomic.Int32
	failRefresh bool
}

func (e *tokenEndpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")

	switch r.PostForm.Get("grant_type") {
	case "refresh_token":
		e.refreshes.Add(1)
		if e.failRefresh {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"refreshed","token_type":"Bearer","expires_in":3600}`))
	case "authorization_code":
		e.exchanges.Add(1)
		if r.PostForm.Get("code_verifier") == "" {
			http.Error(w, `{"error":"invalid_request"}`, http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"authorized","token_type":"Bearer","refresh_token":"new-refresh","expires_in":3600}`))
	default:
		http.Error(w, `{"error":"unsupported_grant_type"}`, http.StatusBadRequest)
	}
}

func newTokenEndpoint(t *testing.T) (*tokenEndpoint, *httptest.Server) {
	t.Helper()
	e := &tokenEndpoint{}
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return e, srv
}

func testOAuthConfig(srv *httptest.Server) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		Endpoint: oauth2.Endpoint{
			AuthURL:   srv.URL + "/auth",
			TokenURL:  srv.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
		Scopes: DefaultOAuthScopes,
	}
}

type fakeAuthorizer struct {
	calls int
	tok   *oauth2.Token
	err   error
}

func (f *fakeAuthorizer) Authorize(ctx context.Context, conf *oauth2.Config) (*oauth2.Token, error) {
	f.calls++
	return f.tok, f.err
}

func newProvider(t *testing.T, srv *httptest.Server, cache *TokenCache, opts ...Option) *CredentialProvider {
	t.Helper()
	base := []Option{
		WithClock(&clock.MockClock{FixedNow: testNow}),
		WithHTTPClient(srv.Client()),
		WithLogger(logging.Discard()),
		WithInteractive(func() bool { return true }),
	}
	return NewCredentialProvider(testOAuthConfig(srv), cache, append(base, opts...)...)
}

func TestAuthenticate_ValidCachedToken(t *testing.T) {
	endpoint, srv := newTokenEndpoint(t)
	cache := NewTokenCache(filepath.Join(t.TempDir(), "token.json"))
	require.NoError(t, cache.Save(&oauth2.Token{AccessToken: "cached", Expiry: testNow.Add(time.Hour)}))

	auth := &fakeAuthorizer{}
	p := newProvider(t, srv, cache, WithAuthorizer(auth))

	tok, state, err := p.Authenticate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateValid, state)
	assert.Equal(t, "cached", tok.AccessToken)
	assert.Zero(t, endpoint.refreshes.Load())
	assert.Zero(t, auth.calls)
}

func TestAuthenticate_RefreshesExpiredToken(t *testing.T) {
	endpoint, srv := newTokenEndpoint(t)
	cache := NewTokenCache(filepath.Join(t.TempDir(), "token.json"))
	require.NoError(t, cache.Save(&oauth2.Token{
		AccessToken:  "stale",
		RefreshToken: "keep-me",
		Expiry:       testNow.Add(-time.Hour),
	}))

	auth := &fakeAuthorizer{}
	p := newProvider(t, srv, cache, WithAuthorizer(auth))

	tok, state, err := p.Authenticate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateRefreshable, state)
	assert.Equal(t, "refreshed", tok.AccessToken)
	assert.Equal(t, "keep-me", tok.RefreshToken)
	assert.EqualValues(t, 1, endpoint.refreshes.Load())
	assert.Zero(t, auth.calls)

	saved, err := cache.Load()
	require.NoError(t, err)
	assert.Equal(t, "refreshed", saved.AccessToken)
	assert.Equal(t, "keep-me", saved.RefreshToken)
}

func TestAuthenticate_FailedRefreshFallsBackToInteractive(t *testing.T) {
	endpoint, srv := newTokenEndpoint(t)
	endpoint.failRefresh = true
	cache := NewTokenCache(filepath.Join(t.TempDir(), "token.json"))
	require.NoError(t, cache.Save(&oauth2.Token{RefreshToken: "revoked", Expiry: testNow.Add(-time.Hour)}))

	auth := &fakeAuthorizer{tok: &oauth2.Token{AccessToken: "interactive", RefreshToken: "r"}}
	p := newProvider(t, srv, cache, WithAuthorizer(auth))

	tok, state, err := p.Authenticate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateRefreshable, state)
	assert.Equal(t, "interactive", tok.AccessToken)
	assert.Equal(t, 1, auth.calls)

	saved, err := cache.Load()
	require.NoError(t, err)
	assert.Equal(t, "interactive", saved.AccessToken)
}

func TestAuthenticate_MissingCacheRunsInteractive(t *testing.T) {
	_, srv := newTokenEndpoint(t)
	cache := NewTokenCache(filepath.Join(t.TempDir(), "token.json"))

	auth := &fakeAuthorizer{tok: &oauth2.Token{AccessToken: "fresh", RefreshToken: "r"}}
	p := newProvider(t, srv, cache, WithAuthorizer(auth))

	tok, state, err := p.Authenticate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateInteractive, state)
	assert.Equal(t, "fresh", tok.AccessToken)
	assert.True(t, cache.Exists())
}

func TestAuthenticate_NonInteractive(t *testing.T) {
	_, srv := newTokenEndpoint(t)
	cache := NewTokenCache(filepath.Join(t.TempDir(), "token.json"))

	auth := &fakeAuthorizer{tok: &oauth2.Token{AccessToken: "never"}}
	p := newProvider(t, srv, cache, WithAuthorizer(auth), WithInteractive(func() bool { return false }))

	_, _, err := p.Authenticate(context.Background())
	require.Error(t, err)

	var authErr *AuthenticationError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, StateInteractive, authErr.State)
	assert.ErrorIs(t, err, ErrNonInteractive)
	assert.Zero(t, auth.calls)
	assert.False(t, cache.Exists())
}

func TestAuthenticate_AuthorizerFailure(t *testing.T) {
	_, srv := newTokenEndpoint(t)
	cache := NewTokenCache(filepath.Join(t.TempDir(), "token.json"))

	denied := errors.New("access_denied")
	p := newProvider(t, srv, cache, WithAuthorizer(&fakeAuthorizer{err: denied}))

	_, _, err := p.Authenticate(context.Background())
	assert.ErrorIs(t, err, denied)

	var authErr *AuthenticationError
	assert.ErrorAs(t, err, &authErr)
}

func TestAuthenticate_NoAuthorizer(t *testing.T) {
	_, srv := newTokenEndpoint(t)
	p := newProvider(t, srv, NewTokenCache(filepath.Join(t.TempDir(), "token.json")))

	_, _, err := p.Authenticate(context.Background())
	assert.ErrorIs(t, err, ErrNonInteractive)
}

func TestAuthenticate_CorruptCacheIsInteractive(t *testing.T) {
	_, srv := newTokenEndpoint(t)
	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, writeFile(path, "not json"))

	auth := &fakeAuthorizer{tok: &oauth2.Token{AccessToken: "fresh"}}
	p := newProvider(t, srv, NewTokenCache(path), WithAuthorizer(auth))

	_, state, err := p.Authenticate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateInteractive, state)
	assert.Equal(t, 1, auth.calls)
}

func TestReauthorize_IgnoresValidCache(t *testing.T) {
	_, srv := newTokenEndpoint(t)
	cache := NewTokenCache(filepath.Join(t.TempDir(), "token.json"))
	require.NoError(t, cache.Save(&oauth2.Token{AccessToken: "cached", Expiry: testNow.Add(time.Hour)}))

	auth := &fakeAuthorizer{tok: &oauth2.Token{AccessToken: "forced"}}
	p := newProvider(t, srv, cache, WithAuthorizer(auth))

	tok, err := p.Reauthorize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "forced", tok.AccessToken)
	assert.Equal(t, 1, auth.calls)
}

func TestTokenSource_PersistsRefreshedTokens(t *testing.T) {
	endpoint, srv := newTokenEndpoint(t)
	cache := NewTokenCache(filepath.Join(t.TempDir(), "token.json"))

	// Valid under the mock clock, already expired for oauth2's wall clock,
	// so the returned source refreshes on first use.
	require.NoError(t, cache.Save(&oauth2.Token{
		AccessToken:  "cached",
		RefreshToken: "r",
		Expiry:       time.Now().Add(-time.Minute),
	}))

	p := newProvider(t, srv, cache, WithClock(&clock.MockClock{FixedNow: time.Now().Add(-time.Hour)}))

	ts, err := p.TokenSource(context.Background())
	require.NoError(t, err)

	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "refreshed", tok.AccessToken)
	assert.EqualValues(t, 1, endpoint.refreshes.Load())

	saved, err := cache.Load()
	require.NoError(t, err)
	assert.Equal(t, "refreshed", saved.AccessToken)
}
