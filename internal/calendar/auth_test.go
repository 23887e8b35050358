package calendar

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"

	"github.com/nhle/bdaycal/internal/source"
)

type memTokens struct {
	tok   *oauth2.Token
	saved []*oauth2.Token
}

func (m *memTokens) Load() (*oauth2.Token, error) { return m.tok, nil }

func (m *memTokens) Save(tok *oauth2.Token) error {
	m.tok = tok
	m.saved = append(m.saved, tok)
	return nil
}

type fakeConsent struct {
	tok   *oauth2.Token
	err   error
	calls int
}

func (f *fakeConsent) Authorize(context.Context, *oauth2.Config) (*oauth2.Token, error) {
	f.calls++
	return f.tok, f.err
}

// newTokenEndpoint serves the OAuth token endpoint. A refresh succeeds when
// ok is true.
func newTokenEndpoint(t *testing.T, ok bool) (*oauth2.Config, *int) {
	t.Helper()

	var mu sync.Mutex
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if !ok {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"refreshed","token_type":"Bearer","expires_in":3600}`))
	}))
	t.Cleanup(srv.Close)

	return &oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		Endpoint: oauth2.Endpoint{
			AuthURL:  srv.URL + "/auth",
			TokenURL: srv.URL + "/token",
		},
	}, &hits
}

func validToken(access string) *oauth2.Token {
	return &oauth2.Token{AccessToken: access, TokenType: "Bearer", Expiry: time.Now().Add(time.Hour)}
}

func expiredToken() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  "stale",
		RefreshToken: "refresh-me",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(-time.Hour),
	}
}

func TestStateOf(t *testing.T) {
	assert.Equal(t, TokenExpired, StateOf(nil))
	assert.Equal(t, TokenExpired, StateOf(expiredToken()))
	assert.Equal(t, TokenValid, StateOf(validToken("a")))
	assert.Equal(t, "valid", TokenValid.String())
}

func TestToken_ValidIsUsedAsIs(t *testing.T) {
	cfg, hits := newTokenEndpoint(t, true)
	tokens := &memTokens{tok: validToken("cached")}
	consent := &fakeConsent{}

	tok, err := NewAuthenticatorWithConfig(cfg, tokens, consent).Token(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "cached", tok.AccessToken)
	assert.Zero(t, *hits)
	assert.Zero(t, consent.calls)
	assert.Empty(t, tokens.saved, "a valid token is not rewritten")
}

func TestToken_ExpiredIsRefreshedAndPersisted(t *testing.T) {
	cfg, hits := newTokenEndpoint(t, true)
	tokens := &memTokens{tok: expiredToken()}
	consent := &fakeConsent{}

	tok, err := NewAuthenticatorWithConfig(cfg, tokens, consent).Token(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "refreshed", tok.AccessToken)
	assert.Equal(t, 1, *hits)
	assert.Zero(t, consent.calls)
	require.Len(t, tokens.saved, 1)
	assert.Equal(t, "refreshed", tokens.saved[0].AccessToken)
}

func TestToken_RefreshFailureFallsBackToConsent(t *testing.T) {
	cfg, _ := newTokenEndpoint(t, false)
	tokens := &memTokens{tok: expiredToken()}
	consent := &fakeConsent{tok: validToken("consented")}

	tok, err := NewAuthenticatorWithConfig(cfg, tokens, consent).Token(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "consented", tok.AccessToken)
	assert.Equal(t, 1, consent.calls)
	require.Len(t, tokens.saved, 1)
	assert.Equal(t, "consented", tokens.saved[0].AccessToken)
}

func TestToken_MissingRunsConsent(t *testing.T) {
	cfg, hits := newTokenEndpoint(t, true)
	tokens := &memTokens{}
	consent := &fakeConsent{tok: validToken("first")}

	tok, err := NewAuthenticatorWithConfig(cfg, tokens, consent).Token(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "first", tok.AccessToken)
	assert.Zero(t, *hits, "nothing to refresh")
	assert.Equal(t, 1, consent.calls)
}

func TestToken_BothFailIsAuthError(t *testing.T) {
	cfg, _ := newTokenEndpoint(t, false)
	tokens := &memTokens{tok: expiredToken()}
	consent := &fakeConsent{err: errors.New("user closed the browser")}

	_, err := NewAuthenticatorWithConfig(cfg, tokens, consent).Token(context.Background())
	require.Error(t, err)
	assert.True(t, source.IsAuthError(err))
	assert.Empty(t, tokens.saved)
}

func TestAuthenticate_SendsBearerToken(t *testing.T) {
	cfg, _ := newTokenEndpoint(t, true)
	tokens := &memTokens{tok: validToken("cached")}

	api := &fakeCalendarAPI{}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	auth := NewAuthenticatorWithConfig(cfg, tokens, &fakeConsent{}, option.WithEndpoint(srv.URL+"/"))
	svc, err := auth.Authenticate(context.Background())
	require.NoError(t, err)

	_, err = svc.EventExists(context.Background(), "primary", alice)
	require.NoError(t, err)

	api.mu.Lock()
	defer api.mu.Unlock()
	require.NotEmpty(t, api.authz)
	assert.Equal(t, "Bearer cached", api.authz[0])
}

func TestNewAuthenticator_BadSecret(t *testing.T) {
	_, err := NewAuthenticator([]byte("{}"), &memTokens{}, &fakeConsent{})
	assert.True(t, source.IsAuthError(err))
}

func TestNewAuthenticator_InstalledSecret(t *testing.T) {
	secret := []byte(`{"installed":{"client_id":"id.apps.googleusercontent.com","client_secret":"s",` +
		`"auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token",` +
		`"redirect_uris":["http://localhost"]}}`)

	auth, err := NewAuthenticator(secret, &memTokens{}, &fakeConsent{})
	require.NoError(t, err)
	assert.Equal(t, "id.apps.googleusercontent.com", auth.config.ClientID)
	assert.Contains(t, auth.config.Scopes, "https://www.googleapis.com/auth/calendar")
}
