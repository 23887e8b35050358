package calendar

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// exchangeRecorder is a token endpoint that remembers the form it received.
type exchangeRecorder struct {
	mu   sync.Mutex
	form url.Values
}

func newExchangeEndpoint(t *testing.T) (*oauth2.Config, *exchangeRecorder) {
	t.Helper()

	rec := &exchangeRecorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		rec.mu.Lock()
		rec.form = r.PostForm
		rec.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"exchanged","refresh_token":"r","token_type":"Bearer","expires_in":3600}`))
	}))
	t.Cleanup(srv.Close)

	return &oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		Endpoint: oauth2.Endpoint{
			AuthURL:   srv.URL + "/auth",
			TokenURL:  srv.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}, rec
}

func (e *exchangeRecorder) get(key string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.form.Get(key)
}

// visit plays the browser: it follows the authorization URL's redirect back
// to the loopback listener with the given query.
func visit(authURL string, query func(state string) url.Values) {
	u, err := url.Parse(authURL)
	if err != nil {
		return
	}
	redirect := u.Query().Get("redirect_uri")
	state := u.Query().Get("state")

	resp, err := http.Get(redirect + "?" + query(state).Encode())
	if err == nil {
		_ = resp.Body.Close()
	}
}

func TestLoopbackConsent_ExchangesCode(t *testing.T) {
	cfg, rec := newExchangeEndpoint(t)

	consent := &LoopbackConsent{OnURL: func(authURL string) {
		u, _ := url.Parse(authURL)
		assert.Equal(t, "S256", u.Query().Get("code_challenge_method"))
		assert.Equal(t, "offline", u.Query().Get("access_type"))

		// Deliver from another goroutine so Authorize is already waiting.
		go visit(authURL, func(state string) url.Values {
			return url.Values{"state": {state}, "code": {"the-code"}}
		})
	}}

	tok, err := consent.Authorize(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, "exchanged", tok.AccessToken)
	assert.Equal(t, "the-code", rec.get("code"))
	assert.NotEmpty(t, rec.get("code_verifier"))
	assert.Contains(t, rec.get("redirect_uri"), "http://127.0.0.1:")
}

func TestLoopbackConsent_RejectsStateMismatch(t *testing.T) {
	cfg, rec := newExchangeEndpoint(t)

	consent := &LoopbackConsent{OnURL: func(authURL string) {
		go visit(authURL, func(string) url.Values {
			return url.Values{"state": {"forged"}, "code": {"the-code"}}
		})
	}}

	_, err := consent.Authorize(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "state mismatch")
	assert.Empty(t, rec.get("code"), "no exchange after a bad callback")
}

func TestLoopbackConsent_Cancelled(t *testing.T) {
	cfg, _ := newExchangeEndpoint(t)

	ctx, cancel := context.WithCancel(context.Background())
	var out bytes.Buffer
	consent := &LoopbackConsent{Out: &out}

	cancel()
	_, err := consent.Authorize(ctx, cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, out.String(), "/auth?")
}

func TestManualConsent(t *testing.T) {
	cfg, rec := newExchangeEndpoint(t)

	var out bytes.Buffer
	consent := &ManualConsent{
		Out: &out,
		Prompt: func() (string, error) {
			return "http://localhost/?state=x&code=pasted-code&scope=calendar", nil
		},
	}

	tok, err := consent.Authorize(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, "exchanged", tok.AccessToken)
	assert.Equal(t, "pasted-code", rec.get("code"))
	assert.Equal(t, manualRedirectURL, rec.get("redirect_uri"))
	assert.NotEmpty(t, rec.get("code_verifier"))
	assert.Contains(t, out.String(), "Step 1")
}

func TestManualConsent_PromptError(t *testing.T) {
	cfg, rec := newExchangeEndpoint(t)

	consent := &ManualConsent{Prompt: func() (string, error) {
		return "", errors.New("interrupted")
	}}

	_, err := consent.Authorize(context.Background(), cfg)
	require.Error(t, err)
	assert.Empty(t, rec.get("code"))
}

func TestParseCode(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "bare code", input: "  4/0Abc  ", want: "4/0Abc"},
		{name: "redirected url", input: "http://localhost/?code=4%2F0Abc&scope=x", want: "4/0Abc"},
		{name: "denied", input: "http://localhost/?error=access_denied", wantErr: true},
		{name: "url without code", input: "http://localhost/?scope=x", wantErr: true},
		{name: "empty", input: "   ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseCode(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadCallback(t *testing.T) {
	res := readCallback(url.Values{"state": {"s"}, "code": {"c"}}, "s")
	require.NoError(t, res.err)
	assert.Equal(t, "c", res.code)

	res = readCallback(url.Values{"state": {"s"}, "error": {"access_denied"}}, "s")
	assert.ErrorContains(t, res.err, "access_denied")

	res = readCallback(url.Values{"state": {"s"}}, "s")
	assert.Error(t, res.err)
}
