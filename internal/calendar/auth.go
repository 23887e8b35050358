package calendar

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/nhle/bdaycal/internal/logger"
	"github.com/nhle/bdaycal/internal/source"
)

// Consent runs an interactive authorization and returns a fresh token.
type Consent interface {
	Authorize(ctx context.Context, cfg *oauth2.Config) (*oauth2.Token, error)
}

// Authenticator turns the cached credential into a calendar session,
// refreshing or re-authorizing as needed.
type Authenticator struct {
	config  *oauth2.Config
	tokens  TokenStore
	consent Consent
	opts    []option.ClientOption
}

// LoadClientSecret reads the OAuth client JSON downloaded from the Google
// Cloud console.
func LoadClientSecret(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &source.AuthError{
			SourceType: source.SourceTypeCalendar,
			Message:    fmt.Sprintf("reading client secret %s", path),
			Err:        err,
		}
	}
	return data, nil
}

// NewAuthenticator builds an authenticator for the calendar read/write scope
// from a client secret JSON document.
func NewAuthenticator(
	secretJSON []byte, tokens TokenStore, consent Consent, opts ...option.ClientOption,
) (*Authenticator, error) {
	cfg, err := google.ConfigFromJSON(secretJSON, gcal.CalendarScope)
	if err != nil {
		return nil, &source.AuthError{
			SourceType: source.SourceTypeCalendar,
			Message:    "parsing client secret",
			Err:        err,
		}
	}
	return NewAuthenticatorWithConfig(cfg, tokens, consent, opts...), nil
}

// NewAuthenticatorWithConfig is NewAuthenticator for an already built
// OAuth config. Extra client options are passed to the calendar client.
func NewAuthenticatorWithConfig(
	cfg *oauth2.Config, tokens TokenStore, consent Consent, opts ...option.ClientOption,
) *Authenticator {
	return &Authenticator{
		config:  cfg,
		tokens:  tokens,
		consent: consent,
		opts:    opts,
	}
}

// Token returns a valid token, walking the Valid/Expired lifecycle. Any
// token it had to obtain is persisted before returning.
func (a *Authenticator) Token(ctx context.Context) (*oauth2.Token, error) {
	log := logger.FromContext(ctx)

	tok, err := a.tokens.Load()
	if err != nil {
		log.Warn().Err(err).Msg("Ignoring unreadable cached calendar token")
		tok = nil
	}

	state := StateOf(tok)
	log.Debug().Stringer("state", state).Msg("Cached calendar token")

	if state == TokenValid {
		return tok, nil
	}

	if tok != nil && tok.RefreshToken != "" {
		refreshed, err := a.config.TokenSource(ctx, tok).Token()
		if err == nil {
			a.persist(ctx, refreshed)
			return refreshed, nil
		}
		log.Warn().Err(err).Msg("Calendar token refresh failed, starting authorization")
	}

	fresh, err := a.consent.Authorize(ctx, a.config)
	if err != nil {
		return nil, &source.AuthError{
			SourceType: source.SourceTypeCalendar,
			Message:    "authorization failed",
			Err:        err,
		}
	}

	a.persist(ctx, fresh)
	return fresh, nil
}

// Authenticate returns a calendar session backed by a valid token.
func (a *Authenticator) Authenticate(ctx context.Context) (*Service, error) {
	tok, err := a.Token(ctx)
	if err != nil {
		return nil, err
	}

	ts := oauth2.ReuseTokenSource(tok, &savingTokenSource{
		ctx:    ctx,
		base:   a.config.TokenSource(ctx, tok),
		store:  a.tokens,
		access: tok.AccessToken,
	})

	opts := append([]option.ClientOption{option.WithTokenSource(ts)}, a.opts...)
	return NewService(ctx, opts...)
}

func (a *Authenticator) persist(ctx context.Context, tok *oauth2.Token) {
	if err := a.tokens.Save(tok); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Msg("Failed to persist calendar token")
	}
}
