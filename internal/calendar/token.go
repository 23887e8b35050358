package calendar

import (
	"context"

	"golang.org/x/oauth2"

	"github.com/nhle/bdaycal/internal/logger"
)

// TokenState is the lifecycle state of the cached calendar credential.
//
//	Valid   --expiry-->          Expired
//	Expired --refresh ok-->      Valid
//	Expired --refresh failed-->  consent --ok--> Valid
//	                                     --failed--> AuthError
//
// A missing token is Expired with nothing to refresh.
type TokenState int

const (
	TokenExpired TokenState = iota
	TokenValid
)

func (s TokenState) String() string {
	if s == TokenValid {
		return "valid"
	}
	return "expired"
}

// StateOf classifies a cached token.
func StateOf(tok *oauth2.Token) TokenState {
	if tok != nil && tok.Valid() {
		return TokenValid
	}
	return TokenExpired
}

// TokenStore persists the calendar token between runs.
type TokenStore interface {
	Load() (*oauth2.Token, error)
	Save(tok *oauth2.Token) error
}

// savingTokenSource writes refreshed tokens back to the store so a token
// renewed mid-run survives to the next run.
type savingTokenSource struct {
	ctx    context.Context
	base   oauth2.TokenSource
	store  TokenStore
	access string
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	if tok.AccessToken != s.access {
		s.access = tok.AccessToken
		if err := s.store.Save(tok); err != nil {
			log := logger.FromContext(s.ctx)
			log.Warn().Err(err).Msg("Failed to persist refreshed calendar token")
		}
	}

	return tok, nil
}
