package sessionx

import (
	"context"

	"golang.org/x/oauth2"
)

// storeTokenSource serves the stored session token as an oauth2 bearer
// token. It never refreshes anything: the backend issues tokens only on
// login, and expiry is left to the server to enforce.
type storeTokenSource struct {
	ctx       context.Context
	store     *CredentialStore
	validator TokenValidator
}

// StoreTokenSource returns an oauth2.TokenSource reading store with ctx.
func StoreTokenSource(ctx context.Context, store *CredentialStore) oauth2.TokenSource {
	if ctx == nil {
		ctx = context.Background()
	}
	return &storeTokenSource{ctx: ctx, store: store}
}

// Token implements oauth2.TokenSource.
func (s *storeTokenSource) Token() (*oauth2.Token, error) {
	token := s.store.Token(s.ctx)
	if token == "" {
		return nil, newError(ErrCodeUnauthenticated, nil)
	}
	tok := &oauth2.Token{AccessToken: token, TokenType: "Bearer"}
	if exp, declared, ok := s.validator.ExpiresAt(token); ok && declared {
		tok.Expiry = exp
	}
	return tok, nil
}
