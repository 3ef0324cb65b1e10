package google

import (
	"context"
	"sync"

	"golang.org/x/oauth2"

	"github.com/teemow/sbginvoice/internal/instrumentation"
)

// cachingTokenSource writes every newly minted token back to the cache.
type cachingTokenSource struct {
	mu       sync.Mutex
	base     oauth2.TokenSource
	provider *CredentialProvider
	ctx      context.Context
	last     string
}

func (p *CredentialProvider) persistent(ctx context.Context, tok *oauth2.Token) oauth2.TokenSource {
	return &cachingTokenSource{
		base:     p.conf.TokenSource(p.oauthContext(ctx), tok),
		provider: p,
		ctx:      ctx,
		last:     tok.AccessToken,
	}
}

// Token returns the current token, refreshing it through the base source
// when it has expired.
func (s *cachingTokenSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, err := s.base.Token()
	if err != nil {
		s.provider.metrics.RecordOAuthTokenRefresh(s.ctx, instrumentation.OAuthResultFailure)
		return nil, &AuthenticationError{State: StateRefreshable, Err: err}
	}
	if tok.AccessToken != s.last {
		s.last = tok.AccessToken
		s.provider.metrics.RecordOAuthTokenRefresh(s.ctx, instrumentation.OAuthResultSuccess)
		s.provider.save(tok)
	}
	return tok, nil
}
