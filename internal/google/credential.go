package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/teemow/sbginvoice/internal/clock"
	"github.com/teemow/sbginvoice/internal/instrumentation"
	"github.com/teemow/sbginvoice/internal/logging"
)

// CredentialState is the branch the provider takes for a cached token.
type CredentialState int

const (
	// StateValid means the cached access token can be used as is.
	StateValid CredentialState = iota
	// StateRefreshable means the access token expired but a refresh token is available.
	StateRefreshable
	// StateInteractive means the user has to authorize the client again.
	StateInteractive
)

func (s CredentialState) String() string {
	switch s {
	case StateValid:
		return "valid"
	case StateRefreshable:
		return "refreshable"
	case StateInteractive:
		return "interactive"
	default:
		return fmt.Sprintf("CredentialState(%d)", int(s))
	}
}

// expiryThreshold treats tokens that expire within this window as expired.
const expiryThreshold = 5 * time.Minute

// ErrNonInteractive is returned when interactive authorization is needed
// but no terminal is attached.
var ErrNonInteractive = errors.New("interactive authorization required but stdin is not a terminal")

// AuthenticationError reports a failure to obtain credentials. State is the
// branch that failed.
type AuthenticationError struct {
	State CredentialState
	Err   error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed (%s): %v", e.State, e.Err)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// ClassifyToken decides which branch a cached token takes at time now.
func ClassifyToken(tok *oauth2.Token, now time.Time) CredentialState {
	if tok == nil {
		return StateInteractive
	}
	if tok.AccessToken != "" && (tok.Expiry.IsZero() || now.Add(expiryThreshold).Before(tok.Expiry)) {
		return StateValid
	}
	if tok.RefreshToken != "" {
		return StateRefreshable
	}
	return StateInteractive
}

// Authorizer runs an interactive authorization and returns a fresh token.
type Authorizer interface {
	Authorize(ctx context.Context, conf *oauth2.Config) (*oauth2.Token, error)
}

// CredentialProvider supplies tokens for the Calendar API from the cache,
// refreshing or re-authorizing as needed.
type CredentialProvider struct {
	conf        *oauth2.Config
	cache       *TokenCache
	authorizer  Authorizer
	clock       clock.Clock
	interactive func() bool
	httpClient  *http.Client
	logger      *slog.Logger
	metrics     *instrumentation.Metrics
}

// Option configures a CredentialProvider.
type Option func(*CredentialProvider)

// WithAuthorizer sets the interactive authorization flow.
func WithAuthorizer(a Authorizer) Option {
	return func(p *CredentialProvider) { p.authorizer = a }
}

// WithClock overrides the time source used to judge token expiry.
func WithClock(c clock.Clock) Option {
	return func(p *CredentialProvider) { p.clock = c }
}

// WithInteractive overrides terminal detection.
func WithInteractive(fn func() bool) Option {
	return func(p *CredentialProvider) { p.interactive = fn }
}

// WithHTTPClient sets the client used to talk to the token endpoint.
func WithHTTPClient(c *http.Client) Option {
	return func(p *CredentialProvider) { p.httpClient = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *CredentialProvider) { p.logger = l }
}

// WithMetrics sets the recorder for OAuth metrics.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(p *CredentialProvider) { p.metrics = m }
}

// NewCredentialProvider creates a provider for conf backed by cache.
// Without WithAuthorizer the interactive branch always fails.
func NewCredentialProvider(conf *oauth2.Config, cache *TokenCache, opts ...Option) *CredentialProvider {
	p := &CredentialProvider{
		conf:        conf,
		cache:       cache,
		clock:       clock.SystemClock{},
		interactive: IsTerminal,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *CredentialProvider) oauthContext(ctx context.Context) context.Context {
	if p.httpClient != nil {
		return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	}
	return ctx
}

// Authenticate returns a usable token and the state the cached token was
// classified as. A failed refresh falls through to interactive authorization.
func (p *CredentialProvider) Authenticate(ctx context.Context) (*oauth2.Token, CredentialState, error) {
	logger := logging.WithOperation(p.logger, "google.authenticate")

	cached, err := p.cache.Load()
	if err != nil {
		if !isNotExist(err) {
			logger.Warn("Ignoring unreadable token cache", logging.Path(p.cache.Path()), logging.Err(err))
		}
		cached = nil
	}

	state := ClassifyToken(cached, p.clock.Now())
	logger.Debug("Classified cached token", "state", state.String())

	switch state {
	case StateValid:
		return cached, state, nil
	case StateRefreshable:
		tok, err := p.refresh(ctx, cached)
		if err == nil {
			return tok, state, nil
		}
		logger.Warn("Token refresh failed, falling back to interactive authorization", logging.Err(err))
	}

	tok, err := p.authorize(ctx)
	if err != nil {
		return nil, state, err
	}
	return tok, state, nil
}

// Reauthorize skips the cache and runs the interactive flow.
func (p *CredentialProvider) Reauthorize(ctx context.Context) (*oauth2.Token, error) {
	return p.authorize(ctx)
}

// TokenSource authenticates and returns a token source that refreshes on
// demand and writes refreshed tokens back to the cache.
func (p *CredentialProvider) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	tok, _, err := p.Authenticate(ctx)
	if err != nil {
		return nil, err
	}
	return p.persistent(ctx, tok), nil
}

func (p *CredentialProvider) refresh(ctx context.Context, cached *oauth2.Token) (*oauth2.Token, error) {
	// An empty access token forces the refresh even when the token is
	// still inside oauth2's own expiry delta.
	stale := &oauth2.Token{RefreshToken: cached.RefreshToken, TokenType: cached.TokenType}

	tok, err := p.conf.TokenSource(p.oauthContext(ctx), stale).Token()
	if err != nil {
		p.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultFailure)
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}
	p.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultSuccess)

	p.save(tok)
	return tok, nil
}

func (p *CredentialProvider) authorize(ctx context.Context) (*oauth2.Token, error) {
	if p.authorizer == nil || !p.interactive() {
		p.metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultFailure)
		return nil, &AuthenticationError{State: StateInteractive, Err: ErrNonInteractive}
	}

	tok, err := p.authorizer.Authorize(p.oauthContext(ctx), p.conf)
	if err != nil {
		p.metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultFailure)
		return nil, &AuthenticationError{State: StateInteractive, Err: err}
	}
	p.metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultSuccess)

	p.save(tok)
	return tok, nil
}

// save writes tok to the cache. Failures are logged but not fatal since
// the token is still usable for this run.
func (p *CredentialProvider) save(tok *oauth2.Token) {
	if err := p.cache.Save(tok); err != nil {
		p.logger.Warn("Failed to save token", logging.Path(p.cache.Path()), logging.Err(err))
		return
	}
	p.logger.Debug("Saved token", logging.Path(p.cache.Path()), "access_token", logging.SanitizeToken(tok.AccessToken))
}
