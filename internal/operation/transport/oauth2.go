package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"golang.org/x/oauth2"

	"github.com/tombee/rdstation-connector/internal/credentials"
	"github.com/tombee/rdstation-connector/internal/log"
)

// OAuth2TransportConfig configures the OAuth2 transport.
type OAuth2TransportConfig struct {
	// HTTP sends the authenticated requests and token requests. Required.
	HTTP *HTTPTransport

	// Store resolves credential sets by name. Required.
	Store credentials.Store

	// Descriptor declares the OAuth2 endpoints. Defaults to RD Station.
	Descriptor *credentials.Descriptor

	// Logger receives token lifecycle logs. Defaults to the HTTP transport's logger.
	Logger *slog.Logger
}

// OAuth2Transport attaches OAuth2 access tokens from a credential store to
// requests. Expired tokens are refreshed through the descriptor's token
// endpoint and the refreshed token is saved back to the store.
type OAuth2Transport struct {
	http       *HTTPTransport
	store      credentials.Store
	descriptor credentials.Descriptor
	logger     *slog.Logger

	mu      sync.Mutex
	sources map[string]oauth2.TokenSource
}

// NewOAuth2Transport creates a new OAuth2 transport.
func NewOAuth2Transport(cfg *OAuth2TransportConfig) (*OAuth2Transport, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.HTTP == nil {
		return nil, fmt.Errorf("http transport is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("credential store is required")
	}

	descriptor := credentials.RDStationOAuth2
	if cfg.Descriptor != nil {
		descriptor = *cfg.Descriptor
	}
	if err := descriptor.Validate(); err != nil {
		return nil, fmt.Errorf("invalid credential descriptor: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = cfg.HTTP.logger
	}

	return &OAuth2Transport{
		http:       cfg.HTTP,
		store:      cfg.Store,
		descriptor: descriptor,
		logger:     log.WithComponent(logger, "oauth2"),
		sources:    make(map[string]oauth2.TokenSource),
	}, nil
}

// Name returns the transport identifier.
func (t *OAuth2Transport) Name() string {
	return "oauth2"
}

// SetRateLimiter configures rate limiting on the underlying HTTP transport.
// Token requests are not rate limited.
func (t *OAuth2Transport) SetRateLimiter(limiter RateLimiter) {
	t.http.SetRateLimiter(limiter)
}

// ExecuteAuthenticated resolves a token for credentialName, sets the
// Authorization header on a copy of req and sends it once.
func (t *OAuth2Transport) ExecuteAuthenticated(ctx context.Context, credentialName string, req *Request, opts *OAuth2Options) (*Response, error) {
	if req == nil {
		return nil, &TransportError{Type: ErrorTypeInvalidReq, Message: "request is nil"}
	}
	if opts == nil {
		opts = &OAuth2Options{TokenType: "Bearer"}
	}

	source, err := t.tokenSource(ctx, credentialName, opts)
	if err != nil {
		return nil, err
	}

	token, err := source.Token()
	if err != nil {
		t.invalidate(credentialName, opts)
		return nil, tokenError(credentialName, err)
	}

	tokenType := opts.TokenType
	if tokenType == "" {
		tokenType = token.Type()
	}

	authReq := req.Clone()
	if authReq.Headers == nil {
		authReq.Headers = make(map[string]string, 1)
	}
	authReq.Headers["Authorization"] = tokenType + " " + token.AccessToken

	resp, err := t.http.Execute(ctx, authReq)
	if err != nil {
		var te *TransportError
		if errors.As(err, &te) && te.IsStatusCode(http.StatusUnauthorized) {
			// Drop the cached token so the next call reloads the credential.
			t.invalidate(credentialName, opts)
		}
		return nil, err
	}
	return resp, nil
}

// tokenSource returns the cached token source for a credential, loading it
// from the store on first use.
func (t *OAuth2Transport) tokenSource(ctx context.Context, name string, opts *OAuth2Options) (oauth2.TokenSource, error) {
	key := sourceKey(name, opts)

	t.mu.Lock()
	defer t.mu.Unlock()

	if source, ok := t.sources[key]; ok {
		return source, nil
	}

	cred, err := t.store.Get(ctx, name)
	if err != nil {
		if errors.Is(err, credentials.ErrCredentialNotFound) {
			return nil, &TransportError{
				Type:    ErrorTypeAuth,
				Message: fmt.Sprintf("credential %q not found in %s store", name, t.store.Name()),
				Cause:   err,
			}
		}
		return nil, &TransportError{
			Type:    ErrorTypeAuth,
			Message: fmt.Sprintf("failed to load credential %q", name),
			Cause:   err,
		}
	}
	if cred.Token == nil || (cred.Token.AccessToken == "" && cred.Token.RefreshToken == "") {
		return nil, &TransportError{
			Type:    ErrorTypeAuth,
			Message: fmt.Sprintf("credential %q has no token; complete the authorization code flow first", name),
		}
	}

	cfg := t.descriptor.OAuth2Config(cred)
	if opts.IncludeCredentialsOnRefreshOnBody {
		cfg.Endpoint.AuthStyle = oauth2.AuthStyleInParams
	}

	// Refreshes may run after the triggering request's context is gone.
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, t.http.Client())

	source := &persistingTokenSource{
		base:   cfg.TokenSource(tokenCtx, cred.Token),
		store:  t.store,
		name:   name,
		cred:   *cred,
		last:   cred.Token.AccessToken,
		logger: t.logger,
	}
	t.sources[key] = source
	return source, nil
}

// invalidate removes a cached token source.
func (t *OAuth2Transport) invalidate(name string, opts *OAuth2Options) {
	t.mu.Lock()
	delete(t.sources, sourceKey(name, opts))
	t.mu.Unlock()
}

func sourceKey(name string, opts *OAuth2Options) string {
	return name + "|" + strconv.FormatBool(opts.IncludeCredentialsOnRefreshOnBody)
}

// persistingTokenSource saves tokens to the credential store whenever the
// wrapped source issues a new one.
type persistingTokenSource struct {
	base   oauth2.TokenSource
	store  credentials.Store
	name   string
	logger *slog.Logger

	mu   sync.Mutex
	cred credentials.Credential
	last string
}

// Token returns a valid token, refreshing and persisting it when needed.
func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if token.AccessToken == s.last {
		return token, nil
	}
	s.last = token.AccessToken

	s.logger.Debug("access token refreshed",
		slog.String("credential", s.name),
		slog.String("access_token", log.SanitizeToken(token.AccessToken)),
		slog.Time("expiry", token.Expiry))

	s.cred.Token = token
	updated := s.cred
	if err := s.store.Save(context.Background(), s.name, &updated); err != nil {
		if errors.Is(err, credentials.ErrReadOnlyBackend) {
			s.logger.Debug("refreshed token not persisted; store is read-only",
				slog.String("credential", s.name))
		} else {
			s.logger.Warn("failed to persist refreshed token",
				slog.String("credential", s.name),
				log.Error(err))
		}
	}
	return token, nil
}

// tokenError converts a token acquisition failure into a TransportError.
func tokenError(name string, err error) *TransportError {
	te := &TransportError{
		Type:    ErrorTypeAuth,
		Message: fmt.Sprintf("failed to obtain access token for credential %q", name),
		Cause:   err,
	}

	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		if re.ErrorCode != "" {
			te.Message = fmt.Sprintf("%s: %s", te.Message, re.ErrorCode)
		}
		if re.Response != nil {
			te.Metadata = map[string]interface{}{
				"token_status_code":  re.Response.StatusCode,
				MetadataResponseBody: string(re.Body),
			}
		}
	}
	return te
}
