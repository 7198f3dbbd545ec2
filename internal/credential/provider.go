// Package credential supplies bearer tokens to outbound HTTP clients.
// Callers ask for a token per request; refresh is the provider's business.
package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mtzanidakis/quorum/internal/config"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// RefreshBefore is how long before expiry a cached token is replaced.
const RefreshBefore = 600 * time.Second

// AzureCognitiveScope is the default scope for Azure OpenAI tokens.
const AzureCognitiveScope = "https://cognitiveservices.azure.com/.default"

// ErrNoProvider is returned by None.
var ErrNoProvider = errors.New("no credential provider configured")

type Provider interface {
	Token(ctx context.Context) (string, error)
}

// Static always returns the same token.
type Static string

func (s Static) Token(context.Context) (string, error) {
	if s == "" {
		return "", errors.New("static token is empty")
	}
	return string(s), nil
}

// None never has a token.
type None struct{}

func (None) Token(context.Context) (string, error) {
	return "", ErrNoProvider
}

// OAuth2 wraps an oauth2.TokenSource that refreshes RefreshBefore expiry.
type OAuth2 struct {
	src oauth2.TokenSource
}

func NewOAuth2(src oauth2.TokenSource) *OAuth2 {
	return &OAuth2{src: oauth2.ReuseTokenSourceWithExpiry(nil, src, RefreshBefore)}
}

func (o *OAuth2) Token(ctx context.Context) (string, error) {
	type result struct {
		tok *oauth2.Token
		err error
	}
	// oauth2.TokenSource has no context; don't let a slow token endpoint
	// outlive the caller.
	ch := make(chan result, 1)
	go func() {
		tok, err := o.src.Token()
		ch <- result{tok, err}
	}()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return "", fmt.Errorf("fetch token: %w", r.err)
		}
		return r.tok.AccessToken, nil
	}
}

// clientCredentialsSource fetches a new token on every call. The caching
// source from clientcredentials.Config.TokenSource refreshes only 10s before
// expiry, so NewOAuth2 does the caching instead.
type clientCredentialsSource struct {
	cfg *clientcredentials.Config
}

func (s clientCredentialsSource) Token() (*oauth2.Token, error) {
	return s.cfg.Token(context.Background())
}

// New builds the provider named by cfg.Kind.
func New(cfg config.CredentialsConfig) (Provider, error) {
	switch cfg.Kind {
	case "", "none":
		return None{}, nil
	case "static":
		if cfg.Token == "" {
			return nil, errors.New("credentials.token is required for kind static")
		}
		return Static(cfg.Token), nil
	case "client_credentials":
		if cfg.ClientID == "" || cfg.ClientSecret == "" {
			return nil, errors.New("credentials.client_id and client_secret are required")
		}
		tokenURL := cfg.TokenURL
		if tokenURL == "" {
			if cfg.TenantID == "" {
				return nil, errors.New("credentials.token_url or tenant_id is required")
			}
			tokenURL = fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", cfg.TenantID)
		}
		scopes := cfg.Scopes
		if len(scopes) == 0 {
			scopes = []string{AzureCognitiveScope}
		}
		cc := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     tokenURL,
			Scopes:       scopes,
		}
		return NewOAuth2(clientCredentialsSource{cc}), nil
	default:
		return nil, fmt.Errorf("unsupported credentials kind %q", cfg.Kind)
	}
}

// Enabled reports whether p can ever produce a token.
func Enabled(p Provider) bool {
	if p == nil {
		return false
	}
	_, none := p.(None)
	return !none
}
