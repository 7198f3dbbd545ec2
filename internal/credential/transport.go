package credential

import (
	"fmt"
	"net/http"
)

// Transport sets "Authorization: Bearer <token>" on every request, asking
// Provider for the token each time.
type Transport struct {
	Provider Provider
	Base     http.RoundTripper
}

func NewTransport(p Provider, base http.RoundTripper) *Transport {
	return &Transport{Provider: p, Base: base}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, err := t.Provider.Token(req.Context())
	if err != nil {
		return nil, fmt.Errorf("credential: %w", err)
	}

	// RoundTrippers must not modify the caller's request.
	r := req.Clone(req.Context())
	r.Header.Set("Authorization", "Bearer "+token)

	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(r)
}

// HTTPClient returns a client whose requests carry p's token. A nil or None
// provider yields a plain client.
func HTTPClient(p Provider, base *http.Client) *http.Client {
	if base == nil {
		base = &http.Client{}
	}
	if !Enabled(p) {
		return base
	}
	c := *base
	c.Transport = NewTransport(p, base.Transport)
	return &c
}
