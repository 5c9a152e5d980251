package oidc

import (
	"context"
	"net/http"
	"sync"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
)

// Metadata is the subset of the provider's well-known configuration the
// server uses. It is immutable once fetched and owned exclusively by
// the DiscoveryCache.
type Metadata struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	JWKSURI               string `json:"jwks_uri"`
	EndSessionEndpoint    string `json:"end_session_endpoint"`
}

// DiscoveryCache lazily fetches the provider's well-known document and
// memoizes it for the process lifetime. There is no background refresh.
type DiscoveryCache struct {
	issuer string
	client *http.Client

	mu   sync.Mutex
	meta *Metadata
}

// NewDiscoveryCache creates a cache for the given issuer. The issuer
// must not carry a trailing slash; it is compared byte-for-byte against
// the discovered document.
func NewDiscoveryCache(issuer string, client *http.Client) *DiscoveryCache {
	if client == nil {
		client = http.DefaultClient
	}
	return &DiscoveryCache{issuer: issuer, client: client}
}

// Issuer returns the configured issuer URL.
func (c *DiscoveryCache) Issuer() string {
	return c.issuer
}

// Metadata returns the provider metadata, fetching it on first use.
// Concurrent first calls are coalesced into a single in-flight fetch.
// Failure to reach the provider or a non-success status yields a
// *DiscoveryError wrapping the response detail; nothing is cached on
// failure, so a later call retries.
func (c *DiscoveryCache) Metadata(ctx context.Context) (*Metadata, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.meta != nil {
		return c.meta, nil
	}

	// go-oidc fetches <issuer>/.well-known/openid-configuration and
	// enforces that the document's issuer matches.
	provider, err := gooidc.NewProvider(gooidc.ClientContext(ctx, c.client), c.issuer)
	if err != nil {
		return nil, &DiscoveryError{Endpoint: c.issuer, Err: err}
	}

	var meta Metadata
	if err := provider.Claims(&meta); err != nil {
		return nil, &DiscoveryError{Endpoint: c.issuer, Err: err}
	}

	c.meta = &meta
	return c.meta, nil
}
