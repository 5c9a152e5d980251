// Package oidc implements the identity core of the roomboard server:
// OpenID-Connect discovery, PKCE generation, authorization redirect
// construction, authorization-code exchange, and ID token verification
// against the provider's JWKS.
package oidc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// ClientConfig holds the relying-party registration values.
type ClientConfig struct {
	ClientID     string
	ClientSecret string // Empty for a public client
	RedirectURI  string
	Scopes       string // Space-separated
}

// Client drives the authorization-code flow against one provider.
type Client struct {
	cfg       ClientConfig
	discovery *DiscoveryCache
	http      *http.Client
}

// NewClient creates a flow client. The HTTP client bounds all outbound
// calls to the provider; pass one with a timeout.
func NewClient(cfg ClientConfig, discovery *DiscoveryCache, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{cfg: cfg, discovery: discovery, http: httpClient}
}

func (c *Client) oauthConfig(meta *Metadata) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		RedirectURL:  c.cfg.RedirectURI,
		Scopes:       strings.Fields(c.cfg.Scopes),
		Endpoint: oauth2.Endpoint{
			AuthURL:  meta.AuthorizationEndpoint,
			TokenURL: meta.TokenEndpoint,
			// client_secret goes in the form body, not basic auth.
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// AuthCodeURL composes the provider authorization URL for the pending
// request. prompt=login and max_age=0 force re-authentication so a
// logged-out local session cannot silently inherit a provider SSO
// session. The caller must persist the pending request in the browser
// session before redirecting.
func (c *Client) AuthCodeURL(ctx context.Context, pending *PendingAuthRequest) (string, error) {
	meta, err := c.discovery.Metadata(ctx)
	if err != nil {
		return "", err
	}
	return c.oauthConfig(meta).AuthCodeURL(pending.State,
		oauth2.S256ChallengeOption(pending.CodeVerifier),
		gooidc.Nonce(pending.Nonce),
		oauth2.SetAuthURLParam("prompt", "login"),
		oauth2.SetAuthURLParam("max_age", "0"),
	), nil
}

// TokenResponse carries the provider token response minus the raw ID
// token, which is returned separately so the session layer can decide
// where it is allowed to live.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// Exchange trades an authorization code for tokens at the provider's
// token endpoint. The form carries grant_type, code, redirect_uri,
// client_id, code_verifier, and client_secret when configured. A
// non-success provider response yields a *TokenExchangeError tagged
// with the HTTP status; a response without an ID token yields
// ErrMissingIDToken. Secrets are never logged here.
func (c *Client) Exchange(ctx context.Context, code, codeVerifier string) (*TokenResponse, string, error) {
	meta, err := c.discovery.Metadata(ctx)
	if err != nil {
		return nil, "", err
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)
	tok, err := c.oauthConfig(meta).Exchange(ctx, code, oauth2.VerifierOption(codeVerifier))
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			return nil, "", &TokenExchangeError{StatusCode: retrieveErr.Response.StatusCode, Err: err}
		}
		return nil, "", &TokenExchangeError{Err: err}
	}

	rawIDToken, ok := tok.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, "", ErrMissingIDToken
	}

	resp := &TokenResponse{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.Type(),
	}
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		resp.ExpiresIn = int64(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			resp.ExpiresIn = n
		}
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		resp.Scope = scope
	}
	return resp, rawIDToken, nil
}
