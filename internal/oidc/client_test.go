package oidc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tokenEndpointOpts controls the behavior of the fake token endpoint.
type tokenEndpointOpts struct {
	status    int
	omitIDTok bool
	lastForm  *url.Values
}

func newTestProviderWithToken(t *testing.T, opts *tokenEndpointOpts) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	mux.HandleFunc("GET /.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"issuer":                 srv.URL,
			"authorization_endpoint": srv.URL + "/authorize",
			"token_endpoint":         srv.URL + "/token",
			"jwks_uri":               srv.URL + "/jwks",
		})
	})
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if opts.lastForm != nil {
			*opts.lastForm = r.PostForm
		}
		if opts.status != 0 && opts.status != http.StatusOK {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(opts.status)
			json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
			return
		}
		body := map[string]any{
			"access_token": "at-123",
			"token_type":   "Bearer",
			"expires_in":   300,
			"scope":        "openid profile",
		}
		if !opts.omitIDTok {
			body["id_token"] = "header.payload.signature"
			body["refresh_token"] = "rt-456"
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(body)
	})
	return srv
}

func testClient(srv *httptest.Server, secret string) *Client {
	cfg := ClientConfig{
		ClientID:     "board-client",
		ClientSecret: secret,
		RedirectURI:  "http://localhost:3001/callback",
		Scopes:       "openid profile email",
	}
	return NewClient(cfg, NewDiscoveryCache(srv.URL, srv.Client()), srv.Client())
}

func TestAuthCodeURL_Parameters(t *testing.T) {
	t.Parallel()

	srv := newTestProviderWithToken(t, &tokenEndpointOpts{})
	client := testClient(srv, "")

	pending, err := NewPendingAuthRequest()
	require.NoError(t, err)

	authURL, err := client.AuthCodeURL(context.Background(), pending)
	require.NoError(t, err)

	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/authorize", parsed.Scheme+"://"+parsed.Host+parsed.Path)

	q := parsed.Query()
	assert.Equal(t, "board-client", q.Get("client_id"))
	assert.Equal(t, "http://localhost:3001/callback", q.Get("redirect_uri"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "openid profile email", q.Get("scope"))
	assert.Equal(t, pending.State, q.Get("state"))
	assert.Equal(t, pending.Nonce, q.Get("nonce"))
	assert.Equal(t, pending.CodeChallenge(), q.Get("code_challenge"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.Equal(t, "login", q.Get("prompt"))
	assert.Equal(t, "0", q.Get("max_age"))
}

func TestExchange_SendsCodeGrantForm(t *testing.T) {
	t.Parallel()

	form := url.Values{}
	srv := newTestProviderWithToken(t, &tokenEndpointOpts{lastForm: &form})
	client := testClient(srv, "shhh-confidential")

	tokens, rawIDToken, err := client.Exchange(context.Background(), "code-abc", "verifier-xyz")
	require.NoError(t, err)

	assert.Equal(t, "authorization_code", form.Get("grant_type"))
	assert.Equal(t, "code-abc", form.Get("code"))
	assert.Equal(t, "http://localhost:3001/callback", form.Get("redirect_uri"))
	assert.Equal(t, "board-client", form.Get("client_id"))
	assert.Equal(t, "verifier-xyz", form.Get("code_verifier"))
	assert.Equal(t, "shhh-confidential", form.Get("client_secret"))

	assert.Equal(t, "header.payload.signature", rawIDToken)
	assert.Equal(t, "at-123", tokens.AccessToken)
	assert.Equal(t, "rt-456", tokens.RefreshToken)
	assert.Equal(t, "Bearer", tokens.TokenType)
	assert.Equal(t, int64(300), tokens.ExpiresIn)
	assert.Equal(t, "openid profile", tokens.Scope)
}

func TestExchange_PublicClientOmitsSecret(t *testing.T) {
	t.Parallel()

	form := url.Values{}
	srv := newTestProviderWithToken(t, &tokenEndpointOpts{lastForm: &form})
	client := testClient(srv, "")

	_, _, err := client.Exchange(context.Background(), "code-abc", "verifier-xyz")
	require.NoError(t, err)

	_, present := form["client_secret"]
	assert.False(t, present, "public client must not send client_secret")
}

func TestExchange_ProviderErrorTaggedWithStatus(t *testing.T) {
	t.Parallel()

	srv := newTestProviderWithToken(t, &tokenEndpointOpts{status: http.StatusBadRequest})
	client := testClient(srv, "")

	_, _, err := client.Exchange(context.Background(), "bad-code", "verifier-xyz")
	require.Error(t, err)

	var exchangeErr *TokenExchangeError
	require.True(t, errors.As(err, &exchangeErr))
	assert.Equal(t, http.StatusBadRequest, exchangeErr.StatusCode)
}

func TestExchange_MissingIDToken(t *testing.T) {
	t.Parallel()

	srv := newTestProviderWithToken(t, &tokenEndpointOpts{omitIDTok: true})
	client := testClient(srv, "")

	_, _, err := client.Exchange(context.Background(), "code-abc", "verifier-xyz")
	require.ErrorIs(t, err, ErrMissingIDToken)
}

func TestExchange_DiscoveryFailurePropagates(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)
	client := testClient(srv, "")

	_, _, err := client.Exchange(context.Background(), "code-abc", "verifier-xyz")
	var discoveryErr *DiscoveryError
	require.True(t, errors.As(err, &discoveryErr))
}
