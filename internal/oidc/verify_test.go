package oidc

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v3"
	"github.com/go-jose/go-jose/v3/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// verifierFixture is a fake provider with a mutable JWKS, so tests can
// exercise key rotation.
type verifierFixture struct {
	srv      *httptest.Server
	verifier *Verifier

	mu          sync.Mutex
	jwks        jose.JSONWebKeySet
	jwksFetches atomic.Int64
}

func newVerifierFixture(t *testing.T) *verifierFixture {
	t.Helper()
	f := &verifierFixture{}

	mux := http.NewServeMux()
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)

	mux.HandleFunc("GET /.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"issuer":                 f.srv.URL,
			"authorization_endpoint": f.srv.URL + "/authorize",
			"token_endpoint":         f.srv.URL + "/token",
			"jwks_uri":               f.srv.URL + "/jwks",
		})
	})
	mux.HandleFunc("GET /jwks", func(w http.ResponseWriter, r *http.Request) {
		f.jwksFetches.Add(1)
		f.mu.Lock()
		defer f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(f.jwks)
	})

	discovery := NewDiscoveryCache(f.srv.URL, f.srv.Client())
	f.verifier = NewVerifier("board-client", discovery, f.srv.Client())
	return f
}

func (f *verifierFixture) publishKey(kid string, pub *rsa.PublicKey) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jwks.Keys = append(f.jwks.Keys, jose.JSONWebKey{
		Key:       pub,
		KeyID:     kid,
		Algorithm: string(jose.RS256),
		Use:       "sig",
	})
}

func newRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func (f *verifierFixture) standardClaims() jwt.Claims {
	return jwt.Claims{
		Issuer:   f.srv.URL,
		Subject:  "user-1",
		Audience: jwt.Audience{"board-client"},
		Expiry:   jwt.NewNumericDate(time.Now().Add(time.Hour)),
		IssuedAt: jwt.NewNumericDate(time.Now()),
	}
}

func signToken(t *testing.T, alg jose.SignatureAlgorithm, key any, kid string, std jwt.Claims, extra map[string]any) string {
	t.Helper()
	opts := (&jose.SignerOptions{}).WithHeader(jose.HeaderKey("kid"), kid)
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: alg, Key: key}, opts)
	require.NoError(t, err)
	builder := jwt.Signed(signer).Claims(std)
	if extra != nil {
		builder = builder.Claims(extra)
	}
	raw, err := builder.CompactSerialize()
	require.NoError(t, err)
	return raw
}

func TestVerify_ValidToken(t *testing.T) {
	t.Parallel()

	f := newVerifierFixture(t)
	key := newRSAKey(t)
	f.publishKey("key-1", &key.PublicKey)

	raw := signToken(t, jose.RS256, key, "key-1", f.standardClaims(), map[string]any{
		"nonce": "nonce-1",
		"email": "ada@example.com",
	})

	claims, err := f.verifier.Verify(context.Background(), raw, "nonce-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Sub())
	assert.Equal(t, "ada@example.com", claims["email"])
	assert.Equal(t, "nonce-1", claims["nonce"])
}

func TestVerify_NonceMismatchEvenWithValidSignature(t *testing.T) {
	t.Parallel()

	f := newVerifierFixture(t)
	key := newRSAKey(t)
	f.publishKey("key-1", &key.PublicKey)

	raw := signToken(t, jose.RS256, key, "key-1", f.standardClaims(), map[string]any{"nonce": "other"})
	_, err := f.verifier.Verify(context.Background(), raw, "nonce-1")
	require.ErrorIs(t, err, ErrNonceMismatch)

	// An absent nonce claim is also a mismatch.
	raw = signToken(t, jose.RS256, key, "key-1", f.standardClaims(), nil)
	_, err = f.verifier.Verify(context.Background(), raw, "nonce-1")
	require.ErrorIs(t, err, ErrNonceMismatch)
}

func TestVerify_SymmetricAlgorithmRejectedBeforeKeyUse(t *testing.T) {
	t.Parallel()

	f := newVerifierFixture(t)
	key := newRSAKey(t)
	f.publishKey("key-1", &key.PublicKey)

	// HS256 token with a kid that exists in the JWKS: the algorithm
	// allow-list must reject it regardless.
	hmacKey := []byte("0123456789abcdef0123456789abcdef")
	raw := signToken(t, jose.HS256, hmacKey, "key-1", f.standardClaims(), map[string]any{"nonce": "nonce-1"})

	before := f.jwksFetches.Load()
	_, err := f.verifier.Verify(context.Background(), raw, "nonce-1")
	require.ErrorIs(t, err, ErrInvalidSignature)
	assert.Equal(t, before, f.jwksFetches.Load(), "rejected before key resolution")
}

func TestVerify_WrongKeyRejected(t *testing.T) {
	t.Parallel()

	f := newVerifierFixture(t)
	published := newRSAKey(t)
	f.publishKey("key-1", &published.PublicKey)

	imposter := newRSAKey(t)
	raw := signToken(t, jose.RS256, imposter, "key-1", f.standardClaims(), map[string]any{"nonce": "nonce-1"})

	_, err := f.verifier.Verify(context.Background(), raw, "nonce-1")
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerify_UnknownKidRejectedAfterRefetch(t *testing.T) {
	t.Parallel()

	f := newVerifierFixture(t)
	key := newRSAKey(t)
	f.publishKey("key-1", &key.PublicKey)

	raw := signToken(t, jose.RS256, key, "ghost", f.standardClaims(), map[string]any{"nonce": "nonce-1"})
	_, err := f.verifier.Verify(context.Background(), raw, "nonce-1")
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerify_KeyRotation(t *testing.T) {
	t.Parallel()

	f := newVerifierFixture(t)
	oldKey := newRSAKey(t)
	f.publishKey("key-old", &oldKey.PublicKey)

	raw := signToken(t, jose.RS256, oldKey, "key-old", f.standardClaims(), map[string]any{"nonce": "n1"})
	_, err := f.verifier.Verify(context.Background(), raw, "n1")
	require.NoError(t, err)
	require.Equal(t, int64(1), f.jwksFetches.Load())

	// Provider rotates in a new key; both stay live.
	newKey := newRSAKey(t)
	f.publishKey("key-new", &newKey.PublicKey)

	raw = signToken(t, jose.RS256, newKey, "key-new", f.standardClaims(), map[string]any{"nonce": "n2"})
	_, err = f.verifier.Verify(context.Background(), raw, "n2")
	require.NoError(t, err)
	assert.Equal(t, int64(2), f.jwksFetches.Load(), "unknown kid triggers one refetch")

	// Tokens under the old kid keep verifying from cache.
	raw = signToken(t, jose.RS256, oldKey, "key-old", f.standardClaims(), map[string]any{"nonce": "n3"})
	_, err = f.verifier.Verify(context.Background(), raw, "n3")
	require.NoError(t, err)
	assert.Equal(t, int64(2), f.jwksFetches.Load())
}

func TestVerify_IssuerAndAudience(t *testing.T) {
	t.Parallel()

	f := newVerifierFixture(t)
	key := newRSAKey(t)
	f.publishKey("key-1", &key.PublicKey)

	std := f.standardClaims()
	std.Issuer = f.srv.URL + "/" // trailing slash is a different issuer
	raw := signToken(t, jose.RS256, key, "key-1", std, map[string]any{"nonce": "nonce-1"})
	_, err := f.verifier.Verify(context.Background(), raw, "nonce-1")
	require.ErrorIs(t, err, ErrInvalidClaims)

	std = f.standardClaims()
	std.Audience = jwt.Audience{"someone-else"}
	raw = signToken(t, jose.RS256, key, "key-1", std, map[string]any{"nonce": "nonce-1"})
	_, err = f.verifier.Verify(context.Background(), raw, "nonce-1")
	require.ErrorIs(t, err, ErrInvalidClaims)
}

func TestVerify_TemporalClaims(t *testing.T) {
	t.Parallel()

	f := newVerifierFixture(t)
	key := newRSAKey(t)
	f.publishKey("key-1", &key.PublicKey)

	std := f.standardClaims()
	std.Expiry = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	raw := signToken(t, jose.RS256, key, "key-1", std, map[string]any{"nonce": "nonce-1"})
	_, err := f.verifier.Verify(context.Background(), raw, "nonce-1")
	require.ErrorIs(t, err, ErrExpiredToken)

	std = f.standardClaims()
	std.Expiry = nil
	raw = signToken(t, jose.RS256, key, "key-1", std, map[string]any{"nonce": "nonce-1"})
	_, err = f.verifier.Verify(context.Background(), raw, "nonce-1")
	require.ErrorIs(t, err, ErrExpiredToken)

	std = f.standardClaims()
	std.IssuedAt = jwt.NewNumericDate(time.Now().Add(10 * time.Minute))
	raw = signToken(t, jose.RS256, key, "key-1", std, map[string]any{"nonce": "nonce-1"})
	_, err = f.verifier.Verify(context.Background(), raw, "nonce-1")
	require.ErrorIs(t, err, ErrExpiredToken)
}

func TestVerify_JWKSUnreachableIsRetryable(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	mux.HandleFunc("GET /.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"issuer":   srv.URL,
			"jwks_uri": srv.URL + "/jwks",
		})
	})
	mux.HandleFunc("GET /jwks", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "jwks backend down", http.StatusBadGateway)
	})

	key := newRSAKey(t)
	verifier := NewVerifier("board-client", NewDiscoveryCache(srv.URL, srv.Client()), srv.Client())

	std := jwt.Claims{
		Issuer:   srv.URL,
		Audience: jwt.Audience{"board-client"},
		Expiry:   jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	raw := signToken(t, jose.RS256, key, "key-1", std, map[string]any{"nonce": "nonce-1"})

	_, err := verifier.Verify(context.Background(), raw, "nonce-1")
	var discoveryErr *DiscoveryError
	require.True(t, errors.As(err, &discoveryErr), "JWKS fetch failures are retryable, got %v", err)
	assert.False(t, errors.Is(err, ErrInvalidSignature))
}

func TestVerify_GarbageToken(t *testing.T) {
	t.Parallel()

	f := newVerifierFixture(t)
	_, err := f.verifier.Verify(context.Background(), "not-a-jwt", "nonce-1")
	require.ErrorIs(t, err, ErrInvalidSignature)
}
