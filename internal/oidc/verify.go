package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v3"
	"github.com/go-jose/go-jose/v3/jwt"
)

// allowedAlgorithms is the asymmetric signature allow-list. Symmetric
// algorithms are never accepted: an attacker who knows the provider's
// public key could otherwise forge tokens via key confusion.
var allowedAlgorithms = []jose.SignatureAlgorithm{jose.RS256, jose.PS256, jose.ES256}

// iatLeeway tolerates small clock skew between provider and server when
// checking the issued-at claim.
const iatLeeway = time.Minute

// Claims is the verified ID token payload.
type Claims map[string]any

// Sub returns the subject identifier claim.
func (c Claims) Sub() string {
	sub, _ := c["sub"].(string)
	return sub
}

// Verifier validates raw ID tokens against the provider's JWKS and the
// relying-party configuration.
type Verifier struct {
	clientID  string
	discovery *DiscoveryCache
	keys      *remoteKeySet
	now       func() time.Time
}

// NewVerifier creates a verifier for ID tokens issued to clientID.
func NewVerifier(clientID string, discovery *DiscoveryCache, httpClient *http.Client) *Verifier {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Verifier{
		clientID:  clientID,
		discovery: discovery,
		keys:      &remoteKeySet{client: httpClient},
		now:       time.Now,
	}
}

// Verify runs the verification pipeline on a raw ID token:
//
//  1. parse the compact JWS, reject algorithms outside the asymmetric
//     allow-list, and resolve the signing key by kid from the JWKS;
//  2. verify the cryptographic signature;
//  3. check issuer (byte-for-byte against discovery) and audience;
//  4. check the temporal claims exp and iat;
//  5. compare the nonce claim to the nonce stored for this session.
//
// The pipeline short-circuits on the first failure; only a token that
// passes all five steps is trusted. Each step fails with its own error
// from this package's taxonomy.
func (v *Verifier) Verify(ctx context.Context, rawIDToken, expectedNonce string) (Claims, error) {
	meta, err := v.discovery.Metadata(ctx)
	if err != nil {
		return nil, err
	}

	tok, err := jwt.ParseSigned(rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed token: %v", ErrInvalidSignature, err)
	}
	if len(tok.Headers) != 1 {
		return nil, fmt.Errorf("%w: expected exactly one signature, got %d", ErrInvalidSignature, len(tok.Headers))
	}
	header := tok.Headers[0]
	if !algorithmAllowed(header.Algorithm) {
		// Checked before any key resolution: a matching kid must not
		// rescue a token signed with a disallowed algorithm.
		return nil, fmt.Errorf("%w: algorithm %q not in allow-list", ErrInvalidSignature, header.Algorithm)
	}
	key, err := v.keys.signingKey(ctx, meta.JWKSURI, header.KeyID)
	if err != nil {
		return nil, err
	}

	var std jwt.Claims
	var payload map[string]any
	if err := tok.Claims(key, &std, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	if std.Issuer != meta.Issuer {
		return nil, fmt.Errorf("%w: issuer %q does not match %q", ErrInvalidClaims, std.Issuer, meta.Issuer)
	}
	if !std.Audience.Contains(v.clientID) {
		return nil, fmt.Errorf("%w: audience %v does not include client id", ErrInvalidClaims, []string(std.Audience))
	}

	now := v.now()
	if std.Expiry == nil || !now.Before(std.Expiry.Time()) {
		return nil, fmt.Errorf("%w: expired or missing exp", ErrExpiredToken)
	}
	if std.IssuedAt != nil && std.IssuedAt.Time().After(now.Add(iatLeeway)) {
		return nil, fmt.Errorf("%w: issued in the future", ErrExpiredToken)
	}

	nonce, _ := payload["nonce"].(string)
	if expectedNonce == "" || nonce != expectedNonce {
		return nil, ErrNonceMismatch
	}

	return Claims(payload), nil
}

func algorithmAllowed(alg string) bool {
	for _, allowed := range allowedAlgorithms {
		if alg == string(allowed) {
			return true
		}
	}
	return false
}

// remoteKeySet caches provider signing keys by key id. A lookup for an
// unknown kid refetches the JWKS, so rotation with multiple live keys
// works without restarting the process.
type remoteKeySet struct {
	client *http.Client

	mu   sync.Mutex
	keys map[string]jose.JSONWebKey
}

func (s *remoteKeySet) signingKey(ctx context.Context, jwksURI, kid string) (jose.JSONWebKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if key, ok := s.keys[kid]; ok && kid != "" {
		return key, nil
	}

	set, err := s.fetch(ctx, jwksURI)
	if err != nil {
		return jose.JSONWebKey{}, err
	}
	if s.keys == nil {
		s.keys = make(map[string]jose.JSONWebKey)
	}
	for _, key := range set.Keys {
		if key.KeyID != "" {
			s.keys[key.KeyID] = key
		}
	}

	if key, ok := s.keys[kid]; ok && kid != "" {
		return key, nil
	}
	// Some providers publish a single unnamed key and omit kid in the
	// token header.
	if kid == "" && len(set.Keys) == 1 {
		return set.Keys[0], nil
	}
	return jose.JSONWebKey{}, fmt.Errorf("%w: no JWKS key for kid %q", ErrInvalidSignature, kid)
}

func (s *remoteKeySet) fetch(ctx context.Context, jwksURI string) (*jose.JSONWebKeySet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, jwksURI, nil)
	if err != nil {
		return nil, &DiscoveryError{Endpoint: jwksURI, Err: err}
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &DiscoveryError{Endpoint: jwksURI, Err: err}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &DiscoveryError{Endpoint: jwksURI, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &DiscoveryError{Endpoint: jwksURI, Err: fmt.Errorf("%s: %s", resp.Status, body)}
	}
	var set jose.JSONWebKeySet
	if err := json.Unmarshal(body, &set); err != nil {
		return nil, &DiscoveryError{Endpoint: jwksURI, Err: err}
	}
	return &set, nil
}
