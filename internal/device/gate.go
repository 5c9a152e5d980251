package device

import (
	"crypto/sha256"
	"crypto/subtle"
	"strings"
)

// Gate authenticates machine clients against a static allow-list of
// bearer credentials.
type Gate struct {
	// Keys are stored as SHA-256 digests so comparisons run in
	// constant time over fixed-size values regardless of key length.
	keyDigests [][32]byte
}

// NewGate creates a gate accepting exactly the given keys.
func NewGate(keys []string) *Gate {
	g := &Gate{}
	for _, key := range keys {
		g.keyDigests = append(g.keyDigests, sha256.Sum256([]byte(key)))
	}
	return g
}

// Authenticate checks an Authorization header value. Only an exact
// "Bearer <key>" match against the allow-list passes; the scheme is
// matched case-insensitively per RFC 9110.
func (g *Gate) Authenticate(authorization string) bool {
	scheme, token, ok := strings.Cut(authorization, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return false
	}

	digest := sha256.Sum256([]byte(token))
	authorized := false
	for _, want := range g.keyDigests {
		// Every configured key is compared so timing does not reveal
		// which entry matched.
		if subtle.ConstantTimeCompare(digest[:], want[:]) == 1 {
			authorized = true
		}
	}
	return authorized
}
