package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/roomboard/server/internal/oidc"
)

const (
	SessionCookieName = "session_id"
	pendingCookieName = "auth_request"
)

// Manager ties the store to HTTP: it issues and validates signed
// session cookies and builds the provider end-session URL.
type Manager struct {
	store  *Store
	secret []byte
	secure bool
	ttl    time.Duration
}

// NewManager creates a manager. secret signs cookie values; secure
// controls the cookie Secure attribute and must be true in production.
func NewManager(store *Store, secret string, secure bool, ttl time.Duration) *Manager {
	return &Manager{
		store:  store,
		secret: []byte(secret),
		secure: secure,
		ttl:    ttl,
	}
}

// StashPending stores a pending authorization request and binds it to
// the browser with a short-lived cookie.
func (m *Manager) StashPending(w http.ResponseWriter, req *oidc.PendingAuthRequest) error {
	id, err := m.store.PutPending(req)
	if err != nil {
		return err
	}
	m.setCookie(w, pendingCookieName, m.sign(id), int(pendingTTL.Seconds()))
	return nil
}

// TakePending consumes the pending authorization request bound to this
// browser. The cookie is cleared regardless of outcome.
func (m *Manager) TakePending(w http.ResponseWriter, r *http.Request) (*oidc.PendingAuthRequest, error) {
	defer m.clearCookie(w, pendingCookieName)

	id, err := m.cookieID(r, pendingCookieName)
	if err != nil {
		return nil, err
	}
	return m.store.TakePending(id)
}

// Materialize creates an authenticated session from verified claims and
// sets the session cookie.
func (m *Manager) Materialize(w http.ResponseWriter, claims oidc.Claims, tokens *oidc.TokenResponse, rawIDToken string) (*Record, error) {
	rec := &Record{
		Claims:  claims,
		Tokens:  tokens,
		IDToken: rawIDToken,
	}
	id, err := m.store.Create(rec)
	if err != nil {
		return nil, err
	}
	m.setCookie(w, SessionCookieName, m.sign(id), int(m.ttl.Seconds()))
	return rec, nil
}

// Current returns the session for the request, or ErrNotFound when the
// cookie is absent, tampered with, or the session has expired.
func (m *Manager) Current(r *http.Request) (*Record, error) {
	id, err := m.cookieID(r, SessionCookieName)
	if err != nil {
		return nil, err
	}
	return m.store.Get(id)
}

// End destroys the request's session and clears the cookie. The ended
// record is returned so the caller can hint the provider logout; a nil
// record means there was nothing to end, which is still a successful
// logout.
func (m *Manager) End(w http.ResponseWriter, r *http.Request) *Record {
	defer m.clearCookie(w, SessionCookieName)

	id, err := m.cookieID(r, SessionCookieName)
	if err != nil {
		return nil
	}
	rec, err := m.store.Get(id)
	if err != nil {
		return nil
	}
	m.store.Delete(id)
	return rec
}

// EndSessionURL builds the provider's RP-initiated logout URL with
// id_token_hint and post_logout_redirect_uri. It returns "" when the
// provider does not advertise an end_session_endpoint; the caller then
// finishes with the local logout alone.
func EndSessionURL(meta *oidc.Metadata, rec *Record, postLogoutRedirect string) string {
	if meta == nil || meta.EndSessionEndpoint == "" {
		return ""
	}
	q := url.Values{}
	if rec != nil && rec.IDToken != "" {
		q.Set("id_token_hint", rec.IDToken)
	}
	if postLogoutRedirect != "" {
		q.Set("post_logout_redirect_uri", postLogoutRedirect)
	}
	if len(q) == 0 {
		return meta.EndSessionEndpoint
	}
	return meta.EndSessionEndpoint + "?" + q.Encode()
}

// Cookie signing. The cookie value is "id.sig" where sig is the
// base64url HMAC-SHA256 of the id under the session secret. The store
// is keyed by ids the server generated, so a forged or truncated value
// can only ever fail the MAC check or miss the map.

func (m *Manager) sign(id string) string {
	mac := hmac.New(sha256.New, m.secret)
	mac.Write([]byte(id))
	return id + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func (m *Manager) verify(value string) (string, bool) {
	id, sig, ok := strings.Cut(value, ".")
	if !ok || id == "" {
		return "", false
	}
	got, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil {
		return "", false
	}
	mac := hmac.New(sha256.New, m.secret)
	mac.Write([]byte(id))
	if !hmac.Equal(got, mac.Sum(nil)) {
		return "", false
	}
	return id, true
}

func (m *Manager) cookieID(r *http.Request, name string) (string, error) {
	cookie, err := r.Cookie(name)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return "", ErrNotFound
		}
		return "", err
	}
	id, ok := m.verify(cookie.Value)
	if !ok {
		// Tampered cookies look identical to absent ones.
		return "", ErrNotFound
	}
	return id, nil
}

func (m *Manager) setCookie(w http.ResponseWriter, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
}

func (m *Manager) clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}
