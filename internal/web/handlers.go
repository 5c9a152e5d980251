// Package web wires the HTTP surface: the OIDC login flow, the
// session-authenticated board API and the device snapshot endpoint.
package web

import (
	"errors"
	"net/http"

	"github.com/roomboard/server/internal/board"
	"github.com/roomboard/server/internal/config"
	"github.com/roomboard/server/internal/device"
	"github.com/roomboard/server/internal/errs"
	"github.com/roomboard/server/internal/obs"
	"github.com/roomboard/server/internal/oidc"
	"github.com/roomboard/server/internal/ratelimit"
	"github.com/roomboard/server/internal/session"
)

// Handler bundles the collaborators behind the HTTP surface.
type Handler struct {
	cfg       *config.Config
	client    *oidc.Client
	verifier  *oidc.Verifier
	discovery *oidc.DiscoveryCache
	sessions  *session.Manager
	boards    *board.Registry
	gate      *device.Gate
	limiter   *ratelimit.RateLimiter
}

// NewHandler creates the HTTP handler set.
func NewHandler(
	cfg *config.Config,
	client *oidc.Client,
	verifier *oidc.Verifier,
	discovery *oidc.DiscoveryCache,
	sessions *session.Manager,
	boards *board.Registry,
	gate *device.Gate,
	limiter *ratelimit.RateLimiter,
) *Handler {
	return &Handler{
		cfg:       cfg,
		client:    client,
		verifier:  verifier,
		discovery: discovery,
		sessions:  sessions,
		boards:    boards,
		gate:      gate,
		limiter:   limiter,
	}
}

// Routes builds the full middleware and routing chain.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	limited := ratelimit.Middleware(h.limiter, ratelimit.ClientIP)

	mux.HandleFunc("GET /health", h.Health)
	mux.Handle("GET /login", limited(http.HandlerFunc(h.Login)))
	mux.HandleFunc("GET /callback", h.Callback)
	mux.HandleFunc("GET /userinfo", h.UserInfo)
	mux.HandleFunc("GET /me", h.Me)
	mux.HandleFunc("POST /logout", h.Logout)

	mux.HandleFunc("GET /people", h.ListPeople)
	mux.HandleFunc("PUT /people/{slot}", h.PutPerson)
	mux.HandleFunc("DELETE /people/{slot}", h.DeletePerson)
	mux.HandleFunc("GET /events", h.ListEvents)
	mux.HandleFunc("POST /events", h.AddEvent)
	mux.HandleFunc("DELETE /events", h.RemoveEvent)

	mux.Handle("GET /device/snapshot", limited(http.HandlerFunc(h.DeviceSnapshot)))

	var handler http.Handler = mux
	handler = CORSMiddleware(h.cfg.FrontendOrigin, handler)
	handler = obs.AccessLogMiddleware("web", handler)
	handler = obs.RequestContextMiddleware(handler)
	return handler
}

// Health handles GET /health - liveness probe
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "env": h.cfg.Env})
}

// Login handles GET /login - starts the authorization code flow.
// Fresh state, nonce and PKCE verifier are generated per attempt and
// stashed server-side before the browser leaves for the provider.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := obs.From(ctx)

	pending, err := oidc.NewPendingAuthRequest()
	if err != nil {
		log.Error("pending auth request generation failed", "error", err)
		http.Error(w, "Login could not be started.", http.StatusInternalServerError)
		return
	}

	authURL, err := h.client.AuthCodeURL(ctx, pending)
	if err != nil {
		log.Error("authorization URL unavailable", "error", err)
		http.Error(w, "Login could not be started.", http.StatusInternalServerError)
		return
	}

	if err := h.sessions.StashPending(w, pending); err != nil {
		log.Error("stash pending auth request failed", "error", err)
		http.Error(w, "Login could not be started.", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, authURL, http.StatusFound)
}

// Callback handles GET /callback - completes the authorization code
// flow. The pending state is consumed and compared before any call to
// the provider, so a replayed or forged callback never triggers an
// exchange. Provider error detail is logged but never sent to the
// browser.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := obs.From(ctx)

	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" {
		http.Error(w, "Missing authorization code.", http.StatusBadRequest)
		return
	}

	pending, err := h.sessions.TakePending(w, r)
	if err != nil || pending.State != state {
		log.Warn("callback state rejected", "error", err, "have_pending", err == nil)
		http.Error(w, "Invalid state.", http.StatusBadRequest)
		return
	}

	tokens, rawIDToken, err := h.client.Exchange(ctx, code, pending.CodeVerifier)
	if err != nil {
		var exchangeErr *oidc.TokenExchangeError
		if errors.As(err, &exchangeErr) {
			log.Error("token exchange rejected", "status", exchangeErr.StatusCode, "error", err)
		} else {
			log.Error("token exchange failed", "error", err)
		}
		http.Error(w, "Token exchange failed.", http.StatusBadGateway)
		return
	}

	claims, err := h.verifier.Verify(ctx, rawIDToken, pending.Nonce)
	if err != nil {
		var discoveryErr *oidc.DiscoveryError
		if errors.As(err, &discoveryErr) {
			log.Error("verification blocked by provider outage", "error", err)
			http.Error(w, "Login failed.", http.StatusBadGateway)
			return
		}
		log.Warn("ID token rejected", "error", err)
		http.Error(w, "Invalid ID token.", http.StatusUnauthorized)
		return
	}

	if _, err := h.sessions.Materialize(w, claims, tokens, rawIDToken); err != nil {
		log.Error("session materialization failed", "error", err)
		http.Error(w, "Login failed.", http.StatusInternalServerError)
		return
	}

	log.Info("login completed", "sub", claims.Sub())
	http.Redirect(w, r, h.cfg.FrontendOrigin, http.StatusFound)
}

// UserInfo handles GET /userinfo - session status for the frontend.
func (h *Handler) UserInfo(w http.ResponseWriter, r *http.Request) {
	rec, err := h.sessions.Current(r)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"loggedIn": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"loggedIn": true, "claims": rec.Claims})
}

// Me handles GET /me - the authenticated user's claims.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": rec.Claims})
}

// Logout handles POST /logout - destroys the local session and, when
// the provider advertises an end-session endpoint, hands the frontend
// a provider logout URL. Discovery being down never blocks logout.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rec := h.sessions.End(w, r)

	resp := map[string]any{"ok": true, "appRedirect": h.cfg.FrontendOrigin}
	meta, err := h.discovery.Metadata(ctx)
	if err != nil {
		obs.From(ctx).Warn("provider metadata unavailable during logout", "error", err)
	} else if u := session.EndSessionURL(meta, rec, h.cfg.FrontendOrigin); u != "" {
		resp["providerLogout"] = u
	}

	writeJSON(w, http.StatusOK, resp)
}

// requireSession resolves the request's session or writes a 401.
func (h *Handler) requireSession(w http.ResponseWriter, r *http.Request) (*session.Record, bool) {
	rec, err := h.sessions.Current(r)
	if err != nil {
		writeCodedError(w, errs.New(errs.Unauthenticated, "Not logged in"))
		return nil, false
	}
	return rec, true
}
