package http

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/openledger/oidcd/internal/oidc/service"
	"github.com/openledger/oidcd/pkg/httpx"
	"github.com/openledger/oidcd/pkg/oauthx"
	"github.com/openledger/oidcd/pkg/slogx"
)

// UserAuthenticator resolves the authenticated end user for an authorization
// request. End-user authentication is the host's concern; the engine only
// consumes its result. A deployment behind a trusted reverse proxy can use
// HeaderAuthenticator; richer hosts plug in their own session logic.
type UserAuthenticator interface {
	Authenticate(r *http.Request) (userID string, err error)
}

// ErrNotAuthenticated is returned by a UserAuthenticator when no end-user
// identity can be established for the request.
var ErrNotAuthenticated = errors.New("no authenticated user")

// HeaderAuthenticator trusts a header set by an authenticating reverse proxy.
type HeaderAuthenticator struct {
	// Header is the request header carrying the end-user identifier,
	// e.g. "Remote-User".
	Header string
}

func (a *HeaderAuthenticator) Authenticate(r *http.Request) (string, error) {
	user := strings.TrimSpace(r.Header.Get(a.Header))
	if user == "" {
		return "", ErrNotAuthenticated
	}
	return user, nil
}

// AuthorizeHandler serves GET /oauth2/authorize (authorization code flow).
type AuthorizeHandler struct {
	Clients       *service.ClientService
	Authorize     *service.AuthorizeService
	Authenticator UserAuthenticator
}

// ServeHTTP dispatches the authorization request. Failures before the
// redirect URI is validated are answered directly; anything after that is
// delivered to the verified callback as error parameters, so the response is
// never a redirect to an address the client does not own.
func (h *AuthorizeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)
	query := r.URL.Query()

	clientID := strings.TrimSpace(query.Get("client_id"))
	redirectURI := strings.TrimSpace(query.Get("redirect_uri"))
	state := query.Get("state")
	nonce := query.Get("nonce")

	if clientID == "" || redirectURI == "" {
		oauthx.ErrInvalidRequest.WriteJSON(w)
		return
	}

	client, err := h.Clients.LookupActive(ctx, clientID)
	if err != nil {
		if errors.Is(err, service.ErrInvalidClient) {
			oauthx.ErrInvalidClient.WriteJSON(w)
			return
		}
		log.Error("authorize client lookup failed", "err", err)
		oauthx.ErrServerError.WriteJSON(w)
		return
	}

	registered, err := h.Clients.ResolveRedirect(ctx, client, redirectURI)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRequest) {
			oauthx.ErrInvalidRequest.WriteJSON(w)
			return
		}
		log.Error("authorize redirect resolution failed", "err", err)
		oauthx.ErrServerError.WriteJSON(w)
		return
	}

	// Past this point the callback is verified, so errors travel with the
	// redirect per the OAuth2 error schema.
	if query.Get("response_type") != "code" {
		redirectError(w, r, registered.URI, state, oauthx.ErrUnsupportedResponseType)
		return
	}

	requested := httpx.ParseSpaceDelimitedFields(query.Get("scope"))
	if !h.Clients.CheckScopes(client, requested) {
		redirectError(w, r, registered.URI, state, oauthx.ErrUnauthorizedClient)
		return
	}

	userID, err := h.Authenticator.Authenticate(r)
	if err != nil {
		if !errors.Is(err, ErrNotAuthenticated) {
			log.Error("authorize authentication failed", "err", err)
		}
		redirectError(w, r, registered.URI, state,
			oauthx.New(http.StatusFound, "access_denied", "end-user authentication required"))
		return
	}

	code, _, err := h.Authorize.Issue(ctx, client, userID, registered.URI, nonce)
	if err != nil {
		log.Error("authorization code issue failed", "err", err)
		redirectError(w, r, registered.URI, state, oauthx.ErrServerError)
		return
	}

	redirectWith(w, r, registered.URI, url.Values{"code": {code}, "state": {state}})
}

func redirectError(w http.ResponseWriter, r *http.Request, uri, state string, oerr *oauthx.Error) {
	redirectWith(w, r, uri, url.Values{
		"error":             {oerr.Code},
		"error_description": {oerr.Description},
		"state":             {state},
	})
}

// redirectWith sends a 302 to the registered URI with params merged into any
// query string the registration already carries.
func redirectWith(w http.ResponseWriter, r *http.Request, uri string, params url.Values) {
	target, err := url.Parse(uri)
	if err != nil {
		// The URI was validated at registration; this is unreachable short
		// of store corruption.
		oauthx.ErrServerError.WriteJSON(w)
		return
	}

	query := target.Query()
	for key, values := range params {
		for _, value := range values {
			if value != "" || key == "code" {
				query.Set(key, value)
			}
		}
	}
	target.RawQuery = query.Encode()

	httpx.NoCache(w)
	http.Redirect(w, r, target.String(), http.StatusFound)
}
