package http

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/openledger/oidcd/internal/oidc/domain"
	"github.com/openledger/oidcd/internal/oidc/service"
	"github.com/openledger/oidcd/pkg/httpx"
	"github.com/openledger/oidcd/pkg/oauthx"
	"github.com/openledger/oidcd/pkg/slogx"
)

// tokenResponse is the token endpoint's success body per RFC 6749 §5.1,
// extended with the OIDC id_token when the client holds the openid grant.
type tokenResponse struct {
	TokenType    string `json:"token_type"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	IDToken      string `json:"id_token,omitempty"`
}

// TokenHandler serves POST /oauth2/token.
// Accepts application/x-www-form-urlencoded per the RFC 6749 framework.
type TokenHandler struct {
	Clients   *service.ClientService
	Authorize *service.AuthorizeService
	Tokens    *service.TokenService
	Identity  *service.IdentityService
}

func (h *TokenHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if ct := r.Header.Get("Content-Type"); ct != "" &&
		!strings.HasPrefix(ct, "application/x-www-form-urlencoded") {
		oauthx.ErrInvalidRequest.WriteJSON(w)
		return
	}
	if err := r.ParseForm(); err != nil {
		oauthx.ErrInvalidRequest.WriteJSON(w)
		return
	}

	clientID, clientSecret, oerr := ExtractClientCredentials(r)
	if oerr != nil {
		oerr.WriteJSON(w)
		return
	}

	ctx := r.Context()
	client, err := h.Clients.VerifyCredentials(ctx, clientID, clientSecret)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidClient), errors.Is(err, service.ErrClientRevoked):
			oauthx.ErrInvalidClient.WriteJSON(w)
		default:
			slogx.FromContext(ctx).Error("token endpoint client verification failed", "err", err)
			oauthx.ErrServerError.WriteJSON(w)
		}
		return
	}

	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		h.handleAuthorizationCodeGrant(w, r, client, clientSecret, r.PostForm)
	case "refresh_token":
		h.handleRefreshGrant(w, r, client, r.PostForm)
	case "":
		// Missing required parameter, not an unimplemented grant.
		oauthx.ErrInvalidRequest.WriteJSON(w)
	default:
		oauthx.ErrUnsupportedGrantType.WriteJSON(w)
	}
}

func (h *TokenHandler) handleAuthorizationCodeGrant(
	w http.ResponseWriter,
	r *http.Request,
	client domain.Client,
	clientSecret string,
	form url.Values,
) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	code := strings.TrimSpace(form.Get("code"))
	redirectURI := strings.TrimSpace(form.Get("redirect_uri"))
	if code == "" || redirectURI == "" {
		oauthx.ErrInvalidRequest.WriteJSON(w)
		return
	}

	redeemed, err := h.Authorize.Redeem(ctx, client, code)
	if err != nil {
		if errors.Is(err, service.ErrInvalidGrant) {
			oauthx.ErrInvalidGrant.WriteJSON(w)
			return
		}
		log.Error("authorization_code grant failed", "err", err)
		oauthx.ErrServerError.WriteJSON(w)
		return
	}

	// The presented redirect_uri must match the one the code was bound to.
	if decoded, err := url.PathUnescape(redirectURI); err != nil || decoded != redeemed.RedirectURI {
		oauthx.ErrInvalidGrant.WriteJSON(w)
		return
	}

	pair, err := h.Tokens.IssueFromCode(ctx, client, redeemed)
	if err != nil {
		log.Error("token minting failed", "err", err)
		oauthx.ErrServerError.WriteJSON(w)
		return
	}

	response := tokenResponse{
		TokenType:    "Bearer",
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
	}

	if client.HasScopes([]string{"openid"}) {
		idToken, err := h.Identity.Mint(ctx, client, clientSecret, redeemed.UserID, redeemed.Nonce)
		if err != nil {
			log.Error("identity token minting failed", "err", err)
			oauthx.ErrServerError.WriteJSON(w)
			return
		}
		response.IDToken = idToken
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, response)
}

func (h *TokenHandler) handleRefreshGrant(
	w http.ResponseWriter,
	r *http.Request,
	client domain.Client,
	form url.Values,
) {
	ctx := r.Context()

	refresh := form.Get("refresh_token")
	if refresh == "" {
		oauthx.ErrInvalidRequest.WriteJSON(w)
		return
	}

	pair, err := h.Tokens.Refresh(ctx, client, refresh)
	if err != nil {
		if errors.Is(err, service.ErrInvalidGrant) {
			oauthx.ErrInvalidGrant.WriteJSON(w)
			return
		}
		slogx.FromContext(ctx).Error("refresh grant failed", "err", err)
		oauthx.ErrServerError.WriteJSON(w)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, tokenResponse{
		TokenType:    "Bearer",
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
	})
}
