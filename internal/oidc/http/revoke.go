package http

import (
	"errors"
	"net/http"

	"github.com/openledger/oidcd/internal/oidc/service"
	"github.com/openledger/oidcd/pkg/oauthx"
	"github.com/openledger/oidcd/pkg/slogx"
)

// RevokeHandler serves POST /oauth2/revoke per RFC 7009. The token parameter
// may be either half of a pair; revocation kills both. Per the RFC, revoking
// a token the server does not recognize still returns 200.
type RevokeHandler struct {
	Clients *service.ClientService
	Tokens  *service.TokenService
}

func (h *RevokeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
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
	if _, err := h.Clients.VerifyCredentials(ctx, clientID, clientSecret); err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidClient), errors.Is(err, service.ErrClientRevoked):
			oauthx.ErrInvalidClient.WriteJSON(w)
		default:
			slogx.FromContext(ctx).Error("revoke endpoint client verification failed", "err", err)
			oauthx.ErrServerError.WriteJSON(w)
		}
		return
	}

	token := r.PostForm.Get("token")
	if token == "" {
		oauthx.ErrInvalidRequest.WriteJSON(w)
		return
	}

	if err := h.Tokens.Revoke(ctx, token); err != nil && !errors.Is(err, service.ErrInvalidGrant) {
		slogx.FromContext(ctx).Error("token revocation failed", "err", err)
		oauthx.ErrServerError.WriteJSON(w)
		return
	}

	w.WriteHeader(http.StatusOK)
}
