package http

import (
	"errors"
	"net/http"

	"github.com/openledger/oidcd/internal/oidc/service"
	"github.com/openledger/oidcd/pkg/httpx"
	"github.com/openledger/oidcd/pkg/oauthx"
	"github.com/openledger/oidcd/pkg/slogx"
)

// UserinfoHandler serves GET|POST /userinfo. The claims object is assembled
// by the host-supplied resolver from the validated token's user and the
// owning client's granted scopes; the engine contributes only "sub".
type UserinfoHandler struct {
	Tokens   *service.TokenService
	Resolver service.ClaimsResolver
}

func (h *UserinfoHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	token, oerr := ExtractBearerToken(r)
	if oerr != nil {
		oerr.WriteBearer(w)
		return
	}

	record, client, err := h.Tokens.Validate(ctx, token)
	if err != nil {
		if errors.Is(err, service.ErrInvalidGrant) {
			oauthx.ErrInvalidToken.WriteBearer(w)
			return
		}
		log.Error("userinfo token validation failed", "err", err)
		oauthx.ErrServerError.WriteBearer(w)
		return
	}

	claims := map[string]any{}
	if h.Resolver != nil {
		resolved, err := h.Resolver.ResolveClaims(ctx, record.UserID, client.Scopes)
		if err != nil {
			log.Error("userinfo claims resolution failed", "err", err)
			oauthx.ErrServerError.WriteBearer(w)
			return
		}
		for k, v := range resolved {
			claims[k] = v
		}
	}
	claims["sub"] = record.UserID

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, claims)
}
