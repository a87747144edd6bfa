package http

import (
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/openledger/oidcd/pkg/oauthx"
)

// ExtractClientCredentials pulls client_id/client_secret from the
// Authorization header (HTTP Basic) or, when no header is present, from the
// already-parsed form body.
//
// A present-but-unparseable header never falls through to the body: a header
// that isn't exactly two space-separated parts is invalid_request, while a
// wrong scheme, bad base64, or a payload without a colon separator is
// invalid_client.
func ExtractClientCredentials(r *http.Request) (string, string, *oauthx.Error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		id := strings.TrimSpace(r.PostForm.Get("client_id"))
		secret := r.PostForm.Get("client_secret")
		if id == "" || secret == "" {
			return "", "", oauthx.ErrInvalidRequest
		}
		return id, secret, nil
	}

	parts := strings.Split(header, " ")
	if len(parts) != 2 {
		return "", "", oauthx.ErrInvalidRequest
	}
	if !strings.EqualFold(parts[0], "Basic") {
		return "", "", oauthx.ErrInvalidClient
	}

	decoded, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", "", oauthx.ErrInvalidClient
	}
	id, secret, found := strings.Cut(string(decoded), ":")
	if !found {
		return "", "", oauthx.ErrInvalidClient
	}
	return id, secret, nil
}

// ExtractBearerToken pulls the opaque access token from the Authorization
// header. An absent header is invalid_request; a malformed one (wrong part
// count or scheme) is invalid_token.
func ExtractBearerToken(r *http.Request) (string, *oauthx.Error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", oauthx.ErrInvalidRequest
	}

	parts := strings.Split(header, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", oauthx.ErrInvalidToken
	}
	if parts[1] == "" {
		return "", oauthx.ErrInvalidToken
	}
	return parts[1], nil
}
