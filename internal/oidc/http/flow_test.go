package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openledger/oidcd/internal/oidc/domain"
	"github.com/openledger/oidcd/internal/oidc/service"
	"github.com/openledger/oidcd/internal/oidc/store/drivers/sqlite"
)

type testEnv struct {
	router *Router
	client domain.Client
	secret string
}

func newTestEnv(t *testing.T, scopes []string) *testEnv {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	clients := &service.ClientService{Store: st}
	resolver := service.ClaimsResolverFunc(func(ctx context.Context, userID string, scopes []string) (map[string]any, error) {
		claims := map[string]any{}
		for _, scope := range scopes {
			if scope == "profile" {
				claims["name"] = "User " + userID
			}
		}
		return claims, nil
	})

	router := NewRouter("test", st, logger)
	router.ClientService = clients
	router.AuthorizeService = &service.AuthorizeService{Store: st}
	router.TokenService = &service.TokenService{Store: st}
	router.IdentityService = &service.IdentityService{Store: st, Issuer: "https://issuer.example", Resolver: resolver}
	router.Authenticator = &HeaderAuthenticator{Header: "Remote-User"}
	router.ClaimsResolver = resolver
	router.ApplyRoutes()

	ctx := context.Background()
	client, secret, err := clients.Register(ctx, "acme", scopes, "")
	require.NoError(t, err)
	_, err = clients.RegisterRedirect(ctx, client.ClientID, "https://acme.example/cb")
	require.NoError(t, err)

	return &testEnv{router: router, client: client, secret: secret}
}

func (e *testEnv) authorize(t *testing.T, query url.Values, user string) *httptest.ResponseRecorder {
	t.Helper()

	r := httptest.NewRequest("GET", "/oauth2/authorize?"+query.Encode(), nil)
	if user != "" {
		r.Header.Set("Remote-User", user)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, r)
	return w
}

func (e *testEnv) postToken(t *testing.T, form url.Values) *httptest.ResponseRecorder {
	t.Helper()

	r := httptest.NewRequest("POST", "/oauth2/token", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.Header.Set("Authorization", basicHeader(e.client.ClientID, e.secret))
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, r)
	return w
}

func decodeToken(t *testing.T, w *httptest.ResponseRecorder) tokenResponse {
	t.Helper()

	var resp tokenResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func TestAuthorizationCodeFlowEndToEnd(t *testing.T) {
	env := newTestEnv(t, []string{"openid", "profile"})

	// Authorization request for end user 42.
	w := env.authorize(t, url.Values{
		"response_type": {"code"},
		"client_id":     {env.client.ClientID},
		"redirect_uri":  {"https://acme.example/cb"},
		"scope":         {"openid profile"},
		"state":         {"xyz"},
		"nonce":         {"n-0S6_WzA2Mj"},
	}, "42")
	require.Equal(t, http.StatusFound, w.Code)

	location, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "acme.example", location.Host)
	require.Equal(t, "/cb", location.Path)
	require.Equal(t, "xyz", location.Query().Get("state"))
	code := location.Query().Get("code")
	require.NotEmpty(t, code)

	// Redeem the code for a token pair plus identity token.
	w = env.postToken(t, url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {"https://acme.example/cb"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	pair := decodeToken(t, w)
	require.Equal(t, "Bearer", pair.TokenType)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	require.Equal(t, 3600, pair.ExpiresIn)
	require.NotEmpty(t, pair.IDToken, "openid grant includes an identity token")

	// Second redemption of the same code fails.
	w = env.postToken(t, url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {"https://acme.example/cb"},
	})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	var werr map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&werr))
	require.Equal(t, "invalid_grant", werr["error"])

	// Userinfo with the access token.
	r := httptest.NewRequest("GET", "/userinfo", nil)
	r.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)

	var claims map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&claims))
	require.Equal(t, "42", claims["sub"])
	require.Equal(t, "User 42", claims["name"])

	// Refresh rotates the pair; the old access token dies.
	w = env.postToken(t, url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {pair.RefreshToken},
	})
	require.Equal(t, http.StatusOK, w.Code)
	rotated := decodeToken(t, w)
	require.NotEqual(t, pair.AccessToken, rotated.AccessToken)

	r = httptest.NewRequest("GET", "/userinfo", nil)
	r.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, r)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Contains(t, w.Header().Get("WWW-Authenticate"), `Bearer error="invalid_token"`)
}

func TestAuthorizeErrorsBeforeRedirectValidationAreDirect(t *testing.T) {
	env := newTestEnv(t, []string{"openid"})

	// Unknown client: direct 401-class JSON, never a redirect.
	w := env.authorize(t, url.Values{
		"response_type": {"code"},
		"client_id":     {"no-such-client"},
		"redirect_uri":  {"https://acme.example/cb"},
	}, "42")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Empty(t, w.Header().Get("Location"))

	// Unregistered redirect URI: direct 400.
	w = env.authorize(t, url.Values{
		"response_type": {"code"},
		"client_id":     {env.client.ClientID},
		"redirect_uri":  {"https://evil.example/cb"},
	}, "42")
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Empty(t, w.Header().Get("Location"))

	// Missing client_id entirely: direct 400.
	w = env.authorize(t, url.Values{
		"response_type": {"code"},
		"redirect_uri":  {"https://acme.example/cb"},
	}, "42")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthorizeErrorsAfterRedirectValidationAreRedirected(t *testing.T) {
	env := newTestEnv(t, []string{"openid"})

	// Unsupported response type travels on the verified callback.
	w := env.authorize(t, url.Values{
		"response_type": {"token"},
		"client_id":     {env.client.ClientID},
		"redirect_uri":  {"https://acme.example/cb"},
		"state":         {"xyz"},
	}, "42")
	require.Equal(t, http.StatusFound, w.Code)
	location, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "acme.example", location.Host)
	require.Equal(t, "unsupported_response_type", location.Query().Get("error"))
	require.Equal(t, "xyz", location.Query().Get("state"))

	// Scope exceeding the client's grants.
	w = env.authorize(t, url.Values{
		"response_type": {"code"},
		"client_id":     {env.client.ClientID},
		"redirect_uri":  {"https://acme.example/cb"},
		"scope":         {"openid admin"},
	}, "42")
	require.Equal(t, http.StatusFound, w.Code)
	location, err = url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "unauthorized_client", location.Query().Get("error"))

	// No authenticated end user.
	w = env.authorize(t, url.Values{
		"response_type": {"code"},
		"client_id":     {env.client.ClientID},
		"redirect_uri":  {"https://acme.example/cb"},
	}, "")
	require.Equal(t, http.StatusFound, w.Code)
	location, err = url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "access_denied", location.Query().Get("error"))
}

func TestAuthorizePreservesExistingCallbackQuery(t *testing.T) {
	env := newTestEnv(t, []string{"openid"})

	ctx := context.Background()
	_, err := env.router.ClientService.RegisterRedirect(ctx, env.client.ClientID, "https://acme.example/cb2?tenant=blue")
	require.NoError(t, err)

	w := env.authorize(t, url.Values{
		"response_type": {"code"},
		"client_id":     {env.client.ClientID},
		"redirect_uri":  {"https://acme.example/cb2?tenant=blue"},
		"state":         {"xyz"},
	}, "42")
	require.Equal(t, http.StatusFound, w.Code)

	location, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "blue", location.Query().Get("tenant"))
	require.NotEmpty(t, location.Query().Get("code"))
}

func TestTokenEndpointClientAuthentication(t *testing.T) {
	env := newTestEnv(t, []string{"openid"})

	// Wrong secret.
	form := url.Values{"grant_type": {"refresh_token"}, "refresh_token": {"x"}}
	r := httptest.NewRequest("POST", "/oauth2/token", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.Header.Set("Authorization", basicHeader(env.client.ClientID, "wrong"))
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, r)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	// Credentials in the POST body work the same as Basic auth.
	form = url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {"never-issued"},
		"client_id":     {env.client.ClientID},
		"client_secret": {env.secret},
	}
	r = httptest.NewRequest("POST", "/oauth2/token", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, r)
	// Authentication passed; the unknown refresh token is what fails.
	require.Equal(t, http.StatusUnauthorized, w.Code)
	var werr map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&werr))
	require.Equal(t, "invalid_grant", werr["error"])

	// Unsupported grant type.
	w = env.postToken(t, url.Values{"grant_type": {"password"}})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.NoError(t, json.NewDecoder(w.Body).Decode(&werr))
	require.Equal(t, "unsupported_grant_type", werr["error"])

	// Missing grant_type is a malformed request, not an unsupported grant.
	w = env.postToken(t, url.Values{"refresh_token": {"x"}})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.NoError(t, json.NewDecoder(w.Body).Decode(&werr))
	require.Equal(t, "invalid_request", werr["error"])
}

func TestTokenEndpointRedirectURIMustMatchCode(t *testing.T) {
	env := newTestEnv(t, []string{"openid"})

	w := env.authorize(t, url.Values{
		"response_type": {"code"},
		"client_id":     {env.client.ClientID},
		"redirect_uri":  {"https://acme.example/cb"},
	}, "42")
	require.Equal(t, http.StatusFound, w.Code)
	location, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	code := location.Query().Get("code")

	w = env.postToken(t, url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {"https://other.example/cb"},
	})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	var werr map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&werr))
	require.Equal(t, "invalid_grant", werr["error"])
}

func TestRevokeEndpoint(t *testing.T) {
	env := newTestEnv(t, []string{"openid"})

	pair, err := env.router.TokenService.IssueFromCode(context.Background(), env.client, domain.AuthorizationCode{UserID: "42"})
	require.NoError(t, err)

	form := url.Values{"token": {pair.AccessToken}}
	r := httptest.NewRequest("POST", "/oauth2/revoke", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.Header.Set("Authorization", basicHeader(env.client.ClientID, env.secret))
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)

	_, _, err = env.router.TokenService.Validate(context.Background(), pair.AccessToken)
	require.ErrorIs(t, err, service.ErrInvalidGrant)

	// Unknown tokens still revoke "successfully" per RFC 7009.
	form = url.Values{"token": {"never-issued"}}
	r = httptest.NewRequest("POST", "/oauth2/revoke", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.Header.Set("Authorization", basicHeader(env.client.ClientID, env.secret))
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)

	r := httptest.NewRequest("GET", "/livez", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)

	r = httptest.NewRequest("GET", "/readyz", nil)
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)
}
