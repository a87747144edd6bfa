package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/openledger/oidcd/internal/oidc/service"
	"github.com/openledger/oidcd/internal/oidc/store"
	"github.com/openledger/oidcd/pkg/httpx"
	"github.com/openledger/oidcd/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
	store        store.Store

	ClientService    *service.ClientService
	AuthorizeService *service.AuthorizeService
	TokenService     *service.TokenService
	IdentityService  *service.IdentityService
	Authenticator    UserAuthenticator
	ClaimsResolver   service.ClaimsResolver
}

func NewRouter(buildVersion string, st store.Store, logger *slog.Logger) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerOAuth2()
	r.registerUserinfo()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global
// middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerOAuth2() {
	// GET /authorize - lenient rate limit (browser entry point behind the
	// host's own authentication layer)
	authorizeHandler := &AuthorizeHandler{
		Clients:       r.ClientService,
		Authorize:     r.AuthorizeService,
		Authenticator: r.Authenticator,
	}
	r.Mux.Handle("GET /oauth2/authorize",
		httpx.Chain(authorizeHandler,
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)

	// POST /token - strict rate limit by IP (client authentication attempts)
	tokenHandler := &TokenHandler{
		Clients:   r.ClientService,
		Authorize: r.AuthorizeService,
		Tokens:    r.TokenService,
		Identity:  r.IdentityService,
	}
	r.Mux.Handle("POST /oauth2/token",
		httpx.Chain(tokenHandler,
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	// POST /revoke - moderate rate limit
	revokeHandler := &RevokeHandler{Clients: r.ClientService, Tokens: r.TokenService}
	r.Mux.Handle("POST /oauth2/revoke",
		httpx.Chain(revokeHandler,
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerUserinfo() {
	h := &UserinfoHandler{Tokens: r.TokenService, Resolver: r.ClaimsResolver}
	secured := httpx.Chain(h,
		httpx.RateLimitByIP(httpx.LenientLimit),
	)

	r.Mux.Handle("GET /userinfo", secured)
	r.Mux.Handle("POST /userinfo", secured)
}

func (r *Router) registerSystem() {
	// Health check endpoints - lenient rate limits (monitoring systems may
	// poll frequently)
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}
