package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/fablekids/auth/internal/auth/domain"
	"github.com/fablekids/auth/internal/auth/service"
	"github.com/fablekids/auth/internal/auth/store"
	"github.com/fablekids/auth/pkg/httpx"
	"github.com/fablekids/auth/pkg/jwtx"
	"github.com/fablekids/auth/pkg/slogx"

	_ "github.com/fablekids/auth/api/auth" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	keys         *jwtx.KeySet
	verifier     jwtx.Verifier
	issuer       string
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store              store.Store
	TokenService       *service.TokenService
	AuthorizeService   *service.AuthorizeService
	ConsentService     *service.ConsentService
	UserInfoService    *service.UserInfoService
	SubjectService     *service.SubjectService
	ClientService      *service.ClientService
	BootstrapService   *service.BootstrapService
	KeyRotationService *service.KeyRotationService
}

func NewRouter(
	keys *jwtx.KeySet,
	verifier jwtx.Verifier,
	issuer, buildVersion string,
	st store.Store,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		keys:         keys,
		verifier:     verifier,
		issuer:       issuer,
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
	r.registerDiscovery()
	r.registerOAuth2()
	r.registerUserInfo()
	r.registerConsents()
	r.registerSubjects()
	r.registerClients()
	r.registerKeyRotation()
	r.registerSystem()
	r.registerBootstrap()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			FableKids Authorization Server API
//	@version		0.1.0
//	@description	OAuth 2.1 / OIDC 1.0 authorization server with a parental-consent
//	@description	gate for minors. Authorization requests by children pause until their
//	@description	guardian approves; revoking a consent cascades to every token it backed.
//	@description
//	@description				Access tokens are JWTs verifiable against the JWKS endpoint.
//
//	@contact.name				FableKids Platform Team
//	@contact.url				https://github.com/fablekids/auth
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT access token. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerDiscovery() {
	// Public metadata endpoints with high limits; CDN-friendly.
	r.Mux.Handle("GET /.well-known/openid-configuration",
		httpx.Chain(DiscoveryHandler(r.issuer),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)
	r.Mux.Handle("GET /.well-known/jwks.json",
		httpx.Chain(JWKSHandler(r.keys),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)
}

func (r *Router) registerOAuth2() {
	authorizeHandler := &AuthorizeHandler{
		AuthorizeService: r.AuthorizeService,
		Verifier:         r.verifier,
	}

	// GET /authorize - lenient rate limit (mostly just displays forms)
	r.Mux.Handle("GET /v1/oauth2/authorize",
		httpx.Chain(http.HandlerFunc(authorizeHandler.HandleGet),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)

	// POST /authorize - strict rate limit keyed by IP + username form field
	// to slow credential stuffing against a single account.
	r.Mux.Handle("POST /v1/oauth2/authorize",
		httpx.Chain(http.HandlerFunc(authorizeHandler.HandlePost),
			httpx.RateLimitByIPAndFormField(httpx.StrictLimit, "username"),
		),
	)

	// POST /token - strict rate limit by IP (covers all grant types)
	tokenHandler := &TokenHandler{TokenService: r.TokenService}
	r.Mux.Handle("POST /v1/oauth2/token",
		httpx.Chain(tokenHandler,
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	// POST /revoke - moderate rate limit
	revokeHandler := &RevokeHandler{TokenService: r.TokenService}
	r.Mux.Handle("POST /v1/oauth2/revoke",
		httpx.Chain(revokeHandler,
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	// Introspection endpoint (RFC7662) - requires authentication, moderate limit
	introspectHandler := &IntrospectHandler{TokenService: r.TokenService}
	r.Mux.Handle("POST /v1/oauth2/introspect",
		httpx.Chain(introspectHandler,
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitBySubject(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerUserInfo() {
	h := &UserInfoHandler{UserInfoService: r.UserInfoService}

	// The token's scopes decide which claims come back, so the only scope
	// requirement here is openid itself.
	secured := httpx.Chain(h,
		httpx.AuthnMiddleware(r.verifier),
		httpx.RequireAnyScope(domain.ScopeOpenID),
		httpx.RateLimitBySubject(httpx.LenientLimit),
	)

	r.Mux.Handle("GET /v1/userinfo", secured)
}

func (r *Router) registerConsents() {
	h := &ConsentHandler{ConsentService: r.ConsentService}

	// Guardianship itself is enforced by the service against the subject in
	// the bearer token; no extra scope gates these.
	securedGrant := httpx.Chain(http.HandlerFunc(h.HandleGrant),
		httpx.AuthnMiddleware(r.verifier),
		httpx.RateLimitBySubject(httpx.ModerateLimit),
	)
	securedRevoke := httpx.Chain(http.HandlerFunc(h.HandleRevoke),
		httpx.AuthnMiddleware(r.verifier),
		httpx.RateLimitBySubject(httpx.ModerateLimit),
	)
	securedList := httpx.Chain(http.HandlerFunc(h.HandleList),
		httpx.AuthnMiddleware(r.verifier),
		httpx.RateLimitBySubject(httpx.LenientLimit),
	)

	securedEnroll := httpx.Chain(http.HandlerFunc(h.HandleEnrollTOTP),
		httpx.AuthnMiddleware(r.verifier),
		httpx.RateLimitBySubject(httpx.StrictLimit),
	)

	r.Mux.Handle("POST /v1/consents", securedGrant)
	r.Mux.Handle("DELETE /v1/consents", securedRevoke)
	r.Mux.Handle("GET /v1/consents", securedList)
	r.Mux.Handle("POST /v1/consents/totp/enroll", securedEnroll)
}

func (r *Router) registerSubjects() {
	h := &SubjectsHandler{SubjectService: r.SubjectService}

	// POST /v1/subjects - create subject accounts (admin operation)
	securedCreate := httpx.Chain(http.HandlerFunc(h.HandleCreate),
		httpx.AuthnMiddleware(r.verifier),
		httpx.RequireAnyScope(domain.ScopeAdminWrite),
		httpx.RateLimitBySubject(httpx.ModerateLimit),
	)

	r.Mux.Handle("POST /v1/subjects", securedCreate)
}

func (r *Router) registerClients() {
	h := &ClientsHandler{ClientService: r.ClientService}

	securedCreate := httpx.Chain(http.HandlerFunc(h.HandleCreate),
		httpx.AuthnMiddleware(r.verifier),
		httpx.RequireAnyScope(domain.ScopeAdminWrite),
		httpx.RateLimitBySubject(httpx.ModerateLimit),
	)
	securedList := httpx.Chain(http.HandlerFunc(h.HandleList),
		httpx.AuthnMiddleware(r.verifier),
		httpx.RequireAnyScope(domain.ScopeAdminRead),
		httpx.RateLimitBySubject(httpx.ModerateLimit),
	)
	securedUpdateRedirects := httpx.Chain(http.HandlerFunc(h.HandleUpdateRedirectURIs),
		httpx.AuthnMiddleware(r.verifier),
		httpx.RequireAnyScope(domain.ScopeAdminWrite),
		httpx.RateLimitBySubject(httpx.ModerateLimit),
	)
	securedDelete := httpx.Chain(http.HandlerFunc(h.HandleDelete),
		httpx.AuthnMiddleware(r.verifier),
		httpx.RequireAnyScope(domain.ScopeAdminWrite),
		httpx.RateLimitBySubject(httpx.ModerateLimit),
	)

	r.Mux.Handle("POST /v1/clients", securedCreate)
	r.Mux.Handle("GET /v1/clients", securedList)
	r.Mux.Handle("PUT /v1/clients/{id}/redirect-uris", securedUpdateRedirects)
	r.Mux.Handle("DELETE /v1/clients/{id}", securedDelete)
}

func (r *Router) registerBootstrap() {
	// POST /bootstrap - very strict rate limit by IP (one-time setup endpoint)
	bootstrapHandler := &BootstrapHandler{BootstrapService: r.BootstrapService}
	r.Mux.Handle("POST /v1/bootstrap",
		httpx.Chain(bootstrapHandler,
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerKeyRotation() {
	// Key rotation works in both ephemeral and persistent modes; persistent
	// mode additionally stores the encrypted key material.
	h := &KeyRotationHandler{KeyRotationService: r.KeyRotationService}

	securedRotate := httpx.Chain(http.HandlerFunc(h.HandleRotate),
		httpx.AuthnMiddleware(r.verifier),
		httpx.RequireAnyScope(domain.ScopeAdminWrite),
		httpx.RateLimitBySubject(httpx.ModerateLimit),
	)
	securedList := httpx.Chain(http.HandlerFunc(h.HandleListKeys),
		httpx.AuthnMiddleware(r.verifier),
		httpx.RequireAnyScope(domain.ScopeAdminRead),
		httpx.RateLimitBySubject(httpx.ModerateLimit),
	)
	securedRetire := httpx.Chain(http.HandlerFunc(h.HandleRetireKey),
		httpx.AuthnMiddleware(r.verifier),
		httpx.RequireAnyScope(domain.ScopeAdminWrite),
		httpx.RateLimitBySubject(httpx.ModerateLimit),
	)

	r.Mux.Handle("POST /v1/keys/rotate", securedRotate)
	r.Mux.Handle("GET /v1/keys", securedList)
	r.Mux.Handle("POST /v1/keys/{kid}/retire", securedRetire)
}

func (r *Router) registerSystem() {
	// Health check endpoints - lenient rate limits (monitoring systems may poll frequently)
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.keys),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}
