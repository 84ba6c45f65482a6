package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/tech-arch1tect/portfolio/config"
	jwtmw "github.com/tech-arch1tect/portfolio/middleware/jwt"
	"github.com/tech-arch1tect/portfolio/middleware/ratelimit"
	"github.com/tech-arch1tect/portfolio/openapi"
	"go.uber.org/fx"
)

const (
	APIPrefix  = "/api"
	APIVersion = "1.0.0"

	bearerScheme = "bearerAuth"
	cookieScheme = "cookieAuth"
)

type RouteParams struct {
	fx.In

	Auth     *AuthHandler
	Contact  *ContactHandler
	Wishes   *WishesHandler
	Health   *HealthHandler
	Limiter  *ratelimit.Limiter
	Policies ratelimit.Policies
	Verifier jwtmw.AccessVerifier
	Document *openapi.Document
}

// NewDocument describes the API. Routes add their operations as they are
// registered.
func NewDocument(cfg *config.Config) *openapi.Document {
	return openapi.New(cfg.App.Name+" API", APIVersion).
		Description("Authentication, contact form and wishes wall of the portfolio site.").
		Server(cfg.App.URL, cfg.App.Environment).
		Tag("auth", "Registration, login and token rotation").
		Tag("2fa", "TOTP two-factor authentication").
		Tag("contact", "Contact form").
		Tag("wishes", "Public wishes wall").
		Tag("system", "Service status and API description").
		BearerAuth(bearerScheme, "Access token in the Authorization header").
		CookieAuth(cookieScheme, jwtmw.AccessCookieName, "Access token cookie set at login")
}

// router registers a handler on the group and starts documenting it under
// the same path.
type router struct {
	group  *echo.Group
	prefix string
	doc    *openapi.Document
}

func (r router) handle(method, path string, h echo.HandlerFunc, mw ...echo.MiddlewareFunc) *openapi.RouteBuilder {
	r.group.Add(method, path, h, mw...)
	return r.doc.Route(method, r.prefix+path)
}

func RegisterRoutes(e *echo.Echo, p RouteParams) {
	api := router{group: e.Group(APIPrefix), prefix: APIPrefix, doc: p.Document}
	requireAuth := jwtmw.RequireJWT(p.Verifier)
	limit := p.Limiter.Middleware

	api.handle(http.MethodPost, "/auth/register", p.Auth.Register, limit(p.Policies.Register)).
		Summary("Register a new account").
		OperationID("register").
		Tags("auth").
		Body(RegisterRequest{}, "Account details").
		Response(http.StatusCreated, RegisterResponse{}, "Account created").
		Response(http.StatusBadRequest, ErrorResponse{}, "Missing or invalid fields").
		Response(http.StatusConflict, ErrorResponse{}, "Email already registered").
		RateLimited(RateLimitResponse{}).
		Build()

	api.handle(http.MethodPost, "/auth/login", p.Auth.Login, limit(p.Policies.Login)).
		Summary("Log in").
		Description("Sets the accessToken and refreshToken cookies. Accounts with two-factor authentication must send a code.").
		OperationID("login").
		Tags("auth").
		Body(LoginRequest{}, "Credentials").
		Response(http.StatusOK, LoginResponse{}, "Logged in").
		Response(http.StatusBadRequest, ErrorResponse{}, "Missing credentials").
		Response(http.StatusUnauthorized, TwoFactorRequiredResponse{}, "Invalid credentials or two-factor code").
		RateLimited(RateLimitResponse{}).
		Build()

	api.handle(http.MethodPost, "/auth/refresh", p.Auth.Refresh, limit(p.Policies.Refresh)).
		Summary("Rotate the refresh token").
		Description("Presenting an already used refresh token revokes every token of its family.").
		OperationID("refresh").
		Tags("auth").
		CookieParam(RefreshCookieName, "Refresh token set at login").
		Response(http.StatusOK, RefreshResponse{}, "New token pair issued").
		Response(http.StatusUnauthorized, ErrorResponse{}, "Missing, invalid or expired refresh token").
		Response(http.StatusForbidden, ErrorResponse{}, "Refresh token reuse detected").
		RateLimited(RateLimitResponse{}).
		Build()

	api.handle(http.MethodPost, "/auth/logout", p.Auth.Logout, jwtmw.OptionalJWT(p.Verifier)).
		Summary("Log out").
		Description("Clears the auth cookies and, with a valid access token, revokes all refresh tokens of the user.").
		OperationID("logout").
		Tags("auth").
		Response(http.StatusOK, MessageResponse{}, "Logged out").
		Build()

	api.handle(http.MethodGet, "/auth/me", p.Auth.Me, requireAuth).
		Summary("Current user").
		OperationID("me").
		Tags("auth").
		Security(cookieScheme, bearerScheme).
		Response(http.StatusOK, MeResponse{}, "Authenticated user").
		Response(http.StatusUnauthorized, ErrorResponse{}, "Missing or invalid access token").
		Response(http.StatusNotFound, ErrorResponse{}, "User no longer exists").
		Build()

	registerTwoFactorRoutes(api, p, requireAuth)

	api.handle(http.MethodPost, "/contact", p.Contact.Submit, limit(p.Policies.Contact)).
		Summary("Send a contact message").
		OperationID("contact").
		Tags("contact").
		Body(ContactRequest{}, "Message and captcha token").
		Response(http.StatusOK, SuccessResponse{}, "Message delivered").
		Response(http.StatusBadRequest, ErrorResponse{}, "Missing fields, invalid email or failed captcha").
		Response(http.StatusInternalServerError, ErrorResponse{}, "Delivery failed").
		RateLimited(RateLimitResponse{}).
		Build()

	api.handle(http.MethodGet, "/wishes", p.Wishes.List).
		Summary("List wishes").
		Description("Newest first, at most 100.").
		OperationID("listWishes").
		Tags("wishes").
		Response(http.StatusOK, WishesResponse{}, "Wishes").
		Response(http.StatusInternalServerError, WishErrorResponse{}, "Storage failure").
		Build()

	api.handle(http.MethodPost, "/wishes", p.Wishes.Create, limit(p.Policies.General)).
		Summary("Share a wish").
		OperationID("createWish").
		Tags("wishes").
		Body(WishRequest{}, "Name and message").
		Response(http.StatusCreated, WishCreatedResponse{}, "Wish stored").
		Response(http.StatusBadRequest, WishErrorResponse{}, "Missing or too long fields").
		RateLimited(RateLimitResponse{}).
		Build()

	api.handle(http.MethodGet, "/health", p.Health.Check).
		Summary("Health check").
		OperationID("health").
		Tags("system").
		Response(http.StatusOK, HealthResponse{}, "Service and database are up").
		Response(http.StatusServiceUnavailable, HealthResponse{}, "Database unreachable").
		Build()

	api.group.GET("/openapi.json", p.Document.JSONHandler())
	api.group.GET("/openapi.yaml", p.Document.YAMLHandler())
}

func registerTwoFactorRoutes(api router, p RouteParams, requireAuth echo.MiddlewareFunc) {
	api.handle(http.MethodPost, "/auth/2fa/setup", p.Auth.SetupTwoFactor, requireAuth).
		Summary("Start two-factor setup").
		Description("Stores a pending secret and returns it with a QR code. Nothing is enforced until enable succeeds.").
		OperationID("setupTwoFactor").
		Tags("2fa").
		Security(cookieScheme, bearerScheme).
		Response(http.StatusOK, TwoFactorSetupResponse{}, "Enrollment details").
		Response(http.StatusBadRequest, ErrorResponse{}, "Already enabled").
		Response(http.StatusUnauthorized, ErrorResponse{}, "Missing or invalid access token").
		Build()

	api.handle(http.MethodPost, "/auth/2fa/enable", p.Auth.EnableTwoFactor, requireAuth).
		Summary("Confirm two-factor setup").
		OperationID("enableTwoFactor").
		Tags("2fa").
		Security(cookieScheme, bearerScheme).
		Body(CodeRequest{}, "Code from the authenticator app").
		Response(http.StatusOK, BackupCodesResponse{}, "Enabled, backup codes returned once").
		Response(http.StatusBadRequest, ErrorResponse{}, "Missing or invalid code").
		Build()

	api.handle(http.MethodPost, "/auth/2fa/disable", p.Auth.DisableTwoFactor, requireAuth).
		Summary("Disable two-factor authentication").
		OperationID("disableTwoFactor").
		Tags("2fa").
		Security(cookieScheme, bearerScheme).
		Body(CodeRequest{}, "Current TOTP or backup code").
		Response(http.StatusOK, MessageResponse{}, "Disabled").
		Response(http.StatusBadRequest, ErrorResponse{}, "Missing or invalid code").
		Build()

	api.handle(http.MethodGet, "/auth/2fa/status", p.Auth.TwoFactorStatus, requireAuth).
		Summary("Two-factor status").
		OperationID("twoFactorStatus").
		Tags("2fa").
		Security(cookieScheme, bearerScheme).
		Response(http.StatusOK, TwoFactorStatusResponse{}, "Status and remaining backup codes").
		Build()

	api.handle(http.MethodPost, "/auth/2fa/backup-codes", p.Auth.RegenerateBackupCodes, requireAuth).
		Summary("Replace backup codes").
		OperationID("regenerateBackupCodes").
		Tags("2fa").
		Security(cookieScheme, bearerScheme).
		Body(CodeRequest{}, "Current TOTP or backup code").
		Response(http.StatusOK, BackupCodesResponse{}, "New backup codes").
		Response(http.StatusBadRequest, ErrorResponse{}, "Missing or invalid code").
		Build()
}
