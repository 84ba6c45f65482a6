package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tech-arch1tect/portfolio/config"
	"github.com/tech-arch1tect/portfolio/middleware/ratelimit"
	"github.com/tech-arch1tect/portfolio/openapi"
	"github.com/tech-arch1tect/portfolio/server"
	"github.com/tech-arch1tect/portfolio/services/auth"
	"github.com/tech-arch1tect/portfolio/services/contact"
	"github.com/tech-arch1tect/portfolio/services/jwt"
	"github.com/tech-arch1tect/portfolio/services/refreshtoken"
	"github.com/tech-arch1tect/portfolio/services/totp"
	"github.com/tech-arch1tect/portfolio/services/wishes"
	"github.com/tech-arch1tect/portfolio/testutils"
	"gorm.io/gorm"
)

type testEnv struct {
	t       *testing.T
	cfg     *config.Config
	srv     *server.Server
	db      *gorm.DB
	users   *auth.Service
	mailer  *testutils.MockMailer
	captcha *testutils.MockCaptchaVerifier
	doc     *openapi.Document
	ips     int
}

func setupEnv(t *testing.T, configure ...func(*config.Config)) *testEnv {
	t.Helper()
	cfg := testutils.GetTestConfig()
	for _, fn := range configure {
		fn(cfg)
	}

	db := testutils.SetupTestDB(t,
		&auth.User{},
		&refreshtoken.RefreshToken{},
		&totp.BackupCode{},
		&totp.UsedCode{},
		&wishes.Wish{},
	)

	users := auth.NewService(cfg, db, nil)
	codec := jwt.NewService(cfg, nil)
	tokens := refreshtoken.NewService(cfg, refreshtoken.NewGormLedger(db, nil), codec, users, nil)
	totpService, err := totp.NewProvider(cfg, db, nil)
	require.NoError(t, err)

	mailer := &testutils.MockMailer{}
	captcha := &testutils.MockCaptchaVerifier{}
	policies := ratelimit.NewPolicies(cfg)
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore(100, policies.Longest()), nil)

	srv := server.New(cfg, nil)
	doc := NewDocument(cfg)
	RegisterRoutes(srv.Echo(), RouteParams{
		Auth:     NewAuthHandler(cfg, users, tokens, totpService, nil),
		Contact:  NewContactHandler(contact.NewService(cfg, mailer, captcha, nil), nil),
		Wishes:   NewWishesHandler(wishes.NewService(db, nil), nil),
		Health:   NewHealthHandler(db, nil),
		Limiter:  limiter,
		Policies: policies,
		Verifier: codec,
		Document: doc,
	})

	return &testEnv{
		t:       t,
		cfg:     cfg,
		srv:     srv,
		db:      db,
		users:   users,
		mailer:  mailer,
		captcha: captcha,
		doc:     doc,
	}
}

type request struct {
	method  string
	path    string
	body    string
	ip      string
	cookies []*http.Cookie
	bearer  string
}

func (env *testEnv) do(r request) *httptest.ResponseRecorder {
	env.t.Helper()
	req := httptest.NewRequest(r.method, r.path, strings.NewReader(r.body))
	if r.body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	ip := r.ip
	if ip == "" {
		ip = "203.0.113.1"
	}
	req.Header.Set("X-Forwarded-For", ip)
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36")
	if r.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+r.bearer)
	}
	for _, c := range r.cookies {
		req.AddCookie(c)
	}

	rec := httptest.NewRecorder()
	env.srv.Echo().ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) register(email, password string) {
	env.t.Helper()
	rec := env.do(request{
		method: http.MethodPost,
		path:   "/api/auth/register",
		body:   `{"email":"` + email + `","password":"` + password + `"}`,
		ip:     env.nextIP(),
	})
	require.Equal(env.t, http.StatusCreated, rec.Code, rec.Body.String())
}

// nextIP hands out distinct client addresses so setup requests do not share
// a rate limit bucket.
func (env *testEnv) nextIP() string {
	env.ips++
	return fmt.Sprintf("198.51.100.%d", env.ips)
}

// login returns the access and refresh cookies of a successful login.
func (env *testEnv) login(email, password, code string) (*http.Cookie, *http.Cookie) {
	env.t.Helper()
	body := `{"email":"` + email + `","password":"` + password + `","code":"` + code + `"}`
	rec := env.do(request{method: http.MethodPost, path: "/api/auth/login", body: body, ip: env.nextIP()})
	require.Equal(env.t, http.StatusOK, rec.Code, rec.Body.String())
	return cookie(env.t, rec, "accessToken"), cookie(env.t, rec, RefreshCookieName)
}

func cookie(t *testing.T, rec *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("cookie %s not set", name)
	return nil
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

