package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/tech-arch1tect/portfolio/config"
	"github.com/tech-arch1tect/portfolio/services/logging"
	"go.uber.org/zap"
)

var ErrRateLimited = errors.New("rate limit exceeded")

// Policy is the limit applied to one endpoint. Each policy counts
// independently, so a client hitting login does not use up its refresh quota.
type Policy struct {
	Name   string
	Limit  int
	Window time.Duration
}

type Policies struct {
	Login    Policy
	Register Policy
	Refresh  Policy
	Contact  Policy
	General  Policy
}

func NewPolicies(cfg *config.Config) Policies {
	contact := Policy{Name: "contact", Limit: cfg.RateLimit.ContactLimit, Window: cfg.RateLimit.ContactWindow}
	if contact.Limit <= 0 {
		contact.Limit = 5
	}
	if contact.Window <= 0 {
		contact.Window = 15 * time.Minute
	}

	return Policies{
		Login:    Policy{Name: "login", Limit: 5, Window: 15 * time.Minute},
		Register: Policy{Name: "register", Limit: 3, Window: time.Hour},
		Refresh:  Policy{Name: "refresh", Limit: 10, Window: time.Minute},
		Contact:  contact,
		General:  Policy{Name: "general", Limit: 100, Window: 15 * time.Minute},
	}
}

// Longest returns the largest window, used as the idle TTL of the memory store.
func (p Policies) Longest() time.Duration {
	longest := time.Duration(0)
	for _, policy := range []Policy{p.Login, p.Register, p.Refresh, p.Contact, p.General} {
		longest = max(longest, policy.Window)
	}
	return longest
}

type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// RetryAfterSeconds rounds up and never reports less than one second.
func (r Result) RetryAfterSeconds() int {
	return max(int(math.Ceil(r.RetryAfter.Seconds())), 1)
}

type Limiter struct {
	store  Store
	logger *logging.Service
	now    func() time.Time
}

func NewLimiter(store Store, logger *logging.Service) *Limiter {
	return &Limiter{store: store, logger: logger, now: time.Now}
}

// WithClock replaces the time source.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Allow records a request from clientID against policy. A rejected request
// returns ErrRateLimited alongside a populated Result.
func (l *Limiter) Allow(ctx context.Context, policy Policy, clientID string) (Result, error) {
	if policy.Limit <= 0 || policy.Window <= 0 {
		return Result{}, fmt.Errorf("invalid rate limit policy %q", policy.Name)
	}

	now := l.now()
	count, oldest, allowed, err := l.store.Hit(ctx, Key(policy, clientID), now, policy.Window, policy.Limit)
	if err != nil {
		return Result{}, err
	}

	result := Result{
		Allowed:   allowed,
		Limit:     policy.Limit,
		Remaining: max(policy.Limit-count, 0),
		ResetAt:   now.Add(policy.Window),
	}
	if !oldest.IsZero() {
		result.ResetAt = oldest.Add(policy.Window)
	}

	if !allowed {
		result.Remaining = 0
		result.RetryAfter = max(result.ResetAt.Sub(now), time.Second)
		return result, ErrRateLimited
	}
	return result, nil
}

func Key(policy Policy, clientID string) string {
	return "rate_limit:" + policy.Name + ":" + clientID
}

// ClientIP takes the first X-Forwarded-For entry, then X-Real-IP. Both
// headers are client controlled unless a trusted proxy overwrites them.
func ClientIP(c echo.Context) string {
	req := c.Request()
	if forwarded := req.Header.Get(echo.HeaderXForwardedFor); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if realIP := strings.TrimSpace(req.Header.Get(echo.HeaderXRealIP)); realIP != "" {
		return realIP
	}
	return "unknown"
}

type limitedResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retryAfter"`
}

// Middleware applies policy per client IP. Store failures let the request
// through.
func (l *Limiter) Middleware(policy Policy) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := ClientIP(c)
			result, err := l.Allow(c.Request().Context(), policy, ip)
			if err != nil && !errors.Is(err, ErrRateLimited) {
				if l.logger != nil {
					l.logger.Error("rate limiter unavailable, allowing request",
						zap.String("policy", policy.Name),
						zap.Error(err))
				}
				return next(c)
			}

			header := c.Response().Header()
			header.Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			header.Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			header.Set("X-RateLimit-Reset", result.ResetAt.UTC().Format(time.RFC3339))

			if !result.Allowed {
				seconds := result.RetryAfterSeconds()
				header.Set("Retry-After", strconv.Itoa(seconds))

				if l.logger != nil {
					l.logger.Warn("rate limit exceeded",
						zap.String("policy", policy.Name),
						zap.String("ip", ip),
						zap.Int("retry_after", seconds))
				}

				return c.JSON(http.StatusTooManyRequests, limitedResponse{
					Error:      "Too many requests",
					Message:    fmt.Sprintf("Rate limit exceeded. Please try again in %d seconds.", seconds),
					RetryAfter: seconds,
				})
			}

			return next(c)
		}
	}
}
