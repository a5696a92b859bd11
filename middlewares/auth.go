package middlewares

import (
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"printportal-backend/apperr"
	"printportal-backend/auth"
)

const (
	AuthCookie   = "admin_auth_token"
	authHeader   = "Authorization"
	bearerPrefix = "Bearer "
)

// Auth guards staff endpoints with the shared-secret session token.
type Auth struct {
	tokens     *auth.TokenService
	appOrigin  string
	production bool
	logger     *logrus.Entry
}

func NewAuth(tokens *auth.TokenService, appOrigin string, production bool, logger *logrus.Entry) *Auth {
	return &Auth{
		tokens:     tokens,
		appOrigin:  appOrigin,
		production: production,
		logger:     logger.WithField("component", "auth"),
	}
}

// ExtractToken reads the cookie first, then a Bearer Authorization header.
func (a *Auth) ExtractToken(c *fiber.Ctx) string {
	if v := c.Cookies(AuthCookie); v != "" {
		return v
	}
	h := c.Get(authHeader)
	if len(h) > len(bearerPrefix) && strings.EqualFold(h[:len(bearerPrefix)], bearerPrefix) {
		return strings.TrimSpace(h[len(bearerPrefix):])
	}
	return ""
}

// IsAuthenticated is a non-failing probe used to decide redaction only.
func (a *Auth) IsAuthenticated(c *fiber.Ctx) bool {
	raw := a.ExtractToken(c)
	if raw == "" {
		return false
	}
	claims, ok := a.tokens.Verify(raw)
	return ok && claims.Authenticated
}

// CheckOrigin rejects requests whose origin differs from the app origin.
func (a *Auth) CheckOrigin(c *fiber.Ctx) error {
	expected := a.appOrigin
	if expected == "" {
		expected = c.BaseURL()
	}
	got := requestOrigin(c)
	if got == "" || got != expected {
		a.logger.WithFields(logrus.Fields{
			"security": true,
			"origin":   got,
			"expected": expected,
			"path":     c.Path(),
		}).Warn("cross-origin request rejected")
		return apperr.ForbiddenOrigin()
	}
	return nil
}

// requestOrigin prefers the Origin header, then the Referer's origin,
// then the origin the request was addressed to.
func requestOrigin(c *fiber.Ctx) string {
	if o := c.Get(fiber.HeaderOrigin); o != "" {
		return o
	}
	if ref := c.Get(fiber.HeaderReferer); ref != "" {
		if u, err := url.Parse(ref); err == nil && u.Scheme != "" && u.Host != "" {
			return u.Scheme + "://" + u.Host
		}
	}
	return c.BaseURL()
}

// SameOrigin enforces CheckOrigin without requiring a session.
func (a *Auth) SameOrigin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := a.CheckOrigin(c); err != nil {
			return err
		}
		return c.Next()
	}
}

// RequireAuth optionally enforces same-origin, then requires a valid token.
func (a *Auth) RequireAuth(sameOrigin bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if sameOrigin {
			if err := a.CheckOrigin(c); err != nil {
				return err
			}
		}
		raw := a.ExtractToken(c)
		if raw == "" {
			return apperr.Unauthenticated("Authentication required")
		}
		claims, ok := a.tokens.Verify(raw)
		if !ok || !claims.Authenticated {
			return apperr.Unauthenticated("Invalid or expired authentication token")
		}
		c.Locals("authenticated", true)
		return c.Next()
	}
}

// SetSessionCookie stores token as an http-only, same-site cookie.
func (a *Auth) SetSessionCookie(c *fiber.Ctx, token string) {
	c.Cookie(&fiber.Cookie{
		Name:     AuthCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(a.tokens.TTL() / time.Second),
		Expires:  time.Now().Add(a.tokens.TTL()),
		Secure:   a.production,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteStrictMode,
	})
}

// ClearSessionCookie expires the cookie immediately.
func (a *Auth) ClearSessionCookie(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     AuthCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		Secure:   a.production,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteStrictMode,
	})
}
