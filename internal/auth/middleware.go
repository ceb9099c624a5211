package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const contextKeySubject = "auth_subject"

// Subject returns who made the request: "api-key" or the token subject.
func Subject(c echo.Context) string {
	if s, ok := c.Get(contextKeySubject).(string); ok {
		return s
	}
	return ""
}

// RequireScope accepts either the static API key (all scopes) or a bearer power
// token carrying scope. With no API key and no issuer configured, authentication
// is disabled (development mode).
func RequireScope(apiKey string, issuer *JWTIssuer, scope string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if apiKey == "" && issuer == nil {
				return next(c)
			}

			if authHeader := c.Request().Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
				if issuer == nil {
					return c.JSON(http.StatusUnauthorized, map[string]string{
						"error": "power tokens are not enabled",
					})
				}
				claims, err := issuer.ValidatePowerToken(strings.TrimPrefix(authHeader, "Bearer "))
				if err != nil {
					return c.JSON(http.StatusForbidden, map[string]string{
						"error": err.Error(),
					})
				}
				if !claims.Allows(scope) {
					return c.JSON(http.StatusForbidden, map[string]string{
						"error": "token does not allow " + scope,
					})
				}
				c.Set(contextKeySubject, claims.Subject)
				return next(c)
			}

			return checkAPIKey(c, apiKey, next)
		}
	}
}

// RequireAPIKey accepts only the static API key. Unlike RequireScope it never
// falls through: with no API key configured every request is refused.
func RequireAPIKey(apiKey string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if apiKey == "" {
				return c.JSON(http.StatusForbidden, map[string]string{
					"error": "no API key configured",
				})
			}
			return checkAPIKey(c, apiKey, next)
		}
	}
}

func checkAPIKey(c echo.Context, apiKey string, next echo.HandlerFunc) error {
	provided := c.Request().Header.Get("X-API-Key")
	if provided == "" {
		provided = c.QueryParam("api_key")
	}
	if provided == "" {
		return c.JSON(http.StatusUnauthorized, map[string]string{
			"error": "missing API key",
		})
	}
	if apiKey == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
		return c.JSON(http.StatusForbidden, map[string]string{
			"error": "invalid API key",
		})
	}

	c.Set(contextKeySubject, "api-key")
	return next(c)
}
