package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/place-reservation/internal/logger"
	"github.com/iliyamo/place-reservation/internal/utils"
)

// JWTAuth validates a Bearer access token issued for a staff account and
// stores its sub, role and company claims in the Echo context under
// KeyUserCode, KeyRole and KeyCompany.  The actor is also attached to the
// request context so log lines carry it.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			claims, err := utils.ParseAccessToken(secret, raw)
			if err != nil {
				logger.WithContext(c.Request().Context()).Debug("rejected token", "error", err)
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}

			c.Set(KeyUserCode, claims.UserCode)
			c.Set(KeyRole, claims.Role)
			c.Set(KeyCompany, claims.Company)
			req := c.Request()
			c.SetRequest(req.WithContext(logger.ContextWithActor(req.Context(), claims.UserCode)))
			return next(c)
		}
	}
}
