package middleware

// identity.go holds the context keys written by JWTAuth and the accessors
// handlers and other middleware use to read them back.

import "github.com/labstack/echo/v4"

// Context keys set by JWTAuth.
const (
	KeyUserCode = "user_code"
	KeyRole     = "role"
	KeyCompany  = "company"
)

// Actor returns the staff code of the authenticated caller, or "" for
// guests.
func Actor(c echo.Context) string {
	if v, ok := c.Get(KeyUserCode).(string); ok {
		return v
	}
	return ""
}

// Company returns the company claim of the authenticated caller.
func Company(c echo.Context) string {
	if v, ok := c.Get(KeyCompany).(string); ok {
		return v
	}
	return ""
}

// userID is Actor with a placeholder for guests, used in rate limit keys.
func userID(c echo.Context) string {
	if a := Actor(c); a != "" {
		return a
	}
	return "guest"
}
