package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/HSouheill/barrim_notifications/models"
	"github.com/HSouheill/barrim_notifications/security"
)

// RequireJSON rejects request bodies that are not JSON
func RequireJSON() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.ContentLength == 0 || req.Method == http.MethodGet {
				return next(c)
			}

			if !security.ValidateContentType(req.Header.Get(echo.HeaderContentType)) {
				c.Logger().Warnf("Rejected %s %s with content type %q, headers: %v",
					req.Method, req.URL.Path, req.Header.Get(echo.HeaderContentType), security.SanitizeHeaders(req.Header))
				return c.JSON(http.StatusUnsupportedMediaType, models.Response{
					Status:  http.StatusUnsupportedMediaType,
					Message: "Content-Type must be application/json",
				})
			}
			return next(c)
		}
	}
}
