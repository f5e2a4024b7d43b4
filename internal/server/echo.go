package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// MountEcho serves h under base on an existing echo instance. The router's
// own base path must match base.
func MountEcho(e *echo.Echo, base string, h http.Handler) {
	base = sanitizeBase(base)
	wrapped := echo.WrapHandler(h)
	if base == "" {
		e.Any("/*", wrapped)
		return
	}
	e.Any(base, wrapped)
	e.Any(base+"/*", wrapped)
}
