package http

import (
	"time"

	"github.com/labstack/echo/v4"

	xutil "FinResolve/pkg/util"
)

// QueryInt reads an int query parameter or returns def when empty/invalid.
func QueryInt(c echo.Context, name string, def int) int {
	return xutil.ParseIntDefault(c.QueryParam(name), def)
}

// QueryTime reads a time query parameter in any format util.ParseTime
// accepts, or returns def.
func QueryTime(c echo.Context, name string, def time.Time) time.Time {
	return xutil.ParseTimeDefault(c.QueryParam(name), def)
}

// QueryDuration reads a Go duration query parameter ("720h") or returns def.
func QueryDuration(c echo.Context, name string, def time.Duration) time.Duration {
	return xutil.ParseDurationDefault(c.QueryParam(name), def)
}
