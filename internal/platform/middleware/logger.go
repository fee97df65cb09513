package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Logger emits one structured line per request. Recognition and assessment
// requests spend most of their latency inside external worker processes, so
// the line carries the request id and, when a handler registered one, the
// recognition session id, letting a slow request be matched against the
// invoker's own worker log entries. Body size is logged because document
// uploads dominate request sizes here.
func Logger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()

			err := next(c)

			evt := logger.Info()
			if err != nil {
				evt = logger.Error().Err(err)
			}

			rid, _ := c.Get("request_id").(string)
			evt = evt.
				Str("request_id", rid).
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Int("status", c.Response().Status).
				Dur("latency", time.Since(start)).
				Int64("bytes_in", req.ContentLength).
				Str("remote_ip", c.RealIP())
			if sid, ok := c.Get("session_id").(string); ok && sid != "" {
				evt = evt.Str("session_id", sid)
			}
			evt.Msg("request")

			return err
		}
	}
}
