package report

import (
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const requestIDHeader = "X-Request-ID"

// instrument tags each status request with an identifier (keeping the
// caller's when one is supplied) and writes a key=value access line
// carrying the run id, so a run's import log and its status polls grep
// together.
func instrument(tracker *Tracker) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			reqID := c.Request().Header.Get(requestIDHeader)
			if reqID == "" {
				reqID = uuid.NewString()
			}
			c.Response().Header().Set(requestIDHeader, reqID)

			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			log.Printf("run_id=%s request_id=%s method=%s path=%s status=%d duration=%s",
				tracker.RunID(), reqID, c.Request().Method, c.Request().URL.Path,
				c.Response().Status, time.Since(start))
			return err
		}
	}
}
