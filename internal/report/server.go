package report

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
)

// APIResponse is the envelope returned by the status endpoint.
type APIResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// Server exposes the live run report over HTTP while an import is
// running, for operators watching a long run.
type Server struct {
	echo    *echo.Echo
	tracker *Tracker
}

// NewServer wires the status endpoint around a tracker.
func NewServer(tracker *Tracker) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(instrument(tracker))
	e.Use(echoMiddleware.Recover())

	s := &Server{echo: e, tracker: tracker}

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, APIResponse{Status: "success", Data: map[string]any{"status": "ok"}})
	})
	e.GET("/report", s.handleReport)

	return s
}

func (s *Server) handleReport(c echo.Context) error {
	return c.JSON(http.StatusOK, APIResponse{
		Status: "success",
		Data:   s.tracker.Snapshot(),
	})
}

// Start serves until Shutdown; it returns http.ErrServerClosed on a
// graceful stop like the underlying echo server.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
