package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/darthbatman/TypeSense/internal/platform/version"
)

const (
	startupProbeTimeout   = 2 * time.Second
	readinessProbeTimeout = 5 * time.Second
)

const (
	statusReady     = "ready"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
)

// HealthCheck is a named dependency probe.
//
// Postgres and Redis are required: without them no conversation can be read
// or merged. The sentiment service is Optional: while it is down, reads still
// work and only change_conversation fails, so the instance reports degraded
// and stays in rotation.
type HealthCheck struct {
	Name     string
	Check    func(ctx context.Context) error
	Optional bool
}

type healthReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func (s *Server) registerHealthRoutes() {
	s.echo.GET("/health/startup", s.handleStartup)
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/version", s.handleVersion)
}

// handleStartup only waits for the stores; the sentiment service is not
// needed to come up.
func (s *Server) handleStartup(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), startupProbeTimeout)
	defer cancel()

	return s.writeHealth(c, s.runHealthChecks(ctx, false))
}

// handleLiveness never touches dependencies.
func (s *Server) handleLiveness(c echo.Context) error {
	response := map[string]any{
		"status":  "ok",
		"uptime":  s.clock.Since(s.startTime).Seconds(),
		"version": version.Version,
	}
	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to write liveness response: %w", err)
	}
	return nil
}

func (s *Server) handleReadiness(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), readinessProbeTimeout)
	defer cancel()

	return s.writeHealth(c, s.runHealthChecks(ctx, true))
}

// runHealthChecks runs every selected probe and reports each one by name.
func (s *Server) runHealthChecks(ctx context.Context, includeOptional bool) healthReport {
	report := healthReport{Status: statusReady, Checks: make(map[string]string, len(s.healthChecks))}

	for _, hc := range s.healthChecks {
		if hc.Optional && !includeOptional {
			continue
		}

		err := hc.Check(ctx)
		if err == nil {
			report.Checks[hc.Name] = "ok"
			continue
		}

		report.Checks[hc.Name] = err.Error()
		switch {
		case !hc.Optional:
			report.Status = statusUnhealthy
		case report.Status == statusReady:
			report.Status = statusDegraded
		}
	}
	return report
}

func (s *Server) writeHealth(c echo.Context, report healthReport) error {
	code := http.StatusOK
	if report.Status == statusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	if err := c.JSON(code, report); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleVersion(c echo.Context) error {
	if err := c.JSON(http.StatusOK, version.Get()); err != nil {
		return fmt.Errorf("failed to write version response: %w", err)
	}
	return nil
}
