package db

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/labstack/echo/v4"
)

// Check probes one backing dependency (postgres, redis, amqp).
type Check func(ctx context.Context) error

// ComponentStatus is the result of a single Check.
type ComponentStatus struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// RunChecks executes every check with a shared deadline and returns the
// results sorted by name.
func RunChecks(ctx context.Context, checks map[string]Check, timeout time.Duration) ([]ComponentStatus, bool) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	healthy := true
	results := make([]ComponentStatus, 0, len(checks))
	for name, check := range checks {
		st := ComponentStatus{Name: name, Healthy: true}
		if err := check(ctx); err != nil {
			st.Healthy = false
			st.Error = err.Error()
			healthy = false
		}
		results = append(results, st)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	return results, healthy
}

// HealthHandler reports the state of the configured backends. With no
// checks registered (memory backend) it always reports healthy.
func HealthHandler(checks map[string]Check) echo.HandlerFunc {
	return func(c echo.Context) error {
		results, healthy := RunChecks(c.Request().Context(), checks, 5*time.Second)
		if !healthy {
			return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
				"status":     "unhealthy",
				"components": results,
			})
		}
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":     "healthy",
			"components": results,
		})
	}
}
