// Package health expone /readyz.
package health

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/dropDatabas3/sentinel/internal/http/dto"
	"github.com/dropDatabas3/sentinel/internal/http/helpers"
	"github.com/dropDatabas3/sentinel/internal/observability/logger"
)

// Check verifica un componente (DB, cache).
type Check func(ctx context.Context) error

const checkTimeout = 2 * time.Second

type Controller struct {
	checks map[string]Check
}

func NewController(checks map[string]Check) *Controller {
	return &Controller{checks: checks}
}

// Readyz maneja GET /readyz: 200 si todos los componentes responden, 503 si
// alguno falla.
func (c *Controller) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("HealthController.Readyz"))

	names := make([]string, 0, len(c.checks))
	for n := range c.checks {
		names = append(names, n)
	}
	sort.Strings(names)

	resp := dto.HealthResponse{
		Status:     "ready",
		Components: make(map[string]string, len(names)),
		Timestamp:  time.Now().UTC(),
	}
	for _, n := range names {
		if err := c.checks[n](ctx); err != nil {
			resp.Components[n] = "down"
			resp.Status = "unavailable"
			log.Warn("component not ready", logger.Component(n), logger.Err(err))
			continue
		}
		resp.Components[n] = "up"
	}

	status := http.StatusOK
	if resp.Status != "ready" {
		status = http.StatusServiceUnavailable
	}
	helpers.WriteJSON(w, status, resp)
}
