// Package demo expone el simulador de verificación por etapas.
package demo

import (
	"context"
	"net/http"

	"github.com/dropDatabas3/sentinel/internal/http/dto"
	"github.com/dropDatabas3/sentinel/internal/http/helpers"
	"github.com/dropDatabas3/sentinel/internal/observability/logger"
	"github.com/dropDatabas3/sentinel/internal/simulator"
)

// Runner es lo que el controller necesita de simulator.Runner.
type Runner interface {
	Start(ctx context.Context) uint64
	Stop()
	Snapshot() simulator.Snapshot
}

type Controller struct {
	runner Runner
	// base vive lo que vive el servidor; un run no debe morir con el request.
	base context.Context
}

func NewController(base context.Context, runner Runner) *Controller {
	return &Controller{runner: runner, base: base}
}

// Start maneja POST /v1/demo/verification: reinicia la simulación.
func (c *Controller) Start(w http.ResponseWriter, r *http.Request) {
	run := c.runner.Start(c.base)
	logger.From(r.Context()).Debug("verification demo started",
		logger.Layer("controller"), logger.Uint64("run", run))
	helpers.WriteJSON(w, http.StatusAccepted, snapshotDTO(c.runner.Snapshot()))
}

// Get maneja GET /v1/demo/verification.
func (c *Controller) Get(w http.ResponseWriter, r *http.Request) {
	helpers.WriteJSON(w, http.StatusOK, snapshotDTO(c.runner.Snapshot()))
}

// Stop maneja DELETE /v1/demo/verification.
func (c *Controller) Stop(w http.ResponseWriter, r *http.Request) {
	c.runner.Stop()
	helpers.WriteJSON(w, http.StatusOK, snapshotDTO(c.runner.Snapshot()))
}

func snapshotDTO(s simulator.Snapshot) dto.VerificationResponse {
	stages := make([]dto.VerificationStage, len(s.Stages))
	for i, st := range s.Stages {
		stages[i] = dto.VerificationStage{Name: st.Name, Status: string(st.Status)}
	}
	return dto.VerificationResponse{
		Run:      s.Run,
		Stages:   stages,
		Progress: s.Progress,
		Running:  s.Running,
		Done:     s.Done,
	}
}
