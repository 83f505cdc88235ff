package handler

import (
	"context"
	"net/http"

	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/log"
	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/service"
)

// SweepRunner runs one expiration sweep.
type SweepRunner interface {
	Run(ctx context.Context) (*service.SweepReport, error)
}

// SweepHandler triggers the expiration sweep on demand.
type SweepHandler struct {
	sweeper SweepRunner
}

// NewSweepHandler creates a new SweepHandler.
func NewSweepHandler(sweeper SweepRunner) *SweepHandler {
	return &SweepHandler{sweeper: sweeper}
}

type sweepResponse struct {
	Report *service.SweepReport `json:"report"`
	Error  string               `json:"error,omitempty"`
}

// Run handles POST /sweep. The report is returned even when part of the
// run failed.
func (h *SweepHandler) Run(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	report, err := h.sweeper.Run(ctx)
	if err != nil {
		log.FromContext(ctx).Error("manual sweep failed", "error", err)
		respondJSON(w, http.StatusBadGateway, sweepResponse{Report: report, Error: err.Error()})
		return
	}

	respondJSON(w, http.StatusOK, sweepResponse{Report: report})
}
