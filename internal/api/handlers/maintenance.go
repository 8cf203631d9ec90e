package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/stridelab/warehouse/internal/api/problem"
	"github.com/stridelab/warehouse/internal/metrics"
)

// BackfillService repairs dimension data from all staged rows.
type BackfillService interface {
	Backfill(ctx context.Context) error
}

type MaintenanceHandler struct {
	service BackfillService
	env     string
}

func NewMaintenanceHandler(service BackfillService, env string) *MaintenanceHandler {
	return &MaintenanceHandler{service: service, env: env}
}

type backfillResponse struct {
	Status     string `json:"status"`
	DurationMs int64  `json:"duration_ms"`
}

// Backfill re-resolves dimensions from every staged row and fills gaps in
// athlete attributes without overwriting anything already set.
func (h *MaintenanceHandler) Backfill(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	err := h.service.Backfill(r.Context())
	duration := time.Since(start)
	metrics.BackfillDuration.Observe(duration.Seconds())

	if err != nil {
		metrics.BackfillRunsTotal.WithLabelValues("failed").Inc()
		problem.Write(w, r, http.StatusInternalServerError, "https://stridelab.io/problems/backfill-failed", "Backfill failed", err, h.env)
		return
	}

	metrics.BackfillRunsTotal.WithLabelValues("succeeded").Inc()
	respondJSON(w, http.StatusOK, backfillResponse{
		Status:     "completed",
		DurationMs: duration.Milliseconds(),
	})
}
