package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/stridelab/warehouse/internal/api/problem"
	"github.com/stridelab/warehouse/internal/domain/inventory"
)

type InventoryService interface {
	List(ctx context.Context) ([]inventory.Record, error)
	Create(ctx context.Context, submission inventory.Submission) (*inventory.Record, error)
}

type InventoryHandler struct {
	service InventoryService
	env     string
}

func NewInventoryHandler(service InventoryService, env string) *InventoryHandler {
	return &InventoryHandler{service: service, env: env}
}

func (h *InventoryHandler) List(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.List(r.Context())
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, "https://stridelab.io/problems/server-error", "Server error", err, h.env)
		return
	}
	respondJSON(w, http.StatusOK, records)
}

func (h *InventoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	var submission inventory.Submission
	if err := json.NewDecoder(r.Body).Decode(&submission); err != nil {
		problem.Write(w, r, http.StatusBadRequest, "https://stridelab.io/problems/validation-error", "Invalid request", err, h.env)
		return
	}

	record, err := h.service.Create(r.Context(), submission)
	if err != nil {
		if errors.Is(err, inventory.ErrInvalidSubmission) {
			problem.Write(w, r, http.StatusBadRequest, "https://stridelab.io/problems/validation-error", "Invalid request", err, h.env)
			return
		}
		problem.Write(w, r, http.StatusInternalServerError, "https://stridelab.io/problems/server-error", "Server error", err, h.env)
		return
	}
	respondJSON(w, http.StatusCreated, record)
}
