package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stridelab/warehouse/internal/api/problem"
	"github.com/stridelab/warehouse/internal/domain/runs"
	"github.com/stridelab/warehouse/internal/metrics"
)

const runDateLayout = "2006-01-02"

// IngestService is the part of the run pipeline the HTTP layer depends on.
type IngestService interface {
	Ingest(ctx context.Context, rows []runs.Row, sourceLabel string) (*runs.IngestResult, error)
	MaxBatchRows() int
}

type IngestHandler struct {
	service  IngestService
	validate *validator.Validate
	env      string
}

func NewIngestHandler(service IngestService, env string) *IngestHandler {
	return &IngestHandler{
		service:  service,
		validate: validator.New(),
		env:      env,
	}
}

type ingestRunRow struct {
	RunDate     string   `json:"run_date" validate:"required,datetime=2006-01-02"`
	AthleteID   int      `json:"athlete_id" validate:"required,gt=0"`
	DistanceKm  *float64 `json:"distance_km,omitempty" validate:"omitempty,gte=0"`
	DurationMin *float64 `json:"duration_min,omitempty" validate:"omitempty,gte=0"`
	Gender      *string  `json:"gender,omitempty"`
	AgeGroup    *string  `json:"age_group,omitempty"`
	Country     *string  `json:"country,omitempty"`
	Majors      []string `json:"majors,omitempty"`
}

type ingestRequest struct {
	SourceName string         `json:"source_name" validate:"required,max=256"`
	Rows       []ingestRunRow `json:"rows" validate:"required,min=1,dive"`
}

type ingestResponse struct {
	BatchID       int64  `json:"batch_id"`
	ReceivedCount int    `json:"received_count"`
	Status        string `json:"status"`
}

// Create accepts a batch of raw run rows and promotes it into the warehouse.
func (h *IngestHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		problem.Write(w, r, http.StatusBadRequest, "https://stridelab.io/problems/validation-error", "Invalid request", err, h.env)
		return
	}

	if err := h.validate.Struct(input); err != nil {
		problem.Write(w, r, http.StatusBadRequest, "https://stridelab.io/problems/validation-error", "Invalid request", err, h.env)
		return
	}

	if len(input.Rows) > h.service.MaxBatchRows() {
		metrics.IngestBatchesTotal.WithLabelValues("rejected").Inc()
		problem.Write(w, r, http.StatusRequestEntityTooLarge, "https://stridelab.io/problems/batch-too-large", "Batch too large",
			runs.ErrBatchTooLarge, h.env)
		return
	}

	rows := make([]runs.Row, 0, len(input.Rows))
	for _, in := range input.Rows {
		runDate, err := time.Parse(runDateLayout, in.RunDate)
		if err != nil {
			problem.Write(w, r, http.StatusBadRequest, "https://stridelab.io/problems/validation-error", "Invalid request", err, h.env)
			return
		}
		rows = append(rows, runs.Row{
			RunDate:         runDate,
			AthleteIDSource: in.AthleteID,
			DistanceKm:      in.DistanceKm,
			DurationMin:     in.DurationMin,
			Gender:          in.Gender,
			AgeGroup:        in.AgeGroup,
			Country:         in.Country,
			Majors:          in.Majors,
		})
	}

	start := time.Now()
	result, err := h.service.Ingest(r.Context(), rows, input.SourceName)
	metrics.IngestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		switch {
		case errors.Is(err, runs.ErrEmptyBatch), errors.Is(err, runs.ErrBatchTooLarge):
			metrics.IngestBatchesTotal.WithLabelValues("rejected").Inc()
			problem.Write(w, r, http.StatusBadRequest, "https://stridelab.io/problems/validation-error", "Invalid request", err, h.env)
		default:
			metrics.IngestBatchesTotal.WithLabelValues("failed").Inc()
			problem.Write(w, r, http.StatusInternalServerError, "https://stridelab.io/problems/ingest-failed", "Batch promotion failed", err, h.env)
		}
		return
	}

	metrics.IngestBatchesTotal.WithLabelValues("succeeded").Inc()
	metrics.IngestRowsTotal.Add(float64(result.ReceivedCount))

	respondJSON(w, http.StatusCreated, ingestResponse{
		BatchID:       result.BatchID,
		ReceivedCount: result.ReceivedCount,
		Status:        "succeeded",
	})
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
