package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/stridelab/warehouse/internal/api/problem"
	"github.com/stridelab/warehouse/internal/domain/analytics"
)

// AnalyticsService serves the read-only warehouse projections.
type AnalyticsService interface {
	Overview(ctx context.Context, weeks int) (*analytics.Overview, error)
	PaceByDemo(ctx context.Context, weeks int) (*analytics.PaceByDemo, error)
	TopCountries(ctx context.Context, weeks, limit int) (*analytics.TopCountries, error)
	MajorDistanceByYear(ctx context.Context, weeks int) (*analytics.MajorDistance, error)
	DistanceByGender(ctx context.Context, weeks int) (*analytics.GenderDistance, error)
	MajorGenderDistribution(ctx context.Context, limit int) (*analytics.MajorGenderDistribution, error)
	AthletePace(ctx context.Context, athleteID, weeks int) (*analytics.AthletePace, error)
}

type AnalyticsHandler struct {
	service AnalyticsService
	env     string
}

func NewAnalyticsHandler(service AnalyticsService, env string) *AnalyticsHandler {
	return &AnalyticsHandler{service: service, env: env}
}

func (h *AnalyticsHandler) Overview(w http.ResponseWriter, r *http.Request) {
	weeks, ok := queryInt(w, r, "weeks", h.env)
	if !ok {
		return
	}

	overview, err := h.service.Overview(r.Context(), weeks)
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, "https://stridelab.io/problems/server-error", "Server error", err, h.env)
		return
	}
	respondJSON(w, http.StatusOK, overview)
}

func (h *AnalyticsHandler) PaceByDemo(w http.ResponseWriter, r *http.Request) {
	weeks, ok := queryInt(w, r, "weeks", h.env)
	if !ok {
		return
	}

	series, err := h.service.PaceByDemo(r.Context(), weeks)
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, "https://stridelab.io/problems/server-error", "Server error", err, h.env)
		return
	}
	respondJSON(w, http.StatusOK, series)
}

func (h *AnalyticsHandler) TopCountries(w http.ResponseWriter, r *http.Request) {
	weeks, ok := queryInt(w, r, "weeks", h.env)
	if !ok {
		return
	}
	limit, ok := queryInt(w, r, "limit", h.env)
	if !ok {
		return
	}

	countries, err := h.service.TopCountries(r.Context(), weeks, limit)
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, "https://stridelab.io/problems/server-error", "Server error", err, h.env)
		return
	}
	respondJSON(w, http.StatusOK, countries)
}

func (h *AnalyticsHandler) MajorDistanceByYear(w http.ResponseWriter, r *http.Request) {
	weeks, ok := queryInt(w, r, "weeks", h.env)
	if !ok {
		return
	}

	series, err := h.service.MajorDistanceByYear(r.Context(), weeks)
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, "https://stridelab.io/problems/server-error", "Server error", err, h.env)
		return
	}
	respondJSON(w, http.StatusOK, series)
}

func (h *AnalyticsHandler) DistanceByGender(w http.ResponseWriter, r *http.Request) {
	weeks, ok := queryInt(w, r, "weeks", h.env)
	if !ok {
		return
	}

	series, err := h.service.DistanceByGender(r.Context(), weeks)
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, "https://stridelab.io/problems/server-error", "Server error", err, h.env)
		return
	}
	respondJSON(w, http.StatusOK, series)
}

func (h *AnalyticsHandler) MajorGenderDistribution(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit", h.env)
	if !ok {
		return
	}

	distribution, err := h.service.MajorGenderDistribution(r.Context(), limit)
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, "https://stridelab.io/problems/server-error", "Server error", err, h.env)
		return
	}
	respondJSON(w, http.StatusOK, distribution)
}

func (h *AnalyticsHandler) AthletePace(w http.ResponseWriter, r *http.Request) {
	athleteID, err := strconv.Atoi(r.URL.Query().Get("athlete_id"))
	if err != nil {
		problem.Write(w, r, http.StatusBadRequest, "https://stridelab.io/problems/validation-error", "Invalid request",
			errors.New("athlete_id must be a positive integer"), h.env)
		return
	}
	weeks, ok := queryInt(w, r, "weeks", h.env)
	if !ok {
		return
	}

	pace, err := h.service.AthletePace(r.Context(), athleteID, weeks)
	if err != nil {
		if errors.Is(err, analytics.ErrInvalidAthleteID) {
			problem.Write(w, r, http.StatusBadRequest, "https://stridelab.io/problems/validation-error", "Invalid request", err, h.env)
			return
		}
		problem.Write(w, r, http.StatusInternalServerError, "https://stridelab.io/problems/server-error", "Server error", err, h.env)
		return
	}
	respondJSON(w, http.StatusOK, pace)
}

// queryInt parses an optional positive integer query parameter. Zero means
// "use the service default". On a malformed value it writes a problem
// response and reports false.
func queryInt(w http.ResponseWriter, r *http.Request, name, env string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		problem.Write(w, r, http.StatusBadRequest, "https://stridelab.io/problems/validation-error", "Invalid request",
			errors.New(name+" must be a non-negative integer"), env)
		return 0, false
	}
	return value, true
}
