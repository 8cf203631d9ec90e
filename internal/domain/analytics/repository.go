package analytics

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidAthleteID is returned when an athlete-scoped query is asked for
// a non-positive source athlete id.
var ErrInvalidAthleteID = errors.New("athlete id must be positive")

type WeeklySeriesPoint struct {
	WeekStart              time.Time `json:"week_start"`
	AgeGroup               string    `json:"age_group"`
	TotalDistanceKm        float64   `json:"total_distance_km"`
	RunnerCount            int64     `json:"runner_count"`
	AvgDistanceKmPerRunner float64   `json:"avg_distance_km_per_runner"`
}

type OverviewKPIs struct {
	TotalDistanceKm      float64 `json:"total_distance_km"`
	AvgWeeklyDistanceKm  float64 `json:"avg_weekly_distance_km"`
	TotalRunners         int64   `json:"total_runners"`
	LatestWeekDistanceKm float64 `json:"latest_week_distance_km"`
}

type Overview struct {
	Weeks  int                 `json:"weeks"`
	Series []WeeklySeriesPoint `json:"series"`
	KPIs   OverviewKPIs        `json:"kpis"`
}

type PacePoint struct {
	WeekStart       time.Time `json:"week_start"`
	Label           string    `json:"label"`
	AvgPaceMinPerKm float64   `json:"avg_pace_min_per_km"`
}

type PaceByDemo struct {
	Weeks  int         `json:"weeks"`
	Series []PacePoint `json:"series"`
}

type CountryEntry struct {
	Rank            int      `json:"rank"`
	Country         string   `json:"country"`
	TotalDistanceKm float64  `json:"total_distance_km"`
	AvgPaceMinPerKm *float64 `json:"avg_pace_min_per_km"`
}

type TopCountries struct {
	Weeks     int            `json:"weeks"`
	Countries []CountryEntry `json:"countries"`
}

type MajorDistancePoint struct {
	WeekStart              time.Time `json:"week_start"`
	MajorYear              string    `json:"major_year"`
	TotalDistanceKm        float64   `json:"total_distance_km"`
	RunnerCount            int64     `json:"runner_count"`
	AvgDistanceKmPerRunner float64   `json:"avg_distance_km_per_runner"`
}

type MajorDistance struct {
	Weeks  int                  `json:"weeks"`
	Series []MajorDistancePoint `json:"series"`
}

type GenderDistancePoint struct {
	WeekStart              time.Time `json:"week_start"`
	Gender                 string    `json:"gender"`
	TotalDistanceKm        float64   `json:"total_distance_km"`
	RunnerCount            int64     `json:"runner_count"`
	AvgDistanceKmPerRunner float64   `json:"avg_distance_km_per_runner"`
}

type GenderDistance struct {
	Weeks  int                   `json:"weeks"`
	Series []GenderDistancePoint `json:"series"`
}

type MajorGenderEntry struct {
	MajorName   string `json:"major_name"`
	Gender      string `json:"gender"`
	RunnerCount int64  `json:"runner_count"`
}

type MajorGenderDistribution struct {
	Series []MajorGenderEntry `json:"series"`
}

type AthletePacePoint struct {
	WeekStart    time.Time `json:"week_start"`
	PaceMinPerKm float64   `json:"pace_min_per_km"`
}

type AthleteMajor struct {
	MajorName string `json:"major_name"`
	MajorYear *int   `json:"major_year"`
}

type AthletePace struct {
	AthleteID int                `json:"athlete_id"`
	Weeks     int                `json:"weeks"`
	Series    []AthletePacePoint `json:"series"`
	Majors    []AthleteMajor     `json:"majors"`
}

// Repository projects the warehouse read-only; no method mutates state.
type Repository interface {
	WeeklySeries(ctx context.Context, weeks int) ([]WeeklySeriesPoint, error)
	KPIs(ctx context.Context, weeks int) (OverviewKPIs, error)
	PaceByDemo(ctx context.Context, weeks int) ([]PacePoint, error)
	TopCountries(ctx context.Context, weeks, limit int) ([]CountryEntry, error)
	MajorDistanceByYear(ctx context.Context, weeks int) ([]MajorDistancePoint, error)
	DistanceByGender(ctx context.Context, weeks int) ([]GenderDistancePoint, error)
	MajorGenderDistribution(ctx context.Context, limit int) ([]MajorGenderEntry, error)
	AthletePaceSeries(ctx context.Context, athleteID, weeks int) ([]AthletePacePoint, error)
	AthleteMajors(ctx context.Context, athleteID int) ([]AthleteMajor, error)
}
