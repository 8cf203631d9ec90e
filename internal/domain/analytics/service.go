package analytics

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

const (
	defaultWindowWeeks  = 12
	defaultAthleteWeeks = 52
	defaultGenderWeeks  = 52
	defaultCountryLimit = 50
	maxCountryLimit     = 200
	defaultMajorLimit   = 10
	maxMajorLimit       = 50
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Overview returns the weekly distance series and headline KPIs over the
// trailing window. The two aggregates are independent, so they run
// concurrently against the pool.
func (s *Service) Overview(ctx context.Context, weeks int) (*Overview, error) {
	if weeks <= 0 {
		weeks = defaultWindowWeeks
	}

	result := &Overview{Weeks: weeks, Series: []WeeklySeriesPoint{}}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		series, err := s.repo.WeeklySeries(ctx, weeks)
		if err != nil {
			return fmt.Errorf("weekly series: %w", err)
		}
		if series != nil {
			result.Series = series
		}
		return nil
	})
	g.Go(func() error {
		kpis, err := s.repo.KPIs(ctx, weeks)
		if err != nil {
			return fmt.Errorf("overview kpis: %w", err)
		}
		result.KPIs = kpis
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) PaceByDemo(ctx context.Context, weeks int) (*PaceByDemo, error) {
	if weeks <= 0 {
		weeks = defaultWindowWeeks
	}

	series, err := s.repo.PaceByDemo(ctx, weeks)
	if err != nil {
		return nil, fmt.Errorf("pace by demo: %w", err)
	}
	if series == nil {
		series = []PacePoint{}
	}
	return &PaceByDemo{Weeks: weeks, Series: series}, nil
}

func (s *Service) TopCountries(ctx context.Context, weeks, limit int) (*TopCountries, error) {
	if weeks <= 0 {
		weeks = defaultWindowWeeks
	}
	if limit <= 0 {
		limit = defaultCountryLimit
	}
	if limit > maxCountryLimit {
		limit = maxCountryLimit
	}

	countries, err := s.repo.TopCountries(ctx, weeks, limit)
	if err != nil {
		return nil, fmt.Errorf("top countries: %w", err)
	}
	for i := range countries {
		countries[i].Rank = i + 1
	}
	if countries == nil {
		countries = []CountryEntry{}
	}
	return &TopCountries{Weeks: weeks, Countries: countries}, nil
}

// MajorDistanceByYear breaks weekly distance down by major year over the
// trailing window, the main read path over the athlete-major bridge.
func (s *Service) MajorDistanceByYear(ctx context.Context, weeks int) (*MajorDistance, error) {
	if weeks <= 0 {
		weeks = defaultWindowWeeks
	}

	series, err := s.repo.MajorDistanceByYear(ctx, weeks)
	if err != nil {
		return nil, fmt.Errorf("major distance by year: %w", err)
	}
	if series == nil {
		series = []MajorDistancePoint{}
	}
	return &MajorDistance{Weeks: weeks, Series: series}, nil
}

// DistanceByGender breaks weekly distance down by gender. Its default window
// is a full year rather than the usual quarter.
func (s *Service) DistanceByGender(ctx context.Context, weeks int) (*GenderDistance, error) {
	if weeks <= 0 {
		weeks = defaultGenderWeeks
	}

	series, err := s.repo.DistanceByGender(ctx, weeks)
	if err != nil {
		return nil, fmt.Errorf("distance by gender: %w", err)
	}
	if series == nil {
		series = []GenderDistancePoint{}
	}
	return &GenderDistance{Weeks: weeks, Series: series}, nil
}

// MajorGenderDistribution returns runner counts per gender for the most
// popular majors.
func (s *Service) MajorGenderDistribution(ctx context.Context, limit int) (*MajorGenderDistribution, error) {
	if limit <= 0 {
		limit = defaultMajorLimit
	}
	if limit > maxMajorLimit {
		limit = maxMajorLimit
	}

	series, err := s.repo.MajorGenderDistribution(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("major gender distribution: %w", err)
	}
	if series == nil {
		series = []MajorGenderEntry{}
	}
	return &MajorGenderDistribution{Series: series}, nil
}

// AthletePace returns the weekly pace series and major registrations for one
// source athlete id.
func (s *Service) AthletePace(ctx context.Context, athleteID, weeks int) (*AthletePace, error) {
	if athleteID <= 0 {
		return nil, ErrInvalidAthleteID
	}
	if weeks <= 0 {
		weeks = defaultAthleteWeeks
	}

	result := &AthletePace{
		AthleteID: athleteID,
		Weeks:     weeks,
		Series:    []AthletePacePoint{},
		Majors:    []AthleteMajor{},
	}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		series, err := s.repo.AthletePaceSeries(ctx, athleteID, weeks)
		if err != nil {
			return fmt.Errorf("athlete pace series: %w", err)
		}
		if series != nil {
			result.Series = series
		}
		return nil
	})
	g.Go(func() error {
		majors, err := s.repo.AthleteMajors(ctx, athleteID)
		if err != nil {
			return fmt.Errorf("athlete majors: %w", err)
		}
		if majors != nil {
			result.Majors = majors
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}
