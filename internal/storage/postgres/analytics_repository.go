package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stridelab/warehouse/internal/domain/analytics"
)

var _ analytics.Repository = (*AnalyticsRepository)(nil)

// AnalyticsRepository serves the read-only warehouse projections. Every
// query is windowed to the most recent N ISO weeks present in the fact table.
type AnalyticsRepository struct {
	pool *pgxpool.Pool
}

func (r *AnalyticsRepository) WeeklySeries(ctx context.Context, weeks int) ([]analytics.WeeklySeriesPoint, error) {
	rows, err := r.pool.Query(ctx, `
WITH recent_weeks AS (
    SELECT DISTINCT d.date_key
      FROM fact_run_weekly frw
      JOIN dim_date d ON d.date_key = frw.date_key
     ORDER BY d.date_key DESC
     LIMIT $1
),
windowed AS (
    SELECT frw.distance_km,
           frw.athlete_key,
           d.week_start_date,
           a.age_group_key
      FROM fact_run_weekly frw
      JOIN dim_date d ON d.date_key = frw.date_key
      JOIN dim_athlete a ON a.athlete_key = frw.athlete_key
      JOIN recent_weeks rw ON rw.date_key = d.date_key
)
SELECT w.week_start_date,
       coalesce(ag.age_group_label, 'Unknown') AS age_group,
       sum(coalesce(w.distance_km, 0)) AS total_distance_km,
       count(DISTINCT w.athlete_key) AS runner_count,
       CASE WHEN count(DISTINCT w.athlete_key) = 0 THEN 0
            ELSE sum(coalesce(w.distance_km, 0)) / count(DISTINCT w.athlete_key)
       END AS avg_distance_km_per_runner
  FROM windowed w
  LEFT JOIN dim_age_group ag ON ag.age_group_key = w.age_group_key
 GROUP BY w.week_start_date, ag.age_group_label
 ORDER BY w.week_start_date, ag.age_group_label
`, weeks)
	if err != nil {
		return nil, fmt.Errorf("weekly series: %w", err)
	}
	defer rows.Close()

	var series []analytics.WeeklySeriesPoint
	for rows.Next() {
		var point analytics.WeeklySeriesPoint
		if err := rows.Scan(
			&point.WeekStart,
			&point.AgeGroup,
			&point.TotalDistanceKm,
			&point.RunnerCount,
			&point.AvgDistanceKmPerRunner,
		); err != nil {
			return nil, fmt.Errorf("weekly series: scan: %w", err)
		}
		series = append(series, point)
	}
	return series, rows.Err()
}

func (r *AnalyticsRepository) KPIs(ctx context.Context, weeks int) (analytics.OverviewKPIs, error) {
	var (
		kpis       analytics.OverviewKPIs
		total      *float64
		avgWeekly  *float64
		latestWeek *float64
	)
	err := r.pool.QueryRow(ctx, `
WITH recent_weeks AS (
    SELECT DISTINCT d.date_key
      FROM fact_run_weekly frw
      JOIN dim_date d ON d.date_key = frw.date_key
     ORDER BY d.date_key DESC
     LIMIT $1
),
windowed AS (
    SELECT coalesce(frw.distance_km, 0) AS distance_km,
           frw.athlete_key,
           d.week_start_date
      FROM fact_run_weekly frw
      JOIN dim_date d ON d.date_key = frw.date_key
      JOIN recent_weeks rw ON rw.date_key = d.date_key
)
SELECT sum(w.distance_km),
       CASE WHEN count(DISTINCT w.week_start_date) = 0 OR count(DISTINCT w.athlete_key) = 0 THEN 0
            ELSE sum(w.distance_km) / (count(DISTINCT w.week_start_date) * count(DISTINCT w.athlete_key))
       END,
       count(DISTINCT w.athlete_key),
       (
           SELECT sum(w2.distance_km)
             FROM windowed w2
            WHERE w2.week_start_date = (SELECT max(week_start_date) FROM windowed)
       )
  FROM windowed w
`, weeks).Scan(&total, &avgWeekly, &kpis.TotalRunners, &latestWeek)
	if err != nil {
		return analytics.OverviewKPIs{}, fmt.Errorf("overview kpis: %w", err)
	}

	if total != nil {
		kpis.TotalDistanceKm = *total
	}
	if avgWeekly != nil {
		kpis.AvgWeeklyDistanceKm = *avgWeekly
	}
	if latestWeek != nil {
		kpis.LatestWeekDistanceKm = *latestWeek
	}
	return kpis, nil
}

func (r *AnalyticsRepository) PaceByDemo(ctx context.Context, weeks int) ([]analytics.PacePoint, error) {
	rows, err := r.pool.Query(ctx, `
WITH recent_weeks AS (
    SELECT DISTINCT d.date_key
      FROM fact_run_weekly frw
      JOIN dim_date d ON d.date_key = frw.date_key
     ORDER BY d.date_key DESC
     LIMIT $1
),
windowed AS (
    SELECT frw.distance_km,
           frw.duration_min,
           frw.athlete_key,
           d.week_start_date,
           a.age_group_key,
           a.gender_key
      FROM fact_run_weekly frw
      JOIN dim_date d ON d.date_key = frw.date_key
      JOIN dim_athlete a ON a.athlete_key = frw.athlete_key
      JOIN recent_weeks rw ON rw.date_key = d.date_key
     WHERE frw.distance_km IS NOT NULL
       AND frw.distance_km > 0
)
SELECT w.week_start_date,
       coalesce(g.gender_code, 'U') || ' / ' || coalesce(ag.age_group_label, 'Unknown') AS label,
       CASE WHEN sum(w.distance_km) = 0 THEN NULL
            ELSE sum(w.duration_min) / sum(w.distance_km)
       END AS avg_pace_min_per_km
  FROM windowed w
  LEFT JOIN dim_age_group ag ON ag.age_group_key = w.age_group_key
  LEFT JOIN dim_gender g ON g.gender_key = w.gender_key
 GROUP BY w.week_start_date, label
 ORDER BY w.week_start_date, label
`, weeks)
	if err != nil {
		return nil, fmt.Errorf("pace by demo: %w", err)
	}
	defer rows.Close()

	var series []analytics.PacePoint
	for rows.Next() {
		var (
			point analytics.PacePoint
			pace  *float64
		)
		if err := rows.Scan(&point.WeekStart, &point.Label, &pace); err != nil {
			return nil, fmt.Errorf("pace by demo: scan: %w", err)
		}
		if pace != nil {
			point.AvgPaceMinPerKm = *pace
		}
		series = append(series, point)
	}
	return series, rows.Err()
}

func (r *AnalyticsRepository) TopCountries(ctx context.Context, weeks, limit int) ([]analytics.CountryEntry, error) {
	rows, err := r.pool.Query(ctx, `
WITH recent_weeks AS (
    SELECT DISTINCT d.date_key
      FROM fact_run_weekly frw
      JOIN dim_date d ON d.date_key = frw.date_key
     ORDER BY d.date_key DESC
     LIMIT $1
)
SELECT coalesce(c.country_name, 'Unknown') AS country,
       sum(coalesce(frw.distance_km, 0)) AS total_distance_km,
       CASE WHEN sum(coalesce(frw.distance_km, 0)) = 0 THEN NULL
            ELSE sum(coalesce(frw.duration_min, 0)) / sum(coalesce(frw.distance_km, 0))
       END AS avg_pace_min_per_km
  FROM fact_run_weekly frw
  JOIN dim_date d ON d.date_key = frw.date_key
  JOIN dim_athlete a ON a.athlete_key = frw.athlete_key
  LEFT JOIN dim_country c ON c.country_key = a.country_key
  JOIN recent_weeks rw ON rw.date_key = d.date_key
 GROUP BY c.country_name
 ORDER BY total_distance_km DESC NULLS LAST
 LIMIT $2
`, weeks, limit)
	if err != nil {
		return nil, fmt.Errorf("top countries: %w", err)
	}
	defer rows.Close()

	var entries []analytics.CountryEntry
	for rows.Next() {
		var entry analytics.CountryEntry
		if err := rows.Scan(&entry.Country, &entry.TotalDistanceKm, &entry.AvgPaceMinPerKm); err != nil {
			return nil, fmt.Errorf("top countries: scan: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (r *AnalyticsRepository) MajorDistanceByYear(ctx context.Context, weeks int) ([]analytics.MajorDistancePoint, error) {
	rows, err := r.pool.Query(ctx, `
WITH recent_weeks AS (
    SELECT DISTINCT d.date_key
      FROM fact_run_weekly frw
      JOIN dim_date d ON d.date_key = frw.date_key
     ORDER BY d.date_key DESC
     LIMIT $1
)
SELECT d.week_start_date,
       coalesce(dm.major_year::text, 'Unknown') AS major_year,
       sum(coalesce(frw.distance_km, 0)) AS total_distance_km,
       count(DISTINCT frw.athlete_key) AS runner_count,
       CASE WHEN count(DISTINCT frw.athlete_key) = 0 THEN 0
            ELSE sum(coalesce(frw.distance_km, 0)) / count(DISTINCT frw.athlete_key)
       END AS avg_distance_km_per_runner
  FROM fact_run_weekly frw
  JOIN dim_date d ON d.date_key = frw.date_key
  JOIN dim_athlete a ON a.athlete_key = frw.athlete_key
  JOIN bridge_athlete_major bam ON bam.athlete_key = a.athlete_key
  JOIN dim_major dm ON dm.major_key = bam.major_key
  JOIN recent_weeks rw ON rw.date_key = d.date_key
 GROUP BY d.week_start_date, dm.major_year
 ORDER BY d.week_start_date, dm.major_year
`, weeks)
	if err != nil {
		return nil, fmt.Errorf("major distance by year: %w", err)
	}
	defer rows.Close()

	var series []analytics.MajorDistancePoint
	for rows.Next() {
		var point analytics.MajorDistancePoint
		if err := rows.Scan(
			&point.WeekStart,
			&point.MajorYear,
			&point.TotalDistanceKm,
			&point.RunnerCount,
			&point.AvgDistanceKmPerRunner,
		); err != nil {
			return nil, fmt.Errorf("major distance by year: scan: %w", err)
		}
		series = append(series, point)
	}
	return series, rows.Err()
}

func (r *AnalyticsRepository) DistanceByGender(ctx context.Context, weeks int) ([]analytics.GenderDistancePoint, error) {
	rows, err := r.pool.Query(ctx, `
WITH recent_weeks AS (
    SELECT DISTINCT d.date_key
      FROM fact_run_weekly frw
      JOIN dim_date d ON d.date_key = frw.date_key
     ORDER BY d.date_key DESC
     LIMIT $1
)
SELECT d.week_start_date,
       coalesce(g.gender_code, 'U') AS gender,
       sum(coalesce(frw.distance_km, 0)) AS total_distance_km,
       count(DISTINCT frw.athlete_key) AS runner_count,
       CASE WHEN count(DISTINCT frw.athlete_key) = 0 THEN 0
            ELSE sum(coalesce(frw.distance_km, 0)) / count(DISTINCT frw.athlete_key)
       END AS avg_distance_km_per_runner
  FROM fact_run_weekly frw
  JOIN dim_date d ON d.date_key = frw.date_key
  JOIN dim_athlete a ON a.athlete_key = frw.athlete_key
  LEFT JOIN dim_gender g ON g.gender_key = a.gender_key
  JOIN recent_weeks rw ON rw.date_key = d.date_key
 GROUP BY d.week_start_date, g.gender_code
 ORDER BY d.week_start_date, g.gender_code
`, weeks)
	if err != nil {
		return nil, fmt.Errorf("distance by gender: %w", err)
	}
	defer rows.Close()

	var series []analytics.GenderDistancePoint
	for rows.Next() {
		var point analytics.GenderDistancePoint
		if err := rows.Scan(
			&point.WeekStart,
			&point.Gender,
			&point.TotalDistanceKm,
			&point.RunnerCount,
			&point.AvgDistanceKmPerRunner,
		); err != nil {
			return nil, fmt.Errorf("distance by gender: scan: %w", err)
		}
		series = append(series, point)
	}
	return series, rows.Err()
}

func (r *AnalyticsRepository) MajorGenderDistribution(ctx context.Context, limit int) ([]analytics.MajorGenderEntry, error) {
	rows, err := r.pool.Query(ctx, `
WITH major_counts AS (
    SELECT dm.major_name,
           dm.major_year,
           g.gender_code,
           count(DISTINCT bam.athlete_key) AS runner_count
      FROM bridge_athlete_major bam
      JOIN dim_major dm ON dm.major_key = bam.major_key
      JOIN dim_athlete a ON a.athlete_key = bam.athlete_key
      LEFT JOIN dim_gender g ON g.gender_key = a.gender_key
     GROUP BY dm.major_name, dm.major_year, g.gender_code
),
top_majors AS (
    SELECT major_name, major_year
      FROM (
          SELECT mc.major_name, mc.major_year, sum(mc.runner_count) AS total_runners
            FROM major_counts mc
           GROUP BY mc.major_name, mc.major_year
           ORDER BY total_runners DESC
           LIMIT $1
      ) t
)
SELECT tm.major_name,
       coalesce(mc.gender_code, 'U') AS gender,
       coalesce(mc.runner_count, 0) AS runner_count
  FROM top_majors tm
  LEFT JOIN major_counts mc
    ON mc.major_name = tm.major_name
   AND coalesce(mc.major_year, -1) = coalesce(tm.major_year, -1)
 ORDER BY tm.major_name, mc.gender_code
`, limit)
	if err != nil {
		return nil, fmt.Errorf("major gender distribution: %w", err)
	}
	defer rows.Close()

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (analytics.MajorGenderEntry, error) {
		var entry analytics.MajorGenderEntry
		err := row.Scan(&entry.MajorName, &entry.Gender, &entry.RunnerCount)
		return entry, err
	})
}

func (r *AnalyticsRepository) AthletePaceSeries(ctx context.Context, athleteID, weeks int) ([]analytics.AthletePacePoint, error) {
	rows, err := r.pool.Query(ctx, `
WITH recent_weeks AS (
    SELECT DISTINCT d.date_key
      FROM fact_run_weekly frw
      JOIN dim_date d ON d.date_key = frw.date_key
      JOIN dim_athlete a ON a.athlete_key = frw.athlete_key
     WHERE a.athlete_id_source = $1
     ORDER BY d.date_key DESC
     LIMIT $2
)
SELECT d.week_start_date,
       coalesce(frw.pace_min_per_km,
                CASE WHEN coalesce(frw.distance_km, 0) = 0 THEN NULL
                     ELSE frw.duration_min / nullif(frw.distance_km, 0)
                END) AS pace_min_per_km
  FROM fact_run_weekly frw
  JOIN dim_date d ON d.date_key = frw.date_key
  JOIN dim_athlete a ON a.athlete_key = frw.athlete_key
  JOIN recent_weeks rw ON rw.date_key = d.date_key
 WHERE a.athlete_id_source = $1
   AND (frw.pace_min_per_km IS NOT NULL
        OR (frw.distance_km IS NOT NULL AND frw.distance_km > 0 AND frw.duration_min IS NOT NULL))
 ORDER BY d.date_key
`, athleteID, weeks)
	if err != nil {
		return nil, fmt.Errorf("athlete pace series: %w", err)
	}
	defer rows.Close()

	var series []analytics.AthletePacePoint
	for rows.Next() {
		var (
			weekStart time.Time
			pace      *float64
		)
		if err := rows.Scan(&weekStart, &pace); err != nil {
			return nil, fmt.Errorf("athlete pace series: scan: %w", err)
		}
		if pace == nil || *pace <= 0 {
			continue
		}
		series = append(series, analytics.AthletePacePoint{WeekStart: weekStart, PaceMinPerKm: *pace})
	}
	return series, rows.Err()
}

func (r *AnalyticsRepository) AthleteMajors(ctx context.Context, athleteID int) ([]analytics.AthleteMajor, error) {
	rows, err := r.pool.Query(ctx, `
SELECT dm.major_name, dm.major_year
  FROM dim_athlete a
  JOIN bridge_athlete_major bam ON bam.athlete_key = a.athlete_key
  JOIN dim_major dm ON dm.major_key = bam.major_key
 WHERE a.athlete_id_source = $1
 ORDER BY dm.major_year NULLS LAST, dm.major_name
`, athleteID)
	if err != nil {
		return nil, fmt.Errorf("athlete majors: %w", err)
	}
	defer rows.Close()

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (analytics.AthleteMajor, error) {
		var major analytics.AthleteMajor
		err := row.Scan(&major.MajorName, &major.MajorYear)
		return major, err
	})
}
