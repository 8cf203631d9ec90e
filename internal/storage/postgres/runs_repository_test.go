package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stridelab/warehouse/internal/domain/runs"
	"golang.org/x/sync/errgroup"
)

func setupService(t *testing.T, ctx context.Context) *runs.Service {
	t.Helper()
	pool := setupPostgres(t, ctx)
	repo, err := NewRepository(pool)
	require.NoError(t, err)
	return runs.NewService(repo.Runs(), zerolog.Nop(), runs.ServiceConfig{})
}

func TestIngestEndToEnd(t *testing.T) {
	ctx := context.Background()
	svc := setupService(t, ctx)
	pool := sharedPool

	row := stagedRun(t, "2024-01-03", 42, 10, 55)
	row.Gender = strPtr("F")
	row.AgeGroup = strPtr("18-24")
	row.Country = strPtr("Sweden")
	row.Majors = []string{"Boston2023", "Trail Run"}

	result, err := svc.Ingest(ctx, []runs.Row{row}, "csv-upload")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 1, result.ReceivedCount)

	// Ledger row finalized as succeeded with the row count.
	var (
		status   string
		rowCount int
		source   string
	)
	err = pool.QueryRow(ctx,
		`SELECT status, row_count, source_name FROM stg_ingest_log WHERE id = $1`,
		result.BatchID,
	).Scan(&status, &rowCount, &source)
	require.NoError(t, err)
	assert.Equal(t, "succeeded", status)
	assert.Equal(t, 1, rowCount)
	assert.Equal(t, "csv-upload", source)

	// Staging row tagged with the batch.
	var stagedCount int64
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT count(*) FROM stg_runs_raw WHERE ingest_batch_id = $1`, result.BatchID,
	).Scan(&stagedCount))
	assert.Equal(t, int64(1), stagedCount)

	// Dimensions resolved from the raw text.
	var genderKey int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT gender_key FROM dim_gender WHERE gender_code = 'F'`).Scan(&genderKey))

	var minAge, maxAge *int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT min_age, max_age FROM dim_age_group WHERE age_group_label = '18-24'`).Scan(&minAge, &maxAge))
	require.NotNil(t, minAge)
	require.NotNil(t, maxAge)
	assert.Equal(t, 18, *minAge)
	assert.Equal(t, 24, *maxAge)

	var majorYear *int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT major_year FROM dim_major WHERE major_name = 'Boston2023'`).Scan(&majorYear))
	require.NotNil(t, majorYear)
	assert.Equal(t, 2023, *majorYear)
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT major_year FROM dim_major WHERE major_name = 'Trail Run'`).Scan(&majorYear))
	assert.Nil(t, majorYear)

	// 2024-01-03 falls in the ISO week starting Monday 2024-01-01.
	var isoYear, isoWeek, month, quarter int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT iso_year, iso_week, month, quarter FROM dim_date WHERE date_key = '2024-01-01'`,
	).Scan(&isoYear, &isoWeek, &month, &quarter))
	assert.Equal(t, 2024, isoYear)
	assert.Equal(t, 1, isoWeek)
	assert.Equal(t, 1, month)
	assert.Equal(t, 1, quarter)

	// Athlete resolved with demographic keys and seen-week range.
	var (
		athleteGender *int
		firstSeen     time.Time
		lastSeen      time.Time
	)
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT gender_key, first_seen_week, last_seen_week FROM dim_athlete WHERE athlete_id_source = 42`,
	).Scan(&athleteGender, &firstSeen, &lastSeen))
	require.NotNil(t, athleteGender)
	assert.Equal(t, genderKey, *athleteGender)
	assert.Equal(t, "2024-01-01", firstSeen.Format("2006-01-02"))
	assert.Equal(t, "2024-01-01", lastSeen.Format("2006-01-02"))

	// Both majors bridged.
	assert.Equal(t, int64(2), countRows(t, ctx, pool, "bridge_athlete_major"))

	// Fact row with derived pace.
	var (
		distance float64
		pace     *float64
		zeroFlag bool
	)
	require.NoError(t, pool.QueryRow(ctx, `
SELECT f.distance_km, f.pace_min_per_km, f.zero_distance_flag
  FROM fact_run_weekly f
  JOIN dim_athlete a ON a.athlete_key = f.athlete_key
 WHERE a.athlete_id_source = 42`,
	).Scan(&distance, &pace, &zeroFlag))
	assert.InDelta(t, 10.0, distance, 0.001)
	require.NotNil(t, pace)
	assert.InDelta(t, 5.5, *pace, 0.001)
	assert.False(t, zeroFlag)

}

func TestIngestDimensionCreationIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc := setupService(t, ctx)
	pool := sharedPool

	first := stagedRun(t, "2024-01-03", 1, 5, 25)
	first.Gender = strPtr("X")
	second := stagedRun(t, "2024-01-10", 2, 8, 40)
	second.Gender = strPtr("X")

	_, err := svc.Ingest(ctx, []runs.Row{first}, "batch-1")
	require.NoError(t, err)
	_, err = svc.Ingest(ctx, []runs.Row{second}, "batch-2")
	require.NoError(t, err)

	var count int64
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT count(*) FROM dim_gender WHERE gender_code = 'X'`).Scan(&count))
	assert.Equal(t, int64(1), count)
}

func TestIngestConcurrentBatchesShareDimensions(t *testing.T) {
	ctx := context.Background()
	svc := setupService(t, ctx)
	pool := sharedPool

	// Two promotions race to create the same previously unseen gender code.
	// The conflict targets must absorb the race so both batches commit and
	// the dimension stays deduplicated.
	var group errgroup.Group
	for i := 0; i < 2; i++ {
		i := i
		group.Go(func() error {
			row := stagedRun(t, "2024-01-03", 100+i, 5, 25)
			row.Gender = strPtr("X")
			row.Country = strPtr("Iceland")
			_, err := svc.Ingest(ctx, []runs.Row{row}, "concurrent")
			return err
		})
	}
	require.NoError(t, group.Wait())

	var genders, countries, facts int64
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT count(*) FROM dim_gender WHERE gender_code = 'X'`).Scan(&genders))
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT count(*) FROM dim_country WHERE country_name = 'Iceland'`).Scan(&countries))
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT count(*) FROM fact_run_weekly`).Scan(&facts))
	assert.Equal(t, int64(1), genders)
	assert.Equal(t, int64(1), countries)
	assert.Equal(t, int64(2), facts)
}

func TestIngestAthleteLatestSubmissionWins(t *testing.T) {
	ctx := context.Background()
	svc := setupService(t, ctx)
	pool := sharedPool

	first := stagedRun(t, "2024-01-03", 42, 10, 50)
	first.AgeGroup = strPtr("18-24")
	_, err := svc.Ingest(ctx, []runs.Row{first}, "batch-1")
	require.NoError(t, err)

	second := stagedRun(t, "2024-02-07", 42, 12, 60)
	second.AgeGroup = strPtr("25-29")
	_, err = svc.Ingest(ctx, []runs.Row{second}, "batch-2")
	require.NoError(t, err)

	var label string
	require.NoError(t, pool.QueryRow(ctx, `
SELECT ag.age_group_label
  FROM dim_athlete a
  JOIN dim_age_group ag ON ag.age_group_key = a.age_group_key
 WHERE a.athlete_id_source = 42`).Scan(&label))
	assert.Equal(t, "25-29", label)

	// Both labels survive in the dimension.
	assert.Equal(t, int64(2), countRows(t, ctx, pool, "dim_age_group"))

	// Seen-week range widened across the batches.
	var firstSeen, lastSeen time.Time
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT first_seen_week, last_seen_week FROM dim_athlete WHERE athlete_id_source = 42`,
	).Scan(&firstSeen, &lastSeen))
	assert.Equal(t, "2024-01-01", firstSeen.Format("2006-01-02"))
	assert.Equal(t, "2024-02-05", lastSeen.Format("2006-01-02"))
}

func TestIngestFactReplacesNotAccumulates(t *testing.T) {
	ctx := context.Background()
	svc := setupService(t, ctx)
	pool := sharedPool

	_, err := svc.Ingest(ctx, []runs.Row{stagedRun(t, "2024-01-02", 7, 10, 50)}, "batch-1")
	require.NoError(t, err)
	_, err = svc.Ingest(ctx, []runs.Row{stagedRun(t, "2024-01-04", 7, 15, 70)}, "batch-2")
	require.NoError(t, err)

	// Both run dates share the week of 2024-01-01; the later batch wins.
	var distance float64
	require.NoError(t, pool.QueryRow(ctx, `
SELECT f.distance_km
  FROM fact_run_weekly f
  JOIN dim_athlete a ON a.athlete_key = f.athlete_key
 WHERE a.athlete_id_source = 7 AND f.date_key = '2024-01-01'`).Scan(&distance))
	assert.InDelta(t, 15.0, distance, 0.001)

	assert.Equal(t, int64(1), countRows(t, ctx, pool, "fact_run_weekly"))
}

func TestIngestZeroDistancePace(t *testing.T) {
	ctx := context.Background()
	svc := setupService(t, ctx)
	pool := sharedPool

	zero := stagedRun(t, "2024-01-02", 11, 0, 30)
	_, err := svc.Ingest(ctx, []runs.Row{zero}, "batch-1")
	require.NoError(t, err)

	var (
		pace     *float64
		zeroFlag bool
	)
	require.NoError(t, pool.QueryRow(ctx, `
SELECT f.pace_min_per_km, f.zero_distance_flag
  FROM fact_run_weekly f
  JOIN dim_athlete a ON a.athlete_key = f.athlete_key
 WHERE a.athlete_id_source = 11`).Scan(&pace, &zeroFlag))
	assert.Nil(t, pace)
	assert.True(t, zeroFlag)
}

func TestIngestNullDistanceTreatedAsZero(t *testing.T) {
	ctx := context.Background()
	svc := setupService(t, ctx)
	pool := sharedPool

	row := runs.Row{RunDate: mustDate(t, "2024-01-02"), AthleteIDSource: 12, DurationMin: floatPtr(30)}
	_, err := svc.Ingest(ctx, []runs.Row{row}, "batch-1")
	require.NoError(t, err)

	var (
		pace     *float64
		zeroFlag bool
	)
	require.NoError(t, pool.QueryRow(ctx, `
SELECT f.pace_min_per_km, f.zero_distance_flag
  FROM fact_run_weekly f
  JOIN dim_athlete a ON a.athlete_key = f.athlete_key
 WHERE a.athlete_id_source = 12`).Scan(&pace, &zeroFlag))
	assert.Nil(t, pace)
	assert.True(t, zeroFlag)
}

func TestIngestOpenEndedAgeGroups(t *testing.T) {
	ctx := context.Background()
	svc := setupService(t, ctx)
	pool := sharedPool

	rows := []runs.Row{
		stagedRun(t, "2024-01-02", 1, 5, 25),
		stagedRun(t, "2024-01-03", 2, 5, 25),
		stagedRun(t, "2024-01-04", 3, 5, 25),
	}
	rows[0].AgeGroup = strPtr("70+")
	rows[1].AgeGroup = strPtr("18-24")
	rows[2].AgeGroup = strPtr("N/A")

	_, err := svc.Ingest(ctx, rows, "batch-1")
	require.NoError(t, err)

	type bounds struct{ min, max *int }
	expect := map[string]bounds{
		"70+":   {min: intRef(70), max: nil},
		"18-24": {min: intRef(18), max: intRef(24)},
		"N/A":   {min: nil, max: nil},
	}
	for label, want := range expect {
		var gotMin, gotMax *int
		require.NoError(t, pool.QueryRow(ctx,
			`SELECT min_age, max_age FROM dim_age_group WHERE age_group_label = $1`, label,
		).Scan(&gotMin, &gotMax))
		assert.Equal(t, want.min, gotMin, "min of %s", label)
		assert.Equal(t, want.max, gotMax, "max of %s", label)
	}
}

func TestIngestAgeGroupBoundsPreferExisting(t *testing.T) {
	ctx := context.Background()
	svc := setupService(t, ctx)
	pool := sharedPool

	// Seed the label with explicit bounds, then ingest the same label.
	_, err := pool.Exec(ctx,
		`INSERT INTO dim_age_group (age_group_label, min_age, max_age) VALUES ('18-24', 17, 23)`)
	require.NoError(t, err)

	row := stagedRun(t, "2024-01-02", 1, 5, 25)
	row.AgeGroup = strPtr("18-24")
	_, err = svc.Ingest(ctx, []runs.Row{row}, "batch-1")
	require.NoError(t, err)

	var gotMin, gotMax *int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT min_age, max_age FROM dim_age_group WHERE age_group_label = '18-24'`).Scan(&gotMin, &gotMax))
	require.NotNil(t, gotMin)
	require.NotNil(t, gotMax)
	assert.Equal(t, 17, *gotMin)
	assert.Equal(t, 23, *gotMax)
}

// faultyRuns wraps the real repository and fails the fact step, so the whole
// promotion transaction must roll back.
type faultyRuns struct {
	runs.Repository
}

func (f *faultyRuns) WithTx(ctx context.Context, fn func(context.Context, runs.Repository) error) error {
	return f.Repository.WithTx(ctx, func(ctx context.Context, tx runs.Repository) error {
		return fn(ctx, &faultyRuns{Repository: tx})
	})
}

func (f *faultyRuns) UpsertWeeklyFacts(ctx context.Context, scope runs.Scope) error {
	return errors.New("simulated fact failure")
}

func TestIngestFailureLeavesNothingBehind(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)
	repo, err := NewRepository(pool)
	require.NoError(t, err)

	svc := runs.NewService(&faultyRuns{Repository: repo.Runs()}, zerolog.Nop(), runs.ServiceConfig{})

	row := stagedRun(t, "2024-01-02", 99, 10, 50)
	row.Gender = strPtr("M")

	tables := []string{"stg_ingest_log", "stg_runs_raw", "dim_gender", "dim_athlete", "dim_date", "fact_run_weekly"}
	before := make(map[string]int64, len(tables))
	for _, table := range tables {
		before[table] = countRows(t, ctx, pool, table)
	}

	_, err = svc.Ingest(ctx, []runs.Row{row}, "doomed")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "simulated fact failure")

	for _, table := range tables {
		assert.Equal(t, before[table], countRows(t, ctx, pool, table), "table %s changed", table)
	}
}

func TestBackfillFillsGapsWithoutRegressing(t *testing.T) {
	ctx := context.Background()
	svc := setupService(t, ctx)
	pool := sharedPool

	row := stagedRun(t, "2024-01-02", 42, 10, 50)
	row.Country = strPtr("Norway")
	_, err := svc.Ingest(ctx, []runs.Row{row}, "batch-1")
	require.NoError(t, err)

	// Simulate an athlete that lost its country resolution.
	_, err = pool.Exec(ctx, `UPDATE dim_athlete SET country_key = NULL WHERE athlete_id_source = 42`)
	require.NoError(t, err)

	require.NoError(t, svc.Backfill(ctx))

	var country string
	require.NoError(t, pool.QueryRow(ctx, `
SELECT c.country_name
  FROM dim_athlete a
  JOIN dim_country c ON c.country_key = a.country_key
 WHERE a.athlete_id_source = 42`).Scan(&country))
	assert.Equal(t, "Norway", country)

	// An already-set attribute is never overwritten, even when staging
	// disagrees.
	var swedenKey int
	require.NoError(t, pool.QueryRow(ctx,
		`INSERT INTO dim_country (country_name) VALUES ('Sweden') RETURNING country_key`).Scan(&swedenKey))
	_, err = pool.Exec(ctx,
		`UPDATE dim_athlete SET country_key = $1 WHERE athlete_id_source = 42`, swedenKey)
	require.NoError(t, err)

	require.NoError(t, svc.Backfill(ctx))

	require.NoError(t, pool.QueryRow(ctx, `
SELECT c.country_name
  FROM dim_athlete a
  JOIN dim_country c ON c.country_key = a.country_key
 WHERE a.athlete_id_source = 42`).Scan(&country))
	assert.Equal(t, "Sweden", country)
}

func TestBackfillResolvesDimensionsGlobally(t *testing.T) {
	ctx := context.Background()
	svc := setupService(t, ctx)
	pool := sharedPool

	row := stagedRun(t, "2024-01-02", 5, 10, 50)
	row.Gender = strPtr("F")
	row.AgeGroup = strPtr("30-34")
	row.Majors = []string{"Berlin2019"}
	_, err := svc.Ingest(ctx, []runs.Row{row}, "batch-1")
	require.NoError(t, err)

	// Wipe the resolved dimensions; staging still holds the raw text.
	for _, stmt := range []string{
		`UPDATE dim_athlete SET gender_key = NULL, age_group_key = NULL`,
		`DELETE FROM bridge_athlete_major`,
		`DELETE FROM dim_major`,
		`DELETE FROM dim_age_group`,
	} {
		_, err := pool.Exec(ctx, stmt)
		require.NoError(t, err)
	}

	require.NoError(t, svc.Backfill(ctx))

	assert.Equal(t, int64(1), countRows(t, ctx, pool, "dim_age_group"))
	var majorYear *int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT major_year FROM dim_major WHERE major_name = 'Berlin2019'`).Scan(&majorYear))
	require.NotNil(t, majorYear)
	assert.Equal(t, 2019, *majorYear)

	// The athlete's gaps are repaired from staging.
	var gotGender *int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT gender_key FROM dim_athlete WHERE athlete_id_source = 5`).Scan(&gotGender))
	assert.NotNil(t, gotGender)
}

func TestFinalizeBatchUnknownBatch(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)
	repo, err := NewRepository(pool)
	require.NoError(t, err)

	err = repo.Runs().FinalizeBatch(ctx, 123456, runs.BatchSucceeded, 1, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestCopyStagingReportsRowCount(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)
	repo, err := NewRepository(pool)
	require.NoError(t, err)

	runsRepo := repo.Runs()
	var copied int64
	err = runsRepo.WithTx(ctx, func(ctx context.Context, tx runs.Repository) error {
		batchID, err := tx.CreateBatch(ctx, "bulk")
		if err != nil {
			return err
		}
		copied, err = tx.CopyStaging(ctx, batchID, []runs.Row{
			stagedRun(t, "2024-01-02", 1, 5, 25),
			stagedRun(t, "2024-01-03", 2, 6, 30),
			stagedRun(t, "2024-01-04", 3, 7, 35),
		})
		if err != nil {
			return err
		}
		return tx.FinalizeBatch(ctx, batchID, runs.BatchSucceeded, int(copied), "")
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), copied)
	assert.Equal(t, int64(3), countRows(t, ctx, pool, "stg_runs_raw"))
}

func intRef(v int) *int { return &v }
