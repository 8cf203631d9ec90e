package runs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestAgeGroupBounds(t *testing.T) {
	tests := []struct {
		name    string
		label   string
		wantMin *int
		wantMax *int
	}{
		{name: "closed range", label: "18-24", wantMin: intPtr(18), wantMax: intPtr(24)},
		{name: "closed range with padding", label: "  25-29 ", wantMin: intPtr(25), wantMax: intPtr(29)},
		{name: "open ended", label: "70+", wantMin: intPtr(70), wantMax: nil},
		{name: "open ended with range", label: "65-70+", wantMin: intPtr(65), wantMax: nil},
		{name: "no digits", label: "N/A", wantMin: nil, wantMax: nil},
		{name: "empty", label: "", wantMin: nil, wantMax: nil},
		{name: "whitespace only", label: "   ", wantMin: nil, wantMax: nil},
		{name: "single bound", label: "18", wantMin: intPtr(18), wantMax: nil},
		{name: "trailing text in segments", label: "18yrs-24yrs", wantMin: intPtr(18), wantMax: intPtr(24)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotMin, gotMax := AgeGroupBounds(tt.label)
			assert.Equal(t, tt.wantMin, gotMin, "min age")
			assert.Equal(t, tt.wantMax, gotMax, "max age")
		})
	}
}

func TestMajorYear(t *testing.T) {
	tests := []struct {
		name  string
		token string
		want  *int
	}{
		{name: "name with year", token: "Boston2023", want: intPtr(2023)},
		{name: "no digits", token: "Trail Run", want: nil},
		{name: "too few digits", token: "5k Series", want: nil},
		{name: "scattered digits keep last four", token: "1st Berlin 2019", want: intPtr(2019)},
		{name: "more than four digits", token: "Ultra 12019", want: intPtr(2019)},
		{name: "exactly four", token: "2020", want: intPtr(2020)},
		{name: "empty", token: "", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MajorYear(tt.token))
		})
	}
}

func TestSplitMajors(t *testing.T) {
	assert.Equal(t, []string{"Boston2023", "Trail Run"}, SplitMajors(" Boston2023 , Trail Run "))
	assert.Equal(t, []string{"Solo"}, SplitMajors("Solo"))
	assert.Nil(t, SplitMajors(" , ,"))
	assert.Nil(t, SplitMajors(""))
}

func TestWeekStart(t *testing.T) {
	tests := []struct {
		name string
		date string
		want string
	}{
		{name: "monday is itself", date: "2024-01-01", want: "2024-01-01"},
		{name: "midweek", date: "2024-01-03", want: "2024-01-01"},
		{name: "sunday belongs to prior monday", date: "2024-01-07", want: "2024-01-01"},
		{name: "across month boundary", date: "2024-03-01", want: "2024-02-26"},
		{name: "across year boundary", date: "2023-01-01", want: "2022-12-26"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := time.Parse("2006-01-02", tt.date)
			require.NoError(t, err)
			assert.Equal(t, tt.want, WeekStart(d).Format("2006-01-02"))
		})
	}
}

func TestWeekStartIsAlwaysMonday(t *testing.T) {
	start := time.Date(2019, 12, 20, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 30; i++ {
		d := start.AddDate(0, 0, i)
		ws := WeekStart(d)
		assert.Equal(t, time.Monday, ws.Weekday(), "week start of %s", d.Format("2006-01-02"))
		assert.False(t, ws.After(d))
		assert.Less(t, d.Sub(ws), 7*24*time.Hour)
	}
}

func TestWeekFields(t *testing.T) {
	// 2022-12-26 is the Monday of ISO week 52 of 2022 but falls in Q4.
	ws := time.Date(2022, 12, 26, 0, 0, 0, 0, time.UTC)
	isoYear, isoWeek, month, quarter := WeekFields(ws)
	assert.Equal(t, 2022, isoYear)
	assert.Equal(t, 52, isoWeek)
	assert.Equal(t, 12, month)
	assert.Equal(t, 4, quarter)

	// 2024-01-01 opens ISO week 1 of 2024.
	ws = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	isoYear, isoWeek, month, quarter = WeekFields(ws)
	assert.Equal(t, 2024, isoYear)
	assert.Equal(t, 1, isoWeek)
	assert.Equal(t, 1, month)
	assert.Equal(t, 1, quarter)
}

func TestScope(t *testing.T) {
	id, ok := BatchScope(42).Batch()
	assert.True(t, ok)
	assert.Equal(t, int64(42), id)

	_, ok = AllStaged().Batch()
	assert.False(t, ok)
}
