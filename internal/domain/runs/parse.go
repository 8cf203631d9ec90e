package runs

import (
	"strings"
	"time"
)

// AgeGroupBounds derives the inclusive age bounds of a raw group label such
// as "18-24" or "70+". The minimum is the leading digit run of the first
// hyphen segment and the maximum that of the second; a "+" anywhere in the
// label marks an open-ended group, which never has a maximum. Segments
// without digits yield nil.
func AgeGroupBounds(label string) (minAge, maxAge *int) {
	trimmed := strings.TrimSpace(label)
	if trimmed == "" {
		return nil, nil
	}

	first, second, _ := strings.Cut(trimmed, "-")
	minAge = leadingDigits(first)
	if !strings.Contains(trimmed, "+") {
		maxAge = leadingDigits(second)
	}
	return minAge, maxAge
}

// MajorYear extracts a 4-digit year from a major token: all digit characters
// are collected and, when at least four remain, the last four are the year.
// "Boston2023" yields 2023; "Trail Run" yields nil.
func MajorYear(token string) *int {
	var digits []byte
	for i := 0; i < len(token); i++ {
		if token[i] >= '0' && token[i] <= '9' {
			digits = append(digits, token[i])
		}
	}
	if len(digits) < 4 {
		return nil
	}

	year := 0
	for _, d := range digits[len(digits)-4:] {
		year = year*10 + int(d-'0')
	}
	return &year
}

// SplitMajors splits a comma-joined majors field into trimmed, non-empty
// tokens.
func SplitMajors(raw string) []string {
	var majors []string
	for _, token := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(token); trimmed != "" {
			majors = append(majors, trimmed)
		}
	}
	return majors
}

// WeekStart returns the Monday beginning the ISO-8601 week of d, at midnight
// in d's location. It mirrors date_trunc('week', …) in Postgres.
func WeekStart(d time.Time) time.Time {
	day := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, d.Location())
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

// WeekFields derives the calendar attributes stored on a dim_date row from
// its week-start date.
func WeekFields(weekStart time.Time) (isoYear, isoWeek, month, quarter int) {
	isoYear, isoWeek = weekStart.ISOWeek()
	month = int(weekStart.Month())
	quarter = (month-1)/3 + 1
	return isoYear, isoWeek, month, quarter
}

func leadingDigits(s string) *int {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return nil
	}

	value := 0
	for i := 0; i < end; i++ {
		value = value*10 + int(s[i]-'0')
	}
	return &value
}
