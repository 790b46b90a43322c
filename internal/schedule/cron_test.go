package schedule

import (
	"testing"
	"time"
)

func TestParseCronValid(t *testing.T) {
	cases := []string{
		"* * * * *",
		"0 9 * * *",
		"*/15 * * * *",
		"0 0 1 1 *",
		"30 8-17 * * 1-5",
		"0,30 * * * *",
		"0 9-17/2 * * *",
	}
	for _, expr := range cases {
		if _, err := ParseCron(expr); err != nil {
			t.Errorf("ParseCron(%q) failed: %v", expr, err)
		}
	}
}

func TestParseCronInvalid(t *testing.T) {
	cases := []string{
		"",
		"* * * *",
		"* * * * * *",
		"60 * * * *",
		"* 24 * * *",
		"x * * * *",
		"*/0 * * * *",
		"5-2 * * * *",
	}
	for _, expr := range cases {
		if _, err := ParseCron(expr); err == nil {
			t.Errorf("ParseCron(%q) should fail", expr)
		}
	}
}

func TestCronMatches(t *testing.T) {
	expr, err := ParseCron("30 9 * * 1")
	if err != nil {
		t.Fatal(err)
	}

	monday := time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC) // a Monday
	if !expr.Matches(monday) {
		t.Error("should match Monday 09:30")
	}
	tuesday := monday.AddDate(0, 0, 1)
	if expr.Matches(tuesday) {
		t.Error("should not match Tuesday")
	}
}

func TestCronNextDaily(t *testing.T) {
	expr, err := ParseCron("0 9 * * *")
	if err != nil {
		t.Fatal(err)
	}

	// Created after today's occurrence: next fire is tomorrow 09:00.
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	next := expr.Next(now)
	want := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("Next = %v, want %v", next, want)
	}

	// Created before today's occurrence: next fire is today 09:00.
	now = time.Date(2024, 1, 1, 8, 15, 0, 0, time.UTC)
	next = expr.Next(now)
	want = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("Next = %v, want %v", next, want)
	}
}

func TestCronNextIsStrictlyAfter(t *testing.T) {
	expr, _ := ParseCron("0 9 * * *")

	// Exactly at the occurrence: next is tomorrow, never now.
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	next := expr.Next(now)
	want := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("Next = %v, want %v", next, want)
	}
}

func TestCronNextKeepsLocation(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	expr, _ := ParseCron("0 9 * * *")

	now := time.Date(2024, 1, 1, 10, 0, 0, 0, loc)
	next := expr.Next(now)
	if next.Location() != loc {
		t.Errorf("Next location = %v, want %v", next.Location(), loc)
	}
	if next.Hour() != 9 {
		t.Errorf("Next hour = %d in %v, want 9", next.Hour(), loc)
	}
}

func TestCronNextMonthRollover(t *testing.T) {
	expr, _ := ParseCron("0 0 1 * *")

	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	next := expr.Next(now)
	want := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("Next = %v, want %v", next, want)
	}
}
