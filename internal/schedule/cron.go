// Package schedule turns declarative schedule specs (cron, interval, once)
// into concrete future executions backed by the durable task store.
package schedule

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// CronExpr is a parsed standard 5-field cron expression:
// minute, hour, day-of-month, month, day-of-week.
type CronExpr struct {
	minute []int
	hour   []int
	dom    []int
	month  []int
	dow    []int
}

// ParseCron parses a 5-field cron expression.
// Supports *, */N, N, N-M, N-M/S and comma-separated lists.
func ParseCron(expr string) (*CronExpr, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("cron: expected 5 fields, got %d", len(fields))
	}

	bounds := []struct {
		name     string
		min, max int
	}{
		{"minute", 0, 59},
		{"hour", 0, 23},
		{"day-of-month", 1, 31},
		{"month", 1, 12},
		{"day-of-week", 0, 6},
	}

	parsed := make([][]int, 5)
	for i, b := range bounds {
		vals, err := parseCronField(fields[i], b.min, b.max)
		if err != nil {
			return nil, fmt.Errorf("cron: %s: %w", b.name, err)
		}
		parsed[i] = vals
	}

	return &CronExpr{
		minute: parsed[0],
		hour:   parsed[1],
		dom:    parsed[2],
		month:  parsed[3],
		dow:    parsed[4],
	}, nil
}

// Matches returns true if t falls within the expression.
func (c *CronExpr) Matches(t time.Time) bool {
	return contains(c.minute, t.Minute()) &&
		contains(c.hour, t.Hour()) &&
		contains(c.dom, t.Day()) &&
		contains(c.month, int(t.Month())) &&
		contains(c.dow, int(t.Weekday()))
}

// Next returns the first time strictly after t that matches the expression,
// evaluated in t's location. Searches two years ahead; returns zero time if
// no occurrence exists.
func (c *CronExpr) Next(t time.Time) time.Time {
	candidate := t.Truncate(time.Minute).Add(time.Minute)
	limit := t.AddDate(2, 0, 0)

	for candidate.Before(limit) {
		switch {
		case !contains(c.month, int(candidate.Month())):
			candidate = time.Date(candidate.Year(), candidate.Month()+1, 1, 0, 0, 0, 0, candidate.Location())
		case !contains(c.dom, candidate.Day()) || !contains(c.dow, int(candidate.Weekday())):
			candidate = time.Date(candidate.Year(), candidate.Month(), candidate.Day()+1, 0, 0, 0, 0, candidate.Location())
		case !contains(c.hour, candidate.Hour()):
			candidate = time.Date(candidate.Year(), candidate.Month(), candidate.Day(), candidate.Hour()+1, 0, 0, 0, candidate.Location())
		case !contains(c.minute, candidate.Minute()):
			candidate = candidate.Add(time.Minute)
		default:
			return candidate
		}
	}
	return time.Time{}
}

func parseCronField(field string, min, max int) ([]int, error) {
	if field == "*" {
		return stepped(min, max, 1), nil
	}

	seen := make(map[int]bool)
	for _, part := range strings.Split(field, ",") {
		vals, err := parseCronPart(part, min, max)
		if err != nil {
			return nil, err
		}
		for _, v := range vals {
			seen[v] = true
		}
	}

	out := make([]int, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Ints(out)
	return out, nil
}

func parseCronPart(part string, min, max int) ([]int, error) {
	if rest, ok := strings.CutPrefix(part, "*/"); ok {
		step, err := strconv.Atoi(rest)
		if err != nil || step <= 0 {
			return nil, fmt.Errorf("invalid step %q", part)
		}
		return stepped(min, max, step), nil
	}

	if strings.Contains(part, "-") {
		expr, stepStr, hasStep := strings.Cut(part, "/")
		loStr, hiStr, _ := strings.Cut(expr, "-")
		lo, err := strconv.Atoi(loStr)
		if err != nil {
			return nil, fmt.Errorf("invalid range start %q", loStr)
		}
		hi, err := strconv.Atoi(hiStr)
		if err != nil {
			return nil, fmt.Errorf("invalid range end %q", hiStr)
		}
		if lo < min || hi > max || lo > hi {
			return nil, fmt.Errorf("range %d-%d out of bounds [%d,%d]", lo, hi, min, max)
		}
		step := 1
		if hasStep {
			step, err = strconv.Atoi(stepStr)
			if err != nil || step <= 0 {
				return nil, fmt.Errorf("invalid step in %q", part)
			}
		}
		return stepped(lo, hi, step), nil
	}

	val, err := strconv.Atoi(part)
	if err != nil {
		return nil, fmt.Errorf("invalid value %q", part)
	}
	if val < min || val > max {
		return nil, fmt.Errorf("value %d out of bounds [%d,%d]", val, min, max)
	}
	return []int{val}, nil
}

func stepped(min, max, step int) []int {
	out := make([]int, 0, (max-min)/step+1)
	for i := min; i <= max; i += step {
		out = append(out, i)
	}
	return out
}

func contains(set []int, val int) bool {
	for _, v := range set {
		if v == val {
			return true
		}
	}
	return false
}
