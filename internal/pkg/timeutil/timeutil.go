// Package timeutil holds the wall-clock and weekday arithmetic shared by the
// availability index, conflict detector, and session generator. Times of day
// travel as zero-padded "HH:MM" strings and compare as minutes since midnight.
// Days of week run 0=Monday through 6=Sunday.
package timeutil

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	serrors "github.com/evlinhq/evlin-backend/internal/pkg/errors"
)

var dayNames = [7]string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

func DayName(day int) string {
	if day < 0 || day > 6 {
		return "?"
	}
	return dayNames[day]
}

func ValidDay(day int) bool { return day >= 0 && day <= 6 }

// Weekday maps a calendar date onto the 0=Monday convention.
func Weekday(d time.Time) int {
	return (int(d.Weekday()) + 6) % 7
}

// ParseClock parses "HH:MM" (or "HH:MM:SS", seconds ignored) into minutes
// since midnight.
func ParseClock(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 {
		return 0, fmt.Errorf("parse clock %q: %w", s, serrors.ErrInvalidArgument)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("parse clock %q: %w", s, serrors.ErrInvalidArgument)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("parse clock %q: %w", s, serrors.ErrInvalidArgument)
	}
	return h*60 + m, nil
}

func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// ValidRange reports whether [start,end) is a well-formed non-empty window.
func ValidRange(start, end string) bool {
	s, err := ParseClock(start)
	if err != nil {
		return false
	}
	e, err := ParseClock(end)
	if err != nil {
		return false
	}
	return e > s
}

// Overlaps applies the half-open interval test: two ranges overlap iff
// max(starts) < min(ends). Touching endpoints do not overlap.
func Overlaps(startA, endA, startB, endB int) bool {
	lo := startA
	if startB > lo {
		lo = startB
	}
	hi := endA
	if endB < hi {
		hi = endB
	}
	return lo < hi
}

// Contains reports whether [outerStart,outerEnd) fully contains
// [innerStart,innerEnd).
func Contains(outerStart, outerEnd, innerStart, innerEnd int) bool {
	return outerStart <= innerStart && innerEnd <= outerEnd
}

// NextMonday returns the Monday strictly after d, or d itself when d is a
// Monday. Proposed schedules start on week boundaries.
func NextMonday(d time.Time) time.Time {
	d = d.Truncate(24 * time.Hour)
	offset := Weekday(d)
	if offset == 0 {
		return d
	}
	return d.AddDate(0, 0, 7-offset)
}

// DateAt combines a calendar date with a minutes-since-midnight clock value.
func DateAt(date time.Time, minutes int, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(date.Year(), date.Month(), date.Day(), minutes/60, minutes%60, 0, 0, loc)
}
