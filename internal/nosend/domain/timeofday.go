package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const secondsPerDay = 24 * 60 * 60

// TimeOfDay is a wall-clock time within a day, stored as seconds since midnight.
// Valid values are in [0, 86400).
type TimeOfDay uint32

// NewTimeOfDay constructs a TimeOfDay from its components.
func NewTimeOfDay(hour, minute, second int) (TimeOfDay, error) {
	if hour < 0 || hour > 23 {
		return 0, fmt.Errorf("hour out of range: %d", hour)
	}
	if minute < 0 || minute > 59 {
		return 0, fmt.Errorf("minute out of range: %d", minute)
	}
	if second < 0 || second > 59 {
		return 0, fmt.Errorf("second out of range: %d", second)
	}
	return TimeOfDay(hour*3600 + minute*60 + second), nil
}

// MustTimeOfDay is like NewTimeOfDay but panics on invalid input.
// Intended for constants and tests.
func MustTimeOfDay(hour, minute, second int) TimeOfDay {
	tod, err := NewTimeOfDay(hour, minute, second)
	if err != nil {
		panic(err)
	}
	return tod
}

// ParseTimeOfDay parses "HH:MM:SS" or "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, fmt.Errorf("invalid time of day %q: want HH:MM:SS", s)
	}
	vals := [3]int{}
	for i, p := range parts {
		if len(p) != 2 || !isDigit(p[0]) || !isDigit(p[1]) {
			return 0, fmt.Errorf("invalid time of day %q: want HH:MM:SS", s)
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
		}
		vals[i] = n
	}
	tod, err := NewTimeOfDay(vals[0], vals[1], vals[2])
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return tod, nil
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

// TimeOfDayOf returns the wall-clock time of t in t's own location.
func TimeOfDayOf(t time.Time) TimeOfDay {
	h, m, s := t.Clock()
	return TimeOfDay(h*3600 + m*60 + s)
}

// IsValid reports whether the value lies within a single day.
func (t TimeOfDay) IsValid() bool { return t < secondsPerDay }

func (t TimeOfDay) Hour() int   { return int(t) / 3600 }
func (t TimeOfDay) Minute() int { return int(t) % 3600 / 60 }
func (t TimeOfDay) Second() int { return int(t) % 60 }

// String renders the value as HH:MM:SS.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour(), t.Minute(), t.Second())
}
