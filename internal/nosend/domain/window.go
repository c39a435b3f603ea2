package domain

import (
	"fmt"
	"time"
)

// ISOWeekday is an ISO-8601 day of week: 1 = Monday ... 7 = Sunday.
type ISOWeekday uint8

const (
	Monday ISOWeekday = iota + 1
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

// ISOWeekdayOf returns the ISO weekday of t in t's own location.
func ISOWeekdayOf(t time.Time) ISOWeekday {
	wd := t.Weekday()
	if wd == time.Sunday {
		return Sunday
	}
	return ISOWeekday(wd)
}

// IsValid reports whether the value is within 1..7.
func (d ISOWeekday) IsValid() bool { return d >= Monday && d <= Sunday }

// Window is the kind-specific payload of a Rule. It is a closed set:
// DayOfWeekWindow, TimeRangeWindow, SpecificDateWindow and DateRangeWindow.
type Window interface {
	// Kind returns the rule kind the window belongs to.
	Kind() RuleKind
	// Label is the stable prefix used in deny reasons.
	Label() string
	// Matches reports whether at falls inside the window, using at's own location.
	Matches(at time.Time) bool
	// Validate re-checks the structural invariants of the payload.
	Validate() error

	window()
}

// DayOfWeekWindow matches whole days of the week.
// Days is ascending and free of duplicates when built by the validator.
type DayOfWeekWindow struct {
	Days []ISOWeekday
}

func (DayOfWeekWindow) Kind() RuleKind { return KindDayOfWeek }
func (DayOfWeekWindow) Label() string  { return "prohibited day" }
func (DayOfWeekWindow) window()        {}

func (w DayOfWeekWindow) Matches(at time.Time) bool {
	wd := ISOWeekdayOf(at)
	for _, d := range w.Days {
		if d == wd {
			return true
		}
	}
	return false
}

func (w DayOfWeekWindow) Validate() error {
	if len(w.Days) == 0 {
		return ErrEmptyDayList
	}
	for _, d := range w.Days {
		if !d.IsValid() {
			return fmt.Errorf("%w: %d", ErrDayOutOfRange, d)
		}
	}
	return nil
}

// TimeRangeWindow matches a time-of-day interval [Start, End).
// When Start > End the interval wraps across midnight.
type TimeRangeWindow struct {
	Start TimeOfDay
	End   TimeOfDay
}

func (TimeRangeWindow) Kind() RuleKind { return KindTimeRange }
func (TimeRangeWindow) Label() string  { return "prohibited time window" }
func (TimeRangeWindow) window()        {}

// Wraps reports whether the window crosses midnight.
func (w TimeRangeWindow) Wraps() bool { return w.Start > w.End }

func (w TimeRangeWindow) Matches(at time.Time) bool {
	tod := TimeOfDayOf(at)
	if w.Wraps() {
		return tod >= w.Start || tod < w.End
	}
	return w.Start <= tod && tod < w.End
}

// Validate checks both bounds. A zero-length window is structurally valid here
// (it never matches); rejecting it is the validator's job.
func (w TimeRangeWindow) Validate() error {
	if !w.Start.IsValid() || !w.End.IsValid() {
		return ErrMissingBound
	}
	return nil
}

// SpecificDateWindow matches a single calendar date.
type SpecificDateWindow struct {
	Date Date
}

func (SpecificDateWindow) Kind() RuleKind { return KindSpecificDate }
func (SpecificDateWindow) Label() string  { return "prohibited date" }
func (SpecificDateWindow) window()        {}

func (w SpecificDateWindow) Matches(at time.Time) bool {
	return DateOf(at) == w.Date
}

func (w SpecificDateWindow) Validate() error {
	if !w.Date.IsValid() {
		return ErrOneOfRequired
	}
	return nil
}

// DateRangeWindow matches an inclusive range of calendar dates.
type DateRangeWindow struct {
	Start Date
	End   Date
}

func (DateRangeWindow) Kind() RuleKind { return KindSpecificDate }
func (DateRangeWindow) Label() string  { return "prohibited period" }
func (DateRangeWindow) window()        {}

func (w DateRangeWindow) Matches(at time.Time) bool {
	d := DateOf(at)
	return !d.Before(w.Start) && !d.After(w.End)
}

func (w DateRangeWindow) Validate() error {
	if !w.Start.IsValid() || !w.End.IsValid() {
		return ErrIncompleteRange
	}
	if w.Start.After(w.End) {
		return ErrStartAfterEnd
	}
	return nil
}

var (
	_ Window = DayOfWeekWindow{}
	_ Window = TimeRangeWindow{}
	_ Window = SpecificDateWindow{}
	_ Window = DateRangeWindow{}
)
