// Package validator builds no-send rules from kind-tagged input and enforces
// their construction-time invariants. Every rule that reaches the store is
// produced here.
package validator

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	playground "github.com/go-playground/validator/v10"

	"github.com/haukened/nosend/internal/nosend/domain"
)

// DefaultMaxRangeDays caps the span of a date-range rule, measured as
// rangeEnd minus rangeStart in civil days. A full leap year fits.
const DefaultMaxRangeDays = 366

// RuleSpec is the kind-tagged input for creating a rule. Fields that do not
// belong to Kind must be left nil.
type RuleSpec struct {
	TenantID    uint64          `json:"tenant_id" validate:"required"`
	ListID      uint64          `json:"list_id" validate:"required"`
	Kind        domain.RuleKind `json:"setting_type"`
	Name        string          `json:"name" validate:"required,max=100"`
	Description string          `json:"description" validate:"max=500"`
	Enabled     *bool           `json:"is_enabled"`

	Days []int `json:"day_of_week_list"`

	TimeStart *domain.TimeOfDay `json:"time_start"`
	TimeEnd   *domain.TimeOfDay `json:"time_end"`

	SpecificDate *domain.Date `json:"specific_date"`
	RangeStart   *domain.Date `json:"date_range_start"`
	RangeEnd     *domain.Date `json:"date_range_end"`
}

// RuleUpdate carries the mutable fields of a rule. Nil means unchanged.
type RuleUpdate struct {
	Name        *string `json:"name" validate:"omitnil,min=1,max=100"`
	Description *string `json:"description" validate:"omitnil,max=500"`
	Enabled     *bool   `json:"is_enabled"`
}

// RuleValidator validates rule input. It holds no mutable state and is safe
// for concurrent use.
type RuleValidator struct {
	maxRangeDays int
	v            *playground.Validate
}

// New returns a RuleValidator. maxRangeDays <= 0 selects DefaultMaxRangeDays.
func New(maxRangeDays int) *RuleValidator {
	if maxRangeDays <= 0 {
		maxRangeDays = DefaultMaxRangeDays
	}
	v := playground.New(playground.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &RuleValidator{maxRangeDays: maxRangeDays, v: v}
}

// MaxRangeDays returns the configured date-range cap.
func (rv *RuleValidator) MaxRangeDays() int { return rv.maxRangeDays }

// ValidateDayOfWeek checks ISO weekdays and returns them deduplicated in ascending order.
func (rv *RuleValidator) ValidateDayOfWeek(days []int) ([]domain.ISOWeekday, error) {
	if len(days) == 0 {
		return nil, domain.NewValidationError("day_of_week_list", domain.ErrEmptyDayList)
	}
	seen := make(map[int]struct{}, len(days))
	out := make([]domain.ISOWeekday, 0, len(days))
	for _, d := range days {
		if d < 1 || d > 7 {
			return nil, domain.NewValidationError("day_of_week_list", fmt.Errorf("%w: %d", domain.ErrDayOutOfRange, d))
		}
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, domain.ISOWeekday(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// ValidateTimeRange requires both bounds. start > end is a window crossing midnight.
// start == end is rejected as a zero-length window.
func (rv *RuleValidator) ValidateTimeRange(start, end *domain.TimeOfDay) (domain.TimeRangeWindow, error) {
	if start == nil || !start.IsValid() {
		return domain.TimeRangeWindow{}, domain.NewValidationError("time_start", domain.ErrMissingBound)
	}
	if end == nil || !end.IsValid() {
		return domain.TimeRangeWindow{}, domain.NewValidationError("time_end", domain.ErrMissingBound)
	}
	if *start == *end {
		return domain.TimeRangeWindow{}, domain.NewValidationError("time_end", domain.ErrEmptyWindow)
	}
	return domain.TimeRangeWindow{Start: *start, End: *end}, nil
}

// ValidateSpecificDate accepts exactly one of a single date or a complete range.
func (rv *RuleValidator) ValidateSpecificDate(specific, rangeStart, rangeEnd *domain.Date) (domain.Window, error) {
	hasRange := rangeStart != nil || rangeEnd != nil
	switch {
	case specific != nil && hasRange:
		return nil, domain.NewValidationError("specific_date", domain.ErrMutuallyExclusive)
	case specific == nil && !hasRange:
		return nil, domain.NewValidationError("specific_date", domain.ErrOneOfRequired)
	case specific != nil:
		if !specific.IsValid() {
			return nil, domain.NewValidationError("specific_date", domain.ErrInvalidFormat)
		}
		return domain.SpecificDateWindow{Date: *specific}, nil
	}

	if rangeStart == nil {
		return nil, domain.NewValidationError("date_range_start", domain.ErrIncompleteRange)
	}
	if rangeEnd == nil {
		return nil, domain.NewValidationError("date_range_end", domain.ErrIncompleteRange)
	}
	if !rangeStart.IsValid() {
		return nil, domain.NewValidationError("date_range_start", domain.ErrInvalidFormat)
	}
	if !rangeEnd.IsValid() {
		return nil, domain.NewValidationError("date_range_end", domain.ErrInvalidFormat)
	}
	if rangeStart.After(*rangeEnd) {
		return nil, domain.NewValidationError("date_range_start", domain.ErrStartAfterEnd)
	}
	if span := rangeStart.DaysUntil(*rangeEnd); span > rv.maxRangeDays {
		return nil, domain.NewValidationError("date_range_end",
			fmt.Errorf("%w: %d days exceeds %d", domain.ErrRangeTooLong, span, rv.maxRangeDays))
	}
	return domain.DateRangeWindow{Start: *rangeStart, End: *rangeEnd}, nil
}

// Build validates spec and returns the rule it describes. ID and audit
// timestamps are left for the persistence layer to assign.
func (rv *RuleValidator) Build(spec RuleSpec) (domain.Rule, error) {
	spec.Name = strings.TrimSpace(spec.Name)
	spec.Description = strings.TrimSpace(spec.Description)
	if err := rv.v.Struct(spec); err != nil {
		return domain.Rule{}, translate(err)
	}
	switch spec.Kind {
	case domain.KindDayOfWeek, domain.KindTimeRange, domain.KindSpecificDate:
	default:
		return domain.Rule{}, domain.NewValidationError("setting_type", fmt.Errorf("%w: %s", domain.ErrUnknownKind, spec.Kind))
	}
	if err := checkForeignFields(spec); err != nil {
		return domain.Rule{}, err
	}

	var (
		w   domain.Window
		err error
	)
	switch spec.Kind {
	case domain.KindDayOfWeek:
		var days []domain.ISOWeekday
		days, err = rv.ValidateDayOfWeek(spec.Days)
		w = domain.DayOfWeekWindow{Days: days}
	case domain.KindTimeRange:
		w, err = rv.ValidateTimeRange(spec.TimeStart, spec.TimeEnd)
	case domain.KindSpecificDate:
		w, err = rv.ValidateSpecificDate(spec.SpecificDate, spec.RangeStart, spec.RangeEnd)
	}
	if err != nil {
		return domain.Rule{}, err
	}

	enabled := true
	if spec.Enabled != nil {
		enabled = *spec.Enabled
	}
	return domain.Rule{
		TenantID:    spec.TenantID,
		ListID:      spec.ListID,
		Name:        spec.Name,
		Description: spec.Description,
		Enabled:     enabled,
		Window:      w,
	}, nil
}

// ValidateUpdate checks a partial update and returns it with text fields trimmed.
func (rv *RuleValidator) ValidateUpdate(u RuleUpdate) (RuleUpdate, error) {
	if u.Name != nil {
		n := strings.TrimSpace(*u.Name)
		u.Name = &n
	}
	if u.Description != nil {
		d := strings.TrimSpace(*u.Description)
		u.Description = &d
	}
	if err := rv.v.Struct(u); err != nil {
		return RuleUpdate{}, translate(err)
	}
	return u, nil
}

// checkForeignFields rejects payload fields that belong to a different kind.
func checkForeignFields(spec RuleSpec) error {
	fields := []struct {
		name string
		set  bool
		kind domain.RuleKind
	}{
		{"day_of_week_list", spec.Days != nil, domain.KindDayOfWeek},
		{"time_start", spec.TimeStart != nil, domain.KindTimeRange},
		{"time_end", spec.TimeEnd != nil, domain.KindTimeRange},
		{"specific_date", spec.SpecificDate != nil, domain.KindSpecificDate},
		{"date_range_start", spec.RangeStart != nil, domain.KindSpecificDate},
		{"date_range_end", spec.RangeEnd != nil, domain.KindSpecificDate},
	}
	for _, f := range fields {
		if f.set && f.kind != spec.Kind {
			return domain.NewValidationError(f.name, domain.ErrFieldNotAllowed)
		}
	}
	return nil
}

// translate maps the first go-playground field error onto a domain ValidationError.
func translate(err error) error {
	var verrs playground.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	var cause error
	switch fe.Tag() {
	case "required", "min":
		cause = domain.ErrRequired
	case "max":
		cause = domain.ErrTooLong
	default:
		cause = fmt.Errorf("%w: failed %q", domain.ErrInvalidFormat, fe.Tag())
	}
	return domain.NewValidationError(fe.Field(), cause)
}
