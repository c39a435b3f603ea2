// Package wire maps the external JSON shapes of no-send rules onto validator
// input and domain rules.
package wire

import (
	"fmt"

	"github.com/haukened/nosend/internal/nosend/domain"
	"github.com/haukened/nosend/internal/nosend/services/validator"
)

// CreateRuleRequest is the creation payload, discriminated by SettingType.
// Tenant and list come from the request scope, never from the body.
type CreateRuleRequest struct {
	SettingType    string  `json:"setting_type"`
	Name           string  `json:"name"`
	Description    string  `json:"description"`
	IsEnabled      *bool   `json:"is_enabled"`
	DayOfWeekList  []int   `json:"day_of_week_list"`
	TimeStart      *string `json:"time_start"`
	TimeEnd        *string `json:"time_end"`
	SpecificDate   *string `json:"specific_date"`
	DateRangeStart *string `json:"date_range_start"`
	DateRangeEnd   *string `json:"date_range_end"`
}

// ToSpec parses the string fields of req and returns validator input for the
// given list. Bad time or date strings fail with a field-attributed
// domain.ErrInvalidFormat; all other checks are left to the validator.
func (req CreateRuleRequest) ToSpec(key domain.ListKey) (validator.RuleSpec, error) {
	kind, err := domain.ParseRuleKind(req.SettingType)
	if err != nil {
		return validator.RuleSpec{}, domain.NewValidationError("setting_type", err)
	}
	spec := validator.RuleSpec{
		TenantID:    key.TenantID,
		ListID:      key.ListID,
		Kind:        kind,
		Name:        req.Name,
		Description: req.Description,
		Enabled:     req.IsEnabled,
		Days:        req.DayOfWeekList,
	}
	if spec.TimeStart, err = parseTime("time_start", req.TimeStart); err != nil {
		return validator.RuleSpec{}, err
	}
	if spec.TimeEnd, err = parseTime("time_end", req.TimeEnd); err != nil {
		return validator.RuleSpec{}, err
	}
	if spec.SpecificDate, err = parseDate("specific_date", req.SpecificDate); err != nil {
		return validator.RuleSpec{}, err
	}
	if spec.RangeStart, err = parseDate("date_range_start", req.DateRangeStart); err != nil {
		return validator.RuleSpec{}, err
	}
	if spec.RangeEnd, err = parseDate("date_range_end", req.DateRangeEnd); err != nil {
		return validator.RuleSpec{}, err
	}
	return spec, nil
}

// UpdateRuleRequest carries the mutable fields of a rule. Absent fields are unchanged.
type UpdateRuleRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	IsEnabled   *bool   `json:"is_enabled"`
}

func (req UpdateRuleRequest) ToUpdate() validator.RuleUpdate {
	return validator.RuleUpdate{Name: req.Name, Description: req.Description, Enabled: req.IsEnabled}
}

func parseTime(field string, s *string) (*domain.TimeOfDay, error) {
	if s == nil {
		return nil, nil
	}
	t, err := domain.ParseTimeOfDay(*s)
	if err != nil {
		return nil, domain.NewValidationError(field, fmt.Errorf("%w: %q", domain.ErrInvalidFormat, *s))
	}
	return &t, nil
}

func parseDate(field string, s *string) (*domain.Date, error) {
	if s == nil {
		return nil, nil
	}
	d, err := domain.ParseDate(*s)
	if err != nil {
		return nil, domain.NewValidationError(field, fmt.Errorf("%w: %q", domain.ErrInvalidFormat, *s))
	}
	return &d, nil
}
